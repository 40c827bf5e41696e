package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
	"github.com/banshee-data/eyetrack/internal/eyetrack/frames"
)

// Job is one recording for RunBatch.
type Job struct {
	Name    string
	Source  frames.Source
	Options Options
	Start   int
}

// BatchResult is the outcome of one Job.
type BatchResult struct {
	Name  string
	Pupil []eyetrack.EllipseParams
	CR    []eyetrack.EllipseParams
	State TrackerState
	Mean  *frames.Frame // mean of the whole source, nil on error
	Err   error
}

// RunBatch processes independent recordings with at most workers running
// at once, each on its own Tracker. One job failing does not stop the
// others; results are returned in job order.
func RunBatch(ctx context.Context, cfg Config, jobs []Job, workers int) []BatchResult {
	results := make([]BatchResult, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = runJob(ctx, cfg, job)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func runJob(ctx context.Context, cfg Config, job Job) BatchResult {
	res := BatchResult{Name: job.Name}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	t, err := NewTracker(job.Source, cfg, job.Options)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", job.Name, err)
		return res
	}
	res.Pupil, res.CR, err = t.ProcessStream(ctx, job.Start, cfg.UpdateMeanFrame)
	res.State = t.State()
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", job.Name, err)
		return res
	}
	if res.Mean, err = t.MeanFrame(); err != nil {
		res.Err = fmt.Errorf("%s: %w", job.Name, err)
	}
	return res
}
