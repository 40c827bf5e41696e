// Command eyetrack tracks the pupil and corneal reflection through
// recordings stored as directories of frame images.
//
//	eyetrack -input frames/ -output-dir out/ -annotate -qc -output-json
//	eyetrack -output-dir out/ -workers 4 rec1/ rec2/ rec3/
//
// Each recording gets pupil_params.npy and cr_params.npy (N×5 float64:
// center_row, center_col, semi_a, semi_b, rotation; NaN rows where the
// feature was not found) and mean_frame.png, plus optional annotated
// frames, QC plots and a JSON manifest.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/banshee-data/eyetrack/internal/config"
	"github.com/banshee-data/eyetrack/internal/eyetrack"
	"github.com/banshee-data/eyetrack/internal/eyetrack/frames"
	"github.com/banshee-data/eyetrack/internal/eyetrack/output"
	"github.com/banshee-data/eyetrack/internal/eyetrack/pipeline"
	"github.com/banshee-data/eyetrack/internal/eyetrack/qc"
	"github.com/banshee-data/eyetrack/internal/fsutil"
	"github.com/banshee-data/eyetrack/internal/timeutil"
	"github.com/banshee-data/eyetrack/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("eyetrack: %v", err)
	}
}

type options struct {
	configPath string
	outputDir  string
	annotate   bool
	qc         bool
	manifest   bool
	start      int
	workers    int
	clock      timeutil.Clock
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fset := flag.NewFlagSet("eyetrack", flag.ContinueOnError)
	fset.SetOutput(stderr)
	input := fset.String("input", "", "Directory of frame images (PNG, TIFF or BMP), read in name order")
	var opts options
	fset.StringVar(&opts.configPath, "config", "", "Tuning config JSON; built-in defaults when empty")
	fset.StringVar(&opts.outputDir, "output-dir", "eyetrack-out", "Directory for run artifacts")
	fset.BoolVar(&opts.annotate, "annotate", false, "Write annotated frames")
	fset.BoolVar(&opts.qc, "qc", false, "Write QC plots and report (also enabled by generate_qc_output)")
	fset.BoolVar(&opts.manifest, "output-json", false, "Write an output.json manifest for each recording")
	fset.IntVar(&opts.start, "start", 0, "First frame to process")
	fset.IntVar(&opts.workers, "workers", runtime.NumCPU(), "Recordings processed in parallel")
	verbose := fset.Bool("v", false, "Log per-frame fit diagnostics")
	trace := fset.Bool("trace", false, "Log stage transitions and per-ray failures")
	showVersion := fset.Bool("version", false, "Print version and exit")
	if err := fset.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return nil
	}

	logs := eyetrack.LogWriters{Ops: stderr}
	if *verbose {
		logs.Diag = stderr
	}
	if *trace {
		logs.Trace = stderr
	}
	eyetrack.SetLogWriters(logs)
	defer eyetrack.SetLogWriters(eyetrack.LogWriters{})

	inputs := fset.Args()
	if *input != "" {
		inputs = append([]string{*input}, inputs...)
	}
	if len(inputs) == 0 {
		fset.Usage()
		return errors.New("no input recording given")
	}

	tuning := config.EmptyTuningConfig()
	if opts.configPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(opts.configPath); err != nil {
			return err
		}
	}
	opts.qc = opts.qc || tuning.GetGenerateQCOutput()
	cfg, err := pipeline.TrackerConfigFromTuning(tuning)
	if err != nil {
		return err
	}

	opts.clock = timeutil.RealClock{}
	return track(ctx, fsutil.OSFileSystem{}, inputs, tuning, cfg, opts)
}

// recording is one input directory and everything written for it.
type recording struct {
	input    string
	src      *frames.DirSource
	out      *output.Writer
	sink     *frames.DirSink
	qc       *qc.Recorder
	manifest *output.Manifest
}

func track(ctx context.Context, fsys fsutil.FileSystem, inputs []string, tuning *config.TuningConfig, cfg pipeline.Config, opts options) error {
	recs := make([]*recording, 0, len(inputs))
	defer func() {
		for _, r := range recs {
			r.close()
		}
	}()

	dirs := []string{opts.outputDir}
	if len(inputs) > 1 {
		dirs = fsutil.UniqueSubdirs(opts.outputDir, inputs)
	}
	jobs := make([]pipeline.Job, 0, len(inputs))
	for i, in := range inputs {
		r, err := openRecording(fsys, in, dirs[i], tuning, opts)
		if err != nil {
			return err
		}
		recs = append(recs, r)
		job := pipeline.Job{Name: in, Source: r.src, Start: opts.start}
		if r.sink != nil {
			job.Options.Sink = r.sink
		}
		if r.qc != nil {
			job.Options.Recorder = r.qc
		}
		jobs = append(jobs, job)
	}

	eyetrack.Opsf("%s: %d recording(s), %d worker(s)", version.String(), len(jobs), opts.workers)
	results := pipeline.RunBatch(ctx, cfg, jobs, opts.workers)

	var errs []error
	for i, res := range results {
		if err := recs[i].finish(res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openRecording(fsys fsutil.FileSystem, input, dir string, tuning *config.TuningConfig, opts options) (*recording, error) {
	src, err := frames.OpenDirSource(fsys, input)
	if err != nil {
		return nil, err
	}
	r := &recording{input: input, src: src}
	if r.out, err = output.NewWriter(fsys, dir); err != nil {
		src.Close()
		return nil, err
	}
	if opts.annotate {
		if r.sink, err = frames.NewDirSink(fsys, r.out.Path(output.AnnotationDir), src.Shape()); err != nil {
			src.Close()
			return nil, err
		}
	}
	if opts.qc {
		r.qc = qc.NewRecorder(src.Shape())
	}
	if opts.manifest {
		r.manifest = output.NewManifest(input, tuning, opts.clock)
		r.manifest.StartFrame = opts.start
	}
	eyetrack.Opsf("%s: %d frames of %s -> %s", input, src.NumFrames(), src.Shape(), dir)
	return r, nil
}

// finish writes what the run produced. Parameters are written even when
// the stream stopped early, so partial runs keep their results.
func (r *recording) finish(res pipeline.BatchResult) error {
	errs := []error{res.Err}
	write := func(key, path string, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		if r.manifest != nil {
			r.manifest.AddOutput(key, path)
		}
	}

	path, err := r.out.WriteParams(output.PupilParamsFile, res.Pupil)
	write("pupil_params", path, err)
	path, err = r.out.WriteParams(output.CRParamsFile, res.CR)
	write("cr_params", path, err)
	if res.Mean != nil {
		path, err = r.out.WriteMeanFrame(res.Mean)
		write("mean_frame", path, err)
	}
	if r.sink != nil {
		write("annotated_frames", r.out.Path(output.AnnotationDir), nil)
	}
	if r.qc != nil {
		qcDir := r.out.Path(output.QCDir)
		if _, err := r.qc.WritePlots(r.out.FileSystem(), qcDir); err != nil {
			errs = append(errs, err)
		} else {
			write("qc_plots", qcDir, nil)
		}
		path, err = r.qc.WriteHTML(r.out.FileSystem(), qcDir)
		write("qc_report", path, err)
	}

	pupil, cr := output.CountFound(res.Pupil), output.CountFound(res.CR)
	eyetrack.Opsf("%s: pupil found in %d/%d frames, cr in %d/%d", r.input, pupil.Found, pupil.Frames, cr.Found, cr.Frames)

	if r.manifest != nil {
		r.manifest.Finish(r.src.Shape(), res.Pupil, res.CR, res.Err)
		path := r.out.Path(output.ManifestFile)
		if err := r.manifest.Write(r.out.FileSystem(), path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *recording) close() {
	if r.sink != nil {
		r.sink.Close()
	}
	r.src.Close()
}
