package pipeline

import (
	"context"
	"fmt"
	"image"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
	"github.com/banshee-data/eyetrack/internal/eyetrack/annotate"
	"github.com/banshee-data/eyetrack/internal/eyetrack/ellipse"
	"github.com/banshee-data/eyetrack/internal/eyetrack/frames"
	"github.com/banshee-data/eyetrack/internal/eyetrack/locate"
	"github.com/banshee-data/eyetrack/internal/eyetrack/starburst"
)

// Annotator renders one frame's results for the output sink.
// *annotate.Renderer satisfies it.
type Annotator interface {
	Annotate(img *frames.Frame, index int, results ...locate.Result) *image.RGBA
}

// Recorder receives every frame's fits. *qc.Recorder satisfies it.
type Recorder interface {
	Record(index int, pupil, cr eyetrack.EllipseParams)
}

// Options are the optional collaborators of a Tracker.
type Options struct {
	Sink      frames.Sink
	Annotator Annotator   // used when Sink is set; defaults to annotate.NewRenderer()
	Recorder  Recorder    // QC recorder, nil to skip
	Rand      rand.Source // RANSAC source; nil seeds one from Config.Ransac.Seed
}

// FrameResult is the outcome of ProcessImage.
type FrameResult struct {
	Index int
	CR    locate.Result
	Pupil locate.Result

	// PupilInput is the smoothed frame the pupil was searched in, with
	// the CR filled when recolouring applied.
	PupilInput *frames.Frame
}

// Tracker locates the CR and pupil in every frame of one stream.
type Tracker struct {
	cfg   Config
	opts  Options
	src   frames.Source
	state TrackerState
	parts parts

	meanFrame  *frames.Frame // cached MeanFrame result
	updateMean bool

	// Buffers of the frame most recently processed.
	smoothed   *frames.Frame
	pupilInput *frames.Frame
}

// parts are the shape-dependent components rebuilt on SetSource and
// UpdateFitParameters.
type parts struct {
	pupilBox eyetrack.BoundingBox
	crBox    eyetrack.BoundingBox
	pupil    *locate.Locator
	cr       *locate.Locator
}

func buildParts(shape eyetrack.Shape, cfg Config, src rand.Source) (parts, error) {
	if err := cfg.Validate(); err != nil {
		return parts{}, err
	}
	gen, err := starburst.NewPointGenerator(shape, cfg.Starburst)
	if err != nil {
		return parts{}, err
	}
	fitter, err := ellipse.NewRansacFitter(cfg.Ransac, src)
	if err != nil {
		return parts{}, err
	}

	var p parts
	for _, kind := range eyetrack.FeatureKinds {
		box := cfg.box(kind).Resolve(shape)
		// A zero-frame source has no shape to check against.
		if !shape.Empty() {
			if err := box.Validate(shape); err != nil {
				return parts{}, fmt.Errorf("%w: %s bounding box: %w", eyetrack.ErrConfiguration, kind, err)
			}
		}
		var seeds *locate.SeedFinder
		if cfg.CorrelationSeed {
			seeds = &locate.SeedFinder{Kind: kind, Radius: cfg.maskRadius(kind)}
		}
		l, err := locate.NewLocator(kind, gen, fitter, seeds)
		if err != nil {
			return parts{}, err
		}
		if kind == eyetrack.CR {
			p.cr, p.crBox = l, box
		} else {
			p.pupil, p.pupilBox = l, box
		}
	}
	return p, nil
}

// NewTracker builds a tracker for src. The configuration is validated and
// the bounding boxes are resolved against the source shape.
func NewTracker(src frames.Source, cfg Config, opts Options) (*Tracker, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil frame source", eyetrack.ErrConfiguration)
	}
	p, err := buildParts(src.Shape(), cfg, opts.Rand)
	if err != nil {
		return nil, err
	}
	if opts.Sink != nil && opts.Annotator == nil {
		opts.Annotator = annotate.NewRenderer()
	}
	t := &Tracker{
		cfg:        cfg,
		opts:       opts,
		src:        src,
		parts:      p,
		updateMean: cfg.UpdateMeanFrame,
		state:      newTrackerState(src.Shape(), p.pupilBox, p.crBox, cfg.InitialPupilColor),
	}
	eyetrack.Diagf("tracker: %d frames of %s, pupil box %v, cr box %v",
		src.NumFrames(), src.Shape(), p.pupilBox.Slice(), p.crBox.Slice())
	return t, nil
}

// Config returns the active configuration.
func (t *Tracker) Config() Config { return t.cfg }

// Source returns the attached frame source.
func (t *Tracker) Source() frames.Source { return t.src }

// State returns a snapshot of the tracker state.
func (t *Tracker) State() TrackerState { return t.state }

// SetSource attaches a new stream. Components are rebuilt for its shape,
// the state starts afresh and the cached mean frame is dropped. On error
// the tracker keeps its previous source.
func (t *Tracker) SetSource(src frames.Source) error {
	if src == nil {
		return fmt.Errorf("%w: nil frame source", eyetrack.ErrConfiguration)
	}
	p, err := buildParts(src.Shape(), t.cfg, t.opts.Rand)
	if err != nil {
		return err
	}
	version := t.state.Version
	t.src = src
	t.parts = p
	t.meanFrame = nil
	t.smoothed, t.pupilInput = nil, nil
	t.state = newTrackerState(src.Shape(), p.pupilBox, p.crBox, t.cfg.InitialPupilColor)
	t.state.Version = version + 1
	return nil
}

// UpdateFitParameters replaces the configuration. The new generator,
// fitter and boxes are built first; an invalid cfg returns an error
// wrapping eyetrack.ErrConfiguration and leaves the tracker unchanged.
func (t *Tracker) UpdateFitParameters(cfg Config) error {
	p, err := buildParts(t.state.Shape, cfg, t.opts.Rand)
	if err != nil {
		return err
	}
	t.cfg = cfg
	t.parts = p
	t.updateMean = cfg.UpdateMeanFrame
	t.state.PupilBox = p.pupilBox
	t.state.CRBox = p.crBox
	t.state.Version++
	eyetrack.Diagf("tracker: fit parameters updated (version %d)", t.state.Version)
	return nil
}

func (t *Tracker) setStage(s Stage) {
	t.state.Stage = s
	eyetrack.Tracef("frame %d: %s", t.state.FrameIndex, s)
}

// ProcessImage runs one frame through the tracker and advances the frame
// index. Not finding a feature is a NoFit result, not an error; errors are
// a frame of the wrong shape or a failed sink write.
func (t *Tracker) ProcessImage(img *frames.Frame) (FrameResult, error) {
	index := t.state.FrameIndex
	res := FrameResult{Index: index}
	if err := img.CheckShape(t.state.Shape); err != nil {
		return res, fmt.Errorf("frame %d: %w", index, err)
	}
	smoothed, err := frames.MedianFilter(img, t.cfg.SmoothingKernelSize)
	if err != nil {
		return res, fmt.Errorf("frame %d: smooth: %w", index, err)
	}

	t.setStage(StageLocatingCR)
	seed := t.parts.cr.Seed(smoothed, t.parts.crBox, t.state.LastCR)
	cr, err := t.parts.cr.Locate(smoothed, seed, t.parts.crBox)
	if err != nil {
		return res, fmt.Errorf("frame %d: %w", index, err)
	}
	if !cr.Found() {
		eyetrack.Diagf("frame %d: cr: %s", index, cr.Reason)
	}

	t.setStage(StageLocatingPupil)
	pupilInput := smoothed
	if t.cfg.RecolorCR && cr.Found() {
		pupilInput = smoothed.Clone()
		fill := ellipse.Scaled(cr.Params, t.cfg.CRRecolorScaleFactor, 1)
		for r, c := range ellipse.Pixels(fill, pupilInput.Shape()) {
			pupilInput.Set(r, c, t.state.LastPupilColor)
		}
	}
	t.smoothed, t.pupilInput = smoothed, pupilInput

	seed = t.parts.pupil.Seed(pupilInput, t.parts.pupilBox, t.state.LastPupil)
	pupil, err := t.parts.pupil.Locate(pupilInput, seed, t.parts.pupilBox)
	if err != nil {
		return res, fmt.Errorf("frame %d: %w", index, err)
	}
	if !pupil.Found() {
		eyetrack.Diagf("frame %d: pupil: %s", index, pupil.Reason)
	}
	if t.cfg.AdaptivePupil {
		t.UpdateLastPupilColor(pupil.Params)
	}

	if t.opts.Sink != nil {
		t.setStage(StageAnnotating)
		out := t.opts.Annotator.Annotate(img, index, cr, pupil)
		if err := t.opts.Sink.Write(out); err != nil {
			return res, fmt.Errorf("frame %d: write annotated frame: %w", index, err)
		}
	}
	if t.opts.Recorder != nil {
		t.opts.Recorder.Record(index, pupil.Params, cr.Params)
	}

	if cr.Found() {
		t.state.LastCR = cr.Params
	}
	if pupil.Found() {
		t.state.LastPupil = pupil.Params
	}
	if t.updateMean {
		if err := t.state.mean.Add(img); err != nil {
			return res, fmt.Errorf("frame %d: %w", index, err)
		}
		t.state.MeanFrames = t.state.mean.Count()
	}
	t.setStage(StageDone)
	t.state.FrameIndex++
	t.state.Version++

	res.CR, res.Pupil, res.PupilInput = cr, pupil, pupilInput
	return res, nil
}

// UpdateLastPupilColor resamples the pupil colour as the mean intensity
// inside params, clamped to [MinPupilValue, MaxPupilValue]. Exactly one
// frame is sampled: the recoloured pupil input when RecolorCR is set,
// otherwise the running mean frame, or the smoothed frame before any
// frame has been folded into the mean. It reports whether a sample was
// taken; NoFit params and ellipses with no pixels in the frame leave the
// colour unchanged.
func (t *Tracker) UpdateLastPupilColor(params eyetrack.EllipseParams) bool {
	if !params.Valid() {
		return false
	}
	var (
		sample func(row, col int) float64
		source ColorSource
	)
	switch {
	case t.cfg.RecolorCR && t.pupilInput != nil:
		img := t.pupilInput
		sample = func(row, col int) float64 { return float64(img.At(row, col)) }
		source = ColorFromRecolor
	case t.state.mean.Count() > 0:
		sample = t.state.mean.At
		source = ColorFromMean
	case t.smoothed != nil:
		img := t.smoothed
		sample = func(row, col int) float64 { return float64(img.At(row, col)) }
		source = ColorFromSmoothed
	default:
		return false
	}

	var values []float64
	for r, c := range ellipse.Pixels(params, t.state.Shape) {
		values = append(values, sample(r, c))
	}
	if len(values) == 0 {
		return false
	}
	v := stat.Mean(values, nil)
	v = math.Min(math.Max(v, float64(t.cfg.MinPupilValue)), float64(t.cfg.MaxPupilValue))
	t.state.LastPupilColor = uint8(math.Round(v))
	t.state.ColorSource = source
	t.state.ColorSamples++
	t.state.Version++
	return true
}

// resetStream clears everything that belongs to a single pass over the
// source.
func (t *Tracker) resetStream(start int) {
	version := t.state.Version
	t.state = newTrackerState(t.state.Shape, t.parts.pupilBox, t.parts.crBox, t.cfg.InitialPupilColor)
	t.state.FrameIndex = start
	t.state.Version = version + 1
	t.smoothed, t.pupilInput = nil, nil
}

// ProcessStream processes the source from frame start to its end and
// returns the per-frame pupil and CR parameters in frame order. A source
// with no frames at or after start yields empty sequences. ctx is checked
// between frames; on cancellation the results so far are returned with
// ctx.Err(). Source and sink errors stop the stream and carry the frame
// index.
//
// When updateMeanFrame is set every processed frame is folded into the
// running mean, and a complete pass from frame 0 replaces the cached
// MeanFrame.
func (t *Tracker) ProcessStream(ctx context.Context, start int, updateMeanFrame bool) (pupil, cr []eyetrack.EllipseParams, err error) {
	start = max(start, 0)
	t.resetStream(start)
	prev := t.updateMean
	t.updateMean = updateMeanFrame
	defer func() {
		t.updateMean = prev
		t.state.Stage = StageIdle
	}()

	pupil = []eyetrack.EllipseParams{}
	cr = []eyetrack.EllipseParams{}
	eyetrack.Opsf("processing stream: %d frames from frame %d", max(t.src.NumFrames()-start, 0), start)

	for f, ferr := range t.src.Frames(start) {
		if ferr != nil {
			err = fmt.Errorf("frame %d: read: %w", t.state.FrameIndex, ferr)
			eyetrack.Opsf("stream stopped: %v", err)
			return pupil, cr, err
		}
		if err = ctx.Err(); err != nil {
			eyetrack.Opsf("stream cancelled at frame %d", t.state.FrameIndex)
			return pupil, cr, err
		}
		res, perr := t.ProcessImage(f)
		if perr != nil {
			eyetrack.Opsf("stream stopped: %v", perr)
			return pupil, cr, perr
		}
		pupil = append(pupil, res.Pupil.Params)
		cr = append(cr, res.CR.Params)
	}

	if updateMeanFrame && start == 0 && t.state.mean.Count() > 0 {
		t.meanFrame = t.state.mean.Frame()
	}
	eyetrack.Opsf("processed %d frames", len(pupil))
	return pupil, cr, nil
}

// MeanFrame returns the average of every frame in the source. It is
// computed on first use and cached until SetSource.
func (t *Tracker) MeanFrame() (*frames.Frame, error) {
	if t.meanFrame != nil {
		return t.meanFrame, nil
	}
	m, err := frames.MeanOf(t.src)
	if err != nil {
		return nil, err
	}
	t.meanFrame = m
	return m, nil
}
