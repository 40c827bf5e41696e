package ellipse

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/banshee-data/eyetrack/internal/config"
	"github.com/banshee-data/eyetrack/internal/eyetrack"
)

// Config holds the RANSAC parameters.
type Config struct {
	Iterations          int     // Random subsets tried per fit
	Threshold           float64 // Inlier distance in pixels
	MinimumPointsForFit int     // Fewer candidates than this is an immediate NoFit
	NumberOfClosePoints int     // Inliers a model needs to be accepted
	Seed                uint64  // Seed for the default random source
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Iterations:          cfg.GetRansacIterations(),
		Threshold:           cfg.GetRansacThreshold(),
		MinimumPointsForFit: cfg.GetMinimumPointsForFit(),
		NumberOfClosePoints: cfg.GetNumberOfClosePoints(),
		Seed:                cfg.GetRansacSeed(),
	}
}

// Validate checks the parameters.
func (c Config) Validate() error {
	if c.Iterations < 1 {
		return fmt.Errorf("%w: ransac iterations must be at least 1, got %d", eyetrack.ErrConfiguration, c.Iterations)
	}
	if !(c.Threshold > 0) {
		return fmt.Errorf("%w: ransac threshold must be positive, got %g", eyetrack.ErrConfiguration, c.Threshold)
	}
	if c.MinimumPointsForFit < minimalSet {
		return fmt.Errorf("%w: minimum_points_for_fit must be at least %d, got %d",
			eyetrack.ErrConfiguration, minimalSet, c.MinimumPointsForFit)
	}
	if c.NumberOfClosePoints < 1 {
		return fmt.Errorf("%w: number_of_close_points must be at least 1, got %d", eyetrack.ErrConfiguration, c.NumberOfClosePoints)
	}
	return nil
}

// NewSource returns the deterministic random source for seed.
func NewSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

// Estimate is the outcome of one robust fit.
type Estimate struct {
	Params       eyetrack.EllipseParams
	Inliers      int     // Close points supporting Params
	MeanResidual float64 // Mean distance of the inliers
}

// RansacFitter fits ellipses to outlier-laden point sets. It owns its
// random source, so a fitter must not be shared between goroutines.
type RansacFitter struct {
	cfg Config
	src rand.Source
}

// NewRansacFitter validates cfg. A nil src uses NewSource(cfg.Seed).
func NewRansacFitter(cfg Config, src rand.Source) (*RansacFitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		src = NewSource(cfg.Seed)
	}
	return &RansacFitter{cfg: cfg, src: src}, nil
}

// Config returns the fitter configuration.
func (f *RansacFitter) Config() Config { return f.cfg }

// Fit returns the best-supported ellipse, or NoFit when there are too few
// points or no model gathers enough close points. NoFit is not an error.
func (f *RansacFitter) Fit(points []eyetrack.Point) eyetrack.EllipseParams {
	return f.Estimate(points).Params
}

// Estimate is Fit with the support statistics of the winning model.
func (f *RansacFitter) Estimate(points []eyetrack.Point) Estimate {
	best := Estimate{Params: eyetrack.NoFit()}
	if len(points) < f.cfg.MinimumPointsForFit || len(points) < minimalSet {
		return best
	}

	idx := make([]int, minimalSet)
	subset := make([]eyetrack.Point, minimalSet)
	inliers := make([]eyetrack.Point, 0, len(points))

	for i := 0; i < f.cfg.Iterations; i++ {
		sampleuv.WithoutReplacement(idx, len(points), f.src)
		for j, k := range idx {
			subset[j] = points[k]
		}
		model, err := FitDirect(subset)
		if err != nil {
			continue
		}
		inliers = f.closePoints(model, points, inliers[:0])
		if len(inliers) < f.cfg.NumberOfClosePoints {
			continue
		}

		candidate := f.score(model, inliers)
		if refit, err := FitDirect(inliers); err == nil {
			if r := f.score(refit, f.closePoints(refit, points, nil)); r.Inliers >= f.cfg.NumberOfClosePoints && !better(candidate, r) {
				candidate = r
			}
		}
		if better(candidate, best) {
			best = candidate
		}
	}
	return best
}

func (f *RansacFitter) score(model eyetrack.EllipseParams, inliers []eyetrack.Point) Estimate {
	residuals := make([]float64, len(inliers))
	for i, p := range inliers {
		residuals[i] = Distance(model, p)
	}
	return Estimate{Params: model, Inliers: len(inliers), MeanResidual: stat.Mean(residuals, nil)}
}

func (f *RansacFitter) closePoints(model eyetrack.EllipseParams, points, dst []eyetrack.Point) []eyetrack.Point {
	for _, p := range points {
		if Distance(model, p) < f.cfg.Threshold {
			dst = append(dst, p)
		}
	}
	return dst
}

// better prefers more inliers, then a tighter fit.
func better(a, b Estimate) bool {
	if a.Inliers != b.Inliers {
		return a.Inliers > b.Inliers
	}
	return a.MeanResidual < b.MeanResidual
}
