package starburst

import (
	"fmt"

	"github.com/banshee-data/eyetrack/internal/config"
	"github.com/banshee-data/eyetrack/internal/eyetrack"
)

// RayFailurePolicy decides what a ray without a threshold crossing means
// for the whole feature in that frame.
type RayFailurePolicy int

const (
	// DropRay discards the ray; the frame fails only if too few points
	// remain for the ellipse fit.
	DropRay RayFailurePolicy = iota
	// AbortFrame makes any failed ray a NoFit for the feature.
	AbortFrame
)

func (p RayFailurePolicy) String() string {
	if p == AbortFrame {
		return "abort"
	}
	return "drop"
}

// ParseRayFailurePolicy maps "drop" and "abort" to policies.
func ParseRayFailurePolicy(s string) (RayFailurePolicy, error) {
	switch s {
	case "", "drop":
		return DropRay, nil
	case "abort":
		return AbortFrame, nil
	}
	return DropRay, fmt.Errorf("%w: ray failure policy %q (want drop or abort)", eyetrack.ErrConfiguration, s)
}

// FeatureParams carries everything the generator needs to know about one
// feature kind.
type FeatureParams struct {
	Factor   float64           // Multiplier on the baseline spread
	Pixels   int               // Baseline window length at the start of each ray
	Crossing eyetrack.Crossing // Direction the ray must cross the threshold
	Policy   RayFailurePolicy  // What a failed ray means for the frame

	// Optional clamp applied to the computed threshold.
	ClipThreshold bool
	ClipMin       float64
	ClipMax       float64
}

// Config holds the starburst parameters.
type Config struct {
	NRays       int // Number of rays cast from the seed
	IndexLength int // Samples per ray before clipping to the frame
	Pupil       FeatureParams
	CR          FeatureParams
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) (Config, error) {
	pupilPolicy, err := ParseRayFailurePolicy(cfg.GetPupilRayFailurePolicy())
	if err != nil {
		return Config{}, err
	}
	crPolicy, err := ParseRayFailurePolicy(cfg.GetCRRayFailurePolicy())
	if err != nil {
		return Config{}, err
	}
	return Config{
		NRays:       cfg.GetNRays(),
		IndexLength: cfg.GetIndexLength(),
		Pupil: FeatureParams{
			Factor:        cfg.GetPupilThresholdFactor(),
			Pixels:        cfg.GetPupilThresholdPixels(),
			Crossing:      eyetrack.Pupil.DefaultCrossing(),
			Policy:        pupilPolicy,
			ClipThreshold: cfg.GetClipPupilThreshold(),
			ClipMin:       float64(cfg.GetMinPupilValue()),
			ClipMax:       float64(cfg.GetMaxPupilValue()),
		},
		CR: FeatureParams{
			Factor:   cfg.GetCRThresholdFactor(),
			Pixels:   cfg.GetCRThresholdPixels(),
			Crossing: eyetrack.CR.DefaultCrossing(),
			Policy:   crPolicy,
		},
	}, nil
}

// Feature returns the parameters for kind.
func (c Config) Feature(kind eyetrack.FeatureKind) (FeatureParams, error) {
	switch kind {
	case eyetrack.Pupil:
		return c.Pupil, nil
	case eyetrack.CR:
		return c.CR, nil
	}
	return FeatureParams{}, fmt.Errorf("%w: %v", eyetrack.ErrUnknownFeature, kind)
}

// Validate checks ray geometry and per-feature windows.
func (c Config) Validate() error {
	if c.NRays < 1 {
		return fmt.Errorf("%w: n_rays must be at least 1, got %d", eyetrack.ErrConfiguration, c.NRays)
	}
	if c.IndexLength < 2 {
		return fmt.Errorf("%w: index_length must be at least 2, got %d", eyetrack.ErrConfiguration, c.IndexLength)
	}
	for _, kind := range eyetrack.FeatureKinds {
		p, _ := c.Feature(kind)
		if p.Pixels < 1 || p.Pixels > c.IndexLength-1 {
			return fmt.Errorf("%w: %s_threshold_pixels must be in [1, %d], got %d",
				eyetrack.ErrConfiguration, kind, c.IndexLength-1, p.Pixels)
		}
		if p.Crossing != eyetrack.CrossAbove && p.Crossing != eyetrack.CrossBelow {
			return fmt.Errorf("%w: %s crossing direction %d", eyetrack.ErrConfiguration, kind, p.Crossing)
		}
		if p.ClipThreshold && p.ClipMin > p.ClipMax {
			return fmt.Errorf("%w: %s threshold clip range [%g, %g] is inverted",
				eyetrack.ErrConfiguration, kind, p.ClipMin, p.ClipMax)
		}
	}
	return nil
}
