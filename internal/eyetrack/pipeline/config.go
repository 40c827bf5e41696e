package pipeline

import (
	"fmt"

	"github.com/banshee-data/eyetrack/internal/config"
	"github.com/banshee-data/eyetrack/internal/eyetrack"
	"github.com/banshee-data/eyetrack/internal/eyetrack/ellipse"
	"github.com/banshee-data/eyetrack/internal/eyetrack/starburst"
)

// Config holds everything a Tracker needs besides its collaborators.
type Config struct {
	Starburst starburst.Config
	Ransac    ellipse.Config

	// Zero boxes are derived from the frame shape.
	PupilBox eyetrack.BoundingBox
	CRBox    eyetrack.BoundingBox

	RecolorCR            bool    // fill the CR with the pupil colour before pupil search
	CRRecolorScaleFactor float64 // CR ellipse scale for the fill, plus one pixel
	AdaptivePupil        bool    // resample the pupil colour after each frame
	InitialPupilColor    uint8
	MinPupilValue        uint8
	MaxPupilValue        uint8

	SmoothingKernelSize int
	CorrelationSeed     bool
	PupilMaskRadius     int
	CRMaskRadius        int

	UpdateMeanFrame bool
}

// DefaultTrackerConfig returns the configuration built from the defaults
// file. It panics if the file cannot be found, like MustLoadDefaultConfig.
func DefaultTrackerConfig() Config {
	cfg, err := TrackerConfigFromTuning(config.MustLoadDefaultConfig())
	if err != nil {
		panic(fmt.Sprintf("default tracker config: %v", err))
	}
	return cfg
}

// TrackerConfigFromTuning builds a Config from a loaded TuningConfig.
func TrackerConfigFromTuning(cfg *config.TuningConfig) (Config, error) {
	sb, err := starburst.ConfigFromTuning(cfg)
	if err != nil {
		return Config{}, err
	}
	pupilBox, err := eyetrack.BoundingBoxFromSlice(cfg.GetPupilBoundingBox())
	if err != nil {
		return Config{}, fmt.Errorf("%w: pupil_bounding_box: %w", eyetrack.ErrConfiguration, err)
	}
	crBox, err := eyetrack.BoundingBoxFromSlice(cfg.GetCRBoundingBox())
	if err != nil {
		return Config{}, fmt.Errorf("%w: cr_bounding_box: %w", eyetrack.ErrConfiguration, err)
	}
	return Config{
		Starburst:            sb,
		Ransac:               ellipse.ConfigFromTuning(cfg),
		PupilBox:             pupilBox,
		CRBox:                crBox,
		RecolorCR:            cfg.GetRecolorCR(),
		CRRecolorScaleFactor: cfg.GetCRRecolorScaleFactor(),
		AdaptivePupil:        cfg.GetAdaptivePupil(),
		InitialPupilColor:    clampByte(cfg.GetInitialPupilColor()),
		MinPupilValue:        clampByte(cfg.GetMinPupilValue()),
		MaxPupilValue:        clampByte(cfg.GetMaxPupilValue()),
		SmoothingKernelSize:  cfg.GetSmoothingKernelSize(),
		CorrelationSeed:      cfg.GetCorrelationSeed(),
		PupilMaskRadius:      cfg.GetPupilMaskRadius(),
		CRMaskRadius:         cfg.GetCRMaskRadius(),
		UpdateMeanFrame:      cfg.GetUpdateMeanFrame(),
	}, nil
}

// Validate checks the parts of the configuration that do not depend on
// the frame shape. Boxes are checked against the shape when a source is
// attached.
func (c Config) Validate() error {
	if err := c.Starburst.Validate(); err != nil {
		return err
	}
	if err := c.Ransac.Validate(); err != nil {
		return err
	}
	if c.CRRecolorScaleFactor <= 0 {
		return fmt.Errorf("%w: cr_recolor_scale_factor must be positive, got %g", eyetrack.ErrConfiguration, c.CRRecolorScaleFactor)
	}
	if c.MinPupilValue > c.MaxPupilValue {
		return fmt.Errorf("%w: min_pupil_value %d above max_pupil_value %d", eyetrack.ErrConfiguration, c.MinPupilValue, c.MaxPupilValue)
	}
	if c.SmoothingKernelSize < 0 {
		return fmt.Errorf("%w: smoothing_kernel_size must be non-negative, got %d", eyetrack.ErrConfiguration, c.SmoothingKernelSize)
	}
	if c.CorrelationSeed && (c.PupilMaskRadius < 1 || c.CRMaskRadius < 1) {
		return fmt.Errorf("%w: mask radii must be at least 1 with correlation_seed, got pupil %d, cr %d",
			eyetrack.ErrConfiguration, c.PupilMaskRadius, c.CRMaskRadius)
	}
	return nil
}

// box returns the configured box for kind.
func (c Config) box(kind eyetrack.FeatureKind) eyetrack.BoundingBox {
	if kind == eyetrack.CR {
		return c.CRBox
	}
	return c.PupilBox
}

// maskRadius returns the seed template half-size for kind.
func (c Config) maskRadius(kind eyetrack.FeatureKind) int {
	if kind == eyetrack.CR {
		return c.CRMaskRadius
	}
	return c.PupilMaskRadius
}

func clampByte(v int) uint8 {
	return uint8(min(max(v, 0), 255))
}
