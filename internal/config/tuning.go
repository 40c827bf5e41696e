package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// Fields are pointers so a partial JSON file only overrides what it names;
// the Get* methods supply defaults for the rest.
type TuningConfig struct {
	// Starburst params
	NRays                 *int     `json:"n_rays,omitempty"`
	IndexLength           *int     `json:"index_length,omitempty"`
	PupilThresholdFactor  *float64 `json:"pupil_threshold_factor,omitempty"`
	CRThresholdFactor     *float64 `json:"cr_threshold_factor,omitempty"`
	PupilThresholdPixels  *int     `json:"pupil_threshold_pixels,omitempty"`
	CRThresholdPixels     *int     `json:"cr_threshold_pixels,omitempty"`
	PupilRayFailurePolicy *string  `json:"pupil_ray_failure_policy,omitempty"` // "drop" or "abort"
	CRRayFailurePolicy    *string  `json:"cr_ray_failure_policy,omitempty"`

	// RANSAC params
	RansacIterations    *int     `json:"ransac_iterations,omitempty"`
	RansacThreshold     *float64 `json:"ransac_threshold,omitempty"` // pixels
	MinimumPointsForFit *int     `json:"minimum_points_for_fit,omitempty"`
	NumberOfClosePoints *int     `json:"number_of_close_points,omitempty"`
	RansacSeed          *uint64  `json:"ransac_seed,omitempty"`

	// Bounding boxes: [row_min, row_max, col_min, col_max], empty derives
	// from the frame shape.
	PupilBoundingBox []int `json:"pupil_bounding_box,omitempty"`
	CRBoundingBox    []int `json:"cr_bounding_box,omitempty"`

	// Eye params
	ClipPupilThreshold   *bool    `json:"clip_pupil_threshold,omitempty"`
	MinPupilValue        *int     `json:"min_pupil_value,omitempty"`
	MaxPupilValue        *int     `json:"max_pupil_value,omitempty"`
	RecolorCR            *bool    `json:"recolor_cr,omitempty"`
	CRRecolorScaleFactor *float64 `json:"cr_recolor_scale_factor,omitempty"`
	AdaptivePupil        *bool    `json:"adaptive_pupil,omitempty"`
	InitialPupilColor    *int     `json:"initial_pupil_color,omitempty"`
	SmoothingKernelSize  *int     `json:"smoothing_kernel_size,omitempty"`
	CorrelationSeed      *bool    `json:"correlation_seed,omitempty"`
	PupilMaskRadius      *int     `json:"pupil_mask_radius,omitempty"`
	CRMaskRadius         *int     `json:"cr_mask_radius,omitempty"`

	// Stream params
	UpdateMeanFrame  *bool `json:"update_mean_frame,omitempty"`
	GenerateQCOutput *bool `json:"generate_qc_output,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseTuningConfig(data)
}

// ParseTuningConfig decodes and validates JSON tuning data.
func ParseTuningConfig(data []byte) (*TuningConfig, error) {
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/eyetrack/pipeline/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Resolved returns a copy with every field set, either from c or from the
// default. It is what the output manifest echoes.
func (c *TuningConfig) Resolved() *TuningConfig {
	policy := func(s string) *string { return &s }
	return &TuningConfig{
		NRays:                 ptrInt(c.GetNRays()),
		IndexLength:           ptrInt(c.GetIndexLength()),
		PupilThresholdFactor:  ptrFloat64(c.GetPupilThresholdFactor()),
		CRThresholdFactor:     ptrFloat64(c.GetCRThresholdFactor()),
		PupilThresholdPixels:  ptrInt(c.GetPupilThresholdPixels()),
		CRThresholdPixels:     ptrInt(c.GetCRThresholdPixels()),
		PupilRayFailurePolicy: policy(c.GetPupilRayFailurePolicy()),
		CRRayFailurePolicy:    policy(c.GetCRRayFailurePolicy()),
		RansacIterations:      ptrInt(c.GetRansacIterations()),
		RansacThreshold:       ptrFloat64(c.GetRansacThreshold()),
		MinimumPointsForFit:   ptrInt(c.GetMinimumPointsForFit()),
		NumberOfClosePoints:   ptrInt(c.GetNumberOfClosePoints()),
		RansacSeed:            ptrUint64(c.GetRansacSeed()),
		PupilBoundingBox:      c.GetPupilBoundingBox(),
		CRBoundingBox:         c.GetCRBoundingBox(),
		ClipPupilThreshold:    ptrBool(c.GetClipPupilThreshold()),
		MinPupilValue:         ptrInt(c.GetMinPupilValue()),
		MaxPupilValue:         ptrInt(c.GetMaxPupilValue()),
		RecolorCR:             ptrBool(c.GetRecolorCR()),
		CRRecolorScaleFactor:  ptrFloat64(c.GetCRRecolorScaleFactor()),
		AdaptivePupil:         ptrBool(c.GetAdaptivePupil()),
		InitialPupilColor:     ptrInt(c.GetInitialPupilColor()),
		SmoothingKernelSize:   ptrInt(c.GetSmoothingKernelSize()),
		CorrelationSeed:       ptrBool(c.GetCorrelationSeed()),
		PupilMaskRadius:       ptrInt(c.GetPupilMaskRadius()),
		CRMaskRadius:          ptrInt(c.GetCRMaskRadius()),
		UpdateMeanFrame:       ptrBool(c.GetUpdateMeanFrame()),
		GenerateQCOutput:      ptrBool(c.GetGenerateQCOutput()),
	}
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// Validate checks that the configuration values are valid. Cross-field
// constraints that depend on the frame shape are checked by the packages
// that consume the values.
func (c *TuningConfig) Validate() error {
	positive := []struct {
		name string
		v    *int
	}{
		{"n_rays", c.NRays},
		{"index_length", c.IndexLength},
		{"pupil_threshold_pixels", c.PupilThresholdPixels},
		{"cr_threshold_pixels", c.CRThresholdPixels},
		{"ransac_iterations", c.RansacIterations},
		{"minimum_points_for_fit", c.MinimumPointsForFit},
		{"number_of_close_points", c.NumberOfClosePoints},
		{"pupil_mask_radius", c.PupilMaskRadius},
		{"cr_mask_radius", c.CRMaskRadius},
	}
	for _, p := range positive {
		if p.v != nil && *p.v < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", p.name, *p.v)
		}
	}

	if px := c.GetPupilThresholdPixels(); px > c.GetIndexLength()-1 {
		return fmt.Errorf("pupil_threshold_pixels %d must be at most index_length-1 (%d)", px, c.GetIndexLength()-1)
	}
	if px := c.GetCRThresholdPixels(); px > c.GetIndexLength()-1 {
		return fmt.Errorf("cr_threshold_pixels %d must be at most index_length-1 (%d)", px, c.GetIndexLength()-1)
	}
	if c.RansacThreshold != nil && *c.RansacThreshold <= 0 {
		return fmt.Errorf("ransac_threshold must be positive, got %f", *c.RansacThreshold)
	}
	if c.GetMinimumPointsForFit() < 5 {
		return fmt.Errorf("minimum_points_for_fit must be at least 5 to determine an ellipse, got %d", c.GetMinimumPointsForFit())
	}

	for name, box := range map[string][]int{
		"pupil_bounding_box": c.PupilBoundingBox,
		"cr_bounding_box":    c.CRBoundingBox,
	} {
		if len(box) != 0 && len(box) != 4 {
			return fmt.Errorf("%s must have 4 values or be empty, got %d", name, len(box))
		}
	}

	for name, v := range map[string]*int{
		"min_pupil_value":     c.MinPupilValue,
		"max_pupil_value":     c.MaxPupilValue,
		"initial_pupil_color": c.InitialPupilColor,
	} {
		if v != nil && (*v < 0 || *v > 255) {
			return fmt.Errorf("%s must be between 0 and 255, got %d", name, *v)
		}
	}
	if c.GetMinPupilValue() > c.GetMaxPupilValue() {
		return fmt.Errorf("min_pupil_value %d exceeds max_pupil_value %d", c.GetMinPupilValue(), c.GetMaxPupilValue())
	}

	if c.CRRecolorScaleFactor != nil && *c.CRRecolorScaleFactor <= 0 {
		return fmt.Errorf("cr_recolor_scale_factor must be positive, got %f", *c.CRRecolorScaleFactor)
	}
	if c.SmoothingKernelSize != nil && *c.SmoothingKernelSize < 0 {
		return fmt.Errorf("smoothing_kernel_size must be non-negative, got %d", *c.SmoothingKernelSize)
	}

	for name, v := range map[string]*string{
		"pupil_ray_failure_policy": c.PupilRayFailurePolicy,
		"cr_ray_failure_policy":    c.CRRayFailurePolicy,
	} {
		if v != nil && *v != "" && *v != "drop" && *v != "abort" {
			return fmt.Errorf("%s must be \"drop\" or \"abort\", got %q", name, *v)
		}
	}
	return nil
}

// GetNRays returns the n_rays value or the default.
func (c *TuningConfig) GetNRays() int {
	if c.NRays == nil {
		return 20 // default
	}
	return *c.NRays
}

// GetIndexLength returns the index_length value or the default.
func (c *TuningConfig) GetIndexLength() int {
	if c.IndexLength == nil {
		return 100 // default
	}
	return *c.IndexLength
}

// GetPupilThresholdFactor returns the pupil_threshold_factor value or the default.
func (c *TuningConfig) GetPupilThresholdFactor() float64 {
	if c.PupilThresholdFactor == nil {
		return 0.0 // default
	}
	return *c.PupilThresholdFactor
}

// GetCRThresholdFactor returns the cr_threshold_factor value or the default.
func (c *TuningConfig) GetCRThresholdFactor() float64 {
	if c.CRThresholdFactor == nil {
		return 0.0 // default
	}
	return *c.CRThresholdFactor
}

// GetPupilThresholdPixels returns the pupil_threshold_pixels value or the default.
func (c *TuningConfig) GetPupilThresholdPixels() int {
	if c.PupilThresholdPixels == nil {
		return 10 // default
	}
	return *c.PupilThresholdPixels
}

// GetCRThresholdPixels returns the cr_threshold_pixels value or the default.
func (c *TuningConfig) GetCRThresholdPixels() int {
	if c.CRThresholdPixels == nil {
		return 5 // default
	}
	return *c.CRThresholdPixels
}

// GetPupilRayFailurePolicy returns the pupil_ray_failure_policy value or the default.
func (c *TuningConfig) GetPupilRayFailurePolicy() string {
	if c.PupilRayFailurePolicy == nil || *c.PupilRayFailurePolicy == "" {
		return "drop" // default
	}
	return *c.PupilRayFailurePolicy
}

// GetCRRayFailurePolicy returns the cr_ray_failure_policy value or the default.
func (c *TuningConfig) GetCRRayFailurePolicy() string {
	if c.CRRayFailurePolicy == nil || *c.CRRayFailurePolicy == "" {
		return "drop" // default
	}
	return *c.CRRayFailurePolicy
}

// GetRansacIterations returns the ransac_iterations value or the default.
func (c *TuningConfig) GetRansacIterations() int {
	if c.RansacIterations == nil {
		return 50 // default
	}
	return *c.RansacIterations
}

// GetRansacThreshold returns the ransac_threshold value or the default.
func (c *TuningConfig) GetRansacThreshold() float64 {
	if c.RansacThreshold == nil {
		return 1.0 // default
	}
	return *c.RansacThreshold
}

// GetMinimumPointsForFit returns the minimum_points_for_fit value or the default.
func (c *TuningConfig) GetMinimumPointsForFit() int {
	if c.MinimumPointsForFit == nil {
		return 10 // default
	}
	return *c.MinimumPointsForFit
}

// GetNumberOfClosePoints returns the number_of_close_points value or the default.
func (c *TuningConfig) GetNumberOfClosePoints() int {
	if c.NumberOfClosePoints == nil {
		return 8 // default
	}
	return *c.NumberOfClosePoints
}

// GetRansacSeed returns the ransac_seed value or the default.
func (c *TuningConfig) GetRansacSeed() uint64 {
	if c.RansacSeed == nil {
		return 1 // default
	}
	return *c.RansacSeed
}

// GetPupilBoundingBox returns the pupil box, or nil to derive it.
func (c *TuningConfig) GetPupilBoundingBox() []int {
	return c.PupilBoundingBox
}

// GetCRBoundingBox returns the CR box, or nil to derive it.
func (c *TuningConfig) GetCRBoundingBox() []int {
	return c.CRBoundingBox
}

// GetClipPupilThreshold returns the clip_pupil_threshold value or the default.
func (c *TuningConfig) GetClipPupilThreshold() bool {
	if c.ClipPupilThreshold == nil {
		return false // default
	}
	return *c.ClipPupilThreshold
}

// GetMinPupilValue returns the min_pupil_value value or the default.
func (c *TuningConfig) GetMinPupilValue() int {
	if c.MinPupilValue == nil {
		return 0 // default
	}
	return *c.MinPupilValue
}

// GetMaxPupilValue returns the max_pupil_value value or the default.
func (c *TuningConfig) GetMaxPupilValue() int {
	if c.MaxPupilValue == nil {
		return 30 // default
	}
	return *c.MaxPupilValue
}

// GetRecolorCR returns the recolor_cr value or the default.
func (c *TuningConfig) GetRecolorCR() bool {
	if c.RecolorCR == nil {
		return true // default
	}
	return *c.RecolorCR
}

// GetCRRecolorScaleFactor returns the cr_recolor_scale_factor value or the default.
func (c *TuningConfig) GetCRRecolorScaleFactor() float64 {
	if c.CRRecolorScaleFactor == nil {
		return 1.7 // default
	}
	return *c.CRRecolorScaleFactor
}

// GetAdaptivePupil returns the adaptive_pupil value or the default.
func (c *TuningConfig) GetAdaptivePupil() bool {
	if c.AdaptivePupil == nil {
		return true // default
	}
	return *c.AdaptivePupil
}

// GetInitialPupilColor returns the initial_pupil_color value or the default.
func (c *TuningConfig) GetInitialPupilColor() int {
	if c.InitialPupilColor == nil {
		return 0 // default
	}
	return *c.InitialPupilColor
}

// GetSmoothingKernelSize returns the smoothing_kernel_size value or the default.
func (c *TuningConfig) GetSmoothingKernelSize() int {
	if c.SmoothingKernelSize == nil {
		return 7 // default
	}
	return *c.SmoothingKernelSize
}

// GetCorrelationSeed returns the correlation_seed value or the default.
func (c *TuningConfig) GetCorrelationSeed() bool {
	if c.CorrelationSeed == nil {
		return true // default
	}
	return *c.CorrelationSeed
}

// GetPupilMaskRadius returns the pupil_mask_radius value or the default.
func (c *TuningConfig) GetPupilMaskRadius() int {
	if c.PupilMaskRadius == nil {
		return 40 // default
	}
	return *c.PupilMaskRadius
}

// GetCRMaskRadius returns the cr_mask_radius value or the default.
func (c *TuningConfig) GetCRMaskRadius() int {
	if c.CRMaskRadius == nil {
		return 10 // default
	}
	return *c.CRMaskRadius
}

// GetUpdateMeanFrame returns the update_mean_frame value or the default.
func (c *TuningConfig) GetUpdateMeanFrame() bool {
	if c.UpdateMeanFrame == nil {
		return true // default
	}
	return *c.UpdateMeanFrame
}

// GetGenerateQCOutput returns the generate_qc_output value or the default.
func (c *TuningConfig) GetGenerateQCOutput() bool {
	if c.GenerateQCOutput == nil {
		return false // default
	}
	return *c.GenerateQCOutput
}
