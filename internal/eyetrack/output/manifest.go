package output

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/eyetrack/internal/config"
	"github.com/banshee-data/eyetrack/internal/eyetrack"
	"github.com/banshee-data/eyetrack/internal/fsutil"
	"github.com/banshee-data/eyetrack/internal/timeutil"
	"github.com/banshee-data/eyetrack/internal/version"
)

// FeatureStats counts one feature's fits over a run.
type FeatureStats struct {
	Frames int `json:"frames"`
	Found  int `json:"found"`
}

// CountFound tallies valid fits.
func CountFound(params []eyetrack.EllipseParams) FeatureStats {
	s := FeatureStats{Frames: len(params)}
	for _, p := range params {
		if p.Valid() {
			s.Found++
		}
	}
	return s
}

// Manifest describes one run: what was read, how it was configured and
// where the artifacts went. Paths are as written, usually relative to the
// working directory.
type Manifest struct {
	RunID      string               `json:"run_id"`
	Version    string               `json:"version"`
	GitSHA     string               `json:"git_sha"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Seconds    float64              `json:"elapsed_seconds"`
	Input      string               `json:"input"`
	StartFrame int                  `json:"start_frame"`
	FrameShape []int                `json:"frame_shape"`
	Config     *config.TuningConfig `json:"config"`
	Pupil      FeatureStats         `json:"pupil"`
	CR         FeatureStats         `json:"cr"`
	Outputs    map[string]string    `json:"outputs"`
	Error      string               `json:"error,omitempty"`

	clock timeutil.Clock
}

// NewManifest starts a manifest with a fresh run ID and the resolved
// configuration. A nil clock uses the wall clock.
func NewManifest(input string, cfg *config.TuningConfig, clock timeutil.Clock) *Manifest {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Manifest{
		RunID:     uuid.NewString(),
		Version:   version.Version,
		GitSHA:    version.GitSHA,
		StartedAt: clock.Now().UTC(),
		Input:     input,
		Config:    cfg.Resolved(),
		Outputs:   make(map[string]string),
		clock:     clock,
	}
}

// AddOutput records an artifact path under key.
func (m *Manifest) AddOutput(key, path string) {
	m.Outputs[key] = path
}

// Finish stamps the end time and the per-feature counts.
func (m *Manifest) Finish(shape eyetrack.Shape, pupil, cr []eyetrack.EllipseParams, runErr error) {
	m.FinishedAt = m.now()
	m.Seconds = m.FinishedAt.Sub(m.StartedAt).Seconds()
	m.FrameShape = []int{shape.Rows, shape.Cols}
	m.Pupil = CountFound(pupil)
	m.CR = CountFound(cr)
	if runErr != nil {
		m.Error = runErr.Error()
	}
}

func (m *Manifest) now() time.Time {
	if m.clock == nil {
		return time.Now().UTC()
	}
	return m.clock.Now().UTC()
}

// Write stores the manifest as indented JSON at path.
func (m *Manifest) Write(fsys fsutil.FileSystem, path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := fsys.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest written by Write.
func ReadManifest(fsys fsutil.FileSystem, path string) (*Manifest, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
