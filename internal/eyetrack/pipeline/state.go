package pipeline

import (
	"github.com/banshee-data/eyetrack/internal/eyetrack"
	"github.com/banshee-data/eyetrack/internal/eyetrack/frames"
)

// Stage is where a Tracker is within the current frame.
type Stage int

const (
	// StageIdle is between streams; ProcessStream returns to it.
	StageIdle Stage = iota
	// StageLocatingCR is searching for the corneal reflection.
	StageLocatingCR
	// StageLocatingPupil is searching for the pupil.
	StageLocatingPupil
	// StageAnnotating is rendering the frame to the sink.
	StageAnnotating
	// StageDone means the last frame's results are in the state.
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageLocatingCR:
		return "locating_cr"
	case StageLocatingPupil:
		return "locating_pupil"
	case StageAnnotating:
		return "annotating"
	case StageDone:
		return "done"
	}
	return "unknown"
}

// ColorSource names the frame the last pupil colour was sampled from.
type ColorSource string

const (
	// ColorFromInitial is the configured initial_pupil_color, before any sample.
	ColorFromInitial ColorSource = "initial"
	// ColorFromRecolor is the smoothed frame with the CR filled in.
	ColorFromRecolor ColorSource = "recolored"
	// ColorFromMean is the running mean frame.
	ColorFromMean ColorSource = "mean"
	// ColorFromSmoothed is the smoothed frame, used before the mean has any frames.
	ColorFromSmoothed ColorSource = "smoothed"
)

// TrackerState is the state carried from one frame to the next. Version
// increases on every change so callers can tell whether a snapshot is
// stale.
type TrackerState struct {
	Version    uint64
	Shape      eyetrack.Shape
	PupilBox   eyetrack.BoundingBox
	CRBox      eyetrack.BoundingBox
	FrameIndex int
	Stage      Stage

	LastPupilColor uint8
	ColorSource    ColorSource
	ColorSamples   int

	// Last valid fits; NoFit until the feature has been found once.
	LastPupil eyetrack.EllipseParams
	LastCR    eyetrack.EllipseParams

	// Frames folded into the running mean.
	MeanFrames int

	mean *frames.MeanAccumulator
}

func newTrackerState(shape eyetrack.Shape, pupilBox, crBox eyetrack.BoundingBox, color uint8) TrackerState {
	return TrackerState{
		Shape:          shape,
		PupilBox:       pupilBox,
		CRBox:          crBox,
		LastPupilColor: color,
		ColorSource:    ColorFromInitial,
		LastPupil:      eyetrack.NoFit(),
		LastCR:         eyetrack.NoFit(),
		mean:           frames.NewMeanAccumulator(shape),
	}
}
