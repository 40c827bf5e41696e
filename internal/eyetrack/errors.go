package eyetrack

import "errors"

var (
	// ErrConfiguration marks invalid tuning: threshold windows that do not
	// fit the ray, non-positive counts, out-of-range factors. It is fatal
	// at construction or update time and never retried.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrUnknownFeature is returned when a FeatureKind outside the closed
	// set {Pupil, CR} reaches an operation.
	ErrUnknownFeature = errors.New("unknown feature kind")

	// ErrNoCrossing is returned for a ray whose samples never cross the
	// threshold beyond the baseline window.
	ErrNoCrossing = errors.New("no threshold crossing")

	// ErrInvalidBoundingBox marks a box that is empty, inverted or outside
	// the frame.
	ErrInvalidBoundingBox = errors.New("invalid bounding box")
)
