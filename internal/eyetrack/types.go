package eyetrack

import (
	"fmt"
	"math"
)

// Shape is the size of a frame in pixels.
type Shape struct {
	Rows int
	Cols int
}

// Empty reports whether the shape has no pixels.
func (s Shape) Empty() bool {
	return s.Rows <= 0 || s.Cols <= 0
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%d", s.Rows, s.Cols)
}

// Point is a sub-pixel image location. Row grows downwards, Col to the right.
type Point struct {
	Row float64
	Col float64
}

// FeatureKind is the closed set of features the tracker locates.
type FeatureKind int

const (
	// Pupil is the dark disc at the centre of the eye.
	Pupil FeatureKind = iota
	// CR is the corneal reflection, a bright glint on the cornea.
	CR
)

// FeatureKinds lists every valid FeatureKind in processing order.
var FeatureKinds = []FeatureKind{CR, Pupil}

// Valid reports whether k is one of the defined kinds.
func (k FeatureKind) Valid() bool {
	return k == Pupil || k == CR
}

func (k FeatureKind) String() string {
	switch k {
	case Pupil:
		return "pupil"
	case CR:
		return "cr"
	default:
		return fmt.Sprintf("FeatureKind(%d)", int(k))
	}
}

// ParseFeatureKind maps the configuration tags "pupil" and "cr" to kinds.
func ParseFeatureKind(s string) (FeatureKind, error) {
	switch s {
	case "pupil":
		return Pupil, nil
	case "cr":
		return CR, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFeature, s)
}

// Crossing selects which way a ray sample must cross the threshold.
type Crossing int

const (
	// CrossAbove finds the first sample greater than the threshold
	// (rays leaving the dark pupil).
	CrossAbove Crossing = iota
	// CrossBelow finds the first sample less than the threshold
	// (rays leaving the bright corneal reflection).
	CrossBelow
)

// DefaultCrossing returns the crossing direction a feature uses.
func (k FeatureKind) DefaultCrossing() Crossing {
	if k == CR {
		return CrossBelow
	}
	return CrossAbove
}

// EllipseParams describes a fitted ellipse. SemiA is the semi-axis along
// Angle (radians, measured from the column axis towards the row axis),
// SemiB the perpendicular one. A missing fit is all NaN, never partial.
type EllipseParams struct {
	CenterRow float64
	CenterCol float64
	SemiA     float64
	SemiB     float64
	Angle     float64
}

// NoFit returns the all-NaN "feature not found" parameters.
func NoFit() EllipseParams {
	nan := math.NaN()
	return EllipseParams{CenterRow: nan, CenterCol: nan, SemiA: nan, SemiB: nan, Angle: nan}
}

// Valid reports whether every parameter is finite.
func (e EllipseParams) Valid() bool {
	for _, v := range e.Array() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Center returns the ellipse centre.
func (e EllipseParams) Center() Point {
	return Point{Row: e.CenterRow, Col: e.CenterCol}
}

// Array returns (center_row, center_col, a, b, rotation).
func (e EllipseParams) Array() [5]float64 {
	return [5]float64{e.CenterRow, e.CenterCol, e.SemiA, e.SemiB, e.Angle}
}

// BoundingBox constrains where a feature may lie. Ranges are half-open:
// RowMin <= row < RowMax, ColMin <= col < ColMax. The zero box means
// "derive from the frame shape".
type BoundingBox struct {
	RowMin int
	RowMax int
	ColMin int
	ColMax int
}

// defaultBoxCrop is the fraction of each dimension trimmed from both edges
// by DefaultBoundingBox.
const defaultBoxCrop = 0.1

// DefaultBoundingBox returns a centred box covering the middle 80% of each
// dimension of shape. An empty shape yields the zero box.
func DefaultBoundingBox(shape Shape) BoundingBox {
	if shape.Empty() {
		return BoundingBox{}
	}
	rowCrop := int(float64(shape.Rows) * defaultBoxCrop)
	colCrop := int(float64(shape.Cols) * defaultBoxCrop)
	return BoundingBox{
		RowMin: rowCrop,
		RowMax: shape.Rows - rowCrop,
		ColMin: colCrop,
		ColMax: shape.Cols - colCrop,
	}
}

// BoundingBoxFromSlice converts a JSON-style [row_min, row_max, col_min,
// col_max] slice. An empty slice yields the zero box.
func BoundingBoxFromSlice(v []int) (BoundingBox, error) {
	switch len(v) {
	case 0:
		return BoundingBox{}, nil
	case 4:
		return BoundingBox{RowMin: v[0], RowMax: v[1], ColMin: v[2], ColMax: v[3]}, nil
	}
	return BoundingBox{}, fmt.Errorf("%w: want 4 values, got %d", ErrInvalidBoundingBox, len(v))
}

// IsZero reports whether b is the "derive from shape" box.
func (b BoundingBox) IsZero() bool {
	return b == BoundingBox{}
}

// Resolve returns b, or the default box for shape when b is zero.
func (b BoundingBox) Resolve(shape Shape) BoundingBox {
	if b.IsZero() {
		return DefaultBoundingBox(shape)
	}
	return b
}

// Validate checks that b is non-empty and lies inside shape.
func (b BoundingBox) Validate(shape Shape) error {
	if b.RowMin >= b.RowMax || b.ColMin >= b.ColMax {
		return fmt.Errorf("%w: %v is empty or inverted", ErrInvalidBoundingBox, b.Slice())
	}
	if b.RowMin < 0 || b.ColMin < 0 || b.RowMax > shape.Rows || b.ColMax > shape.Cols {
		return fmt.Errorf("%w: %v outside frame %s", ErrInvalidBoundingBox, b.Slice(), shape)
	}
	return nil
}

// Contains reports whether p lies inside the box.
func (b BoundingBox) Contains(p Point) bool {
	return p.Row >= float64(b.RowMin) && p.Row < float64(b.RowMax) &&
		p.Col >= float64(b.ColMin) && p.Col < float64(b.ColMax)
}

// Center returns the integer centre of the box.
func (b BoundingBox) Center() Point {
	return Point{
		Row: float64((b.RowMin + b.RowMax) / 2),
		Col: float64((b.ColMin + b.ColMax) / 2),
	}
}

// Slice returns [row_min, row_max, col_min, col_max].
func (b BoundingBox) Slice() []int {
	return []int{b.RowMin, b.RowMax, b.ColMin, b.ColMax}
}
