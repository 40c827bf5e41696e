package frames

import (
	"fmt"
	"math"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
	"gonum.org/v1/gonum/floats"
)

// MeanAccumulator keeps a running per-pixel average of frames. The
// average is incremental (mean += (x - mean) / n) so long streams do not
// lose precision.
type MeanAccumulator struct {
	shape eyetrack.Shape
	mean  []float64
	delta []float64
	count int
}

// NewMeanAccumulator creates an accumulator for frames of the given shape.
func NewMeanAccumulator(shape eyetrack.Shape) *MeanAccumulator {
	n := shape.Rows * shape.Cols
	return &MeanAccumulator{
		shape: shape,
		mean:  make([]float64, n),
		delta: make([]float64, n),
	}
}

// Add folds f into the running mean.
func (m *MeanAccumulator) Add(f *Frame) error {
	if err := f.CheckShape(m.shape); err != nil {
		return fmt.Errorf("mean frame: %w", err)
	}
	m.count++
	for i, v := range f.Pix {
		m.delta[i] = float64(v)
	}
	floats.Sub(m.delta, m.mean)
	floats.AddScaled(m.mean, 1/float64(m.count), m.delta)
	return nil
}

// Count returns the number of frames folded in so far.
func (m *MeanAccumulator) Count() int {
	return m.count
}

// Shape returns the frame shape the accumulator was created for.
func (m *MeanAccumulator) Shape() eyetrack.Shape {
	return m.shape
}

// At returns the running mean at (row, col), or 0 before the first Add.
func (m *MeanAccumulator) At(row, col int) float64 {
	if m.count == 0 {
		return 0
	}
	return m.mean[row*m.shape.Cols+col]
}

// Frame returns the current mean rounded to 8 bits, or nil before the
// first Add.
func (m *MeanAccumulator) Frame() *Frame {
	if m.count == 0 {
		return nil
	}
	f := NewFrame(m.shape.Rows, m.shape.Cols)
	for i, v := range m.mean {
		f.Pix[i] = uint8(math.Round(math.Min(math.Max(v, 0), 255)))
	}
	return f
}

// MeanOf averages every frame of src from the beginning. A source with
// no frames yields a zero frame of the source shape, or nil when the shape
// itself is empty, as for a directory holding no frames.
func MeanOf(src Source) (*Frame, error) {
	if src.Shape().Empty() {
		return nil, nil
	}
	acc := NewMeanAccumulator(src.Shape())
	for f, err := range src.Frames(0) {
		if err != nil {
			return nil, fmt.Errorf("mean frame: frame %d: %w", acc.Count(), err)
		}
		if err := acc.Add(f); err != nil {
			return nil, err
		}
	}
	if acc.Count() == 0 {
		shape := src.Shape()
		return NewFrame(shape.Rows, shape.Cols), nil
	}
	return acc.Frame(), nil
}
