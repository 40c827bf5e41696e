package frames

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
)

// Frame is a single-channel 8-bit intensity grid stored row-major.
// Frames handed out by a Source are treated as immutable; every step that
// needs to modify pixels works on a Clone.
type Frame struct {
	Rows int
	Cols int
	Pix  []uint8
}

// NewFrame allocates a zeroed frame.
func NewFrame(rows, cols int) *Frame {
	return &Frame{Rows: rows, Cols: cols, Pix: make([]uint8, rows*cols)}
}

// NewUniformFrame allocates a frame with every pixel set to v.
func NewUniformFrame(rows, cols int, v uint8) *Frame {
	f := NewFrame(rows, cols)
	for i := range f.Pix {
		f.Pix[i] = v
	}
	return f
}

// FromImage converts any image to a Frame using the standard luma
// conversion. *image.Gray inputs are copied without conversion.
func FromImage(img image.Image) *Frame {
	b := img.Bounds()
	f := NewFrame(b.Dy(), b.Dx())
	if g, ok := img.(*image.Gray); ok {
		for r := 0; r < f.Rows; r++ {
			start := g.PixOffset(b.Min.X, b.Min.Y+r)
			copy(f.Pix[r*f.Cols:(r+1)*f.Cols], g.Pix[start:start+f.Cols])
		}
		return f
	}
	gray := image.NewGray(image.Rect(0, 0, f.Cols, f.Rows))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	copy(f.Pix, gray.Pix)
	return f
}

// Shape returns the frame dimensions.
func (f *Frame) Shape() eyetrack.Shape {
	return eyetrack.Shape{Rows: f.Rows, Cols: f.Cols}
}

// At returns the pixel at (row, col). The caller guarantees bounds.
func (f *Frame) At(row, col int) uint8 {
	return f.Pix[row*f.Cols+col]
}

// Set writes the pixel at (row, col). The caller guarantees bounds.
func (f *Frame) Set(row, col int, v uint8) {
	f.Pix[row*f.Cols+col] = v
}

// InBounds reports whether (row, col) addresses a pixel of f.
func (f *Frame) InBounds(row, col int) bool {
	return row >= 0 && row < f.Rows && col >= 0 && col < f.Cols
}

// Clone returns a deep copy of f.
func (f *Frame) Clone() *Frame {
	c := &Frame{Rows: f.Rows, Cols: f.Cols, Pix: make([]uint8, len(f.Pix))}
	copy(c.Pix, f.Pix)
	return c
}

// Gray returns f as an *image.Gray sharing no memory with f.
func (f *Frame) Gray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, f.Cols, f.Rows))
	copy(g.Pix, f.Pix)
	return g
}

// RGBA expands f into a three-channel image for annotation.
func (f *Frame) RGBA() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, f.Cols, f.Rows))
	for r := 0; r < f.Rows; r++ {
		for c := 0; c < f.Cols; c++ {
			v := f.At(r, c)
			out.SetRGBA(c, r, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return out
}

// CheckShape returns an error when f does not have the given shape.
func (f *Frame) CheckShape(want eyetrack.Shape) error {
	if f.Shape() != want {
		return fmt.Errorf("frame shape %s does not match stream shape %s", f.Shape(), want)
	}
	return nil
}
