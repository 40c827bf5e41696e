package ellipse

import (
	"iter"
	"math"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
)

// Pixels yields the (row, col) of every pixel of shape whose centre lies
// strictly inside e. Invalid parameters yield nothing.
func Pixels(e eyetrack.EllipseParams, shape eyetrack.Shape) iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		if !e.Valid() || e.SemiA <= 0 || e.SemiB <= 0 {
			return
		}
		sinA, cosA := math.Sincos(e.Angle)
		halfCols := math.Hypot(e.SemiA*cosA, e.SemiB*sinA)
		halfRows := math.Hypot(e.SemiA*sinA, e.SemiB*cosA)

		r0 := max(int(math.Floor(e.CenterRow-halfRows)), 0)
		r1 := min(int(math.Ceil(e.CenterRow+halfRows)), shape.Rows-1)
		c0 := max(int(math.Floor(e.CenterCol-halfCols)), 0)
		c1 := min(int(math.Ceil(e.CenterCol+halfCols)), shape.Cols-1)

		for r := r0; r <= r1; r++ {
			dy := float64(r) - e.CenterRow
			for c := c0; c <= c1; c++ {
				dx := float64(c) - e.CenterCol
				u := (dx*cosA + dy*sinA) / e.SemiA
				v := (-dx*sinA + dy*cosA) / e.SemiB
				if u*u+v*v < 1 {
					if !yield(r, c) {
						return
					}
				}
			}
		}
	}
}

// Outline returns n points evenly spaced in parameter along the ellipse.
func Outline(e eyetrack.EllipseParams, n int) []eyetrack.Point {
	if !e.Valid() || n <= 0 {
		return nil
	}
	sinA, cosA := math.Sincos(e.Angle)
	pts := make([]eyetrack.Point, n)
	for i := range pts {
		s, c := math.Sincos(2 * math.Pi * float64(i) / float64(n))
		u, v := e.SemiA*c, e.SemiB*s
		pts[i] = eyetrack.Point{
			Row: e.CenterRow + u*sinA + v*cosA,
			Col: e.CenterCol + u*cosA - v*sinA,
		}
	}
	return pts
}
