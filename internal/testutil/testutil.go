// Package testutil provides shared test utilities and fixtures.
//
// The fixtures draw synthetic eye frames: a uniform background with a dark
// filled disc for the pupil and a bright filled disc for the corneal
// reflection, which is enough to exercise every stage of the tracker with
// a known ground truth.
package testutil

import (
	"math"
	"testing"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
	"github.com/banshee-data/eyetrack/internal/eyetrack/frames"
)

// EyeImage describes a synthetic eye frame.
type EyeImage struct {
	Rows       int
	Cols       int
	Background uint8

	PupilCenter eyetrack.Point
	PupilRadius float64
	PupilValue  uint8

	CRCenter eyetrack.Point
	CRRadius float64
	CRValue  uint8
}

// DefaultEyeImage is a 200×200 frame at grey 128 with a black pupil of
// radius 30 and a white CR of radius 10, both centred at (100, 100).
func DefaultEyeImage() EyeImage {
	return EyeImage{
		Rows:        200,
		Cols:        200,
		Background:  128,
		PupilCenter: eyetrack.Point{Row: 100, Col: 100},
		PupilRadius: 30,
		PupilValue:  0,
		CRCenter:    eyetrack.Point{Row: 100, Col: 100},
		CRRadius:    10,
		CRValue:     255,
	}
}

// Shape returns the frame shape.
func (e EyeImage) Shape() eyetrack.Shape {
	return eyetrack.Shape{Rows: e.Rows, Cols: e.Cols}
}

// Frame renders the image. The CR is drawn over the pupil. A radius of
// zero omits that feature.
func (e EyeImage) Frame() *frames.Frame {
	f := frames.NewUniformFrame(e.Rows, e.Cols, e.Background)
	if e.PupilRadius > 0 {
		FillDisk(f, e.PupilCenter, e.PupilRadius, e.PupilValue)
	}
	if e.CRRadius > 0 {
		FillDisk(f, e.CRCenter, e.CRRadius, e.CRValue)
	}
	return f
}

// Source returns an in-memory stream of n identical frames.
func (e EyeImage) Source(t testing.TB, n int) *frames.SliceSource {
	t.Helper()
	fs := make([]*frames.Frame, n)
	for i := range fs {
		fs[i] = e.Frame()
	}
	src, err := frames.NewSliceSource(e.Shape(), fs...)
	AssertNoError(t, err)
	return src
}

// FillDisk sets every pixel strictly inside the circle to v.
func FillDisk(f *frames.Frame, center eyetrack.Point, radius float64, v uint8) {
	r2 := radius * radius
	for r := int(center.Row - radius); r <= int(center.Row+radius)+1; r++ {
		for c := int(center.Col - radius); c <= int(center.Col+radius)+1; c++ {
			if !f.InBounds(r, c) {
				continue
			}
			dr, dc := float64(r)-center.Row, float64(c)-center.Col
			if dr*dr+dc*dc < r2 {
				f.Set(r, c, v)
			}
		}
	}
}

// EllipsePoints returns n points evenly spaced in angle on an ellipse.
func EllipsePoints(p eyetrack.EllipseParams, n int) []eyetrack.Point {
	pts := make([]eyetrack.Point, n)
	sinA, cosA := math.Sincos(p.Angle)
	for i := range pts {
		t := 2 * math.Pi * float64(i) / float64(n)
		u, v := p.SemiA*math.Cos(t), p.SemiB*math.Sin(t)
		pts[i] = eyetrack.Point{
			Row: p.CenterRow + u*sinA + v*cosA,
			Col: p.CenterCol + u*cosA - v*sinA,
		}
	}
	return pts
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertNear fails the test if got is further than tol from want.
func AssertNear(t testing.TB, name string, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("%s = %.3f, want %.3f ± %.3f", name, got, want, tol)
	}
}
