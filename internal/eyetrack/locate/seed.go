package locate

import (
	"fmt"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
	"github.com/banshee-data/eyetrack/internal/eyetrack/frames"
)

// Positions scoring within plateauFraction of the best response (and never
// less than plateauFloor grey levels) join the plateau averaged into the seed.
const (
	plateauFraction = 0.02
	plateauFloor    = 0.01
)

// SeedFinder picks a starburst seed by scoring every position in the
// bounding box with a centre-surround template: the weighted mean of an
// inner window of half-size Radius minus the mean of the ring around it out
// to 2*Radius. The pupil wants the most negative contrast, the corneal
// reflection the most positive, so a small reflection inside the dark
// pupil outscores plain background.
//
// The reflection's inner window is Gaussian weighted so its response peaks
// at the blob centre even when the surround is lopsided. The pupil's inner
// window is flat; positions where the whole disc fits tie, and the centroid
// of that plateau is the seed.
type SeedFinder struct {
	Kind   eyetrack.FeatureKind
	Radius int // inner half-size in pixels
}

// Find returns the seed for img within box. box must already be valid for
// the frame. When OpenCV cannot score the frame the box centre is used.
func (s SeedFinder) Find(img *frames.Frame, box eyetrack.BoundingBox) eyetrack.Point {
	resp, err := s.response(img)
	if err != nil {
		eyetrack.Diagf("%s seed: %v; using box centre", s.Kind, err)
		return box.Center()
	}
	defer resp.Close()
	return s.plateau(resp, box)
}

func (s SeedFinder) radius() int {
	return max(s.Radius, 1)
}

// response returns a CV_32F matrix the size of img holding the template
// score centred on each pixel. Frame edges replicate the border pixels.
func (s SeedFinder) response(img *frames.Frame) (gocv.Mat, error) {
	r := s.radius()
	src, err := img.Mat()
	if err != nil {
		return gocv.NewMat(), err
	}
	defer src.Close()

	f32 := gocv.NewMat()
	defer f32.Close()
	src.ConvertTo(&f32, gocv.MatTypeCV32F)

	padded := gocv.NewMat()
	defer padded.Close()
	gocv.CopyMakeBorder(f32, &padded, 2*r, 2*r, 2*r, 2*r, gocv.BorderReplicate, color.RGBA{})

	templ := s.template()
	defer templ.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	result := gocv.NewMat()
	gocv.MatchTemplate(padded, templ, &result, gocv.TmCcorr, mask)
	if result.Rows() != img.Rows || result.Cols() != img.Cols {
		rows, cols := result.Rows(), result.Cols()
		result.Close()
		return gocv.NewMat(), fmt.Errorf("template response %dx%d for %dx%d frame", rows, cols, img.Rows, img.Cols)
	}
	return result, nil
}

// template builds the (4r+1)² zero-sum kernel: inner weights sum to +1 and
// ring weights to -1, so a uniform area scores zero.
func (s SeedFinder) template() gocv.Mat {
	r := s.radius()
	size := 4*r + 1
	inner := make([]float64, (2*r+1)*(2*r+1))
	sigma := 0.0
	if s.Kind == eyetrack.CR {
		sigma = max(float64(r)/2, 0.5)
	}
	var total float64
	for i := range inner {
		w := 1.0
		if sigma > 0 {
			dr, dc := float64(i/(2*r+1)-r), float64(i%(2*r+1)-r)
			w = math.Exp(-(dr*dr + dc*dc) / (2 * sigma * sigma))
		}
		inner[i] = w
		total += w
	}
	ringWeight := -1 / float64(size*size-len(inner))

	m := gocv.NewMatWithSize(size, size, gocv.MatTypeCV32F)
	for row := range size {
		for col := range size {
			w := ringWeight
			if dr, dc := row-2*r, col-2*r; abs(dr) <= r && abs(dc) <= r {
				w = inner[(dr+r)*(2*r+1)+dc+r] / total
			}
			m.SetFloatAt(row, col, float32(w))
		}
	}
	return m
}

// plateau returns the centroid of the box positions tied with the best
// score.
func (s SeedFinder) plateau(resp gocv.Mat, box eyetrack.BoundingBox) eyetrack.Point {
	sign := 1.0
	if s.Kind == eyetrack.Pupil {
		sign = -1
	}
	score := func(row, col int) float64 { return sign * float64(resp.GetFloatAt(row, col)) }

	best := math.Inf(-1)
	for row := box.RowMin; row < box.RowMax; row++ {
		for col := box.ColMin; col < box.ColMax; col++ {
			best = max(best, score(row, col))
		}
	}
	if math.IsInf(best, -1) || math.IsNaN(best) {
		return box.Center()
	}
	cut := best - max(plateauFloor, plateauFraction*math.Abs(best))

	var sumRow, sumCol, count float64
	for row := box.RowMin; row < box.RowMax; row++ {
		for col := box.ColMin; col < box.ColMax; col++ {
			if score(row, col) >= cut {
				sumRow += float64(row)
				sumCol += float64(col)
				count++
			}
		}
	}
	eyetrack.Tracef("%s seed: best %.2f over %.0f positions", s.Kind, best, count)
	return eyetrack.Point{Row: sumRow / count, Col: sumCol / count}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
