// Package qc collects per-frame fits for quality control: time series of
// every ellipse parameter and density maps of where each feature's centre
// landed. WritePlots renders them as PNGs, WriteHTML as an interactive
// report.
package qc

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
)

// Sample is one frame's fits.
type Sample struct {
	Index int
	Pupil eyetrack.EllipseParams
	CR    eyetrack.EllipseParams
}

// Params returns the fit for kind.
func (s Sample) Params(kind eyetrack.FeatureKind) eyetrack.EllipseParams {
	if kind == eyetrack.CR {
		return s.CR
	}
	return s.Pupil
}

// Recorder accumulates samples. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	shape   eyetrack.Shape
	samples []Sample
	density map[eyetrack.FeatureKind]*mat.Dense
}

// NewRecorder returns a recorder for frames of shape.
func NewRecorder(shape eyetrack.Shape) *Recorder {
	r := &Recorder{shape: shape, density: make(map[eyetrack.FeatureKind]*mat.Dense)}
	if !shape.Empty() {
		for _, kind := range eyetrack.FeatureKinds {
			r.density[kind] = mat.NewDense(shape.Rows, shape.Cols, nil)
		}
	}
	return r
}

// Record adds one frame. Centres outside the frame are kept in the time
// series but not in the density maps.
func (r *Recorder) Record(index int, pupil, cr eyetrack.EllipseParams) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Sample{Index: index, Pupil: pupil, CR: cr}
	r.samples = append(r.samples, s)
	for kind, d := range r.density {
		p := s.Params(kind)
		if !p.Valid() {
			continue
		}
		row, col := int(math.Round(p.CenterRow)), int(math.Round(p.CenterCol))
		if row < 0 || row >= r.shape.Rows || col < 0 || col >= r.shape.Cols {
			continue
		}
		d.Set(row, col, d.At(row, col)+1)
	}
}

// Len returns the number of recorded frames.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Samples returns a copy of the recorded frames in recording order.
func (r *Recorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sample(nil), r.samples...)
}

// Density returns a copy of the centre histogram for kind, one cell per
// pixel, or nil for an empty frame shape.
func (r *Recorder) Density(kind eyetrack.FeatureKind) *mat.Dense {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.density[kind]
	if !ok {
		return nil
	}
	return mat.DenseCopyOf(d)
}

// Summary describes one feature over the recorded frames. Statistics
// cover found frames only and are NaN when there are none.
type Summary struct {
	Frames        int
	Found         int
	MeanCenterRow float64
	MeanCenterCol float64
	StdCenterRow  float64
	StdCenterCol  float64
	MeanSemiA     float64
	MeanSemiB     float64
}

// FoundRate is the fraction of frames with a fit.
func (s Summary) FoundRate() float64 {
	if s.Frames == 0 {
		return 0
	}
	return float64(s.Found) / float64(s.Frames)
}

// Summarize computes the Summary for kind.
func (r *Recorder) Summarize(kind eyetrack.FeatureKind) Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := Summary{Frames: len(r.samples)}
	var rows, cols, as, bs []float64
	for _, s := range r.samples {
		p := s.Params(kind)
		if !p.Valid() {
			continue
		}
		rows = append(rows, p.CenterRow)
		cols = append(cols, p.CenterCol)
		as = append(as, p.SemiA)
		bs = append(bs, p.SemiB)
	}
	sum.Found = len(rows)
	if sum.Found == 0 {
		nan := math.NaN()
		sum.MeanCenterRow, sum.MeanCenterCol, sum.StdCenterRow, sum.StdCenterCol = nan, nan, nan, nan
		sum.MeanSemiA, sum.MeanSemiB = nan, nan
		return sum
	}
	sum.MeanCenterRow, sum.StdCenterRow = stat.PopMeanStdDev(rows, nil)
	sum.MeanCenterCol, sum.StdCenterCol = stat.PopMeanStdDev(cols, nil)
	sum.MeanSemiA = stat.Mean(as, nil)
	sum.MeanSemiB = stat.Mean(bs, nil)
	return sum
}
