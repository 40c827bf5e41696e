package starburst

import (
	"fmt"
	"iter"
	"math"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
	"github.com/banshee-data/eyetrack/internal/eyetrack/frames"
)

// Ray is one spoke of the starburst for a specific seed: the integer pixel
// coordinates sampled along a fixed direction, clipped to the frame.
type Ray struct {
	Index  int
	Origin eyetrack.Point // seed rounded to the pixel grid
	Sin    float64        // row component of the unit direction
	Cos    float64        // column component of the unit direction
	Rows   []int
	Cols   []int
}

// Len returns the number of in-frame samples.
func (r Ray) Len() int {
	return len(r.Rows)
}

// PointAt returns the exact location t samples from the origin.
func (r Ray) PointAt(t float64) eyetrack.Point {
	return eyetrack.Point{Row: r.Origin.Row + t*r.Sin, Col: r.Origin.Col + t*r.Cos}
}

// CandidatePoint is the outcome of one ray: either a boundary point or the
// reason the ray produced none.
type CandidatePoint struct {
	Ray   int
	Index int // sample index of the first crossing
	Point eyetrack.Point
	Err   error
}

// Found reports whether the ray produced a point.
func (c CandidatePoint) Found() bool {
	return c.Err == nil
}

// CandidateSeq yields one CandidatePoint per ray. Ranging over it samples
// the image afresh, so it can be consumed more than once.
type CandidateSeq iter.Seq[CandidatePoint]

// Points collects the found points, in ray order.
func (s CandidateSeq) Points() []eyetrack.Point {
	var pts []eyetrack.Point
	for c := range s {
		if c.Found() {
			pts = append(pts, c.Point)
		}
	}
	return pts
}

// PointGenerator casts rays from a seed and finds where each ray crosses
// the feature's adaptive threshold.
type PointGenerator struct {
	shape eyetrack.Shape
	cfg   Config

	// Per-ray sample offsets from the origin; fixed at construction.
	dRows [][]int
	dCols [][]int
	sin   []float64
	cos   []float64
}

// NewPointGenerator validates cfg and precomputes the ray directions for
// frames of the given shape.
func NewPointGenerator(shape eyetrack.Shape, cfg Config) (*PointGenerator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &PointGenerator{
		shape: shape,
		cfg:   cfg,
		dRows: make([][]int, cfg.NRays),
		dCols: make([][]int, cfg.NRays),
		sin:   make([]float64, cfg.NRays),
		cos:   make([]float64, cfg.NRays),
	}
	for i := 0; i < cfg.NRays; i++ {
		angle := 2 * math.Pi * float64(i) / float64(cfg.NRays)
		g.sin[i], g.cos[i] = math.Sincos(angle)
		g.dRows[i] = make([]int, cfg.IndexLength)
		g.dCols[i] = make([]int, cfg.IndexLength)
		for k := 0; k < cfg.IndexLength; k++ {
			g.dRows[i][k] = int(math.Round(float64(k) * g.sin[i]))
			g.dCols[i][k] = int(math.Round(float64(k) * g.cos[i]))
		}
	}
	return g, nil
}

// Shape returns the frame shape the generator was built for.
func (g *PointGenerator) Shape() eyetrack.Shape { return g.shape }

// NRays returns the number of rays per seed.
func (g *PointGenerator) NRays() int { return g.cfg.NRays }

// Config returns the generator configuration.
func (g *PointGenerator) Config() Config { return g.cfg }

// Ray returns ray i for seed, stopping at the first sample outside the
// frame.
func (g *PointGenerator) Ray(seed eyetrack.Point, i int) Ray {
	origin := eyetrack.Point{Row: math.Round(seed.Row), Col: math.Round(seed.Col)}
	r0, c0 := int(origin.Row), int(origin.Col)
	ray := Ray{Index: i, Origin: origin, Sin: g.sin[i], Cos: g.cos[i]}

	n := 0
	for n < g.cfg.IndexLength {
		row, col := r0+g.dRows[i][n], c0+g.dCols[i][n]
		if row < 0 || row >= g.shape.Rows || col < 0 || col >= g.shape.Cols {
			break
		}
		n++
	}
	ray.Rows = make([]int, n)
	ray.Cols = make([]int, n)
	for k := 0; k < n; k++ {
		ray.Rows[k] = r0 + g.dRows[i][k]
		ray.Cols[k] = c0 + g.dCols[i][k]
	}
	return ray
}

// RayValues samples img along ray.
func RayValues(img *frames.Frame, ray Ray) []float64 {
	values := make([]float64, ray.Len())
	for k := range values {
		values[k] = float64(img.At(ray.Rows[k], ray.Cols[k]))
	}
	return values
}

// CandidatePoints returns the per-ray crossings for kind around seed.
func (g *PointGenerator) CandidatePoints(img *frames.Frame, seed eyetrack.Point, kind eyetrack.FeatureKind) CandidateSeq {
	return func(yield func(CandidatePoint) bool) {
		if img.Shape() != g.shape {
			err := fmt.Errorf("%w: frame %s, generator built for %s", eyetrack.ErrConfiguration, img.Shape(), g.shape)
			for i := 0; i < g.cfg.NRays; i++ {
				if !yield(CandidatePoint{Ray: i, Err: err}) {
					return
				}
			}
			return
		}
		for i := 0; i < g.cfg.NRays; i++ {
			ray := g.Ray(seed, i)
			idx, pt, err := g.ThresholdCrossing(ray, RayValues(img, ray), kind)
			if err != nil {
				eyetrack.Tracef("%s ray %d from (%.0f,%.0f): %v", kind, i, ray.Origin.Row, ray.Origin.Col, err)
			}
			if !yield(CandidatePoint{Ray: i, Index: idx, Point: pt, Err: err}) {
				return
			}
		}
	}
}

// ThresholdCrossing finds the first sample at or beyond the baseline
// window that crosses the kind's threshold, and the sub-pixel point where
// the linear interpolation between that sample and its predecessor meets
// the threshold.
func (g *PointGenerator) ThresholdCrossing(ray Ray, values []float64, kind eyetrack.FeatureKind) (int, eyetrack.Point, error) {
	p, err := g.cfg.Feature(kind)
	if err != nil {
		return 0, eyetrack.Point{}, err
	}
	threshold, err := Threshold(values, p.Pixels, p.Factor, p.Crossing)
	if err != nil {
		return 0, eyetrack.Point{}, fmt.Errorf("ray %d: %w", ray.Index, err)
	}
	if p.ClipThreshold {
		threshold = math.Min(math.Max(threshold, p.ClipMin), p.ClipMax)
	}

	for k := p.Pixels; k < len(values); k++ {
		if !crossed(values[k], threshold, p.Crossing) {
			continue
		}
		t := float64(k)
		if prev := values[k-1]; values[k] != prev {
			frac := (threshold - prev) / (values[k] - prev)
			t = float64(k-1) + math.Min(math.Max(frac, 0), 1)
		}
		return k, ray.PointAt(t), nil
	}
	return 0, eyetrack.Point{}, fmt.Errorf("%w: ray %d, %s threshold %.2f", eyetrack.ErrNoCrossing, ray.Index, kind, threshold)
}
