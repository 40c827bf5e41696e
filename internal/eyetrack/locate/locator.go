// Package locate finds one feature in one frame: it picks a seed, casts
// the starburst, applies the ray failure policy, fits an ellipse and keeps
// the fit only if its centre lies in the feature's bounding box.
package locate

import (
	"fmt"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
	"github.com/banshee-data/eyetrack/internal/eyetrack/ellipse"
	"github.com/banshee-data/eyetrack/internal/eyetrack/frames"
	"github.com/banshee-data/eyetrack/internal/eyetrack/starburst"
)

// Fitter turns candidate points into an ellipse. *ellipse.RansacFitter
// satisfies it.
type Fitter interface {
	Estimate(points []eyetrack.Point) ellipse.Estimate
}

// Result is one feature's outcome for one frame. Params is NoFit when the
// feature was not found, and Reason then says why.
type Result struct {
	Kind       eyetrack.FeatureKind
	Params     eyetrack.EllipseParams
	Seed       eyetrack.Point
	Candidates []eyetrack.Point
	FailedRays int
	Inliers    int
	Reason     string
}

// Found reports whether the feature was located.
func (r Result) Found() bool {
	return r.Params.Valid()
}

// Locator finds one feature kind.
type Locator struct {
	kind   eyetrack.FeatureKind
	gen    *starburst.PointGenerator
	fitter Fitter
	policy starburst.RayFailurePolicy
	seeds  *SeedFinder
}

// NewLocator binds a generator and fitter to kind. A nil seeds disables
// template seeding; Seed then falls back to the last centre or the box
// centre.
func NewLocator(kind eyetrack.FeatureKind, gen *starburst.PointGenerator, fitter Fitter, seeds *SeedFinder) (*Locator, error) {
	p, err := gen.Config().Feature(kind)
	if err != nil {
		return nil, err
	}
	if seeds != nil && seeds.Kind != kind {
		return nil, fmt.Errorf("%w: %s seed finder for %s locator", eyetrack.ErrConfiguration, seeds.Kind, kind)
	}
	return &Locator{kind: kind, gen: gen, fitter: fitter, policy: p.Policy, seeds: seeds}, nil
}

// Kind returns the feature kind this locator finds.
func (l *Locator) Kind() eyetrack.FeatureKind { return l.kind }

// Seed chooses the ray origin for img: the template response when seeding
// is enabled, else last's centre if it is a valid fit inside box, else the
// box centre.
func (l *Locator) Seed(img *frames.Frame, box eyetrack.BoundingBox, last eyetrack.EllipseParams) eyetrack.Point {
	if l.seeds != nil {
		return l.seeds.Find(img, box)
	}
	if last.Valid() && box.Contains(last.Center()) {
		return last.Center()
	}
	return box.Center()
}

// Locate casts rays from seed over img and fits the feature. Errors are
// reserved for misuse: a frame of the wrong shape or an invalid box. Not
// finding the feature is a NoFit Result.
func (l *Locator) Locate(img *frames.Frame, seed eyetrack.Point, box eyetrack.BoundingBox) (Result, error) {
	res := Result{Kind: l.kind, Params: eyetrack.NoFit(), Seed: seed}
	if err := img.CheckShape(l.gen.Shape()); err != nil {
		return res, fmt.Errorf("locate %s: %w", l.kind, err)
	}
	if err := box.Validate(img.Shape()); err != nil {
		return res, fmt.Errorf("locate %s: %w", l.kind, err)
	}

	for c := range l.gen.CandidatePoints(img, seed, l.kind) {
		if c.Found() {
			res.Candidates = append(res.Candidates, c.Point)
			continue
		}
		res.FailedRays++
		if l.policy == starburst.AbortFrame {
			res.Reason = fmt.Sprintf("ray %d failed: %v", c.Ray, c.Err)
			return res, nil
		}
	}

	est := l.fitter.Estimate(res.Candidates)
	if !est.Params.Valid() {
		res.Reason = fmt.Sprintf("no ellipse from %d candidates (%d rays failed)", len(res.Candidates), res.FailedRays)
		return res, nil
	}
	if !box.Contains(est.Params.Center()) {
		res.Reason = fmt.Sprintf("centre (%.1f, %.1f) outside box %v", est.Params.CenterRow, est.Params.CenterCol, box.Slice())
		return res, nil
	}
	res.Params = est.Params
	res.Inliers = est.Inliers
	return res, nil
}
