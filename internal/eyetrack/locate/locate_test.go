package locate

import (
	"errors"
	"strings"
	"testing"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
	"github.com/banshee-data/eyetrack/internal/eyetrack/ellipse"
	"github.com/banshee-data/eyetrack/internal/eyetrack/frames"
	"github.com/banshee-data/eyetrack/internal/eyetrack/starburst"
	"github.com/banshee-data/eyetrack/internal/testutil"
)

func generatorConfig() starburst.Config {
	return starburst.Config{
		NRays:       20,
		IndexLength: 100,
		Pupil:       starburst.FeatureParams{Pixels: 10, Crossing: eyetrack.CrossAbove},
		CR:          starburst.FeatureParams{Pixels: 5, Crossing: eyetrack.CrossBelow},
	}
}

func newLocator(t *testing.T, kind eyetrack.FeatureKind, shape eyetrack.Shape, gcfg starburst.Config, seeds *SeedFinder) *Locator {
	t.Helper()
	gen, err := starburst.NewPointGenerator(shape, gcfg)
	testutil.AssertNoError(t, err)
	fitter, err := ellipse.NewRansacFitter(ellipse.Config{
		Iterations: 50, Threshold: 1.5, MinimumPointsForFit: 10, NumberOfClosePoints: 8, Seed: 1,
	}, nil)
	testutil.AssertNoError(t, err)
	l, err := NewLocator(kind, gen, fitter, seeds)
	testutil.AssertNoError(t, err)
	return l
}

func fullBox(shape eyetrack.Shape) eyetrack.BoundingBox {
	return eyetrack.BoundingBox{RowMax: shape.Rows, ColMax: shape.Cols}
}

func TestSeedFinder_CentresOnFeature(t *testing.T) {
	tests := []struct {
		name   string
		eye    testutil.EyeImage
		finder SeedFinder
		want   eyetrack.Point
	}{
		{"pupil, template larger than disc", testutil.DefaultEyeImage(), SeedFinder{Kind: eyetrack.Pupil, Radius: 40}, eyetrack.Point{Row: 100, Col: 100}},
		{"cr", testutil.DefaultEyeImage(), SeedFinder{Kind: eyetrack.CR, Radius: 10}, eyetrack.Point{Row: 100, Col: 100}},
		{"off-centre pupil", testutil.EyeImage{
			Rows: 200, Cols: 200, Background: 128,
			PupilCenter: eyetrack.Point{Row: 70, Col: 110}, PupilRadius: 25,
			CRCenter: eyetrack.Point{Row: 80, Col: 100}, CRRadius: 6, CRValue: 255,
		}, SeedFinder{Kind: eyetrack.Pupil, Radius: 40}, eyetrack.Point{Row: 70, Col: 110}},
		{"cr smaller than template, off pupil centre", testutil.EyeImage{
			Rows: 200, Cols: 200, Background: 128,
			PupilCenter: eyetrack.Point{Row: 100, Col: 110}, PupilRadius: 40,
			CRCenter: eyetrack.Point{Row: 90, Col: 100}, CRRadius: 6, CRValue: 255,
		}, SeedFinder{Kind: eyetrack.CR, Radius: 10}, eyetrack.Point{Row: 90, Col: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.finder.Find(tt.eye.Frame(), eyetrack.DefaultBoundingBox(tt.eye.Shape()))
			testutil.AssertNear(t, "row", got.Row, tt.want.Row, 1)
			testutil.AssertNear(t, "col", got.Col, tt.want.Col, 1)
		})
	}
}

func TestSeedFinder_UniformFrameIsBoxCentroid(t *testing.T) {
	box := eyetrack.BoundingBox{RowMin: 10, RowMax: 31, ColMin: 0, ColMax: 41}
	for _, kind := range eyetrack.FeatureKinds {
		got := SeedFinder{Kind: kind, Radius: 3}.Find(frames.NewUniformFrame(60, 60, 50), box)
		// Every position scores zero, edges included.
		testutil.AssertNear(t, kind.String()+" row", got.Row, 20, 0.5)
		testutil.AssertNear(t, kind.String()+" col", got.Col, 20, 0.5)
	}
}

func TestLocate_Pupil(t *testing.T) {
	eye := testutil.DefaultEyeImage()
	eye.CRRadius = 0
	l := newLocator(t, eyetrack.Pupil, eye.Shape(), generatorConfig(), nil)

	res, err := l.Locate(eye.Frame(), eye.PupilCenter, eyetrack.DefaultBoundingBox(eye.Shape()))
	testutil.AssertNoError(t, err)
	if !res.Found() {
		t.Fatalf("pupil not found: %s", res.Reason)
	}
	testutil.AssertNear(t, "row", res.Params.CenterRow, 100, 1)
	testutil.AssertNear(t, "col", res.Params.CenterCol, 100, 1)
	testutil.AssertNear(t, "a", res.Params.SemiA, 29.5, 1.5)
	testutil.AssertNear(t, "b", res.Params.SemiB, 29.5, 1.5)
	if len(res.Candidates) != 20 || res.FailedRays != 0 {
		t.Errorf("candidates=%d failed=%d", len(res.Candidates), res.FailedRays)
	}
}

func TestLocate_CR(t *testing.T) {
	eye := testutil.DefaultEyeImage()
	l := newLocator(t, eyetrack.CR, eye.Shape(), generatorConfig(), nil)

	res, err := l.Locate(eye.Frame(), eye.CRCenter, eyetrack.DefaultBoundingBox(eye.Shape()))
	testutil.AssertNoError(t, err)
	if !res.Found() {
		t.Fatalf("cr not found: %s", res.Reason)
	}
	testutil.AssertNear(t, "row", res.Params.CenterRow, 100, 1)
	testutil.AssertNear(t, "col", res.Params.CenterCol, 100, 1)
	testutil.AssertNear(t, "a", res.Params.SemiA, 9.5, 1.5)
}

func TestLocate_UniformFrameIsNoFit(t *testing.T) {
	shape := eyetrack.Shape{Rows: 200, Cols: 200}
	for _, kind := range eyetrack.FeatureKinds {
		l := newLocator(t, kind, shape, generatorConfig(), nil)
		res, err := l.Locate(frames.NewUniformFrame(200, 200, 128), eyetrack.Point{Row: 100, Col: 100}, eyetrack.DefaultBoundingBox(shape))
		testutil.AssertNoError(t, err)
		if res.Found() || res.Reason == "" {
			t.Errorf("%s: expected NoFit with reason, got %+v", kind, res)
		}
		if res.FailedRays != 20 {
			t.Errorf("%s: failed rays = %d, want 20", kind, res.FailedRays)
		}
	}
}

func TestLocate_RayFailurePolicy(t *testing.T) {
	// A pupil cut off by the top edge: upward rays leave the frame while
	// still dark and find no crossing.
	eye := testutil.EyeImage{
		Rows: 200, Cols: 200, Background: 128,
		PupilCenter: eyetrack.Point{Row: 15, Col: 100}, PupilRadius: 30,
	}
	box := fullBox(eye.Shape())

	drop := newLocator(t, eyetrack.Pupil, eye.Shape(), generatorConfig(), nil)
	res, err := drop.Locate(eye.Frame(), eye.PupilCenter, box)
	testutil.AssertNoError(t, err)
	if !res.Found() {
		t.Fatalf("drop policy: not found: %s", res.Reason)
	}
	if res.FailedRays == 0 {
		t.Error("expected some failed rays")
	}
	testutil.AssertNear(t, "row", res.Params.CenterRow, 15, 1.5)
	testutil.AssertNear(t, "col", res.Params.CenterCol, 100, 1.5)

	cfg := generatorConfig()
	cfg.Pupil.Policy = starburst.AbortFrame
	abort := newLocator(t, eyetrack.Pupil, eye.Shape(), cfg, nil)
	res, err = abort.Locate(eye.Frame(), eye.PupilCenter, box)
	testutil.AssertNoError(t, err)
	if res.Found() || !strings.Contains(res.Reason, "ray") {
		t.Errorf("abort policy: expected NoFit naming the ray, got %+v", res)
	}
}

func TestLocate_CentreOutsideBox(t *testing.T) {
	eye := testutil.DefaultEyeImage()
	eye.CRRadius = 0
	l := newLocator(t, eyetrack.Pupil, eye.Shape(), generatorConfig(), nil)

	res, err := l.Locate(eye.Frame(), eye.PupilCenter, eyetrack.BoundingBox{RowMax: 50, ColMax: 50})
	testutil.AssertNoError(t, err)
	if res.Found() || !strings.Contains(res.Reason, "outside") {
		t.Errorf("expected out-of-box NoFit, got %+v", res)
	}
}

func TestLocate_Misuse(t *testing.T) {
	shape := eyetrack.Shape{Rows: 100, Cols: 100}
	l := newLocator(t, eyetrack.CR, shape, generatorConfig(), nil)

	_, err := l.Locate(frames.NewFrame(50, 50), eyetrack.Point{}, eyetrack.BoundingBox{RowMax: 50, ColMax: 50})
	if err == nil {
		t.Error("expected shape mismatch error")
	}
	_, err = l.Locate(frames.NewFrame(100, 100), eyetrack.Point{}, eyetrack.BoundingBox{RowMin: 10, RowMax: 5, ColMax: 50})
	if !errors.Is(err, eyetrack.ErrInvalidBoundingBox) {
		t.Errorf("expected ErrInvalidBoundingBox, got %v", err)
	}
}

func TestLocator_SeedFallback(t *testing.T) {
	shape := eyetrack.Shape{Rows: 100, Cols: 100}
	l := newLocator(t, eyetrack.Pupil, shape, generatorConfig(), nil)
	box := eyetrack.BoundingBox{RowMin: 10, RowMax: 90, ColMin: 20, ColMax: 80}
	img := frames.NewFrame(100, 100)

	last := eyetrack.EllipseParams{CenterRow: 40, CenterCol: 30, SemiA: 5, SemiB: 5}
	if got := l.Seed(img, box, last); got != last.Center() {
		t.Errorf("seed = %v, want last centre", got)
	}
	if got := l.Seed(img, box, eyetrack.NoFit()); got != box.Center() {
		t.Errorf("seed = %v, want box centre", got)
	}
	last.CenterRow = 95
	if got := l.Seed(img, box, last); got != box.Center() {
		t.Errorf("seed = %v, want box centre for out-of-box fit", got)
	}
}

func TestNewLocator_Validation(t *testing.T) {
	gen, err := starburst.NewPointGenerator(eyetrack.Shape{Rows: 10, Cols: 10}, generatorConfig())
	testutil.AssertNoError(t, err)
	fitter, err := ellipse.NewRansacFitter(ellipse.Config{Iterations: 1, Threshold: 1, MinimumPointsForFit: 5, NumberOfClosePoints: 5}, nil)
	testutil.AssertNoError(t, err)

	if _, err := NewLocator(eyetrack.FeatureKind(5), gen, fitter, nil); !errors.Is(err, eyetrack.ErrUnknownFeature) {
		t.Errorf("expected ErrUnknownFeature, got %v", err)
	}
	if _, err := NewLocator(eyetrack.Pupil, gen, fitter, &SeedFinder{Kind: eyetrack.CR, Radius: 3}); !errors.Is(err, eyetrack.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}
