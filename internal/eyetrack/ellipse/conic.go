// Package ellipse fits ellipses to candidate boundary points: a direct
// least-squares conic fit, a RANSAC wrapper that tolerates outliers, and
// the geometry helpers shared by the tracker.
package ellipse

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
)

// ErrDegenerate is returned when the points do not determine an ellipse:
// too few of them, collinear, or best fit by a parabola or hyperbola.
var ErrDegenerate = errors.New("degenerate ellipse fit")

// minimalSet is the number of points that determine a conic.
const minimalSet = 5

// FitDirect fits an ellipse to points with the Halír–Flusser direct
// least-squares method. Points are centred and scaled first so the scatter
// matrices stay well conditioned for pixel coordinates.
func FitDirect(points []eyetrack.Point) (eyetrack.EllipseParams, error) {
	n := len(points)
	if n < minimalSet {
		return eyetrack.NoFit(), fmt.Errorf("%w: %d points, need %d", ErrDegenerate, n, minimalSet)
	}

	// x is the column, y the row.
	var mx, my float64
	for _, p := range points {
		mx += p.Col
		my += p.Row
	}
	mx /= float64(n)
	my /= float64(n)
	var spread float64
	for _, p := range points {
		dx, dy := p.Col-mx, p.Row-my
		spread += dx*dx + dy*dy
	}
	scale := math.Sqrt(spread / float64(2*n))
	if scale == 0 || math.IsNaN(scale) {
		return eyetrack.NoFit(), fmt.Errorf("%w: coincident points", ErrDegenerate)
	}

	d1 := mat.NewDense(n, 3, nil)
	d2 := mat.NewDense(n, 3, nil)
	var sxx, syy, sxy float64
	for i, p := range points {
		x, y := (p.Col-mx)/scale, (p.Row-my)/scale
		d1.SetRow(i, []float64{x * x, x * y, y * y})
		d2.SetRow(i, []float64{x, y, 1})
		sxx += x * x
		syy += y * y
		sxy += x * y
	}
	// Normalised scatter has trace 2n, so its determinant is scale free.
	if sxx*syy-sxy*sxy < 1e-10*float64(n*n) {
		return eyetrack.NoFit(), fmt.Errorf("%w: collinear points", ErrDegenerate)
	}

	var s1, s2, s3 mat.Dense
	s1.Mul(d1.T(), d1)
	s2.Mul(d1.T(), d2)
	s3.Mul(d2.T(), d2)

	// T = -S3⁻¹ S2ᵀ gives the linear part from the quadratic part.
	var t mat.Dense
	if err := t.Solve(&s3, s2.T()); err != nil {
		return eyetrack.NoFit(), fmt.Errorf("%w: %v", ErrDegenerate, err)
	}
	t.Scale(-1, &t)

	var m mat.Dense
	m.Mul(&s2, &t)
	m.Add(&s1, &m)

	// Premultiply by the inverse of the ellipse constraint matrix.
	reduced := mat.NewDense(3, 3, nil)
	for j := 0; j < 3; j++ {
		reduced.Set(0, j, m.At(2, j)/2)
		reduced.Set(1, j, -m.At(1, j))
		reduced.Set(2, j, m.At(0, j)/2)
	}

	var eig mat.Eigen
	if !eig.Factorize(reduced, mat.EigenRight) {
		return eyetrack.NoFit(), fmt.Errorf("%w: eigen decomposition failed", ErrDegenerate)
	}
	var vecs mat.CDense
	eig.VectorsTo(&vecs)

	a1 := make([]float64, 3)
	best := 0.0
	for j := 0; j < 3; j++ {
		v0, v1, v2 := vecs.At(0, j), vecs.At(1, j), vecs.At(2, j)
		if math.Abs(imag(v0))+math.Abs(imag(v1))+math.Abs(imag(v2)) > 1e-9*(cmplx.Abs(v0)+cmplx.Abs(v1)+cmplx.Abs(v2)) {
			continue
		}
		cond := 4*real(v0)*real(v2) - real(v1)*real(v1)
		if cond > best {
			best = cond
			a1[0], a1[1], a1[2] = real(v0), real(v1), real(v2)
		}
	}
	if best <= 0 {
		return eyetrack.NoFit(), fmt.Errorf("%w: no elliptic solution", ErrDegenerate)
	}

	a2 := mat.NewVecDense(3, nil)
	a2.MulVec(&t, mat.NewVecDense(3, a1))

	p, err := conicToParams(a1[0], a1[1], a1[2], a2.AtVec(0), a2.AtVec(1), a2.AtVec(2))
	if err != nil {
		return eyetrack.NoFit(), err
	}
	p.CenterCol = p.CenterCol*scale + mx
	p.CenterRow = p.CenterRow*scale + my
	p.SemiA *= scale
	p.SemiB *= scale
	return p, nil
}

// conicToParams converts A x² + B xy + C y² + D x + E y + F = 0 to centre,
// semi-axes and orientation, with x the column and y the row.
func conicToParams(a, b, c, d, e, f float64) (eyetrack.EllipseParams, error) {
	den := b*b - 4*a*c
	if den >= 0 {
		return eyetrack.NoFit(), fmt.Errorf("%w: discriminant %g is not negative", ErrDegenerate, den)
	}
	x0 := (2*c*d - b*e) / den
	y0 := (2*a*e - b*d) / den
	fc := a*x0*x0 + b*x0*y0 + c*y0*y0 + d*x0 + e*y0 + f

	// Make the quadratic form positive definite; the level must then be
	// negative for a real ellipse.
	if a+c < 0 {
		a, b, c, fc = -a, -b, -c, -fc
	}
	if fc >= 0 {
		return eyetrack.NoFit(), fmt.Errorf("%w: imaginary ellipse", ErrDegenerate)
	}

	root := math.Hypot(a-c, b)
	lmax := (a + c + root) / 2
	lmin := (a + c - root) / 2
	if lmin <= 0 {
		return eyetrack.NoFit(), fmt.Errorf("%w: quadratic form not definite", ErrDegenerate)
	}

	// The lmax eigenvector lies at theta and carries the minor axis.
	theta := 0.5 * math.Atan2(b, a-c)
	p := eyetrack.EllipseParams{
		CenterRow: y0,
		CenterCol: x0,
		SemiA:     math.Sqrt(-fc / lmin),
		SemiB:     math.Sqrt(-fc / lmax),
		Angle:     normalizeAngle(theta + math.Pi/2),
	}
	if !p.Valid() {
		return eyetrack.NoFit(), fmt.Errorf("%w: non-finite parameters", ErrDegenerate)
	}
	return p, nil
}

// normalizeAngle maps an axis orientation into [0, π).
func normalizeAngle(a float64) float64 {
	a = math.Mod(a, math.Pi)
	if a < 0 {
		a += math.Pi
	}
	return a
}

// Distance approximates the geometric distance from p to the ellipse
// outline by scaling the radial offset: a point at normalised radius r
// lies |1 - 1/r| of its centre distance away from the curve.
func Distance(e eyetrack.EllipseParams, p eyetrack.Point) float64 {
	dx, dy := p.Col-e.CenterCol, p.Row-e.CenterRow
	sinA, cosA := math.Sincos(e.Angle)
	u := dx*cosA + dy*sinA
	v := -dx*sinA + dy*cosA
	r := math.Hypot(u/e.SemiA, v/e.SemiB)
	if r == 0 {
		return e.SemiB
	}
	return math.Abs(1-1/r) * math.Hypot(dx, dy)
}

// Scaled returns e with both semi-axes multiplied by factor and then
// grown by pad pixels.
func Scaled(e eyetrack.EllipseParams, factor, pad float64) eyetrack.EllipseParams {
	e.SemiA = e.SemiA*factor + pad
	e.SemiB = e.SemiB*factor + pad
	return e
}
