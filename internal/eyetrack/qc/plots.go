package qc

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
	"github.com/banshee-data/eyetrack/internal/fsutil"
)

// Plot file names, relative to the QC directory.
const (
	PupilParamsPlot  = "pupil_params.png"
	CRParamsPlot     = "cr_params.png"
	AnglePlot        = "angles.png"
	PupilDensityPlot = "pupil_density.png"
	CRDensityPlot    = "cr_density.png"
)

// paramSeries are the per-feature time series, all in pixels.
var paramSeries = []struct {
	name  string
	value func(eyetrack.EllipseParams) float64
}{
	{"center_row", func(p eyetrack.EllipseParams) float64 { return p.CenterRow }},
	{"center_col", func(p eyetrack.EllipseParams) float64 { return p.CenterCol }},
	{"semi_a", func(p eyetrack.EllipseParams) float64 { return p.SemiA }},
	{"semi_b", func(p eyetrack.EllipseParams) float64 { return p.SemiB }},
}

// WritePlots renders the QC plots into dir and returns the paths written.
// Frames without a fit are gaps in the time series.
func (r *Recorder) WritePlots(fsys fsutil.FileSystem, dir string) ([]string, error) {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create qc dir: %w", err)
	}
	samples := r.Samples()
	var written []string
	save := func(p *plot.Plot, name string, w, h vg.Length) error {
		path := filepath.Join(dir, name)
		if err := savePlot(fsys, p, w, h, path); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	for _, f := range []struct {
		kind eyetrack.FeatureKind
		file string
	}{{eyetrack.Pupil, PupilParamsPlot}, {eyetrack.CR, CRParamsPlot}} {
		p, err := paramsPlot(samples, f.kind)
		if err != nil {
			return written, err
		}
		if err := save(p, f.file, 14*vg.Inch, 6*vg.Inch); err != nil {
			return written, err
		}
	}

	p, err := anglePlot(samples)
	if err != nil {
		return written, err
	}
	if err := save(p, AnglePlot, 14*vg.Inch, 6*vg.Inch); err != nil {
		return written, err
	}

	for _, f := range []struct {
		kind eyetrack.FeatureKind
		file string
	}{{eyetrack.Pupil, PupilDensityPlot}, {eyetrack.CR, CRDensityPlot}} {
		d := r.Density(f.kind)
		if d == nil {
			continue
		}
		if err := save(densityPlot(d, f.kind), f.file, 8*vg.Inch, 8*vg.Inch); err != nil {
			return written, err
		}
	}
	eyetrack.Diagf("qc: wrote %d plots to %s", len(written), dir)
	return written, nil
}

func paramsPlot(samples []Sample, kind eyetrack.FeatureKind) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s ellipse parameters", kind)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Pixels"

	colors := generateColors(len(paramSeries))
	for i, s := range paramSeries {
		pts := make(plotter.XYs, 0, len(samples))
		for _, smp := range samples {
			if v := smp.Params(kind); v.Valid() {
				pts = append(pts, plotter.XY{X: float64(smp.Index), Y: s.value(v)})
			}
		}
		if err := addLine(p, pts, s.name, colors[i]); err != nil {
			return nil, err
		}
	}
	placeLegend(p)
	return p, nil
}

func anglePlot(samples []Sample) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Ellipse rotation"
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Degrees"

	colors := generateColors(len(eyetrack.FeatureKinds))
	for i, kind := range eyetrack.FeatureKinds {
		pts := make(plotter.XYs, 0, len(samples))
		for _, smp := range samples {
			if v := smp.Params(kind); v.Valid() {
				pts = append(pts, plotter.XY{X: float64(smp.Index), Y: v.Angle * 180 / math.Pi})
			}
		}
		if err := addLine(p, pts, kind.String(), colors[i]); err != nil {
			return nil, err
		}
	}
	placeLegend(p)
	return p, nil
}

func addLine(p *plot.Plot, pts plotter.XYs, label string, c color.Color) error {
	if len(pts) == 0 {
		return nil
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("%s line: %w", label, err)
	}
	line.Color = c
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}

func placeLegend(p *plot.Plot) {
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
}

// densityGrid adapts a centre histogram to plotter.GridXYZ. Rows are
// flipped so the plot reads like the image.
type densityGrid struct {
	m *mat.Dense
}

func (g densityGrid) Dims() (c, r int) {
	rows, cols := g.m.Dims()
	return cols, rows
}

func (g densityGrid) Z(c, r int) float64 {
	rows, _ := g.m.Dims()
	return g.m.At(rows-1-r, c)
}

func (g densityGrid) X(c int) float64 { return float64(c) }

func (g densityGrid) Y(r int) float64 {
	rows, _ := g.m.Dims()
	return float64(rows - 1 - r)
}

func densityPlot(d *mat.Dense, kind eyetrack.FeatureKind) *plot.Plot {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s centre density", kind)
	p.X.Label.Text = "Column"
	p.Y.Label.Text = "Row"
	if mat.Max(d) > 0 {
		p.Add(plotter.NewHeatMap(densityGrid{m: d}, palette.Heat(16, 1)))
	}
	return p
}

func savePlot(fsys fsutil.FileSystem, p *plot.Plot, w, h vg.Length, path string) error {
	wt, err := p.WriterTo(w, h, "png")
	if err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// generateColors returns n distinct colours spread around the hue circle.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3) * 255), uint8(hueToRGB(p, q, h) * 255), uint8(hueToRGB(p, q, h-1.0/3) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3:
		return p + (q-p)*(2.0/3-t)*6
	}
	return p
}
