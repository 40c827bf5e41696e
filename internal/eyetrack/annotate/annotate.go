// Package annotate renders tracker results over the input frame: fitted
// ellipse outlines, the starburst seed, the candidate points and a frame
// index label.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
	"github.com/banshee-data/eyetrack/internal/eyetrack/ellipse"
	"github.com/banshee-data/eyetrack/internal/eyetrack/frames"
	"github.com/banshee-data/eyetrack/internal/eyetrack/locate"
)

// Default colours.
var (
	PupilColor     = color.RGBA{R: 40, G: 90, B: 255, A: 255}
	CRColor        = color.RGBA{R: 255, G: 40, B: 40, A: 255}
	SeedColor      = color.RGBA{R: 0, G: 220, B: 0, A: 255}
	CandidateColor = color.RGBA{R: 255, G: 170, B: 0, A: 255}
	LabelColor     = color.RGBA{R: 255, G: 255, B: 0, A: 255}
)

// Renderer draws results onto an RGB copy of a frame. The zero value
// draws nothing but the grey frame; use NewRenderer for the defaults.
type Renderer struct {
	Colors     map[eyetrack.FeatureKind]color.RGBA
	Seed       color.RGBA
	Candidate  color.RGBA
	Label      color.RGBA
	SeedSize   int  // half-length of the seed cross arms, in pixels
	Candidates bool // draw candidate points
	FrameLabel bool // draw "frame N" in the top-left corner
}

// NewRenderer returns a renderer with every overlay enabled.
func NewRenderer() *Renderer {
	return &Renderer{
		Colors: map[eyetrack.FeatureKind]color.RGBA{
			eyetrack.Pupil: PupilColor,
			eyetrack.CR:    CRColor,
		},
		Seed:       SeedColor,
		Candidate:  CandidateColor,
		Label:      LabelColor,
		SeedSize:   3,
		Candidates: true,
		FrameLabel: true,
	}
}

// Annotate returns a new RGBA image of img with results drawn over it.
// Overlays are stroked on a transparent vector canvas and composited over
// the frame. Candidates go first so outlines and seeds stay on top.
func (r *Renderer) Annotate(img *frames.Frame, index int, results ...locate.Result) *image.RGBA {
	dst := img.RGBA()
	c := newOverlay(img.Rows, img.Cols)
	if r.Candidates {
		for _, res := range results {
			for _, p := range res.Candidates {
				c.dot(p, r.Candidate)
			}
		}
	}
	for _, res := range results {
		col, ok := r.Colors[res.Kind]
		if !ok || !res.Found() {
			continue
		}
		c.polygon(ellipse.Outline(res.Params, outlineSamples(res.Params)), col)
	}
	if r.SeedSize > 0 {
		for _, res := range results {
			c.cross(res.Seed, r.SeedSize, r.Seed)
		}
	}
	draw.Draw(dst, dst.Bounds(), c.Image(), image.Point{}, draw.Over)
	if r.FrameLabel {
		drawLabel(dst, fmt.Sprintf("frame %d", index), r.Label)
	}
	return dst
}

// outlineSamples keeps neighbouring outline vertices about two pixels
// apart.
func outlineSamples(e eyetrack.EllipseParams) int {
	return max(64, int(math.Ceil(math.Pi*math.Max(e.SemiA, e.SemiB))))
}

// overlay is a transparent canvas the size of the frame at 72 dpi, so one
// point is one pixel. Points map pixel centres to canvas coordinates,
// whose origin is the bottom-left corner.
type overlay struct {
	*vgimg.Canvas
	rows int
}

func newOverlay(rows, cols int) overlay {
	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(cols), vg.Length(rows)),
		vgimg.UseDPI(72),
		vgimg.UseBackgroundColor(color.Transparent),
	)
	c.SetLineWidth(1)
	return overlay{Canvas: c, rows: rows}
}

func (o overlay) pt(p eyetrack.Point) vg.Point {
	return vg.Point{X: vg.Length(p.Col + 0.5), Y: vg.Length(float64(o.rows) - p.Row - 0.5)}
}

// dot fills the pixel under p.
func (o overlay) dot(p eyetrack.Point, c color.Color) {
	if !finite(p) {
		return
	}
	centre := o.pt(eyetrack.Point{Row: math.Round(p.Row), Col: math.Round(p.Col)})
	var path vg.Path
	path.Move(vg.Point{X: centre.X - 0.5, Y: centre.Y - 0.5})
	path.Line(vg.Point{X: centre.X + 0.5, Y: centre.Y - 0.5})
	path.Line(vg.Point{X: centre.X + 0.5, Y: centre.Y + 0.5})
	path.Line(vg.Point{X: centre.X - 0.5, Y: centre.Y + 0.5})
	path.Close()
	o.SetColor(c)
	o.Fill(path)
}

func (o overlay) polygon(pts []eyetrack.Point, c color.Color) {
	if len(pts) < 2 {
		return
	}
	var path vg.Path
	path.Move(o.pt(pts[0]))
	for _, p := range pts[1:] {
		path.Line(o.pt(p))
	}
	path.Close()
	o.SetColor(c)
	o.Stroke(path)
}

// cross draws arms of size pixels either side of p, covering the end
// pixels fully.
func (o overlay) cross(p eyetrack.Point, size int, c color.Color) {
	if !finite(p) {
		return
	}
	arm := vg.Length(size) + 0.5
	centre := o.pt(p)
	var path vg.Path
	path.Move(vg.Point{X: centre.X - arm, Y: centre.Y})
	path.Line(vg.Point{X: centre.X + arm, Y: centre.Y})
	path.Move(vg.Point{X: centre.X, Y: centre.Y - arm})
	path.Line(vg.Point{X: centre.X, Y: centre.Y + arm})
	o.SetColor(c)
	o.Stroke(path)
}

func finite(p eyetrack.Point) bool {
	return !math.IsNaN(p.Row) && !math.IsNaN(p.Col) && !math.IsInf(p.Row, 0) && !math.IsInf(p.Col, 0)
}

func drawLabel(dst *image.RGBA, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(2, face.Ascent+1),
	}
	d.DrawString(text)
}
