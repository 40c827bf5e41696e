package qc

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
	"github.com/banshee-data/eyetrack/internal/fsutil"
)

// ReportFile is the HTML report name, relative to the QC directory.
const ReportFile = "qc_report.html"

// missing is how echarts marks a gap in a line series.
const missing = "-"

// WriteHTML renders an interactive report of the recorded frames into dir
// and returns its path.
func (r *Recorder) WriteHTML(fsys fsutil.FileSystem, dir string) (string, error) {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create qc dir: %w", err)
	}
	samples := r.Samples()

	page := components.NewPage()
	for _, kind := range []eyetrack.FeatureKind{eyetrack.Pupil, eyetrack.CR} {
		page.AddCharts(r.paramsChart(samples, kind), r.centreChart(samples, kind))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return "", fmt.Errorf("render qc report: %w", err)
	}
	path := filepath.Join(dir, ReportFile)
	if err := fsys.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("write qc report: %w", err)
	}
	return path, nil
}

func (r *Recorder) paramsChart(samples []Sample, kind eyetrack.FeatureKind) *charts.Line {
	x := make([]int, len(samples))
	for i, s := range samples {
		x[i] = s.Index
	}
	sum := r.Summarize(kind)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Eye tracking QC", Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s ellipse parameters", kind),
			Subtitle: fmt.Sprintf("found %d/%d frames", sum.Found, sum.Frames),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "px", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(x)
	for _, s := range paramSeries {
		data := make([]opts.LineData, len(samples))
		for i, smp := range samples {
			if p := smp.Params(kind); p.Valid() {
				data[i] = opts.LineData{Value: s.value(p)}
			} else {
				data[i] = opts.LineData{Value: missing}
			}
		}
		line.AddSeries(s.name, data)
	}
	return line
}

func (r *Recorder) centreChart(samples []Sample, kind eyetrack.FeatureKind) *charts.Scatter {
	data := make([]opts.ScatterData, 0, len(samples))
	for _, s := range samples {
		if p := s.Params(kind); p.Valid() {
			data = append(data, opts.ScatterData{Value: []interface{}{p.CenterCol, p.CenterRow, s.Index}})
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "600px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s centres", kind), Subtitle: fmt.Sprintf("frame %s", r.shape)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: r.shape.Cols, Name: "col", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: r.shape.Rows, Name: "row", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Dimension:  "2",
			Min:        0,
			Max:        float32(max(len(samples)-1, 1)),
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#3e4989", "#26828e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("centre", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	return scatter
}
