package qc

import (
	"bytes"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
	"github.com/banshee-data/eyetrack/internal/fsutil"
)

func circle(row, col, r float64) eyetrack.EllipseParams {
	return eyetrack.EllipseParams{CenterRow: row, CenterCol: col, SemiA: r, SemiB: r}
}

func filledRecorder() *Recorder {
	r := NewRecorder(eyetrack.Shape{Rows: 50, Cols: 60})
	r.Record(0, circle(20, 30, 10), circle(21, 31, 2))
	r.Record(1, circle(22, 30, 12), eyetrack.NoFit())
	r.Record(2, eyetrack.NoFit(), circle(21.4, 30.6, 2))
	r.Record(3, circle(20, 30, 11), circle(-5, 70, 2))
	return r
}

func TestRecorder_Density(t *testing.T) {
	r := filledRecorder()
	if r.Len() != 4 {
		t.Fatalf("Len = %d, want 4", r.Len())
	}

	pupil := r.Density(eyetrack.Pupil)
	if got := pupil.At(20, 30); got != 2 {
		t.Errorf("pupil density at (20,30) = %v, want 2", got)
	}
	if got := pupil.At(22, 30); got != 1 {
		t.Errorf("pupil density at (22,30) = %v, want 1", got)
	}

	cr := r.Density(eyetrack.CR)
	if got := cr.At(21, 31); got != 2 {
		t.Errorf("cr density at (21,31) = %v, want 2 (rounded centres)", got)
	}
	total := 0.0
	rows, cols := cr.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			total += cr.At(i, j)
		}
	}
	if total != 2 {
		t.Errorf("cr density total = %v, want 2 (off-frame centre dropped)", total)
	}

	// Density returns a copy.
	pupil.Set(0, 0, 99)
	if r.Density(eyetrack.Pupil).At(0, 0) != 0 {
		t.Error("Density exposed internal state")
	}
}

func TestRecorder_EmptyShape(t *testing.T) {
	r := NewRecorder(eyetrack.Shape{})
	r.Record(0, circle(1, 1, 1), circle(1, 1, 1))
	if r.Density(eyetrack.Pupil) != nil {
		t.Error("expected nil density for empty shape")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRecorder_Summarize(t *testing.T) {
	r := filledRecorder()

	s := r.Summarize(eyetrack.Pupil)
	if s.Frames != 4 || s.Found != 3 {
		t.Fatalf("frames/found = %d/%d, want 4/3", s.Frames, s.Found)
	}
	if math.Abs(s.FoundRate()-0.75) > 1e-12 {
		t.Errorf("FoundRate = %v", s.FoundRate())
	}
	if math.Abs(s.MeanCenterRow-62.0/3) > 1e-9 || s.MeanCenterCol != 30 || s.StdCenterCol != 0 {
		t.Errorf("centre stats = %+v", s)
	}
	if math.Abs(s.MeanSemiA-11) > 1e-9 {
		t.Errorf("MeanSemiA = %v, want 11", s.MeanSemiA)
	}

	empty := NewRecorder(eyetrack.Shape{Rows: 5, Cols: 5}).Summarize(eyetrack.CR)
	if empty.FoundRate() != 0 || !math.IsNaN(empty.MeanCenterRow) {
		t.Errorf("empty summary = %+v", empty)
	}
}

func TestRecorder_ConcurrentRecord(t *testing.T) {
	r := NewRecorder(eyetrack.Shape{Rows: 10, Cols: 10})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				r.Record(i*25+j, circle(5, 5, 1), eyetrack.NoFit())
			}
		}()
	}
	wg.Wait()
	if r.Len() != 200 {
		t.Errorf("Len = %d, want 200", r.Len())
	}
	if got := r.Density(eyetrack.Pupil).At(5, 5); got != 200 {
		t.Errorf("density = %v, want 200", got)
	}
}

func TestWritePlots(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	paths, err := filledRecorder().WritePlots(fsys, "out/qc")
	if err != nil {
		t.Fatalf("WritePlots: %v", err)
	}
	want := []string{PupilParamsPlot, CRParamsPlot, AnglePlot, PupilDensityPlot, CRDensityPlot}
	if len(paths) != len(want) {
		t.Fatalf("wrote %v, want %d files", paths, len(want))
	}
	pngMagic := []byte("\x89PNG")
	for i, name := range want {
		if !strings.HasSuffix(paths[i], name) {
			t.Errorf("path %d = %s, want suffix %s", i, paths[i], name)
		}
		data, err := fsys.ReadFile(paths[i])
		if err != nil {
			t.Fatalf("read %s: %v", paths[i], err)
		}
		if !bytes.HasPrefix(data, pngMagic) {
			t.Errorf("%s is not a PNG", paths[i])
		}
	}
}

func TestWritePlots_NoFits(t *testing.T) {
	r := NewRecorder(eyetrack.Shape{Rows: 20, Cols: 20})
	r.Record(0, eyetrack.NoFit(), eyetrack.NoFit())
	paths, err := r.WritePlots(fsutil.NewMemoryFileSystem(), "qc")
	if err != nil {
		t.Fatalf("WritePlots: %v", err)
	}
	if len(paths) != 5 {
		t.Errorf("wrote %d plots, want 5", len(paths))
	}
}

func TestWriteHTML(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	path, err := filledRecorder().WriteHTML(fsys, "qc")
	if err != nil {
		t.Fatalf("WriteHTML: %v", err)
	}
	if !strings.HasSuffix(path, ReportFile) {
		t.Errorf("path = %s", path)
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	html := string(data)
	for _, want := range []string{"pupil ellipse parameters", "cr centres", "center_row"} {
		if !strings.Contains(html, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestGenerateColors(t *testing.T) {
	if generateColors(0) != nil {
		t.Error("expected nil for n=0")
	}
	colors := generateColors(4)
	seen := map[any]bool{}
	for _, c := range colors {
		seen[c] = true
	}
	if len(seen) != 4 {
		t.Errorf("colours not distinct: %v", colors)
	}
}
