package frames

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
	"github.com/banshee-data/eyetrack/internal/fsutil"
)

func TestFromImage_GrayWithOffsetBounds(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 4, 3))
	for i := range g.Pix {
		g.Pix[i] = uint8(i)
	}
	sub := g.SubImage(image.Rect(1, 1, 3, 3)).(*image.Gray)

	f := FromImage(sub)
	if f.Rows != 2 || f.Cols != 2 {
		t.Fatalf("shape = %dx%d, want 2x2", f.Rows, f.Cols)
	}
	want := []uint8{5, 6, 9, 10}
	for i, v := range want {
		if f.Pix[i] != v {
			t.Errorf("Pix[%d] = %d, want %d", i, f.Pix[i], v)
		}
	}
}

func TestFromImage_RGBConvertsToLuma(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.White)
	img.Set(1, 0, color.Black)

	f := FromImage(img)
	if f.At(0, 0) != 255 || f.At(0, 1) != 0 {
		t.Errorf("got %v, want [255 0]", f.Pix)
	}
}

func TestFrame_CloneIsIndependent(t *testing.T) {
	f := NewUniformFrame(2, 2, 7)
	c := f.Clone()
	c.Set(0, 0, 99)
	if f.At(0, 0) != 7 {
		t.Error("Clone shares pixel memory")
	}
	if !f.InBounds(1, 1) || f.InBounds(2, 0) || f.InBounds(0, -1) {
		t.Error("InBounds wrong at edges")
	}
}

func TestFrame_RGBAKeepsShape(t *testing.T) {
	f := NewUniformFrame(3, 5, 42)
	rgba := f.RGBA()
	if rgba.Bounds().Dx() != 5 || rgba.Bounds().Dy() != 3 {
		t.Fatalf("bounds = %v", rgba.Bounds())
	}
	if c := rgba.RGBAAt(4, 2); c.R != 42 || c.G != 42 || c.B != 42 {
		t.Errorf("pixel = %v", c)
	}
}

func TestMedianFilter_RemovesImpulseNoise(t *testing.T) {
	f := NewUniformFrame(9, 9, 100)
	f.Set(4, 4, 255)
	f.Set(0, 0, 0)

	out, err := MedianFilter(f, 3)
	if err != nil {
		t.Fatalf("MedianFilter: %v", err)
	}
	for i, v := range out.Pix {
		if v != 100 {
			t.Fatalf("pixel %d = %d, want 100", i, v)
		}
	}
	if f.At(4, 4) != 255 {
		t.Error("MedianFilter modified its input")
	}
}

func TestMedianFilter_PreservesStepEdge(t *testing.T) {
	f := NewFrame(10, 10)
	for r := 0; r < 10; r++ {
		for c := 5; c < 10; c++ {
			f.Set(r, c, 200)
		}
	}
	out, err := MedianFilter(f, 5)
	if err != nil {
		t.Fatalf("MedianFilter: %v", err)
	}
	for r := 0; r < 10; r++ {
		for c := 0; c < 10; c++ {
			want := uint8(0)
			if c >= 5 {
				want = 200
			}
			if out.At(r, c) != want {
				t.Fatalf("(%d,%d) = %d, want %d", r, c, out.At(r, c), want)
			}
		}
	}
}

func TestMedianFilter_SmallKernelIsCopy(t *testing.T) {
	f := NewUniformFrame(2, 2, 1)
	f.Set(0, 0, 9)
	out, err := MedianFilter(f, 1)
	if err != nil {
		t.Fatalf("MedianFilter: %v", err)
	}
	if out.At(0, 0) != 9 {
		t.Error("kernel 1 should leave pixels untouched")
	}
}

func TestMeanAccumulator_Incremental(t *testing.T) {
	shape := eyetrack.Shape{Rows: 1, Cols: 2}
	acc := NewMeanAccumulator(shape)
	if acc.Frame() != nil {
		t.Fatal("expected nil mean before first frame")
	}

	for _, v := range []uint8{10, 20, 60} {
		f := NewUniformFrame(1, 2, v)
		if err := acc.Add(f); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if acc.Count() != 3 {
		t.Errorf("Count = %d, want 3", acc.Count())
	}
	if m := acc.Frame(); m.At(0, 0) != 30 || m.At(0, 1) != 30 {
		t.Errorf("mean = %v, want [30 30]", m.Pix)
	}

	if err := acc.Add(NewFrame(2, 2)); err == nil {
		t.Error("expected shape mismatch error")
	}
}

func TestMeanOf(t *testing.T) {
	shape := eyetrack.Shape{Rows: 2, Cols: 2}
	src, err := NewSliceSource(shape, NewUniformFrame(2, 2, 0), NewUniformFrame(2, 2, 100))
	if err != nil {
		t.Fatal(err)
	}
	m, err := MeanOf(src)
	if err != nil {
		t.Fatalf("MeanOf failed: %v", err)
	}
	if m.At(1, 1) != 50 {
		t.Errorf("mean = %d, want 50", m.At(1, 1))
	}

	empty, _ := NewSliceSource(shape)
	m, err = MeanOf(empty)
	if err != nil || m.Shape() != shape {
		t.Errorf("empty source: %v, %v", m, err)
	}

	shapeless, _ := NewSliceSource(eyetrack.Shape{})
	m, err = MeanOf(shapeless)
	if err != nil || m != nil {
		t.Errorf("shapeless source: %v, %v; want nil frame", m, err)
	}
}

func TestSliceSource_StartAndRestart(t *testing.T) {
	shape := eyetrack.Shape{Rows: 1, Cols: 1}
	var fs []*Frame
	for i := 0; i < 5; i++ {
		fs = append(fs, NewUniformFrame(1, 1, uint8(i)))
	}
	src, err := NewSliceSource(shape, fs...)
	if err != nil {
		t.Fatal(err)
	}

	for pass := 0; pass < 2; pass++ {
		var got []uint8
		for f, err := range src.Frames(3) {
			if err != nil {
				t.Fatal(err)
			}
			got = append(got, f.At(0, 0))
		}
		if len(got) != 2 || got[0] != 3 || got[1] != 4 {
			t.Errorf("pass %d: got %v, want [3 4]", pass, got)
		}
	}

	n := 0
	for range src.Frames(10) {
		n++
	}
	if n != 0 {
		t.Errorf("start past end yielded %d frames", n)
	}

	src.Close()
	for _, err := range src.Frames(0) {
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	}
}

func TestNewSliceSource_RejectsMismatchedFrame(t *testing.T) {
	_, err := NewSliceSource(eyetrack.Shape{Rows: 2, Cols: 2}, NewFrame(2, 3))
	if err == nil {
		t.Fatal("expected error for mismatched frame")
	}
}

func TestMemorySink_ChecksShape(t *testing.T) {
	sink := NewMemorySink(eyetrack.Shape{Rows: 2, Cols: 3})
	if err := sink.Write(image.NewRGBA(image.Rect(0, 0, 3, 2))); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := sink.Write(image.NewRGBA(image.Rect(0, 0, 2, 3))); err == nil {
		t.Error("expected error for transposed frame")
	}
	sink.Close()
	if !sink.Closed() || len(sink.Frames()) != 1 {
		t.Errorf("closed=%v frames=%d", sink.Closed(), len(sink.Frames()))
	}
	if err := sink.Write(image.NewRGBA(image.Rect(0, 0, 3, 2))); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func encodePNG(t *testing.T, f *Frame) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, f.Gray()); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDirSource_ReadsFramesInNameOrder(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	_ = mfs.WriteFile("/rec/frame_0002.png", encodePNG(t, NewUniformFrame(4, 6, 2)), 0644)
	_ = mfs.WriteFile("/rec/frame_0001.png", encodePNG(t, NewUniformFrame(4, 6, 1)), 0644)
	_ = mfs.WriteFile("/rec/notes.txt", []byte("ignored"), 0644)

	src, err := OpenDirSource(mfs, "/rec")
	if err != nil {
		t.Fatalf("OpenDirSource failed: %v", err)
	}
	if src.NumFrames() != 2 {
		t.Fatalf("NumFrames = %d, want 2", src.NumFrames())
	}
	if src.Shape() != (eyetrack.Shape{Rows: 4, Cols: 6}) {
		t.Fatalf("Shape = %v", src.Shape())
	}

	var got []uint8
	for f, err := range src.Frames(0) {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, f.At(0, 0))
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("frames = %v, want [1 2]", got)
	}
}

func TestDirSource_ShapeMismatchIsAnError(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	_ = mfs.WriteFile("/rec/a.png", encodePNG(t, NewFrame(4, 4)), 0644)
	_ = mfs.WriteFile("/rec/b.png", encodePNG(t, NewFrame(5, 4)), 0644)

	src, err := OpenDirSource(mfs, "/rec")
	if err != nil {
		t.Fatal(err)
	}
	var last error
	n := 0
	for _, err := range src.Frames(0) {
		n++
		last = err
	}
	if n != 2 || last == nil {
		t.Errorf("expected second frame to fail, got n=%d err=%v", n, last)
	}
}

func TestDirSource_EmptyDirectory(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	_ = mfs.MkdirAll("/empty", 0755)
	src, err := OpenDirSource(mfs, "/empty")
	if err != nil {
		t.Fatalf("OpenDirSource failed: %v", err)
	}
	if src.NumFrames() != 0 || !src.Shape().Empty() {
		t.Errorf("expected empty source, got %d frames shape %v", src.NumFrames(), src.Shape())
	}
}

func TestDirSink_WritesNumberedPNGs(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	shape := eyetrack.Shape{Rows: 3, Cols: 3}
	sink, err := NewDirSink(mfs, "/anno", shape)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := sink.Write(NewFrame(3, 3).RGBA()); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}
	if sink.Count() != 2 {
		t.Errorf("Count = %d", sink.Count())
	}
	if !mfs.Exists("/anno/frame_000001.png") {
		t.Errorf("missing second frame, have %v", mfs.Paths())
	}

	// The written sequence reads back as a source.
	src, err := OpenDirSource(mfs, "/anno")
	if err != nil || src.NumFrames() != 2 || src.Shape() != shape {
		t.Errorf("read back: %v frames=%d shape=%v", err, src.NumFrames(), src.Shape())
	}
}

func TestMat_RoundTrip(t *testing.T) {
	f := NewFrame(3, 4)
	for i := range f.Pix {
		f.Pix[i] = uint8(i * 20)
	}
	m, err := f.Mat()
	if err != nil {
		t.Fatalf("Mat: %v", err)
	}
	defer m.Close()
	if m.Rows() != 3 || m.Cols() != 4 {
		t.Fatalf("mat dims = %dx%d", m.Rows(), m.Cols())
	}
	if got := m.GetUCharAt(2, 1); got != 180 {
		t.Errorf("mat(2,1) = %d, want 180", got)
	}
	back, err := FromMat(m)
	if err != nil {
		t.Fatalf("FromMat: %v", err)
	}
	if back.Shape() != f.Shape() || string(back.Pix) != string(f.Pix) {
		t.Errorf("round trip = %v, want %v", back.Pix, f.Pix)
	}
}
