package frames

import (
	"fmt"
	"image"
	"image/png"
	"iter"
	"path/filepath"
	"strings"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
	"github.com/banshee-data/eyetrack/internal/fsutil"

	// Register the additional still-image codecs eye cameras export.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// frameExtensions are the file types DirSource reads, lower-case.
var frameExtensions = map[string]bool{
	".png":  true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// DirSource reads a recording stored as one image file per frame. Files
// are ordered by name, so zero-padded frame numbers sort correctly.
type DirSource struct {
	fs     fsutil.FileSystem
	dir    string
	files  []string
	shape  eyetrack.Shape
	closed bool
}

// OpenDirSource lists dir and decodes the header of the first frame to
// learn the stream shape. An empty directory is a valid zero-frame source
// with an empty shape.
func OpenDirSource(fsys fsutil.FileSystem, dir string) (*DirSource, error) {
	names, err := fsys.ListFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("list frames in %s: %w", dir, err)
	}
	s := &DirSource{fs: fsys, dir: dir}
	for _, name := range names {
		if frameExtensions[strings.ToLower(filepath.Ext(name))] {
			s.files = append(s.files, filepath.Join(dir, name))
		}
	}
	if len(s.files) == 0 {
		return s, nil
	}

	r, err := fsys.Open(s.files[0])
	if err != nil {
		return nil, fmt.Errorf("open first frame: %w", err)
	}
	defer r.Close()
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return nil, fmt.Errorf("decode first frame header %s: %w", s.files[0], err)
	}
	s.shape = eyetrack.Shape{Rows: cfg.Height, Cols: cfg.Width}
	return s, nil
}

// Shape implements Source.
func (s *DirSource) Shape() eyetrack.Shape { return s.shape }

// NumFrames implements Source.
func (s *DirSource) NumFrames() int { return len(s.files) }

// Frames implements Source.
func (s *DirSource) Frames(start int) iter.Seq2[*Frame, error] {
	return func(yield func(*Frame, error) bool) {
		if s.closed {
			yield(nil, ErrClosed)
			return
		}
		for i := max(start, 0); i < len(s.files); i++ {
			f, err := s.decode(s.files[i])
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

func (s *DirSource) decode(path string) (*Frame, error) {
	r, err := s.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	f := FromImage(img)
	if err := f.CheckShape(s.shape); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Close implements Source.
func (s *DirSource) Close() error {
	s.closed = true
	return nil
}

// DirSink writes annotated frames as a numbered PNG sequence.
type DirSink struct {
	fs     fsutil.FileSystem
	dir    string
	shape  eyetrack.Shape
	n      int
	closed bool
}

// NewDirSink creates dir and returns a sink for frames of shape.
func NewDirSink(fsys fsutil.FileSystem, dir string, shape eyetrack.Shape) (*DirSink, error) {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create annotation dir: %w", err)
	}
	return &DirSink{fs: fsys, dir: dir, shape: shape}, nil
}

// Write implements Sink.
func (d *DirSink) Write(img *image.RGBA) error {
	if d.closed {
		return ErrClosed
	}
	if err := checkRGBAShape(img, d.shape); err != nil {
		return err
	}
	path := filepath.Join(d.dir, fmt.Sprintf("frame_%06d.png", d.n))
	w, err := d.fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(w, img); err != nil {
		w.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	d.n++
	return nil
}

// Count returns the number of frames written.
func (d *DirSink) Count() int { return d.n }

// Close implements Sink.
func (d *DirSink) Close() error {
	d.closed = true
	return nil
}
