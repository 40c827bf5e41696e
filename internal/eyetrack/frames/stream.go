package frames

import (
	"errors"
	"fmt"
	"image"
	"iter"
	"sync"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
)

// ErrClosed is returned by sources and sinks used after Close.
var ErrClosed = errors.New("stream closed")

// Source provides the frames of one recording. Every frame has Shape().
type Source interface {
	// Shape is the fixed frame shape of the stream.
	Shape() eyetrack.Shape
	// NumFrames is the number of frames in the stream; it may be zero.
	NumFrames() int
	// Frames yields the frames from index start onwards, in order. A read
	// failure is yielded once as (nil, err) and ends the sequence. Ranging
	// again restarts from start.
	Frames(start int) iter.Seq2[*Frame, error]
	// Close releases the source.
	Close() error
}

// Sink accepts annotated three-channel frames, one per Write.
type Sink interface {
	Write(img *image.RGBA) error
	Close() error
}

// SliceSource serves frames held in memory.
type SliceSource struct {
	shape  eyetrack.Shape
	frames []*Frame
	closed bool
}

// NewSliceSource returns a source over frames. shape is used when frames
// is empty; otherwise every frame must match it.
func NewSliceSource(shape eyetrack.Shape, frames ...*Frame) (*SliceSource, error) {
	for i, f := range frames {
		if err := f.CheckShape(shape); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return &SliceSource{shape: shape, frames: frames}, nil
}

// Shape implements Source.
func (s *SliceSource) Shape() eyetrack.Shape { return s.shape }

// NumFrames implements Source.
func (s *SliceSource) NumFrames() int { return len(s.frames) }

// Frames implements Source.
func (s *SliceSource) Frames(start int) iter.Seq2[*Frame, error] {
	return func(yield func(*Frame, error) bool) {
		if s.closed {
			yield(nil, ErrClosed)
			return
		}
		for i := max(start, 0); i < len(s.frames); i++ {
			if !yield(s.frames[i], nil) {
				return
			}
		}
	}
}

// Close implements Source.
func (s *SliceSource) Close() error {
	s.closed = true
	return nil
}

// MemorySink keeps every written frame. It is safe for concurrent use so
// batch runs can share one in tests.
type MemorySink struct {
	mu     sync.Mutex
	shape  eyetrack.Shape
	frames []*image.RGBA
	closed bool
}

// NewMemorySink returns a sink that accepts frames of the given shape.
func NewMemorySink(shape eyetrack.Shape) *MemorySink {
	return &MemorySink{shape: shape}
}

// Write implements Sink.
func (m *MemorySink) Write(img *image.RGBA) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if err := checkRGBAShape(img, m.shape); err != nil {
		return err
	}
	m.frames = append(m.frames, img)
	return nil
}

// Close implements Sink.
func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Frames returns the frames written so far.
func (m *MemorySink) Frames() []*image.RGBA {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*image.RGBA(nil), m.frames...)
}

// Closed reports whether Close has been called.
func (m *MemorySink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func checkRGBAShape(img *image.RGBA, shape eyetrack.Shape) error {
	b := img.Bounds()
	if b.Dy() != shape.Rows || b.Dx() != shape.Cols {
		return fmt.Errorf("annotated frame %dx%d does not match stream shape %s", b.Dy(), b.Dx(), shape)
	}
	return nil
}
