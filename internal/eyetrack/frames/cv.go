package frames

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Mat copies f into a new single-channel 8-bit OpenCV matrix. The caller
// closes it.
func (f *Frame) Mat() (gocv.Mat, error) {
	m, err := gocv.NewMatFromBytes(f.Rows, f.Cols, gocv.MatTypeCV8UC1, f.Pix)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("frame to mat: %w", err)
	}
	return m, nil
}

// FromMat copies a single-channel 8-bit matrix into a new Frame.
func FromMat(m gocv.Mat) (*Frame, error) {
	if m.Type() != gocv.MatTypeCV8UC1 {
		return nil, fmt.Errorf("mat to frame: type %v, want CV_8UC1", m.Type())
	}
	f := NewFrame(m.Rows(), m.Cols())
	copy(f.Pix, m.ToBytes())
	return f, nil
}
