package frames

import (
	"fmt"

	"gocv.io/x/gocv"
)

// MedianFilter returns a copy of f where every pixel is replaced by the
// median of the kernelSize×kernelSize window around it. Edges replicate the
// border pixels. Even sizes are rounded up; values below 3 return a plain
// clone.
func MedianFilter(f *Frame, kernelSize int) (*Frame, error) {
	if kernelSize < 3 || f.Rows == 0 || f.Cols == 0 {
		return f.Clone(), nil
	}
	if kernelSize%2 == 0 {
		kernelSize++
	}
	src, err := f.Mat()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()

	gocv.MedianBlur(src, &dst, kernelSize)
	if dst.Empty() {
		return nil, fmt.Errorf("median blur %d: empty result", kernelSize)
	}
	return FromMat(dst)
}
