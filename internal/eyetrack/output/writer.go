// Package output persists a tracking run: the per-frame ellipse parameters
// as NumPy arrays, the mean frame as a PNG and a JSON manifest describing
// the run.
package output

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image/png"
	"io"
	"path/filepath"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/eyetrack/internal/eyetrack"
	"github.com/banshee-data/eyetrack/internal/eyetrack/frames"
	"github.com/banshee-data/eyetrack/internal/fsutil"
)

// Artifact names, relative to the output directory.
const (
	PupilParamsFile = "pupil_params.npy"
	CRParamsFile    = "cr_params.npy"
	MeanFrameFile   = "mean_frame.png"
	ManifestFile    = "output.json"
	AnnotationDir   = "annotated"
	QCDir           = "qc"
)

// paramColumns is the column count of a parameter array: center_row,
// center_col, semi_a, semi_b, rotation.
const paramColumns = 5

// Writer writes run artifacts into one directory.
type Writer struct {
	fs  fsutil.FileSystem
	dir string
}

// NewWriter creates dir if needed.
func NewWriter(fsys fsutil.FileSystem, dir string) (*Writer, error) {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Writer{fs: fsys, dir: dir}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// Path joins name onto the output directory.
func (w *Writer) Path(name string) string { return filepath.Join(w.dir, name) }

// FileSystem returns the filesystem the writer uses.
func (w *Writer) FileSystem() fsutil.FileSystem { return w.fs }

// ParamsMatrix stacks params into an N×5 matrix, NoFit rows as NaN. It
// returns nil for no params, since a gonum matrix cannot be empty.
func ParamsMatrix(params []eyetrack.EllipseParams) *mat.Dense {
	if len(params) == 0 {
		return nil
	}
	m := mat.NewDense(len(params), paramColumns, nil)
	for i, p := range params {
		row := p.Array()
		m.SetRow(i, row[:])
	}
	return m
}

// WriteParams writes params to name as a float64 array of shape (N, 5).
// An empty run keeps the (0, 5) shape.
func (w *Writer) WriteParams(name string, params []eyetrack.EllipseParams) (string, error) {
	path := w.Path(name)
	f, err := w.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if m := ParamsMatrix(params); m != nil {
		err = npyio.Write(f, m)
	} else {
		err = writeEmptyParams(f)
	}
	if err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}

// writeEmptyParams writes a version 1.0 header for a (0, 5) float64 array
// and no data. npyio.Write only knows (0,) for empty values.
func writeEmptyParams(w io.Writer) error {
	dict := fmt.Sprintf("{'descr': '<f8', 'fortran_order': False, 'shape': (0, %d), }", paramColumns)
	// magic, two version bytes and the uint16 length prefix
	prefix := len(npyio.Magic) + 4
	pad := 64 - (prefix+len(dict)+1)%64
	if pad == 64 {
		pad = 0
	}
	var buf bytes.Buffer
	buf.Write(npyio.Magic[:])
	buf.Write([]byte{1, 0})
	binary.Write(&buf, binary.LittleEndian, uint16(len(dict)+pad+1))
	buf.WriteString(dict)
	buf.Write(bytes.Repeat([]byte{' '}, pad))
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadParams reads an array written by WriteParams.
func ReadParams(fsys fsutil.FileSystem, path string) ([]eyetrack.EllipseParams, error) {
	r, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()
	npy, err := npyio.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	shape := npy.Header.Descr.Shape
	if len(shape) == 1 && shape[0] == 0 {
		return []eyetrack.EllipseParams{}, nil
	}
	if len(shape) != 2 || shape[1] != paramColumns {
		return nil, fmt.Errorf("read %s: shape %v, want (N, %d)", path, shape, paramColumns)
	}
	if shape[0] == 0 {
		return []eyetrack.EllipseParams{}, nil
	}
	var m mat.Dense
	if err := npy.Read(&m); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	rows, _ := m.Dims()
	params := make([]eyetrack.EllipseParams, rows)
	for i := range params {
		params[i] = eyetrack.EllipseParams{
			CenterRow: m.At(i, 0),
			CenterCol: m.At(i, 1),
			SemiA:     m.At(i, 2),
			SemiB:     m.At(i, 3),
			Angle:     m.At(i, 4),
		}
	}
	return params, nil
}

// WriteMeanFrame writes f as an 8-bit grey PNG.
func (w *Writer) WriteMeanFrame(f *frames.Frame) (string, error) {
	path := w.Path(MeanFrameFile)
	out, err := w.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(out, f.Gray()); err != nil {
		out.Close()
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}
