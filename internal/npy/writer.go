// Package npy writes and reads NumPy .npy arrays of little-endian float32
// rows. The writer reserves a fixed-size header so the shape can be patched in
// place after every append, which keeps appends proportional to the data
// written and leaves a loadable file on disk after each one.
package npy

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/w2vfeat/internal/feature"
)

const (
	magic = "\x93NUMPY"
	// HeaderSize is the total number of bytes before the first row. It is a
	// multiple of 64 and leaves room for two 20-digit dimensions.
	HeaderSize = 128
	descr      = "<f4"
)

var (
	ErrDim    = errors.New("npy: row width changed between appends")
	ErrClosed = errors.New("npy: writer closed")
)

// Writer appends float32 rows to a 2-D .npy file.
type Writer struct {
	f    *os.File
	path string
	rows int64
	cols int
	buf  []byte
}

var _ feature.Store = (*Writer)(nil)

// Create removes any existing file at path and starts a fresh array. dim may
// be zero when the row width is only known after the first append.
func Create(path string, dim int) (*Writer, error) {
	if err := os.Remove(path); err == nil {
		log.Info().Str("path", path).Msg("npy: removed stale array")
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale array: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	w := &Writer{f: f, path: path, cols: dim}
	hdr, err := encodeHeader(0, dim)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.Write(hdr); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return w, nil
}

func (w *Writer) Path() string { return w.path }
func (w *Writer) Rows() int64  { return w.rows }
func (w *Writer) Dim() int     { return w.cols }

// Append writes m's rows after the existing data and patches the header.
// Empty matrices are a no-op.
func (w *Writer) Append(m feature.Matrix) error {
	if w.f == nil {
		return ErrClosed
	}
	if m.Rows == 0 {
		return nil
	}
	if w.cols == 0 {
		w.cols = m.Cols
	} else if m.Cols != w.cols {
		return fmt.Errorf("%w: have %d, got %d", ErrDim, w.cols, m.Cols)
	}
	need := 4 * len(m.Data)
	if cap(w.buf) < need {
		w.buf = make([]byte, need)
	}
	buf := w.buf[:need]
	for i, v := range m.Data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	if _, err := w.f.Write(buf); err != nil {
		return fmt.Errorf("append rows: %w", err)
	}
	w.rows += int64(m.Rows)
	return w.patchHeader()
}

func (w *Writer) patchHeader() error {
	if err := w.patchHeaderTo(w.f); err != nil {
		return fmt.Errorf("patch header: %w", err)
	}
	return nil
}

// Close writes the final header, syncs and closes the file. It is safe to
// call more than once.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	f := w.f
	w.f = nil
	err := w.patchHeaderTo(f)
	if serr := f.Sync(); err == nil && serr != nil {
		err = serr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (w *Writer) patchHeaderTo(f *os.File) error {
	hdr, err := encodeHeader(w.rows, w.cols)
	if err != nil {
		return err
	}
	_, err = f.WriteAt(hdr, 0)
	return err
}

func encodeHeader(rows int64, cols int) ([]byte, error) {
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%d, %d), }", descr, rows, cols)
	pad := HeaderSize - len(magic) - 4 - len(dict) - 1
	if pad < 0 {
		return nil, fmt.Errorf("npy: header for shape (%d, %d) exceeds %d bytes", rows, cols, HeaderSize)
	}
	var b bytes.Buffer
	b.Grow(HeaderSize)
	b.WriteString(magic)
	b.Write([]byte{1, 0})
	_ = binary.Write(&b, binary.LittleEndian, uint16(HeaderSize-len(magic)-4))
	b.WriteString(dict)
	b.Write(bytes.Repeat([]byte{' '}, pad))
	b.WriteByte('\n')
	return b.Bytes(), nil
}
