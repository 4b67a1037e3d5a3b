// Package arrowfeat stores feature rows as an Arrow IPC file: one record batch
// per appended matrix, a single FixedSizeList<float32> column named
// "features".
package arrowfeat

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/w2vfeat/internal/feature"
)

const Column = "features"

var (
	ErrDim    = errors.New("arrowfeat: row width changed between appends")
	ErrClosed = errors.New("arrowfeat: writer closed")
)

func Schema(dim int) *arrow.Schema {
	md := arrow.NewMetadata([]string{"dim"}, []string{strconv.Itoa(dim)})
	return arrow.NewSchema([]arrow.Field{
		{Name: Column, Type: arrow.FixedSizeListOf(int32(dim), arrow.PrimitiveTypes.Float32)},
	}, &md)
}

// Writer implements feature.Store on top of ipc.FileWriter. The schema is
// fixed by the first non-empty append unless a width is given up front.
type Writer struct {
	f      *os.File
	path   string
	mem    memory.Allocator
	schema *arrow.Schema
	fw     *ipc.FileWriter
	rows   int64
	cols   int
	closed bool
}

var _ feature.Store = (*Writer)(nil)

func Create(path string, dim int) (*Writer, error) {
	if err := os.Remove(path); err == nil {
		log.Info().Str("path", path).Msg("arrowfeat: removed stale array")
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale array: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	w := &Writer{f: f, path: path, mem: memory.NewGoAllocator(), cols: dim}
	if dim > 0 {
		if err := w.open(dim); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Writer) open(dim int) error {
	w.cols = dim
	w.schema = Schema(dim)
	fw, err := ipc.NewFileWriter(w.f, ipc.WithSchema(w.schema), ipc.WithAllocator(w.mem))
	if err != nil {
		return fmt.Errorf("open ipc writer: %w", err)
	}
	w.fw = fw
	return nil
}

func (w *Writer) Path() string { return w.path }
func (w *Writer) Rows() int64  { return w.rows }
func (w *Writer) Dim() int     { return w.cols }

func (w *Writer) Append(m feature.Matrix) error {
	if w.closed {
		return ErrClosed
	}
	if m.Rows == 0 {
		return nil
	}
	if w.fw == nil {
		if err := w.open(m.Cols); err != nil {
			return err
		}
	} else if m.Cols != w.cols {
		return fmt.Errorf("%w: have %d, got %d", ErrDim, w.cols, m.Cols)
	}

	b := array.NewFixedSizeListBuilder(w.mem, int32(w.cols), arrow.PrimitiveTypes.Float32)
	defer b.Release()
	vb := b.ValueBuilder().(*array.Float32Builder)
	b.Reserve(m.Rows)
	vb.Reserve(len(m.Data))
	for i := 0; i < m.Rows; i++ {
		b.Append(true)
		vb.AppendValues(m.Row(i), nil)
	}
	col := b.NewArray()
	defer col.Release()

	rec := array.NewRecord(w.schema, []arrow.Array{col}, int64(m.Rows))
	defer rec.Release()
	if err := w.fw.Write(rec); err != nil {
		return fmt.Errorf("write record batch: %w", err)
	}
	w.rows += int64(m.Rows)
	return nil
}

// Close writes the IPC footer. A run that appended nothing still produces a
// valid file with zero batches.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var err error
	if w.fw == nil {
		err = w.open(w.cols)
	}
	if err == nil {
		err = w.fw.Close()
	}
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	return err
}
