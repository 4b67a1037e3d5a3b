package arrowfeat

import (
	"fmt"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/obiente/translate/w2vfeat/internal/feature"
)

// Stat reports the total row count and row width of an Arrow feature file.
func Stat(path string) (rows int64, dim int, err error) {
	err = scan(path, func(int, *array.FixedSizeList) error { return nil }, &rows, &dim)
	return rows, dim, err
}

// ReadMatrix concatenates every batch of the file into one matrix.
func ReadMatrix(path string) (feature.Matrix, error) {
	var (
		rows int64
		dim  int
		data []float32
	)
	err := scan(path, func(d int, col *array.FixedSizeList) error {
		vals := col.ListValues().(*array.Float32).Float32Values()
		off := col.Offset() * d
		data = append(data, vals[off:off+col.Len()*d]...)
		return nil
	}, &rows, &dim)
	if err != nil {
		return feature.Matrix{}, err
	}
	return feature.New(int(rows), dim, data)
}

func scan(path string, fn func(dim int, col *array.FixedSizeList) error, rows *int64, dim *int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return fmt.Errorf("open ipc file: %w", err)
	}
	defer r.Close()

	schema := r.Schema()
	if schema.NumFields() != 1 || schema.Field(0).Name != Column {
		return fmt.Errorf("arrowfeat: unexpected schema %s", schema)
	}
	lt, ok := schema.Field(0).Type.(*arrow.FixedSizeListType)
	if !ok {
		return fmt.Errorf("arrowfeat: column %q is %s", Column, schema.Field(0).Type)
	}
	*dim = int(lt.Len())

	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return fmt.Errorf("read batch %d: %w", i, err)
		}
		col, ok := rec.Column(0).(*array.FixedSizeList)
		if !ok {
			return fmt.Errorf("arrowfeat: batch %d column type %T", i, rec.Column(0))
		}
		*rows += rec.NumRows()
		if err := fn(*dim, col); err != nil {
			return err
		}
	}
	return nil
}
