// Package feature holds the row-major float32 matrix produced per audio file
// and the storage contract the extraction loop appends to.
package feature

import (
	"errors"
	"fmt"
)

var ErrShape = errors.New("feature: data length does not match shape")

// Matrix is a (Rows x Cols) row-major float32 matrix.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

func New(rows, cols int, data []float32) (Matrix, error) {
	if rows < 0 || cols < 0 {
		return Matrix{}, fmt.Errorf("%w: negative shape (%d, %d)", ErrShape, rows, cols)
	}
	if len(data) != rows*cols {
		return Matrix{}, fmt.Errorf("%w: (%d, %d) needs %d values, got %d", ErrShape, rows, cols, rows*cols, len(data))
	}
	return Matrix{Rows: rows, Cols: cols, Data: data}, nil
}

// Zeros is mostly useful in tests.
func Zeros(rows, cols int) Matrix {
	return Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

func (m Matrix) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// Empty reports whether the matrix has no time steps.
func (m Matrix) Empty() bool { return m.Rows == 0 }

// Store is a growable on-disk array of feature rows. Append must cost
// O(rows appended) and never rewrite earlier data.
type Store interface {
	Append(m Matrix) error
	// Rows returns the number of rows committed so far.
	Rows() int64
	// Dim returns the row width, 0 until the first append.
	Dim() int
	Path() string
	Close() error
}
