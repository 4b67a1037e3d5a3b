package feature

import (
	"errors"
	"testing"
)

func TestNewValidatesShape(t *testing.T) {
	if _, err := New(2, 3, make([]float32, 6)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := New(2, 3, make([]float32, 5)); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
	if _, err := New(-1, 3, nil); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape for negative rows, got %v", err)
	}
	m, err := New(0, 768, nil)
	if err != nil {
		t.Fatalf("empty matrix rejected: %v", err)
	}
	if !m.Empty() {
		t.Fatal("expected empty matrix")
	}
}

func TestRow(t *testing.T) {
	m, _ := New(2, 2, []float32{1, 2, 3, 4})
	r := m.Row(1)
	if r[0] != 3 || r[1] != 4 {
		t.Fatalf("row 1 = %v", r)
	}
}
