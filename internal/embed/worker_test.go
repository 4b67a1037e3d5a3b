package embed

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func startFake(t *testing.T, mode string, layer int) (*Client, error) {
	t.Helper()
	return StartWorker(context.Background(), Options{
		Checkpoint: "model.pt",
		Layer:      layer,
		Worker:     []string{os.Args[0]},
		Env:        []string{fakeWorkerEnv + "=" + mode},
		Timeout:    10 * time.Second,
	})
}

func TestWorkerEmbed(t *testing.T) {
	c, err := startFake(t, "ok", 14)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Dim() != fakeDim || c.Normalize() {
		t.Fatalf("dim=%d normalize=%v", c.Dim(), c.Normalize())
	}

	m, err := c.Embed(context.Background(), make([]float32, 5*fakeStride))
	if err != nil {
		t.Fatal(err)
	}
	if m.Rows != 5 || m.Cols != fakeDim {
		t.Fatalf("shape = (%d, %d)", m.Rows, m.Cols)
	}
	if m.Row(3)[0] != 3 {
		t.Fatalf("row 3 = %v", m.Row(3))
	}

	empty, err := c.Embed(context.Background(), make([]float32, 10))
	if err != nil {
		t.Fatal(err)
	}
	if !empty.Empty() || empty.Cols != fakeDim {
		t.Fatalf("short clip gave (%d, %d)", empty.Rows, empty.Cols)
	}
}

func TestWorkerModelError(t *testing.T) {
	c, err := startFake(t, "ok", 14)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	samples := make([]float32, fakeStride)
	samples[0] = 99
	if _, err := c.Embed(context.Background(), samples); !errors.Is(err, ErrModel) {
		t.Fatalf("expected ErrModel, got %v", err)
	}
}

func TestWorkerRejectsWrongWidth(t *testing.T) {
	c, err := startFake(t, "wrongcols", 14)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.Embed(context.Background(), make([]float32, fakeStride)); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestWorkerReadyDimMustMatchResults(t *testing.T) {
	c, err := startFake(t, "wrongdim", 14)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Dim() != 2*fakeDim {
		t.Fatalf("dim = %d", c.Dim())
	}

	// A clip too short for a frame carries no columns to check.
	if m, err := c.Embed(context.Background(), make([]float32, fakeStride-1)); err != nil || !m.Empty() {
		t.Fatalf("short clip: %v, rows=%d", err, m.Rows)
	}

	_, err = c.Embed(context.Background(), make([]float32, 2*fakeStride))
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
	for _, want := range []string{"4 columns", "reported dim 8"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q should mention %q", err, want)
		}
	}
}

func TestWorkerCrashSurfacesStderr(t *testing.T) {
	_, err := startFake(t, "crash", 14)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "fairseq") {
		t.Fatalf("error should carry worker stderr, got %v", err)
	}
}

func TestWorkerCancel(t *testing.T) {
	c, err := startFake(t, "hang", 14)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := c.Embed(ctx, make([]float32, fakeStride)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if _, err := c.Embed(context.Background(), make([]float32, fakeStride)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after abort, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close after abort: %v", err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Options{Backend: "grpc"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestFloatCodec(t *testing.T) {
	in := []float32{0, -1.5, 3.25}
	out, err := DecodeFloat32s(EncodeFloat32s(in))
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("out = %v", out)
		}
	}
	if _, err := DecodeFloat32s([]byte{1, 2, 3}); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}
