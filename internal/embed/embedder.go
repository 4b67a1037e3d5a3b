// Package embed is the boundary to the speech-representation model. The model
// itself runs out of process, either as a local worker speaking msgpack on
// stdin/stdout or as a websocket inference server; both load the checkpoint
// once and then answer one embed request per clip.
package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/obiente/translate/w2vfeat/internal/feature"
)

// Embedder turns a 16 kHz mono waveform into a (T x D) feature matrix taken
// from the layer chosen at load time.
type Embedder interface {
	Embed(ctx context.Context, samples []float32) (feature.Matrix, error)
	// Dim is the hidden size D reported by the model.
	Dim() int
	Close() error
}

const (
	BackendWorker = "worker"
	BackendRemote = "remote"
)

var (
	ErrClosed   = errors.New("embed: embedder closed")
	ErrModel    = errors.New("embed: model error")
	ErrProtocol = errors.New("embed: protocol error")
)

type Options struct {
	Backend    string
	Checkpoint string
	Layer      int
	// Worker is the command line of the local worker process.
	Worker []string
	// Env is appended to the worker environment.
	Env []string
	// URL is the websocket endpoint of a remote server.
	URL string
	// Timeout bounds each request; zero means no limit.
	Timeout time.Duration
}

// Open starts or dials the configured backend and loads the checkpoint.
func Open(ctx context.Context, opts Options) (*Client, error) {
	switch opts.Backend {
	case BackendWorker, "":
		return StartWorker(ctx, opts)
	case BackendRemote:
		return DialRemote(ctx, opts)
	default:
		return nil, fmt.Errorf("embed: unknown backend %q (want %s or %s)", opts.Backend, BackendWorker, BackendRemote)
	}
}

func ParseCommand(s string) []string {
	return strings.Fields(s)
}
