package extract

import (
	"context"

	"github.com/obiente/translate/w2vfeat/internal/audio"
	"github.com/obiente/translate/w2vfeat/internal/embed"
	"github.com/obiente/translate/w2vfeat/internal/feature"
)

type Result struct {
	Matrix feature.Matrix
	// Seconds of audio behind the matrix; informational only.
	Seconds float64
}

// Source produces the feature matrix for one audio path.
type Source interface {
	Features(ctx context.Context, path string) (Result, error)
}

type SourceFunc func(ctx context.Context, path string) (Result, error)

func (f SourceFunc) Features(ctx context.Context, path string) (Result, error) { return f(ctx, path) }

type modelSource struct {
	e    embed.Embedder
	load func(string) (audio.Clip, error)
}

// ModelSource decodes each path as 16 kHz mono audio and embeds it with e.
func ModelSource(e embed.Embedder) Source {
	return &modelSource{e: e, load: audio.Load}
}

func (s *modelSource) Features(ctx context.Context, path string) (Result, error) {
	clip, err := s.load(path)
	if err != nil {
		return Result{}, err
	}
	m, err := s.e.Embed(ctx, clip.Samples)
	if err != nil {
		return Result{}, err
	}
	return Result{Matrix: m, Seconds: clip.Seconds()}, nil
}
