// Package extract drives a feature extraction run: it resolves the split
// manifest, loads the model once, and streams every clip's features into the
// growable array and the lengths sidecar, strictly in manifest order.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/w2vfeat/internal/arrowfeat"
	"github.com/obiente/translate/w2vfeat/internal/config"
	"github.com/obiente/translate/w2vfeat/internal/embed"
	"github.com/obiente/translate/w2vfeat/internal/feature"
	"github.com/obiente/translate/w2vfeat/internal/lengths"
	"github.com/obiente/translate/w2vfeat/internal/manifest"
	"github.com/obiente/translate/w2vfeat/internal/metrics"
	"github.com/obiente/translate/w2vfeat/internal/npy"
	"github.com/obiente/translate/w2vfeat/internal/progress"
)

const (
	ExtLengths = ".lengths"
	ExtLock    = ".lock"
)

var ErrLocked = errors.New("extract: split is locked by another run")

type OpenFunc func(ctx context.Context, opts embed.Options) (embed.Embedder, error)

// OpenModel is the production OpenFunc.
func OpenModel(ctx context.Context, opts embed.Options) (embed.Embedder, error) {
	return embed.Open(ctx, opts)
}

// OpenStore creates a fresh feature array of the given format, replacing
// whatever was at path.
func OpenStore(format, path string, dim int) (feature.Store, error) {
	switch format {
	case config.FormatNPY:
		return npy.Create(path, dim)
	case config.FormatArrow:
		return arrowfeat.Create(path, dim)
	default:
		return nil, fmt.Errorf("extract: unknown format %q", format)
	}
}

// removeOtherArrays deletes arrays left for this split by a run in another
// format; readers must never find two arrays that disagree.
func removeOtherArrays(cfg config.Config) error {
	for _, format := range []string{config.FormatNPY, config.FormatArrow} {
		if format == cfg.Format {
			continue
		}
		other := cfg
		other.Format = format
		path := manifest.SplitPath(cfg.SaveDir, cfg.Split, other.ArrayExt())
		switch err := os.Remove(path); {
		case err == nil:
			log.Info().Str("path", path).Str("format", format).Msg("extract: removed stale array")
		case !errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("remove stale %s array: %w", format, err)
		}
	}
	return nil
}

// Run executes one extraction run for cfg. open is called once to load the
// model; nil means OpenModel.
func Run(ctx context.Context, cfg config.Config, open OpenFunc) (sum Summary, err error) {
	if err := cfg.Validate(); err != nil {
		return sum, err
	}
	if open == nil {
		open = OpenModel
	}
	started := time.Now()

	if err := os.MkdirAll(cfg.SaveDir, 0o755); err != nil {
		return sum, fmt.Errorf("create save dir: %w", err)
	}
	lock := flock.New(manifest.SplitPath(cfg.SaveDir, cfg.Split, ExtLock))
	ok, err := lock.TryLock()
	if err != nil {
		return sum, fmt.Errorf("lock split: %w", err)
	}
	if !ok {
		return sum, fmt.Errorf("%w: %s", ErrLocked, lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	copied, err := manifest.Materialize(cfg.DataDir, cfg.Split, cfg.SaveDir)
	if err != nil {
		return sum, err
	}
	log.Info().Strs("files", copied).Msg("extract: copied manifest and labels")

	man, err := manifest.Load(cfg.DataDir, cfg.Split)
	if err != nil {
		return sum, err
	}

	model, err := open(ctx, cfg.EmbedOptions())
	if err != nil {
		return sum, fmt.Errorf("open model: %w", err)
	}
	defer func() {
		if cerr := model.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("extract: model shutdown")
		}
	}()

	if err := removeOtherArrays(cfg); err != nil {
		return sum, err
	}
	arrayPath := manifest.SplitPath(cfg.SaveDir, cfg.Split, cfg.ArrayExt())
	store, err := OpenStore(cfg.Format, arrayPath, model.Dim())
	if err != nil {
		return sum, fmt.Errorf("create feature array: %w", err)
	}
	defer func() { err = errors.Join(err, closeWrap("feature array", store.Close())) }()

	lw, err := lengths.Create(manifest.SplitPath(cfg.SaveDir, cfg.Split, ExtLengths))
	if err != nil {
		return sum, fmt.Errorf("create lengths file: %w", err)
	}
	defer func() { err = errors.Join(err, closeWrap("lengths file", lw.Close())) }()

	var met *metrics.Metrics
	if cfg.MetricsFile != "" {
		met = metrics.New(cfg.Split)
		defer func() {
			met.RunDuration.Set(time.Since(started).Seconds())
			if werr := met.WriteFile(cfg.MetricsFile); werr != nil {
				log.Warn().Err(werr).Str("path", cfg.MetricsFile).Msg("extract: write metrics")
			}
		}()
	}

	log.Info().
		Str("split", cfg.Split).
		Int("files", man.Len()).
		Str("array", arrayPath).
		Int("layer", cfg.Layer).
		Msg("extract: starting")

	w := &Writer{
		Store:    store,
		Lengths:  lw,
		Progress: progress.New(man.Len(), cfg.Progress),
		Metrics:  met,
	}
	sum, err = w.Run(ctx, ModelSource(model), man.Paths())
	if err != nil {
		log.Error().Err(err).Int("committed", sum.Files).Int("total", man.Len()).
			Msg("extract: run aborted, outputs are incomplete")
		return sum, err
	}

	if err := store.Close(); err != nil {
		return sum, closeWrap("feature array", err)
	}
	if err := lw.Close(); err != nil {
		return sum, closeWrap("lengths file", err)
	}
	logSummary(sum, arrayPath)
	return sum, nil
}

func closeWrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("close %s: %w", what, err)
}

func logSummary(sum Summary, arrayPath string) {
	e := log.Info().
		Int("files", sum.Files).
		Int("empty", sum.EmptyFiles).
		Int64("rows", sum.Rows).
		Int("dim", sum.Dim).
		Str("audio", (time.Duration(sum.Seconds * float64(time.Second))).Round(time.Second).String()).
		Dur("elapsed", sum.Elapsed)
	if fi, err := os.Stat(arrayPath); err == nil {
		e = e.Str("array_size", humanize.Bytes(uint64(fi.Size())))
	}
	e.Msg("extract: done")
}
