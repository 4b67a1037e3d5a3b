package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/w2vfeat/internal/feature"
	"github.com/obiente/translate/w2vfeat/internal/lengths"
	"github.com/obiente/translate/w2vfeat/internal/metrics"
	"github.com/obiente/translate/w2vfeat/internal/progress"
)

// Writer commits one feature matrix per path, in order: the row count goes to
// the lengths file and non-empty matrices are appended to the store. Zero-row
// matrices still get their "0" line.
type Writer struct {
	Store    feature.Store
	Lengths  *lengths.Writer
	Progress progress.Reporter
	Metrics  *metrics.Metrics
}

// Summary describes a finished (or aborted) pass.
type Summary struct {
	Files      int
	EmptyFiles int
	Rows       int64
	Dim        int
	Seconds    float64
	Elapsed    time.Duration
}

// Run processes paths sequentially. The first error stops the pass; the
// outputs are then incomplete and the run must be repeated.
func (w *Writer) Run(ctx context.Context, src Source, paths []string) (sum Summary, err error) {
	start := time.Now()
	defer func() {
		sum.Elapsed = time.Since(start)
		sum.Dim = w.Store.Dim()
		if w.Progress != nil {
			w.Progress.Finish()
		}
	}()

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		t0 := time.Now()
		res, ferr := src.Features(ctx, path)
		if ferr != nil {
			return sum, fmt.Errorf("file %d/%d %s: %w", i+1, len(paths), path, ferr)
		}
		took := time.Since(t0)
		m := res.Matrix

		if err := w.Lengths.Record(m.Rows); err != nil {
			return sum, fmt.Errorf("record length: %w", err)
		}
		if m.Rows > 0 {
			if err := w.Store.Append(m); err != nil {
				return sum, fmt.Errorf("append %s: %w", path, err)
			}
		} else {
			sum.EmptyFiles++
			log.Debug().Str("path", path).Msg("extract: empty feature matrix")
		}

		sum.Files++
		sum.Rows += int64(m.Rows)
		sum.Seconds += res.Seconds
		if w.Metrics != nil {
			w.Metrics.ObserveFile(m.Rows, res.Seconds, took)
		}
		if w.Progress != nil {
			w.Progress.Step(m.Rows)
		}
		log.Trace().Str("path", path).Int("rows", m.Rows).Dur("took", took).Msg("extract: committed")
	}
	return sum, nil
}
