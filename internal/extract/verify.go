package extract

import (
	"errors"
	"fmt"
	"os"

	"github.com/obiente/translate/w2vfeat/internal/arrowfeat"
	"github.com/obiente/translate/w2vfeat/internal/config"
	"github.com/obiente/translate/w2vfeat/internal/lengths"
	"github.com/obiente/translate/w2vfeat/internal/manifest"
	"github.com/obiente/translate/w2vfeat/internal/npy"
)

var ErrMismatch = errors.New("extract: outputs are inconsistent")

// Report is the result of checking a split's outputs.
type Report struct {
	ManifestEntries int
	LengthLines     int
	LengthsSum      int64
	ArrayRows       int64
	Dim             int
}

// Verify checks that the array holds exactly sum(lengths) rows and that the
// lengths file has one line per manifest entry in saveDir.
func Verify(saveDir, split, format string) (Report, error) {
	var r Report
	ls, err := lengths.Read(manifest.SplitPath(saveDir, split, ExtLengths))
	if err != nil {
		return r, fmt.Errorf("read lengths: %w", err)
	}
	r.LengthLines = len(ls)
	r.LengthsSum = lengths.Sum(ls)

	switch format {
	case config.FormatArrow:
		r.ArrayRows, r.Dim, err = arrowfeat.Stat(manifest.SplitPath(saveDir, split, ".arrow"))
	default:
		var h npy.Header
		h, err = npy.ReadHeader(manifest.SplitPath(saveDir, split, ".npy"))
		r.ArrayRows = h.Rows()
		if len(h.Shape) == 2 {
			r.Dim = int(h.Shape[1])
		}
	}
	if err != nil {
		return r, fmt.Errorf("read feature array: %w", err)
	}

	r.ManifestEntries = -1
	if m, err := manifest.Load(saveDir, split); err == nil {
		r.ManifestEntries = m.Len()
	} else if !errors.Is(err, os.ErrNotExist) {
		return r, err
	}

	var problems []error
	if r.ArrayRows != r.LengthsSum {
		problems = append(problems, fmt.Errorf("array has %d rows, lengths sum to %d", r.ArrayRows, r.LengthsSum))
	}
	if r.ManifestEntries >= 0 && r.ManifestEntries != r.LengthLines {
		problems = append(problems, fmt.Errorf("manifest lists %d files, lengths has %d lines", r.ManifestEntries, r.LengthLines))
	}
	if len(problems) > 0 {
		return r, fmt.Errorf("%w: %w", ErrMismatch, errors.Join(problems...))
	}
	return r, nil
}
