// Package manifest resolves a split's TSV manifest into absolute audio paths
// and replicates the split's label files next to the extracted features.
//
// Manifest layout: the first line is the root directory, every following
// non-empty line is a tab-separated record whose first field is a path
// relative to that root. A line without a tab is taken whole as the relative
// path.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	ExtTSV     = ".tsv"
	ExtWords   = ".wrd"
	ExtPhones  = ".phn"
	maxLineLen = 1 << 20
)

// AuxExts are the label files copied when present.
var AuxExts = []string{ExtWords, ExtPhones}

var ErrNoRoot = errors.New("manifest: missing root line")

// Manifest is the parsed split listing.
type Manifest struct {
	Root    string
	Entries []string // relative paths, in file order
}

func (m Manifest) Len() int { return len(m.Entries) }

// Paths joins every entry with the root. Entries that are already absolute
// are returned unchanged.
func (m Manifest) Paths() []string {
	out := make([]string, len(m.Entries))
	for i, rel := range m.Entries {
		if filepath.IsAbs(rel) {
			out[i] = rel
			continue
		}
		out[i] = filepath.Join(m.Root, rel)
	}
	return out
}

// SplitPath returns <dir>/<split><ext>.
func SplitPath(dir, split, ext string) string {
	return filepath.Join(dir, split) + ext
}

// Load reads <dataDir>/<split>.tsv.
func Load(dataDir, split string) (Manifest, error) {
	path := SplitPath(dataDir, split, ExtTSV)
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	m, err := Parse(f)
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	log.Info().Str("manifest", path).Str("root", m.Root).Int("entries", m.Len()).Msg("manifest: loaded")
	return m, nil
}

func Parse(r io.Reader) (Manifest, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineLen)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return Manifest{}, err
		}
		return Manifest{}, ErrNoRoot
	}
	root := strings.TrimSpace(sc.Text())
	if root == "" {
		return Manifest{}, ErrNoRoot
	}
	m := Manifest{Root: root}
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		rel, _, _ := strings.Cut(line, "\t")
		m.Entries = append(m.Entries, rel)
	}
	if err := sc.Err(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Materialize copies the split's manifest into saveDir unconditionally and
// each auxiliary label file that exists. It returns the written paths.
func Materialize(dataDir, split, saveDir string) ([]string, error) {
	dst := SplitPath(saveDir, split, ExtTSV)
	if err := CopyFile(SplitPath(dataDir, split, ExtTSV), dst); err != nil {
		return nil, fmt.Errorf("copy manifest: %w", err)
	}
	written := []string{dst}
	for _, ext := range AuxExts {
		src := SplitPath(dataDir, split, ext)
		if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("path", src).Msg("manifest: no label file, skipping")
			continue
		} else if err != nil {
			return written, fmt.Errorf("stat %s: %w", src, err)
		}
		dst := SplitPath(saveDir, split, ext)
		if err := CopyFile(src, dst); err != nil {
			return written, fmt.Errorf("copy %s: %w", ext, err)
		}
		written = append(written, dst)
	}
	return written, nil
}

// CopyFile streams src to dst, truncating dst.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
