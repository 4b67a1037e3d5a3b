// Package lengths reads and writes the per-file row-count sidecar: one decimal
// integer per line, in the same order the rows were appended to the array.
package lengths

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Writer struct {
	f     *os.File
	bw    *bufio.Writer
	path  string
	lines int
	total int64
}

// Create truncates path and returns a writer.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{f: f, bw: bufio.NewWriter(f), path: path}, nil
}

func (w *Writer) Record(n int) error {
	if n < 0 {
		return fmt.Errorf("lengths: negative length %d", n)
	}
	if _, err := w.bw.WriteString(strconv.Itoa(n)); err != nil {
		return err
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return err
	}
	w.lines++
	w.total += int64(n)
	return nil
}

func (w *Writer) Path() string { return w.path }

func (w *Writer) Lines() int { return w.lines }

func (w *Writer) Total() int64 { return w.total }

// Close flushes and closes the file; repeated calls are no-ops.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	err := w.bw.Flush()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	w.f = nil
	return err
}

func Read(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []int
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("lengths: %s:%d: invalid length %q", path, line, s)
		}
		out = append(out, n)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func Sum(ns []int) int64 {
	var t int64
	for _, n := range ns {
		t += int64(n)
	}
	return t
}

// Offsets converts lengths into cumulative [start, end) row ranges so a
// consumer can slice the flat array back into per-file segments.
func Offsets(ns []int) [][2]int64 {
	out := make([][2]int64, len(ns))
	var pos int64
	for i, n := range ns {
		out[i] = [2]int64{pos, pos + int64(n)}
		pos += int64(n)
	}
	return out
}
