package npy

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/obiente/translate/w2vfeat/internal/feature"
)

var ErrFormat = errors.New("npy: invalid file")

// Header is the parsed preamble of an .npy file.
type Header struct {
	Major        byte
	Descr        string
	FortranOrder bool
	Shape        []int64
	// DataOffset is the byte offset of the first element.
	DataOffset int64
}

var (
	reDescr   = regexp.MustCompile(`'descr':\s*'([^']*)'`)
	reFortran = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
	reShape   = regexp.MustCompile(`'shape':\s*\(([^)]*)\)`)
)

// ReadHeader parses the header of the .npy file at path.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()
	return readHeader(bufio.NewReader(f))
}

func readHeader(r io.Reader) (Header, error) {
	pre := make([]byte, len(magic)+2)
	if _, err := io.ReadFull(r, pre); err != nil {
		return Header{}, fmt.Errorf("%w: short preamble", ErrFormat)
	}
	if string(pre[:len(magic)]) != magic {
		return Header{}, fmt.Errorf("%w: bad magic", ErrFormat)
	}
	h := Header{Major: pre[len(magic)]}
	var hlen int64
	switch h.Major {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return Header{}, fmt.Errorf("%w: header length", ErrFormat)
		}
		hlen = int64(n)
		h.DataOffset = int64(len(pre)) + 2 + hlen
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return Header{}, fmt.Errorf("%w: header length", ErrFormat)
		}
		hlen = int64(n)
		h.DataOffset = int64(len(pre)) + 4 + hlen
	default:
		return Header{}, fmt.Errorf("%w: unsupported version %d", ErrFormat, h.Major)
	}
	dict := make([]byte, hlen)
	if _, err := io.ReadFull(r, dict); err != nil {
		return Header{}, fmt.Errorf("%w: short header", ErrFormat)
	}
	s := string(dict)
	m := reDescr.FindStringSubmatch(s)
	if m == nil {
		return Header{}, fmt.Errorf("%w: missing descr", ErrFormat)
	}
	h.Descr = m[1]
	if m := reFortran.FindStringSubmatch(s); m != nil {
		h.FortranOrder = m[1] == "True"
	}
	m = reShape.FindStringSubmatch(s)
	if m == nil {
		return Header{}, fmt.Errorf("%w: missing shape", ErrFormat)
	}
	for _, part := range strings.Split(m[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return Header{}, fmt.Errorf("%w: shape %q", ErrFormat, m[1])
		}
		h.Shape = append(h.Shape, n)
	}
	return h, nil
}

func (h Header) Rows() int64 {
	if len(h.Shape) == 0 {
		return 0
	}
	return h.Shape[0]
}

// ReadMatrix loads a 2-D little-endian float32 array into memory.
func ReadMatrix(path string) (feature.Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return feature.Matrix{}, err
	}
	defer f.Close()
	br := bufio.NewReader(f)
	h, err := readHeader(br)
	if err != nil {
		return feature.Matrix{}, err
	}
	if h.Descr != descr || h.FortranOrder || len(h.Shape) != 2 {
		return feature.Matrix{}, fmt.Errorf("%w: want 2-D %s C-order, got %s %v", ErrFormat, descr, h.Descr, h.Shape)
	}
	rows, cols := int(h.Shape[0]), int(h.Shape[1])
	raw := make([]byte, 4*rows*cols)
	if _, err := io.ReadFull(br, raw); err != nil {
		return feature.Matrix{}, fmt.Errorf("%w: truncated data: %v", ErrFormat, err)
	}
	data := make([]float32, rows*cols)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return feature.New(rows, cols, data)
}
