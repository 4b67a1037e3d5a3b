package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

func writeWAV(t *testing.T, path string, rate, chans int, data []int) {
	t.Helper()
	writeWAVFormat(t, path, rate, chans, 16, wavFormatPCM, data)
}

func writeWAVFormat(t *testing.T, path string, rate, chans, depth, format int, data []int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	enc := wav.NewEncoder(f, rate, depth, chans, format)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: chans, SampleRate: rate},
		Data:           data,
		SourceBitDepth: depth,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	writeWAV(t, path, SampleRate, 1, []int{0, 16384, -32768, 32767})

	clip, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if clip.SampleRate != SampleRate || len(clip.Samples) != 4 {
		t.Fatalf("clip = %d Hz, %d samples", clip.SampleRate, len(clip.Samples))
	}
	if clip.Samples[1] != 0.5 || clip.Samples[2] != -1 {
		t.Fatalf("samples = %v", clip.Samples)
	}
}

func TestLoadRejectsWrongRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	writeWAV(t, path, 8000, 1, []int{1, 2, 3, 4})
	if _, err := Load(path); !errors.Is(err, ErrSampleRate) {
		t.Fatalf("expected ErrSampleRate, got %v", err)
	}
}

func TestLoadRejectsStereo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	writeWAV(t, path, SampleRate, 2, []int{1, 2, 3, 4})
	if _, err := Load(path); !errors.Is(err, ErrChannels) {
		t.Fatalf("expected ErrChannels, got %v", err)
	}
}

func TestLoadPCM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.pcm")
	b := make([]byte, 6)
	binary.LittleEndian.PutUint16(b[0:], uint16(16384))
	v := int16(-16384)
	binary.LittleEndian.PutUint16(b[2:], uint16(v))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}
	clip, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(clip.Samples) != 3 || clip.Samples[0] != 0.5 || clip.Samples[1] != -0.5 || clip.Samples[2] != 0 {
		t.Fatalf("samples = %v", clip.Samples)
	}
}

func TestLoadFloatWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.wav")
	want := []float32{0, 0.25, -0.5, 1}
	data := make([]int, len(want))
	for i, v := range want {
		data[i] = int(int32(math.Float32bits(v)))
	}
	writeWAVFormat(t, path, SampleRate, 1, 32, wavFormatFloat, data)

	clip, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(clip.Samples) != len(want) {
		t.Fatalf("got %d samples", len(clip.Samples))
	}
	for i, v := range want {
		if clip.Samples[i] != v {
			t.Fatalf("sample %d = %v, want %v", i, clip.Samples[i], v)
		}
	}
}

func TestLoadRejectsNarrowFloatWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.wav")
	writeWAVFormat(t, path, SampleRate, 1, 8, wavFormatFloat, []int{1, 2})
	if _, err := Load(path); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

// writeFLAC encodes samples as verbatim 16-bit frames of 32 samples each.
func writeFLAC(t *testing.T, path string, rate int, channels [][]int32) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	info := &meta.StreamInfo{
		BlockSizeMin:  16,
		BlockSizeMax:  4096,
		SampleRate:    uint32(rate),
		NChannels:     uint8(len(channels)),
		BitsPerSample: 16,
		NSamples:      uint64(len(channels[0])),
	}
	enc, err := flac.NewEncoder(f, info)
	if err != nil {
		t.Fatal(err)
	}
	layout := frame.ChannelsMono
	if len(channels) == 2 {
		layout = frame.ChannelsLR
	}
	const block = 32
	for off := 0; off < len(channels[0]); off += block {
		n := min(block, len(channels[0])-off)
		fr := &frame.Frame{
			Header: frame.Header{
				HasFixedBlockSize: true,
				BlockSize:         uint16(n),
				SampleRate:        uint32(rate),
				Channels:          layout,
				BitsPerSample:     16,
				Num:               uint64(off / block),
			},
		}
		for _, ch := range channels {
			fr.Subframes = append(fr.Subframes, &frame.Subframe{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   ch[off : off+n],
				NSamples:  n,
			})
		}
		if err := enc.WriteFrame(fr); err != nil {
			t.Fatal(err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadFLAC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "84-121123-0000.flac")
	samples := make([]int32, 100)
	for i := range samples {
		samples[i] = int32(i * 100)
	}
	samples[1] = 16384
	samples[2] = -32768
	writeFLAC(t, path, SampleRate, [][]int32{samples})

	clip, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if clip.SampleRate != SampleRate || len(clip.Samples) != len(samples) {
		t.Fatalf("clip = %d Hz, %d samples", clip.SampleRate, len(clip.Samples))
	}
	if clip.Samples[1] != 0.5 || clip.Samples[2] != -1 || clip.Samples[99] != float32(9900)/32768 {
		t.Fatalf("samples = %v", clip.Samples[:3])
	}
}

func TestLoadFLACPreconditions(t *testing.T) {
	dir := t.TempDir()
	mono := make([]int32, 64)

	slow := filepath.Join(dir, "slow.flac")
	writeFLAC(t, slow, 8000, [][]int32{mono})
	if _, err := Load(slow); !errors.Is(err, ErrSampleRate) {
		t.Fatalf("expected ErrSampleRate, got %v", err)
	}

	stereo := filepath.Join(dir, "stereo.flac")
	writeFLAC(t, stereo, SampleRate, [][]int32{mono, mono})
	if _, err := Load(stereo); !errors.Is(err, ErrChannels) {
		t.Fatalf("expected ErrChannels, got %v", err)
	}

	bad := filepath.Join(dir, "bad.flac")
	_ = os.WriteFile(bad, []byte("fLaC but not really"), 0o644)
	if _, err := Load(bad); err == nil {
		t.Fatal("expected error for invalid flac")
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.wav")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file: %v", err)
	}
	if _, err := Load(filepath.Join(dir, "a.mp3")); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("mp3: %v", err)
	}
	odd := filepath.Join(dir, "odd.raw")
	_ = os.WriteFile(odd, []byte{1, 2, 3}, 0o644)
	if _, err := Load(odd); err == nil {
		t.Fatal("expected error for odd-length pcm")
	}
	bad := filepath.Join(dir, "bad.wav")
	_ = os.WriteFile(bad, []byte("definitely not riff"), 0o644)
	if _, err := Load(bad); err == nil {
		t.Fatal("expected error for invalid wav")
	}
}

func TestLayerNorm(t *testing.T) {
	out := LayerNorm([]float32{1, 2, 3, 4})
	var mean, sq float64
	for _, v := range out {
		mean += float64(v)
	}
	mean /= 4
	for _, v := range out {
		sq += (float64(v) - mean) * (float64(v) - mean)
	}
	if math.Abs(mean) > 1e-6 {
		t.Fatalf("mean = %v", mean)
	}
	if math.Abs(sq/4-1) > 1e-3 {
		t.Fatalf("variance = %v", sq/4)
	}
	if len(LayerNorm(nil)) != 0 {
		t.Fatal("expected empty output")
	}
}

func TestClipSeconds(t *testing.T) {
	c := Clip{Samples: make([]float32, 8000), SampleRate: SampleRate}
	if c.Seconds() != 0.5 {
		t.Fatalf("Seconds = %v", c.Seconds())
	}
}
