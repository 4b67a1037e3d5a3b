package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
)

// SampleRate is the only rate the embedding models accept.
const SampleRate = 16000

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

var (
	ErrSampleRate  = errors.New("audio: sample rate mismatch")
	ErrChannels    = errors.New("audio: expected mono audio")
	ErrUnsupported = errors.New("audio: unsupported file type")
)

type Clip struct {
	Samples    []float32
	SampleRate int
}

func (c Clip) Seconds() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Load decodes the file at path by extension: .wav through go-audio, .flac
// through mewkiz/flac, .pcm and .raw as headerless 16-bit little-endian mono
// at SampleRate. The result must be at SampleRate; anything else is
// ErrSampleRate.
func Load(path string) (Clip, error) {
	var (
		clip Clip
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return Clip{}, err
		}
		clip, err = DecodeWAV(f)
		f.Close()
	case ".flac":
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return Clip{}, err
		}
		clip, err = DecodeFLAC(f)
		f.Close()
	case ".pcm", ".raw":
		var b []byte
		b, err = os.ReadFile(path)
		if err != nil {
			return Clip{}, err
		}
		clip, err = DecodePCM16LE(b, SampleRate)
	default:
		return Clip{}, fmt.Errorf("%w: %s", ErrUnsupported, path)
	}
	if err != nil {
		return Clip{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := RequireRate(clip, SampleRate); err != nil {
		return Clip{}, fmt.Errorf("%s: %w", path, err)
	}
	return clip, nil
}

func RequireRate(clip Clip, want int) error {
	if clip.SampleRate != want {
		return fmt.Errorf("%w: got %d Hz, want %d Hz", ErrSampleRate, clip.SampleRate, want)
	}
	return nil
}

// DecodeWAV decodes an integer PCM or 32-bit IEEE float WAV stream into
// float32 samples in [-1, 1].
func DecodeWAV(r io.ReadSeeker) (Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, errors.New("invalid wav file")
	}
	float := dec.WavAudioFormat == wavFormatFloat
	switch {
	case dec.WavAudioFormat == wavFormatPCM, dec.WavAudioFormat == wavFormatExtensible:
	case float && dec.BitDepth == 32:
	default:
		return Clip{}, fmt.Errorf("%w: wav format tag %d, %d bits", ErrUnsupported, dec.WavAudioFormat, dec.BitDepth)
	}
	if dec.NumChans != 1 {
		return Clip{}, fmt.Errorf("%w: got %d channels", ErrChannels, dec.NumChans)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil && err != io.EOF {
		return Clip{}, err
	}
	if buf == nil {
		return Clip{}, errors.New("empty wav buffer")
	}
	sr := int(dec.SampleRate)
	if sr == 0 && buf.Format != nil {
		sr = buf.Format.SampleRate
	}
	if float {
		return Clip{Samples: floatBitsToFloat32(buf.Data), SampleRate: sr}, nil
	}
	return Clip{Samples: intBufferToFloat32(buf, int(dec.BitDepth)), SampleRate: sr}, nil
}

// go-audio reads 32-bit samples as int32; for float WAVs those are the raw
// IEEE 754 bits.
func floatBitsToFloat32(data []int) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = math.Float32frombits(uint32(int32(v)))
	}
	return out
}

// DecodeFLAC decodes a mono FLAC stream into float32 samples in [-1, 1].
func DecodeFLAC(r io.Reader) (Clip, error) {
	stream, err := flac.New(r)
	if err != nil {
		return Clip{}, err
	}
	defer stream.Close()
	if stream.Info.NChannels != 1 {
		return Clip{}, fmt.Errorf("%w: got %d channels", ErrChannels, stream.Info.NChannels)
	}
	bitDepth := int(stream.Info.BitsPerSample)
	if bitDepth <= 0 || bitDepth > 32 {
		return Clip{}, fmt.Errorf("%w: flac with %d bits per sample", ErrUnsupported, bitDepth)
	}
	scale := float32(int64(1) << (bitDepth - 1))
	out := make([]float32, 0, stream.Info.NSamples)
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Clip{}, err
		}
		for _, v := range frame.Subframes[0].Samples[:frame.Subframes[0].NSamples] {
			out = append(out, float32(v)/scale)
		}
	}
	return Clip{Samples: out, SampleRate: int(stream.Info.SampleRate)}, nil
}

func intBufferToFloat32(buf *goaudio.IntBuffer, fallbackDepth int) []float32 {
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = fallbackDepth
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	max := float32(int64(1) << (bitDepth - 1))
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float32(v) / max
	}
	return out
}

// DecodePCM16LE converts little-endian signed 16-bit mono PCM to float32.
func DecodePCM16LE(b []byte, sampleRate int) (Clip, error) {
	if len(b)%2 != 0 {
		return Clip{}, errors.New("pcm16 length must be even")
	}
	out := make([]float32, len(b)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(b[2*i:]))) / 32768.0
	}
	return Clip{Samples: out, SampleRate: sampleRate}, nil
}

// LayerNorm returns samples shifted to zero mean and scaled to unit variance
// over the whole clip, eps 1e-5, matching a parameter-free layer norm over the
// waveform.
func LayerNorm(samples []float32) []float32 {
	out := make([]float32, len(samples))
	if len(samples) == 0 {
		return out
	}
	var mean float64
	for _, v := range samples {
		mean += float64(v)
	}
	mean /= float64(len(samples))
	var variance float64
	for _, v := range samples {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(len(samples))
	inv := 1 / math.Sqrt(variance+1e-5)
	for i, v := range samples {
		out[i] = float32((float64(v) - mean) * inv)
	}
	return out
}
