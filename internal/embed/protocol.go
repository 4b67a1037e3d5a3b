package embed

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ProtocolVersion is sent in the load request; servers reject versions they
// do not speak.
const ProtocolVersion = 1

// Message ops.
const (
	OpLoad   = "load"
	OpReady  = "ready"
	OpEmbed  = "embed"
	OpResult = "result"
	OpError  = "error"
	OpClose  = "close"
)

// Message is the single msgpack envelope exchanged with the model process.
// Float payloads travel as little-endian float32 bytes.
type Message struct {
	Op         string `msgpack:"op"`
	Seq        uint64 `msgpack:"seq,omitempty"`
	Version    int    `msgpack:"version,omitempty"`
	Checkpoint string `msgpack:"checkpoint,omitempty"`
	Layer      int    `msgpack:"layer"`
	Rate       int    `msgpack:"rate,omitempty"`
	Samples    []byte `msgpack:"samples,omitempty"`
	Dim        int    `msgpack:"dim,omitempty"`
	Normalize  bool   `msgpack:"normalize,omitempty"`
	Model      string `msgpack:"model,omitempty"`
	Rows       int    `msgpack:"rows"`
	Cols       int    `msgpack:"cols"`
	Data       []byte `msgpack:"data,omitempty"`
	Error      string `msgpack:"error,omitempty"`
}

func EncodeFloat32s(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func DecodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: float payload of %d bytes", ErrProtocol, len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out, nil
}
