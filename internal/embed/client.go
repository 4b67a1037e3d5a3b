package embed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/w2vfeat/internal/audio"
	"github.com/obiente/translate/w2vfeat/internal/feature"
)

// transport moves one Message at a time. abort must unblock a pending recv.
type transport interface {
	send(Message) error
	recv() (Message, error)
	close() error
	abort() error
}

// Client runs the load handshake and embed requests over a transport. It
// serializes requests; the model answers them strictly in order.
type Client struct {
	t         transport
	name      string
	timeout   time.Duration
	dim       int
	normalize bool
	model     string

	mu     sync.Mutex
	seq    uint64
	closed bool
}

var _ Embedder = (*Client)(nil)

func newClient(ctx context.Context, t transport, name string, opts Options) (*Client, error) {
	c := &Client{t: t, name: name, timeout: opts.Timeout}
	resp, err := c.roundTrip(ctx, Message{
		Op:         OpLoad,
		Version:    ProtocolVersion,
		Checkpoint: opts.Checkpoint,
		Layer:      opts.Layer,
	})
	if err != nil {
		_ = t.abort()
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if resp.Op != OpReady {
		_ = t.abort()
		return nil, fmt.Errorf("%w: expected %q, got %q", ErrProtocol, OpReady, resp.Op)
	}
	if resp.Dim <= 0 {
		_ = t.abort()
		return nil, fmt.Errorf("%w: model reported dim %d", ErrProtocol, resp.Dim)
	}
	c.dim, c.normalize, c.model = resp.Dim, resp.Normalize, resp.Model
	log.Info().
		Str("backend", name).
		Str("checkpoint", opts.Checkpoint).
		Int("layer", opts.Layer).
		Int("dim", c.dim).
		Bool("normalize", c.normalize).
		Str("model", c.model).
		Msg("embed: model loaded")
	return c, nil
}

func (c *Client) Dim() int { return c.dim }

func (c *Client) Normalize() bool { return c.normalize }

// Embed sends one clip. The result must have exactly Dim columns.
func (c *Client) Embed(ctx context.Context, samples []float32) (feature.Matrix, error) {
	if c.normalize {
		samples = audio.LayerNorm(samples)
	}
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	resp, err := c.roundTrip(ctx, Message{
		Op:      OpEmbed,
		Seq:     seq,
		Rate:    audio.SampleRate,
		Samples: EncodeFloat32s(samples),
	})
	if err != nil {
		return feature.Matrix{}, err
	}
	if resp.Op != OpResult {
		return feature.Matrix{}, fmt.Errorf("%w: expected %q, got %q", ErrProtocol, OpResult, resp.Op)
	}
	if resp.Seq != seq {
		return feature.Matrix{}, fmt.Errorf("%w: response seq %d for request %d", ErrProtocol, resp.Seq, seq)
	}
	if resp.Rows > 0 && resp.Cols != c.dim {
		return feature.Matrix{}, fmt.Errorf("%w: result has %d columns but %s reported dim %d at load", ErrProtocol, resp.Cols, c.name, c.dim)
	}
	data, err := DecodeFloat32s(resp.Data)
	if err != nil {
		return feature.Matrix{}, err
	}
	m, err := feature.New(resp.Rows, c.dim, data)
	if err != nil {
		return feature.Matrix{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return m, nil
}

func (c *Client) roundTrip(ctx context.Context, req Message) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Message{}, ErrClosed
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	type result struct {
		m   Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		if err := c.t.send(req); err != nil {
			done <- result{err: fmt.Errorf("send %s: %w", req.Op, err)}
			return
		}
		m, err := c.t.recv()
		if err != nil {
			err = fmt.Errorf("receive %s reply: %w", req.Op, err)
		}
		done <- result{m: m, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return Message{}, r.err
		}
		if r.m.Op == OpError || r.m.Error != "" {
			return Message{}, fmt.Errorf("%w: %s", ErrModel, r.m.Error)
		}
		return r.m, nil
	case <-ctx.Done():
		// the transport is unusable once a request is abandoned mid-flight
		c.closed = true
		_ = c.t.abort()
		<-done
		return Message{}, ctx.Err()
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.t.send(Message{Op: OpClose}); err != nil {
		log.Debug().Err(err).Str("backend", c.name).Msg("embed: close request failed")
	}
	return c.t.close()
}
