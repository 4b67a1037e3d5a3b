package embed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

const remoteHandshakeTimeout = 30 * time.Second

type remoteTransport struct {
	conn    *websocket.Conn
	timeout time.Duration
}

// DialRemote connects to a websocket inference server at opts.URL and loads
// the checkpoint there. Each Message is one binary frame.
func DialRemote(ctx context.Context, opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("embed: remote backend needs a URL")
	}
	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: remoteHandshakeTimeout,
		ReadBufferSize:   1024 * 64,
		WriteBufferSize:  1024 * 64,
	}
	conn, _, err := d.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.URL, err)
	}
	log.Info().Str("url", opts.URL).Msg("embed: connected to remote model")
	return newClient(ctx, &remoteTransport{conn: conn, timeout: opts.Timeout}, BackendRemote, opts)
}

func (t *remoteTransport) send(m Message) error {
	b, err := msgpack.Marshal(&m)
	if err != nil {
		return err
	}
	if t.timeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.timeout))
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, b)
}

func (t *remoteTransport) recv() (Message, error) {
	if t.timeout > 0 {
		_ = t.conn.SetReadDeadline(time.Now().Add(t.timeout))
	}
	kind, b, err := t.conn.ReadMessage()
	if err != nil {
		return Message{}, err
	}
	if kind != websocket.BinaryMessage {
		return Message{}, fmt.Errorf("%w: unexpected frame type %d", ErrProtocol, kind)
	}
	var m Message
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return m, nil
}

func (t *remoteTransport) close() error {
	_ = t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return t.conn.Close()
}

func (t *remoteTransport) abort() error {
	return t.conn.Close()
}
