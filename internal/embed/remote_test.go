package embed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req Message
			if err := msgpack.Unmarshal(b, &req); err != nil {
				return
			}
			resp, ok := fakeModel(req, "ok")
			if !ok {
				return
			}
			out, _ := msgpack.Marshal(&resp)
			if err := conn.WriteMessage(websocket.BinaryMessage, out); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRemoteEmbed(t *testing.T) {
	srv := fakeServer(t)
	c, err := Open(context.Background(), Options{
		Backend:    BackendRemote,
		URL:        wsURL(srv),
		Checkpoint: "model.pt",
		Layer:      0,
		Timeout:    5 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if !c.Normalize() {
		t.Fatal("fake model asks for normalization at layer 0")
	}
	for _, n := range []int{3, 0, 7} {
		m, err := c.Embed(context.Background(), make([]float32, n*fakeStride))
		if err != nil {
			t.Fatal(err)
		}
		if m.Rows != n || m.Cols != fakeDim {
			t.Fatalf("want %d rows, got (%d, %d)", n, m.Rows, m.Cols)
		}
	}
}

func TestRemoteLoadError(t *testing.T) {
	srv := fakeServer(t)
	_, err := DialRemote(context.Background(), Options{URL: wsURL(srv), Checkpoint: "missing.pt"})
	if !errors.Is(err, ErrModel) {
		t.Fatalf("expected ErrModel, got %v", err)
	}
	if !strings.Contains(err.Error(), "checkpoint not found") {
		t.Fatalf("error lost model message: %v", err)
	}
}

func TestRemoteNeedsURL(t *testing.T) {
	if _, err := DialRemote(context.Background(), Options{}); err == nil {
		t.Fatal("expected error without URL")
	}
}

func TestRemoteDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	if _, err := DialRemote(context.Background(), Options{URL: wsURL(srv)}); err == nil {
		t.Fatal("expected handshake failure")
	}
}
