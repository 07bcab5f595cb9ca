package wsconn

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

// newConnPair spins up a real loopback WebSocket connection (httptest server + gorilla
// client dial) and wraps both ends in Conn, so tests exercise the actual transport rather
// than a fake.
func newConnPair(t *testing.T) (client *Conn, server *Conn, cleanup func()) {
	t.Helper()
	serverCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("server upgrade failed: %v", err)
			return
		}
		serverCh <- ws
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientWS, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("client dial failed: %v", err)
	}

	serverWS := <-serverCh
	return New(clientWS), New(serverWS), srv.Close
}

func TestConn_SendRecvRoundTrip(t *testing.T) {
	client, server, cleanup := newConnPair(t)
	defer cleanup()

	if err := client.Send("hello"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	got, err := server.Recv()
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	if got != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	client, _, cleanup := newConnPair(t)
	defer cleanup()

	if err := client.Close(0); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := client.Close(0); err != nil {
		t.Fatalf("second Close must also be a no-op, got: %v", err)
	}
}

func TestConn_SendAfterCloseReturnsErrClosed(t *testing.T) {
	client, _, cleanup := newConnPair(t)
	defer cleanup()

	_ = client.Close(0)
	if err := client.Send("too late"); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestConn_RecvAfterRemoteCloseReturnsErrClosed(t *testing.T) {
	client, server, cleanup := newConnPair(t)
	defer cleanup()

	go func() { _ = client.Close(0) }()

	done := make(chan error, 1)
	go func() {
		_, err := server.Recv()
		done <- err
	}()

	select {
	case err := <-done:
		if err != ErrClosed {
			t.Fatalf("expected ErrClosed after remote close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for Recv to observe the remote close")
	}
}
