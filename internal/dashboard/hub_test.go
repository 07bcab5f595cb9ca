package dashboard

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func runHub(t *testing.T, h *Hub) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestHub_RegisterTracksClientCount(t *testing.T) {
	h := NewHub(testLogger(), Config{})
	stop := runHub(t, h)
	defer stop()

	c := newClient(h, nil, "client-1", testLogger())
	h.register <- c

	waitUntil(t, time.Second, func() bool { return h.ClientCount() == 1 })
}

func TestHub_BroadcastFansOutToAllClients(t *testing.T) {
	h := NewHub(testLogger(), Config{})
	stop := runHub(t, h)
	defer stop()

	c1 := newClient(h, nil, "client-1", testLogger())
	c2 := newClient(h, nil, "client-2", testLogger())
	h.register <- c1
	h.register <- c2
	waitUntil(t, time.Second, func() bool { return h.ClientCount() == 2 })

	h.broadcastBytes([]byte(`{"event":"Heartbeat"}`))

	for _, c := range []*Client{c1, c2} {
		select {
		case msg := <-c.send:
			if string(msg) != `{"event":"Heartbeat"}` {
				t.Fatalf("unexpected frame: %s", msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("expected client to receive the broadcast frame")
		}
	}
}

func TestHub_SlowClientIsEvictedNotRetried(t *testing.T) {
	h := NewHub(testLogger(), Config{SendBuf: 1})
	stop := runHub(t, h)
	defer stop()

	slow := newClient(h, nil, "slow-client", testLogger())
	h.register <- slow
	waitUntil(t, time.Second, func() bool { return h.ClientCount() == 1 })

	// Fill the client's send buffer (capacity 1) without draining it, then force a second
	// broadcast that the client cannot accept.
	h.broadcastBytes([]byte("one"))
	waitUntil(t, time.Second, func() bool { return len(slow.send) == 1 })
	h.broadcastBytes([]byte("two"))

	waitUntil(t, time.Second, func() bool { return h.ClientCount() == 0 })
}

func TestHub_UnregisterRemovesClient(t *testing.T) {
	h := NewHub(testLogger(), Config{})
	stop := runHub(t, h)
	defer stop()

	c := newClient(h, nil, "client-1", testLogger())
	h.register <- c
	waitUntil(t, time.Second, func() bool { return h.ClientCount() == 1 })

	h.unregister <- c
	waitUntil(t, time.Second, func() bool { return h.ClientCount() == 0 })
}

func TestHub_RunClosesAllClientSendChannelsOnShutdown(t *testing.T) {
	h := NewHub(testLogger(), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	c := newClient(h, nil, "client-1", testLogger())
	h.register <- c
	waitUntil(t, time.Second, func() bool { return h.ClientCount() == 1 })

	cancel()
	<-done

	select {
	case _, ok := <-c.send:
		if ok {
			t.Fatalf("expected send channel to be closed, not to have a pending value")
		}
	case <-time.After(time.Second):
		t.Fatalf("expected send channel to be closed after hub shutdown")
	}
}
