package command

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	"csms-gateway/internal/ocppwire"
	"csms-gateway/internal/session"
)

// stationChannel simulates a charging station's WebSocket connection: calls the gateway
// sends arrive on outbound; an auto-responder goroutine (driven by the test) decides what
// to write back on inbound.
type stationChannel struct {
	mu       sync.Mutex
	inbound  chan string // frames the "station" sends toward the session (Recv)
	outbound chan string // frames the session sends toward the "station" (Send)
	closed   bool
}

func newStationChannel() *stationChannel {
	return &stationChannel{
		inbound:  make(chan string, 16),
		outbound: make(chan string, 16),
	}
}

func (c *stationChannel) Recv() (string, error) {
	msg, ok := <-c.inbound
	if !ok {
		return "", io.EOF
	}
	return msg, nil
}

func (c *stationChannel) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("stationChannel: closed")
	}
	c.outbound <- text
	return nil
}

func (c *stationChannel) Close(int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbound)
	}
	return nil
}

type noopHandler struct{}

func (noopHandler) HandleCall(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// autoRespond starts a goroutine that answers every outbound call matching a key in
// responses with that CALLRESULT payload, verbatim.
func autoRespond(ch *stationChannel, responses map[string]json.RawMessage) {
	autoRespondFunc(ch, func(action string, _ json.RawMessage) json.RawMessage {
		if payload, ok := responses[action]; ok {
			return payload
		}
		return json.RawMessage(`{}`)
	})
}

// autoRespondFunc starts a goroutine that answers every outbound call by invoking fn with
// the decoded action and payload, replying with whatever it returns.
func autoRespondFunc(ch *stationChannel, fn func(action string, payload json.RawMessage) json.RawMessage) {
	go func() {
		for frame := range ch.outbound {
			decoded, err := ocppwire.Decode(frame)
			if err != nil || decoded.Call == nil {
				continue
			}
			resp, err := ocppwire.EncodeCallResult(decoded.Call.ID, fn(decoded.Call.Action, decoded.Call.Payload))
			if err != nil {
				continue
			}
			func() {
				defer func() { _ = recover() }() // inbound channel may already be closed
				ch.inbound <- resp
			}()
		}
	}()
}

func newRunningSession(id, ocppVersion string, ch *stationChannel) *session.Session {
	sess := session.New(id, ch, noopHandler{}, session.Settings{Enabled: true, OCPPVersion: ocppVersion}, testLogger())
	go sess.Listen(context.Background())
	return sess
}
