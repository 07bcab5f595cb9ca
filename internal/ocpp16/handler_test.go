package ocpp16

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"csms-gateway/internal/eventbus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler_BootNotificationAcceptsAndPublishes(t *testing.T) {
	bus := eventbus.New(testLogger())
	received := make(chan eventbus.Event, 1)
	bus.Subscribe(eventbus.TopicBootNotification, func(ctx context.Context, ev eventbus.Event) {
		received <- ev
	})

	h := New("CP-1", bus, testLogger())
	resp, err := h.HandleCall(context.Background(), "BootNotification", json.RawMessage(`{"chargePointVendor":"Acme"}`))
	if err != nil {
		t.Fatalf("HandleCall failed: %v", err)
	}

	var ack struct {
		Status   string `json:"status"`
		Interval int    `json:"interval"`
	}
	if err := json.Unmarshal(resp, &ack); err != nil {
		t.Fatalf("bad ack json: %v", err)
	}
	if ack.Status != "Accepted" {
		t.Fatalf("expected Accepted, got %q", ack.Status)
	}

	select {
	case ev := <-received:
		if ev.ChargePointID != "CP-1" || ev.OCPPVersion != "1.6" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatalf("expected BootNotification event to be published")
	}
}

func TestHandler_StartTransactionReturnsTransactionID(t *testing.T) {
	bus := eventbus.New(testLogger())
	h := New("CP-1", bus, testLogger())

	resp, err := h.HandleCall(context.Background(), "StartTransaction", json.RawMessage(`{"idTag":"TAG1"}`))
	if err != nil {
		t.Fatalf("HandleCall failed: %v", err)
	}
	var result struct {
		TransactionID int `json:"transactionId"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if result.TransactionID == 0 {
		t.Fatalf("expected non-zero transaction id")
	}
}

func TestHandler_UnrecognizedActionReturnsEmptyAck(t *testing.T) {
	bus := eventbus.New(testLogger())
	h := New("CP-1", bus, testLogger())

	resp, err := h.HandleCall(context.Background(), "SomeFutureAction", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("HandleCall failed: %v", err)
	}
	if string(resp) != "{}" {
		t.Fatalf("expected empty ack, got %s", resp)
	}
}
