package ocpp201

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"csms-gateway/internal/eventbus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// reportRow builds one NotifyReport reportData row with a single variableAttribute.
func reportRow(key, value, mutability string) map[string]any {
	attr := map[string]any{"mutability": mutability}
	if value != "" {
		attr["value"] = value
	}
	return map[string]any{
		"variable":  map[string]any{"name": key},
		"component": map[string]any{"name": "Comp"},
		"variableAttribute": []any{attr},
	}
}

func notifyReportPayload(t *testing.T, seqNo int, tbc bool, rows []map[string]any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"seqNo":      seqNo,
		"tbc":        tbc,
		"reportData": rows,
	})
	if err != nil {
		t.Fatalf("marshal notify report payload: %v", err)
	}
	return b
}

func TestHandler_NotifyReportAssemblesAcrossMultipleFrames(t *testing.T) {
	bus := eventbus.New(testLogger())
	h := New("CP-1", bus, testLogger())
	h.ResetReportCycle()

	_, err := h.HandleCall(context.Background(), "NotifyReport",
		notifyReportPayload(t, 0, true, []map[string]any{reportRow("Key1", "10", "ReadOnly")}))
	if err != nil {
		t.Fatalf("HandleCall failed: %v", err)
	}

	select {
	case <-h.ReportDone():
		t.Fatalf("report must not be done while tbc=true")
	default:
	}

	_, err = h.HandleCall(context.Background(), "NotifyReport",
		notifyReportPayload(t, 1, false, []map[string]any{reportRow("Key2", "20", "ReadWrite")}))
	if err != nil {
		t.Fatalf("HandleCall failed: %v", err)
	}

	select {
	case <-h.ReportDone():
	case <-time.After(time.Second):
		t.Fatalf("expected report to be done after tbc=false frame")
	}

	items := h.ReportSnapshot()
	if len(items) != 2 {
		t.Fatalf("expected 2 assembled items, got %d", len(items))
	}
}

func TestHandler_NotifyReportSnapshotDedupPrefersNonNullValue(t *testing.T) {
	bus := eventbus.New(testLogger())
	h := New("CP-1", bus, testLogger())
	h.ResetReportCycle()

	// First frame: Key1 present with no usable attribute value (null).
	nullRow := map[string]any{
		"variable":          map[string]any{"name": "Key1"},
		"component":         map[string]any{"name": "Comp"},
		"variableAttribute": []any{map[string]any{"mutability": "ReadOnly"}},
	}
	_, _ = h.HandleCall(context.Background(), "NotifyReport", notifyReportPayload(t, 0, true, []map[string]any{nullRow}))

	// Second frame: Key1 reappears with a real value.
	_, _ = h.HandleCall(context.Background(), "NotifyReport",
		notifyReportPayload(t, 1, false, []map[string]any{reportRow("Key1", "42", "ReadOnly")}))

	<-h.ReportDone()
	items := h.ReportSnapshot()
	if len(items) != 1 {
		t.Fatalf("expected dedup to collapse to 1 item, got %d", len(items))
	}
	if items[0].Value == nil || *items[0].Value != "42" {
		t.Fatalf("expected the non-null value to win, got %+v", items[0])
	}
}

func TestHandler_ResetReportCycleDoesNotSwapDoneChanCapturedBeforeFirstFrame(t *testing.T) {
	bus := eventbus.New(testLogger())
	h := New("CP-1", bus, testLogger())
	h.ResetReportCycle()

	// Simulates the aggregator capturing ReportDone() before GetBaseReport is sent, i.e.
	// before the station's seqNo==0 frame has arrived.
	done := h.ReportDone()

	_, err := h.HandleCall(context.Background(), "NotifyReport",
		notifyReportPayload(t, 0, true, []map[string]any{reportRow("Key1", "10", "ReadOnly")}))
	if err != nil {
		t.Fatalf("HandleCall failed: %v", err)
	}
	_, err = h.HandleCall(context.Background(), "NotifyReport",
		notifyReportPayload(t, 1, false, []map[string]any{reportRow("Key2", "20", "ReadWrite")}))
	if err != nil {
		t.Fatalf("HandleCall failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected the channel captured before the seqNo==0 frame to still close on completion")
	}
}

func TestHandler_TransactionEventRoutesByEventType(t *testing.T) {
	bus := eventbus.New(testLogger())
	var gotTopics []string
	for _, topic := range []string{eventbus.TopicStartTransaction, eventbus.TopicStopTransaction} {
		topic := topic
		bus.Subscribe(topic, func(ctx context.Context, ev eventbus.Event) {
			gotTopics = append(gotTopics, topic)
		})
	}
	h := New("CP-1", bus, testLogger())

	_, _ = h.HandleCall(context.Background(), "TransactionEvent", json.RawMessage(`{"eventType":"Started"}`))
	_, _ = h.HandleCall(context.Background(), "TransactionEvent", json.RawMessage(`{"eventType":"Ended"}`))

	if len(gotTopics) != 2 || gotTopics[0] != eventbus.TopicStartTransaction || gotTopics[1] != eventbus.TopicStopTransaction {
		t.Fatalf("unexpected topic routing: %v", gotTopics)
	}
}
