// Package ocpp201 implements the OCPP 2.0.1 handler set (component D, v2.0.1 variant)
// and its NotifyReport multi-part assembler — the heart of the aggregator in
// internal/command. Grounded on original_source/backend/infrastructure/ocpp_handlers.py's
// V201Handler, extended with the NotifyReport buffer original_source never fully modeled.
package ocpp201

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"csms-gateway/internal/eventbus"
)

// Handler services inbound CALLs for one v2.0.1 session and owns that session's
// NotifyReportBuffer (SPEC_FULL.md §3).
type Handler struct {
	chargePointID string
	bus           *eventbus.Bus
	logger        *slog.Logger

	buffer *reportBuffer
}

// New constructs a v2.0.1 handler bound to one station identity.
func New(chargePointID string, bus *eventbus.Bus, logger *slog.Logger) *Handler {
	return &Handler{
		chargePointID: chargePointID,
		bus:           bus,
		logger:        logger,
		buffer:        newReportBuffer(),
	}
}

// ResetReportCycle clears the NotifyReportBuffer ahead of a new GetBaseReport request
// (SPEC_FULL.md §4.K step 1).
func (h *Handler) ResetReportCycle() {
	h.buffer.reset()
}

// ReportDone returns the channel closed when the current cycle's final frame
// (tbc=false) has been processed.
func (h *Handler) ReportDone() <-chan struct{} {
	return h.buffer.doneChan()
}

// ReportSnapshot returns the deduplicated rows accumulated so far this cycle.
func (h *Handler) ReportSnapshot() []ReportItem {
	return h.buffer.snapshot()
}

// HandleCall implements session.Handler.
func (h *Handler) HandleCall(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error) {
	fields, err := decodeFields(payload)
	if err != nil {
		return nil, fmt.Errorf("ocpp201: decode %s payload: %w", action, err)
	}

	switch action {
	case "BootNotification":
		h.publish(ctx, "BootNotification", fields)
		return encode(map[string]any{
			"currentTime": nowRFC3339(),
			"interval":    10,
			"status":      "Accepted",
		})

	case "Heartbeat":
		h.publish(ctx, "Heartbeat", fields)
		return encode(map[string]any{"currentTime": nowRFC3339()})

	case "StatusNotification":
		h.publish(ctx, "StatusNotification", fields)
		return encode(map[string]any{})

	case "MeterValues":
		h.publish(ctx, "MeterValues", fields)
		return encode(map[string]any{})

	case "NotifyEvent":
		h.publish(ctx, "NotifyEvent", fields)
		return encode(map[string]any{})

	case "TransactionEvent":
		// v2.0.1 replaces v1.6's StartTransaction/StopTransaction with a single
		// eventType-discriminated action. The external codec namespace this was
		// distilled against has no settled TransactionEventResponse schema for a
		// stop, so per the documented open question we return a no-op
		// acknowledgment rather than invent one (SPEC_FULL.md §9).
		topic := "StartTransaction"
		if eventType, _ := fields["eventType"].(string); eventType == "Ended" {
			topic = "StopTransaction"
		}
		h.publish(ctx, topic, fields)
		return encode(map[string]any{})

	case "NotifyReport":
		h.handleNotifyReport(ctx, payload, fields)
		return encode(map[string]any{})

	default:
		h.logger.Warn("ocpp201 handler: unrecognized action, returning empty ack", "action", action, "cp_id", h.chargePointID)
		return encode(map[string]any{})
	}
}

func (h *Handler) handleNotifyReport(ctx context.Context, payload json.RawMessage, fields map[string]any) {
	seqNo, _ := asInt(fields["seqNo"])
	tbc, _ := fields["tbc"].(bool)

	var reportDataRaw json.RawMessage
	if raw, ok := fields["reportData"]; ok {
		reportDataRaw, _ = json.Marshal(raw)
	}
	rows := parseReportData(reportDataRaw)

	if seqNo == 0 {
		h.buffer.reset()
	}
	h.buffer.append(seqNo, tbc, rows)

	h.bus.Publish(ctx, eventbus.Event{
		Topic:         eventbus.TopicNotifyReport,
		ChargePointID: h.chargePointID,
		OCPPVersion:   "2.0.1",
		Payload: map[string]any{
			"seqNo":       seqNo,
			"tbc":         tbc,
			"generatedAt": nowRFC3339(),
			"reportData":  rowsToPayload(rows),
		},
	})
}

func rowsToPayload(rows []ReportItem) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, map[string]any{
			"key":       r.Key,
			"value":     r.Value,
			"readonly":  r.Readonly,
			"dataType":  r.DataType,
			"unit":      r.Unit,
		})
	}
	return out
}

func (h *Handler) publish(ctx context.Context, topic string, fields map[string]any) {
	h.bus.Publish(ctx, eventbus.Event{
		Topic:         topic,
		ChargePointID: h.chargePointID,
		OCPPVersion:   "2.0.1",
		Payload:       fields,
	})
}

func decodeFields(payload json.RawMessage) (map[string]any, error) {
	if len(payload) == 0 {
		return map[string]any{}, nil
	}
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func encode(v map[string]any) (json.RawMessage, error) {
	return json.Marshal(v)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
