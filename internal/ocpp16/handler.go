// Package ocpp16 implements the OCPP 1.6-J handler set (component D, v1.6 variant):
// one minimally-valid acknowledgment per mandatory action, plus event emission onto the
// bus. Grounded on original_source/backend/infrastructure/ocpp_handlers.py's V16Handler.
package ocpp16

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"csms-gateway/internal/eventbus"
)

// Handler services inbound CALLs for one v1.6 session.
type Handler struct {
	chargePointID string
	bus           *eventbus.Bus
	logger        *slog.Logger
}

// New constructs a v1.6 handler bound to one station identity.
func New(chargePointID string, bus *eventbus.Bus, logger *slog.Logger) *Handler {
	return &Handler{chargePointID: chargePointID, bus: bus, logger: logger}
}

// HandleCall implements session.Handler.
func (h *Handler) HandleCall(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error) {
	fields, err := decodeFields(payload)
	if err != nil {
		return nil, fmt.Errorf("ocpp16: decode %s payload: %w", action, err)
	}

	h.publish(ctx, action, fields)

	switch action {
	case "BootNotification":
		return encode(map[string]any{
			"currentTime": nowRFC3339(),
			"interval":    10,
			"status":      "Accepted",
		})

	case "Heartbeat":
		return encode(map[string]any{"currentTime": nowRFC3339()})

	case "Authorize":
		return encode(map[string]any{
			"idTagInfo": map[string]any{"status": "Accepted"},
		})

	case "StartTransaction":
		return encode(map[string]any{
			"transactionId": 1,
			"idTagInfo":      map[string]any{"status": "Accepted"},
		})

	case "StopTransaction", "StatusNotification", "MeterValues", "NotifyEvent":
		return encode(map[string]any{})

	default:
		h.logger.Warn("ocpp16 handler: unrecognized action, returning empty ack", "action", action, "cp_id", h.chargePointID)
		return encode(map[string]any{})
	}
}

func (h *Handler) publish(ctx context.Context, action string, fields map[string]any) {
	topic := action
	if !isKnownTopic(topic) {
		return
	}
	h.bus.Publish(ctx, eventbus.Event{
		Topic:         topic,
		ChargePointID: h.chargePointID,
		OCPPVersion:   "1.6",
		Payload:       fields,
	})
}

func isKnownTopic(topic string) bool {
	for _, t := range eventbus.Topics {
		if t == topic {
			return true
		}
	}
	return false
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
