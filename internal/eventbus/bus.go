// Package eventbus implements the in-process publish/subscribe bus (component E) that
// routes every inbound OCPP notification to dashboard fan-out and the time-series sink.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Topic names. This is a closed set for the core (SPEC_FULL.md §4.E).
const (
	TopicBootNotification       = "BootNotification"
	TopicHeartbeat              = "Heartbeat"
	TopicAuthorize              = "Authorize"
	TopicStartTransaction       = "StartTransaction"
	TopicStopTransaction        = "StopTransaction"
	TopicStatusNotification     = "StatusNotification"
	TopicMeterValues            = "MeterValues"
	TopicNotifyEvent            = "NotifyEvent"
	TopicNotifyReport           = "NotifyReport"
	TopicChargePointConnected   = "ChargePointConnected"
	TopicChargePointDisconnected = "ChargePointDisconnected"
	TopicConfigurationChanged   = "ConfigurationChanged"
)

// Topics enumerates the closed topic set, in the order subscribers are usually wired.
var Topics = []string{
	TopicBootNotification,
	TopicHeartbeat,
	TopicAuthorize,
	TopicStartTransaction,
	TopicStopTransaction,
	TopicStatusNotification,
	TopicMeterValues,
	TopicNotifyEvent,
	TopicNotifyReport,
	TopicChargePointConnected,
	TopicChargePointDisconnected,
	TopicConfigurationChanged,
}

// Event is one bus message (SPEC_FULL.md §3).
type Event struct {
	Topic         string
	ChargePointID string
	OCPPVersion   string
	Payload       map[string]any
	Timestamp     time.Time
}

// Handler receives a published event. A handler that panics is recovered and logged; it
// never aborts delivery to other subscribers of the same topic (SPEC_FULL.md §4.E).
type Handler func(ctx context.Context, ev Event)

// Bus is a topic-addressed, in-process publish/subscribe mechanism.
//
// Dispatch is sequential per topic and in subscription order, matching
// original_source/backend/application/event_bus.py's per-topic handler list. There is no
// durability and no back-pressure beyond the natural await coupling of Publish.
type Bus struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string][]Handler
}

// New constructs an empty bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logger,
		subs:   make(map[string][]Handler),
	}
}

// Subscribe registers a handler for a topic. Handlers are invoked in registration order.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], h)
}

// Publish dispatches ev to every subscriber of ev.Topic, in order, and awaits completion.
// A subscriber panic is recovered and logged (SubscriberFailure, SPEC_FULL.md §7) — it
// never surfaces to the caller and never prevents delivery to the remaining subscribers.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	handlers := append([]Handler(nil), b.subs[ev.Topic]...)
	b.mu.Unlock()

	for _, h := range handlers {
		b.dispatchOne(ctx, ev, h)
	}
}

func (b *Bus) dispatchOne(ctx context.Context, ev Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event bus subscriber panicked", "topic", ev.Topic, "panic", fmt.Sprint(r))
		}
	}()
	h(ctx, ev)
}
