// Package timeseries implements the time-series sink (component G): a bus subscriber
// with typed mapping for MeterValues and ConfigurationChanged, and a generic counter
// for every other topic.
package timeseries

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"csms-gateway/internal/eventbus"
)

// Writer is the external time-series collaborator's interface (SPEC_FULL.md §4.G,
// external per §1 — the core only needs WritePoint).
type Writer interface {
	WritePoint(ctx context.Context, measurement string, tags map[string]string, fields map[string]any, ts time.Time) error
}

// Sink subscribes to every bus topic and maps events onto Writer.WritePoint calls.
//
// Per SPEC_FULL.md §5 and the dashboard back-pressure open question's sibling decision:
// a slow Writer must not silently lose points. This sink offloads writes onto a bounded
// (256) work queue serviced by one worker goroutine; enqueue blocks once the queue is
// full rather than drop the point, until space frees up or the publishing call's ctx is
// done (only then is the point dropped), so a Writer that falls that far behind stalls
// the bus Publish call that fed it — a deliberate choice documented in
// SPEC_FULL.md's own added open question (block-not-drop over fail-fast, since losing
// billing-adjacent meter readings is worse than a momentarily slower bus).
type Sink struct {
	writer Writer
	logger *slog.Logger
	queue  chan point
}

type point struct {
	measurement string
	tags        map[string]string
	fields      map[string]any
	ts          time.Time
}

// New constructs a Sink. Call Run(ctx) to start its worker.
func New(writer Writer, logger *slog.Logger) *Sink {
	return &Sink{
		writer: writer,
		logger: logger,
		queue:  make(chan point, 256),
	}
}

// Run drains the work queue until ctx is canceled.
func (s *Sink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-s.queue:
			if err := s.writer.WritePoint(ctx, p.measurement, p.tags, p.fields, p.ts); err != nil {
				s.logger.Warn("timeseries write failed", "measurement", p.measurement, "error", err)
			}
		}
	}
}

// Bridge subscribes the sink to every bus topic.
func Bridge(bus *eventbus.Bus, sink *Sink) {
	for _, topic := range eventbus.Topics {
		topic := topic
		bus.Subscribe(topic, func(ctx context.Context, ev eventbus.Event) {
			sink.handle(ctx, topic, ev)
		})
	}
}

func (s *Sink) handle(ctx context.Context, topic string, ev eventbus.Event) {
	switch topic {
	case eventbus.TopicMeterValues:
		s.enqueueMeterValues(ctx, ev)
	case eventbus.TopicConfigurationChanged:
		s.enqueueConfigurationChanged(ctx, ev)
	default:
		s.enqueueCounter(ctx, topic, ev)
	}
}

func (s *Sink) enqueue(ctx context.Context, p point) {
	select {
	case s.queue <- p:
	case <-ctx.Done():
	}
}

// enqueueMeterValues maps each sampled_value entry that parses as a float to one point
// (SPEC_FULL.md §4.G). Non-numeric samples are dropped, not errored.
func (s *Sink) enqueueMeterValues(ctx context.Context, ev eventbus.Event) {
	meterValue, _ := ev.Payload["meterValue"].([]any)
	for _, mv := range meterValue {
		entry, ok := mv.(map[string]any)
		if !ok {
			continue
		}
		ts := parseTimestamp(stringField(entry, "timestamp"))

		sampled, _ := entry["sampledValue"].([]any)
		for _, sv := range sampled {
			sample, ok := sv.(map[string]any)
			if !ok {
				continue
			}
			raw, _ := sample["value"].(string)
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			s.enqueue(ctx, point{
				measurement: "meter_value",
				tags: map[string]string{
					"cp_id":     ev.ChargePointID,
					"connector": stringField(entry, "connectorId"),
					"measurand": stringField(sample, "measurand"),
					"phase":     stringField(sample, "phase"),
					"location":  stringField(sample, "location"),
					"unit":      stringField(sample, "unit"),
				},
				fields: map[string]any{"value": f},
				ts:     ts,
			})
		}
	}
}

func (s *Sink) enqueueConfigurationChanged(ctx context.Context, ev eventbus.Event) {
	key, _ := ev.Payload["parameters"].(map[string]any)
	keyName := ""
	if key != nil {
		keyName = stringField(key, "key")
	}
	fields := map[string]any{}
	if result, ok := ev.Payload["result"].(string); ok {
		if f, err := strconv.ParseFloat(result, 64); err == nil {
			fields["value"] = f
		} else {
			fields["value_str"] = result
		}
	}
	s.enqueue(ctx, point{
		measurement: "configuration_change",
		tags:        map[string]string{"cp_id": ev.ChargePointID, "key": keyName},
		fields:      fields,
		ts:          ev.Timestamp,
	})
}

// enqueueCounter avoids tag explosion by never serializing the full payload
// (SPEC_FULL.md §4.G).
func (s *Sink) enqueueCounter(ctx context.Context, topic string, ev eventbus.Event) {
	s.enqueue(ctx, point{
		measurement: topic,
		tags:        map[string]string{"cp_id": ev.ChargePointID, "ocpp": ev.OCPPVersion},
		fields:      map[string]any{"count": 1},
		ts:          ev.Timestamp,
	})
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// parseTimestamp parses an RFC3339 sample timestamp, falling back to now on a missing or
// unparseable value (SPEC_FULL.md §4.G).
func parseTimestamp(raw string) time.Time {
	if raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}
