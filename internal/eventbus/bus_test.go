package eventbus

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

func TestBus_DispatchesInSubscriptionOrderPerTopic(t *testing.T) {
	bus := New(testLogger())
	var order []int

	bus.Subscribe(TopicHeartbeat, func(ctx context.Context, ev Event) { order = append(order, 1) })
	bus.Subscribe(TopicHeartbeat, func(ctx context.Context, ev Event) { order = append(order, 2) })
	bus.Subscribe(TopicHeartbeat, func(ctx context.Context, ev Event) { order = append(order, 3) })

	bus.Publish(context.Background(), Event{Topic: TopicHeartbeat})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected subscribers invoked in registration order, got %v", order)
	}
}

func TestBus_PublishIsSynchronous(t *testing.T) {
	bus := New(testLogger())
	done := false
	bus.Subscribe(TopicHeartbeat, func(ctx context.Context, ev Event) {
		time.Sleep(5 * time.Millisecond)
		done = true
	})
	bus.Publish(context.Background(), Event{Topic: TopicHeartbeat})
	if !done {
		t.Fatalf("expected Publish to await subscriber completion before returning")
	}
}

func TestBus_SubscriberPanicDoesNotBlockOtherSubscribers(t *testing.T) {
	bus := New(testLogger())
	secondRan := false

	bus.Subscribe(TopicBootNotification, func(ctx context.Context, ev Event) {
		panic("boom")
	})
	bus.Subscribe(TopicBootNotification, func(ctx context.Context, ev Event) {
		secondRan = true
	})

	bus.Publish(context.Background(), Event{Topic: TopicBootNotification})

	if !secondRan {
		t.Fatalf("expected second subscriber to run despite first subscriber panicking")
	}
}

func TestBus_PublishStampsTimestampWhenZero(t *testing.T) {
	bus := New(testLogger())
	var got Event
	bus.Subscribe(TopicHeartbeat, func(ctx context.Context, ev Event) { got = ev })

	bus.Publish(context.Background(), Event{Topic: TopicHeartbeat})

	if got.Timestamp.IsZero() {
		t.Fatalf("expected Publish to stamp a zero Timestamp")
	}
}

func TestBus_PublishToUnsubscribedTopicIsANoop(t *testing.T) {
	bus := New(testLogger())
	// Must not panic or block even though nothing subscribed to this topic.
	bus.Publish(context.Background(), Event{Topic: TopicAuthorize})
}
