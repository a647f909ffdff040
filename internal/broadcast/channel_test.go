package broadcast

import (
	"context"
	"testing"
	"time"

	"beacon/pkg/types"
)

func startedChannel(t *testing.T) *Channel {
	t.Helper()
	c := NewChannel()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start channel: %v", err)
	}
	t.Cleanup(func() { _ = c.Stop() })
	return c
}

func record(id string) *types.EmergencySession {
	return &types.EmergencySession{ID: id, ReporterID: "r1", Status: types.StatusActive}
}

func receiveEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if !ok {
			t.Fatal("Subscription channel closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
		return nil
	}
}

func TestChannel_StartStop(t *testing.T) {
	c := NewChannel()
	ctx := context.Background()

	if err := c.Start(ctx); err != nil {
		t.Errorf("Expected no error starting channel, got %v", err)
	}
	if err := c.Start(ctx); err != ErrChannelAlreadyRunning {
		t.Errorf("Expected ErrChannelAlreadyRunning, got %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Errorf("Expected no error stopping channel, got %v", err)
	}
	if err := c.Stop(); err != ErrChannelNotRunning {
		t.Errorf("Expected ErrChannelNotRunning, got %v", err)
	}
}

func TestChannel_PublishBeforeStart(t *testing.T) {
	c := NewChannel()
	if err := c.Publish(SessionCreated{Record: record("s1")}); err != ErrChannelNotRunning {
		t.Errorf("Expected ErrChannelNotRunning, got %v", err)
	}
	if _, err := c.Subscribe(); err != ErrChannelNotRunning {
		t.Errorf("Expected ErrChannelNotRunning, got %v", err)
	}
}

func TestChannel_DeliversToAllSubscribers(t *testing.T) {
	c := startedChannel(t)

	sub1, err := c.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	sub2, err := c.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := c.Publish(SessionCreated{Record: record("s1")}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for _, sub := range []*Subscription{sub1, sub2} {
		ev := receiveEvent(t, sub)
		created, ok := ev.(SessionCreated)
		if !ok {
			t.Fatalf("Expected SessionCreated, got %T", ev)
		}
		if created.Record.ID != "s1" {
			t.Errorf("Expected session s1, got %s", created.Record.ID)
		}
	}
}

func TestChannel_PerSessionOrderPreserved(t *testing.T) {
	c := startedChannel(t)

	sub, err := c.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := c.Publish(SessionCreated{Record: record("s1")}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := c.Publish(SessionUpdated{Record: record("s1")}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := c.Publish(SessionEnded{ID: "s1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if _, ok := receiveEvent(t, sub).(SessionCreated); !ok {
		t.Error("Expected SessionCreated first")
	}
	if _, ok := receiveEvent(t, sub).(SessionUpdated); !ok {
		t.Error("Expected SessionUpdated second")
	}
	if _, ok := receiveEvent(t, sub).(SessionEnded); !ok {
		t.Error("Expected SessionEnded third")
	}
}

func TestChannel_NoReplayForLateSubscriber(t *testing.T) {
	c := startedChannel(t)

	early, err := c.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := c.Publish(SessionCreated{Record: record("s1")}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	// The early subscriber has seen the event once it arrives on its
	// channel, which also means the fan-out goroutine finished this batch.
	receiveEvent(t, early)

	late, err := c.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	select {
	case ev := <-late.C:
		t.Errorf("Late subscriber must not see past events, got %T", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannel_UnsubscribeClosesChannel(t *testing.T) {
	c := startedChannel(t)

	sub, err := c.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	sub.Unsubscribe()

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Error("Expected closed channel after Unsubscribe")
		}
	case <-time.After(2 * time.Second):
		t.Error("Timed out waiting for channel close")
	}
}

func TestChannel_LaggingSubscriberDoesNotBlockPublisher(t *testing.T) {
	c := startedChannel(t)

	// Never drained: fills up after subscriptionBuffer events.
	if _, err := c.Subscribe(); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	for i := 0; i < subscriptionBuffer*2; i++ {
		if err := c.Publish(SessionUpdated{Record: record("s1")}); err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
		// Give the fan-out goroutine room to drain the publish queue.
		time.Sleep(time.Millisecond)
	}
}

func TestChannel_StopClosesSubscribers(t *testing.T) {
	c := NewChannel()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start channel: %v", err)
	}
	sub, err := c.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Error("Expected closed channel after Stop")
		}
	case <-time.After(2 * time.Second):
		t.Error("Timed out waiting for channel close after Stop")
	}
}

func TestChannel_ContextCancelStopsChannel(t *testing.T) {
	c := NewChannel()
	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Failed to start channel: %v", err)
	}

	sub, err := c.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	// Round-trip one event so the subscription is registered before the
	// cancellation races it.
	if err := c.Publish(SessionCreated{Record: record("s1")}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	receiveEvent(t, sub)

	cancel()

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Error("Expected closed channel after context cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Error("Timed out waiting for channel close after cancellation")
	}

	// A cancelled channel must refuse new work rather than buffering
	// events nothing will ever deliver.
	if err := c.Publish(SessionUpdated{Record: record("s1")}); err != ErrChannelNotRunning {
		t.Errorf("Expected ErrChannelNotRunning after cancellation, got %v", err)
	}
	if _, err := c.Subscribe(); err != ErrChannelNotRunning {
		t.Errorf("Expected ErrChannelNotRunning subscribing after cancellation, got %v", err)
	}
	if err := c.Stop(); err != ErrChannelNotRunning {
		t.Errorf("Expected ErrChannelNotRunning stopping after cancellation, got %v", err)
	}
}
