package monitor_test

import (
	"context"
	"testing"
	"time"

	"mavgo/pkg/framer"
	"mavgo/pkg/monitor"
	"mavgo/pkg/schema"
)

func testPacket(name string, id uint32) framer.Packet {
	return framer.Packet{Message: &schema.Message{Name: name, ID: id}, Content: map[string]any{}}
}

func TestHubDoesNotBlockOnSlowConsumer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := monitor.NewHub(monitor.WithBroadcastBuffer(1), monitor.WithClientBuffer(1))
	go hub.Run(ctx)

	fast := hub.SubscribeWithBuffer(128)
	slow := hub.SubscribeWithBuffer(1)
	_ = slow

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			hub.Publish(testPacket("HEARTBEAT", uint32(i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatalf("publish blocked on slow consumer")
	}

	received := 0
	timeout := time.After(1 * time.Second)
	for received < 50 {
		select {
		case <-fast:
			received++
		case <-timeout:
			t.Fatalf("fast consumer timeout after %d packets", received)
		}
	}
}

func TestUnsubscribeClosesTheChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := monitor.NewHub()
	go hub.Run(ctx)

	ch := hub.Subscribe()
	hub.Unsubscribe(ch)

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected channel to be closed, got a value")
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("unsubscribe did not close the channel in time")
	}
}

func TestContextCancellationClosesAllSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	hub := monitor.NewHub()
	go hub.Run(ctx)

	a := hub.Subscribe()
	b := hub.Subscribe()

	// Give Run a chance to register both subscribers before cancelling.
	time.Sleep(10 * time.Millisecond)
	cancel()

	for _, ch := range []chan framer.Packet{a, b} {
		select {
		case _, ok := <-ch:
			if ok {
				t.Fatalf("expected channel to be closed after ctx cancellation")
			}
		case <-time.After(1 * time.Second):
			t.Fatalf("subscriber was not closed after ctx cancellation")
		}
	}
}
