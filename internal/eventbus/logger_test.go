package eventbus

import (
	"context"
	"log"
	"sync"
	"testing"
)

func discardLogger() *log.Logger {
	return log.New(discardWriter{}, "", 0)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestLogPublisher_DeliversToSubscribedHandlers(t *testing.T) {
	p := NewLogPublisher(discardLogger())
	var mu sync.Mutex
	var received []Event

	p.Subscribe("PorterOnline", func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e)
		return nil
	})

	if err := p.Publish(context.Background(), Event{Type: "PorterOnline", PartitionKey: "P1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := p.Publish(context.Background(), Event{Type: "PorterOffline", PartitionKey: "P1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0].Type != "PorterOnline" {
		t.Fatalf("expected exactly 1 matching delivery, got %+v", received)
	}
}

func TestLogPublisher_MultipleHandlersPerType(t *testing.T) {
	p := NewLogPublisher(discardLogger())
	var count int
	var mu sync.Mutex
	inc := func(context.Context, Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}
	p.Subscribe("X", inc)
	p.Subscribe("X", inc)

	if err := p.Publish(context.Background(), Event{Type: "X"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Fatalf("expected both subscribed handlers invoked, got %d", count)
	}
}

// A handler's error must not prevent other handlers or future publishes
// from running.
func TestLogPublisher_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	p := NewLogPublisher(discardLogger())
	var secondRan bool
	p.Subscribe("X", func(context.Context, Event) error {
		return errBoom
	})
	p.Subscribe("X", func(context.Context, Event) error {
		secondRan = true
		return nil
	})
	if err := p.Publish(context.Background(), Event{Type: "X"}); err != nil {
		t.Fatalf("publish should not surface handler errors: %v", err)
	}
	if !secondRan {
		t.Fatalf("second handler should still run after the first errors")
	}
}

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
