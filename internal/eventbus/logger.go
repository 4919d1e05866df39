package eventbus

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// LogPublisher is a best-effort, at-least-once publisher that writes each
// event to the process log and fans it out to in-process subscribers. It
// satisfies §2's "durable, partitioned publish-subscribe transport" in the
// minimal sense the spec permits (Design Notes §9: "does not require a
// transactional outbox but permits one") — a real deployment would swap
// this for a Kafka/NATS-backed Publisher behind the same interface.
type LogPublisher struct {
	logger *log.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewLogPublisher(logger *log.Logger) *LogPublisher {
	return &LogPublisher{logger: logger, handlers: make(map[string][]Handler)}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	p.logger.Printf("event published type=%s partition_key=%s correlation_id=%s payload=%s",
		e.Type, e.PartitionKey, e.CorrelationID, payload)

	p.mu.RLock()
	handlers := append([]Handler(nil), p.handlers[e.Type]...)
	p.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			p.logger.Printf("event handler error type=%s: %v", e.Type, err)
		}
	}
	return nil
}

func (p *LogPublisher) Subscribe(eventType string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[eventType] = append(p.handlers[eventType], h)
}

func (p *LogPublisher) Close() error { return nil }
