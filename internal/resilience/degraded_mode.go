// Package resilience tracks dependency availability so the rest of the
// core can make deliberate fail-open/fail-closed decisions instead of
// guessing (Design Notes §9's open question on rate-limiter policy).
package resilience

import (
	"log"
	"sync"
	"time"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/observability"
)

// DegradedMode tracks whether the Durable Store, Hot-State Store, and Event
// Bus are currently believed reachable. It does not buffer or replay
// writes — §5 already states that durability wins and clients converge via
// idempotency-key retry, so there is nothing here beyond availability
// bookkeeping and the metrics/logging that go with it.
type DegradedMode struct {
	mu sync.RWMutex

	hotStoreAvailable     bool
	durableStoreAvailable bool
	eventBusAvailable     bool

	lastHotStoreCheck     time.Time
	lastDurableStoreCheck time.Time
}

func NewDegradedMode() *DegradedMode {
	return &DegradedMode{
		hotStoreAvailable:     true,
		durableStoreAvailable: true,
		eventBusAvailable:     true,
	}
}

func (d *DegradedMode) MarkHotStoreUnavailable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hotStoreAvailable {
		log.Printf("hot-state store marked unavailable")
		observability.HotStoreDegraded.Set(1)
	}
	d.hotStoreAvailable = false
	d.lastHotStoreCheck = time.Now()
}

func (d *DegradedMode) MarkHotStoreAvailable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.hotStoreAvailable {
		log.Printf("hot-state store recovered")
		observability.HotStoreDegraded.Set(0)
	}
	d.hotStoreAvailable = true
}

func (d *DegradedMode) IsHotStoreDegraded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.hotStoreAvailable
}

func (d *DegradedMode) MarkDurableStoreUnavailable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.durableStoreAvailable {
		log.Printf("durable store marked unavailable")
		observability.DurableStoreDegraded.Set(1)
	}
	d.durableStoreAvailable = false
	d.lastDurableStoreCheck = time.Now()
}

func (d *DegradedMode) MarkDurableStoreAvailable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.durableStoreAvailable {
		log.Printf("durable store recovered")
		observability.DurableStoreDegraded.Set(0)
	}
	d.durableStoreAvailable = true
}

func (d *DegradedMode) IsDurableStoreDegraded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.durableStoreAvailable
}

func (d *DegradedMode) MarkEventBusUnavailable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.eventBusAvailable = false
}

func (d *DegradedMode) MarkEventBusAvailable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.eventBusAvailable = true
}

func (d *DegradedMode) HealthCheck() map[string]bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return map[string]bool{
		"hot_store":     d.hotStoreAvailable,
		"durable_store": d.durableStoreAvailable,
		"event_bus":     d.eventBusAvailable,
	}
}
