package coordination

import (
	"context"
	"log"
	"time"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/hotstate"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/observability"
)

// StaleOnlineMonitor is a defensive background check on online-set
// membership. §4.1's invariant (P5) already makes TTL expiry the source of
// truth for membership, so under normal operation this monitor finds
// nothing to do; it exists to catch the case where an online-set entry
// outlives its per-porter availability key because of a partial write
// during a Redis failover, and correct it rather than let a phantom
// "online" porter linger until an operator notices.
type StaleOnlineMonitor struct {
	hot      hotstate.Store
	interval time.Duration
}

func NewStaleOnlineMonitor(hot hotstate.Store, interval time.Duration) *StaleOnlineMonitor {
	return &StaleOnlineMonitor{hot: hot, interval: interval}
}

func (m *StaleOnlineMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reconcile(ctx)
		}
	}
}

func (m *StaleOnlineMonitor) reconcile(ctx context.Context) {
	ids, err := m.hot.OnlinePorterIDs(ctx)
	if err != nil {
		log.Printf("stale-online monitor: list online ids: %v", err)
		return
	}
	observability.OnlinePorterGauge.Set(float64(len(ids)))
	for _, id := range ids {
		state, err := m.hot.GetAvailability(ctx, id)
		if err != nil {
			log.Printf("stale-online monitor: get availability for %s: %v", id, err)
			continue
		}
		if state == nil || !state.Online {
			log.Printf("stale-online monitor: correcting phantom online entry for porter %s", id)
			if err := m.hot.SetAvailability(ctx, *coerceOffline(id, state), time.Second); err != nil {
				log.Printf("stale-online monitor: correct %s: %v", id, err)
			}
		}
	}
}

func coerceOffline(porterID string, state *hotstate.AvailabilityState) *hotstate.AvailabilityState {
	if state != nil {
		cp := *state
		cp.Online = false
		return &cp
	}
	return &hotstate.AvailabilityState{PorterID: porterID, Online: false, LastSeen: time.Now().UTC()}
}
