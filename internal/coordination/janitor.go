package coordination

import (
	"context"
	"log"
	"time"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/hotstate"
)

// LockJanitor periodically scans the lock/lease keys matching its pattern
// and reads each key's current owner. It releases nothing (expired entries
// are reaped by the Hot-State Store's own TTL) and logs only scan and
// owner-lookup errors.
// Adapted from the teacher's janitor, scoped to the scheduler lease and any
// ad-hoc per-porter locks this core takes out.
type LockJanitor struct {
	hot      hotstate.Coordinator
	interval time.Duration
	pattern  string
}

func NewLockJanitor(hot hotstate.Coordinator, interval time.Duration) *LockJanitor {
	return &LockJanitor{hot: hot, interval: interval, pattern: "dispatch:lock:*"}
}

func (j *LockJanitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *LockJanitor) sweep(ctx context.Context) {
	keys, err := j.hot.ScanLocks(ctx, j.pattern)
	if err != nil {
		log.Printf("lock janitor: scan failed: %v", err)
		return
	}
	for _, key := range keys {
		owner, err := j.hot.GetLockOwner(ctx, key)
		if err != nil {
			log.Printf("lock janitor: get owner for %s: %v", key, err)
			continue
		}
		if owner == "" {
			// Already expired/released; nothing to do. Logged at debug
			// volume in a real deployment, omitted here.
			continue
		}
	}
}
