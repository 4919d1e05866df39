// Package coordination provides single-instance execution guarantees for
// the Periodic Scheduler (§4.5: "at-most-one execution per tick (leader
// election or single-instance deployment)") via a Hot-State Store lease plus
// a Durable Store fencing epoch, matching the teacher's dual-layer design.
package coordination

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/hotstate"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/store"
)

const leaderLeaseKey = "scheduler-leader"

// LeaderElector maintains leadership via a renewable Hot-State Store lease.
// Holding the lease also advances a durable epoch counter so any work
// performed while leading carries a fencing token a stale ex-leader cannot
// forge.
type LeaderElector struct {
	hot   hotstate.Coordinator
	dur   store.Store
	id    string
	ttl   time.Duration

	mu       sync.RWMutex
	isLeader bool
	epoch    int64
}

func NewLeaderElector(hot hotstate.Coordinator, dur store.Store, ttl time.Duration) *LeaderElector {
	return &LeaderElector{hot: hot, dur: dur, id: newInstanceID(), ttl: ttl}
}

func newInstanceID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Run attempts to acquire or renew leadership every ttl/3 until ctx is
// cancelled.
func (e *LeaderElector) Run(ctx context.Context) {
	ticker := time.NewTicker(e.ttl / 3)
	defer ticker.Stop()
	e.tryAcquireOrRenew(ctx)
	for {
		select {
		case <-ctx.Done():
			e.stepDown(context.Background())
			return
		case <-ticker.C:
			e.tryAcquireOrRenew(ctx)
		}
	}
}

func (e *LeaderElector) tryAcquireOrRenew(ctx context.Context) {
	e.mu.RLock()
	wasLeader := e.isLeader
	e.mu.RUnlock()

	var ok bool
	var err error
	if wasLeader {
		ok, err = e.hot.RenewLease(ctx, leaderLeaseKey, e.id, e.ttl)
	} else {
		ok, err = e.hot.AcquireLease(ctx, leaderLeaseKey, e.id, e.ttl)
	}
	if err != nil {
		log.Printf("leader election: %v", err)
		ok = false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if ok && !e.isLeader {
		epoch, epochErr := e.dur.IncrementDurableEpoch(ctx, leaderLeaseKey)
		if epochErr != nil {
			log.Printf("leader election: failed to advance fencing epoch: %v", epochErr)
		} else {
			e.epoch = epoch
			log.Printf("instance %s acquired scheduler leadership (epoch %d)", e.id, epoch)
		}
	}
	e.isLeader = ok
}

func (e *LeaderElector) stepDown(ctx context.Context) {
	e.mu.Lock()
	wasLeader := e.isLeader
	e.isLeader = false
	e.mu.Unlock()
	if wasLeader {
		if err := e.hot.ReleaseLease(ctx, leaderLeaseKey, e.id); err != nil {
			log.Printf("leader election: release lease: %v", err)
		}
	}
}

func (e *LeaderElector) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isLeader
}

func (e *LeaderElector) Epoch() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.epoch
}

func (e *LeaderElector) FencingToken() string {
	return fmt.Sprintf("%s@%d", e.id, e.Epoch())
}
