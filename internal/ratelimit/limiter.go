// Package ratelimit enforces the per-porter location-update cap from §6
// (locationUpdateRatePerSecond, default 10/s) and the Design Notes §9
// fail-open/fail-closed policy for rate limiting under Hot-State Store
// outage.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/dispatcherr"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/hotstate"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/resilience"
)

// SharedWindowLimiter enforces a fixed-window counter in the Hot-State
// Store (the mechanism §5 names explicitly: "Rate limiters maintain
// per-key counters in the Hot-State Store") as the cross-instance limit of
// record, layered with a local golang.org/x/time/rate token bucket per key
// that smooths bursts within a single process between hot-store round
// trips.
type SharedWindowLimiter struct {
	store    hotstate.Store
	degraded *resilience.DegradedMode
	limit    int64
	window   time.Duration

	mu      sync.Mutex
	local   map[string]*rate.Limiter
	localRPS float64
}

func NewSharedWindowLimiter(store hotstate.Store, degraded *resilience.DegradedMode, limitPerWindow int64, window time.Duration, localRPS float64) *SharedWindowLimiter {
	return &SharedWindowLimiter{
		store:    store,
		degraded: degraded,
		limit:    limitPerWindow,
		window:   window,
		local:    make(map[string]*rate.Limiter),
		localRPS: localRPS,
	}
}

func (l *SharedWindowLimiter) localBucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.local[key]
	if !ok {
		b = rate.NewLimiter(rate.Limit(l.localRPS), int(l.localRPS))
		l.local[key] = b
	}
	return b
}

// Allow reports whether key is within its rate limit. mutating controls the
// Design Notes §9 fail-open/fail-closed policy when the Hot-State Store is
// degraded: non-mutating calls fail open (allowed through), mutations fail
// closed (rejected) so a hot-store outage cannot be used to bypass the
// limiter on state-changing requests.
func (l *SharedWindowLimiter) Allow(ctx context.Context, key string, mutating bool) (bool, error) {
	if !l.localBucket(key).Allow() {
		return false, nil
	}

	if l.degraded != nil && l.degraded.IsHotStoreDegraded() {
		return !mutating, nil
	}

	allowed, err := l.store.RateLimitAllow(ctx, key, l.limit, l.window)
	if err != nil {
		if de, ok := dispatcherr.As(err); ok && de.Code == dispatcherr.ServiceUnavailable {
			if l.degraded != nil {
				l.degraded.MarkHotStoreUnavailable()
			}
			return !mutating, nil
		}
		return false, err
	}
	if l.degraded != nil {
		l.degraded.MarkHotStoreAvailable()
	}
	return allowed, nil
}
