package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/dispatcherr"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/hotstate"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/resilience"
)

// failingStore always reports the Hot-State Store as unavailable, so Allow
// must fall back to the degraded-mode policy.
type failingStore struct {
	hotstate.Store
}

func (failingStore) RateLimitAllow(context.Context, string, int64, time.Duration) (bool, error) {
	return false, dispatcherr.New(dispatcherr.ServiceUnavailable, "hot store unreachable")
}

func TestAllow_WithinLimit(t *testing.T) {
	st := hotstate.NewMemoryStore()
	l := NewSharedWindowLimiter(st, resilience.NewDegradedMode(), 5, time.Minute, 1000)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		allowed, err := l.Allow(ctx, "porter-1", true)
		if err != nil || !allowed {
			t.Fatalf("call %d should be allowed, got allowed=%v err=%v", i, allowed, err)
		}
	}
	allowed, err := l.Allow(ctx, "porter-1", true)
	if err != nil || allowed {
		t.Fatalf("6th call within the window should be rejected, got allowed=%v err=%v", allowed, err)
	}
}

// Design Notes §9 policy: a degraded Hot-State Store fails open for
// non-mutating calls and fails closed for mutating ones.
func TestAllow_DegradedHotStoreFailOpenNonMutating(t *testing.T) {
	degraded := resilience.NewDegradedMode()
	l := NewSharedWindowLimiter(failingStore{}, degraded, 5, time.Minute, 1000)
	ctx := context.Background()

	allowed, err := l.Allow(ctx, "porter-1", false)
	if err != nil || !allowed {
		t.Fatalf("non-mutating call under hot-store outage should fail open, got allowed=%v err=%v", allowed, err)
	}
}

func TestAllow_DegradedHotStoreFailClosedMutating(t *testing.T) {
	degraded := resilience.NewDegradedMode()
	l := NewSharedWindowLimiter(failingStore{}, degraded, 5, time.Minute, 1000)
	ctx := context.Background()

	allowed, err := l.Allow(ctx, "porter-1", true)
	if err != nil || allowed {
		t.Fatalf("mutating call under hot-store outage should fail closed, got allowed=%v err=%v", allowed, err)
	}
	if !degraded.IsHotStoreDegraded() {
		t.Fatalf("degraded mode should be marked after a ServiceUnavailable error")
	}
}
