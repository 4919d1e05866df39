package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/hotstate"
)

func TestLockJanitor_SweepLeavesLiveLockHeld(t *testing.T) {
	hot := hotstate.NewMemoryStore()
	ctx := context.Background()

	ok, err := hot.AcquireLock(ctx, "dispatch:lock:scheduler", "owner-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire lock: ok=%v err=%v", ok, err)
	}

	j := NewLockJanitor(hot, time.Minute)
	j.sweep(ctx)

	owner, err := hot.GetLockOwner(ctx, "dispatch:lock:scheduler")
	if err != nil {
		t.Fatalf("get lock owner: %v", err)
	}
	if owner != "owner-a" {
		t.Fatalf("sweep should not itself release a live lock, got owner=%q", owner)
	}
}

func TestLockJanitor_SweepToleratesScanFailure(t *testing.T) {
	hot := &failingScanStore{Store: hotstate.NewMemoryStore()}
	j := NewLockJanitor(hot, time.Minute)
	// Should log and return rather than panic.
	j.sweep(context.Background())
}

type failingScanStore struct {
	hotstate.Store
}

func (s *failingScanStore) ScanLocks(_ context.Context, _ string) ([]string, error) {
	return nil, errScanFailed
}

var errScanFailed = &scanError{"scan failed"}

type scanError struct{ msg string }

func (e *scanError) Error() string { return e.msg }
