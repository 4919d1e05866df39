package availability

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/authctx"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/eventbus"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/hotstate"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/store"
)

type countingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *countingPublisher) Publish(_ context.Context, e eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}
func (p *countingPublisher) Close() error { return nil }
func (p *countingPublisher) countType(t string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func newEligiblePorter(t *testing.T, dur store.Store, porterID, userID string) {
	t.Helper()
	ctx := context.Background()
	if err := dur.CreatePorter(ctx, &store.PorterProfile{PorterID: porterID, UserID: userID}); err != nil {
		t.Fatalf("create porter: %v", err)
	}
	if err := dur.UpdateVerificationStatus(ctx, porterID, store.VerificationVerified, "reviewer", ""); err != nil {
		t.Fatalf("verify porter: %v", err)
	}
}

// R1: repeating setAvailability(p, true) collapses to one online-set
// membership entry, but still publishes one event per call.
func TestSetAvailability_RepeatedOnlineIsIdempotentMembership(t *testing.T) {
	hot := hotstate.NewMemoryStore()
	dur := store.NewMemoryStore()
	pub := &countingPublisher{}
	svc := NewService(hot, dur, pub, time.Minute)
	ctx := context.Background()
	newEligiblePorter(t, dur, "P1", "user-1")

	principal := authctx.Principal{UserID: "user-1", Role: authctx.RolePorter}
	if err := svc.SetAvailability(ctx, principal, "P1", true, 1, 2, true, ""); err != nil {
		t.Fatalf("first setAvailability: %v", err)
	}
	if err := svc.SetAvailability(ctx, principal, "P1", true, 1, 2, true, ""); err != nil {
		t.Fatalf("second setAvailability: %v", err)
	}

	ids, err := svc.OnlinePorterIDs(ctx)
	if err != nil {
		t.Fatalf("online ids: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected exactly 1 online-set member, got %d: %v", len(ids), ids)
	}
	if n := pub.countType("PorterOnline"); n != 2 {
		t.Fatalf("expected 2 PorterOnline events for 2 calls, got %d", n)
	}
}

func TestSetAvailability_OfflineRemovesFromOnlineSet(t *testing.T) {
	hot := hotstate.NewMemoryStore()
	dur := store.NewMemoryStore()
	svc := NewService(hot, dur, nil, time.Minute)
	ctx := context.Background()
	newEligiblePorter(t, dur, "P1", "user-1")

	principal := authctx.Principal{UserID: "user-1", Role: authctx.RolePorter}
	if err := svc.SetAvailability(ctx, principal, "P1", true, 1, 2, true, ""); err != nil {
		t.Fatalf("go online: %v", err)
	}
	if err := svc.SetAvailability(ctx, principal, "P1", false, 0, 0, false, ""); err != nil {
		t.Fatalf("go offline: %v", err)
	}
	ids, err := svc.OnlinePorterIDs(ctx)
	if err != nil {
		t.Fatalf("online ids: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty online set after going offline, got %v", ids)
	}
}

func TestHeartbeat_KeepsPorterOnline(t *testing.T) {
	hot := hotstate.NewMemoryStore()
	dur := store.NewMemoryStore()
	svc := NewService(hot, dur, nil, time.Minute)
	ctx := context.Background()
	newEligiblePorter(t, dur, "P1", "user-1")

	principal := authctx.Principal{UserID: "user-1", Role: authctx.RolePorter}
	if err := svc.SetAvailability(ctx, principal, "P1", true, 1, 2, true, ""); err != nil {
		t.Fatalf("go online: %v", err)
	}
	if err := svc.Heartbeat(ctx, principal, "P1", "device-1"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	got, err := svc.GetAvailability(ctx, "P1")
	if err != nil || got == nil || !got.Online {
		t.Fatalf("expected the porter to remain online after a heartbeat, got %+v / %v", got, err)
	}
}

func TestHeartbeat_RejectsNonOwner(t *testing.T) {
	hot := hotstate.NewMemoryStore()
	dur := store.NewMemoryStore()
	svc := NewService(hot, dur, nil, time.Minute)
	ctx := context.Background()
	newEligiblePorter(t, dur, "P1", "user-1")

	principal := authctx.Principal{UserID: "user-1", Role: authctx.RolePorter}
	if err := svc.SetAvailability(ctx, principal, "P1", true, 1, 2, true, ""); err != nil {
		t.Fatalf("go online: %v", err)
	}

	other := authctx.Principal{UserID: "user-2", Role: authctx.RolePorter}
	if err := svc.Heartbeat(ctx, other, "P1", "device-1"); err == nil {
		t.Fatalf("expected heartbeat from a non-owning principal to be rejected")
	}
}

// Unverified porters cannot go online.
func TestSetAvailability_IneligiblePorterRejected(t *testing.T) {
	hot := hotstate.NewMemoryStore()
	dur := store.NewMemoryStore()
	svc := NewService(hot, dur, nil, time.Minute)
	ctx := context.Background()
	if err := dur.CreatePorter(ctx, &store.PorterProfile{PorterID: "P2", UserID: "user-2"}); err != nil {
		t.Fatalf("create porter: %v", err)
	}

	principal := authctx.Principal{UserID: "user-2", Role: authctx.RolePorter}
	if err := svc.SetAvailability(ctx, principal, "P2", true, 1, 2, true, ""); err == nil {
		t.Fatalf("expected unverified porter to be rejected going online")
	}
}
