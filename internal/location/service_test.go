package location

import (
	"context"
	"testing"
	"time"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/authctx"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/hotstate"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/store"
)

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

// Scenario 5: onlineOnly=true excludes an eligible-but-offline porter even
// when it's within radius.
func TestFindNearbyPorters_OnlineOnlyFilter(t *testing.T) {
	hot := hotstate.NewMemoryStore()
	dur := store.NewMemoryStore()
	svc := NewService(hot, dur, nil, nil, time.Minute, time.Hour)
	ctx := context.Background()

	newEligiblePorter(t, dur, "online-porter", "user-1")
	newEligiblePorter(t, dur, "offline-porter", "user-2")

	if err := hot.SetLastLocation(ctx, hotstate.LastLocation{PorterID: "online-porter", Lat: 1, Lng: 1, Time: time.Now()}, time.Hour); err != nil {
		t.Fatalf("set location: %v", err)
	}
	if err := hot.SetLastLocation(ctx, hotstate.LastLocation{PorterID: "offline-porter", Lat: 1, Lng: 1, Time: time.Now()}, time.Hour); err != nil {
		t.Fatalf("set location: %v", err)
	}
	if err := hot.SetAvailability(ctx, hotstate.AvailabilityState{PorterID: "online-porter", Online: true, Lat: 1, Lng: 1}, time.Hour); err != nil {
		t.Fatalf("set availability: %v", err)
	}

	results, err := svc.FindNearbyPorters(ctx, 1, 1, 1000, true)
	if err != nil {
		t.Fatalf("find nearby: %v", err)
	}
	if len(results) != 1 || results[0].PorterID != "online-porter" {
		t.Fatalf("expected only online-porter, got %+v", results)
	}
}

// Unverified/suspended porters never appear in nearby results, regardless
// of online status.
func TestFindNearbyPorters_ExcludesIneligiblePorters(t *testing.T) {
	hot := hotstate.NewMemoryStore()
	dur := store.NewMemoryStore()
	svc := NewService(hot, dur, nil, nil, time.Minute, time.Hour)
	ctx := context.Background()

	if err := dur.CreatePorter(ctx, &store.PorterProfile{PorterID: "under-review", UserID: "user-3"}); err != nil {
		t.Fatalf("create porter: %v", err)
	}
	if err := hot.SetLastLocation(ctx, hotstate.LastLocation{PorterID: "under-review", Lat: 1, Lng: 1, Time: time.Now()}, time.Hour); err != nil {
		t.Fatalf("set location: %v", err)
	}

	results, err := svc.FindNearbyPorters(ctx, 1, 1, 1000, false)
	if err != nil {
		t.Fatalf("find nearby: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results for an unverified porter, got %+v", results)
	}
}

// B4: radius=0 returns only porters at the exact coordinate.
func TestFindNearbyPorters_ZeroRadiusExactMatchOnly(t *testing.T) {
	hot := hotstate.NewMemoryStore()
	dur := store.NewMemoryStore()
	svc := NewService(hot, dur, nil, nil, time.Minute, time.Hour)
	ctx := context.Background()

	newEligiblePorter(t, dur, "exact", "user-1")
	newEligiblePorter(t, dur, "near", "user-2")
	if err := hot.SetLastLocation(ctx, hotstate.LastLocation{PorterID: "exact", Lat: 10, Lng: 20, Time: time.Now()}, time.Hour); err != nil {
		t.Fatalf("set location: %v", err)
	}
	if err := hot.SetLastLocation(ctx, hotstate.LastLocation{PorterID: "near", Lat: 10.001, Lng: 20, Time: time.Now()}, time.Hour); err != nil {
		t.Fatalf("set location: %v", err)
	}

	results, err := svc.FindNearbyPorters(ctx, 10, 20, 0, false)
	if err != nil {
		t.Fatalf("find nearby: %v", err)
	}
	if len(results) != 1 || results[0].PorterID != "exact" {
		t.Fatalf("expected only the exact-coordinate porter, got %+v", results)
	}
}

// Scenario 6: repeated location updates within the snapshot interval
// produce at most one durable snapshot row, but every call still updates
// the hot-path location and emits an event.
func TestUpdateLocation_SnapshotCadence(t *testing.T) {
	hot := hotstate.NewMemoryStore()
	dur := store.NewMemoryStore()
	svc := NewService(hot, dur, nil, nil, time.Minute, time.Minute)
	ctx := context.Background()
	newEligiblePorter(t, dur, "P1", "user-1")
	principal := authctx.Principal{UserID: "user-1", Role: authctx.RolePorter}

	for i := 0; i < 10; i++ {
		lat := float64(i)
		if err := svc.UpdateLocation(ctx, principal, "P1", lat, 0, 5, "", ""); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	history, err := dur.LocationHistory(ctx, "P1", "", 100)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected at most 1 snapshot within the snapshot interval, got %d", len(history))
	}

	last, err := svc.LastLocation(ctx, "P1")
	if err != nil || last == nil {
		t.Fatalf("expected a last-known location, err=%v", err)
	}
	if last.Lat != 9 {
		t.Fatalf("expected hot-path location to reflect the 10th update (lat=9), got %v", last.Lat)
	}
}
