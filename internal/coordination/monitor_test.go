package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/hotstate"
)

// phantomOnlineStore forces OnlinePorterIDs to report an id whose
// availability record has already gone offline, simulating the partial
// write the monitor exists to correct.
type phantomOnlineStore struct {
	hotstate.Store
	phantomIDs []string
}

func (s *phantomOnlineStore) OnlinePorterIDs(_ context.Context) ([]string, error) {
	return s.phantomIDs, nil
}

func TestStaleOnlineMonitor_CorrectsPhantomOnlineEntry(t *testing.T) {
	mem := hotstate.NewMemoryStore()
	ctx := context.Background()

	if err := mem.SetAvailability(ctx, hotstate.AvailabilityState{PorterID: "p1", Online: false}, time.Hour); err != nil {
		t.Fatalf("set availability: %v", err)
	}

	store := &phantomOnlineStore{Store: mem, phantomIDs: []string{"p1"}}
	mon := NewStaleOnlineMonitor(store, time.Minute)
	mon.reconcile(ctx)

	got, err := mem.GetAvailability(ctx, "p1")
	if err != nil {
		t.Fatalf("get availability: %v", err)
	}
	if got == nil || got.Online {
		t.Fatalf("expected the phantom entry corrected to offline, got %+v", got)
	}
}

func TestStaleOnlineMonitor_LeavesGenuinelyOnlinePortersAlone(t *testing.T) {
	mem := hotstate.NewMemoryStore()
	ctx := context.Background()

	if err := mem.SetAvailability(ctx, hotstate.AvailabilityState{PorterID: "p1", Online: true}, time.Hour); err != nil {
		t.Fatalf("set availability: %v", err)
	}

	mon := NewStaleOnlineMonitor(mem, time.Minute)
	mon.reconcile(ctx)

	got, err := mem.GetAvailability(ctx, "p1")
	if err != nil {
		t.Fatalf("get availability: %v", err)
	}
	if got == nil || !got.Online {
		t.Fatalf("expected a genuinely online porter to remain untouched, got %+v", got)
	}
}

func TestStaleOnlineMonitor_MissingAvailabilityRecordIsCorrected(t *testing.T) {
	mem := hotstate.NewMemoryStore()
	ctx := context.Background()

	store := &phantomOnlineStore{Store: mem, phantomIDs: []string{"ghost"}}
	mon := NewStaleOnlineMonitor(store, time.Minute)
	mon.reconcile(ctx)

	got, err := mem.GetAvailability(ctx, "ghost")
	if err != nil {
		t.Fatalf("get availability: %v", err)
	}
	if got == nil || got.Online {
		t.Fatalf("expected a synthesized offline record for a porter with no availability row, got %+v", got)
	}
}
