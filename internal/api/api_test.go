package api

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/authctx"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/availability"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/earnings"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/eventbus"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/hotstate"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/idempotency"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/location"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/offer"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/porter"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/ratelimit"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/resilience"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/store"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/timeline"
)

func newTestAPI() *API {
	st := store.NewMemoryStore()
	hot := hotstate.NewMemoryStore()
	pub := eventbus.NewLogPublisher(log.New(discardWriter{}, "", 0))
	idem := idempotency.NewLayer(st, time.Hour)
	degraded := resilience.NewDegradedMode()
	limiter := ratelimit.NewSharedWindowLimiter(hot, degraded, 100, time.Minute, 100)

	p := porter.NewService(st, pub)
	a := availability.NewService(hot, st, pub, time.Hour)
	l := location.NewService(hot, st, pub, limiter, time.Hour, time.Minute)
	o := offer.NewService(st, pub, idem, timeline.NewStore(), 30*time.Second, 3)
	e := earnings.NewService(st, pub, idem)

	return New(p, a, l, o, e)
}

func TestAPI_RegisterAndVerifyThenGoOnline(t *testing.T) {
	api := newTestAPI()
	ctx := context.Background()

	prof, err := api.RegisterPorter(ctx, RegisterPorterRequest{UserID: "u1", ContactPhone: "+1", VehicleCategory: "bike"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	admin := authctx.Principal{UserID: "admin-1", Role: authctx.RoleAdmin}
	if err := api.Porter.Verify(ctx, admin, prof.PorterID, "r", "", ""); err != nil {
		t.Fatalf("verify: %v", err)
	}

	owner := authctx.Principal{UserID: "u1", Role: authctx.RolePorter}
	if err := api.SetAvailability(ctx, owner, SetAvailabilityRequest{PorterID: prof.PorterID, Online: true, Lat: 1, Lng: 2, HasCoord: true}); err != nil {
		t.Fatalf("set availability: %v", err)
	}

	got, err := api.GetAvailability(ctx, prof.PorterID)
	if err != nil || got == nil || !got.Online {
		t.Fatalf("expected the porter to read back online, got %+v / %v", got, err)
	}

	if err := api.UpdateLocation(ctx, owner, UpdateLocationRequest{PorterID: prof.PorterID, Lat: 1, Lng: 2}); err != nil {
		t.Fatalf("update location: %v", err)
	}

	nearby, err := api.FindNearbyPorters(ctx, FindNearbyPortersRequest{Lat: 1, Lng: 2, RadiusMeters: 1000, OnlineOnly: true})
	if err != nil {
		t.Fatalf("find nearby: %v", err)
	}
	if len(nearby) != 1 || nearby[0].PorterID != prof.PorterID {
		t.Fatalf("expected the newly online porter to appear nearby, got %+v", nearby)
	}
}

func TestAPI_CreateAcceptOfferThenEarningsSummary(t *testing.T) {
	api := newTestAPI()
	ctx := context.Background()

	prof, err := api.RegisterPorter(ctx, RegisterPorterRequest{UserID: "u1", ContactPhone: "+1", VehicleCategory: "bike"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	admin := authctx.Principal{UserID: "admin-1", Role: authctx.RoleAdmin}
	if err := api.Porter.Verify(ctx, admin, prof.PorterID, "r", "", ""); err != nil {
		t.Fatalf("verify: %v", err)
	}

	created, err := api.CreateOffer(ctx, admin, CreateOfferRequest{OrderID: "ord1", PorterID: prof.PorterID})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	owner := authctx.Principal{UserID: "u1", Role: authctx.RolePorter}
	accepted, err := api.AcceptOffer(ctx, owner, AcceptOfferRequest{OfferID: created.OfferID, PorterID: prof.PorterID})
	if err != nil || !accepted.Accepted {
		t.Fatalf("accept offer: %+v / %v", accepted, err)
	}

	summary, err := api.EarningsSummary(ctx, owner, prof.PorterID)
	if err != nil {
		t.Fatalf("earnings summary: %v", err)
	}
	if summary.TotalMinor != 0 {
		t.Fatalf("expected no earnings recorded before an OrderCompleted event, got %+v", summary)
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
