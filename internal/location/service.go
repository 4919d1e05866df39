// Package location implements the Location Service (§4.2): low-latency
// location writes, periodic durable snapshots, and spatial radius queries.
package location

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/authctx"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/dispatcherr"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/eventbus"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/geo"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/hotstate"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/observability"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/ratelimit"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/store"
)

type Service struct {
	hot              hotstate.Store
	dur              store.Store
	publisher        eventbus.Publisher
	limiter          *ratelimit.SharedWindowLimiter
	locationTTL      time.Duration
	snapshotInterval time.Duration
}

func NewService(hot hotstate.Store, dur store.Store, pub eventbus.Publisher, limiter *ratelimit.SharedWindowLimiter, locationTTL, snapshotInterval time.Duration) *Service {
	return &Service{hot: hot, dur: dur, publisher: pub, limiter: limiter, locationTTL: locationTTL, snapshotInterval: snapshotInterval}
}

// NearbyPorter is one result row of findNearbyPorters.
type NearbyPorter struct {
	PorterID     string
	Lat          float64
	Lng          float64
	DistanceM    float64
}

// UpdateLocation writes the hot-path location, best-effort snapshots when
// due, and best-effort publishes PorterLocationUpdated. Per §4.2, the hot
// write must never be blocked by durable or event I/O — steps 2 and 3 run
// after the hot write has already succeeded and their own failures are
// not returned: a failed snapshot is dropped, and a failed publish is
// logged and counted in the event-publish-failure metric.
func (s *Service) UpdateLocation(ctx context.Context, principal authctx.Principal, porterID string, lat, lng, accuracy float64, orderID, correlationID string) error {
	profile, err := s.dur.GetPorter(ctx, porterID)
	if err != nil {
		return err
	}
	if err := authctx.RequirePorterOwnership(principal, profile.UserID); err != nil {
		return err
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, porterID, true)
		if err != nil {
			return err
		}
		if !allowed {
			observability.LocationUpdatesRateLimited.Inc()
			return dispatcherr.New(dispatcherr.TooManyRequests, "location update rate limit exceeded")
		}
	}

	start := time.Now()
	loc := hotstate.LastLocation{PorterID: porterID, Lat: lat, Lng: lng, Accuracy: accuracy, OrderID: orderID, Time: time.Now().UTC()}
	if err := s.hot.SetLastLocation(ctx, loc, s.locationTTL); err != nil {
		return err
	}
	observability.LocationUpdateDuration.Observe(time.Since(start).Seconds())

	s.maybeSnapshot(ctx, porterID, lat, lng, accuracy, orderID)

	s.emit(ctx, "PorterLocationUpdated", porterID, correlationID, map[string]interface{}{
		"porterId": porterID, "lat": lat, "lng": lng, "accuracy": accuracy, "orderId": orderID,
	})
	return nil
}

func (s *Service) maybeSnapshot(ctx context.Context, porterID string, lat, lng, accuracy float64, orderID string) {
	age, found, err := s.dur.LastSnapshotAge(ctx, porterID, time.Now())
	if err != nil {
		return // best-effort: durable snapshot failures are swallowed.
	}
	if found && age < s.snapshotInterval {
		return
	}
	snap := &store.LocationSnapshot{
		SnapshotID: newSnapshotID(), PorterID: porterID, Lat: lat, Lng: lng,
		Accuracy: accuracy, OrderID: orderID, CapturedAt: time.Now().UTC(),
	}
	if err := s.dur.InsertLocationSnapshot(ctx, snap); err == nil {
		observability.SnapshotsInserted.Inc()
	}
}

func (s *Service) LastLocation(ctx context.Context, porterID string) (*hotstate.LastLocation, error) {
	return s.hot.GetLastLocation(ctx, porterID)
}

func (s *Service) BatchLastLocations(ctx context.Context, porterIDs []string) (map[string]hotstate.LastLocation, error) {
	return s.hot.BatchLastLocations(ctx, porterIDs)
}

// FindNearbyPorters returns porters within radiusMeters sorted ascending by
// distance, filtered to VERIFIED/non-suspended/active porters (§4.2). It
// always takes the O(N) scan+filter path the spec calls out as acceptable
// at small scale (Design Notes §9), for Redis- and MemoryStore-backed
// deployments alike; RedisStore.GetNearbyGeo is not used here.
func (s *Service) FindNearbyPorters(ctx context.Context, lat, lng, radiusMeters float64, onlineOnly bool) ([]NearbyPorter, error) {
	start := time.Now()
	defer func() { observability.NearbyQueryDuration.Observe(time.Since(start).Seconds()) }()

	all, err := s.hot.AllLastLocations(ctx)
	if err != nil {
		return nil, err
	}

	var onlineSet map[string]bool
	if onlineOnly {
		ids, err := s.hot.OnlinePorterIDs(ctx)
		if err != nil {
			return nil, err
		}
		onlineSet = make(map[string]bool, len(ids))
		for _, id := range ids {
			onlineSet[id] = true
		}
	}

	candidateIDs := make([]string, 0, len(all))
	for id := range all {
		if onlineOnly && !onlineSet[id] {
			continue
		}
		candidateIDs = append(candidateIDs, id)
	}

	eligible, err := s.dur.FilterEligiblePorters(ctx, candidateIDs)
	if err != nil {
		return nil, err
	}
	eligibleSet := make(map[string]bool, len(eligible))
	for _, id := range eligible {
		eligibleSet[id] = true
	}

	var out []NearbyPorter
	for id, loc := range all {
		if !eligibleSet[id] {
			continue
		}
		d := geo.HaversineMeters(lat, lng, loc.Lat, loc.Lng)
		if d <= radiusMeters {
			out = append(out, NearbyPorter{PorterID: id, Lat: loc.Lat, Lng: loc.Lng, DistanceM: d})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceM < out[j].DistanceM })
	return out, nil
}

func (s *Service) LocationHistory(ctx context.Context, porterID, orderID string, limit int) ([]store.LocationSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.dur.LocationHistory(ctx, porterID, orderID, limit)
}

func (s *Service) CleanupOldHistory(ctx context.Context, retention time.Duration) (int64, error) {
	return s.dur.CleanupOldHistory(ctx, time.Now().Add(-retention))
}

func (s *Service) emit(ctx context.Context, eventType, partitionKey, correlationID string, fields map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventbus.Event{
		Type: eventType, PartitionKey: partitionKey, CorrelationID: correlationID,
		Timestamp: time.Now().UTC(), Fields: fields,
	}); err != nil {
		observability.EventPublishFailures.WithLabelValues(eventType).Inc()
		log.Printf("location: publish %s for porter %s: %v", eventType, partitionKey, err)
	}
}

func newSnapshotID() string {
	return "snap_" + randomHex(12)
}
