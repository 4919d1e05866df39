// Package availability implements the Availability Service (§4.1):
// online/offline toggles, online-set membership, heartbeat, and fleet
// counters.
package availability

import (
	"context"
	"time"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/authctx"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/dispatcherr"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/eventbus"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/hotstate"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/observability"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/store"
)

type Service struct {
	hot       hotstate.Store
	dur       store.Store
	publisher eventbus.Publisher
	ttl       time.Duration
}

func NewService(hot hotstate.Store, dur store.Store, pub eventbus.Publisher, ttl time.Duration) *Service {
	return &Service{hot: hot, dur: dur, publisher: pub, ttl: ttl}
}

// SetAvailability writes fresh state with TTL and mutates online-set
// membership atomically, then emits PorterOnline/PorterOffline best-effort.
// Hot-store write errors propagate; event publication errors are swallowed.
func (s *Service) SetAvailability(ctx context.Context, principal authctx.Principal, porterID string, online bool, lat, lng float64, hasCoord bool, correlationID string) error {
	profile, err := s.dur.GetPorter(ctx, porterID)
	if err != nil {
		return err
	}
	if err := authctx.RequirePorterOwnership(principal, profile.UserID); err != nil {
		return err
	}
	if online && !profile.EligibleForOffers() {
		return dispatcherr.New(dispatcherr.Forbidden, "porter is not eligible to go online")
	}

	state := hotstate.AvailabilityState{
		PorterID: porterID, Online: online, LastSeen: time.Now().UTC(),
		Lat: lat, Lng: lng, HasCoord: hasCoord,
	}
	if err := s.hot.SetAvailability(ctx, state, s.ttl); err != nil {
		return err
	}

	onlineLabel := "false"
	eventType := "PorterOffline"
	if online {
		onlineLabel = "true"
		eventType = "PorterOnline"
	}
	observability.AvailabilityWrites.WithLabelValues(onlineLabel).Inc()

	fields := map[string]interface{}{"porterId": porterID}
	if hasCoord {
		fields["location"] = map[string]float64{"lat": lat, "lng": lng}
	}
	s.emit(ctx, eventType, porterID, correlationID, fields)
	return nil
}

func (s *Service) GetAvailability(ctx context.Context, porterID string) (*hotstate.AvailabilityState, error) {
	return s.hot.GetAvailability(ctx, porterID)
}

func (s *Service) OnlinePorterIDs(ctx context.Context) ([]string, error) {
	return s.hot.OnlinePorterIDs(ctx)
}

func (s *Service) OnlinePorterCount(ctx context.Context) (int64, error) {
	return s.hot.OnlinePorterCount(ctx)
}

// Heartbeat refreshes TTL and lastSeen, and upserts the device session
// record named in §6's persisted-state layout.
func (s *Service) Heartbeat(ctx context.Context, principal authctx.Principal, porterID, deviceID string) error {
	profile, err := s.dur.GetPorter(ctx, porterID)
	if err != nil {
		return err
	}
	if err := authctx.RequirePorterOwnership(principal, profile.UserID); err != nil {
		return err
	}
	if err := s.hot.Heartbeat(ctx, porterID, s.ttl); err != nil {
		return err
	}
	if deviceID != "" {
		if err := s.hot.UpsertDeviceSession(ctx, porterID, deviceID, s.ttl); err != nil {
			return err
		}
		_ = s.dur.UpsertDeviceSession(ctx, &store.DeviceSession{
			PorterID: porterID, DeviceID: deviceID, LastSeenAt: time.Now().UTC(),
		})
	}
	return nil
}

func (s *Service) emit(ctx context.Context, eventType, partitionKey, correlationID string, fields map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	_ = s.publisher.Publish(ctx, eventbus.Event{
		Type: eventType, PartitionKey: partitionKey, CorrelationID: correlationID,
		Timestamp: time.Now().UTC(), Fields: fields,
	})
}
