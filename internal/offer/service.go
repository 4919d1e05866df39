// Package offer implements the Job Offer Service (§4.3): the race-free
// core state machine for offers. acceptOffer is the critical path — across
// any set of concurrent acceptance attempts for offers carrying the same
// orderId, exactly one succeeds.
package offer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"time"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/authctx"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/dispatcherr"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/eventbus"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/idempotency"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/observability"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/store"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/timeline"
)

type Service struct {
	store               store.Store
	publisher           eventbus.Publisher
	idem                *idempotency.Layer
	timeline            *timeline.Store
	offerTimeout        time.Duration
	maxConcurrentOffers int
}

func NewService(st store.Store, pub eventbus.Publisher, idem *idempotency.Layer, tl *timeline.Store, offerTimeout time.Duration, maxConcurrentOffers int) *Service {
	return &Service{
		store: st, publisher: pub, idem: idem, timeline: tl,
		offerTimeout: offerTimeout, maxConcurrentOffers: maxConcurrentOffers,
	}
}

func newOfferID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return "offer_" + hex.EncodeToString(b[:])
}

// CreateOfferResult is the response shape cached by the idempotency layer.
type CreateOfferResult struct {
	OfferID   string    `json:"offer_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateOffer is called by the upstream order dispatcher (admin/superadmin
// scoped, since client/porter principals never create offers directly).
func (s *Service) CreateOffer(ctx context.Context, principal authctx.Principal, orderID, porterID, correlationID, idempotencyKey string) (CreateOfferResult, error) {
	if err := authctx.RequireAdmin(principal); err != nil {
		return CreateOfferResult{}, err
	}
	return idempotency.Execute(ctx, s.idem, idempotencyKey, principal.UserID, "createOffer", func(ctx context.Context) (CreateOfferResult, error) {
		return s.createOffer(ctx, orderID, porterID, correlationID)
	})
}

func (s *Service) createOffer(ctx context.Context, orderID, porterID, correlationID string) (CreateOfferResult, error) {
	pending, err := s.store.CountPendingOffers(ctx, porterID)
	if err != nil {
		return CreateOfferResult{}, err
	}
	if pending >= s.maxConcurrentOffers {
		return CreateOfferResult{}, dispatcherr.Newf(dispatcherr.Conflict,
			"porter %s already has %d pending offers (max %d)", porterID, pending, s.maxConcurrentOffers)
	}

	now := time.Now().UTC()
	o := &store.JobOffer{
		OfferID: newOfferID(), OrderID: orderID, PorterID: porterID,
		OfferedAt: now, ExpiresAt: now.Add(s.offerTimeout), CorrelationID: correlationID,
	}
	if err := s.store.CreateOffer(ctx, o); err != nil {
		return CreateOfferResult{}, err
	}
	observability.OffersCreated.WithLabelValues().Inc()
	s.recordTransition(o.OfferID, orderID, porterID, "CREATED", "")
	s.emit(ctx, "PorterOfferCreated", porterID, correlationID, map[string]interface{}{
		"offerId": o.OfferID, "orderId": orderID, "porterId": porterID, "expiresAt": o.ExpiresAt,
	})
	return CreateOfferResult{OfferID: o.OfferID, ExpiresAt: o.ExpiresAt}, nil
}

// AcceptResult is the response shape cached by the idempotency layer and
// also the contract §7 asks for on CONFLICT: the current offer status.
type AcceptResult struct {
	OfferID      string            `json:"offer_id"`
	Accepted     bool              `json:"accepted"`
	CurrentState store.OfferStatus `json:"current_state,omitempty"`
}

// AcceptOffer is the critical path described in §4.3. It delegates the
// atomic protocol to the Durable Store (serializable transaction or
// equivalent conditional-update + uniqueness-constraint scheme), then
// performs the post-commit best-effort work: sibling revocation and event
// publication. A lost race is reported as CONFLICT with CurrentState set,
// never as a generic error (R2, B1, scenario 1/2/3).
func (s *Service) AcceptOffer(ctx context.Context, principal authctx.Principal, offerID, porterID, idempotencyKey string) (AcceptResult, error) {
	profile, err := s.store.GetPorter(ctx, porterID)
	if err != nil {
		return AcceptResult{}, err
	}
	if err := authctx.RequirePorterOwnership(principal, profile.UserID); err != nil {
		return AcceptResult{}, err
	}

	return idempotency.Execute(ctx, s.idem, idempotencyKey, principal.UserID, "acceptOffer", func(ctx context.Context) (AcceptResult, error) {
		return s.acceptOffer(ctx, offerID, porterID)
	})
}

func (s *Service) acceptOffer(ctx context.Context, offerID, porterID string) (AcceptResult, error) {
	start := time.Now()
	outcome, err := s.store.AcceptOffer(ctx, offerID, porterID)
	observability.AcceptOfferDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return AcceptResult{}, err
	}

	if !outcome.Accepted {
		observability.OfferAcceptConflicts.WithLabelValues(string(outcome.CurrentState)).Inc()
		s.recordTransition(offerID, "", porterID, string(outcome.CurrentState), "lost acceptance race")
		return AcceptResult{OfferID: offerID, Accepted: false, CurrentState: outcome.CurrentState},
			dispatcherr.Newf(dispatcherr.Conflict, "offer is not available for acceptance").WithState(string(outcome.CurrentState))
	}

	observability.OffersAccepted.Inc()

	offer, getErr := s.store.GetOffer(ctx, offerID)
	if getErr != nil {
		// The accept itself already committed; a failed follow-up read
		// must not turn a true success into an error response.
		return AcceptResult{OfferID: offerID, Accepted: true}, nil
	}

	s.recordTransition(offerID, offer.OrderID, porterID, "ACCEPTED", "")

	// Best-effort post-commit work: sibling revocation then event
	// publication. Failures here are logged, not retried in line, and not
	// surfaced to the caller (§4.3: "the accepted offer is already
	// durable; event consumers observing PorterAcceptedJob reconcile").
	revoked, revokeErr := s.store.RevokeOtherOffers(ctx, offer.OrderID, offerID, "order assigned to another porter")
	if revokeErr != nil {
		log.Printf("offer: revoke sibling offers of order %s after accepting %s: %v", offer.OrderID, offerID, revokeErr)
	} else if revoked > 0 {
		observability.OffersRevoked.Add(float64(revoked))
	}
	s.emit(ctx, "PorterAcceptedJob", porterID, offer.CorrelationID, map[string]interface{}{
		"offerId": offerID, "orderId": offer.OrderID, "porterId": porterID,
	})

	return AcceptResult{OfferID: offerID, Accepted: true}, nil
}

// RejectOffer is only valid from PENDING.
func (s *Service) RejectOffer(ctx context.Context, principal authctx.Principal, offerID, porterID, reason string) error {
	profile, err := s.store.GetPorter(ctx, porterID)
	if err != nil {
		return err
	}
	if err := authctx.RequirePorterOwnership(principal, profile.UserID); err != nil {
		return err
	}
	if err := s.store.RejectOffer(ctx, offerID, porterID, reason); err != nil {
		return err
	}
	observability.OffersRejected.Inc()
	offer, getErr := s.store.GetOffer(ctx, offerID)
	correlationID := ""
	orderID := ""
	if getErr == nil {
		correlationID = offer.CorrelationID
		orderID = offer.OrderID
	}
	s.recordTransition(offerID, orderID, porterID, "REJECTED", reason)
	s.emit(ctx, "PorterRejectedJob", porterID, correlationID, map[string]interface{}{
		"offerId": offerID, "orderId": orderID, "porterId": porterID, "reason": reason,
	})
	return nil
}

// ExpireOffers is invoked by the Periodic Scheduler (§4.5). It bulk-updates
// all PENDING offers whose expiresAt has passed.
func (s *Service) ExpireOffers(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireOffers(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		observability.OffersExpired.Add(float64(n))
	}
	return n, nil
}

func (s *Service) GetPorterOffers(ctx context.Context, principal authctx.Principal, porterID string, status store.OfferStatus) ([]store.JobOffer, error) {
	if principal.Role != authctx.RoleAdmin && principal.Role != authctx.RoleSuperadmin {
		profile, err := s.store.GetPorter(ctx, porterID)
		if err != nil {
			return nil, err
		}
		if err := authctx.RequirePorterOwnership(principal, profile.UserID); err != nil {
			return nil, err
		}
	}
	return s.store.ListPorterOffers(ctx, porterID, status)
}

func (s *Service) GetOrderOffers(ctx context.Context, principal authctx.Principal, orderID string) ([]store.JobOffer, error) {
	if err := authctx.RequireAdmin(principal); err != nil {
		return nil, err
	}
	return s.store.ListOrderOffers(ctx, orderID)
}

func (s *Service) recordTransition(offerID, orderID, porterID, stage, detail string) {
	if s.timeline == nil {
		return
	}
	s.timeline.Record(timeline.Transition{
		OfferID: offerID, OrderID: orderID, PorterID: porterID, Stage: stage, Detail: detail,
	})
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
		log.Printf("offer: publish %s for %s: %v", eventType, partitionKey, err)
	}
}
