// Package porter manages PorterProfile lifecycle: registration and the
// admin-scoped verification/suspension mutations named in §6's
// authorization rules ("admin/superadmin role → admin-scoped mutations
// (suspend, verify, reject-verification)") and the event contracts in §6's
// table (PorterRegistered, PorterVerificationRequested, PorterVerified,
// PorterVerificationRejected, PorterSuspended, PorterUnsuspended). The
// spec's Component Design (§4) does not elaborate these as a numbered
// service, but every other component depends on PorterProfile's
// eligibility invariant, so a minimal owner of that lifecycle is required.
package porter

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/authctx"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/dispatcherr"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/eventbus"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/store"
)

type Service struct {
	store     store.Store
	publisher eventbus.Publisher
}

func NewService(st store.Store, pub eventbus.Publisher) *Service {
	return &Service{store: st, publisher: pub}
}

func newPorterID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return "porter_" + hex.EncodeToString(b[:])
}

// Register creates a new PorterProfile owned by the calling user.
func (s *Service) Register(ctx context.Context, userID, contactPhone, vehicleCategory, correlationID string) (*store.PorterProfile, error) {
	p := &store.PorterProfile{
		PorterID:        newPorterID(),
		UserID:          userID,
		ContactPhone:    contactPhone,
		VehicleCategory: vehicleCategory,
	}
	if err := s.store.CreatePorter(ctx, p); err != nil {
		return nil, err
	}
	s.emit(ctx, "PorterRegistered", p.PorterID, correlationID, map[string]interface{}{
		"userId": userID, "porterId": p.PorterID, "vehicleType": vehicleCategory,
	})
	return s.store.GetPorter(ctx, p.PorterID)
}

// RequestVerification is called by the porter to move PENDING->UNDER_REVIEW.
func (s *Service) RequestVerification(ctx context.Context, principal authctx.Principal, porterID, correlationID string) error {
	p, err := s.store.GetPorter(ctx, porterID)
	if err != nil {
		return err
	}
	if err := authctx.RequirePorterOwnership(principal, p.UserID); err != nil {
		return err
	}
	if err := s.store.UpdateVerificationStatus(ctx, porterID, store.VerificationUnderReview, "", ""); err != nil {
		return err
	}
	s.emit(ctx, "PorterVerificationRequested", porterID, correlationID, map[string]interface{}{"porterId": porterID})
	return nil
}

// Verify is an admin-scoped mutation (§6).
func (s *Service) Verify(ctx context.Context, principal authctx.Principal, porterID, reviewer, notes, correlationID string) error {
	if err := authctx.RequireAdmin(principal); err != nil {
		return err
	}
	if err := s.store.UpdateVerificationStatus(ctx, porterID, store.VerificationVerified, reviewer, notes); err != nil {
		return err
	}
	s.emit(ctx, "PorterVerified", porterID, correlationID, map[string]interface{}{"porterId": porterID})
	return nil
}

// RejectVerification is an admin-scoped mutation (§6).
func (s *Service) RejectVerification(ctx context.Context, principal authctx.Principal, porterID, reviewer, reason string, correlationID string) error {
	if err := authctx.RequireAdmin(principal); err != nil {
		return err
	}
	if err := s.store.UpdateVerificationStatus(ctx, porterID, store.VerificationRejected, reviewer, reason); err != nil {
		return err
	}
	s.emit(ctx, "PorterVerificationRejected", porterID, correlationID, map[string]interface{}{"porterId": porterID, "reason": reason})
	return nil
}

// Suspend is an admin-scoped mutation (§6).
func (s *Service) Suspend(ctx context.Context, principal authctx.Principal, porterID, reason, correlationID string) error {
	if err := authctx.RequireAdmin(principal); err != nil {
		return err
	}
	if err := s.store.SetSuspended(ctx, porterID, true, reason); err != nil {
		return err
	}
	s.emit(ctx, "PorterSuspended", porterID, correlationID, map[string]interface{}{
		"porterId": porterID, "by": principal.UserID, "reason": reason,
	})
	return nil
}

func (s *Service) Unsuspend(ctx context.Context, principal authctx.Principal, porterID, correlationID string) error {
	if err := authctx.RequireAdmin(principal); err != nil {
		return err
	}
	if err := s.store.SetSuspended(ctx, porterID, false, ""); err != nil {
		return err
	}
	s.emit(ctx, "PorterUnsuspended", porterID, correlationID, map[string]interface{}{
		"porterId": porterID, "by": principal.UserID,
	})
	return nil
}

func (s *Service) Get(ctx context.Context, porterID string) (*store.PorterProfile, error) {
	if porterID == "" {
		return nil, dispatcherr.New(dispatcherr.BadRequest, "porterId is required")
	}
	return s.store.GetPorter(ctx, porterID)
}

// emit is best-effort per the error-propagation policy shared by every
// service in this core (§7: "Event publication failures are never
// propagated to the caller after the primary state change has committed").
func (s *Service) emit(ctx context.Context, eventType, partitionKey, correlationID string, fields map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	_ = s.publisher.Publish(ctx, eventbus.Event{
		Type: eventType, PartitionKey: partitionKey, CorrelationID: correlationID,
		Timestamp: time.Now().UTC(), Fields: fields,
	})
}
