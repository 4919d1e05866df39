// Package earnings implements the Earnings Service (§4.4): accrual
// recording, balance summaries, and withdrawal requests guarded against
// double-spend under concurrent calls.
package earnings

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/authctx"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/dispatcherr"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/eventbus"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/idempotency"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/observability"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/store"
)

type Service struct {
	store     store.Store
	publisher eventbus.Publisher
	idem      *idempotency.Layer
}

func NewService(st store.Store, pub eventbus.Publisher, idem *idempotency.Layer) *Service {
	return &Service{store: st, publisher: pub, idem: idem}
}

func newEarningID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return "earn_" + hex.EncodeToString(b[:])
}

// RecordEarning is an admin operation; client and porter principals are
// rejected. Event consumers record earnings through the Durable Store
// directly, not through this method.
func (s *Service) RecordEarning(ctx context.Context, principal authctx.Principal, porterID string, earningType store.EarningType, amountMinor int64, orderID, description, correlationID string) (*store.PorterEarning, error) {
	if err := authctx.RequireAdmin(principal); err != nil {
		return nil, err
	}
	if amountMinor == 0 {
		return nil, dispatcherr.New(dispatcherr.BadRequest, "amountMinor must be non-zero")
	}
	e := &store.PorterEarning{
		EarningID: newEarningID(), PorterID: porterID, Type: earningType,
		AmountMinor: amountMinor, Status: store.EarningPending,
		OrderID: orderID, Description: description,
	}
	if err := s.store.RecordEarning(ctx, e); err != nil {
		return nil, err
	}
	observability.EarningsRecorded.WithLabelValues(string(earningType)).Inc()
	s.emit(ctx, "PorterEarningRecorded", porterID, correlationID, map[string]interface{}{
		"earningId": e.EarningID, "porterId": porterID, "type": string(earningType), "amountMinor": amountMinor,
	})
	return e, nil
}

// EarningsSummaryResult is the balance breakdown returned by earningsSummary.
type EarningsSummaryResult struct {
	TotalMinor     int64 `json:"total_minor"`
	PendingMinor   int64 `json:"pending_minor"`
	ConfirmedMinor int64 `json:"confirmed_minor"`
}

func (s *Service) EarningsSummary(ctx context.Context, principal authctx.Principal, porterID string) (EarningsSummaryResult, error) {
	if err := s.requireOwnerOrAdmin(ctx, principal, porterID); err != nil {
		return EarningsSummaryResult{}, err
	}
	total, pending, confirmed, err := s.store.EarningsSummary(ctx, porterID)
	if err != nil {
		return EarningsSummaryResult{}, err
	}
	return EarningsSummaryResult{TotalMinor: total, PendingMinor: pending, ConfirmedMinor: confirmed}, nil
}

func (s *Service) RecentEarnings(ctx context.Context, principal authctx.Principal, porterID string, limit int) ([]store.PorterEarning, error) {
	if err := s.requireOwnerOrAdmin(ctx, principal, porterID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	return s.store.RecentEarnings(ctx, porterID, limit)
}

func (s *Service) OrderEarnings(ctx context.Context, principal authctx.Principal, orderID string) ([]store.PorterEarning, error) {
	if err := authctx.RequireAdmin(principal); err != nil {
		return nil, err
	}
	return s.store.OrderEarnings(ctx, orderID)
}

// UpdateEarningStatus is an admin-scoped transition, e.g. PENDING->CONFIRMED
// once an order's payment settles.
func (s *Service) UpdateEarningStatus(ctx context.Context, principal authctx.Principal, earningID string, status store.EarningStatus, payoutID, payoutStatus, correlationID string) error {
	if err := authctx.RequireAdmin(principal); err != nil {
		return err
	}
	if err := s.store.UpdateEarningStatus(ctx, earningID, status, payoutID, payoutStatus); err != nil {
		return err
	}
	s.emit(ctx, "PorterEarningStatusChanged", "", correlationID, map[string]interface{}{
		"earningId": earningID, "status": string(status),
	})
	return nil
}

// WithdrawalResult is the response shape cached by the idempotency layer.
type WithdrawalResult struct {
	EarningID   string `json:"earning_id"`
	AmountMinor int64  `json:"amount_minor"`
}

// RequestWithdrawal is wrapped in the idempotency layer (B2): a retried
// request with the same key returns the same withdrawal row rather than
// double-debiting the porter's confirmed balance.
func (s *Service) RequestWithdrawal(ctx context.Context, principal authctx.Principal, porterID string, amountMinor int64, idempotencyKey string) (WithdrawalResult, error) {
	profile, err := s.store.GetPorter(ctx, porterID)
	if err != nil {
		return WithdrawalResult{}, err
	}
	if err := authctx.RequirePorterOwnership(principal, profile.UserID); err != nil {
		return WithdrawalResult{}, err
	}
	if amountMinor <= 0 {
		return WithdrawalResult{}, dispatcherr.New(dispatcherr.BadRequest, "amountMinor must be positive")
	}

	return idempotency.Execute(ctx, s.idem, idempotencyKey, principal.UserID, "requestWithdrawal", func(ctx context.Context) (WithdrawalResult, error) {
		e, err := s.store.RequestWithdrawal(ctx, porterID, amountMinor)
		if err != nil {
			observability.WithdrawalOutcomes.WithLabelValues("rejected").Inc()
			return WithdrawalResult{}, err
		}
		observability.WithdrawalOutcomes.WithLabelValues("accepted").Inc()
		s.emit(ctx, "PorterWithdrawalRequested", porterID, "", map[string]interface{}{
			"earningId": e.EarningID, "porterId": porterID, "amountMinor": amountMinor,
		})
		return WithdrawalResult{EarningID: e.EarningID, AmountMinor: amountMinor}, nil
	})
}

func (s *Service) requireOwnerOrAdmin(ctx context.Context, principal authctx.Principal, porterID string) error {
	if principal.Role == authctx.RoleAdmin || principal.Role == authctx.RoleSuperadmin {
		return nil
	}
	profile, err := s.store.GetPorter(ctx, porterID)
	if err != nil {
		return err
	}
	return authctx.RequirePorterOwnership(principal, profile.UserID)
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
	}
}
