// Package store is the Durable Store: persistent records for porter
// profiles, job offers, earnings, location history, verification history,
// idempotency records, and device sessions, with serializable transactions
// and single-row conditional updates as required by §4.3's acceptOffer.
package store

import (
	"context"
	"time"
)

// AcceptOutcome is the result of the race-free acceptance transaction.
type AcceptOutcome struct {
	Accepted     bool
	CurrentState OfferStatus // populated when Accepted is false
}

// Store is the full Durable Store surface. PostgresStore and MemoryStore
// both implement it; the acceptOffer critical path (AcceptOffer) is the
// only method required to run inside a serializable transaction or
// equivalent conditional-update + uniqueness-constraint scheme (§4.3).
type Store interface {
	// Porter profiles
	CreatePorter(ctx context.Context, p *PorterProfile) error
	GetPorter(ctx context.Context, porterID string) (*PorterProfile, error)
	UpdateVerificationStatus(ctx context.Context, porterID string, status VerificationStatus, reviewer, notes string) error
	SetSuspended(ctx context.Context, porterID string, suspended bool, reason string) error
	IncrementCompletedJobs(ctx context.Context, porterID string) error
	ListVerificationHistory(ctx context.Context, porterID string) ([]VerificationEvent, error)

	// Job offers
	CreateOffer(ctx context.Context, o *JobOffer) error
	GetOffer(ctx context.Context, offerID string) (*JobOffer, error)
	CountPendingOffers(ctx context.Context, porterID string) (int, error)
	// AcceptOffer implements the full §4.3 protocol atomically: ownership
	// check, status check, expiry check (marking EXPIRED in-line),
	// sibling-acceptance check (marking REVOKED in-line), and the winning
	// commit. Returns AcceptOutcome.Accepted=false with CurrentState set
	// on any race loss; never returns a plain error for a lost race.
	AcceptOffer(ctx context.Context, offerID, porterID string) (AcceptOutcome, error)
	RejectOffer(ctx context.Context, offerID, porterID, reason string) error
	ExpireOffers(ctx context.Context, now time.Time) (int64, error)
	RevokeOtherOffers(ctx context.Context, orderID, exceptOfferID, reason string) (int64, error)
	ListPorterOffers(ctx context.Context, porterID string, status OfferStatus) ([]JobOffer, error)
	ListOrderOffers(ctx context.Context, orderID string) ([]JobOffer, error)
	FindAcceptedOffer(ctx context.Context, orderID, porterID string) (*JobOffer, error)

	// Earnings
	RecordEarning(ctx context.Context, e *PorterEarning) error
	EarningsSummary(ctx context.Context, porterID string) (total, pending, confirmed int64, err error)
	RecentEarnings(ctx context.Context, porterID string, limit int) ([]PorterEarning, error)
	OrderEarnings(ctx context.Context, orderID string) ([]PorterEarning, error)
	UpdateEarningStatus(ctx context.Context, earningID string, status EarningStatus, payoutID, payoutStatus string) error
	// RequestWithdrawal computes the confirmed balance and inserts the
	// negative ADJUSTMENT row inside one transaction, preventing
	// double-spend under concurrent withdrawals (§4.4 invariant, B2).
	RequestWithdrawal(ctx context.Context, porterID string, amountMinor int64) (*PorterEarning, error)
	BulkUpdateEarningsByPayout(ctx context.Context, payoutID string, status EarningStatus) (int64, error)

	// Location history
	InsertLocationSnapshot(ctx context.Context, s *LocationSnapshot) error
	LastSnapshotAge(ctx context.Context, porterID string, now time.Time) (time.Duration, bool, error)
	LocationHistory(ctx context.Context, porterID, orderID string, limit int) ([]LocationSnapshot, error)
	CleanupOldHistory(ctx context.Context, olderThan time.Time) (int64, error)

	// Verified-porter lookup, used by Location Service's findNearbyPorters
	// to filter hot-store candidates against the durable eligibility rule.
	FilterEligiblePorters(ctx context.Context, porterIDs []string) ([]string, error)

	// Idempotency
	GetIdempotencyRecord(ctx context.Context, key string) (*IdempotencyRecord, error)
	PutIdempotencyRecord(ctx context.Context, r *IdempotencyRecord) error
	PurgeExpiredIdempotencyRecords(ctx context.Context, now time.Time) (int64, error)

	// Device sessions
	UpsertDeviceSession(ctx context.Context, s *DeviceSession) error

	// Coordination (fencing epochs for leader election, shared with the
	// Hot-State Store's lock primitives)
	IncrementDurableEpoch(ctx context.Context, resourceID string) (int64, error)

	Close()
}
