package store

import "time"

// VerificationStatus is PorterProfile's review state.
type VerificationStatus string

const (
	VerificationPending    VerificationStatus = "PENDING"
	VerificationUnderReview VerificationStatus = "UNDER_REVIEW"
	VerificationVerified   VerificationStatus = "VERIFIED"
	VerificationRejected   VerificationStatus = "REJECTED"
)

// PorterProfile is the authoritative record of a porter.
type PorterProfile struct {
	PorterID           string             `json:"porter_id" db:"porter_id"`
	UserID             string             `json:"user_id" db:"user_id"`
	ContactPhone       string             `json:"contact_phone" db:"contact_phone"`
	VehicleCategory    string             `json:"vehicle_category" db:"vehicle_category"`
	VerificationStatus VerificationStatus `json:"verification_status" db:"verification_status"`
	Suspended          bool               `json:"suspended" db:"suspended"`
	SuspendReason      string             `json:"suspend_reason,omitempty" db:"suspend_reason"`
	Active             bool               `json:"active" db:"active"`
	CompletedJobs      int64              `json:"completed_jobs" db:"completed_jobs"`
	AggregateEarnings  int64              `json:"aggregate_earnings_minor" db:"aggregate_earnings_minor"`
	Version            int                `json:"version" db:"version"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}

// EligibleForOffers implements the Data Model invariant that only verified,
// non-suspended, active porters receive offers or appear in nearby queries.
func (p *PorterProfile) EligibleForOffers() bool {
	return p.VerificationStatus == VerificationVerified && !p.Suspended && p.Active
}

// OfferStatus is JobOffer's lifecycle state (§4.3 state machine).
type OfferStatus string

const (
	OfferPending  OfferStatus = "PENDING"
	OfferAccepted OfferStatus = "ACCEPTED"
	OfferRejected OfferStatus = "REJECTED"
	OfferExpired  OfferStatus = "EXPIRED"
	OfferRevoked  OfferStatus = "REVOKED"
)

// AssignmentStatus tracks the post-acceptance confirmation state.
type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "PENDING"
	AssignmentConfirmed AssignmentStatus = "CONFIRMED"
)

// JobOffer is a time-bounded invitation for one porter to take one order.
type JobOffer struct {
	OfferID          string           `json:"offer_id" db:"offer_id"`
	OrderID          string           `json:"order_id" db:"order_id"`
	PorterID         string           `json:"porter_id" db:"porter_id"`
	OfferStatus      OfferStatus      `json:"offer_status" db:"offer_status"`
	AssignmentStatus AssignmentStatus `json:"assignment_status" db:"assignment_status"`
	OfferedAt        time.Time        `json:"offered_at" db:"offered_at"`
	ExpiresAt        time.Time        `json:"expires_at" db:"expires_at"`
	AcceptedAt       *time.Time       `json:"accepted_at,omitempty" db:"accepted_at"`
	RejectedAt       *time.Time       `json:"rejected_at,omitempty" db:"rejected_at"`
	ExpiredAt        *time.Time       `json:"expired_at,omitempty" db:"expired_at"`
	RevokedAt        *time.Time       `json:"revoked_at,omitempty" db:"revoked_at"`
	ConfirmedAt      *time.Time       `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CorrelationID    string           `json:"correlation_id" db:"correlation_id"`
	RejectionReason  string           `json:"rejection_reason,omitempty" db:"rejection_reason"`
	RevokeReason     string           `json:"revoke_reason,omitempty" db:"revoke_reason"`
}

// Terminal reports whether the offer has left PENDING permanently.
func (o *JobOffer) Terminal() bool {
	return o.OfferStatus != OfferPending
}

// EarningType classifies a PorterEarning row.
type EarningType string

const (
	EarningJobPayment EarningType = "JOB_PAYMENT"
	EarningTip        EarningType = "TIP"
	EarningBonus      EarningType = "BONUS"
	EarningAdjustment EarningType = "ADJUSTMENT"
)

// EarningStatus is PorterEarning's lifecycle state.
type EarningStatus string

const (
	EarningPending   EarningStatus = "PENDING"
	EarningConfirmed EarningStatus = "CONFIRMED"
	EarningPaidOut   EarningStatus = "PAID_OUT"
	EarningCancelled EarningStatus = "CANCELLED"
)

// PorterEarning is one accrual, withdrawal, or adjustment row.
type PorterEarning struct {
	EarningID     string            `json:"earning_id" db:"earning_id"`
	PorterID      string            `json:"porter_id" db:"porter_id"`
	Type          EarningType       `json:"type" db:"type"`
	AmountMinor   int64             `json:"amount_minor" db:"amount_minor"`
	Status        EarningStatus     `json:"status" db:"status"`
	OrderID       string            `json:"order_id,omitempty" db:"order_id"`
	Description   string            `json:"description,omitempty" db:"description"`
	Metadata      map[string]string `json:"metadata,omitempty" db:"metadata"`
	PayoutID      string            `json:"payout_id,omitempty" db:"payout_id"`
	PayoutStatus  string            `json:"payout_status,omitempty" db:"payout_status"`
	WithdrawalReq bool              `json:"withdrawal_request,omitempty" db:"withdrawal_request"`
	PayoutAt      *time.Time        `json:"payout_at,omitempty" db:"payout_at"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
}

// LocationSnapshot is an append-only durable sample of a porter's location.
type LocationSnapshot struct {
	SnapshotID string    `json:"snapshot_id" db:"snapshot_id"`
	PorterID   string    `json:"porter_id" db:"porter_id"`
	Lat        float64   `json:"lat" db:"lat"`
	Lng        float64   `json:"lng" db:"lng"`
	Accuracy   float64   `json:"accuracy,omitempty" db:"accuracy"`
	OrderID    string    `json:"order_id,omitempty" db:"order_id"`
	CapturedAt time.Time `json:"captured_at" db:"captured_at"`
}

// VerificationEvent is one append-only entry of a porter's review history.
type VerificationEvent struct {
	EventID    string             `json:"event_id" db:"event_id"`
	PorterID   string             `json:"porter_id" db:"porter_id"`
	FromStatus VerificationStatus `json:"from_status" db:"from_status"`
	ToStatus   VerificationStatus `json:"to_status" db:"to_status"`
	Reviewer   string             `json:"reviewer,omitempty" db:"reviewer"`
	Notes      string             `json:"notes,omitempty" db:"notes"`
	CreatedAt  time.Time          `json:"created_at" db:"created_at"`
}

// IdempotencyRecord caches a mutation's result, keyed and scoped per §4.3
// and §7 (P4): reuse across a different user or operation must fail.
type IdempotencyRecord struct {
	Key             string    `json:"key" db:"key"`
	UserID          string    `json:"user_id" db:"user_id"`
	Operation       string    `json:"operation" db:"operation"`
	ResponsePayload []byte    `json:"response_payload" db:"response_payload"`
	ExpiresAt       time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// DeviceSession is the minimal porter-device liveness record named but not
// elaborated in §6's persisted-state layout; maintained by Availability
// Service heartbeats.
type DeviceSession struct {
	PorterID   string    `json:"porter_id" db:"porter_id"`
	DeviceID   string    `json:"device_id" db:"device_id"`
	LastSeenAt time.Time `json:"last_seen_at" db:"last_seen_at"`
}
