package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/dispatcherr"
)

// PostgresStore is the production Durable Store backed by pgx/v5. It owns a
// single pool for the process, matching the teacher's singleton-handle
// convention (Design Notes §9).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pool and runs a liveness probe (Ping) before
// returning, mirroring the teacher's startup-time liveness check.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func unavailable(err error) error {
	return dispatcherr.Wrap(dispatcherr.ServiceUnavailable, "durable store unavailable", err)
}

// --- Porter profiles ---

func (s *PostgresStore) CreatePorter(ctx context.Context, p *PorterProfile) error {
	const q = `
		INSERT INTO porters (porter_id, user_id, contact_phone, vehicle_category,
			verification_status, suspended, active, completed_jobs, aggregate_earnings_minor, version)
		VALUES ($1, $2, $3, $4, $5, false, true, 0, 0, 1)
		ON CONFLICT (porter_id) DO NOTHING`
	_, err := s.pool.Exec(ctx, q, p.PorterID, p.UserID, p.ContactPhone, p.VehicleCategory, VerificationPending)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *PostgresStore) GetPorter(ctx context.Context, porterID string) (*PorterProfile, error) {
	const q = `
		SELECT porter_id, user_id, contact_phone, vehicle_category, verification_status,
			suspended, suspend_reason, active, completed_jobs, aggregate_earnings_minor,
			version, created_at, updated_at
		FROM porters WHERE porter_id = $1`
	row := s.pool.QueryRow(ctx, q, porterID)
	var p PorterProfile
	var suspendReason *string
	err := row.Scan(&p.PorterID, &p.UserID, &p.ContactPhone, &p.VehicleCategory, &p.VerificationStatus,
		&p.Suspended, &suspendReason, &p.Active, &p.CompletedJobs, &p.AggregateEarnings,
		&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, dispatcherr.New(dispatcherr.NotFound, "porter not found")
	}
	if err != nil {
		return nil, unavailable(err)
	}
	if suspendReason != nil {
		p.SuspendReason = *suspendReason
	}
	return &p, nil
}

func (s *PostgresStore) UpdateVerificationStatus(ctx context.Context, porterID string, status VerificationStatus, reviewer, notes string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback(ctx)

	var from VerificationStatus
	if err := tx.QueryRow(ctx, `SELECT verification_status FROM porters WHERE porter_id = $1 FOR UPDATE`, porterID).Scan(&from); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return dispatcherr.New(dispatcherr.NotFound, "porter not found")
		}
		return unavailable(err)
	}

	if _, err := tx.Exec(ctx, `UPDATE porters SET verification_status = $1, updated_at = now(), version = version + 1 WHERE porter_id = $2`, status, porterID); err != nil {
		return unavailable(err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO verification_history (event_id, porter_id, from_status, to_status, reviewer, notes, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, now())`, porterID, from, status, reviewer, notes); err != nil {
		return unavailable(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *PostgresStore) SetSuspended(ctx context.Context, porterID string, suspended bool, reason string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE porters SET suspended = $1, suspend_reason = $2, updated_at = now(), version = version + 1 WHERE porter_id = $3`, suspended, reason, porterID)
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return dispatcherr.New(dispatcherr.NotFound, "porter not found")
	}
	return nil
}

func (s *PostgresStore) IncrementCompletedJobs(ctx context.Context, porterID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE porters SET completed_jobs = completed_jobs + 1, updated_at = now() WHERE porter_id = $1`, porterID)
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return dispatcherr.New(dispatcherr.NotFound, "porter not found")
	}
	return nil
}

func (s *PostgresStore) ListVerificationHistory(ctx context.Context, porterID string) ([]VerificationEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, porter_id, from_status, to_status, reviewer, notes, created_at
		FROM verification_history WHERE porter_id = $1 ORDER BY created_at DESC`, porterID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []VerificationEvent
	for rows.Next() {
		var e VerificationEvent
		if err := rows.Scan(&e.EventID, &e.PorterID, &e.FromStatus, &e.ToStatus, &e.Reviewer, &e.Notes, &e.CreatedAt); err != nil {
			return nil, unavailable(err)
		}
		out = append(out, e)
	}
	return out, nil
}

// --- Job offers ---

func (s *PostgresStore) CreateOffer(ctx context.Context, o *JobOffer) error {
	const q = `
		INSERT INTO job_offers (offer_id, order_id, porter_id, offer_status, assignment_status,
			offered_at, expires_at, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, q, o.OfferID, o.OrderID, o.PorterID, OfferPending, AssignmentPending,
		o.OfferedAt, o.ExpiresAt, o.CorrelationID)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *PostgresStore) GetOffer(ctx context.Context, offerID string) (*JobOffer, error) {
	return s.getOfferTx(ctx, s.pool, offerID)
}

// queryRower is satisfied by both *pgxpool.Pool and pgx.Tx so offer lookups
// can run either standalone or inside the acceptance transaction.
type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (s *PostgresStore) getOfferTx(ctx context.Context, q queryRower, offerID string) (*JobOffer, error) {
	const query = `
		SELECT offer_id, order_id, porter_id, offer_status, assignment_status, offered_at, expires_at,
			accepted_at, rejected_at, expired_at, revoked_at, confirmed_at, correlation_id,
			rejection_reason, revoke_reason
		FROM job_offers WHERE offer_id = $1`
	row := q.QueryRow(ctx, query, offerID)
	var o JobOffer
	err := row.Scan(&o.OfferID, &o.OrderID, &o.PorterID, &o.OfferStatus, &o.AssignmentStatus,
		&o.OfferedAt, &o.ExpiresAt, &o.AcceptedAt, &o.RejectedAt, &o.ExpiredAt, &o.RevokedAt,
		&o.ConfirmedAt, &o.CorrelationID, &o.RejectionReason, &o.RevokeReason)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, dispatcherr.New(dispatcherr.NotFound, "offer not found")
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &o, nil
}

func (s *PostgresStore) CountPendingOffers(ctx context.Context, porterID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM job_offers WHERE porter_id = $1 AND offer_status = $2`, porterID, OfferPending).Scan(&n)
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// AcceptOffer runs the full §4.3 protocol inside one serializable
// transaction. A uniqueness constraint on (order_id) WHERE offer_status =
// 'ACCEPTED' backstops the transaction: even if two serializable
// transactions somehow both believed they were first (they cannot, under
// true serializable isolation, but the constraint is cheap insurance that
// turns any isolation mistake into a constraint-violation error instead of
// a silent double-assignment), only one commits.
func (s *PostgresStore) AcceptOffer(ctx context.Context, offerID, porterID string) (AcceptOutcome, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return AcceptOutcome{}, unavailable(err)
	}
	defer tx.Rollback(ctx)

	offer, err := s.getOfferTx(ctx, tx, offerID)
	if err != nil {
		return AcceptOutcome{}, err
	}

	if offer.PorterID != porterID {
		return AcceptOutcome{}, dispatcherr.New(dispatcherr.Conflict, "offer does not belong to this porter")
	}

	if offer.OfferStatus != OfferPending {
		return AcceptOutcome{Accepted: false, CurrentState: offer.OfferStatus}, nil
	}

	now := time.Now().UTC()
	if !offer.ExpiresAt.After(now) {
		if _, err := tx.Exec(ctx, `UPDATE job_offers SET offer_status = $1, expired_at = $2 WHERE offer_id = $3`, OfferExpired, now, offerID); err != nil {
			return AcceptOutcome{}, unavailable(err)
		}
		if err := tx.Commit(ctx); err != nil {
			return AcceptOutcome{}, unavailable(err)
		}
		return AcceptOutcome{Accepted: false, CurrentState: OfferExpired}, nil
	}

	var siblingExists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM job_offers
			WHERE order_id = $1 AND offer_status = $2 AND assignment_status = $3
		)`, offer.OrderID, OfferAccepted, AssignmentConfirmed).Scan(&siblingExists)
	if err != nil {
		return AcceptOutcome{}, unavailable(err)
	}
	if siblingExists {
		if _, err := tx.Exec(ctx, `UPDATE job_offers SET offer_status = $1, revoked_at = $2, revoke_reason = $3 WHERE offer_id = $4`,
			OfferRevoked, now, "order assigned to another porter", offerID); err != nil {
			return AcceptOutcome{}, unavailable(err)
		}
		if err := tx.Commit(ctx); err != nil {
			return AcceptOutcome{}, unavailable(err)
		}
		return AcceptOutcome{Accepted: false, CurrentState: OfferRevoked}, nil
	}

	tag, err := tx.Exec(ctx, `
		UPDATE job_offers
		SET offer_status = $1, assignment_status = $2, accepted_at = $3, confirmed_at = $3
		WHERE offer_id = $4 AND offer_status = $5`,
		OfferAccepted, AssignmentConfirmed, now, offerID, OfferPending)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the race against a concurrent transaction that committed
			// first; the uniqueness constraint caught it where serializable
			// isolation alone would also have aborted one of the two.
			return AcceptOutcome{Accepted: false, CurrentState: OfferAccepted}, nil
		}
		return AcceptOutcome{}, unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return AcceptOutcome{Accepted: false, CurrentState: offer.OfferStatus}, nil
	}

	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return AcceptOutcome{Accepted: false, CurrentState: OfferAccepted}, nil
		}
		return AcceptOutcome{}, unavailable(err)
	}
	return AcceptOutcome{Accepted: true}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func (s *PostgresStore) RejectOffer(ctx context.Context, offerID, porterID, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE job_offers SET offer_status = $1, rejected_at = now(), rejection_reason = $2
		WHERE offer_id = $3 AND porter_id = $4 AND offer_status = $5`,
		OfferRejected, reason, offerID, porterID, OfferPending)
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return dispatcherr.New(dispatcherr.Conflict, "offer is not pending or not owned by this porter")
	}
	return nil
}

func (s *PostgresStore) ExpireOffers(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE job_offers SET offer_status = $1, expired_at = $2
		WHERE offer_status = $3 AND expires_at < $2`, OfferExpired, now, OfferPending)
	if err != nil {
		return 0, unavailable(err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) RevokeOtherOffers(ctx context.Context, orderID, exceptOfferID, reason string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE job_offers SET offer_status = $1, revoked_at = now(), revoke_reason = $2
		WHERE order_id = $3 AND offer_id != $4 AND offer_status = $5`,
		OfferRevoked, reason, orderID, exceptOfferID, OfferPending)
	if err != nil {
		return 0, unavailable(err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ListPorterOffers(ctx context.Context, porterID string, status OfferStatus) ([]JobOffer, error) {
	var rows pgx.Rows
	var err error
	if status == "" {
		rows, err = s.pool.Query(ctx, `SELECT offer_id, order_id, porter_id, offer_status, assignment_status,
			offered_at, expires_at, accepted_at, rejected_at, expired_at, revoked_at, confirmed_at,
			correlation_id, rejection_reason, revoke_reason FROM job_offers WHERE porter_id = $1 ORDER BY offered_at DESC`, porterID)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT offer_id, order_id, porter_id, offer_status, assignment_status,
			offered_at, expires_at, accepted_at, rejected_at, expired_at, revoked_at, confirmed_at,
			correlation_id, rejection_reason, revoke_reason FROM job_offers WHERE porter_id = $1 AND offer_status = $2 ORDER BY offered_at DESC`, porterID, status)
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return scanOffers(rows)
}

func (s *PostgresStore) ListOrderOffers(ctx context.Context, orderID string) ([]JobOffer, error) {
	rows, err := s.pool.Query(ctx, `SELECT offer_id, order_id, porter_id, offer_status, assignment_status,
		offered_at, expires_at, accepted_at, rejected_at, expired_at, revoked_at, confirmed_at,
		correlation_id, rejection_reason, revoke_reason FROM job_offers WHERE order_id = $1 ORDER BY offered_at`, orderID)
	if err != nil {
		return nil, unavailable(err)
	}
	return scanOffers(rows)
}

func (s *PostgresStore) FindAcceptedOffer(ctx context.Context, orderID, porterID string) (*JobOffer, error) {
	const q = `SELECT offer_id, order_id, porter_id, offer_status, assignment_status,
		offered_at, expires_at, accepted_at, rejected_at, expired_at, revoked_at, confirmed_at,
		correlation_id, rejection_reason, revoke_reason FROM job_offers
		WHERE order_id = $1 AND porter_id = $2 AND offer_status = $3`
	row := s.pool.QueryRow(ctx, q, orderID, porterID, OfferAccepted)
	var o JobOffer
	err := row.Scan(&o.OfferID, &o.OrderID, &o.PorterID, &o.OfferStatus, &o.AssignmentStatus,
		&o.OfferedAt, &o.ExpiresAt, &o.AcceptedAt, &o.RejectedAt, &o.ExpiredAt, &o.RevokedAt,
		&o.ConfirmedAt, &o.CorrelationID, &o.RejectionReason, &o.RevokeReason)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &o, nil
}

func scanOffers(rows pgx.Rows) ([]JobOffer, error) {
	defer rows.Close()
	var out []JobOffer
	for rows.Next() {
		var o JobOffer
		if err := rows.Scan(&o.OfferID, &o.OrderID, &o.PorterID, &o.OfferStatus, &o.AssignmentStatus,
			&o.OfferedAt, &o.ExpiresAt, &o.AcceptedAt, &o.RejectedAt, &o.ExpiredAt, &o.RevokedAt,
			&o.ConfirmedAt, &o.CorrelationID, &o.RejectionReason, &o.RevokeReason); err != nil {
			return nil, unavailable(err)
		}
		out = append(out, o)
	}
	return out, nil
}

// --- Earnings ---

func (s *PostgresStore) RecordEarning(ctx context.Context, e *PorterEarning) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback(ctx)

	const q = `
		INSERT INTO porter_earnings (earning_id, porter_id, type, amount_minor, status, order_id,
			description, metadata, withdrawal_request, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`
	_, err = tx.Exec(ctx, q, e.EarningID, e.PorterID, e.Type, e.AmountMinor, EarningPending, e.OrderID,
		e.Description, metadataJSON(e.Metadata), e.WithdrawalReq)
	if err != nil {
		return unavailable(err)
	}
	if _, err := tx.Exec(ctx, `UPDATE porters SET aggregate_earnings_minor = aggregate_earnings_minor + $1 WHERE porter_id = $2`, e.AmountMinor, e.PorterID); err != nil {
		return unavailable(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func metadataJSON(m map[string]string) []byte {
	if len(m) == 0 {
		return []byte("{}")
	}
	b, _ := jsonMarshal(m)
	return b
}

func (s *PostgresStore) EarningsSummary(ctx context.Context, porterID string) (total, pending, confirmed int64, err error) {
	const q = `
		SELECT
			COALESCE(sum(amount_minor), 0) AS total,
			COALESCE(sum(amount_minor) FILTER (WHERE status = 'PENDING'), 0) AS pending,
			COALESCE(sum(amount_minor) FILTER (WHERE status = 'CONFIRMED'), 0) AS confirmed
		FROM porter_earnings WHERE porter_id = $1`
	row := s.pool.QueryRow(ctx, q, porterID)
	if scanErr := row.Scan(&total, &pending, &confirmed); scanErr != nil {
		return 0, 0, 0, unavailable(scanErr)
	}
	return total, pending, confirmed, nil
}

func (s *PostgresStore) RecentEarnings(ctx context.Context, porterID string, limit int) ([]PorterEarning, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT earning_id, porter_id, type, amount_minor, status, order_id, description,
			payout_id, payout_status, withdrawal_request, payout_at, created_at
		FROM porter_earnings WHERE porter_id = $1 ORDER BY created_at DESC LIMIT $2`, porterID, limit)
	if err != nil {
		return nil, unavailable(err)
	}
	return scanEarnings(rows)
}

func (s *PostgresStore) OrderEarnings(ctx context.Context, orderID string) ([]PorterEarning, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT earning_id, porter_id, type, amount_minor, status, order_id, description,
			payout_id, payout_status, withdrawal_request, payout_at, created_at
		FROM porter_earnings WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, unavailable(err)
	}
	return scanEarnings(rows)
}

func scanEarnings(rows pgx.Rows) ([]PorterEarning, error) {
	defer rows.Close()
	var out []PorterEarning
	for rows.Next() {
		var e PorterEarning
		if err := rows.Scan(&e.EarningID, &e.PorterID, &e.Type, &e.AmountMinor, &e.Status, &e.OrderID,
			&e.Description, &e.PayoutID, &e.PayoutStatus, &e.WithdrawalReq, &e.PayoutAt, &e.CreatedAt); err != nil {
			return nil, unavailable(err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *PostgresStore) UpdateEarningStatus(ctx context.Context, earningID string, status EarningStatus, payoutID, payoutStatus string) error {
	var payoutAtSet string
	if status == EarningPaidOut {
		payoutAtSet = ", payout_at = now()"
	}
	q := fmt.Sprintf(`UPDATE porter_earnings SET status = $1, payout_id = $2, payout_status = $3%s WHERE earning_id = $4`, payoutAtSet)
	tag, err := s.pool.Exec(ctx, q, status, payoutID, payoutStatus, earningID)
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return dispatcherr.New(dispatcherr.NotFound, "earning not found")
	}
	return nil
}

// RequestWithdrawal computes the confirmed balance inside the same
// transaction as the insert, per §4.4's double-spend guardrail and B2.
func (s *PostgresStore) RequestWithdrawal(ctx context.Context, porterID string, amountMinor int64) (*PorterEarning, error) {
	if amountMinor <= 0 {
		return nil, dispatcherr.New(dispatcherr.BadRequest, "withdrawal amount must be positive")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, unavailable(err)
	}
	defer tx.Rollback(ctx)

	var confirmed, pendingWithdrawals int64
	err = tx.QueryRow(ctx, `
		SELECT
			COALESCE(sum(amount_minor) FILTER (WHERE status = 'CONFIRMED'), 0),
			COALESCE(-sum(amount_minor) FILTER (WHERE status = 'PENDING' AND withdrawal_request), 0)
		FROM porter_earnings WHERE porter_id = $1`, porterID).Scan(&confirmed, &pendingWithdrawals)
	if err != nil {
		return nil, unavailable(err)
	}

	available := confirmed - pendingWithdrawals
	if amountMinor > available {
		return nil, dispatcherr.Newf(dispatcherr.Conflict, "insufficient confirmed balance: requested %d, available %d", amountMinor, available)
	}

	e := &PorterEarning{
		EarningID:     newID(),
		PorterID:      porterID,
		Type:          EarningAdjustment,
		AmountMinor:   -amountMinor,
		Status:        EarningPending,
		WithdrawalReq: true,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO porter_earnings (earning_id, porter_id, type, amount_minor, status, withdrawal_request, created_at)
		VALUES ($1, $2, $3, $4, $5, true, now())`, e.EarningID, e.PorterID, e.Type, e.AmountMinor, e.Status)
	if err != nil {
		return nil, unavailable(err)
	}
	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return nil, dispatcherr.New(dispatcherr.Conflict, "concurrent withdrawal conflict, retry")
		}
		return nil, unavailable(err)
	}
	return e, nil
}

func (s *PostgresStore) BulkUpdateEarningsByPayout(ctx context.Context, payoutID string, status EarningStatus) (int64, error) {
	var payoutAtSet string
	if status == EarningPaidOut {
		payoutAtSet = ", payout_at = now()"
	}
	q := fmt.Sprintf(`UPDATE porter_earnings SET status = $1%s WHERE payout_id = $2 AND status = 'CONFIRMED'`, payoutAtSet)
	tag, err := s.pool.Exec(ctx, q, status, payoutID)
	if err != nil {
		return 0, unavailable(err)
	}
	return tag.RowsAffected(), nil
}

// --- Location history ---

func (s *PostgresStore) InsertLocationSnapshot(ctx context.Context, snap *LocationSnapshot) error {
	const q = `
		INSERT INTO location_history (snapshot_id, porter_id, lat, lng, accuracy, order_id, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, q, snap.SnapshotID, snap.PorterID, snap.Lat, snap.Lng, snap.Accuracy, snap.OrderID, snap.CapturedAt)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *PostgresStore) LastSnapshotAge(ctx context.Context, porterID string, now time.Time) (time.Duration, bool, error) {
	var captured time.Time
	err := s.pool.QueryRow(ctx, `SELECT captured_at FROM location_history WHERE porter_id = $1 ORDER BY captured_at DESC LIMIT 1`, porterID).Scan(&captured)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable(err)
	}
	return now.Sub(captured), true, nil
}

func (s *PostgresStore) LocationHistory(ctx context.Context, porterID, orderID string, limit int) ([]LocationSnapshot, error) {
	var rows pgx.Rows
	var err error
	if orderID == "" {
		rows, err = s.pool.Query(ctx, `SELECT snapshot_id, porter_id, lat, lng, accuracy, order_id, captured_at
			FROM location_history WHERE porter_id = $1 ORDER BY captured_at DESC LIMIT $2`, porterID, limit)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT snapshot_id, porter_id, lat, lng, accuracy, order_id, captured_at
			FROM location_history WHERE porter_id = $1 AND order_id = $2 ORDER BY captured_at DESC LIMIT $3`, porterID, orderID, limit)
	}
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []LocationSnapshot
	for rows.Next() {
		var snap LocationSnapshot
		if err := rows.Scan(&snap.SnapshotID, &snap.PorterID, &snap.Lat, &snap.Lng, &snap.Accuracy, &snap.OrderID, &snap.CapturedAt); err != nil {
			return nil, unavailable(err)
		}
		out = append(out, snap)
	}
	return out, nil
}

func (s *PostgresStore) CleanupOldHistory(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM location_history WHERE captured_at < $1`, olderThan)
	if err != nil {
		return 0, unavailable(err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) FilterEligiblePorters(ctx context.Context, porterIDs []string) ([]string, error) {
	if len(porterIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT porter_id FROM porters
		WHERE porter_id = ANY($1) AND verification_status = $2 AND suspended = false AND active = true`,
		porterIDs, VerificationVerified)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable(err)
		}
		out = append(out, id)
	}
	return out, nil
}

// --- Idempotency ---

func (s *PostgresStore) GetIdempotencyRecord(ctx context.Context, key string) (*IdempotencyRecord, error) {
	const q = `SELECT key, user_id, operation, response_payload, expires_at, created_at FROM idempotency_records WHERE key = $1`
	row := s.pool.QueryRow(ctx, q, key)
	var r IdempotencyRecord
	err := row.Scan(&r.Key, &r.UserID, &r.Operation, &r.ResponsePayload, &r.ExpiresAt, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &r, nil
}

func (s *PostgresStore) PutIdempotencyRecord(ctx context.Context, r *IdempotencyRecord) error {
	const q = `
		INSERT INTO idempotency_records (key, user_id, operation, response_payload, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (key) DO NOTHING`
	_, err := s.pool.Exec(ctx, q, r.Key, r.UserID, r.Operation, r.ResponsePayload, r.ExpiresAt)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *PostgresStore) PurgeExpiredIdempotencyRecords(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_records WHERE expires_at < $1`, now)
	if err != nil {
		return 0, unavailable(err)
	}
	return tag.RowsAffected(), nil
}

// --- Device sessions ---

func (s *PostgresStore) UpsertDeviceSession(ctx context.Context, sess *DeviceSession) error {
	const q = `
		INSERT INTO device_sessions (porter_id, device_id, last_seen_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (porter_id, device_id) DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at`
	_, err := s.pool.Exec(ctx, q, sess.PorterID, sess.DeviceID, sess.LastSeenAt)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// --- Coordination ---

func (s *PostgresStore) IncrementDurableEpoch(ctx context.Context, resourceID string) (int64, error) {
	const q = `
		INSERT INTO durable_epochs (resource_id, epoch) VALUES ($1, 1)
		ON CONFLICT (resource_id) DO UPDATE SET epoch = durable_epochs.epoch + 1
		RETURNING epoch`
	var epoch int64
	if err := s.pool.QueryRow(ctx, q, resourceID).Scan(&epoch); err != nil {
		return 0, unavailable(err)
	}
	return epoch, nil
}
