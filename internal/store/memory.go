package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/dispatcherr"
)

// MemoryStore is an in-process Store used by unit tests and by the seed
// end-to-end scenarios, mirroring the teacher's MemoryStore fake. A single
// mutex serializes AcceptOffer exactly the way a serializable Postgres
// transaction would from the caller's point of view.
type MemoryStore struct {
	mu sync.Mutex

	porters     map[string]*PorterProfile
	offers      map[string]*JobOffer
	earnings    map[string]*PorterEarning
	history     []VerificationEvent
	snapshots   []LocationSnapshot
	idempotency map[string]*IdempotencyRecord
	sessions    map[string]*DeviceSession
	epochs      map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		porters:     make(map[string]*PorterProfile),
		offers:      make(map[string]*JobOffer),
		earnings:    make(map[string]*PorterEarning),
		idempotency: make(map[string]*IdempotencyRecord),
		sessions:    make(map[string]*DeviceSession),
		epochs:      make(map[string]int64),
	}
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) CreatePorter(_ context.Context, p *PorterProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.porters[p.PorterID]; exists {
		return nil
	}
	cp := *p
	cp.VerificationStatus = VerificationPending
	cp.Active = true
	cp.Version = 1
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.porters[p.PorterID] = &cp
	return nil
}

func (s *MemoryStore) GetPorter(_ context.Context, porterID string) (*PorterProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.porters[porterID]
	if !ok {
		return nil, dispatcherr.New(dispatcherr.NotFound, "porter not found")
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) UpdateVerificationStatus(_ context.Context, porterID string, status VerificationStatus, reviewer, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.porters[porterID]
	if !ok {
		return dispatcherr.New(dispatcherr.NotFound, "porter not found")
	}
	s.history = append(s.history, VerificationEvent{
		EventID: newID(), PorterID: porterID, FromStatus: p.VerificationStatus,
		ToStatus: status, Reviewer: reviewer, Notes: notes, CreatedAt: time.Now(),
	})
	p.VerificationStatus = status
	p.UpdatedAt = time.Now()
	p.Version++
	return nil
}

func (s *MemoryStore) SetSuspended(_ context.Context, porterID string, suspended bool, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.porters[porterID]
	if !ok {
		return dispatcherr.New(dispatcherr.NotFound, "porter not found")
	}
	p.Suspended = suspended
	p.SuspendReason = reason
	p.UpdatedAt = time.Now()
	p.Version++
	return nil
}

func (s *MemoryStore) IncrementCompletedJobs(_ context.Context, porterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.porters[porterID]
	if !ok {
		return dispatcherr.New(dispatcherr.NotFound, "porter not found")
	}
	p.CompletedJobs++
	return nil
}

func (s *MemoryStore) ListVerificationHistory(_ context.Context, porterID string) ([]VerificationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []VerificationEvent
	for _, e := range s.history {
		if e.PorterID == porterID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateOffer(_ context.Context, o *JobOffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	cp.OfferStatus = OfferPending
	cp.AssignmentStatus = AssignmentPending
	s.offers[o.OfferID] = &cp
	return nil
}

func (s *MemoryStore) GetOffer(_ context.Context, offerID string) (*JobOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[offerID]
	if !ok {
		return nil, dispatcherr.New(dispatcherr.NotFound, "offer not found")
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) CountPendingOffers(_ context.Context, porterID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.offers {
		if o.PorterID == porterID && o.OfferStatus == OfferPending {
			n++
		}
	}
	return n, nil
}

// AcceptOffer replicates the exact §4.3 step order under a single process
// mutex, which gives the same externally observable guarantee as a
// serializable transaction for an in-process store.
func (s *MemoryStore) AcceptOffer(_ context.Context, offerID, porterID string) (AcceptOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.offers[offerID]
	if !ok {
		return AcceptOutcome{}, dispatcherr.New(dispatcherr.NotFound, "offer not found")
	}
	if o.PorterID != porterID {
		return AcceptOutcome{}, dispatcherr.New(dispatcherr.Conflict, "offer does not belong to this porter")
	}
	if o.OfferStatus != OfferPending {
		return AcceptOutcome{Accepted: false, CurrentState: o.OfferStatus}, nil
	}

	now := time.Now().UTC()
	if !o.ExpiresAt.After(now) {
		o.OfferStatus = OfferExpired
		o.ExpiredAt = &now
		return AcceptOutcome{Accepted: false, CurrentState: OfferExpired}, nil
	}

	for _, sib := range s.offers {
		if sib.OrderID == o.OrderID && sib.OfferStatus == OfferAccepted && sib.AssignmentStatus == AssignmentConfirmed {
			o.OfferStatus = OfferRevoked
			o.RevokedAt = &now
			o.RevokeReason = "order assigned to another porter"
			return AcceptOutcome{Accepted: false, CurrentState: OfferRevoked}, nil
		}
	}

	o.OfferStatus = OfferAccepted
	o.AssignmentStatus = AssignmentConfirmed
	o.AcceptedAt = &now
	o.ConfirmedAt = &now
	return AcceptOutcome{Accepted: true}, nil
}

func (s *MemoryStore) RejectOffer(_ context.Context, offerID, porterID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[offerID]
	if !ok || o.PorterID != porterID || o.OfferStatus != OfferPending {
		return dispatcherr.New(dispatcherr.Conflict, "offer is not pending or not owned by this porter")
	}
	now := time.Now().UTC()
	o.OfferStatus = OfferRejected
	o.RejectedAt = &now
	o.RejectionReason = reason
	return nil
}

func (s *MemoryStore) ExpireOffers(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, o := range s.offers {
		if o.OfferStatus == OfferPending && o.ExpiresAt.Before(now) {
			o.OfferStatus = OfferExpired
			t := now
			o.ExpiredAt = &t
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) RevokeOtherOffers(_ context.Context, orderID, exceptOfferID, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := time.Now().UTC()
	for id, o := range s.offers {
		if o.OrderID == orderID && id != exceptOfferID && o.OfferStatus == OfferPending {
			o.OfferStatus = OfferRevoked
			o.RevokedAt = &now
			o.RevokeReason = reason
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListPorterOffers(_ context.Context, porterID string, status OfferStatus) ([]JobOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []JobOffer
	for _, o := range s.offers {
		if o.PorterID == porterID && (status == "" || o.OfferStatus == status) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OfferedAt.After(out[j].OfferedAt) })
	return out, nil
}

func (s *MemoryStore) ListOrderOffers(_ context.Context, orderID string) ([]JobOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []JobOffer
	for _, o := range s.offers {
		if o.OrderID == orderID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OfferedAt.Before(out[j].OfferedAt) })
	return out, nil
}

func (s *MemoryStore) FindAcceptedOffer(_ context.Context, orderID, porterID string) (*JobOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.offers {
		if o.OrderID == orderID && o.PorterID == porterID && o.OfferStatus == OfferAccepted {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) RecordEarning(_ context.Context, e *PorterEarning) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	cp.Status = EarningPending
	cp.CreatedAt = time.Now()
	s.earnings[e.EarningID] = &cp
	if p, ok := s.porters[e.PorterID]; ok {
		p.AggregateEarnings += e.AmountMinor
	}
	return nil
}

func (s *MemoryStore) EarningsSummary(_ context.Context, porterID string) (total, pending, confirmed int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.earnings {
		if e.PorterID != porterID {
			continue
		}
		total += e.AmountMinor
		switch e.Status {
		case EarningPending:
			pending += e.AmountMinor
		case EarningConfirmed:
			confirmed += e.AmountMinor
		}
	}
	return total, pending, confirmed, nil
}

func (s *MemoryStore) RecentEarnings(_ context.Context, porterID string, limit int) ([]PorterEarning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PorterEarning
	for _, e := range s.earnings {
		if e.PorterID == porterID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) OrderEarnings(_ context.Context, orderID string) ([]PorterEarning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PorterEarning
	for _, e := range s.earnings {
		if e.OrderID == orderID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateEarningStatus(_ context.Context, earningID string, status EarningStatus, payoutID, payoutStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.earnings[earningID]
	if !ok {
		return dispatcherr.New(dispatcherr.NotFound, "earning not found")
	}
	e.Status = status
	e.PayoutID = payoutID
	e.PayoutStatus = payoutStatus
	if status == EarningPaidOut {
		now := time.Now()
		e.PayoutAt = &now
	}
	return nil
}

func (s *MemoryStore) RequestWithdrawal(_ context.Context, porterID string, amountMinor int64) (*PorterEarning, error) {
	if amountMinor <= 0 {
		return nil, dispatcherr.New(dispatcherr.BadRequest, "withdrawal amount must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var confirmed, pendingWithdrawals int64
	for _, e := range s.earnings {
		if e.PorterID != porterID {
			continue
		}
		if e.Status == EarningConfirmed {
			confirmed += e.AmountMinor
		}
		if e.Status == EarningPending && e.WithdrawalReq {
			pendingWithdrawals += -e.AmountMinor
		}
	}
	available := confirmed - pendingWithdrawals
	if amountMinor > available {
		return nil, dispatcherr.Newf(dispatcherr.Conflict, "insufficient confirmed balance: requested %d, available %d", amountMinor, available)
	}

	e := &PorterEarning{
		EarningID: newID(), PorterID: porterID, Type: EarningAdjustment,
		AmountMinor: -amountMinor, Status: EarningPending, WithdrawalReq: true, CreatedAt: time.Now(),
	}
	s.earnings[e.EarningID] = e
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) BulkUpdateEarningsByPayout(_ context.Context, payoutID string, status EarningStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.earnings {
		if e.PayoutID == payoutID && e.Status == EarningConfirmed {
			e.Status = status
			if status == EarningPaidOut {
				now := time.Now()
				e.PayoutAt = &now
			}
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) InsertLocationSnapshot(_ context.Context, snap *LocationSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, *snap)
	return nil
}

func (s *MemoryStore) LastSnapshotAge(_ context.Context, porterID string, now time.Time) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest time.Time
	found := false
	for _, snap := range s.snapshots {
		if snap.PorterID == porterID && snap.CapturedAt.After(latest) {
			latest = snap.CapturedAt
			found = true
		}
	}
	if !found {
		return 0, false, nil
	}
	return now.Sub(latest), true, nil
}

func (s *MemoryStore) LocationHistory(_ context.Context, porterID, orderID string, limit int) ([]LocationSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []LocationSnapshot
	for _, snap := range s.snapshots {
		if snap.PorterID != porterID {
			continue
		}
		if orderID != "" && snap.OrderID != orderID {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CapturedAt.After(out[j].CapturedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CleanupOldHistory(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.snapshots[:0]
	var removed int64
	for _, snap := range s.snapshots {
		if snap.CapturedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, snap)
	}
	s.snapshots = kept
	return removed, nil
}

func (s *MemoryStore) FilterEligiblePorters(_ context.Context, porterIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, id := range porterIDs {
		if p, ok := s.porters[id]; ok && p.EligibleForOffers() {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetIdempotencyRecord(_ context.Context, key string) (*IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.idempotency[key]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) PutIdempotencyRecord(_ context.Context, r *IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.idempotency[r.Key]; exists {
		return nil
	}
	cp := *r
	cp.CreatedAt = time.Now()
	s.idempotency[r.Key] = &cp
	return nil
}

func (s *MemoryStore) PurgeExpiredIdempotencyRecords(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, r := range s.idempotency {
		if r.ExpiresAt.Before(now) {
			delete(s.idempotency, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) UpsertDeviceSession(_ context.Context, sess *DeviceSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.PorterID+"|"+sess.DeviceID] = sess
	return nil
}

func (s *MemoryStore) IncrementDurableEpoch(_ context.Context, resourceID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epochs[resourceID]++
	return s.epochs[resourceID], nil
}
