package store

import (
	"context"
	"testing"
	"time"
)

func TestExpireOffers_OnlyAffectsPendingPastDeadline(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.CreateOffer(ctx, &JobOffer{OfferID: "o1", OrderID: "ord1", PorterID: "p1", ExpiresAt: now.Add(-time.Minute)}); err != nil {
		t.Fatalf("create o1: %v", err)
	}
	if err := s.CreateOffer(ctx, &JobOffer{OfferID: "o2", OrderID: "ord1", PorterID: "p2", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("create o2: %v", err)
	}

	n, err := s.ExpireOffers(ctx, now)
	if err != nil {
		t.Fatalf("expire offers: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 offer expired, got %d", n)
	}

	o1, _ := s.GetOffer(ctx, "o1")
	if o1.OfferStatus != OfferExpired || o1.ExpiredAt == nil {
		t.Fatalf("o1 should be EXPIRED with ExpiredAt set, got %+v", o1)
	}
	o2, _ := s.GetOffer(ctx, "o2")
	if o2.OfferStatus != OfferPending {
		t.Fatalf("o2 should remain PENDING, got %s", o2.OfferStatus)
	}
}

func TestRevokeOtherOffers_LeavesAcceptedOfferUntouched(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"o1", "o2", "o3"} {
		if err := s.CreateOffer(ctx, &JobOffer{OfferID: id, OrderID: "ord1", PorterID: id, ExpiresAt: now.Add(time.Hour)}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	n, err := s.RevokeOtherOffers(ctx, "ord1", "o1", "order assigned elsewhere")
	if err != nil {
		t.Fatalf("revoke other offers: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 siblings revoked, got %d", n)
	}

	o1, _ := s.GetOffer(ctx, "o1")
	if o1.OfferStatus != OfferPending {
		t.Fatalf("excepted offer should stay PENDING, got %s", o1.OfferStatus)
	}
	o2, _ := s.GetOffer(ctx, "o2")
	if o2.OfferStatus != OfferRevoked || o2.RevokeReason != "order assigned elsewhere" {
		t.Fatalf("o2 should be REVOKED with a reason, got %+v", o2)
	}
}

func TestListPorterOffers_SortedNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	if err := s.CreateOffer(ctx, &JobOffer{OfferID: "o1", PorterID: "p1", OfferedAt: base, ExpiresAt: base.Add(time.Hour)}); err != nil {
		t.Fatalf("create o1: %v", err)
	}
	if err := s.CreateOffer(ctx, &JobOffer{OfferID: "o2", PorterID: "p1", OfferedAt: base.Add(time.Minute), ExpiresAt: base.Add(time.Hour)}); err != nil {
		t.Fatalf("create o2: %v", err)
	}

	out, err := s.ListPorterOffers(ctx, "p1", "")
	if err != nil {
		t.Fatalf("list porter offers: %v", err)
	}
	if len(out) != 2 || out[0].OfferID != "o2" || out[1].OfferID != "o1" {
		t.Fatalf("expected newest-first order [o2, o1], got %+v", out)
	}
}

func TestListOrderOffers_SortedOldestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	if err := s.CreateOffer(ctx, &JobOffer{OfferID: "o1", OrderID: "ord1", OfferedAt: base.Add(time.Minute), ExpiresAt: base.Add(time.Hour)}); err != nil {
		t.Fatalf("create o1: %v", err)
	}
	if err := s.CreateOffer(ctx, &JobOffer{OfferID: "o2", OrderID: "ord1", OfferedAt: base, ExpiresAt: base.Add(time.Hour)}); err != nil {
		t.Fatalf("create o2: %v", err)
	}

	out, err := s.ListOrderOffers(ctx, "ord1")
	if err != nil {
		t.Fatalf("list order offers: %v", err)
	}
	if len(out) != 2 || out[0].OfferID != "o2" || out[1].OfferID != "o1" {
		t.Fatalf("expected oldest-first order [o2, o1], got %+v", out)
	}
}

func TestPurgeExpiredIdempotencyRecords(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.PutIdempotencyRecord(ctx, &IdempotencyRecord{Key: "k1", ExpiresAt: now.Add(-time.Minute)}); err != nil {
		t.Fatalf("put k1: %v", err)
	}
	if err := s.PutIdempotencyRecord(ctx, &IdempotencyRecord{Key: "k2", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("put k2: %v", err)
	}

	n, err := s.PurgeExpiredIdempotencyRecords(ctx, now)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 record purged, got %d", n)
	}

	rec, err := s.GetIdempotencyRecord(ctx, "k1")
	if err != nil || rec != nil {
		t.Fatalf("expired record should be gone, got %+v / %v", rec, err)
	}
	rec, err = s.GetIdempotencyRecord(ctx, "k2")
	if err != nil || rec == nil {
		t.Fatalf("unexpired record should still be present, got %+v / %v", rec, err)
	}
}

func TestPutIdempotencyRecord_FirstWriteWins(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.PutIdempotencyRecord(ctx, &IdempotencyRecord{Key: "k1", UserID: "u1", ResponsePayload: []byte("first"), ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("put first: %v", err)
	}
	if err := s.PutIdempotencyRecord(ctx, &IdempotencyRecord{Key: "k1", UserID: "u2", ResponsePayload: []byte("second"), ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("put second: %v", err)
	}

	rec, err := s.GetIdempotencyRecord(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.UserID != "u1" || string(rec.ResponsePayload) != "first" {
		t.Fatalf("expected the first write to stick, got %+v", rec)
	}
}

func TestCleanupOldHistory_RemovesOnlySnapshotsBeforeCutoff(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.InsertLocationSnapshot(ctx, &LocationSnapshot{SnapshotID: "s1", PorterID: "p1", CapturedAt: now.Add(-48 * time.Hour)}); err != nil {
		t.Fatalf("insert s1: %v", err)
	}
	if err := s.InsertLocationSnapshot(ctx, &LocationSnapshot{SnapshotID: "s2", PorterID: "p1", CapturedAt: now.Add(-time.Hour)}); err != nil {
		t.Fatalf("insert s2: %v", err)
	}

	removed, err := s.CleanupOldHistory(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 snapshot removed, got %d", removed)
	}

	hist, err := s.LocationHistory(ctx, "p1", "", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 || hist[0].SnapshotID != "s2" {
		t.Fatalf("expected only s2 to remain, got %+v", hist)
	}
}

func TestAcceptOffer_SecondAcceptorSeesRevokedAfterFirstConfirms(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.CreateOffer(ctx, &JobOffer{OfferID: "o1", OrderID: "ord1", PorterID: "p1", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("create o1: %v", err)
	}
	if err := s.CreateOffer(ctx, &JobOffer{OfferID: "o2", OrderID: "ord1", PorterID: "p2", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("create o2: %v", err)
	}

	out, err := s.AcceptOffer(ctx, "o1", "p1")
	if err != nil || !out.Accepted {
		t.Fatalf("first accept should succeed, got %+v / %v", out, err)
	}

	out, err = s.AcceptOffer(ctx, "o2", "p2")
	if err != nil {
		t.Fatalf("second accept call: %v", err)
	}
	if out.Accepted || out.CurrentState != OfferRevoked {
		t.Fatalf("sibling offer should report REVOKED, got %+v", out)
	}
}

func TestFilterEligiblePorters_ExcludesUnknownAndIneligible(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.CreatePorter(ctx, &PorterProfile{PorterID: "p1"}); err != nil {
		t.Fatalf("create p1: %v", err)
	}
	if err := s.UpdateVerificationStatus(ctx, "p1", VerificationVerified, "r", ""); err != nil {
		t.Fatalf("verify p1: %v", err)
	}
	if err := s.CreatePorter(ctx, &PorterProfile{PorterID: "p2"}); err != nil {
		t.Fatalf("create p2: %v", err)
	}

	out, err := s.FilterEligiblePorters(ctx, []string{"p1", "p2", "unknown"})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(out) != 1 || out[0] != "p1" {
		t.Fatalf("expected only p1 eligible, got %v", out)
	}
}
