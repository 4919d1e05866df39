package timeline

import "testing"

func TestRecordAndForOffer(t *testing.T) {
	s := NewStore()
	s.Record(Transition{OfferID: "o1", OrderID: "ord1", Stage: "CREATED"})
	s.Record(Transition{OfferID: "o1", OrderID: "ord1", Stage: "ACCEPTED"})
	s.Record(Transition{OfferID: "o2", OrderID: "ord1", Stage: "CREATED"})

	got := s.ForOffer("o1")
	if len(got) != 2 {
		t.Fatalf("expected 2 transitions for o1, got %d", len(got))
	}
	if got[0].Stage != "CREATED" || got[1].Stage != "ACCEPTED" {
		t.Fatalf("expected insertion order CREATED, ACCEPTED, got %+v", got)
	}
}

func TestForOrder(t *testing.T) {
	s := NewStore()
	s.Record(Transition{OfferID: "o1", OrderID: "ord1", Stage: "CREATED"})
	s.Record(Transition{OfferID: "o2", OrderID: "ord1", Stage: "CREATED"})
	s.Record(Transition{OfferID: "o3", OrderID: "ord2", Stage: "CREATED"})

	got := s.ForOrder("ord1")
	if len(got) != 2 {
		t.Fatalf("expected 2 transitions for ord1, got %d", len(got))
	}
}

func TestAll_ReturnsIndependentCopy(t *testing.T) {
	s := NewStore()
	s.Record(Transition{OfferID: "o1", Stage: "CREATED"})

	all := s.All()
	all[0].Stage = "MUTATED"

	again := s.All()
	if again[0].Stage != "CREATED" {
		t.Fatalf("mutating the slice returned by All should not affect the store's state")
	}
}
