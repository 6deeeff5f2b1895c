package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erazemk/darilo/internal/db"
	"github.com/erazemk/darilo/internal/model"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// eachStore runs fn against every Entities implementation.
func eachStore(t *testing.T, fn func(t *testing.T, s Entities)) {
	t.Run("sqlite", func(t *testing.T) {
		fn(t, NewSQLite(db.NewTestDB(t)))
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
}

func testDonation(id string) *model.Donation {
	return &model.Donation{
		ID:            id,
		DonorID:       1,
		FoodType:      "bread",
		Quantity:      10,
		PickupAddress: "Trubarjeva 1",
		ExpiresAt:     epoch.Add(48 * time.Hour),
		PoolSize:      2,
		Status:        model.DonationAvailable,
		CreatedAt:     epoch,
		UpdatedAt:     epoch,
	}
}

func testRequest(id string) *model.ShelterRequest {
	return &model.ShelterRequest{
		ID:        id,
		ShelterID: 3,
		FoodType:  "bread",
		Quantity:  5,
		Status:    model.RequestInNeed,
		CreatedAt: epoch,
		UpdatedAt: epoch,
	}
}

func TestDonationRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s Entities) {
		ctx := context.Background()

		d := testDonation("d1")
		d.ActiveClaims = []string{"c1"}
		d.ConfirmedBy = []int64{1, 2}
		if err := s.PutDonation(ctx, d); err != nil {
			t.Fatalf("PutDonation: %v", err)
		}
		if d.Version != 1 {
			t.Fatalf("expected version 1 after insert, got %d", d.Version)
		}

		got, err := s.GetDonation(ctx, "d1")
		if err != nil {
			t.Fatalf("GetDonation: %v", err)
		}
		if got == nil {
			t.Fatal("expected donation, got nil")
		}
		if len(got.ActiveClaims) != 1 || got.ActiveClaims[0] != "c1" {
			t.Errorf("expected active claims [c1], got %v", got.ActiveClaims)
		}
		if len(got.ConfirmedBy) != 2 {
			t.Errorf("expected 2 confirmers, got %v", got.ConfirmedBy)
		}
		if !got.ExpiresAt.Equal(d.ExpiresAt) {
			t.Errorf("expected expiry %v, got %v", d.ExpiresAt, got.ExpiresAt)
		}

		missing, err := s.GetDonation(ctx, "nope")
		if err != nil {
			t.Fatalf("GetDonation: %v", err)
		}
		if missing != nil {
			t.Error("expected nil for missing donation")
		}
	})
}

func TestDonationVersionConflict(t *testing.T) {
	eachStore(t, func(t *testing.T, s Entities) {
		ctx := context.Background()

		if err := s.PutDonation(ctx, testDonation("d1")); err != nil {
			t.Fatalf("PutDonation: %v", err)
		}

		a, _ := s.GetDonation(ctx, "d1")
		b, _ := s.GetDonation(ctx, "d1")

		a.ActiveClaims = append(a.ActiveClaims, "c1")
		if err := s.PutDonation(ctx, a); err != nil {
			t.Fatalf("first update: %v", err)
		}
		if a.Version != 2 {
			t.Errorf("expected version 2, got %d", a.Version)
		}

		b.ActiveClaims = append(b.ActiveClaims, "c2")
		err := s.PutDonation(ctx, b)
		if !errors.Is(err, model.ErrConcurrentModification) {
			t.Fatalf("expected ErrConcurrentModification, got %v", err)
		}

		got, _ := s.GetDonation(ctx, "d1")
		if len(got.ActiveClaims) != 1 || got.ActiveClaims[0] != "c1" {
			t.Errorf("stale write leaked: %v", got.ActiveClaims)
		}

		if err := s.PutDonation(ctx, testDonation("d1")); !errors.Is(err, model.ErrConcurrentModification) {
			t.Errorf("expected duplicate insert to conflict, got %v", err)
		}
	})
}

func TestFindDonations(t *testing.T) {
	eachStore(t, func(t *testing.T, s Entities) {
		ctx := context.Background()

		d1 := testDonation("d1")
		d2 := testDonation("d2")
		d2.DonorID = 7
		d2.CreatedAt = epoch.Add(time.Hour)
		d3 := testDonation("d3")
		d3.Status = model.DonationClosed
		for _, d := range []*model.Donation{d1, d2, d3} {
			if err := s.PutDonation(ctx, d); err != nil {
				t.Fatalf("PutDonation: %v", err)
			}
		}

		available, err := s.FindDonations(ctx, DonationFilter{Status: model.DonationAvailable})
		if err != nil {
			t.Fatalf("FindDonations: %v", err)
		}
		if len(available) != 2 || available[0].ID != "d2" {
			t.Errorf("expected [d2 d1], got %v", available)
		}

		mine, _ := s.FindDonations(ctx, DonationFilter{DonorID: 7})
		if len(mine) != 1 || mine[0].ID != "d2" {
			t.Errorf("expected only d2 for donor 7, got %v", mine)
		}

		if err := s.DeleteDonation(ctx, "d3"); err != nil {
			t.Fatalf("DeleteDonation: %v", err)
		}
		all, _ := s.FindDonations(ctx, DonationFilter{})
		if len(all) != 2 {
			t.Errorf("expected 2 donations after delete, got %d", len(all))
		}
	})
}

func TestShelterRequestRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s Entities) {
		ctx := context.Background()

		r := testRequest("r1")
		if err := s.PutShelterRequest(ctx, r); err != nil {
			t.Fatalf("PutShelterRequest: %v", err)
		}

		r.AddPromise("c1")
		r.AddPromise("c2")
		r.MarkFulfilled("c1")
		if err := s.PutShelterRequest(ctx, r); err != nil {
			t.Fatalf("update: %v", err)
		}

		got, err := s.GetShelterRequest(ctx, "r1")
		if err != nil {
			t.Fatalf("GetShelterRequest: %v", err)
		}
		if got.Version != 2 {
			t.Errorf("expected version 2, got %d", got.Version)
		}
		if len(got.Promised) != 1 || got.Promised[0] != "c2" {
			t.Errorf("expected promised [c2], got %v", got.Promised)
		}
		if len(got.Fulfilled) != 1 || got.Fulfilled[0] != "c1" {
			t.Errorf("expected fulfilled [c1], got %v", got.Fulfilled)
		}

		stale := testRequest("r1")
		stale.Version = 1
		if err := s.PutShelterRequest(ctx, stale); !errors.Is(err, model.ErrConcurrentModification) {
			t.Errorf("expected ErrConcurrentModification, got %v", err)
		}

		mine, _ := s.FindShelterRequests(ctx, RequestFilter{ShelterID: 3})
		if len(mine) != 1 {
			t.Errorf("expected 1 request for shelter 3, got %d", len(mine))
		}
		none, _ := s.FindShelterRequests(ctx, RequestFilter{Status: model.RequestFulfilled})
		if len(none) != 0 {
			t.Errorf("expected no fulfilled requests, got %d", len(none))
		}
	})
}

func TestClaimLinkageRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s Entities) {
		ctx := context.Background()
		s.PutDonation(ctx, testDonation("d1"))
		s.PutShelterRequest(ctx, testRequest("r1"))

		c := model.NewClaim("c1", 2, "d1", epoch)
		if err := s.PutClaim(ctx, c); err != nil {
			t.Fatalf("PutClaim: %v", err)
		}

		got, _ := s.GetClaim(ctx, "c1")
		if _, linked := got.Shelter(); linked {
			t.Fatal("expected fresh claim to be unlinked")
		}

		if err := got.Promise("r1"); err != nil {
			t.Fatalf("Promise: %v", err)
		}
		if err := got.Fulfill(); err != nil {
			t.Fatalf("Fulfill: %v", err)
		}
		if err := s.PutClaim(ctx, got); err != nil {
			t.Fatalf("PutClaim: %v", err)
		}

		got, _ = s.GetClaim(ctx, "c1")
		l, linked := got.Shelter()
		if !linked || l.RequestID != "r1" || l.Status != model.ShelterFulfilled {
			t.Errorf("expected fulfilled link to r1, got %+v", got.Link)
		}
		if got.DonorStatus != model.DonorDonated {
			t.Errorf("expected donated, got %s", got.DonorStatus)
		}

		byRequest, _ := s.FindClaims(ctx, ClaimFilter{ShelterRequestID: "r1"})
		if len(byRequest) != 1 {
			t.Errorf("expected 1 claim for r1, got %d", len(byRequest))
		}
	})
}

func TestClaimActivePairIsUnique(t *testing.T) {
	eachStore(t, func(t *testing.T, s Entities) {
		ctx := context.Background()
		s.PutDonation(ctx, testDonation("d1"))

		first := model.NewClaim("c1", 2, "d1", epoch)
		if err := s.PutClaim(ctx, first); err != nil {
			t.Fatalf("PutClaim: %v", err)
		}

		second := model.NewClaim("c2", 2, "d1", epoch.Add(time.Minute))
		if err := s.PutClaim(ctx, second); !errors.Is(err, model.ErrConcurrentModification) {
			t.Fatalf("expected ErrConcurrentModification, got %v", err)
		}

		first.Cancel()
		if err := s.PutClaim(ctx, first); err != nil {
			t.Fatalf("cancelling: %v", err)
		}

		second.Version = 0
		if err := s.PutClaim(ctx, second); err != nil {
			t.Fatalf("expected reclaim after cancel to succeed, got %v", err)
		}

		active, _ := s.FindClaims(ctx, ClaimFilter{DonationID: "d1", ActiveOnly: true})
		if len(active) != 1 || active[0].ID != "c2" {
			t.Errorf("expected only c2 active, got %v", active)
		}
		all, _ := s.FindClaims(ctx, ClaimFilter{VolunteerID: 2})
		if len(all) != 2 {
			t.Errorf("expected cancelled claim to be kept, got %d claims", len(all))
		}
	})
}

func TestPutClaimRejectsInconsistentSides(t *testing.T) {
	eachStore(t, func(t *testing.T, s Entities) {
		ctx := context.Background()
		s.PutDonation(ctx, testDonation("d1"))
		s.PutShelterRequest(ctx, testRequest("r1"))

		c := model.NewClaim("c1", 2, "d1", epoch)
		c.Link = model.LinkedToShelter{RequestID: "r1", Status: model.ShelterFulfilled}
		if err := s.PutClaim(ctx, c); !errors.Is(err, model.ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", err)
		}
	})
}

func TestSQLiteInTxRollsBack(t *testing.T) {
	s := NewSQLite(db.NewTestDB(t))
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx Entities) error {
		if err := tx.PutDonation(ctx, testDonation("d1")); err != nil {
			return err
		}
		return tx.PutClaim(ctx, model.NewClaim("c1", 2, "d1", epoch))
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	err = s.InTx(ctx, func(tx Entities) error {
		d, _ := tx.GetDonation(ctx, "d1")
		d.Status = model.DonationClaimed
		if err := tx.PutDonation(ctx, d); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	d, _ := s.GetDonation(ctx, "d1")
	if d.Status != model.DonationAvailable || d.Version != 1 {
		t.Errorf("expected rolled back donation, got status %s version %d", d.Status, d.Version)
	}
	c, _ := s.GetClaim(ctx, "c1")
	if c == nil {
		t.Error("expected committed claim to exist")
	}
}
