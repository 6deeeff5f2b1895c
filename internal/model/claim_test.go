package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func timeNow() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

func TestClaimPromiseFulfil(t *testing.T) {
	c := NewClaim("c1", 7, "d1", timeNow())
	if _, ok := c.Shelter(); ok {
		t.Fatal("new claim must be unlinked")
	}

	if err := c.Promise("r1"); err != nil {
		t.Fatalf("Promise: %v", err)
	}
	if err := c.Promise("r2"); !errors.Is(err, ErrAlreadyPromised) {
		t.Errorf("second Promise: expected ErrAlreadyPromised, got %v", err)
	}

	if err := c.Fulfill(); err != nil {
		t.Fatalf("Fulfill: %v", err)
	}
	l, _ := c.Shelter()
	if l.Status != ShelterFulfilled || c.DonorStatus != DonorDonated {
		t.Errorf("expected fulfilled/donated, got %s/%s", l.Status, c.DonorStatus)
	}
	if err := c.CheckConsistency(); err != nil {
		t.Error(err)
	}

	if err := c.Unpromise(); !errors.Is(err, ErrCannotRemoveFulfilled) {
		t.Errorf("Unpromise after fulfil: expected ErrCannotRemoveFulfilled, got %v", err)
	}
	if err := c.Cancel(); !errors.Is(err, ErrCannotRemoveFulfilled) {
		t.Errorf("Cancel after fulfil: expected ErrCannotRemoveFulfilled, got %v", err)
	}
	if err := c.Fulfill(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Fulfill: expected ErrInvalidTransition, got %v", err)
	}
}

func TestClaimFulfilUnlinked(t *testing.T) {
	c := NewClaim("c1", 7, "d1", timeNow())
	if err := c.Fulfill(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if c.DonorStatus != DonorClaimed {
		t.Errorf("rejected fulfil changed donor status to %s", c.DonorStatus)
	}
}

func TestClaimUnpromise(t *testing.T) {
	c := NewClaim("c1", 7, "d1", timeNow())
	if err := c.Unpromise(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("unlinked: expected ErrInvalidState, got %v", err)
	}
	c.Promise("r1")
	if err := c.Unpromise(); err != nil {
		t.Fatalf("Unpromise: %v", err)
	}
	if _, ok := c.Shelter(); ok {
		t.Error("expected claim to be unlinked again")
	}
	// A withdrawn promise can be made to another request.
	if err := c.Promise("r2"); err != nil {
		t.Errorf("re-promise: %v", err)
	}
}

func TestClaimCancel(t *testing.T) {
	c := NewClaim("c1", 7, "d1", timeNow())
	c.Promise("r1")
	if err := c.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if c.Active() {
		t.Error("cancelled claim must not be active")
	}
	l, _ := c.Shelter()
	if l.Status != ShelterCancelled {
		t.Errorf("expected shelter side cancelled, got %s", l.Status)
	}
	if err := c.Cancel(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Cancel: expected ErrInvalidState, got %v", err)
	}
	if err := c.Promise("r2"); !errors.Is(err, ErrAlreadyPromised) {
		t.Errorf("promise after cancel: expected ErrAlreadyPromised, got %v", err)
	}
}

func TestClaimJSONLinkage(t *testing.T) {
	c := NewClaim("c1", 7, "d1", timeNow())
	data, _ := json.Marshal(c)
	var fields map[string]any
	json.Unmarshal(data, &fields)
	if _, ok := fields["shelter_request_id"]; ok {
		t.Errorf("unlinked claim must omit shelter_request_id: %s", data)
	}

	c.Promise("r1")
	data, _ = json.Marshal(c)
	var back Claim
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	l, ok := back.Shelter()
	if !ok || l.RequestID != "r1" || l.Status != ShelterPromised {
		t.Errorf("linkage lost in round trip: %+v", back.Link)
	}
}
