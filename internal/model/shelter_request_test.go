package model

import (
	"errors"
	"testing"
)

func TestRequestSetsDisjoint(t *testing.T) {
	r := &ShelterRequest{Status: RequestInNeed, Quantity: 2}

	if !r.AddPromise("c1") || r.AddPromise("c1") {
		t.Error("AddPromise should add once")
	}
	r.AddPromise("c2")

	if !r.MarkFulfilled("c1") {
		t.Fatal("MarkFulfilled should change the request")
	}
	if r.MarkFulfilled("c1") {
		t.Error("MarkFulfilled should be idempotent")
	}
	if r.AddPromise("c1") {
		t.Error("fulfilled claim must not be promised again")
	}

	for _, id := range r.Promised {
		for _, f := range r.Fulfilled {
			if id == f {
				t.Errorf("claim %s in both sets", id)
			}
		}
	}
	if len(r.Promised) != 1 || len(r.Fulfilled) != 1 {
		t.Errorf("unexpected sets promised=%v fulfilled=%v", r.Promised, r.Fulfilled)
	}

	if !r.RemovePromise("c2") || r.RemovePromise("c2") {
		t.Error("RemovePromise should drop c2 once")
	}
	if len(r.Promised) != 0 || len(r.Fulfilled) != 1 {
		t.Errorf("unexpected sets promised=%v fulfilled=%v", r.Promised, r.Fulfilled)
	}
}

func TestPolicies(t *testing.T) {
	tests := []struct {
		name                         string
		policy                       FulfillmentPolicy
		promised, fulfilled, request int
		want                         bool
	}{
		{"all-promised outstanding", AllPromisedDelivered, 1, 1, 5, false},
		{"all-promised none yet", AllPromisedDelivered, 0, 0, 5, false},
		{"all-promised done", AllPromisedDelivered, 0, 2, 5, true},
		{"quantity short", QuantityMet, 0, 1, 2, false},
		{"quantity met", QuantityMet, 3, 2, 2, true},
		{"manual", ManualOnly, 0, 9, 1, false},
	}
	for _, tt := range tests {
		if got := tt.policy(tt.promised, tt.fulfilled, tt.request); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPolicyByName(t *testing.T) {
	for _, name := range []string{"", PolicyAllPromised, PolicyQuantity, PolicyManual} {
		if _, err := PolicyByName(name); err != nil {
			t.Errorf("PolicyByName(%q): %v", name, err)
		}
	}
	if _, err := PolicyByName("first-come"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestApplyPolicy(t *testing.T) {
	r := &ShelterRequest{Status: RequestInNeed, Quantity: 1, Fulfilled: []string{"c1"}}
	if !r.ApplyPolicy(AllPromisedDelivered) || r.Status != RequestFulfilled {
		t.Errorf("expected request fulfilled, got %s", r.Status)
	}
	// Only in-need requests move.
	r = &ShelterRequest{Status: RequestCancelled, Fulfilled: []string{"c1"}}
	if r.ApplyPolicy(AllPromisedDelivered) {
		t.Error("cancelled request must not become fulfilled")
	}
}

func TestCheckRequestTransition(t *testing.T) {
	if err := CheckRequestTransition(RequestInNeed, RequestCancelled); err != nil {
		t.Errorf("in_need -> cancelled: %v", err)
	}
	if err := CheckRequestTransition(RequestFulfilled, RequestInNeed); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("fulfilled -> in_need: expected ErrInvalidTransition, got %v", err)
	}
}
