package model

import (
	"fmt"
	"slices"
	"time"
)

// RequestStatus is a ShelterRequest lifecycle state.
type RequestStatus string

// Shelter request statuses.
const (
	RequestInNeed    RequestStatus = "in_need"
	RequestFulfilled RequestStatus = "fulfilled"
	RequestCancelled RequestStatus = "cancelled"
)

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestInNeed:    {RequestFulfilled, RequestCancelled},
	RequestFulfilled: {},
	RequestCancelled: {},
}

// Valid reports whether s is a known request status.
func (s RequestStatus) Valid() bool {
	_, ok := requestTransitions[s]
	return ok
}

// CheckRequestTransition returns ErrInvalidTransition unless from -> to is an
// edge of the shelter request lifecycle.
func CheckRequestTransition(from, to RequestStatus) error {
	if !slices.Contains(requestTransitions[from], to) {
		return fmt.Errorf("%w: shelter request cannot move from %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// ShelterRequest is a shelter's request for food.
type ShelterRequest struct {
	ID        string        `json:"id"`
	ShelterID int64         `json:"shelter_id"`
	FoodType  string        `json:"food_type"`
	Quantity  int           `json:"quantity"`
	Status    RequestStatus `json:"status"`
	Promised  []string      `json:"promised_volunteers"`
	Fulfilled []string      `json:"fulfilled_volunteers"`
	Version   int64         `json:"version"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Validate checks the fields a shelter supplies when posting a request.
func (r *ShelterRequest) Validate() error {
	if r.FoodType == "" {
		return fmt.Errorf("%w: food_type required", ErrInvalidInput)
	}
	if r.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}
	return nil
}

// AddPromise adds claimID to the promised set unless the claim is already
// tracked by the request. It reports whether r changed.
func (r *ShelterRequest) AddPromise(claimID string) bool {
	if slices.Contains(r.Promised, claimID) || slices.Contains(r.Fulfilled, claimID) {
		return false
	}
	r.Promised = append(r.Promised, claimID)
	return true
}

// RemovePromise drops claimID from the promised set. It reports whether r
// changed.
func (r *ShelterRequest) RemovePromise(claimID string) bool {
	i := slices.Index(r.Promised, claimID)
	if i < 0 {
		return false
	}
	r.Promised = slices.Delete(r.Promised, i, i+1)
	return true
}

// MarkFulfilled moves claimID from the promised set to the fulfilled set, so
// the id is never in both. It reports whether r changed.
func (r *ShelterRequest) MarkFulfilled(claimID string) bool {
	removed := r.RemovePromise(claimID)
	if slices.Contains(r.Fulfilled, claimID) {
		return removed
	}
	r.Fulfilled = append(r.Fulfilled, claimID)
	return true
}

// ApplyPolicy moves an in-need request to fulfilled when policy says its
// demand is met. It reports whether the status changed.
func (r *ShelterRequest) ApplyPolicy(policy FulfillmentPolicy) bool {
	if r.Status != RequestInNeed || policy == nil {
		return false
	}
	if !policy(len(r.Promised), len(r.Fulfilled), r.Quantity) {
		return false
	}
	r.Status = RequestFulfilled
	return true
}
