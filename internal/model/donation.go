package model

import (
	"fmt"
	"slices"
	"time"
)

// DonationStatus is a FoodDonation lifecycle state.
type DonationStatus string

// Donation statuses.
const (
	DonationAvailable DonationStatus = "available"
	DonationClaimed   DonationStatus = "claimed"
	DonationInTransit DonationStatus = "in_transit"
	DonationDelivered DonationStatus = "delivered"
	DonationConfirmed DonationStatus = "confirmed"
	DonationClosed    DonationStatus = "closed"
	DonationCanceled  DonationStatus = "canceled"
)

// donationTransitions lists the allowed targets for each status. Terminal
// statuses map to an empty set.
var donationTransitions = map[DonationStatus][]DonationStatus{
	DonationAvailable: {DonationClaimed, DonationCanceled, DonationClosed},
	DonationClaimed:   {DonationInTransit, DonationCanceled, DonationClosed},
	DonationInTransit: {DonationDelivered, DonationClosed},
	DonationDelivered: {DonationConfirmed, DonationClosed},
	DonationConfirmed: {},
	DonationClosed:    {},
	DonationCanceled:  {},
}

// Valid reports whether s is a known donation status.
func (s DonationStatus) Valid() bool {
	_, ok := donationTransitions[s]
	return ok
}

// Terminal reports whether no further transitions are possible from s.
func (s DonationStatus) Terminal() bool {
	return s.Valid() && len(donationTransitions[s]) == 0
}

// CheckDonationTransition returns ErrInvalidTransition unless from -> to is
// an edge of the donation lifecycle.
func CheckDonationTransition(from, to DonationStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown donation status %q", ErrInvalidTransition, to)
	}
	if !slices.Contains(donationTransitions[from], to) {
		return fmt.Errorf("%w: donation cannot move from %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Donation is surplus food posted by a donor.
type Donation struct {
	ID            string         `json:"id"`
	DonorID       int64          `json:"donor_id"`
	FoodType      string         `json:"food_type"`
	Description   string         `json:"description,omitempty"`
	Quantity      int            `json:"quantity"`
	PickupAddress string         `json:"pickup_address"`
	ExpiresAt     time.Time      `json:"expires_at"`
	PoolSize      int            `json:"volunteer_pool_size"`
	Status        DonationStatus `json:"status"`
	ActiveClaims  []string       `json:"active_claims"`
	ConfirmedBy   []int64        `json:"confirmed_by"`
	Version       int64          `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// HasCapacity reports whether another volunteer may join the pool.
func (d *Donation) HasCapacity() bool {
	return len(d.ActiveClaims) < d.PoolSize
}

// CheckClaimable verifies the donation accepts a new claim: it must be
// available and its volunteer pool must not be full.
func (d *Donation) CheckClaimable() error {
	if d.Status != DonationAvailable {
		return fmt.Errorf("%w: donation %s is %s, not available", ErrInvalidState, d.ID, d.Status)
	}
	if !d.HasCapacity() {
		return fmt.Errorf("%w: volunteer pool is full (%d/%d)", ErrCapacityExceeded, len(d.ActiveClaims), d.PoolSize)
	}
	return nil
}

// HasClaim reports whether claimID is in the active-claims set.
func (d *Donation) HasClaim(claimID string) bool {
	return slices.Contains(d.ActiveClaims, claimID)
}

// AddClaim appends claimID to the active-claims set. It reports false if the
// id was already present.
func (d *Donation) AddClaim(claimID string) bool {
	if d.HasClaim(claimID) {
		return false
	}
	d.ActiveClaims = append(d.ActiveClaims, claimID)
	return true
}

// RemoveClaim drops claimID from the active-claims set. It reports false if
// the id was not present.
func (d *Donation) RemoveClaim(claimID string) bool {
	i := slices.Index(d.ActiveClaims, claimID)
	if i < 0 {
		return false
	}
	d.ActiveClaims = slices.Delete(d.ActiveClaims, i, i+1)
	return true
}

// Validate checks the fields a donor supplies when posting a donation.
func (d *Donation) Validate() error {
	switch {
	case d.FoodType == "":
		return fmt.Errorf("%w: food_type required", ErrInvalidInput)
	case d.Quantity < 1:
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	case d.PoolSize < 1:
		return fmt.Errorf("%w: volunteer_pool_size must be at least 1", ErrInvalidInput)
	case d.PickupAddress == "":
		return fmt.Errorf("%w: pickup_address required", ErrInvalidInput)
	case d.ExpiresAt.IsZero():
		return fmt.Errorf("%w: expires_at required", ErrInvalidInput)
	}
	return nil
}
