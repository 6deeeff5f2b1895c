package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DonorSide is the donation-facing status of a claim.
type DonorSide string

// Donor-side statuses.
const (
	DonorClaimed   DonorSide = "claimed"
	DonorDonated   DonorSide = "donated"
	DonorCancelled DonorSide = "cancelled"
)

// ShelterSide is the shelter-facing status of a claim linked to a request.
type ShelterSide string

// Shelter-side statuses.
const (
	ShelterPromised  ShelterSide = "promised"
	ShelterFulfilled ShelterSide = "fulfilled"
	ShelterCancelled ShelterSide = "cancelled"
)

// Linkage says whether a claim has been promised to a shelter request. It is
// either Unlinked or LinkedToShelter.
type Linkage interface {
	linkage()
}

// Unlinked is the linkage of a claim not yet promised to any shelter.
type Unlinked struct{}

// LinkedToShelter is the linkage of a claim promised to a shelter request.
type LinkedToShelter struct {
	RequestID string
	Status    ShelterSide
}

func (Unlinked) linkage()        {}
func (LinkedToShelter) linkage() {}

// Claim links one volunteer to one donation and, once promised, to one
// shelter request.
type Claim struct {
	ID          string
	VolunteerID int64
	DonationID  string
	DonorStatus DonorSide
	Link        Linkage
	ClaimedAt   time.Time
	Version     int64
}

// NewClaim returns a fresh, unlinked claim.
func NewClaim(id string, volunteerID int64, donationID string, at time.Time) *Claim {
	return &Claim{
		ID:          id,
		VolunteerID: volunteerID,
		DonationID:  donationID,
		DonorStatus: DonorClaimed,
		Link:        Unlinked{},
		ClaimedAt:   at,
	}
}

// Shelter returns the shelter linkage, if any.
func (c *Claim) Shelter() (LinkedToShelter, bool) {
	l, ok := c.Link.(LinkedToShelter)
	return l, ok
}

// Active reports whether the claim still occupies a slot in its donation's
// volunteer pool.
func (c *Claim) Active() bool {
	return c.DonorStatus != DonorCancelled
}

// Promise links a claimed, unlinked claim to a shelter request.
func (c *Claim) Promise(requestID string) error {
	if l, ok := c.Shelter(); ok && l.Status != ShelterCancelled {
		return fmt.Errorf("%w: claim %s is already %s to request %s", ErrAlreadyPromised, c.ID, l.Status, l.RequestID)
	}
	if c.DonorStatus != DonorClaimed {
		return fmt.Errorf("%w: claim %s is %s and cannot be promised", ErrAlreadyPromised, c.ID, c.DonorStatus)
	}
	c.Link = LinkedToShelter{RequestID: requestID, Status: ShelterPromised}
	return nil
}

// Unpromise removes an outstanding promise, leaving the claim unlinked.
func (c *Claim) Unpromise() error {
	l, ok := c.Shelter()
	if !ok || l.Status == ShelterCancelled {
		return fmt.Errorf("%w: claim %s is not promised to a shelter", ErrInvalidState, c.ID)
	}
	if l.Status == ShelterFulfilled {
		return fmt.Errorf("%w: claim %s was already delivered to request %s", ErrCannotRemoveFulfilled, c.ID, l.RequestID)
	}
	c.Link = Unlinked{}
	return nil
}

// Fulfill marks a promised claim as delivered. Both sides move together.
func (c *Claim) Fulfill() error {
	l, ok := c.Shelter()
	if !ok {
		return fmt.Errorf("%w: claim %s is not promised to a shelter", ErrInvalidState, c.ID)
	}
	if l.Status != ShelterPromised {
		return fmt.Errorf("%w: claim %s cannot move from %s to %s", ErrInvalidTransition, c.ID, l.Status, ShelterFulfilled)
	}
	if c.DonorStatus != DonorClaimed {
		return fmt.Errorf("%w: claim %s cannot move from %s to %s", ErrInvalidTransition, c.ID, c.DonorStatus, DonorDonated)
	}
	c.Link = LinkedToShelter{RequestID: l.RequestID, Status: ShelterFulfilled}
	c.DonorStatus = DonorDonated
	return nil
}

// Cancel withdraws the claim. A delivered claim cannot be withdrawn.
func (c *Claim) Cancel() error {
	switch c.DonorStatus {
	case DonorDonated:
		return fmt.Errorf("%w: claim %s was already donated", ErrCannotRemoveFulfilled, c.ID)
	case DonorCancelled:
		return fmt.Errorf("%w: claim %s is already cancelled", ErrInvalidState, c.ID)
	}
	c.DonorStatus = DonorCancelled
	if l, ok := c.Shelter(); ok {
		c.Link = LinkedToShelter{RequestID: l.RequestID, Status: ShelterCancelled}
	}
	return nil
}

// CheckConsistency verifies that the shelter side is only fulfilled when the
// donor side is donated.
func (c *Claim) CheckConsistency() error {
	if l, ok := c.Shelter(); ok && l.Status == ShelterFulfilled && c.DonorStatus != DonorDonated {
		return fmt.Errorf("claim %s is fulfilled for the shelter but %s for the donor", c.ID, c.DonorStatus)
	}
	return nil
}

type claimJSON struct {
	ID            string      `json:"id"`
	VolunteerID   int64       `json:"volunteer_id"`
	DonationID    string      `json:"donation_id"`
	RequestID     string      `json:"shelter_request_id,omitempty"`
	DonorStatus   DonorSide   `json:"donor_request_status"`
	ShelterStatus ShelterSide `json:"shelter_request_status,omitempty"`
	ClaimedAt     time.Time   `json:"claimed_at"`
	Version       int64       `json:"version"`
}

// MarshalJSON flattens the linkage into the shelter_request_* fields.
func (c Claim) MarshalJSON() ([]byte, error) {
	out := claimJSON{
		ID:          c.ID,
		VolunteerID: c.VolunteerID,
		DonationID:  c.DonationID,
		DonorStatus: c.DonorStatus,
		ClaimedAt:   c.ClaimedAt,
		Version:     c.Version,
	}
	if l, ok := c.Shelter(); ok {
		out.RequestID = l.RequestID
		out.ShelterStatus = l.Status
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the linkage from the shelter_request_* fields.
func (c *Claim) UnmarshalJSON(data []byte) error {
	var in claimJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*c = Claim{
		ID:          in.ID,
		VolunteerID: in.VolunteerID,
		DonationID:  in.DonationID,
		DonorStatus: in.DonorStatus,
		Link:        Unlinked{},
		ClaimedAt:   in.ClaimedAt,
		Version:     in.Version,
	}
	if in.RequestID != "" {
		c.Link = LinkedToShelter{RequestID: in.RequestID, Status: in.ShelterStatus}
	}
	return nil
}
