package model

import "time"

// EventKind names a domain notification.
type EventKind string

// Event kinds.
const (
	EventVolunteerClaimed          EventKind = "volunteer_claimed"
	EventVolunteerCancelledClaim   EventKind = "volunteer_cancelled_claim"
	EventVolunteerPromised         EventKind = "volunteer_promised"
	EventVolunteerCancelledPromise EventKind = "volunteer_cancelled_promise"
	EventVolunteerFulfilled        EventKind = "volunteer_fulfilled"
	EventVolunteerRemoved          EventKind = "volunteer_removed"
	EventDonationCreated           EventKind = "donation_created"
	EventDonationDeleted           EventKind = "donation_deleted"
	EventDonationStatusUpdated     EventKind = "donation_status_updated"
	EventDonationUpdated           EventKind = "donation_updated"
	EventShelterRequestCancelled   EventKind = "shelter_request_cancelled"
	EventShelterRequestDeleted     EventKind = "shelter_request_deleted"
)

// Event is a notification emitted after a coordinator operation persisted.
type Event struct {
	ID               string    `json:"id"`
	Kind             EventKind `json:"kind"`
	DonationID       string    `json:"donation_id,omitempty"`
	ShelterRequestID string    `json:"shelter_request_id,omitempty"`
	ClaimID          string    `json:"claim_id,omitempty"`
	VolunteerID      int64     `json:"volunteer_id,omitempty"`
	Status           string    `json:"status,omitempty"`
	At               time.Time `json:"at"`
}
