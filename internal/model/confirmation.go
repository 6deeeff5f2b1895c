package model

import (
	"fmt"
	"slices"
)

// ConfirmationQuorum is the number of distinct actors that must confirm a
// delivery before the donation becomes confirmed.
const ConfirmationQuorum = 2

// ConfirmDelivery records actorID as a delivery confirmer of d. Once the
// quorum of distinct confirmers is reached the donation moves to confirmed.
//
// Repeated confirmations by the same actor, and confirmations after the
// donation is already confirmed, are no-ops. The returned bool reports
// whether d was modified.
func ConfirmDelivery(d *Donation, actorID int64) (bool, error) {
	switch d.Status {
	case DonationConfirmed:
		return false, nil
	case DonationDelivered:
	default:
		return false, fmt.Errorf("%w: donation cannot move from %s to %s", ErrInvalidTransition, d.Status, DonationConfirmed)
	}

	if slices.Contains(d.ConfirmedBy, actorID) {
		return false, nil
	}
	d.ConfirmedBy = append(d.ConfirmedBy, actorID)
	if len(d.ConfirmedBy) >= ConfirmationQuorum {
		d.Status = DonationConfirmed
	}
	return true, nil
}
