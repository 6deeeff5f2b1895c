package coordinator

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/erazemk/darilo/internal/model"
	"github.com/erazemk/darilo/internal/store"
)

// donationKeys names the lock keys of a donation, its pooled claims and the
// requests those claims are promised to.
func (c *Coordinator) donationKeys(ctx context.Context, donationID string) func() []string {
	return func() []string {
		keys := []string{donationKey(donationID)}
		claims, err := c.store.FindClaims(ctx, store.ClaimFilter{DonationID: donationID, ActiveOnly: true})
		if err != nil {
			return keys
		}
		for _, cl := range claims {
			keys = append(keys, claimKey(cl.ID))
			if l, ok := cl.Shelter(); ok {
				keys = append(keys, requestKey(l.RequestID))
			}
		}
		return keys
	}
}

// participants lists who is involved in a donation: its donor, volunteers
// holding an active claim, and shelters owning a request one of those claims
// is linked to.
type participants struct {
	donor      int64
	volunteers []int64
	shelters   []int64
}

func (p participants) all() []int64 {
	ids := append([]int64{p.donor}, p.volunteers...)
	return append(ids, p.shelters...)
}

func (p participants) includes(userID int64) bool {
	return slices.Contains(p.all(), userID)
}

func participantsOf(ctx context.Context, e store.Entities, d *model.Donation) (participants, error) {
	p := participants{donor: d.DonorID}
	claims, err := e.FindClaims(ctx, store.ClaimFilter{DonationID: d.ID, ActiveOnly: true})
	if err != nil {
		return p, err
	}
	for _, cl := range claims {
		if !slices.Contains(p.volunteers, cl.VolunteerID) {
			p.volunteers = append(p.volunteers, cl.VolunteerID)
		}
		l, ok := cl.Shelter()
		if !ok {
			continue
		}
		r, err := e.GetShelterRequest(ctx, l.RequestID)
		if err != nil {
			return p, err
		}
		if r != nil && !slices.Contains(p.shelters, r.ShelterID) {
			p.shelters = append(p.shelters, r.ShelterID)
		}
	}
	return p, nil
}

// CreateDonation posts a new available donation owned by the donor.
func (c *Coordinator) CreateDonation(ctx context.Context, actor model.Actor, in model.Donation) (*model.Donation, error) {
	id := c.newID()
	var out *model.Donation
	err := c.run(ctx, "create_donation", keysOf(donationKey(id)), func(u *unit) error {
		if !actor.Is(model.RoleDonor) {
			return forbidden("only donors can post donations")
		}
		now := c.now()
		d := in
		d.ID = id
		d.DonorID = actor.ID
		d.Status = model.DonationAvailable
		d.ActiveClaims = nil
		d.ConfirmedBy = nil
		d.Version = 0
		d.CreatedAt = now
		d.UpdatedAt = now
		if err := d.Validate(); err != nil {
			return err
		}
		if !d.ExpiresAt.After(now) {
			return fmt.Errorf("%w: expires_at must be in the future", model.ErrInvalidInput)
		}
		if err := u.e.PutDonation(ctx, &d); err != nil {
			return err
		}
		u.broadcast(model.Event{
			Kind:       model.EventDonationCreated,
			DonationID: d.ID,
			Status:     string(d.Status),
		})
		out = &d
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("donation created", "donation", out.ID, "donor", actor.ID, "food_type", out.FoodType, "pool_size", out.PoolSize)
	return out, nil
}

// DonationUpdate holds the fields a donor may change on a posted donation.
// Nil fields are left as they are.
type DonationUpdate struct {
	FoodType      *string
	Description   *string
	Quantity      *int
	PickupAddress *string
	ExpiresAt     *time.Time
	PoolSize      *int
}

// UpdateDonation edits a donation that has not reached a terminal status.
// The pool cannot shrink below the claims it already holds.
func (c *Coordinator) UpdateDonation(ctx context.Context, actor model.Actor, donationID string, in DonationUpdate) (*model.Donation, error) {
	var out *model.Donation
	err := c.run(ctx, "update_donation", keysOf(donationKey(donationID)), func(u *unit) error {
		if !actor.Is(model.RoleDonor, model.RoleAdmin) {
			return forbidden("only donors can edit donations")
		}
		d, err := u.e.GetDonation(ctx, donationID)
		if err != nil {
			return err
		}
		if d == nil {
			return notFound("donation", donationID)
		}
		if !owns(actor, d.DonorID) {
			return forbidden("donation %s belongs to another donor", donationID)
		}
		if d.Status.Terminal() {
			return fmt.Errorf("%w: donation %s is %s", model.ErrInvalidState, d.ID, d.Status)
		}

		now := c.now()
		if in.FoodType != nil {
			d.FoodType = *in.FoodType
		}
		if in.Description != nil {
			d.Description = *in.Description
		}
		if in.Quantity != nil {
			d.Quantity = *in.Quantity
		}
		if in.PickupAddress != nil {
			d.PickupAddress = *in.PickupAddress
		}
		if in.ExpiresAt != nil {
			if !in.ExpiresAt.After(now) {
				return fmt.Errorf("%w: expires_at must be in the future", model.ErrInvalidInput)
			}
			d.ExpiresAt = *in.ExpiresAt
		}
		if in.PoolSize != nil {
			d.PoolSize = *in.PoolSize
		}
		if err := d.Validate(); err != nil {
			return err
		}
		if d.PoolSize < len(d.ActiveClaims) {
			return fmt.Errorf("%w: volunteer_pool_size %d is below the %d active claims",
				model.ErrInvalidState, d.PoolSize, len(d.ActiveClaims))
		}

		p, err := participantsOf(ctx, u.e, d)
		if err != nil {
			return err
		}
		d.UpdatedAt = now
		if err := u.e.PutDonation(ctx, d); err != nil {
			return err
		}
		for _, id := range p.volunteers {
			u.notify(id, model.Event{
				Kind:       model.EventDonationUpdated,
				DonationID: d.ID,
				Status:     string(d.Status),
			})
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("donation updated", "donation", donationID, "by", actor.ID, "pool_size", out.PoolSize)
	return out, nil
}

// releaseAll cancels every claim in the donation's pool that was not yet
// donated, along with its promise, and prunes ids of claims that are gone or
// already cancelled. Claims are written before the donation.
func (c *Coordinator) releaseAll(ctx context.Context, u *unit, d *model.Donation) error {
	for _, id := range slices.Clone(d.ActiveClaims) {
		cl, err := u.e.GetClaim(ctx, id)
		if err != nil {
			return err
		}
		if cl == nil || !cl.Active() {
			d.RemoveClaim(id)
			continue
		}
		if cl.DonorStatus == model.DonorDonated {
			continue
		}
		prior, linked := cl.Shelter()
		if err := cl.Cancel(); err != nil {
			return err
		}
		if err := u.e.PutClaim(ctx, cl); err != nil {
			return err
		}
		d.RemoveClaim(id)
		if linked && prior.Status == model.ShelterPromised {
			if err := u.follow(ctx, Task{Kind: TaskRemovePromised, EntityID: prior.RequestID, ClaimID: id}); err != nil {
				return err
			}
		}
	}
	return nil
}

// UpdateDonationStatus moves a donation through its state machine. The
// donor (or an admin) may make any allowed move; volunteers holding an
// active claim may report in_transit and delivered. Moving to confirmed
// records a confirmation instead, see ConfirmDelivery. Moving to canceled or
// closed releases every claim not yet donated.
func (c *Coordinator) UpdateDonationStatus(ctx context.Context, actor model.Actor, donationID string, status model.DonationStatus) (*model.Donation, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown donation status %q", model.ErrInvalidInput, status)
	}
	if status == model.DonationConfirmed {
		return c.ConfirmDelivery(ctx, actor, donationID)
	}

	var (
		out  *model.Donation
		from model.DonationStatus
	)
	err := c.run(ctx, "update_donation_status", c.donationKeys(ctx, donationID), func(u *unit) error {
		d, err := u.e.GetDonation(ctx, donationID)
		if err != nil {
			return err
		}
		if d == nil {
			return notFound("donation", donationID)
		}
		p, err := participantsOf(ctx, u.e, d)
		if err != nil {
			return err
		}
		switch {
		case owns(actor, d.DonorID):
		case actor.Role == model.RoleVolunteer && slices.Contains(p.volunteers, actor.ID) &&
			(status == model.DonationInTransit || status == model.DonationDelivered):
		default:
			return forbidden("cannot move donation %s to %s", d.ID, status)
		}

		if err := model.CheckDonationTransition(d.Status, status); err != nil {
			return err
		}
		if status == model.DonationClaimed && len(d.ActiveClaims) == 0 {
			return fmt.Errorf("%w: donation %s has no active claims", model.ErrInvalidState, d.ID)
		}
		if status == model.DonationCanceled || status == model.DonationClosed {
			if err := c.releaseAll(ctx, u, d); err != nil {
				return err
			}
		}

		from = d.Status
		d.Status = status
		d.UpdatedAt = c.now()
		if err := u.e.PutDonation(ctx, d); err != nil {
			return err
		}
		for _, id := range p.all() {
			u.notify(id, model.Event{
				Kind:       model.EventDonationStatusUpdated,
				DonationID: d.ID,
				Status:     string(d.Status),
			})
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("donation status updated", "donation", donationID, "from", from, "to", status, "by", actor.ID)
	return out, nil
}

// ConfirmDelivery records that actor saw a delivered donation arrive. Once
// two distinct participants have confirmed, the donation is confirmed.
// Repeated confirmations and confirmations of an already confirmed donation
// change nothing.
func (c *Coordinator) ConfirmDelivery(ctx context.Context, actor model.Actor, donationID string) (*model.Donation, error) {
	var (
		out     *model.Donation
		changed bool
	)
	err := c.run(ctx, "confirm_delivery", keysOf(donationKey(donationID)), func(u *unit) error {
		d, err := u.e.GetDonation(ctx, donationID)
		if err != nil {
			return err
		}
		if d == nil {
			return notFound("donation", donationID)
		}
		p, err := participantsOf(ctx, u.e, d)
		if err != nil {
			return err
		}
		if !p.includes(actor.ID) {
			return forbidden("user %d is not a participant of donation %s", actor.ID, d.ID)
		}

		changed, err = model.ConfirmDelivery(d, actor.ID)
		if err != nil {
			return err
		}
		out = d
		if !changed {
			return nil
		}
		d.UpdatedAt = c.now()
		if err := u.e.PutDonation(ctx, d); err != nil {
			return err
		}
		if d.Status == model.DonationConfirmed {
			for _, id := range p.all() {
				u.notify(id, model.Event{
					Kind:       model.EventDonationStatusUpdated,
					DonationID: d.ID,
					Status:     string(d.Status),
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		c.logger.Info("delivery confirmed", "donation", donationID, "by", actor.ID,
			"confirmations", len(out.ConfirmedBy), "status", out.Status)
	}
	return out, nil
}

// DeleteDonation removes a donation nobody ever claimed. A donation with
// claim history is closed instead, releasing the claims not yet donated. It
// reports whether the donation was removed outright.
func (c *Coordinator) DeleteDonation(ctx context.Context, actor model.Actor, donationID string) (bool, error) {
	var hard bool
	err := c.run(ctx, "delete_donation", c.donationKeys(ctx, donationID), func(u *unit) error {
		hard = false
		d, err := u.e.GetDonation(ctx, donationID)
		if err != nil {
			return err
		}
		if d == nil {
			return notFound("donation", donationID)
		}
		if !owns(actor, d.DonorID) {
			return forbidden("donation %s belongs to another donor", donationID)
		}

		history, err := u.e.FindClaims(ctx, store.ClaimFilter{DonationID: d.ID})
		if err != nil {
			return err
		}
		ev := model.Event{Kind: model.EventDonationDeleted, DonationID: d.ID}

		if len(history) == 0 {
			if err := u.e.DeleteDonation(ctx, d.ID); err != nil {
				return err
			}
			hard = true
			u.broadcast(ev)
			return nil
		}

		if d.Status == model.DonationClosed {
			return nil
		}
		if err := model.CheckDonationTransition(d.Status, model.DonationClosed); err != nil {
			return err
		}
		p, err := participantsOf(ctx, u.e, d)
		if err != nil {
			return err
		}
		if err := c.releaseAll(ctx, u, d); err != nil {
			return err
		}
		d.Status = model.DonationClosed
		d.UpdatedAt = c.now()
		if err := u.e.PutDonation(ctx, d); err != nil {
			return err
		}
		ev.Status = string(d.Status)
		u.broadcast(ev)
		for _, id := range p.volunteers {
			u.notify(id, model.Event{Kind: model.EventDonationStatusUpdated, DonationID: d.ID, Status: ev.Status})
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	c.logger.Info("donation deleted", "donation", donationID, "by", actor.ID, "hard", hard)
	return hard, nil
}
