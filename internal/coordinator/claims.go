package coordinator

import (
	"context"
	"fmt"

	"github.com/erazemk/darilo/internal/model"
	"github.com/erazemk/darilo/internal/store"
)

// claimKeys names the lock keys of a claim and everything it points at.
func (c *Coordinator) claimKeys(ctx context.Context, claimID string, extra ...string) func() []string {
	return func() []string {
		keys := append([]string{claimKey(claimID)}, extra...)
		cl, err := c.store.GetClaim(ctx, claimID)
		if err != nil || cl == nil {
			return keys
		}
		keys = append(keys, donationKey(cl.DonationID))
		if l, ok := cl.Shelter(); ok {
			keys = append(keys, requestKey(l.RequestID))
		}
		return keys
	}
}

// Claim reserves a place for a volunteer in a donation's pool. Checks run in
// the order: donation exists, donation is available, no active claim by the
// same volunteer, pool has room.
func (c *Coordinator) Claim(ctx context.Context, actor model.Actor, donationID string) (*model.Claim, error) {
	var out *model.Claim
	err := c.run(ctx, "claim", keysOf(donationKey(donationID)), func(u *unit) error {
		if !actor.Is(model.RoleVolunteer) {
			return forbidden("only volunteers can claim donations")
		}

		d, err := u.e.GetDonation(ctx, donationID)
		if err != nil {
			return err
		}
		if d == nil {
			return notFound("donation", donationID)
		}
		if d.Status != model.DonationAvailable {
			return fmt.Errorf("%w: donation %s is %s, not available", model.ErrInvalidState, d.ID, d.Status)
		}

		existing, err := u.e.FindClaims(ctx, store.ClaimFilter{VolunteerID: actor.ID, DonationID: d.ID, ActiveOnly: true})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("%w: volunteer %d already holds claim %s on donation %s",
				model.ErrDuplicateClaim, actor.ID, existing[0].ID, d.ID)
		}
		if err := d.CheckClaimable(); err != nil {
			return err
		}

		now := c.now()
		cl := model.NewClaim(c.newID(), actor.ID, d.ID, now)
		d.AddClaim(cl.ID)
		d.UpdatedAt = now

		// The donation write is the capacity gate: a concurrent claimer
		// in another process fails its version check here.
		if err := u.e.PutDonation(ctx, d); err != nil {
			return err
		}
		if err := u.e.PutClaim(ctx, cl); err != nil {
			u.compensate(ctx, Task{Kind: TaskRemoveActive, EntityID: d.ID, ClaimID: cl.ID})
			return err
		}

		u.notify(d.DonorID, model.Event{
			Kind:        model.EventVolunteerClaimed,
			DonationID:  d.ID,
			ClaimID:     cl.ID,
			VolunteerID: actor.ID,
			Status:      string(cl.DonorStatus),
		})
		out = cl
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("claim created", "claim", out.ID, "donation", donationID, "volunteer", actor.ID)
	return out, nil
}

// release cancels cl and drops it from its donation's pool and, if it was
// promised, from the request's promised set. It returns the request the
// claim had been promised to.
func (c *Coordinator) release(ctx context.Context, u *unit, cl *model.Claim) (*model.ShelterRequest, error) {
	prior, linked := cl.Shelter()
	if err := cl.Cancel(); err != nil {
		return nil, err
	}
	if err := u.e.PutClaim(ctx, cl); err != nil {
		return nil, err
	}
	if err := u.follow(ctx, Task{Kind: TaskRemoveActive, EntityID: cl.DonationID, ClaimID: cl.ID}); err != nil {
		return nil, err
	}
	if !linked || prior.Status != model.ShelterPromised {
		return nil, nil
	}
	if err := u.follow(ctx, Task{Kind: TaskRemovePromised, EntityID: prior.RequestID, ClaimID: cl.ID}); err != nil {
		return nil, err
	}
	return u.e.GetShelterRequest(ctx, prior.RequestID)
}

// CancelClaim withdraws the volunteer's own claim. The claim is kept, marked
// cancelled, and no longer occupies a place in the pool.
func (c *Coordinator) CancelClaim(ctx context.Context, actor model.Actor, claimID string) error {
	var donationID string
	err := c.run(ctx, "cancel_claim", c.claimKeys(ctx, claimID), func(u *unit) error {
		if !actor.Is(model.RoleVolunteer, model.RoleAdmin) {
			return forbidden("only volunteers can cancel claims")
		}
		cl, err := u.e.GetClaim(ctx, claimID)
		if err != nil {
			return err
		}
		if cl == nil {
			return notFound("claim", claimID)
		}
		if !owns(actor, cl.VolunteerID) {
			return forbidden("claim %s belongs to another volunteer", claimID)
		}

		d, err := u.e.GetDonation(ctx, cl.DonationID)
		if err != nil {
			return err
		}
		r, err := c.release(ctx, u, cl)
		if err != nil {
			return err
		}

		ev := model.Event{
			DonationID:  cl.DonationID,
			ClaimID:     cl.ID,
			VolunteerID: cl.VolunteerID,
			Status:      string(cl.DonorStatus),
		}
		if d != nil {
			ev.Kind = model.EventVolunteerCancelledClaim
			u.notify(d.DonorID, ev)
		}
		if r != nil {
			ev.Kind = model.EventVolunteerCancelledPromise
			ev.ShelterRequestID = r.ID
			u.notify(r.ShelterID, ev)
		}
		donationID = cl.DonationID
		return nil
	})
	if err != nil {
		return err
	}
	c.logger.Info("claim cancelled", "claim", claimID, "donation", donationID, "volunteer", actor.ID)
	return nil
}

// RemoveVolunteer is the donor's version of CancelClaim: the donation owner
// drops a claim from the pool.
func (c *Coordinator) RemoveVolunteer(ctx context.Context, actor model.Actor, donationID, claimID string) error {
	var volunteerID int64
	err := c.run(ctx, "remove_volunteer", c.claimKeys(ctx, claimID, donationKey(donationID)), func(u *unit) error {
		if !actor.Is(model.RoleDonor, model.RoleAdmin) {
			return forbidden("only donors can remove volunteers")
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
		cl, err := u.e.GetClaim(ctx, claimID)
		if err != nil {
			return err
		}
		if cl == nil || cl.DonationID != d.ID {
			return notFound("claim", claimID)
		}

		r, err := c.release(ctx, u, cl)
		if err != nil {
			return err
		}

		ev := model.Event{
			Kind:        model.EventVolunteerRemoved,
			DonationID:  d.ID,
			ClaimID:     cl.ID,
			VolunteerID: cl.VolunteerID,
			Status:      string(cl.DonorStatus),
		}
		u.notify(cl.VolunteerID, ev)
		if r != nil {
			ev.Kind = model.EventVolunteerCancelledPromise
			ev.ShelterRequestID = r.ID
			u.notify(r.ShelterID, ev)
		}
		volunteerID = cl.VolunteerID
		return nil
	})
	if err != nil {
		return err
	}
	c.logger.Info("volunteer removed", "claim", claimID, "donation", donationID, "volunteer", volunteerID, "by", actor.ID)
	return nil
}

// Promise links the volunteer's claim to a shelter request that is still in
// need.
func (c *Coordinator) Promise(ctx context.Context, actor model.Actor, claimID, requestID string) (*model.Claim, error) {
	var out *model.Claim
	err := c.run(ctx, "promise", c.claimKeys(ctx, claimID, requestKey(requestID)), func(u *unit) error {
		if !actor.Is(model.RoleVolunteer) {
			return forbidden("only volunteers can promise deliveries")
		}
		cl, err := u.e.GetClaim(ctx, claimID)
		if err != nil {
			return err
		}
		if cl == nil {
			return notFound("claim", claimID)
		}
		if cl.VolunteerID != actor.ID {
			return forbidden("claim %s belongs to another volunteer", claimID)
		}
		r, err := u.e.GetShelterRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if r == nil {
			return notFound("shelter request", requestID)
		}
		if r.Status != model.RequestInNeed {
			return fmt.Errorf("%w: shelter request %s is %s, not in_need", model.ErrInvalidState, r.ID, r.Status)
		}

		if err := cl.Promise(r.ID); err != nil {
			return err
		}
		if err := u.e.PutClaim(ctx, cl); err != nil {
			return err
		}
		if err := u.follow(ctx, Task{Kind: TaskAddPromised, EntityID: r.ID, ClaimID: cl.ID}); err != nil {
			return err
		}

		u.notify(r.ShelterID, model.Event{
			Kind:             model.EventVolunteerPromised,
			DonationID:       cl.DonationID,
			ShelterRequestID: r.ID,
			ClaimID:          cl.ID,
			VolunteerID:      cl.VolunteerID,
			Status:           string(model.ShelterPromised),
		})
		out = cl
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("delivery promised", "claim", claimID, "request", requestID, "volunteer", actor.ID)
	return out, nil
}

// CancelPromise unlinks a promised claim from its request. Either the
// volunteer or the shelter owning the request may do it; a delivered
// promise cannot be withdrawn.
func (c *Coordinator) CancelPromise(ctx context.Context, actor model.Actor, claimID string) error {
	var requestID string
	err := c.run(ctx, "cancel_promise", c.claimKeys(ctx, claimID), func(u *unit) error {
		if !actor.Is(model.RoleVolunteer, model.RoleShelter, model.RoleAdmin) {
			return forbidden("only volunteers and shelters can cancel promises")
		}
		cl, err := u.e.GetClaim(ctx, claimID)
		if err != nil {
			return err
		}
		if cl == nil {
			return notFound("claim", claimID)
		}

		var r *model.ShelterRequest
		l, linked := cl.Shelter()
		if linked {
			if r, err = u.e.GetShelterRequest(ctx, l.RequestID); err != nil {
				return err
			}
		}
		byVolunteer := actor.Role == model.RoleVolunteer && cl.VolunteerID == actor.ID
		byShelter := actor.Is(model.RoleShelter, model.RoleAdmin) && r != nil && owns(actor, r.ShelterID)
		if !byVolunteer && !byShelter {
			return forbidden("claim %s is not yours to unlink", claimID)
		}

		if err := cl.Unpromise(); err != nil {
			return err
		}
		if err := u.e.PutClaim(ctx, cl); err != nil {
			return err
		}
		if err := u.follow(ctx, Task{Kind: TaskRemovePromised, EntityID: l.RequestID, ClaimID: cl.ID}); err != nil {
			return err
		}

		ev := model.Event{
			Kind:             model.EventVolunteerCancelledPromise,
			DonationID:       cl.DonationID,
			ShelterRequestID: l.RequestID,
			ClaimID:          cl.ID,
			VolunteerID:      cl.VolunteerID,
			Status:           string(cl.DonorStatus),
		}
		if byVolunteer && r != nil {
			u.notify(r.ShelterID, ev)
		} else {
			u.notify(cl.VolunteerID, ev)
		}
		requestID = l.RequestID
		return nil
	})
	if err != nil {
		return err
	}
	c.logger.Info("promise cancelled", "claim", claimID, "request", requestID, "by", actor.ID)
	return nil
}

// Fulfill records that a promised claim was delivered to the shelter. The
// claim's donor and shelter sides move together.
func (c *Coordinator) Fulfill(ctx context.Context, actor model.Actor, claimID string) (*model.Claim, error) {
	var out *model.Claim
	err := c.run(ctx, "fulfill", c.claimKeys(ctx, claimID), func(u *unit) error {
		if !actor.Is(model.RoleShelter, model.RoleAdmin) {
			return forbidden("only shelters can confirm fulfilment")
		}
		cl, err := u.e.GetClaim(ctx, claimID)
		if err != nil {
			return err
		}
		if cl == nil {
			return notFound("claim", claimID)
		}
		l, linked := cl.Shelter()
		if !linked {
			return fmt.Errorf("%w: claim %s is not promised to a shelter", model.ErrInvalidState, cl.ID)
		}
		r, err := u.e.GetShelterRequest(ctx, l.RequestID)
		if err != nil {
			return err
		}
		if r == nil {
			return notFound("shelter request", l.RequestID)
		}
		if !owns(actor, r.ShelterID) {
			return forbidden("shelter request %s belongs to another shelter", r.ID)
		}

		if err := cl.Fulfill(); err != nil {
			return err
		}
		if err := cl.CheckConsistency(); err != nil {
			return fmt.Errorf("%w: %v", model.ErrInvalidState, err)
		}
		if err := u.e.PutClaim(ctx, cl); err != nil {
			return err
		}
		if err := u.follow(ctx, Task{Kind: TaskMarkFulfilled, EntityID: r.ID, ClaimID: cl.ID}); err != nil {
			return err
		}

		ev := model.Event{
			Kind:             model.EventVolunteerFulfilled,
			DonationID:       cl.DonationID,
			ShelterRequestID: r.ID,
			ClaimID:          cl.ID,
			VolunteerID:      cl.VolunteerID,
			Status:           string(model.ShelterFulfilled),
		}
		u.notify(cl.VolunteerID, ev)
		if d, err := u.e.GetDonation(ctx, cl.DonationID); err == nil && d != nil {
			u.notify(d.DonorID, ev)
		}
		out = cl
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("delivery fulfilled", "claim", claimID, "shelter", actor.ID)
	return out, nil
}
