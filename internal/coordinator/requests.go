package coordinator

import (
	"context"
	"slices"

	"github.com/erazemk/darilo/internal/model"
	"github.com/erazemk/darilo/internal/store"
)

// requestKeys names the lock keys of a request, every claim linked to it and
// the donations of those claims.
func (c *Coordinator) requestKeys(ctx context.Context, requestID string) func() []string {
	return func() []string {
		keys := []string{requestKey(requestID)}
		claims, err := c.store.FindClaims(ctx, store.ClaimFilter{ShelterRequestID: requestID})
		if err != nil {
			return keys
		}
		for _, cl := range claims {
			keys = append(keys, claimKey(cl.ID), donationKey(cl.DonationID))
		}
		return keys
	}
}

// CreateShelterRequest posts a new request owned by the shelter.
func (c *Coordinator) CreateShelterRequest(ctx context.Context, actor model.Actor, in model.ShelterRequest) (*model.ShelterRequest, error) {
	id := c.newID()
	var out *model.ShelterRequest
	err := c.run(ctx, "create_shelter_request", keysOf(requestKey(id)), func(u *unit) error {
		if !actor.Is(model.RoleShelter) {
			return forbidden("only shelters can post requests")
		}
		now := c.now()
		r := in
		r.ID = id
		r.ShelterID = actor.ID
		r.Status = model.RequestInNeed
		r.Promised = nil
		r.Fulfilled = nil
		r.Version = 0
		r.CreatedAt = now
		r.UpdatedAt = now
		if err := r.Validate(); err != nil {
			return err
		}
		if err := u.e.PutShelterRequest(ctx, &r); err != nil {
			return err
		}
		out = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("shelter request created", "request", out.ID, "shelter", actor.ID, "food_type", out.FoodType, "quantity", out.Quantity)
	return out, nil
}

// CompleteShelterRequest marks a request fulfilled by hand. It is how
// requests finish under the manual policy.
func (c *Coordinator) CompleteShelterRequest(ctx context.Context, actor model.Actor, requestID string) (*model.ShelterRequest, error) {
	var out *model.ShelterRequest
	err := c.run(ctx, "complete_shelter_request", keysOf(requestKey(requestID)), func(u *unit) error {
		r, err := u.e.GetShelterRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if r == nil {
			return notFound("shelter request", requestID)
		}
		if !owns(actor, r.ShelterID) {
			return forbidden("shelter request %s belongs to another shelter", requestID)
		}
		if err := model.CheckRequestTransition(r.Status, model.RequestFulfilled); err != nil {
			return err
		}
		r.Status = model.RequestFulfilled
		r.UpdatedAt = c.now()
		if err := u.e.PutShelterRequest(ctx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("shelter request completed", "request", requestID, "by", actor.ID)
	return out, nil
}

// CancelShelterRequest withdraws a request still in need. Outstanding
// promises are unlinked so their volunteers can promise elsewhere;
// fulfilled deliveries stay recorded.
func (c *Coordinator) CancelShelterRequest(ctx context.Context, actor model.Actor, requestID string) (*model.ShelterRequest, error) {
	var out *model.ShelterRequest
	err := c.run(ctx, "cancel_shelter_request", c.requestKeys(ctx, requestID), func(u *unit) error {
		r, err := u.e.GetShelterRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if r == nil {
			return notFound("shelter request", requestID)
		}
		if !owns(actor, r.ShelterID) {
			return forbidden("shelter request %s belongs to another shelter", requestID)
		}
		if err := model.CheckRequestTransition(r.Status, model.RequestCancelled); err != nil {
			return err
		}

		var affected []int64
		for _, id := range slices.Clone(r.Promised) {
			cl, err := u.e.GetClaim(ctx, id)
			if err != nil {
				return err
			}
			r.RemovePromise(id)
			if cl == nil {
				continue
			}
			if l, ok := cl.Shelter(); !ok || l.RequestID != r.ID || l.Status != model.ShelterPromised {
				continue
			}
			if err := cl.Unpromise(); err != nil {
				return err
			}
			if err := u.e.PutClaim(ctx, cl); err != nil {
				return err
			}
			affected = append(affected, cl.VolunteerID)
		}

		r.Status = model.RequestCancelled
		r.UpdatedAt = c.now()
		if err := u.e.PutShelterRequest(ctx, r); err != nil {
			return err
		}
		for _, id := range affected {
			u.notify(id, model.Event{
				Kind:             model.EventShelterRequestCancelled,
				ShelterRequestID: r.ID,
				Status:           string(r.Status),
			})
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("shelter request cancelled", "request", requestID, "by", actor.ID)
	return out, nil
}

// DeleteShelterRequest removes a request together with every claim linked
// to it. Claims go first, each leaving its donation's pool, then the request.
func (c *Coordinator) DeleteShelterRequest(ctx context.Context, actor model.Actor, requestID string) error {
	var removed int
	err := c.run(ctx, "delete_shelter_request", c.requestKeys(ctx, requestID), func(u *unit) error {
		r, err := u.e.GetShelterRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if r == nil {
			return notFound("shelter request", requestID)
		}
		if !owns(actor, r.ShelterID) {
			return forbidden("shelter request %s belongs to another shelter", requestID)
		}

		claims, err := u.e.FindClaims(ctx, store.ClaimFilter{ShelterRequestID: r.ID})
		if err != nil {
			return err
		}
		var affected []int64
		for _, cl := range claims {
			if err := u.e.DeleteClaim(ctx, cl.ID); err != nil {
				return err
			}
			if cl.Active() {
				if err := u.follow(ctx, Task{Kind: TaskRemoveActive, EntityID: cl.DonationID, ClaimID: cl.ID}); err != nil {
					return err
				}
			}
			if !slices.Contains(affected, cl.VolunteerID) {
				affected = append(affected, cl.VolunteerID)
			}
		}
		if err := u.e.DeleteShelterRequest(ctx, r.ID); err != nil {
			return err
		}

		for _, id := range affected {
			u.notify(id, model.Event{Kind: model.EventShelterRequestDeleted, ShelterRequestID: r.ID})
		}
		removed = len(claims)
		return nil
	})
	if err != nil {
		return err
	}
	c.logger.Info("shelter request deleted", "request", requestID, "by", actor.ID, "claims_removed", removed)
	return nil
}
