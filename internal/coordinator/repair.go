package coordinator

import (
	"context"
	"slices"

	"github.com/erazemk/darilo/internal/model"
	"github.com/erazemk/darilo/internal/store"
)

// sameSet reports whether a and b hold the same ids, ignoring order.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, id := range a {
		if !slices.Contains(b, id) {
			return false
		}
	}
	return true
}

// Repair rebuilds every donation's active-claims set and every request's
// promised and fulfilled sets from the claims, which are authoritative. It
// covers dependent updates lost with a previous process's reconciliation
// queue and returns how many entities it rewrote.
func (c *Coordinator) Repair(ctx context.Context) (int, error) {
	var fixed int

	donations, err := c.store.FindDonations(ctx, store.DonationFilter{})
	if err != nil {
		return 0, classify(err)
	}
	for _, d := range donations {
		var changed bool
		err := c.run(ctx, "repair", keysOf(donationKey(d.ID)), func(u *unit) error {
			changed = false
			cur, err := u.e.GetDonation(ctx, d.ID)
			if err != nil || cur == nil {
				return err
			}
			claims, err := u.e.FindClaims(ctx, store.ClaimFilter{DonationID: cur.ID, ActiveOnly: true})
			if err != nil {
				return err
			}
			want := make([]string, 0, len(claims))
			for _, cl := range claims {
				want = append(want, cl.ID)
			}
			if sameSet(cur.ActiveClaims, want) {
				return nil
			}
			cur.ActiveClaims = want
			cur.UpdatedAt = c.now()
			changed = true
			return u.e.PutDonation(ctx, cur)
		})
		if err != nil {
			return fixed, err
		}
		if changed {
			fixed++
			c.logger.Warn("repaired donation claim set", "donation", d.ID)
		}
	}

	requests, err := c.store.FindShelterRequests(ctx, store.RequestFilter{})
	if err != nil {
		return fixed, classify(err)
	}
	for _, r := range requests {
		var changed bool
		err := c.run(ctx, "repair", keysOf(requestKey(r.ID)), func(u *unit) error {
			changed = false
			cur, err := u.e.GetShelterRequest(ctx, r.ID)
			if err != nil || cur == nil {
				return err
			}
			claims, err := u.e.FindClaims(ctx, store.ClaimFilter{ShelterRequestID: cur.ID})
			if err != nil {
				return err
			}
			promised, fulfilled := []string{}, []string{}
			for _, cl := range claims {
				l, _ := cl.Shelter()
				switch l.Status {
				case model.ShelterPromised:
					promised = append(promised, cl.ID)
				case model.ShelterFulfilled:
					fulfilled = append(fulfilled, cl.ID)
				}
			}
			if !sameSet(cur.Promised, promised) || !sameSet(cur.Fulfilled, fulfilled) {
				cur.Promised = promised
				cur.Fulfilled = fulfilled
				changed = true
			}
			if cur.ApplyPolicy(c.policy) {
				changed = true
			}
			if !changed {
				return nil
			}
			cur.UpdatedAt = c.now()
			return u.e.PutShelterRequest(ctx, cur)
		})
		if err != nil {
			return fixed, err
		}
		if changed {
			fixed++
			c.logger.Warn("repaired shelter request claim sets", "request", r.ID)
		}
	}

	return fixed, nil
}
