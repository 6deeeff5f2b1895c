package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/erazemk/darilo/internal/model"
)

// Memory is an in-process Entities implementation. Each method is atomic on
// its own but Memory offers no multi-entity transactions, so callers fall
// back to ordered writes with compensation.
type Memory struct {
	mu        sync.RWMutex
	donations map[string]model.Donation
	requests  map[string]model.ShelterRequest
	claims    map[string]model.Claim
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		donations: make(map[string]model.Donation),
		requests:  make(map[string]model.ShelterRequest),
		claims:    make(map[string]model.Claim),
	}
}

func cloneDonation(d model.Donation) model.Donation {
	d.ActiveClaims = slices.Clone(d.ActiveClaims)
	d.ConfirmedBy = slices.Clone(d.ConfirmedBy)
	return d
}

func cloneRequest(r model.ShelterRequest) model.ShelterRequest {
	r.Promised = slices.Clone(r.Promised)
	r.Fulfilled = slices.Clone(r.Fulfilled)
	return r
}

func (m *Memory) GetDonation(_ context.Context, id string) (*model.Donation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.donations[id]
	if !ok {
		return nil, nil
	}
	d = cloneDonation(d)
	return &d, nil
}

func (m *Memory) FindDonations(_ context.Context, f DonationFilter) ([]model.Donation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Donation
	for _, d := range m.donations {
		if f.DonorID != 0 && d.DonorID != f.DonorID {
			continue
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		out = append(out, cloneDonation(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) PutDonation(_ context.Context, d *model.Donation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, exists := m.donations[d.ID]
	switch {
	case d.Version == 0 && exists:
		return fmt.Errorf("%w: donation %s already exists", model.ErrConcurrentModification, d.ID)
	case d.Version != 0 && (!exists || cur.Version != d.Version):
		return conflict("donation", d.ID, d.Version)
	}
	d.Version++
	m.donations[d.ID] = cloneDonation(*d)
	return nil
}

func (m *Memory) DeleteDonation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.donations, id)
	return nil
}

func (m *Memory) GetShelterRequest(_ context.Context, id string) (*model.ShelterRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, nil
	}
	r = cloneRequest(r)
	return &r, nil
}

func (m *Memory) FindShelterRequests(_ context.Context, f RequestFilter) ([]model.ShelterRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ShelterRequest
	for _, r := range m.requests {
		if f.ShelterID != 0 && r.ShelterID != f.ShelterID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, cloneRequest(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) PutShelterRequest(_ context.Context, r *model.ShelterRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, exists := m.requests[r.ID]
	switch {
	case r.Version == 0 && exists:
		return fmt.Errorf("%w: shelter request %s already exists", model.ErrConcurrentModification, r.ID)
	case r.Version != 0 && (!exists || cur.Version != r.Version):
		return conflict("shelter request", r.ID, r.Version)
	}
	r.Version++
	m.requests[r.ID] = cloneRequest(*r)
	return nil
}

func (m *Memory) DeleteShelterRequest(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requests, id)
	return nil
}

func (m *Memory) GetClaim(_ context.Context, id string) (*model.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.claims[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) FindClaims(_ context.Context, f ClaimFilter) ([]model.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Claim
	for _, c := range m.claims {
		if f.match(&c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ClaimedAt.Equal(out[j].ClaimedAt) {
			return out[i].ClaimedAt.Before(out[j].ClaimedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) PutClaim(_ context.Context, c *model.Claim) error {
	if err := c.CheckConsistency(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidState, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, exists := m.claims[c.ID]
	switch {
	case c.Version == 0 && exists:
		return fmt.Errorf("%w: claim %s already exists", model.ErrConcurrentModification, c.ID)
	case c.Version != 0 && (!exists || cur.Version != c.Version):
		return conflict("claim", c.ID, c.Version)
	}
	if c.Active() {
		for id, other := range m.claims {
			if id != c.ID && other.Active() && other.VolunteerID == c.VolunteerID && other.DonationID == c.DonationID {
				return fmt.Errorf("%w: volunteer %d already holds claim %s on donation %s",
					model.ErrConcurrentModification, c.VolunteerID, id, c.DonationID)
			}
		}
	}
	c.Version++
	m.claims[c.ID] = *c
	return nil
}

func (m *Memory) DeleteClaim(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, id)
	return nil
}
