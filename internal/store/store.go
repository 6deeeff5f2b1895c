package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/darilo/internal/model"
)

// Entities is the persistence contract for donations, shelter requests and
// claims.
//
// Get methods return (nil, nil) when the entity does not exist. Put methods
// upsert: an entity with Version 0 is inserted, otherwise it is updated only
// if the stored version still equals entity.Version, and
// model.ErrConcurrentModification is returned when it does not. A successful
// Put bumps entity.Version. Every method is atomic for a single entity.
type Entities interface {
	GetDonation(ctx context.Context, id string) (*model.Donation, error)
	FindDonations(ctx context.Context, f DonationFilter) ([]model.Donation, error)
	PutDonation(ctx context.Context, d *model.Donation) error
	DeleteDonation(ctx context.Context, id string) error

	GetShelterRequest(ctx context.Context, id string) (*model.ShelterRequest, error)
	FindShelterRequests(ctx context.Context, f RequestFilter) ([]model.ShelterRequest, error)
	PutShelterRequest(ctx context.Context, r *model.ShelterRequest) error
	DeleteShelterRequest(ctx context.Context, id string) error

	GetClaim(ctx context.Context, id string) (*model.Claim, error)
	FindClaims(ctx context.Context, f ClaimFilter) ([]model.Claim, error)
	PutClaim(ctx context.Context, c *model.Claim) error
	DeleteClaim(ctx context.Context, id string) error
}

// Transactor is implemented by stores that can apply several writes
// atomically. fn receives a view of the store bound to the transaction; the
// transaction commits if fn returns nil.
type Transactor interface {
	InTx(ctx context.Context, fn func(tx Entities) error) error
}

// DonationFilter narrows FindDonations. Zero fields match everything.
type DonationFilter struct {
	DonorID int64
	Status  model.DonationStatus
}

// RequestFilter narrows FindShelterRequests. Zero fields match everything.
type RequestFilter struct {
	ShelterID int64
	Status    model.RequestStatus
}

// ClaimFilter narrows FindClaims. Zero fields match everything.
type ClaimFilter struct {
	VolunteerID      int64
	DonationID       string
	ShelterRequestID string
	ActiveOnly       bool
}

func (f ClaimFilter) match(c *model.Claim) bool {
	if f.VolunteerID != 0 && c.VolunteerID != f.VolunteerID {
		return false
	}
	if f.DonationID != "" && c.DonationID != f.DonationID {
		return false
	}
	if f.ShelterRequestID != "" {
		l, ok := c.Shelter()
		if !ok || l.RequestID != f.ShelterRequestID {
			return false
		}
	}
	return !f.ActiveOnly || c.Active()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conflict reports a lost optimistic update of kind/id.
func conflict(kind, id string, version int64) error {
	return fmt.Errorf("%w: %s %s changed since version %d", model.ErrConcurrentModification, kind, id, version)
}

// insertErr maps unique-constraint violations to a concurrent modification so
// the caller re-reads and re-validates.
func insertErr(kind string, err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: creating %s: %v", model.ErrConcurrentModification, kind, err)
	}
	return fmt.Errorf("creating %s: %w", kind, err)
}

// updated checks the affected row count of an optimistic update.
func updated(res sql.Result, kind, id string, version int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating %s: %w", kind, err)
	}
	if n == 0 {
		return conflict(kind, id, version)
	}
	return nil
}

// ActiveClaim returns the volunteer's active claim on a donation, or nil if
// there is none.
func ActiveClaim(ctx context.Context, e Entities, volunteerID int64, donationID string) (*model.Claim, error) {
	claims, err := e.FindClaims(ctx, ClaimFilter{VolunteerID: volunteerID, DonationID: donationID, ActiveOnly: true})
	if err != nil || len(claims) == 0 {
		return nil, err
	}
	return &claims[0], nil
}
