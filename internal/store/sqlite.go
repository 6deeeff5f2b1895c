package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/darilo/internal/model"
)

// SQLite implements Entities and Transactor on a database opened with db.Open.
type SQLite struct {
	db *sql.DB
	q  querier
}

// NewSQLite returns a store backed by db.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, q: db}
}

// InTx runs fn inside a transaction. Nested calls reuse the outer transaction.
func (s *SQLite) InTx(ctx context.Context, fn func(tx Entities) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&SQLite{db: s.db, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLite) GetDonation(ctx context.Context, id string) (*model.Donation, error) {
	return GetDonation(ctx, s.q, id)
}

func (s *SQLite) FindDonations(ctx context.Context, f DonationFilter) ([]model.Donation, error) {
	return FindDonations(ctx, s.q, f)
}

func (s *SQLite) PutDonation(ctx context.Context, d *model.Donation) error {
	return PutDonation(ctx, s.q, d)
}

func (s *SQLite) DeleteDonation(ctx context.Context, id string) error {
	return DeleteDonation(ctx, s.q, id)
}

func (s *SQLite) GetShelterRequest(ctx context.Context, id string) (*model.ShelterRequest, error) {
	return GetShelterRequest(ctx, s.q, id)
}

func (s *SQLite) FindShelterRequests(ctx context.Context, f RequestFilter) ([]model.ShelterRequest, error) {
	return FindShelterRequests(ctx, s.q, f)
}

func (s *SQLite) PutShelterRequest(ctx context.Context, r *model.ShelterRequest) error {
	return PutShelterRequest(ctx, s.q, r)
}

func (s *SQLite) DeleteShelterRequest(ctx context.Context, id string) error {
	return DeleteShelterRequest(ctx, s.q, id)
}

func (s *SQLite) GetClaim(ctx context.Context, id string) (*model.Claim, error) {
	return GetClaim(ctx, s.q, id)
}

func (s *SQLite) FindClaims(ctx context.Context, f ClaimFilter) ([]model.Claim, error) {
	return FindClaims(ctx, s.q, f)
}

func (s *SQLite) PutClaim(ctx context.Context, c *model.Claim) error {
	return PutClaim(ctx, s.q, c)
}

func (s *SQLite) DeleteClaim(ctx context.Context, id string) error {
	return DeleteClaim(ctx, s.q, id)
}
