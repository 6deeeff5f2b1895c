package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/darilo/internal/model"
)

const claimColumns = `id, volunteer_id, donation_id, shelter_request_id, donor_status,
	shelter_status, claimed_at, version`

func scanClaim(s scanner) (*model.Claim, error) {
	var (
		c             model.Claim
		requestID     sql.NullString
		shelterStatus sql.NullString
	)
	err := s.Scan(&c.ID, &c.VolunteerID, &c.DonationID, &requestID, &c.DonorStatus,
		&shelterStatus, &c.ClaimedAt, &c.Version)
	if err != nil {
		return nil, err
	}
	c.Link = model.Unlinked{}
	if requestID.Valid {
		c.Link = model.LinkedToShelter{
			RequestID: requestID.String,
			Status:    model.ShelterSide(shelterStatus.String),
		}
	}
	return &c, nil
}

// linkColumns flattens a claim's linkage into nullable column values.
func linkColumns(c *model.Claim) (requestID, status sql.NullString) {
	if l, ok := c.Shelter(); ok {
		requestID = sql.NullString{String: l.RequestID, Valid: true}
		status = sql.NullString{String: string(l.Status), Valid: true}
	}
	return requestID, status
}

// GetClaim returns a claim by ID.
func GetClaim(ctx context.Context, q querier, id string) (*model.Claim, error) {
	c, err := scanClaim(q.QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting claim: %w", err)
	}
	return c, nil
}

// FindClaims returns claims matching f in claim order.
func FindClaims(ctx context.Context, q querier, f ClaimFilter) ([]model.Claim, error) {
	var (
		where []string
		args  []any
	)
	if f.VolunteerID != 0 {
		where = append(where, "volunteer_id = ?")
		args = append(args, f.VolunteerID)
	}
	if f.DonationID != "" {
		where = append(where, "donation_id = ?")
		args = append(args, f.DonationID)
	}
	if f.ShelterRequestID != "" {
		where = append(where, "shelter_request_id = ?")
		args = append(args, f.ShelterRequestID)
	}
	if f.ActiveOnly {
		where = append(where, "donor_status != 'cancelled'")
	}

	query := `SELECT ` + claimColumns + ` FROM claims`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY claimed_at, id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing claims: %w", err)
	}
	defer rows.Close()

	var claims []model.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning claim: %w", err)
		}
		claims = append(claims, *c)
	}
	return claims, rows.Err()
}

// PutClaim inserts a new claim (Version 0) or updates an existing one if its
// stored version still matches. A second active claim for the same volunteer
// and donation is rejected by idx_claims_active_pair.
func PutClaim(ctx context.Context, q querier, c *model.Claim) error {
	if err := c.CheckConsistency(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidState, err)
	}
	requestID, status := linkColumns(c)

	if c.Version == 0 {
		_, err := q.ExecContext(ctx,
			`INSERT INTO claims (`+claimColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
			c.ID, c.VolunteerID, c.DonationID, requestID, c.DonorStatus, status, c.ClaimedAt.UTC(),
		)
		if err != nil {
			return insertErr("claim", err)
		}
		c.Version = 1
		return nil
	}

	res, err := q.ExecContext(ctx,
		`UPDATE claims SET shelter_request_id = ?, donor_status = ?, shelter_status = ?,
		 version = version + 1
		 WHERE id = ? AND version = ?`,
		requestID, c.DonorStatus, status, c.ID, c.Version,
	)
	if err != nil {
		return fmt.Errorf("updating claim: %w", err)
	}
	if err := updated(res, "claim", c.ID, c.Version); err != nil {
		return err
	}
	c.Version++
	return nil
}

// DeleteClaim removes a claim row.
func DeleteClaim(ctx context.Context, q querier, id string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM claims WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting claim: %w", err)
	}
	return nil
}
