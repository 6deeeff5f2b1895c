package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/erazemk/darilo/internal/model"
)

const donationColumns = `id, donor_id, food_type, description, quantity, pickup_address,
	expires_at, pool_size, status, active_claims, confirmed_by, version, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDonation(s scanner) (*model.Donation, error) {
	var (
		d            model.Donation
		description  sql.NullString
		active, conf string
	)
	err := s.Scan(&d.ID, &d.DonorID, &d.FoodType, &description, &d.Quantity, &d.PickupAddress,
		&d.ExpiresAt, &d.PoolSize, &d.Status, &active, &conf, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Description = description.String
	if err := json.Unmarshal([]byte(active), &d.ActiveClaims); err != nil {
		return nil, fmt.Errorf("decoding active claims of donation %s: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(conf), &d.ConfirmedBy); err != nil {
		return nil, fmt.Errorf("decoding confirmers of donation %s: %w", d.ID, err)
	}
	return &d, nil
}

// encodeSet renders an id set as a JSON array, never null.
func encodeSet[T any](ids []T) (string, error) {
	if ids == nil {
		ids = []T{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GetDonation returns a donation by ID.
func GetDonation(ctx context.Context, q querier, id string) (*model.Donation, error) {
	d, err := scanDonation(q.QueryRowContext(ctx,
		`SELECT `+donationColumns+` FROM donations WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting donation: %w", err)
	}
	return d, nil
}

// FindDonations returns donations matching f, newest first.
func FindDonations(ctx context.Context, q querier, f DonationFilter) ([]model.Donation, error) {
	var (
		where []string
		args  []any
	)
	if f.DonorID != 0 {
		where = append(where, "donor_id = ?")
		args = append(args, f.DonorID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}

	query := `SELECT ` + donationColumns + ` FROM donations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing donations: %w", err)
	}
	defer rows.Close()

	var donations []model.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning donation: %w", err)
		}
		donations = append(donations, *d)
	}
	return donations, rows.Err()
}

// PutDonation inserts a new donation (Version 0) or updates an existing one
// if its stored version still matches.
func PutDonation(ctx context.Context, q querier, d *model.Donation) error {
	active, err := encodeSet(d.ActiveClaims)
	if err != nil {
		return fmt.Errorf("encoding active claims: %w", err)
	}
	conf, err := encodeSet(d.ConfirmedBy)
	if err != nil {
		return fmt.Errorf("encoding confirmers: %w", err)
	}

	if d.Version == 0 {
		_, err := q.ExecContext(ctx,
			`INSERT INTO donations (`+donationColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			d.ID, d.DonorID, d.FoodType, d.Description, d.Quantity, d.PickupAddress,
			d.ExpiresAt.UTC(), d.PoolSize, d.Status, active, conf, d.CreatedAt.UTC(), d.UpdatedAt.UTC(),
		)
		if err != nil {
			return insertErr("donation", err)
		}
		d.Version = 1
		return nil
	}

	res, err := q.ExecContext(ctx,
		`UPDATE donations SET food_type = ?, description = ?, quantity = ?, pickup_address = ?,
		 expires_at = ?, pool_size = ?, status = ?, active_claims = ?, confirmed_by = ?,
		 version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		d.FoodType, d.Description, d.Quantity, d.PickupAddress,
		d.ExpiresAt.UTC(), d.PoolSize, d.Status, active, conf, d.UpdatedAt.UTC(),
		d.ID, d.Version,
	)
	if err != nil {
		return fmt.Errorf("updating donation: %w", err)
	}
	if err := updated(res, "donation", d.ID, d.Version); err != nil {
		return err
	}
	d.Version++
	return nil
}

// DeleteDonation removes a donation row.
func DeleteDonation(ctx context.Context, q querier, id string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM donations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting donation: %w", err)
	}
	return nil
}
