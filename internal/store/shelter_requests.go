package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/erazemk/darilo/internal/model"
)

const requestColumns = `id, shelter_id, food_type, quantity, status, promised, fulfilled,
	version, created_at, updated_at`

func scanShelterRequest(s scanner) (*model.ShelterRequest, error) {
	var (
		r                   model.ShelterRequest
		promised, fulfilled string
	)
	err := s.Scan(&r.ID, &r.ShelterID, &r.FoodType, &r.Quantity, &r.Status,
		&promised, &fulfilled, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(promised), &r.Promised); err != nil {
		return nil, fmt.Errorf("decoding promised claims of request %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(fulfilled), &r.Fulfilled); err != nil {
		return nil, fmt.Errorf("decoding fulfilled claims of request %s: %w", r.ID, err)
	}
	return &r, nil
}

// GetShelterRequest returns a shelter request by ID.
func GetShelterRequest(ctx context.Context, q querier, id string) (*model.ShelterRequest, error) {
	r, err := scanShelterRequest(q.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM shelter_requests WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting shelter request: %w", err)
	}
	return r, nil
}

// FindShelterRequests returns shelter requests matching f, newest first.
func FindShelterRequests(ctx context.Context, q querier, f RequestFilter) ([]model.ShelterRequest, error) {
	var (
		where []string
		args  []any
	)
	if f.ShelterID != 0 {
		where = append(where, "shelter_id = ?")
		args = append(args, f.ShelterID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}

	query := `SELECT ` + requestColumns + ` FROM shelter_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing shelter requests: %w", err)
	}
	defer rows.Close()

	var requests []model.ShelterRequest
	for rows.Next() {
		r, err := scanShelterRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning shelter request: %w", err)
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

// PutShelterRequest inserts a new request (Version 0) or updates an existing
// one if its stored version still matches.
func PutShelterRequest(ctx context.Context, q querier, r *model.ShelterRequest) error {
	promised, err := encodeSet(r.Promised)
	if err != nil {
		return fmt.Errorf("encoding promised claims: %w", err)
	}
	fulfilled, err := encodeSet(r.Fulfilled)
	if err != nil {
		return fmt.Errorf("encoding fulfilled claims: %w", err)
	}

	if r.Version == 0 {
		_, err := q.ExecContext(ctx,
			`INSERT INTO shelter_requests (`+requestColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			r.ID, r.ShelterID, r.FoodType, r.Quantity, r.Status, promised, fulfilled,
			r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
		)
		if err != nil {
			return insertErr("shelter request", err)
		}
		r.Version = 1
		return nil
	}

	res, err := q.ExecContext(ctx,
		`UPDATE shelter_requests SET food_type = ?, quantity = ?, status = ?, promised = ?,
		 fulfilled = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		r.FoodType, r.Quantity, r.Status, promised, fulfilled, r.UpdatedAt.UTC(),
		r.ID, r.Version,
	)
	if err != nil {
		return fmt.Errorf("updating shelter request: %w", err)
	}
	if err := updated(res, "shelter request", r.ID, r.Version); err != nil {
		return err
	}
	r.Version++
	return nil
}

// DeleteShelterRequest removes a shelter request row.
func DeleteShelterRequest(ctx context.Context, q querier, id string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM shelter_requests WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting shelter request: %w", err)
	}
	return nil
}
