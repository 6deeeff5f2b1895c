package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: index claims by shelter request for cascade deletes and
	// request detail pages.
	`CREATE INDEX IF NOT EXISTS idx_claims_shelter_request ON claims(shelter_request_id)`,
	// Migration 2: volunteers list their own claims.
	`CREATE INDEX IF NOT EXISTS idx_claims_volunteer ON claims(volunteer_id)`,
}

// Migrate ensures the schema and applies pending migrations.
func Migrate(db *sql.DB) error {
	if err := EnsureSchema(db); err != nil {
		return err
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
