package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema. Id sets (active claims, confirmers,
// promised and fulfilled claims) are stored as JSON arrays.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL CHECK (role IN ('admin', 'donor', 'volunteer', 'shelter')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS donations (
    id             TEXT PRIMARY KEY,
    donor_id       INTEGER NOT NULL,
    food_type      TEXT NOT NULL,
    description    TEXT,
    quantity       INTEGER NOT NULL CHECK (quantity >= 1),
    pickup_address TEXT NOT NULL,
    expires_at     DATETIME NOT NULL,
    pool_size      INTEGER NOT NULL CHECK (pool_size >= 1),
    status         TEXT NOT NULL DEFAULT 'available'
                   CHECK (status IN ('available', 'claimed', 'in_transit', 'delivered', 'confirmed', 'closed', 'canceled')),
    active_claims  TEXT NOT NULL DEFAULT '[]',
    confirmed_by   TEXT NOT NULL DEFAULT '[]',
    version        INTEGER NOT NULL DEFAULT 1,
    created_at     DATETIME NOT NULL,
    updated_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_donations_donor ON donations(donor_id);
CREATE INDEX IF NOT EXISTS idx_donations_status ON donations(status);

CREATE TABLE IF NOT EXISTS shelter_requests (
    id         TEXT PRIMARY KEY,
    shelter_id INTEGER NOT NULL,
    food_type  TEXT NOT NULL,
    quantity   INTEGER NOT NULL CHECK (quantity >= 1),
    status     TEXT NOT NULL DEFAULT 'in_need' CHECK (status IN ('in_need', 'fulfilled', 'cancelled')),
    promised   TEXT NOT NULL DEFAULT '[]',
    fulfilled  TEXT NOT NULL DEFAULT '[]',
    version    INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_shelter_requests_shelter ON shelter_requests(shelter_id);

CREATE TABLE IF NOT EXISTS claims (
    id                 TEXT PRIMARY KEY,
    volunteer_id       INTEGER NOT NULL,
    donation_id        TEXT NOT NULL REFERENCES donations(id),
    shelter_request_id TEXT REFERENCES shelter_requests(id),
    donor_status       TEXT NOT NULL CHECK (donor_status IN ('claimed', 'donated', 'cancelled')),
    shelter_status     TEXT CHECK (shelter_status IN ('promised', 'fulfilled', 'cancelled')),
    claimed_at         DATETIME NOT NULL,
    version            INTEGER NOT NULL DEFAULT 1,
    CHECK (shelter_status != 'fulfilled' OR donor_status = 'donated'),
    CHECK ((shelter_request_id IS NULL) = (shelter_status IS NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_claims_active_pair
    ON claims(volunteer_id, donation_id) WHERE donor_status != 'cancelled';
CREATE INDEX IF NOT EXISTS idx_claims_donation ON claims(donation_id);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
