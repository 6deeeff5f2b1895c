package db

import "testing"

func TestMigrateIdempotent(t *testing.T) {
	database := NewTestDB(t)

	// NewTestDB already migrated once.
	if err := Migrate(database); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	var n int
	err := database.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('donations', 'shelter_requests', 'claims')`).Scan(&n)
	if err != nil {
		t.Fatalf("querying tables: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 domain tables, got %d", n)
	}
}

func TestFulfilledRequiresDonated(t *testing.T) {
	database := NewTestDB(t)

	_, err := database.Exec(`INSERT INTO donations (id, donor_id, food_type, quantity, pickup_address, expires_at, pool_size, created_at, updated_at)
		VALUES ('d1', 1, 'bread', 1, 'Main St', CURRENT_TIMESTAMP, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	if err != nil {
		t.Fatalf("inserting donation: %v", err)
	}
	_, err = database.Exec(`INSERT INTO shelter_requests (id, shelter_id, food_type, quantity, created_at, updated_at)
		VALUES ('r1', 2, 'bread', 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	if err != nil {
		t.Fatalf("inserting request: %v", err)
	}

	_, err = database.Exec(`INSERT INTO claims (id, volunteer_id, donation_id, shelter_request_id, donor_status, shelter_status, claimed_at)
		VALUES ('c1', 3, 'd1', 'r1', 'claimed', 'fulfilled', CURRENT_TIMESTAMP)`)
	if err == nil {
		t.Error("expected check constraint to reject fulfilled claim that is not donated")
	}
}
