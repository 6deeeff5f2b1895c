package store

import (
	"context"
	"testing"

	"github.com/erazemk/darilo/internal/db"
)

func TestGetJWTSecret_GeneratesAndPersists(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	secret1, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if len(secret1) != 64 { // 32 bytes = 64 hex chars
		t.Fatalf("expected 64 hex chars, got %d", len(secret1))
	}

	secret2, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if secret1 != secret2 {
		t.Fatalf("expected same secret, got %q and %q", secret1, secret2)
	}
}

func TestEnsureSettingKeepsFirstValue(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	missing, err := GetSetting(ctx, database, "fulfillment_policy")
	if err != nil {
		t.Fatal(err)
	}
	if missing != "" {
		t.Fatalf("expected empty setting, got %q", missing)
	}

	first, err := EnsureSetting(ctx, database, "fulfillment_policy", "quantity")
	if err != nil {
		t.Fatal(err)
	}
	second, err := EnsureSetting(ctx, database, "fulfillment_policy", "manual")
	if err != nil {
		t.Fatal(err)
	}
	if first != "quantity" || second != "quantity" {
		t.Fatalf("expected both calls to return 'quantity', got %q and %q", first, second)
	}
}
