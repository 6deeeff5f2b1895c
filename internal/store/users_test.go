package store

import (
	"context"
	"errors"
	"testing"

	"github.com/erazemk/darilo/internal/db"
	"github.com/erazemk/darilo/internal/model"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "pekarna", "hash123", model.RoleDonor)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Username != "pekarna" {
		t.Errorf("expected username 'pekarna', got %q", user.Username)
	}
	if user.Role != model.RoleDonor {
		t.Errorf("expected role 'donor', got %q", user.Role)
	}

	got, err := GetUser(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Username != "pekarna" {
		t.Errorf("expected username 'pekarna', got %q", got.Username)
	}
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	database := db.NewTestDB(t)

	_, err := CreateUser(context.Background(), database, "x", "hash", "manager")
	if !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestGetUserByUsername(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "alice", "hash", model.RoleAdmin)

	user, err := GetUserByUsername(ctx, database, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if user.Username != "alice" {
		t.Errorf("expected 'alice', got %q", user.Username)
	}

	missing, err := GetUserByUsername(ctx, database, "bob")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestListUsersByRole(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "a", "hash", model.RoleVolunteer)
	CreateUser(ctx, database, "b", "hash", model.RoleVolunteer)
	CreateUser(ctx, database, "c", "hash", model.RoleShelter)

	all, err := ListUsers(ctx, database, "")
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 users, got %d", len(all))
	}

	volunteers, err := ListUsers(ctx, database, model.RoleVolunteer)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(volunteers) != 2 {
		t.Errorf("expected 2 volunteers, got %d", len(volunteers))
	}
}

func TestDeleteUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "deleteme", "hash", model.RoleShelter)
	DeleteUser(ctx, database, user.ID)

	users, _ := ListUsers(ctx, database, "")
	if len(users) != 0 {
		t.Errorf("expected 0 users after delete, got %d", len(users))
	}

	role, err := ActiveUserRole(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("ActiveUserRole: %v", err)
	}
	if role != "" {
		t.Errorf("expected no role for deleted user, got %q", role)
	}
}

func TestUpdateUserPassword(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "pwuser", "oldhash", model.RoleVolunteer)
	UpdateUserPassword(ctx, database, user.ID, "newhash")

	got, _ := GetUser(ctx, database, user.ID)
	if got.PasswordHash != "newhash" {
		t.Errorf("expected password hash 'newhash', got %q", got.PasswordHash)
	}
}
