package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidRole(t *testing.T) {
	tests := []struct {
		role     string
		expected bool
	}{
		{RoleAdmin, true},
		{RoleDonor, true},
		{RoleVolunteer, true},
		{RoleShelter, true},
		// Legacy and unknown roles are rejected.
		{"manager", false},
		{"user", false},
		{"", false},
	}

	for _, tt := range tests {
		got := ValidRole(tt.role)
		if got != tt.expected {
			t.Errorf("ValidRole(%q) = %v, want %v", tt.role, got, tt.expected)
		}
	}
}

func TestActorIs(t *testing.T) {
	a := Actor{ID: 1, Role: RoleVolunteer}
	if !a.Is(RoleDonor, RoleVolunteer) {
		t.Error("expected volunteer to match")
	}
	if a.Is(RoleShelter) {
		t.Error("expected volunteer not to match shelter")
	}
	if a.Is() {
		t.Error("expected no match for empty role list")
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"", true},
		{"short", true},
		{"1234567", true},
		{"12345678", false},
		{"a-valid-password", false},
	}

	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePassword(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
		}
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{ErrCapacityExceeded, "capacity_exceeded"},
		{wrap(ErrDuplicateClaim), "duplicate_claim"},
		{wrap(ErrCannotRemoveFulfilled), "cannot_remove_fulfilled"},
		{errPlain, "internal"},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.code {
			t.Errorf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.code)
		}
	}
}

var errPlain = errors.New("boom")

func wrap(err error) error { return fmt.Errorf("%w: detail", err) }
