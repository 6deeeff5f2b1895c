package model

import (
	"fmt"
	"slices"
	"time"
)

// User represents an authentication user. Donors, volunteers and shelters
// are all users distinguished by role.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleAdmin     = "admin"
	RoleDonor     = "donor"
	RoleVolunteer = "volunteer"
	RoleShelter   = "shelter"
)

// Roles lists every valid role.
var Roles = []string{RoleAdmin, RoleDonor, RoleVolunteer, RoleShelter}

// ValidRole reports whether role is one of Roles.
func ValidRole(role string) bool {
	return slices.Contains(Roles, role)
}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ValidatePassword checks password strength requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// Actor identifies the authenticated user performing an operation.
type Actor struct {
	ID   int64
	Role string
}

// Is reports whether the actor has one of the given roles.
func (a Actor) Is(roles ...string) bool {
	return slices.Contains(roles, a.Role)
}
