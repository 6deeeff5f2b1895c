package model

import "errors"

// Rule violations reported by the coordinator. Callers wrap them with a
// message naming the concrete rule, e.g.
//
//	fmt.Errorf("%w: volunteer pool is full (2/2)", ErrCapacityExceeded)
var (
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrInvalidState           = errors.New("invalid state")
	ErrCapacityExceeded       = errors.New("capacity exceeded")
	ErrDuplicateClaim         = errors.New("duplicate claim")
	ErrAlreadyPromised        = errors.New("already promised")
	ErrCannotRemoveFulfilled  = errors.New("cannot remove fulfilled claim")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrPersistence            = errors.New("persistence failure")
	ErrInvalidInput           = errors.New("invalid input")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNotFound, "not_found"},
	{ErrForbidden, "forbidden"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrInvalidState, "invalid_state"},
	{ErrCapacityExceeded, "capacity_exceeded"},
	{ErrDuplicateClaim, "duplicate_claim"},
	{ErrAlreadyPromised, "already_promised"},
	{ErrCannotRemoveFulfilled, "cannot_remove_fulfilled"},
	{ErrConcurrentModification, "concurrent_modification"},
	{ErrPersistence, "persistence_failure"},
	{ErrInvalidInput, "invalid_input"},
}

// ErrorCode returns the stable code for the rule err violates, or "internal"
// when err does not wrap one of the sentinels above.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal"
}
