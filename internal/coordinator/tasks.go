package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/erazemk/darilo/internal/model"
	"github.com/erazemk/darilo/internal/store"
)

// TaskKind names a dependent collection update.
type TaskKind string

// Task kinds. Every kind is idempotent.
const (
	TaskAddPromised    TaskKind = "add_promised"
	TaskRemovePromised TaskKind = "remove_promised"
	TaskMarkFulfilled  TaskKind = "mark_fulfilled"
	TaskRemoveActive   TaskKind = "remove_active"
)

// Task is a dependent update of a donation's or shelter request's id sets
// that follows a claim write. EntityID names the donation for remove_active
// and the shelter request for the other kinds.
type Task struct {
	Kind      TaskKind  `json:"kind"`
	EntityID  string    `json:"entity_id"`
	ClaimID   string    `json:"claim_id"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (t Task) String() string {
	return fmt.Sprintf("%s(%s, %s)", t.Kind, t.EntityID, t.ClaimID)
}

// applyTask re-reads the target entity, applies t and writes it back. A
// missing target or an already-applied task is a no-op.
func applyTask(ctx context.Context, e store.Entities, t Task, policy model.FulfillmentPolicy, now time.Time) error {
	switch t.Kind {
	case TaskRemoveActive:
		d, err := e.GetDonation(ctx, t.EntityID)
		if err != nil || d == nil {
			return err
		}
		if !d.RemoveClaim(t.ClaimID) {
			return nil
		}
		d.UpdatedAt = now
		return e.PutDonation(ctx, d)

	case TaskAddPromised, TaskRemovePromised, TaskMarkFulfilled:
		r, err := e.GetShelterRequest(ctx, t.EntityID)
		if err != nil || r == nil {
			return err
		}
		var changed bool
		switch t.Kind {
		case TaskAddPromised:
			changed = r.AddPromise(t.ClaimID)
		case TaskRemovePromised:
			changed = r.RemovePromise(t.ClaimID)
		case TaskMarkFulfilled:
			changed = r.MarkFulfilled(t.ClaimID)
		}
		// A withdrawn promise can leave the remaining deliveries complete.
		if t.Kind != TaskAddPromised && r.ApplyPolicy(policy) {
			changed = true
		}
		if !changed {
			return nil
		}
		r.UpdatedAt = now
		return e.PutShelterRequest(ctx, r)
	}
	return fmt.Errorf("unknown task kind %q", t.Kind)
}
