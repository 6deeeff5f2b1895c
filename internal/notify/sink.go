// Package notify delivers coordinator events to interested users.
package notify

import (
	"context"

	"github.com/erazemk/darilo/internal/model"
)

// Sink receives events after the state change they describe was persisted.
// Implementations must not block the caller for long and must not fail it:
// delivery problems are theirs to log.
type Sink interface {
	Notify(ctx context.Context, userID int64, ev model.Event)
	Broadcast(ctx context.Context, ev model.Event)
}

// Multi fans every event out to each sink in order.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, userID int64, ev model.Event) {
	for _, s := range m {
		s.Notify(ctx, userID, ev)
	}
}

func (m Multi) Broadcast(ctx context.Context, ev model.Event) {
	for _, s := range m {
		s.Broadcast(ctx, ev)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Notify(context.Context, int64, model.Event) {}
func (Discard) Broadcast(context.Context, model.Event)     {}
