package notify

import (
	"context"
	"sync"

	"github.com/erazemk/darilo/internal/model"
)

// Delivery is one event as seen by a Recorder. UserID is 0 for broadcasts.
type Delivery struct {
	UserID int64
	Event  model.Event
}

// Recorder keeps every event it receives. It is meant for tests.
type Recorder struct {
	mu         sync.Mutex
	deliveries []Delivery
}

func (r *Recorder) Notify(_ context.Context, userID int64, ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, Delivery{UserID: userID, Event: ev})
}

func (r *Recorder) Broadcast(_ context.Context, ev model.Event) {
	r.Notify(context.Background(), 0, ev)
}

// Deliveries returns a copy of everything recorded so far.
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

// Kinds returns the recorded event kinds in order.
func (r *Recorder) Kinds() []model.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]model.EventKind, len(r.deliveries))
	for i, d := range r.deliveries {
		kinds[i] = d.Event.Kind
	}
	return kinds
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = nil
}
