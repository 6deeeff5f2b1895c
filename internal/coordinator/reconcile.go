package coordinator

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Reconciler holds dependent updates that could not be applied when their
// claim was written. The claim is authoritative; draining the queue brings
// the donation and request id sets back in line with it.
type Reconciler struct {
	mu     sync.Mutex
	tasks  []Task
	apply  func(context.Context, Task) error
	logger *slog.Logger
}

func newReconciler(apply func(context.Context, Task) error, logger *slog.Logger) *Reconciler {
	return &Reconciler{apply: apply, logger: logger}
}

// Add queues t.
func (r *Reconciler) Add(t Task) {
	r.mu.Lock()
	r.tasks = append(r.tasks, t)
	n := len(r.tasks)
	r.mu.Unlock()
	reconcilePending.Set(float64(n))
}

// Pending returns a copy of the queue.
func (r *Reconciler) Pending() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.tasks)
}

// Run tries every queued task once and returns how many were applied. Failed
// tasks stay queued with their attempt count and last error updated.
func (r *Reconciler) Run(ctx context.Context) int {
	r.mu.Lock()
	batch := r.tasks
	r.tasks = nil
	r.mu.Unlock()

	var (
		applied int
		failed  []Task
	)
	for i, t := range batch {
		if ctx.Err() != nil {
			failed = append(failed, batch[i:]...)
			break
		}
		t.Attempts++
		if err := r.apply(ctx, t); err != nil {
			t.LastError = err.Error()
			failed = append(failed, t)
			reconcileApplied.WithLabelValues(string(t.Kind), "error").Inc()
			r.logger.Warn("reconciliation task failed", "task", t.String(), "attempts", t.Attempts, "error", err)
			continue
		}
		applied++
		reconcileApplied.WithLabelValues(string(t.Kind), "ok").Inc()
		r.logger.Info("reconciliation task applied", "task", t.String(), "attempts", t.Attempts)
	}

	r.mu.Lock()
	r.tasks = append(failed, r.tasks...)
	n := len(r.tasks)
	r.mu.Unlock()
	reconcilePending.Set(float64(n))

	return applied
}

// Start drains the queue every interval until ctx is done.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if len(r.Pending()) > 0 {
					r.Run(ctx)
				}
			}
		}
	}()
}
