// Package coordinator applies claim, promise, fulfilment and confirmation
// operations across donations, shelter requests and claims, keeping the
// three in step and telling the affected users.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/darilo/internal/model"
	"github.com/erazemk/darilo/internal/notify"
	"github.com/erazemk/darilo/internal/store"
)

// Retry bounds how often an operation is re-run after a concurrent
// modification. The n-th retry waits Backoff * 2^(n-1).
type Retry struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetry is used unless WithRetry says otherwise.
var DefaultRetry = Retry{Attempts: 3, Backoff: 10 * time.Millisecond}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	store  store.Entities
	tx     store.Transactor
	sink   notify.Sink
	policy model.FulfillmentPolicy
	locks  *lockTable
	recon  *Reconciler
	retry  Retry
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPolicy sets the rule deciding when a shelter request is fulfilled.
func WithPolicy(p model.FulfillmentPolicy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithRetry overrides DefaultRetry.
func WithRetry(r Retry) Option {
	return func(c *Coordinator) { c.retry = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithIDs overrides the random UUID generator used for new entities and
// events.
func WithIDs(newID func() string) Option {
	return func(c *Coordinator) { c.newID = newID }
}

// WithLogger sets the audit logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithoutTransactions makes the coordinator use ordered writes with
// compensation even when the store supports transactions.
func WithoutTransactions() Option {
	return func(c *Coordinator) { c.tx = nil }
}

// New returns a coordinator over s. If s also implements store.Transactor,
// cross-entity writes run in a single transaction.
func New(s store.Entities, sink notify.Sink, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  s,
		sink:   sink,
		policy: model.AllPromisedDelivered,
		locks:  newLockTable(),
		retry:  DefaultRetry,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	if tx, ok := s.(store.Transactor); ok {
		c.tx = tx
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sink == nil {
		c.sink = notify.Discard{}
	}
	if c.retry.Attempts < 1 {
		c.retry.Attempts = 1
	}
	c.recon = newReconciler(c.reconcile, c.logger)
	return c
}

// Reconciler returns the queue of dependent updates awaiting repair.
func (c *Coordinator) Reconciler() *Reconciler {
	return c.recon
}

type delivery struct {
	userID    int64
	broadcast bool
	ev        model.Event
}

// unit is one attempt at an operation. e is either the store or a view bound
// to a transaction.
type unit struct {
	c   *Coordinator
	e   store.Entities
	tx  bool
	out []delivery
}

func (u *unit) stamp(ev model.Event) model.Event {
	ev.ID = u.c.newID()
	ev.At = u.c.now()
	return ev
}

// notify queues ev for userID. Queued events are sent only once the
// operation has persisted.
func (u *unit) notify(userID int64, ev model.Event) {
	if userID == 0 {
		return
	}
	for _, d := range u.out {
		if !d.broadcast && d.userID == userID && d.ev.Kind == ev.Kind {
			return
		}
	}
	u.out = append(u.out, delivery{userID: userID, ev: u.stamp(ev)})
}

func (u *unit) broadcast(ev model.Event) {
	u.out = append(u.out, delivery{broadcast: true, ev: u.stamp(ev)})
}

// follow applies a dependent update. Inside a transaction a failure aborts
// the operation. Without one the update is retried and, if it still fails,
// queued for reconciliation while the operation goes on.
func (u *unit) follow(ctx context.Context, t Task) error {
	if u.tx {
		return applyTask(ctx, u.e, t, u.c.policy, u.c.now())
	}
	err := u.c.retryConflicts(ctx, "follow", func() error {
		return applyTask(ctx, u.e, t, u.c.policy, u.c.now())
	})
	if err == nil {
		return nil
	}
	t.Attempts = u.c.retry.Attempts
	t.LastError = err.Error()
	t.CreatedAt = u.c.now()
	u.c.recon.Add(t)
	u.c.logger.Warn("dependent update queued for reconciliation", "task", t.String(), "error", err)
	return nil
}

// compensate undoes an earlier write after a later one failed. Inside a
// transaction the rollback already does that.
func (u *unit) compensate(ctx context.Context, t Task) {
	if !u.tx {
		u.follow(ctx, t)
	}
}

// run executes body under the entity locks named by keys, inside a
// transaction when available, retrying concurrent modifications. Events
// queued by the successful attempt are delivered after the locks are
// released.
func (c *Coordinator) run(ctx context.Context, op string, keys func() []string, body func(u *unit) error) error {
	start := time.Now()
	var out []delivery

	err := c.retryConflicts(ctx, op, func() error {
		want := keys()
		unlock := c.locks.Lock(want...)
		defer unlock()
		if !covers(want, keys()) {
			return fmt.Errorf("%w: related entities changed while locking", model.ErrConcurrentModification)
		}

		var u *unit
		if c.tx != nil {
			err := c.tx.InTx(ctx, func(e store.Entities) error {
				u = &unit{c: c, e: e, tx: true}
				return body(u)
			})
			if err != nil {
				return err
			}
		} else {
			u = &unit{c: c, e: c.store}
			if err := body(u); err != nil {
				return err
			}
		}
		out = u.out
		return nil
	})
	err = classify(err)

	opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		opsTotal.WithLabelValues(op, model.ErrorCode(err)).Inc()
		return err
	}
	opsTotal.WithLabelValues(op, "ok").Inc()

	for _, d := range out {
		if d.broadcast {
			c.sink.Broadcast(ctx, d.ev)
		} else {
			c.sink.Notify(ctx, d.userID, d.ev)
		}
	}
	return nil
}

// retryConflicts re-runs fn while it fails with a concurrent modification,
// then gives up with a persistence failure.
func (c *Coordinator) retryConflicts(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < c.retry.Attempts; attempt++ {
		if attempt > 0 {
			retriesTotal.WithLabelValues(op).Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retry.Backoff << (attempt - 1)):
			}
		}
		err = fn()
		if !errors.Is(err, model.ErrConcurrentModification) {
			return err
		}
	}
	return fmt.Errorf("%w: gave up after %d attempts: %v", model.ErrPersistence, c.retry.Attempts, err)
}

// classify keeps domain errors and reports everything else as a persistence
// failure.
func classify(err error) error {
	if err == nil || model.ErrorCode(err) != "internal" {
		return err
	}
	return fmt.Errorf("%w: %v", model.ErrPersistence, err)
}

// reconcile applies one queued task under the lock of its target.
func (c *Coordinator) reconcile(ctx context.Context, t Task) error {
	key := requestKey(t.EntityID)
	if t.Kind == TaskRemoveActive {
		key = donationKey(t.EntityID)
	}
	unlock := c.locks.Lock(key)
	defer unlock()
	return c.retryConflicts(ctx, "reconcile", func() error {
		return applyTask(ctx, c.store, t, c.policy, c.now())
	})
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s does not exist", model.ErrNotFound, kind, id)
}

func forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{model.ErrForbidden}, args...)...)
}

// owns reports whether actor may manage an entity owned by ownerID.
func owns(actor model.Actor, ownerID int64) bool {
	return actor.ID == ownerID || actor.Role == model.RoleAdmin
}

func keysOf(keys ...string) func() []string {
	return func() []string { return keys }
}
