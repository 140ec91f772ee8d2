// Package eventstore persists PermissionEvents in an append-only log keyed by
// permission id.
package eventstore

import (
	"context"
	"fmt"
	"time"

	"github.com/gridshare/platform/internal/domain"
	"github.com/gridshare/platform/internal/lifecycle"
)

// Store is the durable append-only event log.
type Store interface {
	// Append assigns a monotonically increasing id, stamps eventCreated and
	// persists the event atomically. Ids are not guaranteed to become
	// visible in id order across requests.
	Append(ctx context.Context, ev domain.PermissionEvent) (domain.StoredEvent, error)

	// FindByPermissionID returns the events of one request in commit order.
	FindByPermissionID(ctx context.Context, permissionID string) ([]domain.StoredEvent, error)
}

// StatusIndex finds requests by the status of their newest event.
type StatusIndex interface {
	LatestByStatus(ctx context.Context, status domain.Status, before time.Time) ([]string, error)
}

// Publications is the queue of appended events not yet handed to the
// broker. Every append enqueues its event atomically with the event itself.
type Publications interface {
	// Unpublished returns up to limit queued events ordered by id.
	Unpublished(ctx context.Context, limit int) ([]domain.StoredEvent, error)

	// MarkPublished removes events from the queue.
	MarkPublished(ctx context.Context, ids []int64) error
}

// PersistenceError reports a storage failure. Nothing was appended.
type PersistenceError struct {
	PermissionID string
	Err          error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist event for permission %s: %v", e.PermissionID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Guard decides whether an event with status next may follow a log whose
// newest status is last.
type Guard func(last domain.Status, hasLast bool, next domain.Status) error

type options struct {
	guard Guard
	clock func() time.Time
}

// Option configures a store.
type Option func(*options)

// WithGuard replaces the lifecycle graph check run before every append.
func WithGuard(g Guard) Option {
	return func(o *options) { o.guard = g }
}

// WithoutGuard disables transition checks on append.
func WithoutGuard() Option {
	return func(o *options) {
		o.guard = func(domain.Status, bool, domain.Status) error { return nil }
	}
}

// WithClock sets the source of commit timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

func buildOptions(opts []Option) options {
	o := options{
		guard: lifecycle.CheckTransition,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
