// Package outbox is the single entry point through which new facts enter the
// system: events are persisted first and only then dispatched.
package outbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gridshare/platform/internal/domain"
	"github.com/gridshare/platform/internal/eventstore"
	"github.com/gridshare/platform/internal/infra"
)

// Emitter delivers a stored event to its handlers.
type Emitter interface {
	Emit(ctx context.Context, ev domain.PermissionEvent) error
}

// Committer is what handlers and region connectors depend on.
type Committer interface {
	Commit(ctx context.Context, ev domain.PermissionEvent) error
}

// DispatchError reports that an event was stored but a handler failed. The
// event stays in the log.
type DispatchError struct {
	EventID      int64
	PermissionID string
	EventType    domain.EventType
	Err          error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s (event %d) for permission %s: %v", e.EventType, e.EventID, e.PermissionID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Outbox couples the event store and the event bus.
type Outbox struct {
	store   eventstore.Store
	bus     Emitter
	logger  *slog.Logger
	metrics *infra.Metrics
}

// New creates an outbox. metrics may be nil.
func New(store eventstore.Store, bus Emitter, logger *slog.Logger, metrics *infra.Metrics) *Outbox {
	return &Outbox{store: store, bus: bus, logger: logger, metrics: metrics}
}

// Commit appends ev and, only if the append succeeded, emits it. Store errors
// are returned as is and the bus is not invoked. Handler errors are returned
// as *DispatchError. Commit never retries.
func (o *Outbox) Commit(ctx context.Context, ev domain.PermissionEvent) error {
	t := ev.EventType()

	stored, err := o.store.Append(ctx, ev)
	if err != nil {
		o.metrics.CommitFailed(string(t), "persist")
		o.logger.Error("commit failed",
			"permission_id", ev.PermissionID(),
			"event_type", t,
			"status", ev.Status(),
			"error", err,
		)
		return err
	}
	o.metrics.Committed(string(t))
	o.logger.Debug("event committed",
		"permission_id", ev.PermissionID(),
		"event_type", t,
		"event_id", stored.ID,
	)

	if err := o.bus.Emit(ctx, stored.Event); err != nil {
		o.metrics.CommitFailed(string(t), "dispatch")
		return &DispatchError{
			EventID:      stored.ID,
			PermissionID: ev.PermissionID(),
			EventType:    t,
			Err:          err,
		}
	}
	return nil
}
