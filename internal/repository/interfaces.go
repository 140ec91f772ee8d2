package repository

import (
	"context"
	"time"

	"github.com/gridshare/platform/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PermissionEventRepository provides access to the append-only permission_event table.
type PermissionEventRepository interface {
	// Lock takes a transaction-scoped advisory lock on the permission id so
	// concurrent appends for the same request are serialized.
	Lock(ctx context.Context, tx pgx.Tx, permissionID string) error

	// Insert appends a record and returns its store-assigned id.
	Insert(ctx context.Context, db DBTX, rec domain.EventRecord) (int64, error)

	// Latest returns the newest record of a permission request, if any.
	Latest(ctx context.Context, db DBTX, permissionID string) (*domain.EventRecord, error)

	// ListByPermissionID returns all records of a request ordered by id.
	ListByPermissionID(ctx context.Context, db DBTX, permissionID string) ([]domain.EventRecord, error)

	// LatestByStatus returns the permission ids whose newest record has the
	// given status and was created before the cutoff.
	LatestByStatus(ctx context.Context, db DBTX, status domain.Status, before time.Time) ([]string, error)
}

// PublicationRepository provides access to event_publication, the queue of
// events the relay has not published yet.
type PublicationRepository interface {
	// Enqueue marks an event for publication. Call it in the append transaction.
	Enqueue(ctx context.Context, db DBTX, eventID int64) error

	// ListUnpublished returns up to limit queued records ordered by id.
	// Rows of transactions still in flight are not visible and show up on a
	// later call.
	ListUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.EventRecord, error)

	// MarkPublished removes events from the queue.
	MarkPublished(ctx context.Context, db DBTX, eventIDs []int64) error
}
