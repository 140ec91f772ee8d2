package eventstore

import (
	"context"
	"time"

	"github.com/gridshare/platform/internal/domain"
	"github.com/gridshare/platform/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists events in the permission_event table and queues
// them in event_publication. Appends for the same permission id are
// serialized by a transaction-scoped advisory lock.
type PostgresStore struct {
	pool         *pgxpool.Pool
	events       repository.PermissionEventRepository
	publications repository.PublicationRepository
	registry     *Registry
	opts         options
}

// NewPostgresStore creates a store over an existing pool.
func NewPostgresStore(pool *pgxpool.Pool, events repository.PermissionEventRepository, publications repository.PublicationRepository, registry *Registry, opts ...Option) *PostgresStore {
	return &PostgresStore{
		pool:         pool,
		events:       events,
		publications: publications,
		registry:     registry,
		opts:         buildOptions(opts),
	}
}

func (s *PostgresStore) Append(ctx context.Context, ev domain.PermissionEvent) (domain.StoredEvent, error) {
	pid := ev.PermissionID()
	var stored domain.StoredEvent
	var guardErr error

	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if err := s.events.Lock(ctx, tx, pid); err != nil {
			return err
		}

		last, err := s.events.Latest(ctx, tx, pid)
		if err != nil {
			return err
		}
		if guardErr = s.opts.guard(lastStatus(last), last != nil, ev.Status()); guardErr != nil {
			return guardErr
		}

		domain.Stamp(ev, s.opts.clock())
		rec, err := s.registry.Encode(ev)
		if err != nil {
			return err
		}
		if rec.RegionID == "" && last != nil {
			rec.RegionID = last.RegionID
		}

		id, err := s.events.Insert(ctx, tx, rec)
		if err != nil {
			return err
		}
		if err := s.publications.Enqueue(ctx, tx, id); err != nil {
			return err
		}
		stored = domain.StoredEvent{ID: id, Event: ev}
		return nil
	})
	if guardErr != nil {
		return domain.StoredEvent{}, guardErr
	}
	if err != nil {
		return domain.StoredEvent{}, &PersistenceError{PermissionID: pid, Err: err}
	}
	return stored, nil
}

func (s *PostgresStore) FindByPermissionID(ctx context.Context, permissionID string) ([]domain.StoredEvent, error) {
	records, err := s.events.ListByPermissionID(ctx, s.pool, permissionID)
	if err != nil {
		return nil, &PersistenceError{PermissionID: permissionID, Err: err}
	}
	return s.registry.decodeAll(records)
}

func (s *PostgresStore) Unpublished(ctx context.Context, limit int) ([]domain.StoredEvent, error) {
	records, err := s.publications.ListUnpublished(ctx, s.pool, limit)
	if err != nil {
		return nil, err
	}
	return s.registry.decodeAll(records)
}

func (s *PostgresStore) MarkPublished(ctx context.Context, ids []int64) error {
	return s.publications.MarkPublished(ctx, s.pool, ids)
}

func (s *PostgresStore) LatestByStatus(ctx context.Context, status domain.Status, before time.Time) ([]string, error) {
	return s.events.LatestByStatus(ctx, s.pool, status, before)
}
