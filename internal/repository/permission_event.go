package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gridshare/platform/internal/domain"
	"github.com/jackc/pgx/v5"
)

type permissionEventRepo struct{}

// NewPermissionEventRepository returns a pgx-backed PermissionEventRepository.
func NewPermissionEventRepository() PermissionEventRepository {
	return &permissionEventRepo{}
}

const eventColumns = `id, permission_id, region_id, event_type, status, event_created, payload`

func (r *permissionEventRepo) Lock(ctx context.Context, tx pgx.Tx, permissionID string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, permissionID); err != nil {
		return fmt.Errorf("lock permission %s: %w", permissionID, err)
	}
	return nil
}

func (r *permissionEventRepo) Insert(ctx context.Context, db DBTX, rec domain.EventRecord) (int64, error) {
	var id int64
	err := db.QueryRow(ctx, `
		INSERT INTO permission_event
		  (permission_id, region_id, event_type, status, event_created, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		rec.PermissionID,
		rec.RegionID,
		string(rec.EventType),
		string(rec.Status),
		rec.EventCreated,
		rec.Payload,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert permission event: %w", err)
	}
	return id, nil
}

func (r *permissionEventRepo) Latest(ctx context.Context, db DBTX, permissionID string) (*domain.EventRecord, error) {
	row := db.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM permission_event
		WHERE permission_id = $1
		ORDER BY id DESC
		LIMIT 1`, permissionID)

	rec, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest permission event: %w", err)
	}
	return rec, nil
}

func (r *permissionEventRepo) ListByPermissionID(ctx context.Context, db DBTX, permissionID string) ([]domain.EventRecord, error) {
	rows, err := db.Query(ctx, `
		SELECT `+eventColumns+`
		FROM permission_event
		WHERE permission_id = $1
		ORDER BY id ASC`, permissionID)
	if err != nil {
		return nil, fmt.Errorf("list permission events: %w", err)
	}
	return collectEvents(rows)
}

func (r *permissionEventRepo) LatestByStatus(ctx context.Context, db DBTX, status domain.Status, before time.Time) ([]string, error) {
	rows, err := db.Query(ctx, `
		SELECT permission_id
		FROM (
			SELECT DISTINCT ON (permission_id) permission_id, status, event_created
			FROM permission_event
			ORDER BY permission_id, id DESC
		) latest
		WHERE status = $1 AND event_created < $2
		ORDER BY permission_id`, string(status), before)
	if err != nil {
		return nil, fmt.Errorf("latest by status %s: %w", status, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan permission id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanEvent(row pgx.Row) (*domain.EventRecord, error) {
	var rec domain.EventRecord
	var eventType, status string
	err := row.Scan(&rec.ID, &rec.PermissionID, &rec.RegionID, &eventType, &status, &rec.EventCreated, &rec.Payload)
	if err != nil {
		return nil, err
	}
	rec.EventType = domain.EventType(eventType)
	rec.Status = domain.Status(status)
	rec.EventCreated = rec.EventCreated.UTC()
	return &rec, nil
}

func collectEvents(rows pgx.Rows) ([]domain.EventRecord, error) {
	defer rows.Close()

	var records []domain.EventRecord
	for rows.Next() {
		rec, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan permission event: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}
