package repository

import (
	"context"
	"fmt"

	"github.com/gridshare/platform/internal/domain"
)

type publicationRepo struct{}

// NewPublicationRepository returns a pgx-backed PublicationRepository.
func NewPublicationRepository() PublicationRepository {
	return &publicationRepo{}
}

func (r *publicationRepo) Enqueue(ctx context.Context, db DBTX, eventID int64) error {
	if _, err := db.Exec(ctx, `INSERT INTO event_publication (event_id) VALUES ($1)`, eventID); err != nil {
		return fmt.Errorf("enqueue event %d: %w", eventID, err)
	}
	return nil
}

func (r *publicationRepo) ListUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.EventRecord, error) {
	rows, err := db.Query(ctx, `
		SELECT e.id, e.permission_id, e.region_id, e.event_type, e.status, e.event_created, e.payload
		FROM event_publication p
		JOIN permission_event e ON e.id = p.event_id
		ORDER BY p.event_id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unpublished events: %w", err)
	}
	return collectEvents(rows)
}

func (r *publicationRepo) MarkPublished(ctx context.Context, db DBTX, eventIDs []int64) error {
	if len(eventIDs) == 0 {
		return nil
	}
	if _, err := db.Exec(ctx, `DELETE FROM event_publication WHERE event_id = ANY($1)`, eventIDs); err != nil {
		return fmt.Errorf("mark %d events published: %w", len(eventIDs), err)
	}
	return nil
}
