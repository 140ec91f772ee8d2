// Package permission exposes permission requests as projections of their
// event logs and drives lifecycle operations through the outbox.
package permission

import (
	"context"

	"github.com/gridshare/platform/internal/domain"
	"github.com/gridshare/platform/internal/eventstore"
)

// Getter loads the current projection of a permission request.
type Getter interface {
	GetByPermissionID(ctx context.Context, permissionID string) (*domain.PermissionRequest, error)
}

// Repository rebuilds projections by replaying the event store.
type Repository struct {
	store eventstore.Store
}

func NewRepository(store eventstore.Store) *Repository {
	return &Repository{store: store}
}

// GetByPermissionID returns domain.ErrNotFound when the log is empty.
func (r *Repository) GetByPermissionID(ctx context.Context, permissionID string) (*domain.PermissionRequest, error) {
	events, err := r.Events(ctx, permissionID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, domain.ErrNotFound("permission request", permissionID)
	}

	pr := &domain.PermissionRequest{}
	for _, stored := range events {
		pr.Apply(stored)
	}
	return pr, nil
}

// Events returns the raw event log of a permission request.
func (r *Repository) Events(ctx context.Context, permissionID string) ([]domain.StoredEvent, error) {
	events, err := r.store.FindByPermissionID(ctx, permissionID)
	if err != nil {
		return nil, domain.ErrUnavailable("load permission events", err)
	}
	return events, nil
}
