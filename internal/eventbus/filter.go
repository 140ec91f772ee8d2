package eventbus

import (
	"context"

	"github.com/gridshare/platform/internal/domain"
)

// SubscribeStatus registers h for the status-only event carrying status.
func (b *Bus) SubscribeStatus(status domain.Status, h Handler) {
	b.Subscribe(domain.SimpleEventType(status), h)
}

// OnlyStatus wraps h so it only sees events whose header carries one of the
// given statuses. Useful for region variants shared by several statuses.
func OnlyStatus(h Handler, statuses ...domain.Status) Handler {
	allowed := make(map[domain.Status]bool, len(statuses))
	for _, s := range statuses {
		allowed[s] = true
	}
	return HandlerFunc(func(ctx context.Context, ev domain.PermissionEvent) error {
		if !allowed[ev.Status()] {
			return nil
		}
		return h.Handle(ctx, ev)
	})
}
