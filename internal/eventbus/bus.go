// Package eventbus dispatches committed PermissionEvents to the handlers
// registered for their exact event type.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gridshare/platform/internal/domain"
	"github.com/gridshare/platform/internal/infra"
)

// Handler reacts to one delivered event.
type Handler interface {
	Handle(ctx context.Context, ev domain.PermissionEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev domain.PermissionEvent) error

func (f HandlerFunc) Handle(ctx context.Context, ev domain.PermissionEvent) error {
	return f(ctx, ev)
}

// Named is optionally implemented by handlers to label log lines and errors.
type Named interface {
	Name() string
}

// HandlerError identifies the handler whose failure aborted a dispatch.
type HandlerError struct {
	EventType domain.EventType
	Handler   string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s for %s: %v", e.Handler, e.EventType, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Bus is an in-process, synchronous event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[domain.EventType][]Handler
	logger   *slog.Logger
	metrics  *infra.Metrics
}

// New creates an empty bus. metrics may be nil.
func New(logger *slog.Logger, metrics *infra.Metrics) *Bus {
	return &Bus{
		handlers: make(map[domain.EventType][]Handler),
		logger:   logger,
		metrics:  metrics,
	}
}

// Subscribe registers h for events whose discriminator is exactly t.
func (b *Bus) Subscribe(t domain.EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// SubscribeFunc registers a function handler.
func (b *Bus) SubscribeFunc(t domain.EventType, f func(ctx context.Context, ev domain.PermissionEvent) error) {
	b.Subscribe(t, HandlerFunc(f))
}

// Handlers returns how many handlers are registered for t.
func (b *Bus) Handlers(t domain.EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[t])
}

// Emit runs the handlers registered for ev's type on the caller's goroutine,
// in registration order. The first handler error stops the dispatch and is
// returned wrapped in a *HandlerError.
func (b *Bus) Emit(ctx context.Context, ev domain.PermissionEvent) error {
	t := ev.EventType()

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[t]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	start := time.Now()
	defer func() { b.metrics.Dispatched(string(t), time.Since(start)) }()

	for i, h := range handlers {
		if err := h.Handle(ctx, ev); err != nil {
			name := handlerName(h, i)
			b.logger.Warn("event handler failed",
				"permission_id", ev.PermissionID(),
				"event_type", t,
				"handler", name,
				"error", err,
			)
			return &HandlerError{EventType: t, Handler: name, Err: err}
		}
	}
	return nil
}

func handlerName(h Handler, i int) string {
	if n, ok := h.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("#%d", i)
}
