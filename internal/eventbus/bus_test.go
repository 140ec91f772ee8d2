package eventbus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gridshare/platform/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type namedHandler struct {
	name string
	err  error
	log  *[]string
}

func (h *namedHandler) Name() string { return h.name }
func (h *namedHandler) Handle(_ context.Context, _ domain.PermissionEvent) error {
	*h.log = append(*h.log, h.name)
	return h.err
}

// --- Dispatch Tests ---

func TestBus_DispatchesInRegistrationOrder(t *testing.T) {
	bus := New(testLogger(), nil)
	var calls []string
	for _, name := range []string{"first", "second", "third"} {
		bus.Subscribe(domain.EventAccepted, &namedHandler{name: name, log: &calls})
	}

	require.NoError(t, bus.Emit(context.Background(), domain.NewAcceptedEvent("pid")))
	assert.Equal(t, []string{"first", "second", "third"}, calls)
}

func TestBus_ExactTypeOnly(t *testing.T) {
	bus := New(testLogger(), nil)
	var calls []string
	bus.Subscribe(domain.EventAccepted, &namedHandler{name: "accepted", log: &calls})
	bus.Subscribe(domain.EventCreated, &namedHandler{name: "created", log: &calls})

	require.NoError(t, bus.Emit(context.Background(), domain.NewSimpleEvent("pid", domain.StatusCreated)))
	assert.Empty(t, calls, "a status-only CREATED event is not a CreatedEvent")

	require.NoError(t, bus.Emit(context.Background(), domain.NewCreatedEvent("pid", "dnid", "cid")))
	assert.Equal(t, []string{"created"}, calls)
}

func TestBus_FirstErrorAborts(t *testing.T) {
	bus := New(testLogger(), nil)
	var calls []string
	boom := errors.New("collaborator down")
	bus.Subscribe(domain.EventRevoked, &namedHandler{name: "ok", log: &calls})
	bus.Subscribe(domain.EventRevoked, &namedHandler{name: "failing", err: boom, log: &calls})
	bus.Subscribe(domain.EventRevoked, &namedHandler{name: "never", log: &calls})

	err := bus.Emit(context.Background(), domain.NewRevokedEvent("pid"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var he *HandlerError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "failing", he.Handler)
	assert.Equal(t, domain.EventRevoked, he.EventType)
	assert.Equal(t, []string{"ok", "failing"}, calls)
}

func TestBus_NoHandlers(t *testing.T) {
	bus := New(testLogger(), nil)
	assert.NoError(t, bus.Emit(context.Background(), domain.NewAcceptedEvent("pid")))
	assert.Equal(t, 0, bus.Handlers(domain.EventAccepted))
}

func TestBus_HandlerMaySubscribeDuringDispatch(t *testing.T) {
	bus := New(testLogger(), nil)
	bus.SubscribeFunc(domain.EventAccepted, func(ctx context.Context, ev domain.PermissionEvent) error {
		bus.SubscribeFunc(domain.EventFulfilled, func(context.Context, domain.PermissionEvent) error { return nil })
		return nil
	})

	require.NoError(t, bus.Emit(context.Background(), domain.NewAcceptedEvent("pid")))
	assert.Equal(t, 1, bus.Handlers(domain.EventFulfilled))
}

// --- Filter Tests ---

func TestSubscribeStatus(t *testing.T) {
	bus := New(testLogger(), nil)
	var calls []string
	bus.SubscribeStatus(domain.StatusUnfulfillable, &namedHandler{name: "u", log: &calls})

	require.NoError(t, bus.Emit(context.Background(), domain.NewUnfulfillableEvent("pid")))
	assert.Equal(t, []string{"u"}, calls)
}

func TestOnlyStatus(t *testing.T) {
	var calls []string
	h := OnlyStatus(&namedHandler{name: "h", log: &calls}, domain.StatusAccepted)

	require.NoError(t, h.Handle(context.Background(), domain.NewMeterReadingObservedEvent("pid", time.Now())))
	require.NoError(t, h.Handle(context.Background(), domain.NewGranularityUpdatedEvent("pid", domain.StatusSentToPermissionAdministrator, domain.GranularityPT1H)))
	assert.Equal(t, []string{"h"}, calls)
}
