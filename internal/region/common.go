package region

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gridshare/platform/internal/domain"
	"github.com/gridshare/platform/internal/eventbus"
	"github.com/gridshare/platform/internal/eventstore"
	"github.com/gridshare/platform/internal/guard"
	"github.com/gridshare/platform/internal/outbox"
	"github.com/gridshare/platform/internal/permission"
	"github.com/gridshare/platform/internal/reactor"
)

// DefaultDedupeTTL is how long ACCEPTED deliveries are remembered when
// CommonDeps.Dedupe is nil.
const DefaultDedupeTTL = 24 * time.Hour

// CommonDeps are the collaborators of the shared lifecycle handlers. Nil
// collaborators leave their handler unregistered.
type CommonDeps struct {
	Repo        permission.Getter
	Outbox      outbox.Committer
	Sender      reactor.Sender
	Poller      reactor.Poller
	Terminator  reactor.Terminator
	Credentials reactor.CredentialDeleter
	Dedupe      *guard.IdempotencyGuard
	Logger      *slog.Logger
}

// Common wires the generic reactor handlers for one region. It adds no
// event variants of its own.
type Common struct {
	id   string
	deps CommonDeps
}

func NewCommon(id string, deps CommonDeps) *Common {
	return &Common{id: id, deps: deps}
}

func (c *Common) ID() string { return c.id }

// Dedupe returns the guard the ACCEPTED handler uses, nil before
// RegisterHandlers or without a poller.
func (c *Common) Dedupe() *guard.IdempotencyGuard { return c.deps.Dedupe }

func (c *Common) RegisterEvents(*eventstore.Registry) error { return nil }

func (c *Common) RegisterHandlers(bus *eventbus.Bus) error {
	d := c.deps
	if d.Repo == nil || d.Outbox == nil || d.Logger == nil {
		return fmt.Errorf("region %s: repository, outbox and logger are required", c.id)
	}

	if d.Sender != nil {
		bus.Subscribe(domain.EventValidated, reactor.NewSendHandler(d.Repo, d.Sender, d.Outbox, d.Logger))
	}
	if d.Poller != nil {
		if d.Dedupe == nil {
			d.Dedupe = guard.NewIdempotencyGuard(DefaultDedupeTTL)
		}
		c.deps.Dedupe = d.Dedupe
		bus.Subscribe(domain.EventAccepted, reactor.NewAcceptedHandler(d.Repo, d.Poller, d.Dedupe, d.Logger))
	}
	bus.Subscribe(domain.EventMeterReadingObserved, reactor.NewFulfillmentHandler(d.Repo, d.Outbox, d.Logger))
	bus.SubscribeStatus(domain.StatusUnfulfillable, reactor.NewUnfulfillableHandler(d.Outbox))
	if d.Terminator != nil {
		bus.SubscribeStatus(domain.StatusRequiresExternalTermination,
			reactor.NewExternalTerminationHandler(d.Repo, d.Terminator, d.Outbox, d.Logger))
	}
	if d.Credentials != nil {
		cleanup := reactor.NewCredentialCleanupHandler(d.Credentials, d.Logger)
		bus.SubscribeStatus(domain.StatusRevoked, cleanup)
		bus.SubscribeStatus(domain.StatusExternallyTerminated, cleanup)
	}

	d.Logger.Info("region handlers registered", "region", c.id)
	return nil
}
