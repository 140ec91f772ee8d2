// Package reactor holds the generic handlers every region wires onto the
// event bus. Each one reacts to a single event type by calling a
// collaborator or committing a follow-up event.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gridshare/platform/internal/domain"
	"github.com/gridshare/platform/internal/guard"
	"github.com/gridshare/platform/internal/outbox"
	"github.com/gridshare/platform/internal/permission"
)

// Poller starts a data fetch for an accepted request.
type Poller interface {
	Poll(ctx context.Context, pr *domain.PermissionRequest) error
}

// Terminator ends a permission at the permission administrator.
type Terminator interface {
	Terminate(ctx context.Context, pr *domain.PermissionRequest) error
}

// Sender submits a validated request to the permission administrator.
type Sender interface {
	Send(ctx context.Context, pr *domain.PermissionRequest) error
}

// CredentialDeleter drops cached credentials of a permission.
type CredentialDeleter interface {
	DeleteByPermissionID(ctx context.Context, permissionID string) error
}

// AcceptedHandler polls the region once per accepted request. Repeated
// deliveries of the same event are dropped by the idempotency guard.
type AcceptedHandler struct {
	repo   permission.Getter
	poller Poller
	dedupe *guard.IdempotencyGuard
	logger *slog.Logger
}

func NewAcceptedHandler(repo permission.Getter, poller Poller, dedupe *guard.IdempotencyGuard, logger *slog.Logger) *AcceptedHandler {
	return &AcceptedHandler{repo: repo, poller: poller, dedupe: dedupe, logger: logger}
}

func (h *AcceptedHandler) Name() string { return "accepted-poll" }

func (h *AcceptedHandler) Handle(ctx context.Context, ev domain.PermissionEvent) error {
	key := guard.DeliveryKey(ev)
	if res := h.dedupe.Check(ctx, key); !res.Allowed {
		h.logger.Debug("skipping duplicate delivery", "permission_id", ev.PermissionID(), "reason", res.Reason)
		return nil
	}

	pr, err := h.repo.GetByPermissionID(ctx, ev.PermissionID())
	if err != nil {
		h.dedupe.Remove(key)
		return err
	}
	if err := h.poller.Poll(ctx, pr); err != nil {
		h.dedupe.Remove(key)
		return fmt.Errorf("poll %s: %w", pr.PermissionID, err)
	}
	return nil
}

// SendHandler forwards validated requests to the permission administrator
// and records SENT_TO_PERMISSION_ADMINISTRATOR. A refusal is recorded as
// UNABLE_TO_SEND; temporary failures leave the request VALIDATED for the
// sweep to resend and are returned.
type SendHandler struct {
	repo   permission.Getter
	sender Sender
	outbox outbox.Committer
	logger *slog.Logger
}

func NewSendHandler(repo permission.Getter, sender Sender, ob outbox.Committer, logger *slog.Logger) *SendHandler {
	return &SendHandler{repo: repo, sender: sender, outbox: ob, logger: logger}
}

func (h *SendHandler) Name() string { return "send-to-permission-administrator" }

func (h *SendHandler) Handle(ctx context.Context, ev domain.PermissionEvent) error {
	pr, err := h.repo.GetByPermissionID(ctx, ev.PermissionID())
	if err != nil {
		return err
	}
	return h.send(ctx, pr)
}

// Resend sends a request that is still VALIDATED again. Requests that moved
// on in the meantime are left alone.
func (h *SendHandler) Resend(ctx context.Context, permissionID string) error {
	pr, err := h.repo.GetByPermissionID(ctx, permissionID)
	if err != nil {
		return err
	}
	if pr.Status != domain.StatusValidated {
		return nil
	}
	h.logger.Info("resending permission request", "permission_id", permissionID)
	return h.send(ctx, pr)
}

func (h *SendHandler) send(ctx context.Context, pr *domain.PermissionRequest) error {
	sendErr := h.sender.Send(ctx, pr)
	if sendErr == nil {
		return h.outbox.Commit(ctx, domain.NewSimpleEvent(pr.PermissionID, domain.StatusSentToPermissionAdministrator))
	}

	var temp interface{ Temporary() bool }
	if !errors.As(sendErr, &temp) || temp.Temporary() {
		return fmt.Errorf("send %s: %w", pr.PermissionID, sendErr)
	}
	h.logger.Warn("permission administrator refused request", "permission_id", pr.PermissionID, "error", sendErr)
	return h.outbox.Commit(ctx, domain.NewSimpleEvent(pr.PermissionID, domain.StatusUnableToSend))
}

// FulfillmentHandler commits FULFILLED once an accepted request has seen a
// meter reading at or after the end of its data window.
type FulfillmentHandler struct {
	repo   permission.Getter
	outbox outbox.Committer
	logger *slog.Logger
}

func NewFulfillmentHandler(repo permission.Getter, ob outbox.Committer, logger *slog.Logger) *FulfillmentHandler {
	return &FulfillmentHandler{repo: repo, outbox: ob, logger: logger}
}

func (h *FulfillmentHandler) Name() string { return "fulfillment" }

func (h *FulfillmentHandler) Handle(ctx context.Context, ev domain.PermissionEvent) error {
	reading, ok := ev.(*domain.MeterReadingObservedEvent)
	if !ok {
		return fmt.Errorf("fulfillment handler got %T", ev)
	}

	pr, err := h.repo.GetByPermissionID(ctx, ev.PermissionID())
	if err != nil {
		return err
	}
	if pr.Status != domain.StatusAccepted {
		return nil
	}
	end := pr.DataWindowEnd()
	if end.IsZero() || reading.ReadingEnd.Before(end) {
		return nil
	}

	h.logger.Info("data window complete, fulfilling permission",
		"permission_id", pr.PermissionID,
		"reading_end", reading.ReadingEnd,
		"data_end", end,
	)
	return h.outbox.Commit(ctx, domain.NewFulfilledEvent(pr.PermissionID))
}

// UnfulfillableHandler escalates an unfulfillable request to external
// termination.
type UnfulfillableHandler struct {
	outbox outbox.Committer
}

func NewUnfulfillableHandler(ob outbox.Committer) *UnfulfillableHandler {
	return &UnfulfillableHandler{outbox: ob}
}

func (h *UnfulfillableHandler) Name() string { return "unfulfillable" }

func (h *UnfulfillableHandler) Handle(ctx context.Context, ev domain.PermissionEvent) error {
	return h.outbox.Commit(ctx, domain.NewRequiresExternalTerminationEvent(ev.PermissionID()))
}

// ExternalTerminationHandler asks the permission administrator to end the
// permission. With a non-nil committer the outcome is recorded as
// EXTERNALLY_TERMINATED or FAILED_TO_TERMINATE.
type ExternalTerminationHandler struct {
	repo       permission.Getter
	terminator Terminator
	outbox     outbox.Committer
	logger     *slog.Logger
}

func NewExternalTerminationHandler(repo permission.Getter, terminator Terminator, ob outbox.Committer, logger *slog.Logger) *ExternalTerminationHandler {
	return &ExternalTerminationHandler{repo: repo, terminator: terminator, outbox: ob, logger: logger}
}

func (h *ExternalTerminationHandler) Name() string { return "external-termination" }

func (h *ExternalTerminationHandler) Handle(ctx context.Context, ev domain.PermissionEvent) error {
	pr, err := h.repo.GetByPermissionID(ctx, ev.PermissionID())
	if err != nil {
		return err
	}

	termErr := h.terminator.Terminate(ctx, pr)
	if h.outbox == nil {
		return termErr
	}
	if termErr != nil {
		h.logger.Warn("external termination failed", "permission_id", pr.PermissionID, "error", termErr)
		commitErr := h.outbox.Commit(ctx, domain.NewSimpleEvent(pr.PermissionID, domain.StatusFailedToTerminate))
		return errors.Join(fmt.Errorf("terminate %s: %w", pr.PermissionID, termErr), commitErr)
	}
	return h.outbox.Commit(ctx, domain.NewSimpleEvent(pr.PermissionID, domain.StatusExternallyTerminated))
}

// CredentialCleanupHandler removes cached credentials once a permission can
// no longer be used.
type CredentialCleanupHandler struct {
	credentials CredentialDeleter
	logger      *slog.Logger
}

func NewCredentialCleanupHandler(credentials CredentialDeleter, logger *slog.Logger) *CredentialCleanupHandler {
	return &CredentialCleanupHandler{credentials: credentials, logger: logger}
}

func (h *CredentialCleanupHandler) Name() string { return "credential-cleanup" }

func (h *CredentialCleanupHandler) Handle(ctx context.Context, ev domain.PermissionEvent) error {
	if err := h.credentials.DeleteByPermissionID(ctx, ev.PermissionID()); err != nil {
		return fmt.Errorf("delete credentials of %s: %w", ev.PermissionID(), err)
	}
	h.logger.Info("credentials removed", "permission_id", ev.PermissionID(), "status", ev.Status())
	return nil
}
