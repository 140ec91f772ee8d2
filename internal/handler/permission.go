package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gridshare/platform/internal/domain"
	"github.com/gridshare/platform/internal/lifecycle"
)

// PermissionService is the part of permission.Service the HTTP surface uses.
type PermissionService interface {
	Create(ctx context.Context, req domain.CreateRequest) (*domain.PermissionRequest, error)
	Get(ctx context.Context, permissionID string) (*domain.PermissionRequest, error)
	Advance(ctx context.Context, permissionID string, op lifecycle.Operation, ev domain.PermissionEvent) error
}

// EventLister returns the raw event log of a request.
type EventLister interface {
	Events(ctx context.Context, permissionID string) ([]domain.StoredEvent, error)
}

// PermissionHandler serves permission requests.
type PermissionHandler struct {
	svc    PermissionService
	events EventLister
	logger *slog.Logger
}

// NewPermissionHandler creates a new PermissionHandler.
func NewPermissionHandler(svc PermissionService, events EventLister, logger *slog.Logger) *PermissionHandler {
	return &PermissionHandler{svc: svc, events: events, logger: logger}
}

// Create handles POST /permission-requests. A malformed request is stored
// and answered with 400 and the attribute errors.
func (h *PermissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	pr, err := h.svc.Create(r.Context(), req)
	if pr != nil {
		TagPermission(r.Context(), pr.PermissionID)
		w.Header().Set("Location", "/permission-requests/"+pr.PermissionID)
	}
	if err != nil {
		var appErr *domain.AppError
		if !errors.As(err, &appErr) {
			h.logger.Error("create permission request", "error", err, "request_id", GetRequestID(r.Context()))
		}
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusCreated, pr)
}

// Get handles GET /permission-requests/{id}.
func (h *PermissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	pr, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, pr)
}

type eventView struct {
	ID           int64            `json:"id"`
	EventType    domain.EventType `json:"eventType"`
	Status       domain.Status    `json:"status"`
	EventCreated time.Time        `json:"eventCreated"`
	Internal     bool             `json:"internal,omitempty"`
	Payload      json.RawMessage  `json:"payload"`
}

// Events handles GET /permission-requests/{id}/events.
func (h *PermissionHandler) Events(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "id")
	events, err := h.events.Events(r.Context(), pid)
	if err != nil {
		RespondError(w, err)
		return
	}
	if len(events) == 0 {
		RespondError(w, domain.ErrNotFound("permission request", pid))
		return
	}

	views := make([]eventView, 0, len(events))
	for _, stored := range events {
		payload, err := json.Marshal(stored.Event)
		if err != nil {
			RespondError(w, domain.ErrInternal("encode event", err))
			return
		}
		views = append(views, eventView{
			ID:           stored.ID,
			EventType:    stored.Event.EventType(),
			Status:       stored.Event.Status(),
			EventCreated: stored.Event.EventCreated(),
			Internal:     domain.IsInternal(stored.Event),
			Payload:      payload,
		})
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"permissionId": pid,
		"events":       views,
	})
}
