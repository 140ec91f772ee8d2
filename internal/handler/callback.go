package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gridshare/platform/internal/domain"
	"github.com/gridshare/platform/internal/provider"
)

// CallbackHandler receives status callbacks from the permission
// administrator and applies them through the lifecycle.
type CallbackHandler struct {
	verifier *provider.CallbackVerifier
	svc      PermissionService
	logger   *slog.Logger
}

// NewCallbackHandler creates a new CallbackHandler.
func NewCallbackHandler(verifier *provider.CallbackVerifier, svc PermissionService, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{verifier: verifier, svc: svc, logger: logger}
}

// Handle handles POST /region/callbacks.
// The raw body is required for signature verification.
func (h *CallbackHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.logger.Error("read callback body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	sigHeader := r.Header.Get(provider.SignatureHeader)
	if sigHeader == "" {
		h.logger.Warn("missing callback signature header")
		RespondError(w, domain.ErrValidation("missing "+provider.SignatureHeader+" header"))
		return
	}

	cb, err := h.verifier.Verify(body, sigHeader)
	if err != nil {
		h.logger.Warn("rejected callback", "error", err)
		RespondError(w, domain.ErrValidation(err.Error()))
		return
	}

	TagPermission(r.Context(), cb.PermissionID)

	op, err := cb.Operation()
	if err != nil {
		RespondError(w, domain.ErrValidation(err.Error()))
		return
	}

	if err := h.svc.Advance(r.Context(), cb.PermissionID, op, cb.Event()); err != nil {
		h.logger.Error("apply callback",
			"callback_id", cb.ID,
			"permission_id", cb.PermissionID,
			"status", cb.Status,
			"error", err,
		)
		RespondError(w, err)
		return
	}

	h.logger.Info("callback applied", "callback_id", cb.ID, "permission_id", cb.PermissionID, "status", cb.Status)
	w.WriteHeader(http.StatusNoContent)
}
