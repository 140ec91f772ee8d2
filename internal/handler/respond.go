package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gridshare/platform/internal/domain"
	"github.com/gridshare/platform/internal/lifecycle"
)

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

type errorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// RespondError writes a JSON error response. AppErrors keep their status
// and details; illegal lifecycle transitions and everything else surface
// as internal errors.
func RespondError(w http.ResponseWriter, err error) {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		RespondJSON(w, appErr.Status, errorBody{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		})
		return
	}

	var te *lifecycle.TransitionError
	if errors.As(err, &te) || errors.Is(err, lifecycle.ErrUnexpectedOutcome) {
		RespondJSON(w, http.StatusInternalServerError, errorBody{
			Code:    "INTERNAL_ERROR",
			Message: "illegal lifecycle transition",
		})
		return
	}

	RespondJSON(w, http.StatusInternalServerError, errorBody{
		Code:    "INTERNAL_ERROR",
		Message: "internal server error",
	})
}

// DecodeJSON reads and decodes a JSON request body into dst. Bodies larger
// than 1 MiB are rejected.
func DecodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(dst)
}
