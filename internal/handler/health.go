package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gridshare/platform/internal/infra"
)

// HealthHandler pings every named dependency. Any failure turns the whole
// check unhealthy.
func HealthHandler(deps map[string]infra.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failed := make(map[string]string)
		for name, p := range deps {
			if err := infra.HealthCheck(r.Context(), p); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "unhealthy",
				"errors": failed,
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}
