package handlers

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 5 * time.Second

// HealthCheck reports the status of every registered dependency. Any
// failing dependency makes the whole check answer 503.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}
	code := http.StatusOK

	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			status[check.Name+"_status"] = "unhealthy"
			status[check.Name+"_error"] = err.Error()
			status["status"] = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		status[check.Name+"_status"] = "healthy"
	}

	writeJSON(w, code, status)
}
