package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger checks one dependency's liveness.
type Pinger func(ctx context.Context) error

// HealthHandler serves the health-check endpoint, probing registered
// dependencies with a short timeout.
type HealthHandler struct {
	logger *slog.Logger
	checks map[string]Pinger
}

// NewHealthHandler creates a HealthHandler. checks maps dependency names
// (for example "redis", "postgres") to their ping functions; nil entries
// are skipped.
func NewHealthHandler(logger *slog.Logger, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{logger: logger, checks: checks}
}

// HealthCheck responds with overall status plus per-dependency results.
// Any failing dependency degrades the status but keeps the response 200, so
// load balancers only cut traffic when the process itself is dead.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	deps := make(map[string]string, len(h.checks))
	for name, ping := range h.checks {
		if ping == nil {
			continue
		}
		if err := ping(ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       status,
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
