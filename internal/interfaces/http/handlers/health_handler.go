// Package handlers implements the gateway's own HTTP surface: health
// probes and the authenticated admin API.  Proxied traffic never reaches
// these handlers.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/logging"
	"github.com/gatewarden/gatewarden/internal/interfaces/http/respond"
)

// readinessTimeout bounds each dependency probe.
const readinessTimeout = 3 * time.Second

// DependencyCheck probes one backing service.
type DependencyCheck func(ctx context.Context) error

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	logger logging.Logger
	checks map[string]DependencyCheck
}

// NewHealthHandler creates the handler.  Checks map a dependency name to
// its probe; an empty map means the gateway is ready as soon as it is up.
func NewHealthHandler(log logging.Logger, checks map[string]DependencyCheck) *HealthHandler {
	return &HealthHandler{logger: log.Named("health"), checks: checks}
}

// Liveness always reports up; it answers "is the process running".
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness probes every registered dependency and reports per-dependency
// state.  Any failing probe turns the response into a 503.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("readiness probe failed",
				logging.String("dependency", name),
				logging.Err(err),
			)
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "up"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "degraded"
	}
	respond.JSON(w, status, map[string]any{"status": state, "dependencies": deps})
}
