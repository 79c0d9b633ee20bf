package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthCheck probes one backing dependency of the running deployment.
type HealthCheck func(ctx context.Context) error

// healthProbeTimeout bounds how long a single health request may spend
// waiting on slow dependencies.
const healthProbeTimeout = 5 * time.Second

// HealthHandler serves the health endpoint. Every registered dependency is
// probed on each request; a failing dependency degrades the report but the
// endpoint itself always answers.
type HealthHandler struct {
	checks map[string]HealthCheck
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler probing the given dependencies.
// With no checks registered the endpoint is a plain liveness probe.
func NewHealthHandler(checks map[string]HealthCheck, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logHandler(logger, "health")}
}

// HealthCheck reports overall and per-dependency health. Degraded deployments
// answer 503 so load balancers rotate them out.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	status := "ok"
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "dependency unhealthy",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			deps[name] = err.Error()
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	body := map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}
	writeJSON(w, code, body)
}
