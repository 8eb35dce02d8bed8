package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/threadline/api/internal/platform/httpx"
)

// ReadinessCheck reports whether downstream dependencies are reachable.
type ReadinessCheck func(ctx context.Context) error

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	ready   ReadinessCheck
	started time.Time
}

// NewHealthHandlers constructs probe handlers. A nil check makes /readyz
// always succeed.
func NewHealthHandlers(ready ReadinessCheck) *HealthHandlers {
	return &HealthHandlers{
		ready:   ready,
		started: time.Now().UTC(),
	}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(r.Context(), w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.started).String(),
	})
}

// Readyz reports dependency readiness.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ready != nil {
		if err := h.ready(ctx); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("not_ready", err.Error(), http.StatusServiceUnavailable))
			return
		}
	}
	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"status": "ready"})
}
