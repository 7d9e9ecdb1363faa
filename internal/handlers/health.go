package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/hdshop/api/internal/platform/httpx"
)

var startTime = time.Now()

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	ready func(ctx context.Context) error
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithReadinessCheck wires the probe consulted by /readyz.
func WithReadinessCheck(check func(ctx context.Context) error) HealthOption {
	return func(h *HealthHandlers) {
		h.ready = check
	}
}

// NewHealthHandlers constructs health handlers with optional readiness probes.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readyz reports whether the backing datastore answers.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ready != nil {
		if err := h.ready(ctx); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("not_ready", "dependencies unavailable", http.StatusServiceUnavailable))
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ready"})
}
