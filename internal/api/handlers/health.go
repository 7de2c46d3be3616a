package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/balansai/finance-miniapp/internal/api/middleware"
)

// Pinger is anything the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness and store reachability.
type HealthHandler struct {
	store   Pinger
	timeout time.Duration
	log     zerolog.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(store Pinger, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{store: store, timeout: 2 * time.Second, log: log}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	body := map[string]string{
		"status": "healthy",
		"store":  "ok",
		"time":   time.Now().Format(time.RFC3339),
	}
	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Store ping failed")
		body["status"] = "degraded"
		body["store"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	middleware.WriteJSON(w, status, body)
}
