package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/lexisync/pkg/api"
)

const healthPingTimeout = 2 * time.Second

// Pinger checks that a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	logger  *slog.Logger
	db      Pinger
	version string
}

// NewHealthHandler создает новый handler для health check
func NewHealthHandler(logger *slog.Logger, db Pinger, version string) *HealthHandler {
	return &HealthHandler{
		logger:  logger,
		db:      db,
		version: version,
	}
}

// Health обрабатывает GET /api/v1/health
// 503, если база данных недоступна
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{
		Status:  "ok",
		Version: h.version,
	}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("Health check failed", slog.Any("error", err))
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}
