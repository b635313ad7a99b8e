// Package diagserver exposes the sync state and actions over local HTTP.
package diagserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iudanet/lexisync/internal/client/health"
	"github.com/iudanet/lexisync/internal/client/manager"
	"github.com/iudanet/lexisync/internal/client/storage"
	clientsync "github.com/iudanet/lexisync/internal/client/sync"
	"github.com/iudanet/lexisync/internal/models"
)

const shutdownTimeout = 5 * time.Second

// Facade is the manager surface served over HTTP.
type Facade interface {
	State() manager.State
	PerformFullSync(ctx context.Context) (*models.SyncResult, error)
	PerformQuickSync(ctx context.Context) (*models.SyncResult, error)
	CancelCurrentSync() bool
	ExecuteRecoveryAction(ctx context.Context, id string) (bool, error)
	ResolveAlert(ctx context.Context, id string) error
	ResolveManualReview(ctx context.Context, table, recordID string, strategy models.ConflictStrategy) error
	RefreshDiagnostics(ctx context.Context) (*models.Diagnostics, error)
	ExportSyncLogs(ctx context.Context) ([]byte, error)
	UpdateSyncSettings(update manager.SettingsUpdate) error
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SettingsRequest is a partial settings change; absent fields are kept.
type SettingsRequest struct {
	AutoSyncEnabled *bool   `json:"auto_sync_enabled,omitempty"`
	SyncInterval    *string `json:"sync_interval,omitempty"` // "15m"
	ConflictMode    *string `json:"conflict_mode,omitempty"`
}

// RecoveryResponse reports the outcome of a recovery action.
type RecoveryResponse struct {
	ActionID string `json:"action_id"`
	Success  bool   `json:"success"`
}

// Server is the local diagnostics HTTP server.
type Server struct {
	facade   Facade
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	addr     string
}

// New creates a diagnostics server. A nil gatherer disables /metrics.
func New(addr string, facade Facade, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	return &Server{
		facade:   facade,
		gatherer: gatherer,
		logger:   logger,
		addr:     addr,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/state", s.handleState)
	r.Get("/diagnostics", s.handleDiagnostics)
	r.Get("/alerts", s.handleAlerts)
	r.Post("/alerts/{id}/resolve", s.handleResolveAlert)
	r.Post("/recovery/{id}", s.handleRecovery)
	r.Post("/sync", s.handleSync)
	r.Delete("/sync", s.handleCancel)
	r.Post("/reviews/{table}/{id}", s.handleResolveReview)
	r.Get("/export", s.handleExport)
	r.Put("/settings", s.handleSettings)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Diagnostics server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("diagnostics server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("diagnostics server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.facade.State())
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	diag, err := s.facade.RefreshDiagnostics(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, diag)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.facade.State().ActiveAlerts)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.facade.ResolveAlert(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecovery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := s.facade.ExecuteRecoveryAction(r.Context(), id)
	if err != nil && errors.Is(err, health.ErrUnknownRecoveryAction) {
		s.writeError(w, err)
		return
	}
	if err != nil {
		s.logger.Warn("Recovery action failed", "action", id, "error", err)
	}
	s.writeJSON(w, http.StatusOK, RecoveryResponse{ActionID: id, Success: ok})
}

// handleSync: POST /sync?quick=true запускает быструю синхронизацию
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var (
		res *models.SyncResult
		err error
	)
	if r.URL.Query().Get("quick") == "true" {
		res, err = s.facade.PerformQuickSync(r.Context())
	} else {
		res, err = s.facade.PerformFullSync(r.Context())
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if !s.facade.CancelCurrentSync() {
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no sync session in progress"})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleResolveReview: POST /reviews/{table}/{id}?strategy=server_wins
func (s *Server) handleResolveReview(w http.ResponseWriter, r *http.Request) {
	strategy := models.ConflictStrategy(r.URL.Query().Get("strategy"))
	if !strategy.Valid() {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("unknown strategy %q", strategy)})
		return
	}
	err := s.facade.ResolveManualReview(r.Context(), chi.URLParam(r, "table"), chi.URLParam(r, "id"), strategy)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.facade.ExportSyncLogs(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="lexisync-logs.json"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error("failed to write export", slog.Any("error", err))
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	update := manager.SettingsUpdate{AutoSyncEnabled: req.AutoSyncEnabled}
	if req.SyncInterval != nil {
		d, err := time.ParseDuration(*req.SyncInterval)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid sync_interval: %v", err)})
			return
		}
		update.SyncInterval = &d
	}
	if req.ConflictMode != nil {
		m := models.ResolutionMode(*req.ConflictMode)
		update.ConflictMode = &m
	}

	if err := s.facade.UpdateSyncSettings(update); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError сопоставляет доменные ошибки с HTTP статусами
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, health.ErrAlertNotFound),
		errors.Is(err, health.ErrUnknownRecoveryAction),
		errors.Is(err, storage.ErrReviewNotFound):
		status = http.StatusNotFound
	case errors.Is(err, clientsync.ErrSyncInProgress):
		status = http.StatusConflict
	case errors.Is(err, clientsync.ErrInvalidSettings):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Diagnostics request failed", "error", err)
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", slog.Any("error", err))
	}
}
