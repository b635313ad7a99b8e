package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"

	"github.com/iudanet/lexisync/internal/models"
	"github.com/iudanet/lexisync/internal/server/storage"
	"github.com/iudanet/lexisync/internal/validation"
	"github.com/iudanet/lexisync/pkg/api"
)

const (
	// DefaultDownloadLimit размер страницы, если клиент не указал limit
	DefaultDownloadLimit = 100
	// MaxDownloadLimit верхняя граница размера страницы
	MaxDownloadLimit = 1000

	maxBodyBytes = 1 << 20
)

// contextKey тип для ключей контекста
type contextKey string

const (
	// UserIDKey ключ для хранения user_id в контексте
	UserIDKey contextKey = "user_id"
	// DeviceIDKey ключ для хранения device_id в контексте
	DeviceIDKey contextKey = "device_id"
)

// GetUserID извлекает user_id из контекста запроса
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

// GetDeviceID извлекает device_id из контекста запроса
func GetDeviceID(ctx context.Context) (string, bool) {
	deviceID, ok := ctx.Value(DeviceIDKey).(string)
	return deviceID, ok
}

// RecordStorage определяет интерфейс для работы с записями
type RecordStorage interface {
	ListSince(ctx context.Context, userID, table string, since time.Time, limit int) ([]*storage.Record, error)
	Create(ctx context.Context, rec *storage.Record) (*storage.Record, bool, error)
	Upsert(ctx context.Context, rec *storage.Record, base time.Time) (*storage.Record, error)
	Delete(ctx context.Context, userID, table, serverID string, base, clientUpdatedAt time.Time) (*storage.Record, error)
}

// SyncHandler handles the table synchronization endpoints
type SyncHandler struct {
	logger  *slog.Logger
	storage RecordStorage
	tables  *models.TableRegistry
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(logger *slog.Logger, storage RecordStorage, tables *models.TableRegistry) *SyncHandler {
	return &SyncHandler{
		logger:  logger,
		storage: storage,
		tables:  tables,
	}
}

// Routes registers the handler under /sync
func (h *SyncHandler) Routes(r chi.Router) {
	r.Post("/sync/{table}", h.Download)
	r.Post("/sync/{table}/records", h.CreateRecord)
	r.Put("/sync/{table}/records/{id}", h.UpsertRecord)
	r.Delete("/sync/{table}/records/{id}", h.DeleteRecord)
}

// Download обрабатывает POST /api/v1/sync/{table}
// Возвращает записи таблицы (включая удаленные), измененные после since
func (h *SyncHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID, spec, ok := h.prepare(w, r)
	if !ok {
		return
	}

	var req api.DownloadRequest
	if !h.decode(w, r, &req) {
		return
	}

	limit := req.Limit
	switch {
	case limit <= 0:
		limit = DefaultDownloadLimit
	case limit > MaxDownloadLimit:
		limit = MaxDownloadLimit
	}
	var since time.Time
	if req.Since != nil {
		since = *req.Since
	}

	records, err := h.storage.ListSince(r.Context(), userID, spec.Name, since, limit)
	if err != nil {
		h.logger.Error("Failed to list records", "error", err, "user_id", userID, "table", spec.Name)
		writeError(w, http.StatusInternalServerError, "internal server error", "")
		return
	}

	resp := api.DownloadResponse{
		Success: true,
		Records: make([]api.Record, 0, len(records)),
	}
	for _, rec := range records {
		resp.Records = append(resp.Records, toAPIRecord(rec))
	}

	h.logger.Debug("Download completed", "user_id", userID, "table", spec.Name, "since", since, "records", len(records))
	writeJSON(w, http.StatusOK, resp)
}

// CreateRecord обрабатывает POST /api/v1/sync/{table}/records
// Повтор с тем же client_ref возвращает уже созданную запись со статусом 200
func (h *SyncHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	userID, spec, ok := h.prepare(w, r)
	if !ok {
		return
	}

	var req api.CreateRecordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validation.ValidateRecordID(req.ClientRef); err != nil {
		writeError(w, http.StatusBadRequest, "invalid client_ref", err.Error())
		return
	}
	if err := checkRequired(spec, req.Fields); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation failed", err.Error())
		return
	}

	stored, created, err := h.storage.Create(r.Context(), &storage.Record{
		UserID:          userID,
		Table:           spec.Name,
		ClientRef:       req.ClientRef,
		Fields:          req.Fields,
		ClearedFields:   req.ClearedFields,
		ClientUpdatedAt: req.UpdatedAt,
	})
	if err != nil {
		h.logger.Error("Failed to create record", "error", err, "user_id", userID, "table", spec.Name)
		writeError(w, http.StatusInternalServerError, "internal server error", "")
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
		h.logger.Info("Duplicate create resolved by client_ref",
			"user_id", userID, "table", spec.Name, "client_ref", req.ClientRef, "server_id", stored.ServerID)
	} else {
		h.logger.Info("Record created", "user_id", userID, "table", spec.Name, "server_id", stored.ServerID)
	}

	writeJSON(w, status, api.RecordResponse{Record: toAPIRecord(stored)})
}

// UpsertRecord обрабатывает PUT /api/v1/sync/{table}/records/{id}
// 409 с текущей версией, если запись изменилась после base_updated_at
func (h *SyncHandler) UpsertRecord(w http.ResponseWriter, r *http.Request) {
	userID, spec, ok := h.prepare(w, r)
	if !ok {
		return
	}
	serverID, ok := recordID(w, r)
	if !ok {
		return
	}

	var req api.UpsertRecordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := checkRequired(spec, req.Fields); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation failed", err.Error())
		return
	}

	stored, err := h.storage.Upsert(r.Context(), &storage.Record{
		UserID:          userID,
		Table:           spec.Name,
		ServerID:        serverID,
		Fields:          req.Fields,
		ClearedFields:   req.ClearedFields,
		ClientUpdatedAt: req.UpdatedAt,
	}, req.BaseUpdatedAt)
	if err != nil {
		h.writeStorageError(w, err, userID, spec.Name, serverID)
		return
	}

	h.logger.Info("Record updated", "user_id", userID, "table", spec.Name, "server_id", serverID)
	writeJSON(w, http.StatusOK, api.RecordResponse{Record: toAPIRecord(stored)})
}

// DeleteRecord обрабатывает DELETE /api/v1/sync/{table}/records/{id}
// Запись помечается удаленной и продолжает отдаваться в дельте
func (h *SyncHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	userID, spec, ok := h.prepare(w, r)
	if !ok {
		return
	}
	serverID, ok := recordID(w, r)
	if !ok {
		return
	}

	var req api.DeleteRecordRequest
	if !h.decode(w, r, &req) {
		return
	}

	stored, err := h.storage.Delete(r.Context(), userID, spec.Name, serverID, req.BaseUpdatedAt, req.UpdatedAt)
	if err != nil {
		h.writeStorageError(w, err, userID, spec.Name, serverID)
		return
	}

	h.logger.Info("Record deleted", "user_id", userID, "table", spec.Name, "server_id", serverID)
	writeJSON(w, http.StatusOK, api.RecordResponse{Record: toAPIRecord(stored)})
}

// prepare извлекает пользователя из контекста и проверяет имя таблицы
func (h *SyncHandler) prepare(w http.ResponseWriter, r *http.Request) (string, models.TableSpec, bool) {
	// Получаем user_id из контекста (установлен AuthMiddleware)
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.logger.Error("User ID not found in context")
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return "", models.TableSpec{}, false
	}

	table := chi.URLParam(r, "table")
	if err := validation.ValidateTableName(table, h.tables); err != nil {
		h.logger.Warn("Invalid table name", "table", table, "error", err)
		writeError(w, http.StatusNotFound, "unknown table", err.Error())
		return "", models.TableSpec{}, false
	}

	spec, _ := h.tables.Get(table)
	return userID, spec, true
}

func (h *SyncHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("Failed to decode request body", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func (h *SyncHandler) writeStorageError(w http.ResponseWriter, err error, userID, table, serverID string) {
	var conflict *storage.ConflictError
	switch {
	case errors.As(err, &conflict):
		h.logger.Info("Stale base version", "user_id", userID, "table", table, "server_id", serverID)
		writeJSON(w, http.StatusConflict, api.ConflictResponse{
			Message: "record changed on server",
			Current: toAPIRecord(conflict.Current),
		})
	case errors.Is(err, storage.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "record not found", "")
	default:
		h.logger.Error("Storage operation failed", "error", err, "user_id", userID, "table", table, "server_id", serverID)
		writeError(w, http.StatusInternalServerError, "internal server error", "")
	}
}

func recordID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := validation.ValidateRecordID(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id", err.Error())
		return "", false
	}
	return id, true
}

// checkRequired отклоняет записи без обязательных полей таблицы
func checkRequired(spec models.TableSpec, fields map[string]any) error {
	var missing []string
	for _, f := range spec.RequiredFields {
		v, ok := fields[f]
		if !ok || v == nil {
			missing = append(missing, f)
			continue
		}
		// составные значения считаются заполненными
		if s, err := cast.ToStringE(v); err == nil && strings.TrimSpace(s) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing required field(s) %s", spec.Name, strings.Join(missing, ", "))
	}
	return nil
}

func toAPIRecord(rec *storage.Record) api.Record {
	return api.Record{
		UpdatedAt:     rec.UpdatedAt,
		Fields:        rec.Fields,
		ServerID:      rec.ServerID,
		ClientRef:     rec.ClientRef,
		Table:         rec.Table,
		ClearedFields: rec.ClearedFields,
		Deleted:       rec.Deleted,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, detail string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg, Message: detail})
}
