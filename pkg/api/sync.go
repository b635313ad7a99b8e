package api

import "time"

// Record представляет запись таблицы в формате обмена с сервером
type Record struct {
	UpdatedAt     time.Time      `json:"updated_at"`
	Fields        map[string]any `json:"fields"`
	ServerID      string         `json:"server_id"`
	ClientRef     string         `json:"client_ref,omitempty"` // local_id устройства, создавшего запись
	Table         string         `json:"table"`
	ClearedFields []string       `json:"cleared_fields,omitempty"`
	Deleted       bool           `json:"deleted"`
}

// DownloadRequest запрос дельты таблицы начиная с watermark
type DownloadRequest struct {
	Since *time.Time `json:"since"` // nil - первая синхронизация
	Limit int        `json:"limit"`
}

// DownloadResponse ответ сервера с изменениями таблицы
type DownloadResponse struct {
	Message string   `json:"message,omitempty"`
	Records []Record `json:"records"`
	Success bool     `json:"success"`
}

// CreateRecordRequest создание записи; повтор с тем же client_ref идемпотентен
type CreateRecordRequest struct {
	UpdatedAt     time.Time      `json:"updated_at"`
	Fields        map[string]any `json:"fields"`
	ClientRef     string         `json:"client_ref"`
	ClearedFields []string       `json:"cleared_fields,omitempty"`
}

// UpsertRecordRequest обновление записи с оптимистичной проверкой base_updated_at
type UpsertRecordRequest struct {
	UpdatedAt     time.Time      `json:"updated_at"`
	BaseUpdatedAt time.Time      `json:"base_updated_at"`
	Fields        map[string]any `json:"fields"`
	ClearedFields []string       `json:"cleared_fields,omitempty"`
}

// DeleteRecordRequest мягкое удаление записи
type DeleteRecordRequest struct {
	UpdatedAt     time.Time `json:"updated_at"`
	BaseUpdatedAt time.Time `json:"base_updated_at"`
}

// RecordResponse ответ с актуальной серверной версией записи
type RecordResponse struct {
	Record Record `json:"record"`
}

// ConflictResponse тело ответа 409: текущая серверная версия записи
type ConflictResponse struct {
	Message string `json:"message"`
	Current Record `json:"current"`
}
