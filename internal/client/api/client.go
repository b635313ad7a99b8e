package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/iudanet/lexisync/pkg/api"
)

// StatusError описывает не-2xx ответ сервера
type StatusError struct {
	Message    string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// ConflictError возвращается на 409: запись изменилась на сервере после base_updated_at
type ConflictError struct {
	Current api.Record
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s/%s: %s", e.Current.Table, e.Current.ServerID, e.Message)
}

// IsTransient reports whether a failed request is worth retrying later.
// Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode >= 500,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode == http.StatusRequestTimeout:
			return true
		}
		return false
	}

	var netErr net.Error
	var urlErr *url.Error
	return errors.As(err, &netErr) || errors.As(err, &urlErr)
}

// Client представляет HTTP клиент для взаимодействия с сервером синхронизации
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	mu         sync.RWMutex
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// SetToken sets the bearer token sent with every request
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// SetBaseURL switches the server address (config reload)
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	c.baseURL = baseURL
	c.mu.Unlock()
}

// SetTimeout sets the per-request timeout. Requests already in flight keep
// the client they started with.
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hc := *c.httpClient
	hc.Timeout = d
	c.httpClient = &hc
}

// Ping проверяет доступность сервера
func (c *Client) Ping(ctx context.Context) error {
	var resp api.HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, &resp); err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	return nil
}

// Download получает изменения таблицы после watermark
func (c *Client) Download(ctx context.Context, table string, req api.DownloadRequest) (*api.DownloadResponse, error) {
	var resp api.DownloadResponse
	path := fmt.Sprintf("/api/v1/sync/%s", url.PathEscape(table))
	if err := c.doRequest(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	return &resp, nil
}

// CreateRecord создает запись на сервере; повтор с тем же client_ref вернет ту же запись
func (c *Client) CreateRecord(ctx context.Context, table string, req api.CreateRecordRequest) (*api.Record, error) {
	var resp api.RecordResponse
	path := fmt.Sprintf("/api/v1/sync/%s/records", url.PathEscape(table))
	if err := c.doRequest(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	return &resp.Record, nil
}

// UpsertRecord обновляет запись, если серверная версия совпадает с base_updated_at
func (c *Client) UpsertRecord(ctx context.Context, table, serverID string, req api.UpsertRecordRequest) (*api.Record, error) {
	var resp api.RecordResponse
	path := fmt.Sprintf("/api/v1/sync/%s/records/%s", url.PathEscape(table), url.PathEscape(serverID))
	if err := c.doRequest(ctx, http.MethodPut, path, req, &resp); err != nil {
		return nil, fmt.Errorf("upsert request failed: %w", err)
	}
	return &resp.Record, nil
}

// DeleteRecord мягко удаляет запись на сервере
func (c *Client) DeleteRecord(ctx context.Context, table, serverID string, req api.DeleteRecordRequest) (*api.Record, error) {
	var resp api.RecordResponse
	path := fmt.Sprintf("/api/v1/sync/%s/records/%s", url.PathEscape(table), url.PathEscape(serverID))
	if err := c.doRequest(ctx, http.MethodDelete, path, req, &resp); err != nil {
		return nil, fmt.Errorf("delete request failed: %w", err)
	}
	return &resp.Record, nil
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	c.mu.RLock()
	target := c.baseURL + path
	token := c.token
	hc := c.httpClient
	c.mu.RUnlock()

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusConflict {
		var conflict api.ConflictResponse
		if err := json.Unmarshal(respBody, &conflict); err != nil {
			return &StatusError{StatusCode: resp.StatusCode, Message: string(respBody)}
		}
		return &ConflictError{Current: conflict.Current, Message: conflict.Message}
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			msg := errResp.Error
			if errResp.Message != "" {
				msg += ": " + errResp.Message
			}
			return &StatusError{StatusCode: resp.StatusCode, Message: msg}
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(respBody))}
	}

	// Декодируем успешный ответ
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
