package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/lexisync/pkg/api"
)

// TestNewClient проверяет создание нового клиента
func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8080"
	client := NewClient(baseURL)

	assert.NotNil(t, client)
	assert.Equal(t, baseURL, client.baseURL)
	assert.NotNil(t, client.httpClient)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
}

func TestClient_Download(t *testing.T) {
	since := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/sync/cards", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		var req api.DownloadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.Since)
		assert.True(t, since.Equal(*req.Since))
		assert.Equal(t, 50, req.Limit)

		_ = json.NewEncoder(w).Encode(api.DownloadResponse{
			Success: true,
			Records: []api.Record{{ServerID: "s1", Table: "cards", Fields: map[string]any{"front": "hi"}}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.SetToken("token-1")

	resp, err := client.Download(context.Background(), "cards", api.DownloadRequest{Since: &since, Limit: 50})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "hi", resp.Records[0].Fields["front"])
}

func TestClient_CreateAndUpsert(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/sync/vocabularies/records":
			var req api.CreateRecordRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "local-1", req.ClientRef)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(api.RecordResponse{Record: api.Record{ServerID: "srv-1", ClientRef: req.ClientRef}})
		case r.Method == http.MethodPut && r.URL.Path == "/api/v1/sync/vocabularies/records/srv-1":
			_ = json.NewEncoder(w).Encode(api.RecordResponse{Record: api.Record{ServerID: "srv-1"}})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/sync/vocabularies/records/srv-1":
			_ = json.NewEncoder(w).Encode(api.RecordResponse{Record: api.Record{ServerID: "srv-1", Deleted: true}})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client := NewClient(server.URL)

	created, err := client.CreateRecord(ctx, "vocabularies", api.CreateRecordRequest{ClientRef: "local-1"})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", created.ServerID)

	updated, err := client.UpsertRecord(ctx, "vocabularies", "srv-1", api.UpsertRecordRequest{})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", updated.ServerID)

	deleted, err := client.DeleteRecord(ctx, "vocabularies", "srv-1", api.DeleteRecordRequest{})
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)
}

func TestClient_Conflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(api.ConflictResponse{
			Message: "record changed",
			Current: api.Record{ServerID: "srv-1", Table: "cards", Fields: map[string]any{"front": "server"}},
		})
	}))
	defer server.Close()

	_, err := NewClient(server.URL).UpsertRecord(context.Background(), "cards", "srv-1", api.UpsertRecordRequest{})
	require.Error(t, err)

	var conflictErr *ConflictError
	require.True(t, errors.As(err, &conflictErr))
	assert.Equal(t, "server", conflictErr.Current.Fields["front"])
	assert.False(t, IsTransient(err))
}

// TestClient_StatusErrors проверяет обработку ошибок сервера
func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		statusCode    int
		wantTransient bool
		wantMsg       string
	}{
		{name: "bad request", statusCode: http.StatusBadRequest, body: `{"error":"invalid table"}`, wantMsg: "invalid table"},
		{name: "unauthorized", statusCode: http.StatusUnauthorized, body: "Unauthorized: invalid token", wantMsg: "Unauthorized"},
		{name: "internal error", statusCode: http.StatusInternalServerError, body: `{"error":"db down","message":"retry later"}`, wantTransient: true, wantMsg: "db down: retry later"},
		{name: "too many requests", statusCode: http.StatusTooManyRequests, body: "slow down", wantTransient: true, wantMsg: "slow down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			_, err := NewClient(server.URL).Download(context.Background(), "cards", api.DownloadRequest{Limit: 1})
			require.Error(t, err)

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.statusCode, statusErr.StatusCode)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, tt.wantTransient, IsTransient(err))
		})
	}
}

// Таймаут меняется во время работы запросов из других горутин
func TestClient_SetTimeoutConcurrent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.HealthResponse{})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			client.SetTimeout(time.Duration(i+1) * time.Second)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, client.Ping(context.Background()))
		}()
	}
	wg.Wait()

	client.SetTimeout(5 * time.Second)
	client.mu.RLock()
	assert.Equal(t, 5*time.Second, client.httpClient.Timeout)
	client.mu.RUnlock()
}

func TestClient_SetTimeoutApplies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.SetTimeout(50 * time.Millisecond)

	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestClient_NetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := NewClient(url).Ping(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestClient_CancelledContext(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := NewClient(server.URL).Download(ctx, "cards", api.DownloadRequest{Limit: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsTransient(err))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.False(t, IsTransient(&StatusError{StatusCode: http.StatusNotFound}))
	assert.True(t, IsTransient(&StatusError{StatusCode: http.StatusBadGateway}))
}
