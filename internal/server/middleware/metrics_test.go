package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Middleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Put("/api/v1/sync/{table}/records/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	for _, id := range []string{"1", "2"} {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/sync/cards/records/"+id, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	w := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := w.Body.String()
	assert.Contains(t, body, `lexisync_server_http_requests_total{method="PUT",route="/api/v1/sync/{table}/records/{id}",status="409"} 2`)
	assert.Contains(t, body, `lexisync_server_http_request_duration_seconds_count{method="PUT",route="/api/v1/sync/{table}/records/{id}"} 2`)

	// повторная регистрация на том же реестре - ошибка
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}
