package middleware

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iudanet/lexisync/internal/server/handlers"
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T, rate int, window time.Duration, logger *slog.Logger) (*RateLimiter, *fakeClock) {
	t.Helper()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(rate, window, logger)
	limiter.now = clock.Now
	t.Cleanup(limiter.Stop)
	return limiter, clock
}

func TestRateLimiter_Allow(t *testing.T) {
	t.Run("Requests within limit are allowed, over limit denied", func(t *testing.T) {
		limiter, _ := newTestLimiter(t, 3, time.Minute, nil)

		for i := 0; i < 3; i++ {
			assert.True(t, limiter.Allow("user:a"), fmt.Sprintf("request %d should be allowed", i+1))
		}
		assert.False(t, limiter.Allow("user:a"), "request over limit should be denied")
	})

	t.Run("Different keys are tracked separately", func(t *testing.T) {
		limiter, _ := newTestLimiter(t, 2, time.Minute, nil)

		assert.True(t, limiter.Allow("user:a"))
		assert.True(t, limiter.Allow("user:a"))
		assert.False(t, limiter.Allow("user:a"), "a over limit")

		assert.True(t, limiter.Allow("user:b"))
		assert.True(t, limiter.Allow("user:b"))
		assert.False(t, limiter.Allow("user:b"), "b over limit")
	})

	t.Run("Tokens refill after window expires", func(t *testing.T) {
		limiter, clock := newTestLimiter(t, 2, time.Minute, nil)

		assert.True(t, limiter.Allow("ip:1.2.3.4"))
		assert.True(t, limiter.Allow("ip:1.2.3.4"))
		assert.False(t, limiter.Allow("ip:1.2.3.4"))

		clock.Advance(time.Minute)

		assert.True(t, limiter.Allow("ip:1.2.3.4"), "tokens should be refilled")
	})
}

func TestRateLimiter_CleanupOldBuckets(t *testing.T) {
	limiter, clock := newTestLimiter(t, 10, time.Minute, nil)

	limiter.Allow("a")
	limiter.Allow("b")
	clock.Advance(90 * time.Second)
	limiter.Allow("c")

	clock.Advance(60 * time.Second)
	limiter.cleanupOldBuckets()

	limiter.mu.RLock()
	defer limiter.mu.RUnlock()
	assert.Len(t, limiter.buckets, 1, "buckets idle for more than two windows are removed")
	assert.Contains(t, limiter.buckets, "c")
}

func TestRateLimiter_Middleware(t *testing.T) {
	var logBuf strings.Builder
	logger := slog.New(slog.NewTextHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	limiter, _ := newTestLimiter(t, 1, 30*time.Second, logger)

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := func(userID, remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/cards", nil)
		req.RemoteAddr = remoteAddr
		if userID != "" {
			req = req.WithContext(context.WithValue(req.Context(), handlers.UserIDKey, userID))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, request("alice", "10.0.0.1:1000").Code)

	// тот же пользователь с другого адреса ограничен
	w := request("alice", "10.0.0.2:2000")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate limit exceeded")

	// другой пользователь с того же адреса - нет
	assert.Equal(t, http.StatusOK, request("bob", "10.0.0.1:1000").Code)

	// без аутентификации ключом служит IP
	assert.Equal(t, http.StatusOK, request("", "10.0.0.9:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, request("", "10.0.0.9:1").Code)

	logOutput := logBuf.String()
	assert.Contains(t, logOutput, "Rate limit exceeded")
	assert.Contains(t, logOutput, "user:alice")
	assert.Contains(t, logOutput, "/api/v1/sync/cards")
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		headers    map[string]string
		name       string
		remoteAddr string
		want       string
	}{
		{name: "remote addr", remoteAddr: "192.168.1.1:12345", want: "192.168.1.1:12345"},
		{
			name:       "x-forwarded-for first hop",
			remoteAddr: "10.0.0.1:1",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.2"},
			want:       "203.0.113.5",
		},
		{
			name:       "x-real-ip",
			remoteAddr: "10.0.0.1:1",
			headers:    map[string]string{"X-Real-IP": "203.0.113.7"},
			want:       "203.0.113.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}
