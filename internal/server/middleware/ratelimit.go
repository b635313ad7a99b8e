package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iudanet/lexisync/internal/server/handlers"
)

// RateLimiter представляет rate limiter на основе окна фиксированной длины:
// каждый ключ получает rate запросов на window
type RateLimiter struct {
	buckets  map[string]*bucket
	logger   *slog.Logger
	cleanupC chan struct{}
	now      func() time.Time
	rate     int
	window   time.Duration
	mu       sync.RWMutex
	stopOnce sync.Once
}

// bucket представляет bucket для конкретного пользователя/IP
type bucket struct {
	lastRefill time.Time
	tokens     int
	mu         sync.Mutex
}

// NewRateLimiter создает новый rate limiter
// rate - максимальное количество запросов в единицу времени
// window - временное окно (например, 1 минута)
func NewRateLimiter(rate int, window time.Duration, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		buckets:  make(map[string]*bucket),
		rate:     rate,
		window:   window,
		logger:   logger,
		now:      time.Now,
		cleanupC: make(chan struct{}),
	}

	// Запускаем периодическую очистку старых buckets
	go rl.cleanup()

	return rl
}

// cleanup периодически удаляет неактивные buckets для экономии памяти
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupOldBuckets()
		case <-rl.cleanupC:
			return
		}
	}
}

// cleanupOldBuckets удаляет buckets, которые не использовались дольше 2*window
func (rl *RateLimiter) cleanupOldBuckets() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		b.mu.Lock()
		if now.Sub(b.lastRefill) > rl.window*2 {
			delete(rl.buckets, key)
		}
		b.mu.Unlock()
	}
}

// Stop останавливает cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.cleanupC) })
}

// Allow проверяет, разрешен ли запрос для данного ключа
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{
			tokens:     rl.rate,
			lastRefill: rl.now(),
		}
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	now := rl.now()
	if now.Sub(b.lastRefill) >= rl.window {
		b.tokens = rl.rate
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}

	return false
}

// Middleware ограничивает частоту запросов.
// Ключ - user_id из контекста (после AuthMiddleware), иначе IP клиента.
// Клиент синхронизации считает 429 временной ошибкой и повторит позже
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rateLimitKey(r)

		if !rl.Allow(key) {
			rl.logger.Warn("Rate limit exceeded",
				"key", key,
				"method", r.Method,
				"path", r.URL.Path,
			)

			w.Header().Set("Retry-After", retryAfter(rl.window))
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func rateLimitKey(r *http.Request) string {
	if userID, ok := handlers.GetUserID(r.Context()); ok {
		return "user:" + userID
	}
	return "ip:" + getClientIP(r)
}

func retryAfter(window time.Duration) string {
	return strconv.Itoa(max(1, int(window.Seconds())))
}

// getClientIP извлекает IP адрес клиента из запроса
// Проверяет заголовки X-Forwarded-For и X-Real-IP для прокси
func getClientIP(r *http.Request) string {
	// Проверяем X-Forwarded-For (для прокси/load balancers)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Берем первый IP из списка (реальный клиент)
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	// Проверяем X-Real-IP
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Используем RemoteAddr
	return r.RemoteAddr
}
