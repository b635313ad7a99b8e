package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/lexisync/internal/server/handlers"
	"github.com/iudanet/lexisync/internal/server/jwt"
)

// TokenValidator parses bearer tokens
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// AuthMiddleware создает middleware для проверки JWT токена
func AuthMiddleware(logger *slog.Logger, validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Извлекаем токен из заголовка Authorization
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("Missing Authorization header", "path", r.URL.Path)
				unauthorized(w, "missing token")
				return
			}

			// Ожидаем формат: "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
				logger.Warn("Invalid Authorization header format")
				unauthorized(w, "invalid token format")
				return
			}

			claims, err := validator.ValidateToken(strings.TrimSpace(parts[1]))
			if err != nil {
				logger.Warn("Invalid access token", "error", err)
				unauthorized(w, "invalid token")
				return
			}

			// Добавляем данные из токена в контекст
			ctx := context.WithValue(r.Context(), handlers.UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, handlers.DeviceIDKey, claims.DeviceID)

			logger.Debug("Client authenticated", "user_id", claims.UserID, "device_id", claims.DeviceID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="lexisync"`)
	writeJSONError(w, http.StatusUnauthorized, "unauthorized: "+msg)
}
