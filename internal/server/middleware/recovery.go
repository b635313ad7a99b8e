package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/iudanet/lexisync/pkg/api"
)

// RecoveryMiddleware создает middleware для восстановления после паники
// Перехватывает panic, логирует стек вызовов и возвращает 500 Internal Server Error.
// http.ErrAbortHandler пробрасывается дальше, как это принято в net/http
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // сравнение значения паники
					panic(rec)
				}

				logger.Error("Panic recovered",
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"stack", string(debug.Stack()),
				)

				// Возвращаем generic ошибку клиенту (не раскрываем детали)
				writeJSONError(w, http.StatusInternalServerError, "internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: msg})
}
