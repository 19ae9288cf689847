package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/fjmerc/velvetrope/internal/metrics"
	"github.com/fjmerc/velvetrope/internal/models"
)

// RecoveryMiddleware recovers from panics and returns a 500 error
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered",
					"error", err,
					"path", r.URL.Path,
					"method", r.Method,
					"request_id", RequestID(r.Context()),
					"stack", string(debug.Stack()),
				)
				metrics.ErrorsTotal.WithLabelValues("panic").Inc()

				WriteError(w, http.StatusInternalServerError, models.CodeInternalError, "Internal server error", 0)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
