package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware instruments HTTP handlers with request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK, // Default to 200 if WriteHeader not called
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)
		method := r.Method
		status := strconv.Itoa(wrapped.statusCode)

		HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
		HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// normalizePath maps URL paths onto a fixed label set to avoid cardinality explosion
func normalizePath(path string) string {
	switch path {
	case "/health", "/metrics",
		"/api/auth/register", "/api/auth/login",
		"/api/account", "/api/account/password", "/api/account/delete":
		return path
	}

	switch {
	case strings.HasPrefix(path, "/admin/api/blocks"):
		return "/admin/api/blocks/*"
	case strings.HasPrefix(path, "/admin/api/ratelimits"):
		return "/admin/api/ratelimits/*"
	case strings.HasPrefix(path, "/admin/api/"):
		return "/admin/api/*"
	case strings.HasPrefix(path, "/api/"):
		return "/api/*"
	default:
		return "/other"
	}
}
