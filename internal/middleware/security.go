package middleware

import (
	"net/http"
)

// SecurityHeadersMiddleware adds security-related HTTP headers to all responses.
// The API serves JSON only, so the content security policy forbids everything.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), interest-cohort=()")

		// Credentials and tokens pass through these responses
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}
