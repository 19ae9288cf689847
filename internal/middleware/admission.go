package middleware

import (
	"net/http"
	"strconv"

	"github.com/fjmerc/velvetrope/internal/admission"
)

// Admission runs every request through the gate under the given endpoint name.
// Requires ClientIPMiddleware earlier in the chain.
func Admission(gate *admission.Gate, endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := gate.Check(r.Context(), admission.Request{
				Identity: ClientIP(r.Context()),
				Endpoint: endpoint,
			})

			// Advisory only; absent when the store was unreachable.
			if d.Remaining != nil {
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(*d.Remaining))
			}
			if d.ResetAt != nil {
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			}

			if !d.Allowed {
				WriteError(w, d.Status, d.Code, d.Error, d.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
