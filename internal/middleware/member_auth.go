package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/fjmerc/velvetrope/internal/admission"
	"github.com/fjmerc/velvetrope/internal/auth"
	"github.com/fjmerc/velvetrope/internal/models"
)

// MemberAuth requires a valid bearer token and re-checks the account block
// list on every call, so a block takes effect before the token expires.
func MemberAuth(issuer *auth.TokenIssuer, gate *admission.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="velvetrope"`)
				WriteError(w, http.StatusUnauthorized, models.CodeUnauthorized, "Unauthorized", 0)
				return
			}

			account, err := issuer.Verify(token)
			if err != nil {
				slog.Warn("member authentication failed - invalid token",
					"path", r.URL.Path,
					"ip", ClientIP(r.Context()),
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="velvetrope", error="invalid_token"`)
				WriteError(w, http.StatusUnauthorized, models.CodeUnauthorized, "Unauthorized", 0)
				return
			}

			d := gate.CheckAccount(r.Context(), account)
			if !d.Allowed {
				WriteError(w, d.Status, d.Code, d.Error, 0)
				return
			}

			ctx := context.WithValue(r.Context(), accountKey, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
