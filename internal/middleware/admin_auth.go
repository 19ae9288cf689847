package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fjmerc/velvetrope/internal/admission"
	"github.com/fjmerc/velvetrope/internal/metrics"
	"github.com/fjmerc/velvetrope/internal/models"
	"github.com/fjmerc/velvetrope/internal/repository"
	"github.com/fjmerc/velvetrope/internal/utils"
)

// AdminAuth protects the admin console with HTTP Basic auth checked against
// the stored administrator credential.
func AdminAuth(creds repository.CredentialRepository, username string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || username == "" {
				unauthorizedAdmin(w)
				return
			}

			// Compare usernames in constant time and always run the password
			// check so a wrong username costs the same as a wrong password.
			userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1

			encoded := ""
			cred, err := creds.Get(r.Context(), repository.AdminIdentityPrefix+username)
			switch {
			case err == nil:
				encoded = cred.EncodedHash
			case errors.Is(err, repository.ErrNotFound):
			default:
				slog.Error("failed to load admin credential", "error", err)
				WriteError(w, http.StatusServiceUnavailable, admission.CodeServiceUnavailable, admission.MessageServiceUnavailable, 0)
				return
			}

			passMatch := utils.VerifyPassword(encoded, pass)
			if !userMatch || !passMatch {
				metrics.LoginAttemptsTotal.WithLabelValues("admin", "failure").Inc()
				slog.Warn("admin authentication failed",
					"path", r.URL.Path,
					"ip", ClientIP(r.Context()),
				)
				unauthorizedAdmin(w)
				return
			}

			metrics.LoginAttemptsTotal.WithLabelValues("admin", "success").Inc()
			ctx := context.WithValue(r.Context(), adminKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorizedAdmin(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="velvetrope admin", charset="UTF-8"`)
	WriteError(w, http.StatusUnauthorized, models.CodeUnauthorized, "Unauthorized", 0)
}
