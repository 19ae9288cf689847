package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jonboulle/clockwork"

	"github.com/fjmerc/velvetrope/internal/middleware"
	"github.com/fjmerc/velvetrope/internal/models"
	"github.com/fjmerc/velvetrope/internal/repository"
	"github.com/fjmerc/velvetrope/internal/utils"
)

// authenticatedAccount returns the account set by MemberAuth, writing a 401
// when the handler was mounted without it.
func authenticatedAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	account, ok := middleware.Account(r.Context())
	if !ok {
		sendError(w, "Unauthorized", models.CodeUnauthorized, http.StatusUnauthorized)
	}
	return account, ok
}

// AccountHandler returns the authenticated member's account record.
func AccountHandler(creds repository.CredentialRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := authenticatedAccount(w, r)
		if !ok {
			return
		}

		cred, err := creds.Get(r.Context(), account)
		if errors.Is(err, repository.ErrNotFound) {
			// Token outlived the account.
			sendError(w, "Account not found", models.CodeNotFound, http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("failed to load account", "error", err)
			sendError(w, "Internal server error", models.CodeInternalError, http.StatusInternalServerError)
			return
		}

		sendJSON(w, http.StatusOK, models.AccountResponse{
			Account:   cred.Identity,
			CreatedAt: cred.CreatedAt,
			UpdatedAt: cred.UpdatedAt,
		})
	}
}

// ChangePasswordHandler replaces the member's password after checking the
// current one.
func ChangePasswordHandler(creds repository.CredentialRepository, clock clockwork.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := authenticatedAccount(w, r)
		if !ok {
			return
		}

		var req models.ChangePasswordRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		_, valid, err := verifyMember(r, creds, account, req.CurrentPassword)
		if err != nil {
			slog.Error("failed to load credential", "error", err)
			sendError(w, "Internal server error", models.CodeInternalError, http.StatusInternalServerError)
			return
		}
		if !valid {
			slog.Warn("password change failed - invalid current password",
				"account", account,
				"ip", middleware.ClientIP(r.Context()),
			)
			sendError(w, "Current password is incorrect", models.CodeInvalidCredentials, http.StatusUnauthorized)
			return
		}

		hash, err := utils.HashPassword(req.NewPassword)
		if err != nil {
			slog.Error("failed to hash password", "error", err)
			sendError(w, "Internal server error", models.CodeInternalError, http.StatusInternalServerError)
			return
		}

		if err := creds.Upsert(r.Context(), account, hash, clock.Now()); err != nil {
			slog.Error("failed to update password", "error", err)
			sendError(w, "Internal server error", models.CodeInternalError, http.StatusInternalServerError)
			return
		}

		slog.Info("password changed", "account", account)
		sendJSON(w, http.StatusOK, models.MessageResponse{Message: "Password changed"})
	}
}

// DeleteAccountHandler removes the member's credential after password
// confirmation. Issued tokens stay valid until expiry but resolve to no
// account.
func DeleteAccountHandler(creds repository.CredentialRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := authenticatedAccount(w, r)
		if !ok {
			return
		}

		var req models.DeleteAccountRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		_, valid, err := verifyMember(r, creds, account, req.Password)
		if err != nil {
			slog.Error("failed to load credential", "error", err)
			sendError(w, "Internal server error", models.CodeInternalError, http.StatusInternalServerError)
			return
		}
		if !valid {
			sendError(w, "Password is incorrect", models.CodeInvalidCredentials, http.StatusUnauthorized)
			return
		}

		if err := creds.Delete(r.Context(), account); err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to delete account", "error", err)
			sendError(w, "Internal server error", models.CodeInternalError, http.StatusInternalServerError)
			return
		}

		slog.Info("account deleted", "account", account, "ip", middleware.ClientIP(r.Context()))
		sendJSON(w, http.StatusOK, models.MessageResponse{Message: "Account deleted"})
	}
}
