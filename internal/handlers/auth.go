package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/fjmerc/velvetrope/internal/admission"
	"github.com/fjmerc/velvetrope/internal/auth"
	"github.com/fjmerc/velvetrope/internal/metrics"
	"github.com/fjmerc/velvetrope/internal/middleware"
	"github.com/fjmerc/velvetrope/internal/models"
	"github.com/fjmerc/velvetrope/internal/repository"
	"github.com/fjmerc/velvetrope/internal/utils"
)

// dummyHash is verified against when the account does not exist so that
// unknown and known emails take the same time to reject.
var dummyHash = sync.OnceValue(func() string {
	h, err := utils.HashPassword("velvetrope-dummy-secret")
	if err != nil {
		return ""
	}
	return h
})

// verifyMember loads the member's credential and checks secret against it.
// A missing account and a wrong secret are indistinguishable to the caller.
func verifyMember(r *http.Request, creds repository.CredentialRepository, account, secret string) (*repository.Credential, bool, error) {
	cred, err := creds.Get(r.Context(), account)
	if errors.Is(err, repository.ErrNotFound) {
		utils.VerifyPassword(dummyHash(), secret)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cred, utils.VerifyPassword(cred.EncodedHash, secret), nil
}

// RegisterHandler creates a member account.
func RegisterHandler(creds repository.CredentialRepository, clock clockwork.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.RegisterRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		account := admission.NormalizeAccount(req.Email)

		hash, err := utils.HashPassword(req.Password)
		if err != nil {
			slog.Error("failed to hash password", "error", err)
			sendError(w, "Internal server error", models.CodeInternalError, http.StatusInternalServerError)
			return
		}

		now := clock.Now()
		err = creds.Create(r.Context(), account, hash, now)
		switch {
		case errors.Is(err, repository.ErrDuplicateKey):
			sendError(w, "Account already exists", models.CodeAccountExists, http.StatusConflict)
			return
		case err != nil:
			slog.Error("failed to create account", "error", err)
			sendError(w, "Internal server error", models.CodeInternalError, http.StatusInternalServerError)
			return
		}

		slog.Info("account registered",
			"account", account,
			"ip", middleware.ClientIP(r.Context()),
		)

		sendJSON(w, http.StatusCreated, models.AccountResponse{
			Account:   account,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
}

// LoginHandler exchanges an email and password for a bearer token. Blocked
// accounts are refused after their credentials check out.
func LoginHandler(creds repository.CredentialRepository, issuer *auth.TokenIssuer, gate *admission.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		account := admission.NormalizeAccount(req.Email)
		clientIP := middleware.ClientIP(r.Context())

		_, ok, err := verifyMember(r, creds, account, req.Password)
		if err != nil {
			slog.Error("failed to load credential", "error", err)
			sendError(w, "Internal server error", models.CodeInternalError, http.StatusInternalServerError)
			return
		}
		if !ok {
			metrics.LoginAttemptsTotal.WithLabelValues("member", "failure").Inc()
			slog.Warn("member login failed - invalid credentials",
				"account", account,
				"ip", clientIP,
			)
			sendError(w, "Invalid email or password", models.CodeInvalidCredentials, http.StatusUnauthorized)
			return
		}

		if d := gate.CheckAccount(r.Context(), account); !d.Allowed {
			metrics.LoginAttemptsTotal.WithLabelValues("member", "blocked").Inc()
			sendError(w, d.Error, d.Code, d.Status)
			return
		}

		token, expiresAt, err := issuer.Issue(account)
		if err != nil {
			slog.Error("failed to issue token", "error", err)
			sendError(w, "Internal server error", models.CodeInternalError, http.StatusInternalServerError)
			return
		}

		metrics.LoginAttemptsTotal.WithLabelValues("member", "success").Inc()
		slog.Info("member logged in", "account", account, "ip", clientIP)

		sendJSON(w, http.StatusOK, models.TokenResponse{
			Token:     token,
			TokenType: "Bearer",
			ExpiresAt: expiresAt,
			Account:   account,
		})
	}
}
