package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fjmerc/velvetrope/internal/admission"
	"github.com/fjmerc/velvetrope/internal/middleware"
	"github.com/fjmerc/velvetrope/internal/models"
	"github.com/fjmerc/velvetrope/internal/repository"
	"github.com/fjmerc/velvetrope/internal/utils"
)

// normalizeIdentity applies the same normalization the gate uses so that
// admin actions hit the rows the gate reads.
func normalizeIdentity(ns repository.Namespace, identity string) (string, error) {
	if err := ns.Validate(); err != nil {
		return "", err
	}
	switch ns {
	case repository.NamespaceIP:
		ip := utils.NormalizeIP(identity)
		if ip == utils.UnknownIdentity && identity != utils.UnknownIdentity {
			return "", fmt.Errorf("%w: %q is not an IP address", repository.ErrInvalidInput, identity)
		}
		return ip, nil
	default:
		account := admission.NormalizeAccount(identity)
		if err := repository.ValidateIdentity(account); err != nil {
			return "", err
		}
		return account, nil
	}
}

// blockTarget reads {namespace} and {identity} from the route.
func blockTarget(w http.ResponseWriter, r *http.Request) (repository.Namespace, string, bool) {
	ns := repository.Namespace(r.PathValue("namespace"))
	identity, err := normalizeIdentity(ns, r.PathValue("identity"))
	if err != nil {
		sendError(w, err.Error(), models.CodeInvalidRequest, http.StatusBadRequest)
		return "", "", false
	}
	return ns, identity, true
}

func adminName(r *http.Request) string {
	if name, ok := middleware.Admin(r.Context()); ok {
		return name
	}
	return "admin"
}

// AdminListBlocksHandler lists active blocks of ?namespace= (default "ip").
func AdminListBlocksHandler(blocks repository.BlockRepository, clock clockwork.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ns := repository.Namespace(r.URL.Query().Get("namespace"))
		if ns == "" {
			ns = repository.NamespaceIP
		}
		if err := ns.Validate(); err != nil {
			sendError(w, err.Error(), models.CodeInvalidRequest, http.StatusBadRequest)
			return
		}

		list, err := blocks.List(r.Context(), ns, clock.Now())
		if err != nil {
			slog.Error("failed to list blocks", "namespace", ns, "error", err)
			sendError(w, "Internal server error", models.CodeInternalError, http.StatusInternalServerError)
			return
		}

		sendJSON(w, http.StatusOK, models.BlockListResponse{
			Namespace: ns,
			Blocks:    list,
			Count:     len(list),
		})
	}
}

// AdminBlockHandler blocks (or re-blocks) an identity.
func AdminBlockHandler(blocks repository.BlockRepository, clock clockwork.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.BlockIdentityRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		ns := repository.Namespace(req.Namespace)
		identity, err := normalizeIdentity(ns, req.Identity)
		if err != nil {
			sendError(w, err.Error(), models.CodeInvalidRequest, http.StatusBadRequest)
			return
		}

		now := clock.Now()
		var expiresAt *time.Time
		if req.DurationMinutes != nil {
			t := now.Add(time.Duration(*req.DurationMinutes) * time.Minute)
			expiresAt = &t
		}

		admin := adminName(r)
		err = blocks.Block(r.Context(), repository.BlockRequest{
			Namespace: ns,
			Identity:  identity,
			Reason:    req.Reason,
			BlockedBy: admin,
			ExpiresAt: expiresAt,
			Now:       now,
		})
		if errors.Is(err, repository.ErrInvalidInput) {
			sendError(w, err.Error(), models.CodeInvalidRequest, http.StatusBadRequest)
			return
		}
		if err != nil {
			slog.Error("failed to block identity", "namespace", ns, "identity", identity, "error", err)
			sendError(w, "Internal server error", models.CodeInternalError, http.StatusInternalServerError)
			return
		}

		slog.Info("identity blocked by admin",
			"namespace", ns,
			"identity", identity,
			"reason", req.Reason,
			"expires_at", expiresAt,
			"admin", admin,
			"admin_ip", middleware.ClientIP(r.Context()),
		)

		sendJSON(w, http.StatusOK, repository.BlockedIdentity{
			Namespace: ns,
			Identity:  identity,
			Reason:    req.Reason,
			BlockedAt: now,
			BlockedBy: admin,
			ExpiresAt: expiresAt,
			Active:    true,
		})
	}
}

// AdminUnblockHandler deactivates the block on {namespace}/{identity}.
func AdminUnblockHandler(blocks repository.BlockRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ns, identity, ok := blockTarget(w, r)
		if !ok {
			return
		}

		err := blocks.Unblock(r.Context(), ns, identity)
		if errors.Is(err, repository.ErrNotFound) {
			sendError(w, "No active block for identity", models.CodeNotFound, http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("failed to unblock identity", "namespace", ns, "identity", identity, "error", err)
			sendError(w, "Internal server error", models.CodeInternalError, http.StatusInternalServerError)
			return
		}

		slog.Info("identity unblocked by admin",
			"namespace", ns,
			"identity", identity,
			"admin", adminName(r),
		)
		sendJSON(w, http.StatusOK, models.MessageResponse{Message: "Identity unblocked"})
	}
}

// AdminPurgeBlockHandler hard-deletes the block row on {namespace}/{identity}.
func AdminPurgeBlockHandler(blocks repository.BlockRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ns, identity, ok := blockTarget(w, r)
		if !ok {
			return
		}

		err := blocks.Purge(r.Context(), ns, identity)
		if errors.Is(err, repository.ErrNotFound) {
			sendError(w, "Block not found", models.CodeNotFound, http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("failed to purge block", "namespace", ns, "identity", identity, "error", err)
			sendError(w, "Internal server error", models.CodeInternalError, http.StatusInternalServerError)
			return
		}

		slog.Info("block purged by admin",
			"namespace", ns,
			"identity", identity,
			"admin", adminName(r),
		)
		sendJSON(w, http.StatusOK, models.MessageResponse{Message: "Block purged"})
	}
}

// AdminListRateLimitsHandler lists the rate limit windows of the IP {identity}.
func AdminListRateLimitsHandler(rateLimits repository.RateLimitRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := normalizeIdentity(repository.NamespaceIP, r.PathValue("identity"))
		if err != nil {
			sendError(w, err.Error(), models.CodeInvalidRequest, http.StatusBadRequest)
			return
		}

		windows, err := rateLimits.ListForIdentity(r.Context(), identity)
		if err != nil {
			slog.Error("failed to list rate limit windows", "identity", identity, "error", err)
			sendError(w, "Internal server error", models.CodeInternalError, http.StatusInternalServerError)
			return
		}

		sendJSON(w, http.StatusOK, models.RateLimitListResponse{
			Identity: identity,
			Windows:  windows,
		})
	}
}

// AdminResetRateLimitHandler deletes the window of {identity} on {endpoint}.
func AdminResetRateLimitHandler(rateLimits repository.RateLimitRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := normalizeIdentity(repository.NamespaceIP, r.PathValue("identity"))
		if err != nil {
			sendError(w, err.Error(), models.CodeInvalidRequest, http.StatusBadRequest)
			return
		}
		endpoint := r.PathValue("endpoint")
		if err := repository.ValidateEndpoint(endpoint); err != nil {
			sendError(w, err.Error(), models.CodeInvalidRequest, http.StatusBadRequest)
			return
		}

		if err := rateLimits.ResetEntry(r.Context(), identity, endpoint); err != nil {
			slog.Error("failed to reset rate limit", "identity", identity, "endpoint", endpoint, "error", err)
			sendError(w, "Internal server error", models.CodeInternalError, http.StatusInternalServerError)
			return
		}

		slog.Info("rate limit reset by admin",
			"identity", identity,
			"endpoint", endpoint,
			"admin", adminName(r),
		)
		sendJSON(w, http.StatusOK, models.MessageResponse{Message: "Rate limit reset"})
	}
}
