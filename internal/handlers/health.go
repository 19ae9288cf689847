package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fjmerc/velvetrope/internal/models"
	"github.com/fjmerc/velvetrope/internal/repository"
)

// Health check timeout for external dependencies
const healthCheckTimeout = 5 * time.Second

// setHealthCacheHeaders sets appropriate cache-control headers for health endpoints.
// Health checks should never be cached to ensure accurate probe responses.
func setHealthCacheHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}

// HealthHandler probes every storage backend. Any unhealthy backend makes the
// whole instance unhealthy (503); a slow one makes it degraded (200).
func HealthHandler(repos *repository.Repositories, clock clockwork.Clock, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		status := repository.HealthStatusHealthy
		components := make([]repository.ComponentHealth, 0, len(repos.Health))
		for _, probe := range repos.Health {
			h, err := probe.CheckHealth(ctx)
			if err != nil {
				slog.Error("health probe failed", "error", err)
			}
			if h == nil {
				h = &repository.ComponentHealth{
					Name:    "unknown",
					Status:  repository.HealthStatusUnhealthy,
					Message: "probe failed",
				}
			}
			components = append(components, *h)
			status = worse(status, h.Status)
		}

		httpCode := http.StatusOK
		if status == repository.HealthStatusUnhealthy {
			httpCode = http.StatusServiceUnavailable
		}

		setHealthCacheHeaders(w)
		sendJSON(w, httpCode, models.HealthResponse{
			Status:         string(status),
			UptimeSeconds:  int64(clock.Since(startTime).Seconds()),
			DatabaseType:   string(repos.DatabaseType),
			AdmissionStore: string(repos.AdmissionStore),
			Components:     components,
		})
	}
}

// HealthLivenessHandler answers as long as the process serves HTTP.
func HealthLivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setHealthCacheHeaders(w)
		sendJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

func worse(a, b repository.HealthStatus) repository.HealthStatus {
	rank := map[repository.HealthStatus]int{
		repository.HealthStatusHealthy:   0,
		repository.HealthStatusDegraded:  1,
		repository.HealthStatusUnhealthy: 2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
