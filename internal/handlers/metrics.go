package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fjmerc/velvetrope/internal/metrics"
	"github.com/fjmerc/velvetrope/internal/repository"
)

// MetricsHandler registers the admission state collector on reg and returns
// the Prometheus scrape handler for gatherer.
func MetricsHandler(reg prometheus.Registerer, gatherer prometheus.Gatherer, blocks repository.BlockRepository, now func() time.Time) (http.Handler, error) {
	collector := metrics.NewAdmissionStateCollector(blocks, now)
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}), nil
}
