package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fjmerc/velvetrope/internal/repository"
)

// AdmissionStateCollector reports the size of the block registry on each scrape
type AdmissionStateCollector struct {
	blocks  repository.BlockRepository
	now     func() time.Time
	timeout time.Duration

	activeBlocks *prometheus.Desc
	scrapeErrors *prometheus.Desc
}

// NewAdmissionStateCollector creates a new collector. now may be nil.
func NewAdmissionStateCollector(blocks repository.BlockRepository, now func() time.Time) *AdmissionStateCollector {
	if now == nil {
		now = time.Now
	}
	return &AdmissionStateCollector{
		blocks:  blocks,
		now:     now,
		timeout: 5 * time.Second,
		activeBlocks: prometheus.NewDesc(
			"velvetrope_active_blocks",
			"Number of active, unexpired blocks by namespace",
			[]string{"namespace"}, nil,
		),
		scrapeErrors: prometheus.NewDesc(
			"velvetrope_admission_scrape_errors",
			"Namespaces whose block count could not be read during this scrape",
			nil, nil,
		),
	}
}

// Describe sends metric descriptors to Prometheus
func (c *AdmissionStateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeBlocks
	ch <- c.scrapeErrors
}

// Collect lists active blocks per namespace and sends the counts to Prometheus
func (c *AdmissionStateCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	now := c.now()
	var failures float64
	for _, ns := range []repository.Namespace{repository.NamespaceIP, repository.NamespaceAccount} {
		blocks, err := c.blocks.List(ctx, ns, now)
		if err != nil {
			slog.Error("failed to query block metrics", "namespace", ns, "error", err)
			failures++
			// Send zero values on error to avoid scrape failure
			blocks = nil
		}
		ch <- prometheus.MustNewConstMetric(c.activeBlocks, prometheus.GaugeValue, float64(len(blocks)), string(ns))
	}

	ch <- prometheus.MustNewConstMetric(c.scrapeErrors, prometheus.GaugeValue, failures)
}
