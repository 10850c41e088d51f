// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector exports pipeline metrics. Pass a dedicated Registerer in
// tests; a nil Registerer uses the default prometheus registry.
type Collector struct {
	searchesTotal *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	verifyOutcomes *prometheus.CounterVec
	resultsCounts  *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector creates a metrics collector under the given namespace.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.searchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of search requests",
		},
		[]string{"status"},
	)

	c.stageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"stage"},
	)

	c.stageErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Total number of stage failures",
		},
		[]string{"stage", "code"},
	)

	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache"},
	)

	c.verifyOutcomes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verify_outcomes_total",
			Help:      "Verification verdicts by how they were resolved (judged, skipped, rejected)",
		},
		[]string{"outcome"},
	)

	c.resultsCounts = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "results_count",
			Help:      "Number of results surviving each pipeline stage",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"stage"},
	)

	return c
}

// RecordSearch counts one finished search.
func (c *Collector) RecordSearch(status string) {
	c.searchesTotal.WithLabelValues(status).Inc()
}

// RecordStage records one stage execution.
func (c *Collector) RecordStage(stage string, duration time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordStageError counts one stage failure by error code.
func (c *Collector) RecordStageError(stage, code string) {
	c.stageErrors.WithLabelValues(stage, code).Inc()
}

// RecordCacheHit counts a hit on the named cache.
func (c *Collector) RecordCacheHit(cache string) {
	c.cacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss counts a miss on the named cache.
func (c *Collector) RecordCacheMiss(cache string) {
	c.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordVerifyOutcomes counts verification verdicts by resolution. Judged
// verdicts correspond one-to-one with LLM judge calls.
func (c *Collector) RecordVerifyOutcomes(outcome string, n int) {
	if n > 0 {
		c.verifyOutcomes.WithLabelValues(outcome).Add(float64(n))
	}
}

// RecordResultCount records how many results a stage produced.
func (c *Collector) RecordResultCount(stage string, n int) {
	c.resultsCounts.WithLabelValues(stage).Observe(float64(n))
}
