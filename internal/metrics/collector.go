package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector owns every Prometheus metric the module exports.
type Collector struct {
	// Generation metrics
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec

	// Clip chain metrics
	clipExtensionsTotal *prometheus.CounterVec

	// Credit metrics
	creditBalance prometheus.Gauge
	creditDebits  prometheus.Counter

	// Persistence metrics
	evictionsTotal *prometheus.CounterVec
	saveDuration   prometheus.Histogram

	logger *zap.Logger
}

// NewCollector registers all metrics under the given namespace with the
// default registerer.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.generationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Total generation operations by kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: success, stopped, failure
	)

	c.generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Generation call duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	c.clipExtensionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clip_extensions_total",
			Help:      "Clip extension attempts by outcome",
		},
		[]string{"outcome"}, // success, unavailable, stopped, failure
	)

	c.creditBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "credit_balance_cents",
			Help:      "Current credit balance in canonical cents",
		},
	)

	c.creditDebits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_debits_total",
			Help:      "Total number of confirmed-success debits",
		},
	)

	c.evictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_evictions_total",
			Help:      "Persistence evictions by collection and outcome",
		},
		[]string{"collection", "outcome"}, // outcome: evicted, emptied
	)

	c.saveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_save_duration_seconds",
			Help:      "Persistence flush duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	return c
}

// RecordGeneration records one finished generation call.
func (c *Collector) RecordGeneration(kind, outcome string, duration time.Duration) {
	c.generationsTotal.WithLabelValues(kind, outcome).Inc()
	c.generationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordClipExtension records one clip extension attempt.
func (c *Collector) RecordClipExtension(outcome string) {
	c.clipExtensionsTotal.WithLabelValues(outcome).Inc()
}

// SetCreditBalance updates the balance gauge.
func (c *Collector) SetCreditBalance(cents int64) {
	c.creditBalance.Set(float64(cents))
}

// RecordDebit counts a confirmed-success debit.
func (c *Collector) RecordDebit() {
	c.creditDebits.Inc()
}

// RecordEviction records one persistence eviction step.
func (c *Collector) RecordEviction(collection string, emptied bool) {
	outcome := "evicted"
	if emptied {
		outcome = "emptied"
	}
	c.evictionsTotal.WithLabelValues(collection, outcome).Inc()
}

// RecordSave records one persistence flush.
func (c *Collector) RecordSave(duration time.Duration) {
	c.saveDuration.Observe(duration.Seconds())
}
