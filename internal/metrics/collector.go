package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector owns the Prometheus instruments for the detection pipeline.
// All observation methods are nil-safe so components can run without
// metrics in tests.
type Collector struct {
	registry *prometheus.Registry

	analysesTotal      *prometheus.CounterVec
	analysisDuration   prometheus.Histogram
	botScore           prometheus.Histogram
	validationFailures prometheus.Counter

	alertsEmitted    *prometheus.CounterVec
	alertsSuppressed *prometheus.CounterVec

	deliveriesTotal  *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec

	ingestMessages *prometheus.CounterVec
	ledgerAppends  *prometheus.CounterVec
}

// NewCollector registers the pipeline instruments on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		analysesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fraud_engine_analyses_total",
			Help: "Completed bot analyses by platform and resolved action tier.",
		}, []string{"platform", "tier"}),
		analysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fraud_engine_analysis_duration_seconds",
			Help:    "Time to score one engagement history.",
			Buckets: prometheus.DefBuckets,
		}),
		botScore: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fraud_engine_bot_score",
			Help:    "Distribution of computed bot scores.",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		validationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "fraud_engine_validation_failures_total",
			Help: "Engagement samples rejected before scoring.",
		}),

		alertsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fraud_engine_alerts_emitted_total",
			Help: "Alerts that cleared suppression, by severity.",
		}, []string{"severity"}),
		alertsSuppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fraud_engine_alerts_suppressed_total",
			Help: "Analyses absorbed by the suppression window, by tier.",
		}, []string{"tier"}),

		deliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fraud_engine_deliveries_total",
			Help: "Channel delivery attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
		deliveryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fraud_engine_delivery_duration_seconds",
			Help:    "Time to deliver an alert to one channel.",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),

		ingestMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fraud_engine_ingest_messages_total",
			Help: "Kafka sample messages by outcome.",
		}, []string{"outcome"}),
		ledgerAppends: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fraud_engine_ledger_appends_total",
			Help: "Ledger append attempts by outcome.",
		}, []string{"outcome"}),
	}
}

// Registry exposes the underlying registry for the /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RegisterQueueDepth installs a gauge backed by the dispatcher's queue.
func (c *Collector) RegisterQueueDepth(depth func() int) {
	if c == nil {
		return
	}
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fraud_engine_dispatch_queue_depth",
		Help: "Alerts waiting for channel fan-out.",
	}, func() float64 { return float64(depth()) }))
}

// ObserveAnalysis records one completed analysis.
func (c *Collector) ObserveAnalysis(platform, tier string, score int, duration time.Duration) {
	if c == nil {
		return
	}
	c.analysesTotal.WithLabelValues(platform, tier).Inc()
	c.analysisDuration.Observe(duration.Seconds())
	c.botScore.Observe(float64(score))
}

// ValidationFailure records a sample rejected before scoring.
func (c *Collector) ValidationFailure() {
	if c == nil {
		return
	}
	c.validationFailures.Inc()
}

// AlertEmitted records an alert that cleared suppression.
func (c *Collector) AlertEmitted(severity string) {
	if c == nil {
		return
	}
	c.alertsEmitted.WithLabelValues(severity).Inc()
}

// AlertSuppressed records an analysis absorbed by its window.
func (c *Collector) AlertSuppressed(tier string) {
	if c == nil {
		return
	}
	c.alertsSuppressed.WithLabelValues(tier).Inc()
}

// Delivery records one channel delivery attempt.
func (c *Collector) Delivery(channel string, success bool, duration time.Duration) {
	if c == nil {
		return
	}
	c.deliveriesTotal.WithLabelValues(channel, outcome(success)).Inc()
	c.deliveryDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// IngestMessage records one consumed sample message.
func (c *Collector) IngestMessage(success bool) {
	if c == nil {
		return
	}
	c.ingestMessages.WithLabelValues(outcome(success)).Inc()
}

// LedgerAppend records one ledger write attempt.
func (c *Collector) LedgerAppend(success bool) {
	if c == nil {
		return
	}
	c.ledgerAppends.WithLabelValues(outcome(success)).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
