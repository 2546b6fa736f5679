package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruralpay/ledger/internal/metrics"
)

// PrometheusCollector implements metrics.MetricsCollector for Prometheus.
type PrometheusCollector struct {
	transfersPosted   *prometheus.CounterVec
	transfersRejected *prometheus.CounterVec
	amountPosted      *prometheus.CounterVec
	accountsCreated   *prometheus.CounterVec
	circuitState      *prometheus.GaugeVec
	postLatency       *prometheus.HistogramVec
}

var _ metrics.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheusCollector creates the ledger metrics under namespace.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	return &PrometheusCollector{
		transfersPosted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfers_posted_total",
				Help:      "Total number of transfers posted per ledger",
			},
			[]string{"ledger"},
		),
		transfersRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfers_rejected_total",
				Help:      "Total number of rejected transfers per reason",
			},
			[]string{"reason"},
		),
		amountPosted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "amount_posted_total",
				Help:      "Sum of posted transfer amounts per ledger",
			},
			[]string{"ledger"},
		),
		accountsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "accounts_created_total",
				Help:      "Total number of accounts created per ledger",
			},
			[]string{"ledger"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current storage circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		postLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "post_transfer_duration_seconds",
				Help:      "PostTransfer latency by outcome",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}
}

// Register registers all metrics with the given Prometheus registry.
func (pc *PrometheusCollector) Register(registry *prometheus.Registry) error {
	collectors := []prometheus.Collector{
		pc.transfersPosted,
		pc.transfersRejected,
		pc.amountPosted,
		pc.accountsCreated,
		pc.circuitState,
		pc.postLatency,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func (pc *PrometheusCollector) RecordTransferPosted(ledger uint32, amount uint64, duration time.Duration) {
	label := strconv.FormatUint(uint64(ledger), 10)
	pc.transfersPosted.WithLabelValues(label).Inc()
	pc.amountPosted.WithLabelValues(label).Add(float64(amount))
	pc.postLatency.WithLabelValues("posted").Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordTransferRejected(reason string, duration time.Duration) {
	pc.transfersRejected.WithLabelValues(reason).Inc()
	pc.postLatency.WithLabelValues("rejected").Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordAccountCreated(ledger uint32) {
	pc.accountsCreated.WithLabelValues(strconv.FormatUint(uint64(ledger), 10)).Inc()
}

func (pc *PrometheusCollector) RecordCircuitState(name string, state metrics.CircuitState) {
	pc.circuitState.WithLabelValues(name).Set(float64(state))
}
