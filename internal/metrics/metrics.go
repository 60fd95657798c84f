// Package metrics defines the collector's Prometheus instruments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Message outcomes, used as the "outcome" label.
const (
	OutcomeStored              = "stored"
	OutcomeDecodeError         = "decode_error"
	OutcomeConstraintViolation = "constraint_violation"
	OutcomeStoreError          = "store_error"
)

const namespace = "sensors"

// Ingest holds the instruments updated by the ingest pipeline and the
// broker connection.
type Ingest struct {
	Messages        *prometheus.CounterVec
	InsertDuration  prometheus.Histogram
	ReadingLag      prometheus.Histogram
	MirrorErrors    *prometheus.CounterVec
	BrokerConnected prometheus.Gauge
	BrokerConnects  prometheus.Counter
	BrokerDrops     prometheus.Counter
}

// New registers the instruments on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Ingest {
	factory := promauto.With(reg)

	m := &Ingest{
		Messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Messages received on the sensor topic, by outcome",
			},
			[]string{"outcome"},
		),
		InsertDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "insert_duration_seconds",
				Help:      "Time spent in the SQLite insert transaction",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
		ReadingLag: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reading_lag_seconds",
				Help:      "Difference between a reading's own time and its arrival",
				Buckets:   []float64{0.1, 0.5, 1, 5, 30, 60, 300, 3600},
			},
		),
		MirrorErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mirror_errors_total",
				Help:      "Failed writes to optional mirrors, by mirror",
			},
			[]string{"mirror"},
		),
		BrokerConnected: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "mqtt_connected",
				Help:      "1 while the broker connection is open",
			},
		),
		BrokerConnects: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mqtt_connects_total",
				Help:      "Accepted broker connections, including reconnects",
			},
		),
		BrokerDrops: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mqtt_disconnects_total",
				Help:      "Broker connections lost or closed",
			},
		),
	}

	// Pre-create every outcome so dashboards see zeros instead of gaps.
	for _, outcome := range []string{OutcomeStored, OutcomeDecodeError, OutcomeConstraintViolation, OutcomeStoreError} {
		m.Messages.WithLabelValues(outcome)
	}

	return m
}

// Outcome counts one processed message.
func (m *Ingest) Outcome(outcome string) {
	m.Messages.WithLabelValues(outcome).Inc()
}

// ObserveInsert records the duration of one insert transaction.
func (m *Ingest) ObserveInsert(d time.Duration) {
	m.InsertDuration.Observe(d.Seconds())
}

// ObserveLag records how old a reading was when it arrived.
// Negative lags (sensor clocks running ahead) are recorded as zero.
func (m *Ingest) ObserveLag(readingTime, arrived time.Time) {
	lag := arrived.Sub(readingTime).Seconds()
	if lag < 0 {
		lag = 0
	}
	m.ReadingLag.Observe(lag)
}

// MirrorError counts a failed mirror write.
func (m *Ingest) MirrorError(mirror string) {
	m.MirrorErrors.WithLabelValues(mirror).Inc()
}

// BrokerUp records an accepted broker connection.
func (m *Ingest) BrokerUp() {
	m.BrokerConnected.Set(1)
	m.BrokerConnects.Inc()
}

// BrokerDown records a lost or closed broker connection.
func (m *Ingest) BrokerDown() {
	m.BrokerConnected.Set(0)
	m.BrokerDrops.Inc()
}
