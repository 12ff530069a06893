package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification module.
// Outcomes are labeled so dashboards can track invalid/revoked spikes.
type Metrics struct {
	Verifications  *prometheus.CounterVec
	AnchorSkipped  prometheus.Counter
	VerifyDuration prometheus.Histogram
}

// New creates a new Metrics instance with all verification module metrics registered.
func New() *Metrics {
	return &Metrics{
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dcp_verifications_total",
			Help: "Total number of verification attempts by outcome",
		}, []string{"outcome"}),
		AnchorSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dcp_verification_anchor_skipped_total",
			Help: "Verifications decided from lifecycle alone because the ledger was unreachable",
		}),
		VerifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dcp_verification_duration_seconds",
			Help:    "Duration of verify operations including the ledger round trip",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// IncrementOutcome records one verification attempt with its outcome.
func (m *Metrics) IncrementOutcome(outcome string) {
	m.Verifications.WithLabelValues(outcome).Inc()
}

// IncrementAnchorSkipped records a verification that skipped the anchor check.
func (m *Metrics) IncrementAnchorSkipped() {
	m.AnchorSkipped.Inc()
}

// ObserveVerify records the duration of a verify operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveVerify(start time.Time) {
	m.VerifyDuration.Observe(time.Since(start).Seconds())
}
