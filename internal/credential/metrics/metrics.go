package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the credential module.
// Tracks lifecycle transition counts and issue path duration.
type Metrics struct {
	Created        prometheus.Counter
	Issued         prometheus.Counter
	Revoked        prometheus.Counter
	AnchorSkipped  prometheus.Counter
	IssueDuration  prometheus.Histogram
	CreateDuration prometheus.Histogram
}

// New creates a new Metrics instance with all credential module metrics registered.
func New() *Metrics {
	return &Metrics{
		Created: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dcp_credentials_created_total",
			Help: "Total number of credentials created in draft status",
		}),
		Issued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dcp_credentials_issued_total",
			Help: "Total number of credentials issued",
		}),
		Revoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dcp_credentials_revoked_total",
			Help: "Total number of credentials revoked",
		}),
		AnchorSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dcp_credential_anchor_skipped_total",
			Help: "Issuances completed without an anchor because the ledger call failed",
		}),
		IssueDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dcp_credential_issue_duration_seconds",
			Help:    "Duration of issue operations including the ledger round trip",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		CreateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dcp_credential_create_duration_seconds",
			Help:    "Duration of create operations including recipient resolution",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementCreated records a successful draft creation.
func (m *Metrics) IncrementCreated() {
	m.Created.Inc()
}

// IncrementIssued records a successful issuance.
func (m *Metrics) IncrementIssued() {
	m.Issued.Inc()
}

// IncrementRevoked records a successful revocation.
func (m *Metrics) IncrementRevoked() {
	m.Revoked.Inc()
}

// IncrementAnchorSkipped records an issuance that completed without an anchor.
func (m *Metrics) IncrementAnchorSkipped() {
	m.AnchorSkipped.Inc()
}

// ObserveIssue records the duration of an issue operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveIssue(start time.Time) {
	m.IssueDuration.Observe(time.Since(start).Seconds())
}

// ObserveCreate records the duration of a create operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCreate(start time.Time) {
	m.CreateDuration.Observe(time.Since(start).Seconds())
}
