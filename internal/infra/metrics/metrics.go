// Package metrics exposes the server's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "markme"

// Metrics is passed by reference into the HTTP layer and the verification
// pipeline. One instance per process; nil is safe and disables recording.
type Metrics struct {
	AttendanceResults *prometheus.CounterVec
	BatchSize         prometheus.Histogram
	NoncesIssued      prometheus.Counter
	SignIns           *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AttendanceResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attendance_results_total",
			Help:      "Verification outcomes per submitted claim.",
		}, []string{"status"}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attendance_batch_size",
			Help:      "Number of claims per batch submission.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50},
		}),
		NoncesIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nonces_issued_total",
			Help:      "QR nonces issued to session displays.",
		}),
		SignIns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_ins_total",
			Help:      "Sign-in attempts by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) RecordResult(status string) {
	if m == nil {
		return
	}
	m.AttendanceResults.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordBatch(size int) {
	if m == nil {
		return
	}
	m.BatchSize.Observe(float64(size))
}

func (m *Metrics) RecordSignIn(outcome string) {
	if m == nil {
		return
	}
	m.SignIns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordNonceIssued() {
	if m == nil {
		return
	}
	m.NoncesIssued.Inc()
}
