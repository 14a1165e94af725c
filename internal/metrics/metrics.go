package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request outcomes
const (
	OutcomeSuccess     = "success"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
	OutcomeTimeout     = "timeout"
	OutcomeCanceled    = "canceled"
	OutcomeError       = "error"
)

// Metrics holds the service collectors
type Metrics struct {
	Requests        *prometheus.CounterVec
	OracleDuration  prometheus.Histogram
	SyntaxChecks    *prometheus.CounterVec
	ArchiveFailures *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests to keep them isolated.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codegen_requests_total",
			Help: "Generation requests by outcome.",
		}, []string{"outcome"}),
		OracleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "codegen_oracle_duration_seconds",
			Help:    "Latency of completion service calls.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		SyntaxChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codegen_syntax_checks_total",
			Help: "Syntax checks by language and status.",
		}, []string{"language", "status"}),
		ArchiveFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codegen_archive_failures_total",
			Help: "Archival writes that failed, by sink.",
		}, []string{"sink"}),
		gatherer: reg,
	}
	reg.MustRegister(m.Requests, m.OracleDuration, m.SyntaxChecks, m.ArchiveFailures)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
