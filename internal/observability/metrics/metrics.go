// Package metrics exposes the Prometheus instrumentation for the
// billing engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

type Metrics struct {
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	visitsGenerated  prometheus.Counter
	generationIssues prometheus.Counter
	invoicesRaised   prometheus.Counter
	invoicesVoided   prometheus.Counter
	overdueSwept     prometheus.Counter
	sweepRuns        prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carebill_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carebill_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		visitsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carebill_billable_visits_generated_total",
			Help: "Billable visits materialized by generation runs.",
		}),
		generationIssues: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carebill_generation_issues_total",
			Help: "Per-visit issues reported by generation runs.",
		}),
		invoicesRaised: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carebill_invoices_raised_total",
			Help: "Invoices generated.",
		}),
		invoicesVoided: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carebill_invoices_voided_total",
			Help: "Invoices voided.",
		}),
		overdueSwept: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carebill_invoices_marked_overdue_total",
			Help: "Invoices flipped to OVERDUE by the sweep job.",
		}),
		sweepRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carebill_overdue_sweep_runs_total",
			Help: "Overdue sweep executions.",
		}),
	}
}

func (m *Metrics) AddVisitsGenerated(n int) {
	if m == nil {
		return
	}
	m.visitsGenerated.Add(float64(n))
}

func (m *Metrics) AddGenerationIssues(n int) {
	if m == nil {
		return
	}
	m.generationIssues.Add(float64(n))
}

func (m *Metrics) IncInvoicesRaised() {
	if m == nil {
		return
	}
	m.invoicesRaised.Inc()
}

func (m *Metrics) IncInvoicesVoided() {
	if m == nil {
		return
	}
	m.invoicesVoided.Inc()
}

func (m *Metrics) AddOverdueSwept(n int) {
	if m == nil {
		return
	}
	m.overdueSwept.Add(float64(n))
	m.sweepRuns.Inc()
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

var Module = fx.Module("metrics",
	fx.Provide(New),
)
