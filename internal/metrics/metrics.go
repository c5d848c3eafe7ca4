// Package metrics exposes Prometheus instrumentation for the compliance engine.
// Every method is safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Classifications     *prometheus.CounterVec
	ClassifyDuration    prometheus.Histogram
	COAIngestions       *prometheus.CounterVec
	EligibilityChecks   *prometheus.CounterVec
	EligibilityDuration prometheus.Histogram
	ViolationsLogged    *prometheus.CounterVec
	ViolationsResolved  prometheus.Counter
	RuleCatalogReloads  prometheus.Counter
	ZipCacheLookups     *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var durationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// New registers all collectors with reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration against the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Classifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_classifications_total",
			Help: "Product classifications by source (keyword, ai) and outcome",
		}, []string{"source", "outcome"}),
		ClassifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "compliance_classify_duration_seconds",
			Help:    "Duration of a single product classification",
			Buckets: durationBuckets,
		}),
		COAIngestions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_coa_ingestions_total",
			Help: "COA ingestions by whether the AI extraction pass succeeded",
		}, []string{"ai"}),
		EligibilityChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_eligibility_checks_total",
			Help: "Eligibility lookups by outcome",
		}, []string{"outcome"}),
		EligibilityDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "compliance_eligibility_duration_seconds",
			Help:    "Duration of eligibility lookups",
			Buckets: durationBuckets,
		}),
		ViolationsLogged: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_violations_logged_total",
			Help: "Violations recorded by severity",
		}, []string{"severity"}),
		ViolationsResolved: f.NewCounter(prometheus.CounterOpts{
			Name: "compliance_violations_resolved_total",
			Help: "Violations resolved by an administrator",
		}),
		RuleCatalogReloads: f.NewCounter(prometheus.CounterOpts{
			Name: "compliance_rule_catalog_reloads_total",
			Help: "Times the in-memory rule catalog was loaded from the store",
		}),
		ZipCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_zip_cache_lookups_total",
			Help: "ZIP resolver cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "compliance_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: durationBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) ObserveClassification(source, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(source, outcome).Inc()
	m.ClassifyDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncCOAIngestion(aiSucceeded bool) {
	if m == nil {
		return
	}
	label := "failed"
	if aiSucceeded {
		label = "ok"
	}
	m.COAIngestions.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveEligibility(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.EligibilityChecks.WithLabelValues(outcome).Inc()
	m.EligibilityDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncViolation(severity string) {
	if m == nil {
		return
	}
	m.ViolationsLogged.WithLabelValues(severity).Inc()
}

func (m *Metrics) IncViolationResolved() {
	if m == nil {
		return
	}
	m.ViolationsResolved.Inc()
}

func (m *Metrics) IncRuleCatalogReload() {
	if m == nil {
		return
	}
	m.RuleCatalogReloads.Inc()
}

func (m *Metrics) IncZipCache(result string) {
	if m == nil {
		return
	}
	m.ZipCacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, start time.Time) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
}
