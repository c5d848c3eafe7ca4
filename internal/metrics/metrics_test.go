package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveClassification("ai", "ok", time.Now())
		m.IncCOAIngestion(true)
		m.ObserveEligibility("ok", time.Now())
		m.IncViolation("high")
		m.IncViolationResolved()
		m.IncRuleCatalogReload()
		m.IncZipCache("hit")
		m.ObserveHTTP("GET", "/health", "200", time.Now())
	})
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveClassification("keyword", "ok", time.Now())
	m.ObserveClassification("keyword", "ok", time.Now())
	m.IncViolation("critical")
	m.IncCOAIngestion(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Classifications.WithLabelValues("keyword", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ViolationsLogged.WithLabelValues("critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.COAIngestions.WithLabelValues("failed")))
}
