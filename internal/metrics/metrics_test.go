package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObservePrediction("cardiovascular", "success", time.Now())
	m.ObservePrediction("cardiovascular", "invalid", time.Now())
	m.ObservePrediction("cardiovascular", "success", time.Now())
	m.IncRiskLevel("cardiovascular", "Very High")
	m.ObserveModelLoad("fetal_health", false, false)
	m.ObserveModelLoad("breast_cancer", true, true)
	m.AddValidationFindings("cardiovascular", 0, 2, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PredictionsTotal.WithLabelValues("cardiovascular", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RiskLevels.WithLabelValues("cardiovascular", "Very High")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ModelAvailable.WithLabelValues("fetal_health")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelAvailable.WithLabelValues("breast_cancer")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ValidationFindings.WithLabelValues("cardiovascular", "warning")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePrediction("cardiovascular", "success", time.Now())
		m.AddValidationFindings("cardiovascular", 1, 1, 1)
		m.IncRiskLevel("cardiovascular", "Low")
		m.ObserveModelLoad("cardiovascular", true, true)
		m.ObserveEnhancement("cardiovascular", "fallback", time.Now())
		m.IncEnhancementAttempt("transient")
		m.IncRecordDropped("kafka")
	})
}
