// Package metrics exposes Prometheus instrumentation for the serving pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics holds the collectors for prediction, model and enhancement paths
type Metrics struct {
	PredictionsTotal    *prometheus.CounterVec
	PredictionDuration  *prometheus.HistogramVec
	ValidationFindings  *prometheus.CounterVec
	RiskLevels          *prometheus.CounterVec
	ModelLoads          *prometheus.CounterVec
	ModelAvailable      *prometheus.GaugeVec
	EnhancementOutcomes *prometheus.CounterVec
	EnhancementAttempts *prometheus.CounterVec
	EnhancementDuration prometheus.Histogram
	RecordsDropped      *prometheus.CounterVec
}

// New registers all collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PredictionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medirisk_predictions_total",
			Help: "Predict calls by domain and outcome (success, invalid, unavailable, error)",
		}, []string{"domain", "outcome"}),
		PredictionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medirisk_prediction_duration_seconds",
			Help:    "Duration of validate, transform, predict and assess for one record",
			Buckets: latencyBuckets,
		}, []string{"domain"}),
		ValidationFindings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medirisk_validation_findings_total",
			Help: "Validation errors, warnings and risk flags emitted",
		}, []string{"domain", "kind"}),
		RiskLevels: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medirisk_risk_levels_total",
			Help: "Risk assessments by resulting level",
		}, []string{"domain", "level"}),
		ModelLoads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medirisk_model_loads_total",
			Help: "Model artifact loads and reloads by result",
		}, []string{"domain", "result"}),
		ModelAvailable: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "medirisk_model_available",
			Help: "1 when a model handle is published for the domain",
		}, []string{"domain"}),
		EnhancementOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medirisk_enhancement_outcomes_total",
			Help: "Report enhancements by outcome (provider, fallback, cache)",
		}, []string{"domain", "outcome"}),
		EnhancementAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medirisk_enhancement_attempts_total",
			Help: "Provider call attempts by result (success, transient, fatal)",
		}, []string{"result"}),
		EnhancementDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medirisk_enhancement_duration_seconds",
			Help:    "End-to-end gateway latency including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RecordsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medirisk_records_dropped_total",
			Help: "Prediction records a sink failed to accept",
		}, []string{"sink"}),
	}
}

// ObservePrediction records one predict call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObservePrediction(domainID, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.PredictionsTotal.WithLabelValues(domainID, outcome).Inc()
	m.PredictionDuration.WithLabelValues(domainID).Observe(time.Since(start).Seconds())
}

// AddValidationFindings counts errors, warnings and risk flags
func (m *Metrics) AddValidationFindings(domainID string, errs, warnings, flags int) {
	if m == nil {
		return
	}
	m.ValidationFindings.WithLabelValues(domainID, "error").Add(float64(errs))
	m.ValidationFindings.WithLabelValues(domainID, "warning").Add(float64(warnings))
	m.ValidationFindings.WithLabelValues(domainID, "risk_flag").Add(float64(flags))
}

// IncRiskLevel counts an assessment at the given level
func (m *Metrics) IncRiskLevel(domainID, level string) {
	if m == nil {
		return
	}
	m.RiskLevels.WithLabelValues(domainID, level).Inc()
}

// ObserveModelLoad records a load result and the domain's availability
func (m *Metrics) ObserveModelLoad(domainID string, ok, available bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.ModelLoads.WithLabelValues(domainID, result).Inc()
	gauge := 0.0
	if available {
		gauge = 1
	}
	m.ModelAvailable.WithLabelValues(domainID).Set(gauge)
}

// ObserveEnhancement records the outcome and latency of one gateway call
func (m *Metrics) ObserveEnhancement(domainID, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.EnhancementOutcomes.WithLabelValues(domainID, outcome).Inc()
	m.EnhancementDuration.Observe(time.Since(start).Seconds())
}

// IncEnhancementAttempt counts one provider attempt
func (m *Metrics) IncEnhancementAttempt(result string) {
	if m == nil {
		return
	}
	m.EnhancementAttempts.WithLabelValues(result).Inc()
}

// IncRecordDropped counts a record a sink failed to write
func (m *Metrics) IncRecordDropped(sink string) {
	if m == nil {
		return
	}
	m.RecordsDropped.WithLabelValues(sink).Inc()
}
