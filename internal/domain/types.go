package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Supported clinical domains
const (
	DomainCardiovascular = "cardiovascular"
	DomainBreastCancer   = "breast_cancer"
	DomainFetalHealth    = "fetal_health"
)

// RawInput maps a clinical field name to its raw request value
type RawInput map[string]interface{}

// Float returns the named field as a float64 when it holds a numeric value
func (r RawInput) Float(name string) (float64, bool) {
	v, ok := r[name]
	if !ok {
		return 0, false
	}
	return NumericValue(v)
}

// FloatOr returns the named numeric field or def when it is absent or not numeric
func (r RawInput) FloatOr(name string, def float64) float64 {
	if v, ok := r.Float(name); ok {
		return v
	}
	return def
}

// NumericValue converts JSON and Go numeric kinds to float64.
// Booleans and strings are not numeric.
func NumericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// FormatNumber renders a clinical value without trailing zeros
func FormatNumber(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return fmt.Sprintf("%v", v)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// RiskLevel is the ordinal risk classification derived from model output
type RiskLevel int

// Risk levels in ascending order of severity
const (
	RiskLevelVeryLow RiskLevel = iota
	RiskLevelLow
	RiskLevelModerate
	RiskLevelHigh
	RiskLevelVeryHigh
)

var riskLevelNames = [...]string{"Very Low", "Low", "Moderate", "High", "Very High"}

func (l RiskLevel) String() string {
	if l < RiskLevelVeryLow || l > RiskLevelVeryHigh {
		return "Unknown"
	}
	return riskLevelNames[l]
}

// ParseRiskLevel parses a display name such as "Very High" or a key such as "very_high"
func ParseRiskLevel(s string) (RiskLevel, error) {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", " "))
	for i, name := range riskLevelNames {
		if strings.ToLower(name) == normalized {
			return RiskLevel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown risk level %q", s)
}

// MarshalJSON encodes the level by display name
func (l RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a level from its display name
func (l *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("risk level must be a string: %w", err)
	}
	parsed, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ValidationResult carries the outcome of validating one raw record
type ValidationResult struct {
	Domain    string             `json:"domain"`
	Valid     bool               `json:"valid"`
	Errors    []*ValidationError `json:"errors"`
	Warnings  []string           `json:"warnings"`
	RiskFlags []string           `json:"risk_flags"`
}

// NewValidationResult creates an empty result for a domain
func NewValidationResult(domainID string) *ValidationResult {
	return &ValidationResult{
		Domain:    domainID,
		Valid:     true,
		Errors:    []*ValidationError{},
		Warnings:  []string{},
		RiskFlags: []string{},
	}
}

// AddError records a field-level error and marks the result invalid
func (r *ValidationResult) AddError(field, message string, value interface{}) {
	r.Errors = append(r.Errors, NewValidationError(field, message, value))
	r.Valid = false
}

// AddWarning appends a warning unless it is already present
func (r *ValidationResult) AddWarning(msg string) {
	if !contains(r.Warnings, msg) {
		r.Warnings = append(r.Warnings, msg)
	}
}

// AddRiskFlag appends a risk flag unless it is already present
func (r *ValidationResult) AddRiskFlag(msg string) {
	if !contains(r.RiskFlags, msg) {
		r.RiskFlags = append(r.RiskFlags, msg)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// FeatureVector is the ordered model input for one request
type FeatureVector struct {
	Domain       string    `json:"domain"`
	FeatureOrder []string  `json:"feature_order"`
	Values       []float64 `json:"values"`
}

// Len returns the number of values in the vector
func (v *FeatureVector) Len() int {
	return len(v.Values)
}

// PredictionResult is the classifier output for one vector
type PredictionResult struct {
	Domain        string    `json:"domain"`
	Label         string    `json:"label"`
	ClassIndex    int       `json:"class_index"`
	TargetLabels  []string  `json:"target_labels"`
	Probabilities []float64 `json:"probabilities"`
	Confidence    float64   `json:"confidence"`
	ModelVersion  string    `json:"model_version,omitempty"`
}

// ProbabilityOf returns the probability assigned to a target label
func (p *PredictionResult) ProbabilityOf(label string) (float64, bool) {
	for i, l := range p.TargetLabels {
		if strings.EqualFold(l, label) && i < len(p.Probabilities) {
			return p.Probabilities[i], true
		}
	}
	return 0, false
}

// RiskFactors groups clinical findings by their contribution to risk
type RiskFactors struct {
	Major      []string `json:"major"`
	Moderate   []string `json:"moderate"`
	Protective []string `json:"protective"`
}

// LifestyleAdvice holds personalized lifestyle recommendations
type LifestyleAdvice struct {
	Diet      []string `json:"diet"`
	Exercise  []string `json:"exercise"`
	Lifestyle []string `json:"lifestyle"`
}

// TenYearRisk is a projected ten-year risk estimate
type TenYearRisk struct {
	Percentage        float64  `json:"percentage"`
	Category          string   `json:"category"`
	FactorsConsidered []string `json:"factors_considered"`
}

// RiskAssessment is the clinical reading of a prediction.
// It is a pure function of the prediction and the raw input.
type RiskAssessment struct {
	Domain          string           `json:"domain"`
	RiskLevel       RiskLevel        `json:"risk_level"`
	RiskScore       float64          `json:"risk_score"`
	RiskCategory    string           `json:"risk_category"`
	Interpretation  string           `json:"interpretation"`
	Recommendations []string         `json:"recommendations"`
	RiskFactors     *RiskFactors     `json:"risk_factors,omitempty"`
	LifestyleAdvice *LifestyleAdvice `json:"lifestyle_advice,omitempty"`
	TenYearRisk     *TenYearRisk     `json:"ten_year_risk,omitempty"`
}

// EnhancementRequest asks the gateway for a narrative report
type EnhancementRequest struct {
	Domain     string          `json:"domain"`
	RawInput   RawInput        `json:"raw_input"`
	Assessment *RiskAssessment `json:"risk_assessment"`
	Question   string          `json:"user_prompt"`
}

// Enhancement providers reported in metadata
const (
	ProviderFallback = "fallback"
	StatusSuccess    = "success"
)

// EnhancementMetadata describes how a report was produced
type EnhancementMetadata struct {
	Domain                string    `json:"domain"`
	Provider              string    `json:"provider"`
	Model                 string    `json:"model,omitempty"`
	AttemptsMade          int       `json:"attempts_made"`
	FallbackUsed          bool      `json:"fallback_used"`
	FallbackReason        string    `json:"fallback_reason,omitempty"`
	ErrorDetails          string    `json:"error_details,omitempty"`
	CacheHit              bool      `json:"cache_hit"`
	GeneratedAt           time.Time `json:"generated_at"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds"`
	Trace                 []string  `json:"trace"`
}

// EnhancementResult is the gateway response; Status is always "success"
type EnhancementResult struct {
	Status     string              `json:"status"`
	ReportText string              `json:"report_text"`
	Metadata   EnhancementMetadata `json:"metadata"`
}

// PredictionOutcome bundles every stage of a predict call
type PredictionOutcome struct {
	RequestID   string             `json:"request_id,omitempty"`
	Validation  *ValidationResult  `json:"validation"`
	Prediction  *PredictionResult  `json:"prediction,omitempty"`
	Assessment  *RiskAssessment    `json:"assessment,omitempty"`
	Enhancement *EnhancementResult `json:"enhancement,omitempty"`
}

// ModelMetadata is the metadata document stored with a model artifact
type ModelMetadata struct {
	ModelType     string   `json:"model_type"`
	TargetClasses []string `json:"target_classes"`
	Accuracy      float64  `json:"accuracy"`
	FeatureCount  int      `json:"feature_count"`
	Version       string   `json:"version,omitempty"`
	TrainedAt     string   `json:"trained_at,omitempty"`
}

// DomainStatus reports model availability for one domain
type DomainStatus struct {
	Domain       string         `json:"domain"`
	DisplayName  string         `json:"display_name,omitempty"`
	Available    bool           `json:"available"`
	LastError    string         `json:"last_error,omitempty"`
	ArtifactPath string         `json:"artifact_path,omitempty"`
	LoadedAt     *time.Time     `json:"loaded_at,omitempty"`
	Metadata     *ModelMetadata `json:"metadata,omitempty"`
}

// PredictionRecord is the structured record emitted for every predict call
type PredictionRecord struct {
	ID           string            `json:"id"`
	RequestID    string            `json:"request_id,omitempty"`
	Domain       string            `json:"domain"`
	Valid        bool              `json:"valid"`
	Validation   *ValidationResult `json:"validation,omitempty"`
	Prediction   *PredictionResult `json:"prediction,omitempty"`
	Assessment   *RiskAssessment   `json:"assessment,omitempty"`
	ModelVersion string            `json:"model_version,omitempty"`
	Error        string            `json:"error,omitempty"`
	LatencyMs    int64             `json:"latency_ms"`
	CreatedAt    time.Time         `json:"created_at"`
}
