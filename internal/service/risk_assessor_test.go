package service

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medirisk-server/internal/domain"
)

func cardioPrediction(p float64) *domain.PredictionResult {
	label, idx, conf := "Healthy", 0, 1-p
	if p >= 0.5 {
		label, idx, conf = cardiovascularPositiveClass, 1, p
	}
	return &domain.PredictionResult{
		Domain:        domain.DomainCardiovascular,
		Label:         label,
		ClassIndex:    idx,
		TargetLabels:  []string{"Healthy", cardiovascularPositiveClass},
		Probabilities: []float64{1 - p, p},
		Confidence:    conf,
	}
}

func TestThresholdTable_LowerBoundInclusive(t *testing.T) {
	tests := []struct {
		p    float64
		want domain.RiskLevel
	}{
		{0, domain.RiskLevelVeryLow},
		{0.0999, domain.RiskLevelVeryLow},
		{0.1, domain.RiskLevelLow},
		{0.2999, domain.RiskLevelLow},
		{0.3, domain.RiskLevelModerate},
		{0.4999, domain.RiskLevelModerate},
		{0.5, domain.RiskLevelHigh},
		{0.6999, domain.RiskLevelHigh},
		{0.7, domain.RiskLevelVeryHigh},
		{1, domain.RiskLevelVeryHigh},
	}

	a := NewRiskAssessor(DefaultStrategies())
	for _, tt := range tests {
		assert.Equal(t, tt.want, probabilityBands.Level(tt.p), "p=%v", tt.p)

		res, err := a.Assess(domain.DomainCardiovascular, cardioPrediction(tt.p), cardioInput())
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.RiskLevel, "p=%v", tt.p)
	}
}

func TestCardiovascularAssessment_EndToEndExample(t *testing.T) {
	raw := domain.RawInput{
		"age":                    70.0,
		"gender":                 1.0,
		"resting_blood_pressure": 150.0,
		"serum_cholesterol":      250.0,
		"max_heart_rate":         90.0,
		"chest_pain_type":        2.0,
		"exercise_angina":        1.0,
	}

	a := NewRiskAssessor(DefaultStrategies())
	res, err := a.Assess(domain.DomainCardiovascular, cardioPrediction(0.82), raw)
	require.NoError(t, err)

	assert.Equal(t, domain.RiskLevelVeryHigh, res.RiskLevel)
	assert.Equal(t, "Very High", res.RiskLevel.String())
	assert.Equal(t, "Immediate Attention Required", res.RiskCategory)
	assert.Equal(t, 82.0, res.RiskScore)
	assert.Equal(t, "Very high cardiovascular risk (82.0%). Immediate medical evaluation recommended.", res.Interpretation)

	require.NotNil(t, res.RiskFactors)
	assert.Subset(t, res.RiskFactors.Major, []string{
		"Advanced age (>65 years)",
		"Hypertension (BP >140 mmHg)",
		"High cholesterol (>240 mg/dL)",
		"Exercise-induced angina",
		"Significant chest pain symptoms",
	})
	assert.Contains(t, res.RiskFactors.Moderate, "Low exercise capacity")

	assert.Contains(t, res.Recommendations, "Immediate cardiology consultation recommended")
	assert.Contains(t, res.Recommendations, "Antihypertensive therapy consideration")
	assert.Contains(t, res.Recommendations, "Statin therapy evaluation")

	require.NotNil(t, res.LifestyleAdvice)
	assert.Equal(t, "Gradual exercise progression under medical supervision", res.LifestyleAdvice.Exercise[0])
	assert.Contains(t, res.LifestyleAdvice.Exercise, "Balance and flexibility exercises for fall prevention")

	// 0.82 * 1.0 (age 70) * 1.2 (male) caps at 0.95
	require.NotNil(t, res.TenYearRisk)
	assert.Equal(t, 95.0, res.TenYearRisk.Percentage)
	assert.Equal(t, "High (>40%)", res.TenYearRisk.Category)
}

func TestCardiovascularAssessment_Categories(t *testing.T) {
	a := NewRiskAssessor(DefaultStrategies())

	female := cardioInput()
	female["gender"] = 0.0

	tests := []struct {
		name string
		p    float64
		raw  domain.RawInput
		want string
	}{
		{"immediate", 0.7, cardioInput(), "Immediate Attention Required"},
		{"high male", 0.5, cardioInput(), "High Risk - Enhanced Monitoring"},
		{"moderate-high female", 0.6, female, "Moderate-High Risk"},
		{"prevention", 0.3, cardioInput(), "Moderate Risk - Prevention Focus"},
		{"maintenance", 0.29, cardioInput(), "Low Risk - Maintenance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := a.Assess(domain.DomainCardiovascular, cardioPrediction(tt.p), tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.RiskCategory)
		})
	}
}

func TestCardiovascularAssessment_LowRiskProfile(t *testing.T) {
	raw := domain.RawInput{
		"age":                    35.0,
		"gender":                 0.0,
		"resting_blood_pressure": 115.0,
		"serum_cholesterol":      170.0,
		"max_heart_rate":         175.0,
		"chest_pain_type":        3.0,
		"exercise_angina":        0.0,
	}

	a := NewRiskAssessor(DefaultStrategies())
	res, err := a.Assess(domain.DomainCardiovascular, cardioPrediction(0.05), raw)
	require.NoError(t, err)

	assert.Equal(t, domain.RiskLevelVeryLow, res.RiskLevel)
	assert.Empty(t, res.RiskFactors.Major)
	assert.ElementsMatch(t, []string{
		"Excellent exercise capacity",
		"Optimal blood pressure",
		"Optimal cholesterol levels",
		"Young age",
	}, res.RiskFactors.Protective)
	assert.NotContains(t, res.Recommendations, "Statin therapy evaluation")
	assert.Equal(t, "Continue routine cardiovascular screening", res.Recommendations[0])

	// 0.05 * (1 + 0.02*10)
	assert.Equal(t, 6.0, res.TenYearRisk.Percentage)
	assert.Equal(t, "Low (<7.5%)", res.TenYearRisk.Category)
}

func TestRiskAssessor_IsPure(t *testing.T) {
	a := NewRiskAssessor(DefaultStrategies())

	for _, d := range []string{domain.DomainCardiovascular, domain.DomainBreastCancer, domain.DomainFetalHealth} {
		var pred *domain.PredictionResult
		switch d {
		case domain.DomainCardiovascular:
			pred = cardioPrediction(0.42)
		case domain.DomainBreastCancer:
			pred = &domain.PredictionResult{Label: "Benign", TargetLabels: []string{"Malignant", "Benign"}, Probabilities: []float64{0.2, 0.8}, Confidence: 0.8}
		default:
			pred = &domain.PredictionResult{Label: FetalSuspect, TargetLabels: []string{FetalNormal, FetalSuspect, FetalPathological}, Probabilities: []float64{0.3, 0.6, 0.1}, Confidence: 0.6}
		}

		raw := inputFor(d)
		first, err := a.Assess(d, pred, raw)
		require.NoError(t, err)
		second, err := a.Assess(d, pred, raw)
		require.NoError(t, err)

		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("%s assessment changed between calls (-first +second):\n%s", d, diff)
		}
		assert.Equal(t, inputFor(d), raw, "raw input must not be modified")
	}
}

func TestBreastCancerAssessment(t *testing.T) {
	a := NewRiskAssessor(DefaultStrategies())
	labels := []string{"Malignant", "Benign"}

	tests := []struct {
		name      string
		malignant float64
		level     domain.RiskLevel
		category  string
	}{
		{"benign", 0.05, domain.RiskLevelVeryLow, "Likely Benign - Routine Screening"},
		{"indeterminate", 0.3, domain.RiskLevelModerate, "Indeterminate - Further Imaging Recommended"},
		{"malignant", 0.9, domain.RiskLevelVeryHigh, "Malignancy Suspected - Urgent Oncology Referral"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred := &domain.PredictionResult{TargetLabels: labels, Probabilities: []float64{tt.malignant, 1 - tt.malignant}}
			res, err := a.Assess(domain.DomainBreastCancer, pred, breastInput())
			require.NoError(t, err)
			assert.Equal(t, tt.level, res.RiskLevel)
			assert.Equal(t, tt.category, res.RiskCategory)
			assert.NotEmpty(t, res.Recommendations)
			assert.Nil(t, res.RiskFactors)
		})
	}

	pred := &domain.PredictionResult{TargetLabels: labels, Probabilities: []float64{0.05, 0.95}}
	res, err := a.Assess(domain.DomainBreastCancer, pred, breastInput())
	require.NoError(t, err)
	assert.Equal(t, "Tumor appears to be benign (confidence: 95.0%). Continue routine screening.", res.Interpretation)
}

func TestFetalHealthAssessment(t *testing.T) {
	a := NewRiskAssessor(DefaultStrategies())
	labels := []string{FetalNormal, FetalSuspect, FetalPathological}

	tests := []struct {
		name     string
		label    string
		conf     float64
		level    domain.RiskLevel
		category string
		lowConf  bool
	}{
		{"confident normal", FetalNormal, 0.9, domain.RiskLevelLow, "Reassuring - Routine Monitoring", false},
		{"normal at threshold", FetalNormal, 0.8, domain.RiskLevelLow, "Reassuring - Routine Monitoring", false},
		{"uncertain normal", FetalNormal, 0.6, domain.RiskLevelModerate, "Reassuring - Routine Monitoring", true},
		{"suspect", FetalSuspect, 0.75, domain.RiskLevelModerate, "Non-Reassuring - Close Monitoring", false},
		{"pathological", FetalPathological, 0.7, domain.RiskLevelHigh, "Abnormal - Urgent Obstetric Evaluation", false},
		{"confident pathological", FetalPathological, 0.85, domain.RiskLevelVeryHigh, "Abnormal - Urgent Obstetric Evaluation", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probs := make([]float64, 3)
			idx := 0
			for i, l := range labels {
				if l == tt.label {
					idx = i
				}
			}
			probs[idx] = tt.conf
			for i := range probs {
				if i != idx {
					probs[i] = (1 - tt.conf) / 2
				}
			}

			pred := &domain.PredictionResult{Label: tt.label, ClassIndex: idx, TargetLabels: labels, Probabilities: probs, Confidence: tt.conf}
			res, err := a.Assess(domain.DomainFetalHealth, pred, fetalInput())
			require.NoError(t, err)
			assert.Equal(t, tt.level, res.RiskLevel)
			assert.Equal(t, tt.category, res.RiskCategory)

			hasLowConf := false
			for _, r := range res.Recommendations {
				if r == "Low model confidence - confirm with clinical assessment" {
					hasLowConf = true
				}
			}
			assert.Equal(t, tt.lowConf, hasLowConf)
		})
	}
}

func TestRiskAssessor_Errors(t *testing.T) {
	a := NewRiskAssessor(DefaultStrategies())

	_, err := a.Assess("dermatology", cardioPrediction(0.5), nil)
	var unknown *domain.UnknownDomainError
	assert.ErrorAs(t, err, &unknown)

	_, err = a.Assess(domain.DomainCardiovascular, nil, cardioInput())
	var pre *domain.PreconditionError
	assert.ErrorAs(t, err, &pre)
}

func TestFetalHealthAssessment_LabelFromProbabilities(t *testing.T) {
	a := NewRiskAssessor(DefaultStrategies())
	labels := []string{FetalNormal, FetalSuspect, FetalPathological}

	tests := []struct {
		name  string
		label string
	}{
		{"empty label", ""},
		{"matching label", "normal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred := &domain.PredictionResult{Label: tt.label, TargetLabels: labels, Probabilities: []float64{0.95, 0.03, 0.02}}
			res, err := a.Assess(domain.DomainFetalHealth, pred, fetalInput())
			require.NoError(t, err)
			assert.Equal(t, domain.RiskLevelLow, res.RiskLevel)
			assert.Equal(t, "Reassuring - Routine Monitoring", res.RiskCategory)
			assert.Equal(t, 5.0, res.RiskScore)
			assert.Contains(t, res.Interpretation, "confidence: 95.0%")
		})
	}
}

func TestRiskAssessor_RejectsInconsistentPredictions(t *testing.T) {
	a := NewRiskAssessor(DefaultStrategies())
	fetalLabels := []string{FetalNormal, FetalSuspect, FetalPathological}

	tests := []struct {
		name     string
		domainID string
		pred     *domain.PredictionResult
	}{
		{"numeric label", domain.DomainFetalHealth,
			&domain.PredictionResult{Label: "1", TargetLabels: fetalLabels, Probabilities: []float64{0.95, 0.03, 0.02}, Confidence: 0.95}},
		{"label of a less probable class", domain.DomainFetalHealth,
			&domain.PredictionResult{Label: FetalPathological, TargetLabels: fetalLabels, Probabilities: []float64{0.95, 0.03, 0.02}, Confidence: 0.95}},
		{"unknown fetal class without target labels", domain.DomainFetalHealth,
			&domain.PredictionResult{Label: "normal_class", Probabilities: []float64{0.95, 0.03, 0.02}}},
		{"unknown fetal target labels", domain.DomainFetalHealth,
			&domain.PredictionResult{TargetLabels: []string{"1", "2", "3"}, Probabilities: []float64{0.95, 0.03, 0.02}}},
		{"label count mismatch", domain.DomainCardiovascular,
			&domain.PredictionResult{TargetLabels: []string{"Healthy"}, Probabilities: []float64{0.4, 0.6}}},
		{"probability out of range", domain.DomainCardiovascular,
			&domain.PredictionResult{TargetLabels: []string{"Healthy", cardiovascularPositiveClass}, Probabilities: []float64{-0.2, 1.2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := a.Assess(tt.domainID, tt.pred, inputFor(tt.domainID))
			var pre *domain.PreconditionError
			require.ErrorAs(t, err, &pre)
			assert.Nil(t, res)
		})
	}
}

func TestRiskAssessor_DoesNotModifyPrediction(t *testing.T) {
	a := NewRiskAssessor(DefaultStrategies())
	pred := &domain.PredictionResult{TargetLabels: []string{"Malignant", "Benign"}, Probabilities: []float64{0.2, 0.8}, Confidence: 0.1}

	_, err := a.Assess(domain.DomainBreastCancer, pred, breastInput())
	require.NoError(t, err)
	assert.Empty(t, pred.Label)
	assert.Equal(t, 0.1, pred.Confidence)
}
