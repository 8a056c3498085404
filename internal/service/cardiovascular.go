package service

import (
	"fmt"
	"math"

	"github.com/medirisk-server/internal/domain"
	"github.com/medirisk-server/internal/schema"
)

const cardiovascularPositiveClass = "Cardiovascular Disease"

var cardiovascularInterpretations = map[domain.RiskLevel]string{
	domain.RiskLevelVeryLow:  "Very low cardiovascular risk (%.1f%%). Excellent cardiovascular health profile.",
	domain.RiskLevelLow:      "Low cardiovascular risk (%.1f%%). Good cardiovascular health with minimal risk factors.",
	domain.RiskLevelModerate: "Moderate cardiovascular risk (%.1f%%). Some risk factors present requiring attention.",
	domain.RiskLevelHigh:     "High cardiovascular risk (%.1f%%). Multiple risk factors present requiring intervention.",
	domain.RiskLevelVeryHigh: "Very high cardiovascular risk (%.1f%%). Immediate medical evaluation recommended.",
}

var (
	cardiovascularHighRecommendations = []string{
		"Immediate cardiology consultation recommended",
		"Comprehensive cardiac evaluation (ECG, echocardiogram, stress test)",
		"Consider cardiac catheterization if indicated",
		"Aggressive risk factor modification",
		"Medication review and optimization",
	}
	cardiovascularModerateRecommendations = []string{
		"Cardiology consultation within 1-3 months",
		"Exercise stress test or cardiac imaging",
		"Lipid panel and diabetes screening",
		"Blood pressure monitoring",
		"Lifestyle modification counseling",
	}
	cardiovascularLowRecommendations = []string{
		"Continue routine cardiovascular screening",
		"Annual health maintenance examination",
		"Lifestyle optimization for prevention",
		"Monitor emerging risk factors",
	}
)

// CardiovascularStrategy implements coronary artery disease checks and assessment
type CardiovascularStrategy struct{}

// Domain implements DomainStrategy
func (s *CardiovascularStrategy) Domain() string { return domain.DomainCardiovascular }

// CrossCheck implements DomainStrategy
func (s *CardiovascularStrategy) CrossCheck(raw domain.RawInput, res *domain.ValidationResult) {
	age, hasAge := raw.Float("age")
	hr, hasHR := raw.Float("max_heart_rate")
	bp, hasBP := raw.Float("resting_blood_pressure")

	if hasAge && hasHR && age > 0 {
		predicted := 220 - age
		switch {
		case hr > predicted*1.1:
			res.AddWarning(fmt.Sprintf("Maximum heart rate (%s) higher than age-predicted (%s)",
				domain.FormatNumber(hr), domain.FormatNumber(predicted)))
		case hr < predicted*0.7:
			res.AddWarning(fmt.Sprintf("Maximum heart rate (%s) significantly lower than age-predicted (%s)",
				domain.FormatNumber(hr), domain.FormatNumber(predicted)))
		}
	}

	count := schema.CardiovascularRiskFactorCount(
		raw.FloatOr("age", 0),
		raw.FloatOr("gender", 0),
		raw.FloatOr("resting_blood_pressure", 0),
		raw.FloatOr("serum_cholesterol", 0),
		raw.FloatOr("exercise_angina", 0),
	)
	if count >= 3 {
		res.AddRiskFlag(fmt.Sprintf("Multiple risk factors present (%d)", count))
	}

	if hasAge && age > 80 {
		res.AddRiskFlag("Advanced age (>80) - increased medical complexity")
	}
	if hasBP && bp > 180 {
		res.AddRiskFlag("Hypertensive crisis range blood pressure (>180 mmHg)")
	}
	if hasBP && bp < 90 {
		res.AddRiskFlag("Hypotensive blood pressure (<90 mmHg)")
	}
}

// Assess implements DomainStrategy
func (s *CardiovascularStrategy) Assess(pred *domain.PredictionResult, raw domain.RawInput) (*domain.RiskAssessment, error) {
	p := classProbability(pred, cardiovascularPositiveClass)
	level := probabilityBands.Level(p)

	return &domain.RiskAssessment{
		Domain:          domain.DomainCardiovascular,
		RiskLevel:       level,
		RiskScore:       percent(p),
		RiskCategory:    cardiovascularCategory(p, raw),
		Interpretation:  fmt.Sprintf(cardiovascularInterpretations[level], p*100),
		Recommendations: cardiovascularRecommendations(level, raw),
		RiskFactors:     cardiovascularRiskFactors(raw),
		LifestyleAdvice: cardiovascularLifestyle(raw),
		TenYearRisk:     cardiovascularTenYearRisk(p, raw),
	}, nil
}

func cardiovascularCategory(p float64, raw domain.RawInput) string {
	switch {
	case p >= 0.7:
		return "Immediate Attention Required"
	case p >= 0.5:
		if raw.FloatOr("age", 0) > 65 || raw.FloatOr("gender", 0) == 1 {
			return "High Risk - Enhanced Monitoring"
		}
		return "Moderate-High Risk"
	case p >= 0.3:
		return "Moderate Risk - Prevention Focus"
	default:
		return "Low Risk - Maintenance"
	}
}

func cardiovascularRecommendations(level domain.RiskLevel, raw domain.RawInput) []string {
	var base []string
	switch level {
	case domain.RiskLevelHigh, domain.RiskLevelVeryHigh:
		base = cardiovascularHighRecommendations
	case domain.RiskLevelModerate:
		base = cardiovascularModerateRecommendations
	default:
		base = cardiovascularLowRecommendations
	}

	recs := append([]string(nil), base...)
	if raw.FloatOr("resting_blood_pressure", 0) > 140 {
		recs = append(recs, "Antihypertensive therapy consideration")
	}
	if raw.FloatOr("serum_cholesterol", 0) > 240 {
		recs = append(recs, "Statin therapy evaluation")
	}
	return recs
}

func cardiovascularRiskFactors(raw domain.RawInput) *domain.RiskFactors {
	age := raw.FloatOr("age", 0)
	gender := raw.FloatOr("gender", 0)
	bp := raw.FloatOr("resting_blood_pressure", 0)
	chol := raw.FloatOr("serum_cholesterol", 0)
	hr := raw.FloatOr("max_heart_rate", 0)
	chestPain := raw.FloatOr("chest_pain_type", 0)
	angina := raw.FloatOr("exercise_angina", 0)

	rf := &domain.RiskFactors{Major: []string{}, Moderate: []string{}, Protective: []string{}}

	if age > 65 {
		rf.Major = append(rf.Major, "Advanced age (>65 years)")
	}
	if gender == 1 && age > 45 {
		rf.Major = append(rf.Major, "Male gender with increased age")
	}
	if bp > 140 {
		rf.Major = append(rf.Major, "Hypertension (BP >140 mmHg)")
	}
	if chol > 240 {
		rf.Major = append(rf.Major, "High cholesterol (>240 mg/dL)")
	}
	if angina == 1 {
		rf.Major = append(rf.Major, "Exercise-induced angina")
	}
	if chestPain == 1 || chestPain == 2 {
		rf.Major = append(rf.Major, "Significant chest pain symptoms")
	}

	if bp >= 130 && bp <= 140 {
		rf.Moderate = append(rf.Moderate, "Borderline hypertension")
	}
	if chol >= 200 && chol <= 240 {
		rf.Moderate = append(rf.Moderate, "Borderline high cholesterol")
	}
	if hr < 100 {
		rf.Moderate = append(rf.Moderate, "Low exercise capacity")
	}
	if age >= 55 && age <= 65 {
		rf.Moderate = append(rf.Moderate, "Intermediate age group")
	}

	if hr > 160 {
		rf.Protective = append(rf.Protective, "Excellent exercise capacity")
	}
	if bp < 120 {
		rf.Protective = append(rf.Protective, "Optimal blood pressure")
	}
	if chol < 180 {
		rf.Protective = append(rf.Protective, "Optimal cholesterol levels")
	}
	if age < 45 {
		rf.Protective = append(rf.Protective, "Young age")
	}
	return rf
}

func cardiovascularLifestyle(raw domain.RawInput) *domain.LifestyleAdvice {
	advice := &domain.LifestyleAdvice{
		Diet: []string{
			"Mediterranean diet with emphasis on fruits, vegetables, whole grains",
			"Limit saturated fat to <7% of total calories",
			"Reduce sodium intake to <2300mg daily",
			"Include omega-3 rich fish 2x weekly",
		},
		Exercise: []string{
			"Moderate aerobic exercise 150 minutes/week",
			"Resistance training 2-3 times per week",
			"Daily walking or equivalent activity",
			"Consult physician before starting new exercise program",
		},
		Lifestyle: []string{
			"Smoking cessation if applicable",
			"Limit alcohol consumption",
			"Stress management techniques",
			"Adequate sleep (7-9 hours nightly)",
			"Regular blood pressure monitoring",
		},
	}

	if raw.FloatOr("max_heart_rate", 0) < 120 {
		advice.Exercise = append([]string{"Gradual exercise progression under medical supervision"}, advice.Exercise...)
	}
	if raw.FloatOr("age", 0) > 65 {
		advice.Exercise = append(advice.Exercise, "Balance and flexibility exercises for fall prevention")
	}
	return advice
}

// cardiovascularTenYearRisk is a simplified Framingham-style projection
func cardiovascularTenYearRisk(p float64, raw domain.RawInput) *domain.TenYearRisk {
	age := raw.FloatOr("age", 0)
	ageFactor := 1 + 0.02*math.Min(10, math.Max(0, 70-age))

	multiplier := 1.0
	if raw.FloatOr("resting_blood_pressure", 0) > 160 {
		multiplier *= 1.5
	}
	if raw.FloatOr("serum_cholesterol", 0) > 260 {
		multiplier *= 1.3
	}
	if raw.FloatOr("gender", 0) == 1 {
		multiplier *= 1.2
	}

	risk := math.Min(0.95, p*ageFactor*multiplier)

	var category string
	switch {
	case risk < 0.075:
		category = "Low (<7.5%)"
	case risk < 0.20:
		category = "Borderline (7.5-20%)"
	case risk < 0.40:
		category = "Intermediate (20-40%)"
	default:
		category = "High (>40%)"
	}

	return &domain.TenYearRisk{
		Percentage:        percent(risk),
		Category:          category,
		FactorsConsidered: []string{"age", "gender", "blood_pressure", "cholesterol", "current_health_status"},
	}
}
