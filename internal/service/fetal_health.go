package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/medirisk-server/internal/domain"
)

// Fetal health classes as emitted by the model
const (
	FetalNormal       = "Normal"
	FetalSuspect      = "Suspect"
	FetalPathological = "Pathological"
)

const lowConfidenceThreshold = 0.7

// FetalHealthStrategy implements cardiotocography checks and assessment
type FetalHealthStrategy struct{}

// Domain implements DomainStrategy
func (s *FetalHealthStrategy) Domain() string { return domain.DomainFetalHealth }

// CrossCheck implements DomainStrategy
func (s *FetalHealthStrategy) CrossCheck(raw domain.RawInput, res *domain.ValidationResult) {
	if baseline, ok := raw.Float("baseline_value"); ok && (baseline < 110 || baseline > 160) {
		res.AddWarning(fmt.Sprintf("Baseline fetal heart rate (%s bpm) outside normal range 110-160 bpm",
			domain.FormatNumber(baseline)))
	}

	hMin, okMin := raw.Float("histogram_min")
	hMax, okMax := raw.Float("histogram_max")
	if okMin && okMax {
		for _, name := range []string{"histogram_mode", "histogram_mean", "histogram_median"} {
			v, ok := raw.Float(name)
			if ok && (v < hMin || v > hMax) {
				res.AddWarning(fmt.Sprintf("%s (%s) outside histogram range [%s, %s]",
					name, domain.FormatNumber(v), domain.FormatNumber(hMin), domain.FormatNumber(hMax)))
			}
		}
		if width, ok := raw.Float("histogram_width"); ok && math.Abs(width-(hMax-hMin)) > 1 {
			res.AddWarning(fmt.Sprintf("histogram_width (%s) inconsistent with histogram range (%s)",
				domain.FormatNumber(width), domain.FormatNumber(hMax-hMin)))
		}
	}

	if v, ok := raw.Float("severe_decelerations"); ok && v > 0 {
		res.AddRiskFlag("Severe decelerations present")
	}
	if v, ok := raw.Float("prolongued_decelerations"); ok && v > 0 {
		res.AddRiskFlag("Prolonged decelerations present")
	}
}

// Assess implements DomainStrategy
func (s *FetalHealthStrategy) Assess(pred *domain.PredictionResult, _ domain.RawInput) (*domain.RiskAssessment, error) {
	label := pred.Label
	conf := pred.Confidence

	a := &domain.RiskAssessment{Domain: domain.DomainFetalHealth}
	switch {
	case strings.EqualFold(label, FetalNormal):
		a.RiskLevel = domain.RiskLevelModerate
		if conf >= 0.8 {
			a.RiskLevel = domain.RiskLevelLow
		}
		a.RiskCategory = "Reassuring - Routine Monitoring"
		a.Interpretation = fmt.Sprintf("Fetal health appears normal (confidence: %.1f%%). Continue routine monitoring.", conf*100)
		a.Recommendations = []string{
			"Continue routine antenatal care",
			"Routine fetal movement awareness",
			"Repeat CTG as clinically indicated",
		}
	case strings.EqualFold(label, FetalSuspect):
		a.RiskLevel = domain.RiskLevelModerate
		a.RiskCategory = "Non-Reassuring - Close Monitoring"
		a.Interpretation = fmt.Sprintf("Fetal health is suspect (confidence: %.1f%%). Close monitoring recommended.", conf*100)
		a.Recommendations = []string{
			"Continuous CTG monitoring",
			"Obstetric review within hours",
			"Assess maternal position, hydration and contractions",
			"Consider additional fetal well-being tests",
		}
	case strings.EqualFold(label, FetalPathological):
		a.RiskLevel = domain.RiskLevelHigh
		if conf >= 0.8 {
			a.RiskLevel = domain.RiskLevelVeryHigh
		}
		a.RiskCategory = "Abnormal - Urgent Obstetric Evaluation"
		a.Interpretation = fmt.Sprintf("Fetal health appears pathological (confidence: %.1f%%). Urgent obstetric evaluation required.", conf*100)
		a.Recommendations = []string{
			"Immediate obstetric evaluation",
			"Continuous fetal monitoring",
			"Prepare for possible expedited delivery",
			"Notify neonatal team",
		}
	default:
		return nil, &domain.PreconditionError{
			Domain: domain.DomainFetalHealth,
			Reason: fmt.Sprintf("unknown fetal health class %q", label),
		}
	}

	if conf < lowConfidenceThreshold {
		a.Recommendations = append(a.Recommendations, "Low model confidence - confirm with clinical assessment")
	}

	// score is the probability of a non-normal outcome
	if p, ok := pred.ProbabilityOf(FetalNormal); ok {
		a.RiskScore = percent(1 - p)
	} else {
		a.RiskScore = percent(conf)
	}
	return a, nil
}
