package service

import (
	"fmt"
	"math"

	"github.com/medirisk-server/internal/domain"
)

const breastCancerPositiveClass = "Malignant"

// worst_X is the largest observed value, so it can never be below mean_X
var breastCancerWorstMeanPairs = []string{"radius", "texture", "perimeter", "area"}

// BreastCancerStrategy implements tumour malignancy checks and assessment
type BreastCancerStrategy struct{}

// Domain implements DomainStrategy
func (s *BreastCancerStrategy) Domain() string { return domain.DomainBreastCancer }

// CrossCheck implements DomainStrategy
func (s *BreastCancerStrategy) CrossCheck(raw domain.RawInput, res *domain.ValidationResult) {
	for _, m := range breastCancerWorstMeanPairs {
		mean, okMean := raw.Float("mean_" + m)
		worst, okWorst := raw.Float("worst_" + m)
		if okMean && okWorst && worst < mean {
			res.AddWarning(fmt.Sprintf("worst_%s (%s) is smaller than mean_%s (%s)",
				m, domain.FormatNumber(worst), m, domain.FormatNumber(mean)))
		}
	}

	radius, okR := raw.Float("mean_radius")
	perimeter, okP := raw.Float("mean_perimeter")
	if okR && okP && radius > 0 {
		expected := 2 * math.Pi * radius
		if perimeter < 0.75*expected || perimeter > 1.25*expected {
			res.AddWarning(fmt.Sprintf("mean_perimeter (%s) is inconsistent with mean_radius (%s)",
				domain.FormatNumber(perimeter), domain.FormatNumber(radius)))
		}
	}
}

// Assess implements DomainStrategy
func (s *BreastCancerStrategy) Assess(pred *domain.PredictionResult, _ domain.RawInput) (*domain.RiskAssessment, error) {
	p := classProbability(pred, breastCancerPositiveClass)
	level := probabilityBands.Level(p)

	var category, interpretation string
	var recs []string
	switch {
	case p >= 0.5:
		category = "Malignancy Suspected - Urgent Oncology Referral"
		interpretation = fmt.Sprintf("Tumor appears to be malignant (confidence: %.1f%%). Urgent specialist evaluation recommended.", p*100)
		recs = []string{
			"Urgent referral to breast oncology",
			"Tissue biopsy for histopathological confirmation",
			"Staging imaging as indicated",
			"Multidisciplinary tumor board review",
		}
	case p >= 0.3:
		category = "Indeterminate - Further Imaging Recommended"
		interpretation = fmt.Sprintf("Tumor characteristics are indeterminate (malignancy probability: %.1f%%). Further evaluation recommended.", p*100)
		recs = []string{
			"Diagnostic mammography and breast ultrasound",
			"Consider core needle biopsy",
			"Short-interval follow-up imaging in 3-6 months",
		}
	default:
		category = "Likely Benign - Routine Screening"
		interpretation = fmt.Sprintf("Tumor appears to be benign (confidence: %.1f%%). Continue routine screening.", (1-p)*100)
		recs = []string{
			"Continue routine breast cancer screening",
			"Clinical breast examination at next visit",
			"Report any new or changing findings promptly",
		}
	}

	return &domain.RiskAssessment{
		Domain:          domain.DomainBreastCancer,
		RiskLevel:       level,
		RiskScore:       percent(p),
		RiskCategory:    category,
		Interpretation:  interpretation,
		Recommendations: recs,
	}, nil
}
