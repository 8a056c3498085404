package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/medirisk-server/internal/domain"
)

// RiskAssessor maps predictions to clinical risk assessments.
// Assessments are pure functions of the prediction and raw input.
type RiskAssessor struct {
	strategies StrategyTable
}

// NewRiskAssessor creates a new risk assessor
func NewRiskAssessor(strategies StrategyTable) *RiskAssessor {
	return &RiskAssessor{strategies: strategies}
}

// Assess interprets a prediction for the domain
func (a *RiskAssessor) Assess(domainID string, pred *domain.PredictionResult, raw domain.RawInput) (*domain.RiskAssessment, error) {
	strategy, err := a.strategies.Get(domainID)
	if err != nil {
		return nil, err
	}
	pred, err = normalizePrediction(domainID, pred)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = domain.RawInput{}
	}
	return strategy.Assess(pred, raw)
}

// normalizePrediction returns a copy of pred whose Label and Confidence are
// derived from its probabilities. Predictions arriving over the API carry
// caller-supplied labels, so a label that disagrees with the most probable
// class is rejected.
func normalizePrediction(domainID string, pred *domain.PredictionResult) (*domain.PredictionResult, error) {
	if pred == nil || len(pred.Probabilities) == 0 {
		return nil, &domain.PreconditionError{Domain: domainID, Reason: "prediction has no probabilities"}
	}

	best := 0
	for i, p := range pred.Probabilities {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 1 {
			return nil, &domain.PreconditionError{Domain: domainID, Reason: fmt.Sprintf("probability %d is not in [0, 1]", i)}
		}
		if p > pred.Probabilities[best] {
			best = i
		}
	}

	out := *pred
	out.Probabilities = append([]float64(nil), pred.Probabilities...)
	out.TargetLabels = append([]string(nil), pred.TargetLabels...)
	out.ClassIndex = best
	out.Confidence = pred.Probabilities[best]

	if len(pred.TargetLabels) == 0 {
		return &out, nil
	}
	if len(pred.TargetLabels) != len(pred.Probabilities) {
		return nil, &domain.PreconditionError{
			Domain: domainID,
			Reason: fmt.Sprintf("%d target labels for %d probabilities", len(pred.TargetLabels), len(pred.Probabilities)),
		}
	}
	if pred.Label != "" {
		// a supplied label may name any class tied for the maximum
		i := indexOfLabel(pred.TargetLabels, pred.Label)
		if i < 0 || pred.Probabilities[i] != out.Confidence {
			return nil, &domain.PreconditionError{
				Domain: domainID,
				Reason: fmt.Sprintf("label %q does not match most probable class %q", pred.Label, pred.TargetLabels[best]),
			}
		}
		best = i
	}
	out.ClassIndex = best
	out.Label = pred.TargetLabels[best]
	return &out, nil
}

func indexOfLabel(labels []string, label string) int {
	for i, l := range labels {
		if strings.EqualFold(l, label) {
			return i
		}
	}
	return -1
}
