package service

import (
	"math"
	"sort"

	"github.com/medirisk-server/internal/domain"
)

// DomainStrategy holds the domain-specific parts of the pipeline.
// Implementations are stateless and safe for concurrent use.
type DomainStrategy interface {
	Domain() string
	// CrossCheck runs multi-field clinical coherence checks after per-field validation
	CrossCheck(raw domain.RawInput, res *domain.ValidationResult)
	// Assess turns a prediction into a clinical risk assessment. pred has a
	// Label and Confidence consistent with its Probabilities.
	Assess(pred *domain.PredictionResult, raw domain.RawInput) (*domain.RiskAssessment, error)
}

// StrategyTable selects a strategy by exact domain id
type StrategyTable map[string]DomainStrategy

// DefaultStrategies returns the strategies for the built-in domains
func DefaultStrategies() StrategyTable {
	return NewStrategyTable(
		&CardiovascularStrategy{},
		&BreastCancerStrategy{},
		&FetalHealthStrategy{},
	)
}

// NewStrategyTable indexes strategies by their domain
func NewStrategyTable(strategies ...DomainStrategy) StrategyTable {
	t := make(StrategyTable, len(strategies))
	for _, s := range strategies {
		t[s.Domain()] = s
	}
	return t
}

// Get returns the strategy for a domain
func (t StrategyTable) Get(domainID string) (DomainStrategy, error) {
	s, ok := t[domainID]
	if !ok {
		return nil, &domain.UnknownDomainError{Domain: domainID}
	}
	return s, nil
}

// Domains lists the domains with a registered strategy
func (t StrategyTable) Domains() []string {
	out := make([]string, 0, len(t))
	for d := range t {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// RiskBand maps probabilities at or above Lower to Level
type RiskBand struct {
	Lower float64
	Level domain.RiskLevel
}

// ThresholdTable is an ascending list of lower-bound inclusive bands
type ThresholdTable []RiskBand

// Level returns the level of the highest band whose lower bound is <= p
func (t ThresholdTable) Level(p float64) domain.RiskLevel {
	level := t[0].Level
	for _, b := range t {
		if p >= b.Lower {
			level = b.Level
		}
	}
	return level
}

// probabilityBands is shared by the binary domains
var probabilityBands = ThresholdTable{
	{Lower: 0, Level: domain.RiskLevelVeryLow},
	{Lower: 0.1, Level: domain.RiskLevelLow},
	{Lower: 0.3, Level: domain.RiskLevelModerate},
	{Lower: 0.5, Level: domain.RiskLevelHigh},
	{Lower: 0.7, Level: domain.RiskLevelVeryHigh},
}

// classProbability returns the probability of label, falling back to the
// second class of a binary model when the label is not present.
func classProbability(pred *domain.PredictionResult, label string) float64 {
	if p, ok := pred.ProbabilityOf(label); ok {
		return p
	}
	if len(pred.Probabilities) == 2 {
		return pred.Probabilities[1]
	}
	return 0
}

func percent(p float64) float64 {
	return math.Round(p*1000) / 10
}
