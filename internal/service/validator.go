package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/medirisk-server/internal/domain"
	"github.com/medirisk-server/internal/schema"
)

// nearBoundFraction is the share of a feature's range treated as "near" a bound
const nearBoundFraction = 0.05

// Validator checks raw clinical input against a domain schema
type Validator struct {
	schemas    *schema.Registry
	strategies StrategyTable
	logger     *logrus.Logger
}

// NewValidator creates a new validator
func NewValidator(schemas *schema.Registry, strategies StrategyTable, logger *logrus.Logger) *Validator {
	return &Validator{
		schemas:    schemas,
		strategies: strategies,
		logger:     logger,
	}
}

// Validate checks every schema feature and runs the domain's cross-feature checks.
// The only error returned is *domain.UnknownDomainError; field problems are
// reported in the result.
func (v *Validator) Validate(domainID string, raw domain.RawInput) (*domain.ValidationResult, error) {
	s, err := v.schemas.Get(domainID)
	if err != nil {
		return nil, err
	}

	res := domain.NewValidationResult(domainID)

	if s.ExactFeatureCount && len(raw) != len(s.Features) {
		res.AddError("features",
			fmt.Sprintf("expected exactly %d features, got %d", len(s.Features), len(raw)), len(raw))
	}

	for i := range s.Features {
		f := &s.Features[i]
		value, ok := raw[f.Name]
		if !ok || value == nil {
			res.AddError(f.Name, "missing required feature", nil)
			continue
		}
		checkFeature(f, value, res)
	}

	for _, name := range unknownFields(s, raw) {
		if s.ExactFeatureCount {
			res.AddError(name, "unexpected feature", raw[name])
		} else {
			res.AddWarning(fmt.Sprintf("unexpected feature %s ignored", name))
		}
	}

	if strategy, ok := v.strategies[domainID]; ok {
		strategy.CrossCheck(raw, res)
	}

	v.logger.WithFields(logrus.Fields{
		"domain":     domainID,
		"valid":      res.Valid,
		"errors":     len(res.Errors),
		"warnings":   len(res.Warnings),
		"risk_flags": len(res.RiskFlags),
	}).Debug("Input validated")

	return res, nil
}

// CheckSupplied validates only the schema features present in raw. It backs
// assessment of partial records, where absent features simply contribute no
// risk factors but a malformed value must not be read as zero.
func (v *Validator) CheckSupplied(domainID string, raw domain.RawInput) (*domain.ValidationResult, error) {
	s, err := v.schemas.Get(domainID)
	if err != nil {
		return nil, err
	}

	res := domain.NewValidationResult(domainID)
	for i := range s.Features {
		f := &s.Features[i]
		value, ok := raw[f.Name]
		if !ok {
			continue
		}
		if value == nil {
			res.AddError(f.Name, "must be a numeric value", nil)
			continue
		}
		checkFeature(f, value, res)
	}
	return res, nil
}

func checkFeature(f *schema.FeatureSpec, value interface{}, res *domain.ValidationResult) {
	n, ok := domain.NumericValue(value)
	if !ok {
		res.AddError(f.Name, "must be a numeric value", value)
		return
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		res.AddError(f.Name, "must be a finite number", nil)
		return
	}

	switch f.Kind {
	case schema.KindCategorical, schema.KindOrdinal:
		if len(f.Values) > 0 && !f.Allows(n) {
			res.AddError(f.Name, fmt.Sprintf("value %s is not one of %s", domain.FormatNumber(n), formatValues(f.Values)), n)
			return
		}
	default:
		if !checkBounds(f, n, res) {
			return
		}
	}

	for _, rule := range f.Warnings {
		if !rule.Matches(n) {
			continue
		}
		res.AddWarning(rule.Message)
		if rule.RiskFlag {
			res.AddRiskFlag(fmt.Sprintf("High risk: %s = %s", f.Name, domain.FormatNumber(n)))
		}
	}
}

// checkBounds reports whether n is within the feature's bounds
func checkBounds(f *schema.FeatureSpec, n float64, res *domain.ValidationResult) bool {
	if f.Min != nil && n < *f.Min {
		res.AddError(f.Name, fmt.Sprintf("value %s is below minimum %s", domain.FormatNumber(n), domain.FormatNumber(*f.Min)), n)
		return false
	}
	if f.Max != nil && n > *f.Max {
		res.AddError(f.Name, fmt.Sprintf("value %s is above maximum %s", domain.FormatNumber(n), domain.FormatNumber(*f.Max)), n)
		return false
	}

	if f.Min != nil && f.Max != nil {
		margin := (*f.Max - *f.Min) * nearBoundFraction
		if n < *f.Min+margin {
			res.AddWarning(fmt.Sprintf("%s is near minimum value", f.Name))
		} else if n > *f.Max-margin {
			res.AddWarning(fmt.Sprintf("%s is near maximum value", f.Name))
		}
	}
	return true
}

func unknownFields(s *schema.DomainSchema, raw domain.RawInput) []string {
	var out []string
	for name := range raw {
		if _, ok := s.Feature(name); !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func formatValues(values []float64) string {
	out := "["
	for i, v := range values {
		if i > 0 {
			out += ", "
		}
		out += domain.FormatNumber(v)
	}
	return out + "]"
}
