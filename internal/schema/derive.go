package schema

import (
	"errors"
	"fmt"
	"math"
)

// DeriveFunc computes an engineered feature from its ordered inputs
type DeriveFunc func(args []float64) (float64, error)

type derivationRule struct {
	arity int
	fn    DeriveFunc
}

// ErrUnknownRule is returned for derivation rules that are not registered
var ErrUnknownRule = errors.New("unknown derivation rule")

var derivationRules = map[string]derivationRule{
	// weight (kg), height (cm)
	"bmi": {arity: 2, fn: func(a []float64) (float64, error) {
		heightM := a[1] / 100
		if heightM <= 0 {
			return 0, fmt.Errorf("height must be positive, got %v", a[1])
		}
		return a[0] / (heightM * heightM), nil
	}},
	// systolic, diastolic
	"pulse_pressure": {arity: 2, fn: func(a []float64) (float64, error) {
		return a[0] - a[1], nil
	}},
	// systolic, diastolic
	"mean_arterial_pressure": {arity: 2, fn: func(a []float64) (float64, error) {
		return a[1] + (a[0]-a[1])/3, nil
	}},
	"age_risk_category": {arity: 1, fn: func(a []float64) (float64, error) {
		switch age := a[0]; {
		case age < 35:
			return 0, nil
		case age < 50:
			return 1, nil
		case age < 65:
			return 2, nil
		default:
			return 3, nil
		}
	}},
	// age, gender, resting blood pressure, cholesterol, exercise angina
	"multiple_risk_score": {arity: 5, fn: func(a []float64) (float64, error) {
		return float64(CardiovascularRiskFactorCount(a[0], a[1], a[2], a[3], a[4])), nil
	}},
	// age, gender
	"age_gender_risk": {arity: 2, fn: func(a []float64) (float64, error) {
		age, male := a[0], a[1] == 1
		if (male && age > 45) || (!male && age > 55) {
			return age * 1.2, nil
		}
		return age, nil
	}},
}

// RuleArity returns the number of inputs a derivation rule takes
func RuleArity(rule string) (int, bool) {
	r, ok := derivationRules[rule]
	return r.arity, ok
}

// Derive evaluates a derivation rule. Non-finite results are errors.
func Derive(rule string, args []float64) (float64, error) {
	r, ok := derivationRules[rule]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownRule, rule)
	}
	if len(args) != r.arity {
		return 0, fmt.Errorf("rule %s takes %d inputs, got %d", rule, r.arity, len(args))
	}
	v, err := r.fn(args)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("rule %s produced a non-finite value", rule)
	}
	return v, nil
}

// CardiovascularRiskFactorCount counts the major cardiovascular risk factors:
// age over 65, male over 45, blood pressure over 140, cholesterol over 240
// and exercise induced angina.
func CardiovascularRiskFactorCount(age, gender, restingBP, cholesterol, exerciseAngina float64) int {
	count := 0
	if age > 65 {
		count++
	}
	if gender == 1 && age > 45 {
		count++
	}
	if restingBP > 140 {
		count++
	}
	if cholesterol > 240 {
		count++
	}
	if exerciseAngina == 1 {
		count++
	}
	return count
}
