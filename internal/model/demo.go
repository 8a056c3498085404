package model

import (
	"fmt"
	"path/filepath"

	"github.com/medirisk-server/internal/domain"
	"github.com/medirisk-server/internal/schema"
)

// demoWeights are hand-set logistic weights per class row, keyed by feature.
// Features without a weight contribute nothing.
var demoWeights = map[string]struct {
	rows       []map[string]float64
	intercepts []float64
	accuracy   float64
}{
	domain.DomainCardiovascular: {
		// probability of "Cardiovascular Disease"
		rows: []map[string]float64{{
			"age":                    0.8,
			"gender":                 0.5,
			"chest_pain_type":        0.3,
			"resting_blood_pressure": 0.6,
			"serum_cholesterol":      0.5,
			"fasting_blood_sugar":    0.2,
			"resting_ecg":            0.2,
			"max_heart_rate":         -0.7,
			"exercise_angina":        0.9,
			"oldpeak":                0.7,
			"slope":                  0.3,
			"num_major_vessels":      0.6,
			"age_risk_category":      0.2,
			"multiple_risk_score":    0.3,
		}},
		intercepts: []float64{-2.0},
		accuracy:   0.85,
	},
	domain.DomainBreastCancer: {
		// probability of "Benign"; larger and more irregular nuclei push toward malignant
		rows: []map[string]float64{{
			"mean_radius":          -0.8,
			"mean_perimeter":       -0.8,
			"mean_area":            -0.8,
			"mean_concavity":       -1.0,
			"mean_concave_points":  -1.2,
			"worst_radius":         -1.0,
			"worst_perimeter":      -1.0,
			"worst_area":           -1.0,
			"worst_texture":        -0.5,
			"worst_concavity":      -0.9,
			"worst_concave_points": -1.2,
			"worst_symmetry":       -0.4,
		}},
		intercepts: []float64{0.5},
		accuracy:   0.95,
	},
	domain.DomainFetalHealth: {
		rows: []map[string]float64{
			{ // Normal
				"accelerations":                                          1.0,
				"abnormal_short_term_variability":                        -0.8,
				"percentage_of_time_with_abnormal_long_term_variability": -0.6,
				"prolongued_decelerations":                               -1.0,
			},
			{ // Suspect
				"abnormal_short_term_variability":                        0.4,
				"percentage_of_time_with_abnormal_long_term_variability": 0.5,
			},
			{ // Pathological
				"severe_decelerations":            1.0,
				"prolongued_decelerations":        1.2,
				"abnormal_short_term_variability": 0.6,
				"histogram_variance":              0.3,
			},
		},
		intercepts: []float64{1.5, 0, -0.5},
		accuracy:   0.90,
	},
}

// DemoArtifact builds a deterministic logistic-regression artifact for a
// schema. Numeric inputs are centred on the midpoint of their bounds.
func DemoArtifact(s *schema.DomainSchema) (*Artifact, error) {
	weights, ok := demoWeights[s.Domain]
	if !ok {
		return nil, &domain.UnknownDomainError{Domain: s.Domain}
	}

	features := s.FeatureNames()
	scaler := Scaler{Mean: make([]float64, len(features)), Scale: make([]float64, len(features))}
	for i, name := range features {
		scaler.Mean[i], scaler.Scale[i] = 0, 1
		if f, ok := s.Feature(name); ok && f.Kind == schema.KindNumeric {
			scaler.Mean[i] = (*f.Min + *f.Max) / 2
			scaler.Scale[i] = (*f.Max - *f.Min) / 4
		}
	}

	coef := make([][]float64, len(weights.rows))
	for k, row := range weights.rows {
		coef[k] = make([]float64, len(features))
		for i, name := range features {
			coef[k][i] = row[name]
		}
	}

	return &Artifact{
		Metadata: domain.ModelMetadata{
			ModelType:     TypeLogisticRegression,
			TargetClasses: s.TargetClasses,
			Accuracy:      weights.accuracy,
			FeatureCount:  len(features),
			Version:       "demo-1",
			TrainedAt:     "2024-01-01T00:00:00Z",
		},
		Features: features,
		Scaler:   scaler,
		Classifier: ClassifierSpec{
			Type:         TypeLogisticRegression,
			Coefficients: coef,
			Intercepts:   weights.intercepts,
		},
	}, nil
}

// WriteDemoArtifacts writes demo artifacts for every registered domain under root
func WriteDemoArtifacts(root string, schemas *schema.Registry) error {
	for _, d := range schemas.Domains() {
		s, err := schemas.Get(d)
		if err != nil {
			return err
		}
		a, err := DemoArtifact(s)
		if err != nil {
			return fmt.Errorf("demo artifact for %s: %w", d, err)
		}
		if err := WriteArtifact(filepath.Join(root, d), a); err != nil {
			return fmt.Errorf("demo artifact for %s: %w", d, err)
		}
	}
	return nil
}
