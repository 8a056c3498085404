package model

import (
	"fmt"
	"slices"
	"time"

	"github.com/medirisk-server/internal/domain"
	"github.com/medirisk-server/internal/schema"
)

// Handle is a loaded, immutable model for one domain
type Handle struct {
	Domain       string
	FeatureOrder []string
	TargetLabels []string
	Metadata     domain.ModelMetadata
	ArtifactPath string
	LoadedAt     time.Time

	classifier Classifier
	scaler     Scaler
	schema     *schema.DomainSchema
}

// NewHandle checks an artifact against its domain schema and builds a handle
func NewHandle(s *schema.DomainSchema, artifactPath string, a *Artifact) (*Handle, error) {
	n := len(a.Features)
	if n == 0 {
		return nil, fmt.Errorf("artifact declares no features")
	}
	if a.Metadata.FeatureCount != n {
		return nil, fmt.Errorf("metadata feature_count %d does not match %d features", a.Metadata.FeatureCount, n)
	}

	seen := make(map[string]bool, n)
	for _, name := range a.Features {
		if seen[name] {
			return nil, fmt.Errorf("feature %s listed twice", name)
		}
		seen[name] = true
		if !s.Has(name) {
			return nil, fmt.Errorf("feature %s is not defined by the %s schema", name, s.Domain)
		}
	}

	if len(a.Metadata.TargetClasses) < 2 {
		return nil, fmt.Errorf("metadata lists %d target classes, need at least 2", len(a.Metadata.TargetClasses))
	}
	if len(s.TargetClasses) > 0 && !slices.Equal(s.TargetClasses, a.Metadata.TargetClasses) {
		return nil, fmt.Errorf("target classes %v do not match schema %v", a.Metadata.TargetClasses, s.TargetClasses)
	}

	if err := a.Scaler.check(n); err != nil {
		return nil, err
	}

	clf, err := NewClassifier(a.Classifier, n)
	if err != nil {
		return nil, err
	}
	if clf.NumClasses() != len(a.Metadata.TargetClasses) {
		return nil, fmt.Errorf("classifier produces %d classes but metadata lists %d", clf.NumClasses(), len(a.Metadata.TargetClasses))
	}

	return &Handle{
		Domain:       s.Domain,
		FeatureOrder: slices.Clone(a.Features),
		TargetLabels: slices.Clone(a.Metadata.TargetClasses),
		Metadata:     a.Metadata,
		ArtifactPath: artifactPath,
		LoadedAt:     time.Now().UTC(),
		classifier:   clf,
		scaler:       a.Scaler,
		schema:       s,
	}, nil
}

// Scale standardizes the value at position i when the feature is numeric
func (h *Handle) Scale(i int, v float64) float64 {
	if !h.schema.IsScaled(h.FeatureOrder[i]) {
		return v
	}
	return h.scaler.Transform(i, v)
}

// Version identifies the loaded artifact
func (h *Handle) Version() string {
	if h.Metadata.Version != "" {
		return h.Metadata.Version
	}
	return h.LoadedAt.Format(time.RFC3339)
}

// Predict runs the classifier on a vector built for this handle
func (h *Handle) Predict(vec *domain.FeatureVector) (*domain.PredictionResult, error) {
	if vec == nil {
		return nil, &domain.ShapeMismatchError{Domain: h.Domain, Expected: len(h.FeatureOrder)}
	}
	if vec.Len() != len(h.FeatureOrder) {
		return nil, &domain.ShapeMismatchError{Domain: h.Domain, Expected: len(h.FeatureOrder), Got: vec.Len()}
	}
	if vec.FeatureOrder != nil && !slices.Equal(vec.FeatureOrder, h.FeatureOrder) {
		return nil, &domain.ShapeMismatchError{
			Domain:   h.Domain,
			Expected: len(h.FeatureOrder),
			Got:      vec.Len(),
			Detail:   "vector feature order does not match the loaded model",
		}
	}

	probs := h.classifier.PredictProba(vec.Values)
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}

	return &domain.PredictionResult{
		Domain:        h.Domain,
		Label:         h.TargetLabels[best],
		ClassIndex:    best,
		TargetLabels:  slices.Clone(h.TargetLabels),
		Probabilities: probs,
		Confidence:    probs[best],
		ModelVersion:  h.Version(),
	}, nil
}
