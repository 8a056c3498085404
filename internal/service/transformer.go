package service

import (
	"fmt"

	"github.com/medirisk-server/internal/domain"
	"github.com/medirisk-server/internal/model"
	"github.com/medirisk-server/internal/schema"
)

// HandleSource provides the currently published model for a domain
type HandleSource interface {
	Handle(domainID string) (*model.Handle, error)
}

// Transformer turns validated raw input into the model's feature vector
type Transformer struct {
	schemas *schema.Registry
	models  HandleSource
}

// NewTransformer creates a new transformer
func NewTransformer(schemas *schema.Registry, models HandleSource) *Transformer {
	return &Transformer{schemas: schemas, models: models}
}

// Transform builds the feature vector for the domain's current model.
// vr must be a valid result for the same domain.
func (t *Transformer) Transform(domainID string, raw domain.RawInput, vr *domain.ValidationResult) (*domain.FeatureVector, error) {
	if err := checkPrecondition(domainID, vr); err != nil {
		return nil, err
	}
	h, err := t.models.Handle(domainID)
	if err != nil {
		return nil, err
	}
	return t.TransformWith(h, raw, vr)
}

// TransformWith builds the feature vector for a specific model handle
func (t *Transformer) TransformWith(h *model.Handle, raw domain.RawInput, vr *domain.ValidationResult) (*domain.FeatureVector, error) {
	if err := checkPrecondition(h.Domain, vr); err != nil {
		return nil, err
	}
	s, err := t.schemas.Get(h.Domain)
	if err != nil {
		return nil, err
	}

	values := make(map[string]float64, len(s.Features)+len(s.Derived))
	for _, f := range s.Features {
		if v, ok := raw.Float(f.Name); ok {
			values[f.Name] = v
		}
	}

	for _, d := range s.Derived {
		args := make([]float64, len(d.Inputs))
		for i, in := range d.Inputs {
			v, ok := values[in]
			if !ok {
				return nil, &domain.MissingFeatureError{Domain: h.Domain, Feature: d.Name,
					Reason: fmt.Sprintf("input %s is not available", in)}
			}
			args[i] = v
		}
		v, err := schema.Derive(d.Rule, args)
		if err != nil {
			return nil, &domain.MissingFeatureError{Domain: h.Domain, Feature: d.Name, Reason: err.Error()}
		}
		values[d.Name] = v
	}

	vec := &domain.FeatureVector{
		Domain:       h.Domain,
		FeatureOrder: h.FeatureOrder,
		Values:       make([]float64, len(h.FeatureOrder)),
	}
	for i, name := range h.FeatureOrder {
		v, ok := values[name]
		if !ok {
			return nil, &domain.MissingFeatureError{Domain: h.Domain, Feature: name, Reason: "not present in input"}
		}
		vec.Values[i] = h.Scale(i, v)
	}
	return vec, nil
}

func checkPrecondition(domainID string, vr *domain.ValidationResult) error {
	switch {
	case vr == nil:
		return &domain.PreconditionError{Domain: domainID, Reason: "input has not been validated"}
	case vr.Domain != domainID:
		return &domain.PreconditionError{Domain: domainID, Reason: fmt.Sprintf("validation result is for domain %s", vr.Domain)}
	case !vr.Valid:
		return &domain.PreconditionError{Domain: domainID, Reason: "input failed validation"}
	}
	return nil
}
