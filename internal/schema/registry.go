// Package schema holds the static per-domain feature schemas that drive
// validation, feature derivation and documentation.
package schema

import (
	"bytes"
	"embed"
	"fmt"
	"path"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/medirisk-server/internal/domain"
)

//go:embed schemas/*.yaml
var embeddedSchemas embed.FS

// Kind is the type of a feature value
type Kind string

// Feature kinds
const (
	KindNumeric     Kind = "numeric"
	KindCategorical Kind = "categorical"
	KindOrdinal     Kind = "ordinal"
)

// WarningRule emits a clinical warning when min <= value < max.
// Either bound may be omitted.
type WarningRule struct {
	Min      *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max      *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Message  string   `yaml:"message" json:"message"`
	RiskFlag bool     `yaml:"risk_flag,omitempty" json:"risk_flag,omitempty"`
}

// Matches reports whether v falls in the rule's half-open range
func (w WarningRule) Matches(v float64) bool {
	if w.Min != nil && v < *w.Min {
		return false
	}
	if w.Max != nil && v >= *w.Max {
		return false
	}
	return true
}

// FeatureSpec describes one required raw input field
type FeatureSpec struct {
	Name        string        `yaml:"name" json:"name"`
	Kind        Kind          `yaml:"kind" json:"kind"`
	Min         *float64      `yaml:"min,omitempty" json:"min,omitempty"`
	Max         *float64      `yaml:"max,omitempty" json:"max,omitempty"`
	Values      []float64     `yaml:"values,omitempty" json:"values,omitempty"`
	Unit        string        `yaml:"unit,omitempty" json:"unit,omitempty"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
	Warnings    []WarningRule `yaml:"warnings,omitempty" json:"warnings,omitempty"`
}

// Allows reports whether v is a member of a categorical feature's enum
func (f *FeatureSpec) Allows(v float64) bool {
	for _, allowed := range f.Values {
		if allowed == v {
			return true
		}
	}
	return false
}

// DerivedFeature is an engineered feature computed from raw fields
type DerivedFeature struct {
	Name        string   `yaml:"name" json:"name"`
	Kind        Kind     `yaml:"kind" json:"kind"`
	Rule        string   `yaml:"rule" json:"rule"`
	Inputs      []string `yaml:"inputs" json:"inputs"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// DomainSchema is the immutable schema for one clinical domain.
// Schemas returned by the registry are shared and must not be modified.
type DomainSchema struct {
	Domain            string           `yaml:"domain" json:"domain"`
	DisplayName       string           `yaml:"display_name" json:"display_name"`
	Description       string           `yaml:"description,omitempty" json:"description,omitempty"`
	TargetClasses     []string         `yaml:"target_classes" json:"target_classes"`
	PositiveClass     string           `yaml:"positive_class,omitempty" json:"positive_class,omitempty"`
	ExactFeatureCount bool             `yaml:"exact_feature_count,omitempty" json:"exact_feature_count"`
	Features          []FeatureSpec    `yaml:"features" json:"features"`
	Derived           []DerivedFeature `yaml:"derived,omitempty" json:"derived,omitempty"`

	features map[string]int
	derived  map[string]int
}

// Feature returns the raw feature spec with the given name
func (s *DomainSchema) Feature(name string) (*FeatureSpec, bool) {
	i, ok := s.features[name]
	if !ok {
		return nil, false
	}
	return &s.Features[i], true
}

// DerivedFeature returns the derived feature with the given name
func (s *DomainSchema) DerivedFeature(name string) (*DerivedFeature, bool) {
	i, ok := s.derived[name]
	if !ok {
		return nil, false
	}
	return &s.Derived[i], true
}

// Has reports whether name is a raw or derived feature of the schema
func (s *DomainSchema) Has(name string) bool {
	_, raw := s.features[name]
	_, derived := s.derived[name]
	return raw || derived
}

// IsScaled reports whether a model input is standardized before prediction.
// Only numeric features are scaled; categorical and ordinal values pass through.
func (s *DomainSchema) IsScaled(name string) bool {
	if f, ok := s.Feature(name); ok {
		return f.Kind == KindNumeric
	}
	if d, ok := s.DerivedFeature(name); ok {
		return d.Kind == KindNumeric
	}
	return false
}

// FeatureNames returns raw feature names followed by derived feature names
func (s *DomainSchema) FeatureNames() []string {
	names := make([]string, 0, len(s.Features)+len(s.Derived))
	for _, f := range s.Features {
		names = append(names, f.Name)
	}
	for _, d := range s.Derived {
		names = append(names, d.Name)
	}
	return names
}

// Registry is the static table of domain schemas
type Registry struct {
	schemas map[string]*DomainSchema
	domains []string
}

// NewRegistry loads the built-in schemas for all supported domains
func NewRegistry() (*Registry, error) {
	entries, err := embeddedSchemas.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("failed to list embedded schemas: %w", err)
	}

	schemas := make([]*DomainSchema, 0, len(entries))
	for _, entry := range entries {
		data, err := embeddedSchemas.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", entry.Name(), err)
		}
		s, err := ParseSchema(data)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", entry.Name(), err)
		}
		schemas = append(schemas, s)
	}
	return NewRegistryFromSchemas(schemas...)
}

// NewRegistryFromSchemas builds a registry from already parsed schemas
func NewRegistryFromSchemas(schemas ...*DomainSchema) (*Registry, error) {
	r := &Registry{schemas: make(map[string]*DomainSchema, len(schemas))}
	for _, s := range schemas {
		if s.features == nil {
			if err := s.index(); err != nil {
				return nil, fmt.Errorf("schema %s: %w", s.Domain, err)
			}
		}
		if _, dup := r.schemas[s.Domain]; dup {
			return nil, fmt.Errorf("duplicate schema for domain %s", s.Domain)
		}
		r.schemas[s.Domain] = s
		r.domains = append(r.domains, s.Domain)
	}
	sort.Strings(r.domains)
	return r, nil
}

// ParseSchema decodes and checks a YAML schema document
func ParseSchema(data []byte) (*DomainSchema, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	s := &DomainSchema{}
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	if err := s.index(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DomainSchema) index() error {
	if s.Domain == "" {
		return fmt.Errorf("domain is required")
	}
	if len(s.Features) == 0 {
		return fmt.Errorf("domain %s declares no features", s.Domain)
	}

	s.features = make(map[string]int, len(s.Features))
	for i := range s.Features {
		f := &s.Features[i]
		if f.Name == "" {
			return fmt.Errorf("feature %d has no name", i)
		}
		if _, dup := s.features[f.Name]; dup {
			return fmt.Errorf("duplicate feature %s", f.Name)
		}
		switch f.Kind {
		case KindNumeric:
			if f.Min == nil || f.Max == nil {
				return fmt.Errorf("numeric feature %s requires min and max", f.Name)
			}
			if *f.Min >= *f.Max {
				return fmt.Errorf("feature %s has min %v >= max %v", f.Name, *f.Min, *f.Max)
			}
		case KindCategorical:
			if len(f.Values) == 0 {
				return fmt.Errorf("categorical feature %s requires values", f.Name)
			}
		default:
			return fmt.Errorf("feature %s has unsupported kind %q", f.Name, f.Kind)
		}
		for _, w := range f.Warnings {
			if w.Message == "" {
				return fmt.Errorf("feature %s has a warning rule without message", f.Name)
			}
		}
		s.features[f.Name] = i
	}

	s.derived = make(map[string]int, len(s.Derived))
	for i := range s.Derived {
		d := &s.Derived[i]
		if _, dup := s.features[d.Name]; dup {
			return fmt.Errorf("derived feature %s shadows a raw feature", d.Name)
		}
		if _, dup := s.derived[d.Name]; dup {
			return fmt.Errorf("duplicate derived feature %s", d.Name)
		}
		if d.Kind != KindNumeric && d.Kind != KindOrdinal {
			return fmt.Errorf("derived feature %s has unsupported kind %q", d.Name, d.Kind)
		}
		arity, ok := RuleArity(d.Rule)
		if !ok {
			return fmt.Errorf("derived feature %s uses unknown rule %q", d.Name, d.Rule)
		}
		if len(d.Inputs) != arity {
			return fmt.Errorf("derived feature %s: rule %s takes %d inputs, got %d", d.Name, d.Rule, arity, len(d.Inputs))
		}
		for _, in := range d.Inputs {
			if _, ok := s.features[in]; !ok {
				return fmt.Errorf("derived feature %s depends on unknown feature %s", d.Name, in)
			}
		}
		s.derived[d.Name] = i
	}

	if s.PositiveClass != "" {
		found := false
		for _, c := range s.TargetClasses {
			found = found || c == s.PositiveClass
		}
		if !found {
			return fmt.Errorf("positive class %s is not a target class", s.PositiveClass)
		}
	}
	return nil
}

// Get returns the schema for a domain
func (r *Registry) Get(domainID string) (*DomainSchema, error) {
	s, ok := r.schemas[domainID]
	if !ok {
		return nil, &domain.UnknownDomainError{Domain: domainID}
	}
	return s, nil
}

// Has reports whether a domain is registered
func (r *Registry) Has(domainID string) bool {
	_, ok := r.schemas[domainID]
	return ok
}

// Domains returns the registered domain keys in sorted order
func (r *Registry) Domains() []string {
	out := make([]string, len(r.domains))
	copy(out, r.domains)
	return out
}
