package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/medirisk-server/internal/domain"
)

// Files making up a per-domain artifact directory
const (
	MetadataFile   = "metadata.json"
	FeaturesFile   = "features.json"
	ScalerFile     = "scaler.json"
	ClassifierFile = "classifier.json"
)

// Scaler holds fitted per-feature standardization parameters aligned to the feature order
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform standardizes the i-th feature; a zero scale is treated as one
func (s *Scaler) Transform(i int, v float64) float64 {
	scale := s.Scale[i]
	if scale == 0 {
		scale = 1
	}
	return (v - s.Mean[i]) / scale
}

func (s *Scaler) check(n int) error {
	if len(s.Mean) != n || len(s.Scale) != n {
		return fmt.Errorf("scaler has %d means and %d scales, expected %d", len(s.Mean), len(s.Scale), n)
	}
	for i := 0; i < n; i++ {
		if math.IsNaN(s.Mean[i]) || math.IsInf(s.Mean[i], 0) || math.IsNaN(s.Scale[i]) || math.IsInf(s.Scale[i], 0) {
			return fmt.Errorf("scaler entry %d is not finite", i)
		}
	}
	return nil
}

// Artifact is the persisted bundle for one domain
type Artifact struct {
	Metadata   domain.ModelMetadata
	Features   []string
	Scaler     Scaler
	Classifier ClassifierSpec
}

// ReadArtifact loads an artifact directory
func ReadArtifact(dir string) (*Artifact, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("artifact directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("artifact path %s is not a directory", dir)
	}

	a := &Artifact{}
	if err := readJSON(filepath.Join(dir, MetadataFile), &a.Metadata); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, FeaturesFile), &a.Features); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, ScalerFile), &a.Scaler); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, ClassifierFile), &a.Classifier); err != nil {
		return nil, err
	}
	return a, nil
}

// WriteArtifact writes an artifact directory, creating it if needed
func WriteArtifact(dir string, a *Artifact) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	files := []struct {
		name string
		v    interface{}
	}{
		{MetadataFile, a.Metadata},
		{FeaturesFile, a.Features},
		{ScalerFile, a.Scaler},
		{ClassifierFile, a.Classifier},
	}
	for _, f := range files {
		data, err := json.MarshalIndent(f.v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", f.name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, f.name), append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("corrupt %s: %w", filepath.Base(path), err)
	}
	return nil
}
