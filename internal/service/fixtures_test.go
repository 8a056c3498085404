package service

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/medirisk-server/internal/domain"
	"github.com/medirisk-server/internal/metrics"
	"github.com/medirisk-server/internal/model"
	"github.com/medirisk-server/internal/schema"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testSchemas(t *testing.T) *schema.Registry {
	t.Helper()
	schemas, err := schema.NewRegistry()
	require.NoError(t, err)
	return schemas
}

// loadedModels returns a model registry with demo artifacts for every domain
func loadedModels(t *testing.T, schemas *schema.Registry) *model.Registry {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, model.WriteDemoArtifacts(root, schemas))
	reg := model.NewRegistry(schemas, testLogger(), metrics.New(prometheus.NewRegistry()))
	require.NoError(t, reg.LoadAll(context.Background(), root, nil, 0))
	return reg
}

func cardioInput() domain.RawInput {
	return domain.RawInput{
		"age":                    54.0,
		"gender":                 1.0,
		"chest_pain_type":        0.0,
		"resting_blood_pressure": 130.0,
		"serum_cholesterol":      246.0,
		"fasting_blood_sugar":    0.0,
		"resting_ecg":            1.0,
		"max_heart_rate":         150.0,
		"exercise_angina":        0.0,
		"oldpeak":                1.0,
		"slope":                  1.0,
		"num_major_vessels":      0.0,
	}
}

func breastInput() domain.RawInput {
	return domain.RawInput{
		"mean_radius":             13.54,
		"mean_texture":            14.36,
		"mean_perimeter":          87.46,
		"mean_area":               566.3,
		"mean_smoothness":         0.09779,
		"mean_compactness":        0.08129,
		"mean_concavity":          0.06664,
		"mean_concave_points":     0.04781,
		"mean_symmetry":           0.1885,
		"mean_fractal_dimension":  0.05766,
		"radius_error":            0.2699,
		"texture_error":           0.7886,
		"perimeter_error":         2.058,
		"area_error":              23.56,
		"smoothness_error":        0.008462,
		"compactness_error":       0.0146,
		"concavity_error":         0.02387,
		"concave_points_error":    0.01315,
		"symmetry_error":          0.0198,
		"fractal_dimension_error": 0.0023,
		"worst_radius":            15.11,
		"worst_texture":           19.26,
		"worst_perimeter":         99.7,
		"worst_area":              711.2,
		"worst_smoothness":        0.144,
		"worst_compactness":       0.1773,
		"worst_concavity":         0.239,
		"worst_concave_points":    0.1288,
		"worst_symmetry":          0.2977,
		"worst_fractal_dimension": 0.07259,
	}
}

func fetalInput() domain.RawInput {
	return domain.RawInput{
		"baseline_value":                                         132.0,
		"accelerations":                                          0.006,
		"fetal_movement":                                         0.0,
		"uterine_contractions":                                   0.006,
		"light_decelerations":                                    0.003,
		"severe_decelerations":                                   0.0,
		"prolongued_decelerations":                               0.0,
		"abnormal_short_term_variability":                        17.0,
		"mean_value_of_short_term_variability":                   2.1,
		"percentage_of_time_with_abnormal_long_term_variability": 0.0,
		"mean_value_of_long_term_variability":                    10.4,
		"histogram_width":                                        130.0,
		"histogram_min":                                          68.0,
		"histogram_max":                                          198.0,
		"histogram_number_of_peaks":                              5.0,
		"histogram_number_of_zeroes":                             1.0,
		"histogram_mode":                                         141.0,
		"histogram_mean":                                         136.0,
		"histogram_median":                                       140.0,
		"histogram_variance":                                     12.0,
		"histogram_tendency":                                     0.0,
	}
}

func inputFor(domainID string) domain.RawInput {
	switch domainID {
	case domain.DomainCardiovascular:
		return cardioInput()
	case domain.DomainBreastCancer:
		return breastInput()
	default:
		return fetalInput()
	}
}

// memorySink collects prediction records in memory
type memorySink struct {
	mu      sync.Mutex
	records []*domain.PredictionRecord
}

func (s *memorySink) Record(_ context.Context, rec *domain.PredictionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) all() []*domain.PredictionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.PredictionRecord(nil), s.records...)
}

// stubEnhancer returns a fixed report
type stubEnhancer struct{}

func (stubEnhancer) Enhance(_ context.Context, req *domain.EnhancementRequest) *domain.EnhancementResult {
	return &domain.EnhancementResult{
		Status:     domain.StatusSuccess,
		ReportText: "report for " + req.Domain,
		Metadata:   domain.EnhancementMetadata{Domain: req.Domain, Provider: "stub"},
	}
}
