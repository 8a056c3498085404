package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medirisk-server/internal/domain"
	"github.com/medirisk-server/internal/metrics"
	"github.com/medirisk-server/internal/model"
)

func newTestService(t *testing.T, loaded bool) (*RiskService, *memorySink) {
	t.Helper()
	schemas := testSchemas(t)
	var models *model.Registry
	if loaded {
		models = loadedModels(t, schemas)
	} else {
		models = model.NewRegistry(schemas, testLogger(), nil)
	}
	sink := &memorySink{}
	svc := NewRiskService(schemas, models, stubEnhancer{}, sink, metrics.New(prometheus.NewRegistry()), testLogger())
	return svc, sink
}

func TestRiskService_PredictAllDomains(t *testing.T) {
	svc, sink := newTestService(t, true)
	ctx := domain.WithRequestID(context.Background(), "req-1")

	for _, d := range []string{domain.DomainCardiovascular, domain.DomainBreastCancer, domain.DomainFetalHealth} {
		t.Run(d, func(t *testing.T) {
			outcome, err := svc.Predict(ctx, d, inputFor(d))
			require.NoError(t, err)
			assert.Equal(t, "req-1", outcome.RequestID)
			assert.True(t, outcome.Validation.Valid)
			require.NotNil(t, outcome.Prediction)
			require.NotNil(t, outcome.Assessment)
			assert.Equal(t, d, outcome.Assessment.Domain)
			assert.Equal(t, "demo-1", outcome.Prediction.ModelVersion)
			assert.Contains(t, outcome.Prediction.TargetLabels, outcome.Prediction.Label)
		})
	}

	records := sink.all()
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, "req-1", rec.RequestID)
		assert.True(t, rec.Valid)
		assert.Empty(t, rec.Error)
		assert.Equal(t, "demo-1", rec.ModelVersion)
	}
}

func TestRiskService_PredictInvalidInput(t *testing.T) {
	svc, sink := newTestService(t, true)

	raw := cardioInput()
	raw["age"] = 150.0
	outcome, err := svc.Predict(context.Background(), domain.DomainCardiovascular, raw)

	var invalid *domain.InvalidInputError
	require.ErrorAs(t, err, &invalid)
	assert.Same(t, outcome.Validation, invalid.Result)
	assert.False(t, outcome.Validation.Valid)
	assert.Nil(t, outcome.Prediction)
	assert.Nil(t, outcome.Assessment)

	records := sink.all()
	require.Len(t, records, 1)
	assert.False(t, records[0].Valid)
	assert.NotEmpty(t, records[0].Error)
}

func TestRiskService_PredictUnavailableDomain(t *testing.T) {
	svc, _ := newTestService(t, false)

	outcome, err := svc.Predict(context.Background(), domain.DomainFetalHealth, fetalInput())
	var loadErr *domain.ModelLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.ErrorIs(t, err, domain.ErrModelNotLoaded)
	require.NotNil(t, outcome)
	assert.True(t, outcome.Validation.Valid)
}

func TestRiskService_PredictUnknownDomain(t *testing.T) {
	svc, sink := newTestService(t, true)

	outcome, err := svc.Predict(context.Background(), "dermatology", domain.RawInput{})
	var unknown *domain.UnknownDomainError
	assert.ErrorAs(t, err, &unknown)
	assert.Nil(t, outcome)
	assert.Empty(t, sink.all())
}

func TestRiskService_PredictBatch(t *testing.T) {
	svc, sink := newTestService(t, true)

	bad := cardioInput()
	delete(bad, "age")
	records := []domain.RawInput{cardioInput(), bad, cardioInput()}

	items, err := svc.PredictBatch(context.Background(), domain.DomainCardiovascular, records)
	require.NoError(t, err)
	require.Len(t, items, 3)

	for i, item := range items {
		assert.Equal(t, i, item.Index)
		require.NotNil(t, item.Outcome)
	}
	assert.Empty(t, items[0].Error)
	assert.Contains(t, items[1].Error, "age: missing required feature")
	assert.Empty(t, items[2].Error)
	assert.Len(t, sink.all(), 3)

	svc.SetBatchLimits(2, 0)
	_, err = svc.PredictBatch(context.Background(), domain.DomainCardiovascular, records)
	var tooLarge *domain.BatchTooLargeError
	assert.ErrorAs(t, err, &tooLarge)

	_, err = svc.PredictBatch(context.Background(), "dermatology", nil)
	var unknown *domain.UnknownDomainError
	assert.ErrorAs(t, err, &unknown)
}

func TestRiskService_PredictBatchCancelled(t *testing.T) {
	svc, _ := newTestService(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.PredictBatch(ctx, domain.DomainCardiovascular, []domain.RawInput{cardioInput()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRiskService_AssessAndEnhance(t *testing.T) {
	svc, _ := newTestService(t, true)

	assessment, err := svc.AssessRisk(domain.DomainCardiovascular, cardioPrediction(0.82), cardioInput())
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLevelVeryHigh, assessment.RiskLevel)

	res := svc.EnhanceReport(context.Background(), &domain.EnhancementRequest{
		Domain:     domain.DomainCardiovascular,
		RawInput:   cardioInput(),
		Assessment: assessment,
	})
	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.Equal(t, "report for cardiovascular", res.ReportText)
}

func TestRiskService_AssessRiskChecksSuppliedFeatures(t *testing.T) {
	svc, _ := newTestService(t, true)

	partial := domain.RawInput{"age": 70.0, "exercise_angina": 1.0}
	assessment, err := svc.AssessRisk(domain.DomainCardiovascular, cardioPrediction(0.82), partial)
	require.NoError(t, err)
	assert.Contains(t, assessment.RiskFactors.Major, "Exercise-induced angina")

	tests := []struct {
		name  string
		raw   domain.RawInput
		field string
	}{
		{"non numeric", domain.RawInput{"age": "seventy"}, "age"},
		{"out of range", domain.RawInput{"resting_blood_pressure": 400.0}, "resting_blood_pressure"},
		{"not in enum", domain.RawInput{"exercise_angina": 3.0}, "exercise_angina"},
		{"null value", domain.RawInput{"serum_cholesterol": nil}, "serum_cholesterol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AssessRisk(domain.DomainCardiovascular, cardioPrediction(0.82), tt.raw)
			var invalid *domain.InvalidInputError
			require.ErrorAs(t, err, &invalid)
			require.Len(t, invalid.Result.Errors, 1)
			assert.Equal(t, tt.field, invalid.Result.Errors[0].Field)
		})
	}
}

func TestRiskService_ReloadModel(t *testing.T) {
	svc, _ := newTestService(t, false)

	dir := t.TempDir()
	require.NoError(t, model.WriteDemoArtifacts(dir, svc.Schemas()))

	st, err := svc.ReloadModel(context.Background(), domain.DomainBreastCancer, filepath.Join(dir, domain.DomainBreastCancer))
	require.NoError(t, err)
	assert.True(t, st.Available)

	_, err = svc.Predict(context.Background(), domain.DomainBreastCancer, breastInput())
	assert.NoError(t, err)

	_, err = svc.ReloadModel(context.Background(), "dermatology", dir)
	var unknown *domain.UnknownDomainError
	assert.ErrorAs(t, err, &unknown)

	statuses := svc.DomainStatuses()
	assert.Len(t, statuses, 3)
}
