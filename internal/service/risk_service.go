// Package service implements the clinical prediction pipeline: validation,
// feature transformation, prediction, risk assessment and report enhancement.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/medirisk-server/internal/domain"
	"github.com/medirisk-server/internal/metrics"
	"github.com/medirisk-server/internal/model"
	"github.com/medirisk-server/internal/schema"
)

// Prediction outcomes recorded in metrics
const (
	OutcomeSuccess     = "success"
	OutcomeInvalid     = "invalid_input"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// RiskService is the single entry point used by the HTTP API and the CLI
type RiskService struct {
	schemas     *schema.Registry
	models      *model.Registry
	validator   *Validator
	transformer *Transformer
	assessor    *RiskAssessor
	enhancer    domain.ReportEnhancer
	records     domain.RecordSink
	metrics     *metrics.Metrics
	logger      *logrus.Logger

	maxBatchSize int
	batchWorkers int
}

// NewRiskService wires the pipeline stages around a model registry.
// records may be nil.
func NewRiskService(
	schemas *schema.Registry,
	models *model.Registry,
	enhancer domain.ReportEnhancer,
	records domain.RecordSink,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *RiskService {
	strategies := DefaultStrategies()
	return &RiskService{
		schemas:      schemas,
		models:       models,
		validator:    NewValidator(schemas, strategies, logger),
		transformer:  NewTransformer(schemas, models),
		assessor:     NewRiskAssessor(strategies),
		enhancer:     enhancer,
		records:      records,
		metrics:      m,
		logger:       logger,
		maxBatchSize: 100,
		batchWorkers: 4,
	}
}

// SetBatchLimits configures batch prediction; non-positive values keep the defaults
func (s *RiskService) SetBatchLimits(maxSize, workers int) {
	if maxSize > 0 {
		s.maxBatchSize = maxSize
	}
	if workers > 0 {
		s.batchWorkers = workers
	}
}

// Schemas returns the schema registry
func (s *RiskService) Schemas() *schema.Registry {
	return s.schemas
}

// Models returns the model registry
func (s *RiskService) Models() *model.Registry {
	return s.models
}

// ValidateInput checks raw input against the domain schema
func (s *RiskService) ValidateInput(domainID string, raw domain.RawInput) (*domain.ValidationResult, error) {
	res, err := s.validator.Validate(domainID, raw)
	if err != nil {
		return nil, err
	}
	s.metrics.AddValidationFindings(domainID, len(res.Errors), len(res.Warnings), len(res.RiskFlags))
	return res, nil
}

// Predict runs validation, transformation, prediction and assessment.
// Invalid input returns the outcome with its validation result together
// with a *domain.InvalidInputError.
func (s *RiskService) Predict(ctx context.Context, domainID string, raw domain.RawInput) (*domain.PredictionOutcome, error) {
	start := time.Now()
	requestID := domain.RequestIDFrom(ctx)
	logger := s.logger.WithFields(logrus.Fields{
		"domain":         domainID,
		"correlation_id": requestID,
	})

	vr, err := s.ValidateInput(domainID, raw)
	if err != nil {
		s.metrics.ObservePrediction(domainID, OutcomeError, start)
		return nil, err
	}
	outcome := &domain.PredictionOutcome{RequestID: requestID, Validation: vr}

	if !vr.Valid {
		invalid := &domain.InvalidInputError{Domain: domainID, Result: vr}
		s.finish(ctx, outcome, OutcomeInvalid, invalid, start)
		logger.WithField("errors", len(vr.Errors)).Info("Prediction rejected by validation")
		return outcome, invalid
	}

	// one handle snapshot serves both transform and predict
	h, err := s.models.Handle(domainID)
	if err != nil {
		var unknown *domain.UnknownDomainError
		if errors.As(err, &unknown) {
			err = &domain.ModelLoadError{Domain: domainID, Err: domain.ErrModelNotLoaded}
		}
		s.finish(ctx, outcome, OutcomeUnavailable, err, start)
		logger.WithError(err).Warn("Prediction requested for unavailable domain")
		return outcome, err
	}

	vec, err := s.transformer.TransformWith(h, raw, vr)
	if err != nil {
		s.finish(ctx, outcome, OutcomeError, err, start)
		return outcome, err
	}

	pred, err := h.Predict(vec)
	if err != nil {
		s.finish(ctx, outcome, OutcomeError, err, start)
		return outcome, err
	}
	outcome.Prediction = pred

	assessment, err := s.assessor.Assess(domainID, pred, raw)
	if err != nil {
		s.finish(ctx, outcome, OutcomeError, err, start)
		return outcome, err
	}
	outcome.Assessment = assessment

	s.metrics.IncRiskLevel(domainID, assessment.RiskLevel.String())
	s.finish(ctx, outcome, OutcomeSuccess, nil, start)

	logger.WithFields(logrus.Fields{
		"label":         pred.Label,
		"confidence":    pred.Confidence,
		"risk_level":    assessment.RiskLevel.String(),
		"model_version": pred.ModelVersion,
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Info("Prediction completed")

	return outcome, nil
}

// BatchItem is the result for one record of a batch
type BatchItem struct {
	Index   int                       `json:"index"`
	Outcome *domain.PredictionOutcome `json:"outcome,omitempty"`
	Error   string                    `json:"error,omitempty"`
}

// PredictBatch runs Predict for each record concurrently. Per-record
// failures are reported in the items; only cancellation and oversized
// batches fail the whole call.
func (s *RiskService) PredictBatch(ctx context.Context, domainID string, records []domain.RawInput) ([]BatchItem, error) {
	if !s.schemas.Has(domainID) {
		return nil, &domain.UnknownDomainError{Domain: domainID}
	}
	if len(records) > s.maxBatchSize {
		return nil, &domain.BatchTooLargeError{Max: s.maxBatchSize, Got: len(records)}
	}

	items := make([]BatchItem, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchWorkers)
	for i, raw := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, err := s.Predict(gctx, domainID, raw)
			items[i] = BatchItem{Index: i, Outcome: outcome}
			if err != nil {
				items[i].Error = err.Error()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// AssessRisk interprets an existing prediction. Features may be partial,
// but every supplied feature must pass its schema checks.
func (s *RiskService) AssessRisk(domainID string, pred *domain.PredictionResult, raw domain.RawInput) (*domain.RiskAssessment, error) {
	res, err := s.validator.CheckSupplied(domainID, raw)
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		return nil, &domain.InvalidInputError{Domain: domainID, Result: res}
	}
	return s.assessor.Assess(domainID, pred, raw)
}

// EnhanceReport produces a narrative report; it never fails
func (s *RiskService) EnhanceReport(ctx context.Context, req *domain.EnhancementRequest) *domain.EnhancementResult {
	return s.enhancer.Enhance(ctx, req)
}

// ReloadModel swaps in a new artifact for a domain
func (s *RiskService) ReloadModel(ctx context.Context, domainID, artifactPath string) (*domain.DomainStatus, error) {
	if !s.schemas.Has(domainID) {
		return nil, &domain.UnknownDomainError{Domain: domainID}
	}
	if _, err := s.models.Reload(ctx, domainID, artifactPath); err != nil {
		return nil, err
	}
	st := s.models.Status(domainID)
	return &st, nil
}

// DomainStatuses reports model availability for every domain
func (s *RiskService) DomainStatuses() []domain.DomainStatus {
	return s.models.Statuses()
}

func (s *RiskService) finish(ctx context.Context, outcome *domain.PredictionOutcome, result string, err error, start time.Time) {
	s.metrics.ObservePrediction(outcome.Validation.Domain, result, start)
	if s.records == nil {
		return
	}

	rec := &domain.PredictionRecord{
		ID:         uuid.NewString(),
		RequestID:  outcome.RequestID,
		Domain:     outcome.Validation.Domain,
		Valid:      outcome.Validation.Valid,
		Validation: outcome.Validation,
		Prediction: outcome.Prediction,
		Assessment: outcome.Assessment,
		LatencyMs:  time.Since(start).Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if outcome.Prediction != nil {
		rec.ModelVersion = outcome.Prediction.ModelVersion
	}
	if err != nil {
		rec.Error = err.Error()
	}

	if recErr := s.records.Record(ctx, rec); recErr != nil {
		s.metrics.IncRecordDropped("pipeline")
		s.logger.WithError(recErr).WithField("record_id", rec.ID).Warn("Failed to emit prediction record")
	}
}
