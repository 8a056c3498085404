// Package records emits structured prediction records to logs and Kafka.
package records

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/medirisk-server/internal/domain"
)

// LogSink writes one structured log entry per prediction record
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a log-backed record sink
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record implements domain.RecordSink
func (s *LogSink) Record(ctx context.Context, record *domain.PredictionRecord) error {
	fields := logrus.Fields{
		"record_id":  record.ID,
		"request_id": record.RequestID,
		"domain":     record.Domain,
		"valid":      record.Valid,
		"latency_ms": record.LatencyMs,
	}
	if record.ModelVersion != "" {
		fields["model_version"] = record.ModelVersion
	}
	if record.Prediction != nil {
		fields["label"] = record.Prediction.Label
		fields["confidence"] = record.Prediction.Confidence
	}
	if record.Assessment != nil {
		fields["risk_level"] = record.Assessment.RiskLevel.String()
		fields["risk_score"] = record.Assessment.RiskScore
	}
	if record.Validation != nil {
		fields["warnings"] = len(record.Validation.Warnings)
		fields["risk_flags"] = len(record.Validation.RiskFlags)
	}

	entry := s.logger.WithFields(fields)
	if record.Error != "" {
		entry.WithField("error", record.Error).Warn("Prediction failed")
		return nil
	}
	entry.Info("Prediction recorded")
	return nil
}

// Close implements domain.RecordSink
func (s *LogSink) Close() error {
	return nil
}
