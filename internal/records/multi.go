package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/medirisk-server/internal/domain"
)

// MultiSink fans a record out to every configured sink
type MultiSink struct {
	sinks []domain.RecordSink
}

// NewMultiSink combines sinks; nil entries are skipped
func NewMultiSink(sinks ...domain.RecordSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of wrapped sinks
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

// Record delivers to every sink and joins their errors
func (m *MultiSink) Record(ctx context.Context, record *domain.PredictionRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New builds the record sinks enabled in config
func New(config domain.RecordsConfig, logger *logrus.Logger) (*MultiSink, error) {
	var sinks []domain.RecordSink
	if config.LogEnabled {
		sinks = append(sinks, NewLogSink(logger))
	}
	if config.Kafka.Enabled {
		if len(config.Kafka.Brokers) == 0 || config.Kafka.Topic == "" {
			return nil, fmt.Errorf("kafka record sink requires brokers and a topic")
		}
		sinks = append(sinks, NewKafkaSink(config.Kafka, logger))
	}
	return NewMultiSink(sinks...), nil
}
