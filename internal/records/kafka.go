package records

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/medirisk-server/internal/domain"
)

// messageWriter is the subset of *kafka.Writer used by the sink
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes prediction records as JSON messages keyed by domain.
// The writer runs asynchronously; delivery failures are logged from the
// completion callback and never block a prediction.
type KafkaSink struct {
	writer messageWriter
	topic  string
	logger *logrus.Logger
}

// NewKafkaSink creates a Kafka record producer
func NewKafkaSink(config domain.KafkaConfig, logger *logrus.Logger) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		WriteTimeout: config.WriteTimeout,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.WithError(err).WithFields(logrus.Fields{
					"topic":    config.Topic,
					"messages": len(messages),
				}).Error("Failed to publish prediction records")
			}
		},
	}

	return newKafkaSink(writer, config.Topic, logger)
}

func newKafkaSink(writer messageWriter, topic string, logger *logrus.Logger) *KafkaSink {
	return &KafkaSink{writer: writer, topic: topic, logger: logger}
}

// Record implements domain.RecordSink
func (s *KafkaSink) Record(ctx context.Context, record *domain.PredictionRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction record: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(record.Domain),
		Value: value,
		Time:  record.CreatedAt,
		Headers: []kafka.Header{
			{Key: "record-id", Value: []byte(record.ID)},
			{Key: "request-id", Value: []byte(record.RequestID)},
			{Key: "schema", Value: []byte("prediction-record/v1")},
		},
	}
	if message.Time.IsZero() {
		message.Time = time.Now().UTC()
	}

	if err := s.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to publish prediction record to %s: %w", s.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
