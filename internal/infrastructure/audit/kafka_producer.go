package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tspence/api-key-generator/internal/config"
	"github.com/tspence/api-key-generator/pkg/logger"
)

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes events as JSON messages keyed by key id.
type KafkaProducer struct {
	writer     messageWriter
	signingKey string
	logger     logger.Logger
}

// NewKafkaProducer creates a producer for cfg.Topic.
func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 5 * time.Second,
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaProducer(writer, cfg.SigningKey, log)
}

func newKafkaProducer(w messageWriter, signingKey string, log logger.Logger) *KafkaProducer {
	return &KafkaProducer{
		writer:     w,
		signingKey: signingKey,
		logger:     log.WithComponent("audit.kafka"),
	}
}

// Publish signs the event when a signing key is configured and writes it.
func (p *KafkaProducer) Publish(ctx context.Context, event Event) error {
	if p.signingKey != "" {
		sig, err := SignEvent(event, p.signingKey)
		if err != nil {
			return err
		}
		event.Signature = sig
	}

	bytes, err := json.Marshal(event)
	if err != nil {
		p.logger.Error(ctx, "failed to marshal audit event", err)
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.KeyID),
		Value: bytes,
		Time:  event.Timestamp,
	})
	if err != nil {
		p.logger.Error(ctx, "failed to write audit event to Kafka", err,
			logger.String("event", string(event.Type)))
	}
	return err
}

// Close flushes and closes the underlying writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
