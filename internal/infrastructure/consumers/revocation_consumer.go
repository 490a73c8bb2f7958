// Package consumers contains Kafka consumers for background processing.
package consumers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/tspence/api-key-generator/internal/config"
	"github.com/tspence/api-key-generator/internal/infrastructure/audit"
	"github.com/tspence/api-key-generator/pkg/constants"
	"github.com/tspence/api-key-generator/pkg/logger"
)

// Evictor drops a key from a local cache.
type Evictor interface {
	Evict(id uuid.UUID)
}

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RevocationConsumer reads the audit topic and evicts revoked keys from the
// local cache, so a revocation made on one instance is not served from
// another instance's cache for the rest of its TTL.
type RevocationConsumer struct {
	reader  messageReader
	evictor Evictor
	logger  logger.Logger
	backoff time.Duration
}

// NewRevocationConsumer joins a consumer group unique to this process, so
// every instance sees every revocation. Only messages published after start
// are read.
func NewRevocationConsumer(cfg config.KafkaConfig, evictor Evictor, log logger.Logger) *RevocationConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup + "-" + uuid.NewString(),
		StartOffset:    kafka.LastOffset,
		MinBytes:       1,
		MaxBytes:       1e6,
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
	return newRevocationConsumer(reader, evictor, log)
}

func newRevocationConsumer(r messageReader, evictor Evictor, log logger.Logger) *RevocationConsumer {
	return &RevocationConsumer{
		reader:  r,
		evictor: evictor,
		logger:  log.WithComponent("consumers.revocation"),
		backoff: time.Second,
	}
}

// Run consumes until ctx is cancelled, then closes the reader.
func (c *RevocationConsumer) Run(ctx context.Context) error {
	c.logger.Info(ctx, "starting revocation consumer")
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Error(context.Background(), "failed to close kafka reader", err)
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, context.Canceled) {
				c.logger.Info(context.Background(), "stopping revocation consumer")
				return nil
			}
			c.logger.Error(ctx, "failed to fetch message from kafka", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		c.handle(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn(ctx, "failed to commit kafka offset", logger.Err(err))
		}
	}
}

// handle never fails: a message that cannot be applied is logged and
// committed like any other.
func (c *RevocationConsumer) handle(ctx context.Context, msg kafka.Message) {
	var event audit.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.logger.Warn(ctx, "skipping undecodable audit message",
			logger.Int64("offset", msg.Offset), logger.Err(err))
		return
	}
	if event.Type != constants.AuditEventKeyRevoked {
		return
	}

	id, err := uuid.Parse(event.KeyID)
	if err != nil {
		c.logger.Warn(ctx, "revocation event has no valid key id",
			logger.Int64("offset", msg.Offset), logger.String("api_key_id", event.KeyID))
		return
	}
	c.evictor.Evict(id)
	c.logger.Debug(ctx, "evicted revoked key from local cache", logger.String("api_key_id", id.String()))
}
