package audit

import (
	"context"

	"github.com/tspence/api-key-generator/pkg/logger"
)

// LogPublisher writes events to the service log. It is used when no broker
// is configured.
type LogPublisher struct {
	logger logger.Logger
}

func NewLogPublisher(log logger.Logger) *LogPublisher {
	return &LogPublisher{logger: log.WithComponent("audit")}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.Info(ctx, "audit event",
		logger.String("event", string(event.Type)),
		logger.String("api_key_id", event.KeyID),
		logger.String("reason", event.Reason),
		logger.String("remote_address", event.RemoteAddress),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
