// Package audit publishes API key audit events.
package audit

import (
	"context"
	"time"

	"github.com/tspence/api-key-generator/pkg/constants"
)

// Event records an issuance, a revocation or an authentication attempt. It never carries
// the presented key string or any secret material.
type Event struct {
	Type          constants.AuditEventType `json:"type"`
	KeyID         string                   `json:"key_id,omitempty"`
	KeyName       string                   `json:"key_name,omitempty"`
	Reason        string                   `json:"reason,omitempty"`
	RemoteAddress string                   `json:"remote_address,omitempty"`
	RequestID     string                   `json:"request_id,omitempty"`
	Timestamp     time.Time                `json:"timestamp"`
	Signature     string                   `json:"signature,omitempty"`
}

// Publisher delivers audit events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
