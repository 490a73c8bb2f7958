package audit

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// auditRecord is a row in api_key_audit_events.
type auditRecord struct {
	ID            uint   `gorm:"primaryKey"`
	Type          string `gorm:"size:64;index"`
	KeyID         string `gorm:"size:36;index"`
	KeyName       string `gorm:"size:255"`
	Reason        string `gorm:"size:64"`
	RemoteAddress string `gorm:"size:128"`
	RequestID     string `gorm:"size:64"`
	Timestamp     time.Time
}

func (auditRecord) TableName() string { return "api_key_audit_events" }

// GormPublisher stores events in the key database. It is used with the SQL
// storage drivers when Kafka is disabled.
type GormPublisher struct {
	db *gorm.DB
}

// NewGormPublisher creates the publisher, migrating its table when migrate is set.
func NewGormPublisher(ctx context.Context, db *gorm.DB, migrate bool) (*GormPublisher, error) {
	if migrate {
		if err := db.WithContext(ctx).AutoMigrate(&auditRecord{}); err != nil {
			return nil, err
		}
	}
	return &GormPublisher{db: db}, nil
}

func (p *GormPublisher) Publish(ctx context.Context, event Event) error {
	return p.db.WithContext(ctx).Create(&auditRecord{
		Type:          string(event.Type),
		KeyID:         event.KeyID,
		KeyName:       event.KeyName,
		Reason:        event.Reason,
		RemoteAddress: event.RemoteAddress,
		RequestID:     event.RequestID,
		Timestamp:     event.Timestamp,
	}).Error
}

func (p *GormPublisher) Close() error { return nil }
