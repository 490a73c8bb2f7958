package postgres

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tspence/api-key-generator/internal/domain/repository"
	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/errors"
)

// keyRecord is the api_keys row. Claims are stored as a JSON document.
type keyRecord struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Name      string     `gorm:"size:255"`
	Salt      string     `gorm:"not null"`
	Hash      string     `gorm:"not null"`
	Revoked   *bool      `gorm:"default:null"`
	ExpiresAt *time.Time `gorm:"index"`
	Claims    string     `gorm:"type:text"`
	CreatedAt time.Time
}

func (keyRecord) TableName() string { return "api_keys" }

func toRecord(key *apikey.PersistedKey) (*keyRecord, error) {
	rec := &keyRecord{
		ID:        key.ID,
		Name:      key.Name,
		Salt:      key.Salt,
		Hash:      key.Hash,
		Revoked:   key.Revoked,
		ExpiresAt: key.ExpiresAt,
		CreatedAt: key.CreatedAt,
	}
	if len(key.Claims) > 0 {
		b, err := json.Marshal(key.Claims)
		if err != nil {
			return nil, err
		}
		rec.Claims = string(b)
	}
	return rec, nil
}

func (r *keyRecord) toKey() (*apikey.PersistedKey, error) {
	key := &apikey.PersistedKey{
		ID:        r.ID,
		Name:      r.Name,
		Salt:      r.Salt,
		Hash:      r.Hash,
		Revoked:   r.Revoked,
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
	}
	if r.Claims != "" {
		if err := json.Unmarshal([]byte(r.Claims), &key.Claims); err != nil {
			return nil, fmt.Errorf("decode claims for %s: %w", r.ID, err)
		}
	}
	return key, nil
}

// KeyStore is the gorm implementation of repository.KeyStore.
type KeyStore struct {
	conn *DBConnection
}

var _ repository.KeyStore = (*KeyStore)(nil)

// NewKeyStore creates a store over conn, creating the api_keys table when migrate is set.
func NewKeyStore(ctx context.Context, conn *DBConnection, migrate bool) (*KeyStore, error) {
	if migrate {
		if err := conn.DB.WithContext(ctx).AutoMigrate(&keyRecord{}); err != nil {
			return nil, fmt.Errorf("migrate api_keys: %w", err)
		}
	}
	return &KeyStore{conn: conn}, nil
}

func (s *KeyStore) GetKey(ctx context.Context, id uuid.UUID) (*apikey.PersistedKey, error) {
	var rec keyRecord
	err := s.conn.DB.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apikey.ErrKeyNotFound
		}
		return nil, err
	}
	return rec.toKey()
}

func (s *KeyStore) SaveKey(ctx context.Context, key *apikey.PersistedKey) error {
	if key == nil {
		return errors.ErrInvalidRequest("key is nil")
	}
	rec, err := toRecord(key)
	if err != nil {
		return err
	}
	return s.conn.DB.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
}

func (s *KeyStore) RevokeKey(ctx context.Context, id uuid.UUID) error {
	result := s.conn.DB.WithContext(ctx).
		Model(&keyRecord{}).
		Where("id = ?", id).
		Update("revoked", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.ErrNotFound("api_key", id.String())
	}
	return nil
}

func (s *KeyStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *KeyStore) Close() error {
	return s.conn.Close()
}
