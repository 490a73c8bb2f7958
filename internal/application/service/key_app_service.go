// Package service provides the application service that issues and
// authenticates API keys.
package service

import (
	"context"
	stderrors "errors"

	"github.com/google/uuid"

	"github.com/tspence/api-key-generator/internal/application/dto"
	"github.com/tspence/api-key-generator/internal/domain/repository"
	"github.com/tspence/api-key-generator/internal/infrastructure/algorithms"
	"github.com/tspence/api-key-generator/internal/infrastructure/audit"
	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/constants"
	"github.com/tspence/api-key-generator/pkg/errors"
	"github.com/tspence/api-key-generator/pkg/logger"
	"github.com/tspence/api-key-generator/pkg/utils"
)

// Lifecycle rejection messages.
const (
	MsgKeyRevoked = "Key has been revoked."
	MsgKeyExpired = "Key has expired."
)

// KeyAppService issues keys and authenticates presented key strings.
type KeyAppService interface {
	// IssueKey generates, stores and returns a new key.
	IssueKey(ctx context.Context, req *dto.IssueKeyRequest) (*dto.IssueKeyResponse, error)

	// Authenticate validates raw and applies revocation and expiry. Rejections
	// are invalid_key errors carrying the reason as their message.
	Authenticate(ctx context.Context, raw, remoteAddress string) (*apikey.PersistedKey, error)

	// GetKey returns the stored record for id.
	GetKey(ctx context.Context, id uuid.UUID) (*dto.KeyInfoResponse, error)

	// RevokeKey marks id revoked.
	RevokeKey(ctx context.Context, id uuid.UUID) error
}

// Authenticator validates key strings. *apikey.CachedValidator satisfies it;
// Uncached adapts a plain *apikey.Validator.
type Authenticator interface {
	TryValidate(ctx context.Context, raw, remoteAddress string) (*apikey.Result, error)
}

// Generator issues new keys.
type Generator interface {
	GenerateKey(ctx context.Context, persisted *apikey.PersistedKey, alg *apikey.Algorithm) (string, error)
}

// AuditRecorder counts audit deliveries.
type AuditRecorder interface {
	RecordAuditEvent(event constants.AuditEventType, err error)
}

type uncached struct {
	v *apikey.Validator
}

// Uncached validates every call against the repository.
func Uncached(v *apikey.Validator) Authenticator {
	return uncached{v: v}
}

func (u uncached) TryValidate(ctx context.Context, raw, _ string) (*apikey.Result, error) {
	return u.v.TryValidate(ctx, raw)
}

type keyAppServiceImpl struct {
	generator     Generator
	authenticator Authenticator
	store         repository.KeyStore
	algorithms    *algorithms.Set
	auditor       audit.Publisher
	recorder      AuditRecorder
	clock         apikey.Clock
	logger        logger.Logger
}

// Dependencies groups the collaborators of NewKeyAppService.
type Dependencies struct {
	Generator     Generator
	Authenticator Authenticator
	Store         repository.KeyStore
	Algorithms    *algorithms.Set
	Auditor       audit.Publisher // optional
	Recorder      AuditRecorder   // optional
	Clock         apikey.Clock    // defaults to apikey.SystemClock
	Logger        logger.Logger
}

// NewKeyAppService creates a KeyAppService.
func NewKeyAppService(deps Dependencies) KeyAppService {
	s := &keyAppServiceImpl{
		generator:     deps.Generator,
		authenticator: deps.Authenticator,
		store:         deps.Store,
		algorithms:    deps.Algorithms,
		auditor:       deps.Auditor,
		recorder:      deps.Recorder,
		clock:         deps.Clock,
		logger:        deps.Logger,
	}
	if s.clock == nil {
		s.clock = apikey.SystemClock{}
	}
	if s.logger == nil {
		s.logger = logger.NewNoopLogger()
	}
	if s.algorithms == nil {
		s.algorithms = algorithms.NewSet(nil, nil)
	}
	s.logger = s.logger.WithComponent("KeyAppService")
	return s
}

func (s *keyAppServiceImpl) IssueKey(ctx context.Context, req *dto.IssueKeyRequest) (*dto.IssueKeyResponse, error) {
	if req == nil {
		return nil, errors.ErrInvalidRequest("request body is required")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	var alg *apikey.Algorithm
	if req.Algorithm != "" {
		found, ok := s.algorithms.Lookup(req.Algorithm)
		if !ok {
			return nil, errors.ErrInvalidRequest("unknown algorithm").WithMetadata("algorithm", req.Algorithm)
		}
		alg = found
	}

	now := s.clock.Now().UTC()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, errors.ErrInvalidRequest("expires_at must be in the future")
	}

	persisted := &apikey.PersistedKey{
		Name:      req.Name,
		Claims:    dto.ToClaims(req.Claims),
		ExpiresAt: req.ExpiresAt,
		CreatedAt: now,
	}
	key, err := s.generator.GenerateKey(ctx, persisted, alg)
	if err != nil {
		s.logger.Error(ctx, "Failed to issue API key", err, logger.String("name", req.Name))
		return nil, err
	}

	s.publish(ctx, audit.Event{
		Type:    constants.AuditEventKeyIssued,
		KeyID:   persisted.ID.String(),
		KeyName: persisted.Name,
	})

	return &dto.IssueKeyResponse{
		KeyID:     persisted.ID.String(),
		APIKey:    key,
		Name:      persisted.Name,
		ExpiresAt: persisted.ExpiresAt,
		CreatedAt: persisted.CreatedAt,
	}, nil
}

func (s *keyAppServiceImpl) Authenticate(ctx context.Context, raw, remoteAddress string) (*apikey.PersistedKey, error) {
	result, err := s.authenticator.TryValidate(ctx, raw, remoteAddress)
	if err != nil {
		s.logger.Error(ctx, "API key validation could not complete", err,
			logger.String("remote_address", remoteAddress))
		return nil, err
	}

	if !result.Success {
		return nil, s.reject(ctx, "", result.Message, remoteAddress)
	}

	key := result.Key
	switch {
	case key.IsRevoked():
		return nil, s.reject(ctx, key.ID.String(), MsgKeyRevoked, remoteAddress)
	case key.IsExpired(s.clock.Now()):
		return nil, s.reject(ctx, key.ID.String(), MsgKeyExpired, remoteAddress)
	}

	s.publish(ctx, audit.Event{
		Type:          constants.AuditEventAuthenticationSuccess,
		KeyID:         key.ID.String(),
		KeyName:       key.Name,
		RemoteAddress: remoteAddress,
	})
	return key, nil
}

func (s *keyAppServiceImpl) reject(ctx context.Context, keyID, message, remoteAddress string) error {
	s.logger.Warn(ctx, "API key rejected",
		logger.String("api_key_id", keyID),
		logger.String("reason", message),
		logger.String("remote_address", remoteAddress))
	s.publish(ctx, audit.Event{
		Type:          constants.AuditEventAuthenticationFailed,
		KeyID:         keyID,
		Reason:        message,
		RemoteAddress: remoteAddress,
	})
	return errors.ErrInvalidKey(message)
}

func (s *keyAppServiceImpl) GetKey(ctx context.Context, id uuid.UUID) (*dto.KeyInfoResponse, error) {
	key, err := s.store.GetKey(ctx, id)
	if err != nil && !stderrors.Is(err, apikey.ErrKeyNotFound) {
		return nil, errors.ErrRepository("get", err)
	}
	if key == nil {
		return nil, errors.ErrNotFound("api_key", id.String())
	}
	return dto.NewKeyInfoResponse(key), nil
}

func (s *keyAppServiceImpl) RevokeKey(ctx context.Context, id uuid.UUID) error {
	if err := s.store.RevokeKey(ctx, id); err != nil {
		if errors.IsNotFoundError(err) {
			return err
		}
		s.logger.Error(ctx, "Failed to revoke API key", err, logger.String("api_key_id", id.String()))
		return errors.ErrRepository("revoke", err)
	}
	s.logger.Info(ctx, "API key revoked", logger.String("api_key_id", id.String()))
	s.publish(ctx, audit.Event{Type: constants.AuditEventKeyRevoked, KeyID: id.String()})
	return nil
}

// publish delivers an audit event. Delivery failures are logged and counted
// but never fail the request.
func (s *keyAppServiceImpl) publish(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.Timestamp = s.clock.Now().UTC()
	if requestID, ok := ctx.Value(constants.ContextKeyRequestID).(string); ok {
		event.RequestID = requestID
	}

	err := s.auditor.Publish(ctx, event)
	if err != nil {
		s.logger.Warn(ctx, "audit event not delivered",
			logger.String("event", string(event.Type)), logger.Err(err))
	}
	if s.recorder != nil {
		s.recorder.RecordAuditEvent(event.Type, err)
	}
}
