package apikey

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tspence/api-key-generator/pkg/base58"
	"github.com/tspence/api-key-generator/pkg/errors"
	"github.com/tspence/api-key-generator/pkg/logger"
)

// Validator generates keys and validates key strings against a Repository.
// It holds no per-call state and is safe for concurrent use.
type Validator struct {
	repo Repository
	opts options
}

// NewValidator creates a Validator backed by repo.
func NewValidator(repo Repository, opts ...Option) *Validator {
	o := applyOptions(opts)
	o.logger = o.logger.WithComponent("apikey.validator")
	return &Validator{repo: repo, opts: o}
}

// TryValidate checks raw against every supported algorithm whose prefix it
// carries. Validation failures are reported in the Result; the error is
// reserved for repository outages and misconfigured algorithms.
func (v *Validator) TryValidate(ctx context.Context, raw string) (*Result, error) {
	start := time.Now()
	ctx, span := v.opts.tracer.Start(ctx, "apikey.Validate", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	result, reason, err := v.validate(ctx, raw, span)

	status := "success"
	switch {
	case err != nil:
		status, reason = "error", "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case !result.Success:
		status = "failure"
	}
	span.SetAttributes(attribute.String("apikey.outcome", reason))
	v.opts.metrics.RecordValidation(status, reason, time.Since(start))
	return result, err
}

func (v *Validator) validate(ctx context.Context, raw string, span trace.Span) (*Result, string, error) {
	if strings.TrimSpace(raw) == "" {
		return failure(MsgEmptyKey), EmptyKey.String(), nil
	}

	prefixMatches := 0
	lastMessage, lastReason := "", ""

	for _, alg := range v.algorithms() {
		if alg == nil || !strings.HasPrefix(raw, alg.Prefix) {
			continue
		}
		prefixMatches++

		clientKey, perr := TryParseKey(raw, alg)
		if perr != nil {
			lastMessage, lastReason = perr.Message, perr.Kind.String()
			continue
		}

		persisted, err := v.repo.GetKey(ctx, clientKey.ID)
		if err != nil && !stderrors.Is(err, ErrKeyNotFound) {
			v.opts.logger.Error(ctx, "key repository lookup failed", err,
				logger.String("api_key_id", clientKey.ID.String()))
			return nil, "", errors.ErrRepository("get", err)
		}
		if persisted == nil {
			lastMessage, lastReason = MsgKeyNotFound, "not_found"
			continue
		}

		hasher, err := NewHasher(alg)
		if err != nil {
			return nil, "", err
		}
		ok, err := hasher.Verify(clientKey.ClientSecret, persisted.Salt, persisted.Hash)
		if err != nil {
			return nil, "", fmt.Errorf("apikey: verifying %s hash: %w", alg.Hash, err)
		}
		if ok {
			span.SetAttributes(
				attribute.String("apikey.id", persisted.ID.String()),
				attribute.String("apikey.algorithm", alg.String()),
			)
			return success(persisted), "valid", nil
		}
		lastMessage, lastReason = MsgInvalidHash, "invalid_hash"
	}

	span.SetAttributes(attribute.Int("apikey.prefix_matches", prefixMatches))
	switch prefixMatches {
	case 0:
		return failure(MsgNoPrefixMatch), PrefixMismatch.String(), nil
	case 1:
		return failure(lastMessage), lastReason, nil
	default:
		return failure(MsgInvalidHash), "ambiguous", nil
	}
}

// TryParseKey parses raw under alg, or the default algorithm when alg is nil.
func (v *Validator) TryParseKey(raw string, alg *Algorithm) (*ClientKey, *ParseError) {
	return TryParseKey(raw, alg)
}

// ParseKey parses raw under alg and returns an invalid_key error on failure.
func (v *Validator) ParseKey(raw string, alg *Algorithm) (*ClientKey, error) {
	return ParseKey(raw, alg)
}

// GenerateKey issues a new key. It fills ID, Salt and Hash on persisted,
// saves it, and returns the key string. The algorithm is alg if non-nil,
// else the repository's choice for new keys, else DefaultAlgorithm.
//
// A save failure is returned as key_persist_failed and is never retried;
// callers must start over with a fresh GenerateKey call.
func (v *Validator) GenerateKey(ctx context.Context, persisted *PersistedKey, alg *Algorithm) (string, error) {
	if persisted == nil {
		return "", errors.ErrInvalidRequest("persisted key must not be nil")
	}
	if alg == nil {
		alg = v.repo.NewKeyAlgorithm()
	}
	alg = orDefault(alg)

	start := time.Now()
	ctx, span := v.opts.tracer.Start(ctx, "apikey.Generate",
		trace.WithAttributes(attribute.String("apikey.algorithm", alg.String())))
	defer span.End()

	key, err := v.generate(ctx, persisted, alg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	v.opts.metrics.RecordGeneration(alg.Hash, err, time.Since(start))
	return key, err
}

func (v *Validator) generate(ctx context.Context, persisted *PersistedKey, alg *Algorithm) (string, error) {
	if err := alg.Validate(); err != nil {
		return "", err
	}
	hasher, err := NewHasher(alg)
	if err != nil {
		return "", err
	}

	id, err := uuid.NewRandomFromReader(v.opts.random)
	if err != nil {
		return "", fmt.Errorf("apikey: generating key id: %w", err)
	}
	secretBytes := make([]byte, alg.ClientSecretLength)
	if _, err := io.ReadFull(v.opts.random, secretBytes); err != nil {
		return "", fmt.Errorf("apikey: generating client secret: %w", err)
	}
	clientKey := &ClientKey{ID: id, ClientSecret: base58.Encode(secretBytes)}

	salt, hash, err := hasher.Generate(v.opts.random, clientKey.ClientSecret)
	if err != nil {
		return "", err
	}

	persisted.ID = id
	persisted.Salt = salt
	persisted.Hash = hash

	if err := v.repo.SaveKey(ctx, persisted); err != nil {
		v.opts.logger.Error(ctx, "failed to persist new api key", err,
			logger.String("api_key_id", id.String()),
			logger.String("algorithm", alg.String()))
		return "", errors.ErrKeyPersistFailed().WithCause(err)
	}

	v.opts.logger.Info(ctx, "api key generated",
		logger.String("api_key_id", id.String()),
		logger.String("algorithm", alg.String()))
	return clientKey.String(alg), nil
}

func (v *Validator) algorithms() []*Algorithm {
	supported := v.repo.SupportedAlgorithms()
	if supported == nil {
		return []*Algorithm{DefaultAlgorithm()}
	}
	return supported
}
