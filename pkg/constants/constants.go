// Package constants defines system-wide constants for the API key service.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Context Key Constants
// ================================================================================

// ContextKey is the type used for values stored in a context.Context
type ContextKey string

const (
	// ContextKeyRequestID carries the inbound request identifier
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyTraceID carries the trace identifier when tracing is disabled
	ContextKeyTraceID ContextKey = "trace_id"

	// ContextKeyKeyID carries the id of the authenticated API key
	ContextKeyKeyID ContextKey = "api_key_id"

	// ContextKeyPersistedKey carries the authenticated persisted key record
	ContextKeyPersistedKey ContextKey = "persisted_key"
)

// ================================================================================
// Error Code Constants
// ================================================================================

// ErrorCode is a stable, machine-readable error identifier
type ErrorCode string

const (
	// ErrCodeInvalidKey indicates a credential that failed parsing or verification
	ErrCodeInvalidKey ErrorCode = "invalid_key"

	// ErrCodeUnsupportedAlgorithm indicates a hash kind with no implementation
	ErrCodeUnsupportedAlgorithm ErrorCode = "unsupported_algorithm"

	// ErrCodeKeyPersistFailed indicates a newly generated key could not be saved
	ErrCodeKeyPersistFailed ErrorCode = "key_persist_failed"

	// ErrCodeRepository indicates a key repository I/O failure
	ErrCodeRepository ErrorCode = "repository_error"

	// ErrCodeInvalidConfig indicates invalid configuration
	ErrCodeInvalidConfig ErrorCode = "invalid_config"

	// ErrCodeInvalidRequest indicates a malformed request
	ErrCodeInvalidRequest ErrorCode = "invalid_request"

	// ErrCodeNotFound indicates a missing resource
	ErrCodeNotFound ErrorCode = "not_found"

	// ErrCodeRateLimited indicates a client exceeded its request allowance
	ErrCodeRateLimited ErrorCode = "rate_limited"

	// ErrCodeInternal indicates an unexpected server condition
	ErrCodeInternal ErrorCode = "internal_error"
)

// ================================================================================
// Audit Event Constants
// ================================================================================

// AuditEventType identifies the kind of audit event
type AuditEventType string

const (
	// AuditEventKeyIssued is emitted after a key has been generated and persisted
	AuditEventKeyIssued AuditEventType = "api_key.issued"

	// AuditEventAuthenticationFailed is emitted when a presented key is rejected
	AuditEventAuthenticationFailed AuditEventType = "api_key.authentication_failed"

	// AuditEventAuthenticationSuccess is emitted when a presented key is accepted
	AuditEventAuthenticationSuccess AuditEventType = "api_key.authentication_success"

	// AuditEventKeyRevoked is emitted after a key has been marked revoked
	AuditEventKeyRevoked AuditEventType = "api_key.revoked"
)

// ================================================================================
// Cache Window Constants
// ================================================================================

const (
	// DefaultFreshWindow is how long a cached validation is served without any work
	DefaultFreshWindow = 30 * time.Second

	// DefaultStaleWindow is how long a cached validation may be served while it refreshes
	DefaultStaleWindow = 2 * time.Minute

	// DefaultL1KeyCacheTTL is the default lifetime of the in-memory persisted key cache
	DefaultL1KeyCacheTTL = 5 * time.Second
)

// ================================================================================
// Transport Constants
// ================================================================================

const (
	// HeaderAPIKey is the dedicated HTTP header carrying an API key
	HeaderAPIKey = "X-API-Key"

	// HeaderAuthorization is the standard HTTP authorization header
	HeaderAuthorization = "Authorization"

	// AuthorizationScheme is the scheme accepted in the Authorization header
	AuthorizationScheme = "ApiKey"

	// MetadataAPIKey is the gRPC metadata key carrying an API key
	MetadataAPIKey = "x-api-key"

	// HeaderRequestID is the HTTP header carrying the request identifier
	HeaderRequestID = "X-Request-ID"
)

// ServiceName is the service name reported to logs, traces, and metrics
const ServiceName = "apikeygen"
