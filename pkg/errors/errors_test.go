package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tspence/api-key-generator/pkg/constants"
	"github.com/tspence/api-key-generator/pkg/errors"
)

func TestErrInvalidKey(t *testing.T) {
	err := errors.ErrInvalidKey("Key ID is not properly formatted.")

	assert.Equal(t, constants.ErrCodeInvalidKey, err.Code())
	assert.Equal(t, http.StatusUnauthorized, err.HTTPStatus())
	assert.Equal(t, "Key ID is not properly formatted.", err.Error())
	assert.True(t, errors.IsInvalidKey(err))
}

func TestErrUnsupportedAlgorithm_Message(t *testing.T) {
	err := errors.ErrUnsupportedAlgorithm(9)
	assert.Equal(t, "Unknown hash type 9", err.Error())
	assert.Equal(t, "9", err.Metadata()["hash_kind"])
}

func TestErrRepository_WrapsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := errors.ErrRepository("get", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, errors.IsRepositoryError(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, http.StatusServiceUnavailable, errors.StatusOf(err))
}

func TestAsServiceError_FindsWrapped(t *testing.T) {
	inner := errors.ErrKeyPersistFailed()
	wrapped := fmt.Errorf("issuing key: %w", inner)

	svcErr, ok := errors.AsServiceError(wrapped)
	require.True(t, ok)
	assert.Equal(t, constants.ErrCodeKeyPersistFailed, svcErr.Code())
	assert.ErrorIs(t, wrapped, errors.ErrKeyPersistFailed())
}

func TestToErrorResponse_HidesServerMetadata(t *testing.T) {
	resp := errors.ToErrorResponse(errors.ErrRepository("save", stderrors.New("disk")))
	assert.Equal(t, "repository_error", resp.Error)
	assert.Nil(t, resp.Metadata)

	resp = errors.ToErrorResponse(errors.ErrNotFound("api_key", "abc"))
	assert.Equal(t, "abc", resp.Metadata["resource_id"])
}

func TestToGenericErrorResponse_Fallback(t *testing.T) {
	resp := errors.ToGenericErrorResponse(stderrors.New("boom"))
	assert.Equal(t, "internal_error", resp.Error)
	assert.Equal(t, http.StatusInternalServerError, errors.StatusOf(stderrors.New("boom")))
}

func TestShouldLogError(t *testing.T) {
	assert.False(t, errors.ShouldLogError(errors.ErrInvalidRequest("bad")))
	assert.True(t, errors.ShouldLogError(errors.ErrInternal("bad")))
	assert.True(t, errors.ShouldLogError(stderrors.New("plain")))
}

func TestErrRateLimited(t *testing.T) {
	err := errors.ErrRateLimited(1500 * time.Millisecond)
	assert.True(t, errors.IsRateLimited(err))
	assert.Equal(t, http.StatusTooManyRequests, errors.StatusOf(err))
	assert.Equal(t, 2, errors.ToErrorResponse(err).Metadata["retry_after_seconds"])
}
