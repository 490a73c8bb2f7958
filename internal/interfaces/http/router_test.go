package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tspence/api-key-generator/internal/application/dto"
	"github.com/tspence/api-key-generator/internal/application/service"
	"github.com/tspence/api-key-generator/internal/config"
	"github.com/tspence/api-key-generator/internal/infrastructure/algorithms"
	"github.com/tspence/api-key-generator/internal/infrastructure/persistence"
	"github.com/tspence/api-key-generator/internal/infrastructure/persistence/memory"
	"github.com/tspence/api-key-generator/internal/infrastructure/ratelimit"
	"github.com/tspence/api-key-generator/internal/interfaces/http/handlers"
	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/constants"
	"github.com/tspence/api-key-generator/pkg/logger"
)

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return context.DeadlineExceeded }

func newTestRouter(t *testing.T, checks map[string]handlers.Pinger, limiter ratelimit.Limiter) *Router {
	t.Helper()
	alg := &apikey.Algorithm{Prefix: "tst", Suffix: "end", Hash: apikey.HashSHA512, ClientSecretLength: 24, SaltLength: 16}
	algs := algorithms.NewSet(nil, nil)
	algs.Replace([]*apikey.Algorithm{alg}, alg, []string{"fast"})

	store := memory.NewKeyStore()
	validator := apikey.NewValidator(persistence.NewKeyRepository(store, algs))
	keys := service.NewKeyAppService(service.Dependencies{
		Generator:     validator,
		Authenticator: service.Uncached(validator),
		Store:         store,
		Algorithms:    algs,
	})
	if checks == nil {
		checks = map[string]handlers.Pinger{"storage": store}
	}
	return NewRouter(config.ServerConfig{Host: "127.0.0.1", Port: 8080}, logger.NewNoopLogger(), Dependencies{
		Keys:           keys,
		HealthChecks:   checks,
		MetricsHandler: http.NotFoundHandler(),
		Limiter:        limiter,
	})
}

func doJSON(r *Router, method, path string, body interface{}, header http.Header) (*httptest.ResponseRecorder, dto.APIResponse) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, req)

	var resp dto.APIResponse
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func TestRouter_IssueAuthenticateRevoke(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	w, resp := doJSON(r, http.MethodPost, "/v1/keys", map[string]interface{}{
		"name":   "billing",
		"claims": []map[string]string{{"type": "scope", "value": "read"}},
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	rawKey := data["api_key"].(string)
	keyID := data["key_id"].(string)
	assert.NotEmpty(t, w.Header().Get(constants.HeaderRequestID))

	auth := http.Header{"X-Api-Key": {rawKey}}
	w, resp = doJSON(r, http.MethodGet, "/v1/keys/self", nil, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	info := resp.Data.(map[string]interface{})
	assert.Equal(t, keyID, info["key_id"])
	assert.Equal(t, "billing", info["name"])
	assert.NotContains(t, w.Body.String(), "salt")
	assert.NotContains(t, w.Body.String(), rawKey)

	w, _ = doJSON(r, http.MethodDelete, "/v1/keys/self", nil, http.Header{"Authorization": {"ApiKey " + rawKey}})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, resp = doJSON(r, http.MethodGet, "/v1/keys/self", nil, auth)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, service.MsgKeyRevoked, resp.Error.Message)
}

func TestRouter_IssueKeyValidation(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	w, resp := doJSON(r, http.MethodPost, "/v1/keys", map[string]interface{}{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", resp.Error.Error)
	assert.Contains(t, resp.Error.Metadata, "name")

	req := httptest.NewRequest(http.MethodPost, "/v1/keys", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	r.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	past := time.Now().Add(-time.Hour)
	w, _ = doJSON(r, http.MethodPost, "/v1/keys", dto.IssueKeyRequest{Name: "x", ExpiresAt: &past}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_SelfRequiresKey(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	w, resp := doJSON(r, http.MethodGet, "/v1/keys/self", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apikey.MsgEmptyKey, resp.Error.Message)

	w, resp = doJSON(r, http.MethodGet, "/v1/keys/self", nil, http.Header{"X-Api-Key": {"nope"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_key", resp.Error.Error)
}

func TestRouter_RateLimitsAuthenticatedRoutes(t *testing.T) {
	r := newTestRouter(t, nil, ratelimit.NewLocalLimiter(1, time.Minute))

	w, _ := doJSON(r, http.MethodGet, "/v1/keys/self", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = doJSON(r, http.MethodGet, "/v1/keys/self", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w, _ = doJSON(r, http.MethodPost, "/v1/keys", dto.IssueKeyRequest{Name: "unmetered"}, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRouter_HealthAndNotFound(t *testing.T) {
	r := newTestRouter(t, nil, nil)
	w, _ := doJSON(r, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"storage":"ok"`)

	w, _ = doJSON(r, http.MethodGet, "/live", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	unhealthy := newTestRouter(t, map[string]handlers.Pinger{"redis": failingPinger{}}, nil)
	w, _ = doJSON(unhealthy, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"unhealthy"`)

	w, resp := doJSON(r, http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", resp.Error.Error)
}
