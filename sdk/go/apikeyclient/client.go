// Package apikeyclient is a Go client for the apikeygen HTTP API. Services
// that accept API keys use Verify to check a presented key against the
// issuing service, with accepted keys remembered for a short TTL.
package apikeyclient

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

var (
	// ErrInvalidKey is returned when the service rejects a key.
	ErrInvalidKey = errors.New("apikeyclient: invalid api key")

	// ErrRateLimited is returned when the service throttles the caller.
	// The *Error carries RetryAfter.
	ErrRateLimited = errors.New("apikeyclient: rate limited")
)

// Error is a non-2xx response from the service.
type Error struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("apikeyclient: %d %s: %s", e.Status, e.Code, e.Message)
}

// Is matches ErrInvalidKey and ErrRateLimited.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidKey:
		return e.Status == http.StatusUnauthorized
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// Claim is an attribute attached to a key.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// IssueRequest asks the service for a new key.
type IssueRequest struct {
	Name      string     `json:"name"`
	Claims    []Claim    `json:"claims,omitempty"`
	Algorithm string     `json:"algorithm,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// IssuedKey is returned once, at issuance. APIKey cannot be fetched again.
type IssuedKey struct {
	KeyID     string     `json:"key_id"`
	APIKey    string     `json:"api_key"`
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// KeyInfo describes an accepted key.
type KeyInfo struct {
	KeyID     string     `json:"key_id"`
	Name      string     `json:"name"`
	Claims    []Claim    `json:"claims,omitempty"`
	Revoked   bool       `json:"revoked"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Client calls the service at a base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	verified   *gocache.Cache
	ttl        time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client, which has a 10s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithVerifyCacheTTL sets how long an accepted key is trusted without
// asking the service again. Zero disables caching. The default is 30s.
func WithVerifyCacheTTL(ttl time.Duration) Option {
	return func(cl *Client) { cl.ttl = ttl }
}

// New creates a client for baseURL, for example "https://keys.internal:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		ttl:        30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ttl > 0 {
		c.verified = gocache.New(c.ttl, 2*c.ttl)
	}
	return c
}

// Issue requests a new key.
func (c *Client) Issue(ctx context.Context, req IssueRequest) (*IssuedKey, error) {
	var out IssuedKey
	if err := c.do(ctx, http.MethodPost, "/v1/keys", "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify checks apiKey with the service. Rejections match ErrInvalidKey.
func (c *Client) Verify(ctx context.Context, apiKey string) (*KeyInfo, error) {
	fp := fingerprint(apiKey)
	if c.verified != nil {
		if v, ok := c.verified.Get(fp); ok {
			info := *v.(*KeyInfo)
			return &info, nil
		}
	}

	var info KeyInfo
	if err := c.do(ctx, http.MethodGet, "/v1/keys/self", apiKey, nil, &info); err != nil {
		return nil, err
	}
	if c.verified != nil {
		cached := info
		c.verified.SetDefault(fp, &cached)
	}
	return &info, nil
}

// Revoke revokes apiKey. It is forgotten by this client's cache at once;
// other clients may accept it until their cache entries expire.
func (c *Client) Revoke(ctx context.Context, apiKey string) error {
	if c.verified != nil {
		c.verified.Delete(fingerprint(apiKey))
	}
	return c.do(ctx, http.MethodDelete, "/v1/keys/self", apiKey, nil, nil)
}

// envelope mirrors the service's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Message          string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path, apiKey string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && resp.StatusCode < 300 {
		return fmt.Errorf("apikeyclient: decoding response: %w", err)
	}
	if resp.StatusCode >= 300 {
		e := &Error{Status: resp.StatusCode}
		if env.Error != nil {
			e.Code = env.Error.Error
			e.Message = env.Error.Message
			if e.Message == "" {
				e.Message = env.Error.ErrorDescription
			}
		}
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			e.RetryAfter = time.Duration(s) * time.Second
		}
		return e
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func fingerprint(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}
