package dto

import (
	"time"

	"github.com/tspence/api-key-generator/pkg/apikey"
)

// ClaimDTO is a claim attached to an issued key.
type ClaimDTO struct {
	Type  string `json:"type" validate:"required,max=128"`
	Value string `json:"value" validate:"max=1024"`
}

// IssueKeyRequest asks for a new API key.
type IssueKeyRequest struct {
	Name      string     `json:"name" validate:"required,max=255"`
	Claims    []ClaimDTO `json:"claims,omitempty" validate:"omitempty,max=32,dive"`
	Algorithm string     `json:"algorithm,omitempty" validate:"max=64"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// IssueKeyResponse carries the key string. It is the only time the key
// string is ever returned.
type IssueKeyResponse struct {
	KeyID     string     `json:"key_id"`
	APIKey    string     `json:"api_key"`
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// KeyInfoResponse describes a stored key without its salt or hash.
type KeyInfoResponse struct {
	KeyID     string     `json:"key_id"`
	Name      string     `json:"name"`
	Claims    []ClaimDTO `json:"claims,omitempty"`
	Revoked   bool       `json:"revoked"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewKeyInfoResponse converts a stored record.
func NewKeyInfoResponse(key *apikey.PersistedKey) *KeyInfoResponse {
	resp := &KeyInfoResponse{
		KeyID:     key.ID.String(),
		Name:      key.Name,
		Revoked:   key.IsRevoked(),
		ExpiresAt: key.ExpiresAt,
		CreatedAt: key.CreatedAt,
	}
	for _, c := range key.Claims {
		resp.Claims = append(resp.Claims, ClaimDTO{Type: c.Type, Value: c.Value})
	}
	return resp
}

// ToClaims converts request claims to stored claims.
func ToClaims(in []ClaimDTO) []apikey.Claim {
	if len(in) == 0 {
		return nil
	}
	out := make([]apikey.Claim, len(in))
	for i, c := range in {
		out[i] = apikey.Claim{Type: c.Type, Value: c.Value}
	}
	return out
}
