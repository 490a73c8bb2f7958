package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tspence/api-key-generator/pkg/errors"
)

type issueRequest struct {
	DisplayName string `validate:"required,max=8"`
	OwnerID     string `validate:"omitempty,uuid"`
	Hash        string `validate:"omitempty,hashkind"`
}

func TestValidateStruct(t *testing.T) {
	assert.Nil(t, ValidateStruct(&issueRequest{DisplayName: "ci"}))
	assert.Nil(t, ValidateStruct(&issueRequest{
		DisplayName: "ci",
		OwnerID:     "00112233-4455-6677-8899-aabbccddeeff",
		Hash:        "pbkdf2-100k",
	}))

	err := ValidateStruct(&issueRequest{DisplayName: "", OwnerID: "nope", Hash: "md5"})
	require.NotNil(t, err)
	assert.True(t, errors.HasCode(err, "invalid_request"))
	assert.Equal(t, "is required", err.Metadata()["display_name"])
	assert.Equal(t, "must be a valid UUID", err.Metadata()["owner_id"])
	assert.Contains(t, err.Metadata()["hash"], "sha256")
}

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "client_secret_length", toSnakeCase("ClientSecretLength"))
	assert.Equal(t, "key_id", toSnakeCase("KeyID"))
}
