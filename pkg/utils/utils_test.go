package utils

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestEncryptDecryptSecret(t *testing.T) {
	enc, err := EncryptSecret(testKey, "glpat-xxxx")
	require.NoError(t, err)
	assert.NotContains(t, enc, "glpat")

	plain, err := DecryptSecret(testKey, enc)
	require.NoError(t, err)
	assert.Equal(t, "glpat-xxxx", plain)

	again, err := EncryptSecret(testKey, "glpat-xxxx")
	require.NoError(t, err)
	assert.NotEqual(t, enc, again, "nonce must differ per call")
}

func TestSecret_invalidInputs(t *testing.T) {
	_, err := EncryptSecret("", "x")
	assert.Error(t, err)
	_, err = EncryptSecret("short", "x")
	assert.Error(t, err)
	_, err = DecryptSecret(testKey, "!!not-base64")
	assert.Error(t, err)
	_, err = DecryptSecret(testKey, "YWJj")
	assert.Error(t, err)
}

type platform struct {
	Platform string `validate:"required,oneof=gitea gitlab github"`
	Owner    string `validate:"required"`
}

type settings struct {
	Source    platform
	BatchSize int `validate:"gte=0"`
}

func TestFormatValidationError(t *testing.T) {
	err := validator.New().Struct(settings{Source: platform{Platform: "svn"}, BatchSize: -1})
	require.Error(t, err)

	msg := FormatValidationError(err)
	assert.Contains(t, msg, "field 'Source.Platform' must be one of: gitea gitlab github")
	assert.Contains(t, msg, "field 'Source.Owner' is required")
	assert.Contains(t, msg, "field 'BatchSize' must be greater than or equal to 0")
}

func TestFormatValidationError_json(t *testing.T) {
	var out struct {
		Size int `json:"size"`
	}
	err := json.Unmarshal([]byte(`{"size":"big"}`), &out)
	assert.Equal(t, "field 'size' should be int", FormatValidationError(err))

	err = json.Unmarshal([]byte(`{`), &out)
	assert.NotEmpty(t, FormatValidationError(err))
	assert.Empty(t, FormatValidationError(nil))
}
