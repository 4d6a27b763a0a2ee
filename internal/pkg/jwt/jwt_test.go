package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repo-migrator/internal/pkg/config"
	pkgErrors "repo-migrator/pkg/errors"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.JWTConfig{Secret: "unit-test-secret", AccessTokenExpire: 60})
	require.NoError(t, err)
	return m
}

func TestNewManager_requiresSecret(t *testing.T) {
	_, err := NewManager(config.JWTConfig{})
	assert.Error(t, err)
}

func TestManager_roundTrip(t *testing.T) {
	m := newTestManager(t)

	token, err := m.GenerateAccessToken("ops")
	require.NoError(t, err)

	claims, err := m.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Operator)
	assert.Equal(t, "ops", claims.Subject)
}

func TestManager_expired(t *testing.T) {
	m := newTestManager(t)
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issued }

	token, err := m.GenerateAccessToken("ops")
	require.NoError(t, err)

	m.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = m.ParseToken(token)
	assert.ErrorIs(t, err, pkgErrors.ErrTokenExpired)
}

func TestManager_wrongSecret(t *testing.T) {
	token, err := newTestManager(t).GenerateAccessToken("ops")
	require.NoError(t, err)

	other, err := NewManager(config.JWTConfig{Secret: "another-secret"})
	require.NoError(t, err)
	_, err = other.ParseToken(token)
	assert.Equal(t, pkgErrors.CodeUnauthorized, pkgErrors.CodeOf(err))
}

func TestManager_rejectsNoneAlgorithm(t *testing.T) {
	claims := OperatorClaims{Operator: "ops", Type: "access"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestManager(t).ParseToken(token)
	assert.Error(t, err)
}
