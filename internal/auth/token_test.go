package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", 1)

	token, expiresAt, err := tm.GenerateToken("sweep-job", []string{ScopeSweep, ScopeCases})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "sweep-job", claims.Service)
	assert.True(t, claims.HasScope(ScopeSweep))
	assert.True(t, claims.HasScope(ScopeCases))
	assert.False(t, claims.HasScope(ScopeWorkflow))
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, _, err := NewTokenManager("secret-a", 1).GenerateToken("svc", []string{ScopeCases})
	require.NoError(t, err)

	_, err = NewTokenManager("secret-b", 1).ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	tm := NewTokenManager("test-secret", 1)

	_, err := tm.ParseToken("not.a.jwt")
	assert.Error(t, err)
}

func TestAPIKeyHashing(t *testing.T) {
	hashed, err := HashAPIKey("wh_key_123", 4)
	require.NoError(t, err)
	assert.NotEqual(t, "wh_key_123", hashed)

	assert.NoError(t, CompareAPIKey(hashed, "wh_key_123"))
	assert.Error(t, CompareAPIKey(hashed, "wrong"))
}
