package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/runcoach/internal/auth"
)

func newService(key, issuer, audience string) *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: key,
		Issuer:     issuer,
		Audience:   audience,
	})
}

func TestJWTService_GenerateAndValidateAccessToken(t *testing.T) {
	svc := newService("test-secret-key-for-testing-only", "https://api.runcoach.test", "runcoach-api")

	token, expiresAt, err := svc.GenerateAccessToken("runner-1", "exposure:write")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "runner-1", claims.Subject)
	assert.Equal(t, "https://api.runcoach.test", claims.Issuer)
	assert.True(t, claims.HasScope("exposure:write"))
	assert.False(t, claims.HasScope("admin"))

	userID, err := svc.ValidateUserID(token)
	require.NoError(t, err)
	assert.Equal(t, "runner-1", userID)
}

func TestJWTService_MissingSubject(t *testing.T) {
	svc := newService("k", "i", "a")
	_, _, err := svc.GenerateAccessToken("")
	assert.ErrorIs(t, err, auth.ErrMissingSubject)
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc := newService("test-secret-key-for-testing-only", "https://api.runcoach.test", "runcoach-api")

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateAccessToken(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
		})
	}
}

func TestJWTService_Mismatches(t *testing.T) {
	issuer := newService("key-one", "issuer-one", "aud-one")
	token, _, err := issuer.GenerateAccessToken("runner-1")
	require.NoError(t, err)

	tests := []struct {
		name     string
		verifier *auth.JWTService
	}{
		{"signing key", newService("key-two", "issuer-one", "aud-one")},
		{"issuer", newService("key-one", "issuer-two", "aud-one")},
		{"audience", newService("key-one", "issuer-one", "aud-two")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.verifier.ValidateAccessToken(token)
			assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
		})
	}
}

func TestJWTService_Expired(t *testing.T) {
	now := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	clock := now
	svc := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "k",
		Issuer:     "i",
		Audience:   "a",
		TTL:        time.Minute,
		Now:        func() time.Time { return clock },
	})

	token, expiresAt, err := svc.GenerateAccessToken("runner-1")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), expiresAt)

	clock = now.Add(2 * time.Minute)
	_, err = svc.ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrAccessTokenExpired)
}
