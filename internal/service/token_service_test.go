package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/interview-coach/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokens(expiry time.Duration) *TokenService {
	return NewTokenService(&config.Config{
		SessionSecret: "a-test-secret-of-enough-length",
		SessionExpiry: expiry,
	})
}

func TestTokenService_IssueAndValidate(t *testing.T) {
	tokens := newTestTokens(time.Hour)
	id := uuid.New()

	signed, expiresAt, err := tokens.Issue(id)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := tokens.ValidateFor(signed, id)
	require.NoError(t, err)
	assert.Equal(t, id.String(), claims.SessionID)
	assert.Equal(t, id.String(), claims.Subject)
}

func TestTokenService_OtherSession(t *testing.T) {
	tokens := newTestTokens(time.Hour)

	signed, _, err := tokens.Issue(uuid.New())
	require.NoError(t, err)

	_, err = tokens.ValidateFor(signed, uuid.New())
	assert.ErrorIs(t, err, ErrTokenSession)
}

func TestTokenService_Expired(t *testing.T) {
	tokens := newTestTokens(-time.Minute)

	signed, _, err := tokens.Issue(uuid.New())
	require.NoError(t, err)

	_, err = tokens.Validate(signed)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenService_WrongSecret(t *testing.T) {
	signed, _, err := newTestTokens(time.Hour).Issue(uuid.New())
	require.NoError(t, err)

	other := NewTokenService(&config.Config{SessionSecret: "another-secret-entirely", SessionExpiry: time.Hour})
	_, err = other.Validate(signed)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestTokenService_RejectsNoneAlgorithm(t *testing.T) {
	claims := SessionClaims{SessionID: uuid.NewString()}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestTokens(time.Hour).Validate(unsigned)
	assert.Error(t, err)
}
