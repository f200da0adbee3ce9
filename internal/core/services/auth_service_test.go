package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_RoundTrip(t *testing.T) {
	svc := NewAuthService("test-secret", time.Hour)

	token, err := svc.GenerateJoinToken("session-1", "alice", "Alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateJoinToken(token)
	require.NoError(t, err)
	assert.Equal(t, "session-1", string(claims.SessionID))
	assert.Equal(t, "alice", string(claims.ParticipantID))
	assert.Equal(t, "Alice", claims.DisplayName)
}

func TestAuthService_WrongSecret(t *testing.T) {
	token, err := NewAuthService("secret-a", time.Hour).GenerateJoinToken("s", "p", "P")
	require.NoError(t, err)

	_, err = NewAuthService("secret-b", time.Hour).ValidateJoinToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_Expired(t *testing.T) {
	svc := NewAuthService("test-secret", -time.Minute)
	token, err := svc.GenerateJoinToken("s", "p", "P")
	require.NoError(t, err)

	_, err = svc.ValidateJoinToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestAuthService_Garbage(t *testing.T) {
	svc := NewAuthService("test-secret", time.Hour)

	_, err := svc.ValidateJoinToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateJoinToken("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
