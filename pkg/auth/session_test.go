package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestSessionAuthenticated(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	token := signed(t, jwt.MapClaims{
		"email": "alice@example.com",
		"sub":   "123",
		"exp":   now.Add(time.Hour).Unix(),
	})

	s := NewSession(token).WithClock(func() time.Time { return now })
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, "alice@example.com", s.Username())
	assert.Empty(t, s.KeyID())

	exp, ok := s.ExpiresAt()
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Hour).Unix(), exp.Unix())

	s.WithClock(func() time.Time { return now.Add(2 * time.Hour) })
	assert.False(t, s.IsAuthenticated())
}

func TestSessionLoggedOut(t *testing.T) {
	s := NewSession("  ")
	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.Username())

	var nilSession *Session
	assert.False(t, nilSession.IsAuthenticated())
	assert.Empty(t, nilSession.Token())
}

func TestSessionOpaqueToken(t *testing.T) {
	s := NewSession("opaque-api-token")
	assert.True(t, s.IsAuthenticated())
	assert.Empty(t, s.Username())

	s.Clear()
	assert.False(t, s.IsAuthenticated())
}

func TestFormsKeySession(t *testing.T) {
	token := signed(t, jwt.MapClaims{"iss": "key-42", "sub": "forms-key"})

	s := NewFormsKeySession(token)
	assert.Equal(t, "key-42", s.KeyID())
	assert.Equal(t, "forms-key", s.Username())
}
