package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = []byte("test-secret")

func mintToken(t *testing.T, subject string, signKey []byte) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	out, err := token.SignedString(signKey)
	require.NoError(t, err)

	return out
}

func TestStatic(t *testing.T) {
	assert.Equal(t, "alice", Static("alice").ViewerID())
	assert.Empty(t, Static("").ViewerID())
}

func TestTokenSource(t *testing.T) {
	s, err := NewTokenSource(mintToken(t, "viewer-1", key), key)
	require.NoError(t, err)
	assert.Equal(t, "viewer-1", s.ViewerID())

	s.Clear()
	assert.Empty(t, s.ViewerID())
}

func TestTokenSource_emptyToken(t *testing.T) {
	s, err := NewTokenSource("", key)
	require.NoError(t, err)
	assert.Empty(t, s.ViewerID())
}

func TestTokenSource_invalidSignature(t *testing.T) {
	_, err := NewTokenSource(mintToken(t, "viewer-1", []byte("other-key")), key)
	assert.Error(t, err)
}

func TestTokenSource_SetToken(t *testing.T) {
	s, err := NewTokenSource(mintToken(t, "viewer-1", key), key)
	require.NoError(t, err)

	require.NoError(t, s.SetToken(mintToken(t, "viewer-2", key)))
	assert.Equal(t, "viewer-2", s.ViewerID())

	// an invalid replacement drops the session instead of keeping the old one
	assert.Error(t, s.SetToken("garbage"))
	assert.Empty(t, s.ViewerID())
}
