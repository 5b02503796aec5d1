// Package auth exposes the identity of the acting viewer.
package auth

import (
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

//go:generate mockgen -destination=./mock/auth.go -package=mock -source=auth.go

// Source reports the current viewer id. An empty id means unauthenticated;
// the feed engine then serves a read-only, empty view and rejects mutations.
type Source interface {
	ViewerID() string
}

// Static is a fixed viewer id, mostly for tests.
type Static string

func (s Static) ViewerID() string { return string(s) }

// TokenSource extracts the viewer id from the subject claim of an HS256
// session token.
type TokenSource struct {
	mu     sync.RWMutex
	viewer string
	key    []byte
}

// NewTokenSource verifies token against key and caches the subject claim.
func NewTokenSource(token string, key []byte) (*TokenSource, error) {
	s := &TokenSource{key: key}

	if token == "" {
		return s, nil
	}

	if err := s.SetToken(token); err != nil {
		return nil, err
	}

	return s, nil
}

// SetToken replaces the session token. An invalid token leaves the source
// unauthenticated.
func (s *TokenSource) SetToken(token string) error {
	claims := jwt.RegisteredClaims{}

	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.viewer = ""
		return fmt.Errorf("failed to parse session token: %w", err)
	}

	s.viewer = claims.Subject

	return nil
}

// Clear drops the session.
func (s *TokenSource) Clear() {
	s.mu.Lock()
	s.viewer = ""
	s.mu.Unlock()
}

func (s *TokenSource) ViewerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.viewer
}
