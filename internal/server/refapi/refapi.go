// Package refapi exposes the server-authoritative feed backend over HTTP.
// It is the surface the mirror engine's remote client talks to.
package refapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	mm "github.com/pulseboard/feedmirror/internal/middleware"

	"github.com/pulseboard/feedmirror/internal/storage"
)

var log = logrus.WithField("package", "refapi")

type ctxKey int

const viewerKey ctxKey = iota

type server struct {
	s   storage.Storage
	hub *Hub
	m   *mediaStore
}

// SetupRouter setups handlers to chi router.
func SetupRouter(s storage.Storage, hub *Hub, secret []byte, r chi.Router) {
	r.Use(
		middleware.RequestID,
		middleware.StripSlashes,
		cors.AllowAll().Handler,
		mm.Logger,
		middleware.Recoverer,
		verifier(secret),
	)

	srv := server{
		s:   s,
		hub: hub,
		m:   newMediaStore(),
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/posts", srv.listPosts)
		r.Post("/posts", srv.createPost)
		r.Get("/posts/{id}", srv.getPost)
		r.Put("/posts/{id}", srv.editPost)
		r.Delete("/posts/{id}", srv.deletePost)
		r.Put("/posts/{id}/pin", srv.pinPost)
		r.Post("/posts/{id}/share", srv.sharePost)
		r.Put("/posts/{id}/like", srv.setLike)
		r.Get("/posts/{id}/comments", srv.listComments)
		r.Post("/posts/{id}/comments", srv.createComment)

		r.Post("/media", srv.uploadMedia)
		r.Get("/media/{file}", srv.getMedia)

		r.Get("/stream", hub.Serve)
	})
}

// verifier extracts the viewer id from the bearer token's subject claim.
// Requests without a token pass through unauthenticated; handlers that
// mutate require a viewer.
func verifier(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := strings.TrimPrefix(header, "Bearer ")

			claims := jwt.RegisteredClaims{}
			if _, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return secret, nil
			}); err != nil {
				writeError(w, http.StatusUnauthorized, "invalid session token")
				return
			}

			if claims.Subject == "" {
				writeError(w, http.StatusUnauthorized, "session token without subject")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), viewerKey, claims.Subject)))
		})
	}
}

func viewer(r *http.Request) string {
	v, _ := r.Context().Value(viewerKey).(string)
	return v
}

// IssueToken mints a session token for viewer. Used by the bundled server
// binary and by tests.
func IssueToken(viewerID string, secret []byte, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   viewerID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	})

	out, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return out, nil
}
