// Package server exposes the mirrored feed over HTTP so local consumers can
// read the synced view without touching the engine directly.
package server

import (
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"

	mm "github.com/pulseboard/feedmirror/internal/middleware"

	"github.com/pulseboard/feedmirror/internal/feed"
)

type server struct {
	f *feed.Store
}

// SetupRouter setups handlers to chi router.
func SetupRouter(f *feed.Store, r chi.Router) {
	r.Use(
		middleware.RequestID,
		middleware.StripSlashes,
		cors.AllowAll().Handler,
		mm.Logger,
		middleware.Recoverer,
	)

	srv := server{
		f: f,
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/feed", srv.getFeed)
		r.Get("/feed/{id}", srv.getPost)
		r.Get("/feed/{id}/comments", srv.getComments)
		r.Get("/status", mm.Cached(10*time.Second, srv.getStatus))
	})
}
