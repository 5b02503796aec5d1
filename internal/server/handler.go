package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/pulseboard/feedmirror/internal/remote"
)

func (s server) getFeed(w http.ResponseWriter, r *http.Request) {
	posts := s.f.Posts()

	out := FeedResponse{
		Posts:   make([]*Post, len(posts)),
		HasMore: s.f.HasMore(),
	}
	for i, p := range posts {
		out.Posts[i] = toAPIPost(p)
	}

	writeOK(w, http.StatusOK, out)
}

func (s server) getPost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	p, ok := s.f.Post(id)
	if !ok {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}

	writeOK(w, http.StatusOK, toAPIPost(p))
}

func (s server) getComments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	comments, err := s.f.Comments(r.Context(), id)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}

		writeError(w, http.StatusBadGateway, "failed to fetch comments")
		return
	}

	out := CommentsResponse{
		Comments: make([]*Comment, len(comments)),
	}
	for i, c := range comments {
		out.Comments[i] = toAPIComment(c)
	}

	writeOK(w, http.StatusOK, out)
}

func (s server) getStatus(w http.ResponseWriter, r *http.Request) {
	st := s.f.Status()

	writeOK(w, http.StatusOK, StatusResponse{
		Loaded:   st.Loaded,
		HasMore:  st.HasMore,
		Loading:  st.Loading,
		ReadOnly: st.ReadOnly,
		Time:     now(),
		Filter:   toAPIFilter(st.Filter),
	})
}
