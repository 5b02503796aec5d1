package refapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi"

	"github.com/pulseboard/feedmirror/internal/entities"
	"github.com/pulseboard/feedmirror/internal/realtime"
	"github.com/pulseboard/feedmirror/internal/storage"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

func (s server) listPosts(w http.ResponseWriter, r *http.Request) {
	params, err := extractListPostsParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	posts, total, err := s.s.ListPosts(r.Context(), params)
	if err != nil {
		writeInternalError(w, "failed to list posts", err)
		return
	}

	out := ListPostsResponse{
		Posts:      make([]Post, len(posts)),
		TotalCount: &total,
	}
	for i, v := range posts {
		out.Posts[i] = toPost(v)
	}

	writeOK(w, http.StatusOK, out)
}

func (s server) getPost(w http.ResponseWriter, r *http.Request) {
	p, err := s.s.GetPost(r.Context(), chi.URLParam(r, "id"), viewer(r))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeInternalError(w, "failed to get post", err)
		return
	}

	writeOK(w, http.StatusOK, toPost(p))
}

func (s server) createPost(w http.ResponseWriter, r *http.Request) {
	v := viewer(r)
	if v == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "failed to decode request")
		return
	}

	if err := validateContent(req.Content, len(req.MediaURLs) > 0); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Visibility == "" {
		req.Visibility = string(entities.VisibilityPublic)
	}
	if req.Type == "" {
		req.Type = string(entities.TypeText)
	}
	if !entities.ValidPostType(entities.PostType(req.Type)) {
		writeError(w, http.StatusBadRequest, "invalid type")
		return
	}

	p, err := s.s.CreatePost(r.Context(), &storage.CreatePostParams{
		AuthorID:   v,
		Content:    req.Content,
		Visibility: req.Visibility,
		Type:       req.Type,
		MediaURLs:  req.MediaURLs,
	})
	if err != nil {
		writeInternalError(w, "failed to create post", err)
		return
	}

	s.broadcastPost(realtime.KindPostInserted, p)
	writeOK(w, http.StatusCreated, toPost(p))
}

func (s server) editPost(w http.ResponseWriter, r *http.Request) {
	v := viewer(r)
	if v == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req EditPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "failed to decode request")
		return
	}

	if err := validateContent(req.Content, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := s.s.EditPost(r.Context(), chi.URLParam(r, "id"), v, req.Content)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeInternalError(w, "failed to edit post", err)
		return
	}

	s.broadcastPost(realtime.KindPostUpdated, p)
	writeOK(w, http.StatusOK, toPost(p))
}

func (s server) deletePost(w http.ResponseWriter, r *http.Request) {
	v := viewer(r)
	if v == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.s.DeletePost(r.Context(), id, v); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeInternalError(w, "failed to delete post", err)
		return
	}

	s.hub.Broadcast(realtime.Envelope{
		Channel: realtime.FeedChannel,
		Kind:    realtime.KindPostDeleted,
		PostID:  id,
	})

	w.WriteHeader(http.StatusNoContent)
}

func (s server) pinPost(w http.ResponseWriter, r *http.Request) {
	v := viewer(r)
	if v == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req PinPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "failed to decode request")
		return
	}

	p, err := s.s.PinPost(r.Context(), chi.URLParam(r, "id"), req.Pinned)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeInternalError(w, "failed to pin post", err)
		return
	}

	s.broadcastPost(realtime.KindPostUpdated, p)
	writeOK(w, http.StatusOK, toPost(p))
}

func (s server) sharePost(w http.ResponseWriter, r *http.Request) {
	v := viewer(r)
	if v == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	p, err := s.s.SharePost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeInternalError(w, "failed to share post", err)
		return
	}

	s.broadcastPost(realtime.KindPostUpdated, p)
	writeOK(w, http.StatusOK, toPost(p))
}

func (s server) setLike(w http.ResponseWriter, r *http.Request) {
	v := viewer(r)
	if v == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req SetLikeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "failed to decode request")
		return
	}

	id := chi.URLParam(r, "id")

	p, liked, err := s.s.SetLike(r.Context(), id, v, req.Liked)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeInternalError(w, "failed to set like", err)
		return
	}

	kind := realtime.KindLikeSet
	if !liked {
		kind = realtime.KindLikeUnset
	}
	s.hub.Broadcast(realtime.Envelope{
		Channel: realtime.FeedChannel,
		Kind:    kind,
		Version: p.Version,
		PostID:  id,
	})

	writeOK(w, http.StatusOK, SetLikeResponse{Liked: liked, LikesCount: p.LikesCount, Version: p.Version})
}

func (s server) listComments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.s.GetPost(r.Context(), id, viewer(r)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeInternalError(w, "failed to get post", err)
		return
	}

	comments, err := s.s.ListComments(r.Context(), id, viewer(r))
	if err != nil {
		writeInternalError(w, "failed to list comments", err)
		return
	}

	out := ListCommentsResponse{Comments: make([]Comment, len(comments))}
	for i, v := range comments {
		out.Comments[i] = toComment(v)
	}

	writeOK(w, http.StatusOK, out)
}

func (s server) createComment(w http.ResponseWriter, r *http.Request) {
	v := viewer(r)
	if v == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "failed to decode request")
		return
	}

	if err := validateContent(req.Content, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.s.CreateComment(r.Context(), &storage.CreateCommentParams{
		PostID:   chi.URLParam(r, "id"),
		ParentID: req.ParentID,
		AuthorID: v,
		Content:  req.Content,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		writeInternalError(w, "failed to create comment", err)
		return
	}

	payload, _ := json.Marshal(toComment(c))
	s.hub.Broadcast(realtime.Envelope{
		Channel: realtime.FeedChannel,
		Kind:    realtime.KindCommentInserted,
		Version: c.Version,
		Comment: payload,
	})

	writeOK(w, http.StatusCreated, toComment(c))
}

func (s server) broadcastPost(kind string, p *storage.Post) {
	payload, _ := json.Marshal(toPost(p))

	s.hub.Broadcast(realtime.Envelope{
		Channel: realtime.FeedChannel,
		Kind:    kind,
		Version: p.Version,
		Post:    payload,
	})
}

func extractListPostsParams(r *http.Request) (*storage.ListPostsParams, error) {
	out := storage.ListPostsParams{
		Limit:  defaultLimit,
		Viewer: viewer(r),
	}

	q := r.URL.Query()

	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 || limit > maxLimit {
			return nil, fmt.Errorf("invalid limit")
		}
		out.Limit = limit
	}

	if s := q.Get("offset"); s != "" {
		offset, err := strconv.Atoi(s)
		if err != nil || offset < 0 {
			return nil, fmt.Errorf("invalid offset")
		}
		out.Offset = offset
	}

	if s := q.Get("type"); s != "" {
		if !entities.ValidPostType(entities.PostType(s)) {
			return nil, fmt.Errorf("invalid type")
		}
		out.Type = &s
	}

	if s := q.Get("author"); s != "" {
		out.Author = &s
	}

	if s := q.Get("from"); s != "" {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid from")
		}
		t := time.Unix(sec, 0).UTC()
		out.From = &t
	}

	if s := q.Get("to"); s != "" {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid to")
		}
		t := time.Unix(sec, 0).UTC()
		out.To = &t
	}

	if out.From != nil && out.To != nil && out.To.Before(*out.From) {
		return nil, fmt.Errorf("empty time window")
	}

	return &out, nil
}

func validateContent(content string, hasMedia bool) error {
	if content == "" && !hasMedia {
		return fmt.Errorf("content is empty")
	}
	if utf8.RuneCountInString(content) > entities.MaxContentLength {
		return fmt.Errorf("content exceeds %d characters", entities.MaxContentLength)
	}
	return nil
}

func writeInternalError(w http.ResponseWriter, message string, err error) {
	log.WithError(err).Error(message)
	writeError(w, http.StatusInternalServerError, message)
}
