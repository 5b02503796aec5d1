package feed

import (
	"context"
	"errors"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/pulseboard/feedmirror/internal/entities"
	"github.com/pulseboard/feedmirror/internal/reconcile"
	"github.com/pulseboard/feedmirror/internal/remote"
)

// sanitizer strips script-like markup while keeping ordinary user content.
var sanitizer = bluemonday.UGCPolicy()

// Draft is the input of CreatePost.
type Draft struct {
	Content    string
	Type       entities.PostType
	Visibility entities.Visibility
	MediaURLs  []string
}

func sanitizeContent(content string, allowEmpty bool) (string, error) {
	if len([]rune(content)) > entities.MaxContentLength {
		// reject, do not truncate
		return "", &remote.ValidationError{Reason: "content exceeds length bound"}
	}

	out := strings.TrimSpace(sanitizer.Sanitize(content))
	if out == "" && !allowEmpty {
		return "", &remote.ValidationError{Reason: "content is empty"}
	}

	return out, nil
}

// viewer rejects mutation entry points when the store is unauthenticated or
// has been downgraded to read-only.
func (s *Store) viewer() (string, error) {
	id := s.auth.ViewerID()
	if id == "" {
		return "", &remote.AuthError{Reason: "viewer is not authenticated"}
	}

	s.mu.Lock()
	readOnly := s.readOnly
	s.mu.Unlock()

	if readOnly {
		return "", &remote.AuthError{Reason: "store is read-only"}
	}

	return id, nil
}

// CreatePost applies the draft optimistically under a temp id and swaps in
// the canonical record on confirmation; on failure the temp entry is removed
// entirely.
func (s *Store) CreatePost(ctx context.Context, d Draft) (*entities.Post, error) {
	viewer, err := s.viewer()
	if err != nil {
		return nil, s.fail("create post", err)
	}

	content, err := sanitizeContent(d.Content, len(d.MediaURLs) > 0)
	if err != nil {
		return nil, s.fail("create post", err)
	}

	if d.Type == "" {
		d.Type = entities.TypeText
	}
	if !entities.ValidPostType(d.Type) {
		return nil, s.fail("create post", &remote.ValidationError{Reason: "unknown post type"})
	}
	if d.Visibility == "" {
		d.Visibility = entities.VisibilityPublic
	}

	now := s.now()
	temp := &entities.Post{
		ID:         entities.NewTempID(),
		AuthorID:   viewer,
		Content:    content,
		Visibility: d.Visibility,
		Type:       d.Type,
		MediaURLs:  append([]string(nil), d.MediaURLs...),
		CreatedAt:  now,
		UpdatedAt:  now,
		SyncState:  entities.Pending,
	}

	s.mu.Lock()
	gen := s.gen
	s.list = reconcile.Apply(s.list, s.filter, reconcile.OptimisticApply{Post: temp})
	s.mu.Unlock()

	canonical, err := s.remote.CreatePost(ctx, temp)
	if err != nil {
		s.mu.Lock()
		// gen, not epoch: a refresh keeps the temp entry, so a create
		// resolving after one must still settle it
		if !s.closed && gen == s.gen {
			s.list = reconcile.Apply(s.list, s.filter, reconcile.OptimisticRollback{TempID: temp.ID})
		}
		s.mu.Unlock()

		return nil, s.fail("create post", err)
	}

	s.mu.Lock()
	if !s.closed && gen == s.gen {
		s.list = reconcile.Apply(s.list, s.filter, reconcile.OptimisticConfirm{TempID: temp.ID, Post: canonical})
	}
	s.mu.Unlock()

	return canonical.Clone(), nil
}

// EditPost rewrites the content of an owned post. Confirmation is
// last-confirmed-write-wins for non-counter fields.
func (s *Store) EditPost(ctx context.Context, id, content string) error {
	if _, err := s.viewer(); err != nil {
		return s.fail("edit post", err)
	}

	content, err := sanitizeContent(content, false)
	if err != nil {
		return s.fail("edit post", err)
	}

	s.mu.Lock()
	cur, ok := s.find(id)
	if !ok {
		s.mu.Unlock()
		return s.fail("edit post", remote.ErrNotFound)
	}

	snap := cur.Clone()
	epoch := s.epoch

	next := cur.Clone()
	next.Content = content
	next.UpdatedAt = s.now()
	next.SyncState = entities.Pending
	s.list = reconcile.Apply(s.list, s.filter, reconcile.SetFields{Post: next})
	s.mu.Unlock()

	if err := s.remote.EditPost(ctx, id, content); err != nil {
		s.restoreSnapshot(epoch, snap)
		return s.fail("edit post", err)
	}

	s.confirmInPlace(epoch, id)

	return nil
}

// PinPost hoists (or releases) a post. Pinned entries order by UpdatedAt, so
// the optimistic apply also bumps it.
func (s *Store) PinPost(ctx context.Context, id string, pinned bool) error {
	if _, err := s.viewer(); err != nil {
		return s.fail("pin post", err)
	}

	s.mu.Lock()
	cur, ok := s.find(id)
	if !ok {
		s.mu.Unlock()
		return s.fail("pin post", remote.ErrNotFound)
	}

	snap := cur.Clone()
	epoch := s.epoch

	next := cur.Clone()
	next.Pinned = pinned
	next.UpdatedAt = s.now()
	next.SyncState = entities.Pending
	s.list = reconcile.Apply(s.list, s.filter, reconcile.SetFields{Post: next})
	s.mu.Unlock()

	if err := s.remote.PinPost(ctx, id, pinned); err != nil {
		s.restoreSnapshot(epoch, snap)
		return s.fail("pin post", err)
	}

	s.confirmInPlace(epoch, id)

	return nil
}

// DeletePost removes the post optimistically and reinserts the snapshot when
// the server rejects the delete. A not-found answer counts as success.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	if _, err := s.viewer(); err != nil {
		return s.fail("delete post", err)
	}

	s.mu.Lock()
	cur, ok := s.find(id)
	if !ok {
		s.mu.Unlock()
		return s.fail("delete post", remote.ErrNotFound)
	}

	snap := cur.Clone()
	epoch := s.epoch
	s.list = reconcile.Apply(s.list, s.filter, reconcile.PushDelete{ID: id})
	delete(s.threads, id)
	s.mu.Unlock()

	err := s.remote.DeletePost(ctx, id)
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		s.mu.Lock()
		if !s.closed && epoch == s.epoch {
			s.list = reconcile.Apply(s.list, s.filter, reconcile.Reinsert{Post: snap})
		}
		s.mu.Unlock()

		return s.fail("delete post", err)
	}

	return nil
}

// SharePost bumps the share counter by a signed delta before the call and
// reverts the delta on failure, so interleaved pushed counter updates are
// never lost.
func (s *Store) SharePost(ctx context.Context, id string) error {
	if _, err := s.viewer(); err != nil {
		return s.fail("share post", err)
	}

	s.mu.Lock()
	if _, ok := s.find(id); !ok {
		s.mu.Unlock()
		return s.fail("share post", remote.ErrNotFound)
	}

	epoch := s.epoch
	s.list = reconcile.Apply(s.list, s.filter, reconcile.CounterDelta{ID: id, Shares: 1})
	s.mu.Unlock()

	if err := s.remote.SharePost(ctx, id); err != nil {
		s.mu.Lock()
		if !s.closed && epoch == s.epoch {
			s.list = reconcile.Apply(s.list, s.filter, reconcile.CounterDelta{ID: id, Shares: -1})
		}
		s.mu.Unlock()

		return s.fail("share post", err)
	}

	return nil
}

// find must be called with mu held.
func (s *Store) find(id string) (*entities.Post, bool) {
	for _, p := range s.list {
		if p.ID == id {
			return p, true
		}
	}

	return nil, false
}

func (s *Store) restoreSnapshot(epoch uint64, snap *entities.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || epoch != s.epoch {
		return
	}

	s.list = reconcile.Apply(s.list, s.filter, reconcile.SetFields{Post: snap})
}

func (s *Store) confirmInPlace(epoch uint64, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || epoch != s.epoch {
		return
	}

	s.list = reconcile.Apply(s.list, s.filter, reconcile.SetState{ID: id, State: entities.Confirmed})
}
