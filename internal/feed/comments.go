package feed

import (
	"context"
	"fmt"

	"github.com/pulseboard/feedmirror/internal/entities"
	"github.com/pulseboard/feedmirror/internal/reconcile"
)

// commentThread is the lazily fetched comment list of one post.
type commentThread struct {
	list   []*entities.Comment
	loaded bool
}

// Comments returns the comment list for a post, fetching it on first
// expansion. Concurrent first expansions of the same post share one fetch.
func (s *Store) Comments(ctx context.Context, postID string) ([]*entities.Comment, error) {
	s.mu.Lock()
	if th, ok := s.threads[postID]; ok && th.loaded {
		out := cloneComments(th.list)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	v, err, _ := s.fetches.Do(postID, func() (interface{}, error) {
		items, err := s.remote.FetchComments(ctx, postID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch comments for %s: %w", postID, err)
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		if s.closed {
			return nil, fmt.Errorf("store is closed")
		}

		th, ok := s.threads[postID]
		if !ok {
			th = &commentThread{}
			s.threads[postID] = th
		}

		th.list = reconcile.ApplyComments(th.list, reconcile.CommentList{Items: items})
		th.loaded = true

		for _, c := range th.list {
			s.seenComments[c.ID] = struct{}{}
		}

		return cloneComments(th.list), nil
	})
	if err != nil {
		return nil, err
	}

	return v.([]*entities.Comment), nil
}

// AddComment appends a comment optimistically, incrementing the parent
// post's comment counter by the same rollback-safe delta discipline as the
// other mutations; a failure reverts both the list and the counter.
func (s *Store) AddComment(ctx context.Context, postID, parentID, content string) (*entities.Comment, error) {
	viewer, err := s.viewer()
	if err != nil {
		return nil, s.fail("add comment", err)
	}

	content, err = sanitizeContent(content, false)
	if err != nil {
		return nil, s.fail("add comment", err)
	}

	// adding implies the thread is expanded
	if _, err := s.Comments(ctx, postID); err != nil {
		return nil, s.fail("add comment", err)
	}

	temp := &entities.Comment{
		ID:        entities.NewTempID(),
		PostID:    postID,
		ParentID:  parentID,
		AuthorID:  viewer,
		Content:   content,
		CreatedAt: s.now(),
		SyncState: entities.Pending,
	}

	s.mu.Lock()
	th := s.threads[postID]
	if th == nil {
		th = &commentThread{loaded: true}
		s.threads[postID] = th
	}
	th.list = reconcile.ApplyComments(th.list, reconcile.CommentApply{Comment: temp})
	s.list = reconcile.Apply(s.list, s.filter, reconcile.CounterDelta{ID: postID, Comments: 1})
	epoch := s.epoch
	s.mu.Unlock()

	canonical, err := s.remote.CreateComment(ctx, temp)
	if err != nil {
		s.mu.Lock()
		if th := s.threads[postID]; th != nil {
			th.list = reconcile.ApplyComments(th.list, reconcile.CommentRollback{TempID: temp.ID})
		}
		// a refetch since the optimistic increment already replaced the
		// counter with the server's value, so only revert our own delta
		if !s.closed && epoch == s.epoch {
			s.list = reconcile.Apply(s.list, s.filter, reconcile.CounterDelta{ID: postID, Comments: -1})
		}
		s.mu.Unlock()

		return nil, s.fail("add comment", err)
	}

	s.mu.Lock()
	if th := s.threads[postID]; th != nil {
		th.list = reconcile.ApplyComments(th.list, reconcile.CommentConfirm{TempID: temp.ID, Comment: canonical})
	}
	s.seenComments[canonical.ID] = struct{}{}
	s.mu.Unlock()

	return canonical.Clone(), nil
}

// applyCommentInserted must be called with mu held. Re-deliveries and the
// echo of the viewer's own confirmed comment are deduplicated by id, so the
// parent counter moves at most once per comment.
func (s *Store) applyCommentInserted(c *entities.Comment) {
	if c == nil {
		return
	}

	if _, ok := s.seenComments[c.ID]; ok {
		return
	}
	s.seenComments[c.ID] = struct{}{}

	if th, ok := s.threads[c.PostID]; ok && th.loaded {
		th.list = reconcile.ApplyComments(th.list, reconcile.CommentPushInsert{Comment: c})
	}

	s.list = reconcile.Apply(s.list, s.filter, reconcile.CounterDelta{ID: c.PostID, Comments: 1})
}

func cloneComments(list []*entities.Comment) []*entities.Comment {
	out := make([]*entities.Comment, len(list))
	for i, c := range list {
		out[i] = c.Clone()
	}

	return out
}
