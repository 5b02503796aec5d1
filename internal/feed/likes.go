package feed

import (
	"context"
	"errors"

	"github.com/pulseboard/feedmirror/internal/entities"
	"github.com/pulseboard/feedmirror/internal/reconcile"
	"github.com/pulseboard/feedmirror/internal/remote"
)

// likeFlight serializes like mutations per post id. While a call is in
// flight further toggles only move desired; the resolver reads desired at
// issue time, so rapid toggles collapse into one call carrying the final
// state, and queued toggles are resolved against the confirmed server
// answer rather than the stale optimistic one.
type likeFlight struct {
	desired   bool
	confirmed bool
	dirty     bool
	active    bool
}

// ToggleLike flips the viewer's like on a post. The optimistic flip is
// visible immediately; resolution against the server happens asynchronously
// and failures reach the error handler.
func (s *Store) ToggleLike(ctx context.Context, id string) error {
	if _, err := s.viewer(); err != nil {
		return s.fail("toggle like", err)
	}

	started, epoch, err := s.queueLikeToggle(id)
	if err != nil {
		return s.fail("toggle like", err)
	}

	if started {
		go s.resolveLike(context.WithoutCancel(ctx), id, epoch)
	}

	return nil
}

// queueLikeToggle applies the optimistic flip and records the viewer's
// latest intent. It reports whether the caller must start a resolver.
func (s *Store) queueLikeToggle(id string) (bool, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.find(id)
	if !ok {
		return false, 0, remote.ErrNotFound
	}

	fl := s.likes[id]
	if fl == nil {
		fl = &likeFlight{desired: p.HasLiked, confirmed: p.HasLiked}
		s.likes[id] = fl
	}

	fl.desired = !fl.desired
	fl.dirty = true

	delta := -1
	if fl.desired {
		delta = 1
	}

	s.list = reconcile.Apply(s.list, s.filter, reconcile.LikeMark{ID: id, HasLiked: fl.desired})
	s.list = reconcile.Apply(s.list, s.filter, reconcile.CounterDelta{ID: id, Likes: delta})
	s.list = reconcile.Apply(s.list, s.filter, reconcile.SetState{ID: id, State: entities.Pending})

	if fl.active {
		return false, 0, nil
	}

	fl.active = true

	return true, s.epoch, nil
}

func (s *Store) resolveLike(ctx context.Context, id string, epoch uint64) {
	for {
		s.mu.Lock()
		fl := s.likes[id]
		if fl == nil || s.closed || epoch != s.epoch {
			// the view this toggle was issued against is gone
			delete(s.likes, id)
			s.mu.Unlock()
			return
		}

		desired := fl.desired
		confirmed := fl.confirmed
		fl.dirty = false
		s.mu.Unlock()

		res, err := s.remote.SetLike(ctx, id, desired)
		if err != nil {
			var conflict *remote.ConflictError
			if errors.As(err, &conflict) {
				// the server already diverged: trust it instead of forcing
				// the local guess
				s.refetch(ctx, id, epoch)

				s.mu.Lock()
				delete(s.likes, id)
				s.mu.Unlock()
				return
			}

			s.rollbackLike(id, epoch, confirmed)
			_ = s.fail("toggle like", err)
			return
		}

		s.mu.Lock()
		fl = s.likes[id]
		if fl == nil || s.closed || epoch != s.epoch {
			delete(s.likes, id)
			s.mu.Unlock()
			return
		}

		fl.confirmed = res.Liked
		if !fl.dirty {
			// settled: adopt the server's absolute count and version, so
			// the broadcast echo of this same mutation cannot re-count it
			s.list = reconcile.Apply(s.list, s.filter, reconcile.LikeSync{ID: id, Liked: res.Liked, Likes: res.Likes, Version: res.Version})
			s.list = reconcile.Apply(s.list, s.filter, reconcile.SetState{ID: id, State: entities.Confirmed})
			delete(s.likes, id)
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

// rollbackLike restores the last confirmed like state and reverts the
// optimistic counter delta, if any.
func (s *Store) rollbackLike(id string, epoch uint64, confirmed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.likes, id)

	if s.closed || epoch != s.epoch {
		return
	}

	p, ok := s.find(id)
	if !ok {
		return
	}

	if p.HasLiked != confirmed {
		delta := -1
		if confirmed {
			delta = 1
		}
		s.list = reconcile.Apply(s.list, s.filter, reconcile.CounterDelta{ID: id, Likes: delta})
	}

	s.list = reconcile.Apply(s.list, s.filter, reconcile.LikeMark{ID: id, HasLiked: confirmed})
	s.list = reconcile.Apply(s.list, s.filter, reconcile.SetState{ID: id, State: entities.Confirmed})
}

// refetch merges the authoritative record for id, including the viewer flag.
func (s *Store) refetch(ctx context.Context, id string, epoch uint64) {
	rec, err := s.remote.FetchPost(ctx, id)
	if err != nil {
		log.WithError(err).WithField("id", id).Error("failed to refetch record")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || epoch != s.epoch {
		return
	}

	s.list = reconcile.Apply(s.list, s.filter, reconcile.PushUpdate{Post: rec})
	s.list = reconcile.Apply(s.list, s.filter, reconcile.LikeMark{ID: id, HasLiked: rec.HasLiked})
	s.list = reconcile.Apply(s.list, s.filter, reconcile.SetState{ID: id, State: entities.Confirmed})
}
