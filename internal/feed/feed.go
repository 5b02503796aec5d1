// Package feed contains the stateful container of the mirrored activity
// feed: the canonical list scoped to the active filter, the pagination
// controller and the optimistic mutation executor.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/pulseboard/feedmirror/internal/auth"
	"github.com/pulseboard/feedmirror/internal/entities"
	"github.com/pulseboard/feedmirror/internal/realtime"
	"github.com/pulseboard/feedmirror/internal/reconcile"
	"github.com/pulseboard/feedmirror/internal/remote"
)

var log = logrus.WithField("package", "feed")

const defaultPageSize = 20

// Store owns the canonical list. Every update is a lock, pure reconcile,
// swap sequence; the lock is never held across a remote call.
type Store struct {
	remote remote.API
	auth   auth.Source
	onErr  func(error)
	now    func() time.Time

	mu     sync.Mutex
	list   []*entities.Post
	filter entities.Filter

	// epoch invalidates in-flight fetch results and resolutions against
	// entries a refetch replaces; any refetch bumps it. gen is bumped
	// only when the view is discarded and guards resolutions of temp
	// entries, which a refresh deliberately keeps.
	epoch uint64
	gen   uint64

	pageSize    int
	loadedPages int
	total       *int
	hasMore     bool
	loading     bool
	readOnly    bool
	closed      bool

	likes        map[string]*likeFlight
	threads      map[string]*commentThread
	seenComments map[string]struct{}
	fetches      singleflight.Group

	handles []realtime.Handle
}

// Option ...
type Option func(*Store)

// WithPageSize overrides the fetch page size.
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithErrorHandler installs a callback for errors surfaced by asynchronous
// resolutions (like toggles, realtime application).
func WithErrorHandler(fn func(error)) Option {
	return func(s *Store) { s.onErr = fn }
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.now = fn }
}

// New creates a store around the given collaborators.
func New(api remote.API, src auth.Source, opts ...Option) *Store {
	s := &Store{
		remote:       api,
		auth:         src,
		now:          time.Now,
		pageSize:     defaultPageSize,
		likes:        map[string]*likeFlight{},
		threads:      map[string]*commentThread{},
		seenComments: map[string]struct{}{},
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

// Posts returns a snapshot of the canonical list.
func (s *Store) Posts() []*entities.Post {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*entities.Post, len(s.list))
	for i, p := range s.list {
		out[i] = p.Clone()
	}

	return out
}

// Post returns a copy of the held record for id.
func (s *Store) Post(id string) (*entities.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.list {
		if p.ID == id {
			return p.Clone(), true
		}
	}

	return nil, false
}

// Status is a snapshot of the controller state.
type Status struct {
	Filter   entities.Filter
	Loaded   int
	HasMore  bool
	Loading  bool
	ReadOnly bool
}

// Status ...
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		Filter:   s.filter,
		Loaded:   len(s.list),
		HasMore:  s.hasMore,
		Loading:  s.loading,
		ReadOnly: s.readOnly,
	}
}

// HasMore ...
func (s *Store) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hasMore
}

// SetFilter discards the current view and restarts at page zero under the
// new filter. Results of fetches in flight for the previous filter are
// dropped when they arrive.
func (s *Store) SetFilter(ctx context.Context, f entities.Filter) error {
	if err := f.Validate(); err != nil {
		return &remote.ValidationError{Reason: err.Error()}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("store is closed")
	}

	s.epoch++
	s.gen++
	epoch := s.epoch
	s.filter = f
	s.list = nil
	s.loadedPages = 0
	s.total = nil
	s.hasMore = true
	s.loading = true
	s.mu.Unlock()

	return s.fetchPage(ctx, f, epoch, 0)
}

// LoadMore fetches the next page. It is a no-op while a fetch for the same
// filter is in flight or when the server has nothing more to give.
func (s *Store) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.loading || !s.hasMore {
		s.mu.Unlock()
		return nil
	}

	s.loading = true
	epoch := s.epoch
	f := s.filter
	offset := s.loadedPages * s.pageSize
	s.mu.Unlock()

	return s.fetchPage(ctx, f, epoch, offset)
}

// Refresh re-fetches page zero for the active filter and replaces the view,
// keeping not-yet-confirmed local entries. Fetches in flight are invalidated.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("store is closed")
	}

	s.epoch++
	epoch := s.epoch
	f := s.filter
	s.loadedPages = 0
	s.total = nil
	s.loading = true

	var pending []*entities.Post
	for _, p := range s.list {
		if entities.IsTempID(p.ID) {
			pending = append(pending, p)
		}
	}
	s.list = pending
	s.mu.Unlock()

	return s.fetchPage(ctx, f, epoch, 0)
}

func (s *Store) fetchPage(ctx context.Context, f entities.Filter, epoch uint64, offset int) error {
	page, err := s.remote.FetchPage(ctx, f, offset, s.pageSize)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || epoch != s.epoch {
		// stale-response guard: a filter change outran this fetch
		return nil
	}

	s.loading = false

	if err != nil {
		return fmt.Errorf("failed to fetch page at %d: %w", offset, err)
	}

	s.list = reconcile.Apply(s.list, s.filter, reconcile.PageAppend{Items: page.Items})
	s.loadedPages++
	s.total = page.TotalCount

	s.hasMore = len(page.Items) == s.pageSize &&
		(s.total == nil || offset+len(page.Items) < *s.total)

	return nil
}

// AttachRealtime subscribes the store to a push channel. The subscription is
// released by Close.
func (s *Store) AttachRealtime(ctx context.Context, m *realtime.Manager, channel string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.Unlock()

	h, err := m.Subscribe(ctx, channel, s.ApplyEvent)
	if err != nil {
		return fmt.Errorf("failed to attach realtime channel: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		h.Unsubscribe()
		return fmt.Errorf("store is closed")
	}
	s.handles = append(s.handles, h)
	s.mu.Unlock()

	return nil
}

// ApplyEvent folds a normalized push event into the canonical state.
func (s *Store) ApplyEvent(ev realtime.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	switch e := ev.(type) {
	case realtime.PostInserted:
		s.list = reconcile.Apply(s.list, s.filter, reconcile.PushInsert{Post: e.Post})
	case realtime.PostUpdated:
		s.list = reconcile.Apply(s.list, s.filter, reconcile.PushUpdate{Post: e.Post})
	case realtime.PostDeleted:
		s.list = reconcile.Apply(s.list, s.filter, reconcile.PushDelete{ID: e.ID})
		delete(s.threads, e.ID)
	case realtime.LikeDelta:
		s.list = reconcile.Apply(s.list, s.filter, reconcile.CounterDelta{ID: e.PostID, Likes: e.Delta, Version: e.Version})
	case realtime.CommentInserted:
		s.applyCommentInserted(e.Comment)
	default:
		log.Warnf("skip unknown event %T", ev)
	}
}

// Close tears the store down. In-flight results arriving afterwards are
// dropped; realtime subscriptions are released.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	s.closed = true
	s.epoch++
	s.gen++
	s.likes = map[string]*likeFlight{}
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()

	// released outside the lock: the manager invokes callbacks under its
	// own lock and those callbacks take ours
	for _, h := range handles {
		h.Unsubscribe()
	}
}

// fail wraps the terminal error of a mutation: auth failures downgrade the
// store and every surfaced error reaches the error handler.
func (s *Store) fail(op string, err error) error {
	err = fmt.Errorf("%s: %w", op, err)

	if remote.IsAuthError(err) {
		s.downgrade()
	}

	if s.onErr != nil {
		s.onErr(err)
	}

	return err
}

// downgrade clears all pending optimistic state and makes the store
// read-only.
func (s *Store) downgrade() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.readOnly = true
	s.likes = map[string]*likeFlight{}

	out := s.list[:0:0]
	for _, p := range s.list {
		if entities.IsTempID(p.ID) {
			continue
		}
		if p.SyncState == entities.Pending {
			p = p.Clone()
			p.SyncState = entities.Failed
		}
		out = append(out, p)
	}
	s.list = out
}
