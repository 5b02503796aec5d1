// Package reconcile implements the pure merge function that folds pages,
// optimistic mutations and push events into the canonical feed list.
//
// Apply never fails: malformed or unknown-id changes degrade to a no-op so
// the caller is free to feed it at-least-once push deliveries unguarded.
package reconcile

import (
	"sort"

	"github.com/pulseboard/feedmirror/internal/entities"
)

// Change is one incoming modification of the canonical list.
type Change interface {
	isChange()
}

// PageAppend merges a fetched page into the list. An item whose id is
// already present is overwritten by the fetched record, unless the held
// entry still has an optimistic change pending, in which case the local
// entry wins until it is confirmed or rolled back.
type PageAppend struct {
	Items []*entities.Post
}

// OptimisticApply inserts a locally created, not-yet-confirmed entry at the
// position its CreatedAt/pin status dictates. The entry must carry a temp id.
type OptimisticApply struct {
	Post *entities.Post
}

// OptimisticConfirm replaces the temp-id entry with the server canonical
// record. A missing temp id is a no-op (the list was discarded meanwhile).
type OptimisticConfirm struct {
	TempID string
	Post   *entities.Post
}

// OptimisticRollback removes the temp-id entry entirely.
type OptimisticRollback struct {
	TempID string
}

// SetFields writes the mutable non-counter fields of the given record over
// the held entry with the same id. It serves both the optimistic phase of an
// in-place mutation (edit/pin) and its rollback to the pre-mutation
// snapshot; counters are left alone so interleaved pushed deltas are not
// lost.
type SetFields struct {
	Post *entities.Post
}

// SetState transitions the client-only sync state of an entry.
type SetState struct {
	ID    string
	State entities.SyncState
}

// Reinsert puts back a previously removed entry after a failed delete.
type Reinsert struct {
	Post *entities.Post
}

// PushInsert applies a remote INSERT. It is ignored when the record does not
// match the active filter or when the id is already held (idempotent
// re-delivery).
type PushInsert struct {
	Post *entities.Post
}

// PushUpdate merges a remote UPDATE. A version older than the held one is
// ignored; an update that makes the record fail the active filter removes it.
type PushUpdate struct {
	Post *entities.Post
}

// PushDelete removes the id unconditionally. Tombstone wins.
type PushDelete struct {
	ID string
}

// CounterDelta mutates aggregate counters by signed deltas, clamped at zero.
// HasLiked is deliberately untouched: only the viewer's own like action may
// change it. A nonzero Version makes the delta idempotent: it is dropped
// when the entry already carries that version or a newer one, and advances
// the entry's version when it lands. Optimistic local deltas carry a zero
// Version and always apply.
type CounterDelta struct {
	ID       string
	Likes    int
	Comments int
	Shares   int
	Version  uint64
}

// LikeMark sets the viewer-relative HasLiked flag.
type LikeMark struct {
	ID       string
	HasLiked bool
}

// LikeSync adopts the server-confirmed outcome of the viewer's own like
// mutation: the absolute like count, the viewer flag and the record version,
// replacing whatever optimistic deltas were stacked in the meantime.
type LikeSync struct {
	ID      string
	Liked   bool
	Likes   int
	Version uint64
}

func (PageAppend) isChange()         {}
func (OptimisticApply) isChange()    {}
func (OptimisticConfirm) isChange()  {}
func (OptimisticRollback) isChange() {}
func (SetFields) isChange()          {}
func (SetState) isChange()           {}
func (Reinsert) isChange()           {}
func (PushInsert) isChange()         {}
func (PushUpdate) isChange()         {}
func (PushDelete) isChange()         {}
func (CounterDelta) isChange()       {}
func (LikeMark) isChange()           {}
func (LikeSync) isChange()           {}

// Apply produces the next canonical list. The input list is not modified;
// entries reachable from both slices are cloned before being changed.
func Apply(list []*entities.Post, filter entities.Filter, change Change) []*entities.Post {
	switch c := change.(type) {
	case PageAppend:
		return applyPage(list, c.Items)
	case OptimisticApply:
		if c.Post == nil || !filter.Matches(c.Post) {
			return list
		}
		if indexOf(list, c.Post.ID) >= 0 {
			return list
		}
		return insertSorted(list, c.Post.Clone())
	case OptimisticConfirm:
		return confirm(list, filter, c.TempID, c.Post)
	case OptimisticRollback:
		return remove(list, c.TempID)
	case SetFields:
		return setFields(list, c.Post)
	case SetState:
		i := indexOf(list, c.ID)
		if i < 0 {
			return list
		}
		out := snapshot(list)
		p := out[i].Clone()
		p.SyncState = c.State
		out[i] = p
		return out
	case Reinsert:
		if c.Post == nil || indexOf(list, c.Post.ID) >= 0 {
			return list
		}
		return insertSorted(list, c.Post.Clone())
	case PushInsert:
		if c.Post == nil || !filter.Matches(c.Post) || indexOf(list, c.Post.ID) >= 0 {
			return list
		}
		p := c.Post.Clone()
		p.SyncState = entities.Confirmed
		return insertSorted(list, p)
	case PushUpdate:
		return update(list, filter, c.Post)
	case PushDelete:
		return remove(list, c.ID)
	case CounterDelta:
		return counters(list, c)
	case LikeMark:
		i := indexOf(list, c.ID)
		if i < 0 {
			return list
		}
		out := snapshot(list)
		p := out[i].Clone()
		p.HasLiked = c.HasLiked
		out[i] = p
		return out
	case LikeSync:
		i := indexOf(list, c.ID)
		if i < 0 {
			return list
		}
		out := snapshot(list)
		p := out[i].Clone()
		p.HasLiked = c.Liked
		p.LikesCount = clamp(c.Likes)
		if c.Version > p.Version {
			p.Version = c.Version
		}
		out[i] = p
		return out
	default:
		return list
	}
}

func applyPage(list []*entities.Post, items []*entities.Post) []*entities.Post {
	if len(items) == 0 {
		return list
	}

	out := snapshot(list)

	for _, item := range items {
		if item == nil {
			continue
		}

		i := indexOf(out, item.ID)
		if i < 0 {
			out = append(out, confirmed(item))
			continue
		}

		// an optimistic change on this id is still in flight, keep it
		if out[i].SyncState == entities.Pending {
			continue
		}

		out[i] = confirmed(item)
	}

	sortPosts(out)

	return out
}

func confirm(list []*entities.Post, filter entities.Filter, tempID string, canonical *entities.Post) []*entities.Post {
	if canonical == nil {
		return list
	}

	i := indexOf(list, tempID)
	if i < 0 {
		return list
	}

	// the confirmed record may no longer belong to the active view
	if !filter.Matches(canonical) {
		return remove(list, tempID)
	}

	// a refetch or push already delivered the canonical record
	if indexOf(list, canonical.ID) >= 0 {
		return remove(list, tempID)
	}

	out := snapshot(list)
	out[i] = confirmed(canonical)
	sortPosts(out)

	return out
}

func setFields(list []*entities.Post, snap *entities.Post) []*entities.Post {
	if snap == nil {
		return list
	}

	i := indexOf(list, snap.ID)
	if i < 0 {
		return list
	}

	out := snapshot(list)
	p := out[i].Clone()
	p.Content = snap.Content
	p.MediaURLs = append([]string(nil), snap.MediaURLs...)
	p.Visibility = snap.Visibility
	p.Pinned = snap.Pinned
	p.UpdatedAt = snap.UpdatedAt
	p.SyncState = snap.SyncState
	out[i] = p
	sortPosts(out)

	return out
}

func update(list []*entities.Post, filter entities.Filter, rec *entities.Post) []*entities.Post {
	if rec == nil {
		return list
	}

	i := indexOf(list, rec.ID)
	if i < 0 {
		return list
	}

	// monotonic-version guard: a stale push must not clobber a newer
	// confirmation
	if rec.Version < list[i].Version {
		return list
	}

	out := snapshot(list)
	p := confirmed(rec)
	p.HasLiked = out[i].HasLiked
	out[i] = p
	sortPosts(out)

	if !filter.Matches(p) {
		return remove(out, p.ID)
	}

	return out
}

func counters(list []*entities.Post, c CounterDelta) []*entities.Post {
	i := indexOf(list, c.ID)
	if i < 0 {
		return list
	}

	if c.Version != 0 && c.Version <= list[i].Version {
		return list
	}

	out := snapshot(list)
	p := out[i].Clone()
	if c.Version != 0 {
		p.Version = c.Version
	}
	p.LikesCount = clamp(p.LikesCount + c.Likes)
	p.CommentsCount = clamp(p.CommentsCount + c.Comments)
	p.SharesCount = clamp(p.SharesCount + c.Shares)
	out[i] = p

	return out
}

func remove(list []*entities.Post, id string) []*entities.Post {
	i := indexOf(list, id)
	if i < 0 {
		return list
	}

	out := make([]*entities.Post, 0, len(list)-1)
	out = append(out, list[:i]...)
	out = append(out, list[i+1:]...)

	return out
}

func insertSorted(list []*entities.Post, p *entities.Post) []*entities.Post {
	out := snapshot(list)
	out = append(out, p)
	sortPosts(out)

	return out
}

func confirmed(p *entities.Post) *entities.Post {
	out := p.Clone()
	out.SyncState = entities.Confirmed

	return out
}

func indexOf(list []*entities.Post, id string) int {
	for i, p := range list {
		if p.ID == id {
			return i
		}
	}

	return -1
}

func snapshot(list []*entities.Post) []*entities.Post {
	return append([]*entities.Post(nil), list...)
}

func sortPosts(list []*entities.Post) {
	sort.SliceStable(list, func(i, j int) bool { return entities.Less(list[i], list[j]) })
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}

	return v
}
