// Package realtime normalizes heterogeneous push payloads into the event
// shapes consumed by the reconciliation engine and manages per-channel
// subscriptions.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulseboard/feedmirror/internal/entities"
)

// Envelope is the wire shape of a push notification. Delivery is
// at-least-once and order is not guaranteed across channels; per-entity
// monotonicity holds only if Version is honored by the consumer.
type Envelope struct {
	Channel string          `json:"channel"`
	Kind    string          `json:"kind"`
	Version uint64          `json:"version,omitempty"`
	Post    json.RawMessage `json:"post,omitempty"`
	Comment json.RawMessage `json:"comment,omitempty"`
	PostID  string          `json:"post_id,omitempty"`
}

// FeedChannel is the logical channel carrying feed mutations.
const FeedChannel = "feed"

// Wire kinds.
const (
	KindPostInserted    = "post_inserted"
	KindPostUpdated     = "post_updated"
	KindPostDeleted     = "post_deleted"
	KindLikeSet         = "like_set"
	KindLikeUnset       = "like_unset"
	KindCommentInserted = "comment_inserted"
)

// Event is a normalized push event.
type Event interface {
	isEvent()
}

// PostInserted carries the full new record.
type PostInserted struct {
	Post *entities.Post
}

// PostUpdated carries the full record and its server version.
type PostUpdated struct {
	Post *entities.Post
}

// PostDeleted is a tombstone.
type PostDeleted struct {
	ID string
}

// LikeDelta carries a counter instruction only: the event does not hold a
// full record and must not disturb any other field, in particular the local
// viewer's HasLiked flag. Version is the record version of the mutation, used
// to drop re-deliveries and the echo of the viewer's own like.
type LikeDelta struct {
	PostID  string
	Delta   int
	Version uint64
}

// CommentInserted carries the new comment; the parent post's comment count
// moves by one.
type CommentInserted struct {
	Comment *entities.Comment
}

func (PostInserted) isEvent()    {}
func (PostUpdated) isEvent()     {}
func (PostDeleted) isEvent()     {}
func (LikeDelta) isEvent()       {}
func (CommentInserted) isEvent() {}

type postPayload struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"author_id"`
	Content       string    `json:"content"`
	Visibility    string    `json:"visibility"`
	Type          string    `json:"type"`
	MediaURLs     []string  `json:"media_urls"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Pinned        bool      `json:"pinned"`
	LikesCount    int       `json:"likes_count"`
	CommentsCount int       `json:"comments_count"`
	SharesCount   int       `json:"shares_count"`
	HasLiked      bool      `json:"has_liked"`
	Version       uint64    `json:"version"`
}

type commentPayload struct {
	ID         string    `json:"id"`
	PostID     string    `json:"post_id"`
	ParentID   string    `json:"parent_id"`
	AuthorID   string    `json:"author_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	LikesCount int       `json:"likes_count"`
	Version    uint64    `json:"version"`
}

// Normalize converts an envelope into an Event.
func Normalize(env Envelope) (Event, error) {
	switch env.Kind {
	case KindPostInserted, KindPostUpdated:
		var p postPayload
		if err := json.Unmarshal(env.Post, &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal post payload: %w", err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("post payload without id")
		}

		post := toPost(p)
		if post.Version == 0 {
			post.Version = env.Version
		}

		if env.Kind == KindPostInserted {
			return PostInserted{Post: post}, nil
		}
		return PostUpdated{Post: post}, nil

	case KindPostDeleted:
		if env.PostID == "" {
			return nil, fmt.Errorf("delete without post id")
		}
		return PostDeleted{ID: env.PostID}, nil

	case KindLikeSet, KindLikeUnset:
		if env.PostID == "" {
			return nil, fmt.Errorf("like event without post id")
		}
		delta := 1
		if env.Kind == KindLikeUnset {
			delta = -1
		}
		return LikeDelta{PostID: env.PostID, Delta: delta, Version: env.Version}, nil

	case KindCommentInserted:
		var c commentPayload
		if err := json.Unmarshal(env.Comment, &c); err != nil {
			return nil, fmt.Errorf("failed to unmarshal comment payload: %w", err)
		}
		if c.ID == "" || c.PostID == "" {
			return nil, fmt.Errorf("comment payload without id")
		}
		return CommentInserted{Comment: &entities.Comment{
			ID:         c.ID,
			PostID:     c.PostID,
			ParentID:   c.ParentID,
			AuthorID:   c.AuthorID,
			Content:    c.Content,
			CreatedAt:  c.CreatedAt,
			LikesCount: c.LikesCount,
			Version:    c.Version,
			SyncState:  entities.Confirmed,
		}}, nil

	default:
		return nil, fmt.Errorf("unknown event kind %q", env.Kind)
	}
}

func toPost(p postPayload) *entities.Post {
	return &entities.Post{
		ID:            p.ID,
		AuthorID:      p.AuthorID,
		Content:       p.Content,
		Visibility:    entities.Visibility(p.Visibility),
		Type:          entities.PostType(p.Type),
		MediaURLs:     p.MediaURLs,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		Pinned:        p.Pinned,
		LikesCount:    p.LikesCount,
		CommentsCount: p.CommentsCount,
		SharesCount:   p.SharesCount,
		HasLiked:      p.HasLiked,
		Version:       p.Version,
		SyncState:     entities.Confirmed,
	}
}
