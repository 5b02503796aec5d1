// Package remote contains the interface of the server-authoritative store.
package remote

import (
	"context"

	"github.com/pulseboard/feedmirror/internal/entities"
)

//go:generate mockgen -destination=./mock/remote.go -package=mock -source=remote.go

// Page is one fetched slice of the server feed. TotalCount is nil when the
// server does not report a total for the query.
type Page struct {
	Items      []*entities.Post
	TotalCount *int
}

// API provides methods for interacting with the remote store. Items returned
// by reads are server-canonical records including pre-computed counters and
// the calling viewer's HasLiked flag.
type API interface {
	FetchPage(ctx context.Context, f entities.Filter, offset, limit int) (*Page, error)
	FetchPost(ctx context.Context, id string) (*entities.Post, error)

	CreatePost(ctx context.Context, draft *entities.Post) (*entities.Post, error)
	EditPost(ctx context.Context, id, content string) error
	DeletePost(ctx context.Context, id string) error
	PinPost(ctx context.Context, id string, pinned bool) error
	SharePost(ctx context.Context, id string) error

	// SetLike is an idempotent desired-state toggle endpoint. It returns the
	// confirmed outcome, including the record version the mutation produced.
	SetLike(ctx context.Context, id string, desired bool) (*LikeResult, error)

	FetchComments(ctx context.Context, postID string) ([]*entities.Comment, error)
	CreateComment(ctx context.Context, draft *entities.Comment) (*entities.Comment, error)
}

// LikeResult is the server-confirmed outcome of a like mutation.
type LikeResult struct {
	Liked   bool
	Likes   int
	Version uint64
}

// Uploader pushes media files to the remote media store.
type Uploader interface {
	Upload(ctx context.Context, name, contentType string, data []byte) (string, error)
}
