// Package storage contains a storage interface.
//
// It backs the reference feed backend, the server-authoritative store the
// mirror engine synchronizes against.
package storage

import (
	"context"
	"fmt"
	"time"
)

//go:generate mockgen -destination=./mock/storage.go -package=mock -source=storage.go

// ErrNotFound ...
var ErrNotFound = fmt.Errorf("not found")

// Storage provides methods for interacting with database.
type Storage interface {
	ListPosts(ctx context.Context, p *ListPostsParams) ([]*Post, int, error)
	GetPost(ctx context.Context, id, viewer string) (*Post, error)
	CreatePost(ctx context.Context, p *CreatePostParams) (*Post, error)
	EditPost(ctx context.Context, id, author, content string) (*Post, error)
	DeletePost(ctx context.Context, id, author string) error
	PinPost(ctx context.Context, id string, pinned bool) (*Post, error)
	SharePost(ctx context.Context, id string) (*Post, error)

	// SetLike sets the viewer's like to the desired state and returns the
	// refreshed post together with the confirmed state.
	SetLike(ctx context.Context, id, viewer string, liked bool) (*Post, bool, error)

	ListComments(ctx context.Context, postID, viewer string) ([]*Comment, error)
	CreateComment(ctx context.Context, p *CreateCommentParams) (*Comment, error)
}

// ListPostsParams ...
type ListPostsParams struct {
	Type   *string
	Author *string
	From   *time.Time
	To     *time.Time
	Offset int
	Limit  int
	Viewer string
}

// CreatePostParams ...
type CreatePostParams struct {
	AuthorID   string
	Content    string
	Visibility string
	Type       string
	MediaURLs  []string
}

// CreateCommentParams ...
type CreateCommentParams struct {
	PostID   string
	ParentID string
	AuthorID string
	Content  string
}

// Post ...
type Post struct {
	ID            string
	AuthorID      string
	Content       string
	Visibility    string
	Type          string
	MediaURLs     []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Pinned        bool
	LikesCount    int
	CommentsCount int
	SharesCount   int
	HasLiked      bool
	Version       uint64
}

// Comment ...
type Comment struct {
	ID         string
	PostID     string
	ParentID   string
	AuthorID   string
	Content    string
	CreatedAt  time.Time
	LikesCount int
	HasLiked   bool
	Version    uint64
}
