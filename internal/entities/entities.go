// Package entities contains main entities of service.
package entities

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// MaxContentLength is an upper bound for post and comment content.
const MaxContentLength = 2000

// SyncState describes how an entity relates to the server-authoritative copy.
// It is client-only and never sent to the server.
type SyncState string

const (
	// Confirmed means the entity matches the last server-confirmed record.
	Confirmed SyncState = "confirmed"
	// Pending means an optimistic local change awaits server confirmation.
	Pending SyncState = "pending"
	// Failed means the last mutation on the entity was rejected.
	Failed SyncState = "failed"
)

// Visibility ...
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityFollowers Visibility = "followers"
	VisibilityMentors   Visibility = "mentors"
	VisibilityPrivate   Visibility = "private"
)

// PostType ...
type PostType string

const (
	TypeText        PostType = "text"
	TypeMedia       PostType = "media"
	TypeLink        PostType = "link"
	TypeCertificate PostType = "certificate"
	TypeJob         PostType = "job"
)

// ValidPostType reports whether t is one of the supported post types.
func ValidPostType(t PostType) bool {
	switch t {
	case TypeText, TypeMedia, TypeLink, TypeCertificate, TypeJob:
		return true
	}
	return false
}

// Post ...
type Post struct {
	ID            string
	AuthorID      string
	Content       string
	Visibility    Visibility
	Type          PostType
	MediaURLs     []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Pinned        bool
	LikesCount    int
	CommentsCount int
	SharesCount   int
	HasLiked      bool
	Version       uint64
	SyncState     SyncState
}

// Clone returns a deep copy of p.
func (p *Post) Clone() *Post {
	out := *p
	out.MediaURLs = append([]string(nil), p.MediaURLs...)
	return &out
}

// Comment is scoped by PostID; ParentID enables one level of threading.
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
	SyncState  SyncState
}

// Clone returns a copy of c.
func (c *Comment) Clone() *Comment {
	out := *c
	return &out
}

// Filter defines the active query partition. The canonical list is always
// scoped to exactly one filter.
type Filter struct {
	Type   *PostType
	Author *string
	From   *time.Time
	To     *time.Time
}

// Validate checks that the filter describes a supported query shape.
func (f Filter) Validate() error {
	if f.Type != nil && !ValidPostType(*f.Type) {
		return fmt.Errorf("unknown post type %q", *f.Type)
	}

	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return fmt.Errorf("invalid date range")
	}

	return nil
}

// Matches reports whether p belongs to the partition described by f.
func (f Filter) Matches(p *Post) bool {
	if f.Type != nil && p.Type != *f.Type {
		return false
	}

	if f.Author != nil && p.AuthorID != *f.Author {
		return false
	}

	if f.From != nil && p.CreatedAt.Before(*f.From) {
		return false
	}

	if f.To != nil && p.CreatedAt.After(*f.To) {
		return false
	}

	return true
}

const tempIDPrefix = "tmp-"

// NewTempID returns an id for a not-yet-confirmed entity. Its format is
// distinct from server-assigned ids so the two can never be confused.
func NewTempID() string {
	return tempIDPrefix + ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// IsTempID reports whether id was produced by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// Less defines the canonical feed order: pinned entries precede everything
// else and are ordered by UpdatedAt descending among themselves; the rest are
// ordered by CreatedAt descending with ID descending as a tie-break.
func Less(a, b *Post) bool {
	if a.Pinned != b.Pinned {
		return a.Pinned
	}

	if a.Pinned {
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID > b.ID
	}

	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}

	return a.ID > b.ID
}

// CommentLess defines conversation order for comments: CreatedAt ascending,
// ID ascending as a tie-break.
func CommentLess(a, b *Comment) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}

	return a.ID < b.ID
}
