package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pulseboard/feedmirror/internal/entities"
)

// Error ...
type Error struct {
	Error string `json:"error"`
}

// Post ...
type Post struct {
	ID            string   `json:"id"`
	AuthorID      string   `json:"author_id"`
	Content       string   `json:"content"`
	Visibility    string   `json:"visibility"`
	Type          string   `json:"type"`
	MediaURLs     []string `json:"media_urls,omitempty"`
	CreatedAt     int64    `json:"created_at"`
	UpdatedAt     int64    `json:"updated_at"`
	Pinned        bool     `json:"pinned"`
	LikesCount    int      `json:"likes_count"`
	CommentsCount int      `json:"comments_count"`
	SharesCount   int      `json:"shares_count"`
	HasLiked      bool     `json:"has_liked"`
	SyncState     string   `json:"sync_state"`
}

// Comment ...
type Comment struct {
	ID         string `json:"id"`
	PostID     string `json:"post_id"`
	ParentID   string `json:"parent_id,omitempty"`
	AuthorID   string `json:"author_id"`
	Content    string `json:"content"`
	CreatedAt  int64  `json:"created_at"`
	LikesCount int    `json:"likes_count"`
	HasLiked   bool   `json:"has_liked"`
	SyncState  string `json:"sync_state"`
}

// FeedResponse ...
type FeedResponse struct {
	Posts   []*Post `json:"posts"`
	HasMore bool    `json:"has_more"`
}

// CommentsResponse ...
type CommentsResponse struct {
	Comments []*Comment `json:"comments"`
}

// StatusResponse ...
type StatusResponse struct {
	Loaded   int    `json:"loaded"`
	HasMore  bool   `json:"has_more"`
	Loading  bool   `json:"loading"`
	ReadOnly bool   `json:"read_only"`
	Time     int64  `json:"time"`
	Filter   Filter `json:"filter"`
}

// Filter ...
type Filter struct {
	Type   string `json:"type,omitempty"`
	Author string `json:"author,omitempty"`
	From   int64  `json:"from,omitempty"`
	To     int64  `json:"to,omitempty"`
}

func writeOK(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeOK(w, status, Error{Error: message})
}

func toAPIPost(p *entities.Post) *Post {
	if p == nil {
		return nil
	}

	return &Post{
		ID:            p.ID,
		AuthorID:      p.AuthorID,
		Content:       p.Content,
		Visibility:    string(p.Visibility),
		Type:          string(p.Type),
		MediaURLs:     p.MediaURLs,
		CreatedAt:     p.CreatedAt.Unix(),
		UpdatedAt:     p.UpdatedAt.Unix(),
		Pinned:        p.Pinned,
		LikesCount:    p.LikesCount,
		CommentsCount: p.CommentsCount,
		SharesCount:   p.SharesCount,
		HasLiked:      p.HasLiked,
		SyncState:     string(p.SyncState),
	}
}

func toAPIComment(c *entities.Comment) *Comment {
	if c == nil {
		return nil
	}

	return &Comment{
		ID:         c.ID,
		PostID:     c.PostID,
		ParentID:   c.ParentID,
		AuthorID:   c.AuthorID,
		Content:    c.Content,
		CreatedAt:  c.CreatedAt.Unix(),
		LikesCount: c.LikesCount,
		HasLiked:   c.HasLiked,
		SyncState:  string(c.SyncState),
	}
}

func toAPIFilter(f entities.Filter) Filter {
	out := Filter{}

	if f.Type != nil {
		out.Type = string(*f.Type)
	}
	if f.Author != nil {
		out.Author = *f.Author
	}
	if f.From != nil {
		out.From = f.From.Unix()
	}
	if f.To != nil {
		out.To = f.To.Unix()
	}

	return out
}

func now() int64 {
	return time.Now().Unix()
}
