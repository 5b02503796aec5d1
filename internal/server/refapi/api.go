package refapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pulseboard/feedmirror/internal/storage"
)

// Post ...
type Post struct {
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

// Comment ...
type Comment struct {
	ID         string    `json:"id"`
	PostID     string    `json:"post_id"`
	ParentID   string    `json:"parent_id,omitempty"`
	AuthorID   string    `json:"author_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	LikesCount int       `json:"likes_count"`
	HasLiked   bool      `json:"has_liked"`
	Version    uint64    `json:"version"`
}

// ListPostsResponse ...
type ListPostsResponse struct {
	Posts      []Post `json:"posts"`
	TotalCount *int   `json:"total_count,omitempty"`
}

// ListCommentsResponse ...
type ListCommentsResponse struct {
	Comments []Comment `json:"comments"`
}

// CreatePostRequest ...
type CreatePostRequest struct {
	Content    string   `json:"content"`
	Visibility string   `json:"visibility"`
	Type       string   `json:"type"`
	MediaURLs  []string `json:"media_urls"`
}

// EditPostRequest ...
type EditPostRequest struct {
	Content string `json:"content"`
}

// PinPostRequest ...
type PinPostRequest struct {
	Pinned bool `json:"pinned"`
}

// SetLikeRequest ...
type SetLikeRequest struct {
	Liked bool `json:"liked"`
}

// SetLikeResponse ...
type SetLikeResponse struct {
	Liked      bool   `json:"liked"`
	LikesCount int    `json:"likes_count"`
	Version    uint64 `json:"version"`
}

// CreateCommentRequest ...
type CreateCommentRequest struct {
	Content  string `json:"content"`
	ParentID string `json:"parent_id"`
}

// UploadResponse ...
type UploadResponse struct {
	URL string `json:"url"`
}

// Error ...
type Error struct {
	Error string `json:"error"`
}

func writeOK(w http.ResponseWriter, status int, v interface{}) {
	body, _ := json.Marshal(v)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body) // nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeOK(w, status, Error{Error: message})
}

func toPost(p *storage.Post) Post {
	media := p.MediaURLs
	if media == nil {
		media = []string{}
	}

	return Post{
		ID:            p.ID,
		AuthorID:      p.AuthorID,
		Content:       p.Content,
		Visibility:    p.Visibility,
		Type:          p.Type,
		MediaURLs:     media,
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     p.UpdatedAt.UTC(),
		Pinned:        p.Pinned,
		LikesCount:    p.LikesCount,
		CommentsCount: p.CommentsCount,
		SharesCount:   p.SharesCount,
		HasLiked:      p.HasLiked,
		Version:       p.Version,
	}
}

func toComment(c *storage.Comment) Comment {
	return Comment{
		ID:         c.ID,
		PostID:     c.PostID,
		ParentID:   c.ParentID,
		AuthorID:   c.AuthorID,
		Content:    c.Content,
		CreatedAt:  c.CreatedAt.UTC(),
		LikesCount: c.LikesCount,
		HasLiked:   c.HasLiked,
		Version:    c.Version,
	}
}
