// Package httpapi is an implementation of the remote API over HTTP.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pulseboard/feedmirror/internal/entities"
	"github.com/pulseboard/feedmirror/internal/remote"
)

const maxReadRetries = 3

// Client talks to the feed backend. Idempotent reads are retried with
// bounded exponential backoff; mutations are issued exactly once because the
// backend offers no idempotency keys, so an ambiguous failure is surfaced
// instead of retried.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// New ...
func New(base, token string, timeout time.Duration) *Client {
	return &Client{
		base:  base,
		token: token,
		http:  &http.Client{Timeout: timeout},
	}
}

type postDTO struct {
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

type commentDTO struct {
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

type pageResponse struct {
	Posts      []postDTO `json:"posts"`
	TotalCount *int      `json:"total_count,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) FetchPage(ctx context.Context, f entities.Filter, offset, limit int) (*remote.Page, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	if f.Type != nil {
		q.Set("type", string(*f.Type))
	}
	if f.Author != nil {
		q.Set("author", *f.Author)
	}
	if f.From != nil {
		q.Set("from", strconv.FormatInt(f.From.Unix(), 10))
	}
	if f.To != nil {
		q.Set("to", strconv.FormatInt(f.To.Unix(), 10))
	}

	var resp pageResponse
	if err := c.read(ctx, "/v1/posts?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	out := &remote.Page{
		Items:      make([]*entities.Post, len(resp.Posts)),
		TotalCount: resp.TotalCount,
	}
	for i, p := range resp.Posts {
		out.Items[i] = toPost(p)
	}

	return out, nil
}

func (c *Client) FetchPost(ctx context.Context, id string) (*entities.Post, error) {
	var p postDTO
	if err := c.read(ctx, "/v1/posts/"+url.PathEscape(id), &p); err != nil {
		return nil, err
	}

	return toPost(p), nil
}

func (c *Client) CreatePost(ctx context.Context, draft *entities.Post) (*entities.Post, error) {
	body := map[string]interface{}{
		"content":    draft.Content,
		"type":       string(draft.Type),
		"visibility": string(draft.Visibility),
		"media_urls": draft.MediaURLs,
	}

	var p postDTO
	if err := c.call(ctx, http.MethodPost, "/v1/posts", body, &p); err != nil {
		return nil, err
	}

	return toPost(p), nil
}

func (c *Client) EditPost(ctx context.Context, id, content string) error {
	return c.call(ctx, http.MethodPut, "/v1/posts/"+url.PathEscape(id),
		map[string]interface{}{"content": content}, nil)
}

func (c *Client) DeletePost(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/v1/posts/"+url.PathEscape(id), nil, nil)
}

func (c *Client) PinPost(ctx context.Context, id string, pinned bool) error {
	return c.call(ctx, http.MethodPut, "/v1/posts/"+url.PathEscape(id)+"/pin",
		map[string]interface{}{"pinned": pinned}, nil)
}

func (c *Client) SharePost(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodPost, "/v1/posts/"+url.PathEscape(id)+"/share", nil, nil)
}

func (c *Client) SetLike(ctx context.Context, id string, desired bool) (*remote.LikeResult, error) {
	var resp struct {
		Liked      bool   `json:"liked"`
		LikesCount int    `json:"likes_count"`
		Version    uint64 `json:"version"`
	}

	if err := c.call(ctx, http.MethodPut, "/v1/posts/"+url.PathEscape(id)+"/like",
		map[string]interface{}{"liked": desired}, &resp); err != nil {
		return nil, err
	}

	return &remote.LikeResult{Liked: resp.Liked, Likes: resp.LikesCount, Version: resp.Version}, nil
}

func (c *Client) FetchComments(ctx context.Context, postID string) ([]*entities.Comment, error) {
	var resp struct {
		Comments []commentDTO `json:"comments"`
	}

	if err := c.read(ctx, "/v1/posts/"+url.PathEscape(postID)+"/comments", &resp); err != nil {
		return nil, err
	}

	out := make([]*entities.Comment, len(resp.Comments))
	for i, v := range resp.Comments {
		out[i] = toComment(v)
	}

	return out, nil
}

func (c *Client) CreateComment(ctx context.Context, draft *entities.Comment) (*entities.Comment, error) {
	body := map[string]interface{}{
		"content":   draft.Content,
		"parent_id": draft.ParentID,
	}

	var v commentDTO
	if err := c.call(ctx, http.MethodPost, "/v1/posts/"+url.PathEscape(draft.PostID)+"/comments", body, &v); err != nil {
		return nil, err
	}

	return toComment(v), nil
}

// Upload pushes one media file and returns its URL.
func (c *Client) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/v1/media?name="+url.QueryEscape(name), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &remote.NetworkError{Op: "upload " + name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", toError(resp, http.MethodPost, "/v1/media")
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return out.URL, nil
}

// read issues a GET with bounded exponential backoff on network-level
// failures. Non-retriable answers (4xx) abort immediately.
func (c *Client) read(ctx context.Context, path string, out interface{}) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxReadRetries), ctx)

	return backoff.Retry(func() error {
		err := c.call(ctx, http.MethodGet, path, nil, out)

		var netErr *remote.NetworkError
		if err != nil && !errors.As(err, &netErr) {
			return backoff.Permanent(err)
		}

		return err
	}, b)
}

func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &remote.NetworkError{Op: fmt.Sprintf("%s %s", method, path), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return toError(resp, method, path)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func toError(resp *http.Response, method, path string) error {
	var e errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&e)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return &remote.ValidationError{Reason: e.Error}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &remote.AuthError{Reason: e.Error}
	case http.StatusNotFound:
		return remote.ErrNotFound
	case http.StatusConflict:
		return &remote.ConflictError{ID: e.Error}
	default:
		return &remote.NetworkError{
			Op:  fmt.Sprintf("%s %s", method, path),
			Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, e.Error),
		}
	}
}

func toPost(p postDTO) *entities.Post {
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

func toComment(c commentDTO) *entities.Comment {
	return &entities.Comment{
		ID:         c.ID,
		PostID:     c.PostID,
		ParentID:   c.ParentID,
		AuthorID:   c.AuthorID,
		Content:    c.Content,
		CreatedAt:  c.CreatedAt,
		LikesCount: c.LikesCount,
		HasLiked:   c.HasLiked,
		Version:    c.Version,
		SyncState:  entities.Confirmed,
	}
}
