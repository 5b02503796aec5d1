// Package postgres is implementation of storage interface.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/pulseboard/feedmirror/internal/storage"
)

const foreignKeyViolation = "23503"

type pg struct {
	ext sqlx.ExtContext
}

type postDTO struct {
	ID            string         `db:"id"`
	Author        string         `db:"author"`
	Content       string         `db:"content"`
	Visibility    string         `db:"visibility"`
	Type          string         `db:"type"`
	MediaURLs     pq.StringArray `db:"media_urls"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	Pinned        bool           `db:"pinned"`
	LikesCount    int            `db:"likes_count"`
	CommentsCount int            `db:"comments_count"`
	SharesCount   int            `db:"shares_count"`
	HasLiked      bool           `db:"has_liked"`
	Version       uint64         `db:"version"`
}

type commentDTO struct {
	ID         string         `db:"id"`
	PostID     string         `db:"post_id"`
	ParentID   sql.NullString `db:"parent_id"`
	Author     string         `db:"author"`
	Content    string         `db:"content"`
	CreatedAt  time.Time      `db:"created_at"`
	LikesCount int            `db:"likes_count"`
	HasLiked   bool           `db:"has_liked"`
	Version    uint64         `db:"version"`
}

// postColumns selects a post with its counters and the viewer-relative like
// flag. viewerArg is the positional index of the viewer parameter.
func postColumns(viewerArg int) string {
	return fmt.Sprintf(`
	p.id, p.author, p.content, p.visibility, p.type, p.media_urls,
	p.created_at, p.updated_at, p.pinned, p.shares_count, p.version,
	(SELECT COUNT(*) FROM "like" l WHERE l.post_id = p.id) AS likes_count,
	(SELECT COUNT(*) FROM comment c WHERE c.post_id = p.id) AS comments_count,
	EXISTS(SELECT 1 FROM "like" l WHERE l.post_id = p.id AND l.liked_by = $%d) AS has_liked
`, viewerArg)
}

func (s pg) ListPosts(ctx context.Context, p *storage.ListPostsParams) ([]*storage.Post, int, error) {
	where := `p.deleted_at IS NULL`
	var args []interface{}

	if p.Type != nil {
		args = append(args, *p.Type)
		where += fmt.Sprintf(` AND p.type = $%d`, len(args))
	}
	if p.Author != nil {
		args = append(args, *p.Author)
		where += fmt.Sprintf(` AND p.author = $%d`, len(args))
	}
	if p.From != nil {
		args = append(args, p.From.UTC())
		where += fmt.Sprintf(` AND p.created_at >= $%d`, len(args))
	}
	if p.To != nil {
		args = append(args, p.To.UTC())
		where += fmt.Sprintf(` AND p.created_at <= $%d`, len(args))
	}

	var total int
	if err := sqlx.GetContext(ctx, s.ext, &total,
		fmt.Sprintf(`SELECT COUNT(*) FROM post p WHERE %s`, where), args...,
	); err != nil {
		return nil, 0, fmt.Errorf("failed to count: %w", err)
	}

	args = append(args, p.Viewer, p.Limit, p.Offset)
	query := fmt.Sprintf(`
			SELECT %s FROM post p
			WHERE %s
			ORDER BY p.pinned DESC,
				(CASE WHEN p.pinned THEN p.updated_at ELSE p.created_at END) DESC,
				p.id DESC
			LIMIT $%d OFFSET $%d
		`, postColumns(len(args)-2), where, len(args)-1, len(args))

	var out []*postDTO
	if err := sqlx.SelectContext(ctx, s.ext, &out, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to query: %w", err)
	}

	posts := make([]*storage.Post, len(out))
	for i, v := range out {
		posts[i] = toPost(v)
	}

	return posts, total, nil
}

func (s pg) GetPost(ctx context.Context, id, viewer string) (*storage.Post, error) {
	var p postDTO

	if err := sqlx.GetContext(ctx, s.ext, &p, fmt.Sprintf(`
			SELECT %s FROM post p
			WHERE p.id = $2 AND p.deleted_at IS NULL
		`, postColumns(1)),
		viewer, id,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, fmt.Errorf("failed to query: %w", err)
	}

	return toPost(&p), nil
}

func (s pg) CreatePost(ctx context.Context, p *storage.CreatePostParams) (*storage.Post, error) {
	id := uuid.NewString()

	if _, err := s.ext.ExecContext(ctx, `
			INSERT INTO post(id, author, content, visibility, type, media_urls)
			VALUES($1, $2, $3, $4, $5, $6)
		`,
		id, p.AuthorID, p.Content, p.Visibility, p.Type, pq.StringArray(p.MediaURLs),
	); err != nil {
		return nil, fmt.Errorf("failed to exec: %w", err)
	}

	return s.GetPost(ctx, id, p.AuthorID)
}

func (s pg) EditPost(ctx context.Context, id, author, content string) (*storage.Post, error) {
	res, err := s.ext.ExecContext(ctx, `
			UPDATE post SET content=$3, updated_at=now(), version=version+1
			WHERE id=$1 AND author=$2 AND deleted_at IS NULL
		`, id, author, content,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to exec: %w", err)
	}

	if c, _ := res.RowsAffected(); c == 0 {
		return nil, storage.ErrNotFound
	}

	return s.GetPost(ctx, id, author)
}

func (s pg) DeletePost(ctx context.Context, id, author string) error {
	res, err := s.ext.ExecContext(ctx,
		`UPDATE post SET deleted_at=now() WHERE id=$1 AND author=$2 AND deleted_at IS NULL`,
		id, author,
	)
	if err != nil {
		return fmt.Errorf("failed to exec: %w", err)
	}

	if c, _ := res.RowsAffected(); c == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func (s pg) PinPost(ctx context.Context, id string, pinned bool) (*storage.Post, error) {
	res, err := s.ext.ExecContext(ctx, `
			UPDATE post SET pinned=$2, updated_at=now(), version=version+1
			WHERE id=$1 AND deleted_at IS NULL
		`, id, pinned,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to exec: %w", err)
	}

	if c, _ := res.RowsAffected(); c == 0 {
		return nil, storage.ErrNotFound
	}

	return s.GetPost(ctx, id, "")
}

func (s pg) SharePost(ctx context.Context, id string) (*storage.Post, error) {
	res, err := s.ext.ExecContext(ctx,
		`UPDATE post SET shares_count=shares_count+1, version=version+1 WHERE id=$1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to exec: %w", err)
	}

	if c, _ := res.RowsAffected(); c == 0 {
		return nil, storage.ErrNotFound
	}

	return s.GetPost(ctx, id, "")
}

func (s pg) SetLike(ctx context.Context, id, viewer string, liked bool) (*storage.Post, bool, error) {
	if liked {
		if _, err := s.ext.ExecContext(ctx, `
				INSERT INTO "like"(post_id, liked_by) VALUES($1, $2)
				ON CONFLICT(post_id, liked_by) DO NOTHING
			`, id, viewer,
		); err != nil {
			if err, ok := err.(*pq.Error); ok && err.Code == foreignKeyViolation {
				return nil, false, storage.ErrNotFound
			}

			return nil, false, fmt.Errorf("failed to exec: %w", err)
		}
	} else {
		if _, err := s.ext.ExecContext(ctx,
			`DELETE FROM "like" WHERE post_id=$1 AND liked_by=$2`,
			id, viewer,
		); err != nil {
			return nil, false, fmt.Errorf("failed to exec: %w", err)
		}
	}

	if _, err := s.ext.ExecContext(ctx,
		`UPDATE post SET version=version+1 WHERE id=$1 AND deleted_at IS NULL`, id,
	); err != nil {
		return nil, false, fmt.Errorf("failed to exec: %w", err)
	}

	p, err := s.GetPost(ctx, id, viewer)
	if err != nil {
		return nil, false, err
	}

	return p, p.HasLiked, nil
}

func (s pg) ListComments(ctx context.Context, postID, viewer string) ([]*storage.Comment, error) {
	var out []*commentDTO

	if err := sqlx.SelectContext(ctx, s.ext, &out, `
			SELECT c.id, c.post_id, c.parent_id, c.author, c.content, c.created_at, c.version,
				(SELECT COUNT(*) FROM comment_like l WHERE l.comment_id = c.id) AS likes_count,
				EXISTS(SELECT 1 FROM comment_like l WHERE l.comment_id = c.id AND l.liked_by = $1) AS has_liked
			FROM comment c
			WHERE c.post_id = $2
			ORDER BY c.created_at ASC, c.id ASC
		`, viewer, postID,
	); err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	comments := make([]*storage.Comment, len(out))
	for i, v := range out {
		comments[i] = toComment(v)
	}

	return comments, nil
}

func (s pg) CreateComment(ctx context.Context, p *storage.CreateCommentParams) (*storage.Comment, error) {
	id := uuid.NewString()

	var parent sql.NullString
	if p.ParentID != "" {
		parent = sql.NullString{String: p.ParentID, Valid: true}
	}

	if _, err := s.ext.ExecContext(ctx, `
			INSERT INTO comment(id, post_id, parent_id, author, content)
			VALUES($1, $2, $3, $4, $5)
		`,
		id, p.PostID, parent, p.AuthorID, p.Content,
	); err != nil {
		if err, ok := err.(*pq.Error); ok && err.Code == foreignKeyViolation {
			return nil, storage.ErrNotFound
		}

		return nil, fmt.Errorf("failed to exec: %w", err)
	}

	if _, err := s.ext.ExecContext(ctx,
		`UPDATE post SET version=version+1 WHERE id=$1`, p.PostID,
	); err != nil {
		return nil, fmt.Errorf("failed to exec: %w", err)
	}

	var out commentDTO
	if err := sqlx.GetContext(ctx, s.ext, &out, `
			SELECT id, post_id, parent_id, author, content, created_at, version,
				0 AS likes_count, FALSE AS has_liked
			FROM comment WHERE id = $1
		`, id,
	); err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	return toComment(&out), nil
}

func toPost(p *postDTO) *storage.Post {
	return &storage.Post{
		ID:            p.ID,
		AuthorID:      p.Author,
		Content:       p.Content,
		Visibility:    p.Visibility,
		Type:          p.Type,
		MediaURLs:     p.MediaURLs,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		Pinned:        p.Pinned,
		LikesCount:    p.LikesCount,
		CommentsCount: p.CommentsCount,
		SharesCount:   p.SharesCount,
		HasLiked:      p.HasLiked,
		Version:       p.Version,
	}
}

func toComment(c *commentDTO) *storage.Comment {
	return &storage.Comment{
		ID:         c.ID,
		PostID:     c.PostID,
		ParentID:   c.ParentID.String,
		AuthorID:   c.Author,
		Content:    c.Content,
		CreatedAt:  c.CreatedAt,
		LikesCount: c.LikesCount,
		HasLiked:   c.HasLiked,
		Version:    c.Version,
	}
}

// New creates new instance of pg.
func New(db *sql.DB) storage.Storage {
	return pg{
		ext: sqlx.NewDb(db, "postgres"),
	}
}
