//+build integration

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	m "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pulseboard/feedmirror/internal/storage"
)

var (
	db  *sql.DB
	ctx = context.Background()
	s   storage.Storage
)

func TestMain(m *testing.M) {
	shutdown := setup()

	s = New(db)

	code := m.Run()
	shutdown()
	os.Exit(code)
}

func setup() func() {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:12",
		Env:          map[string]string{"POSTGRES_PASSWORD": "root"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp"),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
	})
	if err != nil {
		logrus.WithError(err).Fatalf("failed to create container")
	}

	if err := c.Start(ctx); err != nil {
		logrus.WithError(err).Fatal("failed to start container")
	}

	host, err := c.Host(ctx)
	if err != nil {
		logrus.WithError(err).Fatal("failed to get host")
	}

	port, err := c.MappedPort(ctx, "5432")
	if err != nil {
		logrus.WithError(err).Fatal("failed to map port")
	}

	dsn := fmt.Sprintf("host=%s port=%d user=postgres password=root sslmode=disable", host, port.Int())

	db, err = sql.Open("postgres", dsn)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open connection")
	}

	if err := db.Ping(); err != nil {
		logrus.WithError(err).Fatal("failed to ping postgres")
	}

	shutdownFn := func() {
		if c != nil {
			c.Terminate(ctx)
		}
	}

	migrate("postgres", "root", host, "postgres", port.Int())

	return shutdownFn
}

func migrate(username, password, hostname, dbname string, port int) {
	_, currFile, _, ok := runtime.Caller(0)
	if !ok {
		logrus.Fatal("failed to get current file location")
	}

	migrations := filepath.Join(currFile, "../../../../scripts/migrations/postgres/")

	migrator, err := m.New(
		fmt.Sprintf("file://%s", migrations),
		fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			username, password, hostname, port, dbname),
	)
	if err != nil {
		logrus.WithError(err).Fatal("failed to create migrator")
	}
	defer migrator.Close()

	if err := migrator.Up(); err != nil {
		logrus.WithError(err).Fatal("failed to migrate")
	}
}

func cleanup(t *testing.T) {
	_, err := db.ExecContext(ctx, `DELETE FROM comment_like`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `DELETE FROM comment`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `DELETE FROM "like"`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `DELETE FROM post`)
	require.NoError(t, err)
}

func createPost(t *testing.T, author, content string) *storage.Post {
	p, err := s.CreatePost(ctx, &storage.CreatePostParams{
		AuthorID:   author,
		Content:    content,
		Visibility: "public",
		Type:       "text",
	})
	require.NoError(t, err)
	return p
}

func TestPg_CreatePost(t *testing.T) {
	defer cleanup(t)

	p, err := s.CreatePost(ctx, &storage.CreatePostParams{
		AuthorID:   "alice",
		Content:    "hello",
		Visibility: "public",
		Type:       "text",
		MediaURLs:  []string{"/v1/media/a.png"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "alice", p.AuthorID)
	assert.Equal(t, "hello", p.Content)
	assert.Equal(t, []string{"/v1/media/a.png"}, p.MediaURLs)
	assert.EqualValues(t, 1, p.Version)
	assert.Zero(t, p.LikesCount)
	assert.False(t, p.HasLiked)
}

func TestPg_GetPost(t *testing.T) {
	defer cleanup(t)

	created := createPost(t, "alice", "hello")

	p, err := s.GetPost(ctx, created.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, created.ID, p.ID)

	_, err = s.GetPost(ctx, "00000000-0000-0000-0000-000000000000", "bob")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPg_ListPosts(t *testing.T) {
	defer cleanup(t)

	first := createPost(t, "alice", "first")
	second := createPost(t, "bob", "second")
	third := createPost(t, "alice", "third")

	posts, total, err := s.ListPosts(ctx, &storage.ListPostsParams{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, posts, 3)

	// newest first
	assert.Equal(t, third.ID, posts[0].ID)
	assert.Equal(t, first.ID, posts[2].ID)

	author := "alice"
	posts, total, err = s.ListPosts(ctx, &storage.ListPostsParams{Limit: 10, Author: &author})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, posts, 2)

	posts, total, err = s.ListPosts(ctx, &storage.ListPostsParams{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, posts, 1)
	assert.Equal(t, first.ID, posts[0].ID)

	_ = second
}

func TestPg_ListPosts_pinnedFirst(t *testing.T) {
	defer cleanup(t)

	pinned := createPost(t, "alice", "old but pinned")
	createPost(t, "alice", "newer")

	_, err := s.PinPost(ctx, pinned.ID, true)
	require.NoError(t, err)

	posts, _, err := s.ListPosts(ctx, &storage.ListPostsParams{Limit: 10})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, pinned.ID, posts[0].ID)
	assert.True(t, posts[0].Pinned)
}

func TestPg_ListPosts_timeWindow(t *testing.T) {
	defer cleanup(t)

	p := createPost(t, "alice", "hello")

	from := p.CreatedAt.Add(-time.Minute)
	to := p.CreatedAt.Add(time.Minute)
	posts, total, err := s.ListPosts(ctx, &storage.ListPostsParams{Limit: 10, From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, posts, 1)

	past := p.CreatedAt.Add(-time.Hour)
	posts, total, err = s.ListPosts(ctx, &storage.ListPostsParams{Limit: 10, To: &past})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, posts)
}

func TestPg_EditPost(t *testing.T) {
	defer cleanup(t)

	p := createPost(t, "alice", "hello")

	edited, err := s.EditPost(ctx, p.ID, "alice", "edited")
	require.NoError(t, err)
	assert.Equal(t, "edited", edited.Content)
	assert.Equal(t, p.Version+1, edited.Version)
	assert.True(t, edited.UpdatedAt.After(p.UpdatedAt) || edited.UpdatedAt.Equal(p.UpdatedAt))

	_, err = s.EditPost(ctx, p.ID, "bob", "not mine")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPg_DeletePost(t *testing.T) {
	defer cleanup(t)

	p := createPost(t, "alice", "hello")

	require.NoError(t, s.DeletePost(ctx, p.ID, "alice"))

	_, err := s.GetPost(ctx, p.ID, "alice")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, s.DeletePost(ctx, p.ID, "alice"), storage.ErrNotFound)
}

func TestPg_SetLike(t *testing.T) {
	defer cleanup(t)

	p := createPost(t, "alice", "hello")

	liked, confirmed, err := s.SetLike(ctx, p.ID, "bob", true)
	require.NoError(t, err)
	assert.True(t, confirmed)
	assert.Equal(t, 1, liked.LikesCount)
	assert.True(t, liked.HasLiked)
	assert.Greater(t, liked.Version, p.Version)

	// idempotent
	liked, confirmed, err = s.SetLike(ctx, p.ID, "bob", true)
	require.NoError(t, err)
	assert.True(t, confirmed)
	assert.Equal(t, 1, liked.LikesCount)

	unliked, confirmed, err := s.SetLike(ctx, p.ID, "bob", false)
	require.NoError(t, err)
	assert.False(t, confirmed)
	assert.Zero(t, unliked.LikesCount)
	assert.False(t, unliked.HasLiked)

	_, _, err = s.SetLike(ctx, "00000000-0000-0000-0000-000000000000", "bob", true)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPg_SharePost(t *testing.T) {
	defer cleanup(t)

	p := createPost(t, "alice", "hello")

	shared, err := s.SharePost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, shared.SharesCount)

	_, err = s.SharePost(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPg_Comments(t *testing.T) {
	defer cleanup(t)

	p := createPost(t, "alice", "hello")

	first, err := s.CreateComment(ctx, &storage.CreateCommentParams{
		PostID:   p.ID,
		AuthorID: "bob",
		Content:  "first",
	})
	require.NoError(t, err)

	second, err := s.CreateComment(ctx, &storage.CreateCommentParams{
		PostID:   p.ID,
		ParentID: first.ID,
		AuthorID: "alice",
		Content:  "reply",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ParentID)

	comments, err := s.ListComments(ctx, p.ID, "bob")
	require.NoError(t, err)
	require.Len(t, comments, 2)

	// oldest first
	assert.Equal(t, first.ID, comments[0].ID)
	assert.Equal(t, second.ID, comments[1].ID)

	got, err := s.GetPost(ctx, p.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CommentsCount)

	_, err = s.CreateComment(ctx, &storage.CreateCommentParams{
		PostID:   "00000000-0000-0000-0000-000000000000",
		AuthorID: "bob",
		Content:  "orphan",
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
