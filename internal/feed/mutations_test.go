package feed

import (
	"fmt"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/feedmirror/internal/auth"
	"github.com/pulseboard/feedmirror/internal/entities"
	"github.com/pulseboard/feedmirror/internal/remote"
	"github.com/pulseboard/feedmirror/internal/remote/mock"
)

// loadedStore returns a store holding the given posts.
func loadedStore(t *testing.T, posts []*entities.Post, opts ...Option) (*Store, *mock.MockAPI) {
	s, api := newTestStore(t, opts...)

	api.EXPECT().FetchPage(gomock.Any(), entities.Filter{}, 0, gomock.Any()).
		Return(&remote.Page{Items: posts}, nil)
	require.NoError(t, s.SetFilter(ctx, entities.Filter{}))

	return s, api
}

func TestStore_CreatePost_confirmed(t *testing.T) {
	s, api := loadedStore(t, makePosts(2, 0))

	canonical := serverPost("server-id", 0)
	api.EXPECT().CreatePost(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ interface{}, draft *entities.Post) (*entities.Post, error) {
			assert.True(t, entities.IsTempID(draft.ID))
			assert.Equal(t, "viewer-1", draft.AuthorID)
			assert.Equal(t, "hello world", draft.Content)
			return canonical, nil
		})

	p, err := s.CreatePost(ctx, Draft{Content: "hello world"})
	require.NoError(t, err)
	assert.Equal(t, "server-id", p.ID)

	list := s.Posts()
	require.Len(t, list, 3)
	assert.Equal(t, "server-id", list[0].ID)
	assert.Equal(t, entities.Confirmed, list[0].SyncState)

	for _, held := range list {
		assert.False(t, entities.IsTempID(held.ID))
	}
}

func TestStore_CreatePost_rollbackOnFailure(t *testing.T) {
	s, api := loadedStore(t, makePosts(2, 0))
	before := s.Posts()

	api.EXPECT().CreatePost(gomock.Any(), gomock.Any()).
		Return(nil, &remote.NetworkError{Op: "create", Err: fmt.Errorf("boom")})

	_, err := s.CreatePost(ctx, Draft{Content: "doomed"})
	require.Error(t, err)

	after := s.Posts()
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
	}
}

func TestStore_CreatePost_validation(t *testing.T) {
	tt := []struct {
		name  string
		draft Draft
	}{
		{name: "empty content", draft: Draft{Content: "   "}},
		{name: "script only content", draft: Draft{Content: "<script>alert(1)</script>"}},
		{name: "over length bound", draft: Draft{Content: string(make([]rune, entities.MaxContentLength+1))}},
		{name: "unknown type", draft: Draft{Content: "ok", Type: "hologram"}},
	}

	for i := range tt {
		tc := tt[i]
		t.Run(tc.name, func(t *testing.T) {
			s, _ := loadedStore(t, makePosts(1, 0))

			_, err := s.CreatePost(ctx, tc.draft)

			var v *remote.ValidationError
			assert.ErrorAs(t, err, &v)
			assert.Len(t, s.Posts(), 1, "no optimistic entry may survive a local reject")
		})
	}
}

func TestStore_CreatePost_emptyContentWithMediaAllowed(t *testing.T) {
	s, api := loadedStore(t, nil)

	api.EXPECT().CreatePost(gomock.Any(), gomock.Any()).
		Return(serverPost("server-id", 0), nil)

	_, err := s.CreatePost(ctx, Draft{MediaURLs: []string{"/v1/media/a.png"}})
	assert.NoError(t, err)
}

func TestStore_CreatePost_unauthenticated(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	s := New(mock.NewMockAPI(ctrl), auth.Static(""))

	_, err := s.CreatePost(ctx, Draft{Content: "hello"})

	var a *remote.AuthError
	assert.ErrorAs(t, err, &a)
}

func TestStore_EditPost_confirmed(t *testing.T) {
	s, api := loadedStore(t, makePosts(2, 0))
	id := s.Posts()[0].ID

	api.EXPECT().EditPost(gomock.Any(), id, "rewritten").Return(nil)

	require.NoError(t, s.EditPost(ctx, id, "rewritten"))

	p, ok := s.Post(id)
	require.True(t, ok)
	assert.Equal(t, "rewritten", p.Content)
	assert.Equal(t, entities.Confirmed, p.SyncState)
}

func TestStore_EditPost_rollbackRestoresContent(t *testing.T) {
	s, api := loadedStore(t, makePosts(2, 0))
	id := s.Posts()[0].ID
	original := s.Posts()[0].Content

	api.EXPECT().EditPost(gomock.Any(), id, "rejected").
		Return(&remote.ValidationError{Reason: "server said no"})

	require.Error(t, s.EditPost(ctx, id, "rejected"))

	p, ok := s.Post(id)
	require.True(t, ok)
	assert.Equal(t, original, p.Content)
}

func TestStore_EditPost_unknownID(t *testing.T) {
	s, _ := loadedStore(t, makePosts(1, 0))

	err := s.EditPost(ctx, "nope", "content")
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestStore_DeletePost(t *testing.T) {
	t.Run("confirmed", func(t *testing.T) {
		s, api := loadedStore(t, makePosts(2, 0))
		id := s.Posts()[0].ID

		api.EXPECT().DeletePost(gomock.Any(), id).Return(nil)

		require.NoError(t, s.DeletePost(ctx, id))
		assert.Len(t, s.Posts(), 1)
	})

	t.Run("not found on server counts as success", func(t *testing.T) {
		s, api := loadedStore(t, makePosts(2, 0))
		id := s.Posts()[0].ID

		api.EXPECT().DeletePost(gomock.Any(), id).Return(remote.ErrNotFound)

		require.NoError(t, s.DeletePost(ctx, id))
		assert.Len(t, s.Posts(), 1)
	})

	t.Run("failure reinserts at the original position", func(t *testing.T) {
		s, api := loadedStore(t, makePosts(3, 0))
		before := s.Posts()
		id := before[1].ID

		api.EXPECT().DeletePost(gomock.Any(), id).
			Return(&remote.NetworkError{Op: "delete", Err: fmt.Errorf("boom")})

		require.Error(t, s.DeletePost(ctx, id))

		after := s.Posts()
		require.Len(t, after, 3)
		assert.Equal(t, id, after[1].ID)
	})
}

func TestStore_PinPost_reordersOptimistically(t *testing.T) {
	s, api := loadedStore(t, makePosts(3, 0))
	id := s.Posts()[2].ID // oldest

	api.EXPECT().PinPost(gomock.Any(), id, true).Return(nil)

	require.NoError(t, s.PinPost(ctx, id, true))

	list := s.Posts()
	assert.Equal(t, id, list[0].ID)
	assert.True(t, list[0].Pinned)
}

func TestStore_PinPost_rollback(t *testing.T) {
	s, api := loadedStore(t, makePosts(3, 0))
	before := s.Posts()
	id := before[2].ID

	api.EXPECT().PinPost(gomock.Any(), id, true).
		Return(&remote.NetworkError{Op: "pin", Err: fmt.Errorf("boom")})

	require.Error(t, s.PinPost(ctx, id, true))

	after := s.Posts()
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.False(t, after[2].Pinned)
}

func TestStore_SharePost(t *testing.T) {
	s, api := loadedStore(t, makePosts(1, 0))
	id := s.Posts()[0].ID

	api.EXPECT().SharePost(gomock.Any(), id).Return(nil)

	require.NoError(t, s.SharePost(ctx, id))

	p, _ := s.Post(id)
	assert.Equal(t, 1, p.SharesCount)
}

func TestStore_SharePost_revertsDeltaOnFailure(t *testing.T) {
	s, api := loadedStore(t, makePosts(1, 0))
	id := s.Posts()[0].ID

	api.EXPECT().SharePost(gomock.Any(), id).
		Return(&remote.NetworkError{Op: "share", Err: fmt.Errorf("boom")})

	require.Error(t, s.SharePost(ctx, id))

	p, _ := s.Post(id)
	assert.Zero(t, p.SharesCount)
}

func TestStore_authFailureDowngrades(t *testing.T) {
	s, api := loadedStore(t, makePosts(1, 0))
	id := s.Posts()[0].ID

	api.EXPECT().EditPost(gomock.Any(), id, "expired").
		Return(&remote.AuthError{Reason: "session expired"})

	require.Error(t, s.EditPost(ctx, id, "expired"))
	assert.True(t, s.Status().ReadOnly)

	// further mutations are rejected locally
	_, err := s.CreatePost(ctx, Draft{Content: "later"})
	var a *remote.AuthError
	assert.ErrorAs(t, err, &a)
}

func TestSanitizeContent(t *testing.T) {
	out, err := sanitizeContent("hello <b>world</b> <script>alert(1)</script>", false)
	require.NoError(t, err)
	assert.Equal(t, "hello <b>world</b>", out)

	long := make([]rune, entities.MaxContentLength)
	for i := range long {
		long[i] = 'a'
	}
	out, err = sanitizeContent(string(long), false)
	require.NoError(t, err)
	assert.Len(t, []rune(out), entities.MaxContentLength)

	_, err = sanitizeContent(string(long)+"a", false)
	assert.Error(t, err)
}
