package feed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/feedmirror/internal/auth"
	"github.com/pulseboard/feedmirror/internal/entities"
	"github.com/pulseboard/feedmirror/internal/realtime"
	"github.com/pulseboard/feedmirror/internal/remote"
	"github.com/pulseboard/feedmirror/internal/remote/mock"
)

var (
	ctx  = context.Background()
	base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func serverPost(id string, age time.Duration) *entities.Post {
	return &entities.Post{
		ID:        id,
		AuthorID:  "alice",
		Content:   "content of " + id,
		Type:      entities.TypeText,
		CreatedAt: base.Add(-age),
		UpdatedAt: base.Add(-age),
		Version:   1,
	}
}

// makePosts returns n distinct posts, newest first.
func makePosts(n int, offset int) []*entities.Post {
	out := make([]*entities.Post, n)
	for i := range out {
		out[i] = serverPost(fmt.Sprintf("post-%03d", offset+i), time.Duration(offset+i)*time.Minute)
	}
	return out
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *mock.MockAPI) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	api := mock.NewMockAPI(ctrl)
	opts = append([]Option{WithClock(func() time.Time { return base })}, opts...)

	return New(api, auth.Static("viewer-1"), opts...), api
}

func TestStore_SetFilter_loadsFirstPage(t *testing.T) {
	s, api := newTestStore(t)

	total := 25
	api.EXPECT().FetchPage(gomock.Any(), entities.Filter{}, 0, defaultPageSize).
		Return(&remote.Page{Items: makePosts(20, 0), TotalCount: &total}, nil)

	require.NoError(t, s.SetFilter(ctx, entities.Filter{}))

	assert.Len(t, s.Posts(), 20)
	assert.True(t, s.HasMore())
	assert.False(t, s.Status().Loading)
}

func TestStore_LoadMore_paginatesToEnd(t *testing.T) {
	s, api := newTestStore(t, WithPageSize(10))

	total := 25
	gomock.InOrder(
		api.EXPECT().FetchPage(gomock.Any(), entities.Filter{}, 0, 10).
			Return(&remote.Page{Items: makePosts(10, 0), TotalCount: &total}, nil),
		api.EXPECT().FetchPage(gomock.Any(), entities.Filter{}, 10, 10).
			Return(&remote.Page{Items: makePosts(10, 10), TotalCount: &total}, nil),
		api.EXPECT().FetchPage(gomock.Any(), entities.Filter{}, 20, 10).
			Return(&remote.Page{Items: makePosts(5, 20), TotalCount: &total}, nil),
	)

	require.NoError(t, s.SetFilter(ctx, entities.Filter{}))
	require.True(t, s.HasMore())

	require.NoError(t, s.LoadMore(ctx))
	require.True(t, s.HasMore())

	require.NoError(t, s.LoadMore(ctx))
	assert.False(t, s.HasMore())
	assert.Len(t, s.Posts(), 25)

	// exhausted, no further calls
	require.NoError(t, s.LoadMore(ctx))
}

func TestStore_LoadMore_fullLastPage(t *testing.T) {
	s, api := newTestStore(t, WithPageSize(10))

	total := 20
	gomock.InOrder(
		api.EXPECT().FetchPage(gomock.Any(), entities.Filter{}, 0, 10).
			Return(&remote.Page{Items: makePosts(10, 0), TotalCount: &total}, nil),
		api.EXPECT().FetchPage(gomock.Any(), entities.Filter{}, 10, 10).
			Return(&remote.Page{Items: makePosts(10, 10), TotalCount: &total}, nil),
	)

	require.NoError(t, s.SetFilter(ctx, entities.Filter{}))
	require.NoError(t, s.LoadMore(ctx))

	// a full page at the exact total must not report more
	assert.False(t, s.HasMore())
}

func TestStore_LoadMore_shortPageEndsPagination(t *testing.T) {
	s, api := newTestStore(t, WithPageSize(10))

	api.EXPECT().FetchPage(gomock.Any(), entities.Filter{}, 0, 10).
		Return(&remote.Page{Items: makePosts(4, 0)}, nil)

	require.NoError(t, s.SetFilter(ctx, entities.Filter{}))

	assert.False(t, s.HasMore())
	assert.Len(t, s.Posts(), 4)
}

func TestStore_SetFilter_staleFetchDiscarded(t *testing.T) {
	s, api := newTestStore(t, WithPageSize(10))

	alice := "alice"
	oldFilter := entities.Filter{}
	newFilter := entities.Filter{Author: &alice}

	release := make(chan struct{})
	done := make(chan error, 1)

	api.EXPECT().FetchPage(gomock.Any(), oldFilter, 0, 10).
		DoAndReturn(func(context.Context, entities.Filter, int, int) (*remote.Page, error) {
			<-release
			return &remote.Page{Items: makePosts(10, 100)}, nil
		})
	api.EXPECT().FetchPage(gomock.Any(), newFilter, 0, 10).
		Return(&remote.Page{Items: makePosts(3, 0)}, nil)

	go func() { done <- s.SetFilter(ctx, oldFilter) }()

	// let the first fetch get issued before switching filters
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.SetFilter(ctx, newFilter))

	close(release)
	require.NoError(t, <-done)

	// the late result for the old filter must not leak into the new view
	assert.Len(t, s.Posts(), 3)
	for _, p := range s.Posts() {
		assert.NotContains(t, p.ID, "post-1")
	}
}

func TestStore_SetFilter_invalidFilter(t *testing.T) {
	s, _ := newTestStore(t)

	bad := entities.PostType("carrier-pigeon")
	err := s.SetFilter(ctx, entities.Filter{Type: &bad})

	var v *remote.ValidationError
	assert.ErrorAs(t, err, &v)
}

func TestStore_Refresh_keepsPendingEntries(t *testing.T) {
	s, api := newTestStore(t, WithPageSize(10))

	api.EXPECT().FetchPage(gomock.Any(), entities.Filter{}, 0, 10).
		Return(&remote.Page{Items: makePosts(3, 0)}, nil).Times(2)

	require.NoError(t, s.SetFilter(ctx, entities.Filter{}))

	// a failed create leaves no temp entry; simulate an in-flight one by
	// blocking the remote call
	release := make(chan struct{})
	api.EXPECT().CreatePost(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, *entities.Post) (*entities.Post, error) {
			<-release
			return serverPost("confirmed-id", 0), nil
		})

	done := make(chan struct{})
	go func() {
		_, _ = s.CreatePost(ctx, Draft{Content: "draft"})
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(s.Posts()) == 4
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Refresh(ctx))

	var tempKept bool
	for _, p := range s.Posts() {
		if entities.IsTempID(p.ID) {
			tempKept = true
		}
	}
	assert.True(t, tempKept, "pending entry must survive a refresh")

	close(release)
	<-done

	// the create resolved against the refreshed view: the temp entry is
	// swapped for the canonical record, not orphaned
	var ids []string
	for _, p := range s.Posts() {
		ids = append(ids, p.ID)
		assert.False(t, entities.IsTempID(p.ID))
	}
	assert.Contains(t, ids, "confirmed-id")
}

func TestStore_Refresh_failedCreateStillRollsBack(t *testing.T) {
	s, api := newTestStore(t, WithPageSize(10))

	api.EXPECT().FetchPage(gomock.Any(), entities.Filter{}, 0, 10).
		Return(&remote.Page{Items: makePosts(3, 0)}, nil).Times(2)

	require.NoError(t, s.SetFilter(ctx, entities.Filter{}))

	release := make(chan struct{})
	api.EXPECT().CreatePost(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, *entities.Post) (*entities.Post, error) {
			<-release
			return nil, &remote.NetworkError{Op: "create", Err: fmt.Errorf("boom")}
		})

	done := make(chan struct{})
	go func() {
		_, _ = s.CreatePost(ctx, Draft{Content: "draft"})
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(s.Posts()) == 4
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Refresh(ctx))

	close(release)
	<-done

	for _, p := range s.Posts() {
		assert.False(t, entities.IsTempID(p.ID), "failed create must not leave a temp entry")
	}
	assert.Len(t, s.Posts(), 3)
}

func TestStore_fetchError(t *testing.T) {
	s, api := newTestStore(t)

	api.EXPECT().FetchPage(gomock.Any(), entities.Filter{}, 0, defaultPageSize).
		Return(nil, &remote.NetworkError{Op: "fetch", Err: fmt.Errorf("boom")})

	err := s.SetFilter(ctx, entities.Filter{})
	require.Error(t, err)

	var netErr *remote.NetworkError
	assert.ErrorAs(t, err, &netErr)
	assert.Empty(t, s.Posts())
}

func TestStore_Close_discardsLateMutations(t *testing.T) {
	s, api := newTestStore(t, WithPageSize(10))

	api.EXPECT().FetchPage(gomock.Any(), entities.Filter{}, 0, 10).
		Return(&remote.Page{Items: makePosts(2, 0)}, nil)

	require.NoError(t, s.SetFilter(ctx, entities.Filter{}))
	s.Close()

	assert.Error(t, s.SetFilter(ctx, entities.Filter{}))
	assert.Error(t, s.Refresh(ctx))
	require.NoError(t, s.LoadMore(ctx))
}

type noopStream struct{}

func (noopStream) Subscribe(context.Context, string, func(realtime.Envelope)) (func(), error) {
	return func() {}, nil
}

func TestStore_AttachRealtime_rejectedAfterClose(t *testing.T) {
	s, _ := newTestStore(t)
	s.Close()

	m := realtime.NewManager(noopStream{})
	assert.Error(t, s.AttachRealtime(ctx, m, realtime.FeedChannel))
}
