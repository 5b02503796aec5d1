package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLess(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	p := func(id string, created time.Time) *Post {
		return &Post{ID: id, CreatedAt: created, UpdatedAt: created}
	}

	tt := []struct {
		name string
		a, b *Post
		less bool
	}{
		{
			name: "newer first",
			a:    p("a", base.Add(time.Minute)),
			b:    p("b", base),
			less: true,
		},
		{
			name: "older last",
			a:    p("a", base),
			b:    p("b", base.Add(time.Minute)),
			less: false,
		},
		{
			name: "same timestamp breaks on id desc",
			a:    p("b", base),
			b:    p("a", base),
			less: true,
		},
		{
			name: "pinned precedes newer unpinned",
			a:    &Post{ID: "a", CreatedAt: base.Add(-time.Hour), UpdatedAt: base.Add(-time.Hour), Pinned: true},
			b:    p("b", base),
			less: true,
		},
		{
			name: "pinned ordered by updated_at desc",
			a:    &Post{ID: "a", CreatedAt: base.Add(-time.Hour), UpdatedAt: base, Pinned: true},
			b:    &Post{ID: "b", CreatedAt: base, UpdatedAt: base.Add(-time.Hour), Pinned: true},
			less: true,
		},
	}

	for i := range tt {
		tc := tt[i]
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.less, Less(tc.a, tc.b))
		})
	}
}

func TestCommentLess(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, CommentLess(&Comment{ID: "a", CreatedAt: base}, &Comment{ID: "b", CreatedAt: base.Add(time.Second)}))
	assert.False(t, CommentLess(&Comment{ID: "a", CreatedAt: base.Add(time.Second)}, &Comment{ID: "b", CreatedAt: base}))
	assert.True(t, CommentLess(&Comment{ID: "a", CreatedAt: base}, &Comment{ID: "b", CreatedAt: base}))
}

func TestFilter_Validate(t *testing.T) {
	from, to := time.Unix(100, 0), time.Unix(200, 0)

	require.NoError(t, Filter{}.Validate())

	tp := TypeMedia
	require.NoError(t, Filter{Type: &tp, From: &from, To: &to}.Validate())

	bad := PostType("hologram")
	require.Error(t, Filter{Type: &bad}.Validate())
	require.Error(t, Filter{From: &to, To: &from}.Validate())
}

func TestFilter_Matches(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	post := &Post{ID: "p1", AuthorID: "alice", Type: TypeText, CreatedAt: base}

	assert.True(t, Filter{}.Matches(post))

	tp := TypeText
	author := "alice"
	from := base.Add(-time.Hour)
	to := base.Add(time.Hour)
	assert.True(t, Filter{Type: &tp, Author: &author, From: &from, To: &to}.Matches(post))

	other := TypeMedia
	assert.False(t, Filter{Type: &other}.Matches(post))

	bob := "bob"
	assert.False(t, Filter{Author: &bob}.Matches(post))

	late := base.Add(time.Minute)
	assert.False(t, Filter{From: &late}.Matches(post))

	early := base.Add(-time.Minute)
	assert.False(t, Filter{To: &early}.Matches(post))
}

func TestTempID(t *testing.T) {
	id := NewTempID()

	assert.True(t, IsTempID(id))
	assert.False(t, IsTempID("8b9f2c1a-1111-2222-3333-444455556666"))
	assert.NotEqual(t, id, NewTempID())
}

func TestPost_Clone(t *testing.T) {
	p := &Post{ID: "p1", MediaURLs: []string{"/v1/media/a.png"}}

	c := p.Clone()
	c.MediaURLs[0] = "changed"
	c.Content = "changed"

	assert.Equal(t, "/v1/media/a.png", p.MediaURLs[0])
	assert.Empty(t, p.Content)
}
