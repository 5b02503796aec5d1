package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/feedmirror/internal/entities"
)

func TestNormalize(t *testing.T) {
	postBody := json.RawMessage(`{
		"id": "p1",
		"author_id": "alice",
		"content": "hello",
		"type": "text",
		"visibility": "public",
		"likes_count": 2,
		"version": 3
	}`)

	tt := []struct {
		name    string
		env     Envelope
		expect  Event
		wantErr bool
	}{
		{
			name: "post inserted",
			env:  Envelope{Channel: FeedChannel, Kind: KindPostInserted, Post: postBody},
			expect: PostInserted{Post: &entities.Post{
				ID:         "p1",
				AuthorID:   "alice",
				Content:    "hello",
				Type:       entities.TypeText,
				Visibility: entities.VisibilityPublic,
				LikesCount: 2,
				Version:    3,
				SyncState:  entities.Confirmed,
			}},
		},
		{
			name: "post updated takes envelope version when payload lacks one",
			env: Envelope{
				Channel: FeedChannel,
				Kind:    KindPostUpdated,
				Version: 7,
				Post:    json.RawMessage(`{"id": "p1"}`),
			},
			expect: PostUpdated{Post: &entities.Post{
				ID:        "p1",
				Version:   7,
				SyncState: entities.Confirmed,
			}},
		},
		{
			name:   "post deleted",
			env:    Envelope{Channel: FeedChannel, Kind: KindPostDeleted, PostID: "p1"},
			expect: PostDeleted{ID: "p1"},
		},
		{
			name:   "like set",
			env:    Envelope{Channel: FeedChannel, Kind: KindLikeSet, PostID: "p1", Version: 4},
			expect: LikeDelta{PostID: "p1", Delta: 1, Version: 4},
		},
		{
			name:   "like unset",
			env:    Envelope{Channel: FeedChannel, Kind: KindLikeUnset, PostID: "p1", Version: 5},
			expect: LikeDelta{PostID: "p1", Delta: -1, Version: 5},
		},
		{
			name: "comment inserted",
			env: Envelope{
				Channel: FeedChannel,
				Kind:    KindCommentInserted,
				Comment: json.RawMessage(`{"id": "c1", "post_id": "p1", "author_id": "bob"}`),
			},
			expect: CommentInserted{Comment: &entities.Comment{
				ID:        "c1",
				PostID:    "p1",
				AuthorID:  "bob",
				SyncState: entities.Confirmed,
			}},
		},
		{
			name:    "unknown kind",
			env:     Envelope{Channel: FeedChannel, Kind: "poke"},
			wantErr: true,
		},
		{
			name:    "post payload without id",
			env:     Envelope{Channel: FeedChannel, Kind: KindPostInserted, Post: json.RawMessage(`{}`)},
			wantErr: true,
		},
		{
			name:    "delete without id",
			env:     Envelope{Channel: FeedChannel, Kind: KindPostDeleted},
			wantErr: true,
		},
		{
			name:    "malformed payload",
			env:     Envelope{Channel: FeedChannel, Kind: KindPostInserted, Post: json.RawMessage(`{`)},
			wantErr: true,
		},
	}

	for i := range tt {
		tc := tt[i]
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Normalize(tc.env)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expect, ev)
		})
	}
}
