package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/feedmirror/internal/entities"
)

func comment(id string, age time.Duration) *entities.Comment {
	return &entities.Comment{
		ID:        id,
		PostID:    "post-1",
		AuthorID:  "alice",
		Content:   "comment " + id,
		CreatedAt: base.Add(-age),
		SyncState: entities.Confirmed,
	}
}

func commentIDs(list []*entities.Comment) []string {
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.ID
	}
	return out
}

func TestApplyComments_List(t *testing.T) {
	list := ApplyComments(nil, CommentList{Items: []*entities.Comment{
		comment("b", time.Hour),
		comment("a", 2*time.Hour),
		comment("b", time.Hour), // duplicate in the payload
	}})

	// oldest first
	assert.Equal(t, []string{"a", "b"}, commentIDs(list))
}

func TestApplyComments_optimisticLifecycle(t *testing.T) {
	list := ApplyComments(nil, CommentList{Items: []*entities.Comment{comment("a", time.Hour)}})

	draft := comment(entities.NewTempID(), 0)
	draft.SyncState = entities.Pending

	list = ApplyComments(list, CommentApply{Comment: draft})
	require.Equal(t, []string{"a", draft.ID}, commentIDs(list))

	canonical := comment("server-id", 0)
	list = ApplyComments(list, CommentConfirm{TempID: draft.ID, Comment: canonical})

	require.Equal(t, []string{"a", "server-id"}, commentIDs(list))
	assert.Equal(t, entities.Confirmed, list[1].SyncState)
}

func TestApplyComments_rollback(t *testing.T) {
	draft := comment(entities.NewTempID(), 0)
	draft.SyncState = entities.Pending

	list := ApplyComments(nil, CommentApply{Comment: draft})
	list = ApplyComments(list, CommentRollback{TempID: draft.ID})

	assert.Empty(t, list)
}

func TestApplyComments_pushInsertIdempotent(t *testing.T) {
	list := ApplyComments(nil, CommentPushInsert{Comment: comment("a", 0)})
	list = ApplyComments(list, CommentPushInsert{Comment: comment("a", 0)})

	assert.Equal(t, []string{"a"}, commentIDs(list))
}
