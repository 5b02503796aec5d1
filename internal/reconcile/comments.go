package reconcile

import (
	"sort"

	"github.com/pulseboard/feedmirror/internal/entities"
)

// CommentChange is one incoming modification of a per-post comment list.
type CommentChange interface {
	isCommentChange()
}

// CommentList replaces the list with the fetched server records.
type CommentList struct {
	Items []*entities.Comment
}

// CommentApply inserts a locally created, not-yet-confirmed comment.
type CommentApply struct {
	Comment *entities.Comment
}

// CommentConfirm replaces the temp-id comment with the canonical record.
type CommentConfirm struct {
	TempID  string
	Comment *entities.Comment
}

// CommentRollback removes the temp-id comment.
type CommentRollback struct {
	TempID string
}

// CommentPushInsert applies a remote comment INSERT idempotently.
type CommentPushInsert struct {
	Comment *entities.Comment
}

func (CommentList) isCommentChange()       {}
func (CommentApply) isCommentChange()      {}
func (CommentConfirm) isCommentChange()    {}
func (CommentRollback) isCommentChange()   {}
func (CommentPushInsert) isCommentChange() {}

// ApplyComments produces the next comment list for a post. Same contract as
// Apply: the input is untouched and unknown ids degrade to a no-op.
func ApplyComments(list []*entities.Comment, change CommentChange) []*entities.Comment {
	switch c := change.(type) {
	case CommentList:
		out := make([]*entities.Comment, 0, len(c.Items))
		for _, v := range c.Items {
			if v == nil || commentIndexOf(out, v.ID) >= 0 {
				continue
			}
			cc := v.Clone()
			cc.SyncState = entities.Confirmed
			out = append(out, cc)
		}
		sortComments(out)
		return out
	case CommentApply:
		if c.Comment == nil || commentIndexOf(list, c.Comment.ID) >= 0 {
			return list
		}
		return insertComment(list, c.Comment.Clone())
	case CommentConfirm:
		if c.Comment == nil {
			return list
		}
		i := commentIndexOf(list, c.TempID)
		if i < 0 {
			return list
		}
		out := append([]*entities.Comment(nil), list...)
		cc := c.Comment.Clone()
		cc.SyncState = entities.Confirmed
		out[i] = cc
		sortComments(out)
		return out
	case CommentRollback:
		return removeComment(list, c.TempID)
	case CommentPushInsert:
		if c.Comment == nil || commentIndexOf(list, c.Comment.ID) >= 0 {
			return list
		}
		cc := c.Comment.Clone()
		cc.SyncState = entities.Confirmed
		return insertComment(list, cc)
	default:
		return list
	}
}

func insertComment(list []*entities.Comment, c *entities.Comment) []*entities.Comment {
	out := append([]*entities.Comment(nil), list...)
	out = append(out, c)
	sortComments(out)

	return out
}

func removeComment(list []*entities.Comment, id string) []*entities.Comment {
	i := commentIndexOf(list, id)
	if i < 0 {
		return list
	}

	out := make([]*entities.Comment, 0, len(list)-1)
	out = append(out, list[:i]...)
	out = append(out, list[i+1:]...)

	return out
}

func commentIndexOf(list []*entities.Comment, id string) int {
	for i, c := range list {
		if c.ID == id {
			return i
		}
	}

	return -1
}

func sortComments(list []*entities.Comment) {
	sort.SliceStable(list, func(i, j int) bool { return entities.CommentLess(list[i], list[j]) })
}
