// Package moderation holds the comment and article state machines.
package moderation

import (
	"github.com/mdobak/go-xerrors"

	"github.com/siahsang/notes/models"
)

var ErrIllegalTransition = xerrors.Message("Illegal status transition")

type CommentEvent string

const (
	Approve CommentEvent = "approve"
	Hide    CommentEvent = "hide"
	Delete  CommentEvent = "delete"
)

type ArticleEvent string

const (
	Publish   ArticleEvent = "publish"
	Unpublish ArticleEvent = "unpublish"
)

type commentTransition struct {
	from  models.CommentStatus
	event CommentEvent
}

var commentTransitions = map[commentTransition]models.CommentStatus{
	{models.CommentOnModerate, Approve}: models.CommentActive,
	{models.CommentActive, Hide}:        models.CommentHidden,
	{models.CommentActive, Delete}:      models.CommentDeleted,
	{models.CommentOnModerate, Delete}:  models.CommentDeleted,
	{models.CommentHidden, Delete}:      models.CommentDeleted,
}

// InitialCommentStatus auto-approves comments written by moderators.
func InitialCommentStatus(author models.Actor) models.CommentStatus {
	if author.IsModerator() {
		return models.CommentActive
	}
	return models.CommentOnModerate
}

func NextCommentStatus(current models.CommentStatus, event CommentEvent) (models.CommentStatus, error) {
	next, ok := commentTransitions[commentTransition{current, event}]
	if !ok {
		return current, xerrors.Newf("%w: cannot %s a comment in status %s", ErrIllegalTransition, event, current)
	}
	return next, nil
}

// StatusAfterEdit returns the status a comment gets once editor changed its body.
// A regular author editing an approved comment sends it back to moderation.
func StatusAfterEdit(current models.CommentStatus, editor models.Actor) models.CommentStatus {
	if editor.IsModerator() {
		return current
	}
	if current == models.CommentActive {
		return models.CommentOnModerate
	}
	return current
}

func NextArticleStatus(current models.ArticleStatus, event ArticleEvent) (models.ArticleStatus, error) {
	switch {
	case event == Publish && current == models.ArticleDraft:
		return models.ArticlePublished, nil
	case event == Unpublish && current == models.ArticlePublished:
		return models.ArticleDraft, nil
	default:
		return current, xerrors.Newf("%w: cannot %s an article in status %s", ErrIllegalTransition, event, current)
	}
}
