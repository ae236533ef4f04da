// Package policy decides which actor may do what to which article or comment.
//
// Authorize is pure: it looks only at the actor and the target it is given and
// never touches the store, so callers load the target first.
package policy

import "github.com/siahsang/notes/models"

type Action string

const (
	ReadArticle         Action = "read-article"
	CreateArticle       Action = "create-article"
	UpdateArticle       Action = "update-article"
	DeleteArticle       Action = "delete-article"
	ChangeArticleStatus Action = "change-article-status"
	BulkChangeStatus    Action = "bulk-change-status"
	ReadComment         Action = "read-comment"
	CreateComment       Action = "create-comment"
	UpdateComment       Action = "update-comment"
	DeleteComment       Action = "delete-comment"
	ApproveComment      Action = "approve-comment"
	HideComment         Action = "hide-comment"
	ManageTaxonomy      Action = "manage-taxonomy"
)

const (
	ReasonNotOwner               = "not owner"
	ReasonAuthenticationRequired = "authentication required"
	ReasonMissingAuthorGrant     = "missing can-author grant"
	ReasonModeratorRequired      = "moderator capability required"
	ReasonSuperuserRequired      = "superuser required"
	ReasonArticleNotVisible      = "article not visible"
	ReasonUnknownAction          = "unknown action"
)

// Target is the entity an action applies to. Comment actions need the comment's
// article as well when the article's visibility matters.
type Target struct {
	Article *models.Article
	Comment *models.Comment
}

func OnArticle(article *models.Article) Target {
	return Target{Article: article}
}

func OnComment(article *models.Article, comment *models.Comment) Target {
	return Target{Article: article, Comment: comment}
}

type Decision struct {
	Allowed bool
	Reason  string
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

func Authorize(actor models.Actor, action Action, target Target) Decision {
	switch action {
	case ReadArticle:
		return canReadArticle(actor, target.Article)

	case CreateArticle:
		if actor.IsAnonymous() {
			return Deny(ReasonAuthenticationRequired)
		}
		if !actor.CanAuthor() {
			return Deny(ReasonMissingAuthorGrant)
		}
		return Allow()

	case UpdateArticle, DeleteArticle, ChangeArticleStatus:
		if target.Article == nil {
			return Deny(ReasonArticleNotVisible)
		}
		return ownerOrModerator(actor, target.Article.IsOwnedBy(actor.UserID))

	case BulkChangeStatus, ApproveComment, HideComment:
		return moderatorOnly(actor)

	case CreateComment:
		return canReadArticle(actor, target.Article)

	case ReadComment:
		if target.Comment == nil {
			return Deny(ReasonUnknownAction)
		}
		if target.Comment.IsActive() || target.Comment.IsAuthoredBy(actor.UserID) || actor.IsModerator() {
			return Allow()
		}
		return Deny(ReasonNotOwner)

	case UpdateComment, DeleteComment:
		if target.Comment == nil {
			return Deny(ReasonUnknownAction)
		}
		return ownerOrModerator(actor, target.Comment.IsAuthoredBy(actor.UserID))

	case ManageTaxonomy:
		if actor.IsAnonymous() {
			return Deny(ReasonAuthenticationRequired)
		}
		if !actor.IsSuperuser {
			return Deny(ReasonSuperuserRequired)
		}
		return Allow()

	default:
		return Deny(ReasonUnknownAction)
	}
}

func canReadArticle(actor models.Actor, article *models.Article) Decision {
	if article == nil {
		return Deny(ReasonArticleNotVisible)
	}
	if article.IsPublished() || article.IsOwnedBy(actor.UserID) || actor.IsModerator() {
		return Allow()
	}
	return Deny(ReasonArticleNotVisible)
}

func ownerOrModerator(actor models.Actor, isOwner bool) Decision {
	if isOwner || actor.IsModerator() {
		return Allow()
	}
	if actor.IsAnonymous() {
		return Deny(ReasonAuthenticationRequired)
	}
	return Deny(ReasonNotOwner)
}

func moderatorOnly(actor models.Actor) Decision {
	if actor.IsAnonymous() {
		return Deny(ReasonAuthenticationRequired)
	}
	if !actor.IsModerator() {
		return Deny(ReasonModeratorRequired)
	}
	return Allow()
}
