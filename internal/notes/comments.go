package notes

import (
	"context"
	"fmt"
	"strings"

	"github.com/siahsang/notes/internal/metrics"
	"github.com/siahsang/notes/internal/moderation"
	"github.com/siahsang/notes/internal/notify"
	"github.com/siahsang/notes/internal/policy"
	"github.com/siahsang/notes/internal/utils/stringutils"
	"github.com/siahsang/notes/internal/validator"
	"github.com/siahsang/notes/models"
)

const (
	maxCommentLength    = 5000
	maxAuthorNameLength = 100
	commentExcerpt      = 200
)

type CommentInput struct {
	Body string `json:"body"`
	// AuthorName is required from anonymous commenters and ignored otherwise.
	AuthorName string `json:"author"`
}

// AddComment stores a comment on a readable article. Comments by moderators are
// published at once, all others wait for approval.
func (s *Service) AddComment(ctx context.Context, actor models.Actor, slug string, input CommentInput) (*models.Comment, error) {
	article, err := s.catalog.GetArticleBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, policy.CreateComment, policy.OnArticle(article)); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		ArticleID: article.ID,
		Body:      strings.TrimSpace(input.Body),
		Status:    moderation.InitialCommentStatus(actor),
	}
	if actor.IsAnonymous() {
		comment.AuthorName = strings.TrimSpace(input.AuthorName)
	} else {
		comment.AuthorID = &actor.UserID
		comment.AuthorName = actor.Username
	}

	v := validator.New()
	v.CheckNotBlank(comment.Body, "body", "must be provided")
	v.CheckMaxLength(comment.Body, maxCommentLength, "body", "must not be more than 5000 characters long")
	v.CheckNotBlank(comment.AuthorName, "author", "must be provided")
	v.CheckMaxLength(comment.AuthorName, maxAuthorNameLength, "author", "must not be more than 100 characters long")
	if !v.IsValid() {
		return nil, invalid(v)
	}

	created, err := s.catalog.CreateComment(ctx, comment)
	if err != nil {
		return nil, err
	}

	metrics.ObserveTransition("comment", created.Status.String())
	s.log.InfoContext(ctx, "Comment added", "comment_id", created.ID, "article", article.Slug, "status", created.Status.String())
	s.notifyComment(ctx, "added", article, created)
	return created, nil
}

// EditComment replaces the comment body. See moderation.StatusAfterEdit for how
// the status follows the edit.
func (s *Service) EditComment(ctx context.Context, actor models.Actor, id int64, body string) (*models.Comment, error) {
	comment, article, err := s.loadComment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, policy.UpdateComment, policy.OnComment(article, comment)); err != nil {
		return nil, err
	}

	body = strings.TrimSpace(body)
	v := validator.New()
	v.CheckNotBlank(body, "body", "must be provided")
	v.CheckMaxLength(body, maxCommentLength, "body", "must not be more than 5000 characters long")
	if !v.IsValid() {
		return nil, invalid(v)
	}

	status := moderation.StatusAfterEdit(comment.Status, actor)
	updatedAt, err := s.catalog.UpdateComment(ctx, comment.ID, body, status)
	if err != nil {
		return nil, err
	}

	if status != comment.Status {
		metrics.ObserveTransition("comment", status.String())
	}
	comment.Body = body
	comment.Status = status
	comment.UpdatedAt = updatedAt

	s.log.InfoContext(ctx, "Comment edited", "comment_id", comment.ID, "status", status.String(), "user_id", actor.UserID)
	s.notifyComment(ctx, "edited", article, comment)
	return comment, nil
}

// DeleteComment removes the comment for good.
func (s *Service) DeleteComment(ctx context.Context, actor models.Actor, id int64) error {
	comment, article, err := s.loadComment(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(actor, policy.DeleteComment, policy.OnComment(article, comment)); err != nil {
		return err
	}
	if _, err := moderation.NextCommentStatus(comment.Status, moderation.Delete); err != nil {
		return invalidField("status", err.Error())
	}

	if err := s.catalog.DeleteComment(ctx, comment.ID); err != nil {
		return err
	}
	metrics.ObserveTransition("comment", models.CommentDeleted.String())
	s.log.InfoContext(ctx, "Comment deleted", "comment_id", comment.ID, "user_id", actor.UserID)
	return nil
}

func (s *Service) ApproveComment(ctx context.Context, actor models.Actor, id int64) (*models.Comment, error) {
	return s.moderateComment(ctx, actor, id, policy.ApproveComment, moderation.Approve)
}

func (s *Service) HideComment(ctx context.Context, actor models.Actor, id int64) (*models.Comment, error) {
	return s.moderateComment(ctx, actor, id, policy.HideComment, moderation.Hide)
}

func (s *Service) moderateComment(ctx context.Context, actor models.Actor, id int64, action policy.Action, event moderation.CommentEvent) (*models.Comment, error) {
	comment, article, err := s.loadComment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, action, policy.OnComment(article, comment)); err != nil {
		return nil, err
	}

	next, err := moderation.NextCommentStatus(comment.Status, event)
	if err != nil {
		return nil, invalidField("status", err.Error())
	}
	if err := s.catalog.UpdateCommentStatus(ctx, comment.ID, next); err != nil {
		return nil, err
	}

	metrics.ObserveTransition("comment", next.String())
	s.log.InfoContext(ctx, "Comment moderated", "comment_id", comment.ID, "event", string(event), "status", next.String(), "user_id", actor.UserID)

	return s.catalog.GetComment(ctx, comment.ID)
}

func (s *Service) loadComment(ctx context.Context, id int64) (*models.Comment, *models.Article, error) {
	comment, err := s.catalog.GetComment(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	article, err := s.catalog.GetArticleByID(ctx, comment.ArticleID)
	if err != nil {
		return nil, nil, err
	}
	return comment, article, nil
}

func (s *Service) notifyComment(ctx context.Context, action string, article *models.Article, comment *models.Comment) {
	subject := "Comment " + action
	if comment.Status == models.CommentOnModerate {
		subject = "Comment " + action + ", awaiting moderation"
	}

	body := fmt.Sprintf("Author: %s\nArticle: %s\nText: %s",
		comment.AuthorName, article.Title, stringutils.Truncate(comment.Body, commentExcerpt, "..."))

	origin := originFrom(ctx)
	s.notifier.Dispatch(ctx, notify.Event{
		Subject: subject,
		Body:    body,
		Metadata: map[string]string{
			"article_url": origin.BaseURL + "/api/articles/" + article.Slug,
			"full_text":   comment.Body,
			"status":      comment.Status.String(),
		},
		RemoteAddr: origin.RemoteAddr,
		UserAgent:  origin.UserAgent,
	})
}
