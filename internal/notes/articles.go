package notes

import (
	"context"
	"errors"
	"slices"

	"github.com/siahsang/notes/internal/core"
	"github.com/siahsang/notes/internal/metrics"
	"github.com/siahsang/notes/internal/moderation"
	"github.com/siahsang/notes/internal/policy"
	"github.com/siahsang/notes/internal/utils/functional"
	"github.com/siahsang/notes/internal/validator"
	"github.com/siahsang/notes/models"
)

const (
	maxTitleLength           = 255
	maxShortBodyLength       = 2000
	maxMetaDescriptionLength = 160
	maxBulkSize              = 1000
)

type ArticleInput struct {
	Title           string                `json:"title"`
	ShortBody       string                `json:"shortBody"`
	FullBody        string                `json:"fullBody"`
	Status          *models.ArticleStatus `json:"status"`
	CategorySlug    string                `json:"category"`
	Tags            []string              `json:"tags"`
	MetaDescription *string               `json:"metaDescription"`
}

// ArticlePatch changes only the fields that are set. A nil Tags keeps the
// article's tags and an empty one removes them.
type ArticlePatch struct {
	Title           *string               `json:"title"`
	ShortBody       *string               `json:"shortBody"`
	FullBody        *string               `json:"fullBody"`
	Status          *models.ArticleStatus `json:"status"`
	CategorySlug    *string               `json:"category"`
	Tags            []string              `json:"tags"`
	MetaDescription *string               `json:"metaDescription"`
}

func validateArticle(v *validator.Validator, article *models.Article) {
	v.CheckNotBlank(article.Title, "title", "must be provided")
	v.CheckMaxLength(article.Title, maxTitleLength, "title", "must not be more than 255 characters long")
	v.CheckNotBlank(article.ShortBody, "shortBody", "must be provided")
	v.CheckMaxLength(article.ShortBody, maxShortBodyLength, "shortBody", "must not be more than 2000 characters long")
	if article.MetaDescription != nil {
		v.CheckMaxLength(*article.MetaDescription, maxMetaDescriptionLength, "metaDescription", "must not be more than 160 characters long")
	}
}

func (s *Service) CreateArticle(ctx context.Context, actor models.Actor, input ArticleInput) (*models.Article, error) {
	if err := authorize(actor, policy.CreateArticle, policy.Target{}); err != nil {
		return nil, err
	}

	article := &models.Article{
		Title:           input.Title,
		ShortBody:       input.ShortBody,
		FullBody:        input.FullBody,
		Status:          models.ArticleDraft,
		MetaDescription: input.MetaDescription,
		AuthorID:        &actor.UserID,
	}
	if input.Status != nil {
		article.Status = *input.Status
	}

	v := validator.New()
	validateArticle(v, article)
	v.CheckNotBlank(input.CategorySlug, "category", "must be provided")
	v.Check(v.IsUnique(input.Tags), "tags", "must not contain duplicate values")
	if !v.IsValid() {
		return nil, invalid(v)
	}

	if err := s.resolveCategory(ctx, article, input.CategorySlug); err != nil {
		return nil, err
	}
	tagIDs, err := s.resolveTags(ctx, actor, input.Tags)
	if err != nil {
		return nil, err
	}

	created, err := s.catalog.CreateArticle(ctx, article, tagIDs)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Article created", "slug", created.Slug, "status", created.Status.String(), "user_id", actor.UserID)
	if created.IsPublished() {
		metrics.ObserveTransition("article", created.Status.String())
	}
	return created, nil
}

// UpdateArticle applies patch to the article. The slug and the author never change.
func (s *Service) UpdateArticle(ctx context.Context, actor models.Actor, slug string, patch ArticlePatch) (*models.Article, error) {
	article, err := s.catalog.GetArticleBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, policy.UpdateArticle, policy.OnArticle(article)); err != nil {
		return nil, err
	}

	previous := article.Status
	if patch.Title != nil {
		article.Title = *patch.Title
	}
	if patch.ShortBody != nil {
		article.ShortBody = *patch.ShortBody
	}
	if patch.FullBody != nil {
		article.FullBody = *patch.FullBody
	}
	if patch.Status != nil {
		article.Status = *patch.Status
	}
	if patch.MetaDescription != nil {
		article.MetaDescription = patch.MetaDescription
	}

	v := validator.New()
	validateArticle(v, article)
	v.Check(v.IsUnique(patch.Tags), "tags", "must not contain duplicate values")
	if !v.IsValid() {
		return nil, invalid(v)
	}

	if patch.CategorySlug != nil {
		if err := s.resolveCategory(ctx, article, *patch.CategorySlug); err != nil {
			return nil, err
		}
	}

	var tagIDs []int64
	if patch.Tags != nil {
		if tagIDs, err = s.resolveTags(ctx, actor, patch.Tags); err != nil {
			return nil, err
		}
	}

	updated, err := s.catalog.UpdateArticle(ctx, article, tagIDs)
	if err != nil {
		return nil, err
	}

	if updated.Status != previous {
		metrics.ObserveTransition("article", updated.Status.String())
	}
	s.log.InfoContext(ctx, "Article updated", "slug", updated.Slug, "user_id", actor.UserID)
	return updated, nil
}

func (s *Service) DeleteArticle(ctx context.Context, actor models.Actor, slug string) error {
	article, err := s.catalog.GetArticleBySlug(ctx, slug)
	if err != nil {
		return err
	}
	if err := authorize(actor, policy.DeleteArticle, policy.OnArticle(article)); err != nil {
		return err
	}

	if err := s.catalog.DeleteArticle(ctx, article.ID); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Article deleted", "slug", slug, "user_id", actor.UserID)
	return nil
}

// SetArticleStatus publishes or unpublishes a single article.
func (s *Service) SetArticleStatus(ctx context.Context, actor models.Actor, slug string, event moderation.ArticleEvent) (*models.Article, error) {
	article, err := s.catalog.GetArticleBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, policy.ChangeArticleStatus, policy.OnArticle(article)); err != nil {
		return nil, err
	}

	next, err := moderation.NextArticleStatus(article.Status, event)
	if err != nil {
		return nil, invalidField("status", err.Error())
	}

	if _, err := s.catalog.SetArticlesStatus(ctx, []int64{article.ID}, next); err != nil {
		return nil, err
	}
	metrics.ObserveTransition("article", next.String())
	s.log.InfoContext(ctx, "Article status changed", "slug", slug, "status", next.String(), "user_id", actor.UserID)

	return s.catalog.GetArticleByID(ctx, article.ID)
}

// BulkSetStatus moves every listed article to status and returns how many changed.
func (s *Service) BulkSetStatus(ctx context.Context, actor models.Actor, ids []int64, status models.ArticleStatus) (int64, error) {
	if err := authorize(actor, policy.BulkChangeStatus, policy.Target{}); err != nil {
		return 0, err
	}

	v := validator.New()
	v.Check(len(ids) > 0, "ids", "must contain at least one article")
	v.Check(len(ids) <= maxBulkSize, "ids", "must not contain more than 1000 articles")
	v.Check(!slices.Contains(ids, 0), "ids", "must not contain zero")
	if !v.IsValid() {
		return 0, invalid(v)
	}

	affected, err := s.catalog.SetArticlesStatus(ctx, ids, status)
	if err != nil {
		return 0, err
	}
	s.log.InfoContext(ctx, "Article statuses changed", "count", affected, "status", status.String(), "user_id", actor.UserID)
	return affected, nil
}

func (s *Service) resolveCategory(ctx context.Context, article *models.Article, slug string) error {
	category, err := s.catalog.GetCategoryBySlug(ctx, slug)
	if errors.Is(err, core.NoRecordFound) {
		return invalidField("category", "does not exist")
	}
	if err != nil {
		return err
	}
	article.CategoryID = category.ID
	article.Category = category
	return nil
}

// resolveTags maps tag names to IDs. Superusers may introduce new tags on the
// fly; everyone else has to pick from the existing ones.
func (s *Service) resolveTags(ctx context.Context, actor models.Actor, names []string) ([]int64, error) {
	if len(names) == 0 {
		return []int64{}, nil
	}

	var (
		tags []models.Tag
		err  error
	)
	if actor.IsSuperuser {
		tags, err = s.catalog.EnsureTags(ctx, names)
	} else {
		slugs := functional.Filter(functional.Map(names, core.CreateSlug), func(slug string) bool { return slug != "" })
		slugs = slices.Compact(slices.Sorted(slices.Values(slugs)))
		tags, err = s.catalog.GetTagsBySlugs(ctx, slugs)
		if err == nil && len(tags) < len(slugs) {
			return nil, invalidField("tags", "must name existing tags")
		}
	}
	if err != nil {
		return nil, err
	}

	return functional.Map(tags, func(tag models.Tag) int64 { return tag.ID }), nil
}
