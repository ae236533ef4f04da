package notes

import (
	"context"

	"github.com/mdobak/go-xerrors"

	"github.com/siahsang/notes/internal/cache"
	"github.com/siahsang/notes/internal/filter"
	"github.com/siahsang/notes/internal/policy"
	"github.com/siahsang/notes/internal/utils/htmlutils"
	"github.com/siahsang/notes/internal/validator"
	"github.com/siahsang/notes/models"
)

type ArticlePage struct {
	Articles []*models.Article `json:"articles"`
	Metadata filter.Metadata   `json:"metadata"`
}

type ArticleView struct {
	Article     *models.Article   `json:"article"`
	Comments    []*models.Comment `json:"comments"`
	Description string            `json:"description"`
}

type CategoryList struct {
	Categories []*models.Category `json:"categories"`
	Selected   int64              `json:"selected"`
}

// ListPublished returns one page of published articles, newest first. Pages are
// cached for the listing TTL, so a page may lag behind the store by at most that long.
func (s *Service) ListPublished(ctx context.Context, f models.ArticleFilter, page filter.Filter) (*ArticlePage, error) {
	v := validator.New()
	if filter.ValidateFilters(page, v); !v.IsValid() {
		return nil, invalid(v)
	}

	return cache.GetOrCompute(ctx, s.cache, articlesKey(f, page), s.cfg.ListingTTL, func(ctx context.Context) (*ArticlePage, error) {
		total, err := s.catalog.CountPublished(ctx, f)
		if err != nil {
			return nil, err
		}
		articles, err := s.catalog.ListPublished(ctx, f, page)
		if err != nil {
			return nil, err
		}
		return &ArticlePage{
			Articles: articles,
			Metadata: filter.CalculateMetadata(total, page),
		}, nil
	})
}

// ResolveCategory finds a category by its current slug or by one it had before a rename.
// Callers compare the returned slug with the requested one to redirect stale links.
func (s *Service) ResolveCategory(ctx context.Context, slug string) (*models.Category, error) {
	return s.catalog.GetCategoryBySlug(ctx, slug)
}

// ResolveTag is ResolveCategory for tags.
func (s *Service) ResolveTag(ctx context.Context, slug string) (*models.Tag, error) {
	return s.catalog.GetTagBySlug(ctx, slug)
}

// GetArticle returns the article with the comments actor may see. Articles the
// actor may not read are reported as missing.
func (s *Service) GetArticle(ctx context.Context, actor models.Actor, slug string) (*ArticleView, error) {
	article, err := s.catalog.GetArticleBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, policy.ReadArticle, policy.OnArticle(article)); err != nil {
		return nil, err
	}

	comments, err := s.catalog.ListComments(ctx, article.ID, models.CommentActive, models.CommentOnModerate, models.CommentHidden)
	if err != nil {
		return nil, err
	}

	visible := make([]*models.Comment, 0, len(comments))
	for _, comment := range comments {
		if policy.Authorize(actor, policy.ReadComment, policy.OnComment(article, comment)).Allowed {
			visible = append(visible, comment)
		}
	}

	return &ArticleView{
		Article:     article,
		Comments:    visible,
		Description: htmlutils.Describe(article.MetaDescription, article.ShortBody),
	}, nil
}

// ListCategories returns every category with its published article count.
// selected is echoed back and keys the cache entry.
func (s *Service) ListCategories(ctx context.Context, selected int64) (*CategoryList, error) {
	return cache.GetOrCompute(ctx, s.cache, categoriesKey(selected), s.cfg.TaxonomyTTL, func(ctx context.Context) (*CategoryList, error) {
		categories, err := s.catalog.ListCategoriesWithPublishedCount(ctx)
		if err != nil {
			return nil, err
		}
		return &CategoryList{Categories: categories, Selected: selected}, nil
	})
}

func (s *Service) ListTags(ctx context.Context) ([]models.Tag, error) {
	return cache.GetOrCompute(ctx, s.cache, tagsKey, s.cfg.TaxonomyTTL, s.catalog.ListTagsWithPublishedCount)
}

func (s *Service) LatestPublished(ctx context.Context) ([]*models.Article, error) {
	n := s.cfg.LatestCount
	return cache.GetOrCompute(ctx, s.cache, latestKey(n), s.cfg.ListingTTL, func(ctx context.Context) ([]*models.Article, error) {
		articles, err := s.catalog.LatestPublished(ctx, n)
		if err != nil {
			return nil, xerrors.New(err)
		}
		return articles, nil
	})
}
