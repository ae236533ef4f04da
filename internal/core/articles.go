package core

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/mdobak/go-xerrors"

	"github.com/siahsang/notes/internal/filter"
	"github.com/siahsang/notes/internal/utils/collectionutils"
	"github.com/siahsang/notes/internal/utils/databaseutils"
	"github.com/siahsang/notes/internal/utils/functional"
	"github.com/siahsang/notes/models"
)

const maxSlugRaces = 3

const selectArticleSQL = `
	SELECT a.id, a.slug, a.title, a.short_body, a.full_body, a.status,
	       a.category_id, c.name, c.slug,
	       a.author_id, u.username, a.meta_description,
	       a.created_at, a.updated_at
	FROM articles a
	JOIN categories c ON c.id = a.category_id
	LEFT JOIN users u ON u.id = a.author_id
`

func scanArticle(rows *sql.Rows) (*models.Article, error) {
	article := &models.Article{Category: &models.Category{}, Tags: []models.Tag{}}
	if err := rows.Scan(
		&article.ID,
		&article.Slug,
		&article.Title,
		&article.ShortBody,
		&article.FullBody,
		&article.Status,
		&article.CategoryID,
		&article.Category.Name,
		&article.Category.Slug,
		&article.AuthorID,
		&article.Author,
		&article.MetaDescription,
		&article.CreatedAt,
		&article.UpdatedAt,
	); err != nil {
		return nil, xerrors.New(err)
	}
	article.Category.ID = article.CategoryID
	return article, nil
}

// CreateArticle stores article with a slug derived from its title, made unique
// with a numeric suffix, and attaches tagIDs in the same transaction.
func (c *Core) CreateArticle(ctx context.Context, article *models.Article, tagIDs []int64) (*models.Article, error) {
	const insertSQL = `
		INSERT INTO articles (slug, title, short_body, full_body, status, category_id, author_id, meta_description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	base := CreateSlug(article.Title)
	for attempt := 0; attempt < maxSlugRaces; attempt++ {
		slug, err := c.freeSlug(ctx, "articles", base)
		if err != nil {
			return nil, err
		}

		id, err := databaseutils.DoTransactionally(ctx, c.session, func(txCtx context.Context) (int64, error) {
			id, err := databaseutils.ExecuteSingleQuery(c.sqlTemplate, txCtx, insertSQL, func(rows *sql.Rows) (int64, error) {
				var id int64
				err := rows.Scan(&id)
				return id, err
			}, slug, article.Title, article.ShortBody, article.FullBody, article.Status,
				article.CategoryID, article.AuthorID, article.MetaDescription)
			if err != nil {
				return 0, err
			}
			return id, c.setArticleTags(txCtx, id, tagIDs)
		})

		if err != nil {
			if constraint, ok := violatedConstraint(err, uniqueViolation); ok && constraint == "articles_slug_key" {
				c.log.Warn("Slug taken concurrently, retrying", "slug", slug, "attempt", attempt+1)
				continue
			}
			return nil, xerrors.New(err)
		}

		c.log.Info("Article created", "article_id", id, "slug", slug)
		return c.GetArticleByID(ctx, id)
	}

	return nil, xerrors.New(ErrDuplicatedSlug)
}

// UpdateArticle writes the article's fields and status in one transaction. A nil
// tagIDs leaves the tags as they are; an empty one removes them all. The slug
// never changes.
func (c *Core) UpdateArticle(ctx context.Context, article *models.Article, tagIDs []int64) (*models.Article, error) {
	const updateSQL = `
		UPDATE articles
		SET title = $1, short_body = $2, full_body = $3, status = $4,
		    category_id = $5, meta_description = $6, updated_at = now()
		WHERE id = $7
	`

	err := c.session.DoTransactionally(ctx, func(txCtx context.Context) error {
		affected, err := databaseutils.Execute(c.sqlTemplate, txCtx, updateSQL,
			article.Title, article.ShortBody, article.FullBody, article.Status,
			article.CategoryID, article.MetaDescription, article.ID)
		if err != nil {
			return xerrors.New(err)
		}
		if affected == 0 {
			return xerrors.New(NoRecordFound)
		}
		if tagIDs == nil {
			return nil
		}
		return c.setArticleTags(txCtx, article.ID, tagIDs)
	})
	if err != nil {
		return nil, err
	}

	return c.GetArticleByID(ctx, article.ID)
}

func (c *Core) setArticleTags(ctx context.Context, articleID int64, tagIDs []int64) error {
	if _, err := databaseutils.Execute(c.sqlTemplate, ctx, `DELETE FROM article_tags WHERE article_id = $1`, articleID); err != nil {
		return xerrors.New(err)
	}
	if len(tagIDs) == 0 {
		return nil
	}

	const insertSQL = `
		INSERT INTO article_tags (article_id, tag_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING
	`
	if _, err := databaseutils.Execute(c.sqlTemplate, ctx, insertSQL, articleID, pq.Array(tagIDs)); err != nil {
		return xerrors.New(err)
	}
	return nil
}

// SetArticlesStatus moves every listed article to status and returns how many changed.
func (c *Core) SetArticlesStatus(ctx context.Context, ids []int64, status models.ArticleStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	const updateSQL = `
		UPDATE articles
		SET status = $1, updated_at = now()
		WHERE id = ANY($2) AND status <> $1
	`
	affected, err := databaseutils.Execute(c.sqlTemplate, ctx, updateSQL, status, pq.Array(ids))
	if err != nil {
		return 0, xerrors.New(err)
	}

	c.log.Info("Article status changed", "status", status.String(), "count", affected)
	return affected, nil
}

func (c *Core) DeleteArticle(ctx context.Context, id int64) error {
	affected, err := databaseutils.Execute(c.sqlTemplate, ctx, `DELETE FROM articles WHERE id = $1`, id)
	if err != nil {
		return xerrors.New(err)
	}
	if affected == 0 {
		return xerrors.New(NoRecordFound)
	}
	return nil
}

func (c *Core) GetArticleBySlug(ctx context.Context, slug string) (*models.Article, error) {
	return c.getArticle(ctx, "a.slug = $1", slug)
}

func (c *Core) GetArticleByID(ctx context.Context, id int64) (*models.Article, error) {
	return c.getArticle(ctx, "a.id = $1", id)
}

func (c *Core) getArticle(ctx context.Context, where string, arg any) (*models.Article, error) {
	article, err := databaseutils.ExecuteSingleQuery(c.sqlTemplate, ctx, selectArticleSQL+" WHERE "+where, scanArticle, arg)
	if err != nil {
		return nil, notFoundOr(err)
	}

	if err := c.loadTags(ctx, []*models.Article{article}); err != nil {
		return nil, err
	}
	return article, nil
}

func publishedWhere(f models.ArticleFilter) (string, []any) {
	conditions := []string{"a.status = 1"}
	var args []any

	if f.CategorySlug != "" {
		args = append(args, f.CategorySlug)
		conditions = append(conditions, fmt.Sprintf("c.slug = $%d", len(args)))
	}
	if f.TagSlug != "" {
		args = append(args, f.TagSlug)
		conditions = append(conditions, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM article_tags at
			JOIN tags t ON t.id = at.tag_id
			WHERE at.article_id = a.id AND t.slug = $%d)`, len(args)))
	}

	return strings.Join(conditions, " AND "), args
}

// ListPublished returns one page of published articles, most recently updated first.
func (c *Core) ListPublished(ctx context.Context, f models.ArticleFilter, page filter.Filter) ([]*models.Article, error) {
	where, args := publishedWhere(f)
	query := fmt.Sprintf(`%s
		WHERE %s
		ORDER BY a.updated_at DESC, a.title ASC, a.id ASC
		LIMIT $%d OFFSET $%d`, selectArticleSQL, where, len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset)

	articles, err := databaseutils.ExecuteQuery(c.sqlTemplate, ctx, query, scanArticle, args...)
	if err != nil {
		return nil, xerrors.New(err)
	}

	if err := c.loadTags(ctx, articles); err != nil {
		return nil, err
	}
	return nonNil(articles), nil
}

func (c *Core) CountPublished(ctx context.Context, f models.ArticleFilter) (int64, error) {
	where, args := publishedWhere(f)
	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM articles a
		JOIN categories c ON c.id = a.category_id
		WHERE %s`, where)

	count, err := databaseutils.ExecuteSingleQuery(c.sqlTemplate, ctx, query, func(rows *sql.Rows) (int64, error) {
		var count int64
		err := rows.Scan(&count)
		return count, err
	}, args...)
	if err != nil {
		return 0, xerrors.New(err)
	}
	return count, nil
}

func (c *Core) LatestPublished(ctx context.Context, n int) ([]*models.Article, error) {
	query := selectArticleSQL + `
		WHERE a.status = 1
		ORDER BY a.updated_at DESC, a.id DESC
		LIMIT $1`

	articles, err := databaseutils.ExecuteQuery(c.sqlTemplate, ctx, query, scanArticle, n)
	if err != nil {
		return nil, xerrors.New(err)
	}
	if err := c.loadTags(ctx, articles); err != nil {
		return nil, err
	}
	return nonNil(articles), nil
}

type articleTag struct {
	articleID int64
	tag       models.Tag
}

func (c *Core) loadTags(ctx context.Context, articles []*models.Article) error {
	if len(articles) == 0 {
		return nil
	}

	const selectSQL = `
		SELECT at.article_id, t.id, t.name, t.slug
		FROM article_tags at
		JOIN tags t ON t.id = at.tag_id
		WHERE at.article_id = ANY($1)
		ORDER BY t.name, t.id
	`
	ids := functional.Map(articles, func(a *models.Article) int64 { return a.ID })
	rows, err := databaseutils.ExecuteQuery(c.sqlTemplate, ctx, selectSQL, func(rows *sql.Rows) (articleTag, error) {
		var at articleTag
		err := rows.Scan(&at.articleID, &at.tag.ID, &at.tag.Name, &at.tag.Slug)
		return at, err
	}, pq.Array(ids))
	if err != nil {
		return xerrors.New(err)
	}

	byArticle := collectionutils.GroupBy(rows, func(at articleTag) int64 { return at.articleID })
	for _, article := range articles {
		article.Tags = functional.Map(byArticle[article.ID], func(at articleTag) models.Tag { return at.tag })
	}
	return nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
