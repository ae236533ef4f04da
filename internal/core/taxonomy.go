package core

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/mdobak/go-xerrors"

	"github.com/siahsang/notes/internal/utils/databaseutils"
	"github.com/siahsang/notes/internal/utils/functional"
	"github.com/siahsang/notes/models"
)

// term is the shape shared by categories and tags. Both models convert to and from it.
type term struct {
	ID             int64
	Name           string
	Slug           string
	PublishedCount int64
}

type taxonomy struct {
	table      string
	aliasTable string
	aliasKey   string
	// countSQL lists the terms that have published articles with their count.
	countSQL string
}

var (
	categories = taxonomy{
		table:      "categories",
		aliasTable: "category_slug_aliases",
		aliasKey:   "category_id",
		countSQL: `
			SELECT c.id, c.name, c.slug, COUNT(a.id)
			FROM categories c
			JOIN articles a ON a.category_id = c.id AND a.status = 1
			GROUP BY c.id
			ORDER BY c.name, c.id`,
	}
	tags = taxonomy{
		table:      "tags",
		aliasTable: "tag_slug_aliases",
		aliasKey:   "tag_id",
		countSQL: `
			SELECT t.id, t.name, t.slug, COUNT(a.id)
			FROM tags t
			JOIN article_tags at ON at.tag_id = t.id
			JOIN articles a ON a.id = at.article_id AND a.status = 1
			GROUP BY t.id
			ORDER BY t.name, t.id`,
	}
)

func scanTerm(rows *sql.Rows) (term, error) {
	var t term
	err := rows.Scan(&t.ID, &t.Name, &t.Slug)
	return t, err
}

func scanCountedTerm(rows *sql.Rows) (term, error) {
	var t term
	err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.PublishedCount)
	return t, err
}

// getBySlug matches the current slug first, then slugs the term had before a rename.
func (c *Core) getBySlug(ctx context.Context, tx taxonomy, slug string) (term, error) {
	query := fmt.Sprintf(`
		SELECT id, name, slug FROM (
			SELECT t.id, t.name, t.slug, 0 AS priority
			FROM %[1]s t
			WHERE t.slug = $1
			UNION ALL
			SELECT t.id, t.name, t.slug, 1 AS priority
			FROM %[1]s t
			JOIN %[2]s a ON a.%[3]s = t.id
			WHERE a.slug = $1
		) matches
		ORDER BY priority
		LIMIT 1`, tx.table, tx.aliasTable, tx.aliasKey)

	t, err := databaseutils.ExecuteSingleQuery(c.sqlTemplate, ctx, query, scanTerm, slug)
	if err != nil {
		return term{}, notFoundOr(err)
	}
	return t, nil
}

func (c *Core) createTerm(ctx context.Context, tx taxonomy, name string) (term, error) {
	return databaseutils.DoTransactionally(ctx, c.session, func(txCtx context.Context) (term, error) {
		slug, err := c.freeSlug(txCtx, tx.table, CreateSlug(name))
		if err != nil {
			return term{}, err
		}

		// a new term takes precedence over an old alias with the same slug
		deleteAlias := fmt.Sprintf(`DELETE FROM %s WHERE slug = $1`, tx.aliasTable)
		if _, err := databaseutils.Execute(c.sqlTemplate, txCtx, deleteAlias, slug); err != nil {
			return term{}, xerrors.New(err)
		}

		insertSQL := fmt.Sprintf(`INSERT INTO %s (name, slug) VALUES ($1, $2) RETURNING id, name, slug`, tx.table)
		t, err := databaseutils.ExecuteSingleQuery(c.sqlTemplate, txCtx, insertSQL, scanTerm, name, slug)
		if err != nil {
			if _, ok := violatedConstraint(err, uniqueViolation); ok {
				return term{}, xerrors.New(ErrDuplicatedSlug)
			}
			return term{}, xerrors.New(err)
		}
		return t, nil
	})
}

// renameTerm changes the name and slug of the term found by slug, keeping the
// previous slug as an alias so old links still resolve.
func (c *Core) renameTerm(ctx context.Context, tx taxonomy, slug, newName string) (term, error) {
	return databaseutils.DoTransactionally(ctx, c.session, func(txCtx context.Context) (term, error) {
		current, err := c.getBySlug(txCtx, tx, slug)
		if err != nil {
			return term{}, err
		}

		newSlug := CreateSlug(newName)
		if newSlug != current.Slug {
			newSlug, err = c.freeSlug(txCtx, tx.table, newSlug)
			if err != nil {
				return term{}, err
			}

			insertAlias := fmt.Sprintf(`
				INSERT INTO %[1]s (slug, %[2]s) VALUES ($1, $2)
				ON CONFLICT (slug) DO UPDATE SET %[2]s = EXCLUDED.%[2]s`, tx.aliasTable, tx.aliasKey)
			if _, err := databaseutils.Execute(c.sqlTemplate, txCtx, insertAlias, current.Slug, current.ID); err != nil {
				return term{}, xerrors.New(err)
			}

			deleteAlias := fmt.Sprintf(`DELETE FROM %s WHERE slug = $1`, tx.aliasTable)
			if _, err := databaseutils.Execute(c.sqlTemplate, txCtx, deleteAlias, newSlug); err != nil {
				return term{}, xerrors.New(err)
			}
		}

		updateSQL := fmt.Sprintf(`UPDATE %s SET name = $1, slug = $2 WHERE id = $3 RETURNING id, name, slug`, tx.table)
		renamed, err := databaseutils.ExecuteSingleQuery(c.sqlTemplate, txCtx, updateSQL, scanTerm, newName, newSlug, current.ID)
		if err != nil {
			return term{}, notFoundOr(err)
		}

		c.log.Info("Renamed", "table", tx.table, "from", current.Slug, "to", renamed.Slug)
		return renamed, nil
	})
}

func (c *Core) deleteTerm(ctx context.Context, tx taxonomy, slug string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE slug = $1`, tx.table)
	affected, err := databaseutils.Execute(c.sqlTemplate, ctx, query, slug)
	if err != nil {
		if _, ok := violatedConstraint(err, foreignKeyViolation); ok {
			return xerrors.New(ErrCategoryInUse)
		}
		return xerrors.New(err)
	}
	if affected == 0 {
		return xerrors.New(NoRecordFound)
	}
	return nil
}

func (c *Core) listWithPublishedCount(ctx context.Context, tx taxonomy) ([]term, error) {
	terms, err := databaseutils.ExecuteQuery(c.sqlTemplate, ctx, tx.countSQL, scanCountedTerm)
	if err != nil {
		return nil, xerrors.New(err)
	}
	return nonNil(terms), nil
}

func toCategory(t term) *models.Category {
	category := models.Category(t)
	return &category
}

func toTag(t term) models.Tag {
	return models.Tag(t)
}

func (c *Core) GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	t, err := c.getBySlug(ctx, categories, slug)
	if err != nil {
		return nil, err
	}
	return toCategory(t), nil
}

func (c *Core) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	t, err := c.createTerm(ctx, categories, name)
	if err != nil {
		return nil, err
	}
	return toCategory(t), nil
}

func (c *Core) RenameCategory(ctx context.Context, slug, newName string) (*models.Category, error) {
	t, err := c.renameTerm(ctx, categories, slug, newName)
	if err != nil {
		return nil, err
	}
	return toCategory(t), nil
}

// DeleteCategory refuses with ErrCategoryInUse while articles still reference the category.
func (c *Core) DeleteCategory(ctx context.Context, slug string) error {
	return c.deleteTerm(ctx, categories, slug)
}

func (c *Core) ListCategoriesWithPublishedCount(ctx context.Context) ([]*models.Category, error) {
	terms, err := c.listWithPublishedCount(ctx, categories)
	if err != nil {
		return nil, err
	}
	return functional.Map(terms, toCategory), nil
}

func (c *Core) GetTagBySlug(ctx context.Context, slug string) (*models.Tag, error) {
	t, err := c.getBySlug(ctx, tags, slug)
	if err != nil {
		return nil, err
	}
	tag := toTag(t)
	return &tag, nil
}

func (c *Core) CreateTag(ctx context.Context, name string) (*models.Tag, error) {
	t, err := c.createTerm(ctx, tags, name)
	if err != nil {
		return nil, err
	}
	tag := toTag(t)
	return &tag, nil
}

func (c *Core) RenameTag(ctx context.Context, slug, newName string) (*models.Tag, error) {
	t, err := c.renameTerm(ctx, tags, slug, newName)
	if err != nil {
		return nil, err
	}
	tag := toTag(t)
	return &tag, nil
}

// DeleteTag detaches the tag from its articles and removes it.
func (c *Core) DeleteTag(ctx context.Context, slug string) error {
	return c.deleteTerm(ctx, tags, slug)
}

func (c *Core) ListTagsWithPublishedCount(ctx context.Context) ([]models.Tag, error) {
	terms, err := c.listWithPublishedCount(ctx, tags)
	if err != nil {
		return nil, err
	}
	return functional.Map(terms, toTag), nil
}

// GetTagsBySlugs returns the tags whose current slug is listed. Unknown slugs are skipped.
func (c *Core) GetTagsBySlugs(ctx context.Context, slugs []string) ([]models.Tag, error) {
	if len(slugs) == 0 {
		return []models.Tag{}, nil
	}

	const selectSQL = `SELECT id, name, slug FROM tags WHERE slug = ANY($1) ORDER BY name, id`
	terms, err := databaseutils.ExecuteQuery(c.sqlTemplate, ctx, selectSQL, scanTerm, pq.Array(slugs))
	if err != nil {
		return nil, xerrors.New(err)
	}
	return functional.Map(terms, toTag), nil
}

// EnsureTags returns the tags for names, creating the ones that do not exist yet.
func (c *Core) EnsureTags(ctx context.Context, names []string) ([]models.Tag, error) {
	slugs := make([]string, 0, len(names))
	for _, name := range names {
		slug := CreateSlug(name)
		if slug == "" {
			continue
		}
		const insertSQL = `INSERT INTO tags (name, slug) VALUES ($1, $2) ON CONFLICT (slug) DO NOTHING`
		if _, err := databaseutils.Execute(c.sqlTemplate, ctx, insertSQL, name, slug); err != nil {
			return nil, xerrors.New(err)
		}
		slugs = append(slugs, slug)
	}
	return c.GetTagsBySlugs(ctx, slugs)
}
