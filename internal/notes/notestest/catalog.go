// Package notestest provides an in-memory catalog for tests of code built on
// the notes service.
package notestest

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/mdobak/go-xerrors"

	"github.com/siahsang/notes/internal/auth"
	"github.com/siahsang/notes/internal/core"
	"github.com/siahsang/notes/internal/filter"
	"github.com/siahsang/notes/models"
)

type term struct {
	id      int64
	name    string
	slug    string
	aliases []string
}

// Catalog keeps everything in maps and reports the same errors as core.Core.
// Calls counts every method invocation by name.
type Catalog struct {
	mu    sync.Mutex
	clock clock.Clock

	nextID     int64
	articles   map[int64]*models.Article
	tagsOf     map[int64][]int64
	categories map[int64]*term
	tags       map[int64]*term
	comments   map[int64]*models.Comment
	users      map[int64]*auth.User

	Calls map[string]int
}

func NewCatalog(clk clock.Clock) *Catalog {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Catalog{
		clock:      clk,
		articles:   make(map[int64]*models.Article),
		tagsOf:     make(map[int64][]int64),
		categories: make(map[int64]*term),
		tags:       make(map[int64]*term),
		comments:   make(map[int64]*models.Comment),
		users:      make(map[int64]*auth.User),
		Calls:      make(map[string]int),
	}
}

// CallCount returns how often method was called.
func (c *Catalog) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls[method]
}

func (c *Catalog) enter(method string) func() {
	c.mu.Lock()
	c.Calls[method]++
	return c.mu.Unlock
}

func (c *Catalog) id() int64 {
	c.nextID++
	return c.nextID
}

func notFound() error {
	return xerrors.New(core.NoRecordFound)
}

func freeSlug(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if !taken(candidate) {
			return candidate
		}
	}
}

// articles

func (c *Catalog) article(a *models.Article) *models.Article {
	clone := *a
	if category, ok := c.categories[a.CategoryID]; ok {
		clone.Category = &models.Category{ID: category.id, Name: category.name, Slug: category.slug}
	}
	if a.AuthorID != nil {
		if user, ok := c.users[*a.AuthorID]; ok {
			clone.Author = &user.Username
		}
	}
	clone.Tags = []models.Tag{}
	for _, id := range c.tagsOf[a.ID] {
		if t, ok := c.tags[id]; ok {
			clone.Tags = append(clone.Tags, models.Tag{ID: t.id, Name: t.name, Slug: t.slug})
		}
	}
	slices.SortFunc(clone.Tags, func(a, b models.Tag) int { return cmp.Compare(a.Name, b.Name) })
	return &clone
}

func (c *Catalog) GetArticleBySlug(_ context.Context, slug string) (*models.Article, error) {
	defer c.enter("GetArticleBySlug")()
	for _, a := range c.articles {
		if a.Slug == slug {
			return c.article(a), nil
		}
	}
	return nil, notFound()
}

func (c *Catalog) GetArticleByID(_ context.Context, id int64) (*models.Article, error) {
	defer c.enter("GetArticleByID")()
	a, ok := c.articles[id]
	if !ok {
		return nil, notFound()
	}
	return c.article(a), nil
}

func (c *Catalog) published(f models.ArticleFilter) []*models.Article {
	var result []*models.Article
	for _, a := range c.articles {
		if !a.IsPublished() {
			continue
		}
		if f.CategorySlug != "" {
			if category, ok := c.categories[a.CategoryID]; !ok || category.slug != f.CategorySlug {
				continue
			}
		}
		if f.TagSlug != "" && !slices.ContainsFunc(c.tagsOf[a.ID], func(id int64) bool {
			t, ok := c.tags[id]
			return ok && t.slug == f.TagSlug
		}) {
			continue
		}
		result = append(result, c.article(a))
	}
	slices.SortFunc(result, func(a, b *models.Article) int {
		if n := b.UpdatedAt.Compare(a.UpdatedAt); n != 0 {
			return n
		}
		return cmp.Compare(a.Title, b.Title)
	})
	return result
}

func (c *Catalog) ListPublished(_ context.Context, f models.ArticleFilter, page filter.Filter) ([]*models.Article, error) {
	defer c.enter("ListPublished")()
	all := c.published(f)
	start := min(int(page.Offset), len(all))
	end := min(start+int(page.Limit), len(all))
	return append([]*models.Article{}, all[start:end]...), nil
}

func (c *Catalog) CountPublished(_ context.Context, f models.ArticleFilter) (int64, error) {
	defer c.enter("CountPublished")()
	return int64(len(c.published(f))), nil
}

func (c *Catalog) LatestPublished(_ context.Context, n int) ([]*models.Article, error) {
	defer c.enter("LatestPublished")()
	all := c.published(models.ArticleFilter{})
	return append([]*models.Article{}, all[:min(n, len(all))]...), nil
}

func (c *Catalog) CreateArticle(_ context.Context, article *models.Article, tagIDs []int64) (*models.Article, error) {
	defer c.enter("CreateArticle")()
	if _, ok := c.categories[article.CategoryID]; !ok {
		return nil, xerrors.Newf("category %d does not exist", article.CategoryID)
	}

	stored := *article
	stored.ID = c.id()
	stored.Slug = freeSlug(core.CreateSlug(article.Title), func(s string) bool {
		return slices.ContainsFunc(slices.Collect(maps.Values(c.articles)), func(a *models.Article) bool { return a.Slug == s })
	})
	stored.CreatedAt = c.clock.Now()
	stored.UpdatedAt = stored.CreatedAt
	stored.Category, stored.Author, stored.Tags = nil, nil, nil
	c.articles[stored.ID] = &stored
	c.tagsOf[stored.ID] = slices.Clone(tagIDs)
	return c.article(&stored), nil
}

func (c *Catalog) UpdateArticle(_ context.Context, article *models.Article, tagIDs []int64) (*models.Article, error) {
	defer c.enter("UpdateArticle")()
	stored, ok := c.articles[article.ID]
	if !ok {
		return nil, notFound()
	}
	stored.Title = article.Title
	stored.ShortBody = article.ShortBody
	stored.FullBody = article.FullBody
	stored.Status = article.Status
	stored.CategoryID = article.CategoryID
	stored.MetaDescription = article.MetaDescription
	stored.UpdatedAt = c.clock.Now()
	if tagIDs != nil {
		c.tagsOf[article.ID] = slices.Clone(tagIDs)
	}
	return c.article(stored), nil
}

func (c *Catalog) SetArticlesStatus(_ context.Context, ids []int64, status models.ArticleStatus) (int64, error) {
	defer c.enter("SetArticlesStatus")()
	var affected int64
	for _, id := range ids {
		if a, ok := c.articles[id]; ok && a.Status != status {
			a.Status = status
			a.UpdatedAt = c.clock.Now()
			affected++
		}
	}
	return affected, nil
}

func (c *Catalog) DeleteArticle(_ context.Context, id int64) error {
	defer c.enter("DeleteArticle")()
	if _, ok := c.articles[id]; !ok {
		return notFound()
	}
	delete(c.articles, id)
	delete(c.tagsOf, id)
	for commentID, comment := range c.comments {
		if comment.ArticleID == id {
			delete(c.comments, commentID)
		}
	}
	return nil
}

// taxonomy

func findTerm(terms map[int64]*term, slug string) *term {
	for _, t := range terms {
		if t.slug == slug {
			return t
		}
	}
	for _, t := range terms {
		if slices.Contains(t.aliases, slug) {
			return t
		}
	}
	return nil
}

func (c *Catalog) createTerm(terms map[int64]*term, name string) *term {
	t := &term{id: c.id(), name: name}
	t.slug = freeSlug(core.CreateSlug(name), func(s string) bool { return findTerm(terms, s) != nil })
	terms[t.id] = t
	return t
}

func renameTerm(terms map[int64]*term, slug, name string) (*term, error) {
	t := findTerm(terms, slug)
	if t == nil {
		return nil, notFound()
	}
	newSlug := core.CreateSlug(name)
	if newSlug != t.slug {
		if other := findTerm(terms, newSlug); other != nil && other != t {
			return nil, xerrors.New(core.ErrDuplicatedSlug)
		}
		t.aliases = append(t.aliases, t.slug)
		t.slug = newSlug
	}
	t.name = name
	return t, nil
}

func toCategory(t *term) *models.Category {
	return &models.Category{ID: t.id, Name: t.name, Slug: t.slug}
}

func toTag(t *term) models.Tag {
	return models.Tag{ID: t.id, Name: t.name, Slug: t.slug}
}

// AddCategory is CreateCategory for test setup.
func (c *Catalog) AddCategory(name string) *models.Category {
	c.mu.Lock()
	defer c.mu.Unlock()
	return toCategory(c.createTerm(c.categories, name))
}

// AddTag is CreateTag for test setup.
func (c *Catalog) AddTag(name string) models.Tag {
	c.mu.Lock()
	defer c.mu.Unlock()
	return toTag(c.createTerm(c.tags, name))
}

func (c *Catalog) GetCategoryBySlug(_ context.Context, slug string) (*models.Category, error) {
	defer c.enter("GetCategoryBySlug")()
	if t := findTerm(c.categories, slug); t != nil {
		return toCategory(t), nil
	}
	return nil, notFound()
}

func (c *Catalog) CreateCategory(_ context.Context, name string) (*models.Category, error) {
	defer c.enter("CreateCategory")()
	return toCategory(c.createTerm(c.categories, name)), nil
}

func (c *Catalog) RenameCategory(_ context.Context, slug, newName string) (*models.Category, error) {
	defer c.enter("RenameCategory")()
	t, err := renameTerm(c.categories, slug, newName)
	if err != nil {
		return nil, err
	}
	return toCategory(t), nil
}

func (c *Catalog) DeleteCategory(_ context.Context, slug string) error {
	defer c.enter("DeleteCategory")()
	t := findTerm(c.categories, slug)
	if t == nil {
		return notFound()
	}
	for _, a := range c.articles {
		if a.CategoryID == t.id {
			return xerrors.New(core.ErrCategoryInUse)
		}
	}
	delete(c.categories, t.id)
	return nil
}

func (c *Catalog) publishedCount(match func(a *models.Article) bool) int64 {
	var n int64
	for _, a := range c.articles {
		if a.IsPublished() && match(a) {
			n++
		}
	}
	return n
}

func (c *Catalog) ListCategoriesWithPublishedCount(_ context.Context) ([]*models.Category, error) {
	defer c.enter("ListCategoriesWithPublishedCount")()
	result := []*models.Category{}
	for _, t := range c.categories {
		n := c.publishedCount(func(a *models.Article) bool { return a.CategoryID == t.id })
		if n > 0 {
			category := toCategory(t)
			category.PublishedCount = n
			result = append(result, category)
		}
	}
	slices.SortFunc(result, func(a, b *models.Category) int { return cmp.Compare(a.Name, b.Name) })
	return result, nil
}

func (c *Catalog) GetTagBySlug(_ context.Context, slug string) (*models.Tag, error) {
	defer c.enter("GetTagBySlug")()
	if t := findTerm(c.tags, slug); t != nil {
		tag := toTag(t)
		return &tag, nil
	}
	return nil, notFound()
}

func (c *Catalog) CreateTag(_ context.Context, name string) (*models.Tag, error) {
	defer c.enter("CreateTag")()
	tag := toTag(c.createTerm(c.tags, name))
	return &tag, nil
}

func (c *Catalog) RenameTag(_ context.Context, slug, newName string) (*models.Tag, error) {
	defer c.enter("RenameTag")()
	t, err := renameTerm(c.tags, slug, newName)
	if err != nil {
		return nil, err
	}
	tag := toTag(t)
	return &tag, nil
}

func (c *Catalog) DeleteTag(_ context.Context, slug string) error {
	defer c.enter("DeleteTag")()
	t := findTerm(c.tags, slug)
	if t == nil {
		return notFound()
	}
	delete(c.tags, t.id)
	for articleID, ids := range c.tagsOf {
		c.tagsOf[articleID] = slices.DeleteFunc(ids, func(id int64) bool { return id == t.id })
	}
	return nil
}

func (c *Catalog) ListTagsWithPublishedCount(_ context.Context) ([]models.Tag, error) {
	defer c.enter("ListTagsWithPublishedCount")()
	result := []models.Tag{}
	for _, t := range c.tags {
		n := c.publishedCount(func(a *models.Article) bool { return slices.Contains(c.tagsOf[a.ID], t.id) })
		if n > 0 {
			tag := toTag(t)
			tag.PublishedCount = n
			result = append(result, tag)
		}
	}
	slices.SortFunc(result, func(a, b models.Tag) int { return cmp.Compare(a.Name, b.Name) })
	return result, nil
}

func (c *Catalog) GetTagsBySlugs(_ context.Context, slugs []string) ([]models.Tag, error) {
	defer c.enter("GetTagsBySlugs")()
	result := []models.Tag{}
	for _, t := range c.tags {
		if slices.Contains(slugs, t.slug) {
			result = append(result, toTag(t))
		}
	}
	slices.SortFunc(result, func(a, b models.Tag) int { return cmp.Compare(a.Name, b.Name) })
	return result, nil
}

func (c *Catalog) EnsureTags(_ context.Context, names []string) ([]models.Tag, error) {
	defer c.enter("EnsureTags")()
	result := []models.Tag{}
	for _, name := range names {
		slug := core.CreateSlug(name)
		if slug == "" {
			continue
		}
		t := findTerm(c.tags, slug)
		if t == nil || t.slug != slug {
			t = &term{id: c.id(), name: name, slug: slug}
			c.tags[t.id] = t
		}
		if !slices.ContainsFunc(result, func(tag models.Tag) bool { return tag.ID == t.id }) {
			result = append(result, toTag(t))
		}
	}
	return result, nil
}

// comments

func (c *Catalog) CreateComment(_ context.Context, comment *models.Comment) (*models.Comment, error) {
	defer c.enter("CreateComment")()
	if _, ok := c.articles[comment.ArticleID]; !ok {
		return nil, notFound()
	}
	stored := *comment
	stored.ID = c.id()
	stored.CreatedAt = c.clock.Now()
	stored.UpdatedAt = stored.CreatedAt
	c.comments[stored.ID] = &stored
	clone := stored
	return &clone, nil
}

func (c *Catalog) GetComment(_ context.Context, id int64) (*models.Comment, error) {
	defer c.enter("GetComment")()
	comment, ok := c.comments[id]
	if !ok {
		return nil, notFound()
	}
	clone := *comment
	return &clone, nil
}

func (c *Catalog) ListComments(_ context.Context, articleID int64, statuses ...models.CommentStatus) ([]*models.Comment, error) {
	defer c.enter("ListComments")()
	result := []*models.Comment{}
	for _, comment := range c.comments {
		if comment.ArticleID == articleID && slices.Contains(statuses, comment.Status) {
			clone := *comment
			result = append(result, &clone)
		}
	}
	slices.SortFunc(result, func(a, b *models.Comment) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (c *Catalog) UpdateComment(_ context.Context, id int64, body string, status models.CommentStatus) (time.Time, error) {
	defer c.enter("UpdateComment")()
	comment, ok := c.comments[id]
	if !ok {
		return time.Time{}, notFound()
	}
	comment.Body = body
	comment.Status = status
	comment.UpdatedAt = c.clock.Now()
	return comment.UpdatedAt, nil
}

func (c *Catalog) UpdateCommentStatus(_ context.Context, id int64, status models.CommentStatus) error {
	defer c.enter("UpdateCommentStatus")()
	comment, ok := c.comments[id]
	if !ok {
		return notFound()
	}
	comment.Status = status
	comment.UpdatedAt = c.clock.Now()
	return nil
}

func (c *Catalog) DeleteComment(_ context.Context, id int64) error {
	defer c.enter("DeleteComment")()
	if _, ok := c.comments[id]; !ok {
		return notFound()
	}
	delete(c.comments, id)
	return nil
}

// users

func (c *Catalog) CreateUser(_ context.Context, user *auth.User) error {
	defer c.enter("CreateUser")()
	for _, u := range c.users {
		switch {
		case u.Email == user.Email:
			return xerrors.New(core.ErrDuplicateEmail)
		case u.Username == user.Username:
			return xerrors.New(core.ErrDuplicateUsername)
		}
	}
	user.ID = c.id()
	clone := *user
	c.users[user.ID] = &clone
	return nil
}

func (c *Catalog) GetUserByID(_ context.Context, id int64) (*auth.User, error) {
	defer c.enter("GetUserByID")()
	user, ok := c.users[id]
	if !ok {
		return nil, notFound()
	}
	clone := *user
	return &clone, nil
}

func (c *Catalog) GetUserByEmail(_ context.Context, email string) (*auth.User, error) {
	defer c.enter("GetUserByEmail")()
	for _, user := range c.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, notFound()
}
