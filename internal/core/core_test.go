package core

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siahsang/notes/internal/auth"
	"github.com/siahsang/notes/internal/database/databasetest"
	"github.com/siahsang/notes/internal/filter"
	"github.com/siahsang/notes/models"
)

func newTestCore(t *testing.T) *Core {
	t.Helper()
	db := databasetest.Start(t)
	return NewCore(db, slog.New(slog.NewTextHandler(io.Discard, nil)), 5*time.Second)
}

func reset(t *testing.T, c *Core) {
	t.Helper()
	databasetest.Truncate(t, c.db, "comments", "article_tags", "articles",
		"category_slug_aliases", "tag_slug_aliases", "categories", "tags", "users")
}

func createAuthor(t *testing.T, c *Core, username string) *auth.User {
	t.Helper()
	user := &auth.User{
		Username:     username,
		Email:        username + "@example.com",
		Password:     []byte("hash"),
		Capabilities: []models.Capability{models.CapabilityAuthor},
	}
	require.NoError(t, c.CreateUser(context.Background(), user))
	return user
}

func createArticle(t *testing.T, c *Core, title string, category *models.Category, author *auth.User, status models.ArticleStatus, tagIDs ...int64) *models.Article {
	t.Helper()
	article, err := c.CreateArticle(context.Background(), &models.Article{
		Title:      title,
		ShortBody:  "short " + title,
		FullBody:   "full " + title,
		Status:     status,
		CategoryID: category.ID,
		AuthorID:   &author.ID,
	}, tagIDs)
	require.NoError(t, err)
	return article
}

func TestCatalogStore(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	t.Run("article slugs are disambiguated", func(t *testing.T) {
		reset(t, c)
		author := createAuthor(t, c, "u1")
		tech, err := c.CreateCategory(ctx, "Tech")
		require.NoError(t, err)

		first := createArticle(t, c, "Hello World", tech, author, models.ArticleDraft)
		second := createArticle(t, c, "Hello World", tech, author, models.ArticleDraft)
		third := createArticle(t, c, "Hello, World!", tech, author, models.ArticleDraft)

		assert.Equal(t, "hello-world", first.Slug)
		assert.Equal(t, "hello-world-2", second.Slug)
		assert.Equal(t, "hello-world-3", third.Slug)
		assert.Equal(t, models.ArticleDraft, first.Status)
		assert.Equal(t, "Tech", first.Category.Name)
		require.NotNil(t, first.Author)
		assert.Equal(t, "u1", *first.Author)
	})

	t.Run("only published articles are listed", func(t *testing.T) {
		reset(t, c)
		author := createAuthor(t, c, "u1")
		tech, err := c.CreateCategory(ctx, "Tech")
		require.NoError(t, err)
		life, err := c.CreateCategory(ctx, "Life")
		require.NoError(t, err)
		golang, err := c.CreateTag(ctx, "Go")
		require.NoError(t, err)

		createArticle(t, c, "Draft", tech, author, models.ArticleDraft, golang.ID)
		published := createArticle(t, c, "Published", tech, author, models.ArticlePublished, golang.ID)
		createArticle(t, c, "Elsewhere", life, author, models.ArticlePublished)

		page := filter.NewFilter(10, 0)
		all, err := c.ListPublished(ctx, models.ArticleFilter{}, page)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		byCategory, err := c.ListPublished(ctx, models.ArticleFilter{CategorySlug: "tech"}, page)
		require.NoError(t, err)
		require.Len(t, byCategory, 1)
		assert.Equal(t, published.ID, byCategory[0].ID)
		assert.Equal(t, []models.Tag{{ID: golang.ID, Name: "Go", Slug: "go"}}, byCategory[0].Tags)

		byTag, err := c.ListPublished(ctx, models.ArticleFilter{TagSlug: "go"}, page)
		require.NoError(t, err)
		require.Len(t, byTag, 1)
		assert.Equal(t, published.ID, byTag[0].ID)

		count, err := c.CountPublished(ctx, models.ArticleFilter{CategorySlug: "tech"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		again, err := c.ListPublished(ctx, models.ArticleFilter{}, page)
		require.NoError(t, err)
		ids := func(articles []*models.Article) []int64 {
			var out []int64
			for _, a := range articles {
				out = append(out, a.ID)
			}
			return out
		}
		assert.Equal(t, ids(all), ids(again), "listing without writes in between is stable")

		categoryCounts, err := c.ListCategoriesWithPublishedCount(ctx)
		require.NoError(t, err)
		require.Len(t, categoryCounts, 2)
		assert.Equal(t, "Life", categoryCounts[0].Name)
		assert.Equal(t, int64(1), categoryCounts[1].PublishedCount)

		tagCounts, err := c.ListTagsWithPublishedCount(ctx)
		require.NoError(t, err)
		require.Len(t, tagCounts, 1)
		assert.Equal(t, int64(1), tagCounts[0].PublishedCount)
	})

	t.Run("status changes and updates", func(t *testing.T) {
		reset(t, c)
		author := createAuthor(t, c, "u1")
		tech, err := c.CreateCategory(ctx, "Tech")
		require.NoError(t, err)
		golang, err := c.CreateTag(ctx, "Go")
		require.NoError(t, err)

		a := createArticle(t, c, "One", tech, author, models.ArticleDraft)
		b := createArticle(t, c, "Two", tech, author, models.ArticlePublished)

		changed, err := c.SetArticlesStatus(ctx, []int64{a.ID, b.ID}, models.ArticlePublished)
		require.NoError(t, err)
		assert.Equal(t, int64(1), changed)

		a.Title = "One, revised"
		a.Status = models.ArticleDraft
		updated, err := c.UpdateArticle(ctx, a, []int64{golang.ID})
		require.NoError(t, err)
		assert.Equal(t, "one", updated.Slug, "slug is immutable")
		assert.Equal(t, "One, revised", updated.Title)
		assert.Equal(t, models.ArticleDraft, updated.Status)
		assert.Len(t, updated.Tags, 1)

		untouched, err := c.UpdateArticle(ctx, updated, nil)
		require.NoError(t, err)
		assert.Len(t, untouched.Tags, 1, "nil tag list keeps tags")

		latest, err := c.LatestPublished(ctx, 5)
		require.NoError(t, err)
		require.Len(t, latest, 1)
		assert.Equal(t, b.ID, latest[0].ID)

		require.NoError(t, c.DeleteArticle(ctx, a.ID))
		_, err = c.GetArticleBySlug(ctx, "one")
		assert.ErrorIs(t, err, NoRecordFound)
		assert.ErrorIs(t, c.DeleteArticle(ctx, a.ID), NoRecordFound)
	})

	t.Run("renamed categories keep their old slug as alias", func(t *testing.T) {
		reset(t, c)
		author := createAuthor(t, c, "u1")
		tech, err := c.CreateCategory(ctx, "Tech")
		require.NoError(t, err)
		createArticle(t, c, "Post", tech, author, models.ArticlePublished)

		renamed, err := c.RenameCategory(ctx, "tech", "Technology")
		require.NoError(t, err)
		assert.Equal(t, "technology", renamed.Slug)

		byAlias, err := c.GetCategoryBySlug(ctx, "tech")
		require.NoError(t, err)
		assert.Equal(t, "technology", byAlias.Slug)

		assert.ErrorIs(t, c.DeleteCategory(ctx, "technology"), ErrCategoryInUse)
		assert.ErrorIs(t, c.DeleteCategory(ctx, "missing"), NoRecordFound)
	})

	t.Run("deleting a tag detaches it", func(t *testing.T) {
		reset(t, c)
		author := createAuthor(t, c, "u1")
		tech, err := c.CreateCategory(ctx, "Tech")
		require.NoError(t, err)
		tagged, err := c.EnsureTags(ctx, []string{"Go", "SQL", "go"})
		require.NoError(t, err)
		require.Len(t, tagged, 2)

		article := createArticle(t, c, "Post", tech, author, models.ArticlePublished, tagged[0].ID, tagged[1].ID)
		require.NoError(t, c.DeleteTag(ctx, "go"))

		reloaded, err := c.GetArticleByID(ctx, article.ID)
		require.NoError(t, err)
		assert.Equal(t, []models.Tag{{ID: tagged[1].ID, Name: "SQL", Slug: "sql"}}, reloaded.Tags)
	})

	t.Run("comments are filtered by status", func(t *testing.T) {
		reset(t, c)
		author := createAuthor(t, c, "u1")
		tech, err := c.CreateCategory(ctx, "Tech")
		require.NoError(t, err)
		article := createArticle(t, c, "Post", tech, author, models.ArticlePublished)

		pending, err := c.CreateComment(ctx, &models.Comment{ArticleID: article.ID, AuthorName: "guest", Body: "hi", Status: models.CommentOnModerate})
		require.NoError(t, err)
		assert.Nil(t, pending.AuthorID)

		active, err := c.CreateComment(ctx, &models.Comment{ArticleID: article.ID, AuthorID: &author.ID, AuthorName: "u1", Body: "hello", Status: models.CommentActive})
		require.NoError(t, err)

		visible, err := c.ListComments(ctx, article.ID, models.CommentActive)
		require.NoError(t, err)
		require.Len(t, visible, 1)
		assert.Equal(t, active.ID, visible[0].ID)

		none, err := c.ListComments(ctx, article.ID)
		require.NoError(t, err)
		assert.Empty(t, none)

		require.NoError(t, c.UpdateCommentStatus(ctx, pending.ID, models.CommentActive))
		updatedAt, err := c.UpdateComment(ctx, active.ID, "edited", models.CommentOnModerate)
		require.NoError(t, err)
		assert.False(t, updatedAt.Before(active.UpdatedAt))

		reloaded, err := c.GetComment(ctx, active.ID)
		require.NoError(t, err)
		assert.Equal(t, "edited", reloaded.Body)
		assert.Equal(t, models.CommentOnModerate, reloaded.Status)

		require.NoError(t, c.DeleteArticle(ctx, article.ID))
		_, err = c.GetComment(ctx, pending.ID)
		assert.ErrorIs(t, err, NoRecordFound, "comments cascade with their article")
	})

	t.Run("users", func(t *testing.T) {
		reset(t, c)
		author := createAuthor(t, c, "u1")

		dup := &auth.User{Username: "u2", Email: author.Email, Password: []byte("x")}
		assert.ErrorIs(t, c.CreateUser(ctx, dup), ErrDuplicateEmail)

		dup = &auth.User{Username: "u1", Email: "other@example.com", Password: []byte("x")}
		assert.ErrorIs(t, c.CreateUser(ctx, dup), ErrDuplicateUsername)

		loaded, err := c.GetUserByEmail(ctx, author.Email)
		require.NoError(t, err)
		assert.Equal(t, []models.Capability{models.CapabilityAuthor}, loaded.Capabilities)

		_, err = c.GetUserByID(ctx, 4242)
		assert.ErrorIs(t, err, NoRecordFound)
	})
}
