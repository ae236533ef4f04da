package notes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"syscall"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siahsang/notes/internal/cache"
	"github.com/siahsang/notes/internal/core"
	"github.com/siahsang/notes/internal/filter"
	"github.com/siahsang/notes/internal/moderation"
	"github.com/siahsang/notes/internal/notes/notestest"
	"github.com/siahsang/notes/internal/notify"
	"github.com/siahsang/notes/internal/policy"
	"github.com/siahsang/notes/models"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var (
	author    = models.Actor{UserID: 101, Username: "u1", Capabilities: []models.Capability{models.CapabilityAuthor}}
	stranger  = models.Actor{UserID: 102, Username: "u2"}
	moderator = models.Actor{UserID: 103, Username: "m", IsStaff: true}
	admin     = models.Actor{UserID: 104, Username: "root", Email: "root@example.com", IsSuperuser: true}
	anonymous = models.Anonymous()
)

type fixture struct {
	svc      *Service
	catalog  *notestest.Catalog
	notifier *notestest.Notifier
	clock    *testclock.Clock
	tech     *models.Category
}

func newFixture(t *testing.T, backend func(*testclock.Clock) cache.Backend) *fixture {
	t.Helper()

	clk := testclock.NewClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	catalog := notestest.NewCatalog(clk)
	notifier := &notestest.Notifier{}

	var c *cache.Cache
	if backend != nil {
		c = cache.New(backend(clk), discard, time.Second)
	}

	svc := NewService(catalog, c, notifier, discard, Config{
		TaxonomyTTL: 24 * time.Hour,
		ListingTTL:  time.Hour,
		LatestCount: 5,
	})

	return &fixture{
		svc:      svc,
		catalog:  catalog,
		notifier: notifier,
		clock:    clk,
		tech:     catalog.AddCategory("Tech"),
	}
}

func memoryBackend(clk *testclock.Clock) cache.Backend {
	return cache.NewMemoryBackend(clk)
}

func (f *fixture) createArticle(t *testing.T, title string, status models.ArticleStatus) *models.Article {
	t.Helper()
	article, err := f.svc.CreateArticle(context.Background(), author, ArticleInput{
		Title:        title,
		ShortBody:    "<p>Short body of " + title + "</p>",
		FullBody:     "Full body",
		Status:       &status,
		CategorySlug: f.tech.Slug,
	})
	require.NoError(t, err)
	return article
}

func slugs(articles []*models.Article) []string {
	result := make([]string, len(articles))
	for i, a := range articles {
		result[i] = a.Slug
	}
	return result
}

func assertPermissionDenied(t *testing.T, err error, reason string) {
	t.Helper()
	require.ErrorIs(t, err, ErrPermissionDenied)
	var permErr *PermissionError
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, reason, permErr.Reason)
}

func TestHelloWorldScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	article, err := f.svc.CreateArticle(ctx, author, ArticleInput{
		Title:        "Hello World",
		ShortBody:    "First post",
		CategorySlug: "tech",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ArticleDraft, article.Status)
	assert.Equal(t, "hello-world", article.Slug)

	published, err := f.svc.SetArticleStatus(ctx, author, article.Slug, moderation.Publish)
	require.NoError(t, err)
	assert.Equal(t, models.ArticlePublished, published.Status)

	page, err := f.svc.ListPublished(ctx, models.ArticleFilter{}, filter.NewFilter(10, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"hello-world"}, slugs(page.Articles))
	assert.Equal(t, int64(1), page.Metadata.TotalCount)

	title := "Hello again"
	_, err = f.svc.UpdateArticle(ctx, stranger, article.Slug, ArticlePatch{Title: &title})
	assertPermissionDenied(t, err, policy.ReasonNotOwner)

	updated, err := f.svc.UpdateArticle(ctx, moderator, article.Slug, ArticlePatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Hello again", updated.Title)
	assert.Equal(t, "hello-world", updated.Slug, "slugs never change")
	assert.True(t, updated.IsOwnedBy(author.UserID), "a moderator's edit keeps the author")
}

func TestCreateArticleRequiresAuthorGrant(t *testing.T) {
	f := newFixture(t, nil)
	input := ArticleInput{Title: "Nope", ShortBody: "body", CategorySlug: "tech"}

	_, err := f.svc.CreateArticle(context.Background(), anonymous, input)
	assertPermissionDenied(t, err, policy.ReasonAuthenticationRequired)

	_, err = f.svc.CreateArticle(context.Background(), stranger, input)
	assertPermissionDenied(t, err, policy.ReasonMissingAuthorGrant)

	assert.Zero(t, f.catalog.CallCount("CreateArticle"))
}

func TestCreateArticleValidation(t *testing.T) {
	f := newFixture(t, nil)
	longMeta := string(make([]rune, 161))

	tests := []struct {
		name  string
		input ArticleInput
		field string
	}{
		{name: "blank title", input: ArticleInput{Title: "  ", ShortBody: "b", CategorySlug: "tech"}, field: "title"},
		{name: "missing category", input: ArticleInput{Title: "t", ShortBody: "b"}, field: "category"},
		{name: "unknown category", input: ArticleInput{Title: "t", ShortBody: "b", CategorySlug: "cooking"}, field: "category"},
		{name: "long meta description", input: ArticleInput{Title: "t", ShortBody: "b", CategorySlug: "tech", MetaDescription: &longMeta}, field: "metaDescription"},
		{name: "unknown tag", input: ArticleInput{Title: "t", ShortBody: "b", CategorySlug: "tech", Tags: []string{"Go"}}, field: "tags"},
		{name: "duplicate tags", input: ArticleInput{Title: "t", ShortBody: "b", CategorySlug: "tech", Tags: []string{"go", "go"}}, field: "tags"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateArticle(context.Background(), author, tt.input)
			require.ErrorIs(t, err, ErrValidation)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Contains(t, validationErr.Errors, tt.field)
		})
	}
}

func TestSuperuserCreatesMissingTags(t *testing.T) {
	f := newFixture(t, nil)
	f.catalog.AddTag("Go")

	article, err := f.svc.CreateArticle(context.Background(), admin, ArticleInput{
		Title:        "Tagged",
		ShortBody:    "body",
		CategorySlug: "tech",
		Tags:         []string{"Go", "Databases"},
	})
	require.NoError(t, err)

	names := make([]string, len(article.Tags))
	for i, tag := range article.Tags {
		names[i] = tag.Name
	}
	assert.Equal(t, []string{"Databases", "Go"}, names)
}

func TestDraftInvisibility(t *testing.T) {
	f := newFixture(t, memoryBackend)
	ctx := context.Background()
	draft := f.createArticle(t, "Secret plans", models.ArticleDraft)

	for name, actor := range map[string]models.Actor{"anonymous": anonymous, "stranger": stranger} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.GetArticle(ctx, actor, draft.Slug)
			assert.ErrorIs(t, err, core.NoRecordFound)

			_, err = f.svc.AddComment(ctx, actor, draft.Slug, CommentInput{Body: "hi", AuthorName: "guest"})
			assert.ErrorIs(t, err, core.NoRecordFound)
		})
	}

	for name, actor := range map[string]models.Actor{"owner": author, "moderator": moderator} {
		t.Run(name, func(t *testing.T) {
			view, err := f.svc.GetArticle(ctx, actor, draft.Slug)
			require.NoError(t, err)
			assert.Equal(t, draft.ID, view.Article.ID)
		})
	}

	page, err := f.svc.ListPublished(ctx, models.ArticleFilter{}, filter.NewFilter(10, 0))
	require.NoError(t, err)
	assert.Empty(t, page.Articles)

	latest, err := f.svc.LatestPublished(ctx)
	require.NoError(t, err)
	assert.Empty(t, latest)

	categories, err := f.svc.ListCategories(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, categories.Categories, "drafts do not count towards a category")
}

func TestGetArticleDescription(t *testing.T) {
	f := newFixture(t, nil)
	article := f.createArticle(t, "Described", models.ArticlePublished)

	view, err := f.svc.GetArticle(context.Background(), anonymous, article.Slug)
	require.NoError(t, err)
	assert.Equal(t, "Short body of Described", view.Description)
}

func TestAnonymousCommentModeration(t *testing.T) {
	f := newFixture(t, nil)
	ctx := WithOrigin(context.Background(), Origin{RemoteAddr: "203.0.113.7", UserAgent: "curl/8", BaseURL: "https://notes.test"})
	article := f.createArticle(t, "Open thread", models.ArticlePublished)

	comment, err := f.svc.AddComment(ctx, anonymous, article.Slug, CommentInput{Body: "Nice post", AuthorName: "Guest"})
	require.NoError(t, err)
	assert.Equal(t, models.CommentOnModerate, comment.Status)
	assert.Nil(t, comment.AuthorID)

	view, err := f.svc.GetArticle(ctx, anonymous, article.Slug)
	require.NoError(t, err)
	assert.Empty(t, view.Comments)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "Comment added, awaiting moderation", events[0].Subject)
	assert.Contains(t, events[0].Body, "Author: Guest")
	assert.Equal(t, "https://notes.test/api/articles/open-thread", events[0].Metadata["article_url"])
	assert.Equal(t, "203.0.113.7", events[0].RemoteAddr)

	_, err = f.svc.ApproveComment(ctx, stranger, comment.ID)
	assertPermissionDenied(t, err, policy.ReasonModeratorRequired)

	approved, err := f.svc.ApproveComment(ctx, moderator, comment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommentActive, approved.Status)

	view, err = f.svc.GetArticle(ctx, anonymous, article.Slug)
	require.NoError(t, err)
	require.Len(t, view.Comments, 1)
	assert.Equal(t, "Nice post", view.Comments[0].Body)

	_, err = f.svc.ApproveComment(ctx, moderator, comment.ID)
	assert.ErrorIs(t, err, ErrValidation, "approving twice is an illegal transition")

	_, err = f.svc.EditComment(ctx, anonymous, comment.ID, "changed")
	assertPermissionDenied(t, err, policy.ReasonAuthenticationRequired)
}

func TestAnonymousCommentNeedsName(t *testing.T) {
	f := newFixture(t, nil)
	article := f.createArticle(t, "Open thread", models.ArticlePublished)

	_, err := f.svc.AddComment(context.Background(), anonymous, article.Slug, CommentInput{Body: "Nice post"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestInitialCommentStatusByPrivilege(t *testing.T) {
	f := newFixture(t, nil)
	article := f.createArticle(t, "Thread", models.ArticlePublished)

	tests := []struct {
		name   string
		actor  models.Actor
		status models.CommentStatus
	}{
		{name: "user", actor: stranger, status: models.CommentOnModerate},
		{name: "author", actor: author, status: models.CommentOnModerate},
		{name: "staff", actor: moderator, status: models.CommentActive},
		{name: "superuser", actor: admin, status: models.CommentActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comment, err := f.svc.AddComment(context.Background(), tt.actor, article.Slug, CommentInput{Body: "hello"})
			require.NoError(t, err)
			assert.Equal(t, tt.status, comment.Status)
			assert.Equal(t, tt.actor.Username, comment.AuthorName)
		})
	}
}

func TestCommentVisibilityPerActor(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	article := f.createArticle(t, "Thread", models.ArticlePublished)

	pending, err := f.svc.AddComment(ctx, stranger, article.Slug, CommentInput{Body: "pending"})
	require.NoError(t, err)
	_, err = f.svc.AddComment(ctx, moderator, article.Slug, CommentInput{Body: "active"})
	require.NoError(t, err)

	bodies := func(actor models.Actor) []string {
		view, err := f.svc.GetArticle(ctx, actor, article.Slug)
		require.NoError(t, err)
		result := []string{}
		for _, c := range view.Comments {
			result = append(result, c.Body)
		}
		return result
	}

	assert.Equal(t, []string{"active"}, bodies(anonymous))
	assert.Equal(t, []string{"pending", "active"}, bodies(stranger), "authors see their own pending comments")
	assert.Equal(t, []string{"pending", "active"}, bodies(moderator))

	require.NoError(t, f.svc.DeleteComment(ctx, stranger, pending.ID))
	assert.Equal(t, []string{"active"}, bodies(moderator))
}

func TestEditCommentStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	article := f.createArticle(t, "Thread", models.ArticlePublished)

	comment, err := f.svc.AddComment(ctx, stranger, article.Slug, CommentInput{Body: "first"})
	require.NoError(t, err)
	_, err = f.svc.ApproveComment(ctx, moderator, comment.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	edited, err := f.svc.EditComment(ctx, stranger, comment.ID, "second")
	require.NoError(t, err)
	assert.Equal(t, models.CommentOnModerate, edited.Status, "an approved comment goes back to moderation after its author edits it")
	assert.Equal(t, f.clock.Now(), edited.UpdatedAt)

	_, err = f.svc.ApproveComment(ctx, moderator, comment.ID)
	require.NoError(t, err)
	edited, err = f.svc.EditComment(ctx, moderator, comment.ID, "third")
	require.NoError(t, err)
	assert.Equal(t, models.CommentActive, edited.Status, "moderator edits keep the status")

	_, err = f.svc.EditComment(ctx, author, comment.ID, "hijack")
	assertPermissionDenied(t, err, policy.ReasonNotOwner)

	events := f.notifier.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "Comment edited, awaiting moderation", events[1].Subject)
	assert.Equal(t, "Comment edited", events[2].Subject)
}

func TestListPublishedIsIdempotent(t *testing.T) {
	f := newFixture(t, memoryBackend)
	ctx := context.Background()
	for _, title := range []string{"One", "Two", "Three"} {
		f.createArticle(t, title, models.ArticlePublished)
		f.clock.Advance(time.Minute)
	}

	page := filter.NewFilter(2, 0)
	first, err := f.svc.ListPublished(ctx, models.ArticleFilter{}, page)
	require.NoError(t, err)
	second, err := f.svc.ListPublished(ctx, models.ArticleFilter{}, page)
	require.NoError(t, err)

	assert.Equal(t, []string{"three", "two"}, slugs(first.Articles))
	assert.Equal(t, slugs(first.Articles), slugs(second.Articles))
	assert.Equal(t, first.Metadata, second.Metadata)
	assert.Equal(t, int64(2), first.Metadata.LastPage)
	assert.Equal(t, 1, f.catalog.CallCount("ListPublished"), "the second call is served from the cache")
}

func TestListPublishedRejectsBadPaging(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.ListPublished(context.Background(), models.ArticleFilter{}, filter.NewFilter(0, -1))
	require.ErrorIs(t, err, ErrValidation)
}

func TestListingStalenessIsBoundedByTTL(t *testing.T) {
	f := newFixture(t, memoryBackend)
	ctx := context.Background()
	page := filter.NewFilter(10, 0)

	f.createArticle(t, "First", models.ArticlePublished)
	listed, err := f.svc.ListPublished(ctx, models.ArticleFilter{}, page)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, slugs(listed.Articles))

	f.clock.Advance(time.Minute)
	second := f.createArticle(t, "Second", models.ArticleDraft)
	_, err = f.svc.SetArticleStatus(ctx, author, second.Slug, moderation.Publish)
	require.NoError(t, err)

	listed, err = f.svc.ListPublished(ctx, models.ArticleFilter{}, page)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, slugs(listed.Articles), "the cached page may be stale within the TTL")

	f.clock.Advance(59 * time.Minute)
	listed, err = f.svc.ListPublished(ctx, models.ArticleFilter{}, page)
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "first"}, slugs(listed.Articles), "no entry outlives its TTL")
}

type brokenBackend struct{}

func (brokenBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, syscall.ECONNREFUSED
}

func (brokenBackend) Set(context.Context, string, []byte, time.Duration) error {
	return syscall.ECONNREFUSED
}

func (brokenBackend) Delete(context.Context, string) error {
	return syscall.ECONNREFUSED
}

func TestCategoriesSurviveCacheOutage(t *testing.T) {
	f := newFixture(t, func(*testclock.Clock) cache.Backend { return brokenBackend{} })
	f.createArticle(t, "Up", models.ArticlePublished)
	f.createArticle(t, "Down", models.ArticleDraft)

	list, err := f.svc.ListCategories(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list.Categories, 1)
	assert.Equal(t, "tech", list.Categories[0].Slug)
	assert.Equal(t, int64(1), list.Categories[0].PublishedCount)
	assert.Equal(t, 1, f.catalog.CallCount("ListCategoriesWithPublishedCount"))
}

func TestBulkSetStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.createArticle(t, "A", models.ArticleDraft)
	b := f.createArticle(t, "B", models.ArticleDraft)

	_, err := f.svc.BulkSetStatus(ctx, author, []int64{a.ID, b.ID}, models.ArticlePublished)
	assertPermissionDenied(t, err, policy.ReasonModeratorRequired)

	_, err = f.svc.BulkSetStatus(ctx, moderator, nil, models.ArticlePublished)
	require.ErrorIs(t, err, ErrValidation)

	affected, err := f.svc.BulkSetStatus(ctx, moderator, []int64{a.ID, b.ID, 9999}, models.ArticlePublished)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	_, err = f.svc.SetArticleStatus(ctx, author, a.Slug, moderation.Publish)
	assert.ErrorIs(t, err, ErrValidation, "publishing a published article is an illegal transition")
}

func TestDeleteArticle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	article := f.createArticle(t, "Doomed", models.ArticlePublished)

	err := f.svc.DeleteArticle(ctx, stranger, article.Slug)
	assertPermissionDenied(t, err, policy.ReasonNotOwner)

	require.NoError(t, f.svc.DeleteArticle(ctx, author, article.Slug))
	_, err = f.svc.GetArticle(ctx, author, article.Slug)
	assert.ErrorIs(t, err, core.NoRecordFound)
}

func TestTaxonomyManagement(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.CreateTag(ctx, moderator, "Go")
	assertPermissionDenied(t, err, policy.ReasonSuperuserRequired)

	_, err = f.svc.CreateTag(ctx, admin, " ")
	require.ErrorIs(t, err, ErrValidation)

	tag, err := f.svc.CreateTag(ctx, admin, "Golang")
	require.NoError(t, err)
	renamed, err := f.svc.RenameTag(ctx, admin, tag.Slug, "Go")
	require.NoError(t, err)
	assert.Equal(t, "go", renamed.Slug)

	resolved, err := f.svc.ResolveTag(ctx, "golang")
	require.NoError(t, err)
	assert.Equal(t, "go", resolved.Slug, "old slugs resolve to the renamed tag")

	f.createArticle(t, "In use", models.ArticleDraft)
	err = f.svc.DeleteCategory(ctx, admin, f.tech.Slug)
	assert.ErrorIs(t, err, core.ErrCategoryInUse)

	category, err := f.svc.CreateCategory(ctx, admin, "Life")
	require.NoError(t, err)
	category, err = f.svc.RenameCategory(ctx, admin, category.Slug, "Life & Work")
	require.NoError(t, err)
	resolvedCategory, err := f.svc.ResolveCategory(ctx, "life")
	require.NoError(t, err)
	assert.Equal(t, category.Slug, resolvedCategory.Slug)
	require.NoError(t, f.svc.DeleteCategory(ctx, admin, category.Slug))

	require.NoError(t, f.svc.DeleteTag(ctx, admin, "go"))
	_, err = f.svc.ResolveTag(ctx, "go")
	assert.ErrorIs(t, err, core.NoRecordFound)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	user, err := f.svc.RegisterUser(ctx, Registration{Username: "alice", Email: "alice@example.com", Password: "pa55word!"})
	require.NoError(t, err)
	assert.NotZero(t, user.ID)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "New user registered", events[0].Subject)
	assert.Contains(t, events[0].Body, "alice@example.com")

	_, err = f.svc.RegisterUser(ctx, Registration{Username: "alice2", Email: "alice@example.com", Password: "pa55word!"})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Errors, "email")

	_, err = f.svc.RegisterUser(ctx, Registration{Username: "bob", Email: "not-an-email", Password: "short"})
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Errors, "email")
	assert.Contains(t, validationErr.Errors, "password")

	authenticated, err := f.svc.Authenticate(ctx, "alice@example.com", "pa55word!")
	require.NoError(t, err)
	assert.Equal(t, user.ID, authenticated.ID)

	_, err = f.svc.Authenticate(ctx, "alice@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Authenticate(ctx, "nobody@example.com", "pa55word!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestContact(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	result, err := f.svc.Contact(ctx, anonymous, ContactInput{Name: "Visitor", Email: "visitor@example.com", Message: "Hi there"})
	require.NoError(t, err)
	assert.True(t, result.Delivered)

	result, err = f.svc.Contact(ctx, admin, ContactInput{Message: "From an account"})
	require.NoError(t, err)
	assert.True(t, result.Delivered)
	events := f.notifier.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "Message from contact form", events[1].Subject)
	assert.Contains(t, events[1].Body, "Email: root@example.com")

	_, err = f.svc.Contact(ctx, anonymous, ContactInput{Name: "Visitor", Email: "nope"})
	require.ErrorIs(t, err, ErrValidation)

	f.notifier.Err = errors.New("smtp down")
	result, err = f.svc.Contact(ctx, anonymous, ContactInput{Name: "Visitor", Email: "visitor@example.com", Message: "Hi"})
	require.NoError(t, err, "a failed delivery is reported softly")
	assert.False(t, result.Delivered)
	assert.NotEmpty(t, result.Warning)
}

func TestNotificationFailureDoesNotFailWrites(t *testing.T) {
	f := newFixture(t, nil)
	f.notifier.Err = notify.ErrNotificationFailed
	article := f.createArticle(t, "Thread", models.ArticlePublished)

	comment, err := f.svc.AddComment(context.Background(), stranger, article.Slug, CommentInput{Body: "still saved"})
	require.NoError(t, err)
	assert.NotZero(t, comment.ID)
}
