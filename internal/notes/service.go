// Package notes is the publishing workflow: it authorizes every request against
// the visibility policy, serves reads through the cache-aside layer, applies
// moderation transitions to writes and notifies administrators afterwards.
package notes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mdobak/go-xerrors"

	"github.com/siahsang/notes/internal/auth"
	"github.com/siahsang/notes/internal/cache"
	"github.com/siahsang/notes/internal/core"
	"github.com/siahsang/notes/internal/filter"
	"github.com/siahsang/notes/internal/notify"
	"github.com/siahsang/notes/internal/policy"
	"github.com/siahsang/notes/models"
)

// Catalog is the persistence the service needs. *core.Core implements it.
type Catalog interface {
	GetArticleBySlug(ctx context.Context, slug string) (*models.Article, error)
	GetArticleByID(ctx context.Context, id int64) (*models.Article, error)
	ListPublished(ctx context.Context, f models.ArticleFilter, page filter.Filter) ([]*models.Article, error)
	CountPublished(ctx context.Context, f models.ArticleFilter) (int64, error)
	LatestPublished(ctx context.Context, n int) ([]*models.Article, error)
	CreateArticle(ctx context.Context, article *models.Article, tagIDs []int64) (*models.Article, error)
	UpdateArticle(ctx context.Context, article *models.Article, tagIDs []int64) (*models.Article, error)
	SetArticlesStatus(ctx context.Context, ids []int64, status models.ArticleStatus) (int64, error)
	DeleteArticle(ctx context.Context, id int64) error

	GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error)
	CreateCategory(ctx context.Context, name string) (*models.Category, error)
	RenameCategory(ctx context.Context, slug, newName string) (*models.Category, error)
	DeleteCategory(ctx context.Context, slug string) error
	ListCategoriesWithPublishedCount(ctx context.Context) ([]*models.Category, error)

	GetTagBySlug(ctx context.Context, slug string) (*models.Tag, error)
	CreateTag(ctx context.Context, name string) (*models.Tag, error)
	RenameTag(ctx context.Context, slug, newName string) (*models.Tag, error)
	DeleteTag(ctx context.Context, slug string) error
	ListTagsWithPublishedCount(ctx context.Context) ([]models.Tag, error)
	GetTagsBySlugs(ctx context.Context, slugs []string) ([]models.Tag, error)
	EnsureTags(ctx context.Context, names []string) ([]models.Tag, error)

	CreateComment(ctx context.Context, comment *models.Comment) (*models.Comment, error)
	GetComment(ctx context.Context, id int64) (*models.Comment, error)
	ListComments(ctx context.Context, articleID int64, statuses ...models.CommentStatus) ([]*models.Comment, error)
	UpdateComment(ctx context.Context, id int64, body string, status models.CommentStatus) (time.Time, error)
	UpdateCommentStatus(ctx context.Context, id int64, status models.CommentStatus) error
	DeleteComment(ctx context.Context, id int64) error

	CreateUser(ctx context.Context, user *auth.User) error
	GetUserByID(ctx context.Context, id int64) (*auth.User, error)
	GetUserByEmail(ctx context.Context, email string) (*auth.User, error)
}

type Notifier interface {
	Notify(ctx context.Context, ev notify.Event) error
	Dispatch(ctx context.Context, ev notify.Event)
}

type Config struct {
	TaxonomyTTL time.Duration
	ListingTTL  time.Duration
	LatestCount int
}

type Service struct {
	catalog  Catalog
	cache    *cache.Cache
	notifier Notifier
	log      *slog.Logger
	cfg      Config
}

func NewService(catalog Catalog, c *cache.Cache, notifier Notifier, log *slog.Logger, cfg Config) *Service {
	if cfg.LatestCount <= 0 {
		cfg.LatestCount = 5
	}
	return &Service{
		catalog:  catalog,
		cache:    c,
		notifier: notifier,
		log:      log,
		cfg:      cfg,
	}
}

func authorize(actor models.Actor, action policy.Action, target policy.Target) error {
	decision := policy.Authorize(actor, action, target)
	if decision.Allowed {
		return nil
	}
	// articles the actor may not read do not exist as far as they can tell
	if decision.Reason == policy.ReasonArticleNotVisible {
		return xerrors.New(core.NoRecordFound)
	}
	return xerrors.New(&PermissionError{Action: action, Reason: decision.Reason})
}

func categoriesKey(selected int64) string {
	return fmt.Sprintf("notes:categories:%d", selected)
}

const tagsKey = "notes:tags"

func latestKey(n int) string {
	return fmt.Sprintf("notes:latest:%d", n)
}

func articlesKey(f models.ArticleFilter, page filter.Filter) string {
	return fmt.Sprintf("notes:articles:%s:%d:%d", f.Key(), page.Offset, page.Limit)
}
