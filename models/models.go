package models

import (
	"fmt"
	"time"
)

type ArticleStatus int

const (
	ArticleDraft ArticleStatus = iota
	ArticlePublished
)

var articleStatusNames = map[ArticleStatus]string{
	ArticleDraft:     "draft",
	ArticlePublished: "published",
}

func (s ArticleStatus) String() string {
	if name, ok := articleStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ArticleStatus(%d)", int(s))
}

func ParseArticleStatus(value string) (ArticleStatus, bool) {
	for status, name := range articleStatusNames {
		if name == value {
			return status, true
		}
	}
	return ArticleDraft, false
}

func (s ArticleStatus) MarshalText() ([]byte, error) {
	if _, ok := articleStatusNames[s]; !ok {
		return nil, fmt.Errorf("unknown article status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *ArticleStatus) UnmarshalText(text []byte) error {
	status, ok := ParseArticleStatus(string(text))
	if !ok {
		return fmt.Errorf("unknown article status %q", string(text))
	}
	*s = status
	return nil
}

// CommentStatus values match the numbering stored in the comments table.
type CommentStatus int

const (
	CommentActive CommentStatus = iota
	CommentOnModerate
	CommentDeleted
	CommentHidden
)

var commentStatusNames = map[CommentStatus]string{
	CommentActive:     "active",
	CommentOnModerate: "on_moderate",
	CommentDeleted:    "deleted",
	CommentHidden:     "hidden",
}

func (s CommentStatus) String() string {
	if name, ok := commentStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("CommentStatus(%d)", int(s))
}

func (s CommentStatus) MarshalText() ([]byte, error) {
	if _, ok := commentStatusNames[s]; !ok {
		return nil, fmt.Errorf("unknown comment status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *CommentStatus) UnmarshalText(text []byte) error {
	for status, name := range commentStatusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown comment status %q", string(text))
}

type Category struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	PublishedCount int64  `json:"publishedCount,omitempty"`
}

type Tag struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	PublishedCount int64  `json:"publishedCount,omitempty"`
}

type Article struct {
	ID              int64         `json:"id"`
	Slug            string        `json:"slug"`
	Title           string        `json:"title"`
	ShortBody       string        `json:"shortBody"`
	FullBody        string        `json:"fullBody"`
	Status          ArticleStatus `json:"status"`
	CategoryID      int64         `json:"categoryId"`
	Category        *Category     `json:"category,omitempty"`
	Tags            []Tag         `json:"tags"`
	AuthorID        *int64        `json:"authorId,omitempty"`
	Author          *string       `json:"author"`
	MetaDescription *string       `json:"metaDescription,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

func (a *Article) IsPublished() bool {
	return a.Status == ArticlePublished
}

// IsOwnedBy reports whether userID is the article's author. Anonymous users
// (zero ID) and articles whose author was deleted own nothing.
func (a *Article) IsOwnedBy(userID int64) bool {
	return userID != 0 && a.AuthorID != nil && *a.AuthorID == userID
}

type Comment struct {
	ID         int64         `json:"id"`
	ArticleID  int64         `json:"articleId"`
	AuthorID   *int64        `json:"authorId,omitempty"`
	AuthorName string        `json:"author"`
	Body       string        `json:"body"`
	Status     CommentStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

func (c *Comment) IsActive() bool {
	return c.Status == CommentActive
}

func (c *Comment) IsAuthoredBy(userID int64) bool {
	return userID != 0 && c.AuthorID != nil && *c.AuthorID == userID
}

// ArticleFilter narrows a published listing to one category or one tag.
type ArticleFilter struct {
	CategorySlug string
	TagSlug      string
}

// Key is the filter's stable name, used to build cache keys.
func (f ArticleFilter) Key() string {
	switch {
	case f.CategorySlug != "":
		return "category:" + f.CategorySlug
	case f.TagSlug != "":
		return "tag:" + f.TagSlug
	default:
		return "all"
	}
}
