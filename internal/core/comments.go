package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/mdobak/go-xerrors"

	"github.com/siahsang/notes/internal/utils/databaseutils"
	"github.com/siahsang/notes/internal/utils/functional"
	"github.com/siahsang/notes/models"
)

const selectCommentSQL = `
	SELECT id, article_id, author_id, author_name, body, status, created_at, updated_at
	FROM comments
`

func scanComment(rows *sql.Rows) (*models.Comment, error) {
	comment := &models.Comment{}
	if err := rows.Scan(
		&comment.ID,
		&comment.ArticleID,
		&comment.AuthorID,
		&comment.AuthorName,
		&comment.Body,
		&comment.Status,
		&comment.CreatedAt,
		&comment.UpdatedAt,
	); err != nil {
		return nil, xerrors.New(err)
	}
	return comment, nil
}

func (c *Core) CreateComment(ctx context.Context, comment *models.Comment) (*models.Comment, error) {
	const insertSQL = `
		INSERT INTO comments (article_id, author_id, author_name, body, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, article_id, author_id, author_name, body, status, created_at, updated_at
	`

	created, err := databaseutils.ExecuteSingleQuery(c.sqlTemplate, ctx, insertSQL, scanComment,
		comment.ArticleID, comment.AuthorID, comment.AuthorName, comment.Body, comment.Status)
	if err != nil {
		if _, ok := violatedConstraint(err, foreignKeyViolation); ok {
			return nil, xerrors.New(NoRecordFound)
		}
		return nil, xerrors.New(err)
	}
	return created, nil
}

func (c *Core) GetComment(ctx context.Context, id int64) (*models.Comment, error) {
	comment, err := databaseutils.ExecuteSingleQuery(c.sqlTemplate, ctx, selectCommentSQL+" WHERE id = $1", scanComment, id)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return comment, nil
}

// ListComments returns the article's comments in any of the given statuses,
// oldest first. Without statuses nothing is returned.
func (c *Core) ListComments(ctx context.Context, articleID int64, statuses ...models.CommentStatus) ([]*models.Comment, error) {
	if len(statuses) == 0 {
		return []*models.Comment{}, nil
	}

	codes := functional.Map(statuses, func(s models.CommentStatus) int64 { return int64(s) })
	comments, err := databaseutils.ExecuteQuery(c.sqlTemplate, ctx,
		selectCommentSQL+" WHERE article_id = $1 AND status = ANY($2) ORDER BY created_at, id",
		scanComment, articleID, pq.Array(codes))
	if err != nil {
		return nil, xerrors.New(err)
	}
	return nonNil(comments), nil
}

// UpdateComment replaces body and status in a single statement and returns the new modification time.
func (c *Core) UpdateComment(ctx context.Context, id int64, body string, status models.CommentStatus) (time.Time, error) {
	const updateSQL = `
		UPDATE comments
		SET body = $1, status = $2, updated_at = now()
		WHERE id = $3
		RETURNING updated_at
	`

	updatedAt, err := databaseutils.ExecuteSingleQuery(c.sqlTemplate, ctx, updateSQL, func(rows *sql.Rows) (time.Time, error) {
		var t time.Time
		err := rows.Scan(&t)
		return t, err
	}, body, status, id)
	if err != nil {
		return time.Time{}, notFoundOr(err)
	}
	return updatedAt, nil
}

func (c *Core) UpdateCommentStatus(ctx context.Context, id int64, status models.CommentStatus) error {
	affected, err := databaseutils.Execute(c.sqlTemplate, ctx,
		`UPDATE comments SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return xerrors.New(err)
	}
	if affected == 0 {
		return xerrors.New(NoRecordFound)
	}
	return nil
}

func (c *Core) DeleteComment(ctx context.Context, id int64) error {
	affected, err := databaseutils.Execute(c.sqlTemplate, ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return xerrors.New(err)
	}
	if affected == 0 {
		return xerrors.New(NoRecordFound)
	}
	return nil
}
