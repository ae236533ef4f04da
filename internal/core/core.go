package core

import (
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/mdobak/go-xerrors"

	"github.com/siahsang/notes/internal/utils/databaseutils"
)

var (
	NoRecordFound        = xerrors.Message("No record found")
	ErrDuplicatedSlug    = xerrors.Message("Duplicate slug")
	ErrDuplicateEmail    = xerrors.Message("Duplicate email")
	ErrDuplicateUsername = xerrors.Message("Duplicate username")
	ErrCategoryInUse     = xerrors.Message("Category is referenced by articles")
)

const (
	uniqueViolation     = pq.ErrorCode("23505")
	foreignKeyViolation = pq.ErrorCode("23503")
)

type Core struct {
	log         *slog.Logger
	db          *sql.DB
	sqlTemplate *databaseutils.SQLTemplate
	session     *databaseutils.Session
}

func NewCore(dbConn *sql.DB, log *slog.Logger, queryTimeout time.Duration) *Core {
	return &Core{
		log:         log,
		db:          dbConn,
		sqlTemplate: databaseutils.NewSQLTemplate(dbConn, queryTimeout),
		session:     databaseutils.NewSession(dbConn, log),
	}
}

// violatedConstraint returns the constraint name when err is a Postgres error with the given code.
func violatedConstraint(err error, code pq.ErrorCode) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == code {
		return pqErr.Constraint, true
	}
	return "", false
}

func notFoundOr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return xerrors.New(NoRecordFound)
	}
	return xerrors.New(err)
}
