package databaseutils

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/mdobak/go-xerrors"
)

type txKey struct{}

// SQLExecutor is the part of *sql.DB and *sql.Tx the query helpers need.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Session opens transactions on a pool and hands them to callers through the
// context, so every helper in this package called with that context joins them.
type Session struct {
	db  *sql.DB
	log *slog.Logger
}

func NewSession(db *sql.DB, log *slog.Logger) *Session {
	return &Session{db: db, log: log}
}

// DoTransactionally runs fn inside a transaction, committing when it returns nil
// and rolling back otherwise. A call made with a context that already carries a
// transaction joins it instead of opening a second one.
func (s *Session) DoTransactionally(ctx context.Context, fn func(txCtx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Newf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				s.log.ErrorContext(ctx, "Failed to roll back transaction", "rollback_error", rollbackErr, "error", err)
			}
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			err = xerrors.Newf("commit transaction: %w", commitErr)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, tx))
}

// GetSQLExecutor returns the transaction carried by ctx, or fallbackDB when there is none.
func GetSQLExecutor(ctx context.Context, fallbackDB *sql.DB) SQLExecutor {
	value := ctx.Value(txKey{})
	if value == nil {
		return fallbackDB
	}
	tx, ok := value.(*sql.Tx)
	if !ok {
		panic(fmt.Sprintf("databaseutils: transaction key holds %T", value))
	}
	return tx
}

// DoTransactionally is Session.DoTransactionally for functions that produce a value.
func DoTransactionally[T any](ctx context.Context, session *Session, fn func(txCtx context.Context) (T, error)) (T, error) {
	var result T
	err := session.DoTransactionally(ctx, func(txCtx context.Context) error {
		var err error
		result, err = fn(txCtx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
