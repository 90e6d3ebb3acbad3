package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/clinic-scheduling/internal/database"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// store is embedded by every repository.
type store struct {
	db      *sql.DB
	dialect database.Dialect
}

func newStore(db *sql.DB, d database.Dialect) store { return store{db: db, dialect: d} }

// DB exposes the pool, e.g. for readiness checks.
func (s store) DB() *sql.DB { return s.db }

func (s store) q(query string) string { return s.dialect.Rebind(query) }

// insertID runs an INSERT and returns the generated key.  MySQL reports it
// through LastInsertId; Postgres needs a RETURNING clause.
func (s store) insertID(ctx context.Context, ex execer, query, idCol string, args ...any) (int64, error) {
	if s.dialect == database.Postgres {
		var id int64
		err := ex.QueryRowContext(ctx, s.q(query+" RETURNING "+idCol), args...).Scan(&id)
		return id, err
	}
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// withTx runs fn inside a transaction, committing when it returns nil and
// rolling back otherwise.
func (s store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// affected turns a zero-row UPDATE or DELETE into ErrNotFound.
func affected(res sql.Result, err error) error {
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// notFound maps sql.ErrNoRows to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// inList renders "?,?,?" for n values.
func inList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func like(s string) string { return "%" + strings.ToLower(strings.TrimSpace(s)) + "%" }

// whereClause joins conditions with AND, defaulting to 1=1.
func whereClause(conds []string) string {
	if len(conds) == 0 {
		return "1=1"
	}
	return strings.Join(conds, " AND ")
}
