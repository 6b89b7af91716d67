// Package pgstore implements store.Store on Postgres through pgx.
package pgstore

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repo struct {
	q querier
	// locking is set inside transactions, where Lock* reads take row locks.
	locking bool
}

type Store struct {
	repo
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{repo: repo{q: pool}, pool: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(store.Repo) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "pgstore: begin")
	}
	defer tx.Rollback(ctx)

	if err := fn(&repo{q: tx, locking: true}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "pgstore: commit")
}

func (r *repo) forUpdate() string {
	if r.locking {
		return " FOR UPDATE"
	}
	return ""
}

const uniqueViolation = "23505"

// translate maps driver errors onto store sentinels and wraps the rest.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errors.Wrap(store.ErrDuplicate, op)
	}
	return errors.Wrap(err, "pgstore: "+op)
}

// nullable stores empty optional references as NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func limitOffset(page models.Page) (int, int) {
	p := page.Normalize()
	return p.Limit, p.Offset()
}

// collect scans every row with scan and closes rows.
func collect[T any](rows pgx.Rows, err error, op string, scan func(pgx.Row) (*T, error)) ([]T, error) {
	if err != nil {
		return nil, translate(err, op)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, translate(err, op)
		}
		out = append(out, *v)
	}
	return out, translate(rows.Err(), op)
}

func (r *repo) count(ctx context.Context, op, sql string, args ...any) (int, error) {
	var n int
	if err := r.q.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, translate(err, op)
	}
	return n, nil
}

func affected(tag pgconn.CommandTag, err error, op string) error {
	if err != nil {
		return translate(err, op)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
