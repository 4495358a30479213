package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint
	ErrConflict = errors.New("conflict")
	// ErrInvalidReference is returned when a write names a row that does not exist
	ErrInvalidReference = errors.New("invalid reference")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Store is the Postgres-backed repository for every resource
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an open pool
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying pool
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Page is a 1-based page request
type Page struct {
	Number int
	Limit  int
}

// Offset returns the row offset of the page
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit
}

// translate maps driver errors onto the package sentinels
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrInvalidReference, pgErr.ConstraintName)
		}
	}
	return err
}

// listPage runs the count and page queries of a list endpoint concurrently
func listPage[T any](ctx context.Context, pool *pgxpool.Pool, countSQL string, countArgs []any, pageSQL string, pageArgs []any, scan func(pgx.Row) (T, error)) ([]T, int, error) {
	var (
		total int
		items []T
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
			return fmt.Errorf("count query failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		rows, err := pool.Query(ctx, pageSQL, pageArgs...)
		if err != nil {
			return fmt.Errorf("page query failed: %w", err)
		}
		items, err = pgx.CollectRows(rows, rowTo(scan))
		if err != nil {
			return fmt.Errorf("page scan failed: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	if items == nil {
		items = []T{}
	}
	return items, total, nil
}

// rowTo adapts a single-row scanner for pgx.CollectRows
func rowTo[T any](scan func(pgx.Row) (T, error)) pgx.RowToFunc[T] {
	return func(row pgx.CollectableRow) (T, error) { return scan(row) }
}

// collect scans every row of rows
func collect[T any](rows pgx.Rows, err error, scan func(pgx.Row) (T, error)) ([]T, error) {
	if err != nil {
		return nil, err
	}
	items, err := pgx.CollectRows(rows, rowTo(scan))
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// assignments builds the SET list of a partial UPDATE
type assignments struct {
	cols []string
	args []any
}

func (a *assignments) set(col string, v any) {
	a.args = append(a.args, v)
	a.cols = append(a.cols, fmt.Sprintf("%s = $%d", col, len(a.args)))
}

func (a *assignments) empty() bool { return len(a.cols) == 0 }

// sql renders "col = $1, ..." followed by the placeholder for the row key
func (a *assignments) sql(key any) (string, string, []any) {
	args := append(append([]any{}, a.args...), key)
	return strings.Join(a.cols, ", "), fmt.Sprintf("$%d", len(args)), args
}

// withTx runs fn inside a transaction, committing when it returns nil
func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
