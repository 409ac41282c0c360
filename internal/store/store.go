// Package store is the repository over the relational database. Every query
// is written once against sqlx and runs either on the pool or inside a
// transaction.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"pharmacy/m/domain"
	"pharmacy/m/internal/database"
)

var (
	// ErrNotFound is returned when a row referenced by id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStockConflict is returned when a conditional decrement finds less
	// stock than expected.
	ErrStockConflict = errors.New("batch quantity changed concurrently")
)

// Queries runs statements against a pool or a transaction.
type Queries struct {
	q       sqlx.ExtContext
	dialect database.Dialect
	now     func() time.Time
}

// Store owns the pool and starts transactions.
type Store struct {
	*Queries
	db *sqlx.DB
}

// New wraps a database handle.
func New(db *sqlx.DB, dialect database.Dialect) *Store {
	return &Store{
		Queries: &Queries{q: db, dialect: dialect, now: time.Now},
		db:      db,
	}
}

// WithClock replaces the time source used for created_at style columns.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.Queries.now = now
	return s
}

// DB exposes the underlying pool.
func (s *Store) DB() *sqlx.DB { return s.db }

// InTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Queries{q: tx, dialect: s.dialect, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (q *Queries) timestamp() string {
	return q.now().UTC().Format(domain.TimestampLayout)
}

func (q *Queries) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, q.q, dest, q.q.Rebind(query), args...)
}

func (q *Queries) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q.q, dest, q.q.Rebind(query), args...)
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.q.ExecContext(ctx, q.q.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := q.q.QueryRowxContext(ctx, q.q.Rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
