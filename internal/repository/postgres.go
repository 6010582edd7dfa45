// Package repository implements the domain storage interfaces on PostgreSQL.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/rimae-ledger/db"
	"github.com/xenking/rimae-ledger/internal/domain"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, db.Schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool { return pgCode(err) == codeUniqueViolation }

func isForeignKeyViolation(err error) bool { return pgCode(err) == codeForeignKeyViolation }

func isRetryable(err error) bool {
	switch pgCode(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}

// DefaultMaxRetries bounds retries of lock-contended transactions.
const DefaultMaxRetries = 3

// withRetry runs fn in a transaction, retrying serialization failures and
// deadlocks up to attempts times before giving up with conflict.
func withRetry(ctx context.Context, pool *pgxpool.Pool, attempts int, conflict error, fn func(tx pgx.Tx) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, fn)
		if !isRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 10 * time.Millisecond):
		}
	}
	if conflict == nil {
		conflict = domain.ErrConflict
	}
	return errors.Wrap(conflict, err.Error())
}

// count runs a COUNT(*) query.
func count(ctx context.Context, q querier, sql string, args ...any) (int, error) {
	var n int
	if err := q.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
