// Package postgres implements storage.Store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xtrntr/bazaar/internal/storage"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Compile-time interface check.
var _ storage.Store = (*DB)(nil)

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.Pool.Close()
	return nil
}

// Atomic runs fn in a serializable transaction, replaying it on serialization failures.
func (db *DB) Atomic(ctx context.Context, fn func(tx storage.Tx) error) error {
	return storage.Retry(ctx, func() error {
		return db.run(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
	})
}

// View runs fn in a read-only transaction.
func (db *DB) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	return db.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (db *DB) run(ctx context.Context, opts pgx.TxOptions, fn func(tx storage.Tx) error) error {
	tx, err := db.Pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{ctx: ctx, tx: tx}); err != nil {
		return translate(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return translate(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// translate maps serialization failures to storage.ErrConflict and leaves
// every other error untouched.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
			return fmt.Errorf("%w: %s", storage.ErrConflict, pgErr.Message)
		}
	}
	return err
}

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	return false
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// pgTx adapts one pgx transaction to storage.Tx. Every statement runs under
// the context the transaction was opened with.
type pgTx struct {
	ctx context.Context
	tx  pgx.Tx
}
