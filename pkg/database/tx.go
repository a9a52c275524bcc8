package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Conn runs statements produced by the ent SQL builders. It wraps either the
// pooled driver or an open transaction, so store code is written once for both.
type Conn struct {
	exec    dialect.ExecQuerier
	dialect string
}

// Dialect returns the SQL dialect of the connection
func (c *Conn) Dialect() string {
	return c.dialect
}

// Builder returns a statement builder for the connection's dialect
func (c *Conn) Builder() *entsql.DialectBuilder {
	return entsql.Dialect(c.dialect)
}

// SupportsRowLocks reports whether SELECT ... FOR UPDATE is available.
// SQLite has no row locks; immediate transactions hold the database write lock instead.
func (c *Conn) SupportsRowLocks() bool {
	return c.dialect == dialect.Postgres
}

// AdvisoryLock takes a postgres advisory lock on key that is released when
// the transaction ends. Other dialects already serialize writers, so it is a
// no-op there. Only call it inside WithTx.
func (c *Conn) AdvisoryLock(ctx context.Context, key int64) error {
	if c.dialect != dialect.Postgres {
		return nil
	}
	if _, err := c.ExecRaw(ctx, "SELECT pg_advisory_xact_lock($1)", key); err != nil {
		return fmt.Errorf("failed to take advisory lock %d: %w", key, err)
	}
	return nil
}

// Query runs a SELECT (or INSERT ... RETURNING) and returns its rows.
// Callers must close the returned rows.
func (c *Conn) Query(ctx context.Context, q entsql.Querier) (*entsql.Rows, error) {
	query, args := q.Query()
	rows := &entsql.Rows{}
	if err := c.exec.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Exec runs a statement that returns no rows
func (c *Conn) Exec(ctx context.Context, q entsql.Querier) (sql.Result, error) {
	query, args := q.Query()
	return c.ExecRaw(ctx, query, args...)
}

// ExecRaw runs a literal statement
func (c *Conn) ExecRaw(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if args == nil {
		args = []any{}
	}
	var res sql.Result
	if err := c.exec.Exec(ctx, query, args, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// TxOptions configures a unit of work
type TxOptions struct {
	// LockTimeout bounds how long any statement waits for a row lock.
	// Zero keeps the server default.
	LockTimeout time.Duration
}

// WithTx runs fn inside a transaction. Any error or panic from fn rolls the
// whole transaction back; lock-wait failures are reported as contention errors.
func (c *Client) WithTx(ctx context.Context, opts TxOptions, fn func(tx *Conn) error) error {
	tx, err := c.Driver.Tx(ctx)
	if err != nil {
		if IsContention(err) {
			return &ContentionError{Err: err}
		}
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	conn := &Conn{exec: tx, dialect: c.dialect}

	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()

	if opts.LockTimeout > 0 && c.dialect == dialect.Postgres {
		// SET does not accept bind parameters
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", opts.LockTimeout.Milliseconds())
		if _, err := conn.ExecRaw(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	if err := fn(conn); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = fmt.Errorf("%w: rolling back transaction: %v", err, rerr)
		}
		if IsContention(err) {
			return &ContentionError{Err: err}
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if IsContention(err) {
			return &ContentionError{Err: err}
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ContentionError marks a transaction that failed because it could not obtain
// its locks in time. The operation is safe to retry.
type ContentionError struct {
	Err error
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("lock contention: %v", e.Err)
}

func (e *ContentionError) Unwrap() error {
	return e.Err
}

// postgres SQLSTATE codes that mean "try again"
const (
	pqLockNotAvailable     = "55P03"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqQueryCanceled        = "57014"
	pqUniqueViolation      = "23505"
)

// IsContention reports whether err is a lock-wait timeout, deadlock, serialization
// failure, sqlite busy/locked condition or an expired context deadline.
func IsContention(err error) bool {
	if err == nil {
		return false
	}
	var ce *ContentionError
	if errors.As(err, &ce) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqLockNotAvailable, pqSerializationFailure, pqDeadlockDetected, pqQueryCanceled:
			return true
		}
		return false
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// IsUniqueViolation reports whether err is a unique constraint violation
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// InsertID runs insert and returns the generated integer primary key "id".
// Postgres reports it through RETURNING; sqlite through LastInsertId.
func (c *Conn) InsertID(ctx context.Context, insert *entsql.InsertBuilder) (int, error) {
	if c.dialect != dialect.Postgres {
		res, err := c.Exec(ctx, insert)
		if err != nil {
			return 0, err
		}
		id, err := res.LastInsertId()
		return int(id), err
	}

	rows, err := c.Query(ctx, insert.Returning("id"))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("insert returned no id")
	}
	var id int
	if err := rows.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
