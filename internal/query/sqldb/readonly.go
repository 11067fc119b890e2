package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/castdb/castdb/internal/query"
	"github.com/castdb/castdb/internal/store"
)

// CodeMultipleStatements marks a batch handed to ReadOnlyRunner.
const CodeMultipleStatements = "MULTIPLE_STATEMENTS"

// ReadOnlyRunner runs caller-supplied SQL against the live store. Each call
// gets one statement, a dedicated connection and a transaction that is
// always rolled back. PostgreSQL runs it READ ONLY and SQLite under
// query_only, so a write fails instead of being undone silently.
type ReadOnlyRunner struct {
	DB      *sql.DB
	Dialect store.Dialect
	Timeout time.Duration
}

func NewReadOnlyRunner(db *sql.DB, dialect store.Dialect) *ReadOnlyRunner {
	return &ReadOnlyRunner{DB: db, Dialect: dialect}
}

func (r *ReadOnlyRunner) Run(ctx context.Context, sqlText string, args ...any) (query.Result, error) {
	if strings.TrimSpace(sqlText) == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if r.DB == nil {
		return query.Result{}, fmt.Errorf("store handle is required")
	}
	if count := query.CountStatements(sqlText); count != 1 {
		return query.Result{}, &query.DatabaseError{
			Code:    CodeMultipleStatements,
			Message: fmt.Sprintf("expected exactly one statement, got %d", count),
		}
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return query.Result{}, Classify("acquire connection", err)
	}
	defer func() { _ = conn.Close() }()

	enable, disable := r.Dialect.ReadOnlySession()
	if enable != "" {
		if _, err := conn.ExecContext(ctx, enable); err != nil {
			return query.Result{}, Classify("enter read-only session", err)
		}
		defer func() {
			if _, err := conn.ExecContext(context.Background(), disable); err != nil {
				// Drop the connection rather than return it to the pool read-only.
				_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			}
		}()
	}

	tx, err := conn.BeginTx(ctx, r.Dialect.ReadOnlyTxOptions())
	if err != nil {
		return query.Result{}, Classify("begin read-only transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	return (&Runner{DB: tx, Dialect: r.Dialect}).Run(ctx, sqlText, args...)
}
