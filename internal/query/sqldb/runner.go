package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/castdb/castdb/internal/query"
	"github.com/castdb/castdb/internal/store"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Runner struct {
	DB      Querier
	Dialect store.Dialect
	// Timeout bounds each statement; zero leaves the driver default.
	Timeout time.Duration
}

func NewRunner(db Querier, dialect store.Dialect) *Runner {
	return &Runner{DB: db, Dialect: dialect}
}

func (r *Runner) Run(ctx context.Context, sqlText string, args ...any) (query.Result, error) {
	if strings.TrimSpace(sqlText) == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if r.DB == nil {
		return query.Result{}, fmt.Errorf("store handle is required")
	}

	start := time.Now()
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	bound, boundArgs, err := r.Dialect.Rebind(query.StripTrailingSemicolons(sqlText), args)
	if err != nil {
		return query.Result{}, Classify("bind parameters", err)
	}

	rows, err := r.DB.QueryContext(ctx, bound, boundArgs...)
	if err != nil {
		return query.Result{}, Classify("execute query", err)
	}
	defer func() { _ = rows.Close() }()

	columns, values, err := query.Collect(rows)
	if err != nil {
		return query.Result{}, Classify("read rows", err)
	}

	return query.Result{
		Columns:  columns,
		Rows:     values,
		Duration: time.Since(start),
	}, nil
}
