// Package duckdb runs queries against a published fixture dataset by
// mounting its Parquet files as views in a throwaway in-memory DuckDB.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/castdb/castdb/internal/fixture"
	"github.com/castdb/castdb/internal/query"
	"github.com/castdb/castdb/internal/query/sqldb"
	"github.com/castdb/castdb/internal/storage"
)

type Engine struct {
	Store   storage.ObjectStore
	Dataset string
	Timeout time.Duration
}

func NewEngine(store storage.ObjectStore, dataset string) *Engine {
	return &Engine{Store: store, Dataset: dataset}
}

func (e *Engine) Run(ctx context.Context, sqlText string, args ...any) (query.Result, error) {
	sqlText = query.StripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if e.Store == nil {
		return query.Result{}, fmt.Errorf("object store is required")
	}
	if strings.TrimSpace(e.Dataset) == "" {
		return query.Result{}, fmt.Errorf("dataset is required")
	}

	start := time.Now()
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	files, err := fixture.FetchFiles(ctx, e.Store, e.Dataset)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return query.Result{}, &query.DatabaseError{
				Code:    "FIXTURE_NOT_FOUND",
				Message: fmt.Sprintf("dataset %q is not published", e.Dataset),
				Err:     err,
			}
		}
		return query.Result{}, err
	}

	workDir, err := os.MkdirTemp("", "castdb-parquet-")
	if err != nil {
		return query.Result{}, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPaths := make(map[string]string, len(files))
	for _, table := range fixture.Tables {
		localPath := filepath.Join(workDir, table+".parquet")
		if err := writeFile(localPath, files[table]); err != nil {
			return query.Result{}, fmt.Errorf("write local parquet file %q: %w", localPath, err)
		}
		localPaths[table] = localPath
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	for _, table := range fixture.Tables {
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(table), quoteString(localPaths[table]))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			return query.Result{}, fmt.Errorf("create view for table %q: %w", table, err)
		}
	}

	rows, err := db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return query.Result{}, sqldb.Classify("execute query", err)
	}
	defer func() { _ = rows.Close() }()

	columns, values, err := query.Collect(rows)
	if err != nil {
		return query.Result{}, sqldb.Classify("read rows", err)
	}

	return query.Result{
		Columns:  columns,
		Rows:     values,
		Duration: time.Since(start),
	}, nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
