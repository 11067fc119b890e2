package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/castdb/castdb/internal/query"
)

// CodeUndefinedParameter is the SQLSTATE PostgreSQL reports for a $N with
// no bound argument.
const CodeUndefinedParameter = "42P02"

// Dialect captures the placeholder style of a driver and how it keeps a
// session from writing. Statements in this
// repository are written with $1..$N; SQLite gets them rewritten to '?'.
type Dialect struct {
	Name             string
	questionBindvars bool
	readOnlyTx       bool
	queryOnlyPragma  bool
}

var (
	Postgres = Dialect{Name: "postgres", readOnlyTx: true}
	DuckDB   = Dialect{Name: "duckdb"}
	SQLite   = Dialect{Name: "sqlite", questionBindvars: true, queryOnlyPragma: true}
)

func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverPGX, DriverPostgres, "":
		return Postgres, nil
	case DriverSQLite:
		return SQLite, nil
	case DriverDuckDB:
		return DuckDB, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported store driver %q", driver)
	}
}

// ReadOnlyTxOptions are the options for a transaction that must not write.
// Only PostgreSQL enforces the flag; go-duckdb refuses it outright.
func (d Dialect) ReadOnlyTxOptions() *sql.TxOptions {
	return &sql.TxOptions{ReadOnly: d.readOnlyTx}
}

// ReadOnlySession returns the statements that put a connection into and out
// of query-only mode, or empty strings when the dialect has none.
func (d Dialect) ReadOnlySession() (enable, disable string) {
	if d.queryOnlyPragma {
		return "PRAGMA query_only = ON", "PRAGMA query_only = OFF"
	}
	return "", ""
}

// Rebind rewrites $N placeholders for dialects that only accept '?', and
// expands args so a placeholder used twice is bound twice. Placeholders inside
// quoted literals, quoted identifiers and comments are left untouched.
func (d Dialect) Rebind(sqlText string, args []any) (string, []any, error) {
	if !d.questionBindvars {
		return sqlText, args, nil
	}

	var out strings.Builder
	out.Grow(len(sqlText))
	bound := make([]any, 0, len(args))

	for i := 0; i < len(sqlText); i++ {
		if end, ok := query.SkipInert(sqlText, i); ok {
			out.WriteString(sqlText[i:end])
			i = end - 1
			continue
		}
		c := sqlText[i]
		if c != '$' || i+1 >= len(sqlText) || !isDigit(sqlText[i+1]) {
			out.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(sqlText) && isDigit(sqlText[j]) {
			j++
		}
		position, err := strconv.Atoi(sqlText[i+1 : j])
		if err != nil {
			return "", nil, fmt.Errorf("parse placeholder %q: %w", sqlText[i:j], err)
		}
		if position < 1 || position > len(args) {
			return "", nil, &query.DatabaseError{
				Code:    CodeUndefinedParameter,
				Message: fmt.Sprintf("placeholder $%d has no argument (got %d)", position, len(args)),
			}
		}
		out.WriteByte('?')
		bound = append(bound, args[position-1])
		i = j - 1
	}
	return out.String(), bound, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
