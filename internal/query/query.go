package query

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Runner executes one SQL statement with positional $1..$N arguments and
// returns every row in the order the store produced them.
type Runner interface {
	Run(ctx context.Context, sqlText string, args ...any) (Result, error)
}

type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

// Records returns each row keyed by column label. When a statement yields
// duplicate labels the right-most value wins; Rows keeps every value.
func (r Result) Records() []map[string]any {
	records := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		record := make(map[string]any, len(r.Columns))
		for i, column := range r.Columns {
			if i < len(row) {
				record[column] = row[i]
			}
		}
		records = append(records, record)
	}
	return records
}

// Column returns the values of one column across all rows.
func (r Result) Column(name string) ([]any, error) {
	index := -1
	for i, column := range r.Columns {
		if column == name {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, fmt.Errorf("column %q not in result", name)
	}
	values := make([]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		values = append(values, row[index])
	}
	return values, nil
}

// Rows is the subset of *sql.Rows that Collect needs.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func Collect(rows Rows) ([]string, [][]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return columns, resultRows, nil
}

// WithRowLimit wraps a statement so at most limit rows come back. A limit of
// zero or less leaves the statement unchanged apart from trailing semicolons.
func WithRowLimit(sqlText string, limit int) string {
	sqlText = StripTrailingSemicolons(sqlText)
	if limit <= 0 || sqlText == "" {
		return sqlText
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, limit)
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

// IsReadOnly reports whether the statement starts with SELECT or WITH.
func IsReadOnly(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	if normalized == "" {
		return false
	}
	return strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with")
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case int:
			normalized[i] = int64(typed)
		case int8:
			normalized[i] = int64(typed)
		case int16:
			normalized[i] = int64(typed)
		case int32:
			normalized[i] = int64(typed)
		case uint8:
			normalized[i] = int64(typed)
		case uint16:
			normalized[i] = int64(typed)
		case uint32:
			normalized[i] = int64(typed)
		case float32:
			normalized[i] = float64(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
