package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/castdb/castdb/internal/auth"
	"github.com/castdb/castdb/internal/query"
)

const maxRowLimit = 10000

type queryRequest struct {
	SQL      string `json:"sql"`
	Params   []any  `json:"params"`
	RowLimit int    `json:"row_limit"`
}

type queryResponse struct {
	Columns  []string       `json:"columns"`
	Rows     [][]any        `json:"rows"`
	RowCount int            `json:"row_count"`
	Stats    map[string]any `json:"stats"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Runner == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query runner is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request queryRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}

	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if query.CountStatements(request.SQL) != 1 {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", "exactly one statement is allowed", false, nil)
		return
	}
	if !query.IsReadOnly(request.SQL) {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", "only read-only SELECT/WITH queries are allowed", false, nil)
		return
	}
	if request.RowLimit < 0 || request.RowLimit > maxRowLimit {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ROW_LIMIT", fmt.Sprintf("row_limit must be between 0 and %d", maxRowLimit), false, nil)
		return
	}
	params, err := normalizeParams(request.Params)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_PARAMS", err.Error(), false, nil)
		return
	}

	result, err := deps.Runner.Run(r.Context(), query.WithRowLimit(request.SQL, request.RowLimit), params...)
	if err != nil {
		writeRunError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Columns:  result.Columns,
		Rows:     result.Rows,
		RowCount: len(result.Rows),
		Stats:    map[string]any{"duration_ms": result.Duration.Milliseconds()},
	})
}

// decodeJSON reads one JSON object, keeping numbers as json.Number so
// integral params reach the driver as integers. An empty body decodes as {}.
func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	decoder.UseNumber()
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func normalizeParams(raw []any) ([]any, error) {
	params := make([]any, len(raw))
	for i, value := range raw {
		switch typed := value.(type) {
		case json.Number:
			if n, err := typed.Int64(); err == nil {
				params[i] = n
				continue
			}
			f, err := typed.Float64()
			if err != nil {
				return nil, fmt.Errorf("param $%d: %v", i+1, err)
			}
			params[i] = f
		case string, bool, nil:
			params[i] = typed
		default:
			return nil, fmt.Errorf("param $%d: unsupported type %T", i+1, value)
		}
	}
	return params, nil
}

// writeRunError maps the query error taxonomy onto HTTP statuses.
func writeRunError(ctx context.Context, w http.ResponseWriter, err error) {
	var connErr *query.ConnectionError
	var dbErr *query.DatabaseError
	switch {
	case errors.As(err, &connErr):
		writeError(ctx, w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "store is unavailable", true, map[string]any{"details": err.Error()})
	case errors.As(err, &dbErr):
		writeError(ctx, w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "query execution failed", false, map[string]any{
			"details":       err.Error(),
			"database_code": dbErr.Code,
		})
	case errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusGatewayTimeout, "QUERY_TIMEOUT", "query timed out", true, nil)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "QUERY_FAILED", "query failed", true, map[string]any{"details": err.Error()})
	}
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}
