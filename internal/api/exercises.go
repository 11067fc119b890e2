package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/castdb/castdb/internal/auth"
	"github.com/castdb/castdb/internal/movies"
)

type exerciseRequest struct {
	Args     movies.Args `json:"args"`
	RowLimit int         `json:"row_limit"`
}

type exerciseResponse struct {
	Exercise  string         `json:"exercise"`
	Args      movies.Args    `json:"args"`
	Columns   []string       `json:"columns"`
	Rows      [][]any        `json:"rows"`
	RowCount  int            `json:"row_count"`
	Truncated bool           `json:"truncated"`
	Stats     map[string]any `json:"stats"`
}

func handleListExercises(_ Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exercises": movies.Operations()})
}

func handleRunExercise(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exercises == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXERCISES_NOT_CONFIGURED", "exercise runner is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	name := r.PathValue("name")
	op, ok := movies.Lookup(name)
	if !ok {
		writeError(r.Context(), w, http.StatusNotFound, "EXERCISE_NOT_FOUND", fmt.Sprintf("exercise %q does not exist", name), false, nil)
		return
	}

	var request exerciseRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid exercise request body", false, map[string]any{"details": err.Error()})
		return
	}
	if request.RowLimit < 0 || request.RowLimit > maxRowLimit {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ROW_LIMIT", fmt.Sprintf("row_limit must be between 0 and %d", maxRowLimit), false, nil)
		return
	}
	args, err := op.Resolve(request.Args)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGS", err.Error(), false, map[string]any{"params": op.Params})
		return
	}

	result, err := deps.Exercises.Run(r.Context(), op.Name, args)
	if err != nil {
		switch {
		case errors.Is(err, movies.ErrUnknownExercise):
			writeError(r.Context(), w, http.StatusNotFound, "EXERCISE_NOT_FOUND", err.Error(), false, nil)
		case errors.Is(err, movies.ErrInvalidArgs):
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGS", err.Error(), false, nil)
		default:
			writeRunError(r.Context(), w, err)
		}
		return
	}

	rows := result.Rows
	truncated := false
	if request.RowLimit > 0 && len(rows) > request.RowLimit {
		rows = rows[:request.RowLimit]
		truncated = true
	}
	writeJSON(w, http.StatusOK, exerciseResponse{
		Exercise:  op.Name,
		Args:      args,
		Columns:   result.Columns,
		Rows:      rows,
		RowCount:  len(rows),
		Truncated: truncated,
		Stats:     map[string]any{"duration_ms": result.Duration.Milliseconds()},
	})
}
