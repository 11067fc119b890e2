package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/castdb/castdb/internal/auth"
)

func handleIntegrityRun(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Maintenance == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "MAINTENANCE_NOT_CONFIGURED", "maintenance service is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleOperator); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	summary, err := deps.Maintenance.RunIntegrityCheckOnce(r.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || summary.OperationalFailures > 0 || summary.ChecksRun == 0 {
			writeError(r.Context(), w, http.StatusInternalServerError, "INTEGRITY_CHECK_FAILED", "integrity check failed", true, map[string]any{
				"details": err.Error(),
				"summary": summary,
			})
			return
		}
		// The check itself ran; the data is what failed it.
		writeJSON(w, http.StatusOK, map[string]any{
			"status":           "violations_found",
			"violation_labels": summary.ViolationLabels(),
			"summary":          summary,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "completed",
		"summary": summary,
	})
}
