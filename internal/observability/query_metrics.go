package observability

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/castdb/castdb/internal/query"
)

const (
	OutcomeOK              = "ok"
	OutcomeConnectionError = "connection_error"
	OutcomeDatabaseError   = "database_error"
	OutcomeCanceled        = "canceled"
)

var (
	exerciseRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castdb_exercise_runs_total",
			Help: "Total number of exercise query runs by outcome.",
		},
		[]string{"exercise", "outcome"},
	)
	exerciseDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "castdb_exercise_duration_seconds",
			Help:    "Exercise query latency in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"exercise"},
	)
	exerciseRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "castdb_exercise_rows",
			Help:    "Rows returned per successful exercise run.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		},
	)
)

func init() {
	prometheus.MustRegister(exerciseRunsTotal, exerciseDurationSeconds, exerciseRows)
}

// ObserveExercise records one run of a named exercise or ad-hoc query.
func ObserveExercise(exercise, outcome string, rows int, elapsed time.Duration) {
	exerciseRunsTotal.WithLabelValues(exercise, outcome).Inc()
	exerciseDurationSeconds.WithLabelValues(exercise).Observe(elapsed.Seconds())
	if outcome == OutcomeOK {
		exerciseRows.Observe(float64(rows))
	}
}

// OutcomeFor maps a run error onto an outcome label.
func OutcomeFor(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	case query.IsConnection(err):
		return OutcomeConnectionError
	default:
		return OutcomeDatabaseError
	}
}
