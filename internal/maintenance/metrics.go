package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	integrityRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castdb_integrity_runs_total",
			Help: "Total number of integrity check runs by status.",
		},
		[]string{"status"},
	)
	integrityViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "castdb_integrity_violations_total",
			Help: "Total number of data-model violations found, by target and check.",
		},
		[]string{"check"},
	)
	integrityFixtureFilesCheckedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "castdb_integrity_fixture_files_checked_total",
			Help: "Total number of published fixture files checked for presence.",
		},
	)
	integrityMissingFixtureFilesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "castdb_integrity_missing_fixture_files_total",
			Help: "Total number of published fixture files found missing.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		integrityRunsTotal,
		integrityViolationsTotal,
		integrityFixtureFilesCheckedTotal,
		integrityMissingFixtureFilesTotal,
	)
}
