package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/castdb/castdb/internal/fixture"
	"github.com/castdb/castdb/internal/query"
	"github.com/castdb/castdb/internal/storage"
)

const (
	TargetStore   = "store"
	TargetFixture = "fixture"
)

type Config struct {
	IntegrityInterval time.Duration
	MaxIssueSamples   int
}

// Service checks that the live store, and optionally the published fixture,
// honour the movie data model: castings reference existing rows, pairs are
// unique, ord is non-negative, directors resolve.
type Service struct {
	Runner        query.Runner
	FixtureRunner query.Runner
	ObjectStore   storage.ObjectStore
	Dataset       string
	Config        Config
	Logger        *slog.Logger
	Clock         func() time.Time
}

type IntegritySummary struct {
	StartedAt           time.Time      `json:"started_at"`
	FinishedAt          time.Time      `json:"finished_at"`
	Targets             []string       `json:"targets"`
	ChecksRun           int            `json:"checks_run"`
	Violations          map[string]int `json:"violations"`
	FixtureFilesChecked int            `json:"fixture_files_checked"`
	MissingFixtureFiles int            `json:"missing_fixture_files"`
	OperationalFailures int            `json:"operational_failures"`
	Issues              []string       `json:"issues,omitempty"`
}

func (s IntegritySummary) TotalViolations() int {
	total := 0
	for _, count := range s.Violations {
		total += count
	}
	return total
}

type integrityCheck struct {
	Name string
	SQL  string
	// Describe renders one offending row for the issue list.
	Describe func(row []any) string
}

var integrityChecks = []integrityCheck{
	{
		Name: "orphan_movie_castings",
		SQL: `
SELECT castings.movie_id, castings.actor_id
FROM castings
LEFT JOIN movies ON movies.id = castings.movie_id
WHERE movies.id IS NULL
ORDER BY castings.movie_id, castings.actor_id`,
		Describe: func(row []any) string {
			return fmt.Sprintf("casting (movie %v, actor %v) references a missing movie", row[0], row[1])
		},
	},
	{
		Name: "orphan_actor_castings",
		SQL: `
SELECT castings.movie_id, castings.actor_id
FROM castings
LEFT JOIN actors ON actors.id = castings.actor_id
WHERE actors.id IS NULL
ORDER BY castings.movie_id, castings.actor_id`,
		Describe: func(row []any) string {
			return fmt.Sprintf("casting (movie %v, actor %v) references a missing actor", row[0], row[1])
		},
	},
	{
		Name: "duplicate_castings",
		SQL: `
SELECT movie_id, actor_id, COUNT(*) AS copies
FROM castings
GROUP BY movie_id, actor_id
HAVING COUNT(*) > 1
ORDER BY movie_id, actor_id`,
		Describe: func(row []any) string {
			return fmt.Sprintf("casting (movie %v, actor %v) appears %v times", row[0], row[1], row[2])
		},
	},
	{
		Name: "negative_ord",
		SQL: `
SELECT movie_id, actor_id, ord
FROM castings
WHERE ord < 0
ORDER BY movie_id, actor_id`,
		Describe: func(row []any) string {
			return fmt.Sprintf("casting (movie %v, actor %v) has ord %v", row[0], row[1], row[2])
		},
	},
	{
		Name: "dangling_directors",
		SQL: `
SELECT movies.id, movies.director_id
FROM movies
LEFT JOIN actors ON actors.id = movies.director_id
WHERE movies.director_id IS NOT NULL AND actors.id IS NULL
ORDER BY movies.id`,
		Describe: func(row []any) string {
			return fmt.Sprintf("movie %v references missing director %v", row[0], row[1])
		},
	},
}

// Run repeats the integrity check every IntegrityInterval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	if s.Config.IntegrityInterval <= 0 {
		return fmt.Errorf("integrity interval must be > 0")
	}

	ticker := time.NewTicker(s.Config.IntegrityInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			summary, err := s.RunIntegrityCheckOnce(ctx)
			if err != nil {
				s.logger().ErrorContext(ctx, "integrity cycle failed",
					slog.Any("error", err),
					slog.Any("violations", summary.ViolationLabels()),
					slog.Any("summary", summary),
				)
				continue
			}
			s.logger().InfoContext(ctx, "integrity cycle completed", slog.Any("summary", summary))
		}
	}
}

// RunIntegrityCheckOnce is safe to call concurrently with Run and with
// itself; it never writes to s.
func (s *Service) RunIntegrityCheckOnce(ctx context.Context) (IntegritySummary, error) {
	if s.Runner == nil && s.FixtureRunner == nil {
		return IntegritySummary{}, fmt.Errorf("query runner is required")
	}

	now := s.clock()
	maxIssueSamples := s.maxIssueSamples()
	summary := IntegritySummary{
		StartedAt:  now().UTC(),
		Violations: map[string]int{},
	}
	issueCount := 0
	addIssue := func(message string) {
		issueCount++
		if len(summary.Issues) < maxIssueSamples {
			summary.Issues = append(summary.Issues, message)
		}
	}

	if s.ObjectStore != nil && s.Dataset != "" {
		s.checkFixtureFiles(ctx, &summary, addIssue)
	}

	targets := []struct {
		name   string
		runner query.Runner
	}{
		{TargetStore, s.Runner},
		{TargetFixture, s.FixtureRunner},
	}
	for _, target := range targets {
		if target.runner == nil {
			continue
		}
		if target.name == TargetFixture && summary.MissingFixtureFiles > 0 {
			continue
		}
		summary.Targets = append(summary.Targets, target.name)

		for _, check := range integrityChecks {
			if err := ctx.Err(); err != nil {
				integrityRunsTotal.WithLabelValues("canceled").Inc()
				return summary, err
			}
			summary.ChecksRun++
			label := target.name + "." + check.Name
			result, err := target.runner.Run(ctx, check.SQL)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					integrityRunsTotal.WithLabelValues("canceled").Inc()
					return summary, err
				}
				summary.OperationalFailures++
				addIssue(fmt.Sprintf("%s: %v", label, err))
				continue
			}
			summary.Violations[label] = len(result.Rows)
			if len(result.Rows) > 0 {
				integrityViolationsTotal.WithLabelValues(label).Add(float64(len(result.Rows)))
			}
			for _, row := range result.Rows {
				addIssue(target.name + ": " + check.Describe(row))
			}
		}
	}
	summary.FinishedAt = now().UTC()

	if issueCount > 0 {
		integrityRunsTotal.WithLabelValues("failed").Inc()
		extra := issueCount - len(summary.Issues)
		if extra > 0 {
			return summary, fmt.Errorf("integrity check found %d issue(s): %s; ... plus %d more", issueCount, strings.Join(summary.Issues, "; "), extra)
		}
		return summary, fmt.Errorf("integrity check found %d issue(s): %s", issueCount, strings.Join(summary.Issues, "; "))
	}
	integrityRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

func (s *Service) checkFixtureFiles(ctx context.Context, summary *IntegritySummary, addIssue func(string)) {
	for _, table := range fixture.Tables {
		key, err := storage.BuildFixturePath(s.Dataset, table)
		if err != nil {
			summary.OperationalFailures++
			addIssue(fmt.Sprintf("fixture %s: %v", table, err))
			continue
		}
		summary.FixtureFilesChecked++
		integrityFixtureFilesCheckedTotal.Inc()

		info, err := s.ObjectStore.Stat(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				summary.MissingFixtureFiles++
				integrityMissingFixtureFilesTotal.Inc()
				addIssue(fmt.Sprintf("fixture missing file %s", key))
				continue
			}
			summary.OperationalFailures++
			addIssue(fmt.Sprintf("fixture stat file %s: %v", key, err))
			continue
		}
		if info.Size == 0 {
			summary.MissingFixtureFiles++
			integrityMissingFixtureFilesTotal.Inc()
			addIssue(fmt.Sprintf("fixture file %s is empty", key))
		}
	}
}

// ViolationLabels returns the check labels with at least one violation.
func (s IntegritySummary) ViolationLabels() []string {
	labels := make([]string, 0, len(s.Violations))
	for label, count := range s.Violations {
		if count > 0 {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels
}

func (s *Service) clock() func() time.Time {
	if s.Clock == nil {
		return time.Now
	}
	return s.Clock
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

func (s *Service) maxIssueSamples() int {
	if s.Config.MaxIssueSamples <= 0 {
		return 20
	}
	return s.Config.MaxIssueSamples
}
