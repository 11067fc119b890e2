// Package movies is the catalogue of join exercises over the movies,
// actors and castings tables. Every exercise is a single read-only SELECT
// with bound parameters; the parameterless methods run it with the classic
// literals.
package movies

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/castdb/castdb/internal/observability"
	"github.com/castdb/castdb/internal/query"
)

const (
	DefaultExampleActor    = "Sean Connery"
	DefaultFordActor       = "Harrison Ford"
	DefaultSixtyTwoYear    = 1962
	DefaultTravoltaActor   = "John Travolta"
	DefaultBusiestMinFilms = 2
	DefaultAndrewsActor    = "Julie Andrews"
	DefaultMinStarring     = 15
	DefaultCastSizeYear    = 1978
	DefaultGarfunkelActor  = "Art Garfunkel"
)

const (
	castingsOfSQL = `
SELECT
	movies.id AS movie_id, movies.title, movies.yr, movies.score, movies.votes, movies.director_id,
	actors.id AS actor_id, actors.name, castings.ord
FROM movies
JOIN castings ON movies.id = castings.movie_id
JOIN actors ON castings.actor_id = actors.id
WHERE actors.name = $1
ORDER BY movies.title`

	filmsOfSQL = `
SELECT movies.title
FROM movies
JOIN castings ON movies.id = castings.movie_id
JOIN actors ON castings.actor_id = actors.id
WHERE actors.name = $1
ORDER BY movies.title`

	supportingFilmsOfSQL = `
SELECT movies.title
FROM movies
JOIN castings ON movies.id = castings.movie_id
JOIN actors ON castings.actor_id = actors.id
WHERE actors.name = $1 AND castings.ord > 1
ORDER BY movies.title`

	filmsAndStarsFromSQL = `
SELECT movies.title, actors.name
FROM actors
JOIN castings ON castings.actor_id = actors.id
JOIN movies ON castings.movie_id = movies.id AND movies.yr = $1
WHERE castings.ord = 1
ORDER BY movies.title`

	busiestYearsOfSQL = `
SELECT movies.yr, COUNT(movies.title) AS movie_count
FROM movies
JOIN castings ON movies.id = castings.movie_id
JOIN actors ON actors.id = castings.actor_id AND actors.name = $1
GROUP BY movies.yr
HAVING COUNT(movies.title) >= $2
ORDER BY movies.yr`

	filmsAndLeadsOfSQL = `
SELECT actor_movies.title, actors.name
FROM (
	SELECT movies.id AS movie_id, movies.title
	FROM castings
	JOIN actors ON castings.actor_id = actors.id
	JOIN movies ON castings.movie_id = movies.id
	WHERE actors.name = $1
) AS actor_movies
JOIN castings ON castings.movie_id = actor_movies.movie_id
JOIN actors ON actors.id = castings.actor_id
WHERE castings.ord = 1
ORDER BY actor_movies.title`

	actorsWithStarringRolesSQL = `
SELECT actors.name
FROM actors
JOIN castings ON castings.actor_id = actors.id
WHERE castings.ord = 1
GROUP BY actors.id, actors.name
HAVING COUNT(*) >= $1
ORDER BY actors.name`

	filmsByCastSizeInSQL = `
SELECT movies.title, COUNT(castings.actor_id) AS cast_size
FROM movies
JOIN castings ON castings.movie_id = movies.id
WHERE movies.yr = $1
GROUP BY movies.id, movies.title
ORDER BY cast_size DESC, movies.title`

	colleaguesOfSQL = `
SELECT DISTINCT actors.name
FROM (
	SELECT castings.movie_id
	FROM castings
	JOIN actors ON castings.actor_id = actors.id
	WHERE actors.name = $1
) AS actor_movies
JOIN castings ON castings.movie_id = actor_movies.movie_id
JOIN actors ON castings.actor_id = actors.id
WHERE actors.name <> $1
ORDER BY actors.name`
)

// Exercises runs the catalogue through an injected query runner.
type Exercises struct {
	Runner query.Runner
	Logger *slog.Logger
}

func New(runner query.Runner, logger *slog.Logger) *Exercises {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exercises{Runner: runner, Logger: logger}
}

// ExampleJoin lists every casting of Sean Connery with the joined movie and
// actor columns.
func (e *Exercises) ExampleJoin(ctx context.Context) (query.Result, error) {
	return e.run(ctx, ExerciseExampleJoin, castingsOfSQL, DefaultExampleActor)
}

// CastingsOf lists every casting of actor joined with its movie and actor
// rows.
func (e *Exercises) CastingsOf(ctx context.Context, actor string) (query.Result, error) {
	return e.run(ctx, ExerciseExampleJoin, castingsOfSQL, actor)
}

func (e *Exercises) FordFilms(ctx context.Context) (query.Result, error) {
	return e.run(ctx, ExerciseFordFilms, filmsOfSQL, DefaultFordActor)
}

// FilmsOf lists the titles actor appeared in, in any role.
func (e *Exercises) FilmsOf(ctx context.Context, actor string) (query.Result, error) {
	return e.run(ctx, ExerciseFordFilms, filmsOfSQL, actor)
}

func (e *Exercises) FordSupportingFilms(ctx context.Context) (query.Result, error) {
	return e.run(ctx, ExerciseFordSupportingFilms, supportingFilmsOfSQL, DefaultFordActor)
}

// SupportingFilmsOf lists the titles where actor was cast with ord > 1.
func (e *Exercises) SupportingFilmsOf(ctx context.Context, actor string) (query.Result, error) {
	return e.run(ctx, ExerciseFordSupportingFilms, supportingFilmsOfSQL, actor)
}

func (e *Exercises) FilmsAndStarsFromSixtyTwo(ctx context.Context) (query.Result, error) {
	return e.run(ctx, ExerciseFilmsAndStarsFromSixtyTwo, filmsAndStarsFromSQL, DefaultSixtyTwoYear)
}

// FilmsAndStarsFrom pairs each film of year with its starring actor.
func (e *Exercises) FilmsAndStarsFrom(ctx context.Context, year int) (query.Result, error) {
	return e.run(ctx, ExerciseFilmsAndStarsFromSixtyTwo, filmsAndStarsFromSQL, year)
}

func (e *Exercises) TravoltasBusiestYears(ctx context.Context) (query.Result, error) {
	return e.run(ctx, ExerciseTravoltasBusiestYears, busiestYearsOfSQL, DefaultTravoltaActor, DefaultBusiestMinFilms)
}

// BusiestYearsOf returns (yr, movie_count) for every year in which actor
// made at least minFilms movies.
func (e *Exercises) BusiestYearsOf(ctx context.Context, actor string, minFilms int) (query.Result, error) {
	return e.run(ctx, ExerciseTravoltasBusiestYears, busiestYearsOfSQL, actor, minFilms)
}

func (e *Exercises) AndrewsFilmsAndLeads(ctx context.Context) (query.Result, error) {
	return e.run(ctx, ExerciseAndrewsFilmsAndLeads, filmsAndLeadsOfSQL, DefaultAndrewsActor)
}

// FilmsAndLeadsOf lists each film actor appeared in with that film's
// starring actor.
func (e *Exercises) FilmsAndLeadsOf(ctx context.Context, actor string) (query.Result, error) {
	return e.run(ctx, ExerciseAndrewsFilmsAndLeads, filmsAndLeadsOfSQL, actor)
}

func (e *Exercises) ProlificActors(ctx context.Context) (query.Result, error) {
	return e.run(ctx, ExerciseProlificActors, actorsWithStarringRolesSQL, DefaultMinStarring)
}

// ActorsWithStarringRoles lists, alphabetically, the actors with at least
// minRoles ord=1 castings.
func (e *Exercises) ActorsWithStarringRoles(ctx context.Context, minRoles int) (query.Result, error) {
	return e.run(ctx, ExerciseProlificActors, actorsWithStarringRolesSQL, minRoles)
}

func (e *Exercises) FilmsByCastSize(ctx context.Context) (query.Result, error) {
	return e.run(ctx, ExerciseFilmsByCastSize, filmsByCastSizeInSQL, DefaultCastSizeYear)
}

// FilmsByCastSizeIn lists the films of year by cast size descending, then
// title ascending.
func (e *Exercises) FilmsByCastSizeIn(ctx context.Context, year int) (query.Result, error) {
	return e.run(ctx, ExerciseFilmsByCastSize, filmsByCastSizeInSQL, year)
}

func (e *Exercises) ColleaguesOfGarfunkel(ctx context.Context) (query.Result, error) {
	return e.run(ctx, ExerciseColleaguesOfGarfunkel, colleaguesOfSQL, DefaultGarfunkelActor)
}

// ColleaguesOf lists the distinct actors who shared a film with actor,
// excluding actor.
func (e *Exercises) ColleaguesOf(ctx context.Context, actor string) (query.Result, error) {
	return e.run(ctx, ExerciseColleaguesOfGarfunkel, colleaguesOfSQL, actor)
}

func (e *Exercises) run(ctx context.Context, name, sqlText string, args ...any) (query.Result, error) {
	if e.Runner == nil {
		return query.Result{}, fmt.Errorf("%s: query runner is required", name)
	}

	start := time.Now()
	result, err := e.Runner.Run(ctx, sqlText, args...)
	elapsed := time.Since(start)
	outcome := observability.OutcomeFor(err)
	observability.ObserveExercise(name, outcome, len(result.Rows), elapsed)

	if err != nil {
		e.logger().LogAttrs(ctx, slog.LevelWarn, "exercise failed",
			slog.String("exercise", name),
			slog.String("outcome", outcome),
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.Any("error", err),
		)
		return query.Result{}, fmt.Errorf("%s: %w", name, err)
	}

	e.logger().LogAttrs(ctx, slog.LevelDebug, "exercise completed",
		slog.String("exercise", name),
		slog.Int("rows", len(result.Rows)),
		slog.Duration("duration", elapsed),
	)
	return result, nil
}

func (e *Exercises) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}
