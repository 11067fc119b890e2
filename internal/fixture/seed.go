package fixture

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/castdb/castdb/internal/store"
)

// Seed inserts ds into a migrated store in one transaction: actors, then
// movies, then castings.
func Seed(ctx context.Context, db *sql.DB, dialect store.Dialect, ds Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, actor := range ds.Actors {
		if err := execRebound(ctx, tx, dialect, `INSERT INTO actors (id, name) VALUES ($1, $2)`, actor.ID, actor.Name); err != nil {
			return fmt.Errorf("insert actor %d: %w", actor.ID, err)
		}
	}
	for _, movie := range ds.Movies {
		err := execRebound(ctx, tx, dialect,
			`INSERT INTO movies (id, title, yr, score, votes, director_id) VALUES ($1, $2, $3, $4, $5, $6)`,
			movie.ID, movie.Title, movie.Year, nullable(movie.Score), nullable(movie.Votes), nullable(movie.DirectorID))
		if err != nil {
			return fmt.Errorf("insert movie %d: %w", movie.ID, err)
		}
	}
	for _, casting := range ds.Castings {
		err := execRebound(ctx, tx, dialect,
			`INSERT INTO castings (movie_id, actor_id, ord) VALUES ($1, $2, $3)`,
			casting.MovieID, casting.ActorID, casting.Ord)
		if err != nil {
			return fmt.Errorf("insert casting movie %d actor %d: %w", casting.MovieID, casting.ActorID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed tx: %w", err)
	}
	return nil
}

// Reset deletes every row from the three tables.
func Reset(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{TableCastings, TableMovies, TableActors} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset tx: %w", err)
	}
	return nil
}

func execRebound(ctx context.Context, tx *sql.Tx, dialect store.Dialect, statement string, args ...any) error {
	statement, bound, err := dialect.Rebind(statement, args)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, statement, bound...)
	return err
}

func nullable[T any](value *T) any {
	if value == nil {
		return nil
	}
	return *value
}
