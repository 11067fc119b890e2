// Package fixture holds the movie dataset the exercises run against: its
// YAML and Parquet encodings, validation, and loading into a store.
package fixture

import (
	"errors"
	"fmt"
	"sort"
)

const (
	TableActors   = "actors"
	TableMovies   = "movies"
	TableCastings = "castings"
)

// Tables lists the dataset tables in load order.
var Tables = []string{TableActors, TableMovies, TableCastings}

type Actor struct {
	ID   int64  `parquet:"id" yaml:"id"`
	Name string `parquet:"name" yaml:"name"`
}

type Movie struct {
	ID         int64    `parquet:"id" yaml:"id"`
	Title      string   `parquet:"title" yaml:"title"`
	Year       int64    `parquet:"yr" yaml:"yr"`
	Score      *float64 `parquet:"score" yaml:"score,omitempty"`
	Votes      *int64   `parquet:"votes" yaml:"votes,omitempty"`
	DirectorID *int64   `parquet:"director_id" yaml:"director_id,omitempty"`
}

// Casting places an actor in a movie. Ord 1 is the starring role.
type Casting struct {
	MovieID int64 `parquet:"movie_id" yaml:"movie_id"`
	ActorID int64 `parquet:"actor_id" yaml:"actor_id"`
	Ord     int64 `parquet:"ord" yaml:"ord"`
}

type Dataset struct {
	Actors   []Actor
	Movies   []Movie
	Castings []Casting
}

// Validate checks key uniqueness and that every reference resolves. All
// violations are reported together.
func (d Dataset) Validate() error {
	var errs []error

	actors := make(map[int64]struct{}, len(d.Actors))
	for _, actor := range d.Actors {
		if _, dup := actors[actor.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate actor id %d", actor.ID))
		}
		actors[actor.ID] = struct{}{}
		if actor.Name == "" {
			errs = append(errs, fmt.Errorf("actor %d has no name", actor.ID))
		}
	}

	movies := make(map[int64]struct{}, len(d.Movies))
	for _, movie := range d.Movies {
		if _, dup := movies[movie.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate movie id %d", movie.ID))
		}
		movies[movie.ID] = struct{}{}
		if movie.Title == "" {
			errs = append(errs, fmt.Errorf("movie %d has no title", movie.ID))
		}
		if movie.DirectorID != nil {
			if _, ok := actors[*movie.DirectorID]; !ok {
				errs = append(errs, fmt.Errorf("movie %d references unknown director %d", movie.ID, *movie.DirectorID))
			}
		}
	}

	type pair struct{ movie, actor int64 }
	seen := make(map[pair]struct{}, len(d.Castings))
	for _, casting := range d.Castings {
		key := pair{casting.MovieID, casting.ActorID}
		if _, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("duplicate casting movie %d actor %d", casting.MovieID, casting.ActorID))
		}
		seen[key] = struct{}{}
		if _, ok := movies[casting.MovieID]; !ok {
			errs = append(errs, fmt.Errorf("casting references unknown movie %d", casting.MovieID))
		}
		if _, ok := actors[casting.ActorID]; !ok {
			errs = append(errs, fmt.Errorf("casting references unknown actor %d", casting.ActorID))
		}
		if casting.Ord < 0 {
			errs = append(errs, fmt.Errorf("casting movie %d actor %d has negative ord %d", casting.MovieID, casting.ActorID, casting.Ord))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid dataset: %w", errors.Join(errs...))
}

// ActorByName returns the first actor with the given name.
func (d Dataset) ActorByName(name string) (Actor, bool) {
	for _, actor := range d.Actors {
		if actor.Name == name {
			return actor, true
		}
	}
	return Actor{}, false
}

// CastingsOf returns the castings of actorID ordered by movie id.
func (d Dataset) CastingsOf(actorID int64) []Casting {
	var out []Casting
	for _, casting := range d.Castings {
		if casting.ActorID == actorID {
			out = append(out, casting)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MovieID < out[j].MovieID })
	return out
}

func (d Dataset) Movie(id int64) (Movie, bool) {
	for _, movie := range d.Movies {
		if movie.ID == id {
			return movie, true
		}
	}
	return Movie{}, false
}

// RowCounts reports the number of rows per table.
func (d Dataset) RowCounts() map[string]int {
	return map[string]int{
		TableActors:   len(d.Actors),
		TableMovies:   len(d.Movies),
		TableCastings: len(d.Castings),
	}
}
