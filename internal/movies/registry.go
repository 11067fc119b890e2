package movies

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/castdb/castdb/internal/query"
)

const (
	ExerciseExampleJoin               = "exampleJoin"
	ExerciseFordFilms                 = "fordFilms"
	ExerciseFordSupportingFilms       = "fordSupportingFilms"
	ExerciseFilmsAndStarsFromSixtyTwo = "filmsAndStarsFromSixtyTwo"
	ExerciseTravoltasBusiestYears     = "travoltasBusiestYears"
	ExerciseAndrewsFilmsAndLeads      = "andrewsFilmsAndLeads"
	ExerciseProlificActors            = "prolificActors"
	ExerciseFilmsByCastSize           = "filmsByCastSize"
	ExerciseColleaguesOfGarfunkel     = "colleaguesOfGarfunkel"
)

var (
	ErrUnknownExercise = errors.New("unknown exercise")
	ErrInvalidArgs     = errors.New("invalid exercise arguments")
)

type ParamKind string

const (
	ParamString ParamKind = "string"
	ParamInt    ParamKind = "int"
)

type Param struct {
	Name    string    `json:"name"`
	Kind    ParamKind `json:"kind"`
	Default any       `json:"default"`
}

// Operation describes one catalogue entry for listing and dispatch.
type Operation struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Params      []Param  `json:"params"`
	Columns     []string `json:"columns"`
	Ordered     bool     `json:"ordered"`

	call func(ctx context.Context, e *Exercises, args Args) (query.Result, error)
}

// Args are exercise arguments by parameter name.
type Args map[string]any

var operations = []Operation{
	{
		Name:        ExerciseExampleJoin,
		Description: "Every casting of an actor joined with its movie and actor rows.",
		Params:      []Param{{Name: "actor", Kind: ParamString, Default: DefaultExampleActor}},
		Columns:     []string{"movie_id", "title", "yr", "score", "votes", "director_id", "actor_id", "name", "ord"},
		call: func(ctx context.Context, e *Exercises, args Args) (query.Result, error) {
			return e.CastingsOf(ctx, args.stringArg("actor"))
		},
	},
	{
		Name:        ExerciseFordFilms,
		Description: "Films an actor appeared in.",
		Params:      []Param{{Name: "actor", Kind: ParamString, Default: DefaultFordActor}},
		Columns:     []string{"title"},
		call: func(ctx context.Context, e *Exercises, args Args) (query.Result, error) {
			return e.FilmsOf(ctx, args.stringArg("actor"))
		},
	},
	{
		Name:        ExerciseFordSupportingFilms,
		Description: "Films where an actor appeared but not in the starring role.",
		Params:      []Param{{Name: "actor", Kind: ParamString, Default: DefaultFordActor}},
		Columns:     []string{"title"},
		call: func(ctx context.Context, e *Exercises, args Args) (query.Result, error) {
			return e.SupportingFilmsOf(ctx, args.stringArg("actor"))
		},
	},
	{
		Name:        ExerciseFilmsAndStarsFromSixtyTwo,
		Description: "Title and starring actor of every film of a year.",
		Params:      []Param{{Name: "year", Kind: ParamInt, Default: DefaultSixtyTwoYear}},
		Columns:     []string{"title", "name"},
		call: func(ctx context.Context, e *Exercises, args Args) (query.Result, error) {
			return e.FilmsAndStarsFrom(ctx, args.intArg("year"))
		},
	},
	{
		Name:        ExerciseTravoltasBusiestYears,
		Description: "Years in which an actor made at least min_films movies, with the count.",
		Params: []Param{
			{Name: "actor", Kind: ParamString, Default: DefaultTravoltaActor},
			{Name: "min_films", Kind: ParamInt, Default: DefaultBusiestMinFilms},
		},
		Columns: []string{"yr", "movie_count"},
		call: func(ctx context.Context, e *Exercises, args Args) (query.Result, error) {
			return e.BusiestYearsOf(ctx, args.stringArg("actor"), args.intArg("min_films"))
		},
	},
	{
		Name:        ExerciseAndrewsFilmsAndLeads,
		Description: "Each film an actor played in with that film's starring actor.",
		Params:      []Param{{Name: "actor", Kind: ParamString, Default: DefaultAndrewsActor}},
		Columns:     []string{"title", "name"},
		call: func(ctx context.Context, e *Exercises, args Args) (query.Result, error) {
			return e.FilmsAndLeadsOf(ctx, args.stringArg("actor"))
		},
	},
	{
		Name:        ExerciseProlificActors,
		Description: "Actors with at least min_roles starring roles, alphabetically.",
		Params:      []Param{{Name: "min_roles", Kind: ParamInt, Default: DefaultMinStarring}},
		Columns:     []string{"name"},
		Ordered:     true,
		call: func(ctx context.Context, e *Exercises, args Args) (query.Result, error) {
			return e.ActorsWithStarringRoles(ctx, args.intArg("min_roles"))
		},
	},
	{
		Name:        ExerciseFilmsByCastSize,
		Description: "Films of a year by cast size descending, then title.",
		Params:      []Param{{Name: "year", Kind: ParamInt, Default: DefaultCastSizeYear}},
		Columns:     []string{"title", "cast_size"},
		Ordered:     true,
		call: func(ctx context.Context, e *Exercises, args Args) (query.Result, error) {
			return e.FilmsByCastSizeIn(ctx, args.intArg("year"))
		},
	},
	{
		Name:        ExerciseColleaguesOfGarfunkel,
		Description: "Everyone who has played alongside an actor.",
		Params:      []Param{{Name: "actor", Kind: ParamString, Default: DefaultGarfunkelActor}},
		Columns:     []string{"name"},
		call: func(ctx context.Context, e *Exercises, args Args) (query.Result, error) {
			return e.ColleaguesOf(ctx, args.stringArg("actor"))
		},
	},
}

// Operations returns the catalogue in definition order.
func Operations() []Operation {
	out := make([]Operation, len(operations))
	copy(out, operations)
	return out
}

func Lookup(name string) (Operation, bool) {
	for _, op := range operations {
		if op.Name == name {
			return op, true
		}
	}
	return Operation{}, false
}

// Run dispatches a catalogue entry by name. Missing arguments take their
// defaults; unknown or mistyped ones fail with ErrInvalidArgs.
func (e *Exercises) Run(ctx context.Context, name string, args Args) (query.Result, error) {
	op, ok := Lookup(name)
	if !ok {
		return query.Result{}, fmt.Errorf("%w: %q", ErrUnknownExercise, name)
	}
	resolved, err := op.Resolve(args)
	if err != nil {
		return query.Result{}, err
	}
	return op.call(ctx, e, resolved)
}

// Resolve applies defaults and coerces every argument to its parameter kind.
func (op Operation) Resolve(args Args) (Args, error) {
	known := make(map[string]Param, len(op.Params))
	for _, param := range op.Params {
		known[param.Name] = param
	}
	var unknown []string
	for name := range args {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s does not accept %s", ErrInvalidArgs, op.Name, strings.Join(unknown, ", "))
	}

	resolved := make(Args, len(op.Params))
	for _, param := range op.Params {
		raw, ok := args[param.Name]
		if !ok || raw == nil {
			resolved[param.Name] = param.Default
			continue
		}
		value, err := coerce(param.Kind, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, param.Name, err)
		}
		resolved[param.Name] = value
	}
	return resolved, nil
}

// ParseArgs turns key=value pairs, as given on a command line, into Args.
func ParseArgs(pairs []string) (Args, error) {
	args := make(Args, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: expected key=value, got %q", ErrInvalidArgs, pair)
		}
		args[key] = value
	}
	return args, nil
}

func coerce(kind ParamKind, raw any) (any, error) {
	switch kind {
	case ParamString:
		value, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", raw)
		}
		if strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("must not be empty")
		}
		return value, nil
	case ParamInt:
		return coerceInt(raw)
	default:
		return nil, fmt.Errorf("unsupported parameter kind %q", kind)
	}
}

func coerceInt(raw any) (int, error) {
	switch typed := raw.(type) {
	case int:
		return typed, nil
	case int64:
		return int(typed), nil
	case float64:
		if typed != math.Trunc(typed) {
			return 0, fmt.Errorf("want integer, got %v", typed)
		}
		return int(typed), nil
	case json.Number:
		value, err := typed.Int64()
		if err != nil {
			return 0, fmt.Errorf("want integer, got %q", typed.String())
		}
		return int(value), nil
	case string:
		value, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return 0, fmt.Errorf("want integer, got %q", typed)
		}
		return value, nil
	default:
		return 0, fmt.Errorf("want integer, got %T", raw)
	}
}

func (a Args) stringArg(name string) string {
	value, _ := a[name].(string)
	return value
}

func (a Args) intArg(name string) int {
	value, _ := a[name].(int)
	return value
}
