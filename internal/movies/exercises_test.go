package movies

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castdb/castdb/internal/fixture"
	"github.com/castdb/castdb/internal/migrations"
	"github.com/castdb/castdb/internal/query"
	"github.com/castdb/castdb/internal/query/sqldb"
	"github.com/castdb/castdb/internal/store"
)

func TestEveryExerciseIsIdempotent(t *testing.T) {
	exercises := newSeededExercises(t, fixture.Sample())
	ctx := context.Background()

	for _, op := range Operations() {
		first, err := exercises.Run(ctx, op.Name, nil)
		require.NoError(t, err, op.Name)
		second, err := exercises.Run(ctx, op.Name, nil)
		require.NoError(t, err, op.Name)

		assert.Equal(t, op.Columns, first.Columns, op.Name)
		assert.NotEmpty(t, first.Rows, op.Name)
		assert.Equal(t, first.Rows, second.Rows, op.Name)
	}
}

func TestExampleJoinReturnsJoinedRows(t *testing.T) {
	ds := fixture.Sample()
	exercises := newSeededExercises(t, ds)

	result, err := exercises.ExampleJoin(context.Background())
	require.NoError(t, err)

	connery, ok := ds.ActorByName(DefaultExampleActor)
	require.True(t, ok)
	require.Len(t, result.Rows, len(ds.CastingsOf(connery.ID)))

	var drNo map[string]any
	for _, record := range result.Records() {
		assert.Equal(t, "Sean Connery", record["name"])
		assert.Equal(t, connery.ID, record["actor_id"])
		if record["title"] == "Dr. No" {
			drNo = record
		}
	}
	require.NotNil(t, drNo)
	assert.Equal(t, int64(101), drNo["movie_id"])
	assert.Equal(t, int64(1962), drNo["yr"])
	assert.Equal(t, 7.2, drNo["score"])
	assert.Equal(t, int64(180000), drNo["votes"])
	assert.Equal(t, int64(38), drNo["director_id"])
	assert.Equal(t, int64(1), drNo["ord"])
}

func TestFordSupportingFilmsAreFordFilmsWithoutStarringRoles(t *testing.T) {
	ds := fixture.Sample()
	exercises := newSeededExercises(t, ds)
	ctx := context.Background()

	films, err := exercises.FordFilms(ctx)
	require.NoError(t, err)
	supporting, err := exercises.FordSupportingFilms(ctx)
	require.NoError(t, err)

	all := stringColumn(t, films, "title")
	support := stringColumn(t, supporting, "title")
	assert.ElementsMatch(t, []string{"Apocalypse Now", "Blade Runner", "Force 10 from Navarone", "Raiders of the Lost Ark", "Star Wars"}, all)
	assert.ElementsMatch(t, []string{"Apocalypse Now", "Force 10 from Navarone", "Star Wars"}, support)
	assert.Subset(t, all, support)

	ford, _ := ds.ActorByName(DefaultFordActor)
	var starring []string
	for _, casting := range ds.CastingsOf(ford.ID) {
		if casting.Ord == 1 {
			movie, _ := ds.Movie(casting.MovieID)
			starring = append(starring, movie.Title)
		}
	}
	assert.ElementsMatch(t, starring, difference(all, support))
}

func TestFilmsAndStarsFromSixtyTwo(t *testing.T) {
	exercises := newSeededExercises(t, fixture.Sample())

	result, err := exercises.FilmsAndStarsFromSixtyTwo(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]any{
		{"Dr. No", "Sean Connery"},
		{"Lawrence of Arabia", "Peter O'Toole"},
	}, result.Rows)
}

func TestTravoltasBusiestYearsMatchTrueCounts(t *testing.T) {
	ds := fixture.Sample()
	exercises := newSeededExercises(t, ds)

	result, err := exercises.TravoltasBusiestYears(context.Background())
	require.NoError(t, err)
	require.Equal(t, [][]any{{int64(1978), int64(2)}}, result.Rows)

	travolta, _ := ds.ActorByName(DefaultTravoltaActor)
	perYear := map[int64]int64{}
	for _, casting := range ds.CastingsOf(travolta.ID) {
		movie, _ := ds.Movie(casting.MovieID)
		perYear[movie.Year]++
	}
	for _, record := range result.Records() {
		count := record["movie_count"].(int64)
		assert.Greater(t, count, int64(1))
		assert.Equal(t, perYear[record["yr"].(int64)], count)
	}

	everyYear, err := exercises.BusiestYearsOf(context.Background(), DefaultTravoltaActor, 1)
	require.NoError(t, err)
	assert.Len(t, everyYear.Rows, len(perYear))
}

func TestAndrewsFilmsAndLeads(t *testing.T) {
	exercises := newSeededExercises(t, fixture.Sample())

	result, err := exercises.AndrewsFilmsAndLeads(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]any{
		{"Mary Poppins", "Julie Andrews"},
		{"The Sound of Music", "Julie Andrews"},
		{"Torn Curtain", "Paul Newman"},
	}, result.Rows)
}

func TestProlificActorsAreSortedAndQualify(t *testing.T) {
	ds := fixture.Sample()
	exercises := newSeededExercises(t, ds)
	ctx := context.Background()

	result, err := exercises.ProlificActors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sean Connery"}, stringColumn(t, result, "name"))

	everyStar, err := exercises.ActorsWithStarringRoles(ctx, 1)
	require.NoError(t, err)
	names := stringColumn(t, everyStar, "name")
	assert.Greater(t, len(names), 1)
	assert.True(t, sort.StringsAreSorted(names), "names = %v", names)

	for _, name := range stringColumn(t, result, "name") {
		actor, _ := ds.ActorByName(name)
		starring := 0
		for _, casting := range ds.CastingsOf(actor.ID) {
			if casting.Ord == 1 {
				starring++
			}
		}
		assert.GreaterOrEqual(t, starring, DefaultMinStarring, name)
	}
}

func TestFilmsByCastSizeOrdering(t *testing.T) {
	exercises := newSeededExercises(t, fixture.Sample())

	result, err := exercises.FilmsByCastSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{"Superman", int64(4)},
		{"Force 10 from Navarone", int64(3)},
		{"Grease", int64(3)},
		{"Moment by Moment", int64(2)},
	}, result.Rows)

	empty, err := exercises.FilmsByCastSizeIn(context.Background(), 1900)
	require.NoError(t, err)
	assert.Empty(t, empty.Rows)
}

func TestColleaguesOfGarfunkelExcludeHimself(t *testing.T) {
	exercises := newSeededExercises(t, fixture.Sample())

	result, err := exercises.ColleaguesOfGarfunkel(context.Background())
	require.NoError(t, err)
	names := stringColumn(t, result, "name")
	assert.NotContains(t, names, DefaultGarfunkelActor)
	assert.ElementsMatch(t, []string{
		"Alan Arkin", "Ann-Margret", "Candice Bergen", "Harvey Keitel",
		"Jack Nicholson", "Jon Voight", "Theresa Russell",
	}, names)
}

func TestColleaguesAreDistinct(t *testing.T) {
	ds := fixture.Dataset{
		Actors: []fixture.Actor{{ID: 1, Name: "Art Garfunkel"}, {ID: 2, Name: "Jack Nicholson"}},
		Movies: []fixture.Movie{
			{ID: 10, Title: "Carnal Knowledge", Year: 1971},
			{ID: 11, Title: "Another Picture", Year: 1972},
		},
		Castings: []fixture.Casting{
			{MovieID: 10, ActorID: 2, Ord: 1},
			{MovieID: 10, ActorID: 1, Ord: 2},
			{MovieID: 11, ActorID: 1, Ord: 1},
			{MovieID: 11, ActorID: 2, Ord: 2},
		},
	}
	exercises := newSeededExercises(t, ds)

	result, err := exercises.ColleaguesOf(context.Background(), "Art Garfunkel")
	require.NoError(t, err)
	assert.Equal(t, []string{"Jack Nicholson"}, stringColumn(t, result, "name"))
}

func TestFordExampleEndToEnd(t *testing.T) {
	ds := fixture.Dataset{
		Actors: []fixture.Actor{{ID: 1, Name: "Harrison Ford"}},
		Movies: []fixture.Movie{
			{ID: 10, Title: "Star Wars", Year: 1977},
			{ID: 11, Title: "Apocalypse Now", Year: 1979},
		},
		Castings: []fixture.Casting{
			{MovieID: 10, ActorID: 1, Ord: 1},
			{MovieID: 11, ActorID: 1, Ord: 2},
		},
	}
	exercises := newSeededExercises(t, ds)
	ctx := context.Background()

	films, err := exercises.FordFilms(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Star Wars", "Apocalypse Now"}, stringColumn(t, films, "title"))

	supporting, err := exercises.FordSupportingFilms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Apocalypse Now"}, stringColumn(t, supporting, "title"))
}

func TestGeneralisedFormsTakeTheirArgument(t *testing.T) {
	exercises := newSeededExercises(t, fixture.Sample())
	ctx := context.Background()

	result, err := exercises.FilmsOf(ctx, "Julie Andrews")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Mary Poppins", "The Sound of Music", "Torn Curtain"}, stringColumn(t, result, "title"))

	result, err = exercises.FilmsAndStarsFrom(ctx, 1977)
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]any{
		{"Saturday Night Fever", "John Travolta"},
		{"Star Wars", "Mark Hamill"},
	}, result.Rows)

	result, err = exercises.Run(ctx, ExerciseFordFilms, Args{"actor": "Nobody"})
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
}

func newSeededExercises(t *testing.T, ds fixture.Dataset) *Exercises {
	t.Helper()
	ctx := context.Background()

	db, err := store.Open(ctx, store.DBConfig{
		Driver: store.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "movies.sqlite"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = migrations.NewRunner(store.SQLite).Up(ctx, db, 0)
	require.NoError(t, err)
	require.NoError(t, fixture.Seed(ctx, db, store.SQLite, ds))

	return New(sqldb.NewRunner(db, store.SQLite), nil)
}

func stringColumn(t *testing.T, result query.Result, name string) []string {
	t.Helper()
	values, err := result.Column(name)
	require.NoError(t, err)
	out := make([]string, 0, len(values))
	for _, value := range values {
		text, ok := value.(string)
		require.True(t, ok, "%s value %#v is not a string", name, value)
		out = append(out, text)
	}
	return out
}

func difference(all, remove []string) []string {
	drop := make(map[string]struct{}, len(remove))
	for _, value := range remove {
		drop[value] = struct{}{}
	}
	var out []string
	for _, value := range all {
		if _, ok := drop[value]; !ok {
			out = append(out, value)
		}
	}
	return out
}
