package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoader() (*Loader, *fakeMovieRepo, *fakeRatingRepo) {
	movies := newFakeMovieRepo()
	ratings := newFakeRatingRepo(movies)
	return NewLoader(movies, ratings, testLogger()), movies, ratings
}

func TestLoadMovies(t *testing.T) {
	loader, movies, _ := newTestLoader()

	input := strings.Join([]string{
		"movieId,title,genres",
		"1,Toy Story (1995),Adventure|Animation|Children",
		"2,Heat (1995),Action|Crime|Thriller",
		"3,Documentary Without Year,(no genres listed)",
	}, "\n")

	loaded, skipped, err := loader.LoadMovies(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 3, loaded)
	assert.Equal(t, 0, skipped)

	m, err := movies.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Toy Story", m.Title)
	require.NotNil(t, m.Year)
	assert.Equal(t, 1995, *m.Year)

	genres, err := movies.GenresOf(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Action", "Crime", "Thriller"}, genres)

	// year suffix absent, placeholder genre dropped
	m, err = movies.GetByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Nil(t, m.Year)
	genres, err = movies.GenresOf(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, genres)
}

func TestLoadMovies_SkipsMalformedRows(t *testing.T) {
	loader, movies, _ := newTestLoader()

	input := strings.Join([]string{
		"movieId,title,genres",
		"1,Toy Story (1995),Animation",
		"not-a-number,Broken Row,Comedy",
		"2", // too few fields
		"3,Heat (1995),Action",
	}, "\n")

	loaded, skipped, err := loader.LoadMovies(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)
	assert.Equal(t, 2, skipped)

	// the stream kept going past the bad rows
	_, err = movies.GetByID(context.Background(), 3)
	assert.NoError(t, err)
}

func TestLoadRatings_SkipsUnknownMovie(t *testing.T) {
	loader, movies, ratings := newTestLoader()
	mustAddMovie(t, movies, 1, "Toy Story", intp(1995))

	input := strings.Join([]string{
		"userId,movieId,rating,timestamp",
		"7,1,4.0,964982703",
		"7,999,5.0,964982800", // no such movie
		"8,1,3.5,964982900",
	}, "\n")

	loaded, skipped, err := loader.LoadRatings(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)
	assert.Equal(t, 1, skipped)

	n, err := ratings.CountForMovie(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRun_LoadsBothFiles(t *testing.T) {
	loader, movies, ratings := newTestLoader()

	dir := t.TempDir()
	moviesPath := filepath.Join(dir, "movies.csv")
	ratingsPath := filepath.Join(dir, "ratings.csv")
	require.NoError(t, os.WriteFile(moviesPath, []byte(
		"movieId,title,genres\n1,Toy Story (1995),Animation\n2,Heat (1995),Action\n"), 0o644))
	require.NoError(t, os.WriteFile(ratingsPath, []byte(
		"userId,movieId,rating,timestamp\n7,1,4.0,964982703\n7,2,5.0,964982800\n8,3,2.0,964982900\n"), 0o644))

	summary, err := loader.Run(context.Background(), moviesPath, ratingsPath)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.MoviesLoaded)
	assert.Equal(t, 2, summary.RatingsLoaded)
	assert.Equal(t, 1, summary.RowsSkipped) // the rating for the unknown movie 3

	_, err = movies.GetByID(context.Background(), 2)
	assert.NoError(t, err)
	n, err := ratings.CountForMovie(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRun_MissingMoviesFile(t *testing.T) {
	loader, _, _ := newTestLoader()

	_, err := loader.Run(context.Background(), filepath.Join(t.TempDir(), "absent.csv"), "unused.csv")
	assert.Error(t, err)
}

func TestRun_ReloadIsIdempotent(t *testing.T) {
	loader, movies, ratings := newTestLoader()

	dir := t.TempDir()
	moviesPath := filepath.Join(dir, "movies.csv")
	ratingsPath := filepath.Join(dir, "ratings.csv")
	require.NoError(t, os.WriteFile(moviesPath, []byte(
		"movieId,title,genres\n1,Toy Story (1995),Animation\n"), 0o644))
	require.NoError(t, os.WriteFile(ratingsPath, []byte(
		"userId,movieId,rating,timestamp\n7,1,4.0,964982703\n"), 0o644))

	_, err := loader.Run(context.Background(), moviesPath, ratingsPath)
	require.NoError(t, err)
	_, err = loader.Run(context.Background(), moviesPath, ratingsPath)
	require.NoError(t, err)

	assert.Len(t, movies.movies, 1)
	n, err := ratings.CountForMovie(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
