package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/sakif/movie-etl/internal/apperror"
	"github.com/sakif/movie-etl/internal/model"
	"github.com/sakif/movie-etl/internal/omdb"
	"github.com/sakif/movie-etl/internal/repository"
)

// The fakes below are in-memory stand-ins for the sqlite repositories. They
// implement the same contracts the real implementations are tested against:
// COALESCE-style upserts, fill-only-NULL enrichment, and validation errors
// for ratings without a movie.

type fakeMovieRepo struct {
	mu     sync.Mutex
	movies map[int64]*model.Movie
	genres map[int64][]string
	states map[int64]*model.EnrichmentState

	setStateErr error // when set, SetEnrichmentState fails with it
}

var _ repository.MovieRepository = (*fakeMovieRepo)(nil)

func newFakeMovieRepo() *fakeMovieRepo {
	return &fakeMovieRepo{
		movies: make(map[int64]*model.Movie),
		genres: make(map[int64][]string),
		states: make(map[int64]*model.EnrichmentState),
	}
}

func (f *fakeMovieRepo) Upsert(_ context.Context, id int64, title string, year *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.movies[id]
	if !ok {
		f.movies[id] = &model.Movie{ID: id, Title: title, Year: year}
		return nil
	}
	m.Title = title
	if year != nil {
		m.Year = year
	}
	return nil
}

func (f *fakeMovieRepo) AttachGenres(_ context.Context, movieID int64, genres []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.movies[movieID]; !ok {
		return apperror.NotFound("movie", strconv.FormatInt(movieID, 10))
	}
	existing := f.genres[movieID]
	for _, g := range genres {
		dup := false
		for _, have := range existing {
			if have == g {
				dup = true
				break
			}
		}
		if !dup {
			existing = append(existing, g)
		}
	}
	f.genres[movieID] = existing
	return nil
}

func (f *fakeMovieRepo) GetByID(_ context.Context, id int64) (*model.Movie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.movies[id]
	if !ok {
		return nil, apperror.NotFound("movie", strconv.FormatInt(id, 10))
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMovieRepo) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.movies[id]; !ok {
		return apperror.NotFound("movie", strconv.FormatInt(id, 10))
	}
	delete(f.movies, id)
	delete(f.genres, id)
	delete(f.states, id)
	return nil
}

func (f *fakeMovieRepo) GenresOf(_ context.Context, movieID int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.genres[movieID]...), nil
}

func (f *fakeMovieRepo) EnrichmentCandidates(_ context.Context, opts repository.CandidateOptions) ([]model.Movie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.movies))
	for id := range f.movies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []model.Movie
	for _, id := range ids {
		m := f.movies[id]
		if !m.NeedsEnrichment() {
			continue
		}
		if st, ok := f.states[id]; ok && st.Status == model.EnrichmentUnresolved && !opts.Force {
			continue
		}
		out = append(out, *m)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeMovieRepo) ApplyEnrichment(_ context.Context, movieID int64, e repository.Enrichment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.movies[movieID]
	if !ok {
		return apperror.NotFound("movie", strconv.FormatInt(movieID, 10))
	}
	if e.ImdbID != nil {
		for id, other := range f.movies {
			if id != movieID && other.ImdbID != nil && *other.ImdbID == *e.ImdbID {
				return apperror.Conflict("movie", *e.ImdbID)
			}
		}
	}
	if m.ImdbID == nil {
		m.ImdbID = e.ImdbID
	}
	if m.Director == nil {
		m.Director = e.Director
	}
	if m.Plot == nil {
		m.Plot = e.Plot
	}
	if m.BoxOffice == nil {
		m.BoxOffice = e.BoxOffice
	}
	if m.Released == nil {
		m.Released = e.Released
	}
	if m.RuntimeMinutes == nil {
		m.RuntimeMinutes = e.RuntimeMinutes
	}
	return nil
}

func (f *fakeMovieRepo) SetEnrichmentState(_ context.Context, movieID int64, status model.EnrichmentStatus, attempts int, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setStateErr != nil {
		return f.setStateErr
	}
	st := &model.EnrichmentState{MovieID: movieID, Status: status, Attempts: attempts}
	if lastError != "" {
		st.LastError = &lastError
	}
	f.states[movieID] = st
	return nil
}

func (f *fakeMovieRepo) ClearEnrichmentState(_ context.Context, movieID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, movieID)
	return nil
}

func (f *fakeMovieRepo) GetEnrichmentState(_ context.Context, movieID int64) (*model.EnrichmentState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[movieID]
	if !ok {
		return nil, apperror.NotFound("enrichment state", strconv.FormatInt(movieID, 10))
	}
	cp := *st
	return &cp, nil
}

type ratingKey struct {
	userID  int64
	movieID int64
	ts      int64
}

type fakeRatingRepo struct {
	mu      sync.Mutex
	movies  *fakeMovieRepo
	ratings map[ratingKey]float64
}

var _ repository.RatingRepository = (*fakeRatingRepo)(nil)

func newFakeRatingRepo(movies *fakeMovieRepo) *fakeRatingRepo {
	return &fakeRatingRepo{
		movies:  movies,
		ratings: make(map[ratingKey]float64),
	}
}

func (f *fakeRatingRepo) Insert(_ context.Context, r model.Rating) error {
	f.movies.mu.Lock()
	_, known := f.movies.movies[r.MovieID]
	f.movies.mu.Unlock()
	if !known {
		return apperror.ValidationFailed("movieId", "movie does not exist")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	key := ratingKey{userID: r.UserID, movieID: r.MovieID}
	if r.Timestamp != nil {
		key.ts = *r.Timestamp
	}
	f.ratings[key] = r.Rating // duplicate key overwrites, a no-op in effect
	return nil
}

func (f *fakeRatingRepo) CountForMovie(_ context.Context, movieID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for key := range f.ratings {
		if key.movieID == movieID {
			n++
		}
	}
	return n, nil
}

// fakeClient scripts lookup responses per call.
type fakeClient struct {
	mu      sync.Mutex
	calls   int
	byTitle func(call int, title string, year *int) (omdb.Result, error)
	byID    func(call int, imdbID string) (omdb.Result, error)
}

var _ MetadataClient = (*fakeClient)(nil)

func (f *fakeClient) LookupByTitle(_ context.Context, title string, year *int) (omdb.Result, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.byTitle == nil {
		return omdb.Result{Status: omdb.StatusNoMatch}, nil
	}
	return f.byTitle(call, title, year)
}

func (f *fakeClient) LookupByID(_ context.Context, imdbID string) (omdb.Result, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.byID == nil {
		return omdb.Result{Status: omdb.StatusNoMatch}, nil
	}
	return f.byID(call, imdbID)
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func matchResult(meta omdb.Metadata) omdb.Result {
	return omdb.Result{Status: omdb.StatusMatch, Metadata: &meta}
}

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }

func mustAddMovie(t *testing.T, repo *fakeMovieRepo, id int64, title string, year *int) {
	t.Helper()
	if err := repo.Upsert(context.Background(), id, title, year); err != nil {
		t.Fatalf("seeding movie %d: %v", id, err)
	}
}
