// Package service contains the business logic of the pipeline: the Loader
// that ingests the source files, the Enricher that fills in metadata from the
// external service, and the Reporter that runs the analytical queries.
//
// Services depend on the repository interfaces, never on the sqlite package
// directly, so the tests in this package run against in-memory fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sakif/movie-etl/internal/apperror"
	"github.com/sakif/movie-etl/internal/model"
	"github.com/sakif/movie-etl/internal/repository"
	"github.com/sakif/movie-etl/internal/source"
)

// progressEvery controls how often the Loader logs ingest progress.
const progressEvery = 10000

// LoadSummary is the outcome of one load run.
type LoadSummary struct {
	MoviesLoaded  int
	RatingsLoaded int
	RowsSkipped   int
}

// Loader streams the movies and ratings files into the database. Malformed
// rows and ratings referencing unknown movies are skipped and counted, never
// fatal; reader-level failures (missing file, truncated stream) abort the run.
type Loader struct {
	movies  repository.MovieRepository
	ratings repository.RatingRepository
	logger  *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(movies repository.MovieRepository, ratings repository.RatingRepository, logger *slog.Logger) *Loader {
	return &Loader{
		movies:  movies,
		ratings: ratings,
		logger:  logger,
	}
}

// Run loads both files, movies first so the ratings can reference them.
// Reloading the same files is idempotent: movies upsert in place and
// duplicate ratings are no-ops.
func (l *Loader) Run(ctx context.Context, moviesPath, ratingsPath string) (*LoadSummary, error) {
	summary := &LoadSummary{}

	mf, err := os.Open(moviesPath)
	if err != nil {
		return nil, fmt.Errorf("opening movies file: %w", err)
	}
	loaded, skipped, err := l.LoadMovies(ctx, mf)
	mf.Close()
	summary.MoviesLoaded = loaded
	summary.RowsSkipped += skipped
	if err != nil {
		return summary, err
	}

	rf, err := os.Open(ratingsPath)
	if err != nil {
		return summary, fmt.Errorf("opening ratings file: %w", err)
	}
	defer rf.Close()
	loaded, skipped, err = l.LoadRatings(ctx, rf)
	summary.RatingsLoaded = loaded
	summary.RowsSkipped += skipped
	if err != nil {
		return summary, err
	}

	l.logger.Info("load finished",
		slog.Int("movies", summary.MoviesLoaded),
		slog.Int("ratings", summary.RatingsLoaded),
		slog.Int("skipped", summary.RowsSkipped),
	)
	return summary, nil
}

// LoadMovies streams one movies file. It returns how many rows were stored
// and how many were skipped as malformed.
func (l *Loader) LoadMovies(ctx context.Context, r io.Reader) (loaded, skipped int, err error) {
	rows := source.NewMovieRows(r)
	for {
		if err := ctx.Err(); err != nil {
			return loaded, skipped, err
		}
		row, err := rows.Next()
		if err == io.EOF {
			return loaded, skipped, nil
		}
		if err != nil {
			if errors.Is(err, apperror.ErrValidation) {
				l.logger.Warn("skipping malformed movie row", slog.String("error", err.Error()))
				skipped++
				continue
			}
			return loaded, skipped, fmt.Errorf("reading movies: %w", err)
		}

		if err := l.movies.Upsert(ctx, row.ID, row.Title, row.Year); err != nil {
			return loaded, skipped, fmt.Errorf("storing movie %d: %w", row.ID, err)
		}
		if len(row.Genres) > 0 {
			if err := l.movies.AttachGenres(ctx, row.ID, row.Genres); err != nil {
				return loaded, skipped, fmt.Errorf("attaching genres to movie %d: %w", row.ID, err)
			}
		}
		loaded++
		if loaded%progressEvery == 0 {
			l.logger.Debug("movie ingest progress", slog.Int("loaded", loaded))
		}
	}
}

// LoadRatings streams one ratings file. A rating whose movie is not in the
// database is a skippable validation error, the same as a malformed row.
func (l *Loader) LoadRatings(ctx context.Context, r io.Reader) (loaded, skipped int, err error) {
	rows := source.NewRatingRows(r)
	for {
		if err := ctx.Err(); err != nil {
			return loaded, skipped, err
		}
		row, err := rows.Next()
		if err == io.EOF {
			return loaded, skipped, nil
		}
		if err != nil {
			if errors.Is(err, apperror.ErrValidation) {
				l.logger.Warn("skipping malformed rating row", slog.String("error", err.Error()))
				skipped++
				continue
			}
			return loaded, skipped, fmt.Errorf("reading ratings: %w", err)
		}

		rating := model.Rating{
			UserID:    row.UserID,
			MovieID:   row.MovieID,
			Rating:    row.Rating,
			Timestamp: row.Timestamp,
		}
		if err := l.ratings.Insert(ctx, rating); err != nil {
			if errors.Is(err, apperror.ErrValidation) {
				l.logger.Warn("skipping rating for unknown movie",
					slog.Int64("movieId", row.MovieID),
					slog.Int64("userId", row.UserID),
				)
				skipped++
				continue
			}
			return loaded, skipped, fmt.Errorf("storing rating (%d,%d): %w", row.UserID, row.MovieID, err)
		}
		loaded++
		if loaded%progressEvery == 0 {
			l.logger.Debug("rating ingest progress", slog.Int("loaded", loaded))
		}
	}
}
