// Package repository declares the storage interfaces consumed by the service
// layer. The sqlite subpackage implements them; services depend only on the
// interfaces so tests can substitute in-memory fakes.
package repository

import (
	"context"

	"github.com/sakif/movie-etl/internal/model"
)

// Enrichment carries the fields the Enricher may fill on a movie row.
// Nil fields are left alone; non-nil fields are applied only where the
// stored column is still NULL — applying enrichment never overwrites data.
type Enrichment struct {
	ImdbID         *string
	Director       *string
	Plot           *string
	BoxOffice      *string
	Released       *string
	RuntimeMinutes *int
}

// CandidateOptions shapes the Enricher's candidate selection.
type CandidateOptions struct {
	// Limit caps how many candidates one run processes. Zero means no cap.
	Limit int
	// Force re-includes movies previously marked unresolved.
	Force bool
}

// MovieRepository covers the movies, genres, movie_genres, and
// enrichment_state tables.
type MovieRepository interface {
	// Upsert inserts a movie or, if the ID exists, refreshes title and year
	// without touching enrichment columns. A nil year never overwrites a
	// stored one.
	Upsert(ctx context.Context, id int64, title string, year *int) error
	// AttachGenres upserts each genre by name and links it to the movie.
	// Re-attaching already-linked genres is a no-op.
	AttachGenres(ctx context.Context, movieID int64, genres []string) error
	GetByID(ctx context.Context, id int64) (*model.Movie, error)
	// Delete removes a movie; ratings and genre links cascade.
	Delete(ctx context.Context, id int64) error
	// GenresOf returns the movie's genre names in insertion order.
	GenresOf(ctx context.Context, movieID int64) ([]string, error)

	// EnrichmentCandidates lists movies with any enrichment column still
	// NULL, most-rated first, excluding unresolved ones unless forced.
	EnrichmentCandidates(ctx context.Context, opts CandidateOptions) ([]model.Movie, error)
	// ApplyEnrichment fills NULL columns from e. It returns
	// apperror.ErrConflict when a supplied imdb_id is already taken by
	// another movie.
	ApplyEnrichment(ctx context.Context, movieID int64, e Enrichment) error
	// SetEnrichmentState records how this run's attempt for a movie ended.
	SetEnrichmentState(ctx context.Context, movieID int64, status model.EnrichmentStatus, attempts int, lastError string) error
	// ClearEnrichmentState forgets a recorded outcome (after success).
	ClearEnrichmentState(ctx context.Context, movieID int64) error
	GetEnrichmentState(ctx context.Context, movieID int64) (*model.EnrichmentState, error)
}

// RatingRepository covers the ratings table.
type RatingRepository interface {
	// Insert stores one rating. A duplicate composite key is a successful
	// no-op; a rating referencing an unknown movie fails validation.
	Insert(ctx context.Context, r model.Rating) error
	// CountForMovie returns the number of ratings stored for a movie.
	CountForMovie(ctx context.Context, movieID int64) (int, error)
}

// MovieRanking is one row of the top-movie query.
type MovieRanking struct {
	MovieID     int64   `db:"id" json:"movieId"`
	Title       string  `db:"title" json:"title"`
	AvgRating   float64 `db:"avg_rating" json:"avgRating"`
	RatingCount int     `db:"rating_count" json:"ratingCount"`
}

// GenreRanking is one row of the top-genres query.
type GenreRanking struct {
	Genre       string  `db:"name" json:"genre"`
	AvgRating   float64 `db:"avg_rating" json:"avgRating"`
	RatingCount int     `db:"rating_count" json:"ratingCount"`
}

// DirectorCount is the most-prolific-director result.
type DirectorCount struct {
	Director   string `db:"director" json:"director"`
	MovieCount int    `db:"movie_count" json:"movieCount"`
}

// YearStats is one row of the per-year aggregate.
type YearStats struct {
	Year        int     `db:"year" json:"year"`
	AvgRating   float64 `db:"avg_rating" json:"avgRating"`
	RatingCount int     `db:"rating_count" json:"ratingCount"`
}

// AnalyticsRepository runs the read-only aggregate battery. Queries that
// find no group meeting their threshold return nil results, not errors.
type AnalyticsRepository interface {
	// TopMovie returns the highest-average movie among those with at least
	// minRatings ratings, ties broken by rating count descending. Nil when
	// no movie qualifies.
	TopMovie(ctx context.Context, minRatings int) (*MovieRanking, error)
	// TopGenres returns up to limit genres with at least minRatings
	// ratings, by average rating descending.
	TopGenres(ctx context.Context, minRatings, limit int) ([]GenreRanking, error)
	// TopDirector returns the director with the most movies, NULL
	// directors excluded. Nil when no movie has a director yet.
	TopDirector(ctx context.Context) (*DirectorCount, error)
	// RatingsByYear returns average rating and count grouped by release
	// year, chronologically, falling back to the year of the released date
	// when the year column is NULL. Years with no ratings do not appear.
	RatingsByYear(ctx context.Context) ([]YearStats, error)
}
