package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/sakif/movie-etl/internal/apperror"
	"github.com/sakif/movie-etl/internal/model"
	"github.com/sakif/movie-etl/internal/repository"
)

var _ repository.MovieRepository = (*DB)(nil)

// Upsert inserts a movie or refreshes title/year on conflict. The COALESCE
// keeps a stored year when the source row has none, and the enrichment
// columns are deliberately absent from the update list — the Loader never
// overwrites the Enricher's work.
func (db *DB) Upsert(ctx context.Context, id int64, title string, year *int) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO movies (id, title, year) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			year  = COALESCE(excluded.year, movies.year)`,
		id, title, year,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting movie %d: %w", id, err)
	}
	return nil
}

// AttachGenres upserts each genre by unique name and links it to the movie.
// The whole list is one transaction so a partially attached movie never
// becomes visible.
func (db *DB) AttachGenres(ctx context.Context, movieID int64, genres []string) error {
	if len(genres) == 0 {
		return nil
	}
	err := db.inTx(func(tx *sqlx.Tx) error {
		for _, name := range genres {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO genres (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name,
			); err != nil {
				return fmt.Errorf("upserting genre %q: %w", name, err)
			}
			var genreID int64
			if err := tx.GetContext(ctx, &genreID,
				`SELECT id FROM genres WHERE name = ?`, name,
			); err != nil {
				return fmt.Errorf("resolving genre %q: %w", name, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO movie_genres (movie_id, genre_id) VALUES (?, ?)`,
				movieID, genreID,
			); err != nil {
				return fmt.Errorf("linking genre %q to movie %d: %w", name, movieID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite: attaching genres to movie %d: %w", movieID, err)
	}
	return nil
}

func (db *DB) GetByID(ctx context.Context, id int64) (*model.Movie, error) {
	var movie model.Movie
	err := db.conn.GetContext(ctx, &movie, `
		SELECT id, title, year, imdb_id, director, plot, box_office,
		       released, runtime_minutes, created_at
		FROM movies WHERE id = ?`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("movie", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting movie %d: %w", id, err)
	}
	return &movie, nil
}

// Delete removes a movie. Ratings, genre links, and enrichment state go with
// it via ON DELETE CASCADE.
func (db *DB) Delete(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM movies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting movie %d: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("movie", strconv.FormatInt(id, 10))
	}
	return nil
}

// GenresOf returns the movie's genre names ordered by surrogate key, which
// matches first-insertion order.
func (db *DB) GenresOf(ctx context.Context, movieID int64) ([]string, error) {
	var names []string
	err := db.conn.SelectContext(ctx, &names, `
		SELECT g.name
		FROM genres g
		JOIN movie_genres mg ON mg.genre_id = g.id
		WHERE mg.movie_id = ?
		ORDER BY g.id`, movieID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing genres of movie %d: %w", movieID, err)
	}
	return names, nil
}

// EnrichmentCandidates selects movies with any enrichment column still NULL,
// most-rated first so popular movies get enriched before a quota runs out.
// Movies marked unresolved are excluded unless opts.Force.
func (db *DB) EnrichmentCandidates(ctx context.Context, opts repository.CandidateOptions) ([]model.Movie, error) {
	query := `
		SELECT m.id, m.title, m.year, m.imdb_id, m.director, m.plot,
		       m.box_office, m.released, m.runtime_minutes, m.created_at
		FROM movies m
		LEFT JOIN ratings r ON r.movie_id = m.id
		LEFT JOIN enrichment_state es ON es.movie_id = m.id
		WHERE (m.imdb_id IS NULL OR m.director IS NULL OR m.plot IS NULL
		       OR m.box_office IS NULL OR m.released IS NULL
		       OR m.runtime_minutes IS NULL)
		  AND (? OR es.status IS NULL OR es.status != ?)
		GROUP BY m.id
		ORDER BY COUNT(r.rating) DESC, m.id`
	args := []any{opts.Force, string(model.EnrichmentUnresolved)}
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	var movies []model.Movie
	if err := db.conn.SelectContext(ctx, &movies, query, args...); err != nil {
		return nil, fmt.Errorf("sqlite: selecting enrichment candidates: %w", err)
	}
	return movies, nil
}

// ApplyEnrichment fills NULL columns from e in one single-row UPDATE, so
// concurrent workers on different movies never interfere. Columns that are
// already non-NULL keep their value.
func (db *DB) ApplyEnrichment(ctx context.Context, movieID int64, e repository.Enrichment) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE movies SET
			imdb_id         = COALESCE(imdb_id, ?),
			director        = COALESCE(director, ?),
			plot            = COALESCE(plot, ?),
			box_office      = COALESCE(box_office, ?),
			released        = COALESCE(released, ?),
			runtime_minutes = COALESCE(runtime_minutes, ?)
		WHERE id = ?`,
		e.ImdbID, e.Director, e.Plot, e.BoxOffice, e.Released, e.RuntimeMinutes,
		movieID,
	)
	if err != nil {
		if isImdbIDCollision(err) {
			return apperror.Conflict("imdb_id", deref(e.ImdbID))
		}
		return fmt.Errorf("sqlite: enriching movie %d: %w", movieID, err)
	}
	return nil
}

// isImdbIDCollision detects the movies.imdb_id UNIQUE constraint firing.
// The driver exposes no typed constraint error, so this matches the message.
func isImdbIDCollision(err error) bool {
	return strings.Contains(err.Error(), "movies.imdb_id")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (db *DB) SetEnrichmentState(ctx context.Context, movieID int64, status model.EnrichmentStatus, attempts int, lastError string) error {
	var lastErr *string
	if lastError != "" {
		lastErr = &lastError
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO enrichment_state (movie_id, status, attempts, last_error, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(movie_id) DO UPDATE SET
			status     = excluded.status,
			attempts   = excluded.attempts,
			last_error = excluded.last_error,
			updated_at = CURRENT_TIMESTAMP`,
		movieID, string(status), attempts, lastErr,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording enrichment state for movie %d: %w", movieID, err)
	}
	return nil
}

func (db *DB) ClearEnrichmentState(ctx context.Context, movieID int64) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM enrichment_state WHERE movie_id = ?`, movieID,
	); err != nil {
		return fmt.Errorf("sqlite: clearing enrichment state for movie %d: %w", movieID, err)
	}
	return nil
}

func (db *DB) GetEnrichmentState(ctx context.Context, movieID int64) (*model.EnrichmentState, error) {
	var state model.EnrichmentState
	err := db.conn.GetContext(ctx, &state, `
		SELECT movie_id, status, attempts, last_error
		FROM enrichment_state WHERE movie_id = ?`, movieID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("enrichment state", strconv.FormatInt(movieID, 10))
		}
		return nil, fmt.Errorf("sqlite: getting enrichment state for movie %d: %w", movieID, err)
	}
	return &state, nil
}
