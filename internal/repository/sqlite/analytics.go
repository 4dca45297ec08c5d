package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/movie-etl/internal/repository"
)

var _ repository.AnalyticsRepository = (*DB)(nil)

// TopMovie returns the highest-average movie among those with at least
// minRatings ratings. Ties on average break by rating count descending, so
// the better-supported average wins. Nil result, nil error when no movie
// clears the threshold — an empty answer is a valid one.
func (db *DB) TopMovie(ctx context.Context, minRatings int) (*repository.MovieRanking, error) {
	var top repository.MovieRanking
	err := db.conn.GetContext(ctx, &top, `
		SELECT m.id, m.title,
		       AVG(r.rating)   AS avg_rating,
		       COUNT(r.rating) AS rating_count
		FROM movies m
		JOIN ratings r ON r.movie_id = m.id
		GROUP BY m.id, m.title
		HAVING COUNT(r.rating) >= ?
		ORDER BY avg_rating DESC, rating_count DESC
		LIMIT 1`, minRatings)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: querying top movie: %w", err)
	}
	return &top, nil
}

// TopGenres returns up to limit genres with at least minRatings ratings,
// ordered by average rating descending.
func (db *DB) TopGenres(ctx context.Context, minRatings, limit int) ([]repository.GenreRanking, error) {
	var genres []repository.GenreRanking
	err := db.conn.SelectContext(ctx, &genres, `
		SELECT g.name,
		       AVG(r.rating)   AS avg_rating,
		       COUNT(r.rating) AS rating_count
		FROM genres g
		JOIN movie_genres mg ON mg.genre_id = g.id
		JOIN ratings r ON r.movie_id = mg.movie_id
		GROUP BY g.id, g.name
		HAVING COUNT(r.rating) >= ?
		ORDER BY avg_rating DESC, rating_count DESC
		LIMIT ?`, minRatings, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying top genres: %w", err)
	}
	return genres, nil
}

// TopDirector returns the director credited with the most movies. Rows with
// a NULL director are excluded; nil result when nothing is enriched yet.
func (db *DB) TopDirector(ctx context.Context) (*repository.DirectorCount, error) {
	var top repository.DirectorCount
	err := db.conn.GetContext(ctx, &top, `
		SELECT director, COUNT(*) AS movie_count
		FROM movies
		WHERE director IS NOT NULL
		GROUP BY director
		ORDER BY movie_count DESC, director
		LIMIT 1`)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: querying top director: %w", err)
	}
	return &top, nil
}

// RatingsByYear aggregates average rating and count per release year,
// chronologically. When the year column is NULL the year of the enriched
// release date fills in. Movies with zero ratings contribute no row, and a
// movie with neither year nor release date is dropped from the grouping.
func (db *DB) RatingsByYear(ctx context.Context) ([]repository.YearStats, error) {
	var stats []repository.YearStats
	err := db.conn.SelectContext(ctx, &stats, `
		SELECT COALESCE(m.year, CAST(strftime('%Y', m.released) AS INTEGER)) AS year,
		       AVG(r.rating)   AS avg_rating,
		       COUNT(r.rating) AS rating_count
		FROM movies m
		JOIN ratings r ON r.movie_id = m.id
		GROUP BY year
		HAVING year IS NOT NULL
		ORDER BY year`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying ratings by year: %w", err)
	}
	return stats, nil
}
