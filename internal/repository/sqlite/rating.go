package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sakif/movie-etl/internal/apperror"
	"github.com/sakif/movie-etl/internal/model"
	"github.com/sakif/movie-etl/internal/repository"
)

var _ repository.RatingRepository = (*DB)(nil)

// Insert stores one rating. A duplicate composite key is a silent no-op
// (idempotent re-loads), while foreign-key violations still error and come
// back as a validation failure the Loader can skip and count.
//
// SQLite treats NULLs in a composite primary key as distinct from each other,
// so INSERT OR IGNORE alone would duplicate timestamp-less ratings on every
// reload. The NULL case gets an explicit existence guard instead.
func (db *DB) Insert(ctx context.Context, r model.Rating) error {
	var err error
	if r.Timestamp == nil {
		_, err = db.conn.ExecContext(ctx, `
			INSERT INTO ratings (user_id, movie_id, rating, timestamp)
			SELECT ?, ?, ?, NULL
			WHERE NOT EXISTS (
				SELECT 1 FROM ratings
				WHERE user_id = ? AND movie_id = ? AND timestamp IS NULL
			)`,
			r.UserID, r.MovieID, r.Rating, r.UserID, r.MovieID,
		)
	} else {
		_, err = db.conn.ExecContext(ctx, `
			INSERT OR IGNORE INTO ratings (user_id, movie_id, rating, timestamp)
			VALUES (?, ?, ?, ?)`,
			r.UserID, r.MovieID, r.Rating, r.Timestamp,
		)
	}
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint") {
			return apperror.ValidationFailed("movieId",
				fmt.Sprintf("rating references unknown movie %d", r.MovieID))
		}
		return fmt.Errorf("sqlite: inserting rating (%d,%d): %w", r.UserID, r.MovieID, err)
	}
	return nil
}

// CountForMovie returns how many ratings a movie has.
func (db *DB) CountForMovie(ctx context.Context, movieID int64) (int, error) {
	var count int
	err := db.conn.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM ratings WHERE movie_id = ?`, movieID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting ratings for movie %s: %w",
			strconv.FormatInt(movieID, 10), err)
	}
	return count, nil
}
