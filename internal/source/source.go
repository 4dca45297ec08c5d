// Package source parses the two tabular input files into typed rows.
//
// The files follow the MovieLens layout: movies.csv holds
// movieId,title,genres with the release year embedded in the title
// ("Heat (1995)") and the genre list pipe-delimited; ratings.csv holds
// userId,movieId,rating,timestamp.
//
// Parsing is streaming: callers pull one row at a time with Next and decide
// what to do with malformed rows. A malformed row comes back as a *RowError
// wrapping apperror.ErrValidation so the Loader can skip and count it; any
// other error is a reader-level failure and aborts the batch.
package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/sakif/movie-etl/internal/apperror"
)

// noGenres is the placeholder MovieLens writes for movies without genres.
const noGenres = "(no genres listed)"

// GenreDelimiter separates entries in the raw genre list.
const GenreDelimiter = "|"

// MovieRow is one parsed line of movies.csv.
type MovieRow struct {
	ID     int64
	Title  string
	Year   *int
	Genres []string
}

// RatingRow is one parsed line of ratings.csv.
type RatingRow struct {
	UserID    int64
	MovieID   int64
	Rating    float64
	Timestamp *int64
}

// RowError marks a single malformed input row. It wraps
// apperror.ErrValidation, so errors.Is(err, apperror.ErrValidation)
// identifies skippable rows.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// titleYear matches a trailing "(1995)" year suffix on a movie title.
var titleYear = regexp.MustCompile(`^(.*)\s+\((\d{4})\)\s*$`)

// ParseTitle splits a raw MovieLens title into the bare title and, when the
// trailing "(YYYY)" suffix is present, the release year.
func ParseTitle(raw string) (string, *int) {
	raw = strings.TrimSpace(raw)
	m := titleYear.FindStringSubmatch(raw)
	if m == nil {
		return raw, nil
	}
	year, err := strconv.Atoi(m[2])
	if err != nil {
		return raw, nil
	}
	return strings.TrimSpace(m[1]), &year
}

// SplitGenres normalizes a raw pipe-delimited genre list into a trimmed,
// case-sensitively deduplicated slice, preserving first-seen order. The
// "(no genres listed)" placeholder and empty entries are dropped.
func SplitGenres(raw string) []string {
	parts := strings.Split(raw, GenreDelimiter)
	genres := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		g := strings.TrimSpace(p)
		if g == "" || g == noGenres {
			continue
		}
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		genres = append(genres, g)
	}
	return genres
}

// newReader configures a csv.Reader the same way for both files.
func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1 // field count is validated per row
	return cr
}

// isHeader reports whether a record looks like the column-name header row.
func isHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	_, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	return err != nil
}

// MovieRows streams movies.csv.
type MovieRows struct {
	cr    *csv.Reader
	line  int
	first bool
}

// NewMovieRows wraps a movies.csv stream. The header row, if present, is
// skipped on the first Next call.
func NewMovieRows(r io.Reader) *MovieRows {
	return &MovieRows{cr: newReader(r), first: true}
}

// Next returns the next parsed movie row. It returns io.EOF at end of input
// and *RowError for rows that cannot be parsed.
func (m *MovieRows) Next() (MovieRow, error) {
	for {
		record, err := m.cr.Read()
		if err == io.EOF {
			return MovieRow{}, io.EOF
		}
		m.line++
		if err != nil {
			return MovieRow{}, &RowError{Line: m.line, Err: apperror.ValidationFailed("row", err.Error())}
		}
		if m.first {
			m.first = false
			if isHeader(record) {
				continue
			}
		}
		if len(record) < 2 {
			return MovieRow{}, &RowError{Line: m.line, Err: apperror.ValidationFailed("row", "movie row needs at least movieId and title")}
		}
		id, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
		if err != nil {
			return MovieRow{}, &RowError{Line: m.line, Err: apperror.ValidationFailed("movieId", "movieId must be an integer")}
		}
		title, year := ParseTitle(record[1])
		if title == "" {
			return MovieRow{}, &RowError{Line: m.line, Err: apperror.ValidationFailed("title", "title must not be empty")}
		}
		var genres []string
		if len(record) > 2 {
			genres = SplitGenres(record[2])
		}
		return MovieRow{ID: id, Title: title, Year: year, Genres: genres}, nil
	}
}

// RatingRows streams ratings.csv.
type RatingRows struct {
	cr    *csv.Reader
	line  int
	first bool
}

// NewRatingRows wraps a ratings.csv stream.
func NewRatingRows(r io.Reader) *RatingRows {
	return &RatingRows{cr: newReader(r), first: true}
}

// Next returns the next parsed rating row, io.EOF at end of input, or a
// *RowError for malformed rows.
func (rr *RatingRows) Next() (RatingRow, error) {
	for {
		record, err := rr.cr.Read()
		if err == io.EOF {
			return RatingRow{}, io.EOF
		}
		rr.line++
		if err != nil {
			return RatingRow{}, &RowError{Line: rr.line, Err: apperror.ValidationFailed("row", err.Error())}
		}
		if rr.first {
			rr.first = false
			if isHeader(record) {
				continue
			}
		}
		if len(record) < 3 {
			return RatingRow{}, &RowError{Line: rr.line, Err: apperror.ValidationFailed("row", "rating row needs userId, movieId and rating")}
		}
		userID, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
		if err != nil {
			return RatingRow{}, &RowError{Line: rr.line, Err: apperror.ValidationFailed("userId", "userId must be an integer")}
		}
		movieID, err := strconv.ParseInt(strings.TrimSpace(record[1]), 10, 64)
		if err != nil {
			return RatingRow{}, &RowError{Line: rr.line, Err: apperror.ValidationFailed("movieId", "movieId must be an integer")}
		}
		rating, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil {
			return RatingRow{}, &RowError{Line: rr.line, Err: apperror.ValidationFailed("rating", "rating must be numeric")}
		}
		row := RatingRow{UserID: userID, MovieID: movieID, Rating: rating}
		if len(record) > 3 && strings.TrimSpace(record[3]) != "" {
			ts, err := strconv.ParseInt(strings.TrimSpace(record[3]), 10, 64)
			if err != nil {
				return RatingRow{}, &RowError{Line: rr.line, Err: apperror.ValidationFailed("timestamp", "timestamp must be an integer")}
			}
			row.Timestamp = &ts
		}
		return row, nil
	}
}
