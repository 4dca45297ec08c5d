// Package model defines the data structures shared by every layer of the
// pipeline. Nullable database columns are represented as pointer fields —
// a nil pointer scans from and writes back as SQL NULL, which keeps the
// "only fill what is missing" enrichment rules easy to express.
package model

import "time"

// Movie is one row of the movies table. The ID is the stable MovieLens
// identifier from the source file and acts as the primary key; ImdbID is the
// cross-reference into OMDb and is unique when present.
//
// Title and Year come from the Loader. The remaining pointer fields start out
// NULL and are filled in by the Enricher.
type Movie struct {
	ID             int64     `db:"id" json:"id"`
	Title          string    `db:"title" json:"title"`
	Year           *int      `db:"year" json:"year,omitempty"`
	ImdbID         *string   `db:"imdb_id" json:"imdbId,omitempty"`
	Director       *string   `db:"director" json:"director,omitempty"`
	Plot           *string   `db:"plot" json:"plot,omitempty"`
	BoxOffice      *string   `db:"box_office" json:"boxOffice,omitempty"`
	Released       *string   `db:"released" json:"released,omitempty"` // ISO date, e.g. "1995-12-15"
	RuntimeMinutes *int      `db:"runtime_minutes" json:"runtimeMinutes,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// NeedsEnrichment reports whether any OMDb-sourced column is still NULL.
// The Enricher's candidate query applies the same condition in SQL; this
// method exists for callers that already hold the row.
func (m *Movie) NeedsEnrichment() bool {
	return m.ImdbID == nil || m.Director == nil || m.Plot == nil ||
		m.BoxOffice == nil || m.Released == nil || m.RuntimeMinutes == nil
}

// Genre is a normalized genre label with a surrogate key. Names are unique
// and never updated after first insert.
type Genre struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}
