package model

// Rating is one user's rating of one movie at a point in time. The composite
// key (UserID, MovieID, Timestamp) lets a user re-rate the same movie later
// without colliding with the earlier row.
type Rating struct {
	UserID    int64   `db:"user_id" json:"userId"`
	MovieID   int64   `db:"movie_id" json:"movieId"`
	Rating    float64 `db:"rating" json:"rating"`
	Timestamp *int64  `db:"timestamp" json:"timestamp,omitempty"` // epoch seconds
}

// EnrichmentStatus records how an enrichment attempt for a movie ended.
// The distinction matters across runs: an unresolved movie (OMDb said
// "not found") is skipped on later runs unless forced, while an exhausted
// one (transient failures only) is retried automatically.
type EnrichmentStatus string

const (
	// EnrichmentUnresolved means OMDb returned a definitive no-match.
	EnrichmentUnresolved EnrichmentStatus = "unresolved"
	// EnrichmentExhausted means every retry failed transiently.
	EnrichmentExhausted EnrichmentStatus = "exhausted"
)

// EnrichmentState is one row of the enrichment_state table.
type EnrichmentState struct {
	MovieID   int64            `db:"movie_id" json:"movieId"`
	Status    EnrichmentStatus `db:"status" json:"status"`
	Attempts  int              `db:"attempts" json:"attempts"`
	LastError *string          `db:"last_error" json:"lastError,omitempty"`
}
