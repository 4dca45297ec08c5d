package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/sakif/movie-etl/internal/config"
	"github.com/sakif/movie-etl/internal/repository"
)

// Report holds the results of the full query battery. Nil or empty sections
// are valid answers — a sparsely rated database simply has no movie clearing
// the support threshold yet.
type Report struct {
	TopMovie      *repository.MovieRanking
	TopGenres     []repository.GenreRanking
	TopDirector   *repository.DirectorCount
	RatingsByYear []repository.YearStats
}

// Reporter runs the analytical queries with the configured thresholds.
type Reporter struct {
	analytics repository.AnalyticsRepository
	cfg       config.ReportConfig
	logger    *slog.Logger
}

// NewReporter creates a Reporter.
func NewReporter(analytics repository.AnalyticsRepository, cfg config.ReportConfig, logger *slog.Logger) *Reporter {
	return &Reporter{
		analytics: analytics,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run executes all four queries and collects the results.
func (r *Reporter) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	var err error

	if report.TopMovie, err = r.analytics.TopMovie(ctx, r.cfg.MinMovieRatings); err != nil {
		return nil, fmt.Errorf("top movie query: %w", err)
	}
	if report.TopGenres, err = r.analytics.TopGenres(ctx, r.cfg.MinGenreRatings, r.cfg.TopGenres); err != nil {
		return nil, fmt.Errorf("top genres query: %w", err)
	}
	if report.TopDirector, err = r.analytics.TopDirector(ctx); err != nil {
		return nil, fmt.Errorf("top director query: %w", err)
	}
	if report.RatingsByYear, err = r.analytics.RatingsByYear(ctx); err != nil {
		return nil, fmt.Errorf("ratings by year query: %w", err)
	}

	r.logger.Debug("report assembled",
		slog.Int("genres", len(report.TopGenres)),
		slog.Int("years", len(report.RatingsByYear)),
	)
	return report, nil
}

// Render writes the report in a human-readable layout. The thresholds are
// echoed so an empty section explains itself.
func (r *Reporter) Render(w io.Writer, report *Report) {
	fmt.Fprintf(w, "Top rated movie (min %d ratings)\n", r.cfg.MinMovieRatings)
	if report.TopMovie == nil {
		fmt.Fprintln(w, "  (no movie has enough ratings)")
	} else {
		fmt.Fprintf(w, "  %s — avg %.3f over %d ratings\n",
			report.TopMovie.Title, report.TopMovie.AvgRating, report.TopMovie.RatingCount)
	}

	fmt.Fprintf(w, "\nTop %d genres by average rating (min %d ratings)\n",
		r.cfg.TopGenres, r.cfg.MinGenreRatings)
	if len(report.TopGenres) == 0 {
		fmt.Fprintln(w, "  (no genre has enough ratings)")
	}
	for i, g := range report.TopGenres {
		fmt.Fprintf(w, "  %d. %-16s avg %.3f over %d ratings\n",
			i+1, g.Genre, g.AvgRating, g.RatingCount)
	}

	fmt.Fprintln(w, "\nMost prolific director")
	if report.TopDirector == nil {
		fmt.Fprintln(w, "  (no director metadata yet — run enrich first)")
	} else {
		fmt.Fprintf(w, "  %s — %d movies\n",
			report.TopDirector.Director, report.TopDirector.MovieCount)
	}

	fmt.Fprintln(w, "\nRatings by release year")
	if len(report.RatingsByYear) == 0 {
		fmt.Fprintln(w, "  (no ratings stored)")
	}
	for _, y := range report.RatingsByYear {
		fmt.Fprintf(w, "  %d  avg %.3f over %d ratings\n", y.Year, y.AvgRating, y.RatingCount)
	}
}
