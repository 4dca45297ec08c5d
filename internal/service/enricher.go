package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/movie-etl/internal/apperror"
	"github.com/sakif/movie-etl/internal/config"
	"github.com/sakif/movie-etl/internal/model"
	"github.com/sakif/movie-etl/internal/omdb"
	"github.com/sakif/movie-etl/internal/repository"
)

// MetadataClient is the lookup surface of the omdb package the Enricher
// depends on. Tests substitute a scripted fake.
type MetadataClient interface {
	LookupByID(ctx context.Context, imdbID string) (omdb.Result, error)
	LookupByTitle(ctx context.Context, title string, year *int) (omdb.Result, error)
}

// EnrichSummary is the outcome of one enrich run. Every processed candidate
// lands in exactly one outcome bucket, so Processed always equals
// Enriched + Unresolved + Exhausted + Skipped.
type EnrichSummary struct {
	Processed  int // candidates picked up this run
	Enriched   int // metadata stored
	Unresolved int // definitive no-match, remembered across runs
	Exhausted  int // transient failures survived every retry
	Skipped    int // left untouched: quota ran out, run canceled, or a write failed
}

// Enricher fills the NULL metadata columns of stored movies from the external
// service, most-rated movies first. Workers run concurrently under one shared
// rate limiter; a spent request quota stops the whole run.
type Enricher struct {
	movies repository.MovieRepository
	client MetadataClient
	cfg    config.EnrichConfig
	logger *slog.Logger
}

// NewEnricher creates an Enricher.
func NewEnricher(movies repository.MovieRepository, client MetadataClient, cfg config.EnrichConfig, logger *slog.Logger) *Enricher {
	return &Enricher{
		movies: movies,
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Run selects the candidate batch and works through it. The summary is
// returned even when the run ends early on omdb.ErrQuotaExhausted, so the
// caller can report partial progress.
func (e *Enricher) Run(ctx context.Context, opts repository.CandidateOptions) (*EnrichSummary, error) {
	if opts.Limit == 0 {
		opts.Limit = e.cfg.BatchLimit
	}
	candidates, err := e.movies.EnrichmentCandidates(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("selecting enrichment candidates: %w", err)
	}
	summary := &EnrichSummary{Processed: len(candidates)}
	if len(candidates) == 0 {
		e.logger.Info("nothing to enrich")
		return summary, nil
	}
	e.logger.Info("enriching movies",
		slog.Int("candidates", len(candidates)),
		slog.Int("concurrency", e.cfg.Concurrency),
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, m := range candidates {
		g.Go(func() error {
			outcome, err := e.enrichOne(gctx, m)
			mu.Lock()
			switch {
			case err == nil && outcome == model.EnrichmentUnresolved:
				summary.Unresolved++
			case err == nil && outcome == model.EnrichmentExhausted:
				summary.Exhausted++
			case err == nil:
				summary.Enriched++
			default:
				// quota exhaustion, cancellation, or a storage failure:
				// the movie is unchanged and stays a candidate
				summary.Skipped++
			}
			mu.Unlock()
			return err
		})
	}
	err = g.Wait()

	e.logger.Info("enrich finished",
		slog.Int("enriched", summary.Enriched),
		slog.Int("unresolved", summary.Unresolved),
		slog.Int("exhausted", summary.Exhausted),
		slog.Int("skipped", summary.Skipped),
	)
	return summary, err
}

// enrichOne resolves and stores metadata for a single movie. The returned
// status is "" for a successful enrichment.
func (e *Enricher) enrichOne(ctx context.Context, m model.Movie) (model.EnrichmentStatus, error) {
	res, attempts, err := e.lookup(ctx, m)
	if err != nil {
		if errors.Is(err, apperror.ErrUnavailable) {
			// every retry spent; remember so the next run tries again later
			if serr := e.movies.SetEnrichmentState(ctx, m.ID, model.EnrichmentExhausted, attempts, err.Error()); serr != nil {
				return "", fmt.Errorf("recording exhausted state for movie %d: %w", m.ID, serr)
			}
			e.logger.Warn("giving up on movie after retries",
				slog.Int64("movieId", m.ID),
				slog.Int("attempts", attempts),
				slog.String("error", err.Error()),
			)
			return model.EnrichmentExhausted, nil
		}
		return "", err
	}

	if res.Status == omdb.StatusNoMatch {
		if serr := e.movies.SetEnrichmentState(ctx, m.ID, model.EnrichmentUnresolved, attempts, "no match"); serr != nil {
			return "", fmt.Errorf("recording unresolved state for movie %d: %w", m.ID, serr)
		}
		e.logger.Info("no match for movie",
			slog.Int64("movieId", m.ID),
			slog.String("title", m.Title),
		)
		return model.EnrichmentUnresolved, nil
	}

	meta := res.Metadata
	if m.Year != nil && meta.Year != nil && *m.Year != *meta.Year {
		// the locally stored year stays authoritative
		e.logger.Warn("release year disagrees with metadata service",
			slog.Int64("movieId", m.ID),
			slog.Int("local", *m.Year),
			slog.Int("remote", *meta.Year),
		)
	}

	enrichment := repository.Enrichment{
		ImdbID:         strOrNil(meta.ImdbID),
		Director:       meta.Director,
		Plot:           meta.Plot,
		BoxOffice:      meta.BoxOffice,
		Released:       meta.Released,
		RuntimeMinutes: meta.RuntimeMinutes,
	}
	if err := e.movies.ApplyEnrichment(ctx, m.ID, enrichment); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			// another movie already owns this imdb_id; keep the rest
			e.logger.Warn("imdb id already claimed, storing metadata without it",
				slog.Int64("movieId", m.ID),
				slog.String("imdbId", meta.ImdbID),
			)
			enrichment.ImdbID = nil
			err = e.movies.ApplyEnrichment(ctx, m.ID, enrichment)
		}
		if err != nil {
			return "", fmt.Errorf("storing enrichment for movie %d: %w", m.ID, err)
		}
	}
	if err := e.movies.ClearEnrichmentState(ctx, m.ID); err != nil {
		return "", fmt.Errorf("clearing enrichment state for movie %d: %w", m.ID, err)
	}

	e.logger.Debug("movie enriched",
		slog.Int64("movieId", m.ID),
		slog.String("imdbId", meta.ImdbID),
	)
	return "", nil
}

// lookup resolves one movie against the service, retrying transient failures
// with exponential backoff up to cfg.RetryAttempts tries. A rate-limit
// response waits out the cooldown without consuming an attempt. Quota
// exhaustion and context cancellation abort immediately.
func (e *Enricher) lookup(ctx context.Context, m model.Movie) (omdb.Result, int, error) {
	bo := newLookupBackoff()

	attempts := 0
	for {
		var res omdb.Result
		var err error
		if m.ImdbID != nil {
			res, err = e.client.LookupByID(ctx, *m.ImdbID)
		} else {
			res, err = e.client.LookupByTitle(ctx, m.Title, m.Year)
		}
		if err == nil {
			return res, attempts, nil
		}

		switch {
		case errors.Is(err, omdb.ErrQuotaExhausted):
			return omdb.Result{}, attempts, err
		case errors.Is(err, omdb.ErrRateLimited):
			e.logger.Debug("rate limited, cooling down",
				slog.Int64("movieId", m.ID),
				slog.Duration("cooldown", e.cfg.Cooldown),
			)
			if serr := sleepCtx(ctx, e.cfg.Cooldown); serr != nil {
				return omdb.Result{}, attempts, serr
			}
		case errors.Is(err, apperror.ErrUnavailable):
			attempts++
			if attempts >= e.cfg.RetryAttempts {
				return omdb.Result{}, attempts, err
			}
			if serr := sleepCtx(ctx, bo.NextBackOff()); serr != nil {
				return omdb.Result{}, attempts, serr
			}
		default:
			return omdb.Result{}, attempts, err
		}
	}
}

// newLookupBackoff returns the retry schedule for one movie's lookups.
// The attempt counter bounds the loop, so the elapsed-time cap is disabled:
// with the default cap, NextBackOff would start returning Stop partway
// through a long run and the remaining retries would fire with no delay.
func newLookupBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0
	return bo
}

// sleepCtx sleeps for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func strOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
