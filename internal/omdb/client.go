// Package omdb is a rate-limited client for the OMDb metadata API.
//
// Lookups return a typed Result instead of signalling control flow through
// errors: a definitive "movie not found" answer is StatusNoMatch with a nil
// error, while transport problems and rate limiting come back as errors the
// caller can classify with errors.Is. That split is what lets the Enricher
// persist a no-match permanently but retry a timeout on the next run.
package omdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/movie-etl/internal/apperror"
	"github.com/sakif/movie-etl/internal/config"
)

var (
	// ErrRateLimited means the service answered with HTTP 429. The caller
	// should cool down and retry; this is not a failure.
	ErrRateLimited = errors.New("omdb: rate limited")
	// ErrQuotaExhausted means the service reported the daily request quota
	// spent or the key invalid. The client latches and refuses further
	// requests for the rest of the process, like the original importer did.
	ErrQuotaExhausted = errors.New("omdb: request quota exhausted")
)

// Status says how a lookup ended when no error occurred.
type Status int

const (
	// StatusMatch means the service returned a record for the movie.
	StatusMatch Status = iota
	// StatusNoMatch means the service definitively knows no such movie.
	StatusNoMatch
)

// Result is the outcome of a successful round trip.
type Result struct {
	Status   Status
	Metadata *Metadata // set only when Status is StatusMatch
}

// Metadata is the cleaned subset of an OMDb record the pipeline stores.
// Pointer fields are nil when the service omitted them or sent "N/A".
type Metadata struct {
	ImdbID         string
	Title          string
	Year           *int
	Director       *string
	Plot           *string
	BoxOffice      *string
	Released       *string // ISO date
	RuntimeMinutes *int
}

// payload mirrors the OMDb JSON wire format. Everything is a string on the
// wire, including numbers; Response is "True"/"False" text.
type payload struct {
	Title    string `json:"Title"`
	Year     string `json:"Year"`
	Released string `json:"Released"`
	Runtime  string `json:"Runtime"`
	Director string `json:"Director"`
	Plot     string `json:"Plot"`
	// BoxOffice is free text like "$28,341,469"; stored verbatim.
	BoxOffice string `json:"BoxOffice"`
	ImdbID    string `json:"imdbID"`
	Type      string `json:"Type"`
	Response  string `json:"Response"`
	Error     string `json:"Error"`
}

type searchPayload struct {
	Search []struct {
		Title  string `json:"Title"`
		Year   string `json:"Year"`
		ImdbID string `json:"imdbID"`
		Type   string `json:"Type"`
	} `json:"Search"`
	Response string `json:"Response"`
	Error    string `json:"Error"`
}

// Client issues paced requests against one OMDb API key.
// It is safe for concurrent use by the Enricher's workers.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	latched atomic.Bool // set once the quota is spent; all later calls fail fast
}

// New builds a client from config. The limiter allows cfg.RateBurst requests
// per cfg.RateEvery window across all workers.
func New(cfg config.OMDbConfig, logger *slog.Logger) *Client {
	every := cfg.RateEvery
	if every <= 0 {
		every = time.Second
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:    20,
				MaxConnsPerHost: 10,
				IdleConnTimeout: 20 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Every(every/time.Duration(burst)), burst),
		logger:  logger,
	}
}

// LookupByID fetches the full record for a known IMDb cross-reference ID.
func (c *Client) LookupByID(ctx context.Context, imdbID string) (Result, error) {
	var out payload
	if err := c.get(ctx, url.Values{"i": {imdbID}}, &out); err != nil {
		return Result{}, err
	}
	return c.toResult(out)
}

// LookupByTitle fetches the record matching a title, disambiguated by year
// when one is known. When the direct title lookup misses, it falls back to a
// search and fetches the first result's full record by ID — the same
// two-step the original importer used.
func (c *Client) LookupByTitle(ctx context.Context, title string, year *int) (Result, error) {
	params := url.Values{"t": {title}, "type": {"movie"}}
	if year != nil {
		params.Set("y", strconv.Itoa(*year))
	}
	var out payload
	if err := c.get(ctx, params, &out); err != nil {
		return Result{}, err
	}
	res, err := c.toResult(out)
	if err != nil || res.Status == StatusMatch {
		return res, err
	}

	// Direct lookup missed; try the search endpoint.
	params = url.Values{"s": {title}, "type": {"movie"}}
	if year != nil {
		params.Set("y", strconv.Itoa(*year))
	}
	var search searchPayload
	if err := c.get(ctx, params, &search); err != nil {
		return Result{}, err
	}
	if search.Response != "True" || len(search.Search) == 0 {
		if err := classifyAPIError(search.Error); err != nil {
			return Result{}, c.latch(err)
		}
		return Result{Status: StatusNoMatch}, nil
	}
	return c.LookupByID(ctx, search.Search[0].ImdbID)
}

// get performs one paced, decoded round trip.
func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	if c.latched.Load() {
		return ErrQuotaExhausted
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("omdb: waiting for rate limiter: %w", err)
	}

	params.Set("apikey", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("omdb: building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return apperror.Unavailable("omdb", err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized:
		return c.latch(ErrQuotaExhausted)
	case resp.StatusCode >= 500:
		return apperror.Unavailable("omdb", "HTTP "+strconv.Itoa(resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("omdb: unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Unavailable("omdb", "decoding response: "+err.Error())
	}
	return nil
}

// toResult converts a detail payload into a Result, classifying the
// service's in-band error strings.
func (c *Client) toResult(p payload) (Result, error) {
	if p.Response == "True" {
		return Result{Status: StatusMatch, Metadata: cleanPayload(p)}, nil
	}
	if err := classifyAPIError(p.Error); err != nil {
		return Result{}, c.latch(err)
	}
	return Result{Status: StatusNoMatch}, nil
}

// latch remembers a spent quota so later calls fail without a round trip.
func (c *Client) latch(err error) error {
	if errors.Is(err, ErrQuotaExhausted) && c.latched.CompareAndSwap(false, true) {
		c.logger.Warn("omdb quota exhausted, stopping further lookups this run")
	}
	return err
}

// classifyAPIError maps OMDb's in-band Error strings onto sentinels.
// "Movie not found!" and friends return nil — that is a no-match, not an
// error.
func classifyAPIError(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "request limit") || strings.Contains(lower, "limit reached"):
		return ErrQuotaExhausted
	case strings.Contains(lower, "invalid api key"):
		return ErrQuotaExhausted
	default:
		return nil
	}
}
