// Package main is the movie-etl command line entry point.
//
// The binary exposes three subcommands that together form the pipeline:
//
//	movie-etl load    # ingest movies.csv and ratings.csv into SQLite
//	movie-etl enrich  # fill missing metadata from the OMDb API
//	movie-etl report  # run the analytical query battery
//
// main stays minimal: it loads configuration, wires the dependencies, and
// dispatches. All logic lives in the internal packages.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/xid"

	"github.com/sakif/movie-etl/internal/config"
	"github.com/sakif/movie-etl/internal/omdb"
	"github.com/sakif/movie-etl/internal/repository"
	"github.com/sakif/movie-etl/internal/repository/sqlite"
	"github.com/sakif/movie-etl/internal/service"
)

const usage = `Usage: movie-etl <command> [flags]

Commands:
  load     ingest the movies and ratings files into the database
  enrich   fill missing movie metadata from the OMDb API
  report   run the analytical queries and print the results

Run "movie-etl <command> -h" for command flags.`

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "movie-etl:", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		return errors.New("missing command")
	}

	// .env is a development convenience; absence is not an error
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging.Level)
	// one id per invocation ties all log lines of a run together
	logger = logger.With(slog.String("run", xid.New().String()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd := os.Args[1]; cmd {
	case "load":
		return runLoad(ctx, cfg, logger, os.Args[2:])
	case "enrich":
		return runEnrich(ctx, cfg, logger, os.Args[2:])
	case "report":
		return runReport(ctx, cfg, logger, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Println(usage)
		return nil
	default:
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// openDB creates the database directory if needed and opens the store.
func openDB(cfg *config.Config) (*sqlite.DB, error) {
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	return sqlite.New(cfg.Database.Path)
}

func runLoad(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	moviesPath := fs.String("movies", cfg.Source.MoviesPath, "path to the movies file")
	ratingsPath := fs.String("ratings", cfg.Source.RatingsPath, "path to the ratings file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	loader := service.NewLoader(db, db, logger)
	summary, err := loader.Run(ctx, *moviesPath, *ratingsPath)
	if summary != nil {
		fmt.Printf("loaded %d movies and %d ratings, skipped %d rows\n",
			summary.MoviesLoaded, summary.RatingsLoaded, summary.RowsSkipped)
	}
	return err
}

func runEnrich(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("enrich", flag.ExitOnError)
	limit := fs.Int("limit", 0, "cap the number of movies enriched this run (0 = configured batch size)")
	force := fs.Bool("force", false, "retry movies previously marked unresolved")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if cfg.OMDb.APIKey == "" {
		return errors.New("OMDB_API_KEY is required for enrich")
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	client := omdb.New(cfg.OMDb, logger)
	enricher := service.NewEnricher(db, client, cfg.Enrich, logger)
	summary, err := enricher.Run(ctx, repository.CandidateOptions{Limit: *limit, Force: *force})
	if summary != nil {
		fmt.Printf("enriched %d of %d movies (%d unresolved, %d exhausted, %d skipped)\n",
			summary.Enriched, summary.Processed, summary.Unresolved, summary.Exhausted, summary.Skipped)
	}
	if errors.Is(err, omdb.ErrQuotaExhausted) {
		// partial progress is preserved; tomorrow's run picks up the rest
		logger.Warn("run stopped early, request quota exhausted")
		return nil
	}
	return err
}

func runReport(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reporter := service.NewReporter(db, cfg.Report, logger)
	report, err := reporter.Run(ctx)
	if err != nil {
		return err
	}
	reporter.Render(os.Stdout, report)
	return nil
}
