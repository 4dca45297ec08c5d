// Package config loads the pipeline configuration from layered sources:
// built-in defaults first, then an optional YAML file, then environment
// variables. Precedence is ENV > file > defaults, so a bare
// `OMDB_API_KEY=... movie-etl enrich` works with no config file at all.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where a config file is searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/movie-etl/config.yaml",
}

// ConfigPathEnvVar overrides the config file path entirely.
const ConfigPathEnvVar = "CONFIG_PATH"

// Config is the root configuration for all three subcommands.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Source   SourceConfig   `koanf:"source"`
	OMDb     OMDbConfig     `koanf:"omdb"`
	Enrich   EnrichConfig   `koanf:"enrich"`
	Report   ReportConfig   `koanf:"report"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// DatabaseConfig locates the SQLite database file.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// SourceConfig locates the two tabular input files.
type SourceConfig struct {
	MoviesPath  string `koanf:"movies_path"`
	RatingsPath string `koanf:"ratings_path"`
}

// OMDbConfig configures the external metadata service client.
// APIKey is the only setting without a usable default.
type OMDbConfig struct {
	APIKey  string        `koanf:"api_key"`
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
	// RateEvery and RateBurst feed the client-side limiter:
	// at most RateBurst requests per RateEvery window.
	RateEvery time.Duration `koanf:"rate_every"`
	RateBurst int           `koanf:"rate_burst"`
}

// EnrichConfig tunes the enrichment batch.
type EnrichConfig struct {
	RetryAttempts int           `koanf:"retry_attempts"`
	Concurrency   int           `koanf:"concurrency"`
	Cooldown      time.Duration `koanf:"cooldown"` // wait after a rate-limit response
	BatchLimit    int           `koanf:"batch_limit"`
}

// ReportConfig holds the minimum-support thresholds of the query battery.
type ReportConfig struct {
	MinMovieRatings int `koanf:"min_movie_ratings"`
	MinGenreRatings int `koanf:"min_genre_ratings"`
	TopGenres       int `koanf:"top_genres"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level string `koanf:"level"` // debug | info | warn | error
}

// Default returns the built-in defaults. Every field has a sensible value so
// the pipeline runs with zero explicit configuration besides the API key.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "data/movies.db",
		},
		Source: SourceConfig{
			MoviesPath:  "movies.csv",
			RatingsPath: "ratings.csv",
		},
		OMDb: OMDbConfig{
			APIKey:  "",
			BaseURL: "https://www.omdbapi.com/",
			Timeout: 10 * time.Second,
			// the free OMDb tier tolerates roughly 10 req/s in short bursts
			RateEvery: time.Second,
			RateBurst: 5,
		},
		Enrich: EnrichConfig{
			RetryAttempts: 3,
			Concurrency:   4,
			Cooldown:      10 * time.Second,
			BatchLimit:    500,
		},
		Report: ReportConfig{
			MinMovieRatings: 50,
			MinGenreRatings: 10,
			TopGenres:       5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load assembles the configuration from defaults, file, and environment.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	// DATABASE_PATH -> database.path, OMDB_API_KEY -> omdb.api_key, etc.
	if err := k.Load(env.Provider("", ".", envToPath), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// envSections are the variable prefixes the env layer listens to. Anything
// else in the process environment is ignored.
var envSections = []string{"DATABASE_", "SOURCE_", "OMDB_", "ENRICH_", "REPORT_", "LOGGING_"}

// envToPath maps an environment variable name to a koanf path, or returns ""
// to skip the variable. OMDB_API_KEY becomes omdb.api_key.
func envToPath(name string) string {
	for _, prefix := range envSections {
		if strings.HasPrefix(name, prefix) {
			section := strings.ToLower(strings.TrimSuffix(prefix, "_"))
			key := strings.ToLower(strings.TrimPrefix(name, prefix))
			return section + "." + key
		}
	}
	return ""
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate rejects values the pipeline cannot run with. The API key is not
// checked here — load and report do not need it, and enrich degrades to
// marking candidates rather than refusing to start.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.OMDb.Timeout <= 0 {
		return fmt.Errorf("omdb.timeout must be positive, got %s", c.OMDb.Timeout)
	}
	if c.OMDb.RateBurst < 1 {
		return fmt.Errorf("omdb.rate_burst must be at least 1, got %d", c.OMDb.RateBurst)
	}
	if c.Enrich.Concurrency < 1 {
		return fmt.Errorf("enrich.concurrency must be at least 1, got %d", c.Enrich.Concurrency)
	}
	if c.Enrich.RetryAttempts < 1 {
		return fmt.Errorf("enrich.retry_attempts must be at least 1, got %d", c.Enrich.RetryAttempts)
	}
	if c.Report.MinMovieRatings < 1 || c.Report.MinGenreRatings < 1 {
		return fmt.Errorf("report thresholds must be at least 1")
	}
	if c.Report.TopGenres < 1 {
		return fmt.Errorf("report.top_genres must be at least 1, got %d", c.Report.TopGenres)
	}
	return nil
}
