// Package sqlite implements the repository interfaces on an embedded SQLite
// database, using the pure-Go modernc driver (no cgo, cross-compiles
// anywhere Go runs) through sqlx for struct scanning and named parameters.
//
// The schema below is the contract other tools rely on: table names, column
// names, constraints, and the cascade-delete behavior from movies as the
// aggregate root must stay exactly as written.
package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	// Registers the "sqlite" driver with database/sql at init time.
	_ "modernc.org/sqlite"
)

func init() {
	// sqlx only knows the cgo driver's "sqlite3" name out of the box.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// DB wraps the connection pool and provides every repository implementation.
type DB struct {
	conn *sqlx.DB
}

// New opens (or creates) the database at dbPath and ensures the schema
// exists. Use ":memory:" for throwaway databases in tests.
//
// Foreign-key enforcement is off by default in SQLite and is required for
// the cascade deletes, so it is enabled per connection here; WAL mode lets
// report queries run while a load is in progress.
func New(dbPath string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// The modernc driver serializes access per connection; a single
	// connection avoids "database is locked" errors under the Enricher's
	// concurrent single-row updates and still satisfies the short-
	// transaction model.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate idempotently creates the schema. CREATE TABLE IF NOT EXISTS makes
// re-runs safe; an existing table with an incompatible shape surfaces as an
// error from the first statement that trips over it.
func (db *DB) migrate() error {
	statements := []struct {
		name string
		sql  string
	}{
		{"movies table", `
			CREATE TABLE IF NOT EXISTS movies (
				id              INTEGER PRIMARY KEY,
				title           TEXT NOT NULL,
				year            INTEGER,
				imdb_id         TEXT UNIQUE,
				director        TEXT,
				plot            TEXT,
				box_office      TEXT,
				released        TEXT,
				runtime_minutes INTEGER,
				created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`},
		{"genres table", `
			CREATE TABLE IF NOT EXISTS genres (
				id   INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE
			)`},
		{"movie_genres table", `
			CREATE TABLE IF NOT EXISTS movie_genres (
				movie_id INTEGER NOT NULL REFERENCES movies(id) ON DELETE CASCADE,
				genre_id INTEGER NOT NULL REFERENCES genres(id) ON DELETE CASCADE,
				PRIMARY KEY (movie_id, genre_id)
			)`},
		{"ratings table", `
			CREATE TABLE IF NOT EXISTS ratings (
				user_id   INTEGER NOT NULL,
				movie_id  INTEGER NOT NULL REFERENCES movies(id) ON DELETE CASCADE,
				rating    REAL NOT NULL,
				timestamp INTEGER,
				PRIMARY KEY (user_id, movie_id, timestamp)
			)`},
		{"enrichment_state table", `
			CREATE TABLE IF NOT EXISTS enrichment_state (
				movie_id   INTEGER PRIMARY KEY REFERENCES movies(id) ON DELETE CASCADE,
				status     TEXT NOT NULL,
				attempts   INTEGER NOT NULL DEFAULT 0,
				last_error TEXT,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`},
		{"ratings movie index", `
			CREATE INDEX IF NOT EXISTS idx_ratings_movie_id ON ratings(movie_id)`},
		{"movies director index", `
			CREATE INDEX IF NOT EXISTS idx_movies_director ON movies(director)`},
	}

	for _, stmt := range statements {
		if _, err := db.conn.Exec(stmt.sql); err != nil {
			return fmt.Errorf("creating %s: %w", stmt.name, err)
		}
	}
	return nil
}

// inTx runs fn inside a transaction, committing on nil and rolling back on
// error.
func (db *DB) inTx(fn func(tx *sqlx.Tx) error) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
