// Package sqlite implements the embedded SQLite store used by the command line
// tool and by local analysis.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Dates are stored as TEXT in YYYY-MM-DD form so that range comparisons are
// plain string comparisons.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS gyms (
    id TEXT PRIMARY KEY,
    abv TEXT NOT NULL UNIQUE,
    brand TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL DEFAULT '',
    city TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL DEFAULT 'boulder' CHECK (kind IN ('boulder', 'lead'))
);

CREATE TABLE IF NOT EXISTS climbers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS problems (
    id TEXT PRIMARY KEY,
    gym_id TEXT NOT NULL REFERENCES gyms(id) ON DELETE CASCADE,
    sector_id TEXT NOT NULL DEFAULT '',
    grade TEXT NOT NULL DEFAULT '',
    removed INTEGER NOT NULL DEFAULT 0,
    added_on TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_problems_gym ON problems(gym_id);

CREATE TABLE IF NOT EXISTS attributes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    category TEXT NOT NULL CHECK (category IN ('handhold', 'footwork', 'type', 'move')),
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    image TEXT NOT NULL DEFAULT '',
    UNIQUE (category, name)
);

CREATE TABLE IF NOT EXISTS problem_attributes (
    problem_id TEXT NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
    attribute_id INTEGER NOT NULL REFERENCES attributes(id) ON DELETE CASCADE,
    PRIMARY KEY (problem_id, attribute_id)
);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    climber_id TEXT NOT NULL REFERENCES climbers(id) ON DELETE CASCADE,
    gym_id TEXT NOT NULL REFERENCES gyms(id),
    date TEXT NOT NULL,
    duration REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sessions_climber_date ON sessions(climber_id, date);

CREATE TABLE IF NOT EXISTS attempts (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    problem_id TEXT NOT NULL REFERENCES problems(id),
    kind TEXT NOT NULL CHECK (kind IN ('top', 'zone', 'fail')),
    attempts INTEGER NOT NULL CHECK (attempts >= 1)
);
CREATE INDEX IF NOT EXISTS idx_attempts_problem_kind ON attempts(problem_id, kind);

CREATE TABLE IF NOT EXISTS climber_thresholds (
    climber_id TEXT NOT NULL REFERENCES climbers(id) ON DELETE CASCADE,
    gym_id TEXT NOT NULL REFERENCES gyms(id) ON DELETE CASCADE,
    positions TEXT NOT NULL,
    PRIMARY KEY (climber_id, gym_id)
);

CREATE TABLE IF NOT EXISTS interval_statistics (
    id TEXT PRIMARY KEY,
    climber_id TEXT NOT NULL REFERENCES climbers(id) ON DELETE CASCADE,
    period INTEGER NOT NULL CHECK (period IN (1, 2, 3)),
    period_id INTEGER NOT NULL,
    year INTEGER NOT NULL,
    payload TEXT NOT NULL,
    created_at TEXT NOT NULL,
    UNIQUE (climber_id, period, period_id, year)
);
`

// SchemaSQL returns the schema. Tests load it into in-memory databases.
func SchemaSQL() string {
	return schemaSQL
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&_foreign_keys=on"
	} else {
		dsn += "?_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.HasPrefix(path, ":memory:") {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}
