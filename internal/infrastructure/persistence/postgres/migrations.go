package postgres

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_catalog",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_sessions",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_interval_statistics",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE CATALOG
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: gyms, problems and their descriptive attributes
-- Version: 001

CREATE TABLE IF NOT EXISTS gyms (
    id VARCHAR(64) PRIMARY KEY,
    abv VARCHAR(16) NOT NULL UNIQUE,
    brand VARCHAR(100) NOT NULL DEFAULT '',
    name VARCHAR(200) NOT NULL DEFAULT '',
    city VARCHAR(100) NOT NULL DEFAULT '',
    kind VARCHAR(10) NOT NULL DEFAULT 'boulder',

    CONSTRAINT valid_gym_kind CHECK (kind IN ('boulder', 'lead'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_gyms_abv_lower ON gyms(lower(abv));

CREATE TABLE IF NOT EXISTS problems (
    id VARCHAR(64) PRIMARY KEY,
    gym_id VARCHAR(64) NOT NULL REFERENCES gyms(id) ON DELETE CASCADE,
    sector_id VARCHAR(64) NOT NULL DEFAULT '',
    grade VARCHAR(32) NOT NULL DEFAULT '',
    removed BOOLEAN NOT NULL DEFAULT FALSE,
    added_on DATE
);

CREATE INDEX IF NOT EXISTS idx_problems_gym ON problems(gym_id) WHERE NOT removed;
CREATE INDEX IF NOT EXISTS idx_problems_grade ON problems(lower(grade));

CREATE TABLE IF NOT EXISTS attributes (
    id SERIAL PRIMARY KEY,
    category VARCHAR(10) NOT NULL,
    name VARCHAR(64) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    image TEXT NOT NULL DEFAULT '',

    CONSTRAINT valid_category CHECK (category IN ('handhold', 'footwork', 'type', 'move')),
    CONSTRAINT unique_attribute UNIQUE (category, name)
);

CREATE TABLE IF NOT EXISTS problem_attributes (
    problem_id VARCHAR(64) NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
    attribute_id INTEGER NOT NULL REFERENCES attributes(id) ON DELETE CASCADE,
    PRIMARY KEY (problem_id, attribute_id)
);

CREATE INDEX IF NOT EXISTS idx_problem_attributes_attribute ON problem_attributes(attribute_id);
`

const migration001Down = `
DROP TABLE IF EXISTS problem_attributes;
DROP TABLE IF EXISTS attributes;
DROP TABLE IF EXISTS problems;
DROP TABLE IF EXISTS gyms;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: climbers, sessions, attempt records and personal thresholds
-- Version: 002

CREATE TABLE IF NOT EXISTS climbers (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(100) NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sessions (
    id VARCHAR(64) PRIMARY KEY,
    climber_id VARCHAR(64) NOT NULL REFERENCES climbers(id) ON DELETE CASCADE,
    gym_id VARCHAR(64) NOT NULL REFERENCES gyms(id),
    date DATE NOT NULL,
    duration DOUBLE PRECISION NOT NULL DEFAULT 0,

    CONSTRAINT non_negative_duration CHECK (duration >= 0)
);

CREATE INDEX IF NOT EXISTS idx_sessions_climber_date ON sessions(climber_id, date);

CREATE TABLE IF NOT EXISTS attempts (
    seq BIGSERIAL PRIMARY KEY,
    id VARCHAR(64) NOT NULL UNIQUE,
    session_id VARCHAR(64) NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    problem_id VARCHAR(64) NOT NULL REFERENCES problems(id),
    kind VARCHAR(4) NOT NULL,
    attempts INTEGER NOT NULL,

    CONSTRAINT valid_attempt_kind CHECK (kind IN ('top', 'zone', 'fail')),
    CONSTRAINT positive_attempts CHECK (attempts >= 1)
);

CREATE INDEX IF NOT EXISTS idx_attempts_session ON attempts(session_id);
CREATE INDEX IF NOT EXISTS idx_attempts_problem_kind ON attempts(problem_id, kind);

CREATE TABLE IF NOT EXISTS climber_thresholds (
    climber_id VARCHAR(64) NOT NULL REFERENCES climbers(id) ON DELETE CASCADE,
    gym_id VARCHAR(64) NOT NULL REFERENCES gyms(id) ON DELETE CASCADE,
    positions INTEGER[] NOT NULL,
    PRIMARY KEY (climber_id, gym_id),

    CONSTRAINT non_empty_band CHECK (cardinality(positions) > 0)
);
`

const migration002Down = `
DROP TABLE IF EXISTS climber_thresholds;
DROP TABLE IF EXISTS attempts;
DROP TABLE IF EXISTS sessions;
DROP TABLE IF EXISTS climbers;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE INTERVAL STATISTICS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: stored statistics per climber and calendar period
-- Version: 003

CREATE TABLE IF NOT EXISTS interval_statistics (
    id UUID PRIMARY KEY,
    climber_id VARCHAR(64) NOT NULL REFERENCES climbers(id) ON DELETE CASCADE,
    period SMALLINT NOT NULL,
    period_id SMALLINT NOT NULL,
    year INTEGER NOT NULL,
    payload JSONB NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_period CHECK (period IN (1, 2, 3)),
    CONSTRAINT unique_period UNIQUE (climber_id, period, period_id, year)
);
`

const migration003Down = `
DROP TABLE IF EXISTS interval_statistics;
`
