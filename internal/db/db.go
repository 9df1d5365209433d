package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB with arena-specific helpers.
type DB struct {
	*sql.DB
	mu   sync.RWMutex
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{DB: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenMemory creates an in-memory SQLite database (useful for testing).
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}

	d := &DB{DB: sqlDB, path: ":memory:"}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// migrate runs all schema migrations.
func (d *DB) migrate() error {
	_, err := d.Exec(schema)
	return err
}

// schema contains the full database schema. New tables are added here.
const schema = `
CREATE TABLE IF NOT EXISTS culture_values (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS engagement_dimensions (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS behavior_tags (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS scenarios (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    difficulty TEXT NOT NULL DEFAULT 'intro' CHECK(difficulty IN ('intro','intermediate','advanced')),
    estimated_minutes INTEGER NOT NULL DEFAULT 15,
    primary_dimension_id TEXT NOT NULL REFERENCES engagement_dimensions(id),
    secondary_dimension_id TEXT REFERENCES engagement_dimensions(id),
    culture_value_id TEXT NOT NULL REFERENCES culture_values(id),
    active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    scenario_id TEXT NOT NULL REFERENCES scenarios(id) ON DELETE CASCADE,
    type TEXT NOT NULL CHECK(type IN ('reflection','decision','outcome')),
    prompt TEXT NOT NULL,
    order_index INTEGER NOT NULL,
    UNIQUE(scenario_id, order_index)
);

CREATE INDEX IF NOT EXISTS idx_nodes_scenario ON nodes(scenario_id, order_index);

CREATE TABLE IF NOT EXISTS choices (
    id TEXT PRIMARY KEY,
    node_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    position INTEGER NOT NULL DEFAULT 0,
    text TEXT NOT NULL,
    explanation TEXT NOT NULL DEFAULT '',
    base_points INTEGER NOT NULL DEFAULT 0,
    engagement_impact INTEGER NOT NULL DEFAULT 0,
    next_node_id TEXT REFERENCES nodes(id),
    UNIQUE(node_id, position)
);

CREATE INDEX IF NOT EXISTS idx_choices_node ON choices(node_id, position);

CREATE TABLE IF NOT EXISTS choice_culture_impacts (
    choice_id TEXT NOT NULL REFERENCES choices(id) ON DELETE CASCADE,
    culture_value_id TEXT NOT NULL REFERENCES culture_values(id),
    impact INTEGER NOT NULL,
    PRIMARY KEY(choice_id, culture_value_id)
);

CREATE TABLE IF NOT EXISTS choice_behavior_tags (
    choice_id TEXT NOT NULL REFERENCES choices(id) ON DELETE CASCADE,
    tag_id TEXT NOT NULL REFERENCES behavior_tags(id),
    polarity TEXT NOT NULL CHECK(polarity IN ('positive','negative')),
    PRIMARY KEY(choice_id, tag_id, polarity)
);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    scenario_id TEXT NOT NULL REFERENCES scenarios(id),
    node_index INTEGER NOT NULL DEFAULT 0,
    total_score INTEGER NOT NULL DEFAULT 0,
    engagement_score INTEGER NOT NULL DEFAULT 0,
    culture_score INTEGER NOT NULL DEFAULT 0,
    reflections TEXT NOT NULL DEFAULT '[]',
    choices TEXT NOT NULL DEFAULT '[]',
    positive_tags TEXT NOT NULL DEFAULT '[]',
    negative_tags TEXT NOT NULL DEFAULT '[]',
    started_at DATETIME NOT NULL,
    completed_at DATETIME,
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sessions_user_scenario ON sessions(user_id, scenario_id);
CREATE INDEX IF NOT EXISTS idx_sessions_incomplete ON sessions(user_id, scenario_id) WHERE completed_at IS NULL;

CREATE TABLE IF NOT EXISTS reflections (
    id TEXT PRIMARY KEY,
    node_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    text TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_reflections_node ON reflections(node_id);
CREATE INDEX IF NOT EXISTS idx_reflections_user ON reflections(user_id);

CREATE TABLE IF NOT EXISTS coaching_log (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    node_id TEXT NOT NULL,
    exchange_number INTEGER NOT NULL CHECK(exchange_number BETWEEN 1 AND 3),
    coach_message TEXT NOT NULL,
    user_text TEXT NOT NULL DEFAULT '',
    fallback INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_coaching_session ON coaching_log(session_id, node_id);

CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    timestamp DATETIME NOT NULL DEFAULT (datetime('now')),
    type TEXT NOT NULL,
    session_id TEXT NOT NULL DEFAULT '',
    scenario_id TEXT NOT NULL DEFAULT '',
    user_id TEXT NOT NULL DEFAULT '',
    node_id TEXT NOT NULL DEFAULT '',
    detail TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
`
