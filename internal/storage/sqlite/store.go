// Package sqlite implements the storage interfaces on SQLite via the pure-Go
// modernc.org/sqlite driver. It is the default backend for the agent.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/cogito/internal/storage"
)

// Schema creates all tables and indexes. Statements are idempotent so the
// schema can be applied on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	content      TEXT NOT NULL,
	importance   REAL NOT NULL DEFAULT 0.5,
	created_at   TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_source ON memories(source);

CREATE TABLE IF NOT EXISTS memory_skills (
	memory_id TEXT NOT NULL REFERENCES memories(id),
	skill     TEXT NOT NULL,
	PRIMARY KEY (memory_id, skill)
);

CREATE INDEX IF NOT EXISTS idx_memory_skills_skill ON memory_skills(skill);

CREATE TABLE IF NOT EXISTS skills (
	name         TEXT PRIMARY KEY,
	score        REAL NOT NULL DEFAULT 0,
	trend        REAL NOT NULL DEFAULT 0,
	last_updated TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS goals (
	id           TEXT PRIMARY KEY,
	description  TEXT NOT NULL,
	target_skill TEXT NOT NULL,
	priority     REAL NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'active',
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_goals_one_active_per_skill
	ON goals(target_skill) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS cycles (
	cycle_id   INTEGER PRIMARY KEY AUTOINCREMENT,
	phase      TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	ended_at   TIMESTAMP,
	outcome    TEXT NOT NULL DEFAULT 'failed',
	topic      TEXT NOT NULL DEFAULT '',
	notes      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS consciousness_history (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TIMESTAMP NOT NULL,
	level     REAL NOT NULL
);
`

// Store is the SQLite-backed implementation of storage.Store.
type Store struct {
	db *sql.DB

	memories *MemoryStore
	skills   *SkillStore
	goals    *GoalStore
	cycles   *CycleStore
	metrics  *MetricStore
}

// Open opens a SQLite database, configures WAL mode, and applies the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open
	// connection serialises writes and avoids SQLITE_BUSY errors; WAL mode
	// lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &Store{db: db}
	s.memories = &MemoryStore{db: db}
	s.skills = &SkillStore{db: db}
	s.goals = &GoalStore{db: db}
	s.cycles = &CycleStore{db: db}
	s.metrics = &MetricStore{db: db}
	return s, nil
}

// GetDB exposes the underlying handle for maintenance tooling.
func (s *Store) GetDB() *sql.DB { return s.db }

func (s *Store) Memories() storage.MemoryStore { return s.memories }
func (s *Store) Skills() storage.SkillStore    { return s.skills }
func (s *Store) Goals() storage.GoalStore      { return s.goals }
func (s *Store) Cycles() storage.CycleStore    { return s.cycles }
func (s *Store) Metrics() storage.MetricStore  { return s.metrics }

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }
