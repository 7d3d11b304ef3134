// Package store provides the SQLite persistence layer for Rolo.
//
// All tracker data lives in a single SQLite database file:
// - People (the roster)
// - Relations (typed facts about people)
// - An append-only event log of relation lifecycle decisions
//
// The reasoning core never touches this package directly: it returns
// decisions, and callers apply them here (insert a screened relation,
// demote a superseded fact to past, leave a rejected candidate
// uncommitted).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/szymonk92/rolo/internal/relation"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.rolo/rolo.db"

// Event is an entry in the append-only relation event log.
type Event struct {
	ID         int64
	EventType  string // "relation_added", "relation_marked_past", "relation_rejected"
	RelationID int64
	Detail     string
	CreatedAt  time.Time
}

// Stats holds observability counters for the store.
type Stats struct {
	PeopleCount   int64
	RelationCount int64
	PastCount     int64
	EventCount    int64
	DBSizeBytes   int64
}

// Config holds configuration for NewStore.
type Config struct {
	DBPath string
}

// Store defines the persistence interface the rest of Rolo depends on.
type Store interface {
	// People
	AddPerson(ctx context.Context, p *relation.Person) error
	GetPerson(ctx context.Context, id string) (*relation.Person, error)
	ListPeople(ctx context.Context) ([]relation.Person, error)

	// Relations
	AddRelation(ctx context.Context, r *relation.Relation) (int64, error)
	GetRelation(ctx context.Context, id int64) (*relation.Relation, error)
	ListRelationsBySubject(ctx context.Context, subjectID string) ([]relation.Relation, error)
	ListRelations(ctx context.Context, limit int) ([]relation.Relation, error)
	MarkRelationPast(ctx context.Context, id int64) error

	// Events
	LogEvent(ctx context.Context, e *Event) error

	// Observability
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg Config) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate creates all tables if they don't exist.
func (s *SQLiteStore) migrate() error {
	ddl := `
	CREATE TABLE IF NOT EXISTS people (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		nickname   TEXT NOT NULL DEFAULT '',
		person_type TEXT NOT NULL DEFAULT 'mentioned',
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS relations (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_id    TEXT NOT NULL REFERENCES people(id),
		relation_type TEXT NOT NULL,
		object_label  TEXT NOT NULL,
		intensity     TEXT NOT NULL DEFAULT '',
		confidence    REAL NOT NULL DEFAULT 1.0,
		status        TEXT NOT NULL DEFAULT 'current',
		category      TEXT NOT NULL DEFAULT '',
		valid_from    TIMESTAMP,
		valid_until   TIMESTAMP,
		source_quote  TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_relations_subject ON relations(subject_id, status);

	CREATE TABLE IF NOT EXISTS relation_events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type  TEXT NOT NULL,
		relation_id INTEGER NOT NULL DEFAULT 0,
		detail      TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMP NOT NULL
	);
	`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
