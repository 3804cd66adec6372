// Package store implements the three persistence contracts of warescan on
// SQLite: the location store keyed by (warehouse_id, code), the warehouse
// config store with one active config per (warehouse, user), and the rule
// store with a version history log. Report persistence rides along so the
// CLI can list past analyses.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"warescan/internal/logging"
)

// Store wraps the SQLite handle. All access goes through the mutex; readers
// take the read lock, writers the write lock, which keeps catalog snapshots
// serializable against concurrent edits.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the SQLite database at the given path.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	logging.Store("Opening store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable foreign keys: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.StoreDebug("Schema initialized")
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// migrate creates the required tables and indexes.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS locations (
		warehouse_id TEXT NOT NULL,
		code         TEXT NOT NULL,
		config_id    TEXT,
		location_type TEXT NOT NULL,
		capacity     INTEGER NOT NULL DEFAULT 1,
		zone         TEXT NOT NULL DEFAULT 'GENERAL',
		pattern      TEXT,
		allowed_products     TEXT,
		special_requirements TEXT,
		aisle    INTEGER,
		rack     TEXT,
		position INTEGER,
		level    TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (warehouse_id, code)
	);
	CREATE INDEX IF NOT EXISTS idx_locations_config ON locations(warehouse_id, config_id);

	CREATE TABLE IF NOT EXISTS warehouse_configs (
		id           TEXT PRIMARY KEY,
		warehouse_id TEXT NOT NULL,
		user_id      TEXT NOT NULL,
		aisles INTEGER NOT NULL DEFAULT 0,
		racks INTEGER NOT NULL DEFAULT 0,
		positions INTEGER NOT NULL DEFAULT 0,
		levels INTEGER NOT NULL DEFAULT 0,
		level_names TEXT NOT NULL DEFAULT '',
		default_capacity INTEGER NOT NULL DEFAULT 1,
		bidimensional INTEGER NOT NULL DEFAULT 0,
		special_areas TEXT,
		is_active INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_configs_owner ON warehouse_configs(warehouse_id, user_id);

	CREATE TABLE IF NOT EXISTS rules (
		id       TEXT PRIMARY KEY,
		tenant   TEXT NOT NULL DEFAULT '',
		name     TEXT NOT NULL,
		rule_type TEXT NOT NULL,
		category TEXT NOT NULL,
		priority TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		conditions TEXT NOT NULL,
		precedence INTEGER NOT NULL DEFAULT 100,
		version  INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_rules_active ON rules(tenant, is_active, precedence, priority);

	CREATE TABLE IF NOT EXISTS rule_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		rule_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		conditions TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		reverted INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_rule_history ON rule_history(rule_id, version);

	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		tenant  TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_user ON reports(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_reports_tenant ON reports(tenant, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}
