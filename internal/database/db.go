// Package database opens the engine's four SQLite stores and applies
// declarative, versioned migrations on startup, replacing the ad-hoc
// runtime ALTER TABLE pattern with a migration-step table per store.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// StoreName identifies one of the four named stores (§6).
type StoreName string

const (
	StoreSignals         StoreName = "signals"
	StoreWatchSignals    StoreName = "watch_signals"
	StoreHighVolTrack    StoreName = "high_vol_track"
	StoreXGBoostTraining StoreName = "xgboost_training"
)

// fileNames maps each store to its on-disk file name under data_dir.
var fileNames = map[StoreName]string{
	StoreSignals:         "signals.db",
	StoreWatchSignals:    "watch_signals.db",
	StoreHighVolTrack:    "high_vol_track.db",
	StoreXGBoostTraining: "xgboost_training.db",
}

// DB wraps a single SQLite connection pool with WAL mode and a 30s busy
// timeout, matching the teacher's db.go shape but opinionated on pragmas.
type DB struct {
	conn *sql.DB
	path string
	name StoreName
}

// Open opens (creating if needed) the named store under dataDir and applies
// any pending migrations for it.
func Open(dataDir string, name StoreName) (*DB, error) {
	fileName, ok := fileNames[name]
	if !ok {
		return nil, fmt.Errorf("unknown store %q", name)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, fileName)
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(30000)"

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping %s: %w", name, err)
	}

	// A single-file SQLite store serializes writes regardless; keep the pool
	// small so readers don't pile up behind WAL checkpoints.
	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)

	db := &DB{conn: conn, path: dbPath, name: name}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", name, err)
	}

	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying *sql.DB for packages that need raw access.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the on-disk file path, used by the backup service.
func (db *DB) Path() string {
	return db.path
}

// Name returns the store's logical name.
func (db *DB) Name() StoreName {
	return db.name
}

// Begin starts a new transaction.
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}

// Exec executes a query without returning rows.
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows.
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row.
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRow(query, args...)
}

// migrate creates the schema_migrations bookkeeping table and applies any
// step in this store's migration list not yet recorded as applied.
func (db *DB) migrate() error {
	if _, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	steps, ok := migrationsByStore[db.name]
	if !ok {
		return nil
	}

	for _, step := range steps {
		var applied int
		row := db.conn.QueryRow(`SELECT COUNT(1) FROM schema_migrations WHERE version = ?`, step.Version)
		if err := row.Scan(&applied); err != nil {
			return fmt.Errorf("failed to check migration %d: %w", step.Version, err)
		}
		if applied > 0 {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(step.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", step.Version, step.Name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, step.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", step.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

// migrationStep is one forward-only, idempotent-by-bookkeeping DDL change.
type migrationStep struct {
	Version int
	Name    string
	SQL     string
}
