package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lp-trader/internal/logger"

	_ "modernc.org/sqlite"
)

// DefaultFile is the database file name used when no path is given.
const DefaultFile = "lptrader.db"

// DB wraps a SQLite database connection.
type DB struct {
	sql *sql.DB
}

// DefaultPath prefers the working directory so the DB is stable across go run
// and go build, and falls back to the executable directory.
func DefaultPath() string {
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, DefaultFile)
	}
	exe, _ := os.Executable()
	return filepath.Join(filepath.Dir(exe), DefaultFile)
}

// Open opens (or creates) the SQLite database at path and runs migrations.
// An empty path means DefaultPath().
func Open(path string) (*DB, error) {
	if path == "" {
		path = DefaultPath()
	}
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	d := &DB{sql: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	logger.Success("DB", fmt.Sprintf("Opened %s", path))
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) migrate() error {
	version := 0
	d.sql.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := d.sql.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS config (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS items (
				type_id    INTEGER PRIMARY KEY,
				type_name  TEXT NOT NULL,
				buy        REAL NOT NULL DEFAULT 0,
				split      REAL NOT NULL DEFAULT 0,
				sell       REAL NOT NULL DEFAULT 0,
				updated_at INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_items_name ON items(type_name);
			CREATE INDEX IF NOT EXISTS idx_items_updated ON items(updated_at);

			CREATE TABLE IF NOT EXISTS corps (
				corp_id       INTEGER PRIMARY KEY,
				corp_name     TEXT NOT NULL,
				is_npc        INTEGER NOT NULL DEFAULT 1,
				tier          TEXT NOT NULL,
				exchange_rate REAL NOT NULL,
				offers_json   TEXT NOT NULL DEFAULT '[]',
				updated_at    INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_corps_name ON corps(corp_name);

			CREATE TABLE IF NOT EXISTS characters (
				character_id   INTEGER PRIMARY KEY,
				character_name TEXT NOT NULL,
				wallet         REAL NOT NULL DEFAULT 0,
				lp_json        TEXT NOT NULL DEFAULT '{}',
				pull_data      INTEGER NOT NULL DEFAULT 1,
				updated_at     INTEGER NOT NULL DEFAULT 0
			);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		logger.Info("DB", "Applied migration v1")
	}

	if version < 2 {
		_, err := d.sql.Exec(`
			CREATE TABLE IF NOT EXISTS auth_session (
				character_id    INTEGER PRIMARY KEY,
				character_name  TEXT NOT NULL,
				access_token    TEXT NOT NULL,
				refresh_token   TEXT NOT NULL,
				expires_at      INTEGER NOT NULL,
				is_active       INTEGER NOT NULL DEFAULT 0,
				pull_data       INTEGER NOT NULL DEFAULT 1
			);

			INSERT OR IGNORE INTO schema_version (version) VALUES (2);
		`)
		if err != nil {
			return fmt.Errorf("migration v2: %w", err)
		}
		logger.Info("DB", "Applied migration v2 (auth session)")
	}

	return nil
}

// SqlDB returns the underlying *sql.DB for use by other packages (e.g. auth store).
func (d *DB) SqlDB() *sql.DB {
	return d.sql
}

func unixOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

func unixOf(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
