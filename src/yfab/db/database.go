// Package db provides yfab's settings and operation history store: an
// in-memory SQLite database persisted to disk on shutdown.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bitswalk/yfab/src/common/logs"
	"github.com/bitswalk/yfab/src/common/paths"
	_ "github.com/mattn/go-sqlite3"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the db package
func SetLogger(l *logs.Logger) {
	log = l
}

// Setting keys
const (
	// SettingPokyPath is the poky checkout remembered from the last run
	SettingPokyPath = "poky.path"
	// SettingJWTSecret is the API token signing secret
	SettingJWTSecret = "auth.jwt_secret"
)

// Database wraps the SQLite connection with persistence capabilities
type Database struct {
	db           *sql.DB
	persistPath  string
	mu           sync.RWMutex
	shutdownOnce sync.Once
}

// Config holds the database configuration
type Config struct {
	// PersistPath is where the database is saved on shutdown. Empty keeps
	// the database in memory only.
	PersistPath string
	// LoadOnStart loads the persisted file when it exists
	LoadOnStart bool
}

// DefaultConfig returns a default database configuration
func DefaultConfig() Config {
	return Config{
		PersistPath: "~/.yfab/yfab.db",
		LoadOnStart: true,
	}
}

// New creates a new in-memory database with persistence support
func New(cfg Config) (*Database, error) {
	persistPath := paths.Expand(cfg.PersistPath)

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// Every pooled connection to :memory: is a distinct database
	db.SetMaxOpenConns(1)

	database := &Database{
		db:          db,
		persistPath: persistPath,
	}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if cfg.LoadOnStart && persistPath != "" && paths.IsFile(persistPath) {
		if err := database.LoadFromDisk(); err != nil {
			log.Warn("Failed to load database from disk, starting fresh", "path", persistPath, "error", err)
		}
	}

	return database, nil
}

func (d *Database) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS operations (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		target TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		exit_code INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_operations_kind ON operations(kind);
	CREATE INDEX IF NOT EXISTS idx_operations_started_at ON operations(started_at);
	`

	_, err := d.db.Exec(schema)
	return err
}

// DB returns the underlying sql.DB for direct queries
func (d *Database) DB() *sql.DB {
	return d.db
}

// Shutdown persists the database to disk and closes the connection
func (d *Database) Shutdown() error {
	var shutdownErr error

	d.shutdownOnce.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		if d.persistPath != "" {
			if err := d.persistToDisk(); err != nil {
				shutdownErr = fmt.Errorf("failed to persist database: %w", err)
			}
		}

		if err := d.db.Close(); err != nil {
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%v; also failed to close database: %w", shutdownErr, err)
			} else {
				shutdownErr = fmt.Errorf("failed to close database: %w", err)
			}
		}
	})

	return shutdownErr
}

// persistToDisk writes a temp copy with VACUUM INTO, then renames it over
// the target
func (d *Database) persistToDisk() error {
	if d.persistPath == "" {
		return nil
	}

	dir := filepath.Dir(d.persistPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempPath := d.persistPath + ".tmp"
	os.Remove(tempPath)

	if _, err := d.db.Exec(fmt.Sprintf("VACUUM INTO '%s'", quote(tempPath))); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to vacuum database to disk: %w", err)
	}

	if err := os.Rename(tempPath, d.persistPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename database file: %w", err)
	}

	return nil
}

func (d *Database) tableExistsInDiskDB(tableName string) bool {
	var count int
	err := d.db.QueryRow(`
		SELECT COUNT(*) FROM disk_db.sqlite_master
		WHERE type='table' AND name=?
	`, tableName).Scan(&count)
	return err == nil && count > 0
}

// LoadFromDisk copies the persisted tables into memory
func (d *Database) LoadFromDisk() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.persistPath == "" {
		return nil
	}

	if _, err := d.db.Exec(fmt.Sprintf("ATTACH DATABASE '%s' AS disk_db", quote(d.persistPath))); err != nil {
		return fmt.Errorf("failed to attach disk database: %w", err)
	}
	defer d.db.Exec("DETACH DATABASE disk_db")

	if d.tableExistsInDiskDB("settings") {
		if _, err := d.db.Exec(`
			INSERT OR REPLACE INTO settings (key, value, created_at, updated_at)
			SELECT key, value, created_at, updated_at FROM disk_db.settings
		`); err != nil {
			log.Warn("Failed to restore settings", "error", err)
		}
	}

	if d.tableExistsInDiskDB("operations") {
		if _, err := d.db.Exec(`
			INSERT OR REPLACE INTO operations
			(id, kind, target, status, exit_code, error_message, started_at, finished_at)
			SELECT id, kind, target, status, exit_code, error_message, started_at, finished_at
			FROM disk_db.operations
		`); err != nil {
			log.Warn("Failed to restore operation history", "error", err)
		}
	}

	return nil
}

// SaveToDisk manually triggers a save to disk
func (d *Database) SaveToDisk() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.persistToDisk()
}

// GetSetting retrieves a setting value by key. A missing key returns
// sql.ErrNoRows.
func (d *Database) GetSetting(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetSetting stores or updates a setting value
func (d *Database) SetSetting(key, value string) error {
	_, err := d.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// GetAllSettings retrieves all settings as a map
func (d *Database) GetAllSettings() (map[string]string, error) {
	rows, err := d.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}

	return settings, rows.Err()
}

func quote(path string) string {
	return strings.ReplaceAll(path, "'", "''")
}
