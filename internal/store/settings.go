package store

import (
	"database/sql"
	"time"
)

// Setting represents a key-value setting stored in SQLite
type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// SettingsStore provides methods for managing dynamic runtime state that
// survives restarts without living in the config file.
type SettingsStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
	GetBool(key string, defaultVal bool) bool
	SetBool(key string, value bool) error
	GetTime(key string) (time.Time, bool)
	SetTime(key string, value time.Time) error
}

// SQLiteSettingsStore implements SettingsStore using SQLite
type SQLiteSettingsStore struct {
	db *sql.DB
}

// NewSQLiteSettingsStore creates a new settings store
func NewSQLiteSettingsStore(db *sql.DB) (*SQLiteSettingsStore, error) {
	store := &SQLiteSettingsStore{db: db}

	// Create settings table if not exists
	if err := store.createTable(); err != nil {
		return nil, err
	}

	return store, nil
}

// createTable creates the settings table
func (s *SQLiteSettingsStore) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := s.db.Exec(query)
	return err
}

// Get retrieves a setting value
func (s *SQLiteSettingsStore) Get(key string) (string, bool) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false
	}
	if err != nil {
		return "", false
	}
	return value, true
}

// Set sets a setting value
func (s *SQLiteSettingsStore) Set(key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = ?
	`
	now := time.Now()
	_, err := s.db.Exec(query, key, value, now, value, now)
	return err
}

// Delete removes a setting
func (s *SQLiteSettingsStore) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM settings WHERE key = ?", key)
	return err
}

// GetBool retrieves a bool setting
func (s *SQLiteSettingsStore) GetBool(key string, defaultVal bool) bool {
	value, ok := s.Get(key)
	if !ok {
		return defaultVal
	}
	return value == "true" || value == "1" || value == "yes"
}

// SetBool sets a bool setting
func (s *SQLiteSettingsStore) SetBool(key string, value bool) error {
	if value {
		return s.Set(key, "true")
	}
	return s.Set(key, "false")
}

// GetTime retrieves a timestamp setting. Missing or unparseable values
// report not found.
func (s *SQLiteSettingsStore) GetTime(key string) (time.Time, bool) {
	value, ok := s.Get(key)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetTime sets a timestamp setting
func (s *SQLiteSettingsStore) SetTime(key string, value time.Time) error {
	return s.Set(key, value.UTC().Format(time.RFC3339Nano))
}

// Constants for setting keys
const (
	SettingAlertsMutedUntil = "alerts_muted_until"
	SettingLastDigestDate   = "last_digest_date"
	SettingRemoteSyncedAt   = "remote_synced_at"
)
