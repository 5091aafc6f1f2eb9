package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/proxydeck/proxydeck/internal/errors"
	"github.com/proxydeck/proxydeck/internal/logging"
	"github.com/proxydeck/proxydeck/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore provides durable storage for quota snapshots, the remote
// account cache and the audit trail, with WAL mode enabled. It is
// thread-safe and supports concurrent access.
type SQLiteStore struct {
	mu       sync.RWMutex
	db       *sql.DB
	logger   *logging.Logger
	settings SettingsStore

	// Subscribers for snapshot changes
	subscribers []chan models.SnapshotEvent
	subMu       sync.RWMutex

	// Audit retention cleanup
	cleanupTicker *time.Ticker
	cleanupDone   chan struct{}
	retentionDays int
}

// NewSQLiteStore creates a new SQLite store with WAL mode enabled
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithRetention(dbPath, 30) // Default 30 days audit retention
}

// NewSQLiteStoreWithRetention creates a new SQLite store with custom audit retention
func NewSQLiteStoreWithRetention(dbPath string, retentionDays int) (*SQLiteStore, error) {
	// Create directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &errors.ErrDirectoryCreate{Path: dir, Err: err}
		}
	}

	// Open database with WAL mode enabled
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)&_pragma=cache_size(2000)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	settingsStore, err := NewSQLiteSettingsStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{
		db:            db,
		logger:        logging.NewLogger(),
		cleanupDone:   make(chan struct{}),
		retentionDays: retentionDays,
		settings:      settingsStore,
	}

	// Start retention cleanup goroutine if retention is enabled
	if retentionDays > 0 {
		store.startCleanup()
	}

	return store, nil
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB) error {
	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create migrations table", Err: err}
	}

	// Get current migration version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "get current migration version", Err: err}
	}

	// Define migrations
	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS quota_snapshots (
					account_id TEXT PRIMARY KEY,
					tier TEXT NOT NULL DEFAULT '',
					forbidden INTEGER NOT NULL DEFAULT 0,
					fetch_status TEXT NOT NULL,
					error TEXT NOT NULL DEFAULT '',
					models TEXT,
					fetched_at DATETIME NOT NULL
				);

				CREATE TABLE IF NOT EXISTS remote_accounts (
					id TEXT PRIMARY KEY,
					type TEXT NOT NULL,
					email TEXT NOT NULL DEFAULT '',
					tier TEXT NOT NULL DEFAULT '',
					active INTEGER NOT NULL DEFAULT 1,
					updated_at DATETIME NOT NULL
				);

				CREATE TABLE IF NOT EXISTS audit_events (
					id TEXT PRIMARY KEY,
					timestamp DATETIME NOT NULL,
					event_type TEXT NOT NULL,
					severity TEXT NOT NULL DEFAULT '',
					user_id TEXT NOT NULL DEFAULT '',
					ip_address TEXT NOT NULL DEFAULT '',
					action TEXT NOT NULL,
					resource TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL,
					details TEXT,
					error_message TEXT NOT NULL DEFAULT ''
				);

				CREATE INDEX IF NOT EXISTS idx_snapshots_fetched_at ON quota_snapshots(fetched_at);
				CREATE INDEX IF NOT EXISTS idx_snapshots_status ON quota_snapshots(fetch_status);
				CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp);
				CREATE INDEX IF NOT EXISTS idx_audit_event_type ON audit_events(event_type);
			`,
		},
	}

	// Run pending migrations
	tx, err := db.Begin()
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "begin transaction", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, m := range migrations {
		if m.version > currentVersion {
			if _, err := tx.Exec(m.up); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "commit migrations", Err: err}
	}

	return nil
}

// startCleanup starts the retention cleanup goroutine
func (s *SQLiteStore) startCleanup() {
	s.cleanupTicker = time.NewTicker(time.Hour)
	go func() {
		for {
			select {
			case <-s.cleanupTicker.C:
				s.cleanupOldData()
			case <-s.cleanupDone:
				return
			}
		}
	}()
}

// cleanupOldData removes audit events older than the retention window
func (s *SQLiteStore) cleanupOldData() {
	if s.retentionDays <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	_, err := s.db.Exec("DELETE FROM audit_events WHERE timestamp < ?", cutoff)
	if err != nil {
		s.logger.Error("cleanup failed", "table", "audit_events", "error", err.Error())
	}
}

// Close gracefully shuts down the store
func (s *SQLiteStore) Close() error {
	// Stop cleanup goroutine
	if s.cleanupTicker != nil {
		s.cleanupTicker.Stop()
		close(s.cleanupDone)
	}

	// Close all subscriber channels
	s.subMu.Lock()
	for _, ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil
	s.subMu.Unlock()

	// Close database connection
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Settings returns the settings store.
func (s *SQLiteStore) Settings() SettingsStore {
	return s.settings
}

// Snapshot operations

// GetSnapshot retrieves the cached snapshot for an account
func (s *SQLiteStore) GetSnapshot(accountID string) (*models.QuotaSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap models.QuotaSnapshot
	var modelsJSON sql.NullString

	err := s.db.QueryRow(`
		SELECT account_id, tier, forbidden, fetch_status, error, models, fetched_at
		FROM quota_snapshots WHERE account_id = ?
	`, accountID).Scan(&snap.AccountID, &snap.Tier, &snap.Forbidden, &snap.FetchStatus, &snap.Error, &modelsJSON, &snap.FetchedAt)

	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		return nil, false
	}

	if modelsJSON.Valid && modelsJSON.String != "" && modelsJSON.String != "null" {
		if err := json.Unmarshal([]byte(modelsJSON.String), &snap.Models); err != nil {
			s.logger.Warn("failed to parse snapshot models", "error", err.Error(), "account_id", snap.AccountID)
		}
	}
	if snap.Models == nil {
		snap.Models = make(map[string]models.ModelQuota)
	}

	return &snap, true
}

// PutSnapshot stores a snapshot, replacing any previous one wholesale
func (s *SQLiteStore) PutSnapshot(snap *models.QuotaSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap == nil {
		return nil
	}

	modelsJSON, err := json.Marshal(snap.Models)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "encode snapshot models", Err: err}
	}

	_, err = s.db.Exec(`
		INSERT INTO quota_snapshots (account_id, tier, forbidden, fetch_status, error, models, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			tier = excluded.tier,
			forbidden = excluded.forbidden,
			fetch_status = excluded.fetch_status,
			error = excluded.error,
			models = excluded.models,
			fetched_at = excluded.fetched_at
	`, snap.AccountID, snap.Tier, snap.Forbidden, snap.FetchStatus, snap.Error, string(modelsJSON), snap.FetchedAt)

	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "put snapshot", Err: err}
	}

	s.notifySnapshot(snap)
	return nil
}

// MarkSnapshotError flags the cached snapshot as failed while keeping the
// prior model data, or records a bare error row when nothing was cached.
func (s *SQLiteStore) MarkSnapshotError(accountID string, at time.Time, message string) error {
	// Read prior state BEFORE acquiring the write lock to avoid deadlock
	prior, hadPrior := s.GetSnapshot(accountID)

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE quota_snapshots
		SET fetch_status = ?, error = ?, fetched_at = ?
		WHERE account_id = ?
	`, models.FetchStatusError, message, at, accountID)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "mark snapshot error", Err: err}
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		_, err = s.db.Exec(`
			INSERT INTO quota_snapshots (account_id, fetch_status, error, fetched_at)
			VALUES (?, ?, ?, ?)
		`, accountID, models.FetchStatusError, message, at)
		if err != nil {
			return &errors.ErrDatabaseQuery{Operation: "insert snapshot error", Err: err}
		}
	}

	snap := &models.QuotaSnapshot{
		AccountID:   accountID,
		Models:      make(map[string]models.ModelQuota),
		FetchedAt:   at,
		FetchStatus: models.FetchStatusError,
		Error:       message,
	}
	if hadPrior {
		snap.Models = prior.Models
		snap.Tier = prior.Tier
		snap.Forbidden = prior.Forbidden
	}
	s.notifySnapshot(snap)
	return nil
}

// DeleteSnapshot removes the cached snapshot for an account
func (s *SQLiteStore) DeleteSnapshot(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("DELETE FROM quota_snapshots WHERE account_id = ?", accountID)
	if err != nil {
		return false
	}

	rows, _ := result.RowsAffected()
	return rows > 0
}

// ListSnapshots returns all cached snapshots ordered by account ID
func (s *SQLiteStore) ListSnapshots() []*models.QuotaSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT account_id, tier, forbidden, fetch_status, error, models, fetched_at
		FROM quota_snapshots ORDER BY account_id
	`)
	if err != nil {
		return []*models.QuotaSnapshot{}
	}
	defer rows.Close()

	var snapshots []*models.QuotaSnapshot
	for rows.Next() {
		var snap models.QuotaSnapshot
		var modelsJSON sql.NullString

		if err := rows.Scan(&snap.AccountID, &snap.Tier, &snap.Forbidden, &snap.FetchStatus, &snap.Error, &modelsJSON, &snap.FetchedAt); err != nil {
			continue
		}

		if modelsJSON.Valid && modelsJSON.String != "" && modelsJSON.String != "null" {
			if err := json.Unmarshal([]byte(modelsJSON.String), &snap.Models); err != nil {
				s.logger.Warn("failed to parse snapshot models", "error", err.Error(), "account_id", snap.AccountID)
			}
		}
		if snap.Models == nil {
			snap.Models = make(map[string]models.ModelQuota)
		}

		snapshots = append(snapshots, &snap)
	}

	return snapshots
}

// notifySnapshot sends events to subscribers when a snapshot changes
func (s *SQLiteStore) notifySnapshot(snap *models.QuotaSnapshot) {
	s.subMu.RLock()
	subs := make([]chan models.SnapshotEvent, len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.RUnlock()

	if len(subs) == 0 {
		return
	}

	event := models.SnapshotEvent{
		AccountID: snap.AccountID,
		Snapshot:  snap,
		Timestamp: time.Now(),
	}
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Channel full, skip
		}
	}
}

// Subscribe creates a subscription for snapshot changes
func (s *SQLiteStore) Subscribe() chan models.SnapshotEvent {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan models.SnapshotEvent, 10)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscription
func (s *SQLiteStore) Unsubscribe(ch chan models.SnapshotEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for i, sub := range s.subscribers {
		if sub == ch {
			// Remove by swapping with last and truncating
			s.subscribers[i] = s.subscribers[len(s.subscribers)-1]
			s.subscribers = s.subscribers[:len(s.subscribers)-1]
			close(ch)
			return
		}
	}
}

// Remote account cache

// SetRemoteAccounts replaces the cached remote account list
func (s *SQLiteStore) SetRemoteAccounts(accounts []*models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "begin transaction", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec("DELETE FROM remote_accounts"); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "clear remote accounts", Err: err}
	}

	now := time.Now()
	for _, acc := range accounts {
		if acc == nil {
			continue
		}
		_, err := tx.Exec(`
			INSERT INTO remote_accounts (id, type, email, tier, active, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, acc.ID, acc.Type, acc.Email, acc.Tier, acc.Active, now)
		if err != nil {
			return &errors.ErrDatabaseQuery{Operation: "insert remote account", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "commit remote accounts", Err: err}
	}

	return s.settings.SetTime(SettingRemoteSyncedAt, now)
}

// GetRemoteAccounts returns the cached remote account list and when it was
// last synced. ok is false until the first successful sync.
func (s *SQLiteStore) GetRemoteAccounts() ([]*models.Account, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	syncedAt, synced := s.settings.GetTime(SettingRemoteSyncedAt)
	if !synced {
		return nil, time.Time{}, false
	}

	rows, err := s.db.Query(`
		SELECT id, type, email, tier, active
		FROM remote_accounts ORDER BY id
	`)
	if err != nil {
		return nil, time.Time{}, false
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var acc models.Account

		if err := rows.Scan(&acc.ID, &acc.Type, &acc.Email, &acc.Tier, &acc.Active); err != nil {
			continue
		}
		acc.Source = models.SourceRemote

		accounts = append(accounts, &acc)
	}

	return accounts, syncedAt, true
}

// Audit trail

// SaveAuditEvent persists an audit event
func (s *SQLiteStore) SaveAuditEvent(event *logging.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event == nil {
		return nil
	}

	var detailsJSON interface{}
	if len(event.Details) > 0 {
		data, err := json.Marshal(event.Details)
		if err != nil {
			return &errors.ErrDatabaseQuery{Operation: "encode audit details", Err: err}
		}
		detailsJSON = string(data)
	}

	_, err := s.db.Exec(`
		INSERT INTO audit_events (id, timestamp, event_type, severity, user_id, ip_address, action, resource, status, details, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.Timestamp, event.EventType, event.Severity, event.UserID, event.IPAddress, event.Action, event.Resource, event.Status, detailsJSON, event.ErrorMessage)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "save audit event", Err: err}
	}

	return nil
}

// ListAuditEvents returns the most recent audit events, newest first
func (s *SQLiteStore) ListAuditEvents(limit int) []*logging.AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT id, timestamp, event_type, severity, user_id, ip_address, action, resource, status, details, error_message
		FROM audit_events ORDER BY timestamp DESC LIMIT ?
	`, limit)
	if err != nil {
		return []*logging.AuditEvent{}
	}
	defer rows.Close()

	var events []*logging.AuditEvent
	for rows.Next() {
		var event logging.AuditEvent
		var detailsJSON sql.NullString

		if err := rows.Scan(&event.ID, &event.Timestamp, &event.EventType, &event.Severity, &event.UserID, &event.IPAddress, &event.Action, &event.Resource, &event.Status, &detailsJSON, &event.ErrorMessage); err != nil {
			continue
		}

		if detailsJSON.Valid && detailsJSON.String != "" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &event.Details); err != nil {
				s.logger.Warn("failed to parse audit details", "error", err.Error(), "event_id", event.ID)
			}
		}

		events = append(events, &event)
	}

	return events
}

// Clear removes all data from the store
func (s *SQLiteStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM quota_snapshots"); err != nil {
		s.logger.Error("failed to clear snapshots", "error", err.Error())
	}
	if _, err := s.db.Exec("DELETE FROM remote_accounts"); err != nil {
		s.logger.Error("failed to clear remote accounts", "error", err.Error())
	}
	if _, err := s.db.Exec("DELETE FROM audit_events"); err != nil {
		s.logger.Error("failed to clear audit events", "error", err.Error())
	}
	if err := s.settings.Delete(SettingRemoteSyncedAt); err != nil {
		s.logger.Error("failed to clear remote sync marker", "error", err.Error())
	}
}

// Stats returns statistics about the store
func (s *SQLiteStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snapshotCount, remoteCount, auditCount int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM quota_snapshots").Scan(&snapshotCount); err != nil {
		s.logger.Error("failed to count snapshots", "error", err.Error())
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM remote_accounts").Scan(&remoteCount); err != nil {
		s.logger.Error("failed to count remote accounts", "error", err.Error())
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM audit_events").Scan(&auditCount); err != nil {
		s.logger.Error("failed to count audit events", "error", err.Error())
	}

	return StoreStats{
		SnapshotCount:      snapshotCount,
		RemoteAccountCount: remoteCount,
		AuditEventCount:    auditCount,
	}
}

// Ensure SQLiteStore implements the Store interface
var _ Store = (*SQLiteStore)(nil)
