package store

import (
	"sort"
	"sync"
	"time"

	"github.com/proxydeck/proxydeck/internal/logging"
	"github.com/proxydeck/proxydeck/internal/models"
)

// MemoryStore provides an in-memory store for quota snapshots, the remote
// account cache and the audit trail. It is thread-safe and supports
// concurrent access.
type MemoryStore struct {
	mu             sync.RWMutex
	snapshots      map[string]*models.QuotaSnapshot // key: accountID
	remoteAccounts []*models.Account
	remoteSyncedAt time.Time
	remoteSynced   bool
	auditEvents    []*logging.AuditEvent
	settings       SettingsStore

	// Subscribers for snapshot changes
	subscribers []chan models.SnapshotEvent
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]*models.QuotaSnapshot),
		settings:  NewMemorySettingsStore(),
	}
}

// Snapshot operations

// GetSnapshot retrieves the cached snapshot for an account
func (s *MemoryStore) GetSnapshot(accountID string) (*models.QuotaSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[accountID]
	if !ok {
		return nil, false
	}
	return snap, true
}

// PutSnapshot stores a snapshot, replacing any previous one wholesale
func (s *MemoryStore) PutSnapshot(snap *models.QuotaSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap == nil {
		return nil
	}
	s.snapshots[snap.AccountID] = snap
	s.notifySnapshot(snap)
	return nil
}

// MarkSnapshotError flags the cached snapshot as failed while keeping the
// prior model data, or records a bare error row when nothing was cached.
func (s *MemoryStore) MarkSnapshotError(accountID string, at time.Time, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &models.QuotaSnapshot{
		AccountID:   accountID,
		Models:      make(map[string]models.ModelQuota),
		FetchedAt:   at,
		FetchStatus: models.FetchStatusError,
		Error:       message,
	}
	if prior, ok := s.snapshots[accountID]; ok {
		snap.Models = prior.Clone().Models
		snap.Tier = prior.Tier
		snap.Forbidden = prior.Forbidden
	}
	s.snapshots[accountID] = snap
	s.notifySnapshot(snap)
	return nil
}

// DeleteSnapshot removes the cached snapshot for an account
func (s *MemoryStore) DeleteSnapshot(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snapshots[accountID]; !ok {
		return false
	}
	delete(s.snapshots, accountID)
	return true
}

// ListSnapshots returns all cached snapshots ordered by account ID
func (s *MemoryStore) ListSnapshots() []*models.QuotaSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.QuotaSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		result = append(result, snap)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AccountID < result[j].AccountID
	})
	return result
}

// Remote account cache

// SetRemoteAccounts replaces the cached remote account list
func (s *MemoryStore) SetRemoteAccounts(accounts []*models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remoteAccounts = make([]*models.Account, len(accounts))
	copy(s.remoteAccounts, accounts)
	s.remoteSyncedAt = time.Now()
	s.remoteSynced = true
	return nil
}

// GetRemoteAccounts returns the cached remote account list and when it was
// last synced. ok is false until the first successful sync.
func (s *MemoryStore) GetRemoteAccounts() ([]*models.Account, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.remoteSynced {
		return nil, time.Time{}, false
	}
	result := make([]*models.Account, len(s.remoteAccounts))
	copy(result, s.remoteAccounts)
	return result, s.remoteSyncedAt, true
}

// Audit trail

// SaveAuditEvent appends an event to the audit trail
func (s *MemoryStore) SaveAuditEvent(event *logging.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event == nil {
		return nil
	}
	s.auditEvents = append(s.auditEvents, event)
	return nil
}

// ListAuditEvents returns the most recent audit events, newest first
func (s *MemoryStore) ListAuditEvents(limit int) []*logging.AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.auditEvents) {
		limit = len(s.auditEvents)
	}
	result := make([]*logging.AuditEvent, 0, limit)
	for i := len(s.auditEvents) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.auditEvents[i])
	}
	return result
}

// Subscription

// Subscribe creates a subscription for snapshot changes
func (s *MemoryStore) Subscribe() chan models.SnapshotEvent {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan models.SnapshotEvent, 10)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscription
func (s *MemoryStore) Unsubscribe(ch chan models.SnapshotEvent) {
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

// notifySnapshot sends events to subscribers when a snapshot changes
func (s *MemoryStore) notifySnapshot(snap *models.QuotaSnapshot) {
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

// Clear removes all data from the store
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = make(map[string]*models.QuotaSnapshot)
	s.remoteAccounts = nil
	s.remoteSyncedAt = time.Time{}
	s.remoteSynced = false
	s.auditEvents = nil
	if settings, ok := s.settings.(*MemorySettingsStore); ok {
		settings.Clear()
	}
}

// Stats returns statistics about the store
func (s *MemoryStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StoreStats{
		SnapshotCount:      len(s.snapshots),
		RemoteAccountCount: len(s.remoteAccounts),
		AuditEventCount:    len(s.auditEvents),
	}
}

// Settings returns the settings store.
func (s *MemoryStore) Settings() SettingsStore {
	return s.settings
}

// Close implements Store Close (no-op for memory store).
func (s *MemoryStore) Close() error {
	return nil
}

// StoreStats contains statistics about the store
type StoreStats struct {
	SnapshotCount      int
	RemoteAccountCount int
	AuditEventCount    int
}

// Ensure MemoryStore implements the Store interface
var _ Store = (*MemoryStore)(nil)

// Store defines the interface for durable console state
type Store interface {
	// Snapshot operations
	GetSnapshot(accountID string) (*models.QuotaSnapshot, bool)
	PutSnapshot(snap *models.QuotaSnapshot) error
	MarkSnapshotError(accountID string, at time.Time, message string) error
	DeleteSnapshot(accountID string) bool
	ListSnapshots() []*models.QuotaSnapshot

	// Remote account cache
	SetRemoteAccounts(accounts []*models.Account) error
	GetRemoteAccounts() ([]*models.Account, time.Time, bool)

	// Audit trail
	SaveAuditEvent(event *logging.AuditEvent) error
	ListAuditEvents(limit int) []*logging.AuditEvent

	// Subscription
	Subscribe() chan models.SnapshotEvent
	Unsubscribe(ch chan models.SnapshotEvent)

	// Management
	Clear()
	Stats() StoreStats
	Settings() SettingsStore
	Close() error
}
