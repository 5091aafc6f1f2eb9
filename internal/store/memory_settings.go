package store

import (
	"sync"
	"time"
)

// MemorySettingsStore implements SettingsStore using an in-memory map.
type MemorySettingsStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemorySettingsStore creates a new in-memory settings store.
func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{
		values: make(map[string]string),
	}
}

// Get retrieves a setting value.
func (m *MemorySettingsStore) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	return value, ok
}

// Set sets a setting value.
func (m *MemorySettingsStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

// Delete removes a setting.
func (m *MemorySettingsStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

// GetBool retrieves a bool setting.
func (m *MemorySettingsStore) GetBool(key string, defaultVal bool) bool {
	value, ok := m.Get(key)
	if !ok {
		return defaultVal
	}
	return value == "true" || value == "1" || value == "yes"
}

// SetBool sets a bool setting.
func (m *MemorySettingsStore) SetBool(key string, value bool) error {
	if value {
		return m.Set(key, "true")
	}
	return m.Set(key, "false")
}

// GetTime retrieves a timestamp setting.
func (m *MemorySettingsStore) GetTime(key string) (time.Time, bool) {
	value, ok := m.Get(key)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetTime sets a timestamp setting.
func (m *MemorySettingsStore) SetTime(key string, value time.Time) error {
	return m.Set(key, value.UTC().Format(time.RFC3339Nano))
}

// Clear removes all settings.
func (m *MemorySettingsStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]string)
}

var _ SettingsStore = (*MemorySettingsStore)(nil)
