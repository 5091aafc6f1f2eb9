package models

import (
	"fmt"
	"sort"
	"time"
)

// FetchStatus represents the terminal state of the last quota refresh.
type FetchStatus string

const (
	FetchStatusOK    FetchStatus = "ok"
	FetchStatusStale FetchStatus = "stale"
	FetchStatusError FetchStatus = "error"
)

// ModelQuota represents quota usage for a single model.
type ModelQuota struct {
	UsedPercent float64   `json:"used_percent"`
	ResetAt     time.Time `json:"reset_at,omitempty"`
}

// QuotaSnapshot represents the quota state of one account at one fetch.
// A snapshot is always replaced wholesale, never merged field by field.
type QuotaSnapshot struct {
	AccountID   string                `json:"account_id"`
	Models      map[string]ModelQuota `json:"models"`
	Tier        Tier                  `json:"tier,omitempty"`
	Forbidden   bool                  `json:"forbidden,omitempty"`
	FetchedAt   time.Time             `json:"fetched_at"`
	FetchStatus FetchStatus           `json:"fetch_status"`
	Error       string                `json:"error,omitempty"`
}

// NewQuotaSnapshot creates an empty ok snapshot for an account.
func NewQuotaSnapshot(accountID string) *QuotaSnapshot {
	return &QuotaSnapshot{
		AccountID:   accountID,
		Models:      make(map[string]ModelQuota),
		FetchedAt:   time.Now().UTC(),
		FetchStatus: FetchStatusOK,
	}
}

// Validate checks if the snapshot is valid.
func (q *QuotaSnapshot) Validate() error {
	if q.AccountID == "" {
		return fmt.Errorf("account ID is required")
	}
	switch q.FetchStatus {
	case FetchStatusOK, FetchStatusStale, FetchStatusError:
	default:
		return fmt.Errorf("unknown fetch status %q", q.FetchStatus)
	}
	for name, m := range q.Models {
		if m.UsedPercent < 0 || m.UsedPercent > 100 {
			return fmt.Errorf("model %s used percent out of range: %f", name, m.UsedPercent)
		}
	}
	return nil
}

// Clone returns a deep copy so store readers never share the models map.
func (q *QuotaSnapshot) Clone() *QuotaSnapshot {
	if q == nil {
		return nil
	}
	clone := *q
	clone.Models = make(map[string]ModelQuota, len(q.Models))
	for name, m := range q.Models {
		clone.Models[name] = m
	}
	return &clone
}

// ModelNames returns the model names sorted for stable output.
func (q *QuotaSnapshot) ModelNames() []string {
	names := make([]string, 0, len(q.Models))
	for name := range q.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MaxUsedPercent returns the worst usage across models, 0 when empty.
func (q *QuotaSnapshot) MaxUsedPercent() float64 {
	max := 0.0
	for _, m := range q.Models {
		if m.UsedPercent > max {
			max = m.UsedPercent
		}
	}
	return max
}

// EffectiveStatus reports the status a reader should display. A committed ok
// snapshot older than staleAfter reads as stale; the stored status itself is
// only ever ok or error.
func (q *QuotaSnapshot) EffectiveStatus(staleAfter time.Duration, now time.Time) FetchStatus {
	if q.FetchStatus == FetchStatusOK && staleAfter > 0 && now.Sub(q.FetchedAt) > staleAfter {
		return FetchStatusStale
	}
	return q.FetchStatus
}

// Age returns how long ago the snapshot was fetched.
func (q *QuotaSnapshot) Age(now time.Time) time.Duration {
	if q.FetchedAt.IsZero() {
		return 0
	}
	return now.Sub(q.FetchedAt)
}

// SnapshotEvent notifies subscribers that a stored snapshot changed.
type SnapshotEvent struct {
	AccountID string         `json:"account_id"`
	Snapshot  *QuotaSnapshot `json:"snapshot"`
	Timestamp time.Time      `json:"timestamp"`
}

// QuotaSnapshotSlice is a slice of snapshots with helper methods.
type QuotaSnapshotSlice []QuotaSnapshot

// FindByAccountID returns a snapshot by account ID.
func (qs QuotaSnapshotSlice) FindByAccountID(id string) (*QuotaSnapshot, bool) {
	for i := range qs {
		if qs[i].AccountID == id {
			return &qs[i], true
		}
	}
	return nil, false
}

// FilterByStatus returns snapshots with the given stored status.
func (qs QuotaSnapshotSlice) FilterByStatus(status FetchStatus) QuotaSnapshotSlice {
	var result QuotaSnapshotSlice
	for _, q := range qs {
		if q.FetchStatus == status {
			result = append(result, q)
		}
	}
	return result
}

// SortByAccountID sorts snapshots by account id for stable listings.
func (qs QuotaSnapshotSlice) SortByAccountID() QuotaSnapshotSlice {
	result := make(QuotaSnapshotSlice, len(qs))
	copy(result, qs)

	sort.Slice(result, func(i, j int) bool {
		return result[i].AccountID < result[j].AccountID
	})

	return result
}
