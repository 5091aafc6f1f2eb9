package metrics

import (
	"context"
	"strings"

	"github.com/proxydeck/proxydeck/internal/logging"
	"github.com/proxydeck/proxydeck/internal/models"
	"github.com/proxydeck/proxydeck/internal/store"
)

// Watcher mirrors stored quota snapshots into the usage gauges. It subscribes
// to store change events so the quota path itself stays metrics-free.
type Watcher struct {
	metrics *Metrics
	store   store.Store
	logger  *logging.Logger
}

// NewWatcher builds a watcher over the given store.
func NewWatcher(m *Metrics, st store.Store, logger *logging.Logger) *Watcher {
	return &Watcher{metrics: m, store: st, logger: logger}
}

// Run consumes snapshot events until the context ends. Call it in its own
// goroutine; Prime first if gauges should reflect snapshots loaded at boot.
func (w *Watcher) Run(ctx context.Context) {
	ch := w.store.Subscribe()
	defer w.store.Unsubscribe(ch)

	w.logger.Debug("metrics watcher started")
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			w.apply(event)
		}
	}
}

// Prime publishes gauges for every snapshot already in the store.
func (w *Watcher) Prime() {
	for _, snap := range w.store.ListSnapshots() {
		w.apply(models.SnapshotEvent{AccountID: snap.AccountID, Snapshot: snap})
	}
}

func (w *Watcher) apply(event models.SnapshotEvent) {
	snap := event.Snapshot
	if snap == nil {
		w.metrics.ForgetAccount(event.AccountID)
		return
	}

	provider := providerFromAccountID(event.AccountID)

	// Replace the account's series wholesale so models that disappeared from
	// the snapshot do not linger as stale gauges.
	w.metrics.ForgetAccount(event.AccountID)
	for name, quota := range snap.Models {
		w.metrics.SetQuotaUsedPercent(event.AccountID, provider, name, quota.UsedPercent)
	}
}

// providerFromAccountID recovers the provider prefix from a "type_email" id.
func providerFromAccountID(id string) string {
	if i := strings.Index(id, "_"); i > 0 {
		return id[:i]
	}
	return "unknown"
}
