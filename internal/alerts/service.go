// Package alerts evaluates quota snapshots and proxy liveness into operator
// notifications, with per-key deduplication, a token-bucket throttle and a
// store-backed mute switch that survives restarts.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/proxydeck/proxydeck/internal/config"
	"github.com/proxydeck/proxydeck/internal/logging"
	"github.com/proxydeck/proxydeck/internal/models"
	"github.com/proxydeck/proxydeck/internal/store"
)

// Notifier delivers formatted alert text to the operator.
type Notifier interface {
	Send(text string) error
	Enabled() bool
}

// StatusFunc reports the supervised proxy's current state.
type StatusFunc func() *models.ServiceStatus

// Service manages alerts and notifications
type Service struct {
	cfg      config.AlertsConfig
	store    store.Store
	notifier Notifier
	statusFn StatusFunc
	logger   *logging.Logger

	dedup     *DedupStore
	throttler *Throttler
	digest    *DigestScheduler

	pollInterval time.Duration

	// State
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	lastUp bool
	seenUp bool
}

// ServiceOption is a functional option for Service
type ServiceOption func(*Service)

// WithDedupWindow sets the deduplication window
func WithDedupWindow(window time.Duration) ServiceOption {
	return func(s *Service) {
		s.dedup = NewDedupStore(window)
	}
}

// WithPollInterval sets how often the proxy status is polled
func WithPollInterval(interval time.Duration) ServiceOption {
	return func(s *Service) {
		s.pollInterval = interval
	}
}

// NewService creates a new alert service
func NewService(cfg config.AlertsConfig, st store.Store, notifier Notifier, statusFn StatusFunc, logger *logging.Logger, opts ...ServiceOption) *Service {
	if cfg.Thresholds == nil {
		cfg.Thresholds = []float64{85.0, 95.0}
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = 30 * time.Minute
	}
	if cfg.DailyDigestTime == "" {
		cfg.DailyDigestTime = "09:00"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 25 * time.Second
	}

	s := &Service{
		cfg:          cfg,
		store:        st,
		notifier:     notifier,
		statusFn:     statusFn,
		logger:       logger,
		throttler:    NewThrottler(cfg.RateLimitPerMinute, cfg.RateLimitPerMinute),
		pollInterval: 30 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.dedup == nil {
		s.dedup = NewDedupStore(cfg.Debounce)
	}

	s.digest = NewDigestScheduler(cfg.Timezone, cfg.DailyDigestTime, s.buildDigest, s.deliverDigest)

	return s
}

// Start starts the alert service
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || !s.cfg.Enabled {
		return
	}

	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())

	// Subscribe before the goroutine starts so no event published after
	// Start returns is missed.
	ch := s.store.Subscribe()

	s.wg.Add(3)
	go s.watchSnapshots(ch)
	go s.pollService()
	go s.cleanupLoop()

	if s.cfg.DailyDigestEnabled {
		s.digest.Start()
	}
	s.logger.Info("alert service started", "thresholds", fmt.Sprintf("%v", s.cfg.Thresholds))
}

// Stop gracefully stops the alert service
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.digest != nil {
		s.digest.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(s.cfg.ShutdownTimeout):
		return fmt.Errorf("timeout waiting for alert service to stop")
	}
}

// IsRunning returns whether the service is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Evaluate turns one stored snapshot into the alerts it warrants.
func (s *Service) Evaluate(snap *models.QuotaSnapshot) []Alert {
	if snap == nil {
		return nil
	}

	now := time.Now()

	if snap.FetchStatus == models.FetchStatusError {
		return []Alert{{
			ID:        generateAlertID(),
			AccountID: snap.AccountID,
			Type:      AlertTypeRefreshFailed,
			Severity:  SeverityWarning,
			Message:   fmt.Sprintf("Quota refresh failed: %s", snap.Error),
			Timestamp: now,
		}}
	}

	var alerts []Alert

	worstModel, worst := worstUsage(snap)
	var exceeded, maxThreshold float64
	for _, threshold := range s.cfg.Thresholds {
		if threshold > maxThreshold {
			maxThreshold = threshold
		}
		if worst >= threshold && threshold > exceeded {
			exceeded = threshold
		}
	}

	if exceeded > 0 {
		severity := SeverityWarning
		if worst >= maxThreshold {
			severity = SeverityCritical
		}
		alerts = append(alerts, Alert{
			ID:        generateAlertID(),
			AccountID: snap.AccountID,
			Type:      AlertTypeThreshold,
			Severity:  severity,
			Message:   fmt.Sprintf("Quota usage %.1f%% on %s (threshold %.1f%%)", worst, worstModel, exceeded),
			Threshold: exceeded,
			Current:   worst,
			Timestamp: now,
			Metadata:  map[string]interface{}{"model": worstModel, "tier": string(snap.Tier)},
		})
	}

	if worst >= 100 {
		alerts = append(alerts, Alert{
			ID:        generateAlertID(),
			AccountID: snap.AccountID,
			Type:      AlertTypeExhausted,
			Severity:  SeverityCritical,
			Message:   fmt.Sprintf("Quota exhausted on %s", worstModel),
			Current:   worst,
			Timestamp: now,
			Metadata:  map[string]interface{}{"model": worstModel},
		})
	}

	return alerts
}

// Deliver pushes one alert through mute, dedup and throttle to the notifier.
func (s *Service) Deliver(alert Alert) error {
	if !s.cfg.Enabled {
		return nil
	}
	if s.IsMuted() {
		s.logger.Debug("alert muted", "type", string(alert.Type), "account", alert.AccountID)
		return nil
	}

	key := alert.AlertKey()
	if s.dedup.IsDuplicate(key) {
		return nil
	}
	if !s.throttler.Allow() {
		s.logger.Warn("alert dropped by rate limit",
			"type", string(alert.Type),
			"retry_after", s.throttler.GetRetryAfter().String())
		return nil
	}

	if s.notifier == nil || !s.notifier.Enabled() {
		return nil
	}
	if err := s.notifier.Send(FormatAlert(alert)); err != nil {
		s.logger.Warn("alert delivery failed", "type", string(alert.Type), "error", err.Error())
		return err
	}
	s.dedup.Record(key)
	return nil
}

// MuteAlerts mutes alerts until now+duration. The deadline is stored in
// settings so it survives restarts.
func (s *Service) MuteAlerts(duration time.Duration) error {
	until := time.Now().Add(duration)
	return s.store.Settings().SetTime(store.SettingAlertsMutedUntil, until)
}

// UnmuteAlerts unmutes alerts
func (s *Service) UnmuteAlerts() error {
	return s.store.Settings().Delete(store.SettingAlertsMutedUntil)
}

// IsMuted returns whether alerts are muted
func (s *Service) IsMuted() bool {
	until, ok := s.store.Settings().GetTime(store.SettingAlertsMutedUntil)
	if !ok {
		return false
	}
	return time.Now().Before(until)
}

// MuteRemaining returns the remaining mute duration
func (s *Service) MuteRemaining() time.Duration {
	until, ok := s.store.Settings().GetTime(store.SettingAlertsMutedUntil)
	if !ok {
		return 0
	}
	remaining := time.Until(until)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SendDailyDigest sends the daily digest immediately, regardless of schedule.
func (s *Service) SendDailyDigest() error {
	digest, err := s.buildDigest()
	if err != nil {
		return err
	}
	return s.deliverDigest(digest)
}

// watchSnapshots evaluates every stored snapshot change.
func (s *Service) watchSnapshots(ch chan models.SnapshotEvent) {
	defer s.wg.Done()
	defer s.store.Unsubscribe(ch)

	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			for _, alert := range s.Evaluate(event.Snapshot) {
				_ = s.Deliver(alert)
			}
		}
	}
}

// pollService raises an alert when the proxy transitions to not running. The
// first poll only establishes the baseline.
func (s *Service) pollService() {
	defer s.wg.Done()

	if s.statusFn == nil {
		return
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.observeService()
		}
	}
}

func (s *Service) observeService() {
	status := s.statusFn()
	up := status != nil && status.Running

	s.mu.Lock()
	first := !s.seenUp
	wasUp := s.lastUp
	s.seenUp = true
	s.lastUp = up
	s.mu.Unlock()

	if first {
		return
	}

	switch {
	case wasUp && !up:
		_ = s.Deliver(Alert{
			ID:        generateAlertID(),
			Type:      AlertTypeServiceDown,
			Severity:  SeverityCritical,
			Message:   "Proxy service is not running",
			Timestamp: time.Now(),
		})
	case !wasUp && up:
		_ = s.Deliver(Alert{
			ID:        generateAlertID(),
			Type:      AlertTypeServiceDown,
			Severity:  SeverityInfo,
			Message:   "Proxy service is running again",
			Timestamp: time.Now(),
		})
	}
}

// cleanupLoop runs periodic cleanup tasks
func (s *Service) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.dedup.Cleanup()
		}
	}
}

// buildDigest summarizes the stored snapshots.
func (s *Service) buildDigest() (*DigestData, error) {
	snapshots := s.store.ListSnapshots()

	digest := &DigestData{
		Date:          time.Now(),
		TotalAccounts: len(snapshots),
	}
	usages := make([]AccountUsage, 0, len(snapshots))
	for _, snap := range snapshots {
		if snap.FetchStatus == models.FetchStatusError {
			digest.ErrorAccounts++
		}
		model, worst := worstUsage(snap)
		if worst >= 100 {
			digest.ExhaustedAccounts++
		}
		usages = append(usages, AccountUsage{
			AccountID:   snap.AccountID,
			Provider:    providerFromAccountID(snap.AccountID),
			UsedPercent: worst,
			Model:       model,
		})
	}
	digest.TopAccounts = topUsages(usages, 5)
	return digest, nil
}

// deliverDigest sends the digest once per day; the last sent date is stored
// in settings so a restart does not resend it.
func (s *Service) deliverDigest(digest *DigestData) error {
	if s.notifier == nil || !s.notifier.Enabled() {
		return nil
	}

	today := digest.Date.Format("2006-01-02")
	if last, ok := s.store.Settings().Get(store.SettingLastDigestDate); ok && last == today {
		return nil
	}

	if err := s.notifier.Send(FormatDigest(digest)); err != nil {
		s.logger.Warn("digest delivery failed", "error", err.Error())
		return err
	}
	if err := s.store.Settings().Set(store.SettingLastDigestDate, today); err != nil {
		s.logger.Warn("failed to record digest date", "error", err.Error())
	}
	return nil
}

// worstUsage returns the model with the highest usage in a snapshot. Ties go
// to the alphabetically first model so messages are stable.
func worstUsage(snap *models.QuotaSnapshot) (string, float64) {
	name := ""
	worst := 0.0
	for _, model := range snap.ModelNames() {
		if quota := snap.Models[model]; name == "" || quota.UsedPercent > worst {
			name = model
			worst = quota.UsedPercent
		}
	}
	return name, worst
}

// providerFromAccountID recovers the provider prefix from a "type_email" id.
func providerFromAccountID(id string) string {
	for i := 0; i < len(id); i++ {
		if id[i] == '_' {
			return id[:i]
		}
	}
	return "unknown"
}

// generateAlertID generates a unique alert ID
func generateAlertID() string {
	return fmt.Sprintf("alert-%d", time.Now().UnixNano())
}

// GetDedupSize returns the current dedup store size
func (s *Service) GetDedupSize() int {
	return s.dedup.Size()
}

// GetThrottlerTokens returns the current token count
func (s *Service) GetThrottlerTokens() float64 {
	return s.throttler.GetTokens()
}
