package alerts

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxydeck/proxydeck/internal/config"
	"github.com/proxydeck/proxydeck/internal/logging"
	"github.com/proxydeck/proxydeck/internal/models"
	"github.com/proxydeck/proxydeck/internal/store"
)

// stubNotifier records delivered texts
type stubNotifier struct {
	mu       sync.Mutex
	messages []string
	sendErr  error
	disabled bool
}

func (n *stubNotifier) Send(text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return n.sendErr
	}
	n.messages = append(n.messages, text)
	return nil
}

func (n *stubNotifier) Enabled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.disabled
}

func (n *stubNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	result := make([]string, len(n.messages))
	copy(result, n.messages)
	return result
}

func (n *stubNotifier) setSendErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sendErr = err
}

// proxyState fakes the supervised proxy for status polling
type proxyState struct {
	mu      sync.Mutex
	running bool
}

func (p *proxyState) set(running bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = running
}

func (p *proxyState) status() *models.ServiceStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &models.ServiceStatus{Running: p.running}
}

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.WithOutput(io.Discard))
}

func newTestService(t *testing.T, tweak func(*config.AlertsConfig), opts ...ServiceOption) (*Service, *stubNotifier, *store.MemoryStore) {
	t.Helper()

	cfg := config.AlertsConfig{
		Enabled:         true,
		Thresholds:      []float64{85.0, 95.0},
		Debounce:        30 * time.Minute,
		DailyDigestTime: "09:00",
		Timezone:        "UTC",
		ShutdownTimeout: 5 * time.Second,
	}
	if tweak != nil {
		tweak(&cfg)
	}

	notifier := &stubNotifier{}
	st := store.NewMemoryStore()
	return NewService(cfg, st, notifier, nil, testLogger(), opts...), notifier, st
}

func usageSnapshot(accountID string, usage map[string]float64) *models.QuotaSnapshot {
	snap := models.NewQuotaSnapshot(accountID)
	for name, pct := range usage {
		snap.Models[name] = models.ModelQuota{UsedPercent: pct}
	}
	return snap
}

func TestNewServiceDefaults(t *testing.T) {
	notifier := &stubNotifier{}
	st := store.NewMemoryStore()

	service := NewService(config.AlertsConfig{Enabled: true}, st, notifier, nil, testLogger())

	assert.Equal(t, []float64{85.0, 95.0}, service.cfg.Thresholds)
	assert.Equal(t, 30*time.Minute, service.cfg.Debounce)
	assert.Equal(t, "09:00", service.cfg.DailyDigestTime)
	assert.Equal(t, "UTC", service.cfg.Timezone)
	assert.NotNil(t, service.dedup)
	assert.NotNil(t, service.throttler)
	assert.NotNil(t, service.digest)
}

func TestServiceStartStop(t *testing.T) {
	service, _, _ := newTestService(t, nil)

	service.Start()
	assert.True(t, service.IsRunning())

	require.NoError(t, service.Stop())
	assert.False(t, service.IsRunning())
}

func TestServiceStartDisabled(t *testing.T) {
	service, _, _ := newTestService(t, func(cfg *config.AlertsConfig) {
		cfg.Enabled = false
	})

	service.Start()
	assert.False(t, service.IsRunning())
}

func TestEvaluateBelowThreshold(t *testing.T) {
	service, _, _ := newTestService(t, nil)

	alerts := service.Evaluate(usageSnapshot("antigravity_a@example.com", map[string]float64{
		"gemini-2.5-pro": 50.0,
	}))

	assert.Empty(t, alerts)
}

func TestEvaluateThresholdWarning(t *testing.T) {
	service, _, _ := newTestService(t, nil)

	alerts := service.Evaluate(usageSnapshot("antigravity_a@example.com", map[string]float64{
		"gemini-2.5-pro": 90.0,
	}))

	require.Len(t, alerts, 1)
	assert.Equal(t, AlertTypeThreshold, alerts[0].Type)
	assert.Equal(t, SeverityWarning, alerts[0].Severity)
	assert.Equal(t, 85.0, alerts[0].Threshold)
	assert.Equal(t, 90.0, alerts[0].Current)
	assert.Contains(t, alerts[0].Message, "gemini-2.5-pro")
	assert.Equal(t, "antigravity_a@example.com", alerts[0].AccountID)
}

func TestEvaluateThresholdCritical(t *testing.T) {
	service, _, _ := newTestService(t, nil)

	alerts := service.Evaluate(usageSnapshot("antigravity_a@example.com", map[string]float64{
		"gemini-2.5-pro": 97.0,
	}))

	require.Len(t, alerts, 1)
	assert.Equal(t, AlertTypeThreshold, alerts[0].Type)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
	assert.Equal(t, 95.0, alerts[0].Threshold)
}

func TestEvaluateExhausted(t *testing.T) {
	service, _, _ := newTestService(t, nil)

	alerts := service.Evaluate(usageSnapshot("antigravity_a@example.com", map[string]float64{
		"gemini-2.5-pro": 100.0,
	}))

	require.Len(t, alerts, 2)
	assert.Equal(t, AlertTypeThreshold, alerts[0].Type)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
	assert.Equal(t, AlertTypeExhausted, alerts[1].Type)
	assert.Equal(t, SeverityCritical, alerts[1].Severity)
}

func TestEvaluateNamesWorstModel(t *testing.T) {
	service, _, _ := newTestService(t, nil)

	alerts := service.Evaluate(usageSnapshot("antigravity_a@example.com", map[string]float64{
		"gemini-2.5-flash": 20.0,
		"gemini-2.5-pro":   91.0,
	}))

	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Message, "gemini-2.5-pro")
	assert.Equal(t, 91.0, alerts[0].Current)
}

func TestEvaluateRefreshFailed(t *testing.T) {
	service, _, _ := newTestService(t, nil)

	snap := models.NewQuotaSnapshot("antigravity_a@example.com")
	snap.FetchStatus = models.FetchStatusError
	snap.Error = "token refresh rejected"

	alerts := service.Evaluate(snap)

	require.Len(t, alerts, 1)
	assert.Equal(t, AlertTypeRefreshFailed, alerts[0].Type)
	assert.Equal(t, SeverityWarning, alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "token refresh rejected")
}

func TestEvaluateNilSnapshot(t *testing.T) {
	service, _, _ := newTestService(t, nil)
	assert.Nil(t, service.Evaluate(nil))
}

func TestDeliverSendsAndRecords(t *testing.T) {
	service, notifier, _ := newTestService(t, nil)

	alerts := service.Evaluate(usageSnapshot("antigravity_a@example.com", map[string]float64{
		"gemini-2.5-pro": 90.0,
	}))
	require.Len(t, alerts, 1)
	require.NoError(t, service.Deliver(alerts[0]))

	messages := notifier.sent()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "Quota Threshold")
	assert.Contains(t, messages[0], "antigravity_a@example.com")
	assert.Equal(t, 1, service.GetDedupSize())
}

func TestDeliverDuplicateDropped(t *testing.T) {
	service, notifier, _ := newTestService(t, nil)

	alert := Alert{
		ID:        "test-1",
		AccountID: "acc1",
		Type:      AlertTypeThreshold,
		Severity:  SeverityWarning,
		Message:   "Test alert",
		Timestamp: time.Now(),
	}

	require.NoError(t, service.Deliver(alert))
	require.NoError(t, service.Deliver(alert))

	assert.Len(t, notifier.sent(), 1)
	assert.Equal(t, 1, service.GetDedupSize())
}

func TestDeliverMutedSkips(t *testing.T) {
	service, notifier, _ := newTestService(t, nil)

	require.NoError(t, service.MuteAlerts(time.Hour))

	alert := Alert{
		ID:        "test-1",
		AccountID: "acc1",
		Type:      AlertTypeThreshold,
		Severity:  SeverityWarning,
		Message:   "Test alert",
		Timestamp: time.Now(),
	}
	require.NoError(t, service.Deliver(alert))

	assert.Empty(t, notifier.sent())
	assert.Equal(t, 0, service.GetDedupSize())
}

func TestDeliverSendFailureNotRecorded(t *testing.T) {
	service, notifier, _ := newTestService(t, nil)
	notifier.setSendErr(errors.New("telegram unreachable"))

	alert := Alert{
		ID:        "test-1",
		AccountID: "acc1",
		Type:      AlertTypeThreshold,
		Severity:  SeverityWarning,
		Message:   "Test alert",
		Timestamp: time.Now(),
	}
	require.Error(t, service.Deliver(alert))
	assert.Equal(t, 0, service.GetDedupSize())

	// A later attempt is not blocked by dedup
	notifier.setSendErr(nil)
	require.NoError(t, service.Deliver(alert))
	assert.Len(t, notifier.sent(), 1)
	assert.Equal(t, 1, service.GetDedupSize())
}

func TestDeliverNotifierDisabled(t *testing.T) {
	service, notifier, _ := newTestService(t, nil)
	notifier.disabled = true

	alert := Alert{
		ID:        "test-1",
		AccountID: "acc1",
		Type:      AlertTypeThreshold,
		Severity:  SeverityWarning,
		Message:   "Test alert",
		Timestamp: time.Now(),
	}
	require.NoError(t, service.Deliver(alert))

	assert.Empty(t, notifier.sent())
}

func TestDeliverThrottled(t *testing.T) {
	service, notifier, _ := newTestService(t, func(cfg *config.AlertsConfig) {
		cfg.RateLimitPerMinute = 1
	})

	first := Alert{ID: "t-1", AccountID: "acc1", Type: AlertTypeThreshold, Severity: SeverityWarning, Message: "one", Timestamp: time.Now()}
	second := Alert{ID: "t-2", AccountID: "acc2", Type: AlertTypeThreshold, Severity: SeverityWarning, Message: "two", Timestamp: time.Now()}

	require.NoError(t, service.Deliver(first))
	require.NoError(t, service.Deliver(second))

	assert.Len(t, notifier.sent(), 1)
	assert.Equal(t, 1, service.GetDedupSize())
}

func TestDeliverServiceDisabled(t *testing.T) {
	service, notifier, _ := newTestService(t, func(cfg *config.AlertsConfig) {
		cfg.Enabled = false
	})

	alert := Alert{ID: "t-1", AccountID: "acc1", Type: AlertTypeThreshold, Severity: SeverityWarning, Message: "one", Timestamp: time.Now()}
	require.NoError(t, service.Deliver(alert))

	assert.Empty(t, notifier.sent())
}

func TestMuteUnmute(t *testing.T) {
	service, _, _ := newTestService(t, nil)

	assert.False(t, service.IsMuted())

	require.NoError(t, service.MuteAlerts(time.Hour))
	assert.True(t, service.IsMuted())
	remaining := service.MuteRemaining()
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, time.Hour)

	require.NoError(t, service.UnmuteAlerts())
	assert.False(t, service.IsMuted())
	assert.Equal(t, time.Duration(0), service.MuteRemaining())
}

func TestMuteExpires(t *testing.T) {
	service, _, _ := newTestService(t, nil)

	require.NoError(t, service.MuteAlerts(200*time.Millisecond))
	assert.True(t, service.IsMuted())

	require.Eventually(t, func() bool {
		return !service.IsMuted()
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, time.Duration(0), service.MuteRemaining())
}

func TestMuteSurvivesRestart(t *testing.T) {
	service, _, st := newTestService(t, nil)
	require.NoError(t, service.MuteAlerts(time.Hour))

	// A fresh service sharing the same store sees the mute
	replacement := NewService(config.AlertsConfig{Enabled: true}, st, &stubNotifier{}, nil, testLogger())
	assert.True(t, replacement.IsMuted())
}

func TestWatchSnapshotsDelivers(t *testing.T) {
	service, notifier, st := newTestService(t, nil)

	service.Start()
	defer func() {
		require.NoError(t, service.Stop())
	}()

	require.NoError(t, st.PutSnapshot(usageSnapshot("antigravity_a@example.com", map[string]float64{
		"gemini-2.5-pro": 92.0,
	})))

	require.Eventually(t, func() bool {
		return len(notifier.sent()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, notifier.sent()[0], "antigravity_a@example.com")
}

func TestWatchSnapshotsIgnoresHealthyUsage(t *testing.T) {
	service, notifier, st := newTestService(t, nil)

	service.Start()
	defer func() {
		require.NoError(t, service.Stop())
	}()

	require.NoError(t, st.PutSnapshot(usageSnapshot("antigravity_a@example.com", map[string]float64{
		"gemini-2.5-pro": 12.0,
	})))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, notifier.sent())
}

func TestObserveServiceTransitions(t *testing.T) {
	proxy := &proxyState{running: true}
	service, notifier, _ := newTestService(t, nil)
	service.statusFn = proxy.status

	// First observation only establishes the baseline
	service.observeService()
	assert.Empty(t, notifier.sent())

	proxy.set(false)
	service.observeService()
	messages := notifier.sent()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "not running")

	proxy.set(true)
	service.observeService()
	messages = notifier.sent()
	require.Len(t, messages, 2)
	assert.Contains(t, messages[1], "running again")
}

func TestObserveServiceBaselineDown(t *testing.T) {
	proxy := &proxyState{running: false}
	service, notifier, _ := newTestService(t, nil)
	service.statusFn = proxy.status

	// A proxy that is already down at startup does not alert
	service.observeService()
	service.observeService()
	assert.Empty(t, notifier.sent())
}

func TestPollServiceTicker(t *testing.T) {
	proxy := &proxyState{running: true}
	notifier := &stubNotifier{}
	st := store.NewMemoryStore()
	cfg := config.AlertsConfig{Enabled: true, ShutdownTimeout: 5 * time.Second}
	service := NewService(cfg, st, notifier, proxy.status, testLogger(), WithPollInterval(10*time.Millisecond))

	service.Start()
	defer func() {
		require.NoError(t, service.Stop())
	}()

	// Let the baseline poll land, then take the proxy down
	time.Sleep(50 * time.Millisecond)
	proxy.set(false)

	require.Eventually(t, func() bool {
		return len(notifier.sent()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, notifier.sent()[0], "not running")
}

func TestSendDailyDigest(t *testing.T) {
	service, notifier, st := newTestService(t, nil)

	require.NoError(t, st.PutSnapshot(usageSnapshot("antigravity_a@example.com", map[string]float64{
		"gemini-2.5-pro": 91.0,
	})))
	require.NoError(t, st.MarkSnapshotError("codex_b@example.com", time.Now(), "boom"))

	require.NoError(t, service.SendDailyDigest())

	messages := notifier.sent()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "Daily Digest")
	assert.Contains(t, messages[0], "Accounts: 2")
	assert.Contains(t, messages[0], "errors: 1")
	assert.Contains(t, messages[0], "antigravity_a@example.com")
}

func TestSendDailyDigestOncePerDay(t *testing.T) {
	service, notifier, st := newTestService(t, nil)

	require.NoError(t, service.SendDailyDigest())
	require.NoError(t, service.SendDailyDigest())
	assert.Len(t, notifier.sent(), 1)

	// A stale recorded date does not block the next day's digest
	require.NoError(t, st.Settings().Set(store.SettingLastDigestDate, "2000-01-01"))
	require.NoError(t, service.SendDailyDigest())
	assert.Len(t, notifier.sent(), 2)
}

func TestSendDailyDigestNotifierDisabled(t *testing.T) {
	service, notifier, st := newTestService(t, nil)
	notifier.disabled = true

	require.NoError(t, service.SendDailyDigest())
	assert.Empty(t, notifier.sent())

	// Nothing sent, so nothing recorded
	_, ok := st.Settings().Get(store.SettingLastDigestDate)
	assert.False(t, ok)
}

func TestDedupCleanup(t *testing.T) {
	service, _, _ := newTestService(t, nil, WithDedupWindow(50*time.Millisecond))

	alert := Alert{
		ID:        "test-1",
		AccountID: "acc1",
		Type:      AlertTypeThreshold,
		Severity:  SeverityWarning,
		Message:   "Test alert",
		Timestamp: time.Now(),
	}

	service.dedup.Record(alert.AlertKey())
	assert.Equal(t, 1, service.GetDedupSize())

	time.Sleep(100 * time.Millisecond)

	service.dedup.Cleanup()
	assert.Equal(t, 0, service.GetDedupSize())
}

func TestThrottlerTokens(t *testing.T) {
	service, _, _ := newTestService(t, func(cfg *config.AlertsConfig) {
		cfg.RateLimitPerMinute = 60
	})

	tokens := service.GetThrottlerTokens()
	assert.GreaterOrEqual(t, tokens, float64(50))

	for i := 0; i < 10; i++ {
		service.throttler.Allow()
	}

	assert.Less(t, service.GetThrottlerTokens(), tokens)
}

func TestGenerateAlertID(t *testing.T) {
	id1 := generateAlertID()
	id2 := generateAlertID()

	assert.NotEqual(t, id1, id2)
	assert.True(t, len(id1) > 6)
}
