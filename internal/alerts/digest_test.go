package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func noopGenerate() (*DigestData, error) { return &DigestData{}, nil }

func noopSend(*DigestData) error { return nil }

func TestNewDigestScheduler(t *testing.T) {
	scheduler := NewDigestScheduler("UTC", "09:00", noopGenerate, noopSend)

	assert.NotNil(t, scheduler)
	assert.Equal(t, "09:00", scheduler.digestTime)
	assert.Equal(t, "UTC", scheduler.timezone.String())
}

func TestNewDigestSchedulerInvalidTimezone(t *testing.T) {
	// Invalid timezone falls back to UTC
	scheduler := NewDigestScheduler("Invalid/Timezone", "09:00", noopGenerate, noopSend)
	assert.Equal(t, "UTC", scheduler.timezone.String())
}

func TestNewDigestSchedulerDefaultTime(t *testing.T) {
	scheduler := NewDigestScheduler("UTC", "", noopGenerate, noopSend)
	assert.Equal(t, "09:00", scheduler.digestTime)
}

func TestDigestSchedulerStartStop(t *testing.T) {
	scheduler := NewDigestScheduler("UTC", "09:00", noopGenerate, noopSend)

	assert.False(t, scheduler.IsRunning())

	scheduler.Start()
	assert.True(t, scheduler.IsRunning())

	scheduler.Stop()
	assert.False(t, scheduler.IsRunning())
}

func TestDigestSchedulerDoubleStart(t *testing.T) {
	scheduler := NewDigestScheduler("UTC", "09:00", noopGenerate, noopSend)

	scheduler.Start()
	scheduler.Start() // Should not panic or create extra goroutines

	assert.True(t, scheduler.IsRunning())
	scheduler.Stop()
}

func TestTopUsages(t *testing.T) {
	usages := []AccountUsage{
		{AccountID: "acc2", UsedPercent: 70.0},
		{AccountID: "acc1", UsedPercent: 90.0},
		{AccountID: "acc3", UsedPercent: 80.0},
	}

	top := topUsages(usages, 5)

	assert.Len(t, top, 3)
	assert.Equal(t, "acc1", top[0].AccountID)
	assert.Equal(t, 90.0, top[0].UsedPercent)
	assert.Equal(t, "acc3", top[1].AccountID)
	assert.Equal(t, "acc2", top[2].AccountID)
	// Input order untouched
	assert.Equal(t, "acc2", usages[0].AccountID)
}

func TestTopUsagesLimit(t *testing.T) {
	usages := make([]AccountUsage, 0, 6)
	for i := 0; i < 6; i++ {
		usages = append(usages, AccountUsage{
			AccountID:   string(rune('a' + i)),
			UsedPercent: float64(90 - i*10),
		})
	}

	assert.Len(t, topUsages(usages, 5), 5)
}

func TestTopUsagesTiesSortByAccount(t *testing.T) {
	usages := []AccountUsage{
		{AccountID: "b", UsedPercent: 50.0},
		{AccountID: "a", UsedPercent: 50.0},
	}

	top := topUsages(usages, 5)
	assert.Equal(t, "a", top[0].AccountID)
	assert.Equal(t, "b", top[1].AccountID)
}

func TestFormatDigest(t *testing.T) {
	digest := &DigestData{
		Date:              time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		TotalAccounts:     4,
		ErrorAccounts:     1,
		ExhaustedAccounts: 1,
		TopAccounts: []AccountUsage{
			{AccountID: "antigravity_a@example.com", Provider: "antigravity", UsedPercent: 90.0, Model: "gemini-2.5-pro"},
			{AccountID: "codex_b@example.com", Provider: "codex", UsedPercent: 75.0, Model: "gpt-5"},
		},
	}

	result := FormatDigest(digest)

	assert.Contains(t, result, "Daily Digest")
	assert.Contains(t, result, "2026-01-15")
	assert.Contains(t, result, "Accounts: 4")
	assert.Contains(t, result, "errors: 1")
	assert.Contains(t, result, "exhausted: 1")
	assert.Contains(t, result, "antigravity_a@example.com")
	assert.Contains(t, result, "90.0%")
	assert.Contains(t, result, "gemini-2.5-pro")
}

func TestFormatDigestEmpty(t *testing.T) {
	digest := &DigestData{
		Date: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
	}

	result := FormatDigest(digest)

	assert.Contains(t, result, "Daily Digest")
	assert.Contains(t, result, "Accounts: 0")
	assert.NotContains(t, result, "errors")
	assert.NotContains(t, result, "Top Accounts")
}

func TestFormatAlert(t *testing.T) {
	alert := Alert{
		AccountID: "antigravity_a@example.com",
		Type:      AlertTypeThreshold,
		Severity:  SeverityCritical,
		Message:   "Quota usage 97.0% on gemini-2.5-pro (threshold 95.0%)",
	}

	result := FormatAlert(alert)

	assert.Contains(t, result, "🔴")
	assert.Contains(t, result, "Quota Threshold")
	assert.Contains(t, result, "antigravity_a@example.com")
	assert.Contains(t, result, "97.0%")
}

func TestFormatAlertSeverityEmoji(t *testing.T) {
	warning := FormatAlert(Alert{Type: AlertTypeThreshold, Severity: SeverityWarning, Message: "m"})
	assert.Contains(t, warning, "🟡")

	info := FormatAlert(Alert{Type: AlertTypeServiceDown, Severity: SeverityInfo, Message: "m"})
	assert.Contains(t, info, "🔵")
	assert.Contains(t, info, "Service Alert")
}

func TestCalculateNextDelay(t *testing.T) {
	// Test with time in the future
	scheduler := NewDigestScheduler("UTC", "23:59", noopGenerate, noopSend)
	delay := scheduler.calculateNextDelay()
	assert.Greater(t, delay, time.Duration(0))
	assert.Less(t, delay, 24*time.Hour)
}

func TestCalculateNextDelayPast(t *testing.T) {
	// Test with time in the past (should schedule for tomorrow)
	scheduler := NewDigestScheduler("UTC", "00:00", noopGenerate, noopSend)
	delay := scheduler.calculateNextDelay()
	assert.Greater(t, delay, time.Duration(0))
	assert.Less(t, delay, 24*time.Hour)
}
