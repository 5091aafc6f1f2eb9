package alerts

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DigestScheduler manages daily digest scheduling
type DigestScheduler struct {
	timezone   *time.Location
	digestTime string // Format: "HH:MM"
	generateFn func() (*DigestData, error)
	sendFn     func(*DigestData) error

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// NewDigestScheduler creates a new digest scheduler. Unknown timezones fall
// back to UTC.
func NewDigestScheduler(timezone string, digestTime string, generateFn func() (*DigestData, error), sendFn func(*DigestData) error) *DigestScheduler {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}

	if digestTime == "" {
		digestTime = "09:00"
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &DigestScheduler{
		timezone:   loc,
		digestTime: digestTime,
		generateFn: generateFn,
		sendFn:     sendFn,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start starts the digest scheduler
func (d *DigestScheduler) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}

	d.running = true
	d.wg.Add(1)
	go d.run()
}

// Stop stops the digest scheduler
func (d *DigestScheduler) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return
	}

	d.cancel()
	d.wg.Wait()
	d.running = false
}

// IsRunning returns whether the scheduler is running
func (d *DigestScheduler) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// run is the main scheduler loop
func (d *DigestScheduler) run() {
	defer d.wg.Done()

	// Calculate initial delay until next scheduled time
	delay := d.calculateNextDelay()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-timer.C:
			d.sendDigest()
			// Reset timer for next day
			timer.Reset(24 * time.Hour)
		}
	}
}

// calculateNextDelay calculates the delay until the next scheduled time
func (d *DigestScheduler) calculateNextDelay() time.Duration {
	now := time.Now().In(d.timezone)

	// Parse digest time
	var hour, minute int
	if _, err := fmt.Sscanf(d.digestTime, "%d:%d", &hour, &minute); err != nil {
		hour = 0
		minute = 0
	}

	// Create target time for today
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, d.timezone)

	// If target time has passed, schedule for tomorrow
	if target.Before(now) {
		target = target.Add(24 * time.Hour)
	}

	return time.Until(target)
}

// sendDigest generates and sends the digest
func (d *DigestScheduler) sendDigest() {
	if d.generateFn == nil || d.sendFn == nil {
		return
	}

	data, err := d.generateFn()
	if err != nil {
		return
	}

	_ = d.sendFn(data)
}

// topUsages returns the n accounts with the highest usage, sorted descending.
// Ties sort by account id so the digest is stable.
func topUsages(usages []AccountUsage, n int) []AccountUsage {
	sorted := make([]AccountUsage, len(usages))
	copy(sorted, usages)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].UsedPercent != sorted[j].UsedPercent {
			return sorted[i].UsedPercent > sorted[j].UsedPercent
		}
		return sorted[i].AccountID < sorted[j].AccountID
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// FormatDigest formats a digest for display
func FormatDigest(digest *DigestData) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📈 *Daily Digest* - %s\n\n", digest.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "Accounts: %d", digest.TotalAccounts)
	if digest.ErrorAccounts > 0 {
		fmt.Fprintf(&b, " | 🔴 errors: %d", digest.ErrorAccounts)
	}
	if digest.ExhaustedAccounts > 0 {
		fmt.Fprintf(&b, " | ⛔ exhausted: %d", digest.ExhaustedAccounts)
	}
	b.WriteString("\n")

	if len(digest.TopAccounts) > 0 {
		b.WriteString("\n*Top Accounts by Usage:*\n")
		for _, acc := range digest.TopAccounts {
			fmt.Fprintf(&b, "• %s (%s): %.1f%%", acc.AccountID, acc.Provider, acc.UsedPercent)
			if acc.Model != "" {
				fmt.Fprintf(&b, " on %s", acc.Model)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// FormatAlert formats an alert for display
func FormatAlert(alert Alert) string {
	emoji := "🔵"
	switch alert.Severity {
	case SeverityCritical:
		emoji = "🔴"
	case SeverityWarning:
		emoji = "🟡"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*\n", emoji, alertTitle(alert.Type))
	if alert.AccountID != "" {
		fmt.Fprintf(&b, "Account: `%s`\n", alert.AccountID)
	}
	b.WriteString(alert.Message)
	return b.String()
}

// alertTitle maps alert types to human headings.
func alertTitle(t AlertType) string {
	switch t {
	case AlertTypeServiceDown:
		return "Service Alert"
	case AlertTypeThreshold:
		return "Quota Threshold"
	case AlertTypeExhausted:
		return "Quota Exhausted"
	case AlertTypeRefreshFailed:
		return "Refresh Failed"
	case AlertTypeDailyDigest:
		return "Daily Digest"
	default:
		return "Alert"
	}
}
