package alerts

import (
	"time"
)

// Severity represents alert severity level
type Severity string

const (
	// SeverityInfo is for informational alerts
	SeverityInfo Severity = "info"
	// SeverityWarning is for warning alerts
	SeverityWarning Severity = "warning"
	// SeverityCritical is for critical alerts
	SeverityCritical Severity = "critical"
)

// AlertType represents the type of alert
type AlertType string

const (
	// AlertTypeServiceDown fires when the supervised proxy stops running
	AlertTypeServiceDown AlertType = "service_down"
	// AlertTypeThreshold fires when quota usage crosses a threshold
	AlertTypeThreshold AlertType = "quota_threshold"
	// AlertTypeExhausted fires when a model's quota is fully used
	AlertTypeExhausted AlertType = "quota_exhausted"
	// AlertTypeRefreshFailed fires when a quota refresh ends in error
	AlertTypeRefreshFailed AlertType = "refresh_failed"
	// AlertTypeDailyDigest is for the daily digest
	AlertTypeDailyDigest AlertType = "daily_digest"
)

// Alert represents an alert to be sent
type Alert struct {
	ID        string
	AccountID string
	Type      AlertType
	Severity  Severity
	Message   string
	Threshold float64
	Current   float64
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// AlertKey creates a unique key for deduplication
func (a *Alert) AlertKey() string {
	return a.AccountID + ":" + string(a.Type) + ":" + string(a.Severity)
}

// AlertRecord represents a sent alert record for deduplication
type AlertRecord struct {
	AlertKey string
	SentAt   time.Time
	Count    int
}

// DigestData represents data for the daily digest
type DigestData struct {
	Date              time.Time
	TotalAccounts     int
	ErrorAccounts     int
	ExhaustedAccounts int
	TopAccounts       []AccountUsage
}

// AccountUsage represents one account's worst-model usage in the digest
type AccountUsage struct {
	AccountID   string
	Provider    string
	UsedPercent float64
	Model       string
}
