package models

import "time"

// ServiceStatus is a read-only probe of the managed proxy process.
type ServiceStatus struct {
	Running       bool      `json:"running"`
	PID           int       `json:"pid,omitempty"`
	WorkingDir    string    `json:"working_dir,omitempty"`
	LogFile       string    `json:"log_file,omitempty"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	UptimeSeconds int64     `json:"uptime_seconds"`
}

// Uptime returns the uptime as a duration.
func (s ServiceStatus) Uptime() time.Duration {
	return time.Duration(s.UptimeSeconds) * time.Second
}
