package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Version    string           `yaml:"version"`
	Server     ServerConfig     `yaml:"server"`
	API        APIConfig        `yaml:"api"`
	Service    ServiceConfig    `yaml:"service"`
	Management ManagementConfig `yaml:"management"`
	Accounts   AccountsConfig   `yaml:"accounts"`
	Quota      QuotaConfig      `yaml:"quota"`
	OAuth      OAuthConfig      `yaml:"oauth"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Alerts     AlertsConfig     `yaml:"alerts"`
}

// ServerConfig contains console HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	TLS             TLSConfig     `yaml:"tls"`
}

// TLSConfig contains TLS configuration.
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	MinVersion string `yaml:"min_version"` // "1.2" or "1.3"
}

// APIConfig contains console API configuration.
type APIConfig struct {
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// AuthConfig contains authentication configuration.
type AuthConfig struct {
	Enabled    bool     `yaml:"enabled"`
	APIKeys    []string `yaml:"api_keys"`
	HeaderName string   `yaml:"header_name"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// ServiceConfig describes the managed CLIProxyAPI process.
type ServiceConfig struct {
	// Dir is the working directory the proxy binary lives in. Start fails
	// with a config error while this is unset.
	Dir        string `yaml:"dir"`
	BinaryName string `yaml:"binary_name"`
	// LogFile defaults to <dir>/cliproxyapi.log when dir is set.
	LogFile string `yaml:"log_file"`
	// StopTimeout bounds the SIGTERM grace period before SIGKILL.
	StopTimeout  time.Duration `yaml:"stop_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// Args are extra arguments passed to the proxy binary.
	Args []string `yaml:"args,omitempty"`
}

// ManagementConfig points at the proxy's management API.
type ManagementConfig struct {
	URL     string        `yaml:"url"`
	Key     string        `yaml:"key"`
	Timeout time.Duration `yaml:"timeout"`
}

// AccountsConfig configures credential discovery.
type AccountsConfig struct {
	AuthDir string `yaml:"auth_dir"`
	// Watch re-scans the auth dir on filesystem changes. Pre-set true by
	// the loader; set false in YAML to disable.
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// QuotaConfig configures the quota refresher and cache.
type QuotaConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	Concurrency     int           `yaml:"concurrency"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	DBPath          string        `yaml:"db_path"`
	// StaleAfter is the read-side staleness window. Zero means twice the
	// refresh interval.
	StaleAfter time.Duration `yaml:"stale_after"`
	// Background enables the periodic refresh loop in serve. Pre-set true
	// by the loader.
	Background bool `yaml:"background"`
}

// OAuthConfig configures account provisioning sessions.
type OAuthConfig struct {
	CallbackHost    string         `yaml:"callback_host"`
	CallbackTimeout time.Duration  `yaml:"callback_timeout"`
	Ports           map[string]int `yaml:"ports,omitempty"`
	// ClientID/ClientSecret are fallbacks used when a credential file does
	// not carry its own OAuth client material.
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// TelegramConfig contains Telegram notifier configuration.
type TelegramConfig struct {
	Enabled   bool              `yaml:"enabled"`
	BotToken  string            `yaml:"bot_token"`
	ChatID    int64             `yaml:"chat_id"`
	RateLimit TelegramRateLimit `yaml:"rate_limit"`
}

// TelegramRateLimit contains Telegram rate limiting configuration.
type TelegramRateLimit struct {
	MessagesPerMinute int `yaml:"messages_per_minute"`
}

// AlertsConfig contains alert service configuration.
type AlertsConfig struct {
	// Enabled enables or disables the alert service.
	Enabled bool `yaml:"enabled"`
	// Thresholds defines the quota usage thresholds that trigger alerts.
	// Default: [85.0, 95.0]
	Thresholds []float64 `yaml:"thresholds"`
	// Debounce is the minimum time between duplicate alerts.
	// Default: 30m
	Debounce time.Duration `yaml:"debounce"`
	// DailyDigestEnabled enables the daily usage digest.
	DailyDigestEnabled bool `yaml:"daily_digest_enabled"`
	// DailyDigestTime is the time of day to send the digest (format: "HH:MM").
	// Default: "09:00"
	DailyDigestTime string `yaml:"daily_digest_time"`
	// Timezone is the timezone for scheduling.
	// Default: "UTC"
	Timezone string `yaml:"timezone"`
	// RateLimitPerMinute limits the number of alerts per minute.
	// Default: 30
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
	// ShutdownTimeout is the timeout for graceful shutdown.
	// Default: 25s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if err := c.Service.Validate(); err != nil {
		return fmt.Errorf("service: %w", err)
	}

	if err := c.Management.Validate(); err != nil {
		return fmt.Errorf("management: %w", err)
	}

	if err := c.Accounts.Validate(); err != nil {
		return fmt.Errorf("accounts: %w", err)
	}

	if err := c.Quota.Validate(); err != nil {
		return fmt.Errorf("quota: %w", err)
	}

	if err := c.OAuth.Validate(); err != nil {
		return fmt.Errorf("oauth: %w", err)
	}

	if err := c.Telegram.Validate(); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	if err := c.Alerts.Validate(); err != nil {
		return fmt.Errorf("alerts: %w", err)
	}

	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.Host == "" {
		s.Host = "127.0.0.1"
	}
	if s.HTTPPort == 0 {
		s.HTTPPort = 5000
	}
	if s.HTTPPort < 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535")
	}
	if s.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 30 * time.Second
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.LogFormat == "" {
		s.LogFormat = "json"
	}
	// Validate TLS configuration
	if s.TLS.Enabled {
		if s.TLS.CertFile == "" {
			return fmt.Errorf("tls cert_file is required when TLS is enabled")
		}
		if s.TLS.KeyFile == "" {
			return fmt.Errorf("tls key_file is required when TLS is enabled")
		}
		if s.TLS.MinVersion != "" && s.TLS.MinVersion != "1.2" && s.TLS.MinVersion != "1.3" {
			return fmt.Errorf("tls min_version must be either \"1.2\" or \"1.3\"")
		}
		if s.TLS.MinVersion == "" {
			s.TLS.MinVersion = "1.3"
		}
	}
	return nil
}

// Validate validates API configuration.
func (a *APIConfig) Validate() error {
	if a.Auth.Enabled && len(a.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth: api_keys is required when auth is enabled")
	}
	if a.RateLimit.RequestsPerMinute <= 0 {
		a.RateLimit.RequestsPerMinute = 1000
	}
	// Cap rate limit to prevent abuse
	if a.RateLimit.RequestsPerMinute > 100000 {
		a.RateLimit.RequestsPerMinute = 100000
	}
	if a.RateLimit.Burst <= 0 {
		a.RateLimit.Burst = 100
	}
	// Cap burst to reasonable value
	if a.RateLimit.Burst > 10000 {
		a.RateLimit.Burst = 10000
	}
	return nil
}

// Validate validates service configuration and applies defaults. An unset
// dir is allowed here; lifecycle operations report it when actually needed.
func (s *ServiceConfig) Validate() error {
	if s.BinaryName == "" {
		s.BinaryName = "CLIProxyAPI"
	}
	if strings.ContainsRune(s.BinaryName, os.PathSeparator) {
		return fmt.Errorf("binary_name must be a bare name, not a path")
	}
	s.Dir = ExpandHome(s.Dir)
	if s.LogFile == "" && s.Dir != "" {
		s.LogFile = filepath.Join(s.Dir, "cliproxyapi.log")
	}
	s.LogFile = ExpandHome(s.LogFile)
	if s.StopTimeout <= 0 {
		s.StopTimeout = 10 * time.Second
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 200 * time.Millisecond
	}
	return nil
}

// BinaryPath returns the full path of the managed binary, empty when dir is
// not configured.
func (s *ServiceConfig) BinaryPath() string {
	if s.Dir == "" {
		return ""
	}
	return filepath.Join(s.Dir, s.BinaryName)
}

// Validate validates management API configuration.
func (m *ManagementConfig) Validate() error {
	if m.URL == "" {
		m.URL = "http://127.0.0.1:8317"
	}
	m.URL = strings.TrimRight(m.URL, "/")
	if m.Timeout <= 0 {
		m.Timeout = 10 * time.Second
	}
	return nil
}

// Configured reports whether the remote management API can be used.
func (m *ManagementConfig) Configured() bool {
	return m.URL != "" && m.Key != ""
}

// Validate validates accounts configuration.
func (a *AccountsConfig) Validate() error {
	if a.AuthDir == "" {
		a.AuthDir = "~/.cli-proxy-api"
	}
	a.AuthDir = ExpandHome(a.AuthDir)
	if a.WatchDebounce <= 0 {
		a.WatchDebounce = 500 * time.Millisecond
	}
	return nil
}

// Validate validates quota configuration.
func (q *QuotaConfig) Validate() error {
	if q.RefreshInterval <= 0 {
		q.RefreshInterval = 5 * time.Minute
	}
	if q.Concurrency <= 0 {
		q.Concurrency = 4
	}
	if q.Concurrency > 64 {
		return fmt.Errorf("concurrency must be at most 64")
	}
	if q.FetchTimeout <= 0 {
		q.FetchTimeout = 30 * time.Second
	}
	if q.DBPath == "" {
		q.DBPath = "./data/proxydeck.db"
	}
	q.DBPath = ExpandHome(q.DBPath)
	if q.StaleAfter <= 0 {
		q.StaleAfter = 2 * q.RefreshInterval
	}
	return nil
}

// Validate validates oauth configuration.
func (o *OAuthConfig) Validate() error {
	if o.CallbackHost == "" {
		o.CallbackHost = "127.0.0.1"
	}
	if o.CallbackTimeout <= 0 {
		o.CallbackTimeout = 5 * time.Minute
	}
	for provider, port := range o.Ports {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("port for %s must be between 1 and 65535", provider)
		}
	}
	return nil
}

// Validate validates Telegram configuration.
func (t *TelegramConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	if t.BotToken == "" {
		return fmt.Errorf("bot_token is required when telegram is enabled")
	}
	if t.RateLimit.MessagesPerMinute <= 0 {
		t.RateLimit.MessagesPerMinute = 20
	}
	return nil
}

// Validate validates alerts configuration and applies defaults.
func (a *AlertsConfig) Validate() error {
	// Set default thresholds if not provided
	if len(a.Thresholds) == 0 {
		a.Thresholds = []float64{85.0, 95.0}
	}

	// Set default debounce
	if a.Debounce <= 0 {
		a.Debounce = 30 * time.Minute
	}

	// Set default digest time
	if a.DailyDigestTime == "" {
		a.DailyDigestTime = "09:00"
	}

	// Set default timezone
	if a.Timezone == "" {
		a.Timezone = "UTC"
	}

	// Set default rate limit
	if a.RateLimitPerMinute <= 0 {
		a.RateLimitPerMinute = 30
	}

	// Set default shutdown timeout
	if a.ShutdownTimeout <= 0 {
		a.ShutdownTimeout = 25 * time.Second
	}

	return nil
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
