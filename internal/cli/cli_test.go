package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/proxydeck/proxydeck/internal/api"
	"github.com/proxydeck/proxydeck/internal/config"
	"github.com/proxydeck/proxydeck/internal/logging"
	"github.com/proxydeck/proxydeck/internal/models"
)

func TestRootCommand(t *testing.T) {
	// Test that root command is created
	assert.NotNil(t, RootCmd)
	assert.Equal(t, "proxydeck", RootCmd.Use)
	assert.Contains(t, RootCmd.Long, "operator console")
}

func TestVersionCommand(t *testing.T) {
	// Test version command
	assert.NotNil(t, versionCmd)
	assert.Equal(t, "version", versionCmd.Use)
}

func TestInitCLI(t *testing.T) {
	// Initialize CLI before tests
	InitCLI()

	assert.NotNil(t, RootCmd)
	assert.Equal(t, "proxydeck", RootCmd.Use)
	assert.NotEmpty(t, RootCmd.Commands())
}

func TestGetGlobalFlags(t *testing.T) {
	// Initialize CLI first
	InitCLI()

	flags := GetGlobalFlags()
	assert.Equal(t, "config.yaml", flags.Config)
	assert.False(t, flags.Verbose)
}

func TestCommandRegistration(t *testing.T) {
	// All operator commands hang off the root command
	InitCLI()

	names := map[string]bool{}
	for _, cmd := range RootCmd.Commands() {
		names[cmd.Name()] = true
	}

	for _, want := range []string{"serve", "service", "accounts", "quotas", "logs", "doctor", "version"} {
		assert.True(t, names[want], "command %q should be registered", want)
	}
}

func TestGetVersionInfo(t *testing.T) {
	// Test version info
	info := GetVersionInfo()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.NotEmpty(t, info.OS)
	assert.NotEmpty(t, info.Arch)
}

func TestVersionInfoStructure(t *testing.T) {
	// Test version info structure
	info := VersionInfo{
		Version:   "1.0.0",
		GoVersion: "go1.24.0",
		OS:        "linux",
		Arch:      "amd64",
	}

	assert.Equal(t, "1.0.0", info.Version)
	assert.Equal(t, "go1.24.0", info.GoVersion)
	assert.Equal(t, "linux", info.OS)
	assert.Equal(t, "amd64", info.Arch)
}

func TestGetRootCommand(t *testing.T) {
	// Test GetRootCommand
	cmd := GetRootCommand()
	assert.NotNil(t, cmd)
	assert.Equal(t, "proxydeck", cmd.Use)
}

func TestExecute(t *testing.T) {
	// Test Execute function with --help (should show help)
	InitCLI()

	var buf bytes.Buffer
	RootCmd.SetOut(&buf)

	err := Execute([]string{"--help"})
	assert.NoError(t, err)
}

func TestExecuteWithErrorCode(t *testing.T) {
	// Test ExecuteWithErrorCode with valid command
	InitCLI()

	code := ExecuteWithErrorCode([]string{"version"})
	assert.Equal(t, 0, code)
}

func TestExecuteWithErrorCodeUnknownCommand(t *testing.T) {
	// Unknown subcommands exit non-zero
	InitCLI()

	var buf bytes.Buffer
	RootCmd.SetOut(&buf)
	RootCmd.SetErr(&buf)

	code := ExecuteWithErrorCode([]string{"no-such-command"})
	assert.Equal(t, 1, code)
}

func TestConsoleBaseURL(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     int
		tls      bool
		expected string
	}{
		{name: "defaults to loopback", host: "", port: 5000, expected: "http://127.0.0.1:5000"},
		{name: "wildcard bind rewritten", host: "0.0.0.0", port: 5000, expected: "http://127.0.0.1:5000"},
		{name: "explicit host kept", host: "10.1.2.3", port: 8443, expected: "http://10.1.2.3:8443"},
		{name: "tls scheme", host: "127.0.0.1", port: 5000, tls: true, expected: "https://127.0.0.1:5000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Server.Host = tt.host
			cfg.Server.HTTPPort = tt.port
			cfg.Server.TLS.Enabled = tt.tls

			assert.Equal(t, tt.expected, consoleBaseURL(cfg))
		})
	}
}

func TestConsoleBaseURLEnvOverride(t *testing.T) {
	// PROXYDECK_ADDR wins over the config, trailing slash trimmed
	t.Setenv("PROXYDECK_ADDR", "http://10.0.0.5:8080/")

	cfg := &config.Config{}
	cfg.Server.HTTPPort = 5000

	assert.Equal(t, "http://10.0.0.5:8080", consoleBaseURL(cfg))
}

func TestNewConsoleClient(t *testing.T) {
	// Without API auth no key header is sent
	cfg := &config.Config{}
	cfg.Server.HTTPPort = 5000

	c := newConsoleClient(cfg)
	assert.Empty(t, c.apiKey)
	assert.Equal(t, api.DefaultAPIKeyHeader, c.headerName)
}

func TestNewConsoleClientWithAuth(t *testing.T) {
	// With API auth the first configured key and header name are used
	cfg := &config.Config{}
	cfg.Server.HTTPPort = 5000
	cfg.API.Auth.Enabled = true
	cfg.API.Auth.APIKeys = []string{"first-key", "second-key"}
	cfg.API.Auth.HeaderName = "X-Console-Key"

	c := newConsoleClient(cfg)
	assert.Equal(t, "first-key", c.apiKey)
	assert.Equal(t, "X-Console-Key", c.headerName)
}

func TestConsoleClientHealth(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		gotKey = r.Header.Get(api.DefaultAPIKeyHeader)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","uptime_seconds":42,"version":"0.1.0","service_running":true}`))
	}))
	defer srv.Close()

	c := &consoleClient{
		baseURL:    srv.URL,
		apiKey:     "test-key",
		headerName: api.DefaultAPIKeyHeader,
		httpClient: srv.Client(),
	}

	health, err := c.Health(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, int64(42), health.UptimeSeconds)
	assert.True(t, health.ServiceRunning)
}

func TestConsoleClientErrorMessage(t *testing.T) {
	// API error bodies surface their message, not just the status code
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"service_unavailable","message":"proxy not running"}`))
	}))
	defer srv.Close()

	c := &consoleClient{baseURL: srv.URL, headerName: api.DefaultAPIKeyHeader, httpClient: srv.Client()}

	_, err := c.ServiceStatus(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "proxy not running")
}

func TestConsoleClientUnreachable(t *testing.T) {
	// A dead console yields a hint to start the server
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := &consoleClient{
		baseURL:    base,
		headerName: api.DefaultAPIKeyHeader,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}

	_, err := c.Health(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "console not reachable")
}

func TestConsoleClientServiceAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/service/restart", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"running":true,"pid":4242,"uptime_seconds":1}`))
	}))
	defer srv.Close()

	c := &consoleClient{baseURL: srv.URL, headerName: api.DefaultAPIKeyHeader, httpClient: srv.Client()}

	status, err := c.ServiceAction(context.Background(), "restart")
	assert.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, 4242, status.PID)
}

func TestConsoleClientAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/accounts", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("refresh"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"accounts": [{
				"id": "antigravity_op@example.com",
				"type": "antigravity",
				"email": "op@example.com",
				"tier": "PRO",
				"active": true,
				"source": "local",
				"quota": {
					"account_id": "antigravity_op@example.com",
					"models": {"gemini-3-pro": {"used_percent": 41.5}},
					"fetched_at": "2026-08-25T10:00:00Z",
					"fetch_status": "ok"
				},
				"quota_status": "ok"
			}],
			"count": 1,
			"mode": "local"
		}`))
	}))
	defer srv.Close()

	c := &consoleClient{baseURL: srv.URL, headerName: api.DefaultAPIKeyHeader, httpClient: srv.Client()}

	resp, err := c.Accounts(context.Background(), true)
	assert.NoError(t, err)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "local", resp.Mode)
	assert.Len(t, resp.Accounts, 1)

	row := resp.Accounts[0]
	assert.Equal(t, "antigravity_op@example.com", row.ID)
	assert.Equal(t, models.TypeAntigravity, row.Type)
	assert.Equal(t, "ok", row.QuotaStatus)
	assert.NotNil(t, row.Quota)
	assert.InDelta(t, 41.5, row.Quota.Models["gemini-3-pro"].UsedPercent, 0.001)
}

func TestConsoleClientLogsClear(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/logs/clear", r.URL.Path)

		var body map[string]bool
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body["backup"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"cleared","backup_path":"/tmp/app.log.bak"}`))
	}))
	defer srv.Close()

	c := &consoleClient{baseURL: srv.URL, headerName: api.DefaultAPIKeyHeader, httpClient: srv.Client()}

	backupPath, err := c.LogsClear(context.Background(), true)
	assert.NoError(t, err)
	assert.Equal(t, "/tmp/app.log.bak", backupPath)
}

func TestLoadConfigMissingDefaultFallsBack(t *testing.T) {
	// A missing config at the default path falls back to built-in defaults
	orig := globalFlags
	defer func() { globalFlags = orig }()

	globalFlags.Config = filepath.Join(t.TempDir(), "missing.yaml")
	globalFlags.configExplicit = false
	globalFlags.DBPath = "/tmp/override.db"

	cfg, err := loadConfig()
	assert.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "/tmp/override.db", cfg.Quota.DBPath)
}

func TestLoadConfigExplicitMissingFails(t *testing.T) {
	// An explicitly passed --config that does not exist is an error
	orig := globalFlags
	defer func() { globalFlags = orig }()

	globalFlags.Config = filepath.Join(t.TempDir(), "missing.yaml")
	globalFlags.configExplicit = true

	_, err := loadConfig()
	assert.Error(t, err)
}

func TestAccountsRemoveRequiresYes(t *testing.T) {
	// Removal deletes the credential file, so it must be confirmed
	orig := accountsRemoveFlags.Yes
	defer func() { accountsRemoveFlags.Yes = orig }()

	accountsRemoveFlags.Yes = false
	err := runAccountsRemove(accountsRemoveCmd, []string{"antigravity_op@example.com"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestHumanAge(t *testing.T) {
	// Zero times render as a placeholder
	assert.Equal(t, "-", humanAge(time.Time{}))

	age := humanAge(time.Now().Add(-90 * time.Second))
	assert.Contains(t, age, "ago")
}

func TestPrintServiceStatus(t *testing.T) {
	// Should not panic for running and stopped states
	running := &models.ServiceStatus{
		Running:       true,
		PID:           1234,
		WorkingDir:    "/opt/cli-proxy-api",
		LogFile:       "/opt/cli-proxy-api/app.log",
		UptimeSeconds: 65,
	}
	assert.NoError(t, printServiceStatus(running))

	stopped := &models.ServiceStatus{Running: false}
	assert.NoError(t, printServiceStatus(stopped))
}

func TestPrintAccountsTable(t *testing.T) {
	resp := &accountsResponse{
		Accounts: []accountRow{
			{
				Account: models.Account{
					ID:     "antigravity_op@example.com",
					Type:   models.TypeAntigravity,
					Email:  "op@example.com",
					Tier:   models.TierPro,
					Active: true,
					Source: models.SourceLocal,
				},
				Quota: &models.QuotaSnapshot{
					AccountID: "antigravity_op@example.com",
					Models: map[string]models.ModelQuota{
						"gemini-3-pro": {UsedPercent: 41.5},
					},
					FetchStatus: models.FetchStatusOK,
					FetchedAt:   time.Now(),
				},
				QuotaStatus: "ok",
			},
			{
				Account: models.Account{
					ID:     "claude_dev@example.com",
					Type:   models.TypeClaude,
					Tier:   models.TierUnknown,
					Active: true,
					Source: models.SourceLocal,
				},
				QuotaStatus: "static",
			},
		},
		Count: 2,
		Mode:  "local",
	}

	// Should not panic
	assert.NoError(t, printAccountsTable(resp))
}

func TestPrintQuotasTable(t *testing.T) {
	rows := []accountRow{
		{
			Account: models.Account{ID: "acc-1", Type: models.TypeAntigravity, Email: "a@example.com"},
			Quota: &models.QuotaSnapshot{
				AccountID: "acc-1",
				Models: map[string]models.ModelQuota{
					"gemini-3-pro":   {UsedPercent: 80.0},
					"gemini-3-flash": {UsedPercent: 12.5},
				},
				FetchStatus: models.FetchStatusOK,
				FetchedAt:   time.Now().Add(-2 * time.Minute),
			},
			QuotaStatus: "ok",
		},
		{
			Account:     models.Account{ID: "acc-2", Type: models.TypeCodex},
			QuotaStatus: "static",
		},
	}

	// Should not panic
	assert.NoError(t, printQuotasTable(rows))
}

func TestPrintModelTables(t *testing.T) {
	rows := []accountRow{
		{
			Account: models.Account{ID: "acc-1", Type: models.TypeAntigravity, Email: "a@example.com"},
			Quota: &models.QuotaSnapshot{
				AccountID: "acc-1",
				Models: map[string]models.ModelQuota{
					"gemini-3-pro": {UsedPercent: 80.0, ResetAt: time.Now().Add(3 * time.Hour)},
				},
				FetchStatus: models.FetchStatusOK,
				FetchedAt:   time.Now(),
			},
		},
		{
			// No snapshot yet
			Account: models.Account{ID: "acc-2", Type: models.TypeAntigravity},
		},
		{
			Account: models.Account{ID: "acc-3", Type: models.TypeAntigravity},
			Quota: &models.QuotaSnapshot{
				AccountID:   "acc-3",
				FetchStatus: models.FetchStatusError,
				Error:       "status 401",
				FetchedAt:   time.Now(),
			},
		},
	}

	// Should not panic
	assert.NoError(t, printModelTables(rows))
}

func TestPrintJSON(t *testing.T) {
	// Should not panic
	assert.NoError(t, printJSON(map[string]string{"status": "ok"}))
}

func TestServeLogLevel(t *testing.T) {
	orig := globalFlags
	defer func() { globalFlags = orig }()
	globalFlags.Verbose = false

	cfg := &config.Config{}
	cfg.Server.LogLevel = "warn"
	assert.Equal(t, logging.LevelWarn, serveLogLevel(cfg))

	cfg.Server.LogLevel = "bogus"
	assert.Equal(t, logging.LevelInfo, serveLogLevel(cfg))

	globalFlags.Verbose = true
	assert.Equal(t, logging.LevelDebug, serveLogLevel(cfg))
}

func TestValidateTLSConfig(t *testing.T) {
	// Missing files are rejected
	err := validateTLSConfig(config.TLSConfig{Enabled: true})
	assert.Error(t, err)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	assert.NoError(t, os.WriteFile(certFile, []byte("cert"), 0644))
	assert.NoError(t, os.WriteFile(keyFile, []byte("key"), 0600))

	err = validateTLSConfig(config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, MinVersion: "1.3"})
	assert.NoError(t, err)

	err = validateTLSConfig(config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, MinVersion: "1.1"})
	assert.Error(t, err)
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("PROXYDECK_TEST_DURATION", "45s")
	assert.Equal(t, 45*time.Second, envDuration("PROXYDECK_TEST_DURATION", time.Minute))

	t.Setenv("PROXYDECK_TEST_DURATION", "not-a-duration")
	assert.Equal(t, time.Minute, envDuration("PROXYDECK_TEST_DURATION", time.Minute))

	assert.Equal(t, time.Minute, envDuration("PROXYDECK_TEST_DURATION_UNSET", time.Minute))
}

func TestDoctorCheck(t *testing.T) {
	// Test DoctorCheck struct
	check := DoctorCheck{
		Category:    "System",
		Name:        "Go Version",
		Status:      "OK",
		Message:     "Go 1.24.0",
		Severity:    "low",
		Remediation: "No action needed",
	}

	assert.Equal(t, "System", check.Category)
	assert.Equal(t, "Go Version", check.Name)
	assert.Equal(t, "OK", check.Status)
	assert.Equal(t, "low", check.Severity)
}

func TestDoctorReport(t *testing.T) {
	// Test doctor report structure
	report := DoctorReport{
		Timestamp: time.Now(),
		Checks: []DoctorCheck{
			{Category: "System", Name: "Test", Status: "OK"},
		},
		Recommendations: []string{"Test recommendation"},
	}

	assert.Len(t, report.Checks, 1)
	assert.Len(t, report.Recommendations, 1)
}

func TestGenerateRecommendations(t *testing.T) {
	// Failing checks surface their remediation
	checks := []DoctorCheck{
		{
			Category:    "Service",
			Name:        "Proxy Binary",
			Status:      "FAIL",
			Remediation: "Install the proxy binary",
		},
		{
			Category: "System",
			Name:     "Go Version",
			Status:   "OK",
		},
	}

	recs := generateRecommendations(checks)
	assert.GreaterOrEqual(t, len(recs), 1)
	assert.Contains(t, recs[0], "Proxy Binary")
}

func TestGenerateRecommendationsHealthy(t *testing.T) {
	// All-OK reports say so
	recs := generateRecommendations([]DoctorCheck{
		{Category: "System", Name: "Go Version", Status: "OK"},
	})

	assert.Len(t, recs, 1)
	assert.Contains(t, recs[0], "healthy")
}

func TestCollectSystemInfo(t *testing.T) {
	// Test system info collection
	checks := collectSystemInfo()

	assert.GreaterOrEqual(t, len(checks), 3)
	for _, check := range checks {
		assert.Equal(t, "System", check.Category)
		assert.NotEmpty(t, check.Name)
		assert.NotEmpty(t, check.Status)
	}
}

func TestCheckServiceUnconfigured(t *testing.T) {
	// No service dir means process control is off, not broken
	cfg := &config.Config{}

	checks := checkService(cfg)
	assert.Len(t, checks, 1)
	assert.Equal(t, "WARN", checks[0].Status)
}

func TestCheckServiceMissingBinary(t *testing.T) {
	cfg := &config.Config{}
	cfg.Service.Dir = t.TempDir()
	cfg.Service.BinaryName = "cli-proxy-api"

	checks := checkService(cfg)
	assert.GreaterOrEqual(t, len(checks), 2)
	assert.Equal(t, "OK", checks[0].Status)
	assert.Equal(t, "FAIL", checks[1].Status)
}

func TestCheckServiceWithBinary(t *testing.T) {
	cfg := &config.Config{}
	cfg.Service.Dir = t.TempDir()
	cfg.Service.BinaryName = "cli-proxy-api"
	cfg.Service.LogFile = filepath.Join(cfg.Service.Dir, "app.log")

	assert.NoError(t, os.WriteFile(cfg.Service.BinaryPath(), []byte("#!/bin/sh\n"), 0755))
	assert.NoError(t, os.WriteFile(cfg.Service.LogFile, []byte("line\n"), 0644))

	checks := checkService(cfg)
	assert.Len(t, checks, 3)
	for _, check := range checks {
		assert.Equal(t, "OK", check.Status)
	}
}

func TestCheckAuthDir(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte("{}"), 0600))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte("{}"), 0600))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("x"), 0644))

	cfg := &config.Config{}
	cfg.Accounts.AuthDir = dir

	check := checkAuthDir(cfg)
	assert.Equal(t, "OK", check.Status)
	assert.Contains(t, check.Message, "2 credential file(s)")
}

func TestCheckAuthDirMissing(t *testing.T) {
	cfg := &config.Config{}
	cfg.Accounts.AuthDir = filepath.Join(t.TempDir(), "absent")

	check := checkAuthDir(cfg)
	assert.Equal(t, "WARN", check.Status)
}

func TestCheckDatabase(t *testing.T) {
	cfg := &config.Config{}
	cfg.Quota.DBPath = filepath.Join(t.TempDir(), "doctor.db")

	check := checkDatabase(cfg)
	assert.Equal(t, "OK", check.Status)
	assert.Contains(t, check.Message, "snapshot")
}

func TestCheckManagementNotConfigured(t *testing.T) {
	cfg := &config.Config{}

	check := checkManagement(cfg)
	assert.Equal(t, "OK", check.Status)
	assert.Contains(t, check.Message, "not configured")
}

func TestCheckConsole(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","uptime_seconds":5,"version":"0.1.0","service_running":false}`))
	}))
	defer srv.Close()

	t.Setenv("PROXYDECK_ADDR", srv.URL)

	cfg := &config.Config{}
	check := checkConsole(cfg)
	assert.Equal(t, "OK", check.Status)
	assert.Contains(t, check.Message, "proxy not running")
}

func TestCheckConsoleDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	t.Setenv("PROXYDECK_ADDR", addr)

	cfg := &config.Config{}
	check := checkConsole(cfg)
	assert.Equal(t, "WARN", check.Status)
}

func TestOutputDoctorReport(t *testing.T) {
	// Test doctor report output
	report := DoctorReport{
		Timestamp: time.Now(),
		Checks: []DoctorCheck{
			{Category: "System", Name: "Go Version", Status: "OK", Message: "Test message"},
			{Category: "Service", Name: "Proxy Binary", Status: "FAIL", Message: "missing"},
		},
		Recommendations: []string{"Test recommendation"},
	}

	// Should not panic
	assert.NoError(t, outputDoctorReportTable(report))
}
