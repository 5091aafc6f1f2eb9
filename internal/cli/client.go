package cli

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/proxydeck/proxydeck/internal/api"
	"github.com/proxydeck/proxydeck/internal/config"
	"github.com/proxydeck/proxydeck/internal/errors"
	"github.com/proxydeck/proxydeck/internal/logtail"
	"github.com/proxydeck/proxydeck/internal/models"
	"github.com/proxydeck/proxydeck/internal/quota"
)

// loadConfig loads the configuration for a CLI command. A missing file at the
// default path falls back to built-in defaults plus env overrides; an
// explicitly passed --config that does not exist is an error. --db overrides
// the configured database path.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		var notFound *errors.ErrConfigNotFound
		if stderrors.As(err, &notFound) && !globalFlags.configExplicit {
			cfg, err = config.Default()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
	}
	if globalFlags.DBPath != "" {
		cfg.Quota.DBPath = globalFlags.DBPath
	}
	return cfg, nil
}

// consoleClient talks to a running console server. The proxy process handle
// lives inside that server, so process control and the merged quota view go
// through its API rather than being rebuilt per command.
type consoleClient struct {
	baseURL    string
	apiKey     string
	headerName string
	httpClient *http.Client
}

func newConsoleClient(cfg *config.Config) *consoleClient {
	c := &consoleClient{
		baseURL:    consoleBaseURL(cfg),
		headerName: api.DefaultAPIKeyHeader,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	if cfg.API.Auth.Enabled && len(cfg.API.Auth.APIKeys) > 0 {
		c.apiKey = cfg.API.Auth.APIKeys[0]
		if cfg.API.Auth.HeaderName != "" {
			c.headerName = cfg.API.Auth.HeaderName
		}
	}
	return c
}

// consoleBaseURL resolves the console address from PROXYDECK_ADDR or the
// server section of the config.
func consoleBaseURL(cfg *config.Config) string {
	if v := os.Getenv("PROXYDECK_ADDR"); v != "" {
		return strings.TrimRight(v, "/")
	}
	scheme := "http"
	if cfg.Server.TLS.Enabled {
		scheme = "https"
	}
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, cfg.Server.HTTPPort)
}

func (c *consoleClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(c.headerName, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("console not reachable at %s: %w (is \"proxydeck serve\" running?)", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s", apiErr.Message)
		}
		return fmt.Errorf("console returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

type healthResponse struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	Version        string `json:"version"`
	ServiceRunning bool   `json:"service_running"`
}

func (c *consoleClient) Health(ctx context.Context) (*healthResponse, error) {
	var out healthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *consoleClient) ServiceStatus(ctx context.Context) (*models.ServiceStatus, error) {
	var out models.ServiceStatus
	if err := c.do(ctx, http.MethodGet, "/api/service/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ServiceAction performs start, stop or restart.
func (c *consoleClient) ServiceAction(ctx context.Context, action string) (*models.ServiceStatus, error) {
	var out models.ServiceStatus
	if err := c.do(ctx, http.MethodPost, "/api/service/"+action, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// accountRow mirrors one entry of the console's merged account listing.
type accountRow struct {
	models.Account
	Quota       *models.QuotaSnapshot `json:"quota,omitempty"`
	QuotaStatus string                `json:"quota_status,omitempty"`
}

type accountsResponse struct {
	Accounts []accountRow `json:"accounts"`
	Count    int          `json:"count"`
	Mode     string       `json:"mode"`
	SyncedAt string       `json:"synced_at,omitempty"`
}

func (c *consoleClient) Accounts(ctx context.Context, refresh bool) (*accountsResponse, error) {
	path := "/api/accounts"
	if refresh {
		path += "?refresh=true"
	}
	var out accountsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *consoleClient) RemoveAccount(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/accounts/"+id, nil, nil)
}

func (c *consoleClient) RefreshAll(ctx context.Context) (*quota.Summary, error) {
	var out quota.Summary
	if err := c.do(ctx, http.MethodPost, "/api/quota/refresh-all", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *consoleClient) LogsTail(ctx context.Context, lines int) ([]string, error) {
	var out struct {
		Lines []string `json:"lines"`
	}
	path := fmt.Sprintf("/api/logs/tail?lines=%d", lines)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Lines, nil
}

func (c *consoleClient) LogsRead(ctx context.Context, offset, maxBytes int64) (*logtail.Chunk, error) {
	var out logtail.Chunk
	path := fmt.Sprintf("/api/logs?offset=%d&max_bytes=%d", offset, maxBytes)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LogsClear truncates the proxy log, returning the backup path when one was
// written.
func (c *consoleClient) LogsClear(ctx context.Context, backup bool) (string, error) {
	var out struct {
		Status     string `json:"status"`
		BackupPath string `json:"backup_path"`
	}
	body := map[string]bool{"backup": backup}
	if err := c.do(ctx, http.MethodPost, "/api/logs/clear", body, &out); err != nil {
		return "", err
	}
	return out.BackupPath, nil
}
