package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/proxydeck/proxydeck/internal/errors"
	"github.com/proxydeck/proxydeck/internal/models"
)

const (
	authFilesPath = "/v0/management/auth-files"
	downloadPath  = "/v0/management/auth-files/download"

	// maxResponseBody bounds how much of a management response is read (1MB).
	maxResponseBody = 1 << 20
)

// ManagementClient talks to the proxy's management API.
type ManagementClient struct {
	baseURL    string
	key        string
	httpClient *http.Client
}

// ClientOption is a functional option for configuring ManagementClient.
type ClientOption func(*ManagementClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *ManagementClient) {
		c.httpClient = client
	}
}

// WithTimeout sets the timeout for management requests.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *ManagementClient) {
		c.httpClient.Timeout = timeout
	}
}

// NewManagementClient creates a client for the given management URL and key.
func NewManagementClient(baseURL, key string, opts ...ClientOption) *ManagementClient {
	client := &ManagementClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// AuthFileInfo is one entry in the management auth-file listing.
type AuthFileInfo struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Email    string `json:"email,omitempty"`
	Account  string `json:"account,omitempty"`
	Status   string `json:"status,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// ToAccount converts a listing entry to an account. Entries with a type the
// console does not know are reported as not convertible.
func (f AuthFileInfo) ToAccount() (models.Account, bool) {
	t, ok := models.ParseAccountType(f.Type)
	if !ok {
		return models.Account{}, false
	}
	email := f.Email
	if email == "" && strings.Contains(f.Account, "@") {
		email = f.Account
	}
	return models.Account{
		ID:     accountIDFor(t, email, f.Name),
		Type:   t,
		Email:  email,
		Tier:   models.TierUnknown,
		Active: !f.Disabled,
		Source: models.SourceRemote,
		Path:   f.Name,
	}, true
}

type listAuthFilesResponse struct {
	Files []AuthFileInfo `json:"files"`
}

// ListAuthFiles fetches the auth-file listing. 401/403 map to ErrAuth,
// network failures and unexpected statuses to ErrUnreachable.
func (c *ManagementClient) ListAuthFiles(ctx context.Context) ([]AuthFileInfo, error) {
	endpoint := c.baseURL + authFilesPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &errors.ErrUnreachable{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &errors.ErrAuth{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		return nil, &errors.ErrUnreachable{
			Endpoint: endpoint,
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var payload listAuthFilesResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&payload); err != nil {
		return nil, &errors.ErrUnreachable{Endpoint: endpoint, Err: fmt.Errorf("failed to decode listing: %w", err)}
	}

	return payload.Files, nil
}

// DownloadAuthFile fetches the raw content of one auth file by name.
func (c *ManagementClient) DownloadAuthFile(ctx context.Context, name string) ([]byte, error) {
	endpoint := c.baseURL + downloadPath + "?" + url.Values{"name": {name}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &errors.ErrUnreachable{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, &errors.ErrAccountNotFound{AccountID: name}
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &errors.ErrAuth{Endpoint: endpoint, StatusCode: resp.StatusCode}
	default:
		return nil, &errors.ErrUnreachable{Endpoint: endpoint, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &errors.ErrUnreachable{Endpoint: endpoint, Err: err}
	}
	return data, nil
}

// DeleteAuthFile removes one auth file by name.
func (c *ManagementClient) DeleteAuthFile(ctx context.Context, name string) error {
	endpoint := c.baseURL + authFilesPath + "?" + url.Values{"name": {name}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &errors.ErrUnreachable{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return &errors.ErrAccountNotFound{AccountID: name}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &errors.ErrAuth{Endpoint: endpoint, StatusCode: resp.StatusCode}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		return &errors.ErrUnreachable{
			Endpoint: endpoint,
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}
}

// Close releases idle connections.
func (c *ManagementClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *ManagementClient) setAuth(req *http.Request) {
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}
}
