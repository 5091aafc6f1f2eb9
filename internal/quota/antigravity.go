package quota

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/proxydeck/proxydeck/internal/accounts"
	"github.com/proxydeck/proxydeck/internal/config"
	"github.com/proxydeck/proxydeck/internal/errors"
	"github.com/proxydeck/proxydeck/internal/logging"
	"github.com/proxydeck/proxydeck/internal/models"
)

const (
	defaultCloudCodeURL = "https://cloudcode-pa.googleapis.com"
	defaultTokenURL     = "https://oauth2.googleapis.com/token"

	// The cloudcode API serves different responses per client; these match
	// what the antigravity IDE itself sends.
	quotaUserAgent      = "antigravity/1.11.3 Darwin/arm64"
	loadAssistUserAgent = "antigravity/windows/amd64"

	// fallbackProjectID keeps fetchAvailableModels working when neither the
	// credential file nor loadCodeAssist yields a project id.
	fallbackProjectID = "bamboo-precept-lgxtn"

	// tokenRefreshBuffer refreshes access tokens this close to expiry.
	tokenRefreshBuffer = 2 * time.Minute

	// maxFetchBody bounds how much of an upstream response is read (1MB).
	maxFetchBody = 1 << 20
)

// errUnauthorized marks a 401 from the quota endpoint; the fetch retries
// once after a token refresh.
var errUnauthorized = stderrors.New("unauthorized")

// AntigravityFetcher fetches live per-model quota for antigravity accounts.
// Expired tokens are refreshed against the Google token endpoint and written
// back to the credential file the way the proxy itself would.
type AntigravityFetcher struct {
	source       accounts.Source
	client       Doer
	oauth        config.OAuthConfig
	logger       *logging.Logger
	cloudCodeURL string
	tokenURL     string
}

// AntigravityOption customizes the fetcher.
type AntigravityOption func(*AntigravityFetcher)

// WithCloudCodeURL overrides the cloudcode API base URL.
func WithCloudCodeURL(u string) AntigravityOption {
	return func(f *AntigravityFetcher) {
		f.cloudCodeURL = strings.TrimRight(u, "/")
	}
}

// WithTokenURL overrides the OAuth token endpoint.
func WithTokenURL(u string) AntigravityOption {
	return func(f *AntigravityFetcher) {
		f.tokenURL = u
	}
}

func NewAntigravityFetcher(source accounts.Source, client Doer, oauth config.OAuthConfig, logger *logging.Logger, opts ...AntigravityOption) *AntigravityFetcher {
	f := &AntigravityFetcher{
		source:       source,
		client:       client,
		oauth:        oauth,
		logger:       logger,
		cloudCodeURL: defaultCloudCodeURL,
		tokenURL:     defaultTokenURL,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *AntigravityFetcher) Fetch(ctx context.Context, account models.Account) (*models.QuotaSnapshot, error) {
	creds, err := f.source.Credentials(ctx, account)
	if err != nil {
		return nil, &errors.ErrFetch{AccountID: account.ID, Reason: "load credentials", Err: err}
	}
	if creds.AccessToken == "" && !creds.CanRefresh() {
		return nil, &errors.ErrFetch{AccountID: account.ID, Reason: "credential carries no access or refresh token"}
	}

	refreshed := false
	if creds.NeedsRefresh(tokenRefreshBuffer) && creds.CanRefresh() {
		if err := f.refreshToken(ctx, account, creds); err != nil {
			return nil, err
		}
		refreshed = true
	}

	snap, err := f.fetchWithToken(ctx, account, creds.AccessToken, creds.ProjectID)
	if stderrors.Is(err, errUnauthorized) && !refreshed && creds.CanRefresh() {
		if rerr := f.refreshToken(ctx, account, creds); rerr != nil {
			return nil, rerr
		}
		snap, err = f.fetchWithToken(ctx, account, creds.AccessToken, creds.ProjectID)
	}
	if stderrors.Is(err, errUnauthorized) {
		return nil, &errors.ErrFetch{AccountID: account.ID, Reason: "token rejected by quota endpoint"}
	}
	return snap, err
}

// fetchWithToken resolves the project and tier, then fetches the model list.
func (f *AntigravityFetcher) fetchWithToken(ctx context.Context, account models.Account, token, credProject string) (*models.QuotaSnapshot, error) {
	projectID, tierID := f.loadProject(ctx, token)

	project := credProject
	if project == "" {
		project = projectID
	}
	if project == "" {
		project = fallbackProjectID
	}

	snap, err := f.fetchModels(ctx, account, token, project)
	if err != nil {
		return nil, err
	}

	if tierID != "" {
		snap.Tier = models.NormalizeTier(tierID)
	} else {
		snap.Tier = account.Tier
	}
	return snap, nil
}

// loadProject resolves the cloud project and paid tier behind a token.
// Failures are non-fatal: the quota call falls back to the credential's
// project id.
func (f *AntigravityFetcher) loadProject(ctx context.Context, token string) (projectID, tierID string) {
	payload := []byte(`{"metadata":{"ideType":"ANTIGRAVITY"}}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cloudCodeURL+"/v1internal:loadCodeAssist", bytes.NewReader(payload))
	if err != nil {
		return "", ""
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", loadAssistUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debug("loadCodeAssist request failed", "error", err.Error())
		return "", ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		f.logger.Debug("loadCodeAssist rejected", "status", resp.StatusCode)
		return "", ""
	}

	var parsed struct {
		CloudAICompanionProject string `json:"cloudaicompanionProject"`
		PaidTier                struct {
			ID string `json:"id"`
		} `json:"paidTier"`
		CurrentTier struct {
			ID string `json:"id"`
		} `json:"currentTier"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFetchBody)).Decode(&parsed); err != nil {
		return "", ""
	}

	tierID = parsed.PaidTier.ID
	if tierID == "" {
		tierID = parsed.CurrentTier.ID
	}
	return parsed.CloudAICompanionProject, tierID
}

// fetchModels calls fetchAvailableModels and maps the gemini and claude
// family entries into a snapshot. A 403 is a committed state, not a failure:
// the account is flagged forbidden with an empty model list.
func (f *AntigravityFetcher) fetchModels(ctx context.Context, account models.Account, token, project string) (*models.QuotaSnapshot, error) {
	payload, err := json.Marshal(map[string]string{"project": project})
	if err != nil {
		return nil, &errors.ErrFetch{AccountID: account.ID, Reason: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cloudCodeURL+"/v1internal:fetchAvailableModels", bytes.NewReader(payload))
	if err != nil {
		return nil, &errors.ErrFetch{AccountID: account.ID, Reason: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", quotaUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &errors.ErrFetch{AccountID: account.ID, Reason: "fetchAvailableModels", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		snap := models.NewQuotaSnapshot(account.ID)
		snap.Forbidden = true
		return snap, nil
	case http.StatusUnauthorized:
		return nil, errUnauthorized
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
		return nil, &errors.ErrFetch{
			AccountID: account.ID,
			Reason:    fmt.Sprintf("fetchAvailableModels status %d: %s", resp.StatusCode, excerpt(body)),
		}
	}

	var parsed struct {
		Models map[string]struct {
			QuotaInfo struct {
				RemainingFraction float64 `json:"remainingFraction"`
				ResetTime         string  `json:"resetTime"`
			} `json:"quotaInfo"`
		} `json:"models"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFetchBody)).Decode(&parsed); err != nil {
		return nil, &errors.ErrFetch{AccountID: account.ID, Reason: "decode fetchAvailableModels response", Err: err}
	}

	snap := models.NewQuotaSnapshot(account.ID)
	for name, info := range parsed.Models {
		lower := strings.ToLower(name)
		if !strings.Contains(lower, "gemini") && !strings.Contains(lower, "claude") {
			continue
		}
		used := (1 - info.QuotaInfo.RemainingFraction) * 100
		if used < 0 {
			used = 0
		}
		if used > 100 {
			used = 100
		}
		mq := models.ModelQuota{UsedPercent: used}
		if info.QuotaInfo.ResetTime != "" {
			if t, perr := time.Parse(time.RFC3339, info.QuotaInfo.ResetTime); perr == nil {
				mq.ResetAt = t
			}
		}
		snap.Models[name] = mq
	}
	return snap, nil
}

// refreshToken exchanges the refresh token for a fresh access token and
// patches the credential file in place. Remote-sourced credentials carry no
// source path and keep the new token in memory only.
func (f *AntigravityFetcher) refreshToken(ctx context.Context, account models.Account, creds *models.AccountCredentials) error {
	clientID := creds.ClientID
	clientSecret := creds.ClientSecret
	if clientID == "" {
		clientID = f.oauth.ClientID
	}
	if clientSecret == "" {
		clientSecret = f.oauth.ClientSecret
	}
	if clientID == "" || clientSecret == "" {
		return &errors.ErrTokenRefresh{
			AccountID: account.ID,
			Err:       stderrors.New("no oauth client material in credential file or config"),
		}
	}

	tokenURL := f.tokenURL
	if creds.TokenURI != "" {
		tokenURL = creds.TokenURI
	}

	form := url.Values{
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {creds.RefreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return &errors.ErrTokenRefresh{AccountID: account.ID, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(req)
	if err != nil {
		return &errors.ErrTokenRefresh{AccountID: account.ID, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
		return &errors.ErrTokenRefresh{
			AccountID: account.ID,
			Err:       fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, excerpt(body)),
		}
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFetchBody)).Decode(&parsed); err != nil {
		return &errors.ErrTokenRefresh{AccountID: account.ID, Err: err}
	}
	if parsed.AccessToken == "" {
		return &errors.ErrTokenRefresh{AccountID: account.ID, Err: stderrors.New("response carries no access_token")}
	}

	creds.AccessToken = parsed.AccessToken
	var expiry time.Time
	if parsed.ExpiresIn > 0 {
		expiry = time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
		creds.ExpiryDateMs = expiry.UnixMilli()
	}

	if creds.SourcePath != "" {
		if err := accounts.PatchToken(creds.SourcePath, parsed.AccessToken, expiry); err != nil {
			f.logger.Warn("failed to write refreshed token back", "path", creds.SourcePath, "error", err.Error())
		}
	}
	f.logger.Debug("access token refreshed", "account_id", account.ID)
	return nil
}

func excerpt(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max]
	}
	return s
}

var _ Fetcher = (*AntigravityFetcher)(nil)
