package provision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/proxydeck/proxydeck/internal/config"
	"github.com/proxydeck/proxydeck/internal/models"
)

const (
	googleAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"

	maxTokenBody = 1 << 20
)

var googleScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"openid",
}

// Provider supplies the OAuth endpoints and code exchange for one account
// family. Implementations must be safe for concurrent use.
type Provider interface {
	// AuthorizationURL builds the URL the operator opens in a browser,
	// carrying the session state token and the local redirect target.
	AuthorizationURL(state, redirectURI string) string

	// Exchange trades the callback's authorization code for the credential
	// JSON that gets persisted into the auth directory.
	Exchange(ctx context.Context, code, redirectURI string) ([]byte, error)
}

// CodeProvider implements the plain authorization-code flow against a single
// token endpoint. The client id and secret come from configuration, never
// from compiled-in constants.
type CodeProvider struct {
	Type         models.AccountType
	AuthURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	ExtraParams  map[string]string
	Client       *http.Client
}

// NewGoogleProvider builds a CodeProvider against the Google OAuth endpoints,
// used by the antigravity and gemini account families.
func NewGoogleProvider(t models.AccountType, clientID, clientSecret string) *CodeProvider {
	return &CodeProvider{
		Type:         t,
		AuthURL:      googleAuthURL,
		TokenURL:     googleTokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       googleScopes,
		ExtraParams: map[string]string{
			"access_type": "offline",
			"prompt":      "consent",
		},
	}
}

// DefaultProviders wires the providers that can run on config-supplied client
// material alone. Families whose exchange needs material the config does not
// carry are left out; Begin reports them as unconfigured.
func DefaultProviders(cfg config.OAuthConfig) map[models.AccountType]Provider {
	providers := make(map[models.AccountType]Provider)
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		providers[models.TypeAntigravity] = NewGoogleProvider(models.TypeAntigravity, cfg.ClientID, cfg.ClientSecret)
		providers[models.TypeGemini] = NewGoogleProvider(models.TypeGemini, cfg.ClientID, cfg.ClientSecret)
	}
	return providers
}

// AuthorizationURL builds the consent URL with the state token embedded.
func (p *CodeProvider) AuthorizationURL(state, redirectURI string) string {
	values := url.Values{}
	values.Set("client_id", p.ClientID)
	values.Set("redirect_uri", redirectURI)
	values.Set("response_type", "code")
	values.Set("state", state)
	if len(p.Scopes) > 0 {
		values.Set("scope", strings.Join(p.Scopes, " "))
	}
	for key, value := range p.ExtraParams {
		values.Set(key, value)
	}
	return p.AuthURL + "?" + values.Encode()
}

// Exchange posts the authorization code to the token endpoint and shapes the
// response into the credential JSON the proxy expects on disk.
func (p *CodeProvider) Exchange(ctx context.Context, code, redirectURI string) ([]byte, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", p.ClientID)
	form.Set("client_secret", p.ClientSecret)
	form.Set("redirect_uri", redirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("token endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBody))
	if err != nil {
		return nil, fmt.Errorf("token endpoint: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, excerpt(body))
	}

	var token struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		IDToken      string `json:"id_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("token endpoint: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access token")
	}

	cred := map[string]interface{}{
		"type":          string(p.Type),
		"access_token":  token.AccessToken,
		"refresh_token": token.RefreshToken,
		"client_id":     p.ClientID,
		"client_secret": p.ClientSecret,
		"token_uri":     p.TokenURL,
	}
	if email := emailFromIDToken(token.IDToken); email != "" {
		cred["email"] = email
	}
	if token.ExpiresIn > 0 {
		expiry := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second).UTC()
		cred["expiry_date"] = expiry.UnixMilli()
		cred["expired"] = expiry.Format(time.RFC3339)
	}
	return json.MarshalIndent(cred, "", "  ")
}

func (p *CodeProvider) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// emailFromIDToken pulls the email claim out of an OpenID id_token. The
// signature is not verified; the value only labels the credential file.
func emailFromIDToken(idToken string) string {
	parts := strings.Split(idToken, ".")
	if len(parts) < 2 {
		return ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ""
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return ""
	}
	return claims.Email
}

func excerpt(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		return text[:200]
	}
	return text
}

var _ Provider = (*CodeProvider)(nil)
