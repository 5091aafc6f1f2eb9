package accounts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/proxydeck/proxydeck/internal/errors"
	"github.com/proxydeck/proxydeck/internal/models"
)

// authFile mirrors the on-disk credential JSON, including the nested token
// object the proxy sometimes stores OAuth material under.
type authFile struct {
	Type         string `json:"type"`
	Email        string `json:"email"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	APIKey       string `json:"api_key"`
	ProjectID    string `json:"project_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TokenURI     string `json:"token_uri"`
	ExpiryDateMs int64  `json:"expiry_date"`
	Expire       string `json:"expire"`
	Expired      string `json:"expired"`
	Expiry       string `json:"expiry"`
	Timestamp    int64  `json:"timestamp"`
	ExpiresIn    int64  `json:"expires_in"`
	TierID       string `json:"tier_id"`
	Token        struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
		TokenURI     string `json:"token_uri"`
		Expiry       string `json:"expiry"`
		ExpiresIn    int64  `json:"expires_in"`
	} `json:"token"`
}

// LoadCredentials reads and parses one credential file.
func LoadCredentials(path string) (*models.AccountCredentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.ErrFileRead{Path: path, Err: err}
	}
	creds, err := ParseCredentials(data)
	if err != nil {
		return nil, fmt.Errorf("credential file %s: %w", filepath.Base(path), err)
	}
	creds.SourcePath = path
	return creds, nil
}

// ParseCredentials parses credential JSON, folding the nested token object
// into the flat fields.
func ParseCredentials(data []byte) (*models.AccountCredentials, error) {
	var raw authFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	if raw.AccessToken == "" {
		raw.AccessToken = raw.Token.AccessToken
	}
	if raw.RefreshToken == "" {
		raw.RefreshToken = raw.Token.RefreshToken
	}
	if raw.ClientID == "" {
		raw.ClientID = raw.Token.ClientID
	}
	if raw.ClientSecret == "" {
		raw.ClientSecret = raw.Token.ClientSecret
	}
	if raw.TokenURI == "" {
		raw.TokenURI = raw.Token.TokenURI
	}
	if raw.Expiry == "" {
		raw.Expiry = raw.Token.Expiry
	}
	if raw.ExpiresIn == 0 {
		raw.ExpiresIn = raw.Token.ExpiresIn
	}

	creds := &models.AccountCredentials{
		Type:         strings.ToLower(strings.TrimSpace(raw.Type)),
		Email:        raw.Email,
		AccessToken:  raw.AccessToken,
		RefreshToken: raw.RefreshToken,
		APIKey:       raw.APIKey,
		ProjectID:    raw.ProjectID,
		ClientID:     raw.ClientID,
		ClientSecret: raw.ClientSecret,
		TokenURI:     raw.TokenURI,
		ExpiryDateMs: raw.ExpiryDateMs,
		TierID:       raw.TierID,
	}

	// Expiry appears in several shapes across providers: epoch ms, an RFC3339
	// string, or a creation timestamp plus a lifetime.
	switch {
	case creds.ExpiryDateMs > 0:
	case raw.Expired != "":
		creds.Expire = raw.Expired
	case raw.Expire != "":
		creds.Expire = raw.Expire
	case raw.Expiry != "":
		creds.Expire = raw.Expiry
	case raw.Timestamp > 0 && raw.ExpiresIn > 0:
		creds.ExpiryDateMs = raw.Timestamp + raw.ExpiresIn*1000
	}

	return creds, nil
}

// PatchToken rewrites a credential file with a fresh access token the way the
// proxy itself would: every field it wrote and the console does not model is
// preserved.
func PatchToken(path, accessToken string, expiry time.Time) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &errors.ErrFileRead{Path: path, Err: err}
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("credential file %s: %w", filepath.Base(path), err)
	}

	raw["access_token"] = accessToken
	if !expiry.IsZero() {
		raw["expiry_date"] = expiry.UnixMilli()
		raw["expired"] = expiry.Format(time.RFC3339)
	}
	if tok, ok := raw["token"].(map[string]interface{}); ok {
		tok["access_token"] = accessToken
		if !expiry.IsZero() {
			tok["expiry"] = expiry.Format(time.RFC3339)
		}
	}

	out, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0600)
}

// accountIDFor derives the stable account id: type plus email, or the
// credential filename stem when the file carries no email.
func accountIDFor(t models.AccountType, email, filename string) string {
	if email != "" {
		return models.AccountID(t, email)
	}
	stem := strings.TrimSuffix(filepath.Base(filename), ".json")
	return models.AccountID(t, stem)
}
