package models

import "time"

// AccountCredentials mirrors the JSON credential files the proxy keeps in its
// auth directory. Quota fetchers read tokens from here and write refreshed
// tokens back the same way the proxy itself would.
type AccountCredentials struct {
	AccountID    string    `json:"account_id,omitempty"`
	Type         string    `json:"type,omitempty"`
	Email        string    `json:"email,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	APIKey       string    `json:"api_key,omitempty"`
	ProjectID    string    `json:"project_id,omitempty"`
	ClientID     string    `json:"client_id,omitempty"`
	ClientSecret string    `json:"client_secret,omitempty"`
	TokenURI     string    `json:"token_uri,omitempty"`
	ExpiryDateMs int64     `json:"expiry_date,omitempty"`
	Expire       string    `json:"expire,omitempty"`
	TierID       string    `json:"tier_id,omitempty"`
	SourcePath   string    `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

// Expiry returns the access token expiry. Credential files carry either an
// epoch-milliseconds expiry_date or an RFC3339 expire string.
func (c *AccountCredentials) Expiry() time.Time {
	if c.ExpiryDateMs > 0 {
		return time.UnixMilli(c.ExpiryDateMs)
	}
	if c.Expire != "" {
		if t, err := time.Parse(time.RFC3339, c.Expire); err == nil {
			return t
		}
	}
	return time.Time{}
}

// NeedsRefresh reports whether the access token is missing or expires within
// the buffer window.
func (c *AccountCredentials) NeedsRefresh(buffer time.Duration) bool {
	if c.AccessToken == "" {
		return true
	}
	expiry := c.Expiry()
	if expiry.IsZero() {
		return false
	}
	return time.Now().Add(buffer).After(expiry)
}

// CanRefresh reports whether enough material is present to refresh the token.
func (c *AccountCredentials) CanRefresh() bool {
	return c.RefreshToken != ""
}
