package models

import (
	"fmt"
	"sort"
	"strings"
)

// AccountType represents the provider family a credential belongs to.
type AccountType string

const (
	TypeAntigravity AccountType = "antigravity"
	TypeGemini      AccountType = "gemini"
	TypeClaude      AccountType = "claude"
	TypeCodex       AccountType = "codex"
	TypeQwen        AccountType = "qwen"
	TypeIFlow       AccountType = "iflow"
	TypeAIStudio    AccountType = "aistudio"
	TypeVertex      AccountType = "vertex"
)

// KnownTypes lists every account type the console understands.
var KnownTypes = []AccountType{
	TypeAntigravity,
	TypeGemini,
	TypeClaude,
	TypeCodex,
	TypeQwen,
	TypeIFlow,
	TypeAIStudio,
	TypeVertex,
}

// ParseAccountType maps a raw type string to a known AccountType.
func ParseAccountType(s string) (AccountType, bool) {
	t := AccountType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range KnownTypes {
		if t == known {
			return known, true
		}
	}
	return "", false
}

// QuotaCapable returns true if live quota data can be fetched for this type.
func (t AccountType) QuotaCapable() bool {
	return t == TypeAntigravity
}

// Tier represents the subscription tier of an account.
type Tier string

const (
	TierUltra   Tier = "ULTRA"
	TierPro     Tier = "PRO"
	TierFree    Tier = "FREE"
	TierUnknown Tier = "unknown"
)

// NormalizeTier maps a provider tier id (e.g. "g1-ultra-tier") to a Tier.
func NormalizeTier(id string) Tier {
	lower := strings.ToLower(id)
	switch {
	case strings.Contains(lower, "ultra"):
		return TierUltra
	case strings.Contains(lower, "pro"):
		return TierPro
	case strings.Contains(lower, "free"):
		return TierFree
	default:
		return TierUnknown
	}
}

// SourceKind says where an account listing came from.
type SourceKind string

const (
	SourceLocal  SourceKind = "local"
	SourceRemote SourceKind = "remote"
)

// Account represents one provider credential known to the console.
type Account struct {
	ID     string      `json:"id"`
	Type   AccountType `json:"type"`
	Email  string      `json:"email,omitempty"`
	Tier   Tier        `json:"tier"`
	Active bool        `json:"active"`
	Source SourceKind  `json:"source"`
	Path   string      `json:"path,omitempty"`
}

// Validate checks if the account is valid.
func (a *Account) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("account ID is required")
	}
	if a.Type == "" {
		return fmt.Errorf("account type is required")
	}
	if _, ok := ParseAccountType(string(a.Type)); !ok {
		return fmt.Errorf("unknown account type %q", a.Type)
	}
	return nil
}

// AccountID builds the stable account id used for cache keys. When the email
// is empty the caller should pass the credential filename stem instead.
func AccountID(t AccountType, email string) string {
	return string(t) + "_" + SanitizeID(email)
}

// SanitizeID keeps cache keys filesystem and URL safe.
func SanitizeID(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '@' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// AccountSlice is a slice of accounts with helper methods.
type AccountSlice []Account

// FindByID returns an account by ID.
func (as AccountSlice) FindByID(id string) (*Account, bool) {
	for i := range as {
		if as[i].ID == id {
			return &as[i], true
		}
	}
	return nil, false
}

// FilterByType returns accounts of a specific type.
func (as AccountSlice) FilterByType(t AccountType) AccountSlice {
	var result AccountSlice
	for _, a := range as {
		if a.Type == t {
			result = append(result, a)
		}
	}
	return result
}

// FilterQuotaCapable returns accounts whose type supports live quota fetches.
func (as AccountSlice) FilterQuotaCapable() AccountSlice {
	var result AccountSlice
	for _, a := range as {
		if a.Type.QuotaCapable() {
			result = append(result, a)
		}
	}
	return result
}

// SortByID sorts accounts by id for stable listings.
func (as AccountSlice) SortByID() AccountSlice {
	result := make(AccountSlice, len(as))
	copy(result, as)

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result
}
