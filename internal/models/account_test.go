package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccountType(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      AccountType
		wantKnown bool
	}{
		{"antigravity", "antigravity", TypeAntigravity, true},
		{"uppercase", "GEMINI", TypeGemini, true},
		{"padded", "  claude  ", TypeClaude, true},
		{"codex", "codex", TypeCodex, true},
		{"qwen", "qwen", TypeQwen, true},
		{"iflow", "iflow", TypeIFlow, true},
		{"aistudio", "aistudio", TypeAIStudio, true},
		{"vertex", "vertex", TypeVertex, true},
		{"unknown", "frontier", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, known := ParseAccountType(tt.input)
			assert.Equal(t, tt.wantKnown, known)
			if tt.wantKnown {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestAccountType_QuotaCapable(t *testing.T) {
	assert.True(t, TypeAntigravity.QuotaCapable())
	assert.False(t, TypeGemini.QuotaCapable())
	assert.False(t, TypeClaude.QuotaCapable())
	assert.False(t, TypeQwen.QuotaCapable())
}

func TestNormalizeTier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Tier
	}{
		{"ultra", "g1-ultra-tier", TierUltra},
		{"pro", "g1-pro-tier", TierPro},
		{"free", "free-tier", TierFree},
		{"uppercase", "ULTRA", TierUltra},
		{"legacy", "legacy-tier", TierUnknown},
		{"empty", "", TierUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTier(tt.input))
		})
	}
}

func TestAccount_Validate(t *testing.T) {
	tests := []struct {
		name    string
		account Account
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid account",
			account: Account{
				ID:     "antigravity_user@gmail.com",
				Type:   TypeAntigravity,
				Email:  "user@gmail.com",
				Tier:   TierUltra,
				Active: true,
				Source: SourceLocal,
			},
			wantErr: false,
		},
		{
			name:    "missing ID",
			account: Account{Type: TypeGemini},
			wantErr: true,
			errMsg:  "account ID is required",
		},
		{
			name:    "missing type",
			account: Account{ID: "acc-1"},
			wantErr: true,
			errMsg:  "account type is required",
		},
		{
			name:    "unknown type",
			account: Account{ID: "acc-1", Type: "frontier"},
			wantErr: true,
			errMsg:  "unknown account type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.account.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAccountID(t *testing.T) {
	tests := []struct {
		name  string
		typ   AccountType
		email string
		want  string
	}{
		{"plain email", TypeAntigravity, "user@gmail.com", "antigravity_user@gmail.com"},
		{"spaces collapsed", TypeGemini, "user name@x.io", "gemini_user_name@x.io"},
		{"odd characters", TypeClaude, "a/b:c", "claude_a_b_c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AccountID(tt.typ, tt.email))
		})
	}
}

func TestAccountSlice_FindByID(t *testing.T) {
	accounts := AccountSlice{
		{ID: "antigravity_a@x.io", Type: TypeAntigravity},
		{ID: "gemini_b@x.io", Type: TypeGemini},
		{ID: "claude_c@x.io", Type: TypeClaude},
	}

	tests := []struct {
		name      string
		id        string
		wantFound bool
		wantType  AccountType
	}{
		{"find first", "antigravity_a@x.io", true, TypeAntigravity},
		{"find middle", "gemini_b@x.io", true, TypeGemini},
		{"find unknown", "codex_zzz", false, ""},
		{"empty id", "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, found := accounts.FindByID(tt.id)
			assert.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.Equal(t, tt.wantType, acc.Type)
			}
		})
	}
}

func TestAccountSlice_FilterByType(t *testing.T) {
	accounts := AccountSlice{
		{ID: "a", Type: TypeAntigravity},
		{ID: "b", Type: TypeGemini},
		{ID: "c", Type: TypeAntigravity},
		{ID: "d", Type: TypeCodex},
	}

	filtered := accounts.FilterByType(TypeAntigravity)

	assert.Len(t, filtered, 2)
	assert.Equal(t, "a", filtered[0].ID)
	assert.Equal(t, "c", filtered[1].ID)
}

func TestAccountSlice_FilterQuotaCapable(t *testing.T) {
	accounts := AccountSlice{
		{ID: "a", Type: TypeAntigravity},
		{ID: "b", Type: TypeGemini},
		{ID: "c", Type: TypeClaude},
	}

	filtered := accounts.FilterQuotaCapable()

	assert.Len(t, filtered, 1)
	assert.Equal(t, "a", filtered[0].ID)
}

func TestAccountSlice_SortByID(t *testing.T) {
	accounts := AccountSlice{
		{ID: "gemini_b"},
		{ID: "antigravity_a"},
		{ID: "iflow_c"},
	}

	sorted := accounts.SortByID()

	assert.Equal(t, "antigravity_a", sorted[0].ID)
	assert.Equal(t, "gemini_b", sorted[1].ID)
	assert.Equal(t, "iflow_c", sorted[2].ID)
	// original untouched
	assert.Equal(t, "gemini_b", accounts[0].ID)
}
