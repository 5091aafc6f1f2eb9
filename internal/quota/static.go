package quota

import (
	"context"
	"fmt"

	"github.com/proxydeck/proxydeck/internal/errors"
	"github.com/proxydeck/proxydeck/internal/models"
)

// staticCatalogs lists the models each non-antigravity provider serves.
// These types expose no usage API, so their snapshots carry the catalog with
// zero usage: they answer "what can this account run", not "how much is left".
var staticCatalogs = map[models.AccountType][]string{
	models.TypeGemini:   {"gemini-2.5-pro", "gemini-2.5-flash"},
	models.TypeCodex:    {"gpt-5", "gpt-5-codex"},
	models.TypeClaude:   {"claude-sonnet-4-5", "claude-opus-4-1"},
	models.TypeQwen:     {"qwen3-coder-plus", "qwen3-coder-flash"},
	models.TypeIFlow:    {"qwen3-coder", "kimi-k2", "glm-4.5", "deepseek-v3.1"},
	models.TypeAIStudio: {"gemini-2.5-pro", "gemini-2.5-flash"},
	models.TypeVertex:   {"gemini-2.5-pro", "gemini-2.5-flash"},
}

// StaticFetcher serves fixed model catalogs for account types without a
// quota API. Fetches never touch the network.
type StaticFetcher struct{}

func NewStaticFetcher() *StaticFetcher {
	return &StaticFetcher{}
}

func (sf *StaticFetcher) Fetch(_ context.Context, account models.Account) (*models.QuotaSnapshot, error) {
	catalog, ok := staticCatalogs[account.Type]
	if !ok {
		return nil, &errors.ErrFetch{
			AccountID: account.ID,
			Reason:    fmt.Sprintf("no model catalog for account type %q", account.Type),
		}
	}

	snap := models.NewQuotaSnapshot(account.ID)
	snap.Tier = account.Tier
	for _, name := range catalog {
		snap.Models[name] = models.ModelQuota{}
	}
	return snap, nil
}

var _ Fetcher = (*StaticFetcher)(nil)
