// Package quota fetches per-model usage for provider accounts and commits
// the results to the snapshot store. Antigravity accounts get a live fetch
// against the cloudcode API; every other supported type gets its fixed model
// catalog without touching the network.
package quota

import (
	"context"

	"github.com/proxydeck/proxydeck/internal/accounts"
	"github.com/proxydeck/proxydeck/internal/config"
	"github.com/proxydeck/proxydeck/internal/logging"
	"github.com/proxydeck/proxydeck/internal/models"
)

// Fetcher produces a quota snapshot for one account.
type Fetcher interface {
	Fetch(ctx context.Context, account models.Account) (*models.QuotaSnapshot, error)
}

// ProviderFetcher routes each account to the fetcher for its type.
type ProviderFetcher struct {
	live   Fetcher
	static Fetcher
}

// NewProviderFetcher wires the live antigravity fetcher and the static
// catalog fetcher behind one dispatch point.
func NewProviderFetcher(source accounts.Source, client Doer, oauth config.OAuthConfig, logger *logging.Logger) *ProviderFetcher {
	return &ProviderFetcher{
		live:   NewAntigravityFetcher(source, client, oauth, logger),
		static: NewStaticFetcher(),
	}
}

func (pf *ProviderFetcher) Fetch(ctx context.Context, account models.Account) (*models.QuotaSnapshot, error) {
	if account.Type.QuotaCapable() {
		return pf.live.Fetch(ctx, account)
	}
	return pf.static.Fetch(ctx, account)
}

var _ Fetcher = (*ProviderFetcher)(nil)
