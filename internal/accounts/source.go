// Package accounts lists the provider credentials known to the proxy, either
// through its management API or by scanning the auth directory directly.
package accounts

import (
	"context"

	"github.com/proxydeck/proxydeck/internal/logging"
	"github.com/proxydeck/proxydeck/internal/models"
)

// Source lists provider accounts. Consumers key everything by account ID,
// never by listing position.
type Source interface {
	// List returns the current accounts, sorted by ID.
	List(ctx context.Context) ([]models.Account, error)

	// Credentials loads the credential material behind an account.
	Credentials(ctx context.Context, account models.Account) (*models.AccountCredentials, error)

	// Delete removes the credential behind an account. Returns
	// ErrAccountNotFound when it does not exist.
	Delete(ctx context.Context, account models.Account) error
}

// FallbackSource serves from the primary source and falls back to the
// secondary when the primary cannot produce a listing. Credential loads and
// deletes dispatch on where the account was listed from.
type FallbackSource struct {
	primary  Source
	fallback Source
	logger   *logging.Logger
}

// NewFallbackSource wires a remote-first source with a local fallback.
func NewFallbackSource(primary, fallback Source, logger *logging.Logger) *FallbackSource {
	return &FallbackSource{primary: primary, fallback: fallback, logger: logger}
}

// List tries the primary source first.
func (s *FallbackSource) List(ctx context.Context) ([]models.Account, error) {
	accounts, err := s.primary.List(ctx)
	if err == nil {
		return accounts, nil
	}
	s.logger.Warn("primary account source failed, falling back", "error", err.Error())
	return s.fallback.List(ctx)
}

// Credentials loads from the source the account was listed from.
func (s *FallbackSource) Credentials(ctx context.Context, account models.Account) (*models.AccountCredentials, error) {
	if account.Source == models.SourceRemote {
		return s.primary.Credentials(ctx, account)
	}
	return s.fallback.Credentials(ctx, account)
}

// Delete removes through the primary first, then the fallback, matching how
// an operator would clean up when the proxy is down.
func (s *FallbackSource) Delete(ctx context.Context, account models.Account) error {
	err := s.primary.Delete(ctx, account)
	if err == nil {
		return nil
	}
	s.logger.Warn("primary account delete failed, trying fallback", "account", account.ID, "error", err.Error())
	return s.fallback.Delete(ctx, account)
}

var _ Source = (*FallbackSource)(nil)
