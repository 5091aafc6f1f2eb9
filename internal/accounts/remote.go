package accounts

import (
	"context"
	"sync"
	"time"

	"github.com/proxydeck/proxydeck/internal/logging"
	"github.com/proxydeck/proxydeck/internal/models"
	"github.com/proxydeck/proxydeck/internal/store"
)

// RemoteAPISource lists accounts through the proxy's management API. Every
// successful listing replaces the durable last-good cache in the store; when
// the API rejects or cannot be reached, the cache is served instead so a proxy
// restart never blanks the dashboard. For remote accounts the Path field
// carries the auth-file name, not a filesystem path.
type RemoteAPISource struct {
	client *ManagementClient
	store  store.Store
	logger *logging.Logger

	mu      sync.RWMutex
	lastErr error
}

// NewRemoteAPISource creates a source over the management API.
func NewRemoteAPISource(client *ManagementClient, st store.Store, logger *logging.Logger) *RemoteAPISource {
	return &RemoteAPISource{client: client, store: st, logger: logger}
}

// List fetches the auth-file listing. On auth rejection or an unreachable
// API it returns the last successfully fetched list; the typed error is
// returned only when no last-good listing exists yet.
func (s *RemoteAPISource) List(ctx context.Context) ([]models.Account, error) {
	files, err := s.client.ListAuthFiles(ctx)
	if err != nil {
		s.setLastErr(err)
		cached, syncedAt, ok := s.store.GetRemoteAccounts()
		if !ok {
			return nil, err
		}
		s.logger.Warn("management API unavailable, serving cached accounts",
			"error", err.Error(), "synced_at", syncedAt.Format(time.RFC3339))
		accounts := make(models.AccountSlice, 0, len(cached))
		for _, acc := range cached {
			if acc != nil {
				accounts = append(accounts, *acc)
			}
		}
		return accounts.SortByID(), nil
	}
	s.setLastErr(nil)

	accounts := make(models.AccountSlice, 0, len(files))
	for _, f := range files {
		acc, ok := f.ToAccount()
		if !ok {
			s.logger.Debug("skipping auth file with unknown type", "name", f.Name, "type", f.Type)
			continue
		}
		accounts = append(accounts, acc)
	}
	sorted := accounts.SortByID()

	persisted := make([]*models.Account, len(sorted))
	for i := range sorted {
		persisted[i] = &sorted[i]
	}
	if err := s.store.SetRemoteAccounts(persisted); err != nil {
		s.logger.Warn("failed to persist remote account cache", "error", err.Error())
	}

	return sorted, nil
}

// Credentials downloads the credential content behind an account.
func (s *RemoteAPISource) Credentials(ctx context.Context, account models.Account) (*models.AccountCredentials, error) {
	data, err := s.client.DownloadAuthFile(ctx, account.Path)
	if err != nil {
		return nil, err
	}
	creds, err := ParseCredentials(data)
	if err != nil {
		return nil, err
	}
	return creds, nil
}

// Delete removes the auth file behind an account through the management API.
func (s *RemoteAPISource) Delete(ctx context.Context, account models.Account) error {
	return s.client.DeleteAuthFile(ctx, account.Path)
}

// LastError reports whether the most recent listing had to fall back to the
// cache, for the dashboard's mode indicator.
func (s *RemoteAPISource) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *RemoteAPISource) setLastErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

var _ Source = (*RemoteAPISource)(nil)
