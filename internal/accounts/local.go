package accounts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/proxydeck/proxydeck/internal/errors"
	"github.com/proxydeck/proxydeck/internal/logging"
	"github.com/proxydeck/proxydeck/internal/models"
)

// LocalFileSource lists accounts by scanning the proxy's auth directory.
type LocalFileSource struct {
	dir      string
	debounce time.Duration
	logger   *logging.Logger
}

// NewLocalFileSource creates a source over the given auth directory.
func NewLocalFileSource(dir string, debounce time.Duration, logger *logging.Logger) *LocalFileSource {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &LocalFileSource{dir: dir, debounce: debounce, logger: logger}
}

// Dir returns the auth directory this source scans.
func (s *LocalFileSource) Dir() string {
	return s.dir
}

// List scans the auth directory for credential files. A malformed file is
// logged and skipped; the listing continues. A missing directory lists as
// empty since the proxy may not have provisioned anything yet.
func (s *LocalFileSource) List(ctx context.Context) ([]models.Account, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) || os.IsPermission(err) {
			return []models.Account{}, nil
		}
		return nil, &errors.ErrFileRead{Path: s.dir, Err: err}
	}

	var accounts models.AccountSlice
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		creds, err := LoadCredentials(path)
		if err != nil {
			s.logger.Warn("skipping malformed auth file", "file", entry.Name(), "error", err.Error())
			continue
		}

		accType, ok := models.ParseAccountType(creds.Type)
		if !ok {
			s.logger.Debug("skipping auth file with unknown type", "file", entry.Name(), "type", creds.Type)
			continue
		}

		accounts = append(accounts, models.Account{
			ID:     accountIDFor(accType, creds.Email, entry.Name()),
			Type:   accType,
			Email:  creds.Email,
			Tier:   models.NormalizeTier(creds.TierID),
			Active: true,
			Source: models.SourceLocal,
			Path:   path,
		})
	}

	return accounts.SortByID(), nil
}

// Credentials loads the credential file behind an account.
func (s *LocalFileSource) Credentials(ctx context.Context, account models.Account) (*models.AccountCredentials, error) {
	if account.Path == "" {
		return nil, &errors.ErrAccountNotFound{AccountID: account.ID}
	}
	return LoadCredentials(account.Path)
}

// Delete removes the credential file behind an account.
func (s *LocalFileSource) Delete(ctx context.Context, account models.Account) error {
	path := account.Path
	if path == "" {
		return &errors.ErrAccountNotFound{AccountID: account.ID}
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return &errors.ErrAccountNotFound{AccountID: account.ID}
		}
		return err
	}
	s.logger.Info("auth file deleted", "file", filepath.Base(path))
	return nil
}

// Watch notifies onChange when the auth directory content settles after a
// burst of file events. It returns after starting the watcher goroutine and
// stops when ctx is cancelled.
func (s *LocalFileSource) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		var timerC <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(event.Name, ".json") {
					continue
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
					event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					if timer == nil {
						timer = time.NewTimer(s.debounce)
						timerC = timer.C
					} else {
						if !timer.Stop() {
							select {
							case <-timer.C:
							default:
							}
						}
						timer.Reset(s.debounce)
					}
				}

			case <-timerC:
				timer = nil
				timerC = nil
				s.logger.Debug("auth directory changed")
				onChange()

			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("auth watcher error", "error", watchErr.Error())
			}
		}
	}()

	return nil
}

var _ Source = (*LocalFileSource)(nil)
