package quota

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/proxydeck/proxydeck/internal/config"
	"github.com/proxydeck/proxydeck/internal/errors"
	"github.com/proxydeck/proxydeck/internal/logging"
	"github.com/proxydeck/proxydeck/internal/models"
	"github.com/proxydeck/proxydeck/internal/store"
)

const (
	defaultConcurrency  = 4
	defaultFetchTimeout = 30 * time.Second
)

// Refresh result statuses.
const (
	RefreshOK     = "ok"
	RefreshStatic = "static"
	RefreshError  = "error"
)

// RefreshResult records the terminal state of one account refresh.
type RefreshResult struct {
	AccountID  string `json:"account_id"`
	Email      string `json:"email,omitempty"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	ModelCount int    `json:"model_count"`
}

// Summary aggregates one RefreshAll pass.
type Summary struct {
	Total   int             `json:"total"`
	OK      int             `json:"ok"`
	Static  int             `json:"static"`
	Failed  int             `json:"failed"`
	Results []RefreshResult `json:"results,omitempty"`
}

// Refresher drives quota fetches through a bounded pool and commits the
// results to the snapshot store. A slow fetch never blocks its siblings, and
// concurrent refreshes of the same account coalesce into one fetch.
type Refresher struct {
	fetcher Fetcher
	store   store.Store
	logger  *logging.Logger
	timeout time.Duration
	sem     *semaphore.Weighted
	group   singleflight.Group
}

func NewRefresher(fetcher Fetcher, st store.Store, cfg config.QuotaConfig, logger *logging.Logger) *Refresher {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Refresher{
		fetcher: fetcher,
		store:   st,
		logger:  logger,
		timeout: timeout,
		sem:     semaphore.NewWeighted(int64(concurrency)),
	}
}

// RefreshOne fetches and commits a snapshot for one account. A refresh
// already in flight for the same account id is joined instead of duplicated.
// Caller cancellation discards the result without touching the store.
func (r *Refresher) RefreshOne(ctx context.Context, account models.Account) (*models.QuotaSnapshot, error) {
	ch := r.group.DoChan(account.ID, func() (interface{}, error) {
		return r.refresh(ctx, account)
	})

	select {
	case res := <-ch:
		snap, _ := res.Val.(*models.QuotaSnapshot)
		return snap, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Refresher) refresh(ctx context.Context, account models.Account) (*models.QuotaSnapshot, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	fctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	snap, err := r.fetcher.Fetch(fctx, account)
	if err != nil {
		if ctx.Err() != nil {
			// Caller is gone; the committed snapshot stays intact.
			return nil, ctx.Err()
		}
		if stderrors.Is(err, context.DeadlineExceeded) {
			err = &errors.ErrFetchTimeout{AccountID: account.ID, Timeout: r.timeout}
		}
		if merr := r.store.MarkSnapshotError(account.ID, time.Now().UTC(), err.Error()); merr != nil {
			r.logger.Warn("failed to record fetch error", "account_id", account.ID, "error", merr.Error())
		}
		r.logger.Warn("quota refresh failed", "account_id", account.ID, "error", err.Error())
		return nil, err
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if perr := r.store.PutSnapshot(snap); perr != nil {
		return nil, &errors.ErrFetch{AccountID: account.ID, Reason: "commit snapshot", Err: perr}
	}
	return snap, nil
}

// RefreshAll refreshes every account through the bounded pool. Individual
// failures are recorded per account; the pass itself always completes with
// every account at a terminal status.
func (r *Refresher) RefreshAll(ctx context.Context, accounts []models.Account) *Summary {
	summary := &Summary{Total: len(accounts)}
	if len(accounts) == 0 {
		return summary
	}
	summary.Results = make([]RefreshResult, 0, len(accounts))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, account := range accounts {
		wg.Add(1)
		go func(account models.Account) {
			defer wg.Done()

			result := RefreshResult{AccountID: account.ID, Email: account.Email}
			snap, err := r.RefreshOne(ctx, account)
			switch {
			case err != nil:
				result.Status = RefreshError
				result.Message = err.Error()
			case account.Type.QuotaCapable():
				result.Status = RefreshOK
				result.ModelCount = len(snap.Models)
			default:
				result.Status = RefreshStatic
				result.ModelCount = len(snap.Models)
			}

			mu.Lock()
			switch result.Status {
			case RefreshOK:
				summary.OK++
			case RefreshStatic:
				summary.Static++
			default:
				summary.Failed++
			}
			summary.Results = append(summary.Results, result)
			mu.Unlock()
		}(account)
	}
	wg.Wait()

	sort.Slice(summary.Results, func(i, j int) bool {
		return summary.Results[i].AccountID < summary.Results[j].AccountID
	})

	r.logger.Info("quota refresh pass complete",
		"total", summary.Total, "ok", summary.OK, "static", summary.Static, "failed", summary.Failed)
	return summary
}

// RunPeriodic refreshes all accounts from list on a fixed interval until the
// context is canceled. The first pass runs immediately. Callers own the
// goroutine; the refresher itself never starts background timers.
func (r *Refresher) RunPeriodic(ctx context.Context, interval time.Duration, list func(context.Context) ([]models.Account, error)) {
	if interval <= 0 {
		return
	}

	refreshPass := func() {
		accounts, err := list(ctx)
		if err != nil {
			r.logger.Warn("account listing failed, skipping refresh pass", "error", err.Error())
			return
		}
		r.RefreshAll(ctx, accounts)
	}

	refreshPass()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshPass()
		}
	}
}
