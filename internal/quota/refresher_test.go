package quota

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxydeck/proxydeck/internal/config"
	"github.com/proxydeck/proxydeck/internal/errors"
	"github.com/proxydeck/proxydeck/internal/logging"
	"github.com/proxydeck/proxydeck/internal/models"
	"github.com/proxydeck/proxydeck/internal/store"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.WithOutput(io.Discard))
}

// fetchFunc adapts a function to the Fetcher interface.
type fetchFunc func(ctx context.Context, account models.Account) (*models.QuotaSnapshot, error)

func (f fetchFunc) Fetch(ctx context.Context, account models.Account) (*models.QuotaSnapshot, error) {
	return f(ctx, account)
}

func testAccount(id string, t models.AccountType) models.Account {
	return models.Account{
		ID:     id,
		Type:   t,
		Email:  id + "@example.com",
		Tier:   models.TierUnknown,
		Active: true,
		Source: models.SourceLocal,
	}
}

func okSnapshot(account models.Account) *models.QuotaSnapshot {
	snap := models.NewQuotaSnapshot(account.ID)
	snap.Models["gemini-3-pro"] = models.ModelQuota{UsedPercent: 25}
	return snap
}

func TestRefresher_RefreshAll(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()

	fetcher := fetchFunc(func(_ context.Context, account models.Account) (*models.QuotaSnapshot, error) {
		switch account.ID {
		case "antigravity_bad":
			return nil, &errors.ErrFetch{AccountID: account.ID, Reason: "upstream rejected"}
		case "gemini_static":
			snap := models.NewQuotaSnapshot(account.ID)
			snap.Models["gemini-2.5-pro"] = models.ModelQuota{}
			return snap, nil
		default:
			return okSnapshot(account), nil
		}
	})

	r := NewRefresher(fetcher, st, config.QuotaConfig{}, testLogger())

	accounts := []models.Account{
		testAccount("antigravity_a", models.TypeAntigravity),
		testAccount("antigravity_b", models.TypeAntigravity),
		testAccount("antigravity_bad", models.TypeAntigravity),
		testAccount("gemini_static", models.TypeGemini),
	}
	summary := r.RefreshAll(context.Background(), accounts)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.OK)
	assert.Equal(t, 1, summary.Static)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Results, 4)

	for i := 1; i < len(summary.Results); i++ {
		assert.LessOrEqual(t, summary.Results[i-1].AccountID, summary.Results[i].AccountID,
			"results should be sorted by account id")
	}

	// Every account reaches a terminal state in the store.
	for _, account := range accounts {
		snap, ok := st.GetSnapshot(account.ID)
		require.True(t, ok, "missing snapshot for %s", account.ID)
		if account.ID == "antigravity_bad" {
			assert.Equal(t, models.FetchStatusError, snap.FetchStatus)
			assert.Contains(t, snap.Error, "upstream rejected")
		} else {
			assert.Equal(t, models.FetchStatusOK, snap.FetchStatus)
		}
	}
}

func TestRefresher_RefreshAllEmpty(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()

	r := NewRefresher(fetchFunc(func(_ context.Context, account models.Account) (*models.QuotaSnapshot, error) {
		return okSnapshot(account), nil
	}), st, config.QuotaConfig{}, testLogger())

	summary := r.RefreshAll(context.Background(), nil)
	assert.Equal(t, 0, summary.Total)
	assert.Empty(t, summary.Results)
}

func TestRefresher_BoundedConcurrency(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()

	var current, peak int32
	fetcher := fetchFunc(func(_ context.Context, account models.Account) (*models.QuotaSnapshot, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return okSnapshot(account), nil
	})

	r := NewRefresher(fetcher, st, config.QuotaConfig{Concurrency: 4}, testLogger())

	accounts := make([]models.Account, 0, 10)
	for i := 0; i < 10; i++ {
		accounts = append(accounts, testAccount("antigravity_acct"+string(rune('a'+i)), models.TypeAntigravity))
	}
	summary := r.RefreshAll(context.Background(), accounts)

	assert.Equal(t, 10, summary.OK)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(4), "more than 4 fetches in flight")
}

func TestRefresher_SingleFlight(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls int32

	fetcher := fetchFunc(func(_ context.Context, account models.Account) (*models.QuotaSnapshot, error) {
		atomic.AddInt32(&calls, 1)
		started <- struct{}{}
		<-release
		return okSnapshot(account), nil
	})

	r := NewRefresher(fetcher, st, config.QuotaConfig{}, testLogger())
	account := testAccount("antigravity_shared", models.TypeAntigravity)

	var (
		wg    sync.WaitGroup
		snaps [2]*models.QuotaSnapshot
		errs  [2]error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		snaps[0], errs[0] = r.RefreshOne(context.Background(), account)
	}()

	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		snaps[1], errs[1] = r.RefreshOne(context.Background(), account)
	}()

	// Give the second caller time to join the in-flight fetch.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "joined refresh should not fetch twice")
	assert.Same(t, snaps[0], snaps[1], "joined callers share one result")
}

func TestRefresher_TimeoutMarksErrorKeepsPrior(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()

	prior := models.NewQuotaSnapshot("antigravity_slow")
	prior.Models["gemini-3-pro"] = models.ModelQuota{UsedPercent: 42}
	prior.Tier = models.TierPro
	require.NoError(t, st.PutSnapshot(prior))

	fetcher := fetchFunc(func(ctx context.Context, _ models.Account) (*models.QuotaSnapshot, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	r := NewRefresher(fetcher, st, config.QuotaConfig{FetchTimeout: 50 * time.Millisecond}, testLogger())

	_, err := r.RefreshOne(context.Background(), testAccount("antigravity_slow", models.TypeAntigravity))
	require.Error(t, err)

	var timeoutErr *errors.ErrFetchTimeout
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "antigravity_slow", timeoutErr.AccountID)

	snap, ok := st.GetSnapshot("antigravity_slow")
	require.True(t, ok)
	assert.Equal(t, models.FetchStatusError, snap.FetchStatus)
	assert.Contains(t, snap.Error, "timed out")
	assert.InDelta(t, 42.0, snap.Models["gemini-3-pro"].UsedPercent, 0.001,
		"prior models survive a failed refresh")
	assert.Equal(t, models.TierPro, snap.Tier)
}

func TestRefresher_CallerCancelDiscardsWrite(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()

	prior := models.NewQuotaSnapshot("antigravity_cancel")
	prior.Models["gemini-3-pro"] = models.ModelQuota{UsedPercent: 42}
	require.NoError(t, st.PutSnapshot(prior))

	fetchDone := make(chan struct{})
	fetcher := fetchFunc(func(ctx context.Context, _ models.Account) (*models.QuotaSnapshot, error) {
		defer close(fetchDone)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	r := NewRefresher(fetcher, st, config.QuotaConfig{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := r.RefreshOne(ctx, testAccount("antigravity_cancel", models.TypeAntigravity))
	require.ErrorIs(t, err, context.Canceled)

	select {
	case <-fetchDone:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not observe cancellation")
	}

	snap, ok := st.GetSnapshot("antigravity_cancel")
	require.True(t, ok)
	assert.Equal(t, models.FetchStatusOK, snap.FetchStatus, "canceled refresh must not mark the snapshot")
	assert.InDelta(t, 42.0, snap.Models["gemini-3-pro"].UsedPercent, 0.001)
}

func TestRefresher_RunPeriodic(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()

	var passes int32
	fetcher := fetchFunc(func(_ context.Context, account models.Account) (*models.QuotaSnapshot, error) {
		atomic.AddInt32(&passes, 1)
		return okSnapshot(account), nil
	})

	r := NewRefresher(fetcher, st, config.QuotaConfig{}, testLogger())

	list := func(_ context.Context) ([]models.Account, error) {
		return []models.Account{testAccount("antigravity_tick", models.TypeAntigravity)}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.RunPeriodic(ctx, 25*time.Millisecond, list)
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&passes) >= 3
	}, 2*time.Second, 10*time.Millisecond, "periodic refresh should keep firing")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunPeriodic did not stop on cancel")
	}
}
