package accounts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/proxydeck/proxydeck/internal/errors"
	"github.com/proxydeck/proxydeck/internal/models"
	"github.com/proxydeck/proxydeck/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteAPISource_List_ServesCachedOnFailure(t *testing.T) {
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"files":[
			{"name":"antigravity-a.json","type":"antigravity","email":"a@example.com"},
			{"name":"antigravity-b.json","type":"antigravity","email":"b@example.com"},
			{"name":"codex-c.json","type":"codex","email":"c@example.com"},
			{"name":"gemini-d.json","type":"gemini","email":"d@example.com"},
			{"name":"claude-e.json","type":"claude","email":"e@example.com"}
		]}`))
	}))
	defer srv.Close()

	st := store.NewMemoryStore()
	src := NewRemoteAPISource(NewManagementClient(srv.URL, "key"), st, newTestLogger())

	first, err := src.List(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 5)
	assert.NoError(t, src.LastError())

	// The successful listing was persisted as last-good
	cached, _, ok := st.GetRemoteAccounts()
	require.True(t, ok)
	assert.Len(t, cached, 5)

	// The API starts failing: the listing survives from the cache
	failing.Store(true)
	second, err := src.List(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 5)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Error(t, src.LastError())

	// Recovery clears the degraded marker
	failing.Store(false)
	_, err = src.List(context.Background())
	require.NoError(t, err)
	assert.NoError(t, src.LastError())
}

func TestRemoteAPISource_List_NoCacheSurfacesTypedError(t *testing.T) {
	t.Run("Auth Rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		src := NewRemoteAPISource(NewManagementClient(srv.URL, "bad-key"), store.NewMemoryStore(), newTestLogger())
		_, err := src.List(context.Background())
		require.Error(t, err)

		var authErr *errors.ErrAuth
		assert.ErrorAs(t, err, &authErr)
	})

	t.Run("Unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		src := NewRemoteAPISource(NewManagementClient(srv.URL, "key"), store.NewMemoryStore(), newTestLogger())
		_, err := src.List(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsUnavailable(err))
	})
}

func TestRemoteAPISource_Credentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v0/management/auth-files/download" {
			w.Write([]byte(`{"type":"antigravity","email":"a@example.com","access_token":"remote-tok","refresh_token":"remote-ref"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	src := NewRemoteAPISource(NewManagementClient(srv.URL, "key"), store.NewMemoryStore(), newTestLogger())

	account := models.Account{
		ID:     "antigravity_a@example.com",
		Type:   models.TypeAntigravity,
		Source: models.SourceRemote,
		Path:   "antigravity-a.json",
	}
	creds, err := src.Credentials(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, "remote-tok", creds.AccessToken)
	// Remote credentials have no local file to write refreshed tokens to
	assert.Empty(t, creds.SourcePath)
}

func TestFallbackSource(t *testing.T) {
	// Remote side is down with no last-good cache
	deadSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadSrv.Close()
	remote := NewRemoteAPISource(NewManagementClient(deadSrv.URL, "key"), store.NewMemoryStore(), newTestLogger())

	dir := t.TempDir()
	writeAuthFile(t, dir, "antigravity-local.json", `{"type":"antigravity","email":"local@example.com"}`)
	local := NewLocalFileSource(dir, 0, newTestLogger())

	src := NewFallbackSource(remote, local, newTestLogger())

	accounts, err := src.List(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, models.SourceLocal, accounts[0].Source)
	assert.Equal(t, "local@example.com", accounts[0].Email)

	// Credential loads dispatch on the account's source
	creds, err := src.Credentials(context.Background(), accounts[0])
	require.NoError(t, err)
	assert.Equal(t, "local@example.com", creds.Email)

	// Delete falls through to the local file when the remote side is down
	require.NoError(t, src.Delete(context.Background(), accounts[0]))
	after, err := local.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, after)
}

func TestFallbackSource_PrimaryWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"files":[{"name":"antigravity-r.json","type":"antigravity","email":"remote@example.com"}]}`))
	}))
	defer srv.Close()
	remote := NewRemoteAPISource(NewManagementClient(srv.URL, "key"), store.NewMemoryStore(), newTestLogger())

	dir := t.TempDir()
	writeAuthFile(t, dir, "antigravity-l.json", `{"type":"antigravity","email":"local@example.com"}`)
	local := NewLocalFileSource(dir, 0, newTestLogger())

	src := NewFallbackSource(remote, local, newTestLogger())
	accounts, err := src.List(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, models.SourceRemote, accounts[0].Source)
	assert.Equal(t, "remote@example.com", accounts[0].Email)
}
