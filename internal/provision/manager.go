// Package provision runs interactive OAuth sign-in sessions for new provider
// accounts. Each attempt binds the provider's fixed localhost callback port,
// hands the operator an authorization URL, waits for the redirect carrying
// the state token, and persists the exchanged credential into the auth
// directory where the proxy picks it up.
package provision

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/proxydeck/proxydeck/internal/accounts"
	"github.com/proxydeck/proxydeck/internal/config"
	"github.com/proxydeck/proxydeck/internal/errors"
	"github.com/proxydeck/proxydeck/internal/logging"
	"github.com/proxydeck/proxydeck/internal/models"
	"github.com/proxydeck/proxydeck/internal/store"
)

// SessionState tracks one provisioning attempt through its lifecycle.
type SessionState string

const (
	StateListenerOpen     SessionState = "listener_open"
	StateAwaitingCallback SessionState = "awaiting_callback"
	StateCompleted        SessionState = "completed"
	StateTimedOut         SessionState = "timed_out"
	StateRejected         SessionState = "rejected"
)

// Terminal reports whether the session has finished, successfully or not.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateTimedOut || s == StateRejected
}

const (
	callbackPath    = "/oauth2callback"
	exchangeTimeout = 30 * time.Second
	drainTimeout    = 3 * time.Second
)

// defaultPorts are the callback ports the provider consoles register as
// redirect targets. Qwen is absent: it signs in with a device flow and never
// redirects to a local listener.
var defaultPorts = map[models.AccountType]int{
	models.TypeAntigravity: 51121,
	models.TypeGemini:      8085,
	models.TypeCodex:       1455,
	models.TypeClaude:      54545,
	models.TypeIFlow:       55998,
}

// Session is the observable state of one provisioning attempt. Terminal
// sessions stay queryable until the next Begin for the same provider.
type Session struct {
	Provider       models.AccountType `json:"provider"`
	Port           int                `json:"port"`
	State          SessionState       `json:"state"`
	AuthURL        string             `json:"auth_url"`
	StateToken     string             `json:"state_token"`
	CreatedAt      time.Time          `json:"created_at"`
	ExpiresAt      time.Time          `json:"expires_at"`
	CredentialPath string             `json:"credential_path,omitempty"`
	Error          string             `json:"error,omitempty"`
}

type attempt struct {
	session     Session
	listener    net.Listener
	server      *http.Server
	provider    Provider
	redirectURI string
	closeOnce   sync.Once
	done        chan struct{}
}

func (a *attempt) close() {
	a.closeOnce.Do(func() { close(a.done) })
}

// Manager owns the provisioning sessions, at most one per provider. It also
// removes accounts, keeping the credential file and the cached snapshot in
// step.
type Manager struct {
	cfg       config.OAuthConfig
	authDir   string
	providers map[models.AccountType]Provider
	source    accounts.Source
	store     store.Store
	logger    *logging.Logger

	mu     sync.Mutex
	active map[models.AccountType]*attempt
}

// NewManager builds a Manager persisting credentials into authDir.
func NewManager(cfg config.OAuthConfig, authDir string, providers map[models.AccountType]Provider, source accounts.Source, st store.Store, logger *logging.Logger) *Manager {
	if providers == nil {
		providers = DefaultProviders(cfg)
	}
	return &Manager{
		cfg:       cfg,
		authDir:   authDir,
		providers: providers,
		source:    source,
		store:     st,
		logger:    logger,
		active:    make(map[models.AccountType]*attempt),
	}
}

// Begin opens a provisioning session for the provider: binds its callback
// port, issues the state token and returns the authorization URL for the
// operator. A live session for the same provider means the port is taken.
func (m *Manager) Begin(ctx context.Context, provider models.AccountType) (*Session, error) {
	if provider == models.TypeQwen {
		return nil, &errors.ErrConfigValidation{Err: fmt.Errorf("qwen signs in with a device flow; callback provisioning is not supported")}
	}
	port := m.portFor(provider)
	if port == 0 {
		return nil, &errors.ErrConfigValidation{Err: fmt.Errorf("no callback port known for provider %q", provider)}
	}
	p, ok := m.providers[provider]
	if !ok {
		return nil, &errors.ErrConfigValidation{Err: fmt.Errorf("no oauth client configured for provider %q", provider)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[provider]; ok && !existing.session.State.Terminal() {
		return nil, &errors.ErrPortInUse{Provider: string(provider), Port: port}
	}

	host := m.cfg.CallbackHost
	if host == "" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		m.audit(logging.OAuthFail, "bind_callback_port", string(provider), err)
		return nil, &errors.ErrPortInUse{Provider: string(provider), Port: port}
	}

	timeout := m.cfg.CallbackTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	now := time.Now().UTC()
	a := &attempt{
		session: Session{
			Provider:   provider,
			Port:       port,
			State:      StateListenerOpen,
			StateToken: uuid.NewString(),
			CreatedAt:  now,
			ExpiresAt:  now.Add(timeout),
		},
		listener:    listener,
		provider:    p,
		redirectURI: fmt.Sprintf("http://%s%s", addr, callbackPath),
		done:        make(chan struct{}),
	}
	a.session.AuthURL = p.AuthorizationURL(a.session.StateToken, a.redirectURI)
	a.server = &http.Server{
		Handler:           http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { m.handleCallback(a, w, r) }),
		ReadHeaderTimeout: 10 * time.Second,
	}

	m.active[provider] = a
	go m.serve(a)
	go m.watch(a, timeout)
	a.session.State = StateAwaitingCallback

	m.audit(logging.OAuthBegin, "open_session", string(provider), nil)
	m.logger.Info("oauth session opened",
		"provider", string(provider),
		"port", port,
		"expires_at", a.session.ExpiresAt.Format(time.RFC3339))

	out := a.session
	return &out, nil
}

// Session returns the current attempt for the provider, including finished
// ones, so the console can poll for the outcome.
func (m *Manager) Session(provider models.AccountType) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.active[provider]
	if !ok {
		return nil, &errors.ErrSessionNotFound{ID: string(provider)}
	}
	out := a.session
	return &out, nil
}

// Cancel aborts a live session and releases its listener.
func (m *Manager) Cancel(provider models.AccountType) error {
	m.mu.Lock()
	a, ok := m.active[provider]
	if !ok || a.session.State.Terminal() {
		m.mu.Unlock()
		return &errors.ErrSessionNotFound{ID: string(provider)}
	}
	rej := &errors.ErrRejected{Provider: string(provider), Reason: "canceled by operator"}
	a.session.State = StateRejected
	a.session.Error = rej.Error()
	m.mu.Unlock()

	a.close()
	m.audit(logging.OAuthFail, "cancel_session", string(provider), rej)
	m.logger.Info("oauth session canceled", "provider", string(provider))
	return nil
}

// Remove deletes the credential behind an account and purges its cached
// snapshot. The file deletion commits the removal; the purge follows before
// return so no orphaned cache row survives.
func (m *Manager) Remove(ctx context.Context, accountID string) error {
	listing, err := m.source.List(ctx)
	if err != nil {
		return err
	}
	account, ok := models.AccountSlice(listing).FindByID(accountID)
	if !ok {
		return &errors.ErrAccountNotFound{AccountID: accountID}
	}

	if err := m.source.Delete(ctx, *account); err != nil {
		m.audit(logging.AccountRemove, "remove_account", accountID, err)
		return err
	}
	m.store.DeleteSnapshot(accountID)

	m.audit(logging.AccountRemove, "remove_account", accountID, nil)
	m.logger.Info("account removed", "account", accountID, "type", string(account.Type))
	return nil
}

// Shutdown aborts every live session. Used when the console itself drains.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	var closing []*attempt
	for _, a := range m.active {
		if a.session.State.Terminal() {
			continue
		}
		a.session.State = StateRejected
		a.session.Error = (&errors.ErrRejected{Provider: string(a.session.Provider), Reason: "console shutting down"}).Error()
		closing = append(closing, a)
	}
	m.mu.Unlock()

	for _, a := range closing {
		a.close()
	}
}

func (m *Manager) portFor(provider models.AccountType) int {
	if port, ok := m.cfg.Ports[string(provider)]; ok && port > 0 {
		return port
	}
	return defaultPorts[provider]
}

func (m *Manager) serve(a *attempt) {
	if err := a.server.Serve(a.listener); err != nil && err != http.ErrServerClosed {
		m.logger.Debug("callback listener closed", "provider", string(a.session.Provider), "error", err.Error())
	}
}

// watch releases the listener once the attempt finishes or its window
// elapses, whichever comes first.
func (m *Manager) watch(a *attempt, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-a.done:
	case <-timer.C:
		m.expire(a, timeout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	_ = a.server.Shutdown(ctx)
}

func (m *Manager) expire(a *attempt, timeout time.Duration) {
	m.mu.Lock()
	if a.session.State.Terminal() {
		m.mu.Unlock()
		return
	}
	provider := a.session.Provider
	cause := &errors.ErrCallbackTimeout{Provider: string(provider), Timeout: timeout}
	a.session.State = StateTimedOut
	a.session.Error = cause.Error()
	m.mu.Unlock()

	a.close()
	m.audit(logging.OAuthFail, "callback_timeout", string(provider), cause)
	m.logger.Warn("oauth session timed out", "provider", string(provider), "timeout", timeout.String())
}

func (m *Manager) handleCallback(a *attempt, w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != callbackPath {
		http.NotFound(w, r)
		return
	}

	query := r.URL.Query()
	state := query.Get("state")
	code := query.Get("code")

	m.mu.Lock()
	if a.session.State != StateAwaitingCallback {
		m.mu.Unlock()
		http.Error(w, "no provisioning session awaiting a callback", http.StatusGone)
		return
	}
	provider := a.session.Provider
	if state == "" || state != a.session.StateToken || code == "" {
		cause := &errors.ErrRejected{Provider: string(provider), Reason: rejectionReason(state, a.session.StateToken, code)}
		a.session.State = StateRejected
		a.session.Error = cause.Error()
		m.mu.Unlock()

		a.close()
		m.audit(logging.OAuthFail, "callback_rejected", string(provider), cause)
		m.logger.Warn("oauth callback rejected", "provider", string(provider), "reason", cause.Reason)
		http.Error(w, "authorization rejected", http.StatusBadRequest)
		return
	}
	m.mu.Unlock()

	// The exchange is not tied to the browser connection: once a valid code
	// arrived, losing the redirect socket must not lose the credential.
	ctx, cancel := context.WithTimeout(context.Background(), exchangeTimeout)
	defer cancel()
	data, err := a.provider.Exchange(ctx, code, a.redirectURI)
	if err != nil {
		m.fail(a, "token_exchange", err)
		http.Error(w, "token exchange failed", http.StatusBadGateway)
		return
	}

	path, err := m.persistCredential(provider, data)
	if err != nil {
		m.fail(a, "persist_credential", err)
		http.Error(w, "could not store credential", http.StatusInternalServerError)
		return
	}

	m.mu.Lock()
	a.session.State = StateCompleted
	a.session.CredentialPath = path
	m.mu.Unlock()
	a.close()

	m.audit(logging.OAuthComplete, "exchange_complete", string(provider), nil)
	m.audit(logging.AccountAdd, "provision_credential", filepath.Base(path), nil)
	m.logger.Info("oauth provisioning complete", "provider", string(provider), "credential", filepath.Base(path))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, completedPage)
}

func (m *Manager) fail(a *attempt, stage string, cause error) {
	m.mu.Lock()
	provider := a.session.Provider
	a.session.State = StateRejected
	a.session.Error = (&errors.ErrRejected{Provider: string(provider), Reason: cause.Error()}).Error()
	m.mu.Unlock()

	a.close()
	m.audit(logging.OAuthFail, stage, string(provider), cause)
	m.logger.Error("oauth provisioning failed", "provider", string(provider), "stage", stage, "error", cause.Error())
}

// persistCredential writes the credential JSON into the auth directory named
// after the account email, falling back to a timestamp when the exchange
// response carries none.
func (m *Manager) persistCredential(provider models.AccountType, data []byte) (string, error) {
	if err := os.MkdirAll(m.authDir, 0755); err != nil {
		return "", fmt.Errorf("create auth dir %s: %w", m.authDir, err)
	}

	stem := string(provider) + "-" + strconv.FormatInt(time.Now().Unix(), 10)
	if creds, err := accounts.ParseCredentials(data); err == nil && creds.Email != "" {
		stem = string(provider) + "-" + models.SanitizeID(creds.Email)
	}

	path := filepath.Join(m.authDir, stem+".json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write credential file %s: %w", path, err)
	}
	return path, nil
}

func (m *Manager) audit(eventType logging.AuditEventType, action, resource string, cause error) {
	if m.store == nil {
		return
	}
	event := logging.NewAuditEvent(eventType, action, logging.StatusSuccess).
		WithResource(resource)
	if cause != nil {
		event = event.WithError(cause.Error())
	}
	if err := m.store.SaveAuditEvent(event); err != nil {
		m.logger.Warn("failed to record audit event", "error", err.Error())
	}
}

func rejectionReason(state, want, code string) string {
	switch {
	case state == "":
		return "missing state token"
	case state != want:
		return "state token mismatch"
	default:
		return "missing authorization code"
	}
}

const completedPage = `<!doctype html>
<html>
<head><title>Sign-in complete</title></head>
<body>
<h3>Sign-in complete</h3>
<p>The credential has been stored. You can close this window and return to the console.</p>
</body>
</html>
`
