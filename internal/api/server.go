// Package api exposes the console's HTTP surface: proxy process control,
// log access, merged account and quota views, OAuth provisioning, and the
// operational endpoints (health, metrics, config, audit).
package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/proxydeck/proxydeck/internal/accounts"
	"github.com/proxydeck/proxydeck/internal/config"
	"github.com/proxydeck/proxydeck/internal/errors"
	"github.com/proxydeck/proxydeck/internal/logging"
	"github.com/proxydeck/proxydeck/internal/logtail"
	"github.com/proxydeck/proxydeck/internal/metrics"
	"github.com/proxydeck/proxydeck/internal/models"
	"github.com/proxydeck/proxydeck/internal/provision"
	"github.com/proxydeck/proxydeck/internal/quota"
	"github.com/proxydeck/proxydeck/internal/store"
)

// ServiceController drives the managed proxy process.
type ServiceController interface {
	Start() (*models.ServiceStatus, error)
	Stop() error
	Restart() (*models.ServiceStatus, error)
	Status() *models.ServiceStatus
}

// Provisioner runs OAuth provisioning sessions and removes accounts.
type Provisioner interface {
	Begin(ctx context.Context, provider models.AccountType) (*provision.Session, error)
	Session(provider models.AccountType) (*provision.Session, error)
	Cancel(provider models.AccountType) error
	Remove(ctx context.Context, accountID string) error
}

// QuotaRefresher fetches live quota snapshots on demand.
type QuotaRefresher interface {
	RefreshOne(ctx context.Context, account models.Account) (*models.QuotaSnapshot, error)
	RefreshAll(ctx context.Context, accounts []models.Account) *quota.Summary
}

// Deps carries the components the server fronts. Store, Supervisor, Tailer,
// Source, Refresher and Provisioner are required; Remote is nil when the
// console runs without a management API. Metrics and Logger default when nil.
type Deps struct {
	Store       store.Store
	Supervisor  ServiceController
	Tailer      *logtail.Tailer
	Source      accounts.Source
	Remote      *accounts.RemoteAPISource
	Refresher   QuotaRefresher
	Provisioner Provisioner
	Metrics     *metrics.Metrics
	Logger      *logging.Logger
	Version     string
}

// maxRequestBodyBytes bounds request bodies. The largest legitimate body is
// a cancel request of a few dozen bytes.
const maxRequestBodyBytes = 1 << 20

// Server is the console HTTP API.
type Server struct {
	router      *gin.Engine
	cfg         *config.Config
	store       store.Store
	supervisor  ServiceController
	tailer      *logtail.Tailer
	source      accounts.Source
	remote      *accounts.RemoteAPISource
	refresher   QuotaRefresher
	provisioner Provisioner
	metrics     *metrics.Metrics
	logger      *logging.Logger
	rateLimiter *IPRateLimiter
	staleAfter  time.Duration
	startedAt   time.Time
	version     string

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates the console API server around the given components.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if cfg.Server.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	m := deps.Metrics
	if m == nil {
		m = metrics.NewMetrics("proxydeck")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewLogger()
	}

	staleAfter := cfg.Quota.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 2 * cfg.Quota.RefreshInterval
	}

	s := &Server{
		router:      gin.New(),
		cfg:         cfg,
		store:       deps.Store,
		supervisor:  deps.Supervisor,
		tailer:      deps.Tailer,
		source:      deps.Source,
		remote:      deps.Remote,
		refresher:   deps.Refresher,
		provisioner: deps.Provisioner,
		metrics:     m,
		logger:      logger,
		rateLimiter: NewIPRateLimiter(cfg.API.RateLimit.RequestsPerMinute, cfg.API.RateLimit.Burst),
		staleAfter:  staleAfter,
		startedAt:   time.Now(),
		version:     deps.Version,
	}
	s.router.HandleMethodNotAllowed = true

	s.router.Use(gin.Recovery())
	s.router.Use(rateLimitMiddleware(s.rateLimiter))
	s.router.Use(bodyLimitMiddleware(maxRequestBodyBytes))
	s.router.Use(metrics.Middleware(m, logger))
	s.router.Use(loggingMiddleware(logger))

	s.setupRoutes()
	return s
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// loggingMiddleware provides structured logging for all requests
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = logging.GenerateCorrelationID()
		}

		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Correlation-ID", correlationID)

		c.Next()

		logger.InfoWithContext(ctx, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint - NO authentication required
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// Health check - NO authentication required
	s.router.GET("/health", s.handleHealth)

	var keys []string
	if s.cfg.API.Auth.Enabled {
		keys = s.cfg.API.Auth.APIKeys
	}
	authMiddleware := APIKeyAuth(keys, s.cfg.API.Auth.HeaderName, s.logger)

	api := s.router.Group("/api")
	api.Use(authMiddleware)
	{
		service := api.Group("/service")
		{
			service.GET("/status", s.handleServiceStatus)
			service.POST("/start", s.handleServiceStart)
			service.POST("/stop", s.handleServiceStop)
			service.POST("/restart", s.handleServiceRestart)
		}

		logs := api.Group("/logs")
		{
			logs.GET("", s.handleLogs)
			logs.GET("/tail", s.handleLogsTail)
			logs.POST("/clear", s.handleLogsClear)
		}

		api.GET("/accounts", s.handleAccounts)
		api.DELETE("/accounts/:id", s.handleAccountDelete)
		api.POST("/accounts/:id/quota", s.handleAccountQuota)
		api.POST("/quota/refresh-all", s.handleRefreshAll)

		auth := api.Group("/auth")
		{
			auth.GET("/status", s.handleAuthStatus)
			auth.POST("/cancel", s.handleAuthCancel)
			auth.POST("/:provider", s.handleAuthBegin)
		}

		api.GET("/audit", s.handleAudit)
		api.GET("/config", s.handleConfig)
	}
}

// statusForError maps component errors onto HTTP status codes.
func statusForError(err error) int {
	var (
		alreadyRunning *errors.ErrAlreadyRunning
		notRunning     *errors.ErrNotRunning
		portInUse      *errors.ErrPortInUse
		validation     *errors.ErrConfigValidation
		fetch          *errors.ErrFetch
		tokenRefresh   *errors.ErrTokenRefresh
	)
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case stderrors.As(err, &alreadyRunning), stderrors.As(err, &notRunning), stderrors.As(err, &portInUse):
		return http.StatusConflict
	case stderrors.As(err, &validation):
		return http.StatusBadRequest
	case errors.IsUnavailable(err), stderrors.As(err, &fetch), stderrors.As(err, &tokenRefresh):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusBadGateway:
		return "upstream_unavailable"
	default:
		return "internal_error"
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusForError(err)
	c.JSON(status, ErrorResponse{
		Error:   errorCode(status),
		Message: err.Error(),
		Code:    status,
	})
}

func (s *Server) badRequest(c *gin.Context, format string, args ...interface{}) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "bad_request",
		Message: fmt.Sprintf(format, args...),
		Code:    http.StatusBadRequest,
	})
}

// audit records a mutating operation on the console's own surface. Service
// lifecycle events are recorded by the supervisor, OAuth and account removal
// events by the provisioning manager; only log clears are recorded here.
func (s *Server) audit(c *gin.Context, eventType logging.AuditEventType, action, resource string, err error) {
	event := logging.NewAuditEvent(eventType, action, logging.StatusSuccess).
		WithIPAddress(c.ClientIP()).
		WithSeverity(logging.SeverityInfo).
		WithResource(resource)
	if err != nil {
		event.WithError(err.Error())
	}
	if saveErr := s.store.SaveAuditEvent(event); saveErr != nil {
		s.logger.Warn("audit event not saved", "event_type", string(eventType), "error", saveErr)
	}
}

// handleHealth returns health status
func (s *Server) handleHealth(c *gin.Context) {
	status := s.supervisor.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds":  int64(time.Since(s.startedAt).Seconds()),
		"version":         s.version,
		"service_running": status != nil && status.Running,
	})
}

func (s *Server) handleServiceStatus(c *gin.Context) {
	status := s.supervisor.Status()
	s.metrics.SetServiceUp(status != nil && status.Running)
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleServiceStart(c *gin.Context) {
	status, err := s.supervisor.Start()
	if err != nil {
		s.metrics.RecordServiceOperation("start", "error")
		s.fail(c, err)
		return
	}
	s.metrics.RecordServiceOperation("start", "success")
	s.metrics.SetServiceUp(true)
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleServiceStop(c *gin.Context) {
	if err := s.supervisor.Stop(); err != nil {
		s.metrics.RecordServiceOperation("stop", "error")
		s.fail(c, err)
		return
	}
	s.metrics.RecordServiceOperation("stop", "success")
	s.metrics.SetServiceUp(false)
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (s *Server) handleServiceRestart(c *gin.Context) {
	status, err := s.supervisor.Restart()
	if err != nil {
		s.metrics.RecordServiceOperation("restart", "error")
		s.fail(c, err)
		return
	}
	s.metrics.RecordServiceOperation("restart", "success")
	s.metrics.SetServiceUp(true)
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleLogs(c *gin.Context) {
	offset, err := parseInt64Query(c, "offset", 0)
	if err != nil {
		s.badRequest(c, "%s", err)
		return
	}
	maxBytes, err := parseInt64Query(c, "max_bytes", logtail.DefaultReadBytes)
	if err != nil {
		s.badRequest(c, "%s", err)
		return
	}

	chunk, err := s.tailer.Read(offset, maxBytes)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chunk)
}

func (s *Server) handleLogsTail(c *gin.Context) {
	lines := logtail.DefaultTailLines
	if raw := c.Query("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.badRequest(c, "invalid lines: %q", raw)
			return
		}
		lines = n
	}

	tail, err := s.tailer.Tail(lines)
	if err != nil {
		s.fail(c, err)
		return
	}
	if tail == nil {
		tail = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"lines": tail, "count": len(tail)})
}

type clearLogsRequest struct {
	Backup bool `json:"backup"`
}

func (s *Server) handleLogsClear(c *gin.Context) {
	var req clearLogsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.badRequest(c, "invalid request body: %s", err)
			return
		}
	}

	backupPath, err := s.tailer.Clear(req.Backup)
	if err != nil {
		s.audit(c, logging.LogClear, "clear", s.tailer.Path(), err)
		s.fail(c, err)
		return
	}
	s.audit(c, logging.LogClear, "clear", s.tailer.Path(), nil)

	resp := gin.H{"status": "cleared"}
	if backupPath != "" {
		resp["backup_path"] = backupPath
	}
	c.JSON(http.StatusOK, resp)
}

// accountView is one row of the merged dashboard listing: the account from
// its source joined with the cached quota snapshot, if any.
type accountView struct {
	models.Account
	Quota       *models.QuotaSnapshot `json:"quota,omitempty"`
	QuotaStatus string                `json:"quota_status,omitempty"`
}

func (s *Server) handleAccounts(c *gin.Context) {
	ctx := c.Request.Context()

	accts, err := s.source.List(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}

	if forced, _ := strconv.ParseBool(c.Query("refresh")); forced {
		s.refresher.RefreshAll(ctx, accts)
	}

	now := time.Now().UTC()
	views := make([]accountView, 0, len(accts))
	for _, acct := range accts {
		view := accountView{Account: acct}
		if snap, ok := s.store.GetSnapshot(acct.ID); ok {
			view.Quota = snap
			view.QuotaStatus = string(snap.EffectiveStatus(s.staleAfter, now))
		}
		views = append(views, view)
	}

	resp := gin.H{
		"accounts": views,
		"count":    len(views),
		"mode":     s.accountsMode(),
	}
	if s.remote != nil {
		if _, syncedAt, ok := s.store.GetRemoteAccounts(); ok {
			resp["synced_at"] = syncedAt.UTC().Format(time.RFC3339)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// accountsMode reports where the listing comes from. remote_degraded means
// the management API is configured but the last sync failed and cached rows
// are being served.
func (s *Server) accountsMode() string {
	if s.remote == nil {
		return "local"
	}
	if s.remote.LastError() != nil {
		return "remote_degraded"
	}
	return "remote"
}

func (s *Server) handleAccountDelete(c *gin.Context) {
	id := c.Param("id")
	if err := s.provisioner.Remove(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	s.metrics.ForgetAccount(id)
	c.JSON(http.StatusOK, gin.H{"status": "removed", "account_id": id})
}

func (s *Server) handleAccountQuota(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	accts, err := s.source.List(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	acct, ok := models.AccountSlice(accts).FindByID(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: fmt.Sprintf("account %q not known to any source", id),
			Code:    http.StatusNotFound,
		})
		return
	}

	snap, err := s.refresher.RefreshOne(ctx, *acct)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleRefreshAll(c *gin.Context) {
	ctx := c.Request.Context()

	accts, err := s.source.List(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.refresher.RefreshAll(ctx, accts))
}

func (s *Server) handleAuthBegin(c *gin.Context) {
	raw := c.Param("provider")
	provider, ok := models.ParseAccountType(raw)
	if !ok {
		s.badRequest(c, "unknown provider %q", raw)
		return
	}

	session, err := s.provisioner.Begin(c.Request.Context(), provider)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.metrics.SetOAuthSessionActive(string(provider), true)
	c.JSON(http.StatusOK, session)
}

func (s *Server) handleAuthStatus(c *gin.Context) {
	raw := c.Query("provider")
	provider, ok := models.ParseAccountType(raw)
	if !ok {
		s.badRequest(c, "unknown provider %q", raw)
		return
	}

	session, err := s.provisioner.Session(provider)
	if err != nil {
		s.fail(c, err)
		return
	}
	if session.State.Terminal() {
		s.metrics.SetOAuthSessionActive(string(provider), false)
	}
	c.JSON(http.StatusOK, session)
}

type cancelAuthRequest struct {
	Provider string `json:"provider" binding:"required"`
}

func (s *Server) handleAuthCancel(c *gin.Context) {
	var req cancelAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: %s", err)
		return
	}
	provider, ok := models.ParseAccountType(req.Provider)
	if !ok {
		s.badRequest(c, "unknown provider %q", req.Provider)
		return
	}

	if err := s.provisioner.Cancel(provider); err != nil {
		s.fail(c, err)
		return
	}
	s.metrics.SetOAuthSessionActive(string(provider), false)
	c.JSON(http.StatusOK, gin.H{"status": "canceled", "provider": provider})
}

func (s *Server) handleAudit(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.badRequest(c, "invalid limit: %q", raw)
			return
		}
		limit = n
	}

	events := s.store.ListAuditEvents(limit)
	if events == nil {
		events = []*logging.AuditEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// handleConfig returns a redacted view of the effective configuration. The
// management key is never returned in full.
func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":            s.version,
		"accounts_mode":      s.accountsMode(),
		"management_api_url": s.cfg.Management.URL,
		"management_key":     MaskKey(s.cfg.Management.Key),
		"has_management_key": s.cfg.Management.Key != "",
		"auth_dir":           s.cfg.Accounts.AuthDir,
		"service_dir":        s.cfg.Service.Dir,
		"log_file":           s.cfg.Service.LogFile,
		"refresh_interval":   s.cfg.Quota.RefreshInterval.String(),
		"auth_enabled":       s.cfg.API.Auth.Enabled,
	})
}

func parseInt64Query(c *gin.Context, name string, def int64) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.HTTPPort)

	var srv *http.Server
	if s.cfg.Server.TLS.Enabled {
		srv = NewHTTPSServerWithConfig(addr, s.router, s.cfg.Server.TLS.MinVersion)
	} else {
		srv = NewHTTPServer(addr, s.router)
	}

	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("api server listening",
		"addr", addr,
		"tls", s.cfg.Server.TLS.Enabled,
		"auth", s.cfg.API.Auth.Enabled,
	)

	var err error
	if s.cfg.Server.TLS.Enabled {
		err = srv.ListenAndServeTLS(s.cfg.Server.TLS.CertFile, s.cfg.Server.TLS.KeyFile)
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return &errors.ErrServerStart{Addr: addr, Err: err}
	}
	return nil
}

// StartWithServer starts the server with a pre-configured http.Server
func (s *Server) StartWithServer(srv *http.Server) error {
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("api server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return &errors.ErrServerStart{Addr: srv.Addr, Err: err}
	}
	return nil
}

// Shutdown stops the HTTP listener, draining in-flight requests. Component
// lifecycles are owned by the caller that wired them.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.logger.Info("api server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return &errors.ErrServerShutdown{Err: err}
	}
	return nil
}
