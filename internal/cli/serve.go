package cli

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/proxydeck/proxydeck/internal/accounts"
	"github.com/proxydeck/proxydeck/internal/alerts"
	"github.com/proxydeck/proxydeck/internal/api"
	"github.com/proxydeck/proxydeck/internal/config"
	"github.com/proxydeck/proxydeck/internal/logging"
	"github.com/proxydeck/proxydeck/internal/logtail"
	"github.com/proxydeck/proxydeck/internal/metrics"
	"github.com/proxydeck/proxydeck/internal/provision"
	"github.com/proxydeck/proxydeck/internal/quota"
	"github.com/proxydeck/proxydeck/internal/store"
	"github.com/proxydeck/proxydeck/internal/supervisor"
	"github.com/proxydeck/proxydeck/internal/telegram"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "server", "run"},
	Short:   "Run the console server",
	Long: `Run the proxydeck console server.

This is the main mode: it opens the quota cache, wires the account sources,
quota refresher, process supervisor, OAuth provisioner and alert service, and
serves the console API until interrupted.

Example:
  proxydeck serve --config config.yaml

The server listens on the address configured in the config file.`,
	RunE: runServe,
}

var serveFlags struct {
	Host       string
	Port       int
	Timeout    time.Duration
	TLS        bool
	TLSCert    string
	TLSKey     string
	TLSVersion string
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Host, "host", "", "Server host (overrides config)")
	serveCmd.Flags().IntVar(&serveFlags.Port, "port", 0, "Server port (overrides config)")
	serveCmd.Flags().DurationVar(&serveFlags.Timeout, "timeout", envDuration("PROXYDECK_SHUTDOWN_TIMEOUT", 0), "Shutdown timeout (overrides config)")
	serveCmd.Flags().BoolVar(&serveFlags.TLS, "tls", false, "Enable TLS/HTTPS")
	serveCmd.Flags().StringVar(&serveFlags.TLSCert, "cert", "", "TLS certificate file path")
	serveCmd.Flags().StringVar(&serveFlags.TLSKey, "key", "", "TLS key file path")
	serveCmd.Flags().StringVar(&serveFlags.TLSVersion, "tls-version", "", "Minimum TLS version (1.2 or 1.3)")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Apply CLI flags to config
	if serveFlags.Host != "" {
		cfg.Server.Host = serveFlags.Host
	}
	if serveFlags.Port != 0 {
		cfg.Server.HTTPPort = serveFlags.Port
	}
	if serveFlags.Timeout > 0 {
		cfg.Server.ShutdownTimeout = serveFlags.Timeout
	}
	if serveFlags.TLS {
		cfg.Server.TLS.Enabled = true
	}
	if serveFlags.TLSCert != "" {
		cfg.Server.TLS.CertFile = serveFlags.TLSCert
	}
	if serveFlags.TLSKey != "" {
		cfg.Server.TLS.KeyFile = serveFlags.TLSKey
	}
	if serveFlags.TLSVersion != "" {
		cfg.Server.TLS.MinVersion = serveFlags.TLSVersion
	}

	if cfg.Server.TLS.Enabled {
		if err := validateTLSConfig(cfg.Server.TLS); err != nil {
			return fmt.Errorf("TLS validation failed: %w", err)
		}
	}

	logger := logging.NewLogger(
		logging.WithLevel(serveLogLevel(cfg)),
		logging.WithService("proxydeck"),
	)

	// Quota cache and audit trail, WAL mode enabled.
	st, err := store.NewSQLiteStore(cfg.Quota.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed to close store", "error", err.Error())
		}
	}()
	logger.Info("store opened", "path", cfg.Quota.DBPath)

	// Account sources: local credential files, with the proxy's management
	// API in front when one is configured.
	local := accounts.NewLocalFileSource(cfg.Accounts.AuthDir, cfg.Accounts.WatchDebounce, logger)
	var source accounts.Source = local
	var remote *accounts.RemoteAPISource
	if cfg.Management.Configured() {
		client := accounts.NewManagementClient(cfg.Management.URL, cfg.Management.Key,
			accounts.WithTimeout(cfg.Management.Timeout))
		remote = accounts.NewRemoteAPISource(client, st, logger)
		source = accounts.NewFallbackSource(remote, local, logger)
		logger.Info("account source: management API with local fallback", "url", cfg.Management.URL)
	} else {
		logger.Info("account source: local auth dir", "dir", cfg.Accounts.AuthDir)
	}

	fetcher := quota.NewProviderFetcher(source, quota.NewHTTPClient(), cfg.OAuth, logger)
	refresher := quota.NewRefresher(fetcher, st, cfg.Quota, logger)

	m := metrics.NewMetrics("proxydeck")
	usageWatcher := metrics.NewWatcher(m, st, logger)
	usageWatcher.Prime()

	sup := supervisor.New(cfg.Service, logger, st)
	mgr := provision.NewManager(cfg.OAuth, cfg.Accounts.AuthDir, provision.DefaultProviders(cfg.OAuth), source, st, logger)

	notifier, err := telegram.New(cfg.Telegram, logger)
	if err != nil {
		logger.Warn("telegram setup failed, notifications disabled", "error", err.Error())
		notifier = nil
	}

	var alertSvc *alerts.Service
	if cfg.Alerts.Enabled && notifier != nil {
		alertSvc = alerts.NewService(cfg.Alerts, st, notifier, sup.Status, logger)
		alertSvc.Start()
	}

	// Background work is tied to one context and drained on shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		usageWatcher.Run(ctx)
	}()

	if cfg.Quota.Background {
		wg.Add(1)
		go func() {
			defer wg.Done()
			refresher.RunPeriodic(ctx, cfg.Quota.RefreshInterval, source.List)
		}()
	}

	if cfg.Accounts.Watch {
		onChange := func() {
			accts, err := source.List(ctx)
			if err != nil {
				logger.Warn("account listing failed after auth dir change", "error", err.Error())
				return
			}
			refresher.RefreshAll(ctx, accts)
		}
		if err := local.Watch(ctx, onChange); err != nil {
			logger.Warn("auth dir watch unavailable", "dir", cfg.Accounts.AuthDir, "error", err.Error())
		}
	}

	server := api.NewServer(cfg, api.Deps{
		Store:       st,
		Supervisor:  sup,
		Tailer:      logtail.NewTailer(cfg.Service.LogFile),
		Source:      source,
		Remote:      remote,
		Refresher:   refresher,
		Provisioner: mgr,
		Metrics:     m,
		Logger:      logger,
		Version:     Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	sigCh := api.SetupSignalHandler()
	select {
	case err := <-errCh:
		cancel()
		wg.Wait()
		shutdownComponents(alertSvc, mgr, logger)
		return err
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err.Error())
	}

	cancel()
	wg.Wait()
	shutdownComponents(alertSvc, mgr, logger)

	logger.Info("graceful shutdown completed")
	return nil
}

func shutdownComponents(alertSvc *alerts.Service, mgr *provision.Manager, logger *logging.Logger) {
	if alertSvc != nil {
		if err := alertSvc.Stop(); err != nil {
			logger.Error("failed to stop alert service", "error", err.Error())
		}
	}
	if mgr != nil {
		mgr.Shutdown()
	}
}

// serveLogLevel resolves the logger level from the config, forced to debug by
// --verbose. Unknown levels fall back to info.
func serveLogLevel(cfg *config.Config) logging.LogLevel {
	if globalFlags.Verbose {
		return logging.LevelDebug
	}
	switch logging.LogLevel(cfg.Server.LogLevel) {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
		return logging.LogLevel(cfg.Server.LogLevel)
	}
	return logging.LevelInfo
}

// validateTLSConfig validates TLS configuration
func validateTLSConfig(tls config.TLSConfig) error {
	if tls.CertFile == "" {
		return fmt.Errorf("TLS certificate file is required when TLS is enabled")
	}
	if tls.KeyFile == "" {
		return fmt.Errorf("TLS key file is required when TLS is enabled")
	}

	// Check if certificate file exists
	if _, err := os.Stat(tls.CertFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS certificate file does not exist: %s", tls.CertFile)
	}

	// Check if key file exists
	if _, err := os.Stat(tls.KeyFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS key file does not exist: %s", tls.KeyFile)
	}

	// Validate TLS version
	if tls.MinVersion != "" && tls.MinVersion != "1.2" && tls.MinVersion != "1.3" {
		return fmt.Errorf("TLS min_version must be either \"1.2\" or \"1.3\", got: %s", tls.MinVersion)
	}

	return nil
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	return fallback
}
