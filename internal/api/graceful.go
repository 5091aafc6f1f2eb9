package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// NewHTTPServer creates a configured HTTP server
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// NewHTTPSServerWithConfig creates an HTTPS server with the given minimum
// TLS version. Certificates are loaded by ListenAndServeTLS. Unknown version
// strings fall back to TLS 1.2.
func NewHTTPSServerWithConfig(addr string, handler http.Handler, minVersion string) *http.Server {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	if minVersion == "1.3" {
		tlsConfig.MinVersion = tls.VersionTLS13
	}

	srv := NewHTTPServer(addr, handler)
	srv.TLSConfig = tlsConfig
	return srv
}

// GracefulShutdown performs graceful shutdown of the HTTP server
func GracefulShutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return srv.Shutdown(ctx)
}

// SetupSignalHandler sets up OS signal handling for SIGINT and SIGTERM
func SetupSignalHandler() chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch
}

// WaitForSignal waits for termination signals and returns the received signal
func WaitForSignal(ch chan os.Signal) os.Signal {
	return <-ch
}
