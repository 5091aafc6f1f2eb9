package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Err error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse YAML: %v", e.Err)
}

func (e *ErrConfigParse) Unwrap() error {
	return e.Err
}

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error {
	return e.Err
}

// Service lifecycle errors

type ErrAlreadyRunning struct {
	PID int
}

func (e *ErrAlreadyRunning) Error() string {
	return fmt.Sprintf("service already running with pid %d", e.PID)
}

type ErrNotRunning struct {
	Name string
}

func (e *ErrNotRunning) Error() string {
	return fmt.Sprintf("service %s is not running", e.Name)
}

type ErrSpawn struct {
	Binary string
	Err    error
}

func (e *ErrSpawn) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Binary, e.Err)
}

func (e *ErrSpawn) Unwrap() error {
	return e.Err
}

type ErrStopTimeout struct {
	PID     int
	Timeout time.Duration
}

func (e *ErrStopTimeout) Error() string {
	return fmt.Sprintf("pid %d did not exit within %s", e.PID, e.Timeout)
}

// Management API errors

type ErrAuth struct {
	Endpoint   string
	StatusCode int
}

func (e *ErrAuth) Error() string {
	return fmt.Sprintf("authentication rejected by %s (status %d)", e.Endpoint, e.StatusCode)
}

type ErrUnreachable struct {
	Endpoint string
	Err      error
}

func (e *ErrUnreachable) Error() string {
	return fmt.Sprintf("endpoint %s unreachable: %v", e.Endpoint, e.Err)
}

func (e *ErrUnreachable) Unwrap() error {
	return e.Err
}

// Quota fetch errors

type ErrFetch struct {
	AccountID string
	Reason    string
	Err       error
}

func (e *ErrFetch) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("quota fetch for %s failed: %s: %v", e.AccountID, e.Reason, e.Err)
	}
	return fmt.Sprintf("quota fetch for %s failed: %s", e.AccountID, e.Reason)
}

func (e *ErrFetch) Unwrap() error {
	return e.Err
}

type ErrFetchTimeout struct {
	AccountID string
	Timeout   time.Duration
}

func (e *ErrFetchTimeout) Error() string {
	return fmt.Sprintf("quota fetch for %s timed out after %s", e.AccountID, e.Timeout)
}

type ErrTokenRefresh struct {
	AccountID string
	Err       error
}

func (e *ErrTokenRefresh) Error() string {
	return fmt.Sprintf("token refresh for %s failed: %v", e.AccountID, e.Err)
}

func (e *ErrTokenRefresh) Unwrap() error {
	return e.Err
}

// OAuth provisioning errors

type ErrPortInUse struct {
	Provider string
	Port     int
}

func (e *ErrPortInUse) Error() string {
	return fmt.Sprintf("callback port %d for %s is already in use", e.Port, e.Provider)
}

type ErrCallbackTimeout struct {
	Provider string
	Timeout  time.Duration
}

func (e *ErrCallbackTimeout) Error() string {
	return fmt.Sprintf("no oauth callback for %s within %s", e.Provider, e.Timeout)
}

type ErrRejected struct {
	Provider string
	Reason   string
}

func (e *ErrRejected) Error() string {
	return fmt.Sprintf("oauth for %s rejected: %s", e.Provider, e.Reason)
}

type ErrSessionNotFound struct {
	ID string
}

func (e *ErrSessionNotFound) Error() string {
	return fmt.Sprintf("provisioning session %s not found", e.ID)
}

// Account errors

type ErrAccountNotFound struct {
	AccountID string
}

func (e *ErrAccountNotFound) Error() string {
	return fmt.Sprintf("account %s not found", e.AccountID)
}

// Log errors

type ErrLogNotFound struct {
	Path string
}

func (e *ErrLogNotFound) Error() string {
	return fmt.Sprintf("log file %s does not exist", e.Path)
}

// Database errors

type ErrDatabaseOpen struct {
	Path string
	Err  error
}

func (e *ErrDatabaseOpen) Error() string {
	return fmt.Sprintf("failed to open database %s: %v", e.Path, e.Err)
}

func (e *ErrDatabaseOpen) Unwrap() error {
	return e.Err
}

type ErrDatabaseMigration struct {
	Version int
	Err     error
}

func (e *ErrDatabaseMigration) Error() string {
	return fmt.Sprintf("database migration %d failed: %v", e.Version, e.Err)
}

func (e *ErrDatabaseMigration) Unwrap() error {
	return e.Err
}

type ErrDatabaseQuery struct {
	Operation string
	Err       error
}

func (e *ErrDatabaseQuery) Error() string {
	return fmt.Sprintf("database query failed for operation %s: %v", e.Operation, e.Err)
}

func (e *ErrDatabaseQuery) Unwrap() error {
	return e.Err
}

// Server errors

type ErrServerStart struct {
	Addr string
	Err  error
}

func (e *ErrServerStart) Error() string {
	return fmt.Sprintf("failed to start server on %s: %v", e.Addr, e.Err)
}

func (e *ErrServerStart) Unwrap() error {
	return e.Err
}

type ErrServerShutdown struct {
	Err error
}

func (e *ErrServerShutdown) Error() string {
	return fmt.Sprintf("server shutdown failed: %v", e.Err)
}

func (e *ErrServerShutdown) Unwrap() error {
	return e.Err
}

// Filesystem errors

type ErrDirectoryCreate struct {
	Path string
	Err  error
}

func (e *ErrDirectoryCreate) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *ErrDirectoryCreate) Unwrap() error {
	return e.Err
}

type ErrFileRead struct {
	Path string
	Err  error
}

func (e *ErrFileRead) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *ErrFileRead) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err refers to a missing account, session or log file.
func IsNotFound(err error) bool {
	var accErr *ErrAccountNotFound
	var sessErr *ErrSessionNotFound
	var logErr *ErrLogNotFound
	return stderrors.As(err, &accErr) || stderrors.As(err, &sessErr) || stderrors.As(err, &logErr)
}

// IsUnavailable reports whether err means the remote side could not serve the request.
func IsUnavailable(err error) bool {
	var unreachable *ErrUnreachable
	var timeout *ErrFetchTimeout
	return stderrors.As(err, &unreachable) || stderrors.As(err, &timeout)
}
