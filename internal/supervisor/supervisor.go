// Package supervisor owns the CLIProxyAPI process lifecycle. Nothing else in
// the console spawns, probes, or kills the proxy.
package supervisor

import (
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/proxydeck/proxydeck/internal/config"
	"github.com/proxydeck/proxydeck/internal/errors"
	"github.com/proxydeck/proxydeck/internal/logging"
	"github.com/proxydeck/proxydeck/internal/models"
	"github.com/proxydeck/proxydeck/internal/store"
)

// forceKillWait bounds the wait after SIGKILL before giving up on the pid.
const forceKillWait = 2 * time.Second

// processHandle tracks the one proxy process this supervisor spawned.
type processHandle struct {
	pid        int
	startedAt  time.Time
	workingDir string
	logFile    string
	proc       *os.Process
}

// SpawnFunc launches the proxy binary and returns the running process.
type SpawnFunc func(binary, dir, logFile string) (*os.Process, error)

// Supervisor manages the proxy process. At most one live handle exists; the
// recorded pid is re-probed on every operation, never trusted from the record.
type Supervisor struct {
	cfg    config.ServiceConfig
	logger *logging.Logger
	store  store.Store

	mu     sync.Mutex
	handle *processHandle
	spawn  SpawnFunc
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithSpawnFunc overrides how the proxy binary is launched.
func WithSpawnFunc(fn SpawnFunc) Option {
	return func(s *Supervisor) {
		s.spawn = fn
	}
}

// New creates a supervisor for the configured proxy service.
func New(cfg config.ServiceConfig, logger *logging.Logger, st store.Store, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:    cfg,
		logger: logger,
		store:  st,
		spawn:  defaultSpawn,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// defaultSpawn starts the binary with cwd set to the service dir and both
// output streams appended to the log file. The child is detached into its own
// process group so it survives console restarts; a reaper goroutine collects
// the exit status so a dead pid probes as dead.
func defaultSpawn(binary, dir, logFile string) (*os.Process, error) {
	if logFile == "" {
		logFile = os.DevNull
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cmd := exec.Command(binary)
	cmd.Dir = dir
	cmd.Stdout = f
	cmd.Stderr = f
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	go cmd.Wait()
	return cmd.Process, nil
}

// pidAlive probes the process with signal 0.
func pidAlive(proc *os.Process) bool {
	if proc == nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Start spawns the proxy. Returns ErrAlreadyRunning when a live process is
// recorded, ErrConfigValidation when the service dir is unset, and ErrSpawn
// when the binary cannot be launched.
func (s *Supervisor) Start() (*models.ServiceStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		if pidAlive(s.handle.proc) {
			return nil, &errors.ErrAlreadyRunning{PID: s.handle.pid}
		}
		s.logger.Warn("recorded process is gone, clearing handle", "pid", s.handle.pid)
		s.handle = nil
	}

	if s.cfg.Dir == "" {
		return nil, &errors.ErrConfigValidation{Err: fmt.Errorf("service dir is not configured")}
	}

	binary := s.cfg.BinaryPath()
	proc, err := s.spawn(binary, s.cfg.Dir, s.cfg.LogFile)
	if err != nil {
		s.logger.Error("failed to start service", "binary", binary, "error", err.Error())
		s.audit(logging.ServiceStart, "start "+s.cfg.BinaryName, logging.StatusFailure, err)
		return nil, &errors.ErrSpawn{Binary: binary, Err: err}
	}

	s.handle = &processHandle{
		pid:        proc.Pid,
		startedAt:  time.Now(),
		workingDir: s.cfg.Dir,
		logFile:    s.cfg.LogFile,
		proc:       proc,
	}

	s.logger.Info("service started", "pid", proc.Pid, "binary", binary, "dir", s.cfg.Dir)
	s.audit(logging.ServiceStart, "start "+s.cfg.BinaryName, logging.StatusSuccess, nil)
	return s.statusLocked(), nil
}

// Stop terminates the proxy: SIGTERM, bounded poll-wait, then SIGKILL.
// Returns ErrNotRunning without a live process and ErrStopTimeout when the
// pid survives even the forced phase; the handle stays recorded only in the
// timeout case.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil || !pidAlive(s.handle.proc) {
		s.handle = nil
		return &errors.ErrNotRunning{Name: s.cfg.BinaryName}
	}

	pid := s.handle.pid
	proc := s.handle.proc

	s.logger.Info("stopping service", "pid", pid)
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		// Exited between the probe and the signal
		s.handle = nil
		return nil
	}

	if s.waitExit(proc, s.cfg.StopTimeout) {
		s.handle = nil
		s.logger.Info("service stopped", "pid", pid)
		s.audit(logging.ServiceStop, "stop "+s.cfg.BinaryName, logging.StatusSuccess, nil)
		return nil
	}

	s.logger.Warn("graceful stop timed out, sending SIGKILL", "pid", pid, "timeout", s.cfg.StopTimeout.String())
	_ = proc.Signal(syscall.SIGKILL)
	if s.waitExit(proc, forceKillWait) {
		s.handle = nil
		s.logger.Info("service killed", "pid", pid)
		s.audit(logging.ServiceStop, "stop "+s.cfg.BinaryName, logging.StatusSuccess, nil)
		return nil
	}

	err := &errors.ErrStopTimeout{PID: pid, Timeout: s.cfg.StopTimeout}
	s.audit(logging.ServiceStop, "stop "+s.cfg.BinaryName, logging.StatusFailure, err)
	return err
}

// Restart stops the proxy if it runs, then starts it. A proxy that was not
// running is not an error.
func (s *Supervisor) Restart() (*models.ServiceStatus, error) {
	if err := s.Stop(); err != nil {
		var notRunning *errors.ErrNotRunning
		if !stderrors.As(err, &notRunning) {
			return nil, err
		}
	}

	status, err := s.Start()
	if err != nil {
		return nil, err
	}
	s.audit(logging.ServiceRestart, "restart "+s.cfg.BinaryName, logging.StatusSuccess, nil)
	return status, nil
}

// Status probes the recorded pid and reports the result. It never fails: a
// stale record (pid dead, e.g. killed externally) clears the handle and
// reports not running.
func (s *Supervisor) Status() *models.ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Supervisor) statusLocked() *models.ServiceStatus {
	if s.handle == nil {
		return &models.ServiceStatus{
			Running:    false,
			WorkingDir: s.cfg.Dir,
			LogFile:    s.cfg.LogFile,
		}
	}

	if !pidAlive(s.handle.proc) {
		s.logger.Warn("recorded process is gone, clearing handle", "pid", s.handle.pid)
		s.handle = nil
		return &models.ServiceStatus{
			Running:    false,
			WorkingDir: s.cfg.Dir,
			LogFile:    s.cfg.LogFile,
		}
	}

	h := s.handle
	return &models.ServiceStatus{
		Running:       true,
		PID:           h.pid,
		WorkingDir:    h.workingDir,
		LogFile:       h.logFile,
		StartedAt:     h.startedAt,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}
}

// waitExit polls the pid until it dies or the bound elapses.
func (s *Supervisor) waitExit(proc *os.Process, bound time.Duration) bool {
	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := time.Now().Add(bound)
	for time.Now().Before(deadline) {
		if !pidAlive(proc) {
			return true
		}
		time.Sleep(interval)
	}
	return !pidAlive(proc)
}

func (s *Supervisor) audit(eventType logging.AuditEventType, action string, status logging.AuditStatus, cause error) {
	if s.store == nil {
		return
	}
	event := logging.NewAuditEvent(eventType, action, status).
		WithResource(s.cfg.BinaryName)
	if cause != nil {
		event = event.WithError(cause.Error())
	}
	if err := s.store.SaveAuditEvent(event); err != nil {
		s.logger.Warn("failed to record audit event", "error", err.Error())
	}
}
