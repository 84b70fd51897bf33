// Package apphost starts and stops the Aspire AppHost that runs the local
// development environment.
package apphost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/process"
)

const (
	lockFile = "run.lock"
	pidFile  = "apphost.pid"
	logFile  = "apphost.log"

	// DefaultStopGrace is how long the AppHost gets to shut its containers
	// down before it is killed.
	DefaultStopGrace = 10 * time.Second
)

var (
	// ErrLocked means another pp run holds the lock.
	ErrLocked = errors.New("another pp run is already in progress")
	// ErrAlreadyRunning means a detached AppHost is still alive.
	ErrAlreadyRunning = errors.New("the AppHost is already running")
	// ErrNotRunning means there is no detached AppHost to stop.
	ErrNotRunning = errors.New("the AppHost is not running")
)

// Manager owns the AppHost lifecycle for one workspace.
type Manager struct {
	Runner process.Runner
	// StateDir is the workspace .pp directory.
	StateDir string
	// ProjectDir is the AppHost project directory.
	ProjectDir string
	// Ports are freed before start; the first is the dashboard, the rest
	// are waited for in order.
	DashboardPort int
	AppPort       int

	StartupTimeout time.Duration
	StopGrace      time.Duration

	// Output receives the AppHost's output in the foreground.
	Output io.Writer

	// Hooks for tests.
	waitForPort func(ctx context.Context, port int, timeout time.Duration) error
	signalPid   func(pid int, grace time.Duration) error
	alive       func(pid int) bool
}

// StartOptions controls Start.
type StartOptions struct {
	Detach bool
	// Ready is called once all ports answer, before Start blocks in the
	// foreground.
	Ready func()
}

func (m *Manager) lockPath() string { return filepath.Join(m.StateDir, lockFile) }

// PidPath is where a detached AppHost's pid is recorded.
func (m *Manager) PidPath() string { return filepath.Join(m.StateDir, pidFile) }

// LogPath is where a detached AppHost writes its output.
func (m *Manager) LogPath() string { return filepath.Join(m.StateDir, logFile) }

func (m *Manager) grace() time.Duration {
	if m.StopGrace > 0 {
		return m.StopGrace
	}
	return DefaultStopGrace
}

func (m *Manager) isAlive(pid int) bool {
	if m.alive != nil {
		return m.alive(pid)
	}
	return process.Alive(pid)
}

func (m *Manager) signal(pid int) error {
	if m.signalPid != nil {
		return m.signalPid(pid, m.grace())
	}
	return process.SignalPid(pid, m.grace())
}

// Lock takes the single-instance lock without blocking.
func (m *Manager) Lock() (*flock.Flock, error) {
	if err := os.MkdirAll(m.StateDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", m.StateDir, err)
	}
	lock := flock.New(m.lockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", m.lockPath(), err)
	}
	if !locked {
		return nil, ErrLocked
	}
	return lock, nil
}

// RunningPid returns the pid of a live detached AppHost, or 0. A stale pid
// file is removed.
func (m *Manager) RunningPid() (int, error) {
	data, err := os.ReadFile(m.PidPath())
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", m.PidPath(), err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || !m.isAlive(pid) {
		debug.Logf("removing stale pid file %s\n", m.PidPath())
		_ = os.Remove(m.PidPath())
		return 0, nil
	}
	return pid, nil
}

// Start runs `dotnet run --project <AppHost>`. In the foreground it blocks
// until ctx is cancelled or the AppHost exits, then stops the process group.
// Detached, it records the pid and returns once the ports answer.
func (m *Manager) Start(ctx context.Context, opts StartOptions) error {
	lock, err := m.Lock()
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	if pid, err := m.RunningPid(); err != nil {
		return err
	} else if pid != 0 {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}

	if err := FreePorts(ctx, m.Runner, m.signalOrDefault(), m.DashboardPort, m.AppPort); err != nil {
		return err
	}

	cmd := process.Command{
		Name: "dotnet",
		Args: []string{"run", "--project", m.ProjectDir},
		Dir:  m.ProjectDir,
	}
	var logOut *os.File
	if opts.Detach {
		logOut, err = os.OpenFile(m.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", m.LogPath(), err)
		}
		defer func() { _ = logOut.Close() }()
		cmd.Stdout, cmd.Stderr = logOut, logOut
	} else {
		cmd.Stdout, cmd.Stderr = m.Output, m.Output
	}

	proc, err := m.Runner.Start(ctx, cmd)
	if err != nil {
		return fmt.Errorf("failed to start the AppHost: %w", err)
	}
	debug.LogEvent("APPHOST_STARTED", "run", fmt.Sprintf("pid=%d detach=%t", proc.Pid(), opts.Detach))

	exited := make(chan error, 1)
	go func() { exited <- proc.Wait() }()

	if err := m.waitReady(ctx, exited); err != nil {
		_ = proc.Stop(m.grace())
		return err
	}
	if opts.Ready != nil {
		opts.Ready()
	}

	if opts.Detach {
		if err := os.WriteFile(m.PidPath(), []byte(strconv.Itoa(proc.Pid())+"\n"), 0o600); err != nil {
			_ = proc.Stop(m.grace())
			return fmt.Errorf("failed to write %s: %w", m.PidPath(), err)
		}
		return nil
	}

	select {
	case err := <-exited:
		if err != nil {
			return fmt.Errorf("the AppHost exited: %w", err)
		}
		return nil
	case <-ctx.Done():
		debug.Logf("stopping the AppHost (pid %d)\n", proc.Pid())
		if err := proc.Stop(m.grace()); err != nil {
			return err
		}
		debug.LogEvent("APPHOST_STOPPED", "run", fmt.Sprintf("pid=%d", proc.Pid()))
		return nil
	}
}

// waitReady waits for the dashboard, then the app, failing fast if the
// AppHost dies first. StartupTimeout bounds both ports together.
func (m *Manager) waitReady(ctx context.Context, exited <-chan error) error {
	wait := m.waitForPort
	if wait == nil {
		wait = WaitForPort
	}
	timeout := m.StartupTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	deadline := time.Now().Add(timeout)

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	result := make(chan error, 1)
	go func() {
		for _, port := range []int{m.DashboardPort, m.AppPort} {
			if port == 0 {
				continue
			}
			left := time.Until(deadline)
			if left <= 0 {
				result <- fmt.Errorf("timed out after %s waiting for port %d", timeout, port)
				return
			}
			if err := wait(ctx, port, left); err != nil {
				result <- err
				return
			}
		}
		result <- nil
	}()

	select {
	case err := <-result:
		return err
	case err := <-exited:
		if err == nil {
			err = errors.New("exit status 0")
		}
		return fmt.Errorf("the AppHost exited before it was ready: %w", err)
	}
}

func (m *Manager) signalOrDefault() func(int, time.Duration) error {
	if m.signalPid != nil {
		return m.signalPid
	}
	return process.SignalPid
}

// Stop terminates a detached AppHost and frees its ports.
func (m *Manager) Stop(ctx context.Context) (int, error) {
	pid, err := m.RunningPid()
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		// nothing recorded, but a crashed run may still hold the ports
		if err := FreePorts(ctx, m.Runner, m.signalOrDefault(), m.DashboardPort, m.AppPort); err != nil {
			return 0, err
		}
		return 0, ErrNotRunning
	}
	if err := m.signal(pid); err != nil {
		return pid, err
	}
	if err := os.Remove(m.PidPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return pid, fmt.Errorf("failed to remove %s: %w", m.PidPath(), err)
	}
	debug.LogEvent("APPHOST_STOPPED", "stop", fmt.Sprintf("pid=%d", pid))
	return pid, FreePorts(ctx, m.Runner, m.signalOrDefault(), m.DashboardPort, m.AppPort)
}
