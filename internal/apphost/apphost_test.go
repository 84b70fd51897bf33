package apphost

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformplatform/developer-cli/internal/process/processtest"
)

type recorder struct {
	mu      sync.Mutex
	waited  []int
	killed  []int
	aliveOK bool
}

func newManager(t *testing.T, fake *processtest.Fake) (*Manager, *recorder) {
	t.Helper()
	rec := &recorder{aliveOK: true}
	m := &Manager{
		Runner:         fake,
		StateDir:       t.TempDir(),
		ProjectDir:     "/src/application/AppHost",
		DashboardPort:  9001,
		AppPort:        9000,
		StartupTimeout: time.Second,
		Output:         &bytes.Buffer{},
		waitForPort: func(_ context.Context, port int, _ time.Duration) error {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.waited = append(rec.waited, port)
			return nil
		},
		signalPid: func(pid int, _ time.Duration) error {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.killed = append(rec.killed, pid)
			return nil
		},
		alive: func(int) bool { return rec.aliveOK },
	}
	return m, rec
}

func TestStartForegroundStopsOnCancel(t *testing.T) {
	fake := processtest.NewFake().
		On("lsof -ti tcp:9001", processtest.Response{Stdout: "321\n"}).
		On("lsof -ti tcp:9000", processtest.Response{ExitCode: 1})
	m, rec := newManager(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := m.Start(ctx, StartOptions{Ready: cancel})
	require.NoError(t, err)

	assert.Equal(t, []int{9001, 9000}, rec.waited)
	assert.Equal(t, []int{321}, rec.killed)
	assert.True(t, fake.Called("dotnet run --project /src/application/AppHost"))
	assert.NoFileExists(t, m.PidPath())
}

func TestStartDetachedWritesPidAndRefusesSecondStart(t *testing.T) {
	fake := processtest.NewFake().On("lsof", processtest.Response{ExitCode: 1})
	m, _ := newManager(t, fake)

	require.NoError(t, m.Start(context.Background(), StartOptions{Detach: true}))
	data, err := os.ReadFile(m.PidPath())
	require.NoError(t, err)
	assert.Equal(t, "4242\n", string(data))
	assert.FileExists(t, m.LogPath())

	cmds := fake.Commands()
	last := cmds[len(cmds)-1]
	_, isFile := last.Stdout.(*os.File)
	assert.True(t, isFile, "detached output goes to the log file")

	err = m.Start(context.Background(), StartOptions{Detach: true})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestStartRespectsLock(t *testing.T) {
	m, _ := newManager(t, processtest.NewFake())
	lock, err := m.Lock()
	require.NoError(t, err)
	defer func() { _ = lock.Unlock() }()

	err = m.Start(context.Background(), StartOptions{Detach: true})
	assert.ErrorIs(t, err, ErrLocked)
}

func TestStartStopsProcessWhenNotReady(t *testing.T) {
	fake := processtest.NewFake()
	m, _ := newManager(t, fake)
	m.waitForPort = func(context.Context, int, time.Duration) error {
		return errors.New("timed out")
	}

	err := m.Start(context.Background(), StartOptions{Detach: true})
	assert.ErrorContains(t, err, "timed out")
	assert.NoFileExists(t, m.PidPath())
}

func TestStartupTimeoutCoversAllPorts(t *testing.T) {
	fake := processtest.NewFake().On("lsof", processtest.Response{ExitCode: 1})
	m, _ := newManager(t, fake)
	m.StartupTimeout = 200 * time.Millisecond

	var budgets []time.Duration
	m.waitForPort = func(_ context.Context, _ int, timeout time.Duration) error {
		budgets = append(budgets, timeout)
		time.Sleep(50 * time.Millisecond)
		return nil
	}
	require.NoError(t, m.Start(context.Background(), StartOptions{Detach: true}))
	require.Len(t, budgets, 2)
	assert.LessOrEqual(t, budgets[0], 200*time.Millisecond)
	assert.LessOrEqual(t, budgets[1], 150*time.Millisecond)

	budgets = nil
	require.NoError(t, os.Remove(m.PidPath()))
	m.StartupTimeout = 30 * time.Millisecond
	err := m.Start(context.Background(), StartOptions{Detach: true})
	assert.ErrorContains(t, err, "waiting for port 9000")
	assert.Len(t, budgets, 1, "the app port gets no time of its own once the budget is spent")
}

func TestStopDetached(t *testing.T) {
	fake := processtest.NewFake().On("lsof", processtest.Response{ExitCode: 1})
	m, rec := newManager(t, fake)
	require.NoError(t, os.WriteFile(m.PidPath(), []byte("777\n"), 0o600))

	pid, err := m.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 777, pid)
	assert.Equal(t, []int{777}, rec.killed)
	assert.NoFileExists(t, m.PidPath())
}

func TestStopWithStalePidFile(t *testing.T) {
	fake := processtest.NewFake().On("lsof", processtest.Response{ExitCode: 1})
	m, rec := newManager(t, fake)
	rec.aliveOK = false
	require.NoError(t, os.WriteFile(m.PidPath(), []byte("777\n"), 0o600))

	_, err := m.Stop(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.NoFileExists(t, m.PidPath())
	assert.Empty(t, rec.killed)
}

func TestPortPids(t *testing.T) {
	fake := processtest.NewFake().
		On("lsof -ti tcp:9000", processtest.Response{Stdout: "12\n34\n"}).
		On("lsof -ti tcp:9001", processtest.Response{ExitCode: 1}).
		On("lsof -ti tcp:9002", processtest.Response{Stdout: "garbage"})

	pids, err := PortPids(context.Background(), fake, 9000)
	require.NoError(t, err)
	assert.Equal(t, []int{12, 34}, pids)

	pids, err = PortPids(context.Background(), fake, 9001)
	require.NoError(t, err)
	assert.Empty(t, pids)

	_, err = PortPids(context.Background(), fake, 9002)
	assert.ErrorContains(t, err, "unexpected lsof output")
}

func TestFreePortsWithoutLsof(t *testing.T) {
	fake := processtest.NewFake().Missing("lsof")
	err := FreePorts(context.Background(), fake, func(int, time.Duration) error {
		t.Fatal("nothing should be killed")
		return nil
	}, 9000)
	assert.NoError(t, err)
}

func TestWaitForPort(t *testing.T) {
	ln, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	require.NoError(t, WaitForPort(context.Background(), port, 2*time.Second))
	assert.True(t, PortOpen(port))

	closed, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	freePort := closed.Addr().(*net.TCPAddr).Port
	require.NoError(t, closed.Close())

	err = WaitForPort(context.Background(), freePort, 300*time.Millisecond)
	assert.ErrorContains(t, err, "timed out after 300ms waiting for port "+strconv.Itoa(freePort))
}
