package apphost

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/process"
)

// PortOpen reports whether something accepts TCP connections on localhost.
func PortOpen(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)), time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// WaitForPort polls with exponential backoff until the port accepts
// connections or timeout passes.
func WaitForPort(ctx context.Context, port int, timeout time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = timeout

	attempts := 0
	op := func() error {
		attempts++
		if PortOpen(port) {
			return nil
		}
		return fmt.Errorf("port %d is not accepting connections", port)
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("timed out after %s waiting for port %d: %w", timeout, port, err)
	}
	debug.Logf("port %d ready after %d attempts\n", port, attempts)
	return nil
}

// PortPids lists processes listening on port via lsof. lsof exits 1 when
// nothing matches.
func PortPids(ctx context.Context, r process.Runner, port int) ([]int, error) {
	res, err := r.Run(ctx, process.Command{Name: "lsof", Args: []string{"-ti", "tcp:" + strconv.Itoa(port)}})
	var exitErr *process.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode == 1 && strings.TrimSpace(res.Stdout) == "" {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var pids []int
	for _, field := range strings.Fields(res.Stdout) {
		pid, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("unexpected lsof output %q", field)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// FreePorts kills whatever listens on the given ports.
func FreePorts(ctx context.Context, r process.Runner, kill func(int, time.Duration) error, ports ...int) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	if _, err := r.LookPath("lsof"); err != nil {
		debug.Logf("lsof not found, not freeing ports %v\n", ports)
		return nil
	}
	for _, port := range ports {
		if port == 0 {
			continue
		}
		pids, err := PortPids(ctx, r, port)
		if err != nil {
			return fmt.Errorf("failed to find processes on port %d: %w", port, err)
		}
		for _, pid := range pids {
			debug.Logf("killing pid %d holding port %d\n", pid, port)
			if err := kill(pid, 2*time.Second); err != nil {
				return fmt.Errorf("failed to stop pid %d on port %d: %w", pid, port, err)
			}
		}
	}
	return nil
}

// OpenBrowser opens url with the platform's default handler.
func OpenBrowser(ctx context.Context, r process.Runner, url string) error {
	var cmd process.Command
	switch runtime.GOOS {
	case "darwin":
		cmd = process.Command{Name: "open", Args: []string{url}}
	case "windows":
		cmd = process.Command{Name: "rundll32", Args: []string{"url.dll,FileProtocolHandler", url}}
	default:
		cmd = process.Command{Name: "xdg-open", Args: []string{url}}
	}
	_, err := r.Run(ctx, cmd)
	return err
}
