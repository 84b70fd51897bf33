//go:build unix

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateGroup sends SIGTERM to the whole group and SIGKILL if it has not
// exited after grace. done is closed or written when the leader exits.
func terminateGroup(p *os.Process, grace time.Duration, done <-chan error) error {
	if p == nil {
		return nil
	}
	if err := unix.Kill(-p.Pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal process group: %w", err)
	}
	select {
	case <-done:
		return nil
	case <-time.After(grace):
	}
	if err := unix.Kill(-p.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill process group: %w", err)
	}
	<-done
	return nil
}

// SignalPid terminates the process group led by pid, for processes started by
// an earlier pp invocation (pid files). A pid that leads no group is signalled
// alone. Returns nil if it is already gone.
func SignalPid(pid int, grace time.Duration) error {
	target := -pid
	err := unix.Kill(target, unix.SIGTERM)
	if errors.Is(err, unix.ESRCH) {
		target = pid
		err = unix.Kill(target, unix.SIGTERM)
	}
	if err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("signal process %d: %w", pid, err)
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !Alive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err := unix.Kill(target, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill process %d: %w", pid, err)
	}
	return nil
}

// Alive reports whether a process with pid exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
