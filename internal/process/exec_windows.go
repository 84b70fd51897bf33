//go:build windows

package process

import (
	"os"
	"os/exec"
	"time"
)

func setProcessGroup(cmd *exec.Cmd) {}

// terminateGroup kills the process; Windows has no process-group signal.
func terminateGroup(p *os.Process, _ time.Duration, done <-chan error) error {
	if p == nil {
		return nil
	}
	if err := p.Kill(); err != nil {
		return err
	}
	<-done
	return nil
}

// SignalPid kills pid. Returns nil if it is already gone.
func SignalPid(pid int, _ time.Duration) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	_ = p.Kill()
	return nil
}

// Alive reports whether a process with pid exists.
func Alive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
