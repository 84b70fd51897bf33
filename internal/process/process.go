// Package process runs the external toolchains pp wraps (dotnet, npm, git,
// docker, az, gh, openssl, ollama) and captures their output.
//
// Every child runs in its own process group so that cancelling the context
// also stops the grandchildren a build tool or dev server spawns.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrNotFound is returned when the executable is not on PATH.
var ErrNotFound = errors.New("executable not found")

// Command describes one external invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Env is appended to the parent environment.
	Env   []string
	Stdin io.Reader

	// Stdout and Stderr, when set, receive output as it is produced in
	// addition to being captured in the Result.
	Stdout io.Writer
	Stderr io.Writer

	// OnLine is called for every complete output line, stdout and stderr
	// interleaved in arrival order. Calls are serialized.
	OnLine func(line string)

	// Timeout bounds the run in addition to the caller's context.
	Timeout time.Duration
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the outcome of a finished command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Success reports a zero exit code.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Combined returns stdout followed by stderr.
func (r *Result) Combined() string {
	if r == nil {
		return ""
	}
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

// ExitCode extracts the wrapped tool's exit code from err, or 1.
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode > 0 {
		return exitErr.ExitCode
	}
	return 1
}

// Process is a started background command.
type Process interface {
	Pid() int
	// Wait blocks until the process exits.
	Wait() error
	// Stop signals the process group to terminate, escalating to a kill
	// after grace.
	Stop(grace time.Duration) error
}

// Runner executes commands. ExecRunner is the real implementation;
// processtest.Fake records calls for tests.
type Runner interface {
	// Run executes cmd to completion. A non-zero exit yields both a populated
	// Result and an *ExitError.
	Run(ctx context.Context, cmd Command) (*Result, error)
	// Start launches cmd without waiting for it.
	Start(ctx context.Context, cmd Command) (Process, error)
	// LookPath reports whether the executable is available.
	LookPath(name string) (string, error)
}

// Output is a convenience for commands whose trimmed stdout is the answer,
// e.g. `git rev-parse --show-toplevel`.
func Output(ctx context.Context, r Runner, dir, name string, args ...string) (string, error) {
	res, err := r.Run(ctx, Command{Name: name, Args: args, Dir: dir})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
