package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/telemetry"
)

const scopeName = "github.com/platformplatform/developer-cli/process"

// killGrace is how long a cancelled process group gets between SIGTERM and SIGKILL.
const killGrace = 5 * time.Second

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewExecRunner returns the os/exec backed Runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

var (
	metricsOnce sync.Once
	runDuration metric.Float64Histogram
	runFailures metric.Int64Counter
)

func initMetrics() {
	m := telemetry.Meter(scopeName)
	runDuration, _ = m.Float64Histogram("pp.process.duration",
		metric.WithDescription("External tool run duration"),
		metric.WithUnit("ms"),
	)
	runFailures, _ = m.Int64Counter("pp.process.failures",
		metric.WithDescription("External tool runs that exited non-zero or failed to start"),
	)
}

// LookPath wraps exec.LookPath, mapping a miss to ErrNotFound.
func (r *ExecRunner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return path, nil
}

// Run executes c to completion, killing its process group if ctx ends first.
func (r *ExecRunner) Run(ctx context.Context, c Command) (res *Result, retErr error) {
	metricsOnce.Do(initMetrics)

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	ctx, span := telemetry.Tracer(scopeName).Start(ctx, "process.exec",
		trace.WithAttributes(
			attribute.String("process.command", c.Name),
			attribute.StringSlice("process.args", c.Args),
			attribute.String("process.dir", c.Dir),
		),
	)
	start := time.Now()
	defer func() {
		ms := float64(time.Since(start).Milliseconds())
		attrs := metric.WithAttributes(attribute.String("process.command", c.Name))
		runDuration.Record(ctx, ms, attrs)
		if res != nil {
			span.SetAttributes(attribute.Int("process.exit_code", res.ExitCode))
		}
		if retErr != nil {
			runFailures.Add(ctx, 1, attrs)
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	debug.Logf("exec: %s (dir=%s)\n", c.String(), c.Dir)

	cmd, stdout, stderr, err := r.prepare(c)
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", c.Name, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case <-ctx.Done():
		_ = terminateGroup(cmd.Process, killGrace, done)
		waitErr = ctx.Err()
	case waitErr = <-done:
	}
	stdout.flush()
	stderr.flush()

	res = &Result{
		ExitCode: exitCode(cmd, waitErr),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if ctx.Err() != nil {
		return res, fmt.Errorf("%s: %w", c.Name, ctx.Err())
	}
	if res.ExitCode != 0 {
		return res, &ExitError{Command: c.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	var execErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &execErr) {
		return res, fmt.Errorf("%s: %w", c.Name, waitErr)
	}
	return res, nil
}

// Start launches c in its own process group and returns immediately.
// The context only bounds startup; use Process.Stop to end the process.
func (r *ExecRunner) Start(ctx context.Context, c Command) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	debug.Logf("start: %s (dir=%s)\n", c.String(), c.Dir)

	cmd, stdout, stderr, err := r.prepare(c)
	if err != nil {
		return nil, err
	}
	// Files are handed to the child directly so it can outlive pp.
	if c.OnLine == nil {
		if f, ok := c.Stdout.(*os.File); ok {
			cmd.Stdout = f
		}
		if f, ok := c.Stderr.(*os.File); ok {
			cmd.Stderr = f
		}
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", c.Name, err)
	}

	p := &execProcess{cmd: cmd, done: make(chan error, 1)}
	go func() {
		err := cmd.Wait()
		stdout.flush()
		stderr.flush()
		p.done <- err
		close(p.done)
	}()
	return p, nil
}

func (r *ExecRunner) prepare(c Command) (*exec.Cmd, *lineWriter, *lineWriter, error) {
	path, err := r.LookPath(c.Name)
	if err != nil {
		return nil, nil, nil, err
	}

	// #nosec G204 -- commands are built by pp, not from untrusted input
	cmd := exec.Command(path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdin = c.Stdin
	setProcessGroup(cmd)

	var mu sync.Mutex
	stdout := newLineWriter(&mu, c.Stdout, c.OnLine)
	stderr := newLineWriter(&mu, c.Stderr, c.OnLine)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd, stdout, stderr, nil
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		if code := cmd.ProcessState.ExitCode(); code >= 0 {
			return code
		}
		// Killed by a signal.
		return 1
	}
	if waitErr != nil {
		return 1
	}
	return 0
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan error
	once sync.Once
	err  error
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() error {
	p.once.Do(func() { p.err = <-p.done })
	return p.err
}

func (p *execProcess) Stop(grace time.Duration) error {
	return terminateGroup(p.cmd.Process, grace, p.done)
}
