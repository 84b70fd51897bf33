// Package processtest provides a scripted process.Runner for tests.
package processtest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/platformplatform/developer-cli/internal/process"
)

// Response is the canned outcome for a matched command.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
	// Hook runs when the command is invoked, before output is replayed.
	// Tests use it to emulate side effects such as files being written.
	Hook func(cmd process.Command)
}

type rule struct {
	prefix string
	resp   Response
	times  int // 0 = unlimited
	used   int
}

// Fake matches commands by prefix of their rendered command line
// ("dotnet build", "git status --porcelain"). The most recently added
// matching rule wins. Unmatched commands succeed with empty output unless
// Strict is set.
type Fake struct {
	mu      sync.Mutex
	rules   []*rule
	calls   []process.Command
	missing map[string]bool
	Strict  bool
	nextPid int
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{missing: map[string]bool{}, nextPid: 4242}
}

// On registers a response for commands starting with prefix.
func (f *Fake) On(prefix string, resp Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, &rule{prefix: prefix, resp: resp})
	return f
}

// Once registers a response used for a single matching call.
func (f *Fake) Once(prefix string, resp Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, &rule{prefix: prefix, resp: resp, times: 1})
	return f
}

// Missing makes LookPath fail for name.
func (f *Fake) Missing(name string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.missing[name] = true
	return f
}

// Calls returns the rendered command lines in invocation order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}

// Commands returns the recorded commands in invocation order.
func (f *Fake) Commands() []process.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]process.Command(nil), f.calls...)
}

// Called reports whether any call started with prefix.
func (f *Fake) Called(prefix string) bool {
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (f *Fake) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[name] {
		return "", fmt.Errorf("%w: %s", process.ErrNotFound, name)
	}
	return "/usr/bin/" + name, nil
}

func (f *Fake) match(c process.Command) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if f.missing[c.Name] {
		return Response{}, fmt.Errorf("%w: %s", process.ErrNotFound, c.Name)
	}
	line := c.String()
	for i := len(f.rules) - 1; i >= 0; i-- {
		r := f.rules[i]
		if !strings.HasPrefix(line, r.prefix) || (r.times > 0 && r.used >= r.times) {
			continue
		}
		r.used++
		return r.resp, nil
	}
	if f.Strict {
		return Response{}, fmt.Errorf("processtest: unexpected command %q", line)
	}
	return Response{}, nil
}

func (f *Fake) Run(ctx context.Context, c process.Command) (*process.Result, error) {
	resp, err := f.match(c)
	if err != nil {
		return nil, err
	}
	if resp.Hook != nil {
		resp.Hook(c)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	replay(c.Stdout, c.OnLine, resp.Stdout)
	replay(c.Stderr, c.OnLine, resp.Stderr)

	res := &process.Result{ExitCode: resp.ExitCode, Stdout: resp.Stdout, Stderr: resp.Stderr, Duration: time.Millisecond}
	if resp.Err != nil {
		return res, resp.Err
	}
	if resp.ExitCode != 0 {
		return res, &process.ExitError{Command: c.String(), ExitCode: resp.ExitCode, Stderr: resp.Stderr}
	}
	return res, nil
}

func replay(w io.Writer, onLine func(string), out string) {
	if out == "" {
		return
	}
	if w != nil {
		_, _ = w.Write([]byte(out))
	}
	if onLine != nil {
		for _, line := range strings.Split(strings.TrimSuffix(out, "\n"), "\n") {
			onLine(line)
		}
	}
}

func (f *Fake) Start(ctx context.Context, c process.Command) (process.Process, error) {
	resp, err := f.match(c)
	if err != nil {
		return nil, err
	}
	if resp.Hook != nil {
		resp.Hook(c)
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	replay(c.Stdout, c.OnLine, resp.Stdout)

	f.mu.Lock()
	pid := f.nextPid
	f.nextPid++
	f.mu.Unlock()
	return &FakeProcess{pid: pid, done: make(chan struct{})}, nil
}

// FakeProcess is returned by Fake.Start. It runs until Stop is called.
type FakeProcess struct {
	pid     int
	done    chan struct{}
	once    sync.Once
	Stopped bool
}

func (p *FakeProcess) Pid() int { return p.pid }

func (p *FakeProcess) Wait() error {
	<-p.done
	return nil
}

func (p *FakeProcess) Stop(time.Duration) error {
	p.once.Do(func() {
		p.Stopped = true
		close(p.done)
	})
	return nil
}

var _ process.Runner = (*Fake)(nil)
