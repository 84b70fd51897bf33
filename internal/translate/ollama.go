package translate

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/platformplatform/developer-cli/internal/debug"
	"github.com/platformplatform/developer-cli/internal/process"
)

// Ollama translates by piping a prompt into `ollama run <model>`.
type Ollama struct {
	Runner process.Runner
	Model  string

	// pullBackoff bounds retries of `ollama pull`; tests shorten it.
	pullBackoff func() backoff.BackOff
}

// NewOllama returns a provider for model.
func NewOllama(r process.Runner, model string) *Ollama {
	return &Ollama{Runner: r, Model: model}
}

func (o *Ollama) backoff() backoff.BackOff {
	if o.pullBackoff != nil {
		return o.pullBackoff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxElapsedTime = 2 * time.Minute
	return backoff.WithMaxRetries(b, 3)
}

// Models lists locally available models from `ollama list`.
func (o *Ollama) Models(ctx context.Context) ([]string, error) {
	out, err := process.Output(ctx, o.Runner, "", "ollama", "list")
	if err != nil {
		return nil, fmt.Errorf("failed to list ollama models: %w", err)
	}
	var models []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || fields[0] == "NAME" {
			continue
		}
		models = append(models, fields[0])
	}
	return models, nil
}

// hasModel treats "llama3.1" and "llama3.1:latest" as the same model.
func hasModel(models []string, want string) bool {
	norm := func(s string) string {
		if !strings.Contains(s, ":") {
			return s + ":latest"
		}
		return s
	}
	for _, m := range models {
		if norm(m) == norm(want) {
			return true
		}
	}
	return false
}

// EnsureModel pulls the model when it is not available locally.
func (o *Ollama) EnsureModel(ctx context.Context) error {
	models, err := o.Models(ctx)
	if err != nil {
		return err
	}
	if hasModel(models, o.Model) {
		return nil
	}

	debug.Logf("pulling ollama model %s", o.Model)
	pull := func() error {
		_, err := o.Runner.Run(ctx, process.Command{Name: "ollama", Args: []string{"pull", o.Model}})
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		debug.Logf("ollama pull failed (%v), retrying in %s", err, wait)
	}
	if err := backoff.RetryNotify(pull, backoff.WithContext(o.backoff(), ctx), notify); err != nil {
		return fmt.Errorf("failed to pull ollama model %s: %w", o.Model, err)
	}
	return nil
}

// Translate implements Translator.
func (o *Ollama) Translate(ctx context.Context, req Request) (string, error) {
	res, err := o.Runner.Run(ctx, process.Command{
		Name:  "ollama",
		Args:  []string{"run", o.Model},
		Stdin: strings.NewReader(Prompt(req)),
	})
	if err != nil {
		return "", fmt.Errorf("ollama run %s: %w", o.Model, err)
	}
	return res.Stdout, nil
}
