package translate

import (
	"context"
	"fmt"

	"github.com/platformplatform/developer-cli/internal/process"
)

// Provider names accepted by --provider and translate.provider.
const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	Name           string
	OllamaModel    string
	AnthropicModel string
}

// NewProvider builds the named provider, making sure it can serve requests.
func NewProvider(ctx context.Context, r process.Runner, cfg ProviderConfig) (Translator, error) {
	switch cfg.Name {
	case ProviderOllama, "":
		if _, err := r.LookPath("ollama"); err != nil {
			return nil, fmt.Errorf("ollama is not installed: %w", err)
		}
		o := NewOllama(r, cfg.OllamaModel)
		if err := o.EnsureModel(ctx); err != nil {
			return nil, err
		}
		return o, nil
	case ProviderAnthropic:
		return NewAnthropic(cfg.AnthropicModel)
	}
	return nil, fmt.Errorf("unknown translation provider %q (use %s or %s)", cfg.Name, ProviderOllama, ProviderAnthropic)
}
