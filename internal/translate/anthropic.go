package translate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/platformplatform/developer-cli/internal/telemetry"
)

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	instrumentName = "github.com/platformplatform/developer-cli/translate"
)

// ErrAPIKeyRequired is returned when ANTHROPIC_API_KEY is not set.
var ErrAPIKeyRequired = errors.New("API key required")

// Anthropic translates through the Messages API.
type Anthropic struct {
	client         anthropic.Client
	model          anthropic.Model
	maxRetries     int
	initialBackoff time.Duration
}

// NewAnthropic reads ANTHROPIC_API_KEY. Extra options are passed to the
// client (tests point it at a local server).
func NewAnthropic(model string, opts ...option.RequestOption) (*Anthropic, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY or use --provider ollama", ErrAPIKeyRequired)
	}
	aiMetricsOnce.Do(initAIMetrics)

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Anthropic{
		client:         anthropic.NewClient(opts...),
		model:          anthropic.Model(model),
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
	}, nil
}

var aiMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

var aiMetricsOnce sync.Once

func initAIMetrics() {
	m := telemetry.Meter(instrumentName)
	aiMetrics.inputTokens, _ = m.Int64Counter("pp.ai.input_tokens",
		metric.WithDescription("Anthropic API input tokens consumed"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.outputTokens, _ = m.Int64Counter("pp.ai.output_tokens",
		metric.WithDescription("Anthropic API output tokens generated"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.duration, _ = m.Float64Histogram("pp.ai.request.duration",
		metric.WithDescription("Anthropic API request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

// Translate implements Translator.
func (a *Anthropic) Translate(ctx context.Context, req Request) (string, error) {
	ctx, span := telemetry.Tracer(instrumentName).Start(ctx, "anthropic.messages.new")
	defer span.End()
	modelAttr := attribute.String("pp.ai.model", string(a.model))
	span.SetAttributes(
		modelAttr,
		attribute.String("pp.translate.locale", req.TargetLocale),
	)

	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(Prompt(req))),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			wait := a.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		t0 := time.Now()
		message, err := a.client.Messages.New(ctx, params)
		ms := float64(time.Since(t0).Milliseconds())

		if err == nil {
			if aiMetrics.inputTokens != nil {
				aiMetrics.inputTokens.Add(ctx, message.Usage.InputTokens, metric.WithAttributes(modelAttr))
				aiMetrics.outputTokens.Add(ctx, message.Usage.OutputTokens, metric.WithAttributes(modelAttr))
				aiMetrics.duration.Record(ctx, ms, metric.WithAttributes(modelAttr))
			}
			span.SetAttributes(attribute.Int("pp.ai.attempts", attempt+1))

			for _, block := range message.Content {
				if block.Type == "text" {
					return block.Text, nil
				}
			}
			return "", errors.New("unexpected response format: no text block")
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("non-retryable error: %w", err)
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return "", fmt.Errorf("failed after %d attempts: %w", a.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
