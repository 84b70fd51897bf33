package translate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformplatform/developer-cli/internal/process"
	"github.com/platformplatform/developer-cli/internal/process/processtest"
)

const ollamaList = `NAME              ID              SIZE      MODIFIED
llama3.1:8b       46e0c10c039e    4.9 GB    2 weeks ago
qwen2.5           845dbda0ea48    4.7 GB    3 days ago
`

func TestOllamaModels(t *testing.T) {
	fake := processtest.NewFake().On("ollama list", processtest.Response{Stdout: ollamaList})
	o := NewOllama(fake, "llama3.1:8b")

	models, err := o.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.1:8b", "qwen2.5"}, models)
	assert.True(t, hasModel(models, "qwen2.5:latest"))
	assert.False(t, hasModel(models, "llama3.1"))
}

func TestOllamaEnsureModelPullsWithRetry(t *testing.T) {
	fake := processtest.NewFake().
		On("ollama list", processtest.Response{Stdout: ollamaList}).
		On("ollama pull", processtest.Response{}).
		Once("ollama pull", processtest.Response{ExitCode: 1, Stderr: "connection reset"})
	o := NewOllama(fake, "mistral")
	o.pullBackoff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
	}

	require.NoError(t, o.EnsureModel(context.Background()))
	assert.Equal(t, []string{"ollama list", "ollama pull mistral", "ollama pull mistral"}, fake.Calls())
}

func TestOllamaEnsureModelPresent(t *testing.T) {
	fake := processtest.NewFake().On("ollama list", processtest.Response{Stdout: ollamaList})
	require.NoError(t, NewOllama(fake, "llama3.1:8b").EnsureModel(context.Background()))
	assert.False(t, fake.Called("ollama pull"))
}

func TestOllamaTranslateSendsPromptOnStdin(t *testing.T) {
	var prompt string
	fake := processtest.NewFake().On("ollama run llama3.1:8b", processtest.Response{
		Stdout: "Gem\n",
		Hook: func(c process.Command) {
			data, _ := io.ReadAll(c.Stdin)
			prompt = string(data)
		},
	})
	got, err := NewOllama(fake, "llama3.1:8b").Translate(context.Background(), Request{Text: "Save", SourceLocale: "en-US", TargetLocale: "da-DK"})
	require.NoError(t, err)
	assert.Equal(t, "Gem\n", got)
	assert.Contains(t, prompt, "Text:\nSave\n")
}

func TestNewProviderUnknownAndMissingOllama(t *testing.T) {
	fake := processtest.NewFake().Missing("ollama")
	_, err := NewProvider(context.Background(), fake, ProviderConfig{Name: "ollama", OllamaModel: "x"})
	assert.ErrorIs(t, err, process.ErrNotFound)

	_, err = NewProvider(context.Background(), fake, ProviderConfig{Name: "deepl"})
	assert.ErrorContains(t, err, "unknown translation provider")
}

func TestNewAnthropicRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewAnthropic("claude-sonnet-4-5")
	assert.True(t, errors.Is(err, ErrAPIKeyRequired))
}

func messageResponse(text string) map[string]interface{} {
	return map[string]interface{}{
		"id":          "msg_test123",
		"type":        "message",
		"role":        "assistant",
		"model":       "claude-sonnet-4-5",
		"stop_reason": "end_turn",
		"content": []map[string]interface{}{
			{"type": "text", "text": text},
		},
		"usage": map[string]interface{}{"input_tokens": 42, "output_tokens": 3},
	}
}

func TestAnthropicTranslateRetriesServerErrors(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(messageResponse("Gem"))
	}))
	defer server.Close()

	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	a, err := NewAnthropic("claude-sonnet-4-5", option.WithBaseURL(server.URL), option.WithMaxRetries(0))
	require.NoError(t, err)
	a.initialBackoff = time.Millisecond

	got, err := a.Translate(context.Background(), Request{Text: "Save", SourceLocale: "en-US", TargetLocale: "da-DK"})
	require.NoError(t, err)
	assert.Equal(t, "Gem", got)
	assert.Equal(t, int32(2), requests.Load())
}

func TestAnthropicTranslateDoesNotRetryClientErrors(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad model"}}`))
	}))
	defer server.Close()

	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	a, err := NewAnthropic("nope", option.WithBaseURL(server.URL), option.WithMaxRetries(0))
	require.NoError(t, err)
	a.initialBackoff = time.Millisecond

	_, err = a.Translate(context.Background(), Request{Text: "Save"})
	assert.ErrorContains(t, err, "non-retryable")
	assert.Equal(t, int32(1), requests.Load())
}
