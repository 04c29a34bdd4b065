// Package llm provides text completion backends.
//
// Every backend implements Completer. Output is free text; callers parse it
// with the structured package and keep a fallback for every call site.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrEmptyResponse is returned when a backend produced no text.
var ErrEmptyResponse = errors.New("empty completion response")

// Options tune a single completion call.
type Options struct {
	// Temperature is the sampling temperature. Zero uses the backend default.
	Temperature float64
	// MaxTokens caps the response length. Zero uses the backend default.
	MaxTokens int
}

// Completer produces text for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// Provider names a completion backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderBedrock   Provider = "bedrock"
	ProviderGemini    Provider = "gemini"
	ProviderOllama    Provider = "ollama"
)

// Valid returns true if the provider is a known value.
func (p Provider) Valid() bool {
	switch p {
	case ProviderAnthropic, ProviderBedrock, ProviderGemini, ProviderOllama:
		return true
	default:
		return false
	}
}

// Config selects and configures a backend.
type Config struct {
	Provider    Provider
	Model       string
	APIKey      string
	OllamaURL   string
	AWSRegion   string
	AWSProfile  string
	Temperature float64
	MaxTokens   int
	// Timeout bounds every completion call.
	Timeout time.Duration
}

// New builds the configured backend wrapped with defaults and a timeout.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Completer, *UsageTracker, error) {
	tracker := NewUsageTracker()

	var (
		inner Completer
		err   error
	)
	switch cfg.Provider {
	case ProviderAnthropic, "":
		inner, err = NewAnthropic(AnthropicConfig{Model: cfg.Model, APIKey: cfg.APIKey}, tracker)
	case ProviderBedrock:
		inner, err = NewAnthropic(AnthropicConfig{
			Model:         cfg.Model,
			UseAWSBedrock: true,
			AWSRegion:     cfg.AWSRegion,
			AWSProfile:    cfg.AWSProfile,
		}, tracker)
	case ProviderGemini:
		inner, err = NewGemini(ctx, GeminiConfig{Model: cfg.Model, APIKey: cfg.APIKey}, tracker)
	case ProviderOllama:
		inner = NewOllama(OllamaConfig{BaseURL: cfg.OllamaURL, Model: cfg.Model}, tracker)
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create %s completer: %w", cfg.Provider, err)
	}

	return WithDefaults(inner, cfg.Timeout, Options{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}, logger), tracker, nil
}

// guarded applies default options and a per-call timeout.
type guarded struct {
	inner    Completer
	timeout  time.Duration
	defaults Options
	logger   *zap.Logger
}

// WithDefaults wraps a completer so unset options take the given defaults
// and every call is bounded by timeout. A zero timeout disables the bound.
func WithDefaults(inner Completer, timeout time.Duration, defaults Options, logger *zap.Logger) Completer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &guarded{inner: inner, timeout: timeout, defaults: defaults, logger: logger}
}

func (g *guarded) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	if opts.Temperature == 0 {
		opts.Temperature = g.defaults.Temperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = g.defaults.MaxTokens
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := g.inner.Complete(ctx, prompt, opts)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("completion timed out after %s: %w", g.timeout, err)
		}
		g.logger.Warn("completion failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	g.logger.Debug("completion finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("prompt_chars", len(prompt)),
		zap.Int("response_chars", len(text)))
	return text, nil
}

// UsageTracker tracks token usage across completion calls.
type UsageTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
}

// NewUsageTracker creates an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{}
}

// Add records token usage from one call. A nil tracker ignores the call.
func (t *UsageTracker) Add(input, output int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Total returns the input and output tokens tracked.
func (t *UsageTracker) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok
}

// Calls returns the number of calls recorded.
func (t *UsageTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
