package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompleter struct {
	text  string
	err   error
	delay time.Duration
	got   Options
}

func (s *stubCompleter) Complete(ctx context.Context, _ string, opts Options) (string, error) {
	s.got = opts
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.text, s.err
}

func TestWithDefaults_AppliesDefaults(t *testing.T) {
	stub := &stubCompleter{text: "ok"}
	c := WithDefaults(stub, 0, Options{Temperature: 0.3, MaxTokens: 100}, nil)

	got, err := c.Complete(context.Background(), "p", Options{MaxTokens: 50})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, Options{Temperature: 0.3, MaxTokens: 50}, stub.got)
}

func TestWithDefaults_Timeout(t *testing.T) {
	stub := &stubCompleter{text: "late", delay: time.Second}
	c := WithDefaults(stub, 20*time.Millisecond, Options{}, nil)

	_, err := c.Complete(context.Background(), "p", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
}

func TestWithDefaults_EmptyResponse(t *testing.T) {
	c := WithDefaults(&stubCompleter{text: "  \n"}, 0, Options{}, nil)
	_, err := c.Complete(context.Background(), "p", Options{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestWithDefaults_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	c := WithDefaults(&stubCompleter{err: boom}, 0, Options{}, nil)
	_, err := c.Complete(context.Background(), "p", Options{})
	assert.ErrorIs(t, err, boom)
}

func TestOllamaCompleter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "hello", req.Messages[0].Content)
		require.NotNil(t, req.MaxTokens)
		assert.Equal(t, 64, *req.MaxTokens)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi there"}}],"usage":{"prompt_tokens":3,"completion_tokens":2}}`))
	}))
	defer srv.Close()

	tracker := NewUsageTracker()
	c := NewOllama(OllamaConfig{BaseURL: srv.URL + "/v1/", Model: "qwen"}, tracker)

	got, err := c.Complete(context.Background(), "hello", Options{MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, "hi there", got)

	in, out := tracker.Total()
	assert.Equal(t, int64(3), in)
	assert.Equal(t, int64(2), out)
	assert.Equal(t, 1, tracker.Calls())
}

func TestOllamaCompleter_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllama(OllamaConfig{BaseURL: srv.URL}, nil)
	_, err := c.Complete(context.Background(), "hello", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestNew_UnknownProvider(t *testing.T) {
	_, _, err := New(context.Background(), Config{Provider: "mystery"}, nil)
	assert.Error(t, err)
}

func TestNew_AnthropicRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, _, err := New(context.Background(), Config{Provider: ProviderAnthropic}, nil)
	assert.Error(t, err)
}

func TestBedrockModel(t *testing.T) {
	assert.Equal(t, "us.anthropic.claude-sonnet-4-20250514-v1:0", string(bedrockModel("claude-sonnet-4-20250514")))
	assert.Equal(t, "custom-model", string(bedrockModel("custom-model")))
}
