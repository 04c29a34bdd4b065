// Package research gathers knowledge about a topic from the web and
// remembers it.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/autopilot/internal/memory"
)

const (
	defaultMaxResults   = 3
	defaultFetchTimeout = 20 * time.Second
	// maxKnowledgeChars caps the page text stored per knowledge item.
	maxKnowledgeChars = 4000
	fetchConcurrency  = 4
)

// Memory is the subset of the memory store research writes to.
type Memory interface {
	Store(ctx context.Context, e memory.Entry) (string, error)
}

// Result is the outcome of researching one topic.
type Result struct {
	Topic          string         `json:"topic"`
	Success        bool           `json:"success"`
	KnowledgeCount int            `json:"knowledge_count"`
	Sources        []SearchResult `json:"sources,omitempty"`
}

// Researcher searches the web, reads the top results and stores what it
// learned.
type Researcher struct {
	client       *http.Client
	memory       Memory
	converter    *md.Converter
	searchURL    string
	maxResults   int
	fetchTimeout time.Duration
	logger       *zap.Logger
}

// Option configures a Researcher.
type Option func(*Researcher)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Researcher) { r.client = c }
}

// WithSearchURL overrides the search endpoint.
func WithSearchURL(u string) Option {
	return func(r *Researcher) { r.searchURL = u }
}

// WithMaxResults limits how many search results are read.
func WithMaxResults(n int) Option {
	return func(r *Researcher) {
		if n > 0 {
			r.maxResults = n
		}
	}
}

// WithFetchTimeout bounds each page fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Researcher) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Researcher) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Researcher. mem may be nil, in which case nothing is stored.
func New(mem Memory, opts ...Option) *Researcher {
	r := &Researcher{
		client:       &http.Client{Timeout: 30 * time.Second},
		memory:       mem,
		converter:    newConverter(),
		searchURL:    duckDuckGoURL,
		maxResults:   defaultMaxResults,
		fetchTimeout: defaultFetchTimeout,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LearnAbout researches topic. Every search hit with a snippet or readable
// page counts as one knowledge item. A failed search is an error; failed
// page fetches only reduce what is learned.
func (r *Researcher) LearnAbout(ctx context.Context, topic string) (*Result, error) {
	hits, err := r.search(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("research %q: %w", topic, err)
	}
	r.logger.Debug("search finished", zap.String("topic", topic), zap.Int("results", len(hits)))

	pages := make([]*Page, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, hit := range hits {
		g.Go(func() error {
			page, err := r.fetch(gctx, hit.URL)
			if err != nil {
				r.logger.Debug("page fetch failed", zap.String("url", hit.URL), zap.Error(err))
				return nil
			}
			pages[i] = page
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{Topic: topic, Sources: hits}
	for i, hit := range hits {
		text := hit.Snippet
		if pages[i] != nil && pages[i].Markdown != "" {
			text = truncate(pages[i].Markdown, maxKnowledgeChars)
		}
		if text == "" {
			continue
		}
		result.KnowledgeCount++
		r.remember(ctx, topic, hit, text)
	}
	result.Success = result.KnowledgeCount > 0
	return result, nil
}

func (r *Researcher) remember(ctx context.Context, topic string, hit SearchResult, text string) {
	if r.memory == nil {
		return
	}
	content, _ := json.Marshal(map[string]string{
		"topic":   topic,
		"title":   hit.Title,
		"url":     hit.URL,
		"content": text,
	})
	_, err := r.memory.Store(ctx, memory.Entry{
		Type:       memory.TypeResearchKnowledge,
		Content:    string(content),
		Metadata:   map[string]any{"topic": topic, "source": hit.URL},
		Importance: 0.7,
	})
	if err != nil {
		r.logger.Warn("failed to store knowledge", zap.String("topic", topic), zap.Error(err))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
