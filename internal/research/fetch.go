package research

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
)

// maxPageBytes limits how much of a page is read.
const maxPageBytes = 2 << 20

var excessiveLines = regexp.MustCompile(`\n{3,}`)

// Page is a fetched page reduced to Markdown.
type Page struct {
	URL      string
	Title    string
	Markdown string
}

func newConverter() *md.Converter {
	c := md.NewConverter("", true, nil)
	c.Use(plugin.GitHubFlavored())
	return c
}

// fetch downloads a page, extracts the readable article and converts it
// to Markdown. Pages readability cannot handle are converted whole.
func (r *Researcher) fetch(ctx context.Context, pageURL string) (*Page, error) {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("unsupported url %q", pageURL)
	}

	ctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	setBrowserHeaders(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: HTTP %d", pageURL, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, fmt.Errorf("fetch %s: unsupported content type %s", pageURL, ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pageURL, err)
	}

	page := &Page{URL: pageURL}
	content := string(body)
	if article, err := readability.FromReader(bytes.NewReader(body), u); err == nil && strings.TrimSpace(article.Content) != "" {
		page.Title = article.Title
		content = article.Content
	}

	markdown, err := r.converter.ConvertString(content)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", pageURL, err)
	}
	page.Markdown = strings.TrimSpace(excessiveLines.ReplaceAllString(markdown, "\n\n"))
	return page, nil
}
