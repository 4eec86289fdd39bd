package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const pageClipChars = 1000

// WebSearcher scrapes a search results page, follows the top result links
// and digests their body text.
type WebSearcher struct {
	endpoint    string
	resultLimit int
	pageLimit   int
	userAgent   string
	client      *http.Client
	log         *slog.Logger
}

func NewWebSearcher(endpoint string, resultLimit, pageLimit int, userAgent string, log *slog.Logger) *WebSearcher {
	return &WebSearcher{
		endpoint:    endpoint,
		resultLimit: resultLimit,
		pageLimit:   pageLimit,
		userAgent:   userAgent,
		client:      &http.Client{Timeout: 10 * time.Second},
		log:         log.With(slog.String("component", "search")),
	}
}

func (s *WebSearcher) Search(ctx context.Context, query string) (string, error) {
	results, err := s.results(ctx, query)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}

	limit := s.pageLimit
	if limit > len(results) {
		limit = len(results)
	}

	var sections []string
	for _, r := range results[:limit] {
		text, err := s.pageText(ctx, r.URL)
		if err != nil {
			s.log.Warn("skipping result page",
				slog.String("url", r.URL),
				slog.String("error", err.Error()))
			continue
		}
		if text == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("%s\n%s", r.Title, text))
	}
	return strings.Join(sections, "\n---\n"), nil
}

func (s *WebSearcher) results(ctx context.Context, query string) ([]Result, error) {
	u := fmt.Sprintf("%s?q=%s", s.endpoint, url.QueryEscape(query))
	root, err := s.fetch(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetch results page: %w", err)
	}

	results := ExtractResults(root, s.resultLimit)
	return results, nil
}

func (s *WebSearcher) pageText(ctx context.Context, pageURL string) (string, error) {
	root, err := s.fetch(ctx, pageURL)
	if err != nil {
		return "", err
	}
	return clip(ExtractText(root), pageClipChars), nil
}

// clip truncates text to at most n bytes without splitting a rune.
func clip(text string, n int) string {
	if len(text) <= n {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}

func (s *WebSearcher) fetch(ctx context.Context, rawURL string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("status %s", resp.Status)
	}
	return html.Parse(resp.Body)
}

// ExtractResults walks a results page and collects up to limit external
// links whose anchor carries a heading child, the shape search engines use
// for organic results.
func ExtractResults(root *html.Node, limit int) []Result {
	var results []Result
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attr(n, "href")
			if target, ok := resultTarget(href); ok && !seen[target] {
				if title := headingText(n); title != "" {
					seen[target] = true
					results = append(results, Result{Title: title, URL: target})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return results
}

// resultTarget unwraps redirect-style hrefs ("/url?q=...") and accepts
// absolute http(s) links, rejecting engine-internal navigation.
func resultTarget(href string) (string, bool) {
	if strings.HasPrefix(href, "/url?") {
		parsed, err := url.Parse(href)
		if err != nil {
			return "", false
		}
		href = parsed.Query().Get("q")
	}
	if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		return "", false
	}
	if strings.Contains(href, "google.com") {
		return "", false
	}
	return href, true
}

func headingText(anchor *html.Node) string {
	var heading string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if heading != "" {
			return
		}
		if n.Type == html.ElementNode && (n.Data == "h3" || n.Data == "h2") {
			heading = strings.TrimSpace(nodeText(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(anchor)
	return heading
}

// ExtractText returns the visible body text of a page with boilerplate
// containers stripped and whitespace collapsed.
func ExtractText(root *html.Node) string {
	var b strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "nav", "footer", "header", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return strings.Join(strings.Fields(b.String()), " ")
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
