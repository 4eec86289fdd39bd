package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"golang.org/x/net/html"
)

func parse(t *testing.T, doc string) *html.Node {
	t.Helper()
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return root
}

func TestExtractResults(t *testing.T) {
	doc := `<html><body>
<a href="/url?q=https://example.com/one"><h3>First Result</h3></a>
<a href="https://example.org/two"><h3>Second Result</h3></a>
<a href="https://www.google.com/settings"><h3>Internal</h3></a>
<a href="/relative"><h3>Relative</h3></a>
<a href="https://example.net/plain">no heading</a>
</body></html>`

	results := ExtractResults(parse(t, doc), 10)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %v", results)
	}
	if results[0].URL != "https://example.com/one" || results[0].Title != "First Result" {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if results[1].URL != "https://example.org/two" {
		t.Fatalf("unexpected second result: %+v", results[1])
	}
}

func TestExtractResultsLimit(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, `<a href="https://example.com/%d"><h3>R%d</h3></a>`, i, i)
	}
	b.WriteString("</body></html>")

	results := ExtractResults(parse(t, b.String()), 3)
	if len(results) != 3 {
		t.Fatalf("expected limit 3, got %d", len(results))
	}
}

func TestExtractTextStripsBoilerplate(t *testing.T) {
	doc := `<html><head><script>var x=1;</script><style>.a{}</style></head>
<body><nav>menu items</nav><header>site header</header>
<p>Real   content
here.</p><footer>copyright</footer></body></html>`

	text := ExtractText(parse(t, doc))
	if text != "Real content here." {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestClipKeepsRuneBoundary(t *testing.T) {
	// "日" is 3 bytes; a byte limit landing inside it must back off to the
	// previous boundary instead of emitting a partial rune.
	text := strings.Repeat("日", 10)
	for n := 1; n < len(text); n++ {
		got := clip(text, n)
		if len(got) > n {
			t.Fatalf("clip(%d) returned %d bytes", n, len(got))
		}
		if !utf8.ValidString(got) {
			t.Fatalf("clip(%d) produced invalid UTF-8: %q", n, got)
		}
	}
	if clip("short", 100) != "short" {
		t.Fatal("clip must not modify text under the limit")
	}
}

func TestWebSearcherDigest(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "go testing" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, `<html><body>
<a href="%s/page1"><h3>Page One</h3></a>
<a href="%s/page2"><h3>Page Two</h3></a>
</body></html>`, server.URL, server.URL)
	})
	mux.HandleFunc("/page1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>alpha content</p></body></html>`)
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>beta content</p></body></html>`)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewWebSearcher(server.URL+"/search", 5, 2, "test-agent", log)
	// The local test server is not google.com so its links survive the
	// internal-link filter.
	digest, err := s.Search(context.Background(), "go testing")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(digest, "alpha content") || !strings.Contains(digest, "beta content") {
		t.Fatalf("digest missing page text: %q", digest)
	}
	if !strings.Contains(digest, "\n---\n") {
		t.Fatalf("expected section separator in digest: %q", digest)
	}
}

func TestWebSearcherSkipsFailingPages(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>
<a href="%s/broken"><h3>Broken</h3></a>
<a href="%s/ok"><h3>Fine</h3></a>
</body></html>`, server.URL, server.URL)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>still here</p></body></html>`)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewWebSearcher(server.URL+"/search", 5, 2, "test-agent", log)
	digest, err := s.Search(context.Background(), "anything")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(digest, "still here") {
		t.Fatalf("expected healthy page in digest: %q", digest)
	}
	if strings.Contains(digest, "Broken") {
		t.Fatalf("broken page leaked into digest: %q", digest)
	}
}
