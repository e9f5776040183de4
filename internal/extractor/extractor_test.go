package extractor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>  Example Article  </title>
  <style>body { color: red; }</style>
  <script>console.log("noise")</script>
</head>
<body>
  <nav>Home About Contact</nav>
  <header>Site Header</header>
  <main>
    <h1>Example Article</h1>
    <p>This   is the   real content of the page.</p>
    <p>It spans multiple paragraphs.</p>
  </main>
  <footer>Copyright 2026</footer>
</body>
</html>`

func TestHTML_Extract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	h := New()
	title, body, err := h.Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if title != "Example Article" {
		t.Errorf("unexpected title: %q", title)
	}

	for _, chrome := range []string{"noise", "color: red", "Home About Contact", "Site Header", "Copyright 2026"} {
		if strings.Contains(body, chrome) {
			t.Errorf("expected body to strip chrome %q, got %q", chrome, body)
		}
	}
	if !strings.Contains(body, "real content of the page") {
		t.Errorf("expected body to retain real content, got %q", body)
	}
	if strings.Contains(body, "  ") {
		t.Errorf("expected whitespace to be collapsed, got %q", body)
	}
}

func TestHTML_Extract_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	h := New()
	_, _, err := h.Extract(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error on 404 status")
	}
}

func TestCollapseWhitespace(t *testing.T) {
	got := collapseWhitespace("a   b\n\nc\t d")
	if got != "a b c d" {
		t.Errorf("unexpected result: %q", got)
	}
}
