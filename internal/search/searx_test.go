package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearXNG_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "golang" {
			t.Errorf("expected q=golang, got %q", got)
		}
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("expected format=json, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[
			{"url":"https://example.com/a","title":"A","content":"snippet a"},
			{"url":"https://example.com/b","title":"B","content":"snippet b"}
		]}`))
	}))
	defer srv.Close()

	s := &SearXNG{endpoint: srv.URL + "/search", client: srv.Client()}

	results, err := s.Search(context.Background(), "golang", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].URL != "https://example.com/a" || results[0].Title != "A" {
		t.Errorf("unexpected first result: %+v", results[0])
	}
}

func TestSearXNG_Search_RespectsMax(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[
			{"url":"https://example.com/a","title":"A","content":"x"},
			{"url":"https://example.com/b","title":"B","content":"y"},
			{"url":"https://example.com/c","title":"C","content":"z"}
		]}`))
	}))
	defer srv.Close()

	s := &SearXNG{endpoint: srv.URL + "/search", client: srv.Client()}

	results, err := s.Search(context.Background(), "golang", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestSearXNG_Search_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := &SearXNG{endpoint: srv.URL + "/search", client: srv.Client()}

	_, err := s.Search(context.Background(), "golang", 10)
	if err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestNewSearXNG_TrimsTrailingSlash(t *testing.T) {
	s := NewSearXNG("http://localhost:8888/")
	if s.endpoint != "http://localhost:8888/search" {
		t.Errorf("unexpected endpoint: %q", s.endpoint)
	}
}
