package search

import "testing"

func TestNew_DefaultsToDuckDuckGo(t *testing.T) {
	e := New("duckduckgo", "")
	if _, ok := e.(*DuckDuckGo); !ok {
		t.Errorf("expected DuckDuckGo, got %T", e)
	}
}

func TestNew_SearXNGRequiresURL(t *testing.T) {
	e := New("searxng", "")
	if _, ok := e.(*DuckDuckGo); !ok {
		t.Errorf("expected fallback to DuckDuckGo when searxng URL is empty, got %T", e)
	}
}

func TestNew_SearXNGWithURL(t *testing.T) {
	e := New("searxng", "http://searx.local")
	if _, ok := e.(*SearXNG); !ok {
		t.Errorf("expected SearXNG, got %T", e)
	}
}
