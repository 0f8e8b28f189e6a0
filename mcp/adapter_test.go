package mcp

import "testing"

func TestToSafeName(t *testing.T) {
	tests := []struct {
		name     string
		original string
		expected string
	}{
		{name: "no dots", original: "execute_esql", expected: "execute_esql"},
		{name: "dotted name", original: "search.news.by_symbol", expected: "search_news_by_symbol"},
		{name: "single dot", original: "es.query", expected: "es_query"},
		{name: "empty", original: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToSafeName(tt.original); got != tt.expected {
				t.Errorf("ToSafeName(%q) = %q, want %q", tt.original, got, tt.expected)
			}
		})
	}
}

func TestNameAdapterRoundTrip(t *testing.T) {
	adapter := NewNameAdapter()

	safe := adapter.GetSafeName("search.news.by_symbol")
	if safe != "search_news_by_symbol" {
		t.Fatalf("GetSafeName() = %q, want %q", safe, "search_news_by_symbol")
	}

	original, ok := adapter.ToOriginalName(safe)
	if !ok {
		t.Fatal("expected mapping back to the original name")
	}
	if original != "search.news.by_symbol" {
		t.Errorf("ToOriginalName(%q) = %q, want %q", safe, original, "search.news.by_symbol")
	}

	// Repeat lookups reuse the stored mapping.
	if again := adapter.GetSafeName("search.news.by_symbol"); again != safe {
		t.Errorf("second GetSafeName() = %q, want %q", again, safe)
	}
}

func TestNameAdapterUnknownSafeName(t *testing.T) {
	adapter := NewNameAdapter()
	if _, ok := adapter.ToOriginalName("never_registered"); ok {
		t.Error("expected miss for an unregistered safe name")
	}
}
