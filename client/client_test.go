package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseSessionLine(t *testing.T) {
	tests := []struct {
		name     string
		head     string
		expected string
		found    bool
	}{
		{
			name:     "complete line",
			head:     "Session ID: abc-123\n\nThe answer",
			expected: "abc-123",
			found:    true,
		},
		{
			name:  "line not finished yet",
			head:  "Session ID: abc-1",
			found: false,
		},
		{
			name:  "different opening",
			head:  "Error: something broke",
			found: false,
		},
		{
			name:     "trailing carriage return trimmed",
			head:     "Session ID: abc-123\r\n",
			expected: "abc-123",
			found:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseSessionLine(tt.head)
			if ok != tt.found {
				t.Fatalf("found = %v, want %v", ok, tt.found)
			}
			if got != tt.expected {
				t.Errorf("id = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestHealthRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Errorf("path = %q, want /healthz", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","sessions":2}`))
	}))
	defer server.Close()

	api := New(server.URL)
	out, err := api.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error: %v", err)
	}
	if out["status"] != "ok" {
		t.Errorf("status = %v", out["status"])
	}
}

func TestErrorEnvelopeDecoding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"server \"ghost\" not found"}`))
	}))
	defer server.Close()

	api := New(server.URL)
	err := api.RemoveServer(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected an error for a 404 response")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want the detail text", err)
	}
	if !strings.Contains(err.Error(), "status 404") {
		t.Errorf("error = %v, want the status code", err)
	}
}

func TestErrorFallsBackToRawBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	api := New(server.URL)
	_, err := api.Health(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "upstream exploded") {
		t.Errorf("error = %v, want the raw body", err)
	}
}

func TestChatParsesSessionAndStreams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/query" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Session ID: sess-42\n\nMarkets were quiet today."))
	}))
	defer server.Close()

	api := New(server.URL)
	var streamed strings.Builder
	sessionID, err := api.Chat(context.Background(), "anything new?", "", func(chunk string) error {
		streamed.WriteString(chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if sessionID != "sess-42" {
		t.Errorf("session id = %q, want sess-42", sessionID)
	}
	if !strings.Contains(streamed.String(), "Markets were quiet") {
		t.Errorf("streamed = %q", streamed.String())
	}
}

func TestChatKeepsExistingSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Session ID: sess-42\n\nContinuing."))
	}))
	defer server.Close()

	api := New(server.URL)
	sessionID, err := api.Chat(context.Background(), "more", "sess-42", func(string) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if sessionID != "sess-42" {
		t.Errorf("session id = %q, want the one passed in", sessionID)
	}
}
