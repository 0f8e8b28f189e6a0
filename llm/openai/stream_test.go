package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/advisordesk/advisord/llm"
)

func sseServer(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			if _, err := w.Write([]byte("data: " + chunk + "\n\n")); err != nil {
				return
			}
		}
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamDeliversAllEvents(t *testing.T) {
	srv := sseServer(t, []string{
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"Your "}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"alerts:"}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
	})

	client, err := New("test-key", srv.URL+"/v1", "gpt-4o", "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	stream, err := client.Stream(context.Background(), &llm.Request{
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "show my alerts")},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	var text string
	var sawStop bool
	for stream.Next() {
		ev := stream.Event()
		if ev.Type == llm.StreamEventTypeContentDelta && ev.Delta != nil {
			text += ev.Delta.Text
		}
		if ev.Type == llm.StreamEventTypeStop {
			sawStop = true
		}
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error = %v", err)
	}
	if text != "Your alerts:" {
		t.Errorf("streamed text = %q, want %q", text, "Your alerts:")
	}
	if !sawStop {
		t.Error("stream never delivered a stop event")
	}
}

func TestStreamAccumulatesToolCall(t *testing.T) {
	srv := sseServer(t, []string{
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_alerts","arguments":""}}]}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"limit\""}}]}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":":5}"}}]}}]}`,
		`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	})

	client, err := New("test-key", srv.URL+"/v1", "gpt-4o", "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	stream, err := client.Stream(context.Background(), &llm.Request{
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "show my alerts")},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	var tool *llm.ToolUseBlock
	for stream.Next() {
		ev := stream.Event()
		if ev.Type == llm.StreamEventTypeContentBlock && ev.Delta != nil && ev.Delta.ToolUse != nil {
			tool = ev.Delta.ToolUse
		}
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error = %v", err)
	}
	if tool == nil {
		t.Fatal("stream never announced the tool call")
	}
	if tool.Name != "get_alerts" {
		t.Errorf("tool name = %q, want %q", tool.Name, "get_alerts")
	}
	// Input is parsed from the accumulated argument fragments once the
	// stream finishes the call.
	if got, ok := tool.Input["limit"].(float64); !ok || got != 5 {
		t.Errorf("tool input = %v, want limit=5", tool.Input)
	}
}
