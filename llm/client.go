// Package llm defines the provider-neutral chat model surface used by the
// agent loop. A Client turns a Request (history, system prompt, tool
// contract) into either a complete Response or a Stream of incremental
// events; the anthropic, openai, and ollama subpackages adapt their vendor
// SDKs onto these types. Retry and provider selection live in this package
// as well, see WrapWithRetry and ProviderRegistry.
package llm

import "context"

// Client is implemented once per provider backend.
type Client interface {
	// Synchronous sends req and blocks until the full response is available.
	Synchronous(ctx context.Context, req *Request) (*Response, error)

	// Stream sends req and returns the event stream. The caller owns the
	// stream and must drain it with Next and then Close it.
	Stream(ctx context.Context, req *Request) (Stream, error)
}

// Stream is the pull-based iterator over a streaming response. Next reports
// whether another event is available; after it returns false, Err
// distinguishes a clean end of stream from a failure.
type Stream interface {
	Next() bool
	Event() *StreamEvent
	Err() error
	Close() error
}
