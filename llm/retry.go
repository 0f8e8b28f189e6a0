package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxRetries bounds retry attempts per call.
	DefaultMaxRetries = 3
	// DefaultInitialRetryDelay is the starting backoff interval.
	DefaultInitialRetryDelay = 1 * time.Second
	// DefaultMaxRetryInterval caps the backoff interval.
	DefaultMaxRetryInterval = 30 * time.Second
)

// retryingClient wraps a Client with exponential-backoff retries for errors
// the taxonomy marks retryable. Streams are retried only at establishment;
// once events flow, a failure surfaces to the caller.
type retryingClient struct {
	client     Client
	maxRetries uint64
	logger     zerolog.Logger
}

// WrapWithRetry decorates a client with retry behavior. Rate-limit errors
// honor the provider's retry-after hint; other retryable errors use
// exponential backoff.
func WrapWithRetry(client Client, logger zerolog.Logger) Client {
	return &retryingClient{
		client:     client,
		maxRetries: DefaultMaxRetries,
		logger:     logger.With().Str("component", "llmRetry").Logger(),
	}
}

func (c *retryingClient) newBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = DefaultInitialRetryDelay
	b.MaxInterval = DefaultMaxRetryInterval
	return backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)
}

// waitRetryAfter honors a provider retry-after hint before the backoff
// schedule resumes.
func waitRetryAfter(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryDelay classifies an error: a false second return means do not retry.
func retryDelay(err error) (time.Duration, bool) {
	if !IsRetryableError(err) {
		return 0, false
	}
	if after := ExtractRetryAfter(err); after != nil {
		return *after, true
	}
	return 0, true
}

func (c *retryingClient) Synchronous(ctx context.Context, req *Request) (*Response, error) {
	var resp *Response
	attempt := 0
	operation := func() error {
		var err error
		resp, err = c.client.Synchronous(ctx, req)
		if err == nil {
			return nil
		}
		delay, retryable := retryDelay(err)
		if !retryable {
			return backoff.Permanent(err)
		}
		attempt++
		c.logger.Warn().Err(err).Int("attempt", attempt).Msg("Retryable LLM error")
		if waitErr := waitRetryAfter(ctx, delay); waitErr != nil {
			return backoff.Permanent(waitErr)
		}
		return err
	}
	if err := backoff.Retry(operation, c.newBackoff(ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *retryingClient) Stream(ctx context.Context, req *Request) (Stream, error) {
	var stream Stream
	attempt := 0
	operation := func() error {
		var err error
		stream, err = c.client.Stream(ctx, req)
		if err == nil {
			return nil
		}
		delay, retryable := retryDelay(err)
		if !retryable {
			return backoff.Permanent(err)
		}
		attempt++
		c.logger.Warn().Err(err).Int("attempt", attempt).Msg("Retryable LLM stream error")
		if waitErr := waitRetryAfter(ctx, delay); waitErr != nil {
			return backoff.Permanent(waitErr)
		}
		return err
	}
	if err := backoff.Retry(operation, c.newBackoff(ctx)); err != nil {
		return nil, err
	}
	return stream, nil
}

var _ Client = (*retryingClient)(nil)
