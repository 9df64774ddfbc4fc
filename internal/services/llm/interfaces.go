package llm

import (
	"context"
	"errors"
	"time"
)

// Client errors
var (
	ErrRateLimited   = errors.New("llm provider rate limited")
	ErrQuotaExceeded = errors.New("llm provider quota exceeded")
	ErrEmptyResponse = errors.New("llm provider returned empty response")
)

// Request is one completion request against a model
type Request struct {
	Model  string
	Prompt string
	System string
	// PodcastID attributes the call in metrics rollups; empty is fine.
	PodcastID string
	// CachedContentID references a provider-side cached context created
	// through CreateCache; when set the transcript is not resent.
	CachedContentID string
	MaxOutputTokens int
	Temperature     float64
}

// Response is the provider's answer plus token accounting
type Response struct {
	Text       string
	TokensUsed int
}

// Client is the single contract the pipeline has with the LLM. The default
// implementation rotates API keys and enforces rate limits; the mock
// implementation is selected by configuration for tests.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)

	// CreateCache registers episode-scoped content with the provider's
	// prompt cache and returns its identifier.
	CreateCache(ctx context.Context, model, content string, ttl time.Duration) (string, error)

	Close() error
}

// Provider performs raw single-key calls. Separated from Client so key
// rotation can be layered on top of any transport.
type Provider interface {
	Complete(ctx context.Context, apiKey string, req Request) (*Response, error)
	CreateCache(ctx context.Context, apiKey, model, content string, ttl time.Duration) (string, error)
}

// UsageRecorder receives per-call and per-cache-lookup outcomes. The metrics
// recorder satisfies it; a nil recorder disables accounting.
type UsageRecorder interface {
	RecordLLMCall(podcastID string, duration time.Duration, err error)
	RecordCacheAttempt(podcastID string, hit bool)
}

// EstimateTokens gives a cheap upper-bound token estimate for quota checks
func EstimateTokens(text string) int {
	return len(text)/4 + 1
}
