package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/killallgit/podgraph/internal/services/keys"
	"github.com/killallgit/podgraph/pkg/retry"
)

// ClientOptions configures the rotating client
type ClientOptions struct {
	Limiter *retry.RateLimiter
	Breaker *retry.Breaker
	Usage   UsageRecorder
}

// rotatingClient layers key rotation, the shared rate limiter, and the
// circuit breaker over a raw provider. Rate-limit and quota failures rotate
// to the next key instead of failing the caller; only keys.ErrNoKeyAvailable
// surfaces, which callers treat as a signal to back off the batch.
type rotatingClient struct {
	provider Provider
	keys     keys.Manager
	limiter  *retry.RateLimiter
	breaker  *retry.Breaker
	usage    UsageRecorder
}

// NewClient creates the production client over a provider and key manager
func NewClient(provider Provider, keyManager keys.Manager, opts ClientOptions) Client {
	return &rotatingClient{
		provider: provider,
		keys:     keyManager,
		limiter:  opts.Limiter,
		breaker:  opts.Breaker,
		usage:    opts.Usage,
	}
}

func (c *rotatingClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if c.limiter != nil {
		if wait, err := c.limiter.Acquire(ctx, 1); err != nil {
			return nil, err
		} else if wait > time.Second {
			log.Printf("[DEBUG] Rate limiter delayed LLM call by %s", wait.Round(time.Millisecond))
		}
	}

	estimate := EstimateTokens(req.Prompt)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		apiKey, index, err := c.keys.GetAvailableKeyForQuota(req.Model, estimate)
		if err != nil {
			return nil, err
		}

		var resp *Response
		call := func(ctx context.Context) error {
			var callErr error
			resp, callErr = c.provider.Complete(ctx, apiKey, req)
			return callErr
		}

		start := time.Now()
		if c.breaker != nil {
			err = c.breaker.Execute(ctx, call)
		} else {
			err = call(ctx)
		}
		if c.usage != nil {
			c.usage.RecordLLMCall(req.PodcastID, time.Since(start), err)
		}

		if err == nil {
			if markErr := c.keys.MarkKeySuccess(index); markErr != nil {
				log.Printf("[ERROR] Marking key %d success: %v", index, markErr)
			}
			tokens := resp.TokensUsed
			if tokens == 0 {
				tokens = estimate
			}
			if usageErr := c.keys.UpdateKeyUsage(index, tokens, req.Model); usageErr != nil {
				log.Printf("[ERROR] Updating key %d usage: %v", index, usageErr)
			}
			return resp, nil
		}

		if errors.Is(err, retry.ErrServiceUnavailable) {
			return nil, err
		}

		if markErr := c.keys.MarkKeyFailure(index, err.Error()); markErr != nil {
			log.Printf("[ERROR] Marking key %d failure: %v", index, markErr)
		}

		// Rate-limit and quota errors rotate to the next key; anything
		// else is surfaced for the caller-side retryer to classify.
		if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrQuotaExceeded) {
			log.Printf("[DEBUG] Key %d exhausted, rotating: %v", index, err)
			continue
		}

		return nil, fmt.Errorf("llm call failed: %w", err)
	}
}

func (c *rotatingClient) CreateCache(ctx context.Context, model, content string, ttl time.Duration) (string, error) {
	apiKey, index, err := c.keys.GetNextKey(model)
	if err != nil {
		return "", err
	}

	name, err := c.provider.CreateCache(ctx, apiKey, model, content, ttl)
	if err != nil {
		if markErr := c.keys.MarkKeyFailure(index, err.Error()); markErr != nil {
			log.Printf("[ERROR] Marking key %d failure: %v", index, markErr)
		}
		return "", fmt.Errorf("creating prompt cache: %w", err)
	}

	if markErr := c.keys.MarkKeySuccess(index); markErr != nil {
		log.Printf("[ERROR] Marking key %d success: %v", index, markErr)
	}
	return name, nil
}

func (c *rotatingClient) Close() error {
	return nil
}
