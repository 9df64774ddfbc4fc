package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockClient is the test double selected by configuration. Responses are
// scripted by prompt-substring match; unmatched prompts get the default.
type MockClient struct {
	mu        sync.Mutex
	scripted  []mockRule
	Default   string
	Err       error
	Calls     []Request
	CacheIDs  int
}

type mockRule struct {
	substring string
	response  string
}

// NewMockClient creates a mock with an empty-array default so extraction
// paths parse cleanly.
func NewMockClient() *MockClient {
	return &MockClient{Default: "[]"}
}

// Script registers a response for prompts containing the substring
func (m *MockClient) Script(substring, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted = append(m.scripted, mockRule{substring: substring, response: response})
}

func (m *MockClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)

	if m.Err != nil {
		return nil, m.Err
	}

	for _, rule := range m.scripted {
		if strings.Contains(req.Prompt, rule.substring) {
			return &Response{Text: rule.response, TokensUsed: EstimateTokens(rule.response)}, nil
		}
	}
	return &Response{Text: m.Default, TokensUsed: EstimateTokens(m.Default)}, nil
}

func (m *MockClient) CreateCache(ctx context.Context, model, content string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheIDs++
	return fmt.Sprintf("cachedContents/mock-%d", m.CacheIDs), nil
}

func (m *MockClient) Close() error {
	return nil
}

// CallCount returns how many completions were requested
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
