package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GeminiOptions configures the Gemini REST provider
type GeminiOptions struct {
	BaseURL string
	Timeout time.Duration
}

// GeminiProvider calls the Gemini generateContent REST API
type GeminiProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewGeminiProvider creates a Gemini provider
func NewGeminiProvider(opts GeminiOptions) *GeminiProvider {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &GeminiProvider{
		baseURL:    opts.BaseURL,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	CachedContent     string                  `json:"cachedContent,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

type geminiCacheRequest struct {
	Model    string          `json:"model"`
	Contents []geminiContent `json:"contents"`
	TTL      string          `json:"ttl"`
}

type geminiCacheResponse struct {
	Name string `json:"name"`
}

// Complete issues one generateContent call with the given key
func (p *GeminiProvider) Complete(ctx context.Context, apiKey string, req Request) (*Response, error) {
	body := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}},
		},
		CachedContent: req.CachedContentID,
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxOutputTokens,
		},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, req.Model)
	var decoded geminiResponse
	if err := p.post(ctx, url, apiKey, body, &decoded); err != nil {
		return nil, err
	}

	if decoded.Error != nil {
		return nil, classifyAPIError(decoded.Error.Code, decoded.Error.Message)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Text:       decoded.Candidates[0].Content.Parts[0].Text,
		TokensUsed: decoded.UsageMetadata.TotalTokenCount,
	}, nil
}

// CreateCache registers cached content and returns the provider's cache name
func (p *GeminiProvider) CreateCache(ctx context.Context, apiKey, model, content string, ttl time.Duration) (string, error) {
	body := geminiCacheRequest{
		Model:    fmt.Sprintf("models/%s", model),
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: content}}}},
		TTL:      fmt.Sprintf("%ds", int(ttl.Seconds())),
	}

	url := fmt.Sprintf("%s/cachedContents", p.baseURL)
	var decoded geminiCacheResponse
	if err := p.post(ctx, url, apiKey, body, &decoded); err != nil {
		return "", err
	}
	if decoded.Name == "" {
		return "", fmt.Errorf("cache creation returned no name")
	}
	return decoded.Name, nil
}

func (p *GeminiProvider) post(ctx context.Context, url, apiKey string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("calling provider: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return classifyAPIError(resp.StatusCode, string(data))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// classifyAPIError maps provider status codes onto the sentinel errors the
// key manager matches against
func classifyAPIError(code int, message string) error {
	switch code {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, message)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, message)
	default:
		return fmt.Errorf("provider error %d: %s", code, message)
	}
}
