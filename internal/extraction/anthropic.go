package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/snippetd/internal/snippet"
)

// Default configuration values.
const (
	defaultBaseURL    = "https://api.anthropic.com"
	defaultModel      = "claude-sonnet-4-5"
	defaultMaxTokens  = 4096
	defaultTimeout    = 120 * time.Second
	defaultMaxRetries = 3
	defaultBackoff    = time.Second
)

// Rate limiter defaults: 50 requests per minute with small bursts.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

const systemPrompt = `You are an expert code reviewer who identifies reusable, educational code snippets.

Given a source file, select up to %d snippets that demonstrate non-trivial, self-contained techniques worth reusing. Skip boilerplate, imports, and configuration noise.

Respond ONLY with a JSON array. Each element must have exactly these fields:
- "title": descriptive title under 80 characters
- "description": 2-4 sentences on what the snippet does and why it matters
- "language": programming language name (for example, "Go")
- "code": the verbatim snippet
- "path": the file path you were given

Return [] if nothing qualifies.`

// snippetPayload is the statically declared shape of one reported snippet.
type snippetPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Language    string `json:"language"`
	Code        string `json:"code"`
	Path        string `json:"path"`
}

// AnthropicExtractor implements Extractor against the Anthropic Messages API.
type AnthropicExtractor struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	log        *zap.Logger
}

// NewAnthropicExtractor creates an extractor from config. A nil logger is
// replaced with a no-op logger.
func NewAnthropicExtractor(cfg Config, log *zap.Logger) (*AnthropicExtractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic API key required", ErrUnavailable)
	}
	if log == nil {
		log = zap.NewNop()
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}

	return &AnthropicExtractor{
		model:   model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: cfg.timeout(),
		},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: maxRetries,
		log:        log,
	}, nil
}

// anthropicRequest is the Messages API request body.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Extract asks the model for snippets from one file and adds the valid ones
// to the collector. Empty content is a successful no-op.
func (a *AnthropicExtractor) Extract(ctx context.Context, path, content string, collector *snippet.Collector) error {
	budget := snippetBudget(content)
	if budget == 0 {
		a.log.Debug("skipping empty content", zap.String("path", path))
		return nil
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req := anthropicRequest{
		Model:       a.model,
		MaxTokens:   defaultMaxTokens,
		Temperature: 0.2, // low temperature for consistent extraction
		System:      fmt.Sprintf(systemPrompt, budget),
		Messages: []anthropicMessage{
			{
				Role:    "user",
				Content: fmt.Sprintf("File: %s\n\n%s", path, scrubSecrets(content)),
			},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := a.doRequest(ctx, req, path, budget, collector)
		if err == nil {
			return nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doRequest performs one HTTP call and feeds parsed snippets to collector.
func (a *AnthropicExtractor) doRequest(ctx context.Context, req anthropicRequest, path string, budget int, collector *snippet.Collector) error {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", a.apiKey)
	httpReq.Header.Set("Anthropic-Version", "2023-06-01")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp anthropicError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if len(apiResp.Content) == 0 {
		return fmt.Errorf("%w: empty response", ErrBadResponse)
	}

	return reportSnippets(a.log, apiResp.Content[0].Text, path, budget, collector)
}
