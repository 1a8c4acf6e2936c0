// Package extraction invokes the code-understanding collaborator that
// surfaces reusable snippets from file content.
//
// The collaborator is modeled as a single Extractor interface; concrete
// backends adapt whatever API they talk to. Snippets are reported through
// the run's collector rather than parsed out of the return value.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snippetd/internal/snippet"
)

// Sentinel errors for extraction failures.
var (
	// ErrUnavailable indicates the extractor is not configured.
	ErrUnavailable = errors.New("extractor unavailable")

	// ErrBadResponse indicates the collaborator returned an unusable shape.
	ErrBadResponse = errors.New("unexpected extractor response")
)

// Extractor inspects one file's content and reports zero or more snippets
// to the collector. A nil return means the unit fully completed; any error
// means it is recorded as a failure for that unit only.
type Extractor interface {
	Extract(ctx context.Context, path, content string, collector *snippet.Collector) error
}

// Config holds extractor configuration.
type Config struct {
	// Provider selects the backend: "anthropic" (default) or "openai".
	Provider string `koanf:"provider"`

	// APIKey authenticates against the extraction API.
	APIKey string `koanf:"api_key"`

	// Model is the model identifier; empty selects the backend default.
	Model string `koanf:"model"`

	// BaseURL overrides the API endpoint, e.g. for proxies or tests.
	BaseURL string `koanf:"base_url"`

	// TimeoutSeconds bounds one extraction HTTP call.
	TimeoutSeconds int `koanf:"timeout_seconds"`

	// MaxRetries is the retry budget for transient API failures.
	MaxRetries int `koanf:"max_retries"`
}

func (c Config) timeout() time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return defaultTimeout
}

// retryableError marks errors worth another attempt.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// snippetBudget returns how many snippets to ask for: one per ~20 lines,
// at least one for non-empty content, zero for empty content.
func snippetBudget(content string) int {
	if content == "" {
		return 0
	}
	lines := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		lines++
	}
	if lines == 0 {
		return 0
	}
	budget := lines / 20
	if budget < 1 {
		budget = 1
	}
	return budget
}

// reportSnippets parses a model's JSON array and adds valid snippets to
// the collector, capped at the requested budget. Invalid entries are
// skipped and logged.
func reportSnippets(log *zap.Logger, text, path string, budget int, collector *snippet.Collector) error {
	raw, err := extractJSONArray(text)
	if err != nil {
		return err
	}

	var payloads []snippetPayload
	if err := json.Unmarshal([]byte(raw), &payloads); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	added := 0
	for _, p := range payloads {
		if added >= budget {
			break
		}
		if p.Path == "" {
			p.Path = path
		}
		s := snippet.Snippet{
			Title:       p.Title,
			Description: p.Description,
			Language:    p.Language,
			Code:        p.Code,
			Path:        p.Path,
		}
		if err := collector.Add(s); err != nil {
			log.Debug("skipping invalid snippet",
				zap.String("path", path), zap.Error(err))
			continue
		}
		added++
	}

	log.Debug("extraction complete",
		zap.String("path", path),
		zap.Int("reported", len(payloads)),
		zap.Int("added", added))
	return nil
}

// extractJSONArray pulls the first JSON array out of a model response,
// tolerating fenced code blocks and prose around it.
func extractJSONArray(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if i := strings.Index(trimmed, "```"); i >= 0 {
		rest := trimmed[i+3:]
		if j := strings.IndexByte(rest, '\n'); j >= 0 {
			rest = rest[j+1:]
		}
		if k := strings.Index(rest, "```"); k >= 0 {
			trimmed = strings.TrimSpace(rest[:k])
		}
	}

	start := strings.IndexByte(trimmed, '[')
	end := strings.LastIndexByte(trimmed, ']')
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON array in response", ErrBadResponse)
	}
	return trimmed[start : end+1], nil
}
