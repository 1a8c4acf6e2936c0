package extraction

import (
	"fmt"

	"go.uber.org/zap"
)

// New creates an extractor for the configured provider. An empty provider
// selects Anthropic.
func New(cfg Config, log *zap.Logger) (Extractor, error) {
	switch cfg.Provider {
	case "", "anthropic":
		return NewAnthropicExtractor(cfg, log)
	case "openai":
		return NewOpenAIExtractor(cfg, log)
	default:
		return nil, fmt.Errorf("unknown extraction provider %q", cfg.Provider)
	}
}
