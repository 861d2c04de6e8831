// File: internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
	"github.com/kestrelhq/kestrel/internal/config"
)

// NewClient creates an LLMClient from configuration. A missing API key is a
// valid setup, not an error: it returns a nil client and every consumer falls
// back to its deterministic path.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	if cfg.APIKey == "" {
		logger.Info("No LLM API key configured; rule-based paths are authoritative")
		return nil, nil
	}

	switch cfg.Provider {
	case "gemini":
		return NewGeminiClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: %q (supported: gemini)", cfg.Provider)
	}
}
