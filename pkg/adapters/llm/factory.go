package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/internal/ports"
	"github.com/taskmesh/taskmesh/pkg/adapters/llm/anthropic"
)

// Config holds LLM client configuration.
type Config struct {
	Provider string
	APIKey   string
	Logger   *zap.Logger
}

// NewClient creates an LLM client for the configured provider.
func NewClient(cfg *Config) (ports.LLMClient, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewClient(cfg.APIKey, cfg.Logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
