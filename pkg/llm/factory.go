package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-federation/pkg/config"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderNone      = "none"
)

// LLMClientFactory is the interface for creating LLM clients.
// Use this interface for dependency injection and testing.
type LLMClientFactory interface {
	Create() (LLMClient, error)
}

// ClientFactory creates the client selected by the llm configuration section.
type ClientFactory struct {
	cfg    config.LLMConfig
	logger *zap.Logger
}

// NewClientFactory creates a new factory.
func NewClientFactory(cfg config.LLMConfig, logger *zap.Logger) *ClientFactory {
	return &ClientFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// Create builds the configured provider client. It returns an error when
// the provider is "none"; callers check IsEnabled first.
func (f *ClientFactory) Create() (LLMClient, error) {
	clientCfg := &Config{
		Endpoint:  f.cfg.BaseURL,
		Model:     f.cfg.Model,
		APIKey:    f.cfg.APIKey,
		MaxTokens: f.cfg.MaxTokens,
		Timeout:   f.cfg.Timeout,
	}

	switch f.cfg.Provider {
	case ProviderOpenAI:
		client, err := NewClient(clientCfg, f.logger)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return client, nil
	case ProviderAnthropic:
		client, err := NewAnthropicClient(clientCfg, f.logger)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		return client, nil
	case "", ProviderNone:
		return nil, fmt.Errorf("no llm provider configured")
	default:
		return nil, fmt.Errorf("unknown llm provider %q", f.cfg.Provider)
	}
}

// Ensure ClientFactory implements LLMClientFactory at compile time.
var _ LLMClientFactory = (*ClientFactory)(nil)
