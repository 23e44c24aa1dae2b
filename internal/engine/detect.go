package engine

import (
	"fmt"
	"time"
)

const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

// Detect returns the Engine for the configured provider. An empty provider
// selects the local Ollama backend.
func Detect(cfg DetectConfig) (Engine, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	switch cfg.Provider {
	case "", ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return NewOllamaEngine(baseURL), nil
	case ProviderOpenAI:
		return NewOpenAIEngine(cfg.APIKey, cfg.BaseURL, timeout), nil
	case ProviderAnthropic:
		return NewAnthropicEngine(cfg.APIKey, cfg.BaseURL, timeout), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
