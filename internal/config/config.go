package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Server       ServerConfig
	Storage      StorageConfig
	Log          LogConfig
	LLM          LLMConfig
	Search       SearchConfig
	Messaging    MessagingConfig
	Orchestrator OrchestratorConfig
	Worker       WorkerConfig
	API          APIConfig
}

type ServerConfig struct {
	Port       int
	MCPEnabled bool
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

// LLMConfig selects the engine behind the decision layer.
type LLMConfig struct {
	Provider string // "ollama", "openai" or "anthropic"
	BaseURL  string
	Model    string
	APIKey   string
	Timeout  string
}

type SearchConfig struct {
	BaseURL    string
	APIKey     string
	MaxRetries int
}

type MessagingConfig struct {
	BaseURL       string
	APIToken      string
	IntegrationID string
	HandlerPrefix string
}

type OrchestratorConfig struct {
	MaxDemandInteractions   int
	MaxSolutionInteractions int
	MaxActionsPerTurn       int
	MaxDispatchesPerEvent   int
	StrictTransitions       bool
}

type WorkerConfig struct {
	PollInterval string
	Concurrency  int
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		LLM: LLMConfig{
			Provider: "ollama",
			BaseURL:  "http://localhost:11434",
			Model:    "llama3.1",
			Timeout:  "20s",
		},
		Search: SearchConfig{
			MaxRetries: 3,
		},
		Messaging: MessagingConfig{
			IntegrationID: "caseflow",
			HandlerPrefix: "caseflow",
		},
		Orchestrator: OrchestratorConfig{
			MaxDemandInteractions:   5,
			MaxSolutionInteractions: 5,
			MaxActionsPerTurn:       10,
			MaxDispatchesPerEvent:   3,
		},
		Worker: WorkerConfig{
			PollInterval: "500ms",
			Concurrency:  4,
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.caseflow.app) and secrets
// fall back to the macOS Keychain (service: caseflow).
// Elsewhere the backend is a JSON file at $XDG_CONFIG_HOME/caseflow/config.json
// and secrets fall back to $XDG_DATA_HOME/caseflow/secrets.json.
//
// Environment variables (CASEFLOW_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts the secret store for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b Backend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	if cfg.API.Token == "" {
		return Config{}, fmt.Errorf("missing required config: API token. "+
			"Set it via environment variable CASEFLOW_API_TOKEN%s", secretHint("api_token"))
	}

	return cfg, nil
}

// applySecrets fills secrets the environment left empty from the secret store.
func applySecrets(cfg *Config, kc keychain) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg).(string) != "" {
			continue
		}
		if v, err := kc.Get("caseflow", s.account()); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
