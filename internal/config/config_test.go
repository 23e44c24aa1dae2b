package config

import (
	"errors"
	"strconv"
	"strings"
	"testing"
)

type mockKeychain struct {
	values map[string]string
}

func (m mockKeychain) Get(service, account string) (string, error) {
	v, ok := m.values[service+"/"+account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

// mapBackend is an in-memory Backend.
type mapBackend map[string]string

func (m mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m[key]
	if !ok {
		return 0, false, nil
	}
	i, err := strconv.Atoi(v)
	return i, true, err
}

func (m mapBackend) GetBool(key string) (bool, bool, error) {
	v, ok := m[key]
	if !ok {
		return false, false, nil
	}
	b, err := strconv.ParseBool(v)
	return b, true, err
}

func (m mapBackend) SetString(key, val string) error { m[key] = val; return nil }
func (m mapBackend) SetInt(key string, val int) error {
	m[key] = strconv.Itoa(val)
	return nil
}
func (m mapBackend) SetBool(key string, val bool) error {
	m[key] = strconv.FormatBool(val)
	return nil
}
func (m mapBackend) Delete(key string) error { delete(m, key); return nil }

func TestDefaults(t *testing.T) {
	t.Setenv("CASEFLOW_API_TOKEN", "tok")

	cfg, err := loadWith(mapBackend{}, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Server.MCPEnabled {
		t.Error("Server.MCPEnabled should default to false")
	}
	if cfg.LLM.Provider != "ollama" || cfg.LLM.Model != "llama3.1" || cfg.LLM.Timeout != "20s" {
		t.Errorf("unexpected LLM defaults: %+v", cfg.LLM)
	}
	if cfg.Search.MaxRetries != 3 {
		t.Errorf("Search.MaxRetries = %d, want 3", cfg.Search.MaxRetries)
	}
	o := cfg.Orchestrator
	if o.MaxDemandInteractions != 5 || o.MaxSolutionInteractions != 5 || o.MaxActionsPerTurn != 10 || o.MaxDispatchesPerEvent != 3 {
		t.Errorf("unexpected orchestrator limits: %+v", o)
	}
	if o.StrictTransitions {
		t.Error("StrictTransitions should default to false")
	}
	if cfg.Worker.PollInterval != "500ms" || cfg.Worker.Concurrency != 4 {
		t.Errorf("unexpected worker defaults: %+v", cfg.Worker)
	}
	if cfg.Messaging.IntegrationID != "caseflow" {
		t.Errorf("Messaging.IntegrationID = %q, want caseflow", cfg.Messaging.IntegrationID)
	}
	if cfg.API.Token != "tok" {
		t.Errorf("API.Token = %q, want tok", cfg.API.Token)
	}
}

func TestMissingToken(t *testing.T) {
	t.Setenv("CASEFLOW_API_TOKEN", "")

	_, err := loadWith(mapBackend{}, mockKeychain{})
	if err == nil {
		t.Fatal("expected an error without api token")
	}
	if !strings.Contains(err.Error(), "CASEFLOW_API_TOKEN") {
		t.Errorf("error should name the env var, got: %v", err)
	}
}

func TestSecretsFromKeychain(t *testing.T) {
	t.Setenv("CASEFLOW_API_TOKEN", "")
	t.Setenv("CASEFLOW_LLM_API_KEY", "env-llm-key")

	kc := mockKeychain{values: map[string]string{
		"caseflow/api_token":      "kc-token",
		"caseflow/llm_api_key":    "kc-llm-key",
		"caseflow/search_api_key": "kc-search-key",
	}}
	cfg, err := loadWith(mapBackend{}, kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.Token != "kc-token" {
		t.Errorf("API.Token = %q, want kc-token", cfg.API.Token)
	}
	if cfg.LLM.APIKey != "env-llm-key" {
		t.Errorf("env should win over keychain, got %q", cfg.LLM.APIKey)
	}
	if cfg.Search.APIKey != "kc-search-key" {
		t.Errorf("Search.APIKey = %q, want kc-search-key", cfg.Search.APIKey)
	}
}

func TestBackendValues(t *testing.T) {
	t.Setenv("CASEFLOW_API_TOKEN", "tok")

	b := mapBackend{
		"server.port":                       "5000",
		"orchestrator.strict_transitions":   "true",
		"orchestrator.max_actions_per_turn": "20",
		"llm.provider":                      "anthropic",
		"api.token":                         "ignored-secret",
	}
	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if !cfg.Orchestrator.StrictTransitions {
		t.Error("StrictTransitions should be read from the backend")
	}
	if cfg.Orchestrator.MaxActionsPerTurn != 20 {
		t.Errorf("MaxActionsPerTurn = %d, want 20", cfg.Orchestrator.MaxActionsPerTurn)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("LLM.Provider = %q, want anthropic", cfg.LLM.Provider)
	}
	if cfg.API.Token != "tok" {
		t.Errorf("secrets must not be read from the backend, got %q", cfg.API.Token)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CASEFLOW_API_TOKEN", "tok")
	t.Setenv("CASEFLOW_SERVER_PORT", "6000")
	t.Setenv("CASEFLOW_WORKER_CONCURRENCY", "not-a-number")
	t.Setenv("CASEFLOW_SERVER_MCP_ENABLED", "1")

	cfg, err := loadWith(mapBackend{"server.port": "5000"}, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Worker.Concurrency != 4 {
		t.Errorf("invalid env value should keep the default, got %d", cfg.Worker.Concurrency)
	}
	if !cfg.Server.MCPEnabled {
		t.Error("Server.MCPEnabled should be enabled from env")
	}
}

func TestShowAll_HidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.API.Token = "super-secret"

	for _, ki := range ShowAll(cfg) {
		if ki.Key == "api.token" || ki.Value == "super-secret" {
			t.Fatalf("secret exposed: %+v", ki)
		}
	}
	if len(ShowAll(cfg)) != len(ValidKeys()) {
		t.Error("ShowAll and ValidKeys should list the same keys")
	}
}

func TestSetKey(t *testing.T) {
	b := mapBackend{}

	if err := setKey(b, "worker.concurrency", "8"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b["worker.concurrency"] != "8" {
		t.Errorf("value not written: %v", b)
	}
	if err := setKey(b, "orchestrator.strict_transitions", "yes"); err == nil {
		t.Error("expected an error for an invalid boolean")
	}
	if err := setKey(b, "orchestrator.strict_transitions", "TRUE"); err != nil || b["orchestrator.strict_transitions"] != "true" {
		t.Errorf("boolean not normalized: %v %v", err, b)
	}
	if err := setKey(b, "worker.concurrency", "many"); err == nil {
		t.Error("expected an error for an invalid integer")
	}
	if err := setKey(b, "api.token", "x"); err == nil || !strings.Contains(err.Error(), "CASEFLOW_API_TOKEN") {
		t.Errorf("secrets must be refused, got %v", err)
	}
	if err := setKey(b, "nope", "x"); err == nil {
		t.Error("expected an error for an unknown key")
	}
}
