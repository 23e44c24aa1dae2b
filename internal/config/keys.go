package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

// account is the secret-store account name for a secret key.
func (s keySpec) account() string {
	return strings.ReplaceAll(s.key, ".", "_")
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CASEFLOW_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_enabled", typ: kBool, env: "CASEFLOW_SERVER_MCP_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.MCPEnabled },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CASEFLOW_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "CASEFLOW_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "llm.provider", typ: kString, env: "CASEFLOW_LLM_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.LLM.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Provider },
	},
	{
		key: "llm.base_url", typ: kString, env: "CASEFLOW_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.model", typ: kString, env: "CASEFLOW_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.api_key", typ: kString, env: "CASEFLOW_LLM_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.timeout", typ: kString, env: "CASEFLOW_LLM_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.LLM.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Timeout },
	},
	{
		key: "search.base_url", typ: kString, env: "CASEFLOW_SEARCH_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Search.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.BaseURL },
	},
	{
		key: "search.api_key", typ: kString, env: "CASEFLOW_SEARCH_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Search.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.APIKey },
	},
	{
		key: "search.max_retries", typ: kInt, env: "CASEFLOW_SEARCH_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.Search.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.MaxRetries },
	},
	{
		key: "messaging.base_url", typ: kString, env: "CASEFLOW_MESSAGING_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Messaging.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Messaging.BaseURL },
	},
	{
		key: "messaging.api_token", typ: kString, env: "CASEFLOW_MESSAGING_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Messaging.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Messaging.APIToken },
	},
	{
		key: "messaging.integration_id", typ: kString, env: "CASEFLOW_MESSAGING_INTEGRATION_ID",
		apply:   func(cfg *Config, v any) { cfg.Messaging.IntegrationID = v.(string) },
		extract: func(cfg Config) any { return cfg.Messaging.IntegrationID },
	},
	{
		key: "messaging.handler_prefix", typ: kString, env: "CASEFLOW_MESSAGING_HANDLER_PREFIX",
		apply:   func(cfg *Config, v any) { cfg.Messaging.HandlerPrefix = v.(string) },
		extract: func(cfg Config) any { return cfg.Messaging.HandlerPrefix },
	},
	{
		key: "orchestrator.max_demand_interactions", typ: kInt, env: "CASEFLOW_ORCHESTRATOR_MAX_DEMAND_INTERACTIONS",
		apply:   func(cfg *Config, v any) { cfg.Orchestrator.MaxDemandInteractions = v.(int) },
		extract: func(cfg Config) any { return cfg.Orchestrator.MaxDemandInteractions },
	},
	{
		key: "orchestrator.max_solution_interactions", typ: kInt, env: "CASEFLOW_ORCHESTRATOR_MAX_SOLUTION_INTERACTIONS",
		apply:   func(cfg *Config, v any) { cfg.Orchestrator.MaxSolutionInteractions = v.(int) },
		extract: func(cfg Config) any { return cfg.Orchestrator.MaxSolutionInteractions },
	},
	{
		key: "orchestrator.max_actions_per_turn", typ: kInt, env: "CASEFLOW_ORCHESTRATOR_MAX_ACTIONS_PER_TURN",
		apply:   func(cfg *Config, v any) { cfg.Orchestrator.MaxActionsPerTurn = v.(int) },
		extract: func(cfg Config) any { return cfg.Orchestrator.MaxActionsPerTurn },
	},
	{
		key: "orchestrator.max_dispatches_per_event", typ: kInt, env: "CASEFLOW_ORCHESTRATOR_MAX_DISPATCHES_PER_EVENT",
		apply:   func(cfg *Config, v any) { cfg.Orchestrator.MaxDispatchesPerEvent = v.(int) },
		extract: func(cfg Config) any { return cfg.Orchestrator.MaxDispatchesPerEvent },
	},
	{
		key: "orchestrator.strict_transitions", typ: kBool, env: "CASEFLOW_ORCHESTRATOR_STRICT_TRANSITIONS",
		apply:   func(cfg *Config, v any) { cfg.Orchestrator.StrictTransitions = v.(bool) },
		extract: func(cfg Config) any { return cfg.Orchestrator.StrictTransitions },
	},
	{
		key: "worker.poll_interval", typ: kString, env: "CASEFLOW_WORKER_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Worker.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Worker.PollInterval },
	},
	{
		key: "worker.concurrency", typ: kInt, env: "CASEFLOW_WORKER_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Worker.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Worker.Concurrency },
	},
	{
		key: "api.token", typ: kString, env: "CASEFLOW_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetBool(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
