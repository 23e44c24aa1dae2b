package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kalambet/caseflow/internal/config"
)

// apiClient talks to the local caseflow server.
type apiClient struct {
	http *resty.Client
}

func newRestyClient(baseURL, token string, timeout time.Duration) *apiClient {
	return &apiClient{http: resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetTimeout(timeout)}
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return newRestyClient(fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port), cfg.API.Token, clientTimeout(cfg)), nil
}

// clientTimeout covers `conversation process`, which runs a whole turn: up to
// one LLM call per dispatch plus slack for the collaborators.
func clientTimeout(cfg config.Config) time.Duration {
	llm := parseDuration("llm.timeout", cfg.LLM.Timeout, 20*time.Second)
	dispatches := cfg.Orchestrator.MaxDispatchesPerEvent
	if dispatches <= 0 {
		dispatches = 1
	}
	return time.Duration(dispatches)*llm + 30*time.Second
}

func (c *apiClient) get(ctx context.Context, path string) (*resty.Response, error) {
	resp, err := c.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("caseflow server not reachable, start it with `caseflow start` (%w)", err)
	}
	return resp, nil
}

func (c *apiClient) post(ctx context.Context, path string, body any) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Post(path)
	if err != nil {
		return nil, fmt.Errorf("caseflow server not reachable, start it with `caseflow start` (%w)", err)
	}
	return resp, nil
}

// apiError is the server's error envelope.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func decodeJSON(resp *resty.Response, v any) error {
	if resp.IsError() {
		var e apiError
		if json.Unmarshal(resp.Body(), &e) == nil && e.Error.Message != "" {
			return fmt.Errorf("server returned %d: %s (%s)", resp.StatusCode(), e.Error.Message, e.Error.Type)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode(), resp.String())
	}
	return json.Unmarshal(resp.Body(), v)
}
