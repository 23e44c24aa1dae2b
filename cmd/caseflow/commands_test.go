package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/caseflow/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

// newTestServer answers "METHOD /path" keys with canned JSON. A key prefixed
// with a status code ("502 POST /x") answers with that status.
func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		if resp, ok := responses[key]; ok {
			w.Write([]byte(resp))
			return
		}
		if resp, ok := responses["502 "+key]; ok {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found_error"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return newRestyClient(ts.server.URL, "test-token", 5*time.Second)
}

// useServer points CLI commands at ts for the duration of the test.
func useServer(t *testing.T, ts *testServer) {
	t.Helper()
	orig := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() {
		newAPIClient = orig
		rootCmd.SetArgs(nil)
	})
}

func TestEventsSend(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /webhooks/events": `{"event_id":7,"job_id":"job-1"}`,
	})
	useServer(t, ts)

	rootCmd.SetArgs([]string{"events", "send", "conv-1", "I was", "charged twice", "--event-id", "evt-9", "--autopilot=false"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["conversation_id"] != "conv-1" || body["author_type"] != "customer" {
		t.Errorf("unexpected body: %v", body)
	}
	if body["content"] != "I was charged twice" {
		t.Errorf("content = %v, want joined args", body["content"])
	}
	if body["event_id"] != "evt-9" {
		t.Errorf("event_id = %v, want evt-9", body["event_id"])
	}
	if v, ok := body["autopilot_enabled"]; !ok || v != false {
		t.Errorf("autopilot_enabled = %v (present %t), want explicit false", v, ok)
	}
}

func TestEventsSend_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"events", "send", "conv-1"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for missing text")
	}
}

func TestConversationShow(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /conversations/conv 1": `{"conversation_id":"conv 1","status":"finding_demand","owner":"demand_finder","waiting_for_customer":true,"last_processed_event_id":4}`,
	})
	useServer(t, ts)

	rootCmd.SetArgs([]string{"conversation", "show", "conv 1"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ts.requests[0].Path; got != "/conversations/conv%201" {
		t.Errorf("path = %q, want escaped id", got)
	}
}

func TestConversationLog_Limit(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /conversations/c1/log": `[{"agent":"closer"}]`,
	})
	useServer(t, ts)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	defer rootCmd.SetOut(nil)

	rootCmd.SetArgs([]string{"conv", "log", "c1", "--limit", "5"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ts.requests[0].Path; got != "/conversations/c1/log?limit=5" {
		t.Errorf("path = %q", got)
	}
	if !strings.Contains(out.String(), `"agent": "closer"`) {
		t.Errorf("expected indented JSON, got %q", out.String())
	}
}

func TestConversationProcess_TransferFailure(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"502 POST /conversations/c1/process": `{"event_id":3,"outcome":"failed","error":"transfer to human failed"}`,
	})
	useServer(t, ts)

	rootCmd.SetArgs([]string{"conversation", "process", "c1"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected an error for a failed transfer")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error = %q, want the status code", err.Error())
	}
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	if _, err := ts.client().get(context.Background(), "/health"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ts.requests[0].Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", ts.requests[0].Auth)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client().get(context.Background(), "/nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var v any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "not_found_error") {
		t.Errorf("error = %q, want the status and the error type", err.Error())
	}
}

func TestClientTimeout(t *testing.T) {
	var cfg config.Config
	cfg.LLM.Timeout = "10s"
	cfg.Orchestrator.MaxDispatchesPerEvent = 3
	if got := clientTimeout(cfg); got != 60*time.Second {
		t.Errorf("clientTimeout = %v, want 1m0s", got)
	}

	cfg.LLM.Timeout = "bogus"
	cfg.Orchestrator.MaxDispatchesPerEvent = 0
	if got := clientTimeout(cfg); got != 50*time.Second {
		t.Errorf("clientTimeout = %v, want 50s", got)
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if result := colorize(colorRed, "error"); strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}

	noColor = false
	if result := colorize(colorRed, "error"); !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 5 * time.Second},
		{"250ms", 250 * time.Millisecond},
		{"soon", 5 * time.Second},
		{"-1s", 5 * time.Second},
	}
	for _, tt := range tests {
		if got := parseDuration("test.key", tt.in, 5*time.Second); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValueOr(t *testing.T) {
	if valueOr("", "none") != "none" || valueOr("x", "none") != "x" {
		t.Fatal("valueOr returned the wrong value")
	}
}

func TestOrchestratorConfig(t *testing.T) {
	var cfg config.Config
	cfg.Orchestrator.MaxDemandInteractions = 2
	cfg.Orchestrator.MaxActionsPerTurn = 7
	cfg.Orchestrator.StrictTransitions = true
	cfg.Messaging.IntegrationID = "bot-1"

	oc := orchestratorConfig(cfg)
	if oc.MaxDemandInteractions != 2 || oc.MaxActionsPerTurn != 7 || !oc.StrictTransitions {
		t.Errorf("limits not carried over: %+v", oc)
	}
	if oc.IntegrationID != "bot-1" {
		t.Errorf("IntegrationID = %q, want bot-1", oc.IntegrationID)
	}
}

func TestStatusColor(t *testing.T) {
	tests := map[string]string{
		"closed":             colorGreen,
		"escalated":          colorRed,
		"new":                colorYellow,
		"":                   colorYellow,
		"finding_demand":     colorCyan,
		"providing_solution": colorCyan,
	}
	for status, want := range tests {
		if got := statusColor(status); got != want {
			t.Errorf("statusColor(%q) = %q, want %q", status, got, want)
		}
	}
}
