package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestAnthropicEngine_Chat(t *testing.T) {
	var req struct {
		Model  string `json:"model"`
		System []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "{\"choice\":\"a\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 4}
		}`))
	}))
	defer srv.Close()

	e := NewAnthropicEngine("test-key", srv.URL, 5*time.Second)
	schema := &Schema{
		Type:       "object",
		Properties: map[string]SchemaProperty{"choice": {Type: "string"}},
		Required:   []string{"choice"},
	}
	out, err := e.Chat(context.Background(), "claude-test", []Message{
		{Role: "system", Content: "you route tickets"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
		{Role: "user", Content: "pick one"},
	}, schema)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != `{"choice":"a"}` {
		t.Errorf("Chat() = %q", out)
	}
	if req.Model != "claude-test" {
		t.Errorf("model = %q", req.Model)
	}
	if len(req.Messages) != 3 {
		t.Errorf("got %d messages, want 3 (system split out)", len(req.Messages))
	}
	if len(req.System) != 1 || !strings.Contains(req.System[0].Text, "you route tickets") || !strings.Contains(req.System[0].Text, `"choice"`) {
		t.Errorf("system = %+v", req.System)
	}
}

func TestSplitSystem(t *testing.T) {
	sys, rest := splitSystem([]Message{
		{Role: "system", Content: "a"},
		{Role: "user", Content: "u"},
		{Role: "system", Content: "b"},
	})
	if sys != "a\n\nb" {
		t.Errorf("system = %q", sys)
	}
	if len(rest) != 1 || rest[0].Content != "u" {
		t.Errorf("rest = %+v", rest)
	}
}
