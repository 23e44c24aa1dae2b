package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 1024

// AnthropicEngine talks to the Anthropic Messages API. The Messages API has
// no response-format switch, so a requested schema is appended to the system
// prompt and the reply is expected to be bare JSON.
type AnthropicEngine struct {
	client     *anthropic.Client
	configured bool
}

func NewAnthropicEngine(apiKey, baseURL string, timeout time.Duration) *AnthropicEngine {
	opts := []option.RequestOption{
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicEngine{
		client:     &client,
		configured: apiKey != "" || os.Getenv("ANTHROPIC_API_KEY") != "",
	}
}

func (e *AnthropicEngine) Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error) {
	system, rest := splitSystem(messages)
	if jsonSchema != nil {
		b, err := json.Marshal(jsonSchema.toJSONSchema())
		if err != nil {
			return "", fmt.Errorf("encoding schema: %w", err)
		}
		system += "\n\nRespond with a single JSON object matching this schema and nothing else:\n" + string(b)
	}

	msgs := make([]anthropic.MessageParam, 0, len(rest))
	for _, m := range rest {
		if m.Role == "assistant" {
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}
		msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
		Messages:  msgs,
	}
	if system = strings.TrimSpace(system); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if jsonSchema != nil {
		params.Temperature = anthropic.Float(0)
	}

	resp, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic chat: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return sb.String(), nil
}

// IsRunning reports whether an API key is configured. The Messages API has no
// free health probe.
func (e *AnthropicEngine) IsRunning(ctx context.Context) bool {
	return e.configured
}
