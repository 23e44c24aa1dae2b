package decision

import (
	"context"
	"fmt"

	"github.com/kalambet/caseflow/internal/engine"
)

// Brief describes the customer-facing message a solution step needs.
type Brief struct {
	Step         string
	Description  string
	Instructions string
	// AskFor is set when the message must request a piece of information.
	AskFor string
}

// Compose writes the message for a solution step.
func (d *Decider) Compose(ctx context.Context, c Context, b Brief) (string, error) {
	raw, err := d.ask(ctx, BuildComposePrompt(c, b), composeSchema())
	if err != nil {
		return "", fmt.Errorf("composing message: %w", err)
	}
	return ParseMessage(raw)
}

func composeSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"message": {Type: "string", Description: "the message to send to the customer"},
		},
		Required: []string{"message"},
	}
}
