package decision

import (
	"context"
	"fmt"

	"github.com/kalambet/caseflow/internal/engine"
)

// CloserDecision classifies the customer's answer to the follow-up question.
type CloserDecision struct {
	WantsMoreHelp bool
	// Reply is the suggested answer; empty when the model gave none.
	Reply string
}

// Closer decides whether the customer wants more help after a resolved demand.
func (d *Decider) Closer(ctx context.Context, c Context) (CloserDecision, error) {
	raw, err := d.ask(ctx, BuildCloserPrompt(c), closerSchema())
	if err != nil {
		return CloserDecision{}, fmt.Errorf("closer decision: %w", err)
	}
	return ParseCloser(raw)
}

func closerSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"wants_more_help":    {Type: "boolean", Description: "true when the customer has another request"},
			"suggested_response": {Type: "string", Description: "short reply to send to the customer"},
		},
		Required: []string{"wants_more_help"},
	}
}
