package decision

import (
	"context"
	"log/slog"

	"github.com/kalambet/caseflow/internal/engine"
	"github.com/kalambet/caseflow/internal/search"
)

const (
	decisionSelected      = "selected_intent"
	decisionClarification = "need_clarification"
)

// DemandDecision is one of Selected, NeedsClarification or Unparseable.
type DemandDecision interface {
	demandDecision()
}

// Selected names the candidate the model picked. The id is not yet checked
// against the candidate set.
type Selected struct {
	IntentID string
	Label    string
	Reason   string
}

// NeedsClarification carries the question to put to the customer.
type NeedsClarification struct {
	Question string
	Reason   string
}

// Unparseable means the model call failed or returned no usable decision.
type Unparseable struct {
	Raw string
	Err error
}

func (Selected) demandDecision()           {}
func (NeedsClarification) demandDecision() {}
func (Unparseable) demandDecision()        {}

// Demand picks one candidate intent for the conversation or asks a
// clarifying question.
func (d *Decider) Demand(ctx context.Context, c Context, candidates []search.Candidate) DemandDecision {
	raw, err := d.ask(ctx, BuildDemandPrompt(c, candidates), demandSchema(candidates))
	if err != nil {
		slog.Warn("demand decision chat failed", "error", err)
		return Unparseable{Err: err}
	}
	return ParseDemand(raw)
}

func demandSchema(candidates []search.Candidate) *engine.Schema {
	idProp := engine.SchemaProperty{Type: "string", Description: "id of the chosen candidate, empty when asking for clarification"}
	if len(candidates) > 0 {
		ids := make([]string, 0, len(candidates)+1)
		for _, c := range candidates {
			ids = append(ids, c.ID)
		}
		idProp.Enum = append(ids, "")
	}
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"decision": {
				Type:        "string",
				Description: "selected_intent when one candidate clearly matches, otherwise need_clarification",
				Enum:        []string{decisionSelected, decisionClarification},
			},
			"selected_intent_id":    idProp,
			"selected_intent_label": {Type: "string", Description: "label of the chosen candidate"},
			"clarifying_question":   {Type: "string", Description: "one short question for the customer, empty when an intent was selected"},
			"reason":                {Type: "string", Description: "one sentence explaining the decision"},
		},
		Required: []string{"decision", "reason"},
	}
}
