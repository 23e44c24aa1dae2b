package decision

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/caseflow/internal/engine"
	"github.com/kalambet/caseflow/internal/search"
)

const demandSystemPrompt = `You are the demand finder of a customer support assistant. Read the conversation and decide which of the candidate intents describes the customer's request. Your output must be ONLY a single valid JSON object that conforms to the provided schema.

Rules:
- Choose "selected_intent" only when exactly one candidate clearly matches. Copy its id exactly.
- Never invent an id that is not in the candidate list.
- Otherwise choose "need_clarification" and write one short, friendly question that helps tell the candidates apart.
- If there are no candidates, ask the customer to describe the problem in more detail.`

const closerSystemPrompt = `You are closing a customer support conversation. The customer's previous request was resolved and they were asked whether they need anything else. Read their latest message. Your output must be ONLY a single valid JSON object that conforms to the provided schema.

Rules:
- Set wants_more_help to true only if the customer states or implies another request.
- suggested_response is a short reply: invite them to describe the new request, or thank them and say goodbye.`

const composeSystemPrompt = `You write messages to customers on behalf of a support team. Write one message for the current step of the procedure. Your output must be ONLY a single valid JSON object that conforms to the provided schema.

Rules:
- Be concise and friendly. Do not mention internal procedures or tools.
- Follow the step instructions when given.`

func writeContext(sb *strings.Builder, c Context) {
	if c.ProductContext != "" {
		fmt.Fprintf(sb, "\n\n[Product]\n%s", c.ProductContext)
	}
	if len(c.Profile) > 0 {
		keys := make([]string, 0, len(c.Profile))
		for k := range c.Profile {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\n\n[Customer Profile]")
		for _, k := range keys {
			fmt.Fprintf(sb, "\n- %s: %s", k, c.Profile[k])
		}
	}
}

func withHistory(system string, c Context) []engine.Message {
	messages := []engine.Message{{Role: "system", Content: system}}
	if len(c.History) == 0 {
		return append(messages, engine.Message{Role: "user", Content: "(the customer has not written anything yet)"})
	}
	return append(messages, c.History...)
}

// BuildDemandPrompt constructs the chat messages for demand selection.
func BuildDemandPrompt(c Context, candidates []search.Candidate) []engine.Message {
	var sb strings.Builder
	sb.WriteString(demandSystemPrompt)
	writeContext(&sb, c)

	sb.WriteString("\n\n[Candidates]")
	if len(candidates) == 0 {
		sb.WriteString("\n(none)")
	}
	for _, cand := range candidates {
		fmt.Fprintf(&sb, "\n- id=%s label=%q score=%.2f", cand.ID, cand.Label, cand.Score)
		if cand.Summary != "" {
			fmt.Fprintf(&sb, " summary=%q", cand.Summary)
		}
	}

	return withHistory(sb.String(), c)
}

// BuildCloserPrompt constructs the chat messages for the closing decision.
func BuildCloserPrompt(c Context) []engine.Message {
	var sb strings.Builder
	sb.WriteString(closerSystemPrompt)
	writeContext(&sb, c)
	return withHistory(sb.String(), c)
}

// BuildComposePrompt constructs the chat messages for a solution step message.
func BuildComposePrompt(c Context, b Brief) []engine.Message {
	var sb strings.Builder
	sb.WriteString(composeSystemPrompt)
	writeContext(&sb, c)

	fmt.Fprintf(&sb, "\n\n[Step]\n%s", b.Step)
	if b.Description != "" {
		fmt.Fprintf(&sb, "\n%s", b.Description)
	}
	if b.Instructions != "" {
		fmt.Fprintf(&sb, "\n\n[Instructions]\n%s", b.Instructions)
	}
	if b.AskFor != "" {
		fmt.Fprintf(&sb, "\n\nAsk the customer for: %s", b.AskFor)
	}
	return withHistory(sb.String(), c)
}
