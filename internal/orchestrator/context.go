package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kalambet/caseflow/internal/decision"
	"github.com/kalambet/caseflow/internal/engine"
	"github.com/kalambet/caseflow/internal/state"
	"github.com/kalambet/caseflow/internal/storage"
)

// turnContext threads one claimed event through the agents of a turn. It is
// discarded when the turn ends.
type turnContext struct {
	event storage.Event
	conv  storage.Conversation
	// claimed is the state right after the claim; agents that need the
	// phase the turn started in read it here.
	claimed storage.OrchestratorState
	// current is refreshed before every dispatch.
	current storage.OrchestratorState
	turn    int
	log     *slog.Logger

	demand   *storage.CaseDemand
	solution *storage.CaseSolution
	action   *storage.CaseAction
}

// step is what an agent reports for the dispatch log.
type step struct {
	Candidates int
	Decision   string
	Reason     string
	Action     string
	Details    map[string]any
}

func (s step) detailsJSON() string {
	details := s.Details
	if details == nil {
		details = map[string]any{}
	}
	details["candidates"] = s.Candidates
	b, err := json.Marshal(details)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// profile decodes the customer profile stored on the conversation into
// string fields. Non-string values are rendered as JSON.
func (tc *turnContext) profile() map[string]string {
	raw := map[string]any{}
	if tc.conv.CustomerProfile != "" {
		if err := json.Unmarshal([]byte(tc.conv.CustomerProfile), &raw); err != nil {
			tc.log.Warn("customer profile is not a JSON object", "error", err)
		}
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
		default:
			b, _ := json.Marshal(val)
			out[k] = string(b)
		}
	}
	return out
}

// decisionContext builds what the decider sees: product, profile and the
// recent transcript up to the claimed event.
func (o *Orchestrator) decisionContext(tc *turnContext) decision.Context {
	events, err := o.store.RecentEvents(tc.conv.ID, tc.event.ID, o.cfg.HistoryLimit)
	if err != nil {
		tc.log.Warn("loading transcript failed", "error", err)
		events = []storage.Event{tc.event}
	}

	history := make([]engine.Message, 0, len(events))
	for _, e := range events {
		if e.Content == "" || e.AuthorType == storage.AuthorSystem {
			continue
		}
		role := "assistant"
		if storage.IsCustomerAuthor(e.AuthorType) {
			role = "user"
		}
		history = append(history, engine.Message{Role: role, Content: e.Content})
	}

	return decision.Context{
		ProductContext: tc.conv.ProductContext,
		History:        history,
		Profile:        tc.profile(),
	}
}

// customerTranscript joins the customer's recent messages for search.
func customerTranscript(c decision.Context) string {
	var out string
	for _, m := range c.History {
		if m.Role != "user" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += m.Content
	}
	return out
}

// transition writes the new status/owner. Owner changes outside the legal
// graph are logged and counted; with StrictTransitions they are rejected with
// state.ErrInvalidTransition.
func (o *Orchestrator) transition(tc *turnContext, status state.Status, owner state.Owner, waiting bool) error {
	check := func(from, to state.Owner) error {
		if state.IsValidOwnerTransition(from, to) {
			return nil
		}
		invalidTransitionsTotal.Inc()
		tc.log.Warn("invalid owner transition", "from", from.String(), "to", to.String(), "strict", o.cfg.StrictTransitions)
		if o.cfg.StrictTransitions {
			return fmt.Errorf("%w: %s -> %s", state.ErrInvalidTransition, from, to)
		}
		return nil
	}

	err := o.store.UpdateState(tc.conv.ID, storage.StateUpdate{
		Status:             status,
		Owner:              owner,
		WaitingForCustomer: waiting,
	}, check)
	if err != nil {
		return err
	}
	tc.log.Info("state updated", "status", status, "owner", owner.String(), "waiting_for_customer", waiting)
	return nil
}

// ensureDemand loads the active demand, creating one when none is open.
func (o *Orchestrator) ensureDemand(tc *turnContext) (*storage.CaseDemand, error) {
	d, err := o.store.ActiveDemand(tc.conv.ID)
	if errors.Is(err, storage.ErrNotFound) {
		d = storage.CaseDemand{ID: newID(), ConversationID: tc.conv.ID, Status: storage.DemandSearching}
		if err := o.store.CreateDemand(d); err != nil {
			return nil, fmt.Errorf("creating demand: %w", err)
		}
		tc.log.Info("demand opened", "demand_id", d.ID)
		return &d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading active demand: %w", err)
	}
	return &d, nil
}

func newID() string {
	return uuid.NewString()
}
