package api

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/kalambet/caseflow/internal/storage"
)

type stateView struct {
	ConversationID       string    `json:"conversation_id"`
	Status               string    `json:"status"`
	Owner                string    `json:"owner"`
	WaitingForCustomer   bool      `json:"waiting_for_customer"`
	LastProcessedEventID *int64    `json:"last_processed_event_id"`
	DemandInteractions   int       `json:"demand_interactions"`
	SolutionInteractions int       `json:"solution_interactions"`
	HandlerID            string    `json:"handler_id,omitempty"`
	HandlerName          string    `json:"handler_name,omitempty"`
	AutopilotEnabled     bool      `json:"autopilot_enabled"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type demandView struct {
	ID               string          `json:"id"`
	Status           string          `json:"status"`
	IntentID         string          `json:"intent_id,omitempty"`
	IntentLabel      string          `json:"intent_label,omitempty"`
	Candidates       json.RawMessage `json:"candidates"`
	InteractionCount int             `json:"interaction_count"`
	CreatedAt        time.Time       `json:"created_at"`
}

type actionView struct {
	ID            string `json:"id"`
	Sequence      int    `json:"sequence"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	AwaitingInput string `json:"awaiting_input,omitempty"`
	Result        string `json:"result,omitempty"`
}

type solutionView struct {
	ID               string          `json:"id"`
	DemandID         string          `json:"demand_id"`
	IntentID         string          `json:"intent_id"`
	Status           string          `json:"status"`
	InteractionCount int             `json:"interaction_count"`
	CollectedInputs  json.RawMessage `json:"collected_inputs"`
	Actions          []actionView    `json:"actions"`
}

type logEntryView struct {
	EventID     int64           `json:"event_id"`
	Turn        int             `json:"turn"`
	Agent       string          `json:"agent"`
	StateBefore string          `json:"state_before"`
	Decision    string          `json:"decision,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Action      string          `json:"action,omitempty"`
	Details     json.RawMessage `json:"details"`
	CreatedAt   time.Time       `json:"created_at"`
}

func rawJSON(s, empty string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return json.RawMessage(empty)
	}
	return json.RawMessage(s)
}

func loadState(store *storage.Store, conversationID string) (stateView, error) {
	st, err := store.GetOrchestratorState(conversationID)
	if err != nil {
		return stateView{}, err
	}
	v := stateView{
		ConversationID:       st.ConversationID,
		Status:               string(st.Status),
		Owner:                st.Owner.String(),
		WaitingForCustomer:   st.WaitingForCustomer,
		LastProcessedEventID: st.LastProcessedEventID,
		DemandInteractions:   st.DemandInteractions,
		SolutionInteractions: st.SolutionInteractions,
		UpdatedAt:            st.UpdatedAt,
	}
	if conv, err := store.GetConversation(conversationID); err == nil {
		v.HandlerID = conv.HandlerID
		v.HandlerName = conv.HandlerName
		v.AutopilotEnabled = conv.AutopilotEnabled
	}
	return v, nil
}

func loadDemands(store *storage.Store, conversationID string) ([]demandView, error) {
	demands, err := store.ListDemands(conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]demandView, 0, len(demands))
	for _, d := range demands {
		out = append(out, demandView{
			ID:               d.ID,
			Status:           d.Status,
			IntentID:         d.IntentID,
			IntentLabel:      d.IntentLabel,
			Candidates:       rawJSON(d.CandidatesJSON, "[]"),
			InteractionCount: d.InteractionCount,
			CreatedAt:        d.CreatedAt,
		})
	}
	return out, nil
}

// loadSolution returns the solution of the conversation's newest demand that
// has one, or storage.ErrNotFound.
func loadSolution(store *storage.Store, conversationID string) (solutionView, error) {
	demands, err := store.ListDemands(conversationID)
	if err != nil {
		return solutionView{}, err
	}
	for i := len(demands) - 1; i >= 0; i-- {
		sol, err := store.SolutionForDemand(demands[i].ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return solutionView{}, err
		}
		actions, err := store.ListActions(sol.ID)
		if err != nil {
			return solutionView{}, err
		}
		v := solutionView{
			ID:               sol.ID,
			DemandID:         sol.DemandID,
			IntentID:         sol.IntentID,
			Status:           sol.Status,
			InteractionCount: sol.InteractionCount,
			CollectedInputs:  rawJSON(sol.CollectedInputsJSON, "{}"),
			Actions:          make([]actionView, 0, len(actions)),
		}
		for _, a := range actions {
			v.Actions = append(v.Actions, actionView{
				ID:            a.ID,
				Sequence:      a.Sequence,
				Name:          a.Name,
				Type:          a.ActionType,
				Status:        a.Status,
				AwaitingInput: a.AwaitingInput,
				Result:        a.Result,
			})
		}
		return v, nil
	}
	return solutionView{}, storage.ErrNotFound
}

func loadLog(store *storage.Store, conversationID string, limit int) ([]logEntryView, error) {
	entries, err := store.ListDispatchLog(conversationID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]logEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, logEntryView{
			EventID:     e.EventID,
			Turn:        e.Turn,
			Agent:       e.Agent,
			StateBefore: e.StateBefore,
			Decision:    e.Decision,
			Reason:      e.Reason,
			Action:      e.Action,
			Details:     rawJSON(e.DetailsJSON, "{}"),
			CreatedAt:   e.CreatedAt,
		})
	}
	return out, nil
}
