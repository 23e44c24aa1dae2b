package orchestrator

import (
	"sort"
	"strings"

	"github.com/kalambet/caseflow/internal/search"
	"github.com/kalambet/caseflow/internal/storage"
)

// actionKind is what the solution provider does with an action.
type actionKind string

const (
	kindTransfer  actionKind = "transfer_to_human"
	kindAutomatic actionKind = "execute_automatic"
	kindSend      actionKind = "send_message_to_customer"
	kindAsk       actionKind = "ask_customer_for_input"
	kindInternal  actionKind = "execute_internal"
	kindUnknown   actionKind = "skip_unknown"
)

var actionKinds = map[string]actionKind{
	"transfer_to_human":        kindTransfer,
	"transferir_humano":        kindTransfer,
	"transferir_para_humano":   kindTransfer,
	"lookup_customer_profile":  kindAutomatic,
	"consultar_perfil_cliente": kindAutomatic,
	"inform_customer":          kindSend,
	"informar_cliente":         kindSend,
	"instruction":              kindSend,
	"link":                     kindSend,
	"ask_customer":             kindAsk,
	"perguntar_ao_cliente":     kindAsk,
	"internal_action":          kindInternal,
	"acao_interna_manual":      kindInternal,
	"api_call":                 kindInternal,
}

func classifyAction(actionType string) actionKind {
	if k, ok := actionKinds[strings.ToLower(strings.TrimSpace(actionType))]; ok {
		return k
	}
	return kindUnknown
}

// requiresAI reports whether executing the kind consumes an interaction unit.
func (k actionKind) requiresAI() bool {
	return k == kindSend || k == kindAsk
}

// nextAction returns the action to work on: one already in progress, else the
// lowest-sequence action not yet started. Actions run strictly in order, so
// nothing after an unfinished action is ever returned.
func nextAction(actions []storage.CaseAction) *storage.CaseAction {
	sorted := make([]storage.CaseAction, len(actions))
	copy(sorted, actions)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	for i := range sorted {
		a := sorted[i]
		if a.Done() {
			continue
		}
		if a.Status == storage.ActionNotStarted || a.Status == storage.ActionInProgress {
			return &a
		}
		return nil
	}
	return nil
}

func allDone(actions []storage.CaseAction) bool {
	if len(actions) == 0 {
		return false
	}
	for _, a := range actions {
		if !a.Done() {
			return false
		}
	}
	return true
}

// resolvedMessage is the text and instructions chosen for an action.
type resolvedMessage struct {
	Message      string
	Instructions string
	Variation    string
}

// resolveMessage picks the first variation whose conditions all match the
// customer profile (case-insensitive). Fields the variation leaves empty fall
// back to the action's own.
func resolveMessage(a storage.CaseAction, profile map[string]string) resolvedMessage {
	def := resolvedMessage{
		Message:      strings.TrimSpace(a.Message),
		Instructions: strings.TrimSpace(a.Instructions),
	}

	for _, v := range search.UnmarshalVariations(a.VariationsJSON) {
		if !conditionsMatch(v.Conditions, profile) {
			continue
		}
		out := resolvedMessage{
			Message:      strings.TrimSpace(v.Message),
			Instructions: strings.TrimSpace(v.Instructions),
			Variation:    v.Label,
		}
		if out.Message == "" {
			out.Message = def.Message
		}
		if out.Instructions == "" {
			out.Instructions = def.Instructions
		}
		return out
	}
	return def
}

func conditionsMatch(conds []search.Condition, profile map[string]string) bool {
	for _, c := range conds {
		actual, ok := profile[c.Variable]
		if !ok || !strings.EqualFold(strings.TrimSpace(actual), strings.TrimSpace(c.Expected)) {
			return false
		}
	}
	return true
}

// planActions converts a fetched plan into rows for a new solution.
func planActions(solutionID string, plan *search.Plan) []storage.CaseAction {
	out := make([]storage.CaseAction, 0, len(plan.Actions))
	for i, pa := range plan.Actions {
		seq := pa.Sequence
		if seq <= 0 {
			seq = i + 1
		}
		out = append(out, storage.CaseAction{
			ID:             newID(),
			SolutionID:     solutionID,
			Sequence:       seq,
			Name:           pa.Name,
			ActionType:     pa.Type,
			Description:    pa.Description,
			Message:        pa.Message,
			Instructions:   pa.Instructions,
			VariationsJSON: search.MarshalVariations(pa.Variations),
			Status:         storage.ActionNotStarted,
		})
	}
	return out
}

// fallbackPlan is used when the intent has no usable plan.
func fallbackPlan(solutionID string) []storage.CaseAction {
	return []storage.CaseAction{{
		ID:             newID(),
		SolutionID:     solutionID,
		Sequence:       1,
		Name:           "Transfer to a human agent",
		ActionType:     string(kindTransfer),
		VariationsJSON: "[]",
		Status:         storage.ActionNotStarted,
	}}
}
