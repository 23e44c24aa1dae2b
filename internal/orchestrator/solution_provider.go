package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/caseflow/internal/decision"
	"github.com/kalambet/caseflow/internal/search"
	"github.com/kalambet/caseflow/internal/state"
	"github.com/kalambet/caseflow/internal/storage"
)

// runSolutionProvider executes the resolved intent's action plan in order
// until it needs the customer, finishes, or gives up.
func (o *Orchestrator) runSolutionProvider(ctx context.Context, tc *turnContext) (step, error) {
	demand, err := o.store.ActiveDemand(tc.conv.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return o.escalateOnError(ctx, tc, err)
	}
	if err != nil || demand.IntentID == "" {
		return o.escalate(ctx, tc, ReasonNoResolvedDemand, true)
	}
	tc.demand = &demand

	sol, err := o.loadOrCreateSolution(ctx, tc, demand)
	if err != nil {
		return o.escalateOnError(ctx, tc, err)
	}
	tc.solution = sol
	if sol.Status == storage.SolutionEscalated {
		// An earlier escalation never reached a human.
		return o.escalate(ctx, tc, ReasonEscalationPending, false)
	}

	profile := tc.profile()
	for executed := 0; ; executed++ {
		actions, err := o.store.ListActions(sol.ID)
		if err != nil {
			return o.escalateOnError(ctx, tc, fmt.Errorf("listing actions: %w", err))
		}

		if allDone(actions) {
			return o.completeSolution(ctx, tc, executed)
		}
		if executed >= o.cfg.MaxActionsPerTurn {
			return o.escalate(ctx, tc, ReasonSolutionTooComplex, true)
		}

		next := nextAction(actions)
		if next == nil {
			return o.escalate(ctx, tc, ReasonNoPendingAction, true)
		}
		log := tc.log.With("action_id", next.ID, "sequence", next.Sequence, "action_type", next.ActionType)

		if next.Status == storage.ActionInProgress && next.AwaitingInput != "" {
			if err := o.store.SetCollectedInput(sol.ID, next.AwaitingInput, tc.event.Content); err != nil {
				return o.escalateOnError(ctx, tc, err)
			}
			if err := o.store.SetActionState(next.ID, storage.ActionCompleted, "", "input received"); err != nil {
				return o.escalateOnError(ctx, tc, err)
			}
			log.Info("collected customer input", "field", next.AwaitingInput)
			continue
		}

		kind := classifyAction(next.ActionType)
		if kind.requiresAI() {
			granted, err := o.store.IncrementSolutionInteractions(sol.ID, o.cfg.MaxSolutionInteractions)
			if err != nil {
				return o.escalateOnError(ctx, tc, err)
			}
			if !granted {
				return o.escalate(ctx, tc, ReasonMaxSolutionInteractions, true)
			}
		}

		tc.action = next
		if err := o.store.SetActionState(next.ID, storage.ActionInProgress, "", ""); err != nil {
			return o.escalateOnError(ctx, tc, err)
		}

		switch kind {
		case kindTransfer:
			st, err := o.escalate(ctx, tc, ReasonPlanTransfer, false)
			st.Details = mergeDetails(st.Details, map[string]any{"action_id": next.ID})
			if err != nil {
				return st, err
			}
			if err := o.store.SetActionState(next.ID, storage.ActionCompleted, "", "transferred"); err != nil {
				log.Warn("completing transfer action failed", "error", err)
			}
			return st, nil

		case kindAutomatic:
			if err := o.store.SetCollectedInput(sol.ID, "customer_profile", tc.conv.CustomerProfile); err != nil {
				return o.escalateOnError(ctx, tc, err)
			}
			if err := o.store.SetActionState(next.ID, storage.ActionCompleted, "", "profile loaded"); err != nil {
				return o.escalateOnError(ctx, tc, err)
			}
			log.Info("automatic action completed")

		case kindSend, kindAsk:
			return o.messageAction(ctx, tc, *next, kind, profile)

		case kindInternal:
			if err := o.store.SetActionState(next.ID, storage.ActionCompleted, "", "recorded"); err != nil {
				return o.escalateOnError(ctx, tc, err)
			}
			log.Info("internal action recorded")

		default:
			log.Warn("skipping action of unknown type")
			if err := o.store.SetActionState(next.ID, storage.ActionSkipped, "", "unknown action type"); err != nil {
				return o.escalateOnError(ctx, tc, err)
			}
		}
		tc.action = nil
	}
}

// loadOrCreateSolution returns the demand's solution, fetching the plan and
// creating it on first use. An intent without a usable plan gets a single
// transfer action.
func (o *Orchestrator) loadOrCreateSolution(ctx context.Context, tc *turnContext, demand storage.CaseDemand) (*storage.CaseSolution, error) {
	sol, err := o.store.SolutionForDemand(demand.ID)
	if err == nil {
		return &sol, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading solution: %w", err)
	}

	sol = storage.CaseSolution{
		ID:             newID(),
		DemandID:       demand.ID,
		ConversationID: tc.conv.ID,
		IntentID:       demand.IntentID,
		Status:         storage.SolutionInProgress,
	}

	var actions []storage.CaseAction
	plan, err := o.search.GetSolution(ctx, demand.IntentID)
	switch {
	case errors.Is(err, search.ErrNoPlan):
		tc.log.Warn("intent has no plan", "intent_id", demand.IntentID)
	case err != nil:
		tc.log.Error("fetching plan failed", "intent_id", demand.IntentID, "error", err)
	default:
		actions = planActions(sol.ID, plan)
	}
	if len(actions) == 0 {
		actions = fallbackPlan(sol.ID)
	}

	if err := o.store.CreateSolution(sol, actions); err != nil {
		return nil, fmt.Errorf("creating solution: %w", err)
	}
	tc.log.Info("solution created", "solution_id", sol.ID, "intent_id", demand.IntentID, "actions", len(actions))
	return &sol, nil
}

// messageAction sends an inform or ask step. A delivered message ends the
// turn: the provider waits for the customer before touching the next action.
func (o *Orchestrator) messageAction(ctx context.Context, tc *turnContext, a storage.CaseAction, kind actionKind, profile map[string]string) (step, error) {
	msg := resolveMessage(a, profile)

	awaiting := ""
	if kind == kindAsk {
		awaiting = a.Name
		if awaiting == "" {
			awaiting = a.ID
		}
	}

	text := msg.Message
	if text == "" {
		composed, err := o.decider.Compose(ctx, o.decisionContext(tc), decision.Brief{
			Step:         a.Name,
			Description:  a.Description,
			Instructions: msg.Instructions,
			AskFor:       awaiting,
		})
		if err != nil {
			tc.log.Error("composing message failed", "action_id", a.ID, "error", err)
			return o.escalate(ctx, tc, ReasonCompositionFailed, true)
		}
		text = composed
	}

	details := map[string]any{"action_id": a.ID, "action_type": a.ActionType, "variation": msg.Variation}

	res := o.send(ctx, tc, "solution_provider", text)
	details["suggestion_id"] = res.SuggestionID
	if !res.Sent {
		details["skip_reason"] = res.SkipReason
		st, err := o.escalate(ctx, tc, ReasonMessageNotSent, false)
		st.Details = mergeDetails(st.Details, details)
		return st, err
	}

	status, result := storage.ActionCompleted, "sent"
	if kind == kindAsk {
		status, result = storage.ActionInProgress, "asked"
	}
	if err := o.store.SetActionState(a.ID, status, awaiting, result); err != nil {
		return o.escalateOnError(ctx, tc, err)
	}
	if err := o.transition(tc, state.StatusProvidingSolution, state.OwnerSolutionProvider, true); err != nil {
		return o.escalateOnError(ctx, tc, err)
	}

	action := "sent_message"
	if kind == kindAsk {
		action = "asked_customer"
		details["awaiting_input"] = awaiting
	}
	return step{Decision: string(kind), Action: action, Details: details}, nil
}

// completeSolution resolves the solution and hands off to the closer.
// An escalated solution is never resolved.
func (o *Orchestrator) completeSolution(ctx context.Context, tc *turnContext, executed int) (step, error) {
	if tc.solution.Status == storage.SolutionEscalated {
		return o.escalate(ctx, tc, ReasonEscalationPending, false)
	}
	if err := o.store.SetSolutionStatus(tc.solution.ID, storage.SolutionResolved); err != nil {
		return o.escalateOnError(ctx, tc, fmt.Errorf("resolving solution: %w", err))
	}
	if err := o.transition(tc, state.StatusFinalizing, state.OwnerCloser, false); err != nil {
		return o.escalateOnError(ctx, tc, err)
	}
	tc.log.Info("solution resolved", "solution_id", tc.solution.ID)
	return step{
		Decision: "all_actions_completed",
		Action:   "handoff_to_closer",
		Details:  map[string]any{"solution_id": tc.solution.ID, "executed": executed},
	}, nil
}
