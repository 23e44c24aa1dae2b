package orchestrator

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kalambet/caseflow/internal/decision"
	"github.com/kalambet/caseflow/internal/search"
	"github.com/kalambet/caseflow/internal/state"
)

// runDemandFinder resolves the customer's request to one of the candidate
// intents, or asks a bounded number of clarifying questions.
func (o *Orchestrator) runDemandFinder(ctx context.Context, tc *turnContext) (step, error) {
	demand, err := o.ensureDemand(tc)
	if err != nil {
		return o.escalateOnError(ctx, tc, err)
	}
	tc.demand = demand

	if tc.current.Owner == state.OwnerNone {
		if err := o.transition(tc, state.StatusFindingDemand, state.OwnerDemandFinder, false); err != nil {
			return o.escalateOnError(ctx, tc, err)
		}
	}

	dctx := o.decisionContext(tc)
	candidates, err := o.search.FindCandidates(ctx, search.Query{
		ProductContext: tc.conv.ProductContext,
		Conversation:   customerTranscript(dctx),
		Latest:         tc.event.Content,
	})
	if err != nil {
		tc.log.Error("candidate search failed", "error", err)
		return o.escalate(ctx, tc, ReasonSearchFailed, true)
	}
	if b, err := json.Marshal(candidates); err == nil {
		if err := o.store.SetDemandCandidates(demand.ID, string(b)); err != nil {
			tc.log.Warn("saving candidates failed", "error", err)
		}
	}

	st, err := o.applyDemandDecision(ctx, tc, o.decider.Demand(ctx, dctx, candidates), candidates)
	st.Candidates = len(candidates)
	return st, err
}

func (o *Orchestrator) applyDemandDecision(ctx context.Context, tc *turnContext, d decision.DemandDecision, candidates []search.Candidate) (step, error) {
	switch d := d.(type) {
	case decision.Selected:
		if !containsCandidate(candidates, d.IntentID) {
			tc.log.Warn("decision selected an unknown intent", "intent_id", d.IntentID)
			st, err := o.escalate(ctx, tc, ReasonNotInCandidates, true)
			st.Details = mergeDetails(st.Details, map[string]any{"selected_intent_id": d.IntentID})
			return st, err
		}

		label := d.Label
		if label == "" {
			label = candidateLabel(candidates, d.IntentID)
		}
		if err := o.store.ResolveDemand(tc.demand.ID, d.IntentID, label); err != nil {
			return o.escalateOnError(ctx, tc, err)
		}
		if err := o.transition(tc, state.StatusProvidingSolution, state.OwnerSolutionProvider, false); err != nil {
			return o.escalateOnError(ctx, tc, err)
		}
		tc.log.Info("demand resolved", "intent_id", d.IntentID, "label", label)
		return step{
			Decision: "selected_intent",
			Reason:   d.Reason,
			Action:   "handoff_to_solution_provider",
			Details:  map[string]any{"intent_id": d.IntentID},
		}, nil

	case decision.NeedsClarification:
		granted, err := o.store.IncrementDemandInteractions(tc.demand.ID, o.cfg.MaxDemandInteractions)
		if err != nil {
			return o.escalateOnError(ctx, tc, err)
		}
		if !granted {
			return o.escalate(ctx, tc, ReasonMaxInteractions, true)
		}

		res := o.send(ctx, tc, "demand_finder", d.Question)
		// A skipped question did not reach the customer, so the agent is not
		// waiting on an answer to it.
		if err := o.transition(tc, state.StatusFindingDemand, state.OwnerDemandFinder, res.Sent); err != nil {
			return o.escalateOnError(ctx, tc, err)
		}
		action := "sent_clarification"
		if !res.Sent {
			action = "clarification_skipped"
		}
		return step{
			Decision: "need_clarification",
			Reason:   d.Reason,
			Action:   action,
			Details:  map[string]any{"suggestion_id": res.SuggestionID, "skip_reason": res.SkipReason},
		}, nil

	case decision.Unparseable:
		tc.log.Warn("demand decision unusable", "error", d.Err)
		return o.escalate(ctx, tc, ReasonDecisionFailed, true)
	}

	return o.escalate(ctx, tc, ReasonDecisionFailed, true)
}

// escalateOnError routes an internal failure to the escalation policy.
func (o *Orchestrator) escalateOnError(ctx context.Context, tc *turnContext, err error) (step, error) {
	reason := ReasonStorageFailure
	if errors.Is(err, state.ErrInvalidTransition) {
		reason = ReasonInvalidTransition
	}
	tc.log.Error("agent step failed", "error", err)
	return o.escalate(ctx, tc, reason, false)
}

func containsCandidate(candidates []search.Candidate, id string) bool {
	for _, c := range candidates {
		if c.ID == id {
			return true
		}
	}
	return false
}

func candidateLabel(candidates []search.Candidate, id string) string {
	for _, c := range candidates {
		if c.ID == id {
			return c.Label
		}
	}
	return ""
}

func mergeDetails(a, b map[string]any) map[string]any {
	if a == nil {
		a = make(map[string]any, len(b))
	}
	for k, v := range b {
		a[k] = v
	}
	return a
}
