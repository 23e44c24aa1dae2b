package orchestrator

import (
	"context"
	"fmt"

	"github.com/kalambet/caseflow/internal/state"
	"github.com/kalambet/caseflow/internal/storage"
)

// Escalation reasons.
const (
	ReasonNotInCandidates         = "selected intent not in candidates"
	ReasonMaxInteractions         = "max interactions reached"
	ReasonDecisionFailed          = "decision unavailable"
	ReasonSearchFailed            = "search unavailable"
	ReasonNoResolvedDemand        = "no resolved demand"
	ReasonNoPendingAction         = "no pending action"
	ReasonSolutionTooComplex      = "solution too complex"
	ReasonMaxSolutionInteractions = "max solution interactions reached"
	ReasonCompositionFailed       = "message composition failed"
	ReasonMessageNotSent          = "message not sent"
	ReasonPlanTransfer            = "solution requires a human"
	ReasonInvalidTransition       = "invalid owner transition"
	ReasonStorageFailure          = "storage failure"
	ReasonEscalationPending       = "escalation pending"
)

const apologyMessage = "Sorry, I couldn't resolve this automatically. I'm transferring you to a human agent, please wait a moment."

// escalate is the shared give-up path. It marks the demand or solution in
// play, optionally apologises, and transfers to a human. Only a successful
// transfer moves the conversation to escalated; a failed one leaves state as
// it is and returns ErrTransferFailed.
func (o *Orchestrator) escalate(ctx context.Context, tc *turnContext, reason string, apologize bool) (step, error) {
	tc.log.Warn("escalating", "reason", reason)

	switch {
	case tc.solution != nil:
		if err := o.store.SetSolutionStatus(tc.solution.ID, storage.SolutionEscalated); err != nil {
			tc.log.Warn("marking solution escalated failed", "error", err)
		}
		if tc.action != nil {
			if err := o.store.SetActionState(tc.action.ID, storage.ActionEscalated, "", reason); err != nil {
				tc.log.Warn("marking action escalated failed", "error", err)
			}
		}
	case tc.demand != nil:
		if err := o.store.SetDemandStatus(tc.demand.ID, storage.DemandNotFound); err != nil {
			tc.log.Warn("marking demand not found failed", "error", err)
		}
	}

	st := step{Decision: "escalate", Reason: reason, Action: "transfer_to_human"}

	if apologize {
		res := o.send(ctx, tc, "escalation", apologyMessage)
		st.Details = map[string]any{"apology_sent": res.Sent, "apology_skip_reason": res.SkipReason}
	}

	if err := o.transfer(ctx, tc, reason); err != nil {
		escalationsTotal.WithLabelValues(reason, "failed").Inc()
		tc.log.Error("escalation transfer failed", "reason", reason, "error", err)
		st.Action = "transfer_failed"
		return st, err
	}

	if err := o.transition(tc, state.StatusEscalated, state.OwnerNone, false); err != nil {
		// owner -> none is always legal, so only storage can fail here.
		tc.log.Error("recording escalation failed", "error", err)
		return st, fmt.Errorf("recording escalation: %w", err)
	}
	escalationsTotal.WithLabelValues(reason, "transferred").Inc()
	return st, nil
}
