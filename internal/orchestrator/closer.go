package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/caseflow/internal/state"
	"github.com/kalambet/caseflow/internal/storage"
)

const (
	followUpMessage  = "Is there anything else I can help you with?"
	closingMessage   = "Thanks for reaching out! Have a great day!"
	moreHelpMessage  = "Sure! What else can I help you with?"
	closerFallbackOn = "closer decision unavailable"
)

// runCloser asks whether the customer needs anything else once a solution
// is done, and on the next turn either closes or opens a new demand. The
// mode is picked from the phase the turn was claimed in, so a same-turn
// handoff from the solution provider always asks first.
func (o *Orchestrator) runCloser(ctx context.Context, tc *turnContext) (step, error) {
	if tc.claimed.Status != state.StatusFinalizing {
		return o.closerFollowUp(ctx, tc)
	}
	return o.closerRespond(ctx, tc)
}

func (o *Orchestrator) closerFollowUp(ctx context.Context, tc *turnContext) (step, error) {
	res := o.send(ctx, tc, "closer", followUpMessage)
	if err := o.transition(tc, state.StatusFinalizing, state.OwnerCloser, true); err != nil {
		return o.escalateOnError(ctx, tc, err)
	}
	action := "sent_follow_up"
	if !res.Sent {
		action = "follow_up_skipped"
	}
	return step{
		Decision: "follow_up",
		Action:   action,
		Details:  map[string]any{"suggestion_id": res.SuggestionID, "skip_reason": res.SkipReason},
	}, nil
}

func (o *Orchestrator) closerRespond(ctx context.Context, tc *turnContext) (step, error) {
	d, err := o.decider.Closer(ctx, o.decisionContext(tc))
	if err != nil {
		tc.log.Warn("closer decision failed, closing", "error", err)
		return o.closeConversation(ctx, tc, closingMessage, closerFallbackOn)
	}

	reply := strings.TrimSpace(d.Reply)
	if !d.WantsMoreHelp {
		if reply == "" {
			reply = closingMessage
		}
		return o.closeConversation(ctx, tc, reply, "customer is done")
	}

	if reply == "" {
		reply = moreHelpMessage
	}
	res := o.send(ctx, tc, "closer", reply)
	if !res.Sent {
		return skippedCloserStep("wants_more_help", res), nil
	}

	if err := o.reopen(tc); err != nil {
		tc.log.Error("opening new demand failed, closing", "error", err)
		return o.closeConversation(ctx, tc, "", closerFallbackOn)
	}
	return step{
		Decision: "wants_more_help",
		Action:   "new_demand",
		Details:  map[string]any{"suggestion_id": res.SuggestionID, "demand_id": tc.demand.ID},
	}, nil
}

// reopen completes the current demand and starts a fresh one owned by the
// demand finder.
func (o *Orchestrator) reopen(tc *turnContext) error {
	if err := o.completeActiveDemand(tc); err != nil {
		return err
	}
	d := storage.CaseDemand{ID: newID(), ConversationID: tc.conv.ID, Status: storage.DemandSearching}
	if err := o.store.CreateDemand(d); err != nil {
		return fmt.Errorf("creating demand: %w", err)
	}
	tc.demand = &d
	return o.transition(tc, state.StatusFindingDemand, state.OwnerDemandFinder, true)
}

// closeConversation sends the closing copy (when given) and closes. A skipped
// closing message leaves the conversation finalizing.
func (o *Orchestrator) closeConversation(ctx context.Context, tc *turnContext, text, reason string) (step, error) {
	st := step{Decision: "close", Reason: reason, Action: "closed"}
	if text != "" {
		res := o.send(ctx, tc, "closer", text)
		if !res.Sent && reason != closerFallbackOn {
			return skippedCloserStep("close", res), nil
		}
		st.Details = map[string]any{"suggestion_id": res.SuggestionID, "skip_reason": res.SkipReason}
	}

	if err := o.completeActiveDemand(tc); err != nil {
		tc.log.Warn("completing demand failed", "error", err)
	}
	if err := o.transition(tc, state.StatusClosed, state.OwnerNone, false); err != nil {
		return o.escalateOnError(ctx, tc, err)
	}
	return st, nil
}

func (o *Orchestrator) completeActiveDemand(tc *turnContext) error {
	d, err := o.store.ActiveDemand(tc.conv.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading active demand: %w", err)
	}
	if err := o.store.SetDemandStatus(d.ID, storage.DemandCompleted); err != nil {
		return fmt.Errorf("completing demand: %w", err)
	}
	return nil
}

func skippedCloserStep(decision string, res SendResult) step {
	return step{
		Decision: decision,
		Action:   "reply_skipped",
		Details:  map[string]any{"suggestion_id": res.SuggestionID, "skip_reason": res.SkipReason},
	}
}
