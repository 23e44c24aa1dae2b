package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/caseflow/internal/state"
	"github.com/kalambet/caseflow/internal/storage"
)

// ProcessEvent runs one turn for the stored event. Events that are not from
// the customer, belong to a finished conversation or were already handled are
// ignored. Otherwise the event is claimed and dispatched to the owning agent,
// following handoffs up to MaxDispatchesPerEvent times. A returned error means
// the turn could not complete; ErrTransferFailed is the one expected kind.
func (o *Orchestrator) ProcessEvent(ctx context.Context, eventID int64) (Result, error) {
	ev, err := o.store.GetEvent(eventID)
	if err != nil {
		return Result{}, fmt.Errorf("loading event %d: %w", eventID, err)
	}
	log := o.logger.With("conversation_id", ev.ConversationID, "event_id", ev.ID)

	if ev.ConversationID == "" {
		return o.ignore(log, "missing conversation id"), nil
	}
	if !storage.IsCustomerAuthor(ev.AuthorType) {
		return o.ignore(log, "author is not the customer"), nil
	}

	var expected *int64
	prev, err := o.store.GetOrchestratorState(ev.ConversationID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return Result{}, fmt.Errorf("loading state: %w", err)
	default:
		if prev.Status.IsTerminal() {
			return o.ignore(log, "conversation is "+string(prev.Status)), nil
		}
		if m := prev.LastProcessedEventID; m != nil {
			if *m == ev.ID {
				return o.ignore(log, "event already processed"), nil
			}
			if *m > ev.ID {
				return o.ignore(log, "older than last processed event"), nil
			}
		}
		expected = prev.LastProcessedEventID
	}

	won, err := o.store.TryClaimEvent(ev.ConversationID, ev.ID, expected)
	if err != nil {
		return Result{}, err
	}
	if !won {
		turnsTotal.WithLabelValues(string(OutcomeClaimLost)).Inc()
		log.Info("claim lost")
		return Result{Outcome: OutcomeClaimLost, Reason: "event claimed by another worker"}, nil
	}

	start := time.Now()
	res, err := o.runTurn(ctx, ev, log)
	turnDuration.Observe(time.Since(start).Seconds())
	turnsTotal.WithLabelValues(string(res.Outcome)).Inc()
	return res, err
}

func (o *Orchestrator) ignore(log *slog.Logger, reason string) Result {
	turnsTotal.WithLabelValues(string(OutcomeIgnored)).Inc()
	log.Debug("event ignored", "reason", reason)
	return Result{Outcome: OutcomeIgnored, Reason: reason}
}

func (o *Orchestrator) runTurn(ctx context.Context, ev storage.Event, log *slog.Logger) (Result, error) {
	conv, err := o.store.GetConversation(ev.ConversationID)
	if errors.Is(err, storage.ErrNotFound) {
		conv = storage.Conversation{ID: ev.ConversationID}
	} else if err != nil {
		return Result{Outcome: OutcomeFailed}, fmt.Errorf("loading conversation: %w", err)
	}

	claimed, err := o.store.GetOrchestratorState(ev.ConversationID)
	if err != nil {
		return Result{Outcome: OutcomeFailed}, fmt.Errorf("reading claimed state: %w", err)
	}
	tc := &turnContext{event: ev, conv: conv, claimed: claimed, log: log}
	log.Info("turn started", "status", claimed.Status, "owner", claimed.Owner.String())

	var res Result
	for tc.turn = 1; tc.turn <= o.cfg.MaxDispatchesPerEvent; tc.turn++ {
		cur, err := o.store.GetOrchestratorState(ev.ConversationID)
		if err != nil {
			return Result{Outcome: OutcomeFailed, Dispatches: res.Dispatches}, fmt.Errorf("reading state: %w", err)
		}
		tc.current = cur

		agent := cur.Owner
		if agent == state.OwnerNone {
			agent = state.OwnerDemandFinder
		}
		tc.log = log.With("agent", agent.String(), "dispatch", tc.turn)
		tc.demand, tc.solution, tc.action = nil, nil, nil

		st, agentErr := o.dispatch(ctx, tc, agent)
		res.Dispatches++
		dispatchesTotal.WithLabelValues(agent.String()).Inc()
		o.logDispatch(tc, agent, cur, st)

		if agentErr != nil {
			res.Outcome = OutcomeFailed
			res.Reason = st.Reason
			res.Status, res.Owner = o.currentPhase(tc)
			log.Error("turn failed", "error", agentErr)
			return res, agentErr
		}

		after, err := o.store.GetOrchestratorState(ev.ConversationID)
		if err != nil {
			return Result{Outcome: OutcomeFailed, Dispatches: res.Dispatches}, fmt.Errorf("reading state: %w", err)
		}
		res.Status, res.Owner, res.Reason = after.Status, after.Owner, st.Reason
		if after.Status.IsTerminal() || after.WaitingForCustomer || after.Owner == agent {
			break
		}
	}

	switch res.Status {
	case state.StatusEscalated:
		res.Outcome = OutcomeEscalated
	case state.StatusClosed:
		res.Outcome = OutcomeClosed
	default:
		res.Outcome = OutcomeProcessed
	}
	log.Info("turn finished", "outcome", res.Outcome, "status", res.Status, "owner", res.Owner.String(), "dispatches", res.Dispatches)
	return res, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, tc *turnContext, agent state.Owner) (step, error) {
	switch agent {
	case state.OwnerDemandFinder:
		return o.runDemandFinder(ctx, tc)
	case state.OwnerSolutionProvider:
		return o.runSolutionProvider(ctx, tc)
	case state.OwnerCloser:
		return o.runCloser(ctx, tc)
	}
	return o.escalate(ctx, tc, fmt.Sprintf("unknown owner %q", agent), false)
}

func (o *Orchestrator) currentPhase(tc *turnContext) (state.Status, state.Owner) {
	st, err := o.store.GetOrchestratorState(tc.conv.ID)
	if err != nil {
		return tc.current.Status, tc.current.Owner
	}
	return st.Status, st.Owner
}

// logDispatch appends the audit record. Failing to write it never fails the
// turn.
func (o *Orchestrator) logDispatch(tc *turnContext, agent state.Owner, before storage.OrchestratorState, st step) {
	err := o.store.AppendDispatchLog(storage.DispatchEntry{
		ID:             newID(),
		ConversationID: tc.conv.ID,
		EventID:        tc.event.ID,
		Turn:           tc.turn,
		Agent:          agent.String(),
		StateBefore:    fmt.Sprintf("%s/%s", before.Status, before.Owner.String()),
		Decision:       st.Decision,
		Reason:         st.Reason,
		Action:         st.Action,
		DetailsJSON:    st.detailsJSON(),
	})
	if err != nil {
		tc.log.Warn("writing dispatch log failed", "error", err)
	}
}
