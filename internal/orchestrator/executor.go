package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/caseflow/internal/storage"
)

// Skip reasons reported by the executor when a message is not delivered.
const (
	SkipHandlerNotIntegration  = "handler_not_integration"
	SkipAutopilotDisabled      = "autopilot_disabled"
	SkipNewerMessagesExist     = "newer_messages_exist"
	SkipLastMessageNotCustomer = "last_message_not_from_customer"
	SkipInResponseToMismatch   = "in_response_to_mismatch"
	SkipAlreadySent            = "suggestion_already_sent"
	SkipSendFailed             = "send_failed"
)

// SendResult is the executor's answer to a send request. Exactly one of
// Sent and Skipped is true.
type SendResult struct {
	Sent         bool
	Skipped      bool
	SkipReason   string
	SuggestionID string
}

func skipped(id, reason string) SendResult {
	return SendResult{Skipped: true, SkipReason: reason, SuggestionID: id}
}

// externalID is the id the chat platform knows the conversation by.
func (tc *turnContext) externalID() string {
	if tc.conv.ExternalID != "" {
		return tc.conv.ExternalID
	}
	return tc.conv.ID
}

// isIntegrationHandler reports whether the automation currently handles the
// channel. Any other handler puts the engine in observation-only mode.
func (o *Orchestrator) isIntegrationHandler(c storage.Conversation) bool {
	if c.HandlerID != "" && c.HandlerID == o.cfg.IntegrationID {
		return true
	}
	return o.cfg.HandlerPrefix != "" &&
		strings.HasPrefix(strings.ToLower(c.HandlerName), strings.ToLower(o.cfg.HandlerPrefix))
}

// send records text as a suggestion answering the turn's event and delivers
// it if every guard passes. The suggestion moves created -> sent by a
// conditional update before the gateway is called, so a suggestion is
// delivered at most once.
func (o *Orchestrator) send(ctx context.Context, tc *turnContext, source, text string) SendResult {
	sg := storage.Suggestion{
		ID:             newID(),
		ConversationID: tc.conv.ID,
		EventID:        tc.event.ID,
		InResponseTo:   tc.event.ID,
		Source:         source,
		Text:           text,
		Status:         storage.SuggestionCreated,
	}
	if err := o.store.CreateSuggestion(sg); err != nil {
		tc.log.Error("saving suggestion failed", "error", err)
		return o.recordSkip(tc, skipped("", SkipSendFailed))
	}

	if reason := o.sendGuard(tc, sg.ID); reason != "" {
		target := storage.SuggestionExpired
		switch reason {
		case SkipHandlerNotIntegration, SkipAutopilotDisabled:
			target = storage.SuggestionCreated
		case SkipAlreadySent:
			return o.recordSkip(tc, skipped(sg.ID, reason))
		}
		if _, err := o.store.TransitionSuggestion(sg.ID, storage.SuggestionCreated, target, reason); err != nil {
			tc.log.Warn("recording skip on suggestion failed", "suggestion_id", sg.ID, "error", err)
		}
		return o.recordSkip(tc, skipped(sg.ID, reason))
	}

	won, err := o.store.TransitionSuggestion(sg.ID, storage.SuggestionCreated, storage.SuggestionSent, "")
	if err != nil {
		tc.log.Error("marking suggestion sent failed", "suggestion_id", sg.ID, "error", err)
		return o.recordSkip(tc, skipped(sg.ID, SkipSendFailed))
	}
	if !won {
		return o.recordSkip(tc, skipped(sg.ID, SkipAlreadySent))
	}

	if _, err := o.messenger.SendMessage(ctx, tc.externalID(), text); err != nil {
		tc.log.Error("delivering message failed", "suggestion_id", sg.ID, "error", err)
		if _, terr := o.store.TransitionSuggestion(sg.ID, storage.SuggestionSent, storage.SuggestionFailed, SkipSendFailed); terr != nil {
			tc.log.Warn("marking suggestion failed", "suggestion_id", sg.ID, "error", terr)
		}
		return o.recordSkip(tc, skipped(sg.ID, SkipSendFailed))
	}

	messagesTotal.WithLabelValues("sent").Inc()
	tc.log.Info("message sent", "suggestion_id", sg.ID, "source", source)
	return SendResult{Sent: true, SuggestionID: sg.ID}
}

// sendGuard returns the reason a suggestion must not be delivered, or "".
func (o *Orchestrator) sendGuard(tc *turnContext, suggestionID string) string {
	conv, err := o.store.GetConversation(tc.conv.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		tc.log.Error("reloading conversation failed", "error", err)
		return SkipSendFailed
	}
	if err == nil {
		tc.conv = conv
	}

	if !o.isIntegrationHandler(tc.conv) {
		return SkipHandlerNotIntegration
	}
	if !tc.conv.AutopilotEnabled {
		return SkipAutopilotDisabled
	}

	sg, err := o.store.GetSuggestion(suggestionID)
	if err != nil {
		tc.log.Error("reloading suggestion failed", "suggestion_id", suggestionID, "error", err)
		return SkipSendFailed
	}
	if sg.Status != storage.SuggestionCreated {
		return SkipAlreadySent
	}

	newer, err := o.store.HasEventsAfter(tc.conv.ID, sg.EventID)
	if err != nil {
		tc.log.Error("checking for newer messages failed", "error", err)
		return SkipSendFailed
	}
	if newer {
		return SkipNewerMessagesExist
	}

	last, err := o.store.LastMessage(tc.conv.ID)
	if err != nil {
		tc.log.Error("loading last message failed", "error", err)
		return SkipSendFailed
	}
	if !storage.IsCustomerAuthor(last.AuthorType) {
		return SkipLastMessageNotCustomer
	}
	if last.ID != sg.InResponseTo {
		return SkipInResponseToMismatch
	}
	return ""
}

func (o *Orchestrator) recordSkip(tc *turnContext, r SendResult) SendResult {
	messagesTotal.WithLabelValues(r.SkipReason).Inc()
	tc.log.Info("message skipped", "suggestion_id", r.SuggestionID, "reason", r.SkipReason)
	return r
}

// transfer hands the conversation to a human. It is subject to the handler
// check only; a skipped transfer is a failed transfer.
func (o *Orchestrator) transfer(ctx context.Context, tc *turnContext, reason string) error {
	if conv, err := o.store.GetConversation(tc.conv.ID); err == nil {
		tc.conv = conv
	}
	if !o.isIntegrationHandler(tc.conv) {
		return fmt.Errorf("%w: %s", ErrTransferFailed, SkipHandlerNotIntegration)
	}
	if err := o.messenger.TransferToHuman(ctx, tc.externalID(), reason); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}
