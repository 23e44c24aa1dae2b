// Package orchestrator runs conversation turns: it claims an inbound event,
// dispatches it to the agent that owns the conversation and applies the
// agent's side effects through a single guarded executor.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kalambet/caseflow/internal/decision"
	"github.com/kalambet/caseflow/internal/search"
	"github.com/kalambet/caseflow/internal/state"
	"github.com/kalambet/caseflow/internal/storage"
)

// ErrTransferFailed is returned when handing a conversation to a human fails.
// There is no automated fallback below it.
var ErrTransferFailed = errors.New("transfer to human failed")

// Store is the persistence the orchestrator needs.
type Store interface {
	GetEvent(id int64) (storage.Event, error)
	GetConversation(id string) (storage.Conversation, error)
	LastMessage(conversationID string) (storage.Event, error)
	HasEventsAfter(conversationID string, eventID int64) (bool, error)
	RecentEvents(conversationID string, uptoID int64, limit int) ([]storage.Event, error)

	GetOrchestratorState(conversationID string) (storage.OrchestratorState, error)
	TryClaimEvent(conversationID string, eventID int64, expected *int64) (bool, error)
	UpdateState(conversationID string, u storage.StateUpdate, check func(from, to state.Owner) error) error

	CreateDemand(d storage.CaseDemand) error
	ActiveDemand(conversationID string) (storage.CaseDemand, error)
	SetDemandCandidates(id, candidatesJSON string) error
	ResolveDemand(id, intentID, intentLabel string) error
	SetDemandStatus(id, status string) error
	IncrementDemandInteractions(id string, max int) (bool, error)

	CreateSolution(sol storage.CaseSolution, actions []storage.CaseAction) error
	SolutionForDemand(demandID string) (storage.CaseSolution, error)
	SetSolutionStatus(id, status string) error
	IncrementSolutionInteractions(id string, max int) (bool, error)
	SetCollectedInput(solutionID, field, value string) error
	ListActions(solutionID string) ([]storage.CaseAction, error)
	SetActionState(id, status, awaitingInput, result string) error

	CreateSuggestion(sg storage.Suggestion) error
	GetSuggestion(id string) (storage.Suggestion, error)
	TransitionSuggestion(id, from, to, reason string) (bool, error)

	AppendDispatchLog(e storage.DispatchEntry) error
}

// Searcher ranks candidate intents and serves solution plans.
type Searcher interface {
	FindCandidates(ctx context.Context, q search.Query) ([]search.Candidate, error)
	GetSolution(ctx context.Context, intentID string) (*search.Plan, error)
}

// Decider produces the structured decisions agents act on.
type Decider interface {
	Demand(ctx context.Context, c decision.Context, candidates []search.Candidate) decision.DemandDecision
	Closer(ctx context.Context, c decision.Context) (decision.CloserDecision, error)
	Compose(ctx context.Context, c decision.Context, b decision.Brief) (string, error)
}

// Messenger delivers messages and hands conversations to humans.
type Messenger interface {
	SendMessage(ctx context.Context, conversationID, text string) (string, error)
	TransferToHuman(ctx context.Context, conversationID, reason string) error
}

// Config bounds the automation and identifies the integration on the channel.
type Config struct {
	MaxDemandInteractions   int
	MaxSolutionInteractions int
	MaxActionsPerTurn       int
	MaxDispatchesPerEvent   int
	// StrictTransitions rejects owner changes outside the legal graph
	// instead of logging them.
	StrictTransitions bool
	IntegrationID     string
	HandlerPrefix     string
	HistoryLimit      int
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		MaxDemandInteractions:   5,
		MaxSolutionInteractions: 5,
		MaxActionsPerTurn:       10,
		MaxDispatchesPerEvent:   3,
		IntegrationID:           "caseflow",
		HandlerPrefix:           "caseflow",
		HistoryLimit:            20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxDemandInteractions <= 0 {
		c.MaxDemandInteractions = d.MaxDemandInteractions
	}
	if c.MaxSolutionInteractions <= 0 {
		c.MaxSolutionInteractions = d.MaxSolutionInteractions
	}
	if c.MaxActionsPerTurn <= 0 {
		c.MaxActionsPerTurn = d.MaxActionsPerTurn
	}
	if c.MaxDispatchesPerEvent <= 0 {
		c.MaxDispatchesPerEvent = d.MaxDispatchesPerEvent
	}
	if c.IntegrationID == "" && c.HandlerPrefix == "" {
		c.IntegrationID = d.IntegrationID
		c.HandlerPrefix = d.HandlerPrefix
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	return c
}

// Orchestrator processes inbound events one turn at a time. It holds no
// per-conversation state in memory; concurrent calls are safe.
type Orchestrator struct {
	store     Store
	search    Searcher
	decider   Decider
	messenger Messenger
	cfg       Config
	logger    *slog.Logger
}

// New creates an Orchestrator. Zero limits in cfg take their defaults, as does
// the integration handler when neither its id nor its name prefix is set.
func New(store Store, searcher Searcher, decider Decider, messenger Messenger, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:     store,
		search:    searcher,
		decider:   decider,
		messenger: messenger,
		cfg:       cfg.withDefaults(),
		logger:    slog.Default().With("component", "orchestrator"),
	}
}

// Outcome summarises what a turn did.
type Outcome string

const (
	// OutcomeIgnored: the event was filtered before claiming.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeClaimLost: another delivery claimed the event first.
	OutcomeClaimLost Outcome = "claim_lost"
	OutcomeProcessed Outcome = "processed"
	OutcomeEscalated Outcome = "escalated"
	OutcomeClosed    Outcome = "closed"
	// OutcomeFailed: escalation could not reach a human.
	OutcomeFailed Outcome = "failed"
)

// Result is returned by ProcessEvent.
type Result struct {
	Outcome    Outcome
	Reason     string
	Dispatches int
	Status     state.Status
	Owner      state.Owner
}
