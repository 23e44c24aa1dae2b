package storage

import (
	"errors"
	"time"

	"github.com/kalambet/caseflow/internal/state"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Author types carried on inbound events.
const (
	AuthorCustomer = "customer"
	AuthorEndUser  = "end_user"
	AuthorAgent    = "agent"
	AuthorBot      = "bot"
	AuthorSystem   = "system"
)

// IsCustomerAuthor reports whether an event author is the customer side of the chat.
func IsCustomerAuthor(authorType string) bool {
	return authorType == AuthorCustomer || authorType == AuthorEndUser
}

// OrchestratorState is the persisted per-conversation orchestration record.
// The interaction counters are read from the active demand and solution rows.
type OrchestratorState struct {
	ConversationID       string
	Status               state.Status
	Owner                state.Owner
	WaitingForCustomer   bool
	LastProcessedEventID *int64
	DemandInteractions   int
	SolutionInteractions int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// StateUpdate is the target of an agent transition.
type StateUpdate struct {
	Status             state.Status
	Owner              state.Owner
	WaitingForCustomer bool
}

type Conversation struct {
	ID               string
	ExternalID       string
	HandlerID        string
	HandlerName      string
	AutopilotEnabled bool
	ProductContext   string
	CustomerProfile  string // JSON object stored as text
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Event struct {
	ID             int64
	ConversationID string
	ExternalID     string
	AuthorType     string
	Content        string
	CreatedAt      time.Time
}

// Demand statuses.
const (
	DemandSearching = "searching"
	DemandFound     = "demand_found"
	DemandNotFound  = "demand_not_found"
	DemandCompleted = "completed"
)

type CaseDemand struct {
	ID               string
	ConversationID   string
	Status           string
	IntentID         string
	IntentLabel      string
	CandidatesJSON   string // JSON array stored as text
	InteractionCount int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Solution statuses.
const (
	SolutionPending    = "pending"
	SolutionInProgress = "in_progress"
	SolutionResolved   = "resolved"
	SolutionEscalated  = "escalated"
)

type CaseSolution struct {
	ID                  string
	DemandID            string
	ConversationID      string
	IntentID            string
	Status              string
	InteractionCount    int
	CollectedInputsJSON string // JSON object stored as text
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Action statuses.
const (
	ActionNotStarted = "not_started"
	ActionInProgress = "in_progress"
	ActionCompleted  = "completed"
	ActionSkipped    = "skipped"
	ActionEscalated  = "escalated"
)

type CaseAction struct {
	ID             string
	SolutionID     string
	Sequence       int
	Name           string
	ActionType     string
	Description    string
	Message        string
	Instructions   string
	VariationsJSON string // JSON array stored as text
	Status         string
	AwaitingInput  string
	Result         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Done reports whether the action no longer blocks its successors.
func (a CaseAction) Done() bool {
	return a.Status == ActionCompleted || a.Status == ActionSkipped
}

// Suggestion statuses.
const (
	SuggestionCreated = "created"
	SuggestionSent    = "sent"
	SuggestionExpired = "expired"
	SuggestionFailed  = "failed"
)

type Suggestion struct {
	ID             string
	ConversationID string
	EventID        int64
	InResponseTo   int64
	Source         string
	Text           string
	Status         string
	SkipReason     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type DispatchEntry struct {
	ID             string
	ConversationID string
	EventID        int64
	Turn           int
	Agent          string
	StateBefore    string
	Decision       string
	Reason         string
	Action         string
	DetailsJSON    string
	CreatedAt      time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
