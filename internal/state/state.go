// Package state defines the per-conversation orchestration phases and the
// legal ownership handoffs between agents.
package state

import (
	"errors"
	"fmt"
)

// Status is the orchestration phase of a conversation.
type Status string

const (
	StatusNew               Status = "new"
	StatusFindingDemand     Status = "finding_demand"
	StatusProvidingSolution Status = "providing_solution"
	StatusFinalizing        Status = "finalizing"
	StatusClosed            Status = "closed"
	StatusEscalated         Status = "escalated"
)

// Owner is the agent currently responsible for a conversation.
// The zero value OwnerNone means no agent owns it.
type Owner string

const (
	OwnerNone             Owner = ""
	OwnerDemandFinder     Owner = "demand_finder"
	OwnerSolutionProvider Owner = "solution_provider"
	OwnerCloser           Owner = "closer"
)

var (
	// ErrInvalidTransition is returned when strict transition checking rejects
	// an owner handoff that is not in the legal graph.
	ErrInvalidTransition = errors.New("invalid owner transition")

	// ErrInvariant is returned when a status/owner pair would break the
	// "owner set iff in progress" rule.
	ErrInvariant = errors.New("state invariant violated")
)

// ParseStatus converts a stored string into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusNew, StatusFindingDemand, StatusProvidingSolution, StatusFinalizing, StatusClosed, StatusEscalated:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// ParseOwner converts a stored string into an Owner. Empty means none.
func ParseOwner(s string) (Owner, error) {
	switch o := Owner(s); o {
	case OwnerNone, OwnerDemandFinder, OwnerSolutionProvider, OwnerCloser:
		return o, nil
	}
	return "", fmt.Errorf("unknown owner %q", s)
}

// IsTerminal reports whether no further automated work happens in this phase.
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusEscalated
}

// InProgress reports whether an agent must own the conversation in this phase.
func (s Status) InProgress() bool {
	switch s {
	case StatusFindingDemand, StatusProvidingSolution, StatusFinalizing:
		return true
	}
	return false
}

func (o Owner) String() string {
	if o == OwnerNone {
		return "none"
	}
	return string(o)
}

// IsValidOwnerTransition reports whether handing ownership from one agent to
// another is part of the legal graph:
//
//	none              -> demand_finder
//	demand_finder     -> solution_provider
//	solution_provider -> closer
//	closer            -> demand_finder
//	any               -> none
//	any               -> itself
func IsValidOwnerTransition(from, to Owner) bool {
	if from == to || to == OwnerNone {
		return true
	}
	switch from {
	case OwnerNone:
		return to == OwnerDemandFinder
	case OwnerDemandFinder:
		return to == OwnerSolutionProvider
	case OwnerSolutionProvider:
		return to == OwnerCloser
	case OwnerCloser:
		return to == OwnerDemandFinder
	}
	return false
}

// CheckInvariant returns ErrInvariant when owner and status disagree.
func CheckInvariant(status Status, owner Owner) error {
	if status.InProgress() != (owner != OwnerNone) {
		return fmt.Errorf("%w: status %s with owner %s", ErrInvariant, status, owner)
	}
	return nil
}
