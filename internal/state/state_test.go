package state

import (
	"errors"
	"testing"
)

func TestIsValidOwnerTransition(t *testing.T) {
	tests := []struct {
		from, to Owner
		want     bool
	}{
		{OwnerNone, OwnerDemandFinder, true},
		{OwnerDemandFinder, OwnerSolutionProvider, true},
		{OwnerSolutionProvider, OwnerCloser, true},
		{OwnerCloser, OwnerDemandFinder, true},
		{OwnerDemandFinder, OwnerNone, true},
		{OwnerSolutionProvider, OwnerNone, true},
		{OwnerCloser, OwnerNone, true},
		{OwnerCloser, OwnerCloser, true},
		{OwnerNone, OwnerNone, true},
		{OwnerNone, OwnerSolutionProvider, false},
		{OwnerNone, OwnerCloser, false},
		{OwnerDemandFinder, OwnerCloser, false},
		{OwnerSolutionProvider, OwnerDemandFinder, false},
		{OwnerCloser, OwnerSolutionProvider, false},
	}
	for _, tt := range tests {
		if got := IsValidOwnerTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("IsValidOwnerTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCheckInvariant(t *testing.T) {
	ok := []struct {
		s Status
		o Owner
	}{
		{StatusNew, OwnerNone},
		{StatusFindingDemand, OwnerDemandFinder},
		{StatusProvidingSolution, OwnerSolutionProvider},
		{StatusFinalizing, OwnerCloser},
		{StatusClosed, OwnerNone},
		{StatusEscalated, OwnerNone},
	}
	for _, c := range ok {
		if err := CheckInvariant(c.s, c.o); err != nil {
			t.Errorf("CheckInvariant(%s, %s) = %v, want nil", c.s, c.o, err)
		}
	}

	bad := []struct {
		s Status
		o Owner
	}{
		{StatusClosed, OwnerCloser},
		{StatusEscalated, OwnerDemandFinder},
		{StatusFindingDemand, OwnerNone},
		{StatusNew, OwnerDemandFinder},
	}
	for _, c := range bad {
		if err := CheckInvariant(c.s, c.o); !errors.Is(err, ErrInvariant) {
			t.Errorf("CheckInvariant(%s, %s) = %v, want ErrInvariant", c.s, c.o, err)
		}
	}
}

func TestParseStatusAndOwner(t *testing.T) {
	if _, err := ParseStatus("bogus"); err == nil {
		t.Error("ParseStatus(bogus) returned nil error")
	}
	if s, err := ParseStatus("finalizing"); err != nil || s != StatusFinalizing {
		t.Errorf("ParseStatus(finalizing) = %q, %v", s, err)
	}
	if o, err := ParseOwner(""); err != nil || o != OwnerNone {
		t.Errorf("ParseOwner(\"\") = %q, %v", o, err)
	}
	if _, err := ParseOwner("robot"); err == nil {
		t.Error("ParseOwner(robot) returned nil error")
	}
}

func TestStatusPredicates(t *testing.T) {
	if !StatusClosed.IsTerminal() || !StatusEscalated.IsTerminal() {
		t.Error("closed and escalated must be terminal")
	}
	if StatusFinalizing.IsTerminal() {
		t.Error("finalizing must not be terminal")
	}
	if StatusNew.InProgress() {
		t.Error("new must not be in progress")
	}
}
