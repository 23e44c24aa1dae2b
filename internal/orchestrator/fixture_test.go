package orchestrator

import (
	"context"
	"log/slog"
	"testing"

	"github.com/kalambet/caseflow/internal/decision"
	"github.com/kalambet/caseflow/internal/search"
	"github.com/kalambet/caseflow/internal/state"
	"github.com/kalambet/caseflow/internal/storage"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	convID = "conv-1"
	extID  = "ext-1"
)

type mockMessenger struct{ mock.Mock }

func (m *mockMessenger) SendMessage(ctx context.Context, conversationID, text string) (string, error) {
	args := m.Called(ctx, conversationID, text)
	return args.String(0), args.Error(1)
}

func (m *mockMessenger) TransferToHuman(ctx context.Context, conversationID, reason string) error {
	return m.Called(ctx, conversationID, reason).Error(0)
}

// sent returns the texts delivered so far, in order.
func (m *mockMessenger) sent() []string {
	var out []string
	for _, c := range m.Calls {
		if c.Method == "SendMessage" {
			out = append(out, c.Arguments.String(2))
		}
	}
	return out
}

func (m *mockMessenger) transfers() []string {
	var out []string
	for _, c := range m.Calls {
		if c.Method == "TransferToHuman" {
			out = append(out, c.Arguments.String(2))
		}
	}
	return out
}

type fakeSearcher struct {
	candidates []search.Candidate
	findErr    error
	plans      map[string]*search.Plan

	finds   int
	fetches int
}

func (f *fakeSearcher) FindCandidates(ctx context.Context, q search.Query) ([]search.Candidate, error) {
	f.finds++
	return f.candidates, f.findErr
}

func (f *fakeSearcher) GetSolution(ctx context.Context, intentID string) (*search.Plan, error) {
	f.fetches++
	p, ok := f.plans[intentID]
	if !ok {
		return nil, search.ErrNoPlan
	}
	return p, nil
}

type fakeDecider struct {
	demand     decision.DemandDecision
	closer     decision.CloserDecision
	closerErr  error
	composed   string
	composeErr error

	calls  int
	briefs []decision.Brief
}

func (f *fakeDecider) Demand(ctx context.Context, c decision.Context, candidates []search.Candidate) decision.DemandDecision {
	f.calls++
	return f.demand
}

func (f *fakeDecider) Closer(ctx context.Context, c decision.Context) (decision.CloserDecision, error) {
	f.calls++
	return f.closer, f.closerErr
}

func (f *fakeDecider) Compose(ctx context.Context, c decision.Context, b decision.Brief) (string, error) {
	f.calls++
	f.briefs = append(f.briefs, b)
	return f.composed, f.composeErr
}

type fixture struct {
	t        *testing.T
	store    *storage.Store
	searcher *fakeSearcher
	decider  *fakeDecider
	msg      *mockMessenger
	orch     *Orchestrator
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	st, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.UpsertConversation(storage.Conversation{
		ID:               convID,
		ExternalID:       extID,
		HandlerID:        "caseflow",
		HandlerName:      "Caseflow",
		AutopilotEnabled: true,
		ProductContext:   "billing",
		CustomerProfile:  `{"plan":"pro"}`,
	}))

	f := &fixture{
		t:        t,
		store:    st,
		searcher: &fakeSearcher{plans: map[string]*search.Plan{}},
		decider:  &fakeDecider{},
		msg:      &mockMessenger{},
	}
	f.orch = New(st, f.searcher, f.decider, f.msg, cfg)
	return f
}

func (f *fixture) sendOK() {
	f.msg.On("SendMessage", mock.Anything, extID, mock.Anything).Return("msg-1", nil)
}

func (f *fixture) transferOK() {
	f.msg.On("TransferToHuman", mock.Anything, extID, mock.Anything).Return(nil)
}

func (f *fixture) say(author, text string) int64 {
	f.t.Helper()
	id, err := f.store.SaveEvent(storage.Event{ConversationID: convID, AuthorType: author, Content: text})
	require.NoError(f.t, err)
	return id
}

func (f *fixture) customerSays(text string) int64 {
	return f.say(storage.AuthorCustomer, text)
}

// startAt claims an earlier event and puts the conversation in the given phase.
func (f *fixture) startAt(status state.Status, owner state.Owner) {
	f.t.Helper()
	id := f.customerSays("earlier message")
	ok, err := f.store.TryClaimEvent(convID, id, nil)
	require.NoError(f.t, err)
	require.True(f.t, ok)
	require.NoError(f.t, f.store.UpdateState(convID, storage.StateUpdate{Status: status, Owner: owner}, nil))
}

func (f *fixture) resolvedDemand(intentID string) storage.CaseDemand {
	f.t.Helper()
	d := storage.CaseDemand{ID: "demand-1", ConversationID: convID}
	require.NoError(f.t, f.store.CreateDemand(d))
	require.NoError(f.t, f.store.ResolveDemand(d.ID, intentID, "Refund"))
	d, err := f.store.GetDemand(d.ID)
	require.NoError(f.t, err)
	return d
}

func (f *fixture) process(eventID int64) (Result, error) {
	return f.orch.ProcessEvent(context.Background(), eventID)
}

func (f *fixture) state() storage.OrchestratorState {
	f.t.Helper()
	st, err := f.store.GetOrchestratorState(convID)
	require.NoError(f.t, err)
	return st
}

// turnFor builds the context a dispatch would see for eventID.
func (f *fixture) turnFor(ev storage.Event) *turnContext {
	f.t.Helper()
	conv, err := f.store.GetConversation(convID)
	require.NoError(f.t, err)
	st, _ := f.store.GetOrchestratorState(convID)
	return &turnContext{event: ev, conv: conv, claimed: st, current: st, turn: 1, log: slog.Default()}
}

func planOf(actions ...search.PlanAction) *search.Plan {
	for i := range actions {
		actions[i].Sequence = i + 1
		if actions[i].Name == "" {
			actions[i].Name = actions[i].Type
		}
	}
	return &search.Plan{ID: "plan-1", Name: "Refund", Actions: actions}
}
