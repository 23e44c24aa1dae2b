package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/caseflow/internal/decision"
	"github.com/kalambet/caseflow/internal/orchestrator"
	"github.com/kalambet/caseflow/internal/search"
	"github.com/kalambet/caseflow/internal/storage"
)

type mockProcessor struct {
	mu     sync.Mutex
	events []int64
	res    orchestrator.Result
	err    error
}

func (m *mockProcessor) ProcessEvent(_ context.Context, eventID int64) (orchestrator.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, eventID)
	if m.res.Outcome == "" && m.err == nil {
		return orchestrator.Result{Outcome: orchestrator.OutcomeProcessed}, nil
	}
	return m.res, m.err
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func jobCount(t *testing.T, s *storage.Store, status string) int {
	t.Helper()
	counts, err := s.JobCounts()
	if err != nil {
		t.Fatalf("JobCounts: %v", err)
	}
	return counts[status]
}

func TestWorker_ProcessesJob(t *testing.T) {
	store := openTestStore(t)
	if _, err := Enqueue(store, "conv-1", 42); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	proc := &mockProcessor{}
	w := New(store, proc, 0, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}
	if len(proc.events) != 1 || proc.events[0] != 42 {
		t.Errorf("processed events = %v, want [42]", proc.events)
	}
	if n := jobCount(t, store, "completed"); n != 1 {
		t.Errorf("completed jobs = %d, want 1", n)
	}
}

func TestWorker_NoJob(t *testing.T) {
	w := New(openTestStore(t), &mockProcessor{}, 0, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if didWork {
		t.Error("RunOnce returned true on an empty queue")
	}
}

func TestWorker_FailedTurnIsRetried(t *testing.T) {
	store := openTestStore(t)
	if _, err := Enqueue(store, "conv-1", 7); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	w := New(store, &mockProcessor{err: errors.New("database is locked")}, 0, 0)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	if n := jobCount(t, store, "pending"); n != 1 {
		t.Errorf("pending jobs = %d, want 1 (scheduled for retry)", n)
	}
	if n := jobCount(t, store, "completed"); n != 0 {
		t.Errorf("completed jobs = %d, want 0", n)
	}
}

func TestWorker_ClaimedTurnFailureIsNotRetried(t *testing.T) {
	store := openTestStore(t)
	if _, err := Enqueue(store, "conv-1", 7); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	proc := &mockProcessor{
		res: orchestrator.Result{Outcome: orchestrator.OutcomeFailed, Reason: "solution requires a human"},
		err: fmt.Errorf("escalating: %w", orchestrator.ErrTransferFailed),
	}
	w := New(store, proc, 0, 0)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	if n := jobCount(t, store, "failed"); n != 1 {
		t.Errorf("failed jobs = %d, want 1", n)
	}
	if n := jobCount(t, store, "pending"); n != 0 {
		t.Errorf("pending jobs = %d, want 0 (no retry after the claim)", n)
	}
}

func TestWorker_BadPayloadFails(t *testing.T) {
	store := openTestStore(t)
	if err := store.EnqueueJob(storage.Job{ID: "bad", Type: JobType, PayloadJSON: `{"event_id":0}`, MaxAttempts: 1}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	proc := &mockProcessor{}
	w := New(store, proc, 0, 0)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if len(proc.events) != 0 {
		t.Errorf("processor called with %v", proc.events)
	}
	if n := jobCount(t, store, "failed"); n != 1 {
		t.Errorf("failed jobs = %d, want 1", n)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	if _, err := Enqueue(store, "conv-1", 1); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	proc := &mockProcessor{}
	w := New(store, proc, 10*time.Millisecond, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for jobCount(t, store, "completed") == 0 {
		select {
		case <-deadline:
			t.Fatal("job was not processed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// Orchestrator collaborators for the end-to-end duplicate delivery test.

type countingDecider struct {
	mu    sync.Mutex
	calls int
}

func (d *countingDecider) Demand(context.Context, decision.Context, []search.Candidate) decision.DemandDecision {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	return decision.NeedsClarification{Question: "Which order?"}
}

func (d *countingDecider) Closer(context.Context, decision.Context) (decision.CloserDecision, error) {
	return decision.CloserDecision{}, nil
}

func (d *countingDecider) Compose(context.Context, decision.Context, decision.Brief) (string, error) {
	return "", nil
}

type staticSearcher struct{}

func (staticSearcher) FindCandidates(context.Context, search.Query) ([]search.Candidate, error) {
	return []search.Candidate{{ID: "refund"}, {ID: "cancel"}}, nil
}

func (staticSearcher) GetSolution(context.Context, string) (*search.Plan, error) {
	return nil, search.ErrNoPlan
}

type countingMessenger struct {
	mu   sync.Mutex
	sent []string
}

func (m *countingMessenger) SendMessage(_ context.Context, _, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, text)
	return "msg", nil
}

func (m *countingMessenger) TransferToHuman(context.Context, string, string) error { return nil }

func TestWorker_DuplicateJobsRunOneTurn(t *testing.T) {
	store := openTestStore(t)
	if err := store.UpsertConversation(storage.Conversation{ID: "conv-1", HandlerID: "caseflow", AutopilotEnabled: true}); err != nil {
		t.Fatalf("UpsertConversation: %v", err)
	}
	id, err := store.SaveEvent(storage.Event{ConversationID: "conv-1", AuthorType: storage.AuthorCustomer, Content: "my order is late"})
	if err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := Enqueue(store, "conv-1", id); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	decider := &countingDecider{}
	messenger := &countingMessenger{}
	orch := orchestrator.New(store, staticSearcher{}, decider, messenger, orchestrator.Config{})
	w := New(store, orch, 0, 0)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.RunOnce(context.Background()); err != nil {
				t.Errorf("RunOnce: %v", err)
			}
		}()
	}
	wg.Wait()

	if decider.calls != 1 {
		t.Errorf("decider called %d times, want 1", decider.calls)
	}
	if len(messenger.sent) != 1 {
		t.Errorf("sent %d messages, want 1", len(messenger.sent))
	}
	if n := jobCount(t, store, "completed"); n != 3 {
		t.Errorf("completed jobs = %d, want 3", n)
	}
}
