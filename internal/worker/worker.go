// Package worker drains process_event jobs from the SQLite queue and runs one
// orchestrator turn per job.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/caseflow/internal/orchestrator"
	"github.com/kalambet/caseflow/internal/storage"
	"golang.org/x/sync/errgroup"
)

// JobType is the queue type of turn jobs.
const JobType = "process_event"

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(job storage.Job) error
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	AbandonJob(id string, errMsg string) error
}

// EventProcessor runs a turn for a stored event.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, eventID int64) (orchestrator.Result, error)
}

type eventPayload struct {
	EventID        int64  `json:"event_id"`
	ConversationID string `json:"conversation_id"`
}

// Enqueue schedules a turn for the event and returns the job id. Enqueuing
// the same event twice is harmless: the orchestrator's claim lets only one of
// the jobs act.
func Enqueue(store JobStore, conversationID string, eventID int64) (string, error) {
	payload, err := json.Marshal(eventPayload{EventID: eventID, ConversationID: conversationID})
	if err != nil {
		return "", err
	}
	job := storage.Job{ID: uuid.NewString(), Type: JobType, PayloadJSON: string(payload)}
	if err := store.EnqueueJob(job); err != nil {
		return "", fmt.Errorf("enqueuing event %d: %w", eventID, err)
	}
	return job.ID, nil
}

// Worker processes process_event jobs.
type Worker struct {
	store       JobStore
	proc        EventProcessor
	poll        time.Duration
	concurrency int
	logger      *slog.Logger
}

// New creates a Worker. If pollInterval is <= 0 it defaults to 500ms; if
// concurrency is <= 0 it defaults to 1.
func New(store JobStore, proc EventProcessor, pollInterval time.Duration, concurrency int) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		store:       store,
		proc:        proc,
		poll:        pollInterval,
		concurrency: concurrency,
		logger:      slog.Default().With("component", "worker"),
	}
}

// Run polls for jobs with the configured number of loops until ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			w.loop(ctx)
			return nil
		})
	}
	g.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job. It returns true if a job was
// processed, whether or not the turn succeeded. Failures before the event is
// claimed are retried with backoff; a turn that failed after claiming its
// event is marked failed at once.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	res, err := w.processJob(ctx, job)
	switch {
	case err != nil && res.Outcome == orchestrator.OutcomeFailed:
		// The turn claimed its event, so a retry would be ignored as already
		// processed. The next customer event picks the conversation up again.
		w.logger.Error("turn failed after claim", "job_id", job.ID, "reason", res.Reason, "error", err)
		if abandonErr := w.store.AbandonJob(job.ID, err.Error()); abandonErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", abandonErr)
		}
		return true, nil
	case err != nil:
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) (orchestrator.Result, error) {
	var payload eventPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return orchestrator.Result{}, fmt.Errorf("parsing payload: %w", err)
	}
	if payload.EventID <= 0 {
		return orchestrator.Result{}, fmt.Errorf("payload has no event id")
	}

	res, err := w.proc.ProcessEvent(ctx, payload.EventID)
	if err != nil {
		return res, fmt.Errorf("processing event %d: %w", payload.EventID, err)
	}
	w.logger.Debug("job done", "job_id", job.ID, "event_id", payload.EventID, "outcome", res.Outcome, "reason", res.Reason)
	return res, nil
}
