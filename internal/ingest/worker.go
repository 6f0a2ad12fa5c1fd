// Package ingest runs queued background work, currently the enrichment of
// thoughts created by conversation imports.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/mirror/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// ThoughtEnricher enriches a stored thought and persists the result.
type ThoughtEnricher interface {
	EnrichThought(ctx context.Context, thoughtID string) (storage.Enriched, error)
}

// Worker processes enrich_thought jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	enricher ThoughtEnricher
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, enricher ThoughtEnricher, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:    store,
		enricher: enricher,
		poll:     pollInterval,
		logger:   logger,
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
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

// RunOnce claims and processes a single enrich_thought job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{storage.JobEnrichThought})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
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

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload storage.EnrichThoughtPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.ThoughtID == "" {
		return errors.New("payload has no thought_id")
	}

	out, err := w.enricher.EnrichThought(ctx, payload.ThoughtID)
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted before its turn came; nothing left to enrich.
		w.logger.Info("skipping enrichment of deleted thought", "thought_id", payload.ThoughtID)
		return nil
	}
	if errors.Is(err, storage.ErrAlreadyEnriched) {
		// An earlier attempt wrote the enrichment but failed to complete the job.
		w.logger.Info("thought already enriched", "thought_id", payload.ThoughtID)
		return nil
	}
	if err != nil {
		return err
	}

	w.logger.Debug("thought enriched", "thought_id", payload.ThoughtID, "tags", len(out.Tags), "links", len(out.Links))
	return nil
}
