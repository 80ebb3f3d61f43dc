// Package executor provides durable, memoized step execution for pipeline
// runs. Each step's output is recorded in a RunStore keyed by (run id, step
// name) before the next step starts; re-invoking a recorded step replays the
// stored output instead of recomputing, so steps may be retried without
// repeating their effects.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ragflow/internal/domain"
	"ragflow/internal/port"
)

type Executor struct {
	store port.RunStore
	log   *slog.Logger
}

func New(store port.RunStore, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{store: store, log: log}
}

// Begin creates a new run in the received state and returns it.
func (e *Executor) Begin(kind domain.RunKind) (domain.Run, error) {
	run := domain.Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    domain.StatusReceived,
		StartedAt: time.Now().UTC(),
	}
	if err := e.store.CreateRun(run); err != nil {
		return domain.Run{}, fmt.Errorf("failed to create run: %w", err)
	}
	e.log.Info("run started", "run_id", run.ID, "kind", run.Kind)
	return run, nil
}

// Advance moves a run to a non-terminal status.
func (e *Executor) Advance(runID string, status domain.RunStatus) error {
	return e.store.SetRunStatus(runID, status, "")
}

// Finish marks a run terminal: completed when runErr is nil, failed
// otherwise.
func (e *Executor) Finish(runID string, runErr error) error {
	if runErr != nil {
		e.log.Error("run failed", "run_id", runID, "error", runErr)
		return e.store.SetRunStatus(runID, domain.StatusFailed, runErr.Error())
	}
	e.log.Info("run completed", "run_id", runID)
	return e.store.SetRunStatus(runID, domain.StatusCompleted, "")
}

// Store exposes the underlying run store for inspection.
func (e *Executor) Store() port.RunStore { return e.store }

// Step executes fn under the memoization contract for (runID, name). If an
// output is already recorded, it is returned without invoking fn. A failed fn
// records nothing, leaving the step eligible for retry. Concurrent duplicate
// invocations all observe the first recorded output.
func Step[T any](ctx context.Context, e *Executor, runID, name string, fn func(context.Context) (T, error)) (T, error) {
	var out T

	rec, found, err := e.store.GetStep(runID, name)
	if err != nil {
		return out, fmt.Errorf("failed to read step %s: %w", name, err)
	}
	if found {
		if err := json.Unmarshal(rec.Output, &out); err != nil {
			return out, fmt.Errorf("failed to decode recorded step %s: %w", name, err)
		}
		e.log.Info("step replayed", "run_id", runID, "step", name, "status", "memoized")
		return out, nil
	}

	if err := ctx.Err(); err != nil {
		return out, err
	}

	start := time.Now()
	out, err = fn(ctx)
	if err != nil {
		e.log.Error("step failed", "run_id", runID, "step", name,
			"status", "failed", "duration", time.Since(start), "error", err)
		return out, fmt.Errorf("step %s: %w", name, err)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return out, fmt.Errorf("failed to encode step %s output: %w", name, err)
	}
	if err := e.store.PutStep(domain.StepRecord{
		RunID:      runID,
		Step:       name,
		Output:     data,
		RecordedAt: time.Now().UTC(),
	}); err != nil {
		return out, fmt.Errorf("failed to record step %s: %w", name, err)
	}

	// Re-read so a concurrent duplicate invocation and this one agree on
	// the single recorded output.
	rec, found, err = e.store.GetStep(runID, name)
	if err != nil || !found {
		return out, fmt.Errorf("failed to read back step %s: %w", name, err)
	}
	if err := json.Unmarshal(rec.Output, &out); err != nil {
		return out, fmt.Errorf("failed to decode step %s: %w", name, err)
	}

	e.log.Info("step completed", "run_id", runID, "step", name,
		"status", "completed", "duration", time.Since(start))
	return out, nil
}
