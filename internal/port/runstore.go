package port

import "ragflow/internal/domain"

// RunStore durably records pipeline runs and their step results. It is the
// persistence substrate for resumable execution: a step result, once
// recorded, is replayed instead of recomputed on retry.
type RunStore interface {
	// CreateRun records a new run in its initial status.
	CreateRun(run domain.Run) error

	// GetRun fetches a run by id.
	GetRun(id string) (domain.Run, error)

	// SetRunStatus advances a run's status. Terminal statuses set the
	// finish time; failed runs carry the error text.
	SetRunStatus(id string, status domain.RunStatus, runErr string) error

	// ListRuns returns all runs, most recently started first.
	ListRuns() ([]domain.Run, error)

	// GetStep returns the recorded output for (runID, step), if any.
	GetStep(runID, step string) (domain.StepRecord, bool, error)

	// PutStep records a step output. Records are write-once: a second put
	// for the same (runID, step) leaves the first record in place.
	PutStep(rec domain.StepRecord) error

	// ListSteps returns the recorded steps of a run in recording order.
	ListSteps(runID string) ([]domain.StepRecord, error)

	Close() error
}
