package runstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"ragflow/internal/domain"
)

// MemoryStore is an in-memory RunStore for tests and ephemeral runs. It
// honors the same write-once step semantics as the Bolt-backed store.
type MemoryStore struct {
	mu    sync.RWMutex
	runs  map[string]domain.Run
	steps map[string]domain.StepRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:  make(map[string]domain.Run),
		steps: make(map[string]domain.StepRecord),
	}
}

func memStepKey(runID, step string) string {
	return runID + "\x00" + step
}

func (s *MemoryStore) CreateRun(run domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run already exists: %s", run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(id string) (domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return domain.Run{}, fmt.Errorf("run not found: %s", id)
	}
	return run, nil
}

func (s *MemoryStore) SetRunStatus(id string, status domain.RunStatus, runErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run not found: %s", id)
	}
	if run.Status.Terminal() {
		return fmt.Errorf("run %s already terminal (%s)", id, run.Status)
	}
	run.Status = status
	run.Error = runErr
	if status.Terminal() {
		run.FinishedAt = time.Now().UTC()
	}
	s.runs[id] = run
	return nil
}

func (s *MemoryStore) ListRuns() ([]domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]domain.Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

func (s *MemoryStore) GetStep(runID, step string) (domain.StepRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.steps[memStepKey(runID, step)]
	return rec, ok, nil
}

func (s *MemoryStore) PutStep(rec domain.StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memStepKey(rec.RunID, rec.Step)
	if _, ok := s.steps[key]; ok {
		return nil
	}
	s.steps[key] = rec
	return nil
}

func (s *MemoryStore) ListSteps(runID string) ([]domain.StepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var recs []domain.StepRecord
	for _, rec := range s.steps {
		if rec.RunID == runID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].RecordedAt.Before(recs[j].RecordedAt)
	})
	return recs, nil
}

func (s *MemoryStore) Close() error { return nil }
