package runstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"ragflow/internal/domain"
)

// SchemaVersion is the run store's on-disk format version.
// Increment on breaking changes to the storage layout.
const SchemaVersion = 1

var (
	bucketRuns  = []byte("runs")
	bucketSteps = []byte("steps")
	bucketMeta  = []byte("meta")

	keySchemaVersion = []byte("schema_version")

	// separates run id from step name in step keys; run ids are UUIDs and
	// never contain a NUL byte
	stepKeySep = []byte{0}
)

// BoltStore persists pipeline runs and step results in a BoltDB file.
// Step records are write-once per (run id, step name), which is what makes
// retried steps replay instead of recompute.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open run db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketRuns, bucketSteps, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return checkSchema(tx)
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func checkSchema(tx *bbolt.Tx) error {
	meta := tx.Bucket(bucketMeta)
	data := meta.Get(keySchemaVersion)
	if data == nil {
		v, err := json.Marshal(SchemaVersion)
		if err != nil {
			return err
		}
		return meta.Put(keySchemaVersion, v)
	}

	var version int
	if err := json.Unmarshal(data, &version); err != nil {
		return fmt.Errorf("corrupt schema version: %w", err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("run db schema version %d is not supported (want %d); delete the db to rebuild", version, SchemaVersion)
	}
	return nil
}

func (s *BoltStore) CreateRun(run domain.Run) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b.Get([]byte(run.ID)) != nil {
			return fmt.Errorf("run already exists: %s", run.ID)
		}
		data, err := json.Marshal(run)
		if err != nil {
			return err
		}
		return b.Put([]byte(run.ID), data)
	})
}

func (s *BoltStore) GetRun(id string) (domain.Run, error) {
	var run domain.Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("run not found: %s", id)
		}
		return json.Unmarshal(data, &run)
	})
	return run, err
}

func (s *BoltStore) SetRunStatus(id string, status domain.RunStatus, runErr string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("run not found: %s", id)
		}
		var run domain.Run
		if err := json.Unmarshal(data, &run); err != nil {
			return err
		}
		if run.Status.Terminal() {
			return fmt.Errorf("run %s already terminal (%s)", id, run.Status)
		}

		run.Status = status
		run.Error = runErr
		if status.Terminal() {
			run.FinishedAt = time.Now().UTC()
		}

		updated, err := json.Marshal(run)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), updated)
	})
}

func (s *BoltStore) ListRuns() ([]domain.Run, error) {
	var runs []domain.Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			var run domain.Run
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			runs = append(runs, run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

func stepKey(runID, step string) []byte {
	key := make([]byte, 0, len(runID)+1+len(step))
	key = append(key, runID...)
	key = append(key, stepKeySep...)
	key = append(key, step...)
	return key
}

func (s *BoltStore) GetStep(runID, step string) (domain.StepRecord, bool, error) {
	var rec domain.StepRecord
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSteps).Get(stepKey(runID, step))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	return rec, found, err
}

func (s *BoltStore) PutStep(rec domain.StepRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSteps)
		key := stepKey(rec.RunID, rec.Step)
		if b.Get(key) != nil {
			// write-once: the first recorded output wins
			return nil
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

func (s *BoltStore) ListSteps(runID string) ([]domain.StepRecord, error) {
	var recs []domain.StepRecord
	prefix := stepKey(runID, "")
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketSteps).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec domain.StepRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].RecordedAt.Before(recs[j].RecordedAt)
	})
	return recs, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
