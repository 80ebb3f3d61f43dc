package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.etcd.io/bbolt"

	"ragflow/internal/domain"
)

var (
	bucketPoints = []byte("points")
	bucketMeta   = []byte("collection_meta")

	keyDimension = []byte("dimension")
)

// Store is a BoltDB-backed vector store with brute-force cosine search.
// Points are kept in an in-memory cache for search speed and persisted to
// disk on every write. The collection (its buckets plus dimension) exists
// only after EnsureCollection; writes never create it implicitly.
type Store struct {
	db *bbolt.DB

	mu        sync.RWMutex
	dimension int
	points    map[string]storedPoint
}

type storedPoint struct {
	Vector  []float32      `json:"v"`
	Payload domain.Payload `json:"p"`
}

func NewStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector db: %w", err)
	}

	s := &Store{db: db, points: make(map[string]storedPoint)}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// load restores the collection cache if the collection was created earlier.
func (s *Store) load() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return nil // collection never created
		}
		if data := meta.Get(keyDimension); data != nil {
			if err := json.Unmarshal(data, &s.dimension); err != nil {
				return fmt.Errorf("corrupt collection meta: %w", err)
			}
		}

		b := tx.Bucket(bucketPoints)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var p storedPoint
			if err := json.Unmarshal(v, &p); err != nil {
				return nil // skip corrupted entries
			}
			s.points[string(k)] = p
			return nil
		})
	})
}

func (s *Store) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension %d must be positive", domain.ErrInvalidConfig, dimension)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension > 0 {
		return nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketPoints); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		data, err := json.Marshal(dimension)
		if err != nil {
			return err
		}
		return meta.Put(keyDimension, data)
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	s.dimension = dimension
	return nil
}

func (s *Store) Upsert(ctx context.Context, ids []string, vectors [][]float32, payloads []domain.Payload) error {
	if len(ids) != len(vectors) || len(ids) != len(payloads) {
		return fmt.Errorf("%w: ids=%d vectors=%d payloads=%d",
			domain.ErrArityMismatch, len(ids), len(vectors), len(payloads))
	}
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return fmt.Errorf("collection does not exist")
	}
	for _, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dimension, len(v))
		}
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPoints)
		if b == nil {
			return fmt.Errorf("points bucket not found")
		}
		for i, id := range ids {
			data, err := json.Marshal(storedPoint{Vector: vectors[i], Payload: payloads[i]})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(id), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i, id := range ids {
		s.points[id] = storedPoint{Vector: vectors[i], Payload: payloads[i]}
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchHit, error) {
	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension == 0 {
		return nil, fmt.Errorf("collection does not exist")
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", s.dimension, len(vector))
	}

	hits := make([]domain.SearchHit, 0, len(s.points))
	for id, p := range s.points {
		hits = append(hits, domain.SearchHit{
			ID:      id,
			Score:   cosineSimilarity(vector, p.Vector),
			Payload: p.Payload,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	if topK > len(hits) {
		topK = len(hits)
	}
	return hits[:topK], nil
}

func (s *Store) DeleteBySource(ctx context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return fmt.Errorf("collection does not exist")
	}

	var stale []string
	for id, p := range s.points {
		if p.Payload.Source == source {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPoints)
		if b == nil {
			return nil
		}
		for _, id := range stale {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range stale {
		delete(s.points, id)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension == 0 {
		return 0, fmt.Errorf("collection does not exist")
	}
	return len(s.points), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
