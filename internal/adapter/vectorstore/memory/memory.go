package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"ragflow/internal/domain"
)

// Store is an in-memory vector store using brute-force cosine similarity.
// Collection creation is explicit: writes and searches fail until
// EnsureCollection has run, mirroring the behavior of the remote stores.
type Store struct {
	mu        sync.RWMutex
	created   bool
	dimension int
	points    map[string]point
}

type point struct {
	vector  []float32
	payload domain.Payload
}

func NewStore() *Store {
	return &Store{points: make(map[string]point)}
}

func (s *Store) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension %d must be positive", domain.ErrInvalidConfig, dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		// idempotent; an existing collection keeps its dimension
		return nil
	}
	s.created = true
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
	if !s.created {
		return fmt.Errorf("collection does not exist")
	}
	for _, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dimension, len(v))
		}
	}
	for i, id := range ids {
		s.points[id] = point{vector: vectors[i], payload: payloads[i]}
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchHit, error) {
	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.created {
		return nil, fmt.Errorf("collection does not exist")
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", s.dimension, len(vector))
	}

	hits := make([]domain.SearchHit, 0, len(s.points))
	for id, p := range s.points {
		hits = append(hits, domain.SearchHit{
			ID:      id,
			Score:   cosineSimilarity(vector, p.vector),
			Payload: p.payload,
		})
	}

	// ties break on id so repeated searches over the same data agree
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
	if !s.created {
		return fmt.Errorf("collection does not exist")
	}
	for id, p := range s.points {
		if p.payload.Source == source {
			delete(s.points, id)
		}
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.created {
		return 0, fmt.Errorf("collection does not exist")
	}
	return len(s.points), nil
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
