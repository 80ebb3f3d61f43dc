package port

import (
	"context"

	"ragflow/internal/domain"
)

// VectorStore is a named, persistent nearest-neighbor index over
// (id, vector, payload) points.
type VectorStore interface {
	// EnsureCollection creates the store's collection with the given
	// dimension if it does not exist. Idempotent; an existing collection is
	// left untouched even if its dimension differs (surfaced at write or
	// search time instead). Writes never create a collection implicitly.
	EnsureCollection(ctx context.Context, dimension int) error

	// Upsert inserts or replaces points. ids, vectors, and payloads are
	// parallel slices of equal length; unequal lengths fail with
	// domain.ErrArityMismatch and no partial write. An empty batch is a
	// no-op. After a successful return, a Search through this store
	// observes the new state.
	Upsert(ctx context.Context, ids []string, vectors [][]float32, payloads []domain.Payload) error

	// Search returns up to topK points ordered by descending cosine
	// similarity, with stable tie order across repeated calls. It returns
	// an empty result, not an error, when the collection holds fewer than
	// topK points.
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchHit, error)

	// DeleteBySource removes every point whose payload source matches.
	// Deleting an absent source is a no-op.
	DeleteBySource(ctx context.Context, source string) error

	// Count returns the number of points in the collection.
	Count(ctx context.Context) (int, error)
}
