package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"ragflow/internal/domain"
	"ragflow/internal/port"
)

var _ port.VectorStore = (*Store)(nil)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "vectors.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertRequiresCollection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Upsert(ctx, []string{"a"}, [][]float32{{1, 0}}, []domain.Payload{{Source: "doc1"}})
	if err == nil {
		t.Fatal("upsert before EnsureCollection should fail")
	}

	// but an empty upsert stays a no-op
	if err := s.Upsert(ctx, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
}

func TestUpsertArityMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.EnsureCollection(ctx, 2); err != nil {
		t.Fatal(err)
	}

	err := s.Upsert(ctx, []string{"a"}, [][]float32{{1, 0}, {0, 1}}, []domain.Payload{{}})
	if !errors.Is(err, domain.ErrArityMismatch) {
		t.Fatalf("expected ErrArityMismatch, got %v", err)
	}
	n, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("failed upsert must not write, got %d points", n)
	}
}

func TestPointsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	ctx := context.Background()

	s, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureCollection(ctx, 2); err != nil {
		t.Fatal(err)
	}
	ids := []string{domain.PointID("doc1", 0), domain.PointID("doc1", 1)}
	vectors := [][]float32{{1, 0}, {0, 1}}
	payloads := []domain.Payload{{Source: "doc1", Text: "a"}, {Source: "doc1", Text: "b"}}
	if err := s.Upsert(ctx, ids, vectors, payloads); err != nil {
		t.Fatal(err)
	}
	s.Close()

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	n, err := reopened.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 points after reopen, got %d", n)
	}

	hits, err := reopened.Search(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].Payload.Text != "a" {
		t.Errorf("expected closest point 'a', got %q", hits[0].Payload.Text)
	}
}

func TestReingestReplacesAndShrinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.EnsureCollection(ctx, 2); err != nil {
		t.Fatal(err)
	}

	// first version of doc1: three chunks
	ids := []string{domain.PointID("doc1", 0), domain.PointID("doc1", 1), domain.PointID("doc1", 2)}
	vectors := [][]float32{{1, 0}, {0, 1}, {1, 1}}
	payloads := []domain.Payload{
		{Source: "doc1", Text: "v1 c0"}, {Source: "doc1", Text: "v1 c1"}, {Source: "doc1", Text: "v1 c2"},
	}
	if err := s.Upsert(ctx, ids, vectors, payloads); err != nil {
		t.Fatal(err)
	}

	// second version shrinks to one chunk: stale points removed first
	if err := s.DeleteBySource(ctx, "doc1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx,
		[]string{domain.PointID("doc1", 0)},
		[][]float32{{0.5, 0.5}},
		[]domain.Payload{{Source: "doc1", Text: "v2 c0"}},
	); err != nil {
		t.Fatal(err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("store should hold exactly the second ingestion's chunk count, got %d", n)
	}

	hits, err := s.Search(ctx, []float32{0.5, 0.5}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Payload.Text != "v2 c0" {
		t.Errorf("expected only v2 content, got %+v", hits)
	}
}

func TestSearchEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.EnsureCollection(ctx, 3); err != nil {
		t.Fatal(err)
	}

	hits, err := s.Search(ctx, []float32{1, 0, 0}, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}
