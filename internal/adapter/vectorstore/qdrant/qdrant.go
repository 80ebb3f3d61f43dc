// Package qdrant is a minimal REST client to a Qdrant collection.
// Collections use cosine distance; search relevance is Qdrant's cosine
// similarity score (higher is better).
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ragflow/internal/domain"
)

type Store struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStore(cfg Config) *Store {
	url := cfg.URL
	if url == "" {
		url = "http://localhost:6333"
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "docs"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Store{
		url:        url,
		apiKey:     cfg.APIKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// EnsureCollection creates the collection with cosine distance if it does
// not exist. An existing collection is left as-is regardless of its
// dimension; a mismatch surfaces from Qdrant at upsert or search time.
func (s *Store) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension %d must be positive", domain.ErrInvalidConfig, dimension)
	}

	status, err := s.do(ctx, http.MethodGet, fmt.Sprintf("/collections/%s", s.collection), nil, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("unexpected status %d checking collection %s", status, s.collection)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	status, err = s.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", s.collection), body, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("failed to create collection %s: status %d", s.collection, status)
	}
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

	points := make([]map[string]any, len(ids))
	for i := range ids {
		points[i] = map[string]any{
			"id":     ids[i],
			"vector": vectors[i],
			"payload": map[string]any{
				"source": payloads[i].Source,
				"text":   payloads[i].Text,
			},
		}
	}

	body := map[string]any{"points": points}
	status, err := s.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", s.collection), body, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("upsert into %s failed: status %d", s.collection, status)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchHit, error) {
	if topK <= 0 {
		topK = 5
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", s.collection), body, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("search in %s failed: status %d", s.collection, status)
	}

	hits := make([]domain.SearchHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hit := domain.SearchHit{
			ID:    fmt.Sprintf("%v", r.ID),
			Score: r.Score,
		}
		if v, ok := r.Payload["source"].(string); ok {
			hit.Payload.Source = v
		}
		if v, ok := r.Payload["text"].(string); ok {
			hit.Payload.Text = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *Store) DeleteBySource(ctx context.Context, source string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "source", "match": map[string]any{"value": source}},
			},
		},
	}
	status, err := s.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", s.collection), body, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("delete by source in %s failed: status %d", s.collection, status)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/count", s.collection), map[string]any{"exact": true}, &resp)
	if err != nil {
		return 0, err
	}
	if status >= 300 {
		return 0, fmt.Errorf("count in %s failed: status %d", s.collection, status)
	}
	return resp.Result.Count, nil
}

// do issues one JSON request and decodes the response into out when given.
// The returned status lets callers treat 404 as a signal rather than an
// error.
func (s *Store) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("qdrant %s %s: decode response: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}
