package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragflow/internal/adapter/chunker"
	"ragflow/internal/adapter/runstore"
	vecmem "ragflow/internal/adapter/vectorstore/memory"
	"ragflow/internal/domain"
	"ragflow/internal/executor"
)

func newDispatcher(t *testing.T, llm *stubLLM, waitBudget time.Duration) (*Dispatcher, *vecmem.Store) {
	t.Helper()
	ch, err := chunker.NewWindowChunker(1000, 200)
	require.NoError(t, err)

	store := vecmem.NewStore()
	emb := &stubEmbedder{}
	exec := executor.New(runstore.NewMemoryStore(), quietLogger())
	ingest := NewIngestPipeline(ch, emb, store, exec, quietLogger())
	query := NewQueryPipeline(emb, store, llm, exec, quietLogger())
	return NewDispatcher(ingest, query, waitBudget), store
}

func TestDispatch_RoutesIngestEvents(t *testing.T) {
	d, store := newDispatcher(t, &stubLLM{answer: "ok"}, time.Second)

	out, err := d.Dispatch(context.Background(), domain.IngestEvent{
		SourceID: "doc",
		Text:     strings.Repeat("a", 2500),
	})
	require.NoError(t, err)

	result, ok := out.(domain.IngestResult)
	require.True(t, ok, "ingest events yield an IngestResult")
	assert.Equal(t, 3, result.Indexed)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestDispatch_RoutesQueryEvents(t *testing.T) {
	d, _ := newDispatcher(t, &stubLLM{answer: "the answer"}, time.Second)
	ctx := context.Background()

	_, err := d.Dispatch(ctx, domain.IngestEvent{SourceID: "doc", Text: "relevant fact"})
	require.NoError(t, err)

	out, err := d.Dispatch(ctx, domain.QueryEvent{Question: "what is the fact?"})
	require.NoError(t, err)

	result, ok := out.(domain.QueryResult)
	require.True(t, ok, "query events yield a QueryResult")
	assert.Equal(t, "the answer", result.Answer)
	assert.Equal(t, 1, result.NumContexts)
}

func TestDispatch_RejectsMalformedEvents(t *testing.T) {
	d, _ := newDispatcher(t, &stubLLM{}, time.Second)
	ctx := context.Background()

	_, err := d.Dispatch(ctx, domain.IngestEvent{Text: "no source"})
	assert.ErrorIs(t, err, domain.ErrMalformedEvent)

	_, err = d.Dispatch(ctx, domain.QueryEvent{})
	assert.ErrorIs(t, err, domain.ErrMalformedEvent)
}

func TestAsk_ReturnsResultWithinBudget(t *testing.T) {
	d, _ := newDispatcher(t, &stubLLM{answer: "fast"}, time.Second)

	result, err := d.Ask(context.Background(), domain.QueryEvent{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "fast", result.Answer)
}

func TestAsk_ExceedingBudgetIsWaitTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	d, _ := newDispatcher(t, &stubLLM{answer: "slow", block: block}, 20*time.Millisecond)

	_, err := d.Ask(context.Background(), domain.QueryEvent{Question: "q"})
	require.ErrorIs(t, err, domain.ErrWaitTimeout)
}

func TestAsk_RunFailureIsNotATimeout(t *testing.T) {
	d, _ := newDispatcher(t, &stubLLM{fail: assert.AnError}, time.Second)

	_, err := d.Ask(context.Background(), domain.QueryEvent{Question: "q"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrWaitTimeout)

	var dep *domain.DependencyError
	assert.ErrorAs(t, err, &dep)
}

func TestAsk_CanceledCallerStopsWaiting(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	d, _ := newDispatcher(t, &stubLLM{answer: "never", block: block}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := d.Ask(ctx, domain.QueryEvent{Question: "q"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestAsk_ValidatesBeforeStarting(t *testing.T) {
	d, _ := newDispatcher(t, &stubLLM{}, time.Second)

	_, err := d.Ask(context.Background(), domain.QueryEvent{})
	require.ErrorIs(t, err, domain.ErrMalformedEvent)
}
