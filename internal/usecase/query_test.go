package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragflow/internal/adapter/runstore"
	vecmem "ragflow/internal/adapter/vectorstore/memory"
	"ragflow/internal/domain"
	"ragflow/internal/executor"
)

func newQueryPipeline(t *testing.T, emb *stubEmbedder, store *vecmem.Store, llm *stubLLM) (*QueryPipeline, *executor.Executor) {
	t.Helper()
	exec := executor.New(runstore.NewMemoryStore(), quietLogger())
	return NewQueryPipeline(emb, store, llm, exec, quietLogger()), exec
}

// seedStore fills the store with points carrying distinct vectors so search
// ordering is predictable.
func seedStore(t *testing.T, store *vecmem.Store, texts map[string]string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.EnsureCollection(ctx, 3))

	ids := make([]string, 0, len(texts))
	vectors := make([][]float32, 0, len(texts))
	payloads := make([]domain.Payload, 0, len(texts))
	i := 0
	for source, text := range texts {
		ids = append(ids, domain.PointID(source, 0))
		vectors = append(vectors, []float32{float32(len(text)), float32(i + 1), 1})
		payloads = append(payloads, domain.Payload{Source: source, Text: text})
		i++
	}
	require.NoError(t, store.Upsert(ctx, ids, vectors, payloads))
}

func TestQueryRun_RetrievesContextAndAnswers(t *testing.T) {
	emb := &stubEmbedder{}
	store := vecmem.NewStore()
	llm := &stubLLM{answer: "  Paris is the capital.  "}
	seedStore(t, store, map[string]string{
		"geo/france.txt":  "Paris is the capital of France.",
		"geo/germany.txt": "Berlin is the capital of Germany.",
		"geo/italy.txt":   "Rome is the capital of Italy.",
		"geo/spain.txt":   "Madrid is the capital of Spain.",
		"geo/japan.txt":   "Tokyo is the capital of Japan.",
	})
	p, exec := newQueryPipeline(t, emb, store, llm)

	result, err := p.Run(context.Background(), domain.QueryEvent{
		Question: "What is the capital of France?",
		TopK:     2,
	})
	require.NoError(t, err)

	assert.Equal(t, "Paris is the capital.", result.Answer, "answer must be trimmed")
	assert.LessOrEqual(t, result.NumContexts, 2)
	assert.Greater(t, result.NumContexts, 0)
	assert.Len(t, result.Sources, result.NumContexts)
	assert.True(t, sortedStrings(result.Sources))

	assert.Equal(t, 1, llm.calls)
	assert.Contains(t, llm.prompt, "What is the capital of France?")
	assert.Contains(t, llm.prompt, "- ", "contexts are rendered as bullets")

	runs, err := exec.Store().ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.StatusCompleted, runs[0].Status)

	steps, err := exec.Store().ListSteps(runs[0].ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "embed-and-search", steps[0].Step)
	assert.Equal(t, "llm-generate", steps[1].Step)
}

func sortedStrings(ss []string) bool {
	for i := 1; i < len(ss); i++ {
		if ss[i-1] > ss[i] {
			return false
		}
	}
	return true
}

func TestQueryRun_PromptCarriesRetrievedContexts(t *testing.T) {
	emb := &stubEmbedder{}
	store := vecmem.NewStore()
	llm := &stubLLM{answer: "ok"}
	seedStore(t, store, map[string]string{
		"a.txt": "the sky is blue",
		"b.txt": "grass is green",
	})
	p, _ := newQueryPipeline(t, emb, store, llm)

	result, err := p.Run(context.Background(), domain.QueryEvent{Question: "What color?", TopK: 2})
	require.NoError(t, err)
	require.Equal(t, 2, result.NumContexts)

	assert.Contains(t, llm.prompt, "- the sky is blue")
	assert.Contains(t, llm.prompt, "- grass is green")
	assert.Contains(t, llm.prompt, "Question: What color?")
	assert.Equal(t, []string{"a.txt", "b.txt"}, result.Sources)
}

func TestQueryRun_ZeroContextsStillAnswers(t *testing.T) {
	emb := &stubEmbedder{}
	store := vecmem.NewStore()
	require.NoError(t, store.EnsureCollection(context.Background(), 3))
	llm := &stubLLM{answer: "I do not have enough information."}
	p, _ := newQueryPipeline(t, emb, store, llm)

	result, err := p.Run(context.Background(), domain.QueryEvent{Question: "Anything?"})
	require.NoError(t, err)

	assert.Equal(t, "I do not have enough information.", result.Answer)
	assert.Equal(t, 0, result.NumContexts)
	assert.NotNil(t, result.Sources)
	assert.Empty(t, result.Sources)
	assert.Equal(t, 1, llm.calls, "generation runs even with no context")
}

func TestQueryRun_DefaultTopK(t *testing.T) {
	emb := &stubEmbedder{}
	store := vecmem.NewStore()
	llm := &stubLLM{answer: "ok"}
	seedStore(t, store, map[string]string{
		"a": "alpha", "b": "beta", "c": "gamma",
		"d": "delta", "e": "epsilon", "f": "zeta", "g": "eta",
	})
	p, _ := newQueryPipeline(t, emb, store, llm)

	result, err := p.Run(context.Background(), domain.QueryEvent{Question: "letters?", TopK: 0})
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, result.NumContexts)
}

func TestQueryRun_EmptyQuestionRejected(t *testing.T) {
	p, exec := newQueryPipeline(t, &stubEmbedder{}, vecmem.NewStore(), &stubLLM{})

	_, err := p.Run(context.Background(), domain.QueryEvent{})
	require.ErrorIs(t, err, domain.ErrMalformedEvent)

	runs, err := exec.Store().ListRuns()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestQueryRun_LLMFailureFailsRun(t *testing.T) {
	emb := &stubEmbedder{}
	store := vecmem.NewStore()
	require.NoError(t, store.EnsureCollection(context.Background(), 3))
	llm := &stubLLM{fail: errors.New("quota exceeded")}
	p, exec := newQueryPipeline(t, emb, store, llm)

	_, err := p.Run(context.Background(), domain.QueryEvent{Question: "q"})
	require.Error(t, err)

	var dep *domain.DependencyError
	require.ErrorAs(t, err, &dep)
	assert.Equal(t, "generate", dep.Op)

	runs, err := exec.Store().ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.StatusFailed, runs[0].Status)
}

func TestQueryExecute_RetrySkipsSearchAndGeneration(t *testing.T) {
	emb := &stubEmbedder{}
	store := vecmem.NewStore()
	llm := &stubLLM{answer: "answer"}
	seedStore(t, store, map[string]string{"doc": "some context"})
	p, exec := newQueryPipeline(t, emb, store, llm)
	ctx := context.Background()

	run, err := exec.Begin(domain.RunQuery)
	require.NoError(t, err)

	ev := domain.QueryEvent{Question: "q"}
	first, err := p.execute(ctx, run.ID, ev)
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, 1, llm.calls)

	second, err := p.execute(ctx, run.ID, ev)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, emb.calls, "recorded search must not re-embed")
	assert.Equal(t, 1, llm.calls, "recorded generation must not call the model again")
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt([]string{"first fact", "second fact"}, "What happened?")

	assert.True(t, strings.HasPrefix(prompt, "Use the following context to answer the question."))
	assert.Contains(t, prompt, "- first fact")
	assert.Contains(t, prompt, "- second fact")
	assert.Contains(t, prompt, "Question: What happened?")
	assert.True(t, strings.HasSuffix(prompt, "Answer concisely using the context above."))

	empty := BuildPrompt(nil, "q")
	assert.Contains(t, empty, "Context:\n\n")
	assert.Contains(t, empty, "Question: q")
}
