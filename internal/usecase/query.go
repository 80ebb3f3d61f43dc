package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"ragflow/internal/domain"
	"ragflow/internal/executor"
	"ragflow/internal/port"
)

// DefaultTopK is used when a query event carries no positive top-k.
const DefaultTopK = 5

// QueryPipeline embeds a question, retrieves nearest-neighbor context, and
// asks the language model for an answer grounded in it.
type QueryPipeline struct {
	embedder port.Embedder
	store    port.VectorStore
	llm      port.LLM
	exec     *executor.Executor
	log      *slog.Logger
}

func NewQueryPipeline(
	embedder port.Embedder,
	store port.VectorStore,
	llm port.LLM,
	exec *executor.Executor,
	log *slog.Logger,
) *QueryPipeline {
	if log == nil {
		log = slog.Default()
	}
	return &QueryPipeline{
		embedder: embedder,
		store:    store,
		llm:      llm,
		exec:     exec,
		log:      log,
	}
}

// Run executes one query run. Zero retrieved contexts is not a failure:
// generation still runs with an empty context block and the model is relied
// upon to say it lacks information.
func (p *QueryPipeline) Run(ctx context.Context, ev domain.QueryEvent) (domain.QueryResult, error) {
	if err := ev.Validate(); err != nil {
		return domain.QueryResult{}, err
	}

	run, err := p.exec.Begin(domain.RunQuery)
	if err != nil {
		return domain.QueryResult{}, err
	}

	result, runErr := p.execute(ctx, run.ID, ev)
	if err := p.exec.Finish(run.ID, runErr); err != nil {
		p.log.Error("failed to finish run", "run_id", run.ID, "error", err)
	}
	return result, runErr
}

func (p *QueryPipeline) execute(ctx context.Context, runID string, ev domain.QueryEvent) (domain.QueryResult, error) {
	topK := ev.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	found, err := executor.Step(ctx, p.exec, runID, "embed-and-search",
		func(ctx context.Context) (domain.SearchContext, error) {
			return p.embedAndSearch(ctx, ev.Question, topK)
		})
	if err != nil {
		return domain.QueryResult{}, err
	}
	if err := p.exec.Advance(runID, domain.StatusContextRetrieved); err != nil {
		return domain.QueryResult{}, err
	}

	prompt := BuildPrompt(found.Contexts, ev.Question)

	answer, err := executor.Step(ctx, p.exec, runID, "llm-generate",
		func(ctx context.Context) (string, error) {
			out, err := p.llm.Complete(ctx, prompt)
			if err != nil {
				return "", domain.Dependency("generate", err)
			}
			return out, nil
		})
	if err != nil {
		return domain.QueryResult{}, err
	}
	if err := p.exec.Advance(runID, domain.StatusAnswered); err != nil {
		return domain.QueryResult{}, err
	}

	return domain.QueryResult{
		Answer:      strings.TrimSpace(answer),
		Sources:     found.Sources,
		NumContexts: len(found.Contexts),
	}, nil
}

func (p *QueryPipeline) embedAndSearch(ctx context.Context, question string, topK int) (domain.SearchContext, error) {
	vectors, err := p.embedder.Embed(ctx, []string{question})
	if err != nil {
		return domain.SearchContext{}, domain.Dependency("embed", err)
	}
	if len(vectors) != 1 {
		return domain.SearchContext{}, domain.Dependency("embed",
			fmt.Errorf("expected 1 vector, got %d", len(vectors)))
	}

	hits, err := p.store.Search(ctx, vectors[0], topK)
	if err != nil {
		return domain.SearchContext{}, domain.Dependency("vector-store", err)
	}

	found := domain.SearchContext{
		Contexts: make([]string, 0, len(hits)),
		Sources:  []string{},
	}
	seen := make(map[string]bool)
	for _, hit := range hits {
		if hit.Payload.Text == "" {
			continue
		}
		found.Contexts = append(found.Contexts, hit.Payload.Text)
		if hit.Payload.Source != "" && !seen[hit.Payload.Source] {
			seen[hit.Payload.Source] = true
			found.Sources = append(found.Sources, hit.Payload.Source)
		}
	}
	sort.Strings(found.Sources)
	return found, nil
}

// BuildPrompt assembles the grounding prompt: the retrieved contexts as a
// bulleted block, the question, and an instruction to answer concisely from
// the given context only. Pure and deterministic, so it needs no durable
// step of its own.
func BuildPrompt(contexts []string, question string) string {
	bullets := make([]string, len(contexts))
	for i, c := range contexts {
		bullets[i] = "- " + c
	}
	contextBlock := strings.Join(bullets, "\n\n")

	return "Use the following context to answer the question.\n\n" +
		"Context:\n" + contextBlock + "\n\n" +
		"Question: " + question + "\n" +
		"Answer concisely using the context above."
}
