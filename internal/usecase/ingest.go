package usecase

import (
	"context"
	"log/slog"

	"ragflow/internal/domain"
	"ragflow/internal/executor"
	"ragflow/internal/port"
)

// IngestPipeline turns a source document into deterministically identified
// chunks, embeds them, and upserts them into the vector store. Each stage
// runs as a durable step: a retried run replays recorded step outputs
// instead of re-embedding or re-upserting.
type IngestPipeline struct {
	chunker  port.Chunker
	embedder port.Embedder
	store    port.VectorStore
	exec     *executor.Executor
	log      *slog.Logger
}

func NewIngestPipeline(
	chunker port.Chunker,
	embedder port.Embedder,
	store port.VectorStore,
	exec *executor.Executor,
	log *slog.Logger,
) *IngestPipeline {
	if log == nil {
		log = slog.Default()
	}
	return &IngestPipeline{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		exec:     exec,
		log:      log,
	}
}

// chunkSet is the serialized output of the load-and-chunk step.
type chunkSet struct {
	SourceID string   `json:"source_id"`
	Chunks   []string `json:"chunks"`
}

// Run executes one ingestion run for the event and reports how many chunks
// were indexed. Re-running the whole pipeline for the same source id is a
// fresh run that intentionally re-embeds and overwrites; point ids are
// stable, so overwriting replaces rather than duplicates.
func (p *IngestPipeline) Run(ctx context.Context, ev domain.IngestEvent) (domain.IngestResult, error) {
	if err := ev.Validate(); err != nil {
		return domain.IngestResult{}, err
	}

	run, err := p.exec.Begin(domain.RunIngest)
	if err != nil {
		return domain.IngestResult{}, err
	}

	result, runErr := p.execute(ctx, run.ID, ev)
	if err := p.exec.Finish(run.ID, runErr); err != nil {
		p.log.Error("failed to finish run", "run_id", run.ID, "error", err)
	}
	return result, runErr
}

func (p *IngestPipeline) execute(ctx context.Context, runID string, ev domain.IngestEvent) (domain.IngestResult, error) {
	cs, err := executor.Step(ctx, p.exec, runID, "load-and-chunk",
		func(ctx context.Context) (chunkSet, error) {
			chunks, err := p.chunker.Split(ev.Text)
			if err != nil {
				return chunkSet{}, err
			}
			return chunkSet{SourceID: ev.SourceID, Chunks: chunks}, nil
		})
	if err != nil {
		return domain.IngestResult{}, err
	}
	if err := p.exec.Advance(runID, domain.StatusChunked); err != nil {
		return domain.IngestResult{}, err
	}

	// empty content is valid: report zero indexed chunks and complete
	if len(cs.Chunks) == 0 {
		p.log.Info("source contained no text", "run_id", runID, "source", ev.SourceID)
		return domain.IngestResult{Indexed: 0}, nil
	}

	result, err := executor.Step(ctx, p.exec, runID, "embed-and-upsert",
		func(ctx context.Context) (domain.IngestResult, error) {
			return p.embedAndUpsert(ctx, runID, cs)
		})
	if err != nil {
		return domain.IngestResult{}, err
	}
	return result, nil
}

func (p *IngestPipeline) embedAndUpsert(ctx context.Context, runID string, cs chunkSet) (domain.IngestResult, error) {
	vectors, err := p.embedder.Embed(ctx, cs.Chunks)
	if err != nil {
		return domain.IngestResult{}, domain.Dependency("embed", err)
	}
	if err := p.exec.Advance(runID, domain.StatusEmbedded); err != nil {
		return domain.IngestResult{}, err
	}

	ids := make([]string, len(cs.Chunks))
	payloads := make([]domain.Payload, len(cs.Chunks))
	for i, text := range cs.Chunks {
		ids[i] = domain.PointID(cs.SourceID, i)
		payloads[i] = domain.Payload{Source: cs.SourceID, Text: text}
	}

	if err := p.store.EnsureCollection(ctx, p.embedder.Dimension()); err != nil {
		return domain.IngestResult{}, domain.Dependency("vector-store", err)
	}
	// drop the previous version of this source first so a shrinking
	// re-ingestion leaves no stale points at higher indices
	if err := p.store.DeleteBySource(ctx, cs.SourceID); err != nil {
		return domain.IngestResult{}, domain.Dependency("vector-store", err)
	}
	if err := p.store.Upsert(ctx, ids, vectors, payloads); err != nil {
		return domain.IngestResult{}, domain.Dependency("vector-store", err)
	}
	if err := p.exec.Advance(runID, domain.StatusUpserted); err != nil {
		return domain.IngestResult{}, err
	}

	return domain.IngestResult{Indexed: len(cs.Chunks)}, nil
}
