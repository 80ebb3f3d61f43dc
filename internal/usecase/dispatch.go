package usecase

import (
	"context"
	"fmt"
	"time"

	"ragflow/internal/domain"
)

// Dispatcher routes inbound trigger events to their pipelines. Events are
// validated here, before any run or step exists, so malformed payloads never
// leave a half-started run behind.
type Dispatcher struct {
	ingest     *IngestPipeline
	query      *QueryPipeline
	waitBudget time.Duration
}

func NewDispatcher(ingest *IngestPipeline, query *QueryPipeline, waitBudget time.Duration) *Dispatcher {
	if waitBudget <= 0 {
		waitBudget = time.Minute
	}
	return &Dispatcher{ingest: ingest, query: query, waitBudget: waitBudget}
}

// Dispatch runs the pipeline for the event to completion and returns its
// result: domain.IngestResult for ingest events, domain.QueryResult for
// query events. Independent dispatches may run concurrently; they share
// only the vector store.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.Event) (any, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	switch ev := ev.(type) {
	case domain.IngestEvent:
		return d.ingest.Run(ctx, ev)
	case domain.QueryEvent:
		return d.query.Run(ctx, ev)
	default:
		return nil, fmt.Errorf("%w: unknown event type %T", domain.ErrMalformedEvent, ev)
	}
}

// Ask runs a query and waits up to the configured budget for its result.
// Exceeding the budget returns domain.ErrWaitTimeout while the run itself
// keeps going; a run failure is reported as the run's own error, not a
// timeout.
func (d *Dispatcher) Ask(ctx context.Context, ev domain.QueryEvent) (domain.QueryResult, error) {
	if err := ev.Validate(); err != nil {
		return domain.QueryResult{}, err
	}

	type outcome struct {
		result domain.QueryResult
		err    error
	}
	done := make(chan outcome, 1)

	// the run outlives this wait on purpose; it stays observable through
	// the run store
	runCtx := context.WithoutCancel(ctx)
	go func() {
		result, err := d.query.Run(runCtx, ev)
		done <- outcome{result: result, err: err}
	}()

	timer := time.NewTimer(d.waitBudget)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.result, o.err
	case <-timer.C:
		return domain.QueryResult{}, domain.ErrWaitTimeout
	case <-ctx.Done():
		return domain.QueryResult{}, ctx.Err()
	}
}
