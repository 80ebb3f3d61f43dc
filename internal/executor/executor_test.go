package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragflow/internal/adapter/runstore"
	"ragflow/internal/domain"
)

func newTestExecutor() *Executor {
	return New(runstore.NewMemoryStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStepMemoization(t *testing.T) {
	ex := newTestExecutor()
	run, err := ex.Begin(domain.RunIngest)
	require.NoError(t, err)

	calls := 0
	compute := func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	}

	first, err := Step(context.Background(), ex, run.ID, "expensive", compute)
	require.NoError(t, err)
	assert.Equal(t, 42, first)
	assert.Equal(t, 1, calls)

	// retry replays the recorded output without recomputing
	second, err := Step(context.Background(), ex, run.ID, "expensive", compute)
	require.NoError(t, err)
	assert.Equal(t, 42, second)
	assert.Equal(t, 1, calls, "recorded step must not recompute")
}

func TestStepFailureIsRetryable(t *testing.T) {
	ex := newTestExecutor()
	run, err := ex.Begin(domain.RunQuery)
	require.NoError(t, err)

	boom := errors.New("embedding service unavailable")
	calls := 0
	flaky := func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", domain.Dependency("embed", boom)
		}
		return "ok", nil
	}

	_, err = Step(context.Background(), ex, run.ID, "embed-and-search", flaky)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var depErr *domain.DependencyError
	assert.ErrorAs(t, err, &depErr)

	// a failed attempt records nothing, so the retry executes
	out, err := Step(context.Background(), ex, run.ID, "embed-and-search", flaky)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, calls)
}

func TestStepIdentityIsPerRun(t *testing.T) {
	ex := newTestExecutor()
	runA, err := ex.Begin(domain.RunIngest)
	require.NoError(t, err)
	runB, err := ex.Begin(domain.RunIngest)
	require.NoError(t, err)

	calls := 0
	compute := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}

	outA, err := Step(context.Background(), ex, runA.ID, "load-and-chunk", compute)
	require.NoError(t, err)
	outB, err := Step(context.Background(), ex, runB.ID, "load-and-chunk", compute)
	require.NoError(t, err)

	assert.Equal(t, 1, outA)
	assert.Equal(t, 2, outB, "a fresh run re-executes the step")
}

func TestStepStructuredOutput(t *testing.T) {
	ex := newTestExecutor()
	run, err := ex.Begin(domain.RunQuery)
	require.NoError(t, err)

	want := domain.SearchContext{
		Contexts: []string{"ctx one", "ctx two"},
		Sources:  []string{"doc1"},
	}

	got, err := Step(context.Background(), ex, run.ID, "embed-and-search",
		func(ctx context.Context) (domain.SearchContext, error) {
			return want, nil
		})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// replay round-trips through the serialized record
	replayed, err := Step(context.Background(), ex, run.ID, "embed-and-search",
		func(ctx context.Context) (domain.SearchContext, error) {
			t.Fatal("must not recompute")
			return domain.SearchContext{}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, want, replayed)
}

func TestStepHonorsCancellation(t *testing.T) {
	ex := newTestExecutor()
	run, err := ex.Begin(domain.RunIngest)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Step(ctx, ex, run.ID, "load-and-chunk", func(ctx context.Context) (int, error) {
		t.Fatal("cancelled run must not issue further steps")
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFinish(t *testing.T) {
	ex := newTestExecutor()

	run, err := ex.Begin(domain.RunIngest)
	require.NoError(t, err)
	require.NoError(t, ex.Finish(run.ID, nil))

	got, err := ex.Store().GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)

	failed, err := ex.Begin(domain.RunQuery)
	require.NoError(t, err)
	require.NoError(t, ex.Finish(failed.ID, errors.New("qdrant down")))

	got, err = ex.Store().GetRun(failed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "qdrant down")
}
