package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codehive/swarmd/pkg/config"
	"github.com/codehive/swarmd/pkg/events"
	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubExecutor records claims and delegates to fn; without fn it completes
// immediately with a fixed result.
type stubExecutor struct {
	mu   sync.Mutex
	seen []string
	fn   func(ctx context.Context, job *models.Job, emitter events.Emitter) (*models.SwarmResult, error)
}

func (e *stubExecutor) Execute(ctx context.Context, job *models.Job, emitter events.Emitter) (*models.SwarmResult, error) {
	e.mu.Lock()
	e.seen = append(e.seen, job.ID)
	e.mu.Unlock()
	if e.fn != nil {
		return e.fn(ctx, job, emitter)
	}
	return &models.SwarmResult{FinalOutput: "ok", Confidence: 80, ValidationPassed: true}, nil
}

func (e *stubExecutor) claims() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.seen...)
}

// blockUntilCancelled parks the job until its context dies, like a real
// pipeline honoring cancellation.
func blockUntilCancelled(ctx context.Context, _ *models.Job, _ events.Emitter) (*models.SwarmResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		MaxConcurrentJobs:       2,
		PollInterval:            10 * time.Millisecond,
		PollIntervalJitter:      5 * time.Millisecond,
		JobTimeout:              5 * time.Second,
		GracefulShutdownTimeout: 5 * time.Second,
	}
}

func jobStatus(t *testing.T, st *memory.Store, id string) models.JobState {
	t.Helper()
	job, err := st.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job.Status
}

func TestWorkerPoolProcessesJobs(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m := NewManager(st, nil)
	exec := &stubExecutor{}
	pool := NewWorkerPool(st, testQueueConfig(), exec, nil)

	ids := make([]string, 0, 3)
	for _, prompt := range []string{"first", "second", "third"} {
		job, err := m.Enqueue(ctx, prompt, models.ModeChat, "")
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	require.Eventually(t, func() bool {
		for _, id := range ids {
			if jobStatus(t, st, id) != models.JobStateCompleted {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	job, err := st.GetJob(ctx, ids[0])
	require.NoError(t, err)
	require.NotNil(t, job.Result)
	assert.Equal(t, "ok", job.Result.FinalOutput)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, "done", job.CurrentStage)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.Error)

	assert.ElementsMatch(t, ids, exec.claims())
}

func TestWorkerPoolCancelRunningJob(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m := NewManager(st, nil)
	exec := &stubExecutor{fn: blockUntilCancelled}
	pool := NewWorkerPool(st, testQueueConfig(), exec, nil)
	m.BindCanceller(pool)

	job, err := m.Enqueue(ctx, "never finishes", models.ModeSwarm, "")
	require.NoError(t, err)

	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	// Wait until a worker owns the job so cancellation takes the
	// context path rather than the direct mark.
	require.Eventually(t, func() bool {
		return pool.Health(ctx).ActiveJobs == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, err = m.Cancel(ctx, job.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return jobStatus(t, st, job.ID) == models.JobStateCancelled
	}, 5*time.Second, 10*time.Millisecond)

	stored, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Error)
	assert.NotNil(t, stored.CompletedAt)
}

func TestWorkerPoolJobTimeout(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m := NewManager(st, nil)
	cfg := testQueueConfig()
	cfg.JobTimeout = 50 * time.Millisecond
	exec := &stubExecutor{fn: blockUntilCancelled}
	pool := NewWorkerPool(st, cfg, exec, nil)

	job, err := m.Enqueue(ctx, "too slow", models.ModeSwarm, "")
	require.NoError(t, err)

	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	require.Eventually(t, func() bool {
		return jobStatus(t, st, job.ID) == models.JobStateFailed
	}, 5*time.Second, 10*time.Millisecond)

	stored, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.Error, "timed out")
}

func TestWorkerPoolExecutorFailure(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m := NewManager(st, nil)
	exec := &stubExecutor{fn: func(context.Context, *models.Job, events.Emitter) (*models.SwarmResult, error) {
		return &models.SwarmResult{FinalOutput: "partial"}, errors.New("provider exploded")
	}}
	pool := NewWorkerPool(st, testQueueConfig(), exec, nil)

	job, err := m.Enqueue(ctx, "doomed", models.ModeChat, "")
	require.NoError(t, err)

	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	require.Eventually(t, func() bool {
		return jobStatus(t, st, job.ID) == models.JobStateFailed
	}, 5*time.Second, 10*time.Millisecond)

	stored, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "provider exploded", stored.Error)
	// Partial output is kept for inspection.
	require.NotNil(t, stored.Result)
	assert.Equal(t, "partial", stored.Result.FinalOutput)
}

func TestWorkerPoolStartResetsRunning(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	started := time.Now()
	require.NoError(t, st.PutJob(ctx, &models.Job{
		ID:        "orphan-1",
		Prompt:    "interrupted by restart",
		Mode:      models.ModeChat,
		Status:    models.JobStateRunning,
		CreatedAt: started,
		StartedAt: &started,
	}))

	exec := &stubExecutor{}
	pool := NewWorkerPool(st, testQueueConfig(), exec, nil)
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	require.Eventually(t, func() bool {
		return jobStatus(t, st, "orphan-1") == models.JobStateCompleted
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"orphan-1"}, exec.claims())
}

func TestWorkerPoolStopWaitsForActiveJob(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m := NewManager(st, nil)
	exec := &stubExecutor{fn: func(ctx context.Context, _ *models.Job, _ events.Emitter) (*models.SwarmResult, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
			return &models.SwarmResult{FinalOutput: "slow but done"}, nil
		}
	}}
	pool := NewWorkerPool(st, testQueueConfig(), exec, nil)

	job, err := m.Enqueue(ctx, "slow job", models.ModeChat, "")
	require.NoError(t, err)

	require.NoError(t, pool.Start(ctx))
	require.Eventually(t, func() bool {
		return pool.Health(ctx).ActiveJobs == 1
	}, 5*time.Second, 10*time.Millisecond)

	pool.Stop()

	assert.Equal(t, models.JobStateCompleted, jobStatus(t, st, job.ID))
}

func TestWorkerPoolStopCancelsAfterGrace(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m := NewManager(st, nil)
	cfg := testQueueConfig()
	cfg.GracefulShutdownTimeout = 50 * time.Millisecond
	exec := &stubExecutor{fn: blockUntilCancelled}
	pool := NewWorkerPool(st, cfg, exec, nil)

	job, err := m.Enqueue(ctx, "hangs past shutdown", models.ModeSwarm, "")
	require.NoError(t, err)

	require.NoError(t, pool.Start(ctx))
	require.Eventually(t, func() bool {
		return pool.Health(ctx).ActiveJobs == 1
	}, 5*time.Second, 10*time.Millisecond)

	pool.Stop()

	assert.Equal(t, models.JobStateCancelled, jobStatus(t, st, job.ID))
}

func TestWorkerPoolHealth(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m := NewManager(st, nil)

	pool := NewWorkerPool(st, testQueueConfig(), &stubExecutor{}, nil)
	health := pool.Health(ctx)
	assert.False(t, health.IsHealthy, "pool without workers is not healthy")
	assert.Zero(t, health.TotalWorkers)

	for i := 0; i < 3; i++ {
		_, err := m.Enqueue(ctx, "queued", models.ModeChat, "")
		require.NoError(t, err)
	}

	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	require.Eventually(t, func() bool {
		processed := 0
		for _, ws := range pool.Health(ctx).WorkerStats {
			processed += ws.JobsProcessed
		}
		return processed == 3
	}, 5*time.Second, 10*time.Millisecond)

	health = pool.Health(ctx)
	assert.True(t, health.IsHealthy)
	assert.Equal(t, 2, health.TotalWorkers)
	assert.Equal(t, 0, health.QueueDepth)
	require.Len(t, health.WorkerStats, 2)
}

func TestTerminalState(t *testing.T) {
	live := context.Background()
	expired, cancelExpired := context.WithTimeout(context.Background(), -time.Second)
	defer cancelExpired()
	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()

	result := &models.SwarmResult{FinalOutput: "ok"}

	tests := []struct {
		name       string
		ctx        context.Context
		result     *models.SwarmResult
		err        error
		wantState  models.JobState
		wantErrSub string
	}{
		{"success", live, result, nil, models.JobStateCompleted, ""},
		{"nil result without error", live, nil, nil, models.JobStateFailed, "no result"},
		{"plain failure", live, nil, errors.New("boom"), models.JobStateFailed, "boom"},
		{"job deadline", expired, nil, context.DeadlineExceeded, models.JobStateFailed, "timed out"},
		{"job context cancelled", cancelled, nil, context.Canceled, models.JobStateCancelled, ""},
		{"wrapped cancellation with live context", live, nil,
			&testWrapErr{context.Canceled}, models.JobStateCancelled, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, msg := terminalState(tt.ctx, tt.result, tt.err)
			assert.Equal(t, tt.wantState, state)
			if tt.wantErrSub == "" {
				assert.Empty(t, msg)
			} else {
				assert.Contains(t, msg, tt.wantErrSub)
			}
		})
	}
}

type testWrapErr struct{ inner error }

func (e *testWrapErr) Error() string { return "run aborted: " + e.inner.Error() }
func (e *testWrapErr) Unwrap() error { return e.inner }

func TestProgressSink(t *testing.T) {
	ctx := context.Background()

	t.Run("updates progress and stage", func(t *testing.T) {
		st := memory.New()
		started := time.Now()
		require.NoError(t, st.PutJob(ctx, &models.Job{
			ID:        "job-1",
			Prompt:    "p",
			Status:    models.JobStateRunning,
			CreatedAt: started,
			StartedAt: &started,
		}))

		sink := &progressSink{store: st, jobID: "job-1", logger: testLogger()}
		sink.JobProgress("", 40, "code")

		job, err := st.GetJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, 40, job.Progress)
		assert.Equal(t, "code", job.CurrentStage)
	})

	t.Run("leaves terminal jobs alone", func(t *testing.T) {
		st := memory.New()
		done := time.Now()
		require.NoError(t, st.PutJob(ctx, &models.Job{
			ID:           "job-2",
			Prompt:       "p",
			Status:       models.JobStateCancelled,
			Progress:     30,
			CurrentStage: "plan",
			CreatedAt:    done,
			CompletedAt:  &done,
		}))

		sink := &progressSink{store: st, jobID: "job-2", logger: testLogger()}
		sink.JobProgress("job-2", 90, "synthesize")

		job, err := st.GetJob(ctx, "job-2")
		require.NoError(t, err)
		assert.Equal(t, 30, job.Progress)
		assert.Equal(t, "plan", job.CurrentStage)
	})

	t.Run("tolerates unknown jobs", func(t *testing.T) {
		sink := &progressSink{store: memory.New(), jobID: "ghost", logger: testLogger()}
		assert.NotPanics(t, func() { sink.JobProgress("", 10, "research") })
	})
}
