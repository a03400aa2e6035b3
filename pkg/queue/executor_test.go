package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codehive/swarmd/pkg/config"
	"github.com/codehive/swarmd/pkg/events"
	"github.com/codehive/swarmd/pkg/evidence"
	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/orchestrator"
	"github.com/codehive/swarmd/pkg/prompt"
	"github.com/codehive/swarmd/pkg/store/memory"
	"github.com/codehive/swarmd/pkg/ticket"
)

// noopGit satisfies worktree.GitRunner without touching a repository.
type noopGit struct{}

func (noopGit) Run(context.Context, string, ...string) (string, error) { return "", nil }

type stubHistory struct {
	history    []prompt.Exchange
	historyErr error

	mu      sync.Mutex
	appends [][3]string
}

func (h *stubHistory) History(context.Context, string) ([]prompt.Exchange, error) {
	return h.history, h.historyErr
}

func (h *stubHistory) Append(_ context.Context, sessionID, promptText, answer string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appends = append(h.appends, [3]string{sessionID, promptText, answer})
	return nil
}

func (h *stubHistory) appended() [][3]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][3]string(nil), h.appends...)
}

func mockSettings() config.Settings {
	s := *config.DefaultSettings()
	s.EnabledProviders = []string{config.MockProviderName}
	s.MaxRuntimeSeconds = 10
	s.MaxRetries = 0
	s.RetryDelayMS = 1
	s.WorktreeIsolation = false
	return s
}

func newPipelineExecutor(t *testing.T, settings func() config.Settings, sessions HistorySource) *PipelineExecutor {
	t.Helper()
	st := memory.New()
	tm := ticket.NewManager(st, ticket.Options{})
	orch := orchestrator.New(orchestrator.Deps{
		Registry: config.NewProviderRegistry(config.BuiltinProviders()),
		Tickets:  tm,
		Evidence: evidence.NewLedger(st, noopGit{}, tm),
		Logger:   testLogger(),
	})
	return &PipelineExecutor{
		Orchestrator: orch,
		Settings:     settings,
		Sessions:     sessions,
		Logger:       testLogger(),
	}
}

func chatJob(id, sessionID, promptText string) *models.Job {
	now := time.Now()
	return &models.Job{
		ID:        id,
		SessionID: sessionID,
		Prompt:    promptText,
		Mode:      models.ModeChat,
		Status:    models.JobStateRunning,
		CreatedAt: now,
		StartedAt: &now,
	}
}

func TestPipelineExecutorRunsChatJob(t *testing.T) {
	hist := &stubHistory{}
	exec := newPipelineExecutor(t, mockSettings, hist)

	result, err := exec.Execute(context.Background(), chatJob("job-1", "sess-1", "Say hello"), events.NopEmitter{})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Contains(t, result.FinalOutput, "[mock agent]")
	assert.Contains(t, result.FinalOutput, "Say hello")
	require.Len(t, result.Agents, 1)

	appends := hist.appended()
	require.Len(t, appends, 1)
	assert.Equal(t, "sess-1", appends[0][0])
	assert.Equal(t, "Say hello", appends[0][1])
	assert.Equal(t, result.FinalOutput, appends[0][2])
}

func TestPipelineExecutorThreadsHistory(t *testing.T) {
	hist := &stubHistory{history: []prompt.Exchange{
		{Prompt: "what is the capital of France", Answer: "Paris"},
	}}
	exec := newPipelineExecutor(t, mockSettings, hist)

	result, err := exec.Execute(context.Background(), chatJob("job-1", "sess-1", "and of Spain?"), events.NopEmitter{})
	require.NoError(t, err)
	// The mock transcript carries the full built prompt, so threaded
	// history must appear in it.
	assert.Contains(t, result.FinalOutput, "what is the capital of France")
	assert.Contains(t, result.FinalOutput, "and of Spain?")
}

func TestPipelineExecutorToleratesHistoryFailure(t *testing.T) {
	hist := &stubHistory{historyErr: errors.New("session store down")}
	exec := newPipelineExecutor(t, mockSettings, hist)

	result, err := exec.Execute(context.Background(), chatJob("job-1", "sess-1", "Say hello"), events.NopEmitter{})
	require.NoError(t, err)
	assert.Contains(t, result.FinalOutput, "Say hello")
}

func TestPipelineExecutorSkipsHistoryWithoutSession(t *testing.T) {
	hist := &stubHistory{}
	exec := newPipelineExecutor(t, mockSettings, hist)

	_, err := exec.Execute(context.Background(), chatJob("job-1", "", "Say hello"), events.NopEmitter{})
	require.NoError(t, err)
	assert.Empty(t, hist.appended())
}

func TestPipelineExecutorScheduledOriginInRefusal(t *testing.T) {
	strict := func() config.Settings {
		s := mockSettings()
		s.Guardrail.MinConfidence = 75
		return s
	}
	exec := newPipelineExecutor(t, strict, nil)

	job := chatJob("job-1", "", "Say hello")
	job.Origin = models.PipelineContextScheduled

	result, err := exec.Execute(context.Background(), job, events.NopEmitter{})
	require.NoError(t, err, "guardrail refusals are successful runs")

	var payload models.RefusalPayload
	require.NoError(t, json.Unmarshal([]byte(result.FinalOutput), &payload))
	assert.Equal(t, models.RefusalPayloadType, payload.Type)
	assert.Equal(t, models.PipelineContextScheduled, payload.Context.Pipeline)
}

func TestPipelineExecutorSnapshotsSettingsPerJob(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	counting := func() config.Settings {
		mu.Lock()
		calls++
		mu.Unlock()
		return mockSettings()
	}
	exec := newPipelineExecutor(t, counting, nil)

	ctx := context.Background()
	_, err := exec.Execute(ctx, chatJob("job-1", "", "first"), events.NopEmitter{})
	require.NoError(t, err)
	_, err = exec.Execute(ctx, chatJob("job-2", "", "second"), events.NopEmitter{})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestPipelineExecutorCancellation(t *testing.T) {
	exec := newPipelineExecutor(t, mockSettings, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := exec.Execute(ctx, chatJob("job-1", "", "Say hello"), events.NopEmitter{})
	require.Error(t, err)
	var pe *orchestrator.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, orchestrator.CategoryCancelled, pe.Category)
	require.NotNil(t, result, "cancelled runs still return a result shell")
}
