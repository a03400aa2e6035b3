package e2e

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codehive/swarmd/pkg/api"
	"github.com/codehive/swarmd/pkg/models"
)

func TestHealthEndpoint(t *testing.T) {
	app := NewTestApp(t)

	var health api.HealthResponse
	code := app.getJSON("/api/v1/health", &health)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", health.Status)
}

func TestChatJobOverHTTP(t *testing.T) {
	app := NewTestApp(t)

	id := app.SubmitJob("Hello World", models.ModeChat)
	job := app.WaitForJob(id, 10*time.Second)

	assert.Equal(t, models.JobStateCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.Result)
	assert.Contains(t, job.Result.FinalOutput, "Hello World")
	assert.Equal(t, 50, job.Result.Confidence)
	assert.True(t, job.Result.ValidationPassed)
	require.Len(t, job.Result.Agents, 1)
	assert.Equal(t, models.RoleCoder, job.Result.Agents[0].Role)
	assert.Equal(t, models.AgentStatusCompleted, job.Result.Agents[0].Status)

	// The run leaves an evidence entry carrying the agent's excerpt.
	entries, err := app.Store.ListEvidence(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].CliExcerpts, 1)
}

func TestSwarmJobOverHTTP(t *testing.T) {
	app := NewTestApp(t)

	id := app.SubmitJob("Implement a hello world function", models.ModeSwarm)
	job := app.WaitForJob(id, 30*time.Second)

	assert.Equal(t, models.JobStateCompleted, job.Status)
	require.NotNil(t, job.Result)
	// Default fan-out: 1+1+2+1+1 stage agents plus the synthesizer.
	assert.GreaterOrEqual(t, len(job.Result.Agents), 7)
	assert.NotEmpty(t, job.Result.FinalOutput)
	for _, a := range job.Result.Agents {
		assert.Equal(t, models.AgentStatusCompleted, a.Status, "agent %s", a.Label)
	}

	// Identical mock outputs agree perfectly, so no refusal fires.
	assert.NotEqual(t, "refused", job.Result.FinalOutput)
	assert.True(t, job.Result.ValidationPassed)
}

func TestProjectJobCreatesTickets(t *testing.T) {
	app := NewTestApp(t)

	prompt := `Build the notification service.

## Ingest webhooks
Accept provider callbacks and normalize them.

## Template engine
Render notification bodies from templates.

## Delivery workers
Fan deliveries out with retry and backoff.

## Admin API
Expose delivery logs and template management.`

	id := app.SubmitJob(prompt, models.ModeProject)
	job := app.WaitForJob(id, 30*time.Second)
	assert.Equal(t, models.JobStateCompleted, job.Status)

	// Root feature + planner + 4 coders + validator + security.
	tickets := app.ListTickets()
	require.Len(t, tickets, 8)

	var coderTickets []*models.Ticket
	for _, tk := range tickets {
		if tk.Level == models.LevelFeature {
			continue
		}
		assert.Equal(t, models.TicketStatusDone, tk.Status, "ticket %q", tk.Title)
		if tk.AssignedRole == models.RoleCoder {
			coderTickets = append(coderTickets, tk)
		}
	}
	require.Len(t, coderTickets, 4)

	// Every coder ticket links its evidence entry, and the link is
	// bidirectional.
	for _, tk := range coderTickets {
		require.NotEmpty(t, tk.EvidenceIDs, "coder ticket %q has no evidence", tk.Title)
		entry := app.GetEvidence(tk.EvidenceIDs[0])
		assert.Contains(t, entry.TicketIDs, tk.ID)
	}
}

func TestCacheStatsEndpoint(t *testing.T) {
	app := NewTestApp(t)

	id := app.SubmitJob("Implement a hello world function", models.ModeSwarm)
	app.WaitForJob(id, 30*time.Second)

	var stats map[string]any
	code := app.getJSON("/api/v1/cache/stats", &stats)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, stats, "hits")
	assert.Contains(t, stats, "misses")
}
