package e2e

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codehive/swarmd/pkg/models"
)

// waitForStatus polls until the job reaches the wanted non-terminal state.
func waitForStatus(t *testing.T, app *TestApp, id string, want models.JobState) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		job := app.GetJob(id)
		if job.Status == want {
			return
		}
		if job.Status.IsTerminal() {
			t.Fatalf("job %s settled as %s while waiting for %s", id, job.Status, want)
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s still %s, wanted %s", id, job.Status, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCancelRunningJob(t *testing.T) {
	app := NewTestApp(t, WithProvider("sleeper", `sleep 30 # {PROMPT}`))

	id := app.SubmitJob("take your time", models.ModeChat)
	waitForStatus(t, app, id, models.JobStateRunning)

	code := app.CancelJob(id)
	assert.Equal(t, http.StatusOK, code)

	job := app.WaitForJob(id, 10*time.Second)
	assert.Equal(t, models.JobStateCancelled, job.Status)
	require.NotNil(t, job.CompletedAt)

	// Cancelling a settled job is rejected, not repeated.
	assert.Equal(t, http.StatusConflict, app.CancelJob(id))
}

func TestCancelQueuedJob(t *testing.T) {
	// One worker: the second job stays queued behind the sleeper.
	app := NewTestApp(t, WithProvider("sleeper", `sleep 30 # {PROMPT}`), WithWorkers(1))

	blocker := app.SubmitJob("hold the worker", models.ModeChat)
	waitForStatus(t, app, blocker, models.JobStateRunning)

	queued := app.SubmitJob("never picked up", models.ModeChat)
	code := app.CancelJob(queued)
	assert.Equal(t, http.StatusOK, code)

	job := app.GetJob(queued)
	assert.Equal(t, models.JobStateCancelled, job.Status)

	// Unblock the worker so teardown drains quickly.
	assert.Equal(t, http.StatusOK, app.CancelJob(blocker))
	app.WaitForJob(blocker, 10*time.Second)
}
