package e2e

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codehive/swarmd/pkg/api"
	"github.com/codehive/swarmd/pkg/models"
)

// postJSON posts body to path and decodes the response into out when out is
// non-nil. The status code is returned for assertion.
func (a *TestApp) postJSON(path string, body, out any) int {
	a.t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(a.t, err)

	resp, err := http.Post(a.BaseURL+path, "application/json", bytes.NewReader(raw))
	require.NoError(a.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// getJSON fetches path and decodes the response into out.
func (a *TestApp) getJSON(path string, out any) int {
	a.t.Helper()
	resp, err := http.Get(a.BaseURL + path)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// SubmitJob enqueues a prompt over HTTP and returns the job id.
func (a *TestApp) SubmitJob(prompt string, mode models.PipelineMode) string {
	a.t.Helper()
	var resp api.SubmitResponse
	code := a.postJSON("/api/v1/jobs", api.SubmitJobRequest{
		Prompt: prompt,
		Mode:   string(mode),
	}, &resp)
	require.Equal(a.t, http.StatusAccepted, code)
	require.NotEmpty(a.t, resp.JobID)
	return resp.JobID
}

// GetJob fetches one job over HTTP.
func (a *TestApp) GetJob(id string) *models.Job {
	a.t.Helper()
	var job models.Job
	code := a.getJSON("/api/v1/jobs/"+id, &job)
	require.Equal(a.t, http.StatusOK, code)
	return &job
}

// WaitForJob polls until the job reaches a terminal state.
func (a *TestApp) WaitForJob(id string, timeout time.Duration) *models.Job {
	a.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		job := a.GetJob(id)
		if job.Status.IsTerminal() {
			return job
		}
		if time.Now().After(deadline) {
			a.t.Fatalf("job %s still %s after %s", id, job.Status, timeout)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

// CancelJob posts the cancel endpoint and returns the response status code.
func (a *TestApp) CancelJob(id string) int {
	a.t.Helper()
	return a.postJSON("/api/v1/jobs/"+id+"/cancel", struct{}{}, nil)
}

// ListTickets fetches every ticket over HTTP.
func (a *TestApp) ListTickets() []*models.Ticket {
	a.t.Helper()
	var tickets []*models.Ticket
	code := a.getJSON("/api/v1/tickets", &tickets)
	require.Equal(a.t, http.StatusOK, code)
	return tickets
}

// GetEvidence fetches one evidence entry over HTTP.
func (a *TestApp) GetEvidence(id string) *models.EvidenceEntry {
	a.t.Helper()
	var entry models.EvidenceEntry
	code := a.getJSON("/api/v1/evidence/"+id, &entry)
	require.Equal(a.t, http.StatusOK, code)
	return &entry
}
