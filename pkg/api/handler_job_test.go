package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codehive/swarmd/pkg/models"
)

func postJSON(t *testing.T, srv *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return doRequest(srv, req)
}

func TestCreateJobHandler(t *testing.T) {
	t.Run("enqueues and returns 202", func(t *testing.T) {
		srv, st := newTestServer(t)

		rec := postJSON(t, srv, "/api/v1/jobs", `{"prompt": "summarize the build failures", "mode": "chat", "session_id": "sess-1"}`)
		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp SubmitResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.JobID)
		assert.Equal(t, "queued", resp.Status)

		job, err := st.GetJob(context.Background(), resp.JobID)
		require.NoError(t, err)
		assert.Equal(t, "summarize the build failures", job.Prompt)
		assert.Equal(t, models.ModeChat, job.Mode)
		assert.Equal(t, "sess-1", job.SessionID)
	})

	t.Run("mode is optional", func(t *testing.T) {
		srv, st := newTestServer(t)

		rec := postJSON(t, srv, "/api/v1/jobs", `{"prompt": "fix the race in the watcher"}`)
		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp SubmitResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		job, err := st.GetJob(context.Background(), resp.JobID)
		require.NoError(t, err)
		assert.Empty(t, job.Mode, "empty mode is kept for downstream detection")
	})

	t.Run("rejects blank prompt", func(t *testing.T) {
		srv, _ := newTestServer(t)

		rec := postJSON(t, srv, "/api/v1/jobs", `{"prompt": "   "}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "prompt is required")
	})

	t.Run("rejects unknown mode", func(t *testing.T) {
		srv, _ := newTestServer(t)

		rec := postJSON(t, srv, "/api/v1/jobs", `{"prompt": "hello", "mode": "turbo"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid mode")
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		srv, _ := newTestServer(t)

		rec := postJSON(t, srv, "/api/v1/jobs", `{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid request body")
	})

	t.Run("rejects oversized prompt", func(t *testing.T) {
		srv, _ := newTestServer(t)

		huge := strings.Repeat("a", maxPromptBytes+1)
		rec := postJSON(t, srv, "/api/v1/jobs", `{"prompt": "`+huge+`"}`)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestGetJobHandler(t *testing.T) {
	srv, st := newTestServer(t)
	require.NoError(t, st.PutJob(context.Background(), &models.Job{
		ID:        "job-1",
		Prompt:    "audit the retry logic",
		Mode:      models.ModeSwarm,
		Status:    models.JobStateRunning,
		Progress:  40,
		CreatedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}))

	t.Run("returns the job", func(t *testing.T) {
		rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var job models.Job
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		assert.Equal(t, "job-1", job.ID)
		assert.Equal(t, models.JobStateRunning, job.Status)
		assert.Equal(t, 40, job.Progress)
	})

	t.Run("unknown job 404s", func(t *testing.T) {
		rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/ghost", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "resource not found")
	})
}

func TestListJobsHandler(t *testing.T) {
	srv, st := newTestServer(t)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	seed := []*models.Job{
		{ID: "job-a", Prompt: "a", Status: models.JobStateCompleted, CreatedAt: base},
		{ID: "job-b", Prompt: "b", Status: models.JobStateQueued, CreatedAt: base.Add(time.Minute)},
		{ID: "job-c", Prompt: "c", Status: models.JobStateQueued, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, j := range seed {
		require.NoError(t, st.PutJob(context.Background(), j))
	}

	decode := func(t *testing.T, rec *httptest.ResponseRecorder) []models.Job {
		t.Helper()
		var jobs []models.Job
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
		return jobs
	}

	t.Run("lists newest first", func(t *testing.T) {
		rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		jobs := decode(t, rec)
		require.Len(t, jobs, 3)
		assert.Equal(t, "job-c", jobs[0].ID)
		assert.Equal(t, "job-a", jobs[2].ID)
	})

	t.Run("filters by status", func(t *testing.T) {
		rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?status=completed", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		jobs := decode(t, rec)
		require.Len(t, jobs, 1)
		assert.Equal(t, "job-a", jobs[0].ID)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?status=paused", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid status")
	})

	t.Run("limit truncates", func(t *testing.T) {
		rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?limit=2", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode(t, rec), 2)
	})

	t.Run("rejects non-numeric limit", func(t *testing.T) {
		rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?limit=lots", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid limit")
	})
}

func TestCancelJobHandler(t *testing.T) {
	srv, st := newTestServer(t)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.PutJob(context.Background(), &models.Job{
		ID: "job-queued", Prompt: "p", Status: models.JobStateQueued, CreatedAt: now,
	}))
	require.NoError(t, st.PutJob(context.Background(), &models.Job{
		ID: "job-done", Prompt: "p", Status: models.JobStateCompleted, CreatedAt: now,
	}))

	t.Run("cancels a queued job", func(t *testing.T) {
		rec := postJSON(t, srv, "/api/v1/jobs/job-queued/cancel", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp CancelResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "job-queued", resp.JobID)
		assert.Equal(t, "cancelled", resp.Status)

		job, err := st.GetJob(context.Background(), "job-queued")
		require.NoError(t, err)
		assert.Equal(t, models.JobStateCancelled, job.Status)
	})

	t.Run("terminal job conflicts", func(t *testing.T) {
		rec := postJSON(t, srv, "/api/v1/jobs/job-done/cancel", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown job 404s", func(t *testing.T) {
		rec := postJSON(t, srv, "/api/v1/jobs/ghost/cancel", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
