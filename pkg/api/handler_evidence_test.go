package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codehive/swarmd/pkg/models"
)

func TestGetEvidenceHandler(t *testing.T) {
	srv, st := newTestServer(t)
	require.NoError(t, st.PutEvidence(context.Background(), &models.EvidenceEntry{
		ID:          "ev-1",
		Timestamp:   time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC),
		Branch:      "swarm/run-9",
		DiffSummary: "3 files changed",
		CliExcerpts: map[string]string{"coder-1": "tests green"},
		TicketIDs:   []string{"t-2"},
	}))

	t.Run("returns the entry", func(t *testing.T) {
		rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/v1/evidence/ev-1", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var entry models.EvidenceEntry
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
		assert.Equal(t, "swarm/run-9", entry.Branch)
		assert.Equal(t, []string{"t-2"}, entry.TicketIDs)
	})

	t.Run("unknown entry 404s", func(t *testing.T) {
		rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/v1/evidence/ghost", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
