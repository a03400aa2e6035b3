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

func TestSessionHandlers(t *testing.T) {
	srv, st := newTestServer(t)
	base := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.PutSession(context.Background(), &models.Session{
		ID: "sess-old", Title: "Older thread", Mode: models.ModeChat,
		CreatedAt: base, UpdatedAt: base,
	}))
	require.NoError(t, st.PutSession(context.Background(), &models.Session{
		ID: "sess-new", Title: "Fresh thread", Mode: models.ModeChat,
		LastPrompt: "and what about the edge cases?",
		CreatedAt:  base.Add(time.Hour), UpdatedAt: base.Add(2 * time.Hour),
	}))

	t.Run("lists most recent first", func(t *testing.T) {
		rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var sessions []models.Session
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
		require.Len(t, sessions, 2)
		assert.Equal(t, "sess-new", sessions[0].ID)
	})

	t.Run("gets one session", func(t *testing.T) {
		rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/sess-new", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var session models.Session
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
		assert.Equal(t, "Fresh thread", session.Title)
		assert.Equal(t, "and what about the edge cases?", session.LastPrompt)
	})

	t.Run("unknown session 404s", func(t *testing.T) {
		rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/ghost", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
