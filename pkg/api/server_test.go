package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codehive/swarmd/pkg/cache"
	"github.com/codehive/swarmd/pkg/queue"
	"github.com/codehive/swarmd/pkg/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer wires a server over a fresh in-memory store.
func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := memory.New()
	mgr := queue.NewManager(st, testLogger())
	srv, err := New(Deps{
		Jobs:   mgr,
		Store:  st,
		Cache:  cache.New(8, time.Minute),
		Logger: testLogger(),
	})
	require.NoError(t, err)
	return srv, st
}

// doRequest runs one request through the full router.
func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewRequiresDeps(t *testing.T) {
	st := memory.New()

	_, err := New(Deps{Store: st})
	assert.ErrorContains(t, err, "job manager is required")

	_, err = New(Deps{Jobs: queue.NewManager(st, testLogger())})
	assert.ErrorContains(t, err, "store is required")
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShutdownWithoutStart(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.NoError(t, srv.Shutdown(context.Background()))
}
