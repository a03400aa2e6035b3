package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/store"
)

func TestTicketRoundTripIsolated(t *testing.T) {
	s := New()
	ctx := context.Background()

	ticket := &models.Ticket{
		ID:           "t-1",
		Title:        "wire parser",
		Status:       models.TicketStatusBacklog,
		Dependencies: []string{"t-0"},
		CreatedAt:    time.Now(),
	}
	require.NoError(t, s.PutTicket(ctx, ticket))

	// mutating the original must not reach the stored copy
	ticket.Title = "changed"
	ticket.Dependencies[0] = "changed"

	got, err := s.GetTicket(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "wire parser", got.Title)
	assert.Equal(t, []string{"t-0"}, got.Dependencies)

	// mutating the returned copy must not reach the store either
	got.Status = models.TicketStatusDone
	again, err := s.GetTicket(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusBacklog, again.Status)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.GetTicket(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetEvidence(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetJob(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetSession(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetScheduledTask(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPutValidatesID(t *testing.T) {
	s := New()
	ctx := context.Background()

	assert.True(t, store.IsValidationError(s.PutTicket(ctx, &models.Ticket{})))
	assert.True(t, store.IsValidationError(s.PutJob(ctx, nil)))
}

func TestListTicketsOrdered(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.PutTicket(ctx, &models.Ticket{ID: "b", CreatedAt: base.Add(time.Second)}))
	require.NoError(t, s.PutTicket(ctx, &models.Ticket{ID: "a", CreatedAt: base}))
	require.NoError(t, s.PutTicket(ctx, &models.Ticket{ID: "c", CreatedAt: base.Add(time.Second)}))

	list, err := s.ListTickets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	assert.Equal(t, "c", list[2].ID)
}

func TestClaimNextQueuedFIFO(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.PutJob(ctx, &models.Job{ID: "late", Status: models.JobStateQueued, CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, s.PutJob(ctx, &models.Job{ID: "early", Status: models.JobStateQueued, CreatedAt: base}))
	require.NoError(t, s.PutJob(ctx, &models.Job{ID: "done", Status: models.JobStateCompleted, CreatedAt: base.Add(-time.Minute)}))

	first, err := s.ClaimNextQueued(ctx)
	require.NoError(t, err)
	assert.Equal(t, "early", first.ID)
	assert.Equal(t, models.JobStateRunning, first.Status)
	require.NotNil(t, first.StartedAt)

	second, err := s.ClaimNextQueued(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", second.ID)

	_, err = s.ClaimNextQueued(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResetRunning(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.PutJob(ctx, &models.Job{ID: "r1", Status: models.JobStateRunning, CreatedAt: time.Now()}))
	require.NoError(t, s.PutJob(ctx, &models.Job{ID: "q1", Status: models.JobStateQueued, CreatedAt: time.Now()}))
	require.NoError(t, s.PutJob(ctx, &models.Job{ID: "c1", Status: models.JobStateCompleted, CreatedAt: time.Now()}))

	n, err := s.ResetRunning(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	j, err := s.GetJob(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStateQueued, j.Status)
	assert.Nil(t, j.StartedAt)
}

func TestDeleteTerminalBefore(t *testing.T) {
	s := New()
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()

	require.NoError(t, s.PutJob(ctx, &models.Job{ID: "old-done", Status: models.JobStateCompleted, CreatedAt: old, CompletedAt: &old}))
	require.NoError(t, s.PutJob(ctx, &models.Job{ID: "old-running", Status: models.JobStateRunning, CreatedAt: old}))
	require.NoError(t, s.PutJob(ctx, &models.Job{ID: "new-done", Status: models.JobStateCompleted, CreatedAt: recent, CompletedAt: &recent}))

	n, err := s.DeleteTerminalBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetJob(ctx, "old-done")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetJob(ctx, "old-running")
	assert.NoError(t, err)
	_, err = s.GetJob(ctx, "new-done")
	assert.NoError(t, err)
}

func TestListDueTasks(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.PutScheduledTask(ctx, &models.ScheduledTask{ID: "due", Enabled: true, NextRunAt: now.Add(-time.Minute)}))
	require.NoError(t, s.PutScheduledTask(ctx, &models.ScheduledTask{ID: "future", Enabled: true, NextRunAt: now.Add(time.Hour)}))
	require.NoError(t, s.PutScheduledTask(ctx, &models.ScheduledTask{ID: "disabled", Enabled: false, NextRunAt: now.Add(-time.Hour)}))

	due, err := s.ListDueTasks(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due", due[0].ID)
}
