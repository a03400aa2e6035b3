package ticket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/store"
	"github.com/codehive/swarmd/pkg/store/memory"
)

func newTestManager(t *testing.T, opts Options) (*Manager, *memory.Store) {
	t.Helper()
	st := memory.New()
	return NewManager(st, opts), st
}

func mustCreate(t *testing.T, m *Manager, req CreateRequest) *models.Ticket {
	t.Helper()
	tk, err := m.Create(context.Background(), req)
	require.NoError(t, err)
	return tk
}

func TestCreateDefaults(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	tk := mustCreate(t, m, CreateRequest{ProjectID: "p1", Title: "Add login"})

	assert.NotEmpty(t, tk.ID)
	assert.Equal(t, models.TicketStatusBacklog, tk.Status)
	assert.Equal(t, models.TicketTypeTask, tk.Type)
	assert.Zero(t, tk.RetryCount)
	assert.False(t, tk.CreatedAt.IsZero())
	assert.Equal(t, tk.CreatedAt, tk.UpdatedAt)
}

func TestCreateRequiresTitle(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	_, err := m.Create(context.Background(), CreateRequest{ProjectID: "p1"})
	require.Error(t, err)
	assert.True(t, store.IsValidationError(err))
}

func TestCreateHierarchy(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	// Non-root levels need a parent of exactly the enclosing level.
	_, err := m.Create(ctx, CreateRequest{Title: "orphan epic", Level: models.LevelEpic})
	require.ErrorIs(t, err, ErrHierarchyViolation)

	feature := mustCreate(t, m, CreateRequest{Title: "feature", Level: models.LevelFeature})
	epic := mustCreate(t, m, CreateRequest{Title: "epic", Level: models.LevelEpic, ParentID: feature.ID})

	// A task cannot hang directly off an epic.
	_, err = m.Create(ctx, CreateRequest{Title: "task", Level: models.LevelTask, ParentID: epic.ID})
	require.ErrorIs(t, err, ErrHierarchyViolation)

	story := mustCreate(t, m, CreateRequest{Title: "story", Level: models.LevelStory, ParentID: epic.ID})
	task := mustCreate(t, m, CreateRequest{Title: "task", Level: models.LevelTask, ParentID: story.ID})
	assert.Equal(t, story.ID, task.ParentID)

	// Features are roots.
	_, err = m.Create(ctx, CreateRequest{Title: "nested feature", Level: models.LevelFeature, ParentID: feature.ID})
	require.ErrorIs(t, err, ErrHierarchyViolation)

	// Unknown parent.
	_, err = m.Create(ctx, CreateRequest{Title: "epic", Level: models.LevelEpic, ParentID: "missing"})
	require.ErrorIs(t, err, ErrHierarchyViolation)
}

func TestCreateUnknownDependency(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	_, err := m.Create(context.Background(), CreateRequest{Title: "t", Dependencies: []string{"ghost"}})
	require.Error(t, err)
	assert.True(t, store.IsValidationError(err))
}

func TestUpdateMutatesAndPreservesEngineFields(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()
	tk := mustCreate(t, m, CreateRequest{Title: "before"})

	got, err := m.Update(ctx, tk.ID, func(t *models.Ticket) {
		t.Title = "after"
		t.Complexity = models.ComplexityL
		t.RetryCount = 99 // engine-owned, must be ignored
	})
	require.NoError(t, err)
	assert.Equal(t, "after", got.Title)
	assert.Equal(t, models.ComplexityL, got.Complexity)
	assert.Zero(t, got.RetryCount)
	assert.Equal(t, tk.CreatedAt, got.CreatedAt)
}

func TestUpdateRejectsStatusChange(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	tk := mustCreate(t, m, CreateRequest{Title: "t"})

	_, err := m.Update(context.Background(), tk.ID, func(t *models.Ticket) {
		t.Status = models.TicketStatusDone
	})
	require.ErrorIs(t, err, ErrStatusViaUpdate)

	got, err := m.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusBacklog, got.Status)
}

func TestUpdateMoveDetectsCycle(t *testing.T) {
	m, st := newTestManager(t, Options{})
	ctx := context.Background()

	// Seed a corrupt parent chain directly: b's ancestry loops back to a.
	now := time.Now()
	a := &models.Ticket{ID: "a", Title: "a", Level: models.LevelSubtask, Status: models.TicketStatusBacklog, CreatedAt: now, UpdatedAt: now}
	b := &models.Ticket{ID: "b", Title: "b", Level: models.LevelTask, ParentID: "a", Status: models.TicketStatusBacklog, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, st.PutTicket(ctx, a))
	require.NoError(t, st.PutTicket(ctx, b))

	_, err := m.Update(ctx, "a", func(t *models.Ticket) {
		t.ParentID = "b"
	})
	require.ErrorIs(t, err, ErrDependencyCycle)
}

func TestAttachEvidence(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()
	tk := mustCreate(t, m, CreateRequest{Title: "t"})

	var seen []*models.Ticket
	m.OnUpdate(func(t *models.Ticket) { seen = append(seen, t) })

	require.NoError(t, m.AttachEvidence(ctx, tk.ID, "ev-1"))
	require.NoError(t, m.AttachEvidence(ctx, tk.ID, "ev-1")) // idempotent
	require.NoError(t, m.AttachEvidence(ctx, tk.ID, "ev-2"))

	got, err := m.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ev-1", "ev-2"}, got.EvidenceIDs)
	assert.Len(t, seen, 2)
}

func TestAttachEvidenceUnknownTicket(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	err := m.AttachEvidence(context.Background(), "missing", "ev-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateSubtaskBuiltin(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	feature := mustCreate(t, m, CreateRequest{Title: "f", Level: models.LevelFeature})
	epic := mustCreate(t, m, CreateRequest{Title: "e", Level: models.LevelEpic, ParentID: feature.ID})
	story := mustCreate(t, m, CreateRequest{Title: "s", Level: models.LevelStory, ParentID: epic.ID})
	task := mustCreate(t, m, CreateRequest{Title: "t", Level: models.LevelTask, ParentID: story.ID})

	id, err := m.CreateSubtask(ctx, task, SubtaskTemplate{Title: "write tests", AssignedRole: models.RoleCoder})
	require.NoError(t, err)

	child, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.LevelSubtask, child.Level)
	assert.Equal(t, task.ID, child.ParentID)
	assert.Equal(t, models.RoleCoder, child.AssignedRole)

	// Subatomic tickets are the bottom of the hierarchy.
	leafID, err := m.CreateSubtask(ctx, child, SubtaskTemplate{Title: "leaf"})
	require.NoError(t, err)
	leaf, err := m.Get(ctx, leafID)
	require.NoError(t, err)
	assert.Equal(t, models.LevelSubatomic, leaf.Level)

	_, err = m.CreateSubtask(ctx, leaf, SubtaskTemplate{Title: "too deep"})
	require.ErrorIs(t, err, ErrHierarchyViolation)
}

func TestUpdateFieldBuiltin(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()
	tk := mustCreate(t, m, CreateRequest{Title: "t"})

	require.NoError(t, m.UpdateField(ctx, tk.ID, "description", "details"))
	require.NoError(t, m.UpdateField(ctx, tk.ID, "assigned_role", "coder"))

	got, err := m.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "details", got.Description)
	assert.Equal(t, models.RoleCoder, got.AssignedRole)

	err = m.UpdateField(ctx, tk.ID, "status", "done")
	require.Error(t, err)
	assert.True(t, store.IsValidationError(err))
}

func TestObserversGetCopies(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	var captured *models.Ticket
	m.OnUpdate(func(t *models.Ticket) { captured = t })

	tk := mustCreate(t, m, CreateRequest{Title: "original"})
	require.NotNil(t, captured)

	// Mutating the observer's copy must not leak into the manager.
	captured.Title = "tampered"
	got, err := m.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Title)
}

func TestAllObserversNotified(t *testing.T) {
	m, _ := newTestManager(t, Options{})

	var first, second []string
	m.OnUpdate(func(t *models.Ticket) { first = append(first, t.ID) })
	m.OnUpdate(func(t *models.Ticket) { second = append(second, t.ID) })

	tk := mustCreate(t, m, CreateRequest{Title: "fan out"})

	assert.Equal(t, []string{tk.ID}, first)
	assert.Equal(t, []string{tk.ID}, second)
}
