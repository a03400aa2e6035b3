package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentStatusTransitions(t *testing.T) {
	tests := []struct {
		name string
		from AgentStatus
		to   AgentStatus
		want bool
	}{
		{"pending to spawning", AgentStatusPending, AgentStatusSpawning, true},
		{"spawning to running", AgentStatusSpawning, AgentStatusRunning, true},
		{"running to completed", AgentStatusRunning, AgentStatusCompleted, true},
		{"running to failed", AgentStatusRunning, AgentStatusFailed, true},
		{"pending to cancelled", AgentStatusPending, AgentStatusCancelled, true},
		{"running to cancelled", AgentStatusRunning, AgentStatusCancelled, true},
		{"running to spawning", AgentStatusRunning, AgentStatusSpawning, false},
		{"completed to running", AgentStatusCompleted, AgentStatusRunning, false},
		{"cancelled to cancelled", AgentStatusCancelled, AgentStatusCancelled, false},
		{"failed to completed", AgentStatusFailed, AgentStatusCompleted, false},
		{"pending skips to completed", AgentStatusPending, AgentStatusCompleted, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestJobStateTransitions(t *testing.T) {
	assert.True(t, JobStateQueued.CanTransitionTo(JobStateRunning))
	assert.True(t, JobStateRunning.CanTransitionTo(JobStateCompleted))
	assert.True(t, JobStateRunning.CanTransitionTo(JobStateFailed))
	assert.True(t, JobStateQueued.CanTransitionTo(JobStateCancelled))
	assert.True(t, JobStateRunning.CanTransitionTo(JobStateCancelled))

	assert.False(t, JobStateQueued.CanTransitionTo(JobStateCompleted))
	assert.False(t, JobStateCompleted.CanTransitionTo(JobStateRunning))
	assert.False(t, JobStateCancelled.CanTransitionTo(JobStateQueued))
}

func TestTicketLevelParent(t *testing.T) {
	parent, ok := LevelEpic.ParentLevel()
	require.True(t, ok)
	assert.Equal(t, LevelFeature, parent)

	parent, ok = LevelSubatomic.ParentLevel()
	require.True(t, ok)
	assert.Equal(t, LevelSubtask, parent)

	_, ok = LevelFeature.ParentLevel()
	assert.False(t, ok)
}

func TestSLARisk(t *testing.T) {
	now := time.Now()

	t.Run("no sla is ok", func(t *testing.T) {
		var sla *SLA
		assert.Equal(t, SLARiskOK, sla.Risk(now))
	})

	t.Run("not started is ok", func(t *testing.T) {
		sla := &SLA{TargetMinutes: 10, WarningThresholdPct: 80}
		assert.Equal(t, SLARiskOK, sla.Risk(now))
	})

	t.Run("under warning threshold", func(t *testing.T) {
		started := now.Add(-1 * time.Minute)
		sla := &SLA{TargetMinutes: 10, WarningThresholdPct: 80, StartedAt: &started}
		assert.Equal(t, SLARiskOK, sla.Risk(now))
	})

	t.Run("warning", func(t *testing.T) {
		started := now.Add(-9 * time.Minute)
		sla := &SLA{TargetMinutes: 10, WarningThresholdPct: 80, StartedAt: &started}
		assert.Equal(t, SLARiskWarning, sla.Risk(now))
	})

	t.Run("breached at exactly target", func(t *testing.T) {
		started := now.Add(-10 * time.Minute)
		sla := &SLA{TargetMinutes: 10, WarningThresholdPct: 80, StartedAt: &started}
		assert.Equal(t, SLARiskBreached, sla.Risk(now))
	})
}

func TestTicketClone(t *testing.T) {
	started := time.Now()
	orig := &Ticket{
		ID:           "t-1",
		Title:        "build feature",
		Status:       TicketStatusBacklog,
		Dependencies: []string{"t-0"},
		Approvals:    Approvals{RequiredGates: []string{"design"}},
		SLA:          &SLA{TargetMinutes: 30, StartedAt: &started},
	}

	c := orig.Clone()
	c.Dependencies[0] = "mutated"
	c.Approvals.RequiredGates[0] = "mutated"
	c.SLA.TargetMinutes = 99

	assert.Equal(t, "t-0", orig.Dependencies[0])
	assert.Equal(t, "design", orig.Approvals.RequiredGates[0])
	assert.Equal(t, 30, orig.SLA.TargetMinutes)
}

func TestApprovalsSatisfied(t *testing.T) {
	a := &Approvals{RequiredGates: []string{"design", "security"}, ApprovedGates: []string{"design"}}
	assert.False(t, a.Satisfied())

	a.ApprovedGates = append(a.ApprovedGates, "security")
	assert.True(t, a.Satisfied())

	empty := &Approvals{}
	assert.True(t, empty.Satisfied())
}
