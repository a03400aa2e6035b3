// Package events carries pipeline progress out of the orchestrator without
// coupling it to any transport. The orchestrator and its agents emit through
// an Emitter; the API layer, the log, and tests each plug in their own.
package events

import (
	"time"

	"github.com/codehive/swarmd/pkg/models"
)

// Type discriminates event payloads on the wire.
type Type string

const (
	// TypeAgentOutput is an incremental chunk of one agent's output
	TypeAgentOutput Type = "agent.output"
	// TypeAgentStatus is an agent lifecycle transition
	TypeAgentStatus Type = "agent.status"
	// TypeMCPToolResult is the outcome of one MCP tool invocation
	TypeMCPToolResult Type = "mcp.tool_result"
	// TypeJobProgress is a coarse progress update for a queued job
	TypeJobProgress Type = "job.progress"
)

// Event is the single wire shape for all emissions. Unused fields stay empty;
// Type says which ones are meaningful.
type Event struct {
	Type      Type               `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
	AgentID   string             `json:"agent_id,omitempty"`
	Chunk     string             `json:"chunk,omitempty"`
	Status    models.AgentStatus `json:"status,omitempty"`
	ExitCode  *int               `json:"exit_code,omitempty"`
	ServerID  string             `json:"server_id,omitempty"`
	Tool      string             `json:"tool,omitempty"`
	Result    string             `json:"result,omitempty"`
	ErrMsg    string             `json:"error,omitempty"`
	JobID     string             `json:"job_id,omitempty"`
	Progress  int                `json:"progress,omitempty"`
	Stage     string             `json:"stage,omitempty"`
}

// Emitter receives pipeline progress callbacks. Implementations must not
// block: emissions happen on the hot path of agent execution. Chunk ordering
// per agent is guaranteed by the caller (a single goroutine drains each
// agent), not by the Emitter.
type Emitter interface {
	// AgentOutput delivers an incremental output chunk from one agent.
	AgentOutput(agentID, chunk string)

	// AgentStatus reports an agent lifecycle transition. exitCode is non-nil
	// only for terminal CLI agent states.
	AgentStatus(agentID string, status models.AgentStatus, exitCode *int)

	// MCPToolResult reports one MCP tool call outcome. errMsg is empty on
	// success.
	MCPToolResult(serverID, tool, result, errMsg string)

	// JobProgress reports coarse progress (0..100) and the current stage.
	JobProgress(jobID string, progress int, stage string)
}

// --- Nil-safe package helpers ---
//
// Call sites hold Emitter fields that may be nil (progress reporting is
// optional everywhere). These helpers keep the nil check out of every caller.

// AgentOutput forwards to em when non-nil.
func AgentOutput(em Emitter, agentID, chunk string) {
	if em == nil {
		return
	}
	em.AgentOutput(agentID, chunk)
}

// AgentStatus forwards to em when non-nil.
func AgentStatus(em Emitter, agentID string, status models.AgentStatus, exitCode *int) {
	if em == nil {
		return
	}
	em.AgentStatus(agentID, status, exitCode)
}

// MCPToolResult forwards to em when non-nil.
func MCPToolResult(em Emitter, serverID, tool, result, errMsg string) {
	if em == nil {
		return
	}
	em.MCPToolResult(serverID, tool, result, errMsg)
}

// JobProgress forwards to em when non-nil.
func JobProgress(em Emitter, jobID string, progress int, stage string) {
	if em == nil {
		return
	}
	em.JobProgress(jobID, progress, stage)
}
