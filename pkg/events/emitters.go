package events

import (
	"log/slog"

	"github.com/codehive/swarmd/pkg/models"
)

// NopEmitter discards every event. Useful as a default when no observer
// cares about progress.
type NopEmitter struct{}

func (NopEmitter) AgentOutput(string, string)                   {}
func (NopEmitter) AgentStatus(string, models.AgentStatus, *int) {}
func (NopEmitter) MCPToolResult(string, string, string, string) {}
func (NopEmitter) JobProgress(string, int, string)              {}

// LogEmitter writes events to structured logs. Output chunks are logged at
// debug level to keep the log readable; lifecycle events at info.
type LogEmitter struct {
	log *slog.Logger
}

// NewLogEmitter creates a LogEmitter. A nil logger means slog.Default().
func NewLogEmitter(log *slog.Logger) *LogEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &LogEmitter{log: log}
}

func (l *LogEmitter) AgentOutput(agentID, chunk string) {
	l.log.Debug("Agent output", "agent_id", agentID, "bytes", len(chunk))
}

func (l *LogEmitter) AgentStatus(agentID string, status models.AgentStatus, exitCode *int) {
	if exitCode != nil {
		l.log.Info("Agent status", "agent_id", agentID, "status", status, "exit_code", *exitCode)
		return
	}
	l.log.Info("Agent status", "agent_id", agentID, "status", status)
}

func (l *LogEmitter) MCPToolResult(serverID, tool, result, errMsg string) {
	if errMsg != "" {
		l.log.Warn("MCP tool failed", "server_id", serverID, "tool", tool, "error", errMsg)
		return
	}
	l.log.Info("MCP tool result", "server_id", serverID, "tool", tool, "result_bytes", len(result))
}

func (l *LogEmitter) JobProgress(jobID string, progress int, stage string) {
	l.log.Info("Job progress", "job_id", jobID, "progress", progress, "stage", stage)
}

// MultiEmitter fans every event out to all children. Nil children are
// skipped, so partially wired observer sets need no special handling.
type MultiEmitter []Emitter

func (m MultiEmitter) AgentOutput(agentID, chunk string) {
	for _, em := range m {
		AgentOutput(em, agentID, chunk)
	}
}

func (m MultiEmitter) AgentStatus(agentID string, status models.AgentStatus, exitCode *int) {
	for _, em := range m {
		AgentStatus(em, agentID, status, exitCode)
	}
}

func (m MultiEmitter) MCPToolResult(serverID, tool, result, errMsg string) {
	for _, em := range m {
		MCPToolResult(em, serverID, tool, result, errMsg)
	}
}

func (m MultiEmitter) JobProgress(jobID string, progress int, stage string) {
	for _, em := range m {
		JobProgress(em, jobID, progress, stage)
	}
}
