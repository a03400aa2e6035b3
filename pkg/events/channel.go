package events

import (
	"sync"
	"time"

	"github.com/codehive/swarmd/pkg/models"
)

// ChannelEmitter buffers events in a bounded channel for a consumer such as
// an SSE handler. When the buffer is full the oldest event is dropped: a slow
// consumer loses history but never stalls the pipeline.
type ChannelEmitter struct {
	ch chan Event

	mu     sync.Mutex
	closed bool
}

// NewChannelEmitter creates a ChannelEmitter with the given buffer size.
// Sizes below 1 are clamped to 1.
func NewChannelEmitter(size int) *ChannelEmitter {
	if size < 1 {
		size = 1
	}
	return &ChannelEmitter{ch: make(chan Event, size)}
}

// Events returns the receive side of the buffer. The channel is closed by
// Close; consumers should range over it.
func (c *ChannelEmitter) Events() <-chan Event {
	return c.ch
}

// Close closes the event channel. Safe to call more than once; emissions
// after Close are discarded.
func (c *ChannelEmitter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

// emit enqueues ev, evicting the oldest buffered event when full. The mutex
// serializes writers so the evict-then-send pair cannot race another emit.
func (c *ChannelEmitter) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- ev:
		return
	default:
	}
	// Full: drop the oldest, then retry once. The receiver may have drained
	// a slot in between, in which case the retry lands anyway.
	select {
	case <-c.ch:
	default:
	}
	select {
	case c.ch <- ev:
	default:
	}
}

func (c *ChannelEmitter) AgentOutput(agentID, chunk string) {
	c.emit(Event{Type: TypeAgentOutput, Timestamp: time.Now(), AgentID: agentID, Chunk: chunk})
}

func (c *ChannelEmitter) AgentStatus(agentID string, status models.AgentStatus, exitCode *int) {
	c.emit(Event{Type: TypeAgentStatus, Timestamp: time.Now(), AgentID: agentID, Status: status, ExitCode: exitCode})
}

func (c *ChannelEmitter) MCPToolResult(serverID, tool, result, errMsg string) {
	c.emit(Event{Type: TypeMCPToolResult, Timestamp: time.Now(), ServerID: serverID, Tool: tool, Result: result, ErrMsg: errMsg})
}

func (c *ChannelEmitter) JobProgress(jobID string, progress int, stage string) {
	c.emit(Event{Type: TypeJobProgress, Timestamp: time.Now(), JobID: jobID, Progress: progress, Stage: stage})
}
