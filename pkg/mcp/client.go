// Package mcp connects agents to MCP (Model Context Protocol) tool servers
// and post-processes agent output for tool-call patterns. Servers run as
// stdio subprocesses; sessions are created lazily on first use and recovered
// once on transport failure.
package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codehive/swarmd/pkg/config"
	"github.com/codehive/swarmd/pkg/version"
)

const (
	// initTimeout bounds transport spawn + handshake for one server.
	initTimeout = 30 * time.Second

	// operationTimeout is the per-call deadline for CallTool and ListTools.
	// Slow tools are legitimate; the job timeout is the ceiling above this.
	operationTimeout = 90 * time.Second

	// retryBackoffMin/Max bound the jittered pause before the single retry.
	retryBackoffMin = 250 * time.Millisecond
	retryBackoffMax = 750 * time.Millisecond
)

// Client manages MCP sessions for every configured server. One Client is
// scoped to a pipeline run. Thread-safe: parallel agents in a stage share it.
type Client struct {
	registry *config.MCPServerRegistry

	mu            sync.RWMutex
	sessions      map[string]*mcpsdk.ClientSession
	clients       map[string]*mcpsdk.Client
	failedServers map[string]string // serverID -> error message

	// Tool lists are cached on first listing. A Client lives for one run,
	// so the cache is naturally fresh; recreation invalidates per server.
	toolCache   map[string][]*mcpsdk.Tool
	toolCacheMu sync.RWMutex

	// Per-server mutex so concurrent lazy connects to the same server
	// collapse into one.
	initMu sync.Map // serverID -> *sync.Mutex

	logger *slog.Logger
}

// NewClient creates a Client over the configured server registry. No
// connections are opened until a server is first used or Initialize runs.
func NewClient(registry *config.MCPServerRegistry) *Client {
	return &Client{
		registry:      registry,
		sessions:      make(map[string]*mcpsdk.ClientSession),
		clients:       make(map[string]*mcpsdk.Client),
		failedServers: make(map[string]string),
		toolCache:     make(map[string][]*mcpsdk.Tool),
		logger:        slog.Default(),
	}
}

// ServerIDs returns every configured server id.
func (c *Client) ServerIDs() []string {
	if c.registry == nil {
		return nil
	}
	return c.registry.ServerIDs()
}

// Initialize eagerly connects every configured server. Failures are
// recorded, not fatal; check FailedServers afterwards when startup wants to
// insist. Used at boot so a misconfigured server surfaces before jobs run.
func (c *Client) Initialize(ctx context.Context) error {
	for _, serverID := range c.ServerIDs() {
		if err := c.EnsureServer(ctx, serverID); err != nil {
			c.mu.Lock()
			c.failedServers[serverID] = err.Error()
			c.mu.Unlock()
			c.logger.Warn("MCP server failed to initialize",
				"server", serverID, "error", err)
		}
	}
	return nil
}

// EnsureServer connects one server if it is not connected yet. Concurrent
// callers for the same server serialize on a per-server mutex so only one
// subprocess is spawned.
func (c *Client) EnsureServer(ctx context.Context, serverID string) error {
	muI, _ := c.initMu.LoadOrStore(serverID, &sync.Mutex{})
	mu := muI.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	return c.connectLocked(ctx, serverID)
}

// connectLocked dials one server. Caller must hold the per-server mutex.
func (c *Client) connectLocked(ctx context.Context, serverID string) error {
	c.mu.RLock()
	if _, exists := c.sessions[serverID]; exists {
		c.mu.RUnlock()
		return nil
	}
	c.mu.RUnlock()

	serverCfg, err := c.registry.Get(serverID)
	if err != nil {
		return fmt.Errorf("server %q not configured: %w", serverID, err)
	}

	transport, err := commandTransport(serverCfg)
	if err != nil {
		return fmt.Errorf("transport for %q: %w", serverID, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)

	session, err := client.Connect(initCtx, transport, nil)
	if err != nil {
		// Close the transport if it is closable so a half-spawned stdio
		// child doesn't leak.
		if closer, ok := transport.(io.Closer); ok {
			_ = closer.Close()
		}
		return fmt.Errorf("connect to %q: %w", serverID, err)
	}

	c.mu.Lock()
	c.sessions[serverID] = session
	c.clients[serverID] = client
	delete(c.failedServers, serverID)
	c.mu.Unlock()

	c.logger.Info("MCP server connected", "server", serverID)
	return nil
}

// ListTools returns the tools one server offers, from cache when present.
func (c *Client) ListTools(ctx context.Context, serverID string) ([]*mcpsdk.Tool, error) {
	// Lock ordering: never acquire c.mu while holding toolCacheMu.
	c.toolCacheMu.RLock()
	if cached, ok := c.toolCache[serverID]; ok {
		c.toolCacheMu.RUnlock()
		return cached, nil
	}
	c.toolCacheMu.RUnlock()

	if err := c.EnsureServer(ctx, serverID); err != nil {
		return nil, err
	}
	session, err := c.session(serverID)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	result, err := session.ListTools(opCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools from %q: %w", serverID, err)
	}

	tools := result.Tools
	if tools == nil {
		tools = []*mcpsdk.Tool{}
	}
	c.toolCacheMu.Lock()
	c.toolCache[serverID] = tools
	c.toolCacheMu.Unlock()

	return tools, nil
}

// ListAllTools returns tools from every configured server. Partial results
// are fine; it errors only when every server fails.
func (c *Client) ListAllTools(ctx context.Context) (map[string][]*mcpsdk.Tool, error) {
	serverIDs := c.ServerIDs()
	result := make(map[string][]*mcpsdk.Tool)
	var lastErr error
	for _, id := range serverIDs {
		tools, err := c.ListTools(ctx, id)
		if err != nil {
			lastErr = err
			c.logger.Warn("Failed to list tools from MCP server",
				"server", id, "error", err)
			continue
		}
		result[id] = tools
	}
	if len(result) == 0 && lastErr != nil {
		return nil, fmt.Errorf("all servers failed to list tools: %w", lastErr)
	}
	return result, nil
}

// CallTool executes one tool call, connecting the server lazily. Transient
// failures get exactly one retry after a jittered backoff, recreating the
// session when the transport broke.
func (c *Client) CallTool(ctx context.Context, serverID, toolName string, args map[string]any) (*mcpsdk.CallToolResult, error) {
	params := &mcpsdk.CallToolParams{
		Name:      toolName,
		Arguments: args,
	}

	result, err := c.callToolOnce(ctx, serverID, params)
	if err == nil {
		return result, nil
	}

	action := ClassifyError(err)
	if action == NoRetry {
		return nil, err
	}

	c.logger.Info("MCP call failed, retrying",
		"server", serverID, "tool", toolName,
		"action", action, "error", err)

	backoff := retryBackoffMin + time.Duration(rand.Int64N(int64(retryBackoffMax-retryBackoffMin)))
	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if action == RetryNewSession {
		if err := c.recreateSession(ctx, serverID); err != nil {
			return nil, fmt.Errorf("session recreation failed for %q: %w", serverID, err)
		}
	}

	result, err = c.callToolOnce(ctx, serverID, params)
	if err != nil {
		return nil, fmt.Errorf("retry failed for %q.%s: %w", serverID, toolName, err)
	}
	return result, nil
}

func (c *Client) callToolOnce(ctx context.Context, serverID string, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error) {
	if err := c.EnsureServer(ctx, serverID); err != nil {
		return nil, err
	}
	session, err := c.session(serverID)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	return session.CallTool(opCtx, params)
}

func (c *Client) session(serverID string) (*mcpsdk.ClientSession, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	session, exists := c.sessions[serverID]
	if !exists {
		return nil, fmt.Errorf("no session for server %q", serverID)
	}
	return session, nil
}

// recreateSession tears down and re-dials one server. If two goroutines
// race in here the second tears down a fresh session and dials again; the
// cost is one extra spawn, which keeps the logic simple.
func (c *Client) recreateSession(ctx context.Context, serverID string) error {
	muI, _ := c.initMu.LoadOrStore(serverID, &sync.Mutex{})
	mu := muI.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	c.mu.Lock()
	if session, exists := c.sessions[serverID]; exists {
		_ = session.Close()
		delete(c.sessions, serverID)
		delete(c.clients, serverID)
	}
	c.mu.Unlock()

	c.toolCacheMu.Lock()
	delete(c.toolCache, serverID)
	c.toolCacheMu.Unlock()

	return c.connectLocked(ctx, serverID)
}

// Close shuts down every session and its stdio subprocess.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for id, session := range c.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close session %q: %w", id, err)
		}
	}
	c.sessions = make(map[string]*mcpsdk.ClientSession)
	c.clients = make(map[string]*mcpsdk.Client)
	c.failedServers = make(map[string]string)

	c.toolCacheMu.Lock()
	c.toolCache = make(map[string][]*mcpsdk.Tool)
	c.toolCacheMu.Unlock()

	return firstErr
}

// HasSession reports whether a server is currently connected.
func (c *Client) HasSession(serverID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.sessions[serverID]
	return exists
}

// FailedServers returns a copy of the servers that failed to initialize.
func (c *Client) FailedServers() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make(map[string]string, len(c.failedServers))
	for k, v := range c.failedServers {
		result[k] = v
	}
	return result
}
