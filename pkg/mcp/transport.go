package mcp

import (
	"fmt"
	"os"
	"os/exec"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codehive/swarmd/pkg/config"
)

// commandTransport builds the stdio transport for one server: the server
// binary as a child process speaking MCP over stdin/stdout. The child gets
// the parent environment with the configured overrides on top.
func commandTransport(cfg *config.MCPServerConfig) (mcpsdk.Transport, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("server %q has no command", cfg.ID)
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	env := os.Environ()
	for k, v := range cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = env

	return &mcpsdk.CommandTransport{Command: cmd}, nil
}
