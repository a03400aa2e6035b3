package mcp

import (
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codehive/swarmd/pkg/config"
)

func TestCommandTransport(t *testing.T) {
	cfg := &config.MCPServerConfig{
		ID:      "kubernetes",
		Command: "npx",
		Args:    []string{"-y", "kubernetes-mcp-server@0.0.54"},
		Env:     map[string]string{"KUBECONFIG": "/home/test/.kube/config"},
	}

	transport, err := commandTransport(cfg)
	require.NoError(t, err)

	cmdTransport, ok := transport.(*mcpsdk.CommandTransport)
	require.True(t, ok)
	// exec.Command resolves the full path, so check Args[0] for the basename
	assert.Contains(t, cmdTransport.Command.Path, "npx")
	assert.Contains(t, cmdTransport.Command.Args, "-y")
	assert.Contains(t, cmdTransport.Command.Args, "kubernetes-mcp-server@0.0.54")
	assert.Contains(t, cmdTransport.Command.Env, "KUBECONFIG=/home/test/.kube/config")
	// Parent environment is inherited alongside the configured vars.
	assert.Greater(t, len(cmdTransport.Command.Env), 1)
}

func TestCommandTransportMissingCommand(t *testing.T) {
	_, err := commandTransport(&config.MCPServerConfig{ID: "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}
