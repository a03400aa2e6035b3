package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codehive/swarmd/pkg/config"
	"github.com/codehive/swarmd/pkg/models"
)

func newToolBuilder(t *testing.T, serverIDs ...string) *Builder {
	t.Helper()
	servers := make([]config.MCPServerConfig, 0, len(serverIDs))
	for _, id := range serverIDs {
		servers = append(servers, config.MCPServerConfig{ID: id, Command: "npx"})
	}
	return NewBuilder(config.NewMCPServerRegistry(servers))
}

func TestResearchDepths(t *testing.T) {
	tests := []struct {
		name   string
		depth  config.ResearchDepth
		marker string
		absent string
	}{
		{"shallow", config.ResearchDepthShallow, "Depth: shallow", "Depth: medium"},
		{"medium", config.ResearchDepthMedium, "Depth: medium", "Depth: shallow"},
		{"deep", config.ResearchDepthDeep, "Depth: deep", "Depth: shallow"},
		{"unknown falls back to medium", config.ResearchDepth("bogus"), "Depth: medium", "Depth: deep"},
	}

	b := NewBuilder(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := b.Research("add retry logic to the fetcher", tt.depth)
			assert.Contains(t, out, "## Research Instructions")
			assert.Contains(t, out, "add retry logic to the fetcher")
			assert.Contains(t, out, tt.marker)
			assert.NotContains(t, out, tt.absent)
		})
	}
}

func TestPlanIncludesResearch(t *testing.T) {
	b := NewBuilder(nil)

	out := b.Plan("build a rate limiter", "token bucket beats sliding window here")
	assert.Contains(t, out, "## Planning Instructions")
	assert.Contains(t, out, "## Research Findings")
	assert.Contains(t, out, "token bucket beats sliding window here")
	assert.Contains(t, out, "build a rate limiter")

	empty := b.Plan("build a rate limiter", "")
	assert.Contains(t, empty, "Plan from the task alone")
}

func TestCodeIncludesPlanAndTools(t *testing.T) {
	t.Run("no servers means no tool section", func(t *testing.T) {
		b := NewBuilder(nil)
		out := b.Code("task", "1. write the handler", "")
		assert.Contains(t, out, "## Coding Instructions")
		assert.Contains(t, out, "<!-- PLAN START -->")
		assert.Contains(t, out, "1. write the handler")
		assert.NotContains(t, out, "## Available Tools")
	})

	t.Run("servers without catalog fall back to server list", func(t *testing.T) {
		b := newToolBuilder(t, "github")
		out := b.Code("task", "plan", "")
		assert.Contains(t, out, "## Available Tools")
		assert.Contains(t, out, "Configured tool servers: github")
		assert.Contains(t, out, "```tool_call")
		assert.Contains(t, out, "[[mcp:server-id.tool-name")
	})

	t.Run("catalog replaces the fallback list", func(t *testing.T) {
		b := newToolBuilder(t, "github")
		out := b.Code("task", "plan", "1. **github.create_issue**: opens an issue\n")
		assert.Contains(t, out, "github.create_issue")
		assert.NotContains(t, out, "Live tool listings were unavailable")
		assert.Contains(t, out, "```tool_call")
	})

	t.Run("missing plan is called out", func(t *testing.T) {
		b := NewBuilder(nil)
		out := b.Code("task", "", "")
		assert.Contains(t, out, "Implement directly from the task")
	})
}

func TestValidateNumbersCandidates(t *testing.T) {
	b := NewBuilder(nil)
	out := b.Validate("fix the parser", []string{"first attempt", "second attempt"})

	require.Contains(t, out, "### Candidate 1")
	require.Contains(t, out, "### Candidate 2")
	assert.Less(t, strings.Index(out, "first attempt"), strings.Index(out, "second attempt"))
	assert.Contains(t, out, "## Validation Instructions")
}

func TestSecurityIncludesCheckReport(t *testing.T) {
	b := NewBuilder(nil)

	report := "- lint: PASS\n- audit: FAIL (2 findings)"
	out := b.Security("harden the API", []string{"candidate"}, report)
	assert.Contains(t, out, "## Security Review Instructions")
	assert.Contains(t, out, "## Automated Check Results")
	assert.Contains(t, out, "audit: FAIL (2 findings)")

	empty := b.Security("harden the API", []string{"candidate"}, "")
	assert.Contains(t, empty, "No automated checks were run")
}

func TestSynthesizeCarriesStageResults(t *testing.T) {
	b := NewBuilder(nil)

	out := b.Synthesize("ship it", []StageOutput{
		{Role: models.RoleResearcher, Output: "the findings"},
		{Role: models.RoleCoder, Output: "the diff"},
	})
	assert.Contains(t, out, "## Synthesis Instructions")
	assert.Contains(t, out, "## Stage Results")
	assert.Contains(t, out, "### Stage 1: researcher")
	assert.Contains(t, out, "### Stage 2: coder")
	assert.Less(t, strings.Index(out, "the findings"), strings.Index(out, "the diff"))

	bare := b.Synthesize("ship it", nil)
	assert.NotContains(t, bare, "## Stage Results")
}

func TestChatPrependsHistory(t *testing.T) {
	b := NewBuilder(nil)

	out := b.Chat("and how do I test it?", []Exchange{
		{Prompt: "write a mutex wrapper", Answer: "here is the wrapper"},
	})
	assert.Contains(t, out, "## Conversation So Far")
	assert.Contains(t, out, "**User:** write a mutex wrapper")
	assert.Contains(t, out, "**Assistant:** here is the wrapper")
	assert.Contains(t, out, "and how do I test it?")
	assert.Less(t, strings.Index(out, "write a mutex wrapper"), strings.Index(out, "and how do I test it?"))

	fresh := b.Chat("hello", nil)
	assert.NotContains(t, fresh, "## Conversation So Far")
	assert.Contains(t, fresh, "hello")
}

func TestTicketTask(t *testing.T) {
	b := newToolBuilder(t, "github")
	ticket := &models.Ticket{
		ID:          "t-1",
		Title:       "Add login endpoint",
		Description: "POST /login with session cookie",
		AcceptanceCriteria: []string{
			"returns 200 with valid credentials",
			"returns 401 otherwise",
		},
	}

	out := b.TicketTask(ticket, "1. auth middleware\n2. login endpoint")
	assert.Contains(t, out, "## Ticket: Add login endpoint")
	assert.Contains(t, out, "POST /login with session cookie")
	assert.Contains(t, out, "- returns 401 otherwise")
	assert.Contains(t, out, "2. login endpoint")
	assert.Contains(t, out, "## Available Tools")
	assert.Contains(t, out, "acceptance criterion")
}
