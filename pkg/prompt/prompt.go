// Package prompt builds the text fed to pipeline agents. Each stage gets a
// role preamble, the task, and whatever context earlier stages produced,
// composed as markdown sections. Builders are stateless; all state arrives
// as parameters.
package prompt

import (
	"strings"

	"github.com/codehive/swarmd/pkg/config"
	"github.com/codehive/swarmd/pkg/models"
)

// Builder assembles stage prompts for every pipeline role. The MCP server
// registry is only consulted for the coder's tool section; a nil registry
// means no tools are offered.
type Builder struct {
	servers *config.MCPServerRegistry
}

// NewBuilder creates a Builder. servers may be nil when no MCP servers are
// configured.
func NewBuilder(servers *config.MCPServerRegistry) *Builder {
	return &Builder{servers: servers}
}

// Research builds the research-stage prompt. depth selects how much ground
// the agents are asked to cover; unknown values fall back to medium.
func (b *Builder) Research(task string, depth config.ResearchDepth) string {
	sections := []string{
		researcherInstructions,
		depthFocus(depth),
		FormatTaskSection(task),
		researchClosing,
	}
	return strings.Join(sections, "\n\n")
}

// Plan builds the planning-stage prompt from the task and the merged
// research findings.
func (b *Builder) Plan(task, research string) string {
	sections := []string{
		plannerInstructions,
		FormatTaskSection(task),
		FormatResearchSection(research),
		planClosing,
	}
	return strings.Join(sections, "\n\n")
}

// Code builds the coding-stage prompt. plan is the winning planner output;
// toolCatalog is a pre-formatted tool listing (see FormatToolCatalog) and
// may be empty when the live listing was unavailable.
func (b *Builder) Code(task, plan, toolCatalog string) string {
	sections := []string{
		coderInstructions,
		FormatTaskSection(task),
		FormatPlanSection(plan),
	}
	if tools := b.toolSection(toolCatalog); tools != "" {
		sections = append(sections, tools)
	}
	sections = append(sections, codeClosing)
	return strings.Join(sections, "\n\n")
}

// Validate builds the validation-stage prompt over the coder outputs.
func (b *Builder) Validate(task string, candidates []string) string {
	sections := []string{
		validatorInstructions,
		FormatTaskSection(task),
		FormatCandidateSection(candidates),
		validateClosing,
	}
	return strings.Join(sections, "\n\n")
}

// Security builds the security-review prompt. checkReport is the summary of
// the automated checks that ran before the agents.
func (b *Builder) Security(task string, candidates []string, checkReport string) string {
	sections := []string{
		securityInstructions,
		FormatTaskSection(task),
		FormatCandidateSection(candidates),
		FormatCheckSection(checkReport),
		securityClosing,
	}
	return strings.Join(sections, "\n\n")
}

// Synthesize builds the synthesis prompt over the best output of each
// completed stage.
func (b *Builder) Synthesize(task string, stages []StageOutput) string {
	sections := []string{
		synthesizerInstructions,
		FormatTaskSection(task),
	}
	if ctx := FormatStageContext(stages); ctx != "" {
		sections = append(sections, "## Stage Results\n"+ctx)
	}
	sections = append(sections, synthesizeClosing)
	return strings.Join(sections, "\n\n")
}

// Chat builds the prompt for a direct chat answer. history carries earlier
// exchanges from the same session, oldest first.
func (b *Builder) Chat(question string, history []Exchange) string {
	sections := []string{chatInstructions}
	if h := FormatHistorySection(history); h != "" {
		sections = append(sections, h)
	}
	sections = append(sections, FormatTaskSection(question))
	return strings.Join(sections, "\n\n")
}

// TicketTask builds the coder prompt for a single backlog ticket in project
// mode. plan is the project plan the ticket was decomposed from.
func (b *Builder) TicketTask(t *models.Ticket, plan string) string {
	sections := []string{
		coderInstructions,
		FormatTicketSection(t),
		FormatPlanSection(plan),
	}
	if tools := b.toolSection(""); tools != "" {
		sections = append(sections, tools)
	}
	sections = append(sections, ticketClosing)
	return strings.Join(sections, "\n\n")
}

func (b *Builder) serverIDs() []string {
	if b == nil || b.servers == nil {
		return nil
	}
	return b.servers.ServerIDs()
}

// toolSection renders the tool offering for stages that may call MCP tools.
// Empty when no servers are configured.
func (b *Builder) toolSection(catalog string) string {
	ids := b.serverIDs()
	if len(ids) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Available Tools\n\n")
	if catalog != "" {
		sb.WriteString(catalog)
	} else {
		sb.WriteString("Configured tool servers: ")
		sb.WriteString(strings.Join(ids, ", "))
		sb.WriteString(". Live tool listings were unavailable; call tools by their documented names.\n")
	}
	sb.WriteString("\n")
	sb.WriteString(toolUsage)
	return sb.String()
}

func depthFocus(depth config.ResearchDepth) string {
	switch depth {
	case config.ResearchDepthShallow:
		return shallowFocus
	case config.ResearchDepthDeep:
		return deepFocus
	default:
		return mediumFocus
	}
}
