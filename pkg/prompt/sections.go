package prompt

import (
	"fmt"
	"strings"

	"github.com/codehive/swarmd/pkg/models"
)

// FormatTaskSection wraps the user's task text in a delimited section.
// The HTML comment markers keep task text visually separate from the
// surrounding instructions even when it contains its own headings.
func FormatTaskSection(task string) string {
	var sb strings.Builder
	sb.WriteString("## Task\n\n")
	if task == "" {
		sb.WriteString("No task text provided.\n")
		return sb.String()
	}
	sb.WriteString("<!-- TASK START -->\n")
	sb.WriteString(task)
	sb.WriteString("\n<!-- TASK END -->\n")
	return sb.String()
}

// FormatResearchSection wraps merged research findings for the planner.
func FormatResearchSection(research string) string {
	if research == "" {
		return "## Research Findings\nNo research findings are available. Plan from the task alone.\n"
	}
	var sb strings.Builder
	sb.WriteString("## Research Findings\n\n")
	sb.WriteString("<!-- RESEARCH START -->\n")
	sb.WriteString(research)
	sb.WriteString("\n<!-- RESEARCH END -->\n")
	return sb.String()
}

// FormatPlanSection wraps the winning plan for downstream stages.
func FormatPlanSection(plan string) string {
	if plan == "" {
		return "## Implementation Plan\nNo plan was produced. Implement directly from the task.\n"
	}
	var sb strings.Builder
	sb.WriteString("## Implementation Plan\n\n")
	sb.WriteString("<!-- PLAN START -->\n")
	sb.WriteString(plan)
	sb.WriteString("\n<!-- PLAN END -->\n")
	return sb.String()
}

// FormatCandidateSection numbers each candidate change set for the review
// stages. Review prompts reference candidates by this numbering.
func FormatCandidateSection(candidates []string) string {
	if len(candidates) == 0 {
		return "## Candidate Changes\nNo candidate changes were produced.\n"
	}
	var sb strings.Builder
	sb.WriteString("## Candidate Changes\n\n")
	for i, out := range candidates {
		sb.WriteString(fmt.Sprintf("### Candidate %d\n\n", i+1))
		if out == "" {
			sb.WriteString("(empty output)")
		} else {
			sb.WriteString(out)
		}
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// FormatCheckSection wraps the automated check report for the security
// stage. report is the output of checks.Summarize.
func FormatCheckSection(report string) string {
	if report == "" {
		return "## Automated Check Results\nNo automated checks were run.\n"
	}
	var sb strings.Builder
	sb.WriteString("## Automated Check Results\n\n")
	sb.WriteString(report)
	if !strings.HasSuffix(report, "\n") {
		sb.WriteString("\n")
	}
	return sb.String()
}

// StageOutput pairs a pipeline role with its best output, for building the
// synthesis context.
type StageOutput struct {
	Role   models.AgentRole
	Output string
}

// FormatStageContext formats completed stage outputs in pipeline order for
// the synthesizer. Returns "" when there is nothing to carry over.
func FormatStageContext(stages []StageOutput) string {
	if len(stages) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("<!-- STAGE_CONTEXT_START -->\n\n")
	for i, stage := range stages {
		sb.WriteString(fmt.Sprintf("### Stage %d: %s\n\n", i+1, stage.Role))
		if stage.Output != "" {
			sb.WriteString(stage.Output)
		} else {
			sb.WriteString("(no output produced)")
		}
		sb.WriteString("\n\n")
	}
	sb.WriteString("<!-- STAGE_CONTEXT_END -->")
	return sb.String()
}

// Exchange is one prompt/answer pair from an earlier job in the same chat
// session.
type Exchange struct {
	Prompt string
	Answer string
}

// FormatHistorySection formats prior session exchanges, oldest first, for
// chat continuity. Returns "" when the session has no history.
func FormatHistorySection(history []Exchange) string {
	if len(history) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Conversation So Far\n\n")
	for _, ex := range history {
		sb.WriteString("**User:** ")
		sb.WriteString(ex.Prompt)
		sb.WriteString("\n\n")
		if ex.Answer != "" {
			sb.WriteString("**Assistant:** ")
			sb.WriteString(ex.Answer)
			sb.WriteString("\n\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// FormatTicketSection renders a backlog ticket as the work brief for a
// project-mode coder.
func FormatTicketSection(t *models.Ticket) string {
	if t == nil {
		return "## Ticket\nNo ticket details available.\n"
	}
	var sb strings.Builder
	sb.WriteString("## Ticket: ")
	sb.WriteString(t.Title)
	sb.WriteString("\n\n")
	if t.Description != "" {
		sb.WriteString(t.Description)
		sb.WriteString("\n\n")
	}
	if len(t.AcceptanceCriteria) > 0 {
		sb.WriteString("**Acceptance criteria:**\n")
		for _, c := range t.AcceptanceCriteria {
			sb.WriteString("- ")
			sb.WriteString(c)
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}
