package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codehive/swarmd/pkg/models"
)

func TestFormatTaskSection(t *testing.T) {
	out := FormatTaskSection("do the thing")
	assert.Contains(t, out, "## Task")
	assert.Contains(t, out, "<!-- TASK START -->")
	assert.Contains(t, out, "do the thing")
	assert.Contains(t, out, "<!-- TASK END -->")

	assert.Contains(t, FormatTaskSection(""), "No task text provided")
}

func TestFormatStageContext(t *testing.T) {
	assert.Empty(t, FormatStageContext(nil))

	out := FormatStageContext([]StageOutput{
		{Role: models.RolePlanner, Output: "the plan"},
		{Role: models.RoleValidator, Output: ""},
	})
	assert.True(t, strings.HasPrefix(out, "<!-- STAGE_CONTEXT_START -->"))
	assert.True(t, strings.HasSuffix(out, "<!-- STAGE_CONTEXT_END -->"))
	assert.Contains(t, out, "### Stage 1: planner")
	assert.Contains(t, out, "### Stage 2: validator")
	assert.Contains(t, out, "(no output produced)")
	assert.Less(t, strings.Index(out, "planner"), strings.Index(out, "validator"))
}

func TestFormatHistorySection(t *testing.T) {
	assert.Empty(t, FormatHistorySection(nil))

	out := FormatHistorySection([]Exchange{
		{Prompt: "first question", Answer: "first answer"},
		{Prompt: "unanswered follow-up"},
	})
	assert.Contains(t, out, "**User:** first question")
	assert.Contains(t, out, "**Assistant:** first answer")
	assert.Contains(t, out, "**User:** unanswered follow-up")
	assert.Equal(t, 1, strings.Count(out, "**Assistant:**"))
}

func TestFormatCandidateSection(t *testing.T) {
	assert.Contains(t, FormatCandidateSection(nil), "No candidate changes were produced")

	out := FormatCandidateSection([]string{"alpha", ""})
	assert.Contains(t, out, "### Candidate 1")
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "### Candidate 2")
	assert.Contains(t, out, "(empty output)")
}

func TestFormatTicketSection(t *testing.T) {
	assert.Contains(t, FormatTicketSection(nil), "No ticket details available")

	out := FormatTicketSection(&models.Ticket{
		Title:              "Wire up metrics",
		AcceptanceCriteria: []string{"counter increments"},
	})
	assert.Contains(t, out, "## Ticket: Wire up metrics")
	assert.Contains(t, out, "**Acceptance criteria:**")
	assert.Contains(t, out, "- counter increments")
}
