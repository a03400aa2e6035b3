package guardrail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codehive/swarmd/pkg/models"
)

func TestEvaluatePasses(t *testing.T) {
	p := Policy{MinConfidence: 75, MinEvidenceCount: 2}
	res := p.Evaluate(Input{
		Confidence:               80,
		Evidence:                 []string{"log:1", "diff:2"},
		CandidateOutput:          "here is the change",
		UpstreamValidationPassed: true,
	})

	assert.True(t, res.Passed)
	assert.Empty(t, res.Failures)
	assert.Nil(t, res.Refusal)
}

func TestEvaluateAccumulatesAllFailures(t *testing.T) {
	p := Policy{MinConfidence: 75, MinEvidenceCount: 2}
	res := p.Evaluate(Input{
		Confidence:               41,
		Evidence:                 nil,
		CandidateOutput:          "I cannot complete this request",
		UpstreamValidationPassed: true,
		Context: models.RefusalContext{
			Pipeline:      models.PipelineContextOrchestrator,
			Mode:          models.ModeChat,
			PromptSnippet: "fix the login flow",
		},
	})

	assert.False(t, res.Passed)
	assert.Equal(t, []models.RefusalReason{
		models.ReasonLowConfidence,
		models.ReasonInsufficientEvidence,
		models.ReasonExplicitRefusalTriggered,
	}, res.Failures)

	require.NotNil(t, res.Refusal)
	assert.Equal(t, models.RefusalPayloadType, res.Refusal.Type)
	assert.Equal(t, models.RefusalMessage, res.Refusal.Message)
	assert.Equal(t, res.Failures, res.Refusal.Reasons)
	assert.Equal(t, 41, res.Refusal.Confidence)
	assert.Zero(t, res.Refusal.EvidenceCount)
	assert.Equal(t, 75, res.Refusal.Policy.MinConfidence)
	assert.Equal(t, 2, res.Refusal.Policy.MinEvidenceCount)
	assert.Equal(t, "fix the login flow", res.Refusal.Context.PromptSnippet)
}

func TestEvaluateUpstreamValidation(t *testing.T) {
	p := Policy{MinConfidence: 0, MinEvidenceCount: 0}
	res := p.Evaluate(Input{
		Confidence:               90,
		CandidateOutput:          "done",
		UpstreamValidationPassed: false,
	})

	assert.False(t, res.Passed)
	assert.Equal(t, []models.RefusalReason{models.ReasonUpstreamValidationFailed}, res.Failures)
}

func TestEvaluateTruncatesPromptSnippet(t *testing.T) {
	p := Policy{MinConfidence: 100}
	res := p.Evaluate(Input{
		Confidence:               50,
		UpstreamValidationPassed: true,
		Context:                  models.RefusalContext{PromptSnippet: strings.Repeat("x", 300)},
	})

	require.NotNil(t, res.Refusal)
	assert.Len(t, res.Refusal.Context.PromptSnippet, 200)
}

func TestContainsRefusalPhrase(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"I CANNOT help with that", true},
		{"sorry, i can't do this", true},
		{"I am Unable To proceed", true},
		{"there is insufficient information here", true},
		{"not enough context to decide", true},
		{"the fix is straightforward", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ContainsRefusalPhrase(tt.text), tt.text)
	}
}

func TestTruncateSnippet(t *testing.T) {
	assert.Equal(t, "short", TruncateSnippet("short"))

	long := strings.Repeat("héllo", 100)
	got := TruncateSnippet(long)
	assert.Equal(t, 200, len([]rune(got)))
	assert.True(t, strings.HasPrefix(long, got))
}
