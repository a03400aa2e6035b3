// Package guardrail gates final pipeline outputs. A policy evaluates the
// synthesized answer against confidence and evidence thresholds and replaces
// it with a structured refusal when the answer cannot be trusted.
package guardrail

import (
	"log/slog"
	"strings"

	"github.com/codehive/swarmd/pkg/models"
)

// refusalPhrases are substrings that mean the model itself declined. An
// output containing any of them is never released as a confident answer.
var refusalPhrases = []string{
	"i cannot",
	"i can't",
	"unable to",
	"insufficient information",
	"not enough context",
}

// promptSnippetMax bounds the prompt excerpt carried on a refusal payload.
const promptSnippetMax = 200

// Policy holds the thresholds a final output must clear.
type Policy struct {
	MinConfidence    int
	MinEvidenceCount int
}

// Input is everything the policy inspects for one evaluation.
type Input struct {
	Confidence               int
	Evidence                 []string
	CandidateOutput          string
	UpstreamValidationPassed bool
	Context                  models.RefusalContext
}

// Result reports the evaluation outcome. Refusal is non-nil exactly when
// Passed is false.
type Result struct {
	Passed   bool
	Failures []models.RefusalReason
	Refusal  *models.RefusalPayload
}

// Evaluate checks in against the policy. Every failing check contributes its
// reason; checks never short-circuit, so a refusal names everything wrong
// with the output at once.
func (p Policy) Evaluate(in Input) Result {
	var failures []models.RefusalReason

	if in.Confidence < p.MinConfidence {
		failures = append(failures, models.ReasonLowConfidence)
	}
	if len(in.Evidence) < p.MinEvidenceCount {
		failures = append(failures, models.ReasonInsufficientEvidence)
	}
	if !in.UpstreamValidationPassed {
		failures = append(failures, models.ReasonUpstreamValidationFailed)
	}
	if ContainsRefusalPhrase(in.CandidateOutput) {
		failures = append(failures, models.ReasonExplicitRefusalTriggered)
	}

	if len(failures) == 0 {
		return Result{Passed: true}
	}

	slog.Warn("Guardrail refused final output",
		"reasons", failures,
		"confidence", in.Confidence,
		"evidence_count", len(in.Evidence),
		"pipeline", in.Context.Pipeline,
		"mode", in.Context.Mode)

	ctx := in.Context
	ctx.PromptSnippet = TruncateSnippet(ctx.PromptSnippet)

	return Result{
		Failures: failures,
		Refusal: &models.RefusalPayload{
			Type:          models.RefusalPayloadType,
			Message:       models.RefusalMessage,
			Reasons:       failures,
			Confidence:    in.Confidence,
			EvidenceCount: len(in.Evidence),
			Policy: models.RefusalPolicy{
				MinConfidence:    p.MinConfidence,
				MinEvidenceCount: p.MinEvidenceCount,
			},
			Context: ctx,
		},
	}
}

// ContainsRefusalPhrase reports whether text matches any known refusal
// phrase, case-insensitively.
func ContainsRefusalPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// TruncateSnippet caps a prompt excerpt at the payload limit without
// splitting a rune.
func TruncateSnippet(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= promptSnippetMax {
		return prompt
	}
	return string(runes[:promptSnippetMax])
}
