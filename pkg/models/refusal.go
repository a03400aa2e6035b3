package models

// RefusalPolicy echoes the thresholds the guardrail applied, so consumers can
// see what the output was judged against.
type RefusalPolicy struct {
	MinConfidence    int `json:"minConfidence"`
	MinEvidenceCount int `json:"minEvidenceCount"`
}

// RefusalContext identifies where the refused run came from.
type RefusalContext struct {
	Pipeline      string       `json:"pipeline"`
	Mode          PipelineMode `json:"mode"`
	PromptSnippet string       `json:"promptSnippet"`
}

// RefusalPayload is the stable wire schema emitted when the guardrail refuses
// a final output. Field names must not change.
type RefusalPayload struct {
	Type          string          `json:"type"`
	Message       string          `json:"message"`
	Reasons       []RefusalReason `json:"reasons"`
	Confidence    int             `json:"confidence"`
	EvidenceCount int             `json:"evidenceCount"`
	Policy        RefusalPolicy   `json:"policy"`
	Context       RefusalContext  `json:"context"`
}

// RefusalPayloadType is the constant discriminator on every refusal payload.
const RefusalPayloadType = "guardrail_refusal"

// RefusalMessage is the fixed human-readable refusal message.
const RefusalMessage = "Final output refused by guardrail policy."

// PipelineContextOrchestrator and PipelineContextScheduled are the two valid
// values for RefusalContext.Pipeline.
const (
	PipelineContextOrchestrator = "orchestrator"
	PipelineContextScheduled    = "scheduled"
)
