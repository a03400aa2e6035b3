package orchestrator

import (
	"context"
	"errors"

	"github.com/codehive/swarmd/pkg/confidence"
	"github.com/codehive/swarmd/pkg/events"
	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/stage"
)

// chatConfidence is the fixed score of a single-agent answer: one output
// has nothing to agree or disagree with.
const chatConfidence = 50

// runChat answers the prompt with a single coder agent: no worktree, no
// multi-stage consensus. The evidence sufficiency check screens the
// answer; a sufficiently evidenced one is released as-is, anything weaker
// goes through the full guardrail policy.
func (p *Pipeline) runChat(ctx context.Context, rs *runState) (*models.SwarmResult, error) {
	events.JobProgress(p.req.Emitter, p.req.JobID, 10, "chat")

	promptText := p.orch.prompts.Chat(p.req.Prompt, p.req.History)

	settings := p.req.Settings
	settings.WorktreeIsolation = false
	res := rs.stages.RunStage(ctx, stage.Spec{
		Role:        models.RoleCoder,
		Prompt:      promptText,
		Count:       1,
		Providers:   rs.providers,
		ProjectPath: p.req.ProjectPath,
		Settings:    settings,
		EvidenceID:  rs.evidenceID,
		Emitter:     p.req.Emitter,
	})
	rs.absorb(res)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(res.Outputs) == 0 {
		return nil, &PipelineError{
			Category:  CategoryResource,
			Retryable: true,
			Recovery:  "check the provider CLI installation and API keys",
			Err:       errors.New("chat agent produced no output"),
		}
	}

	result := &models.SwarmResult{
		FinalOutput:      res.Outputs[0],
		Confidence:       chatConfidence,
		Agents:           rs.agentValues(),
		Sources:          rs.sourceList(),
		ValidationPassed: true,
	}

	if !confidence.EvidenceSufficient(result.Confidence, p.evidenceCounts(ctx, rs)) {
		p.applyGuardrail(ctx, rs, result, true)
	}

	events.JobProgress(p.req.Emitter, p.req.JobID, 100, "done")
	return result, nil
}
