package orchestrator

import (
	"context"

	"github.com/codehive/swarmd/pkg/confidence"
	"github.com/codehive/swarmd/pkg/events"
	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/prompt"
)

// maxSwarmAttempts caps full-pipeline re-runs in continuous mode.
const maxSwarmAttempts = 3

// attemptOutcome is what one pass over the six stages produced.
type attemptOutcome struct {
	synthesis  string
	confidence int
	refused    bool
	upstreamOK bool
}

// runSwarm drives the six-stage pipeline: research, plan, code, validate,
// security, synthesize. In continuous mode the whole loop repeats while
// final confidence stays under the rerun threshold, up to three attempts,
// accumulating agents and outputs across attempts.
func (p *Pipeline) runSwarm(ctx context.Context, rs *runState) (*models.SwarmResult, error) {
	attempts := 1
	if p.req.Settings.ContinuousMode {
		attempts = maxSwarmAttempts
	}

	var out attemptOutcome
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			p.orch.logger.Info("Continuous mode rerun",
				"attempt", attempt, "confidence", out.confidence,
				"threshold", p.req.Settings.AutoRerunThreshold)
		}
		var err error
		out, err = p.runSwarmAttempt(ctx, rs)
		if err != nil {
			return nil, err
		}
		if out.confidence >= p.req.Settings.AutoRerunThreshold {
			break
		}
	}

	if out.refused {
		p.orch.logger.Warn("Run refused: low confidence with no sources",
			"confidence", out.confidence)
		events.AgentOutput(p.req.Emitter, systemAgentID,
			"[REFUSED] confidence below floor with no sources\n")
		return &models.SwarmResult{
			FinalOutput:      "refused",
			Confidence:       out.confidence,
			Agents:           rs.agentValues(),
			Sources:          rs.sourceList(),
			ValidationPassed: false,
		}, nil
	}

	result := &models.SwarmResult{
		FinalOutput:      out.synthesis,
		Confidence:       out.confidence,
		Agents:           rs.agentValues(),
		Sources:          rs.sourceList(),
		ValidationPassed: out.upstreamOK,
	}
	p.applyGuardrail(ctx, rs, result, out.upstreamOK)

	events.JobProgress(p.req.Emitter, p.req.JobID, 100, "done")
	return result, nil
}

// runSwarmAttempt is one pass over the six stages. The final confidence is
// fully determined by the first five stages (the synthesizer carries no
// weight), so the refusal floor is checked before synthesis and a refused
// attempt skips the synthesizer entirely.
func (p *Pipeline) runSwarmAttempt(ctx context.Context, rs *runState) (attemptOutcome, error) {
	var out attemptOutcome
	counts := p.req.Settings.ParallelCounts
	em := p.req.Emitter
	jobID := p.req.JobID

	// 1. research
	events.JobProgress(em, jobID, 10, "research")
	research := p.runStage(ctx, rs, models.RoleResearcher,
		p.orch.prompts.Research(p.req.Prompt, p.req.Settings.ResearchDepth),
		counts[models.RoleResearcher])
	if err := ctx.Err(); err != nil {
		return out, err
	}

	// 2. plan
	events.JobProgress(em, jobID, 25, "plan")
	planRes := p.runStage(ctx, rs, models.RolePlanner,
		p.orch.prompts.Plan(p.req.Prompt, mergeOutputs(research.Outputs)),
		counts[models.RolePlanner])
	bestPlan := bestOutput(planRes.Outputs)
	if err := ctx.Err(); err != nil {
		return out, err
	}

	// 3. code
	events.JobProgress(em, jobID, 40, "code")
	codeRes := p.runStage(ctx, rs, models.RoleCoder,
		p.orch.prompts.Code(p.req.Prompt, bestPlan, p.toolCatalog(ctx)),
		counts[models.RoleCoder])
	bestCode := bestOutput(codeRes.Outputs)
	if p.req.ProjectPath != "" && bestCode != "" {
		// File claims in the best candidate must hold on disk; unverified
		// references shave the code stage's confidence.
		fc := confidence.FactCheck(bestCode, p.req.ProjectPath)
		rs.byStage[models.RoleCoder] = fc.Adjust(rs.byStage[models.RoleCoder])
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	// 4. validate, rerun once when agreement is poor
	events.JobProgress(em, jobID, 60, "validate")
	valPrompt := p.orch.prompts.Validate(p.req.Prompt, codeRes.Outputs)
	valRes := p.runStage(ctx, rs, models.RoleValidator, valPrompt, counts[models.RoleValidator])
	if counts[models.RoleValidator] > 0 &&
		confidence.ShouldRerun(rs.byStage[models.RoleValidator],
			passRate(valRes.Validations), allValid(valRes.Validations),
			p.req.Settings.AutoRerunThreshold) {
		p.orch.logger.Info("Validate stage rerun",
			"confidence", rs.byStage[models.RoleValidator],
			"threshold", p.req.Settings.AutoRerunThreshold)
		valRes = p.runStage(ctx, rs, models.RoleValidator, valPrompt, counts[models.RoleValidator])
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	// 5. security: automated checks feed the security agents
	events.JobProgress(em, jobID, 75, "security")
	checkReport, checksOK := p.runChecks(ctx, rs)
	secRes := p.runStage(ctx, rs, models.RoleSecurity,
		p.orch.prompts.Security(p.req.Prompt, codeRes.Outputs, checkReport),
		counts[models.RoleSecurity])
	if err := ctx.Err(); err != nil {
		return out, err
	}

	out.confidence = confidence.FinalConfidence(rs.byStage)
	out.upstreamOK = allValid(valRes.Validations) && checksOK
	if out.confidence < refusalConfidenceFloor && len(rs.sources) == 0 {
		out.refused = true
		return out, nil
	}

	// 6. synthesize
	events.JobProgress(em, jobID, 90, "synthesize")
	stageOuts := []prompt.StageOutput{
		{Role: models.RoleResearcher, Output: bestOutput(research.Outputs)},
		{Role: models.RolePlanner, Output: bestPlan},
		{Role: models.RoleCoder, Output: bestCode},
		{Role: models.RoleValidator, Output: bestOutput(valRes.Outputs)},
		{Role: models.RoleSecurity, Output: bestOutput(secRes.Outputs)},
	}
	synthRes := p.runStage(ctx, rs, models.RoleSynthesizer,
		p.orch.prompts.Synthesize(p.req.Prompt, stageOuts), 1)
	if err := ctx.Err(); err != nil {
		return out, err
	}
	if len(synthRes.Outputs) > 0 {
		out.synthesis = synthRes.Outputs[0]
	} else {
		// A dead synthesizer must not sink the run; fall back to the best
		// candidate.
		p.orch.logger.Warn("Synthesizer produced no output, using best candidate")
		out.synthesis = bestCode
	}
	return out, nil
}
