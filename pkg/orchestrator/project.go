package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codehive/swarmd/pkg/confidence"
	"github.com/codehive/swarmd/pkg/events"
	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/stage"
	"github.com/codehive/swarmd/pkg/ticket"
)

// maxTicketAttempts is how many runs a coder ticket gets before it is
// escalated instead of retried.
const maxTicketAttempts = 3

// rootTitleMax caps the feature root's title length.
const rootTitleMax = 80

// planSection is one unit of decomposed work.
type planSection struct {
	Title string
	Body  string
}

// runProject plans the work, decomposes it into backlog tickets and
// executes the coder tickets one at a time, each in its own worktree. A
// ticket that exhausts its retries is escalated rather than blocking the
// run; validation and security close the project out.
func (p *Pipeline) runProject(ctx context.Context, rs *runState) (*models.SwarmResult, error) {
	if p.orch.deps.Tickets == nil {
		return nil, &PipelineError{
			Category: CategoryValidation,
			Recovery: "wire a ticket manager before using project mode",
			Err:      errors.New("project mode requires the ticket manager"),
		}
	}
	counts := p.req.Settings.ParallelCounts
	em := p.req.Emitter
	jobID := p.req.JobID
	tm := p.orch.deps.Tickets

	// plan
	events.JobProgress(em, jobID, 10, "plan")
	planRes := p.runStage(ctx, rs, models.RolePlanner,
		p.orch.prompts.Plan(p.req.Prompt, ""), counts[models.RolePlanner])
	bestPlan := bestOutput(planRes.Outputs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sections := decomposeSections(p.req.Prompt, bestPlan)

	// backlog: a feature root groups the run, work tickets hang off its
	// project id with dependencies expressing execution order
	root, err := tm.Create(ctx, ticket.CreateRequest{
		Title:       rootTitle(p.req.Prompt),
		Description: bestPlan,
		Level:       models.LevelFeature,
	})
	if err != nil {
		return nil, fmt.Errorf("create feature root: %w", err)
	}
	if p.orch.deps.Evidence != nil && rs.evidenceID != "" {
		if err := p.orch.deps.Evidence.LinkTicket(ctx, rs.evidenceID, root.ID); err != nil {
			p.orch.logger.Warn("Evidence link failed", "ticket_id", root.ID, "error", err)
		}
	}

	plannerTicket, err := tm.Create(ctx, ticket.CreateRequest{
		ProjectID:    root.ID,
		Title:        "Plan: " + rootTitle(p.req.Prompt),
		Description:  bestPlan,
		AssignedRole: models.RolePlanner,
	})
	if err != nil {
		return nil, fmt.Errorf("create planner ticket: %w", err)
	}
	// the plan stage already ran; quick-complete its ticket
	p.advance(ctx, plannerTicket.ID, models.TicketStatusDone)

	coderTickets := make([]*models.Ticket, 0, len(sections))
	prevID := plannerTicket.ID
	for _, sec := range sections {
		t, err := tm.Create(ctx, ticket.CreateRequest{
			ProjectID:    root.ID,
			Title:        sec.Title,
			Description:  sec.Body,
			AssignedRole: models.RoleCoder,
			Dependencies: []string{prevID},
		})
		if err != nil {
			return nil, fmt.Errorf("create coder ticket %q: %w", sec.Title, err)
		}
		coderTickets = append(coderTickets, t)
		prevID = t.ID
	}

	coderIDs := make([]string, len(coderTickets))
	for i, t := range coderTickets {
		coderIDs[i] = t.ID
	}
	validatorTicket, err := tm.Create(ctx, ticket.CreateRequest{
		ProjectID:    root.ID,
		Title:        "Validate: " + rootTitle(p.req.Prompt),
		Description:  "Review the combined coder output against the plan.",
		AssignedRole: models.RoleValidator,
		Dependencies: coderIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("create validator ticket: %w", err)
	}
	securityTicket, err := tm.Create(ctx, ticket.CreateRequest{
		ProjectID:    root.ID,
		Title:        "Security audit: " + rootTitle(p.req.Prompt),
		Description:  "Audit the combined coder output and the automated check results.",
		AssignedRole: models.RoleSecurity,
		Dependencies: []string{validatorTicket.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("create security ticket: %w", err)
	}

	p.orch.logger.Info("Project decomposed",
		"root_id", root.ID, "sections", len(sections))

	// execute coder tickets sequentially
	var (
		coderOutputs []string
		coderConfSum int
		completed    int
	)
	ticketDone := make(map[string]bool, len(coderTickets))
	for i, t := range coderTickets {
		events.JobProgress(em, jobID, 20+60*i/len(coderTickets), "ticket:"+t.Title)
		output, conf, done := p.executeTicket(ctx, rs, t, bestPlan)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if output != "" {
			coderOutputs = append(coderOutputs, output)
		}
		coderConfSum += conf
		ticketDone[t.ID] = done
		if done {
			completed++
		}
	}
	if len(coderTickets) > 0 {
		rs.byStage[models.RoleCoder] = coderConfSum / len(coderTickets)
	}

	// final validate stage over the combined coder output
	events.JobProgress(em, jobID, 85, "validate")
	p.advance(ctx, validatorTicket.ID, models.TicketStatusInProgress)
	valRes := p.runStage(ctx, rs, models.RoleValidator,
		p.orch.prompts.Validate(p.req.Prompt, coderOutputs), counts[models.RoleValidator])
	valOK := allValid(valRes.Validations)
	p.closeReviewTicket(ctx, validatorTicket.ID, valOK)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// security checks and agents
	events.JobProgress(em, jobID, 95, "security")
	p.advance(ctx, securityTicket.ID, models.TicketStatusInProgress)
	checkReport, checksOK := p.runChecks(ctx, rs)
	secRes := p.runStage(ctx, rs, models.RoleSecurity,
		p.orch.prompts.Security(p.req.Prompt, coderOutputs, checkReport),
		counts[models.RoleSecurity])
	secOK := checksOK && allValid(secRes.Validations)
	p.closeReviewTicket(ctx, securityTicket.ID, secOK)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	validationPassed := valOK && checksOK && completed == len(coderTickets)
	result := &models.SwarmResult{
		FinalOutput:      projectReport(coderTickets, ticketDone, completed, valOK, secOK, checkReport),
		Confidence:       confidence.FinalConfidence(rs.byStage),
		Agents:           rs.agentValues(),
		Sources:          rs.sourceList(),
		ValidationPassed: validationPassed,
	}
	p.applyGuardrail(ctx, rs, result, validationPassed)

	events.JobProgress(em, jobID, 100, "done")
	return result, nil
}

// executeTicket drives one coder ticket through its lifecycle: up to
// maxTicketAttempts runs with review after each, escalation once the
// retries are spent. Returns the last output, its gate confidence and
// whether the ticket reached done.
func (p *Pipeline) executeTicket(ctx context.Context, rs *runState, t *models.Ticket, plan string) (string, int, bool) {
	tm := p.orch.deps.Tickets
	promptText := p.orch.prompts.TicketTask(t, plan)

	p.advance(ctx, t.ID, models.TicketStatusInProgress)

	var output string
	var conf int
	for attempt := 1; attempt <= maxTicketAttempts; attempt++ {
		res := rs.stages.RunStage(ctx, stage.Spec{
			Role:        models.RoleCoder,
			Prompt:      promptText,
			Count:       1,
			Providers:   rs.providers,
			ProjectPath: p.req.ProjectPath,
			Settings:    p.req.Settings,
			EvidenceID:  rs.evidenceID,
			Emitter:     p.req.Emitter,
		})
		rs.absorb(res)
		if ctx.Err() != nil {
			return output, conf, false
		}

		if len(res.Outputs) > 0 {
			output = res.Outputs[0]
		}
		conf = res.Gate.Confidence

		if p.orch.deps.Evidence != nil && rs.evidenceID != "" {
			if err := p.orch.deps.Evidence.LinkTicket(ctx, rs.evidenceID, t.ID); err != nil {
				p.orch.logger.Warn("Evidence link failed", "ticket_id", t.ID, "error", err)
			}
		}

		passed := len(res.Outputs) > 0 && res.Gate.Passed
		if passed {
			tm.RecordCodeReview(t.ID, true)
			tm.RecordTestResult(t.ID, true)
			p.advance(ctx, t.ID,
				models.TicketStatusReview, models.TicketStatusApproved, models.TicketStatusDone)
			return output, conf, true
		}

		p.orch.logger.Warn("Ticket attempt failed",
			"ticket_id", t.ID, "attempt", attempt, "gate_confidence", res.Gate.Confidence)
		tm.RecordCodeReview(t.ID, false)
		p.advance(ctx, t.ID, models.TicketStatusReview, models.TicketStatusRejected)
		if attempt < maxTicketAttempts {
			p.advance(ctx, t.ID, models.TicketStatusInProgress)
		}
	}

	p.escalateTicket(ctx, t)
	return output, conf, false
}

// closeReviewTicket walks a review-role ticket to done or rejected based
// on its stage outcome.
func (p *Pipeline) closeReviewTicket(ctx context.Context, id string, passed bool) {
	tm := p.orch.deps.Tickets
	if passed {
		tm.RecordCodeReview(id, true)
		tm.RecordTestResult(id, true)
		p.advance(ctx, id,
			models.TicketStatusReview, models.TicketStatusApproved, models.TicketStatusDone)
		return
	}
	p.advance(ctx, id, models.TicketStatusReview, models.TicketStatusRejected)
}

// advance walks a ticket through consecutive transitions, stopping at the
// first rejection so a rule mismatch cannot wedge the run.
func (p *Pipeline) advance(ctx context.Context, id string, steps ...models.TicketStatus) {
	for _, to := range steps {
		if _, err := p.orch.deps.Tickets.ExecuteTransition(ctx, id, to, pipelineActor); err != nil {
			p.orch.logger.Warn("Ticket transition failed",
				"ticket_id", id, "to", to, "error", err)
			return
		}
	}
}

// escalateTicket records that a ticket spent its retries. The escalation
// carries a dependency on the original so readiness keeps it ordered after
// a manual fix.
func (p *Pipeline) escalateTicket(ctx context.Context, t *models.Ticket) {
	esc, err := p.orch.deps.Tickets.Create(ctx, ticket.CreateRequest{
		ProjectID: t.ProjectID,
		Title:     "Escalation: " + t.Title,
		Description: fmt.Sprintf(
			"Ticket %s failed %d attempts and needs manual review.", t.ID, maxTicketAttempts),
		AssignedRole:     models.RoleValidator,
		Dependencies:     []string{t.ID},
		Type:             models.TicketTypeEscalation,
		OriginalTicketID: t.ID,
	})
	if err != nil {
		p.orch.logger.Warn("Escalation ticket creation failed", "ticket_id", t.ID, "error", err)
		return
	}
	p.orch.logger.Info("Ticket escalated", "ticket_id", t.ID, "escalation_id", esc.ID)
}

// decomposeSections derives work tickets from the run. Prompts written as
// structured briefs decompose on their own headings; otherwise the plan's
// headings drive it, and an unstructured run falls back to a single
// implementation ticket.
func decomposeSections(promptText, plan string) []planSection {
	if sections := headingSections(promptText); len(sections) > 0 {
		return sections
	}
	if sections := headingSections(plan); len(sections) > 0 {
		return sections
	}
	return []planSection{{Title: "Implementation", Body: promptText}}
}

// headingSections splits text on markdown headings. Text before the first
// heading is dropped; text without headings yields nothing.
func headingSections(text string) []planSection {
	var sections []planSection
	cur := -1
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			title := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			if title == "" {
				continue
			}
			sections = append(sections, planSection{Title: title})
			cur = len(sections) - 1
			continue
		}
		if cur >= 0 {
			sections[cur].Body += line + "\n"
		}
	}
	for i := range sections {
		sections[i].Body = strings.TrimSpace(sections[i].Body)
	}
	return sections
}

// rootTitle derives the feature root's title from the prompt's first
// non-empty line.
func rootTitle(promptText string) string {
	for _, line := range strings.Split(promptText, "\n") {
		trimmed := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if trimmed != "" {
			if runes := []rune(trimmed); len(runes) > rootTitleMax {
				return string(runes[:rootTitleMax])
			}
			return trimmed
		}
	}
	return "Project run"
}

// projectReport is the human-readable final output of a project run.
func projectReport(tickets []*models.Ticket, done map[string]bool, completed int, valOK, secOK bool, checkReport string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Project run complete: %d/%d tickets done.\n\n", completed, len(tickets))
	for _, t := range tickets {
		status := "escalated"
		if done[t.ID] {
			status = "done"
		}
		fmt.Fprintf(&sb, "- %s (%s)\n", t.Title, status)
	}
	verdict := func(ok bool) string {
		if ok {
			return "passed"
		}
		return "failed"
	}
	fmt.Fprintf(&sb, "\nValidation %s. Security review %s.\n", verdict(valOK), verdict(secOK))
	if checkReport != "" {
		sb.WriteString("\n")
		sb.WriteString(checkReport)
	}
	return sb.String()
}
