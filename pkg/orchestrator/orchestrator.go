// Package orchestrator coordinates multi-agent pipeline runs. A request is
// dispatched to one of three mode runners — chat, swarm or project — each of
// which drives agent stages through the stage runner and always comes back
// with a SwarmResult: failures are classified into the pipeline error
// taxonomy and folded into the result rather than surfaced to the caller.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/codehive/swarmd/pkg/agent"
	"github.com/codehive/swarmd/pkg/cache"
	"github.com/codehive/swarmd/pkg/checks"
	"github.com/codehive/swarmd/pkg/config"
	"github.com/codehive/swarmd/pkg/confidence"
	"github.com/codehive/swarmd/pkg/events"
	"github.com/codehive/swarmd/pkg/evidence"
	"github.com/codehive/swarmd/pkg/guardrail"
	"github.com/codehive/swarmd/pkg/masking"
	"github.com/codehive/swarmd/pkg/mcp"
	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/prompt"
	"github.com/codehive/swarmd/pkg/stage"
	"github.com/codehive/swarmd/pkg/ticket"
	"github.com/codehive/swarmd/pkg/worktree"
)

// systemAgentID tags synthetic output lines (errors, refusal notices) in
// the agent output stream.
const systemAgentID = "system"

// refusalConfidenceFloor is the final confidence below which a sourceless
// swarm run is refused outright.
const refusalConfidenceFloor = 30

// evidenceSealTimeout bounds the ledger writes that happen after the run
// context is already done.
const evidenceSealTimeout = 5 * time.Second

// pipelineActor drives the ticket transitions the pipeline makes on its
// own behalf in project mode.
var pipelineActor = ticket.Actor{Email: "pipeline", Role: models.ActorAdmin}

// projectKeywords push a long prompt into project mode; swarmKeywords
// select the six-stage pipeline.
var (
	projectKeywords = []string{"build", "create app", "full project", "application", "implement system"}
	swarmKeywords   = []string{"refactor", "review", "fix", "optimize", "test", "security audit", "code"}
)

// projectPromptMinLen is the prompt length project mode additionally
// requires; short prompts never classify as projects.
const projectPromptMinLen = 200

// DetectMode classifies a prompt when the caller did not pick a mode.
func DetectMode(text string) models.PipelineMode {
	lower := strings.ToLower(text)
	if len(text) > projectPromptMinLen && containsAny(lower, projectKeywords) {
		return models.ModeProject
	}
	if containsAny(lower, swarmKeywords) {
		return models.ModeSwarm
	}
	return models.ModeChat
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Request describes one pipeline run.
type Request struct {
	// Prompt is the user's task or question.
	Prompt string

	// Settings is the effective settings snapshot the run operates under.
	Settings config.Settings

	// ProjectPath roots worktrees, automated checks and fact verification.
	// Empty means the run has no filesystem context.
	ProjectPath string

	// Mode selects the runner. Empty or invalid means detect from the
	// prompt.
	Mode models.PipelineMode

	// JobID tags progress events so queue observers can attribute them.
	JobID string

	// History is prior chat exchanges prepended to chat prompts.
	History []prompt.Exchange

	// PipelineContext labels refusal payloads. Defaults to "orchestrator";
	// the scheduler passes "scheduled".
	PipelineContext string

	// Emitter receives progress callbacks. Nil discards them.
	Emitter events.Emitter
}

// Deps bundles the orchestrator's collaborators. Registry is required.
// Tickets, Evidence, Checks, MCP and Embedder may be nil in reduced
// setups; the corresponding steps are skipped.
type Deps struct {
	Registry  *config.ProviderRegistry
	Servers   *config.MCPServerRegistry
	Cache     *cache.Cache
	Worktrees *worktree.Manager
	Masker    *masking.Service
	MCP       *mcp.Client
	Tickets   *ticket.Manager
	Evidence  *evidence.Ledger
	Checks    *checks.Runner
	Embedder  confidence.Embedder
	Logger    *slog.Logger
}

// Orchestrator builds pipelines. Safe for concurrent use; every run's
// mutable state lives on its Pipeline.
type Orchestrator struct {
	deps    Deps
	prober  *agent.Prober
	prompts *prompt.Builder
	scorer  *confidence.Scorer
	post    *mcp.PostProcessor
	logger  *slog.Logger
}

// New creates an Orchestrator from its collaborators.
func New(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var post *mcp.PostProcessor
	if deps.MCP != nil {
		post = mcp.NewPostProcessor(deps.MCP, deps.Masker)
	}
	return &Orchestrator{
		deps:    deps,
		prober:  agent.NewProber(),
		prompts: prompt.NewBuilder(deps.Servers),
		scorer:  confidence.NewScorer(deps.Embedder),
		post:    post,
		logger:  logger,
	}
}

// Pipeline is one cancellable run. Create it with NewPipeline, drive it
// with Run; Cancel may be called from any goroutine at any point in the
// pipeline's life.
type Pipeline struct {
	orch *Orchestrator
	req  Request
	mode models.PipelineMode

	mu        sync.Mutex
	cancelRun context.CancelFunc
	cancelled bool
	once      sync.Once
}

// NewPipeline prepares a run without starting it. Mode is detected from
// the prompt when the request leaves it unset.
func (o *Orchestrator) NewPipeline(req Request) *Pipeline {
	if req.Mode == "" || !req.Mode.IsValid() {
		req.Mode = DetectMode(req.Prompt)
	}
	if req.Emitter == nil {
		req.Emitter = events.NopEmitter{}
	}
	if req.PipelineContext == "" {
		req.PipelineContext = models.PipelineContextOrchestrator
	}
	return &Pipeline{orch: o, req: req, mode: req.Mode}
}

// Mode reports the resolved pipeline mode.
func (p *Pipeline) Mode() models.PipelineMode { return p.mode }

// Cancel stops the run. Cancelling the run context tears down every active
// agent process (SIGTERM, then SIGKILL) and clears pending retries, since
// both ride the same context. Idempotent, and safe to call before, during
// or after Run.
func (p *Pipeline) Cancel() {
	p.once.Do(func() {
		p.mu.Lock()
		p.cancelled = true
		cancel := p.cancelRun
		p.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		p.orch.logger.Info("Pipeline cancelled", "job_id", p.req.JobID, "mode", p.mode)
	})
}

func (p *Pipeline) wasCancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

// Run executes the pipeline to completion. The result is never nil: errors
// are classified and folded into it, and cancellation yields a "cancelled"
// result carrying whatever agents were created before the cut. The returned
// error is the classified *PipelineError for failed or cancelled runs and
// nil otherwise; guardrail refusals are successful runs.
func (p *Pipeline) Run(ctx context.Context) (*models.SwarmResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	p.cancelRun = cancel
	cancelled := p.cancelled
	p.mu.Unlock()
	if cancelled {
		cancel()
	}

	p.orch.logger.Info("Pipeline starting",
		"mode", p.mode, "job_id", p.req.JobID, "prompt_len", len(p.req.Prompt))

	rs := p.newRunState(runCtx)
	p.orch.logger.Info("Providers resolved", "providers", rs.providers)

	var (
		result *models.SwarmResult
		err    error
	)
	switch p.mode {
	case models.ModeProject:
		result, err = p.runProject(runCtx, rs)
	case models.ModeSwarm:
		result, err = p.runSwarm(runCtx, rs)
	default:
		result, err = p.runChat(runCtx, rs)
	}
	var runErr error
	if err != nil {
		var pe *PipelineError
		result, pe = p.failedResult(rs, err)
		runErr = pe
	}

	p.sealEvidence(rs)

	p.orch.logger.Info("Pipeline finished",
		"mode", p.mode, "job_id", p.req.JobID,
		"confidence", result.Confidence, "agents", len(result.Agents),
		"validation_passed", result.ValidationPassed)
	return result, runErr
}

// runState accumulates what a mode runner produces: agents in launch
// order, deduplicated sources and the per-stage agreement confidences the
// final score is computed from.
type runState struct {
	providers  []string
	evidenceID string
	stages     *stage.Runner

	agents  []*models.AgentInstance
	sources []string
	seen    map[string]struct{}
	byStage map[models.AgentRole]int
}

func (p *Pipeline) newRunState(ctx context.Context) *runState {
	o := p.orch
	settings := p.req.Settings

	providers := o.prober.Available(o.deps.Registry, settings)

	var evidenceID string
	if o.deps.Evidence != nil {
		id, err := o.deps.Evidence.CreatePipelineEvidence(ctx, p.req.ProjectPath)
		if err != nil {
			o.logger.Warn("Evidence entry creation failed", "error", err)
		} else {
			evidenceID = id
		}
	}

	runner := &agent.Runner{
		MaxRetries: settings.MaxRetries,
		RetryDelay: time.Duration(settings.RetryDelayMS) * time.Millisecond,
	}
	var sink stage.EvidenceSink
	if o.deps.Evidence != nil {
		sink = o.deps.Evidence
	}
	stages := stage.NewRunner(stage.Deps{
		Factory:   agent.NewFactory(o.deps.Registry, settings),
		Agents:    runner,
		Cache:     o.deps.Cache,
		Worktrees: o.deps.Worktrees,
		Masker:    o.deps.Masker,
		Post:      o.post,
		Evidence:  sink,
		Logger:    o.logger,
	})

	return &runState{
		providers:  providers,
		evidenceID: evidenceID,
		stages:     stages,
		seen:       make(map[string]struct{}),
		byStage:    make(map[models.AgentRole]int),
	}
}

// absorb folds a stage result into the run state.
func (rs *runState) absorb(res *stage.Result) {
	rs.agents = append(rs.agents, res.Agents...)
	for _, out := range res.Outputs {
		rs.addSources(out)
	}
}

func (rs *runState) addSources(text string) {
	for _, src := range confidence.ExtractSources(text) {
		if _, ok := rs.seen[src]; ok {
			continue
		}
		rs.seen[src] = struct{}{}
		rs.sources = append(rs.sources, src)
	}
}

func (rs *runState) agentValues() []models.AgentInstance {
	out := make([]models.AgentInstance, 0, len(rs.agents))
	for _, a := range rs.agents {
		out = append(out, *a.Clone())
	}
	return out
}

func (rs *runState) sourceList() []string {
	return append([]string(nil), rs.sources...)
}

// runStage executes one stage and folds its agents, sources and agreement
// confidence into the run state. Zero-count stages run vacuously and do
// not contribute a confidence entry.
func (p *Pipeline) runStage(ctx context.Context, rs *runState, role models.AgentRole, promptText string, count int) *stage.Result {
	res := rs.stages.RunStage(ctx, stage.Spec{
		Role:        role,
		Prompt:      promptText,
		Count:       count,
		Providers:   rs.providers,
		ProjectPath: p.req.ProjectPath,
		Settings:    p.req.Settings,
		EvidenceID:  rs.evidenceID,
		Emitter:     p.req.Emitter,
	})
	rs.absorb(res)
	if count > 0 {
		rs.byStage[role] = p.stageConfidence(ctx, res.Outputs)
	}
	return res
}

// stageConfidence scores agreement across a stage's outputs: hybrid
// embedding similarity when semantic validation is on, plain token overlap
// otherwise.
func (p *Pipeline) stageConfidence(ctx context.Context, outputs []string) int {
	if p.req.Settings.SemanticValidation {
		return p.orch.scorer.Hybrid(ctx, outputs).Value
	}
	return confidence.TokenOverlap(outputs)
}

// toolCatalog renders the live MCP tool listing for coder prompts. MCP
// failures degrade to an empty catalog.
func (p *Pipeline) toolCatalog(ctx context.Context) string {
	if p.orch.deps.MCP == nil {
		return ""
	}
	catalog, err := p.orch.deps.MCP.ListAllTools(ctx)
	if err != nil {
		p.orch.logger.Warn("MCP tool listing failed", "error", err)
		return ""
	}
	return prompt.FormatToolCatalog(catalog)
}

// runChecks executes the configured automated checks against the project
// and links each result into the evidence ledger. It returns the report
// for the security prompt and whether everything passed.
func (p *Pipeline) runChecks(ctx context.Context, rs *runState) (string, bool) {
	if p.orch.deps.Checks == nil || p.req.ProjectPath == "" {
		return "", true
	}
	results := p.orch.deps.Checks.RunAll(ctx, p.req.ProjectPath, p.req.Settings.Testing, p.req.Prompt)
	if p.orch.deps.Evidence != nil && rs.evidenceID != "" {
		for _, res := range results {
			if err := p.orch.deps.Evidence.LinkTestResult(ctx, rs.evidenceID, "check:"+res.Name, res.Passed, res.Summary); err != nil {
				p.orch.logger.Warn("Check result link failed", "check", res.Name, "error", err)
			}
		}
	}
	return checks.Summarize(results), checks.AllPassed(results)
}

// guardrailEvidence assembles the evidence reference list the policy
// counts: extracted sources plus ledger-derived refs.
func (p *Pipeline) guardrailEvidence(ctx context.Context, rs *runState) []string {
	refs := rs.sourceList()
	if p.orch.deps.Evidence == nil || rs.evidenceID == "" {
		return refs
	}
	entry, err := p.orch.deps.Evidence.Get(ctx, rs.evidenceID)
	if err != nil {
		p.orch.logger.Warn("Evidence lookup failed", "evidence_id", rs.evidenceID, "error", err)
		return refs
	}
	agentIDs := make([]string, 0, len(entry.CliExcerpts))
	for id := range entry.CliExcerpts {
		agentIDs = append(agentIDs, id)
	}
	sort.Strings(agentIDs)
	for _, id := range agentIDs {
		refs = append(refs, "log:"+id)
	}
	if entry.DiffSummary != "" {
		refs = append(refs, "diff:"+entry.ID)
	}
	for _, tid := range entry.TestIDs {
		refs = append(refs, "test:"+tid)
	}
	for _, snap := range entry.FileSnapshots {
		refs = append(refs, "file:"+snap.Path)
	}
	for _, shot := range entry.Screenshots {
		refs = append(refs, "screenshot:"+shot)
	}
	return refs
}

// evidenceCounts summarizes the run's evidence for the sufficiency check.
func (p *Pipeline) evidenceCounts(ctx context.Context, rs *runState) confidence.EvidenceCounts {
	ev := confidence.EvidenceCounts{Sources: len(rs.sources)}
	if p.orch.deps.Evidence != nil && rs.evidenceID != "" {
		if entry, err := p.orch.deps.Evidence.Get(ctx, rs.evidenceID); err == nil {
			ev.LogRefs = len(entry.CliExcerpts)
			if entry.DiffSummary != "" {
				ev.DiffRefs = 1
			}
			ev.TestIDs = len(entry.TestIDs)
			ev.ArtifactRefs = len(entry.FileSnapshots) + len(entry.Screenshots)
		}
	}
	ev.References = ev.Sources + ev.LogRefs + ev.DiffRefs + ev.TestIDs + ev.ArtifactRefs
	return ev
}

// applyGuardrail reviews a final output against the configured policy. On
// failure the refusal payload replaces the output, validation is marked
// failed and an escalation ticket records the refusal.
func (p *Pipeline) applyGuardrail(ctx context.Context, rs *runState, result *models.SwarmResult, upstreamPassed bool) {
	policy := guardrail.Policy{
		MinConfidence:    p.req.Settings.Guardrail.MinConfidence,
		MinEvidenceCount: p.req.Settings.Guardrail.MinEvidenceCount,
	}
	verdict := policy.Evaluate(guardrail.Input{
		Confidence:               result.Confidence,
		Evidence:                 p.guardrailEvidence(ctx, rs),
		CandidateOutput:          result.FinalOutput,
		UpstreamValidationPassed: upstreamPassed,
		Context: models.RefusalContext{
			Pipeline:      p.req.PipelineContext,
			Mode:          p.mode,
			PromptSnippet: guardrail.TruncateSnippet(p.req.Prompt),
		},
	})
	if verdict.Passed {
		return
	}

	p.orch.logger.Warn("Guardrail refused final output",
		"mode", p.mode, "confidence", result.Confidence, "failures", len(verdict.Failures))

	payload, err := json.Marshal(verdict.Refusal)
	if err != nil {
		p.orch.logger.Error("Refusal payload marshal failed", "error", err)
		result.FinalOutput = models.RefusalMessage
	} else {
		result.FinalOutput = string(payload)
	}
	result.ValidationPassed = false
	events.AgentOutput(p.req.Emitter, systemAgentID,
		fmt.Sprintf("[%s] %s\n", CategoryGuardrailRefusal, models.RefusalMessage))

	p.createRefusalTicket(ctx, rs, verdict)
}

// createRefusalTicket seeds a validator-assigned escalation ticket from a
// guardrail refusal. Failures are logged, never fatal: the refusal payload
// already reached the caller.
func (p *Pipeline) createRefusalTicket(ctx context.Context, rs *runState, verdict guardrail.Result) {
	if p.orch.deps.Tickets == nil {
		return
	}
	codes := make([]string, 0, len(verdict.Failures))
	for _, f := range verdict.Failures {
		codes = append(codes, string(f))
	}
	t, err := p.orch.deps.Tickets.Create(ctx, ticket.CreateRequest{
		Title: "Guardrail refusal: " + guardrail.TruncateSnippet(p.req.Prompt),
		Description: fmt.Sprintf(
			"The guardrail refused the final output (confidence %d).\nFailures: %s",
			verdict.Refusal.Confidence, strings.Join(codes, ", ")),
		AssignedRole: models.RoleValidator,
		Type:         models.TicketTypeEscalation,
	})
	if err != nil {
		p.orch.logger.Warn("Refusal escalation ticket creation failed", "error", err)
		return
	}
	p.orch.logger.Info("Refusal escalation ticket created", "ticket_id", t.ID)
	if p.orch.deps.Evidence != nil && rs.evidenceID != "" {
		if err := p.orch.deps.Evidence.LinkTicket(ctx, rs.evidenceID, t.ID); err != nil {
			p.orch.logger.Warn("Evidence link failed", "ticket_id", t.ID, "error", err)
		}
	}
}

// failedResult folds a classified error into a terminal result. A
// cancellation becomes the cancelled result; everything else surfaces the
// category and recovery hint on the system output stream.
func (p *Pipeline) failedResult(rs *runState, err error) (*models.SwarmResult, *PipelineError) {
	pe := Classify(err)
	if pe.Category == CategoryCancelled || p.wasCancelled() {
		if pe.Category != CategoryCancelled {
			pe = &PipelineError{Category: CategoryCancelled, Err: err}
		}
		return p.cancelledResult(rs), pe
	}

	p.orch.logger.Error("Pipeline failed",
		"mode", p.mode, "job_id", p.req.JobID, "category", pe.Category, "error", err)

	msg := fmt.Sprintf("[%s] Pipeline failed: %v", pe.Category, pe.Err)
	if pe.Recovery != "" {
		msg += "\nRecovery: " + pe.Recovery
	}
	events.AgentOutput(p.req.Emitter, systemAgentID, msg+"\n")

	return &models.SwarmResult{
		FinalOutput:      fmt.Sprintf("Pipeline failed: %v", pe.Err),
		Confidence:       0,
		Agents:           rs.agentValues(),
		Sources:          rs.sourceList(),
		ValidationPassed: false,
	}, pe
}

// cancelledResult is what a run hands back after Cancel: no output, no
// confidence, but every agent created before the cut.
func (p *Pipeline) cancelledResult(rs *runState) *models.SwarmResult {
	events.AgentOutput(p.req.Emitter, systemAgentID,
		fmt.Sprintf("[%s] pipeline cancelled\n", CategoryCancelled))
	return &models.SwarmResult{
		FinalOutput:      "cancelled",
		Confidence:       0,
		Agents:           rs.agentValues(),
		Sources:          rs.sourceList(),
		ValidationPassed: false,
	}
}

// sealEvidence appends the git diff summary on a fresh context so the
// ledger write survives run cancellation.
func (p *Pipeline) sealEvidence(rs *runState) {
	if p.orch.deps.Evidence == nil || rs.evidenceID == "" || p.req.ProjectPath == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), evidenceSealTimeout)
	defer cancel()
	if err := p.orch.deps.Evidence.AppendDiffSummary(ctx, rs.evidenceID, p.req.ProjectPath); err != nil {
		p.orch.logger.Warn("Diff summary append failed", "evidence_id", rs.evidenceID, "error", err)
	}
}

// mergeOutputs joins stage outputs for downstream prompts.
func mergeOutputs(outputs []string) string {
	return strings.Join(outputs, "\n\n---\n\n")
}

// bestOutput picks the best-of-N output, or "" when the stage produced
// nothing.
func bestOutput(outputs []string) string {
	if len(outputs) == 0 {
		return ""
	}
	return outputs[confidence.BestOfN(outputs)]
}

func allValid(vals []stage.Validation) bool {
	for _, v := range vals {
		if !v.Valid {
			return false
		}
	}
	return true
}

func passRate(vals []stage.Validation) int {
	if len(vals) == 0 {
		return 0
	}
	valid := 0
	for _, v := range vals {
		if v.Valid {
			valid++
		}
	}
	return 100 * valid / len(vals)
}
