// Package stage runs one pipeline stage: N agents in parallel on a shared
// prompt, with staggered spawns, optional worktree isolation, output
// caching, and a confidence gate over the collected results.
package stage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codehive/swarmd/pkg/agent"
	"github.com/codehive/swarmd/pkg/cache"
	"github.com/codehive/swarmd/pkg/config"
	"github.com/codehive/swarmd/pkg/events"
	"github.com/codehive/swarmd/pkg/masking"
	"github.com/codehive/swarmd/pkg/mcp"
	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/worktree"
)

// spawnStagger spaces agent launches to smooth process creation and
// provider rate limits.
const spawnStagger = 200 * time.Millisecond

// cacheReuseThreshold is the minimum cached confidence for skipping a spawn.
const cacheReuseThreshold = 70

// ExecutorFactory resolves the executor for one provider. *agent.Factory
// satisfies it.
type ExecutorFactory interface {
	Executor(ctx context.Context, provider, dir string) (agent.Executor, error)
}

// EvidenceSink receives evidence appends from the output pipeline. The
// orchestrator wires *evidence.Ledger here; a nil sink drops them.
type EvidenceSink interface {
	AppendCliExcerpt(ctx context.Context, id, agentID, output string) error
	AppendSecretScanMeta(ctx context.Context, id string, meta *models.SecretScanMeta) error
}

// Deps are the collaborators a Runner composes. Factory and Agents are
// required; everything else may be nil, which skips the corresponding step.
type Deps struct {
	Factory   ExecutorFactory
	Agents    *agent.Runner
	Cache     *cache.Cache
	Worktrees *worktree.Manager
	Masker    *masking.Service
	Post      *mcp.PostProcessor
	Evidence  EvidenceSink
	Logger    *slog.Logger
}

// Runner executes pipeline stages. Safe for concurrent use; all per-run
// state lives in the Spec and on the goroutine stack.
type Runner struct {
	deps   Deps
	logger *slog.Logger
}

// NewRunner creates a stage Runner from its collaborators.
func NewRunner(deps Deps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{deps: deps, logger: logger}
}

// Spec describes one stage run.
type Spec struct {
	Role        models.AgentRole
	Prompt      string
	Count       int
	Providers   []string
	ProjectPath string
	Settings    config.Settings
	EvidenceID  string
	Emitter     events.Emitter
}

// Result is everything a finished stage hands back. Outputs holds the
// processed outputs of agents that completed, in launch order; Agents and
// Validations cover every agent, also in launch order.
type Result struct {
	Outputs     []string
	Agents      []*models.AgentInstance
	Validations []Validation
	Gate        Gate
}

type indexedResult struct {
	index int
	agent *models.AgentInstance
}

// RunStage runs Spec.Count agents and gathers their results. It never
// returns an error: per-agent failures are reflected in agent status, and a
// failed confidence gate is reported through the emitter. A zero count
// yields an empty result whose gate passes vacuously.
func (r *Runner) RunStage(ctx context.Context, spec Spec) *Result {
	if spec.Count <= 0 {
		return &Result{Gate: Gate{Role: spec.Role, Threshold: Threshold(spec.Role), Passed: true}}
	}
	if len(spec.Providers) == 0 {
		spec.Providers = []string{config.MockProviderName}
	}

	useWorktrees := spec.Settings.WorktreeIsolation &&
		r.deps.Worktrees != nil && spec.ProjectPath != "" &&
		r.deps.Worktrees.IsGitRepo(ctx, spec.ProjectPath)

	r.logger.Info("Starting stage",
		"role", spec.Role, "count", spec.Count,
		"providers", len(spec.Providers), "worktrees", useWorktrees)

	results := make(chan indexedResult, spec.Count)
	var wg sync.WaitGroup
	for i := 0; i < spec.Count; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results <- indexedResult{index: idx, agent: r.runAgent(ctx, spec, idx, useWorktrees)}
		}(i)
	}
	wg.Wait()
	close(results)

	return r.finish(spec, collectAndSort(results))
}

// runAgent drives one agent from stagger to processed output. The returned
// instance is always non-nil and carries a terminal status.
func (r *Runner) runAgent(ctx context.Context, spec Spec, idx int, useWorktree bool) *models.AgentInstance {
	provider := spec.Providers[idx%len(spec.Providers)]
	inst := &models.AgentInstance{
		ID:       uuid.NewString(),
		Role:     spec.Role,
		Label:    fmt.Sprintf("%s-%d", spec.Role, idx+1),
		Provider: provider,
		Status:   models.AgentStatusPending,
	}
	log := r.logger.With("agent_id", inst.ID, "label", inst.Label, "provider", provider)

	if cancelled(ctx, spec, inst) {
		return inst
	}
	if idx > 0 {
		select {
		case <-ctx.Done():
			inst.Status = models.AgentStatusCancelled
			events.AgentStatus(spec.Emitter, inst.ID, inst.Status, nil)
			return inst
		case <-time.After(time.Duration(idx) * spawnStagger):
		}
	}

	// A cached high-confidence output replaces the spawn entirely.
	fp := cache.Fingerprint(spec.Prompt, provider)
	if r.deps.Cache != nil {
		if entry, ok := r.deps.Cache.Get(fp); ok && entry.Confidence > cacheReuseThreshold {
			now := time.Now()
			zero := 0
			inst.Status = models.AgentStatusCompleted
			inst.Output = entry.Output
			inst.StartedAt, inst.FinishedAt, inst.ExitCode = &now, &now, &zero
			events.AgentStatus(spec.Emitter, inst.ID, inst.Status, &zero)
			log.Info("Reusing cached output", "confidence", entry.Confidence)
			return inst
		}
	}

	// Working directory: a per-agent worktree under isolation, the project
	// path otherwise. Worktree failures degrade to the project path.
	dir := spec.ProjectPath
	if useWorktree {
		wt, err := r.deps.Worktrees.Create(ctx, spec.ProjectPath, inst.ID)
		if err != nil {
			log.Warn("Worktree creation failed, using project path", "error", err)
		} else {
			dir = wt.Path
			inst.Worktree = wt.Path
			defer func() {
				// ctx may already be cancelled; cleanup still has to run.
				if err := r.deps.Worktrees.Remove(context.Background(), spec.ProjectPath, wt.Path); err != nil {
					log.Warn("Worktree cleanup failed", "path", wt.Path, "error", err)
				}
			}()
		}
	}

	exec, err := r.deps.Factory.Executor(ctx, provider, dir)
	if err != nil {
		log.Error("No executor for provider", "error", err)
		inst.Status = models.AgentStatusFailed
		events.AgentStatus(spec.Emitter, inst.ID, inst.Status, nil)
		return inst
	}

	runCtx := ctx
	if spec.Settings.MaxRuntimeSeconds > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(spec.Settings.MaxRuntimeSeconds)*time.Second)
		defer cancel()
	}

	started := time.Now()
	inst.StartedAt = &started

	outcome := r.deps.Agents.Run(runCtx, agent.Request{
		AgentID:  inst.ID,
		Executor: exec,
		Prompt:   spec.Prompt,
		Chats:    spec.Settings.ChatsPerAgent,
		Emitter:  spec.Emitter,
	})

	finished := time.Now()
	inst.FinishedAt = &finished
	inst.Status = outcome.Status
	inst.ExitCode = outcome.ExitCode
	inst.Output = outcome.Output
	if outcome.Err != nil {
		log.Warn("Agent finished with error", "status", outcome.Status, "error", outcome.Err)
	}

	if outcome.Status == models.AgentStatusCompleted {
		inst.Output = r.pipeline(ctx, spec, inst, fp)
	}
	return inst
}

// pipeline applies the post-completion output steps in order: secret
// masking, MCP tool dispatch, cache write-back, evidence excerpt.
func (r *Runner) pipeline(ctx context.Context, spec Spec, inst *models.AgentInstance, fp string) string {
	out := inst.Output

	if r.deps.Masker != nil {
		masked, findings := r.deps.Masker.MaskAgentOutput(out)
		out = masked
		if len(findings) > 0 {
			r.logger.Warn("Masked secrets in agent output",
				"agent_id", inst.ID, "findings", len(findings))
			r.appendScanMeta(spec, findings)
		}
	}

	if r.deps.Post != nil {
		out = r.deps.Post.Process(ctx, out, spec.Emitter)
	}

	if r.deps.Cache != nil && strings.TrimSpace(out) != "" {
		r.deps.Cache.Put(fp, out, SingleOutputConfidence(spec.Role, out))
	}

	if r.deps.Evidence != nil && spec.EvidenceID != "" {
		// Background context: the excerpt should survive pipeline cancellation.
		if err := r.deps.Evidence.AppendCliExcerpt(context.Background(), spec.EvidenceID, inst.ID, out); err != nil {
			r.logger.Warn("Failed to append cli excerpt", "agent_id", inst.ID, "error", err)
		}
	}
	return out
}

func (r *Runner) appendScanMeta(spec Spec, findings []models.SecretFinding) {
	if r.deps.Evidence == nil || spec.EvidenceID == "" {
		return
	}
	meta := r.deps.Masker.ScanMeta(findings, 0)
	if err := r.deps.Evidence.AppendSecretScanMeta(context.Background(), spec.EvidenceID, meta); err != nil {
		r.logger.Warn("Failed to append secret scan meta", "error", err)
	}
}

// finish validates outputs, computes the gate, and reports a gate failure
// as a system output line.
func (r *Runner) finish(spec Spec, agents []*models.AgentInstance) *Result {
	res := &Result{Agents: agents}

	allValid := true
	for _, inst := range agents {
		v := Validation{AgentID: inst.ID}
		if inst.Status == models.AgentStatusCompleted && strings.TrimSpace(inst.Output) != "" {
			res.Outputs = append(res.Outputs, inst.Output)
			v.Valid, v.Issues = CheckSchema(spec.Role, inst.Output)
			if !v.Valid {
				allValid = false
			}
		} else {
			v.Issues = []string{"no output produced"}
		}
		res.Validations = append(res.Validations, v)
	}

	res.Gate = computeGate(spec.Role, res.Outputs, len(agents), allValid)
	if !res.Gate.Passed {
		events.AgentOutput(spec.Emitter, "system", fmt.Sprintf(
			"confidence gate failed for %s stage: %d below threshold %d\n",
			spec.Role, res.Gate.Confidence, res.Gate.Threshold))
		r.logger.Warn("Stage confidence gate failed",
			"role", spec.Role, "confidence", res.Gate.Confidence, "threshold", res.Gate.Threshold)
	} else {
		r.logger.Info("Stage finished",
			"role", spec.Role, "completed", len(res.Outputs), "confidence", res.Gate.Confidence)
	}
	return res
}

func cancelled(ctx context.Context, spec Spec, inst *models.AgentInstance) bool {
	if ctx.Err() == nil {
		return false
	}
	inst.Status = models.AgentStatusCancelled
	events.AgentStatus(spec.Emitter, inst.ID, inst.Status, nil)
	return true
}

func collectAndSort(ch <-chan indexedResult) []*models.AgentInstance {
	var indexed []indexedResult
	for ir := range ch {
		indexed = append(indexed, ir)
	}
	sort.Slice(indexed, func(i, j int) bool { return indexed[i].index < indexed[j].index })

	agents := make([]*models.AgentInstance, len(indexed))
	for i, ir := range indexed {
		agents[i] = ir.agent
	}
	return agents
}
