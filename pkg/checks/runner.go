// Package checks runs the automated security-stage checks before the
// security agents see anything: typecheck, lint, dependency audit, a secret
// scan over the changed files, and an optional custom command. A failing or
// timed-out check produces a failed Result, never an error; the pipeline
// always continues to the agents with the results in hand.
package checks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/codehive/swarmd/pkg/config"
	"github.com/codehive/swarmd/pkg/masking"
	"github.com/codehive/swarmd/pkg/models"
)

// defaultTimeout bounds one check command.
const defaultTimeout = 2 * time.Minute

// maxScanBytes caps how much of one changed file the secret scan reads.
const maxScanBytes = 256 * 1024

// Result is the outcome of one check.
type Result struct {
	Name       string `json:"name"`
	Passed     bool   `json:"passed"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int    `json:"duration_ms"`
	Summary    string `json:"summary"`
	Output     string `json:"output,omitempty"`
}

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir, command string) (output string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir, command string) (string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return string(out), exitErr.ExitCode(), nil
		}
		return string(out), -1, fmt.Errorf("exec: %w", err)
	}
	return string(out), 0, nil
}

// Runner executes the configured checks of the security stage.
type Runner struct {
	cmd     CommandRunner
	masker  *masking.Service
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunner creates a Runner. masker may be nil to skip the secret scan.
func NewRunner(cmd CommandRunner, masker *masking.Service) *Runner {
	if cmd == nil {
		cmd = &ExecRunner{}
	}
	return &Runner{cmd: cmd, masker: masker, timeout: defaultTimeout, logger: slog.Default()}
}

// RunAll executes every configured check in dir, in a fixed order:
// typecheck, lint, audit, secret scan, custom. Empty commands are skipped.
// prompt feeds the custom command's {PROMPT} file.
func (r *Runner) RunAll(ctx context.Context, dir string, cfg config.TestingConfig, prompt string) []Result {
	var results []Result

	commands := []struct {
		name    string
		command string
	}{
		{"typecheck", cfg.TypecheckCommand},
		{"lint", cfg.LintCommand},
		{"audit", cfg.AuditCommand},
	}
	for _, c := range commands {
		if c.command == "" {
			continue
		}
		results = append(results, r.runCommand(ctx, dir, c.name, c.command))
	}

	if r.masker != nil {
		results = append(results, r.secretScan(ctx, dir))
	}

	if cfg.CustomCommand != "" {
		results = append(results, r.runCustom(ctx, dir, cfg.CustomCommand, prompt))
	}

	return results
}

// runCommand executes one check command. Non-zero exit fails the check;
// a deadline hit fails it with a timeout summary.
func (r *Runner) runCommand(ctx context.Context, dir, name, command string) Result {
	checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	output, exitCode, err := r.cmd.Run(checkCtx, dir, command)
	duration := int(time.Since(start).Milliseconds())

	// A deadline kill surfaces as a signal exit, so consult the context
	// before interpreting the exit code.
	if checkCtx.Err() == context.DeadlineExceeded {
		return Result{
			Name: name, Passed: false, ExitCode: -1, DurationMs: duration,
			Summary: fmt.Sprintf("timeout after %s", r.timeout),
			Output:  output,
		}
	}
	if err != nil {
		return Result{
			Name: name, Passed: false, ExitCode: -1, DurationMs: duration,
			Summary: fmt.Sprintf("failed to run: %v", err),
			Output:  output,
		}
	}

	summary := "passed"
	if exitCode != 0 {
		summary = fmt.Sprintf("exited with status %d", exitCode)
	}
	return Result{
		Name: name, Passed: exitCode == 0, ExitCode: exitCode,
		DurationMs: duration, Summary: summary, Output: output,
	}
}

// runCustom substitutes the prompt into the custom command template and runs
// it like any other check. The prompt file is removed afterwards.
func (r *Runner) runCustom(ctx context.Context, dir, template, prompt string) Result {
	promptFile, err := os.CreateTemp("", "swarmd-check-*.txt")
	if err != nil {
		return Result{Name: "custom", Passed: false, ExitCode: -1,
			Summary: fmt.Sprintf("prompt file: %v", err)}
	}
	path := promptFile.Name()
	defer os.Remove(path)

	if _, err := promptFile.WriteString(prompt); err != nil {
		promptFile.Close()
		return Result{Name: "custom", Passed: false, ExitCode: -1,
			Summary: fmt.Sprintf("prompt file: %v", err)}
	}
	promptFile.Close()

	command := strings.ReplaceAll(template, config.PromptPlaceholder, path)
	return r.runCommand(ctx, dir, "custom", command)
}

// secretScan masks the changed files of the working tree and fails when any
// high-confidence finding turns up. Outside a git repository there is no
// changed-file set, so the scan passes vacuously.
func (r *Runner) secretScan(ctx context.Context, dir string) Result {
	start := time.Now()

	files, err := r.changedFiles(ctx, dir)
	if err != nil {
		r.logger.Debug("Secret scan skipped", "dir", dir, "error", err)
		return Result{
			Name: "secret-scan", Passed: true, ExitCode: 0,
			DurationMs: int(time.Since(start).Milliseconds()),
			Summary:    "skipped: no changed files to scan",
		}
	}

	var findings []models.SecretFinding
	ignored := 0
	for _, file := range files {
		content, err := readCapped(filepath.Join(dir, file), maxScanBytes)
		if err != nil {
			ignored++
			continue
		}
		_, fileFindings := r.masker.MaskAgentOutput(content)
		findings = append(findings, fileFindings...)
	}

	meta := r.masker.ScanMeta(findings, ignored)
	summary := fmt.Sprintf("%d findings (%d high confidence) across %d files",
		meta.FindingCount, meta.HighConfidenceCount, len(files))

	return Result{
		Name:       "secret-scan",
		Passed:     meta.HighConfidenceCount == 0,
		ExitCode:   0,
		DurationMs: int(time.Since(start).Milliseconds()),
		Summary:    summary,
	}
}

// changedFiles lists modified and untracked files relative to dir.
func (r *Runner) changedFiles(ctx context.Context, dir string) ([]string, error) {
	diff, code, err := r.cmd.Run(ctx, dir, "git diff --name-only HEAD")
	if err != nil || code != 0 {
		return nil, fmt.Errorf("git diff exited %d: %v", code, err)
	}
	untracked, code, err := r.cmd.Run(ctx, dir, "git ls-files --others --exclude-standard")
	if err != nil || code != 0 {
		return nil, fmt.Errorf("git ls-files exited %d: %v", code, err)
	}

	seen := make(map[string]bool)
	var files []string
	for _, line := range strings.Split(diff+"\n"+untracked, "\n") {
		file := strings.TrimSpace(line)
		if file == "" || seen[file] {
			continue
		}
		seen[file] = true
		files = append(files, file)
	}
	return files, nil
}

func readCapped(path string, limit int64) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		data = data[:limit]
	}
	return string(data), nil
}

// Summarize renders check results as a block for stage prompts and
// evidence.
func Summarize(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Automated checks:\n")
	for _, res := range results {
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "- %s: %s (%s)\n", res.Name, status, res.Summary)
	}
	return b.String()
}

// AllPassed reports whether every check passed.
func AllPassed(results []Result) bool {
	for _, res := range results {
		if !res.Passed {
			return false
		}
	}
	return true
}
