// Package worktree isolates coder agents in dedicated git worktrees so
// parallel edits never collide.
package worktree

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// GitRunner provides git commands. Interface for testing.
type GitRunner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecGit implements GitRunner using exec.CommandContext.
type ExecGit struct{}

func (g *ExecGit) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Manager creates and removes per-agent worktrees under a root directory.
type Manager struct {
	git  GitRunner
	root string // where worktrees are created
}

// NewManager creates a worktree manager. Worktrees land under root; an empty
// root places them in <projectPath>/.swarm-worktrees.
func NewManager(git GitRunner, root string) *Manager {
	return &Manager{git: git, root: root}
}

// IsGitRepo reports whether dir is inside a git work tree. Errors count as
// "no": callers fall back to running agents directly in the project path.
func (m *Manager) IsGitRepo(ctx context.Context, dir string) bool {
	out, err := m.git.Run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// CreateResult holds the result of creating a worktree.
type CreateResult struct {
	Path   string
	Branch string
}

// Create adds a worktree for one agent, branching from the current HEAD.
// The branch is named swarm/<agentID>. If the branch already exists from an
// earlier run, the worktree reuses it instead of failing.
func (m *Manager) Create(ctx context.Context, projectPath, agentID string) (*CreateResult, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agent id must not be empty")
	}

	safeID := sanitizeBranch(agentID)
	branch := "swarm/" + safeID
	path := filepath.Join(m.rootFor(projectPath), safeID)

	_, err := m.git.Run(ctx, projectPath, "worktree", "add", path, "-b", branch, "HEAD")
	if err != nil {
		// Branch left over from a previous run: attach to it instead
		if strings.Contains(err.Error(), "already exists") {
			if _, retryErr := m.git.Run(ctx, projectPath, "worktree", "add", path, branch); retryErr != nil {
				return nil, fmt.Errorf("create worktree: %w", retryErr)
			}
			return &CreateResult{Path: path, Branch: branch}, nil
		}
		return nil, fmt.Errorf("create worktree: %w", err)
	}

	return &CreateResult{Path: path, Branch: branch}, nil
}

// Remove detaches a worktree and prunes stale registrations. Force removal:
// agent scratch space holds nothing worth protecting.
func (m *Manager) Remove(ctx context.Context, projectPath, path string) error {
	if path == "" {
		return nil
	}
	if _, err := m.git.Run(ctx, projectPath, "worktree", "remove", "--force", path); err != nil {
		return fmt.Errorf("remove worktree: %w", err)
	}
	// Best-effort: clear any leftover administrative entries
	m.git.Run(ctx, projectPath, "worktree", "prune")
	return nil
}

// Path returns where the worktree for agentID would be created.
func (m *Manager) Path(projectPath, agentID string) string {
	return filepath.Join(m.rootFor(projectPath), sanitizeBranch(agentID))
}

func (m *Manager) rootFor(projectPath string) string {
	if m.root != "" {
		return m.root
	}
	return filepath.Join(projectPath, ".swarm-worktrees")
}

var nonBranchChars = regexp.MustCompile(`[^a-zA-Z0-9._/-]+`)

// sanitizeBranch cleans up a branch name component.
func sanitizeBranch(name string) string {
	s := nonBranchChars.ReplaceAllString(name, "-")
	s = strings.Trim(s, "-")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}
