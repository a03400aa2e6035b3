// Package evidence records what each pipeline run actually did: git state,
// agent output excerpts, diffs, file snapshots, test outcomes. Entries are
// append-only; nothing a run recorded is ever removed or overwritten except
// a re-snapshot of the same path.
package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/store"
	"github.com/codehive/swarmd/pkg/worktree"
)

const (
	// TruncationSuffix marks content that was cut to fit its cap.
	TruncationSuffix = "\n...[truncated]"

	cliExcerptMax  = 2 * 1024
	diffSummaryMax = 1024
	snapshotMax    = 100 * 1024
)

// TicketLinker is the ticket-side half of a bidirectional evidence link.
// The ticket manager implements it; a nil linker leaves tickets untouched.
type TicketLinker interface {
	AttachEvidence(ctx context.Context, ticketID, evidenceID string) error
}

// Ledger creates and extends evidence entries. Writes to the same entry are
// serialized by a per-entry mutex, so concurrent agents appending excerpts
// never lose each other's updates.
type Ledger struct {
	store  store.EvidenceStore
	git    worktree.GitRunner
	linker TicketLinker

	locks sync.Map // evidence id -> *sync.Mutex
}

// NewLedger creates a Ledger. git defaults to the real git binary; linker
// may be nil when no ticket manager is running.
func NewLedger(st store.EvidenceStore, git worktree.GitRunner, linker TicketLinker) *Ledger {
	if git == nil {
		git = &worktree.ExecGit{}
	}
	return &Ledger{store: st, git: git, linker: linker}
}

// CreatePipelineEvidence opens a new entry for a run. When projectPath is a
// git repository the current branch and commit are captured; failures to
// read git state are logged and leave those fields empty.
func (l *Ledger) CreatePipelineEvidence(ctx context.Context, projectPath string) (string, error) {
	entry := &models.EvidenceEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
	}

	if projectPath != "" {
		if branch, err := l.git.Run(ctx, projectPath, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
			entry.Branch = branch
		} else {
			slog.Debug("Evidence git branch capture skipped", "project_path", projectPath, "error", err)
		}
		if commit, err := l.git.Run(ctx, projectPath, "rev-parse", "HEAD"); err == nil {
			entry.CommitHash = commit
		}
	}

	if err := l.store.PutEvidence(ctx, entry); err != nil {
		return "", fmt.Errorf("create evidence entry: %w", err)
	}
	return entry.ID, nil
}

// Get returns a copy of an entry.
func (l *Ledger) Get(ctx context.Context, id string) (*models.EvidenceEntry, error) {
	return l.store.GetEvidence(ctx, id)
}

// AppendCliExcerpt stores an agent's output on the entry, capped at 2 KiB.
func (l *Ledger) AppendCliExcerpt(ctx context.Context, id, agentID, output string) error {
	return l.update(ctx, id, func(e *models.EvidenceEntry) {
		if e.CliExcerpts == nil {
			e.CliExcerpts = make(map[string]string)
		}
		e.CliExcerpts[agentID] = Truncate(output, cliExcerptMax)
	})
}

// AppendDiffSummary captures `git diff --stat` of the project, capped at
// 1 KiB. A clean tree stores an empty summary.
func (l *Ledger) AppendDiffSummary(ctx context.Context, id, projectPath string) error {
	diff, err := l.git.Run(ctx, projectPath, "diff", "--stat")
	if err != nil {
		return fmt.Errorf("diff summary for evidence %s: %w", id, err)
	}
	return l.update(ctx, id, func(e *models.EvidenceEntry) {
		e.DiffSummary = Truncate(diff, diffSummaryMax)
	})
}

// LinkTicket connects an entry and a ticket in both directions. The ticket
// side is skipped when no linker is configured.
func (l *Ledger) LinkTicket(ctx context.Context, id, ticketID string) error {
	err := l.update(ctx, id, func(e *models.EvidenceEntry) {
		for _, existing := range e.TicketIDs {
			if existing == ticketID {
				return
			}
		}
		e.TicketIDs = append(e.TicketIDs, ticketID)
	})
	if err != nil {
		return err
	}

	if l.linker == nil {
		return nil
	}
	if err := l.linker.AttachEvidence(ctx, ticketID, id); err != nil {
		return fmt.Errorf("attach evidence %s to ticket %s: %w", id, ticketID, err)
	}
	return nil
}

// AppendFileSnapshot stores a file's content (capped at 100 KiB) with the
// sha256 of the full content. Re-snapshotting a path replaces the previous
// snapshot for that path.
func (l *Ledger) AppendFileSnapshot(ctx context.Context, id, path, content string) error {
	sum := sha256.Sum256([]byte(content))
	snap := models.FileSnapshot{
		Path:    path,
		Content: Truncate(content, snapshotMax),
		SHA256:  hex.EncodeToString(sum[:]),
	}
	return l.update(ctx, id, func(e *models.EvidenceEntry) {
		for i, existing := range e.FileSnapshots {
			if existing.Path == path {
				e.FileSnapshots[i] = snap
				return
			}
		}
		e.FileSnapshots = append(e.FileSnapshots, snap)
	})
}

// LinkTestResult records a test outcome on the entry.
func (l *Ledger) LinkTestResult(ctx context.Context, id, testID string, passed bool, output string) error {
	return l.update(ctx, id, func(e *models.EvidenceEntry) {
		e.TestResults = append(e.TestResults, models.TestLink{
			TestID: testID,
			Passed: passed,
			Output: Truncate(output, cliExcerptMax),
		})
		for _, existing := range e.TestIDs {
			if existing == testID {
				return
			}
		}
		e.TestIDs = append(e.TestIDs, testID)
	})
}

// AppendScreenshot records a screenshot reference (path or URL).
func (l *Ledger) AppendScreenshot(ctx context.Context, id, ref string) error {
	return l.update(ctx, id, func(e *models.EvidenceEntry) {
		e.Screenshots = append(e.Screenshots, ref)
	})
}

// AppendSecretScanMeta records what the secret scanner found for this run.
// Successive scans accumulate: counts sum and findings append, so one
// agent's summary never erases another's. A nil meta is ignored.
func (l *Ledger) AppendSecretScanMeta(ctx context.Context, id string, meta *models.SecretScanMeta) error {
	if meta == nil {
		return nil
	}
	return l.update(ctx, id, func(e *models.EvidenceEntry) {
		if e.SecretScan == nil {
			cp := *meta
			cp.Findings = append([]models.SecretFinding(nil), meta.Findings...)
			e.SecretScan = &cp
			return
		}
		e.SecretScan.HighConfidenceCount += meta.HighConfidenceCount
		e.SecretScan.FindingCount += meta.FindingCount
		e.SecretScan.IgnoredPathCount += meta.IgnoredPathCount
		e.SecretScan.Findings = append(e.SecretScan.Findings, meta.Findings...)
	})
}

// update applies a read-modify-write under the entry's mutex.
func (l *Ledger) update(ctx context.Context, id string, mutate func(*models.EvidenceEntry)) error {
	mu := l.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	entry, err := l.store.GetEvidence(ctx, id)
	if err != nil {
		return fmt.Errorf("load evidence %s: %w", id, err)
	}
	mutate(entry)
	if err := l.store.PutEvidence(ctx, entry); err != nil {
		return fmt.Errorf("save evidence %s: %w", id, err)
	}
	return nil
}

func (l *Ledger) lockFor(id string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Truncate caps s at max bytes, cutting on a rune boundary and appending
// TruncationSuffix inside the cap. Content at or under the cap is returned
// unchanged, so truncating twice never grows a value.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - len(TruncationSuffix)
	if cut <= 0 {
		return TruncationSuffix[:max]
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimRight(s[:cut], "\n") + TruncationSuffix
}
