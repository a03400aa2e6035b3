package models

import "time"

// FileSnapshot captures one file's content at evidence time. Snapshots
// deduplicate by path within an entry (last write wins).
type FileSnapshot struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	SHA256  string `json:"sha256"`
}

// TestLink records the outcome of a test run linked to an evidence entry.
type TestLink struct {
	TestID string `json:"testId"`
	Passed bool   `json:"passed"`
	Output string `json:"output,omitempty"`
}

// SecretFinding summarizes one masking rule's matches. Raw matched text is
// never stored.
type SecretFinding struct {
	Rule  string `json:"rule"`
	Count int    `json:"count"`
}

// SecretScanMeta aggregates what the secret scanner found in a run's output.
type SecretScanMeta struct {
	HighConfidenceCount int             `json:"highConfidenceCount"`
	FindingCount        int             `json:"findingCount"`
	IgnoredPathCount    int             `json:"ignoredPathCount"`
	Findings            []SecretFinding `json:"findings,omitempty"`
}

// EvidenceEntry is the append-only record of one pipeline run. Field names
// are part of the externalized record layout and must stay stable.
type EvidenceEntry struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	Branch        string            `json:"branch,omitempty"`
	CommitHash    string            `json:"commitHash,omitempty"`
	DiffSummary   string            `json:"diffSummary,omitempty"`
	CliExcerpts   map[string]string `json:"cliExcerpts,omitempty"`
	TestIDs       []string          `json:"testIds,omitempty"`
	TestResults   []TestLink        `json:"testResults,omitempty"`
	TicketIDs     []string          `json:"ticketIds,omitempty"`
	FileSnapshots []FileSnapshot    `json:"fileSnapshots,omitempty"`
	Screenshots   []string          `json:"screenshots,omitempty"`
	SecretScan    *SecretScanMeta   `json:"secretScan,omitempty"`
}

// Clone returns a deep copy of the entry.
func (e *EvidenceEntry) Clone() *EvidenceEntry {
	if e == nil {
		return nil
	}
	c := *e
	if e.CliExcerpts != nil {
		c.CliExcerpts = make(map[string]string, len(e.CliExcerpts))
		for k, v := range e.CliExcerpts {
			c.CliExcerpts[k] = v
		}
	}
	c.TestIDs = append([]string(nil), e.TestIDs...)
	c.TestResults = append([]TestLink(nil), e.TestResults...)
	c.TicketIDs = append([]string(nil), e.TicketIDs...)
	c.FileSnapshots = append([]FileSnapshot(nil), e.FileSnapshots...)
	c.Screenshots = append([]string(nil), e.Screenshots...)
	if e.SecretScan != nil {
		scan := *e.SecretScan
		scan.Findings = append([]SecretFinding(nil), e.SecretScan.Findings...)
		c.SecretScan = &scan
	}
	return &c
}
