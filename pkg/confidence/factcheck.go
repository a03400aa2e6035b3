package confidence

import (
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// pathRefPattern matches file references in agent output: any token with a
// directory component and an extension, or a bare filename with a common
// source extension.
var pathRefPattern = regexp.MustCompile(
	`[A-Za-z0-9_.\-]+(?:/[A-Za-z0-9_.\-]+)+\.[A-Za-z0-9]{1,8}` +
		`|\b[A-Za-z0-9_\-]+\.(?:go|py|js|jsx|ts|tsx|rs|java|rb|c|h|hpp|cpp|cs|php|swift|kt|sh|sql|yaml|yml|json|toml|md|css|html)\b`)

// FactCheckResult summarizes how many file references in an output could be
// verified on disk.
type FactCheckResult struct {
	Total        int  `json:"total"`
	Unverified   int  `json:"unverified"`
	Penalty      int  `json:"penalty"`
	Insufficient bool `json:"insufficient"`
}

// FactCheck extracts path-like references from output and stats each one
// under projectPath. The penalty grows with the unverified fraction, up to
// 40 points. When every reference is unverifiable the output is flagged as
// evidence-insufficient, which caps the adjusted confidence at 25.
func FactCheck(output, projectPath string) FactCheckResult {
	refs := extractPathRefs(output)
	r := FactCheckResult{Total: len(refs)}
	if r.Total == 0 {
		return r
	}

	for _, ref := range refs {
		if _, err := os.Stat(filepath.Join(projectPath, ref)); err != nil {
			r.Unverified++
		}
	}

	u := float64(r.Unverified) / float64(r.Total)
	r.Penalty = int(math.Round(u * 40))
	r.Insufficient = r.Unverified == r.Total
	return r
}

// Adjust applies the fact-check penalty to a raw confidence value.
func (r FactCheckResult) Adjust(raw int) int {
	adjusted := raw - r.Penalty
	if adjusted < 0 {
		adjusted = 0
	}
	if r.Insufficient && r.Total > 0 && adjusted > 25 {
		adjusted = 25
	}
	return adjusted
}

// extractPathRefs returns deduplicated path references in order of first
// appearance.
func extractPathRefs(output string) []string {
	matches := pathRefPattern.FindAllString(output, -1)
	seen := make(map[string]bool, len(matches))
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		ref := strings.TrimPrefix(m, "./")
		if ref == "" || seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs
}
