// Package masking scrubs secret-looking spans from agent output and MCP tool
// results before anything downstream stores or displays them.
package masking

import (
	"fmt"
	"log/slog"

	"github.com/codehive/swarmd/pkg/models"
)

// Service applies secret masking. Created once at application startup
// (singleton). Thread-safe and stateless aside from compiled patterns.
type Service struct {
	patterns    []*CompiledPattern
	codeMaskers []Masker
}

// NewService creates a masking service with compiled patterns and registered
// maskers. All patterns are compiled eagerly at creation time; invalid custom
// patterns are logged and skipped.
func NewService(customPatterns map[string]string) *Service {
	patterns := builtinPatterns()
	for name, src := range customPatterns {
		patterns = append(patterns, Pattern{
			Name:        fmt.Sprintf("custom:%s", name),
			Pattern:     src,
			Description: "user-supplied pattern",
		})
	}

	s := &Service{
		patterns:    compilePatterns(patterns),
		codeMaskers: []Masker{&EnvFileMasker{}},
	}

	slog.Info("Masking service initialized",
		"compiled_patterns", len(s.patterns),
		"code_maskers", len(s.codeMaskers))

	return s
}

// MaskAgentOutput replaces secret-looking spans in output with the
// redaction token and reports per-rule match counts. Finding counts record
// how many spans each rule hit; the matched text itself is discarded.
// Masking never errors: a rule that matches nothing contributes nothing.
func (s *Service) MaskAgentOutput(output string) (string, []models.SecretFinding) {
	if output == "" {
		return output, nil
	}

	masked := output

	// Phase 1: code-based maskers (structural awareness)
	for _, m := range s.codeMaskers {
		if m.AppliesTo(masked) {
			masked = m.Mask(masked)
		}
	}

	// Phase 2: regex patterns (general sweep)
	var findings []models.SecretFinding
	for _, p := range s.patterns {
		matches := p.Regex.FindAllStringIndex(masked, -1)
		if len(matches) == 0 {
			continue
		}
		masked = p.Regex.ReplaceAllString(masked, Replacement)
		findings = append(findings, models.SecretFinding{
			Rule:  p.Name,
			Count: len(matches),
		})
	}

	return masked, findings
}

// MaskToolResult applies the same masking to MCP tool result content. Tool
// results feed straight into later prompts, so they get the full sweep too.
func (s *Service) MaskToolResult(content string) string {
	masked, _ := s.MaskAgentOutput(content)
	return masked
}

// highConfidenceRules is built once for ScanMeta classification.
func (s *Service) highConfidenceRules() map[string]bool {
	rules := make(map[string]bool, len(s.patterns))
	for _, p := range s.patterns {
		if p.HighConfidence {
			rules[p.Name] = true
		}
	}
	return rules
}

// ScanMeta summarizes findings for the evidence ledger. ignoredPaths is the
// number of files the caller skipped (vendored trees, lockfiles) while
// collecting the scanned content.
func (s *Service) ScanMeta(findings []models.SecretFinding, ignoredPaths int) *models.SecretScanMeta {
	meta := &models.SecretScanMeta{
		IgnoredPathCount: ignoredPaths,
		Findings:         append([]models.SecretFinding(nil), findings...),
	}
	high := s.highConfidenceRules()
	for _, f := range findings {
		meta.FindingCount += f.Count
		if high[f.Rule] {
			meta.HighConfidenceCount += f.Count
		}
	}
	return meta
}
