package masking

import (
	"log/slog"
	"regexp"
)

// Replacement is the token written over every masked span. Raw matched text
// is never stored or logged.
const Replacement = "[REDACTED]"

// Pattern defines one masking rule before compilation.
type Pattern struct {
	Name string
	// Pattern is the regex source. Invalid patterns are logged and skipped
	// at compile time, never at masking time.
	Pattern string
	// HighConfidence marks rules whose matches are almost certainly real
	// secrets (structural formats like AWS key IDs), as opposed to
	// assignment heuristics that can catch placeholders.
	HighConfidence bool
	Description    string
}

// builtinPatterns returns the masking rules shipped with the engine, in
// application order. Structural high-confidence rules run first so the
// generic assignment rules never clip a longer match.
func builtinPatterns() []Pattern {
	return []Pattern{
		{
			Name:           "private_key_block",
			Pattern:        `(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`,
			HighConfidence: true,
			Description:    "PEM private key blocks",
		},
		{
			Name:           "aws_access_key_id",
			Pattern:        `\bAKIA[0-9A-Z]{16}\b`,
			HighConfidence: true,
			Description:    "AWS access key IDs",
		},
		{
			Name:           "github_token",
			Pattern:        `\bgh[pousr]_[A-Za-z0-9_]{36,255}\b`,
			HighConfidence: true,
			Description:    "GitHub fine-grained and classic tokens",
		},
		{
			Name:           "slack_token",
			Pattern:        `\bxox[baprs]-[A-Za-z0-9-]{10,72}\b`,
			HighConfidence: true,
			Description:    "Slack API tokens",
		},
		{
			Name:           "openai_key",
			Pattern:        `\bsk-[A-Za-z0-9_\-]{20,}\b`,
			HighConfidence: true,
			Description:    "OpenAI-style sk- keys",
		},
		{
			Name:           "bearer_token",
			Pattern:        `(?i)\bbearer\s+[A-Za-z0-9_\-.=]{20,}`,
			HighConfidence: true,
			Description:    "Authorization bearer tokens",
		},
		{
			Name:           "api_key_assignment",
			Pattern:        `(?i)(?:api[_-]?key|apikey)["']?\s*[:=]\s*["']?[A-Za-z0-9_\-]{16,}["']?`,
			HighConfidence: false,
			Description:    "api_key = ... assignments",
		},
		{
			Name:           "password_assignment",
			Pattern:        `(?i)(?:password|passwd|pwd)["']?\s*[:=]\s*["']?[^"'\s]{6,}["']?`,
			HighConfidence: false,
			Description:    "password = ... assignments",
		},
		{
			Name:           "secret_assignment",
			Pattern:        `(?i)(?:secret|token)[_a-z]*["']?\s*[:=]\s*["']?[A-Za-z0-9_\-./+]{16,}["']?`,
			HighConfidence: false,
			Description:    "secret/token = ... assignments",
		},
	}
}

// CompiledPattern holds a pre-compiled masking rule.
type CompiledPattern struct {
	Name           string
	Regex          *regexp.Regexp
	HighConfidence bool
}

// compilePatterns compiles rules eagerly. Invalid patterns are logged and
// skipped so one broken custom rule never disables masking.
func compilePatterns(patterns []Pattern) []*CompiledPattern {
	compiled := make([]*CompiledPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			slog.Error("Failed to compile masking pattern, skipping",
				"pattern", p.Name, "error", err)
			continue
		}
		compiled = append(compiled, &CompiledPattern{
			Name:           p.Name,
			Regex:          re,
			HighConfidence: p.HighConfidence,
		})
	}
	return compiled
}
