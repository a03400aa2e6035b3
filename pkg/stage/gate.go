package stage

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/codehive/swarmd/pkg/models"
)

// Gate is a stage's confidence gate. Confidence blends output length,
// completion rate and schema validity; Passed compares it against the
// role's threshold. A failed gate is reported, never fatal.
type Gate struct {
	Role       models.AgentRole `json:"role"`
	Confidence int              `json:"confidence"`
	Threshold  int              `json:"threshold"`
	Passed     bool             `json:"passed"`
}

// Validation is the schema check result for one agent's output.
type Validation struct {
	AgentID string   `json:"agent_id"`
	Valid   bool     `json:"valid"`
	Issues  []string `json:"issues,omitempty"`
}

// gateThresholds is the minimum gate confidence per role. Review roles gate
// higher than generative ones.
var gateThresholds = map[models.AgentRole]int{
	models.RoleResearcher:  40,
	models.RolePlanner:     50,
	models.RoleCoder:       60,
	models.RoleValidator:   70,
	models.RoleSecurity:    80,
	models.RoleSynthesizer: 50,
}

// Threshold returns the gate threshold for role. Unknown roles gate at 50.
func Threshold(role models.AgentRole) int {
	if t, ok := gateThresholds[role]; ok {
		return t
	}
	return 50
}

var (
	headingRe  = regexp.MustCompile(`(?m)^#{1,6} `)
	numberedRe = regexp.MustCompile(`(?m)^\d+[.)] `)
	bulletRe   = regexp.MustCompile(`(?m)^[-*] `)
	verdictRe  = regexp.MustCompile(`(?i)\b(pass|fail)\b`)
	severityRe = regexp.MustCompile(`(?i)\b(low|medium|high|critical)\b|no (findings|issues)`)
)

// CheckSchema validates output against the structural expectations of a
// role. These are shape heuristics, not content judgments: a researcher
// report has headings or lists, a plan has sections, code has fenced
// blocks, reviews carry verdicts or severities.
func CheckSchema(role models.AgentRole, output string) (bool, []string) {
	var issues []string
	trimmed := strings.TrimSpace(output)

	if minimum := minLength(role); len(trimmed) < minimum {
		issues = append(issues, fmt.Sprintf("output shorter than %d characters", minimum))
	}

	switch role {
	case models.RoleResearcher:
		if !headingRe.MatchString(trimmed) && !bulletRe.MatchString(trimmed) {
			issues = append(issues, "no headings or bullet lists")
		}
	case models.RolePlanner:
		if sectionCount(trimmed) < 2 {
			issues = append(issues, "fewer than two plan sections")
		}
	case models.RoleCoder:
		if !strings.Contains(trimmed, "```") {
			issues = append(issues, "no fenced code block")
		}
	case models.RoleValidator:
		if !verdictRe.MatchString(trimmed) {
			issues = append(issues, "no pass/fail verdict")
		}
	case models.RoleSecurity:
		if !severityRe.MatchString(trimmed) {
			issues = append(issues, "no severity ratings or explicit all-clear")
		}
	}

	return len(issues) == 0, issues
}

func minLength(role models.AgentRole) int {
	switch role {
	case models.RoleResearcher, models.RolePlanner, models.RoleSynthesizer:
		return 200
	default:
		return 100
	}
}

func sectionCount(s string) int {
	return len(numberedRe.FindAllString(s, -1)) + len(headingRe.FindAllString(s, -1))
}

// computeGate scores a finished stage. validOutputs are the outputs of
// agents that completed with non-empty output; totalCount is how many
// agents ran; allSchemasValid says whether every valid output passed its
// role schema. A stage with no agents passes vacuously.
func computeGate(role models.AgentRole, validOutputs []string, totalCount int, allSchemasValid bool) Gate {
	g := Gate{Role: role, Threshold: Threshold(role)}
	if totalCount == 0 {
		g.Passed = true
		return g
	}

	validCount := len(validOutputs)
	var lengthScore, validityScore float64
	schemaScore := 50.0
	if validCount > 0 {
		totalLen := 0
		for _, out := range validOutputs {
			totalLen += len(out)
		}
		lengthScore = math.Min(100, 100*float64(totalLen)/float64(validCount*500))
		validityScore = 100 * float64(validCount) / float64(totalCount)
		if allSchemasValid {
			schemaScore = 100
		}
	}

	g.Confidence = int(math.Round(0.3*lengthScore + 0.4*validityScore + 0.3*schemaScore))
	g.Passed = g.Confidence >= g.Threshold
	return g
}

// SingleOutputConfidence scores one completed output with the gate formula.
// Used for cache write-back, where there are no peers to compare against.
func SingleOutputConfidence(role models.AgentRole, output string) int {
	if strings.TrimSpace(output) == "" {
		return 0
	}
	valid, _ := CheckSchema(role, output)
	return computeGate(role, []string{output}, 1, valid).Confidence
}
