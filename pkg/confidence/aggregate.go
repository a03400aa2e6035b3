package confidence

import (
	"math"

	"github.com/codehive/swarmd/pkg/models"
)

// stageWeights is how much each stage contributes to the final pipeline
// confidence. Code and validation dominate: they are where hallucination
// does real damage.
var stageWeights = map[models.AgentRole]float64{
	models.RoleResearcher: 0.10,
	models.RolePlanner:    0.15,
	models.RoleCoder:      0.30,
	models.RoleValidator:  0.25,
	models.RoleSecurity:   0.20,
}

// FinalConfidence folds per-stage confidences into one pipeline value.
// Stages absent from the map (fan-out 0) renormalize the remaining weights
// instead of dragging the result to zero. Any stage below 30 caps the final
// value at 50: one collapsed stage means the pipeline cannot be trusted.
func FinalConfidence(byStage map[models.AgentRole]int) int {
	var weighted, totalWeight float64
	anyLow := false
	for role, conf := range byStage {
		w, ok := stageWeights[role]
		if !ok {
			continue
		}
		weighted += w * float64(conf)
		totalWeight += w
		if conf < 30 {
			anyLow = true
		}
	}
	if totalWeight == 0 {
		return 0
	}
	final := int(math.Round(weighted / totalWeight))
	if anyLow && final > 50 {
		final = 50
	}
	return final
}

// ShouldRerun decides whether a stage runs once more in the same attempt.
// A non-positive threshold disables reruns entirely; a threshold of 100
// always fires, even when every output agrees. passRate is the percentage
// of per-output validations that passed; allPassed reports whether every
// output cleared its schema check.
func ShouldRerun(confidence, passRate int, allPassed bool, threshold int) bool {
	if threshold <= 0 {
		return false
	}
	if threshold >= 100 {
		return true
	}
	return confidence < threshold || passRate < 50 || (!allPassed && confidence < 60)
}

// EvidenceCounts carries the reference tallies the sufficiency check weighs.
type EvidenceCounts struct {
	Sources      int
	LogRefs      int
	DiffRefs     int
	TestIDs      int
	ArtifactRefs int
	References   int
}

// EvidenceSufficient reports whether an output is backed by enough evidence
// to be released without refusal. Confident outputs need either a source or
// two hard references; three references carry an output regardless of
// confidence.
func EvidenceSufficient(confidence int, ev EvidenceCounts) bool {
	if ev.References >= 3 {
		return true
	}
	if confidence < 40 {
		return false
	}
	return ev.Sources > 0 || ev.LogRefs+ev.DiffRefs+ev.TestIDs+ev.ArtifactRefs >= 2
}
