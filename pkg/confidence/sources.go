package confidence

import (
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// sourcePrefixes mark lines whose remainder is an explicit citation.
var sourcePrefixes = []string{"source:", "ref:"}

// ExtractSources pulls cited sources out of an output: every URL, plus the
// remainder of any "source:" or "ref:" line (case-insensitive). Results are
// deduplicated in order of first appearance.
func ExtractSources(text string) []string {
	seen := make(map[string]bool)
	var sources []string
	add := func(s string) {
		s = strings.TrimSpace(strings.TrimRight(s, ".,;"))
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		sources = append(sources, s)
	}

	for _, u := range urlPattern.FindAllString(text, -1) {
		add(u)
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		for _, prefix := range sourcePrefixes {
			if strings.HasPrefix(lower, prefix) {
				add(trimmed[len(prefix):])
				break
			}
		}
	}

	return sources
}
