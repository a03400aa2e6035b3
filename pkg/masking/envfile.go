package masking

import "strings"

// EnvFileMasker masks values in dotenv-style KEY=VALUE blocks that agents
// frequently echo when inspecting project configuration. Only values under
// secret-looking keys are masked; ordinary variables (ports, hostnames,
// feature flags) pass through so the output stays useful.
type EnvFileMasker struct{}

// secretKeyMarkers are substrings that flag an env key as sensitive.
var secretKeyMarkers = []string{
	"KEY", "SECRET", "TOKEN", "PASSWORD", "PASSWD", "CREDENTIAL", "AUTH",
}

func (m *EnvFileMasker) Name() string {
	return "env_file"
}

// AppliesTo looks for an uppercase KEY= line without parsing the content.
func (m *EnvFileMasker) AppliesTo(data string) bool {
	for _, line := range strings.Split(data, "\n") {
		if isEnvAssignment(line) {
			return true
		}
	}
	return false
}

// Mask rewrites sensitive assignments to KEY=[REDACTED], preserving
// everything else byte for byte.
func (m *EnvFileMasker) Mask(data string) string {
	lines := strings.Split(data, "\n")
	changed := false
	for i, line := range lines {
		if !isEnvAssignment(line) {
			continue
		}
		key, _, _ := strings.Cut(strings.TrimSpace(line), "=")
		if !isSecretKey(key) {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		lines[i] = indent + key + "=" + Replacement
		changed = true
	}
	if !changed {
		return data
	}
	return strings.Join(lines, "\n")
}

// isEnvAssignment matches UPPER_SNAKE=value lines with a non-empty value.
func isEnvAssignment(line string) bool {
	trimmed := strings.TrimSpace(line)
	key, value, found := strings.Cut(trimmed, "=")
	if !found || key == "" || value == "" {
		return false
	}
	for _, r := range key {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}

func isSecretKey(key string) bool {
	for _, marker := range secretKeyMarkers {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}
