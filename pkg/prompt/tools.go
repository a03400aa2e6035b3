package prompt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// FormatToolCatalog renders a live MCP tool listing for prompt injection.
// Servers are sorted by ID so output is deterministic. Returns "" for an
// empty catalog.
func FormatToolCatalog(catalog map[string][]*mcpsdk.Tool) string {
	if len(catalog) == 0 {
		return ""
	}

	ids := make([]string, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	n := 0
	for _, id := range ids {
		for _, tool := range catalog[id] {
			n++
			sb.WriteString(fmt.Sprintf("%d. **%s.%s**: %s\n", n, id, tool.Name, tool.Description))
			for _, p := range schemaParameters(tool.InputSchema) {
				sb.WriteString("   - ")
				sb.WriteString(p)
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}

// schemaParameters extracts a one-line description per parameter from a
// tool's JSON Schema. Unparseable schemas yield no parameter lines rather
// than an error; the tool is still listed.
func schemaParameters(schema any) []string {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		slog.Debug("Failed to marshal tool input schema", "error", err)
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		slog.Debug("Failed to parse tool input schema", "error", err)
		return nil
	}

	props, ok := m["properties"].(map[string]any)
	if !ok || len(props) == 0 {
		return nil
	}

	required := make(map[string]bool)
	if reqList, ok := m["required"].([]any); ok {
		for _, r := range reqList {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]string, 0, len(names))
	for _, name := range names {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}

		label := "optional"
		if required[name] {
			label = "required"
		}
		if t, ok := prop["type"].(string); ok && t != "" {
			label += ", " + t
		}

		line := fmt.Sprintf("%s (%s)", name, label)
		if desc, ok := prop["description"].(string); ok && desc != "" {
			line += ": " + desc
		}
		params = append(params, line)
	}
	return params
}
