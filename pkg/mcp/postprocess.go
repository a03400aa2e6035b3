package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codehive/swarmd/pkg/events"
	"github.com/codehive/swarmd/pkg/masking"
)

// Tool-call patterns agents may embed in their output. Two syntaxes:
//
//	```tool_call
//	{"server": "github", "tool": "create_issue", "args": {"title": "x"}}
//	```
//
// and inline:
//
//	[[mcp:github.create_issue {"title": "x"}]]
var (
	fencedCallRe = regexp.MustCompile("(?s)```tool_call\\s*\\n(.*?)```")
	inlineCallRe = regexp.MustCompile(`\[\[mcp:([A-Za-z0-9_-]+)\.([A-Za-z0-9_.-]+)\s*(\{.*?\})?\s*\]\]`)
)

// ToolCaller is the slice of Client the post-processor needs. Split out so
// tests can dispatch against a fake.
type ToolCaller interface {
	CallTool(ctx context.Context, serverID, toolName string, args map[string]any) (*mcpsdk.CallToolResult, error)
	ServerIDs() []string
}

// toolCall is one parsed dispatch request.
type toolCall struct {
	Server string         `json:"server"`
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
}

// PostProcessor scans finished agent output for tool-call patterns,
// dispatches each against its MCP server and appends the results. The
// output is append-only: results are never fed back to the agent, they
// travel with the output into stage context and evidence.
type PostProcessor struct {
	caller ToolCaller
	masker *masking.Service
}

// NewPostProcessor creates a PostProcessor. masker may be nil to skip
// redaction of tool results.
func NewPostProcessor(caller ToolCaller, masker *masking.Service) *PostProcessor {
	return &PostProcessor{caller: caller, masker: masker}
}

// Process dispatches every tool call found in output and returns the output
// with result blocks appended:
//
//	[MCP_TOOL_RESULT] server=<s> tool=<t>
//	<result text>
//
// or on failure a single line:
//
//	[MCP_TOOL_ERROR] server=<s> tool=<t> <message>
//
// Each dispatch fires one MCPToolResult event. With no servers configured
// the output is returned unchanged.
func (p *PostProcessor) Process(ctx context.Context, output string, em events.Emitter) string {
	if p.caller == nil || len(p.caller.ServerIDs()) == 0 {
		return output
	}

	calls := parseToolCalls(output)
	if len(calls) == 0 {
		return output
	}

	var blocks strings.Builder
	for _, call := range calls {
		result, errMsg := p.dispatch(ctx, call)
		if errMsg != "" {
			blocks.WriteString(fmt.Sprintf("\n[MCP_TOOL_ERROR] server=%s tool=%s %s\n", call.Server, call.Tool, errMsg))
		} else {
			blocks.WriteString(fmt.Sprintf("\n[MCP_TOOL_RESULT] server=%s tool=%s\n%s\n", call.Server, call.Tool, result))
		}
		events.MCPToolResult(em, call.Server, call.Tool, result, errMsg)
	}
	return output + blocks.String()
}

// dispatch runs one call and flattens the outcome to (result, errMsg).
// Exactly one of the two is non-empty.
func (p *PostProcessor) dispatch(ctx context.Context, call toolCall) (string, string) {
	res, err := p.caller.CallTool(ctx, call.Server, call.Tool, call.Args)
	if err != nil {
		return "", err.Error()
	}
	text := flattenContent(res)
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return "", text
	}
	if p.masker != nil {
		text = p.masker.MaskToolResult(text)
	}
	return text, ""
}

// parseToolCalls extracts every well-formed call, fenced blocks first then
// inline markers, each set in order of appearance. Malformed blocks are
// logged and skipped: there is nothing to dispatch and nowhere to attribute
// an error line.
func parseToolCalls(output string) []toolCall {
	var calls []toolCall

	for _, m := range fencedCallRe.FindAllStringSubmatch(output, -1) {
		var call toolCall
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &call); err != nil {
			slog.Warn("Skipping malformed tool_call block", "error", err)
			continue
		}
		if call.Server == "" || call.Tool == "" {
			slog.Warn("Skipping tool_call block without server/tool")
			continue
		}
		calls = append(calls, call)
	}

	for _, m := range inlineCallRe.FindAllStringSubmatch(output, -1) {
		call := toolCall{Server: m[1], Tool: m[2]}
		if m[3] != "" {
			if err := json.Unmarshal([]byte(m[3]), &call.Args); err != nil {
				slog.Warn("Skipping inline tool call with malformed args",
					"server", call.Server, "tool", call.Tool, "error", err)
				continue
			}
		}
		calls = append(calls, call)
	}

	return calls
}

// flattenContent joins the text items of a tool result. Non-text content is
// skipped.
func flattenContent(result *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		} else {
			slog.Debug("MCP tool returned non-text content, skipping",
				"content_type", fmt.Sprintf("%T", c))
		}
	}
	return strings.Join(parts, "\n")
}
