package agent

import (
	"regexp"
	"strings"

	"github.com/convoyrt/convoy/internal/jsonvalue"
	"github.com/convoyrt/convoy/pkg/convoymodel"
)

// toolCallPattern matches <tool_call name="X">{...}</tool_call> blocks,
// left to right, non-greedy on the JSON body.
var toolCallPattern = regexp.MustCompile(`(?s)<tool_call\s+name="([^"]+)">(.*?)</tool_call>`)

// parsedToolCall is one extracted <tool_call> block.
type parsedToolCall struct {
	Name       string
	RawParams  string
	ParseError string
}

// extractToolCalls finds every <tool_call> block in text, in order. A block
// whose body fails to parse as JSON is still returned, carrying ParseError
// so the caller can turn it into a failed ToolResult instead of silently
// dropping the call.
func extractToolCalls(text string) []parsedToolCall {
	matches := toolCallPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	calls := make([]parsedToolCall, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSpace(m[1])
		raw := strings.TrimSpace(m[2])
		call := parsedToolCall{Name: name, RawParams: raw}
		if raw == "" {
			raw = "{}"
			call.RawParams = raw
		}
		if !jsonvalue.Valid(raw) {
			call.ParseError = "malformed JSON in tool_call for " + name
		}
		calls = append(calls, call)
	}
	return calls
}

// stripToolCallMarkup removes any <tool_call>...</tool_call> blocks from
// text, leaving the surrounding prose as the reply delivered to the user.
func stripToolCallMarkup(text string) string {
	return strings.TrimSpace(toolCallPattern.ReplaceAllString(text, ""))
}

// formatToolResult renders one executed call's outcome as the
// <tool_result> markup re-injected into the conversation for the next step.
func formatToolResult(name string, result convoymodel.ToolResult) string {
	var body string
	success := "true"
	if result.Success {
		body = result.Payload.String()
	} else {
		success = "false"
		body = result.Error
	}
	return "<tool_result name=\"" + name + "\" success=\"" + success + "\">" + body + "</tool_result>\n"
}

// normalizeNativeToolCalls converts provider-native structured tool calls
// into the textual <tool_call> markup form and appends them to content, so
// a single extraction path (extractToolCalls) handles both textual-markup
// providers and structured-tool-call providers uniformly.
func normalizeNativeToolCalls(content string, calls []convoymodel.NativeToolCall) string {
	if len(calls) == 0 {
		return content
	}
	var b strings.Builder
	b.WriteString(content)
	for _, c := range calls {
		b.WriteString("\n<tool_call name=\"")
		b.WriteString(c.Name)
		b.WriteString("\">")
		b.WriteString(c.Input.String())
		b.WriteString("</tool_call>")
	}
	return b.String()
}

// appendCatalog appends a deterministic textual catalog of the available
// tools to base, one line per tool, so any provider regardless of native
// tool-calling support can be steered toward the <tool_call> markup
// convention from the system prompt alone.
func appendCatalog(base string, tools []convoymodel.AgentTool) string {
	if len(tools) == 0 {
		return base
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nAvailable tools (invoke with <tool_call name=\"NAME\">{...json...}</tool_call>):\n")
	for _, t := range tools {
		b.WriteString("- ")
		b.WriteString(t.Name)
		if t.Description != "" {
			b.WriteString(": ")
			b.WriteString(t.Description)
		}
		for _, p := range t.Params {
			b.WriteString("\n    ")
			b.WriteString(p.Name)
			b.WriteString(" (")
			b.WriteString(p.Type)
			if p.Required {
				b.WriteString(", required")
			}
			b.WriteString(")")
			if p.Description != "" {
				b.WriteString(": ")
				b.WriteString(p.Description)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
