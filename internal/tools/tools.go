// Package tools defines the typed tool contract, the in-process registry,
// and the core tool implementations (calendar, mail, messenger, web).
package tools

import (
	"context"
	"encoding/json"

	"github.com/ivanintech/concierge/internal/faults"
	"github.com/ivanintech/concierge/internal/llm"
)

// Output is what a tool produces on success. FormattedText, when set, is
// preferred by the humaniser as the user-visible body.
type Output struct {
	Result        any
	FormattedText string
}

// Tool is one executable capability.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the JSON schema of the tool's parameters.
	Schema() map[string]any
	Execute(ctx context.Context, args json.RawMessage) (Output, error)
}

// Via identifies which path served a tool execution.
const (
	ViaMCP   = "mcp"
	ViaLocal = "local"
	ViaMock  = "mock"
)

// Result is the uniform envelope every execution path produces.
type Result struct {
	ToolName      string          `json:"tool_name"`
	Success       bool            `json:"success"`
	Result        json.RawMessage `json:"result,omitempty"`
	FormattedText string          `json:"formatted_text,omitempty"`
	ErrorKind     faults.Kind     `json:"error_kind,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	DurationMS    int64           `json:"duration_ms"`
	Via           string          `json:"via"`
}

// Payload renders the result for the LLM tool-result message.
func (r Result) Payload() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error_kind":"INTERNAL","error_message":"unencodable tool result"}`
	}
	return string(b)
}

// Schema converts a registered tool into the LLM-facing descriptor.
func Schema(t Tool) llm.ToolSchema {
	return llm.ToolSchema{Name: t.Name(), Description: t.Description(), Parameters: t.Schema()}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
