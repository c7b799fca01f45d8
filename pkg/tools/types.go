package tools

import (
	"context"
	"strings"
)

type ToolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     ToolType     `json:"type"`
	Function FunctionCall `json:"function"`
}
type FunctionCall struct {
	Name string `json:"name,omitempty"`

	Arguments string `json:"arguments,omitempty"`
}

type ToolCallResult struct {
	Output string `json:"output"`
}

// OpenAI-like Tool Types

type ToolType string

type Tool struct {
	Type     ToolType            `json:"type"`
	Function *FunctionDefinition `json:"function,omitempty"`

	// Handler invokes the tool, if it is locally callable (as opposed to a
	// tool only an external runtime can execute, e.g. one surfaced purely
	// for the model's benefit). Agents that execute tool calls themselves
	// (the sandboxed script agent, C12) use this; agents that hand tool
	// calls back to a provider's tool-use loop don't need it set.
	Handler func(ctx context.Context, call ToolCall) (*ToolCallResult, error) `json:"-"`
}

type FunctionDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Strict      bool   `json:"strict,omitempty"`
	Parameters  any    `json:"parameters"`
}

// Name returns the tool's callable name, as the model sees it.
func (t Tool) Name() string {
	if t.Function == nil {
		return ""
	}
	return t.Function.Name
}

// Parameters returns the tool's JSON-schema parameter description, or nil
// if it takes none.
func (t Tool) Parameters() any {
	if t.Function == nil {
		return nil
	}
	return t.Function.Parameters
}

// NewFunctionTool builds a "function"-typed Tool from a name, description,
// and JSON-schema parameters, the shape every agent in pkg/agent exposes to
// a provider.
func NewFunctionTool(name, description string, parameters any, handler func(ctx context.Context, call ToolCall) (*ToolCallResult, error)) Tool {
	return Tool{
		Type: "function",
		Function: &FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
		Handler: handler,
	}
}

// ResultSuccess wraps a successful tool output.
func ResultSuccess(output string) *ToolCallResult {
	return &ToolCallResult{Output: output}
}

// ConvertSchema unmarshals a tool's raw JSON-schema parameters (as produced
// by json.Marshal of a map[string]any, or already a Go struct) into v,
// round-tripping through JSON. Used to recover typed argument metadata
// (e.g. "required") from a schema built as a plain map.
func ConvertSchema(params, v any) error {
	return JSONRoundtrip(params, v)
}

// DisplayName returns a human-readable form of the tool name, for status
// lines and transcripts (e.g. "search_documents" -> "Search Documents").
func (t Tool) DisplayName() string {
	name := t.Name()
	if name == "" {
		return ""
	}

	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
