// Package mcpagent implements the MCP Agent: at
// construction time it lists every tool an MCP server exposes and, from
// then on, exposes them uniformly to the LLM in a bounded ReAct loop.
// Grounded on the pkg/tools/mcp.Toolset lifecycle idiom
// (Start/Initialize/ListTools), adapted to the github.com/
// modelcontextprotocol/go-sdk client the go.mod actually pins,
// rather than the older mark3labs/mcp-go client some prior-art files
// reference (see DESIGN.md).
package mcpagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deskmind/core/pkg/agent/reactloop"
	"github.com/deskmind/core/pkg/chat"
	"github.com/deskmind/core/pkg/model/provider"
	"github.com/deskmind/core/pkg/orchestrator"
	"github.com/deskmind/core/pkg/tools"
)

const systemPrompt = `You are an assistant with access to a set of external tools. Use them as
needed to answer the user's request, calling only the tools that are
relevant, and produce a final natural-language answer once you have enough
information.`

// Session is the subset of *mcp.ClientSession this package depends on,
// narrowed for testability (a fake implementation backs the unit tests
// instead of spinning up a real MCP server).
type Session interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
}

// Agent is the MCP Agent.
type Agent struct {
	name          string
	llm           provider.Provider
	session       Session
	maxIterations int

	toolsOnce sync.Once
	tools     []tools.Tool
	toolsErr  error
}

// New constructs an MCP Agent over an already-initialized session and lists
// the server's tools here, once. A listing error is kept and returned by
// every later Execute.
func New(name string, llm provider.Provider, session Session, maxIterations int) *Agent {
	if maxIterations <= 0 {
		maxIterations = 6
	}
	a := &Agent{name: name, llm: llm, session: session, maxIterations: maxIterations}
	_, _ = a.listTools(context.Background())
	return a
}

func (a *Agent) Name() string                 { return a.name }
func (a *Agent) Kind() orchestrator.AgentKind { return orchestrator.AgentKindMCP }

func (a *Agent) listTools(ctx context.Context) ([]tools.Tool, error) {
	a.toolsOnce.Do(func() {
		resp, err := a.session.ListTools(ctx, &mcp.ListToolsParams{})
		if err != nil {
			a.toolsErr = fmt.Errorf("list tools: %w", err)
			return
		}
		for _, t := range resp.Tools {
			t := t
			a.tools = append(a.tools, tools.NewFunctionTool(t.Name, t.Description, t.InputSchema, a.callTool))
		}
	})
	return a.tools, a.toolsErr
}

func (a *Agent) callTool(ctx context.Context, call tools.ToolCall) (*tools.ToolCallResult, error) {
	args := map[string]any{}
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return nil, fmt.Errorf("parse arguments for %s: %w", call.Function.Name, err)
		}
	}

	resp, err := a.session.CallTool(ctx, &mcp.CallToolParams{Name: call.Function.Name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("call tool %s: %w", call.Function.Name, err)
	}

	return tools.ResultSuccess(contentText(resp)), nil
}

func contentText(resp *mcp.CallToolResult) string {
	var out string
	for _, c := range resp.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			out += tc.Text
		}
	}
	return out
}

// Execute implements orchestrator.Executor.
func (a *Agent) Execute(ctx context.Context, query orchestrator.Query, agentCtx orchestrator.Context) orchestrator.AgentResult {
	start := time.Now()

	availableTools, err := a.listTools(ctx)
	if err != nil {
		return orchestrator.AgentResult{
			AgentName: a.name, Kind: orchestrator.AgentKindMCP,
			ErrorKind: orchestrator.ErrorKindTool, Err: err, Duration: time.Since(start),
		}
	}
	if len(availableTools) == 0 {
		slog.Warn("[MCPAgent] no tools exposed by MCP server", "agent", a.name)
	}

	messages := []chat.Message{{Role: chat.MessageRoleSystem, Content: systemPrompt}}
	for _, h := range agentCtx.History {
		role := chat.MessageRoleUser
		if h.Role == "assistant" {
			role = chat.MessageRoleAssistant
		}
		messages = append(messages, chat.Message{Role: role, Content: h.Content})
	}
	messages = append(messages, chat.Message{Role: chat.MessageRoleUser, Content: query.Text})

	result, err := reactloop.Run(ctx, a.llm, messages, availableTools, a.maxIterations)
	if err != nil {
		return orchestrator.AgentResult{
			AgentName: a.name, Kind: orchestrator.AgentKindMCP,
			ErrorKind: orchestrator.ErrorKindProvider, Err: err, Duration: time.Since(start),
		}
	}

	return orchestrator.AgentResult{
		AgentName: a.name,
		Kind:      orchestrator.AgentKindMCP,
		Text:      result.Text,
		UsedTools: result.UsedTools,
		Usage:     orchestrator.Usage{Model: a.llm.ID(), InputTokens: result.Usage.InputTokens, OutputTokens: result.Usage.OutputTokens},
		Duration:  time.Since(start),
	}
}

var _ orchestrator.Executor = (*Agent)(nil)
