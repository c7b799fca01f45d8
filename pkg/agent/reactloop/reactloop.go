// Package reactloop implements the bounded ReAct-style reasoning loop used
// by every tool-using agent: the LLM may call
// tools zero or more times, up to a fixed iteration budget, before
// producing a final answer. Shared here so the RAG, MCP, Pandas, SQL,
// script, and file agents all drive the same loop rather than each
// re-implementing tool-call dispatch, grounded on
// pkg/agent/agent.go's MaxIterations()/Tools() contract and
// pkg/model/provider/helpers.go's stream-draining idiom.
package reactloop

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deskmind/core/pkg/chat"
	"github.com/deskmind/core/pkg/model/provider"
	"github.com/deskmind/core/pkg/tools"
)

// Result is what one bounded Run produces: the final answer text, the
// accumulated usage across every completion call in the loop, and the
// names of every tool actually invoked.
type Result struct {
	Text      string
	Usage     chat.Usage
	UsedTools []string
}

// Run drives messages through llm, dispatching any tool calls the model
// makes to the matching Tool.Handler in availableTools, until the model
// returns a tool-call-free response or maxIterations is exhausted. It
// never returns a Go error for a tool failure: a failing tool's result is
// fed back to the model as an error string, matching the ReAct idiom of
// letting the model see and react to tool failures rather than aborting
// the whole turn. It does return an error for a provider-level failure
// (the completion call itself failing), since that has no tool-level
// recovery.
func Run(ctx context.Context, llm provider.Provider, messages []chat.Message, availableTools []tools.Tool, maxIterations int) (Result, error) {
	if maxIterations <= 0 {
		maxIterations = 6
	}

	handlers := make(map[string]func(context.Context, tools.ToolCall) (*tools.ToolCallResult, error), len(availableTools))
	for _, t := range availableTools {
		if t.Handler != nil {
			handlers[t.Name()] = t.Handler
		}
	}

	var result Result

	for iteration := 0; iteration < maxIterations; iteration++ {
		stream, err := llm.CreateChatCompletionStream(ctx, messages, availableTools)
		if err != nil {
			return result, fmt.Errorf("reactloop: completion call: %w", err)
		}

		text, toolCalls, usage, err := drain(stream)
		if err != nil {
			return result, fmt.Errorf("reactloop: stream: %w", err)
		}
		result.Usage.InputTokens += usage.InputTokens
		result.Usage.OutputTokens += usage.OutputTokens

		if len(toolCalls) == 0 {
			result.Text = text
			return result, nil
		}

		messages = append(messages, chat.Message{Role: chat.MessageRoleAssistant, Content: text, ToolCalls: toolCalls})

		for _, call := range toolCalls {
			handler, ok := handlers[call.Function.Name]
			if !ok {
				messages = append(messages, chat.Message{
					Role:       chat.MessageRoleTool,
					Content:    fmt.Sprintf("error: no such tool %q", call.Function.Name),
					ToolCallID: call.ID,
					Name:       call.Function.Name,
				})
				continue
			}

			result.UsedTools = append(result.UsedTools, call.Function.Name)

			toolResult, err := handler(ctx, call)
			content := ""
			switch {
			case err != nil:
				slog.Warn("[ReActLoop] tool call failed", "tool", call.Function.Name, "error", err)
				content = fmt.Sprintf("error: %v", err)
			case toolResult != nil:
				content = toolResult.Output
			}

			messages = append(messages, chat.Message{
				Role:       chat.MessageRoleTool,
				Content:    content,
				ToolCallID: call.ID,
				Name:       call.Function.Name,
			})
		}
	}

	result.Text = "reached the maximum number of reasoning steps without a final answer"
	return result, nil
}

func drain(stream chat.MessageStream) (string, []tools.ToolCall, chat.Usage, error) {
	defer stream.Close()

	var text string
	var toolCalls []tools.ToolCall
	var usage chat.Usage

	for {
		chunk, ok := stream.Recv()
		if !ok {
			break
		}
		if chunk.Err != nil {
			return "", nil, usage, chunk.Err
		}
		text += chunk.ContentDelta
		if len(chunk.ToolCalls) > 0 {
			toolCalls = append(toolCalls, chunk.ToolCalls...)
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
	}

	return text, toolCalls, usage, nil
}
