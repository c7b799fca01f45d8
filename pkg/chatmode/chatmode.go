// Package chatmode implements the Chat Mode Router:
// three states — SIMPLE (LLM only), TOOL (LLM + MCP tools), RAG (full
// Orchestrator) — each with a single process(user_input) entrypoint.
// Grounded on the Runtime.Run/RunStream single-entry-point
// shape in pkg/runtime/runtime.go, collapsed to the three explicit modes
// it names (no automatic mode promotion between them).
package chatmode

import (
	"context"
	"fmt"
	"time"

	"github.com/deskmind/core/pkg/agent/reactloop"
	"github.com/deskmind/core/pkg/chat"
	"github.com/deskmind/core/pkg/model/provider"
	"github.com/deskmind/core/pkg/orchestrator"
	"github.com/deskmind/core/pkg/tokens"
	"github.com/deskmind/core/pkg/tools"
)

// Mode is one of the three chat states names.
type Mode string

const (
	ModeSimple Mode = "simple"
	ModeTool   Mode = "tool"
	ModeRAG    Mode = "rag"
)

// Result is what Router.Process returns for one turn: an answer, the
// tools used along the way, and token usage.
type Result struct {
	Answer    string
	UsedTools []string
	Usage     tokens.Totals
}

// Input is one turn's request.
type Input struct {
	SessionID   string
	MessageID   string
	Text        string
	History     []orchestrator.ChatTurn
	TopicFilter string
	Strategy    orchestrator.Strategy // only meaningful for ModeRAG
}

// Router is the Chat Mode Router. SIMPLE and TOOL mode bypass the
// Orchestrator entirely (the "SIMPLE mode UI bypass" decision, extended to
// TOOL mode since it also never needs agent selection/merge); RAG mode
// delegates to orch. Both paths record token usage through the same
// Tracker.
type Router struct {
	llm           provider.Provider
	toolsetTools  []tools.Tool // the MCP/tool catalog surface for ModeTool
	orch          *orchestrator.Orchestrator
	tracker       *tokens.Tracker
	maxIterations int
}

// New constructs a Router. toolsetTools may be nil/empty (ModeTool then
// behaves like ModeSimple); orch may be nil (ModeRAG then returns an
// error rather than panicking).
func New(llm provider.Provider, toolsetTools []tools.Tool, orch *orchestrator.Orchestrator, tracker *tokens.Tracker, maxIterations int) *Router {
	if maxIterations <= 0 {
		maxIterations = 6
	}
	return &Router{llm: llm, toolsetTools: toolsetTools, orch: orch, tracker: tracker, maxIterations: maxIterations}
}

// Process routes input through mode's processor.
func (r *Router) Process(ctx context.Context, mode Mode, in Input) (Result, error) {
	switch mode {
	case ModeSimple:
		return r.processSimple(ctx, in, nil)
	case ModeTool:
		return r.processSimple(ctx, in, r.toolsetTools)
	case ModeRAG:
		return r.processRAG(ctx, in)
	default:
		return Result{}, fmt.Errorf("chatmode: unknown mode %q", mode)
	}
}

func (r *Router) processSimple(ctx context.Context, in Input, availableTools []tools.Tool) (Result, error) {
	handle := r.tracker.StartConversation(in.SessionID, in.MessageID)

	messages := historyToMessages(in.History)
	messages = append(messages, chat.Message{Role: chat.MessageRoleUser, Content: in.Text})

	start := time.Now()
	text, usage, usedTools, err := r.runLoop(ctx, messages, availableTools)
	mode := string(ModeSimple)
	if len(availableTools) > 0 {
		mode = string(ModeTool)
	}

	if err != nil {
		r.tracker.Record(ctx, handle, r.llm.ID(), "", mode, 0, 0, time.Since(start), nil)
		totals := r.tracker.EndConversation(handle)
		return Result{Usage: totals}, fmt.Errorf("chatmode: %s: %w", mode, err)
	}

	r.tracker.Record(ctx, handle, r.llm.ID(), "", mode, usage.InputTokens, usage.OutputTokens, time.Since(start), usedTools)
	totals := r.tracker.EndConversation(handle)

	return Result{Answer: text, UsedTools: usedTools, Usage: totals}, nil
}

func (r *Router) runLoop(ctx context.Context, messages []chat.Message, availableTools []tools.Tool) (string, chat.Usage, []string, error) {
	if len(availableTools) == 0 {
		text, usage, err := provider.Complete(ctx, r.llm, messages, nil)
		return text, usage, nil, err
	}

	result, err := reactloop.Run(ctx, r.llm, messages, availableTools, r.maxIterations)
	if err != nil {
		return "", chat.Usage{}, nil, err
	}
	return result.Text, result.Usage, result.UsedTools, nil
}

func (r *Router) processRAG(ctx context.Context, in Input) (Result, error) {
	if r.orch == nil {
		return Result{}, fmt.Errorf("chatmode: RAG mode requires an orchestrator")
	}

	handle := r.tracker.StartConversation(in.SessionID, in.MessageID)

	query := orchestrator.Query{
		Text:        in.Text,
		HistoryRef:  in.MessageID,
		TopicFilter: in.TopicFilter,
		Strategy:    in.Strategy,
	}
	agentCtx := orchestrator.Context{
		History:     in.History,
		TopicFilter: in.TopicFilter,
		TokenHandle: handle,
	}

	text, err := r.orch.Run(ctx, query, agentCtx)
	totals := r.tracker.EndConversation(handle)
	if err != nil {
		return Result{Usage: totals}, fmt.Errorf("chatmode: rag: %w", err)
	}

	return Result{Answer: text, Usage: totals}, nil
}

func historyToMessages(history []orchestrator.ChatTurn) []chat.Message {
	out := make([]chat.Message, 0, len(history))
	for _, h := range history {
		role := chat.MessageRoleUser
		if h.Role == "assistant" {
			role = chat.MessageRoleAssistant
		}
		out = append(out, chat.Message{Role: role, Content: h.Content})
	}
	return out
}
