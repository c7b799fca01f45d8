// Package ragagent implements the RAG Agent: a single
// "search_documents" tool backed by the Retriever, driven through the
// bounded ReAct loop every tool-using agent in this module shares.
// Grounded on pkg/agent/agent.go's functional-options construction and
// pkg/agent/toolwrapper.go's "expose the agent's own tool surface"
// pattern, adapted to the Executor contract pkg/orchestrator defines.
package ragagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/deskmind/core/pkg/agent/reactloop"
	"github.com/deskmind/core/pkg/chat"
	"github.com/deskmind/core/pkg/model/provider"
	"github.com/deskmind/core/pkg/orchestrator"
	"github.com/deskmind/core/pkg/rag/retriever"
	"github.com/deskmind/core/pkg/rag/vectorstore"
	"github.com/deskmind/core/pkg/tools"
)

const systemPromptTemplate = `You are a research assistant that answers questions strictly by consulting
a document index. Use the search_documents tool to find relevant passages
before answering. Ground every claim in retrieved text; if the index has
nothing relevant, say so rather than guessing.`

// searchDocumentsArgs is the search_documents tool's argument shape,
// reflected into a JSON schema via google/jsonschema-go so the agent never
// hand-maintains a parallel schema literal.
type searchDocumentsArgs struct {
	Query string `json:"query" jsonschema:"the natural-language query to search the document index with"`
}

// Agent is the RAG Agent.
type Agent struct {
	name          string
	llm           provider.Provider
	retriever     *retriever.Retriever
	maxIterations int
}

// New constructs a RAG Agent over retriever, answering with llm.
func New(name string, llm provider.Provider, ret *retriever.Retriever, maxIterations int) *Agent {
	if maxIterations <= 0 {
		maxIterations = 6
	}
	return &Agent{name: name, llm: llm, retriever: ret, maxIterations: maxIterations}
}

func (a *Agent) Name() string                 { return a.name }
func (a *Agent) Kind() orchestrator.AgentKind { return orchestrator.AgentKindRAG }

// Execute implements orchestrator.Executor.
func (a *Agent) Execute(ctx context.Context, query orchestrator.Query, agentCtx orchestrator.Context) orchestrator.AgentResult {
	start := time.Now()

	schema, err := jsonschema.For[searchDocumentsArgs](nil)
	if err != nil {
		slog.Warn("[RAGAgent] failed to derive search_documents schema, using untyped fallback", "error", err)
	}

	filter := vectorstore.Filter{TopicID: query.TopicFilter}
	if filter.TopicID == "" {
		filter.TopicID = agentCtx.TopicFilter
	}

	searchTool := tools.NewFunctionTool(
		"search_documents",
		"Search the indexed document collection for passages relevant to a query.",
		schema,
		func(ctx context.Context, call tools.ToolCall) (*tools.ToolCallResult, error) {
			var args searchDocumentsArgs
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("parse search_documents arguments: %w", err)
			}
			passages, err := a.retriever.Retrieve(ctx, args.Query, 0, filter)
			if err != nil {
				return nil, fmt.Errorf("retrieve: %w", err)
			}
			return tools.ResultSuccess(formatPassages(passages)), nil
		},
	)

	messages := historyToMessages(agentCtx.History)
	messages = append([]chat.Message{{Role: chat.MessageRoleSystem, Content: systemPromptTemplate}}, messages...)
	messages = append(messages, chat.Message{Role: chat.MessageRoleUser, Content: query.Text})

	result, err := reactloop.Run(ctx, a.llm, messages, []tools.Tool{searchTool}, a.maxIterations)
	if err != nil {
		return orchestrator.AgentResult{
			AgentName: a.name,
			Kind:      orchestrator.AgentKindRAG,
			ErrorKind: orchestrator.ErrorKindProvider,
			Err:       err,
			Duration:  time.Since(start),
		}
	}

	return orchestrator.AgentResult{
		AgentName: a.name,
		Kind:      orchestrator.AgentKindRAG,
		Text:      result.Text,
		UsedTools: result.UsedTools,
		Usage:     orchestrator.Usage{Model: a.llm.ID(), InputTokens: result.Usage.InputTokens, OutputTokens: result.Usage.OutputTokens},
		Duration:  time.Since(start),
	}
}

func formatPassages(passages []retriever.Passage) string {
	if len(passages) == 0 {
		return "no relevant passages found"
	}
	out := ""
	for i, p := range passages {
		out += fmt.Sprintf("[%d] (score %.3f) %s\n", i+1, p.Score, p.Text)
	}
	return out
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

var _ orchestrator.Executor = (*Agent)(nil)
