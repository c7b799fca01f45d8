// Package scriptagent implements the "Python" agent named in as
// a sandboxed JavaScript execution agent: it ships
// github.com/dop251/goja precisely for sandboxed script evaluation
// (pkg/js), and no embedded CPython exists anywhere in the retrieval pack
// (DESIGN.md), so the same sandbox is repurposed here as the "code
// execution" capability, exposing a run_script tool rather than claiming
// Python semantics it cannot provide.
package scriptagent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/deskmind/core/pkg/agent/reactloop"
	"github.com/deskmind/core/pkg/chat"
	"github.com/deskmind/core/pkg/model/provider"
	"github.com/deskmind/core/pkg/orchestrator"
	"github.com/deskmind/core/pkg/tools"
)

const systemPrompt = `You are a data/code assistant with access to a sandboxed script execution
tool named run_script. The tool runs plain JavaScript (no filesystem or
network access is exposed to it) and returns the value of the last
expression evaluated. Use it for calculations, data transforms, and
anything easier to compute than to reason about in words.`

// scriptTimeout bounds one run_script call, so a script that enters an
// infinite loop cannot hang the agent's iteration budget or the
// orchestrator's per-agent deadline indefinitely.
const scriptTimeout = 5 * time.Second

type runScriptArgs struct {
	Script string `json:"script" jsonschema:"a JavaScript expression or statements to evaluate"`
}

// Agent is the sandboxed script execution agent (C12, the "Python" slot).
type Agent struct {
	name          string
	llm           provider.Provider
	maxIterations int
}

// New constructs a script execution Agent.
func New(name string, llm provider.Provider, maxIterations int) *Agent {
	if maxIterations <= 0 {
		maxIterations = 6
	}
	return &Agent{name: name, llm: llm, maxIterations: maxIterations}
}

func (a *Agent) Name() string                 { return a.name }
func (a *Agent) Kind() orchestrator.AgentKind { return orchestrator.AgentKindPython }

// Execute implements orchestrator.Executor.
func (a *Agent) Execute(ctx context.Context, query orchestrator.Query, agentCtx orchestrator.Context) orchestrator.AgentResult {
	start := time.Now()

	schema, _ := jsonschema.For[runScriptArgs](nil)
	runTool := tools.NewFunctionTool("run_script", "Evaluate a JavaScript expression in a sandboxed interpreter and return its result.", schema, runScript)

	messages := []chat.Message{{Role: chat.MessageRoleSystem, Content: systemPrompt}}
	for _, h := range agentCtx.History {
		role := chat.MessageRoleUser
		if h.Role == "assistant" {
			role = chat.MessageRoleAssistant
		}
		messages = append(messages, chat.Message{Role: role, Content: h.Content})
	}
	messages = append(messages, chat.Message{Role: chat.MessageRoleUser, Content: query.Text})

	result, err := reactloop.Run(ctx, a.llm, messages, []tools.Tool{runTool}, a.maxIterations)
	if err != nil {
		return orchestrator.AgentResult{
			AgentName: a.name, Kind: orchestrator.AgentKindPython,
			ErrorKind: orchestrator.ErrorKindProvider, Err: err, Duration: time.Since(start),
		}
	}

	return orchestrator.AgentResult{
		AgentName: a.name,
		Kind:      orchestrator.AgentKindPython,
		Text:      result.Text,
		UsedTools: result.UsedTools,
		Usage:     orchestrator.Usage{Model: a.llm.ID(), InputTokens: result.Usage.InputTokens, OutputTokens: result.Usage.OutputTokens},
		Duration:  time.Since(start),
	}
}

// runScript evaluates call's script in a fresh goja VM, capped at
// scriptTimeout via goja's own interrupt mechanism (no access to
// tools/network/filesystem is bound into the VM).
func runScript(ctx context.Context, call tools.ToolCall) (*tools.ToolCallResult, error) {
	var args runScriptArgs
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("parse run_script arguments: %w", err)
	}

	vm := goja.New()

	timer := time.AfterFunc(scriptTimeout, func() {
		vm.Interrupt("script execution timed out")
	})
	defer timer.Stop()

	v, err := vm.RunString(args.Script)
	if err != nil {
		return nil, fmt.Errorf("run_script: %w", err)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return tools.ResultSuccess("undefined"), nil
	}
	return tools.ResultSuccess(fmt.Sprintf("%v", v.Export())), nil
}

var _ orchestrator.Executor = (*Agent)(nil)
