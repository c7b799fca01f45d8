// Package fileagent implements the File Agent:
// filesystem operations rooted at a configured directory. Grounded on
// pkg/path/path.go's root-confinement helper and
// pkg/agent/ragagent's tool-wrapper/reactloop shape, so this agent
// composes uniformly with the others under the Orchestrator.
package fileagent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/deskmind/core/pkg/agent/reactloop"
	"github.com/deskmind/core/pkg/chat"
	"github.com/deskmind/core/pkg/model/provider"
	"github.com/deskmind/core/pkg/orchestrator"
	"github.com/deskmind/core/pkg/path"
	"github.com/deskmind/core/pkg/tools"
)

const systemPrompt = `You are a file system assistant. You can list directories and read files,
but only inside the workspace directory configured for this agent. Use the
list_files and read_file tools to answer questions about the user's files.
Never claim to have read a file you have not actually retrieved with
read_file.`

// maxReadBytes caps how much of one file read_file returns, so a large
// binary or log file never blows the agent's context budget.
const maxReadBytes = 64 * 1024

type listFilesArgs struct {
	Path string `json:"path" jsonschema:"directory to list, relative to the workspace root; empty means the root itself"`
}

type readFileArgs struct {
	Path string `json:"path" jsonschema:"file to read, relative to the workspace root"`
}

// Agent is the File Agent, confined to a single root directory.
type Agent struct {
	name          string
	llm           provider.Provider
	root          string
	maxIterations int
}

// New constructs a File Agent rooted at root. Every tool call resolves its
// path argument against root via path.ValidatePathInDirectory and rejects
// anything that would escape it.
func New(name string, llm provider.Provider, root string, maxIterations int) *Agent {
	if maxIterations <= 0 {
		maxIterations = 6
	}
	return &Agent{name: name, llm: llm, root: root, maxIterations: maxIterations}
}

func (a *Agent) Name() string                 { return a.name }
func (a *Agent) Kind() orchestrator.AgentKind { return orchestrator.AgentKindFile }

// Execute implements orchestrator.Executor.
func (a *Agent) Execute(ctx context.Context, query orchestrator.Query, agentCtx orchestrator.Context) orchestrator.AgentResult {
	start := time.Now()

	listSchema, _ := jsonschema.For[listFilesArgs](nil)
	readSchema, _ := jsonschema.For[readFileArgs](nil)

	availableTools := []tools.Tool{
		tools.NewFunctionTool("list_files", "List files and directories under a path within the workspace.", listSchema, a.listFiles),
		tools.NewFunctionTool("read_file", "Read the text content of a file within the workspace.", readSchema, a.readFile),
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
			AgentName: a.name, Kind: orchestrator.AgentKindFile,
			ErrorKind: orchestrator.ErrorKindProvider, Err: err, Duration: time.Since(start),
		}
	}

	return orchestrator.AgentResult{
		AgentName: a.name,
		Kind:      orchestrator.AgentKindFile,
		Text:      result.Text,
		UsedTools: result.UsedTools,
		Usage:     orchestrator.Usage{Model: a.llm.ID(), InputTokens: result.Usage.InputTokens, OutputTokens: result.Usage.OutputTokens},
		Duration:  time.Since(start),
	}
}

func (a *Agent) resolve(rel string) (string, error) {
	return path.ValidatePathInDirectory(rel, a.root)
}

func (a *Agent) listFiles(_ context.Context, call tools.ToolCall) (*tools.ToolCallResult, error) {
	var args listFilesArgs
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return nil, fmt.Errorf("parse list_files arguments: %w", err)
		}
	}

	dir, err := a.resolve(args.Path)
	if err != nil {
		return nil, fmt.Errorf("list_files: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list_files: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := ""
	for _, n := range names {
		out += n + "\n"
	}
	if out == "" {
		out = "(empty directory)"
	}
	return tools.ResultSuccess(out), nil
}

func (a *Agent) readFile(_ context.Context, call tools.ToolCall) (*tools.ToolCallResult, error) {
	var args readFileArgs
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("parse read_file arguments: %w", err)
	}

	target, err := a.resolve(args.Path)
	if err != nil {
		return nil, fmt.Errorf("read_file: %w", err)
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("read_file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("read_file: %s is a directory", filepath.Base(target))
	}

	f, err := os.Open(target)
	if err != nil {
		return nil, fmt.Errorf("read_file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, maxReadBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("read_file: %w", err)
	}

	content := string(buf[:n])
	if info.Size() > int64(n) {
		content += fmt.Sprintf("\n... (truncated, %d of %d bytes shown)", n, info.Size())
	}
	return tools.ResultSuccess(content), nil
}

var _ orchestrator.Executor = (*Agent)(nil)
