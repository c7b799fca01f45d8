// Package pandasagent implements the Pandas Agent:
// aggregate/filter operations over an in-memory table parsed from CSV bytes
// by LoadCSV. XLSX input is not read. No third-party dataframe library
// exists anywhere in the retrieval pack (see DESIGN.md), so this operates
// over a small encoding/csv-backed Table and a fixed set of filter
// operators (eq, neq, contains, gt, lt, gte, lte); there is no expression
// evaluator.
package pandasagent

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/deskmind/core/pkg/agent/reactloop"
	"github.com/deskmind/core/pkg/chat"
	"github.com/deskmind/core/pkg/model/provider"
	"github.com/deskmind/core/pkg/orchestrator"
	"github.com/deskmind/core/pkg/tools"
)

const systemPrompt = `You are a tabular data analyst. A table has already been loaded for you.
Use describe_table to see its columns, filter_rows to narrow rows by a
column predicate, and aggregate to compute sum/avg/min/max/count over a
column. Base every numeric claim on a tool result, never estimate.`

// Table is the Pandas Agent's in-memory dataframe: column headers plus
// string-typed rows, parsed once at construction and never mutated —
// filter_rows/aggregate compute derived views rather than altering Table
// itself.
type Table struct {
	Columns []string
	Rows    [][]string
}

// LoadCSV parses CSV content into a Table, the Pandas Agent's input shape
// after the Document Loader has resolved a file to its CSV bytes.
func LoadCSV(content []byte) (Table, error) {
	r := csv.NewReader(strings.NewReader(string(content)))
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return Table{}, fmt.Errorf("parse csv: empty file")
	}

	return Table{Columns: records[0], Rows: records[1:]}, nil
}

type filterArgs struct {
	Column string `json:"column" jsonschema:"the column name to filter on"`
	Op     string `json:"op" jsonschema:"comparison operator: eq, neq, gt, lt, gte, lte, contains"`
	Value  string `json:"value" jsonschema:"the value to compare against"`
}

type aggregateArgs struct {
	Column string `json:"column" jsonschema:"the column name to aggregate"`
	Func   string `json:"func" jsonschema:"aggregate function: sum, avg, min, max, count"`
}

// Agent is the Pandas Agent, bound to a single loaded Table.
type Agent struct {
	name          string
	llm           provider.Provider
	table         Table
	maxIterations int
}

// New constructs a Pandas Agent over an already-loaded Table.
func New(name string, llm provider.Provider, table Table, maxIterations int) *Agent {
	if maxIterations <= 0 {
		maxIterations = 6
	}
	return &Agent{name: name, llm: llm, table: table, maxIterations: maxIterations}
}

func (a *Agent) Name() string                 { return a.name }
func (a *Agent) Kind() orchestrator.AgentKind { return orchestrator.AgentKindPandas }

// Execute implements orchestrator.Executor.
func (a *Agent) Execute(ctx context.Context, query orchestrator.Query, agentCtx orchestrator.Context) orchestrator.AgentResult {
	start := time.Now()

	filterSchema, _ := jsonschema.For[filterArgs](nil)
	aggSchema, _ := jsonschema.For[aggregateArgs](nil)

	availableTools := []tools.Tool{
		tools.NewFunctionTool("describe_table", "Describe the loaded table's columns and row count.", nil, a.describeTable),
		tools.NewFunctionTool("filter_rows", "Filter the table's rows by a single column predicate and return the count and a preview.", filterSchema, a.filterRows),
		tools.NewFunctionTool("aggregate", "Compute an aggregate function over a numeric column.", aggSchema, a.aggregate),
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
			AgentName: a.name, Kind: orchestrator.AgentKindPandas,
			ErrorKind: orchestrator.ErrorKindProvider, Err: err, Duration: time.Since(start),
		}
	}

	return orchestrator.AgentResult{
		AgentName: a.name,
		Kind:      orchestrator.AgentKindPandas,
		Text:      result.Text,
		UsedTools: result.UsedTools,
		Usage:     orchestrator.Usage{Model: a.llm.ID(), InputTokens: result.Usage.InputTokens, OutputTokens: result.Usage.OutputTokens},
		Duration:  time.Since(start),
	}
}

func (a *Agent) describeTable(_ context.Context, _ tools.ToolCall) (*tools.ToolCallResult, error) {
	return tools.ResultSuccess(fmt.Sprintf("columns: %s\nrows: %d", strings.Join(a.table.Columns, ", "), len(a.table.Rows))), nil
}

func (a *Agent) columnIndex(name string) (int, error) {
	for i, c := range a.table.Columns {
		if strings.EqualFold(c, name) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("no such column %q", name)
}

func (a *Agent) filterRows(_ context.Context, call tools.ToolCall) (*tools.ToolCallResult, error) {
	var args filterArgs
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("parse filter_rows arguments: %w", err)
	}

	idx, err := a.columnIndex(args.Column)
	if err != nil {
		return nil, fmt.Errorf("filter_rows: %w", err)
	}

	cmp, err := compareFunc(args.Op)
	if err != nil {
		return nil, fmt.Errorf("filter_rows: %w", err)
	}

	var matched [][]string
	for _, row := range a.table.Rows {
		if idx >= len(row) {
			continue
		}
		if cmp(row[idx], args.Value) {
			matched = append(matched, row)
		}
	}

	preview := matched
	if len(preview) > 10 {
		preview = preview[:10]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d matching rows\n", len(matched))
	for _, row := range preview {
		sb.WriteString(strings.Join(row, "\t"))
		sb.WriteString("\n")
	}
	return tools.ResultSuccess(sb.String()), nil
}

func (a *Agent) aggregate(_ context.Context, call tools.ToolCall) (*tools.ToolCallResult, error) {
	var args aggregateArgs
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("parse aggregate arguments: %w", err)
	}

	idx, err := a.columnIndex(args.Column)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	fn := strings.ToLower(args.Func)
	if fn == "count" {
		return tools.ResultSuccess(fmt.Sprintf("count = %d", len(a.table.Rows))), nil
	}

	var values []float64
	for _, row := range a.table.Rows {
		if idx >= len(row) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("aggregate: column %q has no numeric values", args.Column)
	}

	result, err := reduce(fn, values)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	return tools.ResultSuccess(fmt.Sprintf("%s(%s) = %g", fn, args.Column, result)), nil
}

func reduce(fn string, values []float64) (float64, error) {
	switch fn {
	case "sum":
		var total float64
		for _, v := range values {
			total += v
		}
		return total, nil
	case "avg":
		var total float64
		for _, v := range values {
			total += v
		}
		return total / float64(len(values)), nil
	case "min":
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min, nil
	case "max":
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max, nil
	default:
		return 0, fmt.Errorf("unknown aggregate function %q", fn)
	}
}

func compareFunc(op string) (func(cell, value string) bool, error) {
	switch strings.ToLower(op) {
	case "eq":
		return func(cell, value string) bool { return cell == value }, nil
	case "neq":
		return func(cell, value string) bool { return cell != value }, nil
	case "contains":
		return func(cell, value string) bool { return strings.Contains(cell, value) }, nil
	case "gt", "lt", "gte", "lte":
		return numericCompare(op), nil
	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}
}

func numericCompare(op string) func(cell, value string) bool {
	return func(cell, value string) bool {
		c, err1 := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		v, err2 := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err1 != nil || err2 != nil {
			return false
		}
		switch op {
		case "gt":
			return c > v
		case "lt":
			return c < v
		case "gte":
			return c >= v
		case "lte":
			return c <= v
		}
		return false
	}
}

var _ orchestrator.Executor = (*Agent)(nil)
