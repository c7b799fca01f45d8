package tools

import "context"

// ToolSet is a named collection of tools an agent can call. Some toolsets
// are ready immediately (Start/Stop are no-ops); others, like an MCP client
// or a file-scoped capability, need to connect or acquire a resource before
// Tools can enumerate what's available.
type ToolSet interface {
	Tools(ctx context.Context) ([]Tool, error)
	Start(ctx context.Context) error
	Stop() error
}
