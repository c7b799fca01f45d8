// Package chat defines the message types exchanged with an LLM provider.
// The provider itself is an external collaborator; this package only fixes the shape both sides agree on.
package chat

import (
	"path/filepath"
	"strings"

	"github.com/deskmind/core/pkg/tools"
)

// Role identifies the speaker of a Message.
type Role string

const (
	MessageRoleSystem    Role = "system"
	MessageRoleUser      Role = "user"
	MessageRoleAssistant Role = "assistant"
	MessageRoleTool      Role = "tool"
)

// Message is one turn in a conversation, optionally carrying tool calls
// (from the assistant) or a tool result (role=tool).
type Message struct {
	Role       Role            `json:"role"`
	Content    string          `json:"content"`
	ToolCalls  []tools.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
}

// Usage is the token accounting a provider reports for one completion call.
type Usage struct {
	InputTokens       int
	OutputTokens      int
	ReasoningTokens   int
	CachedInputTokens int
	CacheWriteTokens  int
}

// Total returns the sum of input and output tokens, the figure the token
// tracker records against a model/agent/session.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// StreamChunk is one increment of an in-progress completion.
type StreamChunk struct {
	ContentDelta string
	ToolCalls    []tools.ToolCall
	Usage        *Usage
	Err          error
}

// MessageStream is iterated by the caller to assemble a streamed completion.
type MessageStream interface {
	Recv() (StreamChunk, bool)
	Close() error
}

// mimeByExt maps a handful of well-known extensions to the MIME type a
// multimodal provider expects for an attachment. Anything not recognized as
// an image or PDF is treated as plain text if it looks like source/text, and
// as an opaque binary otherwise.
var mimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

var textExt = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".json": true, ".csv": true,
	".go": true, ".py": true, ".yaml": true, ".yml": true, ".mk": true,
	".html": true, ".css": true, ".ts": true, ".tsx": true, ".rs": true,
	".java": true, ".sh": true, ".toml": true, ".sql": true, ".dockerfile": true,
	".graphql": true, ".svg": true, ".diff": true,
}

// DetectMimeType returns the MIME type an attachment at path should be sent
// with, based on its extension.
func DetectMimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		base := strings.ToLower(filepath.Base(path))
		if base == "makefile" || base == "dockerfile" {
			return "text/plain"
		}
	}
	if mt, ok := mimeByExt[ext]; ok {
		return mt
	}
	if textExt[ext] {
		return "text/plain"
	}
	return "application/octet-stream"
}

var supportedMimeTypes = map[string]bool{
	"image/jpeg":       true,
	"image/png":        true,
	"image/gif":        true,
	"image/webp":       true,
	"application/pdf":  true,
	"text/plain":       true,
}

// IsSupportedMimeType reports whether a provider can be sent an attachment
// of this MIME type.
func IsSupportedMimeType(mimeType string) bool {
	return supportedMimeTypes[mimeType]
}
