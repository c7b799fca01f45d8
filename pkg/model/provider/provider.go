// Package provider defines the seam between the core and an LLM backend.
// Concrete adapters (HTTP calls to Anthropic, OpenAI, Bedrock, ...) are an
// external collaborator; this package only depends on the interfaces below.
package provider

import (
	"context"

	"github.com/deskmind/core/pkg/chat"
	"github.com/deskmind/core/pkg/rag/types"
	"github.com/deskmind/core/pkg/tools"
)

// Provider is a uniform streaming chat-completion backend. ID identifies the
// underlying model for pricing lookups (pkg/tokens) and cache keys
// (pkg/rag/embed).
type Provider interface {
	ID() string

	CreateChatCompletionStream(ctx context.Context, messages []chat.Message, availableTools []tools.Tool) (chat.MessageStream, error)
}

// EmbeddingProvider is implemented by providers that can embed a single
// piece of text. Not every Provider supports it; callers type-assert.
type EmbeddingProvider interface {
	CreateEmbedding(ctx context.Context, text string) ([]float64, error)
}

// BatchEmbeddingProvider is implemented by providers that can embed many
// texts in one round trip. The embedder (pkg/rag/embed) prefers this over
// repeated EmbeddingProvider calls.
type BatchEmbeddingProvider interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float64, error)
}

// RerankingProvider is implemented by providers that can score a query
// against a set of candidate documents, optionally steered by a free-form
// criteria string.
type RerankingProvider interface {
	Rerank(ctx context.Context, query string, documents []types.Document, criteria string) ([]float64, error)
}
