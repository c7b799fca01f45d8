package provider

import (
	"context"
	"fmt"

	"github.com/deskmind/core/pkg/chat"
	"github.com/deskmind/core/pkg/tools"
)

// Complete runs a single non-streaming-shaped completion against a
// streaming Provider, draining the stream and concatenating content deltas.
// The retriever's multi-query expansion, the hybrid analyzer, and the
// orchestrator's result-merge step all just need one final string plus the
// usage the call cost — none of them need incremental chunks — so they
// share this helper instead of each re-implementing the drain loop.
func Complete(ctx context.Context, p Provider, messages []chat.Message, availableTools []tools.Tool) (string, chat.Usage, error) {
	stream, err := p.CreateChatCompletionStream(ctx, messages, availableTools)
	if err != nil {
		return "", chat.Usage{}, fmt.Errorf("create completion: %w", err)
	}
	defer stream.Close()

	var text string
	var usage chat.Usage

	for {
		chunk, ok := stream.Recv()
		if !ok {
			break
		}
		if chunk.Err != nil {
			return "", chat.Usage{}, fmt.Errorf("stream completion: %w", chunk.Err)
		}
		text += chunk.ContentDelta
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if err := ctx.Err(); err != nil {
			return "", chat.Usage{}, err
		}
	}

	return text, usage, nil
}
