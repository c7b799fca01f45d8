// Package openai implements provider.Provider, provider.EmbeddingProvider,
// provider.BatchEmbeddingProvider and provider.RerankingProvider against the
// OpenAI Chat Completions and Embeddings APIs, grounded on the prior art's
// Tangerg-lynx
// ai/extensions/models/openai Api wrapper (NewClient/WithAPIKey,
// client.Chat.Completions.New/NewStreaming, client.Embeddings.New), adapted
// from that repo's own request/response model to this module's simpler
// chat.MessageStream/Provider interfaces.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"github.com/deskmind/core/pkg/chat"
	"github.com/deskmind/core/pkg/model/provider/base"
	"github.com/deskmind/core/pkg/rag/prompts"
	"github.com/deskmind/core/pkg/rag/types"
	"github.com/deskmind/core/pkg/tools"
)

// Client adapts the OpenAI SDK to provider.Provider/EmbeddingProvider/
// BatchEmbeddingProvider. Zero value is not usable; construct with New.
type Client struct {
	base.Config
	client openai.Client
}

// New builds a Client for cfg.Model, authenticated with apiKey. opts are
// passed straight through to openai.NewClient (base URL overrides, custom
// HTTP client, retry policy, ...).
func New(apiKey string, cfg base.Config, opts ...option.RequestOption) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai: cfg.Model is required")
	}

	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		Config: cfg,
		client: openai.NewClient(reqOpts...),
	}, nil
}

// ID implements provider.Provider via base.Config.ID, keyed "openai/<model>".
func (c *Client) ID() string {
	if c.Config.Type == "" {
		c.Config.Type = "openai"
	}
	return c.Config.ID()
}

func (c *Client) newParams(messages []chat.Message, availableTools []tools.Tool) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.Config.Model,
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	if c.Config.Temperature != nil {
		params.Temperature = openai.Float(*c.Config.Temperature)
	}
	if c.Config.TopP != nil {
		params.TopP = openai.Float(*c.Config.TopP)
	}
	if c.Config.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*c.Config.FrequencyPenalty)
	}
	if c.Config.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*c.Config.PresencePenalty)
	}
	if c.Config.MaxTokens != nil {
		params.MaxTokens = openai.Int(*c.Config.MaxTokens)
	}
	if c.Config.ParallelToolCalls != nil {
		params.ParallelToolCalls = openai.Bool(*c.Config.ParallelToolCalls)
	}

	for _, m := range messages {
		msg, err := toAPIMessage(m)
		if err != nil {
			return params, err
		}
		params.Messages = append(params.Messages, msg)
	}

	if len(availableTools) > 0 {
		params.Tools = make([]openai.ChatCompletionToolParam, 0, len(availableTools))
		for _, t := range availableTools {
			if t.Function == nil {
				continue
			}
			var schema map[string]any
			if raw, err := json.Marshal(t.Function.Parameters); err == nil {
				_ = json.Unmarshal(raw, &schema)
			}
			params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        t.Function.Name,
					Description: openai.String(t.Function.Description),
					Parameters:  schema,
				},
			})
		}
	}

	return params, nil
}

func toAPIMessage(m chat.Message) (openai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case chat.MessageRoleSystem:
		return openai.SystemMessage(m.Content), nil
	case chat.MessageRoleUser:
		return openai.UserMessage(m.Content), nil
	case chat.MessageRoleTool:
		return openai.ToolMessage(m.Content, m.ToolCallID), nil
	case chat.MessageRoleAssistant:
		msg := openai.AssistantMessage(m.Content)
		for _, tc := range m.ToolCalls {
			msg.OfAssistant.ToolCalls = append(msg.OfAssistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		return msg, nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unsupported message role %q", m.Role)
	}
}

// CreateChatCompletionStream implements provider.Provider.
func (c *Client) CreateChatCompletionStream(ctx context.Context, messages []chat.Message, availableTools []tools.Tool) (chat.MessageStream, error) {
	params, err := c.newParams(messages, availableTools)
	if err != nil {
		return nil, err
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	return &streamAdapter{stream: stream}, nil
}

// streamAdapter turns an SSE chat-completion chunk stream into
// chat.MessageStream's simpler pull shape, accumulating tool-call argument
// fragments across chunks the way a streamed tool call always arrives (name
// and each argument fragment in separate deltas).
type streamAdapter struct {
	stream    *ssestream.Stream[openai.ChatCompletionChunk]
	pending   []tools.ToolCall
	sawFinish bool
}

func (s *streamAdapter) Recv() (chat.StreamChunk, bool) {
	if !s.stream.Next() {
		if err := s.stream.Err(); err != nil {
			return chat.StreamChunk{Err: err}, true
		}
		return chat.StreamChunk{}, false
	}

	chunk := s.stream.Current()
	out := chat.StreamChunk{}

	if len(chunk.Choices) > 0 {
		delta := chunk.Choices[0].Delta
		out.ContentDelta = delta.Content
		if len(delta.ToolCalls) > 0 {
			out.ToolCalls = make([]tools.ToolCall, len(delta.ToolCalls))
			for i, tc := range delta.ToolCalls {
				idx := int(tc.Index)
				out.ToolCalls[i] = tools.ToolCall{
					Index: &idx,
					ID:    tc.ID,
					Type:  "function",
					Function: tools.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				}
			}
		}
	}

	if chunk.Usage.TotalTokens > 0 {
		out.Usage = &chat.Usage{
			InputTokens:  int(chunk.Usage.PromptTokens),
			OutputTokens: int(chunk.Usage.CompletionTokens),
		}
	}

	return out, true
}

func (s *streamAdapter) Close() error {
	return s.stream.Close()
}

// CreateEmbedding implements provider.EmbeddingProvider.
func (c *Client) CreateEmbedding(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("openai: empty embedding response")
	}
	return vectors[0], nil
}

// rerankJSONInstruction tells the model the exact shape of the JSON object
// it must reply with, since non-streaming completions here are not forced
// into a structured response format.
const rerankJSONInstruction = `Respond with a single JSON object of the form {"scores": [0.8, 0.3, ...]} and nothing else.`

// rerankResponse is the JSON shape BuildRerankSystemPrompt's
// rerankJSONInstruction asks the model to reply with.
type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// Rerank implements provider.RerankingProvider by asking the chat model to
// score each document's relevance to query against criteria, using
// pkg/rag/prompts to build the system and user turns and a non-streaming
// completion to get a single parseable reply.
func (c *Client) Rerank(ctx context.Context, query string, documents []types.Document, criteria string) ([]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	systemPrompt := prompts.BuildRerankSystemPrompt(documents, criteria, nil, rerankJSONInstruction)
	userPrompt := prompts.BuildRerankDocumentsPrompt(query, documents)

	params, err := c.newParams([]chat.Message{
		{Role: chat.MessageRoleSystem, Content: systemPrompt},
		{Role: chat.MessageRoleUser, Content: userPrompt},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("openai: build rerank request: %w", err)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: rerank completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("openai: rerank completion returned no choices")
	}

	content := completion.Choices[0].Message.Content
	start, end := strings.IndexByte(content, '{'), strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("openai: rerank reply is not a JSON object: %q", content)
	}

	var parsed rerankResponse
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("openai: parse rerank scores: %w", err)
	}
	if len(parsed.Scores) != len(documents) {
		return nil, fmt.Errorf("openai: rerank returned %d scores for %d documents", len(parsed.Scores), len(documents))
	}

	return parsed.Scores, nil
}

// CreateEmbeddings implements provider.BatchEmbeddingProvider.
func (c *Client) CreateEmbeddings(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: c.Config.Model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, err
	}

	out := make([][]float64, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			continue
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
