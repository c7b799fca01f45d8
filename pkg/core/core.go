// Package core is the top-level façade:
// ingest, process_turn, search, topic/document CRUD, and token_stats, each
// wiring together the components built by pkg/rag/*, pkg/chatmode, and
// pkg/tokens. Grounded on the pkg/rag/manager.go Manager, which
// plays the same "accept already-configured collaborators, expose a small
// domain-level API over them" role for the RAG subsystem.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/deskmind/core/pkg/chatmode"
	"github.com/deskmind/core/pkg/config"
	"github.com/deskmind/core/pkg/orchestrator"
	"github.com/deskmind/core/pkg/rag/ingest"
	"github.com/deskmind/core/pkg/rag/retriever"
	"github.com/deskmind/core/pkg/rag/vectorstore"
	"github.com/deskmind/core/pkg/tokens"
)

// Deps are the already-constructed collaborators Core wires together. Each
// field is built by its own package's constructor (embed.New, crypto.New,
// vectorstore.Open/OpenCatalog, ingest.New, retriever.New, tokens.New,
// chatmode.New, orchestrator.New) against the caller's chosen providers
// and configuration; Core itself never constructs a provider or opens a
// database connection.
type Deps struct {
	Config    config.Config
	Store     *vectorstore.Store
	Catalog   *vectorstore.Catalog
	Ingest    *ingest.Pipeline
	Retriever *retriever.Retriever
	Tracker   *tokens.Tracker
	ChatMode  *chatmode.Router
}

// Core is the application-facing façade over the whole deskmind-core
// system. Zero value is not usable; construct with New.
type Core struct {
	cfg       config.Config
	store     *vectorstore.Store
	catalog   *vectorstore.Catalog
	ingest    *ingest.Pipeline
	retriever *retriever.Retriever
	tracker   *tokens.Tracker
	chatMode  *chatmode.Router
}

// New validates deps and constructs a Core. Every field except ChatMode is
// required: process_turn needs a Router, but search/ingest/CRUD/token_stats
// still work without one (a caller that only needs the library surface,
// e.g. a batch ingestion CLI, need not build a Router at all).
func New(deps Deps) (*Core, error) {
	if deps.Store == nil {
		return nil, newError(KindConfiguration, fmt.Errorf("core: Store is required"))
	}
	if deps.Catalog == nil {
		return nil, newError(KindConfiguration, fmt.Errorf("core: Catalog is required"))
	}
	if deps.Ingest == nil {
		return nil, newError(KindConfiguration, fmt.Errorf("core: Ingest pipeline is required"))
	}
	if deps.Retriever == nil {
		return nil, newError(KindConfiguration, fmt.Errorf("core: Retriever is required"))
	}
	if deps.Tracker == nil {
		return nil, newError(KindConfiguration, fmt.Errorf("core: Tracker is required"))
	}

	return &Core{
		cfg:       deps.Config,
		store:     deps.Store,
		catalog:   deps.Catalog,
		ingest:    deps.Ingest,
		retriever: deps.Retriever,
		tracker:   deps.Tracker,
		chatMode:  deps.ChatMode,
	}, nil
}

// IngestResult summarizes one Ingest call, aggregated from the
// ingest.Pipeline's per-file ProgressEvent stream.
type IngestResult struct {
	Completed []string
	Failed    map[string]error
}

// Ingest runs the Ingestion Pipeline over files into topicID, draining the
// pipeline's event stream itself; onProgress, if non-nil, is invoked once per
// ingest.ProgressEvent for a caller that wants live progress instead of
// only the final summary.
func (c *Core) Ingest(ctx context.Context, files []string, topicID string, onProgress func(ingest.ProgressEvent)) (IngestResult, error) {
	events := make(chan ingest.ProgressEvent)
	result := IngestResult{Failed: map[string]error{}}

	done := make(chan error, 1)
	go func() {
		done <- c.ingest.ProcessFiles(ctx, files, topicID, events)
	}()

	for ev := range events {
		if onProgress != nil {
			onProgress(ev)
		}
		switch ev.Kind {
		case ingest.EventComplete:
			result.Completed = append(result.Completed, ev.File)
		case ingest.EventError:
			result.Failed[ev.File] = ev.Err
		}
	}

	if err := <-done; err != nil {
		return result, newError(KindIngestion, err)
	}
	return result, nil
}

// Search runs the Retriever directly, returning ranked passages; it is the
// read-only path a UI can use without going through a chat turn at all.
func (c *Core) Search(ctx context.Context, query string, k int, filter vectorstore.Filter) ([]retriever.Passage, error) {
	passages, err := c.retriever.Retrieve(ctx, query, k, filter)
	if err != nil {
		return nil, newError(KindRetrieval, err)
	}
	return passages, nil
}

// TurnResult is what ProcessTurn returns.
type TurnResult struct {
	Answer    string
	UsedTools []string
	Usage     tokens.Totals
}

// ProcessTurn routes one user turn through the Chat Mode Router.
func (c *Core) ProcessTurn(ctx context.Context, sessionID, messageID, userInput string, mode chatmode.Mode, history []orchestrator.ChatTurn, topicFilter string, strategy orchestrator.Strategy) (TurnResult, error) {
	if c.chatMode == nil {
		return TurnResult{}, newError(KindConfiguration, fmt.Errorf("core: no chat mode router configured"))
	}

	result, err := c.chatMode.Process(ctx, mode, chatmode.Input{
		SessionID:   sessionID,
		MessageID:   messageID,
		Text:        userInput,
		History:     history,
		TopicFilter: topicFilter,
		Strategy:    strategy,
	})
	if err != nil {
		return TurnResult{Usage: result.Usage}, newError(KindAgent, err)
	}
	return TurnResult{Answer: result.Answer, UsedTools: result.UsedTools, Usage: result.Usage}, nil
}

// ListTopics returns every topic.
func (c *Core) ListTopics(ctx context.Context) ([]vectorstore.Topic, error) {
	topics, err := c.catalog.ListTopics(ctx)
	if err != nil {
		return nil, newError(KindRetrieval, err)
	}
	return topics, nil
}

// CreateTopic creates a new named retrieval scope.
func (c *Core) CreateTopic(ctx context.Context, name string) (vectorstore.Topic, error) {
	if name == "" {
		return vectorstore.Topic{}, newError(KindConfiguration, fmt.Errorf("core: topic name is required"))
	}
	topic, err := c.catalog.CreateTopic(ctx, name)
	if err != nil {
		return vectorstore.Topic{}, newError(KindRetrieval, err)
	}
	return topic, nil
}

// DeleteTopic removes a topic and every chunk/document it owns. Chunks are deleted first so a crash mid-delete never
// leaves an orphaned chunk with no owning topic (invariant: no orphan
// chunks).
func (c *Core) DeleteTopic(ctx context.Context, id string) error {
	if err := c.store.DeleteByTopic(ctx, id); err != nil {
		return newError(KindRetrieval, err)
	}

	docs, err := c.catalog.ListDocuments(ctx, id)
	if err != nil {
		return newError(KindRetrieval, err)
	}
	for _, doc := range docs {
		if err := c.catalog.DeleteDocument(ctx, doc.ID); err != nil {
			return newError(KindRetrieval, err)
		}
	}

	if err := c.catalog.DeleteTopic(ctx, id); err != nil {
		return newError(KindRetrieval, err)
	}
	return nil
}

// ListDocuments returns documents, optionally scoped to a topic.
func (c *Core) ListDocuments(ctx context.Context, topicID string) ([]vectorstore.Document, error) {
	docs, err := c.catalog.ListDocuments(ctx, topicID)
	if err != nil {
		return nil, newError(KindRetrieval, err)
	}
	return docs, nil
}

// DeleteDocument removes a document and its chunks: no chunk survives with that
// document's source path after deletion.
func (c *Core) DeleteDocument(ctx context.Context, id string) error {
	doc, err := c.catalog.GetDocument(ctx, id)
	if err != nil {
		return newError(KindRetrieval, err)
	}

	if err := c.store.DeleteByPath(ctx, doc.SourcePath); err != nil {
		return newError(KindRetrieval, err)
	}
	if err := c.catalog.DeleteDocument(ctx, id); err != nil {
		return newError(KindRetrieval, err)
	}
	if err := c.catalog.IncrementDocumentCount(ctx, doc.TopicID, -1); err != nil {
		return newError(KindRetrieval, err)
	}
	return nil
}

// TokenStatsRange scopes a TokenStats query to one dimension of aggregates; exactly one field should be set.
type TokenStatsRange struct {
	SessionID string
	Mode      string
	Model     string
	Agent     string
	Date      string // "2006-01-02"
}

// TokenStats returns the in-memory aggregate totals for rng.
func (c *Core) TokenStats(rng TokenStatsRange) tokens.Totals {
	switch {
	case rng.SessionID != "":
		return c.tracker.TotalsBySession(rng.SessionID)
	case rng.Mode != "":
		return c.tracker.TotalsByMode(rng.Mode)
	case rng.Model != "":
		return c.tracker.TotalsByModel(rng.Model)
	case rng.Agent != "":
		return c.tracker.TotalsByAgent(rng.Agent)
	case rng.Date != "":
		return c.tracker.TotalsByDate(rng.Date)
	default:
		return tokens.Totals{}
	}
}

// CompactionGrace is the default grace window Compact uses when a caller
// doesn't supply its own, matching the Vector Store's one-hour floor.
const CompactionGrace = time.Hour

// Compact reclaims chunks soft-deleted more than gracePeriod ago. A
// gracePeriod <= 0 uses CompactionGrace.
func (c *Core) Compact(ctx context.Context, gracePeriod time.Duration) (int64, error) {
	if gracePeriod <= 0 {
		gracePeriod = CompactionGrace
	}
	n, err := c.store.Compact(ctx, gracePeriod)
	if err != nil {
		return 0, newError(KindRetrieval, err)
	}
	return n, nil
}
