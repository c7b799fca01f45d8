package main

import (
	"context"
	"fmt"

	"github.com/deskmind/core/pkg/agent/ragagent"
	"github.com/deskmind/core/pkg/chatmode"
	"github.com/deskmind/core/pkg/config"
	"github.com/deskmind/core/pkg/core"
	"github.com/deskmind/core/pkg/environment"
	"github.com/deskmind/core/pkg/model/provider/base"
	"github.com/deskmind/core/pkg/model/provider/openai"
	"github.com/deskmind/core/pkg/orchestrator"
	"github.com/deskmind/core/pkg/rag/crypto"
	"github.com/deskmind/core/pkg/rag/embed"
	"github.com/deskmind/core/pkg/rag/ingest"
	"github.com/deskmind/core/pkg/rag/lexical"
	"github.com/deskmind/core/pkg/rag/rerank"
	"github.com/deskmind/core/pkg/rag/retriever"
	"github.com/deskmind/core/pkg/rag/vectorstore"
	"github.com/deskmind/core/pkg/sqliteutil"
	"github.com/deskmind/core/pkg/tokens"
)

// encryptionKeyEnvVar names the environment variable envKeyManager reads
// the chunk-encryption secret from.
const encryptionKeyEnvVar = "DESKMIND_ENCRYPTION_KEY"

// envKeyManager resolves the chunk-encryption secret from the process
// environment, via the same environment.Provider seam the CLI uses for
// API-key lookups.
type envKeyManager struct {
	env environment.Provider
}

func (m envKeyManager) GetSecret(ctx context.Context, keyID string) ([]byte, error) {
	v, ok := m.env.Get(ctx, keyID)
	if !ok || v == "" {
		return nil, fmt.Errorf("wiring: environment variable %s is not set", keyID)
	}
	return []byte(v), nil
}

// app bundles every collaborator a subcommand needs, built once from
// rootFlags and released via close.
type app struct {
	cfg     config.Config
	store   *vectorstore.Store
	catalog *vectorstore.Catalog
	ingest  *ingest.Pipeline
	retr    *retriever.Retriever
	tracker *tokens.Tracker
	router  *chatmode.Router
	close   func() error
}

// core constructs the pkg/core.Core façade over app's collaborators.
func (a *app) core() (*core.Core, error) {
	return core.New(core.Deps{
		Config:    a.cfg,
		Store:     a.store,
		Catalog:   a.catalog,
		Ingest:    a.ingest,
		Retriever: a.retr,
		Tracker:   a.tracker,
		ChatMode:  a.router,
	})
}

// buildApp wires every collaborator this CLI's subcommands need from CLI
// flags and the process environment. OPENAI_API_KEY is required: every
// mode needs an embedding provider, a chat-completion provider, or both.
func buildApp(ctx context.Context, flags *rootFlags) (*app, error) {
	env := environment.NewOsEnvProvider()

	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(ctx, config.FileReader{Path: flags.configPath})
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	apiKey, _ := env.Get(ctx, "OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY must be set")
	}

	embeddingLLM, err := openai.New(apiKey, base.Config{Model: cfg.Embedding.ModelID})
	if err != nil {
		return nil, fmt.Errorf("construct embedding provider: %w", err)
	}
	chatLLM, err := openai.New(apiKey, base.Config{Model: "gpt-4o-mini"})
	if err != nil {
		return nil, fmt.Errorf("construct chat provider: %w", err)
	}

	db, err := sqliteutil.OpenDB(flags.dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	closeDB := func() error { return db.Close() }

	store, err := vectorstore.OpenWithDB(db, cfg.Embedding.ModelID)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	catalog, err := vectorstore.OpenCatalog(ctx, db)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	salt, err := store.EnsureSalt(ctx, crypto.NewSalt)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("ensure encryption salt: %w", err)
	}

	enc := crypto.New(envKeyManager{env: env}, encryptionKeyEnvVar)

	embedder := embed.New(embeddingLLM,
		embed.WithBatchSize(cfg.Embedding.BatchSize),
		embed.WithMaxConcurrency(cfg.Embedding.MaxConcurrency),
		embed.WithCacheCapacity(cfg.Embedding.CacheCapacity),
	)

	lexicalIndex, err := lexical.New()
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("construct lexical index: %w", err)
	}

	ingestPipeline := ingest.New(embedder, store, catalog, enc, salt, lexicalIndex, ingest.Config{
		WindowSize:            cfg.Chunking.WindowSize,
		OverlapRatio:          cfg.Chunking.OverlapRatio,
		RespectWordBoundaries: true,
		CodeAware:             cfg.Chunking.CodeAware,
	})

	var reranker rerank.Reranker
	if cfg.Reranker.Enabled {
		switch cfg.Reranker.Mode {
		case config.RerankerModeLLM:
			r, err := rerank.NewLLMReranker(rerank.Config{Model: chatLLM, TopK: cfg.Reranker.TopN})
			if err != nil {
				closeDB()
				return nil, fmt.Errorf("construct reranker: %w", err)
			}
			reranker = r
		default:
			reranker = rerank.NewHeuristicReranker(cfg.Reranker.TopN, 0)
		}
	}

	retr := retriever.New(embedder, store, enc, salt, lexicalIndex, reranker, chatLLM, retriever.Config{
		K:               cfg.Retrieval.K,
		RerankerEnabled: cfg.Reranker.Enabled,
		TopN:            cfg.Reranker.TopN,
		MultiQuery:      cfg.Retrieval.MultiQuery,
		MultiQueryN:     3,
	})

	tokStore, err := tokens.OpenStore(flags.dbPath)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("open token store: %w", err)
	}
	tracker := tokens.New(tokStore, tokens.DefaultPriceTable())

	ragExecutor := ragagent.New("rag", chatLLM, retr, 6)
	analyzer := orchestrator.NewAnalyzer(chatLLM, []orchestrator.AvailableAgent{
		{Kind: orchestrator.AgentKindRAG, Description: "answers questions by searching ingested documents"},
	})
	orch := orchestrator.New([]orchestrator.Executor{ragExecutor}, analyzer, chatLLM, orchestrator.Config{
		DefaultStrategy: orchestrator.Strategy(cfg.Orchestrator.Strategy),
		MaxParallel:     cfg.Orchestrator.MaxParallel,
		AgentTimeout:    cfg.PerAgentTimeout(),
	})

	router := chatmode.New(chatLLM, nil, orch, tracker, 6)

	return &app{
		cfg:     cfg,
		store:   store,
		catalog: catalog,
		ingest:  ingestPipeline,
		retr:    retr,
		tracker: tracker,
		router:  router,
		close:   closeDB,
	}, nil
}
