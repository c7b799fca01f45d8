// Package config is the ambient configuration layer: a typed struct parsed
// from YAML via github.com/goccy/go-yaml, with hand-written Validate
// methods rather than struct-tag validation.
package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/deskmind/core/pkg/environment"
	"github.com/deskmind/core/pkg/js"
	"github.com/deskmind/core/pkg/orchestrator"
)

// EmbeddingConfig covers the embedding.* keys.
type EmbeddingConfig struct {
	ModelID        string `yaml:"model_id"`
	BatchSize      int    `yaml:"batch_size"`
	CacheCapacity  int    `yaml:"cache_capacity"`
	MaxConcurrency int    `yaml:"max_concurrency"`
}

// ChunkingConfig covers the chunking.* keys.
type ChunkingConfig struct {
	WindowSize   int     `yaml:"window_size"`
	OverlapRatio float64 `yaml:"overlap_ratio"`
	CodeAware    bool    `yaml:"code_aware"`
}

// RetrievalConfig covers the retrieval.* keys.
type RetrievalConfig struct {
	K          int  `yaml:"k"`
	MultiQuery bool `yaml:"multi_query"`
}

// RerankerConfig covers the reranker.* keys. Mode selects the
// implementation: "heuristic" (default, no model call) or "llm" (delegates
// to the chat model's provider.RerankingProvider).
type RerankerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Mode    string `yaml:"mode"`
	ModelID string `yaml:"model_id"`
	TopN    int    `yaml:"top_n"`
}

const (
	RerankerModeHeuristic = "heuristic"
	RerankerModeLLM       = "llm"
)

// OrchestratorConfig covers the orchestrator.* keys.
type OrchestratorConfig struct {
	Strategy         string `yaml:"strategy"`
	MaxParallel      int    `yaml:"max_parallel"`
	PerAgentTimeoutS int    `yaml:"per_agent_timeout_s"`
}

// AgentsConfig covers the agents.* keys.
type AgentsConfig struct {
	Enabled []string `yaml:"enabled"`
}

// TokensConfig covers the tokens.* keys.
type TokensConfig struct {
	PriceTable map[string][2]float64 `yaml:"price_table"` // model -> [input_per_1k, output_per_1k]
}

// Config is the whole recognized configuration surface.
type Config struct {
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Chunking     ChunkingConfig     `yaml:"chunking"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Reranker     RerankerConfig     `yaml:"reranker"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Agents       AgentsConfig       `yaml:"agents"`
	Tokens       TokensConfig       `yaml:"tokens"`
}

// Default returns the built-in configuration, applied before any file or
// override is layered on top.
func Default() Config {
	return Config{
		Embedding: EmbeddingConfig{
			ModelID:        "text-embedding-3-small",
			BatchSize:      32,
			CacheCapacity:  1024,
			MaxConcurrency: 4,
		},
		Chunking: ChunkingConfig{
			WindowSize:   1000,
			OverlapRatio: 0.15,
		},
		Retrieval: RetrievalConfig{
			K:          8,
			MultiQuery: false,
		},
		Reranker: RerankerConfig{
			Enabled: true,
			Mode:    RerankerModeHeuristic,
			TopN:    5,
		},
		Orchestrator: OrchestratorConfig{
			Strategy:         string(orchestrator.StrategyHybrid),
			MaxParallel:      5,
			PerAgentTimeoutS: 30,
		},
	}
}

// Reader abstracts config sourcing, matching the prior art's
// pkg/config.Reader shape (a file, an embedded default, stdin, whatever).
type Reader interface {
	Read(ctx context.Context) ([]byte, error)
}

// FileReader reads a config from a path on disk.
type FileReader struct{ Path string }

// Read implements Reader.
func (f FileReader) Read(context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", f.Path, err)
	}
	return data, nil
}

// StreamReader reads a config from an already-open io.Reader.
type StreamReader struct{ R io.Reader }

// Read implements Reader.
func (s StreamReader) Read(context.Context) ([]byte, error) {
	return io.ReadAll(s.R)
}

// Load reads source, merges it over Default(), and validates the result.
func Load(ctx context.Context, source Reader) (Config, error) {
	cfg := Default()

	data, err := source.Read(ctx)
	if err != nil {
		return Config{}, err
	}

	expanded := js.NewJsExpander(environment.NewOsEnvProvider()).Expand(ctx, string(data))

	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing\n%s", yaml.FormatError(err, true, true))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks every recognized key for internal consistency. It does
// not check that a named model is actually installed (that check needs a
// live provider registry, performed by the caller who owns one).
func (c Config) Validate() error {
	if c.Embedding.ModelID == "" {
		return fmt.Errorf("config: embedding.model_id is required")
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("config: embedding.batch_size must be positive")
	}
	if c.Embedding.CacheCapacity < 0 {
		return fmt.Errorf("config: embedding.cache_capacity must not be negative")
	}
	if c.Chunking.WindowSize <= 0 {
		return fmt.Errorf("config: chunking.window_size must be positive")
	}
	if c.Chunking.OverlapRatio < 0 || c.Chunking.OverlapRatio >= 1 {
		return fmt.Errorf("config: chunking.overlap_ratio must be in [0, 1)")
	}
	if c.Retrieval.K <= 0 {
		return fmt.Errorf("config: retrieval.k must be positive")
	}
	if c.Reranker.Enabled && c.Reranker.TopN <= 0 {
		return fmt.Errorf("config: reranker.top_n must be positive when reranker.enabled is true")
	}
	switch c.Reranker.Mode {
	case "", RerankerModeHeuristic, RerankerModeLLM:
	default:
		return fmt.Errorf("config: reranker.mode %q is not one of heuristic|llm", c.Reranker.Mode)
	}
	switch orchestrator.Strategy(c.Orchestrator.Strategy) {
	case orchestrator.StrategySequential, orchestrator.StrategyParallel, orchestrator.StrategyConditional, orchestrator.StrategyHybrid:
	default:
		return fmt.Errorf("config: orchestrator.strategy %q is not one of sequential|parallel|conditional|hybrid", c.Orchestrator.Strategy)
	}
	if c.Orchestrator.MaxParallel <= 0 {
		return fmt.Errorf("config: orchestrator.max_parallel must be positive")
	}
	if c.Orchestrator.PerAgentTimeoutS <= 0 {
		return fmt.Errorf("config: orchestrator.per_agent_timeout_s must be positive")
	}
	for model, prices := range c.Tokens.PriceTable {
		if prices[0] < 0 || prices[1] < 0 {
			return fmt.Errorf("config: tokens.price_table[%s]: prices must not be negative", model)
		}
	}
	return nil
}

// PerAgentTimeout returns orchestrator.per_agent_timeout_s as a Duration.
func (c Config) PerAgentTimeout() time.Duration {
	return time.Duration(c.Orchestrator.PerAgentTimeoutS) * time.Second
}

// AgentEnabled reports whether name is present in agents.enabled, or true
// if agents.enabled was left empty (meaning "all agents enabled", the
// natural default so an empty config still runs every agent).
func (c Config) AgentEnabled(name string) bool {
	if len(c.Agents.Enabled) == 0 {
		return true
	}
	for _, n := range c.Agents.Enabled {
		if n == name {
			return true
		}
	}
	return false
}
