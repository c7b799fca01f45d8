// Package rerank implements the reranking stage of the retrieval pipeline:
// an optional second pass over the oversampled candidate set that reorders
// results by a relevance signal sharper than raw cosine similarity, before
// the retriever truncates to its final top-k.
//
// Two Reranker implementations are provided. HeuristicReranker needs no
// model and is the default: a lightweight term-overlap score, grounded on
// the tokenize/stopword-filter pattern the prior art's BM25 indexing
// strategy uses for lexical scoring. LLMReranker delegates to any model
// provider implementing provider.RerankingProvider, and memoizes both its
// model resolution and its scoring calls with github.com/kofalt/go-memoize
// so that repeated reranks of the same query against the same candidate
// set within a short window reuse one in-flight or recently-computed
// result instead of re-querying the model.
package rerank

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kofalt/go-memoize"

	"github.com/deskmind/core/pkg/model/provider"
	"github.com/deskmind/core/pkg/rag/database"
	"github.com/deskmind/core/pkg/rag/types"
)

// Reranker re-scores search results using a reranking model
type Reranker interface {
	// Rerank re-scores the given search results and returns them sorted by new scores
	Rerank(ctx context.Context, query string, results []database.SearchResult) ([]database.SearchResult, error)
}

// Resolver lazily constructs the reranking model provider, so a Config can
// defer an expensive or network-bound construction (loading a local model,
// authenticating a remote one) until the first Rerank call actually needs
// it. Resolver is only consulted when Model is nil, and its result is
// memoized for CacheTTL, after which the next Rerank call resolves again.
type Resolver func(ctx context.Context) (provider.Provider, error)

// Config holds reranking configuration
type Config struct {
	Model     provider.Provider // The reranking model provider
	Resolver  Resolver          // Used to construct Model lazily when Model is nil
	TopK      int               // Optional: only rerank top K results (0 = rerank all)
	Threshold float64           // Optional: minimum score threshold after reranking
	Criteria  string            // Optional: domain-specific relevance criteria to guide scoring
	CacheTTL  time.Duration     // How long a memoized score/model stays fresh (default 5m)
}

// LLMReranker implements reranking using any LLM provider that supports the RerankingProvider interface.
// In this module that is the OpenAI adapter.
type LLMReranker struct {
	config Config
	memo   *memoize.Memoizer
}

// NewLLMReranker creates a new LLM-based reranker. Either Model or Resolver
// must be set.
func NewLLMReranker(config Config) (*LLMReranker, error) {
	if config.Model == nil && config.Resolver == nil {
		return nil, fmt.Errorf("reranking model or resolver is required")
	}

	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	modelID := "lazy"
	if config.Model != nil {
		modelID = config.Model.ID()
	}
	slog.Debug("[Reranker] Creating LLM-based reranker",
		"model_id", modelID,
		"top_k", config.TopK,
		"threshold", config.Threshold)

	return &LLMReranker{
		config: config,
		memo:   memoize.NewMemoizer(ttl, 2*ttl),
	}, nil
}

// resolveModel returns the configured model, resolving and memoizing it via
// Resolver on first use when Model was left nil.
func (r *LLMReranker) resolveModel(ctx context.Context) (provider.Provider, error) {
	if r.config.Model != nil {
		return r.config.Model, nil
	}

	result, err, _ := r.memo.Memoize("resolve-model", func() (any, error) {
		return r.config.Resolver(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve reranking model: %w", err)
	}
	return result.(provider.Provider), nil
}

// Rerank re-scores results using the reranking model
func (r *LLMReranker) Rerank(ctx context.Context, query string, results []database.SearchResult) ([]database.SearchResult, error) {
	startTime := time.Now()

	if len(results) == 0 {
		return results, nil
	}

	model, err := r.resolveModel(ctx)
	if err != nil {
		return nil, err
	}

	rerankProvider, ok := model.(provider.RerankingProvider)
	if !ok {
		slog.Error("[Reranker] Model does not support reranking",
			"model_id", model.ID(),
			"model_type", fmt.Sprintf("%T", model))
		return nil, fmt.Errorf("model %s does not support reranking operation", model.ID())
	}

	slog.Debug("[Reranker] Starting reranking",
		"model_id", model.ID(),
		"query_length", len(query),
		"num_results", len(results),
		"top_k", r.config.TopK,
		"threshold", r.config.Threshold)

	numToRerank := len(results)
	if r.config.TopK > 0 && r.config.TopK < len(results) {
		numToRerank = r.config.TopK
	}

	documents := make([]types.Document, numToRerank)
	for i := range numToRerank {
		doc := results[i].Document
		documents[i] = types.Document{
			Content:    doc.Content,
			SourcePath: doc.SourcePath,
			ChunkIndex: doc.ChunkIndex,
			Metadata: map[string]string{
				"created_at": doc.CreatedAt,
			},
		}
	}

	cacheKey := scoreCacheKey(query, r.config.Criteria, documents)
	cached, err, wasCached := r.memo.Memoize(cacheKey, func() (any, error) {
		return rerankProvider.Rerank(ctx, query, documents, r.config.Criteria)
	})
	if err != nil {
		slog.Error("[Reranker] Reranking call failed",
			"model_id", model.ID(),
			"num_documents", len(documents),
			"error", err)
		return nil, fmt.Errorf("reranking failed: %w", err)
	}
	scores := cached.([]float64)

	if len(scores) != numToRerank {
		return nil, fmt.Errorf("reranking returned %d scores but expected %d", len(scores), numToRerank)
	}

	rerankedResults := make([]database.SearchResult, 0, len(results))
	for i := range numToRerank {
		if r.config.Threshold > 0 && scores[i] < r.config.Threshold {
			continue
		}
		newResult := results[i]
		newResult.Similarity = scores[i]
		rerankedResults = append(rerankedResults, newResult)
	}

	if numToRerank < len(results) {
		rerankedResults = append(rerankedResults, results[numToRerank:]...)
	}

	slices.SortFunc(rerankedResults, func(a, b database.SearchResult) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})

	slog.Debug("[Reranker] Reranking complete",
		"input_count", len(results),
		"output_count", len(rerankedResults),
		"cached", wasCached,
		"duration_ms", time.Since(startTime).Milliseconds())

	return rerankedResults, nil
}

// scoreCacheKey identifies a rerank call by query, criteria, and the exact
// ordered set of candidate chunk identities, so memoization only ever
// reuses a score for the identical request that produced it.
func scoreCacheKey(query, criteria string, documents []types.Document) string {
	var b strings.Builder
	b.WriteString(query)
	b.WriteByte('|')
	b.WriteString(criteria)
	for _, d := range documents {
		b.WriteByte('|')
		b.WriteString(d.SourcePath)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(d.ChunkIndex))
	}
	return b.String()
}

// HeuristicReranker re-scores results by query/document term overlap,
// grounded on the tokenize-and-score approach the prior art's hand-rolled
// BM25 strategy uses for lexical matching, without calling out to a model.
// It is the default reranker: always available, with no provider or
// network dependency.
type HeuristicReranker struct {
	TopK      int
	Threshold float64
}

// NewHeuristicReranker constructs a HeuristicReranker.
func NewHeuristicReranker(topK int, threshold float64) *HeuristicReranker {
	return &HeuristicReranker{TopK: topK, Threshold: threshold}
}

// Rerank re-scores results by the fraction of query terms each document
// contains.
func (r *HeuristicReranker) Rerank(_ context.Context, query string, results []database.SearchResult) ([]database.SearchResult, error) {
	if len(results) == 0 {
		return results, nil
	}

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return results, nil
	}

	numToRerank := len(results)
	if r.TopK > 0 && r.TopK < len(results) {
		numToRerank = r.TopK
	}

	rescored := make([]database.SearchResult, 0, len(results))
	for i := range numToRerank {
		score := termOverlapScore(queryTerms, results[i].Document.Content)
		if r.Threshold > 0 && score < r.Threshold {
			continue
		}
		newResult := results[i]
		newResult.Similarity = score
		rescored = append(rescored, newResult)
	}

	if numToRerank < len(results) {
		rescored = append(rescored, results[numToRerank:]...)
	}

	slices.SortFunc(rescored, func(a, b database.SearchResult) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})

	return rescored, nil
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "as": true, "by": true, "is": true,
	"was": true, "are": true, "were": true, "be": true, "been": true,
}

var punctuationReplacer = strings.NewReplacer(
	".", " ", ",", " ", "!", " ", "?", " ",
	";", " ", ":", " ", "(", " ", ")", " ",
	"[", " ", "]", " ", "{", " ", "}", " ",
	"\"", " ", "'", " ", "\n", " ", "\t", " ",
)

// tokenize lowercases, strips punctuation, and drops stopwords and
// length-2-or-shorter tokens.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	text = punctuationReplacer.Replace(text)

	fields := strings.Fields(text)
	tokens := make([]string, 0, len(fields))
	for _, tok := range fields {
		if len(tok) > 2 && !stopwords[tok] {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// termOverlapScore is the fraction of queryTerms present at least once in
// content, a simple but dependency-free proxy for lexical relevance.
func termOverlapScore(queryTerms []string, content string) float64 {
	contentTerms := make(map[string]bool)
	for _, tok := range tokenize(content) {
		contentTerms[tok] = true
	}

	matched := 0
	for _, term := range queryTerms {
		if contentTerms[term] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}
