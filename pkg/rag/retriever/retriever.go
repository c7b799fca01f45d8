// Package retriever implements the Retriever: query ->
// retrieve-oversample -> optional rerank -> top-k, grounded on
// pkg/rag/manager.go's Query method (single- and multi-strategy retrieval
// paths collapsed here into one embed+search+rerank pipeline against a
// single vector Store).
package retriever

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deskmind/core/pkg/chat"
	"github.com/deskmind/core/pkg/model/provider"
	"github.com/deskmind/core/pkg/rag/crypto"
	"github.com/deskmind/core/pkg/rag/database"
	"github.com/deskmind/core/pkg/rag/embed"
	"github.com/deskmind/core/pkg/rag/fusion"
	"github.com/deskmind/core/pkg/rag/lexical"
	"github.com/deskmind/core/pkg/rag/rerank"
	"github.com/deskmind/core/pkg/rag/vectorstore"
	"github.com/deskmind/core/pkg/tracing"
)

// Passage is one retrieved result handed back to a caller (an Agent, or
// the exposed search() API).
type Passage struct {
	Text     string
	Metadata map[string]string
	Score    float64
}

// Config controls the retrieval pipeline, sourced from the config keys in
// (retrieval.k, reranker.enabled, reranker.top_n, retrieval.multi_query).
type Config struct {
	K               int  // default final passage count when reranking is disabled
	RerankerEnabled bool // reranker.enabled
	TopN            int  // reranker.top_n: final count after rerank
	MultiQuery      bool // retrieval.multi_query, default false
	MultiQueryN     int  // number of paraphrases to generate when MultiQuery is on
}

// Retriever wires the Embedding Provider, Vector Store, Chunk Encryptor,
// optional lexical Index, and Reranker together into a single
// embed-search-rerank pipeline.
type Retriever struct {
	embedder  *embed.Embedder
	store     *vectorstore.Store
	encryptor *crypto.Encryptor
	salt      []byte
	lexical   *lexical.Index // nil disables the keyword-search fusion leg
	reranker  rerank.Reranker
	llm       provider.Provider // only used for multi-query expansion
	fuse      fusion.Fusion
	cfg       Config
}

// New constructs a Retriever. lex, reranker and llm may all be nil: a nil
// lex disables the lexical fusion leg, a nil reranker disables stage 5
// regardless of cfg.RerankerEnabled, and a nil llm disables multi-query
// expansion regardless of cfg.MultiQuery.
func New(embedder *embed.Embedder, store *vectorstore.Store, encryptor *crypto.Encryptor, salt []byte, lex *lexical.Index, reranker rerank.Reranker, llm provider.Provider, cfg Config) *Retriever {
	if cfg.K <= 0 {
		cfg.K = 4
	}
	if cfg.TopN <= 0 {
		cfg.TopN = cfg.K
	}
	if cfg.MultiQueryN <= 0 {
		cfg.MultiQueryN = 3
	}
	rrf, _ := fusion.New(fusion.Config{Strategy: "rrf"})
	return &Retriever{
		embedder:  embedder,
		store:     store,
		encryptor: encryptor,
		salt:      salt,
		lexical:   lex,
		reranker:  reranker,
		llm:       llm,
		fuse:      rrf,
		cfg:       cfg,
	}
}

// Retrieve runs the pipeline described in steps 1-6.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, filter vectorstore.Filter) (results []Passage, err error) {
	ctx, span := tracing.Start(ctx, "retriever.Retrieve", tracing.Attrs{"query_length": len(query), "k": k})
	defer func() { tracing.End(span, err) }()

	if k <= 0 {
		k = r.cfg.K
	}

	rerankerEnabled := r.cfg.RerankerEnabled && r.reranker != nil

	retrievalK := k
	if rerankerEnabled {
		retrievalK = max(2*k, 20)
	}

	queries := []string{query}
	if r.cfg.MultiQuery && r.llm != nil {
		paraphrases, err := r.expandQuery(ctx, query)
		if err != nil {
			// Multi-query expansion is a precision booster, not a
			// requirement: fall back to the single original query rather
			// than failing the whole retrieval.
			slog.Warn("[Retriever] multi-query expansion failed, falling back to single query", "error", err)
		} else {
			queries = append(queries, paraphrases...)
		}
	}

	candidates, err := r.searchAll(ctx, queries, filter, retrievalK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	if len(candidates) == 0 {
		return []Passage{}, nil
	}

	if !rerankerEnabled {
		return toPassages(candidates[:min(k, len(candidates))]), nil
	}

	reranked, err := r.rerankCandidates(ctx, query, candidates)
	if err != nil {
		// RerankerFallback: reverting to pre-rerank order is not
		// a user-visible error, just a structured warning.
		slog.Warn("[Retriever] reranker fallback: reverting to pre-rerank order", "error", err)
		return toPassages(candidates[:min(k, len(candidates))]), nil
	}

	topN := r.cfg.TopN
	return toPassages(reranked[:min(topN, len(reranked))]), nil
}

// searchAll embeds every query, searches the store for each, decrypts and
// cosine-scores candidates against their own query vector, then fuses the
// per-query ranked lists with reciprocal rank fusion rather than a plain
// score merge — RRF rewards a chunk that several paraphrases agree on even
// when their raw cosine scores disagree, which is the whole point of
// running more than one query in the first place. A single query still
// goes through Fuse with one strategy, which is a no-op pass-through.
func (r *Retriever) searchAll(ctx context.Context, queries []string, filter vectorstore.Filter, retrievalK int) ([]database.SearchResult, error) {
	perQuery := make(map[string][]database.SearchResult, len(queries))

	for i, q := range queries {
		vec, err := r.embedder.EmbedQuery(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}

		rows, err := r.store.Search(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("search vector store: %w", err)
		}

		results := make([]database.SearchResult, 0, len(rows))
		for _, row := range rows {
			plaintext, err := r.decrypt(ctx, row)
			if err != nil {
				return nil, fmt.Errorf("decrypt chunk %s: %w", row.ID, err)
			}

			results = append(results, database.SearchResult{
				Document: database.Document{
					ID:         row.ID,
					SourcePath: row.SourcePath,
					ChunkIndex: row.ChunkIndex,
					Content:    plaintext,
					FileHash:   row.FileHash,
					CreatedAt:  row.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
					Metadata:   row.Metadata,
				},
				Similarity: database.CosineSimilarity(vec, row.Embedding),
			})
		}

		database.SortByScore(results)
		perQuery[fmt.Sprintf("q%d", i)] = results
	}

	if r.lexical != nil {
		lexResults, err := r.lexicalSearch(ctx, queries[0], filter.TopicID, retrievalK)
		if err != nil {
			slog.Warn("[Retriever] lexical search failed, continuing with vector results only", "error", err)
		} else if len(lexResults) > 0 {
			perQuery["lexical"] = lexResults
		}
	}

	merged, err := r.fuse.Fuse(perQuery)
	if err != nil {
		return nil, fmt.Errorf("fuse query results: %w", err)
	}

	if len(merged) > retrievalK {
		merged = merged[:retrievalK]
	}
	return merged, nil
}

// lexicalSearch runs a keyword match against the lexical index and resolves
// each hit's bare chunk ID back into a full decrypted database.SearchResult
// via the vector store, so it fuses against the embedding-similarity
// strategies on equal footing.
func (r *Retriever) lexicalSearch(ctx context.Context, query, topicID string, topK int) ([]database.SearchResult, error) {
	hits, err := r.lexical.Search(ctx, query, topicID, topK)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	results := make([]database.SearchResult, 0, len(hits))
	for _, hit := range hits {
		row, err := r.store.GetByID(ctx, hit.ID)
		if err != nil {
			slog.Warn("[Retriever] lexical hit missing from vector store", "chunk_id", hit.ID, "error", err)
			continue
		}

		plaintext, err := r.decrypt(ctx, row)
		if err != nil {
			return nil, fmt.Errorf("decrypt lexical chunk %s: %w", row.ID, err)
		}

		results = append(results, database.SearchResult{
			Document: database.Document{
				ID:         row.ID,
				SourcePath: row.SourcePath,
				ChunkIndex: row.ChunkIndex,
				Content:    plaintext,
				FileHash:   row.FileHash,
				CreatedAt:  row.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
				Metadata:   row.Metadata,
			},
			Similarity: hit.Score,
		})
	}

	database.SortByScore(results)
	return results, nil
}

func (r *Retriever) decrypt(ctx context.Context, row vectorstore.SearchCandidate) (string, error) {
	plaintext, err := r.encryptor.Decrypt(ctx, r.salt, row.Ciphertext, row.Nonce)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (r *Retriever) rerankCandidates(ctx context.Context, query string, candidates []database.SearchResult) ([]database.SearchResult, error) {
	return r.reranker.Rerank(ctx, query, candidates)
}

// expandQuery asks the configured LLM to rewrite query into N paraphrases
//, one per line.
func (r *Retriever) expandQuery(ctx context.Context, query string) ([]string, error) {
	messages := []chat.Message{
		{Role: chat.MessageRoleSystem, Content: "Rewrite the user's question into alternative phrasings that would help retrieve the same information from a document search index. Reply with one paraphrase per line and nothing else."},
		{Role: chat.MessageRoleUser, Content: fmt.Sprintf("Generate %d paraphrases of: %s", r.cfg.MultiQueryN, query)},
	}

	text, _, err := provider.Complete(ctx, r.llm, messages, nil)
	if err != nil {
		return nil, err
	}

	return splitLines(text, r.cfg.MultiQueryN), nil
}

func splitLines(text string, limit int) []string {
	var out []string
	start := 0
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == '\n' {
			line := trimSpace(text[start:i])
			if line != "" {
				out = append(out, line)
			}
			start = i + 1
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r'
}

func toPassages(results []database.SearchResult) []Passage {
	out := make([]Passage, len(results))
	for i, r := range results {
		out[i] = Passage{
			Text:     r.Document.Content,
			Metadata: r.Document.Metadata,
			Score:    r.Similarity,
		}
	}
	return out
}
