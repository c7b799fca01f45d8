// Package lexical implements a keyword-search companion to the vector
// store: an in-memory Bleve index over chunk plaintext, searched alongside
// embedding similarity and merged by the same reciprocal rank fusion the
// retriever already applies across paraphrased queries, grounded on
// pkg/model/provider/rulebased/client.go's Bleve-backed matching.
//
// The index holds plaintext, never ciphertext: chunk content is indexed
// here before encryption in the ingestion pipeline, and a hit carries only
// a chunk ID, which the retriever resolves back to a decryptable row via
// vectorstore.Store.GetByID.
package lexical

import (
	"context"
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Doc is one chunk's plaintext, indexed under its vector-store chunk ID.
type Doc struct {
	ID         string
	TopicID    string
	SourcePath string
	Content    string
}

// Hit is a single keyword match: a chunk ID and its Bleve relevance score.
type Hit struct {
	ID    string
	Score float64
}

// Index is an in-memory Bleve index over ingested chunk plaintext.
type Index struct {
	mu    sync.RWMutex
	index bleve.Index
}

// New builds an empty in-memory lexical index.
func New() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("lexical: create index: %w", err)
	}
	return &Index{index: idx}, nil
}

func buildMapping() *mapping.IndexMappingImpl {
	indexMapping := mapping.NewIndexMapping()

	docMapping := mapping.NewDocumentMapping()

	contentField := mapping.NewTextFieldMapping()
	contentField.Analyzer = "en"
	docMapping.AddFieldMappingsAt("content", contentField)

	keywordField := mapping.NewTextFieldMapping()
	keywordField.Analyzer = "keyword"
	docMapping.AddFieldMappingsAt("topic_id", keywordField)
	docMapping.AddFieldMappingsAt("source_path", keywordField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Put indexes (or reindexes) one chunk's plaintext under its ID.
func (idx *Index) Put(ctx context.Context, d Doc) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.index.Index(d.ID, map[string]any{
		"content":     d.Content,
		"topic_id":    d.TopicID,
		"source_path": d.SourcePath,
	}); err != nil {
		return fmt.Errorf("lexical: index %s: %w", d.ID, err)
	}
	return nil
}

// DeleteByPath removes every indexed chunk for a source path, mirroring
// vectorstore.Store.DeleteByPath. Re-ingesting a file does not call it.
func (idx *Index) DeleteByPath(ctx context.Context, sourcePath string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	query := bleve.NewMatchQuery(sourcePath)
	query.SetField("source_path")
	req := bleve.NewSearchRequest(query)
	req.Size = 10000

	results, err := idx.index.SearchInContext(ctx, req)
	if err != nil {
		return fmt.Errorf("lexical: find chunks for %s: %w", sourcePath, err)
	}

	for _, hit := range results.Hits {
		if err := idx.index.Delete(hit.ID); err != nil {
			return fmt.Errorf("lexical: delete %s: %w", hit.ID, err)
		}
	}
	return nil
}

// Search runs a BM25-ranked full-text match against indexed content,
// restricted to topicID when non-empty, returning up to topK hits ordered
// by descending score.
func (idx *Index) Search(ctx context.Context, query, topicID string, topK int) ([]Hit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	contentQuery := bleve.NewMatchQuery(query)
	contentQuery.SetField("content")

	var q bleve.Query = contentQuery
	if topicID != "" {
		topicQuery := bleve.NewMatchQuery(topicID)
		topicQuery.SetField("topic_id")
		q = bleve.NewConjunctionQuery(contentQuery, topicQuery)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = topK

	results, err := idx.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical: search: %w", err)
	}

	hits := make([]Hit, 0, len(results.Hits))
	for _, hit := range results.Hits {
		hits = append(hits, Hit{ID: hit.ID, Score: hit.Score})
	}
	return hits, nil
}

// Close releases the underlying Bleve index.
func (idx *Index) Close() error {
	return idx.index.Close()
}
