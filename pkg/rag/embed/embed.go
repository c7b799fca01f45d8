// Package embed implements the Embedding Provider: batches text
// into fixed-dimension vectors through a provider.Provider, backed by an
// LRU cache keyed on (model ID, sha256(text)) so repeated ingestion/retrieval
// of the same text never re-calls the model.
package embed

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/deskmind/core/pkg/model/provider"
)

// DefaultBatchSize is the default number of texts embedded per batch.
const DefaultBatchSize = 32

// CacheEntry is the data-model EmbeddingCacheEntry: a cached
// vector keyed on model ID and text hash, evicted LRU.
type CacheEntry struct {
	ModelID      string
	Vector       []float64
	LastAccessed int64 // not maintained; recency comes from the cache's list order
}

// Embedder generates vector embeddings for text via a provider.Provider,
// batching requests and caching reads.
type Embedder struct {
	provider       provider.Provider
	batchSize      int
	maxConcurrency int
	cache          *cache
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithBatchSize sets the batch size for embed_documents calls (default 32).
func WithBatchSize(size int) Option {
	return func(e *Embedder) {
		if size > 0 {
			e.batchSize = size
		}
	}
}

// WithMaxConcurrency bounds how many batches are in flight at once.
func WithMaxConcurrency(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.maxConcurrency = n
		}
	}
}

// WithCacheCapacity sets the LRU cache's entry capacity
// (config key embedding.cache_capacity).
func WithCacheCapacity(capacity int) Option {
	return func(e *Embedder) {
		e.cache = newCache(capacity)
	}
}

// New creates an Embedder backed by p, the current configured provider.
func New(p provider.Provider, opts ...Option) *Embedder {
	e := &Embedder{
		provider:       p,
		batchSize:      DefaultBatchSize,
		maxConcurrency: 5,
		cache:          newCache(1000),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ModelID identifies the embedder's underlying model; changing configuration
// to a different model means the caller constructs a new Embedder and
// routes the vector store to a disjoint table for that model.
func (e *Embedder) ModelID() string {
	return e.provider.ID()
}

// EmbedQuery embeds a single query string. It is the
// query-time twin of EmbedDocuments and goes through the same cache.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	vecs, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments embeds a batch of texts, preserving input order. Empty input returns an empty slice without error.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	modelID := e.provider.ID()
	vectors := make([][]float64, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if v, ok := e.cache.get(modelID, text); ok {
			vectors[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	embedded, err := e.embedBatches(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range missIdx {
		vectors[idx] = embedded[j]
		e.cache.put(modelID, missTexts[j], embedded[j])
	}

	return vectors, nil
}

// embedBatches splits misses into batchSize groups and embeds them with up
// to maxConcurrency batches in flight, grounded on the prior art's
// embedBatchOptimized concurrency idiom (errgroup + SetLimit).
func (e *Embedder) embedBatches(ctx context.Context, texts []string) ([][]float64, error) {
	batchProvider, ok := e.provider.(provider.BatchEmbeddingProvider)
	if !ok {
		return e.embedSequential(ctx, texts)
	}

	total := len(texts)
	results := make([][]float64, total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrency)

	for start := 0; start < total; start += e.batchSize {
		end := min(start+e.batchSize, total)
		g.Go(func() error {
			batch := texts[start:end]
			vecs, err := batchProvider.CreateEmbeddings(gctx, batch)
			if err != nil {
				return fmt.Errorf("batch embed [%d:%d]: %w", start, end, err)
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("batch embed [%d:%d]: got %d vectors for %d texts", start, end, len(vecs), len(batch))
			}
			copy(results[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Debug("embedded batch", "provider", e.provider.ID(), "texts", total, "batch_size", e.batchSize)
	return results, nil
}

func (e *Embedder) embedSequential(ctx context.Context, texts []string) ([][]float64, error) {
	embeddingProvider, ok := e.provider.(provider.EmbeddingProvider)
	if !ok {
		return nil, fmt.Errorf("provider %s does not support embeddings", e.provider.ID())
	}

	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		v, err := embeddingProvider.CreateEmbedding(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

// cache is a capacity-bounded LRU keyed by sha256(model_id || 0x00 || text).
// No LRU library exists anywhere in the retrieval pack (see DESIGN.md); this
// is the stdlib container/list two-structure idiom.
type cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type cacheItem struct {
	key    string
	entry  CacheEntry
}

func newCache(capacity int) *cache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

func cacheKey(modelID, text string) string {
	h := sha256.New()
	h.Write([]byte(modelID))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// get returns the cached vector only if its stored model ID matches modelID:
// the cache must never return a vector whose model identifier differs from
// the current one.
func (c *cache) get(modelID, text string) ([]float64, bool) {
	key := cacheKey(modelID, text)

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	item := el.Value.(*cacheItem)
	if item.entry.ModelID != modelID {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return item.entry.Vector, true
}

func (c *cache) put(modelID, text string, vector []float64) {
	key := cacheKey(modelID, text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		item := el.Value.(*cacheItem)
		item.entry.Vector = vector
		item.entry.ModelID = modelID
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheItem{key: key, entry: CacheEntry{ModelID: modelID, Vector: vector}})
	c.items[key] = el

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheItem).key)
	}
}
