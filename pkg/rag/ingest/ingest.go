// Package ingest implements the Ingestion Pipeline:
// sequential per-file processing through Document Loader -> Chunker ->
// Embedding Provider -> (Chunk Encryptor, Vector Store), grounded on
// pkg/rag/manager.go's Initialize indexing loop and
// pkg/rag/strategy/chunked_embeddings.go's per-file transaction.
//
// Progress reporting uses a single stream of typed ProgressEvent variants
// (Progress, Complete, Error, Cancelled) over a channel rather than separate
// callback parameters, mirroring pkg/rag/types.Event's role in the
// indexing strategies.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/deskmind/core/pkg/rag/chunk"
	"github.com/deskmind/core/pkg/rag/crypto"
	"github.com/deskmind/core/pkg/rag/embed"
	"github.com/deskmind/core/pkg/rag/lexical"
	"github.com/deskmind/core/pkg/rag/loader"
	"github.com/deskmind/core/pkg/rag/treesitter"
	"github.com/deskmind/core/pkg/rag/vectorstore"
	"github.com/deskmind/core/pkg/tracing"
)

// EventKind distinguishes the variants of a ProgressEvent.
type EventKind string

const (
	EventProgress  EventKind = "progress"
	EventComplete  EventKind = "complete"
	EventError     EventKind = "error"
	EventCancelled EventKind = "cancelled"
)

// ProgressEvent is emitted once per file during ProcessFiles, replacing
// separate on_progress/on_complete/on_error/check_cancel callbacks with a
// single typed stream.
type ProgressEvent struct {
	Kind       EventKind
	File       string
	Done       int
	Total      int
	DocumentID string
	ChunkCount int
	Err        error
}

// Kind classifies an ingestion failure.
type Kind string

const (
	KindLoader    Kind = "loader"
	KindEncoding  Kind = "encoding"
	KindEmbedding Kind = "embedding"
	KindStorage   Kind = "storage"
)

// Error is an IngestionError: a single file's processing failure,
// reported via on_error(file, kind) — here, an Error-kind ProgressEvent.
type Error struct {
	File string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ingest %s: %s: %v", e.File, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config controls chunking and embedding for a Pipeline run, sourced from
// the chunking.* and embedding.* configuration keys.
type Config struct {
	WindowSize            int
	OverlapRatio          float64
	RespectWordBoundaries bool
	Separators            []string
	CodeAware             bool // use the tree-sitter chunker for recognized source extensions
}

// Pipeline wires the Document Loader, Chunker, Embedding Provider, Chunk
// Encryptor, and Vector Store together into sequential per-file
// processing.
type Pipeline struct {
	embedder  *embed.Embedder
	store     *vectorstore.Store
	catalog   *vectorstore.Catalog
	encryptor *crypto.Encryptor
	salt      []byte
	textProc  chunk.DocumentProcessor
	codeProc  chunk.DocumentProcessor
	lexical   *lexical.Index // nil disables the keyword-search path entirely
}

// New constructs a Pipeline against one embedding model's Store. Changing
// the configured embedding model means constructing a new Pipeline bound
// to the new model's Store. lex may be nil, in which case ingested chunks
// are only ever retrievable by vector similarity.
func New(embedder *embed.Embedder, store *vectorstore.Store, catalog *vectorstore.Catalog, encryptor *crypto.Encryptor, salt []byte, lex *lexical.Index, cfg Config) *Pipeline {
	overlap := chunk.OverlapChars(cfg.WindowSize, cfg.OverlapRatio)
	textProc := chunk.NewTextDocumentProcessor(cfg.WindowSize, overlap, cfg.RespectWordBoundaries)
	if len(cfg.Separators) > 0 {
		textProc.WithSeparators(cfg.Separators)
	}

	p := &Pipeline{
		embedder:  embedder,
		store:     store,
		catalog:   catalog,
		encryptor: encryptor,
		salt:      salt,
		textProc:  textProc,
		lexical:   lex,
	}
	if cfg.CodeAware {
		p.codeProc = treesitter.NewDocumentProcessor(cfg.WindowSize, overlap, cfg.RespectWordBoundaries)
	}
	return p
}

// ProcessFiles runs the per-file ingestion transaction over files,
// sequentially (the only permitted parallelism is batched embedding inside
// one file), emitting a ProgressEvent per step on events. Cancelling ctx
// rolls back the files already committed in this call, by document
// source-path identifier, before returning.
func (p *Pipeline) ProcessFiles(ctx context.Context, files []string, topicID string, events chan<- ProgressEvent) (err error) {
	ctx, span := tracing.Start(ctx, "ingest.ProcessFiles", tracing.Attrs{"file_count": len(files), "topic_id": topicID})
	defer func() { tracing.End(span, err) }()
	defer close(events)

	var committed []vectorstore.Document

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			p.rollback(context.WithoutCancel(ctx), committed)
			events <- ProgressEvent{Kind: EventCancelled, File: file, Done: i, Total: len(files)}
			return err
		}

		events <- ProgressEvent{Kind: EventProgress, File: file, Done: i, Total: len(files)}

		doc, chunkCount, err := p.processOne(ctx, file, topicID)
		if err != nil {
			events <- ProgressEvent{Kind: EventError, File: file, Done: i, Total: len(files), Err: err}
			continue
		}

		committed = append(committed, doc)
		events <- ProgressEvent{Kind: EventComplete, File: file, Done: i + 1, Total: len(files), DocumentID: doc.ID, ChunkCount: chunkCount}
	}

	return nil
}

// processOne runs steps 1-6 of for a single file.
func (p *Pipeline) processOne(ctx context.Context, path string, topicID string) (vectorstore.Document, int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return vectorstore.Document{}, 0, &Error{File: path, Kind: KindLoader, Err: err}
	}

	format := loader.ResolveFormat(path, content)
	text, err := loader.Load(path, content, format)
	if err != nil {
		return vectorstore.Document{}, 0, &Error{File: path, Kind: KindEncoding, Err: err}
	}

	chunks := p.chunker(path).Process
	chunkList, err := chunks(path, []byte(text))
	if err != nil {
		return vectorstore.Document{}, 0, &Error{File: path, Kind: KindLoader, Err: err}
	}
	if len(chunkList) == 0 {
		return vectorstore.Document{}, 0, &Error{File: path, Kind: KindLoader, Err: errors.New("no extractable text")}
	}

	texts := make([]string, len(chunkList))
	for i, c := range chunkList {
		texts[i] = c.Content
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return vectorstore.Document{}, 0, &Error{File: path, Kind: KindEmbedding, Err: err}
	}

	fileHash, err := chunk.FileHash(path)
	if err != nil {
		return vectorstore.Document{}, 0, &Error{File: path, Kind: KindLoader, Err: err}
	}

	storeChunks := make([]vectorstore.Chunk, len(chunkList))
	for i, c := range chunkList {
		ciphertext, nonce, err := p.encryptor.Encrypt(ctx, p.salt, []byte(c.Content))
		if err != nil {
			return vectorstore.Document{}, 0, &Error{File: path, Kind: KindStorage, Err: err}
		}
		storeChunks[i] = vectorstore.Chunk{
			ID:         uuid.NewString(),
			TopicID:    topicID,
			SourcePath: path,
			FileHash:   fileHash,
			ChunkIndex: i,
			Ciphertext: ciphertext,
			Nonce:      nonce,
			Embedding:  vectors[i],
			Metadata:   map[string]string{"format": string(format), "filename": path},
		}
	}

	if _, err := p.store.AddBatch(ctx, storeChunks); err != nil {
		return vectorstore.Document{}, 0, &Error{File: path, Kind: KindStorage, Err: err}
	}

	if p.lexical != nil {
		for i, c := range storeChunks {
			doc := lexical.Doc{ID: c.ID, TopicID: topicID, SourcePath: path, Content: chunkList[i].Content}
			if err := p.lexical.Put(ctx, doc); err != nil {
				// The vector store already committed: a missing keyword
				// entry only degrades the lexical fusion leg, so log and
				// keep going rather than failing the whole file.
				slog.Error("[Ingest] lexical index failed", "file", path, "chunk_id", c.ID, "error", err)
			}
		}
	}

	info, _ := os.Stat(path)
	var size int64
	if info != nil {
		size = info.Size()
	}

	doc, err := p.catalog.InsertDocument(ctx, vectorstore.Document{
		TopicID:    topicID,
		SourcePath: path,
		Format:     string(format),
		ByteSize:   size,
		FileHash:   fileHash,
	})
	if err != nil {
		// Roll back the chunks we just committed: the document row and its
		// chunks must appear atomically, and the chunk AddBatch transaction
		// already committed before this step.
		if rbErr := p.store.DeleteByPath(context.WithoutCancel(ctx), path); rbErr != nil {
			slog.Error("[Ingest] rollback after document insert failure also failed", "file", path, "error", rbErr)
		}
		return vectorstore.Document{}, 0, &Error{File: path, Kind: KindStorage, Err: err}
	}

	if err := p.catalog.IncrementDocumentCount(ctx, topicID, 1); err != nil {
		slog.Error("[Ingest] failed to increment topic document count", "topic_id", topicID, "error", err)
	}

	slog.Debug("[Ingest] file committed", "file", path, "document_id", doc.ID, "chunks", len(storeChunks))
	return doc, len(storeChunks), nil
}

func (p *Pipeline) chunker(path string) chunk.DocumentProcessor {
	if p.codeProc != nil && treesitter.SupportsExt(path) {
		return p.codeProc
	}
	return p.textProc
}

// rollback deletes every chunk and document row committed earlier in this
// ProcessFiles call, by source path, when ctx is cancelled mid-batch.
func (p *Pipeline) rollback(ctx context.Context, committed []vectorstore.Document) {
	for _, doc := range committed {
		if err := p.store.DeleteByPath(ctx, doc.SourcePath); err != nil {
			slog.Error("[Ingest] cancellation rollback failed to delete chunks", "document_id", doc.ID, "error", err)
		}
		if p.lexical != nil {
			if err := p.lexical.DeleteByPath(ctx, doc.SourcePath); err != nil {
				slog.Error("[Ingest] cancellation rollback failed to delete lexical entries", "document_id", doc.ID, "error", err)
			}
		}
		if err := p.catalog.DeleteDocument(ctx, doc.ID); err != nil {
			slog.Error("[Ingest] cancellation rollback failed to delete document", "document_id", doc.ID, "error", err)
		}
		if err := p.catalog.IncrementDocumentCount(ctx, doc.TopicID, -1); err != nil {
			slog.Error("[Ingest] cancellation rollback failed to decrement topic count", "topic_id", doc.TopicID, "error", err)
		}
	}
}
