// Package chunk implements the recursive character-window chunker:
// splits extracted document text into overlapping windows, preferring to
// break at high-priority separators (paragraph, sentence, whitespace) before
// falling back to a raw rune boundary.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Chunk represents a piece of text produced from a source document, in
// source order.
type Chunk struct {
	Index    int
	Content  string
	Metadata map[string]string
}

// DocumentProcessor splits a file's content into chunks. The code-aware
// variant (pkg/rag/treesitter) and the plain text variant (TextDocumentProcessor)
// both implement this so the ingestion pipeline (pkg/rag/ingest) can select
// one without caring which.
type DocumentProcessor interface {
	Process(path string, content []byte) ([]Chunk, error)
}

// Separators are tried in priority order: a split point earlier in the list
// is preferred over one later in the list. This is "ordered list
// of preferred split points (paragraph break, sentence break, whitespace,
// character)".
var DefaultSeparators = []string{"\n\n", ". ", "\n", " "}

// TextDocumentProcessor is the recursive character-window chunker.
type TextDocumentProcessor struct {
	size                  int
	overlap               int
	respectWordBoundaries bool
	separators            []string
}

// NewTextDocumentProcessor creates a chunker with a fixed window size
// (characters), an overlap (characters), and whether word/separator
// boundaries should be respected when splitting. overlap is expected to
// already be resolved from overlap_ratio via OverlapChars.
func NewTextDocumentProcessor(size, overlap int, respectWordBoundaries bool) *TextDocumentProcessor {
	return &TextDocumentProcessor{
		size:                  size,
		overlap:               overlap,
		respectWordBoundaries: respectWordBoundaries,
		separators:            DefaultSeparators,
	}
}

// WithSeparators overrides the ordered separator list.
func (p *TextDocumentProcessor) WithSeparators(seps []string) *TextDocumentProcessor {
	p.separators = seps
	return p
}

// OverlapChars computes overlap = round(window_size * overlap_ratio) per
//, clamped so that 0 <= overlap < windowSize.
func OverlapChars(windowSize int, overlapRatio float64) int {
	if overlapRatio < 0 {
		overlapRatio = 0
	}
	if overlapRatio >= 1 {
		overlapRatio = 0.99
	}
	overlap := int(float64(windowSize)*overlapRatio + 0.5)
	if overlap >= windowSize {
		overlap = windowSize - 1
	}
	if overlap < 0 {
		overlap = 0
	}
	return overlap
}

// Process implements DocumentProcessor: it chunks the given content,
// ignoring path except as metadata for the caller.
func (p *TextDocumentProcessor) Process(_ string, content []byte) ([]Chunk, error) {
	return p.ChunkText(string(content)), nil
}

// ChunkText splits text into overlapping chunks, preserving source ordinal.
func (p *TextDocumentProcessor) ChunkText(text string) []Chunk {
	size := p.size
	overlap := p.overlap
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}

	var chunks []Chunk
	runes := []rune(text)
	totalLen := len(runes)

	if totalLen == 0 {
		return chunks
	}

	index := 0
	start := 0

	for start < totalLen {
		end := min(start+size, totalLen)

		// If respecting separator boundaries and we're NOT on the final
		// chunk, try to adjust the end so we split at a preferred
		// separator instead of mid-word/mid-sentence. The final chunk
		// (end == totalLen) always takes the remainder as-is so we don't
		// generate progressively smaller tail chunks.
		if p.respectWordBoundaries && end > start && end < totalLen {
			target := end
			searchEnd := p.findBoundary(runes[start:target+1], target-start) + start
			if searchEnd > start && searchEnd < end {
				end = searchEnd
			}
		}

		content := string(runes[start:end])
		chunks = append(chunks, Chunk{
			Index:   index,
			Content: strings.TrimSpace(content),
		})
		index++

		if end >= totalLen {
			break
		}

		nextStart := end - overlap

		// Always make forward progress.
		if nextStart <= start {
			nextStart = start + 1
		}

		if p.respectWordBoundaries {
			for nextStart < totalLen && !isWhitespace(runes[nextStart]) {
				nextStart++
			}
			for nextStart < totalLen && isWhitespace(runes[nextStart]) {
				nextStart++
			}
		}

		start = nextStart
	}

	return chunks
}

// findBoundary finds the nearest preferred separator to target, trying each
// separator in priority order before falling back to whitespace.
func (p *TextDocumentProcessor) findBoundary(runes []rune, target int) int {
	window := string(runes)
	for _, sep := range p.separators {
		if sep == " " {
			continue // whitespace handled by findNearestWhitespace fallback
		}
		if pos := lastIndexWithin(window, sep, target); pos >= 0 {
			return pos + len(sep)
		}
	}
	return p.findNearestWhitespace(runes, target)
}

// lastIndexWithin returns the rune-index of the last occurrence of sep in s
// at or before the rune offset target, or -1 if none is found.
func lastIndexWithin(s, sep string, target int) int {
	runes := []rune(s)
	if target > len(runes) {
		target = len(runes)
	}
	prefix := string(runes[:target])
	idx := strings.LastIndex(prefix, sep)
	if idx < 0 {
		return -1
	}
	return len([]rune(prefix[:idx]))
}

// findNearestWhitespace finds the nearest whitespace boundary to the target
// position, searching backward first (to prefer slightly smaller chunks),
// then forward.
func (p *TextDocumentProcessor) findNearestWhitespace(runes []rune, target int) int {
	maxSearchDistance := len(runes) / 5
	if maxSearchDistance < 50 {
		maxSearchDistance = 50
	}
	if maxSearchDistance > 500 {
		maxSearchDistance = 500
	}

	for i := 0; i < maxSearchDistance && target-i > 0; i++ {
		pos := target - i
		if isWhitespace(runes[pos]) {
			for pos > 0 && isWhitespace(runes[pos-1]) {
				pos--
			}
			return pos
		}
	}

	for i := 1; i < maxSearchDistance && target+i < len(runes); i++ {
		pos := target + i
		if isWhitespace(runes[pos]) {
			return pos
		}
	}

	return target
}

func isWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// ProcessFile reads a file from disk and runs it through a DocumentProcessor.
func ProcessFile(dp DocumentProcessor, path string) ([]Chunk, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return dp.Process(path, content)
}

// FileHash computes the SHA-256 hash of a file's contents, used for
// incremental re-ingestion change detection (Document.FileHash).
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// CollectFiles recursively collects all files from the given paths/glob
// patterns, skipping paths that don't exist. shouldIgnore, if non-nil,
// filters out matched files (e.g. gitignore-style exclusion).
func CollectFiles(paths []string, shouldIgnore func(path string) bool) ([]string, error) {
	var files []string
	seen := make(map[string]bool)

	add := func(path string) {
		if shouldIgnore != nil && shouldIgnore(path) {
			return
		}
		if !seen[path] {
			files = append(files, path)
			seen[path] = true
		}
	}

	for _, pattern := range paths {
		expanded, err := expandPattern(pattern)
		if err != nil {
			return nil, err
		}
		if len(expanded) == 0 {
			expanded = []string{pattern}
		}

		for _, entry := range expanded {
			normalized := normalizePath(entry)

			info, err := os.Stat(normalized)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, fmt.Errorf("failed to stat %s: %w", entry, err)
			}

			if info.IsDir() {
				walkErr := filepath.Walk(normalized, func(p string, info os.FileInfo, err error) error {
					if err != nil {
						return err
					}
					if info.IsDir() {
						return nil
					}
					add(normalizePath(p))
					return nil
				})
				if walkErr != nil {
					return nil, fmt.Errorf("failed to walk directory %s: %w", normalized, walkErr)
				}
				continue
			}

			add(normalized)
		}
	}

	return files, nil
}

// Matches reports whether path matches any of the given document
// paths/glob patterns. Used by the ingestion pipeline's file watcher to
// decide whether a changed file is in scope.
func Matches(path string, patterns []string) (bool, error) {
	if len(patterns) == 0 {
		return false, nil
	}

	cleanPath := normalizePath(path)

	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}

		normalizedPattern := normalizePath(pattern)

		if hasGlob(pattern) {
			match, err := doublestar.PathMatch(normalizedPattern, cleanPath)
			if err != nil {
				return false, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
			}
			if match {
				return true, nil
			}
			continue
		}

		info, err := os.Stat(normalizedPattern)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return false, fmt.Errorf("failed to stat %s: %w", normalizedPattern, err)
		}

		if info.IsDir() {
			if cleanPath == normalizedPattern || strings.HasPrefix(cleanPath, normalizedPattern+string(os.PathSeparator)) {
				return true, nil
			}
			continue
		}

		if cleanPath == normalizedPattern {
			return true, nil
		}
	}

	return false, nil
}

func expandPattern(pattern string) ([]string, error) {
	if !hasGlob(pattern) {
		return []string{normalizePath(pattern)}, nil
	}

	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}

	results := make([]string, 0, len(matches))
	for _, match := range matches {
		results = append(results, normalizePath(match))
	}

	return results, nil
}

func hasGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

func normalizePath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return filepath.Clean(abs)
	}
	return filepath.Clean(p)
}
