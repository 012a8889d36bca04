// Package chunker splits raw document text into overlapping,
// citation-addressable segments with stable identifiers and line ranges.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/citeguard/internal/vectorstore"
)

// Sentinel errors for chunker configuration.
var (
	// ErrInvalidConfig indicates invalid chunking parameters.
	ErrInvalidConfig = errors.New("invalid chunker configuration")
)

// docIDHashLen is the hex length of the content hash embedded in document ids.
const docIDHashLen = 8

// Chunk is an addressable, line-ranged slice of a source document.
// Chunks are immutable: re-ingesting changed content produces a new
// DocumentID rather than mutating existing chunks.
type Chunk struct {
	// DocumentID is derived from the source filename and a hash of the
	// whitespace-normalized content. Identical content and filename always
	// produce the same id, which enables dedup across ingestion passes.
	DocumentID string `json:"document_id"`

	// ChunkID is "{document_id}:{index}" with a zero-based index in
	// emission order. Globally unique.
	ChunkID string `json:"chunk_id"`

	// Text is the segment content, sliced verbatim from the source.
	Text string `json:"text"`

	// LineStart and LineEnd are 1-based inclusive line numbers in the
	// source document. A boundary falling mid-line counts the line for
	// both neighboring chunks.
	LineStart int `json:"line_start"`
	LineEnd   int `json:"line_end"`

	// CharStart and CharEnd are absolute byte offsets into the source,
	// half-open, so that source[CharStart:CharEnd] == Text.
	CharStart int `json:"char_start"`
	CharEnd   int `json:"char_end"`

	// Metadata is an open key/value map preserved verbatim into the
	// vector store record.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToDocument converts the chunk to a plain vector store record. Citation
// fields travel in metadata so any store can persist them.
func (c Chunk) ToDocument() vectorstore.Document {
	meta := make(map[string]any, len(c.Metadata)+5)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	meta["document_id"] = c.DocumentID
	meta["line_start"] = c.LineStart
	meta["line_end"] = c.LineEnd
	meta["char_start"] = c.CharStart
	meta["char_end"] = c.CharEnd

	return vectorstore.Document{
		ID:       c.ChunkID,
		Content:  c.Text,
		Metadata: meta,
	}
}

// Config holds chunking parameters.
type Config struct {
	// Size is the chunk window in words.
	Size int

	// Overlap is the number of words shared between consecutive chunks.
	// Must be strictly less than Size or the scan makes no progress.
	Overlap int
}

// Chunker splits text into overlapping word windows while tracking line
// numbers and character offsets for citations. Chunking is a pure function
// of its inputs: no randomness, no clock.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker, rejecting configurations that cannot make
// progress. Validation happens here, not at chunk time.
func New(cfg Config) (*Chunker, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, cfg.Size)
	}
	if cfg.Overlap < 0 {
		return nil, fmt.Errorf("%w: overlap cannot be negative, got %d", ErrInvalidConfig, cfg.Overlap)
	}
	if cfg.Overlap >= cfg.Size {
		return nil, fmt.Errorf("%w: overlap %d must be less than chunk size %d", ErrInvalidConfig, cfg.Overlap, cfg.Size)
	}
	return &Chunker{size: cfg.Size, overlap: cfg.Overlap}, nil
}

// word is a whitespace-delimited token with its source position.
type word struct {
	start int // byte offset of first byte
	end   int // byte offset past last byte
	line  int // 1-based line number of the word's first byte
}

// scanWords walks the text once, recording word boundaries and the line
// each word starts on.
func scanWords(text string) []word {
	var words []word
	line := 1
	inWord := false
	var current word
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord {
				current.end = i
				words = append(words, current)
				inWord = false
			}
			if r == '\n' {
				line++
			}
			continue
		}
		if !inWord {
			current = word{start: i, line: line}
			inWord = true
		}
	}
	if inWord {
		current.end = len(text)
		words = append(words, current)
	}
	return words
}

// Chunk splits text into overlapping segments with citation metadata.
// Empty or whitespace-only input yields zero chunks, not an error.
func (c *Chunker) Chunk(text, filename string, metadata map[string]any) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	docID := DocumentID(text, filename)
	words := scanWords(text)

	base := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		base[k] = v
	}
	base["filename"] = filename
	base["doc_length"] = len(text)

	var chunks []Chunk
	step := c.size - c.overlap
	for pos, index := 0, 0; pos < len(words); pos, index = pos+step, index+1 {
		end := pos + c.size
		if end > len(words) {
			end = len(words)
		}
		first, last := words[pos], words[end-1]

		meta := make(map[string]any, len(base)+2)
		for k, v := range base {
			meta[k] = v
		}
		meta["chunk_index"] = index
		meta["word_count"] = end - pos

		chunks = append(chunks, Chunk{
			DocumentID: docID,
			ChunkID:    fmt.Sprintf("%s:%d", docID, index),
			Text:       text[first.start:last.end],
			LineStart:  first.line,
			LineEnd:    last.line,
			CharStart:  first.start,
			CharEnd:    last.end,
			Metadata:   meta,
		})

		if end == len(words) {
			break
		}
	}
	return chunks
}

// ChunkLines is an alternative strategy that splits on line boundaries
// instead of word windows. Useful for structured text (code, tables)
// where word windows would break alignment.
func (c *Chunker) ChunkLines(text, filename string, linesPerChunk, overlapLines int, metadata map[string]any) ([]Chunk, error) {
	if linesPerChunk <= 0 {
		return nil, fmt.Errorf("%w: lines per chunk must be positive, got %d", ErrInvalidConfig, linesPerChunk)
	}
	if overlapLines < 0 || overlapLines >= linesPerChunk {
		return nil, fmt.Errorf("%w: line overlap %d must be in [0,%d)", ErrInvalidConfig, overlapLines, linesPerChunk)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	docID := DocumentID(text, filename)
	lines := strings.Split(text, "\n")

	// Precompute the byte offset of each line start.
	offsets := make([]int, len(lines)+1)
	for i, line := range lines {
		offsets[i+1] = offsets[i] + len(line) + 1 // +1 for the newline
	}

	base := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		base[k] = v
	}
	base["filename"] = filename

	var chunks []Chunk
	step := linesPerChunk - overlapLines
	for pos, index := 0, 0; pos < len(lines); pos, index = pos+step, index+1 {
		end := pos + linesPerChunk
		if end > len(lines) {
			end = len(lines)
		}

		charStart := offsets[pos]
		charEnd := charStart + len(strings.Join(lines[pos:end], "\n"))

		meta := make(map[string]any, len(base)+2)
		for k, v := range base {
			meta[k] = v
		}
		meta["chunk_index"] = index
		meta["line_count"] = end - pos

		chunks = append(chunks, Chunk{
			DocumentID: docID,
			ChunkID:    fmt.Sprintf("%s:%d", docID, index),
			Text:       text[charStart:charEnd],
			LineStart:  pos + 1,
			LineEnd:    end,
			CharStart:  charStart,
			CharEnd:    charEnd,
			Metadata:   meta,
		})

		if end == len(lines) {
			break
		}
	}
	return chunks, nil
}

// DocumentID derives a stable identifier from the source filename and a
// hash of the whitespace-collapsed content. Pure function: identical
// inputs always yield identical ids.
func DocumentID(text, filename string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(filename + "\x00" + normalized))
	return sanitizeFilename(filename) + "_" + hex.EncodeToString(sum[:])[:docIDHashLen]
}

// sanitizeFilename makes a filename safe for use inside identifiers.
func sanitizeFilename(filename string) string {
	var b strings.Builder
	b.Grow(len(filename))
	for _, r := range filename {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "doc"
	}
	return b.String()
}
