// Package chunker splits scraped or curated text into overlapping,
// fixed-size windows for embedding and vector storage.
package chunker

import "strings"

// Chunk is one produced window of text.
type Chunk struct {
	Index int
	Text  string
}

// Options configures a Split call. ChunkSize and Overlap are both measured
// in characters, not tokens, for a deterministic, char-oriented chunker
// rather than a tokenizer-dependent one.
type Options struct {
	ChunkSize int
	Overlap   int
}

const (
	defaultChunkSize = 2000
	minChunkSize     = 64
)

// Split breaks text into contiguous, whitespace-snapped chunks of roughly
// opt.ChunkSize characters, each overlapping the previous by opt.Overlap
// characters. Split is pure and deterministic: the same (text, opt) always
// produces the same chunk sequence, which the vector store's upsert-by-hash
// path relies on to treat re-ingestion of identical content as a no-op.
func Split(text string, opt Options) []Chunk {
	size := opt.ChunkSize
	if size <= 0 {
		size = defaultChunkSize
	}
	if size < minChunkSize {
		size = minChunkSize
	}
	overlap := opt.Overlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}

	var out []Chunk
	start := 0
	idx := 0
	for start < len(text) {
		end := start + size
		if end > len(text) {
			end = len(text)
		} else if i := strings.LastIndex(text[start:end], " "); i > size/2 {
			end = start + i
		}

		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			out = append(out, Chunk{Index: idx, Text: chunk})
			idx++
		}
		if end == len(text) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}
