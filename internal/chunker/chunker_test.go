package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit_Idempotent(t *testing.T) {
	text := strings.Repeat("lithium carbonate prices rose sharply this week ", 200)
	opt := Options{ChunkSize: 500, Overlap: 50}

	first := Split(text, opt)
	second := Split(text, opt)
	assert.Equal(t, first, second)
}

func TestSplit_RespectsApproximateSize(t *testing.T) {
	text := strings.Repeat("a", 5000)
	chunks := Split(text, Options{ChunkSize: 1000, Overlap: 0})
	assert.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 1000)
	}
}

func TestSplit_OverlapProducesSharedContent(t *testing.T) {
	text := strings.Repeat("word ", 1000)
	chunks := Split(text, Options{ChunkSize: 200, Overlap: 50})
	if len(chunks) < 2 {
		t.Fatal("expected multiple chunks")
	}
	total := 0
	for _, c := range chunks {
		total += len(c.Text)
	}
	assert.Greater(t, total, len(strings.TrimSpace(text)))
}

func TestSplit_SmallInputSingleChunk(t *testing.T) {
	chunks := Split("short text", Options{ChunkSize: 2000, Overlap: 100})
	assert.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0].Text)
}

func TestSplit_EmptyInput(t *testing.T) {
	chunks := Split("", Options{})
	assert.Empty(t, chunks)
}

func TestSplit_OverlapClampedBelowSize(t *testing.T) {
	// Overlap >= size must not create an infinite loop.
	text := strings.Repeat("b", 300)
	chunks := Split(text, Options{ChunkSize: 100, Overlap: 500})
	assert.NotEmpty(t, chunks)
}
