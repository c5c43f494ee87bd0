package ingestion_engine

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunker(size, overlap, min int) *TextChunker {
	c := NewTextChunker(ChunkerConfig{ChunkSize: size, ChunkOverlap: overlap, MinChunkSize: min}, nil)
	c.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

// numberedSentences builds n distinct sentences so each one can be found again.
func numberedSentences(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Sentence number %03d talks about topic %d in some detail", i, i%7)
	}
	return out
}

func TestNewTextChunker_Defaults(t *testing.T) {
	c := NewTextChunker(ChunkerConfig{}, nil)
	assert.Equal(t, ChunkerConfig{ChunkSize: 1000, ChunkOverlap: 0, MinChunkSize: 100}, c.Config())

	c = NewTextChunker(ChunkerConfig{ChunkSize: -1, ChunkOverlap: -1, MinChunkSize: -5}, nil)
	assert.Equal(t, ChunkerConfig{ChunkSize: 1000, ChunkOverlap: 0, MinChunkSize: 100}, c.Config())
}

func TestNegativeOverlap_SameFromConfigAndOptions(t *testing.T) {
	fromConfig := NewTextChunker(ChunkerConfig{ChunkSize: 300, ChunkOverlap: -1, MinChunkSize: 50}, nil)

	coord := NewIngestionCoordinator(nil, nil, CoordinatorConfig{Chunker: DefaultChunkerConfig()}, nil)
	fromOptions := NewTextChunker(coord.chunkerConfig(IngestOptions{Overlap: -1}), nil)

	assert.Zero(t, fromConfig.Config().ChunkOverlap)
	assert.Equal(t, fromConfig.Config().ChunkOverlap, fromOptions.Config().ChunkOverlap)
}

func TestChunk_EmptyInput(t *testing.T) {
	c := newTestChunker(100, 20, 10)

	assert.Empty(t, c.Chunk("", nil))
	assert.Empty(t, c.Chunk("   \n\t  ", nil))
	assert.NotNil(t, c.Chunk("", nil))
}

func TestChunk_SpecExample(t *testing.T) {
	text := "Sentence one is short. Sentence two is also fairly short. " +
		"Sentence three pushes past the limit because it is deliberately long enough to force a split here."
	c := newTestChunker(60, 15, 10)

	chunks := c.Chunk(text, nil)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "Sentence one is short Sentence two is also fairly short", chunks[0].Text)
	assert.True(t, strings.HasPrefix(chunks[1].Text, "short"), "chunk 2 starts with tail of chunk 1: %q", chunks[1].Text)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "short"))
	assert.Contains(t, chunks[1].Text, "Sentence three pushes past the limit")
}

func TestChunk_SingleShortSentenceBelowMinimumIsDropped(t *testing.T) {
	c := newTestChunker(1000, 200, 100)

	chunks := c.Chunk("Too short to keep.", nil)

	assert.Empty(t, chunks)
}

func TestChunk_OversizedSentenceEmittedWhole(t *testing.T) {
	long := strings.Repeat("word ", 100) + "end"
	c := newTestChunker(50, 10, 10)

	chunks := c.Chunk(long+".", nil)

	require.Len(t, chunks, 1)
	assert.Equal(t, strings.TrimSpace(long), chunks[0].Text)
	assert.Greater(t, utf8.RuneCountInString(chunks[0].Text), 50)
}

func TestChunk_SentenceCoverage(t *testing.T) {
	sentences := numberedSentences(40)
	text := strings.Join(sentences, ". ") + "."
	c := newTestChunker(200, 40, 20)

	chunks := c.Chunk(text, nil)
	require.NotEmpty(t, chunks)

	// Every sentence lands whole in at least one chunk, in order.
	last := -1
	for i, s := range sentences {
		found := -1
		for j, ch := range chunks {
			if strings.Contains(ch.Text, s) {
				found = j
				break
			}
		}
		require.NotEqual(t, -1, found, "sentence %d missing", i)
		assert.GreaterOrEqual(t, found, last, "sentence %d out of order", i)
		last = found
	}
}

func TestChunk_MinimumSize(t *testing.T) {
	text := strings.Join(numberedSentences(30), "! ") + "?"
	c := newTestChunker(150, 30, 60)

	for _, ch := range c.Chunk(text, nil) {
		assert.GreaterOrEqual(t, utf8.RuneCountInString(ch.Text), 60)
	}
}

func TestChunk_IndicesAndMetadata(t *testing.T) {
	text := strings.Join(numberedSentences(20), ". ")
	c := newTestChunker(150, 30, 20)

	chunks := c.Chunk(text, map[string]any{"fileType": ".txt", "projectFolder": "alpha"})
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, i, ch.Metadata["chunkIndex"])
		assert.Equal(t, ".txt", ch.Metadata["fileType"])
		assert.Equal(t, "alpha", ch.Metadata["projectFolder"])
		assert.Equal(t, "2024-05-01T12:00:00Z", ch.Metadata["timestamp"])
		assert.GreaterOrEqual(t, ch.Metadata["chunkSize"], utf8.RuneCountInString(ch.Text))
	}
}

func TestChunk_CallerMetadataNotShared(t *testing.T) {
	meta := map[string]any{"project": "p"}
	c := newTestChunker(150, 30, 20)

	chunks := c.Chunk(strings.Join(numberedSentences(10), ". "), meta)
	require.Greater(t, len(chunks), 1)

	chunks[0].Metadata["project"] = "changed"
	assert.Equal(t, "p", chunks[1].Metadata["project"])
	assert.Equal(t, "p", meta["project"])
	assert.NotContains(t, meta, "chunkIndex")
}

func TestChunk_NaiveSplitterConsumesPunctuation(t *testing.T) {
	// Abbreviations and decimals split too; boundaries must stay naive.
	c := newTestChunker(1000, 0, 1)

	chunks := c.Chunk("Dr. Smith paid 3.50 dollars!!! Really?", nil)

	require.Len(t, chunks, 1)
	assert.Equal(t, "Dr Smith paid 3 50 dollars Really", chunks[0].Text)
}

func TestChunk_MultibyteLengths(t *testing.T) {
	// 30 runes per sentence even though each rune is multi-byte.
	s := strings.Repeat("é", 30)
	c := newTestChunker(61, 0, 10)

	chunks := c.Chunk(s+". "+s+". "+s+".", nil)

	require.Len(t, chunks, 2)
	assert.Equal(t, s+" "+s, chunks[0].Text)
	assert.Equal(t, s, chunks[1].Text)
}

func TestOverlapTail(t *testing.T) {
	c := newTestChunker(100, 15, 10)

	t.Run("short buffer carried whole", func(t *testing.T) {
		assert.Equal(t, "tiny text", c.overlapTail("tiny text"))
	})

	t.Run("cuts after late space", func(t *testing.T) {
		assert.Equal(t, "short", c.overlapTail("Sentence two is also fairly short"))
	})

	t.Run("raw tail when space is early", func(t *testing.T) {
		// tail "a bcdefghijklmn" has its only space at index 1
		assert.Equal(t, "a bcdefghijklmn", c.overlapTail("xxxxxxxxxxa bcdefghijklmn"))
	})

	t.Run("raw tail without spaces", func(t *testing.T) {
		assert.Equal(t, "ghijklmnopqrstu", c.overlapTail("abcdefghijklmnopqrstu"))
	})

	t.Run("zero overlap carries nothing", func(t *testing.T) {
		z := newTestChunker(100, 0, 10)
		assert.Equal(t, "", z.overlapTail("anything at all"))
	})
}

func TestChunk_OverlapBound(t *testing.T) {
	sentences := numberedSentences(30)
	text := strings.Join(sentences, ". ")
	c := newTestChunker(180, 25, 30)

	chunks := c.Chunk(text, nil)
	require.Greater(t, len(chunks), 2)

	for i := 1; i < len(chunks); i++ {
		// The carried prefix is everything before the first whole sentence.
		first := -1
		for _, s := range sentences {
			if idx := strings.Index(chunks[i].Text, s); idx >= 0 {
				first = idx
				break
			}
		}
		require.GreaterOrEqual(t, first, 0)
		carried := chunks[i].Text[:first]

		assert.LessOrEqual(t, utf8.RuneCountInString(carried), 25)
		assert.True(t, strings.HasSuffix(chunks[i-1].Text, carried), "chunk %d prefix %q not from previous tail", i, carried)
		if carried != "" {
			prev := chunks[i-1].Text
			before := prev[len(prev)-len(carried)-1]
			assert.Equal(t, byte(' '), before, "overlap %q starts mid-word", carried)
		}
	}
}

func TestChunkByParagraphs(t *testing.T) {
	para := func(n int) string {
		return fmt.Sprintf("Paragraph %d. %s", n, strings.Repeat("filler words here ", 4))
	}
	text := para(1) + "\n\n" + para(2) + "\n   \n" + para(3) + "\n\n\n" + para(4)
	c := newTestChunker(180, 50, 20)

	chunks := c.ChunkByParagraphs(text, map[string]any{"fileType": ".md"})

	require.Len(t, chunks, 2)
	assert.Equal(t, strings.TrimSpace(para(1))+"\n\n"+strings.TrimSpace(para(2)), chunks[0].Text)
	assert.True(t, strings.HasPrefix(chunks[1].Text, "Paragraph 3."), "no overlap carried: %q", chunks[1].Text)
	assert.Equal(t, 1, chunks[1].Metadata["chunkIndex"])
	assert.Equal(t, ".md", chunks[1].Metadata["fileType"])
}

func TestChunkByParagraphs_Empty(t *testing.T) {
	c := newTestChunker(100, 10, 10)
	assert.Empty(t, c.ChunkByParagraphs("\n\n\n", nil))
}
