package ingestion_engine

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/markdave123-py/docindex/internal/logging"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultMinChunkSize = 100
)

var (
	sentenceBoundary  = regexp.MustCompile(`[.!?]+`)
	paragraphBoundary = regexp.MustCompile(`\n\s*\n`)
)

// ChunkerConfig tunes the chunker. All sizes are in characters.
//
// ChunkSize:    target upper bound for a chunk.
// ChunkOverlap: trailing characters of a finished chunk carried into the next.
// MinChunkSize: a buffer shorter than this is never finalized.
type ChunkerConfig struct {
	ChunkSize    int
	ChunkOverlap int
	MinChunkSize int
}

// DefaultChunkerConfig returns the 1000/200/100 defaults.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		MinChunkSize: DefaultMinChunkSize,
	}
}

// Chunk is one emitted piece of text.
type Chunk struct {
	Index    int
	Text     string
	Metadata map[string]any
}

// TextChunker splits text into ordered, overlapping chunks. It does no I/O.
type TextChunker struct {
	cfg ChunkerConfig
	log *logrus.Logger
	now func() time.Time
}

// NewTextChunker builds a chunker. Non-positive sizes fall back to the
// defaults; a negative overlap means no overlap.
func NewTextChunker(cfg ChunkerConfig, log *logrus.Logger) *TextChunker {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = DefaultMinChunkSize
	}
	if log == nil {
		log = logging.Discard()
	}
	return &TextChunker{cfg: cfg, log: log, now: time.Now}
}

// Config returns the effective configuration.
func (c *TextChunker) Config() ChunkerConfig {
	return c.cfg
}

// Chunk splits text on sentence boundaries. Sentences are accumulated
// until the next one would push the buffer past ChunkSize; the buffer is
// then emitted and the next one starts with its overlap tail.
// A trailing buffer shorter than MinChunkSize is dropped.
func (c *TextChunker) Chunk(text string, metadata map[string]any) []Chunk {
	if strings.TrimSpace(text) == "" {
		c.log.Warn("empty text provided for chunking")
		return []Chunk{}
	}

	sentences := splitUnits(sentenceBoundary, text)

	chunks := make([]Chunk, 0, utf8.RuneCountInString(text)/c.cfg.ChunkSize+1)
	current := ""

	for _, sentence := range sentences {
		potential := sentence
		if current != "" {
			potential = current + " " + sentence
		}

		if runeLen(potential) > c.cfg.ChunkSize && runeLen(current) >= c.cfg.MinChunkSize {
			chunks = append(chunks, c.newChunk(current, len(chunks), metadata))
			current = c.overlapTail(current) + sentence
		} else {
			current = potential
		}
	}

	if runeLen(strings.TrimSpace(current)) >= c.cfg.MinChunkSize {
		chunks = append(chunks, c.newChunk(current, len(chunks), metadata))
	}

	c.log.WithField("chunks", len(chunks)).Info("text chunked")
	return chunks
}

// ChunkByParagraphs works like Chunk with blank-line separated paragraphs
// as the unit. Paragraphs are joined by a blank line and a new chunk
// starts with the paragraph that did not fit, without overlap.
func (c *TextChunker) ChunkByParagraphs(text string, metadata map[string]any) []Chunk {
	if strings.TrimSpace(text) == "" {
		c.log.Warn("empty text provided for chunking")
		return []Chunk{}
	}

	paragraphs := splitUnits(paragraphBoundary, text)

	var chunks []Chunk
	current := ""

	for _, paragraph := range paragraphs {
		potential := paragraph
		if current != "" {
			potential = current + "\n\n" + paragraph
		}

		if runeLen(potential) > c.cfg.ChunkSize && runeLen(current) >= c.cfg.MinChunkSize {
			chunks = append(chunks, c.newChunk(current, len(chunks), metadata))
			current = paragraph
		} else {
			current = potential
		}
	}

	if runeLen(strings.TrimSpace(current)) >= c.cfg.MinChunkSize {
		chunks = append(chunks, c.newChunk(current, len(chunks), metadata))
	}

	if chunks == nil {
		chunks = []Chunk{}
	}
	c.log.WithField("chunks", len(chunks)).Info("text chunked by paragraphs")
	return chunks
}

// overlapTail returns the context carried from a finished chunk into the
// next one. When the tail has a space past its midpoint the overlap starts
// right after that space so the carried text begins on a word.
func (c *TextChunker) overlapTail(chunk string) string {
	runes := []rune(chunk)
	if len(runes) <= c.cfg.ChunkOverlap {
		return chunk
	}

	tail := runes[len(runes)-c.cfg.ChunkOverlap:]

	lastSpace := -1
	for i := len(tail) - 1; i >= 0; i-- {
		if tail[i] == ' ' {
			lastSpace = i
			break
		}
	}
	if float64(lastSpace) > float64(c.cfg.ChunkOverlap)*0.5 {
		return string(tail[lastSpace+1:])
	}
	return string(tail)
}

func (c *TextChunker) newChunk(text string, index int, metadata map[string]any) Chunk {
	meta := make(map[string]any, len(metadata)+3)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["chunkIndex"] = index
	meta["chunkSize"] = runeLen(text)
	meta["timestamp"] = c.now().UTC().Format(time.RFC3339Nano)

	return Chunk{
		Index:    index,
		Text:     strings.TrimSpace(text),
		Metadata: meta,
	}
}

// splitUnits splits on the boundary pattern, trims every fragment and
// drops the empty ones. The boundary characters themselves are consumed.
func splitUnits(boundary *regexp.Regexp, text string) []string {
	parts := boundary.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
