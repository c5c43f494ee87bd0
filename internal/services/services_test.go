package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docindex/internal/core"
	db "github.com/markdave123-py/docindex/internal/core/database"
	"github.com/markdave123-py/docindex/internal/models"
)

func newTestStore(t *testing.T) *db.DatabaseClient {
	t.Helper()
	store, err := db.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "svc.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seed stores one completed document per name, each with n chunks.
func seed(t *testing.T, store *db.DatabaseClient, n int, names ...string) {
	t.Helper()
	ctx := context.Background()
	for _, name := range names {
		doc := &models.Document{ID: "doc-" + name, FilePath: "/data/" + name, FileName: name, FileType: filepath.Ext(name), ProjectFolder: "p"}
		require.NoError(t, store.CreateDocument(ctx, doc))
		chunks := make([]models.DocumentChunk, n)
		for i := range chunks {
			chunks[i] = models.DocumentChunk{ID: fmt.Sprintf("%s-%d", name, i), Text: fmt.Sprintf("%s says hello%s", name, strings.Repeat("!", i+1))}
		}
		require.NoError(t, store.ReplaceChunks(ctx, doc.ID, chunks))
		require.NoError(t, store.UpdateDocumentStatus(ctx, doc.ID, models.StatusCompleted, ""))
	}
}

// fakeEmbedder maps a text to a vector derived from its length.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	tasks []core.EmbedTask
	fail  error
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string, task core.EmbedTask) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.tasks = append(f.tasks, task)
	f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

// fakeLLM answers "42" unless answer or err is set.
type fakeLLM struct {
	system, user string
	answer       *string
	err          error
}

func (f *fakeLLM) Generate(_ context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	if f.err != nil {
		return "", f.err
	}
	if f.answer != nil {
		return *f.answer, nil
	}
	return "42", nil
}

func TestDocumentService(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, 3, "a.txt", "b.md")
	svc := NewDocumentService(store)
	ctx := context.Background()

	docs, err := svc.List(ctx, 0, -5)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	doc, err := svc.Get(ctx, "doc-a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", doc.FileName)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	chunks, err := svc.Chunks(ctx, "doc-b.md", 2)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)

	_, err = svc.Chunks(ctx, "missing", 0)
	assert.ErrorIs(t, err, core.ErrNotFound)

	hits, err := svc.Search(ctx, "B.MD SAYS", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 3)

	_, err = svc.Search(ctx, "   ", 10)
	assert.ErrorIs(t, err, ErrInvalidQuery)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), stats.TotalChunks)
	assert.Equal(t, int64(2), stats.CompletedDocuments)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 50, clampLimit(0, 50, 500))
	assert.Equal(t, 500, clampLimit(9000, 50, 500))
	assert.Equal(t, 7, clampLimit(7, 50, 500))
	assert.Equal(t, 0, clampLimit(-1, 0, 0))
}

func TestEmbeddingService_Backfill(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, 7, "a.txt", "b.txt")
	emb := &fakeEmbedder{}
	svc := NewEmbeddingService(store, emb, EmbeddingConfig{BatchSize: 3, Concurrency: 2}, nil)

	report, err := svc.Backfill(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 14, report.Embedded)
	assert.Equal(t, 5, report.Batches)
	assert.Equal(t, 5, emb.calls)

	pending, err := store.ListChunksWithoutEmbedding(context.Background(), 100)
	require.NoError(t, err)
	assert.Empty(t, pending)

	again, err := svc.Backfill(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Embedded)
}

func TestEmbeddingService_MaxChunks(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, 10, "a.txt")
	svc := NewEmbeddingService(store, &fakeEmbedder{}, EmbeddingConfig{BatchSize: 4, Concurrency: 1, MaxChunks: 6}, nil)

	report, err := svc.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, report.Embedded)

	pending, err := store.ListChunksWithoutEmbedding(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, pending, 4)
}

func TestEmbeddingService_FailureStopsRun(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, 4, "a.txt")
	svc := NewEmbeddingService(store, &fakeEmbedder{fail: errors.New("quota exceeded")}, EmbeddingConfig{BatchSize: 2, Concurrency: 2}, nil)

	report, err := svc.Backfill(context.Background())

	assert.ErrorContains(t, err, "quota exceeded")
	assert.Zero(t, report.Embedded)
}

func TestEmbeddingService_RejectsWrongDimension(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, 2, "a.txt")
	emb := &fakeEmbedder{}
	svc := NewEmbeddingService(store, emb, EmbeddingConfig{BatchSize: 2, Dimension: 768}, nil)

	_, err := svc.Backfill(context.Background())
	assert.ErrorContains(t, err, "has 2 dimensions, want 768")

	pending, err := store.ListChunksWithoutEmbedding(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	assert.Equal(t, []core.EmbedTask{core.EmbedDocument}, emb.tasks)
}

func TestQueryService_Similar(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, 3, "a.txt")
	emb := &fakeEmbedder{}
	_, err := NewEmbeddingService(store, emb, EmbeddingConfig{}, nil).Backfill(context.Background())
	require.NoError(t, err)
	svc := NewQueryService(store, emb, nil)

	byVector, err := svc.Similar(context.Background(), []float32{float32(len("a.txt says hello!!")), 1}, "", 1)
	require.NoError(t, err)
	require.Len(t, byVector, 1)
	assert.Equal(t, "a.txt says hello!!", byVector[0].Text)

	emb.tasks = nil
	byQuery, err := svc.Similar(context.Background(), nil, "anything", 3)
	require.NoError(t, err)
	assert.Len(t, byQuery, 3)
	assert.Equal(t, []core.EmbedTask{core.EmbedQuery}, emb.tasks)

	_, err = NewQueryService(store, nil, nil).Similar(context.Background(), nil, "hello", 3)
	assert.ErrorIs(t, err, ErrEmbeddingsDisabled)
	_, err = svc.Similar(context.Background(), nil, "", 3)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestQueryService_Ask(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, 2, "notes.md")
	llm := &fakeLLM{}

	withoutLLM, err := NewQueryService(store, nil, nil).Ask(context.Background(), "says hello", 5)
	require.NoError(t, err)
	assert.Empty(t, withoutLLM.Answer)
	assert.Len(t, withoutLLM.Sources, 2)

	answer, err := NewQueryService(store, nil, llm).Ask(context.Background(), "says hello", 5)
	require.NoError(t, err)
	assert.Equal(t, "42", answer.Answer)
	assert.Equal(t, answerSystemPrompt, llm.system)
	assert.True(t, strings.HasSuffix(llm.user, "Question: says hello"))
	assert.Contains(t, llm.user, "[notes.md #0]")

	_, err = NewQueryService(store, nil, llm).Ask(context.Background(), " ", 5)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestQueryService_AskWithoutAnswer(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, 2, "notes.md")
	blank := "  "

	tests := []struct {
		name string
		llm  *fakeLLM
	}{
		{"blank reply", &fakeLLM{answer: &blank}},
		{"blocked by provider", &fakeLLM{err: fmt.Errorf("prompt blocked (BlockReasonSafety): %w", core.ErrNoAnswer)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer, err := NewQueryService(store, nil, tt.llm).Ask(context.Background(), "says hello", 5)
			assert.ErrorIs(t, err, core.ErrNoAnswer)
			assert.Nil(t, answer)
		})
	}
}
