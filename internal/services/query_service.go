package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/models"
)

// ErrEmbeddingsDisabled is returned by vector operations when no embedding
// provider is configured.
var ErrEmbeddingsDisabled = errors.New("embedding provider not configured")

const answerSystemPrompt = "You are an assistant answering questions using only the provided document excerpts. " +
	"Cite the file names you rely on. If the excerpts do not contain the answer, say that you cannot find it in the indexed documents."

// Answer is the result of an AI query.
type Answer struct {
	Answer  string                `json:"answer"`
	Sources []models.SearchResult `json:"sources"`
}

// QueryService serves similarity search and retrieval-augmented answers.
// Either provider may be nil.
type QueryService struct {
	db       core.DbClient
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
}

func NewQueryService(db core.DbClient, embedder core.EmbeddingProvider, llm core.LLMProvider) *QueryService {
	return &QueryService{db: db, embedder: embedder, llm: llm}
}

// Similar searches by an explicit vector, or by the embedding of query
// when vector is empty.
func (s *QueryService) Similar(ctx context.Context, vector []float32, query string, limit int) ([]models.SearchResult, error) {
	limit = clampLimit(limit, 10, maxSearchLimit)
	if len(vector) == 0 {
		if strings.TrimSpace(query) == "" {
			return nil, ErrInvalidQuery
		}
		vec, err := s.embedQuery(ctx, query)
		if err != nil {
			return nil, err
		}
		vector = vec
	}
	res, err := s.db.SearchChunksByVector(ctx, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return res, nil
}

// Ask retrieves context chunks for question and, when a generator is
// configured, answers from them. Without embeddings the retrieval falls
// back to text search.
func (s *QueryService) Ask(ctx context.Context, question string, limit int) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrInvalidQuery
	}
	limit = clampLimit(limit, 5, 20)

	var (
		sources []models.SearchResult
		err     error
	)
	if s.embedder != nil {
		sources, err = s.Similar(ctx, nil, question, limit)
	} else {
		sources, err = s.db.SearchChunksByContent(ctx, question, limit)
	}
	if err != nil {
		return nil, err
	}

	out := &Answer{Sources: sources}
	if s.llm == nil || len(sources) == 0 {
		return out, nil
	}

	var sb strings.Builder
	for _, src := range sources {
		fmt.Fprintf(&sb, "[%s #%d]\n%s\n---\n", src.FileName, src.ChunkIndex, src.Text)
	}
	userPrompt := fmt.Sprintf("Context:\n%s\nQuestion: %s", sb.String(), question)

	answer, err := s.llm.Generate(ctx, answerSystemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	if strings.TrimSpace(answer) == "" {
		return nil, fmt.Errorf("generate answer: %w", core.ErrNoAnswer)
	}
	out.Answer = answer
	return out, nil
}

func (s *QueryService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if s.embedder == nil {
		return nil, ErrEmbeddingsDisabled
	}
	vecs, err := s.embedder.EmbedTexts(ctx, []string{query}, core.EmbedQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, errors.New("embed query: empty response")
	}
	return vecs[0], nil
}
