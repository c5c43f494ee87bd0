package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	maxSearchLimit  = 100
)

// ErrInvalidQuery rejects an empty search string.
var ErrInvalidQuery = errors.New("query is required")

// DocumentService is the read side used by the HTTP API and the CLI.
type DocumentService struct {
	db core.DbClient
}

func NewDocumentService(db core.DbClient) *DocumentService {
	return &DocumentService{db: db}
}

// Get returns core.ErrNotFound for an unknown id.
func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.db.GetDocumentByID(ctx, id)
}

func (s *DocumentService) List(ctx context.Context, limit, offset int) ([]models.Document, error) {
	return s.db.ListDocuments(ctx, clampLimit(limit, defaultPageSize, maxPageSize), max(offset, 0))
}

// Chunks returns the chunks of a document after checking it exists.
func (s *DocumentService) Chunks(ctx context.Context, id string, limit int) ([]models.DocumentChunk, error) {
	if _, err := s.db.GetDocumentByID(ctx, id); err != nil {
		return nil, err
	}
	return s.db.GetChunksByDocument(ctx, id, clampLimit(limit, 0, 0))
}

func (s *DocumentService) Stats(ctx context.Context) (*models.Stats, error) {
	return s.db.Stats(ctx)
}

// WatchFolders lists the active watch folders, highest priority first.
func (s *DocumentService) WatchFolders(ctx context.Context) ([]models.WatchFolder, error) {
	return s.db.ListWatchFolders(ctx, true)
}

// Search runs a case-insensitive text search over chunk content.
func (s *DocumentService) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalidQuery
	}
	res, err := s.db.SearchChunksByContent(ctx, query, clampLimit(limit, 10, maxSearchLimit))
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	return res, nil
}

// clampLimit applies def when limit is not positive and caps it at ceiling
// when ceiling is positive.
func clampLimit(limit, def, ceiling int) int {
	if limit <= 0 {
		limit = def
	}
	if ceiling > 0 && limit > ceiling {
		limit = ceiling
	}
	return limit
}
