package core

import (
	"context"
	"errors"
	"io"

	"github.com/markdave123-py/docindex/internal/models"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// DocumentStore is the document half of the persistence layer.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	GetDocumentByPath(ctx context.Context, filePath string) (*models.Document, error)
	ListDocuments(ctx context.Context, limit, offset int) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, errorMessage string) error
}

// ChunkStore owns the chunk set of each document.
type ChunkStore interface {
	// ReplaceChunks swaps the whole chunk set of a document in one
	// transaction. Readers see either the old set or the new one.
	ReplaceChunks(ctx context.Context, documentID string, chunks []models.DocumentChunk) error
	GetChunksByDocument(ctx context.Context, documentID string, limit int) ([]models.DocumentChunk, error)
	CountChunks(ctx context.Context, documentID string) (int, error)
}

// WatchFolderStore is the registry of folders the watch daemon follows.
type WatchFolderStore interface {
	ListWatchFolders(ctx context.Context, activeOnly bool) ([]models.WatchFolder, error)
	GetWatchFolder(ctx context.Context, id int64) (*models.WatchFolder, error)
	AddWatchFolder(ctx context.Context, folder *models.WatchFolder) error
	UpdateWatchFolder(ctx context.Context, folder *models.WatchFolder) error
	DeleteWatchFolder(ctx context.Context, id int64) error
}

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/SQLite so higher layers never depend on a specific DB.
type DbClient interface {
	DocumentStore
	ChunkStore
	WatchFolderStore

	ListChunksWithoutEmbedding(ctx context.Context, limit int) ([]models.DocumentChunk, error)
	UpdateChunkEmbeddings(ctx context.Context, rows []models.ChunkEmbedding) error

	SearchChunksByContent(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
	SearchChunksByVector(ctx context.Context, queryVec []float32, limit int) ([]models.SearchResult, error)

	Stats(ctx context.Context) (*models.Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
	DownloadToFile(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error)
}
