package models

import (
	"time"
)

// DocumentStatus is the processing lifecycle state of a document.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusError      DocumentStatus = "error"
)

// Document represents one ingested file. FilePath is the natural key.
type Document struct {
	ID            string         `db:"id" json:"id"`
	FilePath      string         `db:"file_path" json:"file_path"`
	FileName      string         `db:"file_name" json:"file_name"`
	FileType      string         `db:"file_type" json:"file_type"` // lower-cased extension, e.g. ".pdf"
	FileSize      int64          `db:"file_size" json:"file_size"`
	ProjectFolder string         `db:"project_folder" json:"project_folder"`
	Status        DocumentStatus `db:"processing_status" json:"processing_status"`
	ErrorMessage  string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
	ProcessedAt   *time.Time     `db:"processed_at" json:"processed_at,omitempty"`
}

// DocumentChunk represents one text chunk from a document.
type DocumentChunk struct {
	ID         string         `db:"id" json:"id"`
	DocumentID string         `db:"document_id" json:"document_id"`
	ChunkIndex int            `db:"chunk_index" json:"chunk_index"`
	Text       string         `db:"chunk_text" json:"chunk_text"`
	Metadata   map[string]any `db:"metadata" json:"metadata"`
	Embedding  []float32      `db:"chunk_embedding" json:"chunk_embedding,omitempty"` // pgvector column
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// ChunkEmbedding pairs a stored chunk with a freshly computed vector.
type ChunkEmbedding struct {
	ChunkID   string
	Embedding []float32
}

// SearchResult is a chunk joined with its parent document fields.
type SearchResult struct {
	ChunkID       string  `json:"id"`
	DocumentID    string  `json:"document_id"`
	ChunkIndex    int     `json:"chunk_index"`
	Text          string  `json:"chunk_text"`
	FileName      string  `json:"file_name"`
	FileType      string  `json:"file_type"`
	ProjectFolder string  `json:"project_folder"`
	Distance      float64 `json:"distance,omitempty"`
}

// Stats summarises the store contents.
type Stats struct {
	TotalDocuments       int64                    `json:"total_documents"`
	TotalChunks          int64                    `json:"total_chunks"`
	CompletedDocuments   int64                    `json:"completed_documents"`
	ChunksWithEmbeddings int64                    `json:"chunks_with_embeddings"`
	DocumentsByStatus    map[DocumentStatus]int64 `json:"documents_by_status"`
	DocumentsByProject   map[string]int64         `json:"documents_by_project"`
	DocumentsByType      map[string]int64         `json:"documents_by_type"`
}

// WatchFolder is a directory registered for the watch daemon. An empty
// FileTypes accepts every supported extension; higher Priority is served
// first.
type WatchFolder struct {
	ID         int64     `db:"id" json:"id"`
	FolderPath string    `db:"folder_path" json:"folder_path"`
	Recursive  bool      `db:"recursive" json:"recursive"`
	FileTypes  []string  `db:"file_types" json:"file_types"`
	Priority   int       `db:"priority" json:"priority"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
