package ingestion_engine

import (
	"github.com/markdave123-py/docindex/internal/models"
)

// CoordinatorConfig holds the defaults applied when IngestOptions leaves a
// field at its zero value.
//
// Chunker:        chunk size, overlap and minimum size.
// DefaultProject: project folder recorded when the caller names none.
// Paragraphs:     chunk on blank lines instead of sentence punctuation.
type CoordinatorConfig struct {
	Chunker        ChunkerConfig
	DefaultProject string
	Paragraphs     bool
}

// IngestOptions are per-call overrides.
//
// Project:   project folder label stored with the document and every chunk.
// ChunkSize: 0 keeps the coordinator default.
// Overlap:   0 keeps the coordinator default, negative disables overlap.
type IngestOptions struct {
	Project   string
	ChunkSize int
	Overlap   int
}

// DirectoryOptions controls a directory walk.
type DirectoryOptions struct {
	Recursive bool
	IngestOptions
}

// IngestResult describes one ingested file.
//
// AlreadyIngested is set when a document with the same path existed before
// the call; nothing was written and Status is the stored status.
type IngestResult struct {
	DocumentID      string
	FilePath        string
	ChunkCount      int
	TextLength      int
	AlreadyIngested bool
	Status          models.DocumentStatus
}

// FileOutcome is one entry of a DirectoryReport.
type FileOutcome struct {
	Path   string
	Result *IngestResult
	Err    error
}

// DirectoryReport summarises a directory or bucket run.
// Supported = Succeeded + AlreadyIngested + Failed.
type DirectoryReport struct {
	Root            string
	Files           []FileOutcome
	Total           int
	Supported       int
	Skipped         int
	Succeeded       int
	AlreadyIngested int
	Failed          int
}

func (r *DirectoryReport) add(path string, res *IngestResult, err error) {
	r.Files = append(r.Files, FileOutcome{Path: path, Result: res, Err: err})
	switch {
	case err != nil:
		r.Failed++
	case res.AlreadyIngested:
		r.AlreadyIngested++
	default:
		r.Succeeded++
	}
}

// DocumentStatusReport is what GetStatus returns for a stored document.
type DocumentStatusReport struct {
	Document     *models.Document
	ChunkCount   int
	ErrorMessage string
}
