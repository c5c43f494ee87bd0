package ingestion_engine

import (
	"errors"
	"fmt"
)

// ErrDocumentNotFound is returned by status lookups for unknown paths.
var ErrDocumentNotFound = errors.New("document not found")

// UnsupportedFileTypeError rejects a file whose extension has no extractor.
type UnsupportedFileTypeError struct {
	Ext string
}

func (e *UnsupportedFileTypeError) Error() string {
	return fmt.Sprintf("Unsupported file type: %s", e.Ext)
}

// ExtractionError wraps a format-specific extractor failure.
type ExtractionError struct {
	Format string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s processing failed: %v", e.Format, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ProcessingError reports an unsuccessful ProcessResult to the ingestion caller.
type ProcessingError struct {
	Path    string
	Message string
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("document processing failed: %s", e.Message)
}

// PersistenceError means the chunk transaction was rolled back.
type PersistenceError struct {
	DocumentID string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store chunks for document %s: %v", e.DocumentID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// StatusUpdateError is a failed status transition.
type StatusUpdateError struct {
	DocumentID string
	Status     string
	Err        error
}

func (e *StatusUpdateError) Error() string {
	return fmt.Sprintf("set document %s status %s: %v", e.DocumentID, e.Status, e.Err)
}

func (e *StatusUpdateError) Unwrap() error { return e.Err }
