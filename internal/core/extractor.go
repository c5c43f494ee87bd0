package core

import (
	"context"
)

// ExtractedText represents the result of text extraction with format metadata.
type ExtractedText struct {
	Text     string
	Metadata map[string]any
}

// DocumentExtractor defines the interface for extracting text from one document format.
type DocumentExtractor interface {
	// ExtractText reads the file at path and returns its text content.
	ExtractText(ctx context.Context, path string) (*ExtractedText, error)
}
