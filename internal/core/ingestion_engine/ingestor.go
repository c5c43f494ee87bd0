package ingestion_engine

import "context"

// Ingestor is the entry point used by the CLI, the watch daemon and the API.
type Ingestor interface {
	IngestFile(ctx context.Context, path string, opts IngestOptions) (*IngestResult, error)
	IngestDirectory(ctx context.Context, dir string, opts DirectoryOptions) (*DirectoryReport, error)
	GetStatus(ctx context.Context, path string) (*DocumentStatusReport, error)
}

var _ Ingestor = (*IngestionCoordinator)(nil)
