package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/logging"
	"github.com/markdave123-py/docindex/internal/models"
)

// Store is the persistence the coordinator needs.
type Store interface {
	core.DocumentStore
	core.ChunkStore
}

// StatusObserver is told about every recorded status transition.
type StatusObserver func(documentID string, status models.DocumentStatus)

// IngestionCoordinator drives a file through extraction, chunking and
// persistence, recording the document lifecycle
// pending -> processing -> completed | error.
//
// store:     documents and chunk sets.
// objects:   optional object storage for IngestObject / IngestBucket.
// processor: extension dispatch to the text extractors.
// cfg:       chunking defaults and default project.
// observer:  optional status hook.
type IngestionCoordinator struct {
	store     Store
	objects   core.ObjectClient
	processor *DocumentProcessor
	cfg       CoordinatorConfig
	observer  StatusObserver
	log       *logrus.Logger
	now       func() time.Time
	newID     func() string
}

// NewIngestionCoordinator constructs the coordinator. The store handle is
// owned by the caller.
func NewIngestionCoordinator(store Store, processor *DocumentProcessor, cfg CoordinatorConfig, log *logrus.Logger) *IngestionCoordinator {
	if log == nil {
		log = logging.Discard()
	}
	if processor == nil {
		processor = NewDocumentProcessor(log)
	}
	cfg.Chunker = NewTextChunker(cfg.Chunker, nil).Config()
	return &IngestionCoordinator{
		store:     store,
		processor: processor,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// WithObjectClient enables IngestObject and IngestBucket.
func (c *IngestionCoordinator) WithObjectClient(obj core.ObjectClient) *IngestionCoordinator {
	c.objects = obj
	return c
}

// OnStatus registers the status observer.
func (c *IngestionCoordinator) OnStatus(obs StatusObserver) {
	c.observer = obs
}

// Processor exposes the document processor, mainly for extension checks.
func (c *IngestionCoordinator) Processor() *DocumentProcessor {
	return c.processor
}

// IngestFile ingests one local file. A path that is already stored is
// reported with AlreadyIngested and left untouched, whatever its status.
func (c *IngestionCoordinator) IngestFile(ctx context.Context, path string, opts IngestOptions) (*IngestResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", abs)
	}

	return c.ingest(ctx, abs, abs, info.Size(), opts)
}

// ingest runs the state machine. recordPath is the document's natural key,
// localPath the file the text is extracted from.
func (c *IngestionCoordinator) ingest(ctx context.Context, recordPath, localPath string, size int64, opts IngestOptions) (*IngestResult, error) {
	entry := c.log.WithField("path", recordPath)

	if res, err := c.existing(ctx, recordPath); res != nil || err != nil {
		if res != nil {
			entry.WithField("status", res.Status).Info("document already ingested, skipping")
		}
		return res, err
	}

	extracted := c.processor.ProcessDocument(ctx, localPath)
	if !extracted.Success {
		return nil, &ProcessingError{Path: recordPath, Message: extracted.Error}
	}

	project := opts.Project
	if project == "" {
		project = c.cfg.DefaultProject
	}

	now := c.now().UTC()
	doc := &models.Document{
		ID:            c.newID(),
		FilePath:      recordPath,
		FileName:      filepath.Base(recordPath),
		FileType:      strings.ToLower(filepath.Ext(recordPath)),
		FileSize:      size,
		ProjectFolder: project,
		Status:        models.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	c.notify(doc.ID, models.StatusPending)

	count, err := c.process(ctx, doc, extracted, opts)
	if err != nil {
		entry.WithError(err).Error("ingestion failed")
		c.fail(ctx, recordPath, err)
		return nil, err
	}

	entry.WithFields(logrus.Fields{"document_id": doc.ID, "chunks": count}).Info("document ingested")
	return &IngestResult{
		DocumentID: doc.ID,
		FilePath:   recordPath,
		ChunkCount: count,
		TextLength: utf8.RuneCountInString(extracted.Text),
		Status:     models.StatusCompleted,
	}, nil
}

func (c *IngestionCoordinator) existing(ctx context.Context, recordPath string) (*IngestResult, error) {
	doc, err := c.store.GetDocumentByPath(ctx, recordPath)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup document %s: %w", recordPath, err)
	}

	count, err := c.store.CountChunks(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("count chunks for %s: %w", doc.ID, err)
	}
	return &IngestResult{
		DocumentID:      doc.ID,
		FilePath:        doc.FilePath,
		ChunkCount:      count,
		AlreadyIngested: true,
		Status:          doc.Status,
	}, nil
}

// process covers processing -> chunking -> persistence -> completed.
func (c *IngestionCoordinator) process(ctx context.Context, doc *models.Document, extracted ProcessResult, opts IngestOptions) (int, error) {
	if err := c.setStatus(ctx, doc.ID, models.StatusProcessing, ""); err != nil {
		return 0, err
	}

	meta := make(map[string]any, len(extracted.Metadata)+2)
	for k, v := range extracted.Metadata {
		meta[k] = v
	}
	meta["filePath"] = doc.FilePath
	meta["fileName"] = doc.FileName
	meta["fileType"] = doc.FileType
	meta["projectFolder"] = doc.ProjectFolder

	chunker := NewTextChunker(c.chunkerConfig(opts), c.log)
	var pieces []Chunk
	if c.cfg.Paragraphs {
		pieces = chunker.ChunkByParagraphs(extracted.Text, meta)
	} else {
		pieces = chunker.Chunk(extracted.Text, meta)
	}

	now := c.now().UTC()
	rows := make([]models.DocumentChunk, len(pieces))
	for i, p := range pieces {
		rows[i] = models.DocumentChunk{
			ID:         c.newID(),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Text:       p.Text,
			Metadata:   p.Metadata,
			CreatedAt:  now,
		}
	}

	if err := c.store.ReplaceChunks(ctx, doc.ID, rows); err != nil {
		return 0, &PersistenceError{DocumentID: doc.ID, Err: err}
	}

	if err := c.setStatus(ctx, doc.ID, models.StatusCompleted, ""); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (c *IngestionCoordinator) chunkerConfig(opts IngestOptions) ChunkerConfig {
	cfg := c.cfg.Chunker
	if opts.ChunkSize > 0 {
		cfg.ChunkSize = opts.ChunkSize
	}
	switch {
	case opts.Overlap > 0:
		cfg.ChunkOverlap = opts.Overlap
	case opts.Overlap < 0:
		cfg.ChunkOverlap = 0
	}
	return cfg
}

func (c *IngestionCoordinator) setStatus(ctx context.Context, id string, status models.DocumentStatus, message string) error {
	if err := c.store.UpdateDocumentStatus(ctx, id, status, message); err != nil {
		return &StatusUpdateError{DocumentID: id, Status: string(status), Err: err}
	}
	c.notify(id, status)
	return nil
}

// fail records cause on the document stored under recordPath, if any.
// A failure here is logged and never replaces cause.
func (c *IngestionCoordinator) fail(ctx context.Context, recordPath string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	entry := c.log.WithField("path", recordPath)

	doc, err := c.store.GetDocumentByPath(ctx, recordPath)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			entry.WithError(err).Warn("could not look up document to record failure")
		}
		return
	}
	if err := c.setStatus(ctx, doc.ID, models.StatusError, cause.Error()); err != nil {
		entry.WithError(err).Error("could not record error status")
	}
}

func (c *IngestionCoordinator) notify(id string, status models.DocumentStatus) {
	if c.observer != nil {
		c.observer(id, status)
	}
}

// IngestDirectory walks dir, ingests every supported file one at a time
// and reports per-file outcomes. Only a walk error aborts the run.
func (c *IngestionCoordinator) IngestDirectory(ctx context.Context, dir string, opts DirectoryOptions) (*DirectoryReport, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	report := &DirectoryReport{Root: root}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		report.Total++
		if !c.processor.IsSupported(filepath.Ext(path)) {
			report.Skipped++
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	report.Supported = len(files)

	c.log.WithFields(logrus.Fields{"root": root, "files": len(files), "recursive": opts.Recursive}).Info("ingesting directory")

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := c.IngestFile(ctx, path, opts.IngestOptions)
		report.add(path, res, err)
	}

	c.log.WithFields(logrus.Fields{
		"root":      root,
		"succeeded": report.Succeeded,
		"existing":  report.AlreadyIngested,
		"failed":    report.Failed,
	}).Info("directory ingestion finished")
	return report, nil
}

// GetStatus returns the stored document for path with its chunk count.
func (c *IngestionCoordinator) GetStatus(ctx context.Context, path string) (*DocumentStatusReport, error) {
	key := path
	if !strings.HasPrefix(path, objectScheme) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", path, err)
		}
		key = abs
	}

	doc, err := c.store.GetDocumentByPath(ctx, key)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup document %s: %w", key, err)
	}

	count, err := c.store.CountChunks(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("count chunks for %s: %w", doc.ID, err)
	}
	return &DocumentStatusReport{Document: doc, ChunkCount: count, ErrorMessage: doc.ErrorMessage}, nil
}

const objectScheme = "s3://"

// ObjectURL is the record path of an object: s3://bucket/key.
func ObjectURL(bucket, key string) string {
	return objectScheme + bucket + "/" + strings.TrimPrefix(key, "/")
}

// ParseObjectURL splits s3://bucket/key (key may be empty or a prefix).
// Virtual-hosted https URLs (https://bucket.s3.region.amazonaws.com/key)
// are accepted too.
func ParseObjectURL(u string) (bucket, key string, err error) {
	var hostPath []string
	switch {
	case strings.HasPrefix(u, objectScheme):
		hostPath = strings.SplitN(strings.TrimPrefix(u, objectScheme), "/", 2)
		bucket = hostPath[0]
	case strings.HasPrefix(u, "https://"):
		hostPath = strings.SplitN(strings.TrimPrefix(u, "https://"), "/", 2)
		bucket = strings.Split(hostPath[0], ".")[0]
	default:
		return "", "", fmt.Errorf("not an object url: %q", u)
	}
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %q", u)
	}
	return bucket, key, nil
}

// IngestObject downloads one object to a temporary file and ingests it
// under the record path s3://bucket/key. The temporary file is always
// removed.
func (c *IngestionCoordinator) IngestObject(ctx context.Context, bucket, key string, opts IngestOptions) (*IngestResult, error) {
	if c.objects == nil {
		return nil, errors.New("object storage is not configured")
	}
	recordPath := ObjectURL(bucket, key)

	if res, err := c.existing(ctx, recordPath); res != nil || err != nil {
		return res, err
	}

	ext := strings.ToLower(filepath.Ext(key))
	if !c.processor.IsSupported(ext) {
		return nil, &ProcessingError{Path: recordPath, Message: (&UnsupportedFileTypeError{Ext: ext}).Error()}
	}

	tmp, err := os.CreateTemp("", "docindex-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := c.objects.DownloadToFile(ctx, bucket, key, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", recordPath, err)
	}

	return c.ingest(ctx, recordPath, tmp.Name(), n, opts)
}

// IngestBucket ingests every supported object under prefix, sequentially
// and fail-soft like IngestDirectory.
func (c *IngestionCoordinator) IngestBucket(ctx context.Context, bucket, prefix string, opts IngestOptions) (*DirectoryReport, error) {
	if c.objects == nil {
		return nil, errors.New("object storage is not configured")
	}
	keys, err := c.objects.ListKeys(ctx, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", ObjectURL(bucket, prefix), err)
	}

	report := &DirectoryReport{Root: ObjectURL(bucket, prefix)}
	var supported []string
	for _, key := range keys {
		if strings.HasSuffix(key, "/") {
			continue
		}
		report.Total++
		if !c.processor.IsSupported(filepath.Ext(key)) {
			report.Skipped++
			continue
		}
		supported = append(supported, key)
	}
	report.Supported = len(supported)

	for _, key := range supported {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := c.IngestObject(ctx, bucket, key, opts)
		report.add(ObjectURL(bucket, key), res, err)
	}
	return report, nil
}
