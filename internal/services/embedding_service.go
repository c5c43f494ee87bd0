package services

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/logging"
	"github.com/markdave123-py/docindex/internal/models"
)

// EmbeddingConfig tunes the backfill.
//
// BatchSize:   texts per embedding request and per update transaction.
// Concurrency: batches in flight at once.
// MaxChunks:   stop after this many chunks; 0 means no limit.
// Dimension:   expected vector length; 0 accepts any non-empty vector.
type EmbeddingConfig struct {
	BatchSize   int
	Concurrency int
	MaxChunks   int
	Dimension   int
}

// EmbedReport summarises one backfill run.
type EmbedReport struct {
	Embedded int
	Batches  int
}

// EmbeddingService fills chunk_embedding for chunks stored without one.
type EmbeddingService struct {
	db       core.DbClient
	embedder core.EmbeddingProvider
	cfg      EmbeddingConfig
	log      *logrus.Logger
}

func NewEmbeddingService(db core.DbClient, embedder core.EmbeddingProvider, cfg EmbeddingConfig, log *logrus.Logger) *EmbeddingService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if log == nil {
		log = logging.Discard()
	}
	return &EmbeddingService{db: db, embedder: embedder, cfg: cfg, log: log}
}

// Backfill embeds pending chunks round by round. Each round loads up to
// BatchSize*Concurrency chunks and embeds them in parallel batches; the
// first failing batch cancels the round and is returned.
func (s *EmbeddingService) Backfill(ctx context.Context) (*EmbedReport, error) {
	report := &EmbedReport{}
	roundSize := s.cfg.BatchSize * s.cfg.Concurrency

	for {
		limit := roundSize
		if s.cfg.MaxChunks > 0 {
			remaining := s.cfg.MaxChunks - report.Embedded
			if remaining <= 0 {
				break
			}
			limit = min(limit, remaining)
		}

		pending, err := s.db.ListChunksWithoutEmbedding(ctx, limit)
		if err != nil {
			return report, fmt.Errorf("list pending chunks: %w", err)
		}
		if len(pending) == 0 {
			break
		}

		n, batches, err := s.embedRound(ctx, pending)
		report.Embedded += n
		report.Batches += batches
		if err != nil {
			return report, err
		}

		s.log.WithFields(logrus.Fields{"embedded": report.Embedded, "batches": report.Batches}).Info("embedding round finished")
	}

	return report, nil
}

func (s *EmbeddingService) embedRound(ctx context.Context, chunks []models.DocumentChunk) (int, int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	var embedded, batches atomic.Int64
	for start := 0; start < len(chunks); start += s.cfg.BatchSize {
		batch := chunks[start:min(start+s.cfg.BatchSize, len(chunks))]
		g.Go(func() error {
			if err := s.embedBatch(gctx, batch); err != nil {
				return err
			}
			embedded.Add(int64(len(batch)))
			batches.Add(1)
			return nil
		})
	}

	err := g.Wait()
	return int(embedded.Load()), int(batches.Load()), err
}

func (s *EmbeddingService) embedBatch(ctx context.Context, batch []models.DocumentChunk) error {
	texts := make([]string, len(batch))
	for i, ch := range batch {
		texts[i] = ch.Text
	}

	vecs, err := s.embedder.EmbedTexts(ctx, texts, core.EmbedDocument)
	if err != nil {
		return fmt.Errorf("embed batch starting at chunk %s: %w", batch[0].ID, err)
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("embed batch: got %d vectors for %d chunks", len(vecs), len(batch))
	}

	rows := make([]models.ChunkEmbedding, len(batch))
	for i, ch := range batch {
		if len(vecs[i]) == 0 {
			return fmt.Errorf("embed batch: empty vector for chunk %s", ch.ID)
		}
		if s.cfg.Dimension > 0 && len(vecs[i]) != s.cfg.Dimension {
			return fmt.Errorf("embed batch: chunk %s has %d dimensions, want %d", ch.ID, len(vecs[i]), s.cfg.Dimension)
		}
		rows[i] = models.ChunkEmbedding{ChunkID: ch.ID, Embedding: vecs[i]}
	}
	if err := s.db.UpdateChunkEmbeddings(ctx, rows); err != nil {
		return fmt.Errorf("store embeddings: %w", err)
	}
	return nil
}
