package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/markdave123-py/docindex/internal/config"
	"github.com/markdave123-py/docindex/internal/core"
	db "github.com/markdave123-py/docindex/internal/core/database"
	"github.com/markdave123-py/docindex/internal/core/ingestion_engine"
	"github.com/markdave123-py/docindex/internal/core/llm"
	objectclient "github.com/markdave123-py/docindex/internal/core/object-client"
	"github.com/markdave123-py/docindex/internal/services"
)

// App owns the process-wide handles. The database pool is opened once here
// and passed explicitly to everything that needs it.
type App struct {
	Config       *config.Config
	Log          *logrus.Logger
	DBClient     *db.DatabaseClient
	ObjectClient *objectclient.S3Client
	Embedder     *llm.GeminiEmbedder
	LLM          *llm.GeminiLLM

	Coordinator *ingestion_engine.IngestionCoordinator
	Documents   *services.DocumentService
	Embeddings  *services.EmbeddingService
	Query       *services.QueryService
}

// NewApp connects the database and builds the optional clients. S3 is set
// up when a bucket or access key is configured, Gemini when an API key is.
func NewApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg, log)
	if err != nil {
		return nil, err
	}
	log.WithField("driver", dbClient.Driver()).Info("database initialized and ready")

	a := &App{Config: cfg, Log: log, DBClient: dbClient}

	if cfg.BucketName != "" || cfg.AwsAccessKey != "" {
		a.ObjectClient, err = objectclient.NewS3Client(appCtx, cfg, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		log.Info("object client initialized and ready")
	}

	if cfg.AIAPIKey != "" {
		a.Embedder, err = llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
		}
		a.LLM, err = llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("couldn't initialize the llm, %w", err)
		}
	}

	a.Coordinator = ingestion_engine.NewIngestionCoordinator(
		dbClient,
		ingestion_engine.NewDocumentProcessor(log),
		ingestion_engine.CoordinatorConfig{
			Chunker: ingestion_engine.ChunkerConfig{
				ChunkSize:    cfg.ChunkSize,
				ChunkOverlap: cfg.ChunkOverlap,
				MinChunkSize: cfg.MinChunkSize,
			},
			DefaultProject: cfg.DefaultProject,
			Paragraphs:     cfg.ChunkParagraphs,
		},
		log,
	)
	if a.ObjectClient != nil {
		a.Coordinator.WithObjectClient(a.ObjectClient)
	}

	a.Documents = services.NewDocumentService(dbClient)

	// Typed nils must not leak into the interfaces.
	var (
		embedder core.EmbeddingProvider
		gen      core.LLMProvider
	)
	if a.Embedder != nil {
		embedder = a.Embedder
		gen = a.LLM
		a.Embeddings = services.NewEmbeddingService(dbClient, a.Embedder, services.EmbeddingConfig{
			BatchSize:   cfg.EmbedBatchSize,
			Concurrency: cfg.EmbedConcurrency,
			Dimension:   cfg.EmbedDim,
		}, log)
	}
	a.Query = services.NewQueryService(dbClient, embedder, gen)

	return a, nil
}

func (a *App) Close() {
	if a.Embedder != nil {
		_ = a.Embedder.Close()
	}
	if a.LLM != nil {
		_ = a.LLM.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
