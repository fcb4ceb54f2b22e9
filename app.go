package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/serisow/claimdesk/config"
	"github.com/serisow/claimdesk/db"
	"github.com/serisow/claimdesk/logging"
	"github.com/serisow/claimdesk/pipeline"
	"github.com/serisow/claimdesk/pipeline_type"
	"github.com/serisow/claimdesk/plugin_registry"
	"github.com/serisow/claimdesk/scheduler"
	"github.com/serisow/claimdesk/services/claim_service"
	"github.com/serisow/claimdesk/services/llm_service"
	"github.com/serisow/claimdesk/services/rag_service"
)

// application holds every client built at startup.
type application struct {
	cfg     config.Config
	logger  *slog.Logger
	logFile *logging.DailyFileHandler
	pool    *pgxpool.Pool

	coordinator  *rag_service.Coordinator
	retriever    *rag_service.Retriever
	indexManager *rag_service.IndexManager
	executions   *pipeline.ExecutionStore
	runner       *pipeline.Runner
}

func newApplication(ctx context.Context, cfg config.Config, level slog.Level) (*application, error) {
	logger, logFile, err := logging.NewLogger(cfg.LogDir, level)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app := &application{cfg: cfg, logger: logger, logFile: logFile}

	if err := app.build(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *application) build(ctx context.Context) error {
	cfg := a.cfg
	registry := plugin_registry.NewDefaultRegistry()

	llm, err := registry.NewLLMService(cfg.LLMProvider, llm_service.ServiceConfig{
		APIURL:    cfg.LLMAPIURL,
		APIKey:    cfg.LLMAPIKey,
		Model:     cfg.LLMModel,
		Timeout:   cfg.LLMTimeout,
		MaxTokens: cfg.LLMMaxTokens,
	}, a.logger)
	if err != nil {
		return err
	}

	embedder, err := registry.NewEmbedder(cfg.EmbeddingProvider, rag_service.EmbedderConfig{
		APIURL:     cfg.EmbeddingAPIURL,
		APIKey:     cfg.EmbeddingAPIKey,
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDimensions,
		RateLimit:  cfg.EmbeddingRateLimit,
		Timeout:    cfg.LLMTimeout,
	})
	if err != nil {
		return err
	}

	var index rag_service.VectorIndex
	var store rag_service.IngestionStore
	if cfg.DatabaseURL != "" {
		a.pool, err = db.Connect(ctx, db.Options{
			URL:                 cfg.DatabaseURL,
			MaxRetries:          cfg.DBMaxRetries,
			RetryDelay:          cfg.DBRetryDelay,
			EmbeddingDimensions: embedder.Dimensions(),
		}, a.logger)
		if err != nil {
			return err
		}
		index = rag_service.NewPgVectorIndex(a.pool)
		store = rag_service.NewPostgresIngestionStore(a.pool)
		a.indexManager = rag_service.NewIndexManager(a.pool, a.logger)
	} else {
		a.logger.Warn("DATABASE_URL is not set, indexed documents are kept in memory only")
		index = rag_service.NewMemoryIndex()
		store = rag_service.NewMemoryIngestionStore()
	}

	chunker, err := rag_service.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return err
	}

	schema := claim_service.DefaultFactSchema()
	if cfg.FactSchemaPath != "" {
		if schema, err = claim_service.LoadFactSchema(cfg.FactSchemaPath); err != nil {
			return err
		}
	}

	retry := rag_service.RetryPolicy{Attempts: cfg.BackendRetries, Delay: cfg.BackendRetryDelay}
	a.coordinator = rag_service.NewCoordinator(
		rag_service.NewLoader(cfg.LLMTimeout, a.logger),
		chunker,
		embedder,
		index,
		store,
		rag_service.CoordinatorConfig{Retry: retry, Timeout: cfg.IngestTimeout},
		a.logger,
	)
	a.retriever = rag_service.NewRetriever(embedder, index, retry, a.logger)

	a.executions = pipeline.NewExecutionStore(pipeline.RealTimeProvider{}, a.logger)
	a.runner = pipeline.NewRunner(pipeline.Services{
		Ingestor:  a.coordinator,
		Retriever: a.retriever,
		Parser:    claim_service.NewQueryParser(llm, schema, a.logger),
		Engine:    claim_service.NewDecisionEngine(llm, a.logger),
		Renderer:  claim_service.NewFormalResponder(llm, a.logger),
		Answerer:  claim_service.NewAnswerer(llm, a.logger),
	}, pipeline.RunnerConfig{
		TopK:        cfg.RetrievalTopK,
		Concurrency: cfg.QuestionConcurrency,
		DefaultMode: pipeline_type.Mode(cfg.DefaultMode),
	}, a.executions, a.logger)
	if _, err := a.runner.Steps(pipeline_type.Mode(cfg.DefaultMode)); err != nil {
		return fmt.Errorf("invalid DEFAULT_MODE: %w", err)
	}

	a.logger.Info("Application initialized",
		slog.String("llm_provider", cfg.LLMProvider),
		slog.String("embedding_provider", embedder.Name()),
		slog.Int("embedding_dimensions", embedder.Dimensions()),
		slog.Bool("postgres", a.pool != nil),
		slog.Int("fact_fields", len(schema.Names())))
	return nil
}

// newScheduler watches the source documents folder. On Postgres each scan
// that indexed something also checks the ivfflat index.
func (a *application) newScheduler() *scheduler.Scheduler {
	s := scheduler.New(a.cfg.SourceDocsPath, a.cfg.WatchInterval, a.coordinator, a.logger)
	if a.indexManager != nil {
		s.Maintain = a.indexManager.ReindexIfNeeded
	}
	return s
}

func (a *application) Close() {
	if a.executions != nil {
		a.executions.Stop()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}
