package rag_service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/serisow/claimdesk/pipeline_type"
)

const upsertBatchSize = 100

type CoordinatorConfig struct {
	Retry RetryPolicy
	// Timeout bounds one ingestion. It is not tied to the caller that started
	// it, since other callers may be waiting on the same result.
	Timeout time.Duration
}

// Coordinator indexes each document at most once. Concurrent requests for the
// same document share a single ingestion.
type Coordinator struct {
	loader   DocumentLoader
	chunker  *Chunker
	embedder Embedder
	index    VectorIndex
	store    IngestionStore
	config   CoordinatorConfig
	group    singleflight.Group
	logger   *slog.Logger
}

func NewCoordinator(loader DocumentLoader, chunker *Chunker, embedder Embedder, index VectorIndex, store IngestionStore, config CoordinatorConfig, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		loader:   loader,
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		store:    store,
		config:   config,
		logger:   logger,
	}
}

// Namespace is the vector namespace holding the chunks of a document.
func Namespace(identity string) string {
	return strings.TrimSpace(identity)
}

// EnsureIndexed makes sure source is chunked, embedded and recorded. A
// document is only recorded after all of its chunks are stored, so any
// failure leaves it eligible for a full retry.
func (c *Coordinator) EnsureIndexed(ctx context.Context, source string) (*pipeline_type.IngestResponse, error) {
	identity := Namespace(source)
	if identity == "" {
		return nil, &pipeline_type.FetchError{Source: source, Err: errors.New("empty document reference")}
	}

	indexed, err := c.store.Has(ctx, identity)
	if err != nil {
		return nil, err
	}
	if indexed {
		return c.cached(ctx, identity), nil
	}

	ch := c.group.DoChan(identity, func() (interface{}, error) {
		ingestCtx := context.WithoutCancel(ctx)
		if c.config.Timeout > 0 {
			var cancel context.CancelFunc
			ingestCtx, cancel = context.WithTimeout(ingestCtx, c.config.Timeout)
			defer cancel()
		}
		return c.ingest(ingestCtx, identity)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*pipeline_type.IngestResponse), nil
	}
}

func (c *Coordinator) ingest(ctx context.Context, identity string) (*pipeline_type.IngestResponse, error) {
	if locker, ok := c.store.(Locker); ok {
		unlock, err := locker.Lock(ctx, identity)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	// an earlier flight or another process may have finished since the caller's check
	indexed, err := c.store.Has(ctx, identity)
	if err != nil {
		return nil, err
	}
	if indexed {
		return c.cached(ctx, identity), nil
	}

	c.logger.Info("Ingesting document", slog.String("document", identity))

	extractStart := time.Now()
	doc, err := c.loader.FetchText(ctx, identity)
	if err != nil {
		c.logger.Error("Failed to fetch document",
			slog.String("document", identity),
			slog.String("error", err.Error()))
		return nil, err
	}
	extractionTime := time.Since(extractStart)

	embedStart := time.Now()
	var records []pipeline_type.VectorRecord
	for chunk := range c.chunker.Chunks(doc) {
		vector, err := withRetry(ctx, c.config.Retry, c.logger, "embed", func(ctx context.Context) ([]float32, error) {
			return c.embedder.Embed(ctx, chunk.Text)
		})
		if err != nil {
			c.logger.Error("Failed to embed chunk",
				slog.String("document", identity),
				slog.Int("position", chunk.Metadata.Position),
				slog.String("error", err.Error()))
			return nil, err
		}
		records = append(records, pipeline_type.VectorRecord{
			ID:       chunk.ID,
			Vector:   vector,
			Text:     chunk.Text,
			Metadata: chunk.Metadata,
		})
	}
	if len(records) == 0 {
		return nil, &pipeline_type.FetchError{Source: identity, Err: pipeline_type.ErrEmptyDocument}
	}
	embeddingTime := time.Since(embedStart)

	indexStart := time.Now()
	for start := 0; start < len(records); start += upsertBatchSize {
		batch := records[start:min(start+upsertBatchSize, len(records))]
		_, err := withRetry(ctx, c.config.Retry, c.logger, "upsert", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.index.Upsert(ctx, identity, batch)
		})
		if err != nil {
			c.logger.Error("Failed to store chunks",
				slog.String("document", identity),
				slog.Int("batch_start", start),
				slog.String("error", err.Error()))
			return nil, err
		}
	}

	if err := c.store.Mark(ctx, identity); err != nil {
		if !errors.Is(err, pipeline_type.ErrDuplicateIngestion) {
			return nil, fmt.Errorf("failed to record ingestion of %s: %w", identity, err)
		}
		c.logger.Info("Document was recorded by a concurrent ingestion", slog.String("document", identity))
	}
	indexingTime := time.Since(indexStart)

	c.logger.Info("Document indexed",
		slog.String("document", identity),
		slog.Int("chunk_count", len(records)),
		slog.Duration("extraction_time", extractionTime),
		slog.Duration("embedding_time", embeddingTime),
		slog.Duration("indexing_time", indexingTime))

	return &pipeline_type.IngestResponse{
		Message:  "Document indexed successfully",
		Document: identity,
		Status:   "success",
		Metadata: pipeline_type.DocumentMetadata{
			WordCount:      len(strings.Fields(doc.Text)),
			PageCount:      len(doc.Pages),
			ChunkCount:     len(records),
			ContentPreview: preview(doc.Text, 200),
			ContentType:    doc.ContentType,
			ProcessingStats: pipeline_type.ProcessingStats{
				ExtractionTime: extractionTime.Seconds(),
				EmbeddingTime:  embeddingTime.Seconds(),
				IndexingTime:   indexingTime.Seconds(),
			},
		},
	}, nil
}

func (c *Coordinator) cached(ctx context.Context, identity string) *pipeline_type.IngestResponse {
	resp := &pipeline_type.IngestResponse{
		Message:  "Document already indexed",
		Document: identity,
		Cached:   true,
		Status:   "success",
	}
	if count, err := c.index.Count(ctx, identity); err == nil {
		resp.Metadata.ChunkCount = count
	}
	return resp
}

func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
