package rag_service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/serisow/claimdesk/pipeline_type"
)

type Retriever struct {
	embedder Embedder
	index    VectorIndex
	retry    RetryPolicy
	logger   *slog.Logger
}

func NewRetriever(embedder Embedder, index VectorIndex, retry RetryPolicy, logger *slog.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		retry:    retry,
		logger:   logger,
	}
}

// Retrieve returns at most k passages of the document namespace, most similar
// first. An empty namespace gives an empty result rather than an error.
func (r *Retriever) Retrieve(ctx context.Context, namespace, query string, k int) ([]pipeline_type.Passage, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be at least 1, got %d", k)
	}

	exists, err := withRetry(ctx, r.retry, r.logger, "exists", func(ctx context.Context) (bool, error) {
		return r.index.Exists(ctx, namespace)
	})
	if err != nil {
		return nil, err
	}
	if !exists {
		r.logger.Warn("Retrieval against an empty namespace", slog.String("namespace", namespace))
		return []pipeline_type.Passage{}, nil
	}

	vector, err := withRetry(ctx, r.retry, r.logger, "embed", func(ctx context.Context) ([]float32, error) {
		return r.embedder.Embed(ctx, query)
	})
	if err != nil {
		return nil, err
	}

	passages, err := withRetry(ctx, r.retry, r.logger, "query", func(ctx context.Context) ([]pipeline_type.Passage, error) {
		return r.index.Query(ctx, namespace, vector, k)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Retrieved passages",
		slog.String("namespace", namespace),
		slog.Int("k", k),
		slog.Int("count", len(passages)))
	return passages, nil
}
